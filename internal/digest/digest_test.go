package digest

import (
	"context"
	"testing"
	"time"

	"chanwatch/internal/storage"
	"chanwatch/pkg/logx"
)

type fakeStore struct {
	stats    storage.DailyStats
	count    int64
	askedFor string
}

func (f *fakeStore) StatsFor(_ context.Context, date string) (storage.DailyStats, error) {
	f.askedFor = date
	return f.stats, nil
}
func (f *fakeStore) SubscriberCount(context.Context) (int64, error) { return f.count, nil }

type fakeNotifier struct {
	stats storage.DailyStats
	total int64
	calls int
}

func (f *fakeNotifier) DailyDigest(stats storage.DailyStats, total int64) {
	f.stats = stats
	f.total = total
	f.calls++
}

func TestStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Schedule: "not a cron spec"}, &fakeStore{}, &fakeNotifier{}, logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestStartRejectsBadTimezone(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Schedule: "@daily", Timezone: "Mars/Olympus"}, &fakeStore{}, &fakeNotifier{}, logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected timezone error")
	}
}

func TestDisabledStartIsNoop(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false, Schedule: "garbage"}, &fakeStore{}, &fakeNotifier{}, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("disabled digest should not validate: %v", err)
	}
	s.Stop(context.Background())
}

func TestRunReportsPreviousDay(t *testing.T) {
	t.Parallel()
	store := &fakeStore{
		stats: storage.DailyStats{Joins: 3, Mentions: 1},
		count: 42,
	}
	notif := &fakeNotifier{}
	s := New(Config{Enabled: true}, store, notif, logx.Nop())

	s.run(context.Background(), time.UTC)

	want := storage.DateOf(time.Now().UTC().AddDate(0, 0, -1))
	if store.askedFor != want {
		t.Fatalf("asked for %q, want %q", store.askedFor, want)
	}
	if notif.calls != 1 || notif.total != 42 || notif.stats.Joins != 3 {
		t.Fatalf("digest hand-off wrong: %+v total=%d calls=%d", notif.stats, notif.total, notif.calls)
	}
}
