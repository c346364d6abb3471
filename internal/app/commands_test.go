package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"chanwatch/internal/storage"
	"chanwatch/internal/transport"
	"chanwatch/pkg/logx"
)

type stubStore struct {
	count    int64
	stats    storage.DailyStats
	subs     []storage.Subscriber
	mentions []storage.Mention
}

func (s *stubStore) SubscriberCount(context.Context) (int64, error) { return s.count, nil }
func (s *stubStore) TodayStats(context.Context) (storage.DailyStats, error) { return s.stats, nil }
func (s *stubStore) RecentSubscribers(_ context.Context, limit int) ([]storage.Subscriber, error) {
	if limit < len(s.subs) {
		return s.subs[:limit], nil
	}
	return s.subs, nil
}
func (s *stubStore) RecentMentions(_ context.Context, limit int) ([]storage.Mention, error) {
	if limit < len(s.mentions) {
		return s.mentions[:limit], nil
	}
	return s.mentions, nil
}

type stubSender struct {
	sent []string
}

func (s *stubSender) Start(context.Context, chan<- transport.Update) error { return nil }
func (s *stubSender) Stop(context.Context) error                           { return nil }
func (s *stubSender) Self() transport.User                                 { return transport.User{ID: 99} }
func (s *stubSender) SendText(_ context.Context, _ transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	s.sent = append(s.sent, text)
	return transport.MessageRef{}, nil
}

func newTestRouter(store cmdStore, sender transport.Adapter) *commandRouter {
	return newCommandRouter(store, sender, "@foo", []int64{42}, logx.Nop())
}

func privateMsg(from int64, text string) *transport.Message {
	return &transport.Message{
		ID:        1,
		Chat:      transport.Chat{ID: from},
		From:      transport.User{ID: from},
		Text:      text,
		IsPrivate: true,
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text string
		want string
	}{
		{text: "/stats", want: "stats"},
		{text: "/Stats extra args", want: "stats"},
		{text: "/stats@chanwatch_bot", want: "stats"},
		{text: "hello", want: ""},
		{text: "", want: ""},
		{text: "  /ping  ", want: "ping"},
	}
	for _, tt := range tests {
		if got := parseCommand(tt.text); got != tt.want {
			t.Fatalf("parseCommand(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestNonCommandFallsThrough(t *testing.T) {
	t.Parallel()
	sender := &stubSender{}
	r := newTestRouter(&stubStore{}, sender)

	if r.Handle(context.Background(), privateMsg(42, "just chatting about @foo")) {
		t.Fatal("plain text consumed as command")
	}
	if len(sender.sent) != 0 {
		t.Fatalf("unexpected replies: %v", sender.sent)
	}
}

func TestGroupMessagesAreNeverCommands(t *testing.T) {
	t.Parallel()
	sender := &stubSender{}
	r := newTestRouter(&stubStore{}, sender)

	m := privateMsg(42, "/stats")
	m.IsPrivate = false
	if r.Handle(context.Background(), m) {
		t.Fatal("group message consumed as command")
	}
}

func TestNonAdminIsDenied(t *testing.T) {
	t.Parallel()
	sender := &stubSender{}
	r := newTestRouter(&stubStore{count: 5}, sender)

	if !r.Handle(context.Background(), privateMsg(7, "/stats")) {
		t.Fatal("command not consumed")
	}
	if len(sender.sent) != 1 || !strings.Contains(sender.sent[0], "access") {
		t.Fatalf("expected denial reply, got %v", sender.sent)
	}
}

func TestStatsRendering(t *testing.T) {
	t.Parallel()
	sender := &stubSender{}
	store := &stubStore{
		count: 123,
		stats: storage.DailyStats{Joins: 2, Leaves: 1, Mentions: 4, Forwards: 3, Replies: 5},
	}
	r := newTestRouter(store, sender)

	if !r.Handle(context.Background(), privateMsg(42, "/stats")) {
		t.Fatal("command not consumed")
	}
	got := sender.sent[0]
	for _, want := range []string{"123", "Joined: 2", "Left: 1", "Mentions: 4", "Forwards: 3", "Replies: 5"} {
		if !strings.Contains(got, want) {
			t.Fatalf("stats reply missing %q:\n%s", want, got)
		}
	}
}

func TestSubscribersAndMentionsEmptyStates(t *testing.T) {
	t.Parallel()
	sender := &stubSender{}
	r := newTestRouter(&stubStore{}, sender)
	ctx := context.Background()

	r.Handle(ctx, privateMsg(42, "/subscribers"))
	r.Handle(ctx, privateMsg(42, "/mentions"))
	if len(sender.sent) != 2 {
		t.Fatalf("got %d replies", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0], "No subscribers") {
		t.Fatalf("unexpected subscribers reply: %s", sender.sent[0])
	}
	if !strings.Contains(sender.sent[1], "No mentions") {
		t.Fatalf("unexpected mentions reply: %s", sender.sent[1])
	}
}

func TestMentionsListingShowsKindAndSnippet(t *testing.T) {
	t.Parallel()
	sender := &stubSender{}
	store := &stubStore{mentions: []storage.Mention{
		{UserID: 1, Username: "bob", Kind: storage.KindForward, Text: strings.Repeat("z", 80), At: time.Now().Add(-2 * time.Hour)},
	}}
	r := newTestRouter(store, sender)

	r.Handle(context.Background(), privateMsg(42, "/mentions"))
	got := sender.sent[0]
	if !strings.Contains(got, "forward") || !strings.Contains(got, "@bob") {
		t.Fatalf("mention line malformed: %s", got)
	}
	if !strings.Contains(got, strings.Repeat("z", 50)+"...") {
		t.Fatalf("snippet not truncated: %s", got)
	}
}

func TestSetAdminsHotSwap(t *testing.T) {
	t.Parallel()
	sender := &stubSender{}
	r := newTestRouter(&stubStore{}, sender)

	r.SetAdmins([]int64{7})
	if !r.Handle(context.Background(), privateMsg(7, "/ping")) {
		t.Fatal("command not consumed")
	}
	if len(sender.sent) != 1 || !strings.Contains(sender.sent[0], "PONG") {
		t.Fatalf("new admin denied: %v", sender.sent)
	}
}
