// Package digest schedules the daily stats report to admins.
package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"chanwatch/internal/storage"
	"chanwatch/pkg/logx"
)

type Store interface {
	StatsFor(ctx context.Context, date string) (storage.DailyStats, error)
	SubscriberCount(ctx context.Context) (int64, error)
}

type Notifier interface {
	DailyDigest(stats storage.DailyStats, total int64)
}

type Config struct {
	Enabled  bool
	Schedule string // five-field cron spec or descriptor
	Timezone string // IANA name; empty = process-local
}

type Service struct {
	cfg   Config
	store Store
	notif Notifier
	log   logx.Logger

	parser cron.Parser
	c      *cron.Cron
}

func New(cfg Config, store Store, notif Notifier, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		notif:  notif,
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Enabled() bool { return s.cfg.Enabled }

func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	spec := strings.TrimSpace(s.cfg.Schedule)
	if spec == "" {
		spec = "0 0 * * *"
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("digest schedule %q: %w", spec, err)
	}

	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("digest timezone %q: %w", tz, err)
		}
		loc = l
	}

	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	if _, err := s.c.AddFunc(spec, func() { s.run(ctx, loc) }); err != nil {
		return err
	}
	s.c.Start()
	s.log.Info("digest scheduled", logx.String("spec", spec), logx.String("tz", loc.String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	if s.c == nil {
		return
	}
	stopped := s.c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		s.log.Warn("digest stop cancelled", logx.Err(ctx.Err()))
	}
}

// run reports the previous day relative to the digest's own timezone.
func (s *Service) run(ctx context.Context, loc *time.Location) {
	date := storage.DateOf(time.Now().In(loc).AddDate(0, 0, -1))

	stats, err := s.store.StatsFor(ctx, date)
	if err != nil {
		s.log.Error("digest stats read failed", logx.String("date", date), logx.Err(err))
		return
	}
	total, err := s.store.SubscriberCount(ctx)
	if err != nil {
		s.log.Warn("digest subscriber count failed", logx.Err(err))
		total = -1
	}
	s.notif.DailyDigest(stats, total)
}
