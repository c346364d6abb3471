// Package notifier renders classified outcomes as HTML admin messages and
// delivers them asynchronously: bounded queue, single worker, rate limit.
// Persistence has always completed (or been written off) before anything
// is enqueued, so a slow Telegram API can never stall event processing.
package notifier

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chanwatch/internal/monitor"
	"chanwatch/internal/storage"
	"chanwatch/internal/transport"
	"chanwatch/pkg/logx"
)

type Config struct {
	QueueSize  int
	RatePerSec int
}

type item struct {
	text string
}

// Service fans admin messages out to the allow-list. It implements
// monitor.Notifier.
type Service struct {
	sender  transport.Adapter
	channel string
	log     logx.Logger

	mu     sync.Mutex
	admins []int64

	queue   chan item
	limiter *rate.Limiter

	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

func New(cfg Config, sender transport.Adapter, channel string, admins []int64, log logx.Logger) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		sender:  sender,
		channel: channel,
		log:     log,
		admins:  append([]int64(nil), admins...),
		queue:   make(chan item, cfg.QueueSize),
		// Burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// SetAdmins replaces the allow-list (config hot reload).
func (s *Service) SetAdmins(admins []int64) {
	s.mu.Lock()
	s.admins = append([]int64(nil), admins...)
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	rctx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		s.worker(rctx)
	}()
}

// Stop cancels the worker and waits for it, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	if s.runCancel != nil {
		s.runCancel()
	}
	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("notifier stop cancelled", logx.Err(ctx.Err()))
	}
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.queue:
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			s.deliver(ctx, it.text)
		}
	}
}

func (s *Service) deliver(ctx context.Context, text string) {
	s.mu.Lock()
	admins := append([]int64(nil), s.admins...)
	s.mu.Unlock()

	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
	for _, id := range admins {
		if _, err := s.sender.SendText(ctx, transport.ChatTarget{ChatID: id}, text, opt); err != nil {
			s.log.Warn("admin notification failed", logx.Int64("admin_id", id), logx.Err(err))
		}
	}
}

func (s *Service) enqueue(text string) {
	select {
	case s.queue <- item{text: text}:
	default:
		s.log.Warn("notification dropped (queue full)")
	}
}

// ---- monitor.Notifier ----

func (s *Service) SubscriberJoined(user transport.User, total int64) {
	s.enqueue(renderJoined(s.channel, user, total, time.Now()))
}

func (s *Service) SubscriberLeft(user transport.User, prior storage.PriorSubscriber, total int64) {
	s.enqueue(renderLeft(user, prior, total))
}

func (s *Service) MentionTracked(ev monitor.Event) {
	s.enqueue(renderMention(ev))
}

// ---- lifecycle / digest messages ----

// Started announces that monitoring is active.
func (s *Service) Started(channelTitle string) {
	s.enqueue(renderStarted(s.channel, channelTitle, time.Now()))
}

// DailyDigest reports one day's counters.
func (s *Service) DailyDigest(stats storage.DailyStats, total int64) {
	s.enqueue(renderDigest(s.channel, stats, total))
}
