// Package app wires configuration, storage, transport, the monitor
// pipeline and the notifier into one application context. Everything is
// constructed once here and passed down explicitly; there are no
// process-wide singletons.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chanwatch/internal/config"
	"chanwatch/internal/digest"
	"chanwatch/internal/monitor"
	"chanwatch/internal/notifier"
	"chanwatch/internal/storage"
	"chanwatch/internal/transport"
	"chanwatch/internal/transport/telegram"
	"chanwatch/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger

	store   *storage.DB
	adapter *telegram.Adapter
	notif   *notifier.Service
	mon     *monitor.Service
	dig     *digest.Service
	cmds    *commandRouter

	updates chan transport.Update

	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	channel, err := monitor.ParseChannelRef(cfg.Channel.Identity)
	if err != nil {
		logs.Close()
		return nil, err
	}

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		logs.Close()
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
		TextLimit:   cfg.TextLimit(),
	}, logs.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, config.DefaultPollTimeout)
	if err != nil {
		_ = store.Close()
		logs.Close()
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logs.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		logs.Close()
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	notif := notifier.New(notifier.Config{
		QueueSize:  cfg.Notifier.QueueSize,
		RatePerSec: cfg.Notifier.RatePerSec,
	}, adapter, channel.String(), cfg.Telegram.AdminUserIDs,
		logs.Logger().With(logx.String("comp", "notifier")))

	cls := monitor.NewClassifier(channel, adapter.Self().ID)
	mon := monitor.New(cls, store, notif, logs.Logger().With(logx.String("comp", "monitor")))

	dig := digest.New(digest.Config{
		Enabled:  cfg.Digest.Enabled,
		Schedule: cfg.DigestSchedule(),
		Timezone: cfg.Digest.Timezone,
	}, store, notif, logs.Logger().With(logx.String("comp", "digest")))

	cmds := newCommandRouter(store, adapter, channel.String(), cfg.Telegram.AdminUserIDs,
		logs.Logger().With(logx.String("comp", "commands")))

	return &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		store:   store,
		adapter: adapter,
		notif:   notif,
		mon:     mon,
		dig:     dig,
		cmds:    cmds,
		updates: make(chan transport.Update, 256),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel

	a.notif.Start(rctx)

	if err := a.adapter.Start(rctx, a.updates); err != nil {
		return err
	}
	if err := a.dig.Start(rctx); err != nil {
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.dispatch(rctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.reloadLoop(rctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(rctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.notif.Started("")
	a.log.Info("app started", logx.String("channel", a.cmds.channel))
	return nil
}

// dispatch routes inbound updates: admin commands first, everything else
// into the monitor pipeline. Each update is handled to completion before
// the next is read; concurrent safety inside the store does the rest.
func (a *App) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-a.updates:
			if !ok {
				return
			}
			if up.Kind == transport.UpdateMessage && a.cmds.Handle(ctx, up.Message) {
				continue
			}
			a.mon.Handle(ctx, up)
		}
	}
}

// reloadLoop applies hot-reloadable config sections when the file changes.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.notif.SetAdmins(cfg.Telegram.AdminUserIDs)
			a.cmds.SetAdmins(cfg.Telegram.AdminUserIDs)
			a.store.SetTextLimit(cfg.TextLimit())
			a.log.Info("config reloaded")
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	// Cancel the run context first so loops start unwinding immediately.
	if a.runCancel != nil {
		a.runCancel()
	}

	step := func(name string, max time.Duration, fn func(context.Context)) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		fn(stepCtx)
		a.log.Debug("stop step done", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("digest", 2*time.Second, func(c context.Context) { a.dig.Stop(c) })
	step("notifier", 2*time.Second, func(c context.Context) { a.notif.Stop(c) })
	step("adapter", 2*time.Second, func(c context.Context) { _ = a.adapter.Stop(c) })

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		a.log.Warn("loops did not finish before deadline")
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	a.log.Info("stopped")
	a.logs.Close()
	return nil
}
