package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"chanwatch/internal/transport"
	"chanwatch/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Adapter bridges telebot long polling to the transport.Update channel.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot       *tele.Bot
	out       chan<- transport.Update
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	runMu     sync.Mutex
	running   bool

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop. Logged periodically to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token: cfg.Token,
		Poller: &tele.LongPoller{
			Timeout: timeout,
			// chat_member updates are only delivered when requested explicitly.
			AllowedUpdates: []string{"message", "chat_member"},
		},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

func (a *Adapter) Self() transport.User {
	if a.bot == nil || a.bot.Me == nil {
		return transport.User{}
	}
	return mapUser(a.bot.Me)
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out = out
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(2)
	a.runMu.Unlock()

	// Periodic summary for dropped updates.
	go func() {
		defer a.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n))
				}
			}
		}
	}()

	onMessage := func(c tele.Context) error {
		m := c.Message()
		if m == nil {
			return nil
		}
		a.emit(transport.Update{Kind: transport.UpdateMessage, Message: mapMessage(m)})
		return nil
	}
	a.bot.Handle(tele.OnText, onMessage)
	a.bot.Handle(tele.OnMedia, onMessage)
	a.bot.Handle(tele.OnForward, onMessage)

	a.bot.Handle(tele.OnChatMember, func(c tele.Context) error {
		cm := c.ChatMember()
		if cm == nil || cm.NewChatMember == nil {
			return nil
		}
		mc := &transport.MemberChange{
			Chat:      mapChat(cm.Chat),
			NewStatus: string(cm.NewChatMember.Role),
		}
		if cm.OldChatMember != nil {
			mc.OldStatus = string(cm.OldChatMember.Role)
		}
		if cm.NewChatMember.User != nil {
			mc.User = mapUser(cm.NewChatMember.User)
		} else if cm.Sender != nil {
			mc.User = mapUser(cm.Sender)
		}
		a.emit(transport.Update{Kind: transport.UpdateMemberChange, Member: mc})
		return nil
	})

	go func() {
		defer a.runWG.Done()
		// Ensure we stop telebot when context is cancelled.
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started", logx.String("bot", a.Self().Username))
		a.bot.Start() // blocks until Stop() called
	}()

	return nil
}

func (a *Adapter) emit(up transport.Update) {
	select {
	case a.out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		a.log.Debug("telegram stop called but not running")
		return nil
	}

	if cancel != nil {
		cancel()
	}

	// telebot Stop is expected to be fast; run it async just in case.
	if a.bot != nil {
		go a.bot.Stop()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	// Grace window: keep shutdown snappy even if getUpdates long-poll is
	// still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		rem := time.Until(dl)
		if rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		a.log.Warn("telegram stop cancelled", logx.Err(ctx.Err()))
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}
	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}

	msg, err := a.bot.Send(chat, text, sendOpt)
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func mapUser(u *tele.User) transport.User {
	if u == nil {
		return transport.User{}
	}
	return transport.User{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsBot:     u.IsBot,
		Language:  u.LanguageCode,
	}
}

func mapChat(c *tele.Chat) transport.Chat {
	if c == nil {
		return transport.Chat{}
	}
	return transport.Chat{ID: c.ID, Username: c.Username, Title: c.Title}
}

func mapMessage(m *tele.Message) *transport.Message {
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	out := &transport.Message{
		ID:        m.ID,
		Chat:      mapChat(m.Chat),
		Text:      text,
		IsPrivate: m.Chat != nil && m.Chat.Type == tele.ChatPrivate,
	}
	if m.Sender != nil {
		out.From = mapUser(m.Sender)
	}
	if m.OriginalChat != nil {
		fc := mapChat(m.OriginalChat)
		out.ForwardFrom = &fc
	}
	if m.ReplyTo != nil {
		rt := &transport.ReplyTarget{ID: m.ReplyTo.ID}
		if m.ReplyTo.OriginalChat != nil {
			fc := mapChat(m.ReplyTo.OriginalChat)
			rt.ForwardFrom = &fc
		}
		out.ReplyTo = rt
	}
	return out
}
