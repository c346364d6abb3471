package monitor

import (
	"context"

	"chanwatch/internal/storage"
	"chanwatch/internal/transport"
	"chanwatch/pkg/logx"
)

// Store is the slice of the persistence layer the event application step
// mutates.
type Store interface {
	UpsertSubscriber(ctx context.Context, sub storage.Subscriber) error
	RemoveSubscriber(ctx context.Context, userID int64) (storage.PriorSubscriber, bool, error)
	AppendMention(ctx context.Context, m storage.Mention) error
	SubscriberCount(ctx context.Context) (int64, error)
}

// Notifier consumes classified outcomes. Delivery is the notifier's
// problem; the service's contract ends at the hand-off.
type Notifier interface {
	SubscriberJoined(user transport.User, total int64)
	SubscriberLeft(user transport.User, prior storage.PriorSubscriber, total int64)
	MentionTracked(ev Event)
}

// Service applies classified events to the ledgers and hands outcomes to
// the notifier. Per event: one ledger write plus one counter bump (a
// single transaction inside the store), then the notification. Sub-steps
// are independent and best-effort; a failed write is logged and never
// aborts the rest.
type Service struct {
	cls   *Classifier
	store Store
	notif Notifier
	log   logx.Logger
}

func New(cls *Classifier, store Store, notif Notifier, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cls: cls, store: store, notif: notif, log: log}
}

// Handle classifies one update and applies every resulting event.
func (s *Service) Handle(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMemberChange:
		ev, ok := s.cls.ClassifyMemberChange(up.Member)
		if !ok {
			return
		}
		s.apply(ctx, ev)
	case transport.UpdateMessage:
		for _, ev := range s.cls.ClassifyMessage(up.Message) {
			s.apply(ctx, ev)
		}
	}
}

func (s *Service) apply(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventJoined:
		s.applyJoin(ctx, ev)
	case EventLeft:
		s.applyLeave(ctx, ev)
	case EventMentioned, EventForwarded, EventRepliedTo:
		s.applyMention(ctx, ev)
	}
}

func (s *Service) applyJoin(ctx context.Context, ev Event) {
	err := s.store.UpsertSubscriber(ctx, storage.Subscriber{
		UserID:    ev.User.ID,
		Username:  ev.User.Username,
		FirstName: ev.User.FirstName,
		LastName:  ev.User.LastName,
		Source:    storage.DefaultSource,
	})
	if err != nil {
		// Best effort: the join is still reported with the raw event data.
		s.log.Error("subscriber upsert failed", logx.Int64("user_id", ev.User.ID), logx.Err(err))
	} else {
		s.log.Info("subscriber joined", logx.Int64("user_id", ev.User.ID), logx.String("user", ev.User.DisplayName()))
	}

	total := s.total(ctx)
	s.notif.SubscriberJoined(ev.User, total)
}

func (s *Service) applyLeave(ctx context.Context, ev Event) {
	prior, found, err := s.store.RemoveSubscriber(ctx, ev.User.ID)
	if err != nil {
		s.log.Error("subscriber remove failed", logx.Int64("user_id", ev.User.ID), logx.Err(err))
		return
	}
	if !found {
		// Never tracked; a normal outcome, nothing to report.
		s.log.Debug("leave for untracked user", logx.Int64("user_id", ev.User.ID))
		return
	}
	s.log.Info("subscriber left", logx.Int64("user_id", ev.User.ID), logx.String("user", prior.Username))

	total := s.total(ctx)
	s.notif.SubscriberLeft(ev.User, prior, total)
}

func (s *Service) applyMention(ctx context.Context, ev Event) {
	kind := mentionKind(ev.Kind)
	err := s.store.AppendMention(ctx, storage.Mention{
		UserID:    ev.User.ID,
		Username:  ev.User.DisplayName(),
		MessageID: ev.MessageID,
		ChatID:    ev.Chat.ID,
		Text:      ev.Text,
		Kind:      kind,
	})
	if err != nil {
		s.log.Error("mention append failed",
			logx.String("kind", string(kind)), logx.Int64("user_id", ev.User.ID), logx.Err(err))
	} else {
		s.log.Info("mention tracked",
			logx.String("kind", string(kind)), logx.Int64("user_id", ev.User.ID), logx.Int64("chat_id", ev.Chat.ID))
	}

	s.notif.MentionTracked(ev)
}

func (s *Service) total(ctx context.Context) int64 {
	n, err := s.store.SubscriberCount(ctx)
	if err != nil {
		s.log.Warn("subscriber count failed", logx.Err(err))
		return -1
	}
	return n
}

func mentionKind(k EventKind) storage.MentionKind {
	switch k {
	case EventForwarded:
		return storage.KindForward
	case EventRepliedTo:
		return storage.KindReply
	default:
		return storage.KindMention
	}
}
