package monitor

import (
	"context"
	"errors"
	"testing"

	"chanwatch/internal/storage"
	"chanwatch/internal/transport"
	"chanwatch/pkg/logx"
)

type fakeStore struct {
	subs     map[int64]storage.Subscriber
	mentions []storage.Mention

	upsertErr error
	appendErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{subs: map[int64]storage.Subscriber{}}
}

func (f *fakeStore) UpsertSubscriber(_ context.Context, sub storage.Subscriber) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.subs[sub.UserID] = sub
	return nil
}

func (f *fakeStore) RemoveSubscriber(_ context.Context, userID int64) (storage.PriorSubscriber, bool, error) {
	sub, ok := f.subs[userID]
	if !ok {
		return storage.PriorSubscriber{}, false, nil
	}
	delete(f.subs, userID)
	return storage.PriorSubscriber{Username: sub.Username, FirstName: sub.FirstName, LastName: sub.LastName}, true, nil
}

func (f *fakeStore) AppendMention(_ context.Context, m storage.Mention) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.mentions = append(f.mentions, m)
	return nil
}

func (f *fakeStore) SubscriberCount(context.Context) (int64, error) {
	return int64(len(f.subs)), nil
}

type notifCall struct {
	kind  string
	user  transport.User
	total int64
	ev    Event
}

type fakeNotifier struct{ calls []notifCall }

func (f *fakeNotifier) SubscriberJoined(user transport.User, total int64) {
	f.calls = append(f.calls, notifCall{kind: "joined", user: user, total: total})
}

func (f *fakeNotifier) SubscriberLeft(user transport.User, _ storage.PriorSubscriber, total int64) {
	f.calls = append(f.calls, notifCall{kind: "left", user: user, total: total})
}

func (f *fakeNotifier) MentionTracked(ev Event) {
	f.calls = append(f.calls, notifCall{kind: "mention", user: ev.User, ev: ev})
}

func newTestService(t *testing.T, store Store, notif Notifier) *Service {
	t.Helper()
	ref, err := ParseChannelRef("@foo")
	if err != nil {
		t.Fatalf("ParseChannelRef: %v", err)
	}
	return New(NewClassifier(ref, selfID), store, notif, logx.Nop())
}

func TestHandleJoinUpdatesLedgerAndNotifies(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	notif := &fakeNotifier{}
	svc := newTestService(t, store, notif)

	svc.Handle(context.Background(), transport.Update{
		Kind: transport.UpdateMemberChange,
		Member: &transport.MemberChange{
			Chat:      transport.Chat{Username: "foo"},
			User:      transport.User{ID: 1, Username: "ada"},
			OldStatus: "left",
			NewStatus: "member",
		},
	})

	if _, ok := store.subs[1]; !ok {
		t.Fatal("subscriber not stored")
	}
	if len(notif.calls) != 1 || notif.calls[0].kind != "joined" || notif.calls[0].total != 1 {
		t.Fatalf("unexpected notifications: %+v", notif.calls)
	}
}

func TestHandleLeaveOfUntrackedUserIsSilent(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	notif := &fakeNotifier{}
	svc := newTestService(t, store, notif)

	svc.Handle(context.Background(), transport.Update{
		Kind: transport.UpdateMemberChange,
		Member: &transport.MemberChange{
			Chat:      transport.Chat{Username: "foo"},
			User:      transport.User{ID: 2},
			OldStatus: "member",
			NewStatus: "left",
		},
	})

	if len(notif.calls) != 0 {
		t.Fatalf("expected no notification, got %+v", notif.calls)
	}
}

func TestHandleMessageEmitsOnePerMatch(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	notif := &fakeNotifier{}
	svc := newTestService(t, store, notif)

	channel := transport.Chat{ID: -1001234567890, Username: "foo"}
	svc.Handle(context.Background(), transport.Update{
		Kind: transport.UpdateMessage,
		Message: &transport.Message{
			ID:          50,
			Chat:        transport.Chat{ID: 12, Title: "group"},
			From:        transport.User{ID: 3, Username: "bob"},
			Text:        "look @foo",
			ForwardFrom: &channel,
		},
	})

	if len(store.mentions) != 2 {
		t.Fatalf("stored %d mention records, want 2", len(store.mentions))
	}
	kinds := map[storage.MentionKind]bool{}
	for _, m := range store.mentions {
		kinds[m.Kind] = true
	}
	if !kinds[storage.KindMention] || !kinds[storage.KindForward] {
		t.Fatalf("unexpected kinds: %+v", store.mentions)
	}
	if len(notif.calls) != 2 {
		t.Fatalf("expected 2 notifications, got %+v", notif.calls)
	}
}

func TestLedgerFailureStillNotifies(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.upsertErr = errors.New("disk full")
	notif := &fakeNotifier{}
	svc := newTestService(t, store, notif)

	svc.Handle(context.Background(), transport.Update{
		Kind: transport.UpdateMemberChange,
		Member: &transport.MemberChange{
			Chat:      transport.Chat{Username: "foo"},
			User:      transport.User{ID: 4, FirstName: "Eve"},
			OldStatus: "left",
			NewStatus: "member",
		},
	})

	if len(notif.calls) != 1 || notif.calls[0].kind != "joined" {
		t.Fatalf("join not reported after ledger failure: %+v", notif.calls)
	}
}

func TestMentionAppendFailureStillNotifies(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.appendErr = errors.New("db locked")
	notif := &fakeNotifier{}
	svc := newTestService(t, store, notif)

	svc.Handle(context.Background(), transport.Update{
		Kind: transport.UpdateMessage,
		Message: &transport.Message{
			ID:   51,
			From: transport.User{ID: 6},
			Text: "ping @foo",
		},
	})

	if len(notif.calls) != 1 || notif.calls[0].kind != "mention" {
		t.Fatalf("mention not reported after ledger failure: %+v", notif.calls)
	}
}
