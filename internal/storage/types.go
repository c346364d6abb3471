package storage

import (
	"fmt"
	"time"
)

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default

	// TextLimit caps stored mention text in runes; longer text is truncated
	// at write time with a trailing marker. <= 0 falls back to 500.
	TextLimit int
}

// DefaultSource tags subscribers whose acquisition source is unknown.
const DefaultSource = "direct"

// Subscriber is one live channel member. Presence of a row means the user
// is currently a member.
type Subscriber struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
	JoinedAt  time.Time
	LastSeen  time.Time
	Source    string
}

// PriorSubscriber holds the last known display fields of a removed row.
type PriorSubscriber struct {
	Username  string
	FirstName string
	LastName  string
}

// MentionKind discriminates mention ledger records.
type MentionKind string

const (
	KindMention MentionKind = "mention"
	KindForward MentionKind = "forward"
	KindReply   MentionKind = "reply"
)

// Mention is one immutable mention/forward/reply record. ChatID and
// MessageID are opaque to the store; they only feed deep-link rendering.
type Mention struct {
	UserID    int64
	Username  string
	MessageID int
	ChatID    int64
	Text      string
	Kind      MentionKind
	At        time.Time
}

// DailyStats is the per-calendar-day counter row. A zero value stands in
// for dates with no recorded events.
type DailyStats struct {
	Date     string
	Joins    int64
	Leaves   int64
	Mentions int64
	Forwards int64
	Replies  int64
}

// CounterField names one of the five daily counters.
type CounterField string

const (
	CounterJoins    CounterField = "joins"
	CounterLeaves   CounterField = "leaves"
	CounterMentions CounterField = "mentions"
	CounterForwards CounterField = "forwards"
	CounterReplies  CounterField = "replies"
)

// column maps a CounterField onto its schema column, rejecting anything
// outside the closed set so field names never reach SQL unchecked.
func (f CounterField) column() (string, error) {
	switch f {
	case CounterJoins, CounterLeaves, CounterMentions, CounterForwards, CounterReplies:
		return string(f), nil
	default:
		return "", fmt.Errorf("unknown counter field %q", string(f))
	}
}

// DateOf formats a timestamp as a counter-table key using the clock's own
// location; no timezone normalization is performed.
func DateOf(t time.Time) string {
	return t.Format("2006-01-02")
}
