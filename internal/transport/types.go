package transport

import "context"

type UpdateKind string

const (
	UpdateMessage      UpdateKind = "message"
	UpdateMemberChange UpdateKind = "member_change"
)

// Update is one inbound platform event, already flattened into the two
// shapes the monitor core consumes.
type Update struct {
	Kind    UpdateKind
	Message *Message
	Member  *MemberChange
}

// User carries the display fields of the acting user.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	IsBot     bool
	Language  string
}

// DisplayName prefers the handle and falls back to the name parts.
func (u User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Chat identifies a chat by numeric id and, when known, handle and title.
type Chat struct {
	ID       int64
	Username string
	Title    string
}

// Message is an inbound message event. Text holds the body or, for media,
// the caption. ForwardFrom is the forward-origin chat when the message is
// a forwarded copy; ReplyTo is set when the message replies to another.
type Message struct {
	ID          int
	Chat        Chat
	From        User
	Text        string
	IsPrivate   bool
	ForwardFrom *Chat
	ReplyTo     *ReplyTarget
}

// ReplyTarget is the replied-to message, reduced to what classification
// needs: its own forward origin, if any.
type ReplyTarget struct {
	ID          int
	ForwardFrom *Chat
}

// MemberChange is an inbound membership-status update for one user in one
// chat. Old/New are the platform's raw status strings.
type MemberChange struct {
	Chat      Chat
	User      User
	OldStatus string
	NewStatus string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is the platform transport: it feeds inbound updates into out
// and delivers outbound text.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// Self reports the bot's own identity, used to suppress self events.
	Self() User

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
