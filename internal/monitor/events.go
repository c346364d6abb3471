package monitor

import "chanwatch/internal/transport"

// EventKind is the domain event discriminant.
type EventKind int

const (
	EventJoined EventKind = iota
	EventLeft
	EventMentioned
	EventForwarded
	EventRepliedTo
)

func (k EventKind) String() string {
	switch k {
	case EventJoined:
		return "joined"
	case EventLeft:
		return "left"
	case EventMentioned:
		return "mentioned"
	case EventForwarded:
		return "forwarded"
	case EventRepliedTo:
		return "replied_to"
	default:
		return "unknown"
	}
}

// Event is one classified domain event. It is transient: it carries just
// enough to update the ledgers and hand off to the notifier. For member
// events the message fields are zero.
type Event struct {
	Kind EventKind
	User transport.User

	// Chat is where the triggering message was posted (deep-link target).
	Chat      transport.Chat
	MessageID int
	Text      string
}
