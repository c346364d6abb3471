package monitor

import "chanwatch/internal/transport"

// Classifier maps raw platform events to domain events. It is pure: no
// I/O, no clock, no stored state beyond the configured identities.
type Classifier struct {
	channel ChannelRef
	selfID  int64
}

func NewClassifier(channel ChannelRef, selfID int64) *Classifier {
	return &Classifier{channel: channel, selfID: selfID}
}

// ClassifyMemberChange yields at most one Joined or Left event.
//
// Events for other chats and events acted by the bot itself are skipped.
// Only transitions that cross the in-chat boundary count: a
// restricted->member unmute or a member->administrator promotion is not a
// join, and only a transition out of the chat is a leave.
func (c *Classifier) ClassifyMemberChange(mc *transport.MemberChange) (Event, bool) {
	if mc == nil || !c.channel.Matches(mc.Chat) {
		return Event{}, false
	}
	if mc.User.ID == 0 || mc.User.ID == c.selfID {
		return Event{}, false
	}

	wasIn := ParseMemberStatus(mc.OldStatus).InChat()
	isIn := ParseMemberStatus(mc.NewStatus).InChat()
	switch {
	case !wasIn && isIn:
		return Event{Kind: EventJoined, User: mc.User, Chat: mc.Chat}, true
	case wasIn && !isIn:
		return Event{Kind: EventLeft, User: mc.User, Chat: mc.Chat}, true
	default:
		return Event{}, false
	}
}

// ClassifyMessage yields zero or more events for one message. The checks
// are independent: a single message that mentions the channel, forwards
// its content and replies to a forwarded post emits all three events.
// Self-authored and authorless messages yield nothing.
func (c *Classifier) ClassifyMessage(m *transport.Message) []Event {
	if m == nil || m.From.ID == 0 || m.From.ID == c.selfID {
		return nil
	}

	base := Event{User: m.From, Chat: m.Chat, MessageID: m.ID, Text: m.Text}

	var out []Event
	if c.channel.MentionedIn(m.Text) {
		ev := base
		ev.Kind = EventMentioned
		out = append(out, ev)
	}
	if m.ForwardFrom != nil && c.channel.Matches(*m.ForwardFrom) {
		ev := base
		ev.Kind = EventForwarded
		out = append(out, ev)
	}
	if m.ReplyTo != nil && m.ReplyTo.ForwardFrom != nil && c.channel.Matches(*m.ReplyTo.ForwardFrom) {
		ev := base
		ev.Kind = EventRepliedTo
		out = append(out, ev)
	}
	return out
}
