package monitor

import (
	"errors"
	"strconv"
	"strings"

	"chanwatch/internal/transport"
)

// ChannelRef is the configured identity of the monitored channel: either
// an @handle or a numeric chat id. Numeric ids are normalized by stripping
// Telegram's -100 supergroup prefix, so "-1001234567890" and "1234567890"
// refer to the same channel.
type ChannelRef struct {
	handle string // lowercase, no leading '@'; empty for numeric identities
	id     int64  // normalized; 0 for handle identities
	raw    string
}

func ParseChannelRef(s string) (ChannelRef, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return ChannelRef{}, errors.New("channel identity is empty")
	}

	if !strings.HasPrefix(raw, "@") {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return ChannelRef{id: normalizeChatID(id), raw: raw}, nil
		}
	}

	handle := strings.ToLower(strings.TrimPrefix(raw, "@"))
	if handle == "" {
		return ChannelRef{}, errors.New("channel handle is empty")
	}
	return ChannelRef{handle: handle, raw: raw}, nil
}

// Matches reports whether chat is the monitored channel.
func (r ChannelRef) Matches(chat transport.Chat) bool {
	if r.handle != "" {
		return chat.Username != "" && strings.EqualFold(chat.Username, r.handle)
	}
	if r.id != 0 {
		return normalizeChatID(chat.ID) == r.id
	}
	return false
}

// MentionedIn reports whether the channel handle appears as a substring of
// text (case-insensitive, '@' included). Numeric identities cannot appear
// in message text, so they never match.
func (r ChannelRef) MentionedIn(text string) bool {
	if r.handle == "" || text == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), "@"+r.handle)
}

func (r ChannelRef) String() string { return r.raw }

// normalizeChatID strips the -100 supergroup/channel prefix so both the
// raw bot-API id and the short form compare equal.
func normalizeChatID(id int64) int64 {
	if id >= 0 {
		return id
	}
	s := strconv.FormatInt(-id, 10)
	if strings.HasPrefix(s, "100") && len(s) > 3 {
		if v, err := strconv.ParseInt(s[3:], 10, 64); err == nil {
			return v
		}
	}
	return -id
}
