package notifier

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"chanwatch/internal/monitor"
	"chanwatch/internal/storage"
	"chanwatch/internal/transport"
)

const previewLimit = 200

func renderJoined(channel string, user transport.User, total int64, now time.Time) string {
	var b strings.Builder
	b.WriteString("🎉 <b>New subscriber!</b>\n\n")
	fmt.Fprintf(&b, "📢 <b>Channel:</b> %s\n", esc(channel))
	fmt.Fprintf(&b, "👤 <b>User:</b>\n%s\n", userInfo(user))
	fmt.Fprintf(&b, "📈 <b>Total subscribers:</b> %s\n", totalStr(total))
	fmt.Fprintf(&b, "⏰ <b>Time:</b> %s", now.Format("15:04:05"))
	return b.String()
}

func renderLeft(user transport.User, prior storage.PriorSubscriber, total int64) string {
	name := prior.Username
	if name == "" {
		name = strings.TrimSpace(prior.FirstName + " " + prior.LastName)
	}
	var b strings.Builder
	b.WriteString("😢 <b>Subscriber left</b>\n\n")
	fmt.Fprintf(&b, "👤 <b>User:</b> %s\n", esc(name))
	fmt.Fprintf(&b, "🆔 <b>ID:</b> <code>%d</code>\n", user.ID)
	fmt.Fprintf(&b, "📉 <b>Subscribers remaining:</b> %s", totalStr(total))
	return b.String()
}

func renderMention(ev monitor.Event) string {
	var b strings.Builder
	switch ev.Kind {
	case monitor.EventForwarded:
		b.WriteString("🔄 <b>Your post was forwarded!</b>\n\n")
	case monitor.EventRepliedTo:
		b.WriteString("💬 <b>Reply to your post!</b>\n\n")
	default:
		b.WriteString("🔔 <b>New channel mention!</b>\n\n")
	}
	fmt.Fprintf(&b, "👤 <b>From:</b>\n%s\n", userInfo(ev.User))
	title := ev.Chat.Title
	if title == "" {
		title = "untitled"
	}
	fmt.Fprintf(&b, "💬 <b>Chat:</b> %s\n", esc(title))
	if ev.Kind != monitor.EventForwarded && ev.Text != "" {
		fmt.Fprintf(&b, "📝 <b>Text:</b>\n<code>%s</code>\n", esc(preview(ev.Text)))
	}
	fmt.Fprintf(&b, "\n🔗 <a href='%s'>Open message</a>", MessageLink(ev.Chat.ID, ev.MessageID))
	return b.String()
}

func renderStarted(channel, title string, now time.Time) string {
	shown := title
	if shown == "" {
		shown = channel
	}
	var b strings.Builder
	b.WriteString("✅ <b>Monitoring started</b>\n\n")
	fmt.Fprintf(&b, "📢 <b>Channel:</b> %s\n", esc(shown))
	fmt.Fprintf(&b, "🕐 <b>Time:</b> %s", now.Format("02.01.2006 15:04:05"))
	return b.String()
}

func renderDigest(channel string, st storage.DailyStats, total int64) string {
	var b strings.Builder
	b.WriteString("📊 <b>Daily digest</b>\n\n")
	fmt.Fprintf(&b, "📢 <b>Channel:</b> %s\n", esc(channel))
	fmt.Fprintf(&b, "📅 <b>Date:</b> %s\n", st.Date)
	fmt.Fprintf(&b, "👥 <b>Total subscribers:</b> %s\n\n", totalStr(total))
	fmt.Fprintf(&b, "  ➕ Joined: %d\n", st.Joins)
	fmt.Fprintf(&b, "  ➖ Left: %d\n", st.Leaves)
	fmt.Fprintf(&b, "  🔔 Mentions: %d\n", st.Mentions)
	fmt.Fprintf(&b, "  🔄 Forwards: %d\n", st.Forwards)
	fmt.Fprintf(&b, "  💬 Replies: %d", st.Replies)
	return b.String()
}

func userInfo(u transport.User) string {
	lines := make([]string, 0, 4)
	if u.Username != "" {
		lines = append(lines, "@"+esc(u.Username))
	} else if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		lines = append(lines, esc(name))
	}
	lines = append(lines, fmt.Sprintf("ID: <code>%d</code>", u.ID))
	if u.Language != "" {
		lines = append(lines, "Lang: "+esc(strings.ToUpper(u.Language)))
	}
	if u.IsBot {
		lines = append(lines, "🤖 bot")
	}
	return strings.Join(lines, "\n")
}

// MessageLink builds a t.me deep link. Private-channel links drop the -100
// chat id prefix.
func MessageLink(chatID int64, messageID int) string {
	s := strconv.FormatInt(chatID, 10)
	if strings.HasPrefix(s, "-100") {
		s = s[4:]
	} else {
		s = strings.TrimPrefix(s, "-")
	}
	return fmt.Sprintf("https://t.me/c/%s/%d", s, messageID)
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLimit {
		return s
	}
	return string(r[:previewLimit]) + "..."
}

func totalStr(total int64) string {
	if total < 0 {
		return "unknown"
	}
	return strconv.FormatInt(total, 10)
}

func esc(s string) string { return html.EscapeString(s) }
