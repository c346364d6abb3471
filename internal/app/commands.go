package app

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"chanwatch/internal/storage"
	"chanwatch/internal/transport"
	"chanwatch/pkg/logx"
)

// cmdStore is the read-only slice of storage the admin commands use.
type cmdStore interface {
	SubscriberCount(ctx context.Context) (int64, error)
	TodayStats(ctx context.Context) (storage.DailyStats, error)
	RecentSubscribers(ctx context.Context, limit int) ([]storage.Subscriber, error)
	RecentMentions(ctx context.Context, limit int) ([]storage.Mention, error)
}

// commandRouter answers admin commands in private chats. Messages it does
// not recognize fall through to the monitor pipeline.
type commandRouter struct {
	store   cmdStore
	sender  transport.Adapter
	channel string
	log     logx.Logger

	mu     sync.Mutex
	admins map[int64]bool
}

func newCommandRouter(store cmdStore, sender transport.Adapter, channel string, admins []int64, log logx.Logger) *commandRouter {
	r := &commandRouter{store: store, sender: sender, channel: channel, log: log}
	r.SetAdmins(admins)
	return r
}

func (r *commandRouter) SetAdmins(admins []int64) {
	set := make(map[int64]bool, len(admins))
	for _, id := range admins {
		set[id] = true
	}
	r.mu.Lock()
	r.admins = set
	r.mu.Unlock()
}

func (r *commandRouter) isAdmin(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.admins[userID]
}

// Handle returns true when the message was consumed as a command.
func (r *commandRouter) Handle(ctx context.Context, m *transport.Message) bool {
	if m == nil || !m.IsPrivate {
		return false
	}
	cmd := parseCommand(m.Text)
	if cmd == "" {
		return false
	}

	var text string
	switch cmd {
	case "start", "help":
		text = r.renderHelp(m.From.ID)
	case "stats":
		text = r.requireAdmin(m.From.ID, r.renderStats(ctx))
	case "subscribers":
		text = r.requireAdmin(m.From.ID, r.renderSubscribers(ctx))
	case "mentions":
		text = r.requireAdmin(m.From.ID, r.renderMentions(ctx))
	case "ping":
		text = r.requireAdmin(m.From.ID, r.renderPing(ctx))
	default:
		// Unknown command: let the monitor pipeline look at it.
		return false
	}

	r.reply(ctx, m.Chat.ID, text)
	return true
}

func (r *commandRouter) requireAdmin(userID int64, rendered string) string {
	if !r.isAdmin(userID) {
		return "⛔ You don't have access to this bot."
	}
	return rendered
}

func (r *commandRouter) reply(ctx context.Context, chatID int64, text string) {
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if _, err := r.sender.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, opt); err != nil {
		r.log.Warn("command reply failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (r *commandRouter) renderHelp(userID int64) string {
	if !r.isAdmin(userID) {
		return "⛔ You don't have access to this bot."
	}
	var b strings.Builder
	b.WriteString("👋 Hello, administrator!\n\n")
	fmt.Fprintf(&b, "Monitoring channel: <b>%s</b>\n\n", html.EscapeString(r.channel))
	b.WriteString("<b>Commands:</b>\n")
	b.WriteString("/stats - channel statistics\n")
	b.WriteString("/subscribers - recent subscribers\n")
	b.WriteString("/mentions - recent mentions\n")
	b.WriteString("/ping - health check\n")
	b.WriteString("/help - this message\n\n")
	b.WriteString("<b>The bot tracks:</b>\n")
	b.WriteString("✅ new subscribers\n")
	b.WriteString("✅ unsubscribes\n")
	b.WriteString("✅ channel mentions\n")
	b.WriteString("✅ forwards of your posts\n")
	b.WriteString("✅ replies to your posts")
	return b.String()
}

func (r *commandRouter) renderStats(ctx context.Context) string {
	total, err := r.store.SubscriberCount(ctx)
	if err != nil {
		r.log.Error("stats count failed", logx.Err(err))
		return "❌ Failed to read statistics."
	}
	st, err := r.store.TodayStats(ctx)
	if err != nil {
		r.log.Error("stats read failed", logx.Err(err))
		return "❌ Failed to read statistics."
	}

	var b strings.Builder
	b.WriteString("📊 <b>CHANNEL STATISTICS</b>\n\n")
	fmt.Fprintf(&b, "📢 <b>Channel:</b> %s\n", html.EscapeString(r.channel))
	fmt.Fprintf(&b, "👥 <b>Total subscribers:</b> %d\n\n", total)
	fmt.Fprintf(&b, "<b>Today (%s):</b>\n", time.Now().Format("02.01.2006"))
	fmt.Fprintf(&b, "  ➕ Joined: %d\n", st.Joins)
	fmt.Fprintf(&b, "  ➖ Left: %d\n", st.Leaves)
	fmt.Fprintf(&b, "  🔔 Mentions: %d\n", st.Mentions)
	fmt.Fprintf(&b, "  🔄 Forwards: %d\n", st.Forwards)
	fmt.Fprintf(&b, "  💬 Replies: %d", st.Replies)
	return b.String()
}

func (r *commandRouter) renderSubscribers(ctx context.Context) string {
	subs, err := r.store.RecentSubscribers(ctx, 10)
	if err != nil {
		r.log.Error("subscribers read failed", logx.Err(err))
		return "❌ Failed to read subscribers."
	}
	if len(subs) == 0 {
		return "📭 No subscribers yet."
	}

	var b strings.Builder
	b.WriteString("👥 <b>Recent subscribers:</b>\n\n")
	for _, s := range subs {
		name := s.FirstName
		if name == "" {
			name = s.Username
		}
		handle := s.Username
		if handle == "" {
			handle = "none"
		}
		fmt.Fprintf(&b, "<b>%s</b> (@%s)\n", html.EscapeString(name), html.EscapeString(handle))
		fmt.Fprintf(&b, "🆔 <code>%d</code>\n", s.UserID)
		fmt.Fprintf(&b, "⏰ %s ago\n", relativeAge(s.JoinedAt))
		b.WriteString(strings.Repeat("-", 20) + "\n")
	}
	return b.String()
}

func (r *commandRouter) renderMentions(ctx context.Context) string {
	mentions, err := r.store.RecentMentions(ctx, 10)
	if err != nil {
		r.log.Error("mentions read failed", logx.Err(err))
		return "❌ Failed to read mentions."
	}
	if len(mentions) == 0 {
		return "🔕 No mentions yet."
	}

	var b strings.Builder
	b.WriteString("🔔 <b>Recent mentions:</b>\n\n")
	for _, m := range mentions {
		icon := "🔔"
		switch m.Kind {
		case storage.KindForward:
			icon = "🔄"
		case storage.KindReply:
			icon = "💬"
		}
		who := m.Username
		if who == "" {
			who = "hidden"
		}
		fmt.Fprintf(&b, "%s <b>%s</b> from @%s\n", icon, string(m.Kind), html.EscapeString(who))
		if m.Text != "" {
			fmt.Fprintf(&b, "📝 %s\n", html.EscapeString(snippet(m.Text, 50)))
		}
		fmt.Fprintf(&b, "⏰ %s ago\n", relativeAge(m.At))
		b.WriteString(strings.Repeat("-", 20) + "\n")
	}
	return b.String()
}

func (r *commandRouter) renderPing(ctx context.Context) string {
	start := time.Now()
	total, err := r.store.SubscriberCount(ctx)
	dbStatus := "✅"
	if err != nil {
		dbStatus = "❌"
	}
	took := time.Since(start)

	var b strings.Builder
	b.WriteString("🏓 <b>PONG!</b>\n\n")
	fmt.Fprintf(&b, "⏱ <b>Response time:</b> %d ms\n", took.Milliseconds())
	fmt.Fprintf(&b, "📅 <b>Server time:</b> %s\n\n", time.Now().Format("02.01.2006 15:04:05"))
	b.WriteString("<b>Systems:</b>\n")
	fmt.Fprintf(&b, "%s Database: %d subscribers\n", dbStatus, total)
	fmt.Fprintf(&b, "✅ Channel: %s", html.EscapeString(r.channel))
	return b.String()
}

// parseCommand extracts the lowercase command name from "/cmd@bot args",
// or "" when the text is not a command.
func parseCommand(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

func relativeAge(t time.Time) string {
	if t.IsZero() {
		return "?"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "moments"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func snippet(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
