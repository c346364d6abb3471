package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"chanwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// DB is the SQLite-backed store behind all three ledgers.
type DB struct {
	db  *sql.DB
	log logx.Logger

	textLimit atomic.Int64
}

func Open(cfg Config, log logx.Logger) (*DB, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &DB{db: db, log: log}
	s.SetTextLimit(cfg.TextLimit)

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DB) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *DB) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetTextLimit updates the mention text cap (config hot reload).
func (s *DB) SetTextLimit(n int) {
	if n <= 0 {
		n = 500
	}
	s.textLimit.Store(int64(n))
}

// UpsertSubscriber records a join: the subscriber row is inserted or fully
// overwritten and the day's join counter is bumped, in one transaction.
func (s *DB) UpsertSubscriber(ctx context.Context, sub Subscriber) error {
	now := time.Now()
	if sub.JoinedAt.IsZero() {
		sub.JoinedAt = now
	}
	if sub.LastSeen.IsZero() {
		sub.LastSeen = now
	}
	if sub.Source == "" {
		sub.Source = DefaultSource
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO subscribers(user_id, username, first_name, last_name, joined_at, last_seen, source)
			 VALUES(?,?,?,?,?,?,?)
			 ON CONFLICT(user_id) DO UPDATE SET
			   username=excluded.username, first_name=excluded.first_name,
			   last_name=excluded.last_name, joined_at=excluded.joined_at,
			   last_seen=excluded.last_seen, source=excluded.source`,
			sub.UserID, sub.Username, sub.FirstName, sub.LastName,
			sub.JoinedAt.Format(time.RFC3339Nano), sub.LastSeen.Format(time.RFC3339Nano), sub.Source,
		)
		if err != nil {
			return err
		}
		return incrementTx(ctx, tx, DateOf(now), CounterJoins)
	})
}

// RemoveSubscriber records a leave. A user that was never tracked is a
// normal outcome: found is false and no counter is bumped.
func (s *DB) RemoveSubscriber(ctx context.Context, userID int64) (prior PriorSubscriber, found bool, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT username, first_name, last_name FROM subscribers WHERE user_id = ?`, userID)
		if err := row.Scan(&prior.Username, &prior.FirstName, &prior.LastName); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		found = true
		if _, err := tx.ExecContext(ctx, `DELETE FROM subscribers WHERE user_id = ?`, userID); err != nil {
			return err
		}
		return incrementTx(ctx, tx, DateOf(time.Now()), CounterLeaves)
	})
	if err != nil {
		return PriorSubscriber{}, false, err
	}
	return prior, found, nil
}

// AppendMention inserts one immutable mention record and bumps the day's
// counter for its kind. Text beyond the configured cap is truncated here,
// at write time, with a trailing marker.
func (s *DB) AppendMention(ctx context.Context, m Mention) error {
	if m.At.IsZero() {
		m.At = time.Now()
	}
	field, err := counterForKind(m.Kind)
	if err != nil {
		return err
	}
	text := truncateRunes(m.Text, int(s.textLimit.Load()))

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO mentions(user_id, username, message_id, chat_id, text, kind, at)
			 VALUES(?,?,?,?,?,?,?)`,
			m.UserID, m.Username, m.MessageID, m.ChatID, text, string(m.Kind),
			m.At.Format(time.RFC3339Nano),
		)
		if err != nil {
			return err
		}
		return incrementTx(ctx, tx, DateOf(m.At), field)
	})
}

// Increment bumps one counter for one date. The upsert is a single
// statement so two concurrent increments for the same date can never lose
// an update.
func (s *DB) Increment(ctx context.Context, date string, field CounterField) error {
	col, err := field.column()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, incrementSQL(col), date)
	return err
}

func incrementTx(ctx context.Context, tx *sql.Tx, date string, field CounterField) error {
	col, err := field.column()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, incrementSQL(col), date)
	return err
}

func incrementSQL(col string) string {
	return `INSERT INTO daily_stats(date, ` + col + `) VALUES(?, 1)
	 ON CONFLICT(date) DO UPDATE SET ` + col + ` = ` + col + ` + 1`
}

// SubscriberCount reports the number of live subscriber rows.
func (s *DB) SubscriberCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscribers`).Scan(&n)
	return n, err
}

// RecentSubscribers returns up to limit subscribers, most recent join first.
func (s *DB) RecentSubscribers(ctx context.Context, limit int) ([]Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, username, first_name, last_name, joined_at, last_seen, source
		 FROM subscribers ORDER BY joined_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscriber
	for rows.Next() {
		var sub Subscriber
		var joined, seen string
		if err := rows.Scan(&sub.UserID, &sub.Username, &sub.FirstName, &sub.LastName, &joined, &seen, &sub.Source); err != nil {
			return nil, err
		}
		sub.JoinedAt = parseTime(joined)
		sub.LastSeen = parseTime(seen)
		out = append(out, sub)
	}
	return out, rows.Err()
}

// RecentMentions returns up to limit mention records, most recent first.
func (s *DB) RecentMentions(ctx context.Context, limit int) ([]Mention, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, username, message_id, chat_id, text, kind, at
		 FROM mentions ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Mention
	for rows.Next() {
		var m Mention
		var kind, at string
		if err := rows.Scan(&m.UserID, &m.Username, &m.MessageID, &m.ChatID, &m.Text, &kind, &at); err != nil {
			return nil, err
		}
		m.Kind = MentionKind(kind)
		m.At = parseTime(at)
		out = append(out, m)
	}
	return out, rows.Err()
}

// StatsFor reads the counter row for a date, or a zero row if absent.
func (s *DB) StatsFor(ctx context.Context, date string) (DailyStats, error) {
	st := DailyStats{Date: date}
	err := s.db.QueryRowContext(ctx,
		`SELECT joins, leaves, mentions, forwards, replies FROM daily_stats WHERE date = ?`, date).
		Scan(&st.Joins, &st.Leaves, &st.Mentions, &st.Forwards, &st.Replies)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return DailyStats{Date: date}, err
	}
	return st, nil
}

// TodayStats reads today's counter row.
func (s *DB) TodayStats(ctx context.Context) (DailyStats, error) {
	return s.StatsFor(ctx, DateOf(time.Now()))
}

func (s *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func counterForKind(k MentionKind) (CounterField, error) {
	switch k {
	case KindMention:
		return CounterMentions, nil
	case KindForward:
		return CounterForwards, nil
	case KindReply:
		return CounterReplies, nil
	default:
		return "", fmt.Errorf("unknown mention kind %q", string(k))
	}
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
