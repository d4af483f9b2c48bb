// Package store persists rooms, players, round submissions and the topic
// catalog in SQLite (libSQL). Every committed row change is announced on a
// feed.Publisher so that connected clients can refresh their view.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/knowsy/internal/feed"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrStaleRevision means another writer transitioned the room first.
	ErrStaleRevision = errors.New("room revision is stale")

	// ErrTurnClosed means the room is no longer guessing the turn a guess
	// was made for.
	ErrTurnClosed = errors.New("turn is closed for guesses")
)

// Timestamps are stored as fixed-width UTC strings so that they sort
// lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db     *sql.DB
	feed   feed.Publisher
	logger *slog.Logger
	now    func() time.Time
}

func New(db *sql.DB, pub feed.Publisher, logger *slog.Logger) *Store {
	if pub == nil {
		pub = feed.Discard{}
	}
	return &Store{db: db, feed: pub, logger: logger, now: time.Now}
}

// SetClock replaces the time source. Tests only.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func newID() string { return uuid.NewString() }

func formatTime(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTime(v string) time.Time {
	t, err := time.Parse(tsLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t := parseTime(v.String)
	return &t
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// inTx runs fn in a transaction and, once committed, publishes the events fn
// collected. Nothing is published for a rolled back transaction.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx, emit func(feed.Event)) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var events []feed.Event
	emit := func(ev feed.Event) { events = append(events, ev) }

	if err := fn(tx, emit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	s.publish(ctx, events...)
	return nil
}

func (s *Store) publish(ctx context.Context, events ...feed.Event) {
	for _, ev := range events {
		if err := s.feed.Publish(ctx, ev); err != nil {
			s.logger.Warn("publishing change event", "room", ev.RoomID, "table", ev.Table, "op", ev.Op, "error", err)
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
