package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/playperu/knowsy/internal/feed"
	"github.com/playperu/knowsy/internal/knowsy"
)

const playerColumns = `id, room_id, COALESCE(user_id, ''), name, score, is_host, is_ai, joined_at, left_at, last_seen_at`

// Roster order: join time, then insertion order for players who joined in
// the same instant.
const rosterOrder = `ORDER BY joined_at, rowid`

func scanPlayer(row interface{ Scan(...any) error }) (knowsy.Player, error) {
	var (
		p            knowsy.Player
		joined, seen string
		left         sql.NullString
	)
	err := row.Scan(&p.ID, &p.RoomID, &p.UserID, &p.Name, &p.Score, &p.IsHost, &p.IsAI, &joined, &left, &seen)
	if err != nil {
		return p, err
	}
	p.JoinedAt = parseTime(joined)
	p.LeftAt = parseNullTime(left)
	p.LastSeenAt = parseTime(seen)
	return p, nil
}

func insertPlayer(ctx context.Context, q querier, p knowsy.Player, sessionHash string, now time.Time) (knowsy.Player, error) {
	p.ID = newID()
	p.JoinedAt = now
	p.LastSeenAt = now
	_, err := q.ExecContext(ctx, `
		INSERT INTO players (id, room_id, user_id, name, score, is_host, is_ai, session_hash, joined_at, last_seen_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, ?)
	`, p.ID, p.RoomID, nullString(p.UserID), p.Name, boolInt(p.IsHost), boolInt(p.IsAI), nullString(sessionHash),
		formatTime(now), formatTime(now))
	if err != nil {
		return knowsy.Player{}, fmt.Errorf("inserting player: %w", err)
	}
	return p, nil
}

// AddPlayer adds a non-host player to a room. AI players have no session.
func (s *Store) AddPlayer(ctx context.Context, p knowsy.Player, sessionHash string) (knowsy.Player, error) {
	p.IsHost = false
	var added knowsy.Player
	err := s.inTx(ctx, func(tx *sql.Tx, emit func(feed.Event)) error {
		var err error
		added, err = insertPlayer(ctx, tx, p, sessionHash, s.now())
		if err != nil {
			return err
		}
		emit(feed.Event{RoomID: p.RoomID, Table: feed.TablePlayers, Op: feed.OpInsert, RowID: added.ID})
		return nil
	})
	return added, err
}

// Players returns the current roster of a room in roster order.
func (s *Store) Players(ctx context.Context, roomID string) ([]knowsy.Player, error) {
	return listPlayers(ctx, s.db, roomID)
}

func listPlayers(ctx context.Context, q querier, roomID string) ([]knowsy.Player, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+playerColumns+` FROM players WHERE room_id = ? `+rosterOrder, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []knowsy.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (s *Store) Player(ctx context.Context, id string) (knowsy.Player, error) {
	p, err := scanPlayer(s.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

func (s *Store) PlayerBySession(ctx context.Context, sessionHash string) (knowsy.Player, error) {
	p, err := scanPlayer(s.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE session_hash = ?`, sessionHash))
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// PlayerByUser finds the player an external user identity already holds in a room.
func (s *Store) PlayerByUser(ctx context.Context, roomID, userID string) (knowsy.Player, error) {
	p, err := scanPlayer(s.db.QueryRowContext(ctx, `
		SELECT `+playerColumns+` FROM players WHERE room_id = ? AND user_id = ?
	`, roomID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// SetSession replaces the player's session hash, invalidating older tokens.
func (s *Store) SetSession(ctx context.Context, playerID, sessionHash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE players SET session_hash = ?, left_at = NULL, last_seen_at = ? WHERE id = ?
	`, sessionHash, formatTime(s.now()), playerID)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemovePlayer hard-deletes a player. If the player held the host flag, the
// first remaining human (or, failing that, the first bot) in roster order is
// promoted in the same transaction. It returns the promoted player's ID, if any.
func (s *Store) RemovePlayer(ctx context.Context, roomID, playerID string) (string, error) {
	var promoted string
	err := s.inTx(ctx, func(tx *sql.Tx, emit func(feed.Event)) error {
		var wasHost bool
		err := tx.QueryRowContext(ctx, `
			SELECT is_host FROM players WHERE id = ? AND room_id = ?
		`, playerID, roomID).Scan(&wasHost)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM players WHERE id = ?`, playerID); err != nil {
			return fmt.Errorf("deleting player: %w", err)
		}
		emit(feed.Event{RoomID: roomID, Table: feed.TablePlayers, Op: feed.OpDelete, RowID: playerID})

		if !wasHost {
			return nil
		}
		promoted, err = promoteHost(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if promoted != "" {
			emit(feed.Event{RoomID: roomID, Table: feed.TablePlayers, Op: feed.OpUpdate, RowID: promoted})
		}
		return nil
	})
	return promoted, err
}

func promoteHost(ctx context.Context, tx *sql.Tx, roomID string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM players WHERE room_id = ? ORDER BY is_ai, joined_at, rowid LIMIT 1
	`, roomID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE players SET is_host = 1 WHERE id = ?`, id); err != nil {
		return "", fmt.Errorf("promoting host: %w", err)
	}
	return id, nil
}

// EnsureHost repairs the host flag so that a non-empty room has exactly one
// host. It returns the ID of a newly promoted player, or "" if nothing changed.
func (s *Store) EnsureHost(ctx context.Context, roomID string) (string, error) {
	var promoted string
	err := s.inTx(ctx, func(tx *sql.Tx, emit func(feed.Event)) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id FROM players WHERE room_id = ? AND is_host = 1 `+rosterOrder, roomID)
		if err != nil {
			return err
		}
		var hosts []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			hosts = append(hosts, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		switch {
		case len(hosts) == 0:
			promoted, err = promoteHost(ctx, tx, roomID)
			if err != nil {
				return err
			}
			if promoted != "" {
				emit(feed.Event{RoomID: roomID, Table: feed.TablePlayers, Op: feed.OpUpdate, RowID: promoted})
			}
		case len(hosts) > 1:
			for _, id := range hosts[1:] {
				if _, err := tx.ExecContext(ctx, `UPDATE players SET is_host = 0 WHERE id = ?`, id); err != nil {
					return fmt.Errorf("demoting extra host: %w", err)
				}
				emit(feed.Event{RoomID: roomID, Table: feed.TablePlayers, Op: feed.OpUpdate, RowID: id})
			}
		}
		return nil
	})
	return promoted, err
}

// Touch records player activity. It is deliberately not announced on the feed.
func (s *Store) Touch(ctx context.Context, playerID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE players SET last_seen_at = ? WHERE id = ?`, formatTime(s.now()), playerID)
	return err
}

// SetConnected clears left_at on reconnect and stamps it on disconnect.
func (s *Store) SetConnected(ctx context.Context, p knowsy.Player, connected bool) error {
	left := sql.NullString{}
	if !connected {
		left = sql.NullString{String: formatTime(s.now()), Valid: true}
	}
	return s.inTx(ctx, func(tx *sql.Tx, emit func(feed.Event)) error {
		res, err := tx.ExecContext(ctx, `UPDATE players SET left_at = ?, last_seen_at = ? WHERE id = ?`,
			left, formatTime(s.now()), p.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		emit(feed.Event{RoomID: p.RoomID, Table: feed.TablePlayers, Op: feed.OpUpdate, RowID: p.ID})
		return nil
	})
}

// DisconnectedBefore lists human players whose event stream has been gone
// since before the given time and who have not been seen since. A stream
// held open on another instance keeps last_seen_at fresh through its
// heartbeat, which keeps the player off this list.
func (s *Store) DisconnectedBefore(ctx context.Context, before time.Time) ([]knowsy.Player, error) {
	cutoff := formatTime(before)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+playerColumns+` FROM players
		WHERE is_ai = 0 AND left_at IS NOT NULL AND left_at < ? AND last_seen_at < ?
		ORDER BY left_at
	`, cutoff, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []knowsy.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}
