package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/playperu/knowsy/internal/feed"
	"github.com/playperu/knowsy/internal/knowsy"
)

const selectionColumns = `id, room_id, round, player_id, topic_id, items, created_at`

func scanSelection(row interface{ Scan(...any) error }) (knowsy.Selection, error) {
	var (
		sel            knowsy.Selection
		items, created string
	)
	if err := row.Scan(&sel.ID, &sel.RoomID, &sel.Round, &sel.PlayerID, &sel.TopicID, &items, &created); err != nil {
		return sel, err
	}
	if err := json.Unmarshal([]byte(items), &sel.Items); err != nil {
		return sel, fmt.Errorf("decoding selection %s: %w", sel.ID, err)
	}
	sel.CreatedAt = parseTime(created)
	return sel, nil
}

// InsertSelection stores a VIP's ranking for a round. At most one selection
// exists per (room, round, player): if one is already stored it is returned
// unchanged with created == false.
func (s *Store) InsertSelection(ctx context.Context, sel knowsy.Selection) (knowsy.Selection, bool, error) {
	items, err := json.Marshal(sel.Items)
	if err != nil {
		return knowsy.Selection{}, false, fmt.Errorf("encoding items: %w", err)
	}
	sel.ID = newID()
	sel.CreatedAt = s.now()

	var (
		stored  knowsy.Selection
		created bool
	)
	err = s.inTx(ctx, func(tx *sql.Tx, emit func(feed.Event)) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO selections (id, room_id, round, player_id, topic_id, items, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (room_id, round, player_id) DO NOTHING
		`, sel.ID, sel.RoomID, sel.Round, sel.PlayerID, sel.TopicID, string(items), formatTime(sel.CreatedAt))
		if err != nil {
			return fmt.Errorf("inserting selection: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			stored, err = scanSelection(tx.QueryRowContext(ctx, `
				SELECT `+selectionColumns+` FROM selections
				WHERE room_id = ? AND round = ? AND player_id = ?
			`, sel.RoomID, sel.Round, sel.PlayerID))
			return err
		}
		stored, created = sel, true
		emit(feed.Event{RoomID: sel.RoomID, Table: feed.TableSelections, Op: feed.OpInsert, RowID: sel.ID})
		return nil
	})
	if err != nil {
		return knowsy.Selection{}, false, err
	}
	return stored, created, nil
}

func (s *Store) Selection(ctx context.Context, roomID string, round int, playerID string) (knowsy.Selection, error) {
	sel, err := scanSelection(s.db.QueryRowContext(ctx, `
		SELECT `+selectionColumns+` FROM selections
		WHERE room_id = ? AND round = ? AND player_id = ?
	`, roomID, round, playerID))
	if errors.Is(err, sql.ErrNoRows) {
		return sel, ErrNotFound
	}
	return sel, err
}

// Selections returns every selection of a round in submission order.
func (s *Store) Selections(ctx context.Context, roomID string, round int) ([]knowsy.Selection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectionColumns+` FROM selections
		WHERE room_id = ? AND round = ?
		ORDER BY created_at, rowid
	`, roomID, round)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []knowsy.Selection
	for rows.Next() {
		sel, err := scanSelection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, rows.Err()
}

const guessColumns = `id, room_id, round, player_id, vip_player_id, guessed, score, created_at`

func scanGuess(row interface{ Scan(...any) error }) (knowsy.Guess, error) {
	var (
		g                knowsy.Guess
		guessed, created string
	)
	if err := row.Scan(&g.ID, &g.RoomID, &g.Round, &g.PlayerID, &g.VIPPlayerID, &guessed, &g.Score, &created); err != nil {
		return g, err
	}
	if err := json.Unmarshal([]byte(guessed), &g.Order); err != nil {
		return g, fmt.Errorf("decoding guess %s: %w", g.ID, err)
	}
	g.CreatedAt = parseTime(created)
	return g, nil
}

// RecordGuess stores a guess and credits its score to the guesser in one
// transaction. A second guess for the same (room, round, guesser, VIP) is
// ignored: the stored guess is returned with created == false and no points
// are added.
//
// The insert only happens while the room is guessing that round and VIP,
// checked in the same statement, so a guess racing the move to scoring
// either lands before it or fails with ErrTurnClosed.
func (s *Store) RecordGuess(ctx context.Context, g knowsy.Guess) (knowsy.Guess, bool, error) {
	guessed, err := json.Marshal(g.Order)
	if err != nil {
		return knowsy.Guess{}, false, fmt.Errorf("encoding guess: %w", err)
	}
	g.ID = newID()
	g.CreatedAt = s.now()

	var (
		stored  knowsy.Guess
		created bool
	)
	err = s.inTx(ctx, func(tx *sql.Tx, emit func(feed.Event)) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO guesses (id, room_id, round, player_id, vip_player_id, guessed, score, created_at)
			SELECT ?, ?, ?, ?, ?, ?, ?, ?
			WHERE EXISTS (
				SELECT 1 FROM rooms
				WHERE id = ? AND phase = ? AND current_round = ? AND current_vip_id = ?
			)
			ON CONFLICT (room_id, round, player_id, vip_player_id) DO NOTHING
		`, g.ID, g.RoomID, g.Round, g.PlayerID, g.VIPPlayerID, string(guessed), g.Score, formatTime(g.CreatedAt),
			g.RoomID, string(knowsy.PhaseGuessing), g.Round, g.VIPPlayerID)
		if err != nil {
			return fmt.Errorf("inserting guess: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			stored, err = scanGuess(tx.QueryRowContext(ctx, `
				SELECT `+guessColumns+` FROM guesses
				WHERE room_id = ? AND round = ? AND player_id = ? AND vip_player_id = ?
			`, g.RoomID, g.Round, g.PlayerID, g.VIPPlayerID))
			if errors.Is(err, sql.ErrNoRows) {
				return ErrTurnClosed
			}
			return err
		}
		emit(feed.Event{RoomID: g.RoomID, Table: feed.TableGuesses, Op: feed.OpInsert, RowID: g.ID})

		if pts := knowsy.Credited(g.Score); pts > 0 {
			if _, err := tx.ExecContext(ctx, `UPDATE players SET score = score + ? WHERE id = ?`, pts, g.PlayerID); err != nil {
				return fmt.Errorf("crediting score: %w", err)
			}
			emit(feed.Event{RoomID: g.RoomID, Table: feed.TablePlayers, Op: feed.OpUpdate, RowID: g.PlayerID})
		}
		stored, created = g, true
		return nil
	})
	if err != nil {
		return knowsy.Guess{}, false, err
	}
	return stored, created, nil
}

// Guesses returns the guesses made against one VIP in a round.
func (s *Store) Guesses(ctx context.Context, roomID string, round int, vipID string) ([]knowsy.Guess, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+guessColumns+` FROM guesses
		WHERE room_id = ? AND round = ? AND vip_player_id = ?
		ORDER BY created_at, rowid
	`, roomID, round, vipID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []knowsy.Guess
	for rows.Next() {
		g, err := scanGuess(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// RoundVIPs returns the distinct VIPs that received at least one guess in a
// round, in the order they were first guessed.
func (s *Store) RoundVIPs(ctx context.Context, roomID string, round int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT vip_player_id FROM guesses
		WHERE room_id = ? AND round = ?
		GROUP BY vip_player_id
		ORDER BY MIN(created_at)
	`, roomID, round)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vips []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		vips = append(vips, id)
	}
	return vips, rows.Err()
}
