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

const roomColumns = `id, code, COALESCE(org_id, ''), phase, current_round, COALESCE(current_vip_id, ''),
	total_rounds, vips_completed, revision, phase_started_at, created_at`

func scanRoom(row interface{ Scan(...any) error }) (knowsy.Room, error) {
	var (
		r                   knowsy.Room
		phase               string
		phaseStart, created string
	)
	err := row.Scan(&r.ID, &r.Code, &r.OrgID, &phase, &r.CurrentRound, &r.CurrentVIPID,
		&r.TotalRounds, &r.VIPsCompleted, &r.Revision, &phaseStart, &created)
	if err != nil {
		return r, err
	}
	r.Phase = knowsy.Phase(phase)
	if !r.Phase.Valid() {
		return r, fmt.Errorf("room %s has unknown phase %q", r.ID, phase)
	}
	r.PhaseStartedAt = parseTime(phaseStart)
	r.CreatedAt = parseTime(created)
	return r, nil
}

// CreateRoom stores a new room in the waiting phase together with its host.
func (s *Store) CreateRoom(ctx context.Context, code, orgID string, totalRounds int, host knowsy.Player, sessionHash string) (knowsy.Room, knowsy.Player, error) {
	now := s.now()
	room := knowsy.Room{
		ID:             newID(),
		Code:           code,
		OrgID:          orgID,
		Phase:          knowsy.PhaseWaiting,
		CurrentRound:   1,
		TotalRounds:    totalRounds,
		Revision:       1,
		PhaseStartedAt: now,
		CreatedAt:      now,
	}
	host.RoomID = room.ID
	host.IsHost = true

	err := s.inTx(ctx, func(tx *sql.Tx, emit func(feed.Event)) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rooms (id, code, org_id, phase, current_round, total_rounds, revision, phase_started_at, created_at)
			VALUES (?, ?, ?, ?, 1, ?, 1, ?, ?)
		`, room.ID, room.Code, nullString(orgID), string(room.Phase), totalRounds, formatTime(now), formatTime(now))
		if err != nil {
			return fmt.Errorf("inserting room: %w", err)
		}
		emit(feed.Event{RoomID: room.ID, Table: feed.TableRooms, Op: feed.OpInsert, RowID: room.ID})

		host, err = insertPlayer(ctx, tx, host, sessionHash, now)
		if err != nil {
			return err
		}
		emit(feed.Event{RoomID: room.ID, Table: feed.TablePlayers, Op: feed.OpInsert, RowID: host.ID})
		return nil
	})
	if err != nil {
		return knowsy.Room{}, knowsy.Player{}, err
	}
	return room, host, nil
}

func (s *Store) Room(ctx context.Context, id string) (knowsy.Room, error) {
	return getRoom(ctx, s.db, `WHERE id = ?`, id)
}

func (s *Store) RoomByCode(ctx context.Context, code string) (knowsy.Room, error) {
	return getRoom(ctx, s.db, `WHERE code = ?`, code)
}

func getRoom(ctx context.Context, q querier, where string, args ...any) (knowsy.Room, error) {
	r, err := scanRoom(q.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

// UpdateRoom writes the phase fields of next if, and only if, the stored
// revision still equals next.Revision. The returned room carries the new
// revision. A lost race yields ErrStaleRevision and leaves the row untouched.
func (s *Store) UpdateRoom(ctx context.Context, next knowsy.Room) (knowsy.Room, error) {
	var updated knowsy.Room
	err := s.inTx(ctx, func(tx *sql.Tx, emit func(feed.Event)) error {
		var err error
		updated, err = updateRoom(ctx, tx, next)
		if err != nil {
			return err
		}
		emit(feed.Event{RoomID: next.ID, Table: feed.TableRooms, Op: feed.OpUpdate, RowID: next.ID})
		return nil
	})
	return updated, err
}

func updateRoom(ctx context.Context, tx *sql.Tx, next knowsy.Room) (knowsy.Room, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE rooms
		SET phase = ?, current_round = ?, current_vip_id = ?, vips_completed = ?,
			phase_started_at = ?, revision = revision + 1
		WHERE id = ? AND revision = ?
	`, string(next.Phase), next.CurrentRound, nullString(next.CurrentVIPID), next.VIPsCompleted,
		formatTime(next.PhaseStartedAt), next.ID, next.Revision)
	if err != nil {
		return knowsy.Room{}, fmt.Errorf("updating room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return knowsy.Room{}, fmt.Errorf("updating room: %w", err)
	}
	if n == 0 {
		if _, err := getRoom(ctx, tx, `WHERE id = ?`, next.ID); err != nil {
			return knowsy.Room{}, err
		}
		return knowsy.Room{}, ErrStaleRevision
	}
	next.Revision++
	return next, nil
}

// RoomsInPhaseSince lists rooms that entered phase before the given time.
func (s *Store) RoomsInPhaseSince(ctx context.Context, phase knowsy.Phase, before time.Time) ([]knowsy.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+roomColumns+` FROM rooms
		WHERE phase = ? AND phase_started_at < ?
		ORDER BY phase_started_at
	`, string(phase), formatTime(before))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []knowsy.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}
