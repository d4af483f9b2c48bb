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

// FinishGame moves the room to finished (subject to the same revision check
// as UpdateRoom) and stores the game summary in one transaction. A room has
// at most one summary.
func (s *Store) FinishGame(ctx context.Context, next knowsy.Room, rec knowsy.GameRecord) (knowsy.Room, error) {
	standings, err := json.Marshal(rec.Standings)
	if err != nil {
		return knowsy.Room{}, fmt.Errorf("encoding standings: %w", err)
	}
	rec.ID = newID()
	rec.RoomID = next.ID
	rec.FinishedAt = s.now()

	var updated knowsy.Room
	err = s.inTx(ctx, func(tx *sql.Tx, emit func(feed.Event)) error {
		var err error
		updated, err = updateRoom(ctx, tx, next)
		if err != nil {
			return err
		}
		emit(feed.Event{RoomID: next.ID, Table: feed.TableRooms, Op: feed.OpUpdate, RowID: next.ID})

		res, err := tx.ExecContext(ctx, `
			INSERT INTO game_history (id, room_id, winner_id, winner_name, winner_score, total_rounds, standings, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (room_id) DO NOTHING
		`, rec.ID, rec.RoomID, nullString(rec.WinnerID), nullString(rec.WinnerName), rec.WinnerScore,
			rec.TotalRounds, string(standings), formatTime(rec.FinishedAt))
		if err != nil {
			return fmt.Errorf("inserting game history: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			emit(feed.Event{RoomID: next.ID, Table: feed.TableHistory, Op: feed.OpInsert, RowID: rec.ID})
		}
		return nil
	})
	return updated, err
}

func (s *Store) History(ctx context.Context, roomID string) (knowsy.GameRecord, error) {
	var (
		rec                  knowsy.GameRecord
		winnerID, winnerName sql.NullString
		standings, finished  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, room_id, winner_id, winner_name, winner_score, total_rounds, standings, finished_at
		FROM game_history WHERE room_id = ?
	`, roomID).Scan(&rec.ID, &rec.RoomID, &winnerID, &winnerName, &rec.WinnerScore, &rec.TotalRounds, &standings, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	rec.WinnerID = winnerID.String
	rec.WinnerName = winnerName.String
	rec.FinishedAt = parseTime(finished)
	if err := json.Unmarshal([]byte(standings), &rec.Standings); err != nil {
		return rec, fmt.Errorf("decoding standings: %w", err)
	}
	return rec, nil
}
