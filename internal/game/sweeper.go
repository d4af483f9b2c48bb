package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playperu/knowsy/internal/agent"
	"github.com/playperu/knowsy/internal/knowsy"
	"github.com/playperu/knowsy/internal/store"
)

const botTimeout = 30 * time.Second

// Run sweeps expired deadlines every interval until ctx is done.
func (c *Controller) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Sweep(ctx); err != nil {
				c.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// Sweep enforces deadlines. Topic selection that runs past its timeout is
// completed with random selections for the players who have none, guessing
// past its timeout moves to scoring with the guesses already in, and players
// whose event stream has been gone longer than the grace period are removed.
func (c *Controller) Sweep(ctx context.Context) error {
	now := c.now()
	var errs []error

	if c.cfg.SelectionTimeout > 0 {
		rooms, err := c.store.RoomsInPhaseSince(ctx, knowsy.PhaseTopicSelection, now.Add(-c.cfg.SelectionTimeout))
		if err != nil {
			errs = append(errs, fmt.Errorf("listing rooms in topic selection: %w", err))
		}
		for _, room := range rooms {
			errs = append(errs, c.expireSelection(ctx, room))
		}
	}

	if c.cfg.GuessTimeout > 0 {
		rooms, err := c.store.RoomsInPhaseSince(ctx, knowsy.PhaseGuessing, now.Add(-c.cfg.GuessTimeout))
		if err != nil {
			errs = append(errs, fmt.Errorf("listing rooms in guessing: %w", err))
		}
		for _, room := range rooms {
			c.logger.Info("guessing deadline passed", "room", room.ID, "round", room.CurrentRound, "vip", room.CurrentVIPID)
			if _, err := c.toScoring(ctx, room); err != nil && !errors.Is(err, ErrConflict) {
				errs = append(errs, err)
			}
		}
	}

	if c.cfg.DisconnectGrace > 0 {
		gone, err := c.store.DisconnectedBefore(ctx, now.Add(-c.cfg.DisconnectGrace))
		if err != nil {
			errs = append(errs, fmt.Errorf("listing disconnected players: %w", err))
		}
		for _, p := range gone {
			errs = append(errs, c.removePlayer(ctx, p, "disconnected"))
		}
	}

	return errors.Join(errs...)
}

func (c *Controller) expireSelection(ctx context.Context, room knowsy.Room) error {
	players, err := c.store.Players(ctx, room.ID)
	if err != nil {
		return fmt.Errorf("loading players: %w", err)
	}
	sels, err := c.store.Selections(ctx, room.ID, room.CurrentRound)
	if err != nil {
		return fmt.Errorf("loading selections: %w", err)
	}
	has := make(map[string]bool, len(sels))
	for _, s := range sels {
		has[s.PlayerID] = true
	}

	c.logger.Info("selection deadline passed", "room", room.ID, "round", room.CurrentRound,
		"missing", len(players)-len(sels))
	for _, p := range players {
		if has[p.ID] {
			continue
		}
		_, err := c.bots.SelectTopic(ctx, agent.SelectRequest{PlayerID: p.ID, RoomID: room.ID, Round: room.CurrentRound})
		if err != nil {
			return fmt.Errorf("filling selection for %s: %w", p.ID, err)
		}
	}
	return c.advance(ctx, room.ID)
}

// botSelections lets every bot pick its topic for the room's current round.
func (c *Controller) botSelections(room knowsy.Room, players []knowsy.Player) {
	for _, p := range players {
		if !p.IsAI {
			continue
		}
		req := agent.SelectRequest{PlayerID: p.ID, RoomID: room.ID, Round: room.CurrentRound}
		c.spawn(room.ID, "select", func(ctx context.Context) error {
			if _, err := c.bots.SelectTopic(ctx, req); err != nil {
				return err
			}
			return c.advance(ctx, room.ID)
		})
	}
}

// botGuesses lets every bot other than the VIP guess the current turn.
func (c *Controller) botGuesses(room knowsy.Room, players []knowsy.Player) {
	for _, p := range players {
		if !p.IsAI || p.ID == room.CurrentVIPID {
			continue
		}
		req := agent.GuessRequest{
			PlayerID:    p.ID,
			RoomID:      room.ID,
			Round:       room.CurrentRound,
			VIPPlayerID: room.CurrentVIPID,
		}
		c.spawn(room.ID, "guess", func(ctx context.Context) error {
			_, err := c.bots.Guess(ctx, req)
			if errors.Is(err, store.ErrTurnClosed) {
				return nil
			}
			if err != nil {
				return err
			}
			return c.advance(ctx, room.ID)
		})
	}
}

func (c *Controller) spawn(roomID, task string, fn func(ctx context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), botTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			c.logger.Error("bot turn failed", "room", roomID, "task", task, "error", err)
		}
	}()
}
