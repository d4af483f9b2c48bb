package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/playperu/knowsy/internal/agent"
	"github.com/playperu/knowsy/internal/knowsy"
	"github.com/playperu/knowsy/internal/store"
)

type GuessResult struct {
	Guess   knowsy.Guess
	Created bool
	// Skipped is set when a player tries to guess their own VIP turn.
	Skipped bool
}

// SubmitSelection stores the actor's ranked list for the current round.
// Catalog and org items must belong to the chosen topic; inline items are
// free text. Submitting again returns the stored selection unchanged.
func (c *Controller) SubmitSelection(ctx context.Context, actorID, topicID string, items []knowsy.ItemRef) (knowsy.Selection, error) {
	actor, err := c.store.Player(ctx, actorID)
	if err != nil {
		return knowsy.Selection{}, err
	}
	room, err := c.store.Room(ctx, actor.RoomID)
	if err != nil {
		return knowsy.Selection{}, err
	}
	if room.Phase != knowsy.PhaseTopicSelection {
		return knowsy.Selection{}, ErrWrongPhase
	}

	if err := knowsy.ValidateRanking(items); err != nil {
		return knowsy.Selection{}, fmt.Errorf("%w: %w", ErrInvalidSelection, err)
	}
	topic, err := c.store.Topic(ctx, topicID, room.OrgID)
	if errors.Is(err, store.ErrNotFound) {
		return knowsy.Selection{}, fmt.Errorf("%w: unknown topic %q", ErrInvalidSelection, topicID)
	}
	if err != nil {
		return knowsy.Selection{}, fmt.Errorf("loading topic: %w", err)
	}
	inTopic := make(map[string]bool, len(topic.Items))
	for _, r := range topic.Refs() {
		inTopic[r.Key()] = true
	}
	for _, r := range items {
		if r.Kind != knowsy.ItemInline && !inTopic[r.Key()] {
			return knowsy.Selection{}, fmt.Errorf("%w: item %q is not in topic %q", ErrInvalidSelection, r.ID, topic.ID)
		}
	}

	sel, created, err := c.store.InsertSelection(ctx, knowsy.Selection{
		RoomID:   room.ID,
		Round:    room.CurrentRound,
		PlayerID: actor.ID,
		TopicID:  topic.ID,
		Items:    items,
	})
	if err != nil {
		return knowsy.Selection{}, fmt.Errorf("storing selection: %w", err)
	}
	if created {
		c.logger.Info("selection stored", "room", room.ID, "round", room.CurrentRound, "player", actor.ID, "topic", topic.ID)
	}

	if err := c.advance(ctx, room.ID); err != nil {
		c.logger.Error("advancing after selection", "room", room.ID, "error", err)
	}
	return sel, nil
}

// SubmitGuess scores the actor's guess of the current VIP's ranking and
// credits it. A guess at one's own turn is ignored.
func (c *Controller) SubmitGuess(ctx context.Context, actorID, vipID string, order []knowsy.ItemRef) (GuessResult, error) {
	if actorID == vipID {
		return GuessResult{Skipped: true}, nil
	}
	actor, err := c.store.Player(ctx, actorID)
	if err != nil {
		return GuessResult{}, err
	}
	room, err := c.store.Room(ctx, actor.RoomID)
	if err != nil {
		return GuessResult{}, err
	}
	if room.Phase != knowsy.PhaseGuessing || room.CurrentVIPID != vipID {
		return GuessResult{}, ErrWrongPhase
	}

	sel, err := c.store.Selection(ctx, room.ID, room.CurrentRound, vipID)
	if err != nil {
		return GuessResult{}, fmt.Errorf("loading VIP selection: %w", err)
	}
	if err := knowsy.ValidateGuess(sel.Items, order); err != nil {
		return GuessResult{}, fmt.Errorf("%w: %w", ErrInvalidGuess, err)
	}

	g, created, err := c.store.RecordGuess(ctx, knowsy.Guess{
		RoomID:      room.ID,
		Round:       room.CurrentRound,
		PlayerID:    actor.ID,
		VIPPlayerID: vipID,
		Order:       order,
		Score:       knowsy.Score(sel.Items, order),
	})
	if errors.Is(err, store.ErrTurnClosed) {
		return GuessResult{}, ErrWrongPhase
	}
	if err != nil {
		return GuessResult{}, fmt.Errorf("storing guess: %w", err)
	}
	if created {
		c.logger.Info("guess stored", "room", room.ID, "round", room.CurrentRound,
			"player", actor.ID, "vip", vipID, "score", g.Score)
	}

	if err := c.advance(ctx, room.ID); err != nil {
		c.logger.Error("advancing after guess", "room", room.ID, "error", err)
	}
	return GuessResult{Guess: g, Created: created}, nil
}

// AISelect runs a bot's topic selection on request. Repeating the request
// for a turn that already has a selection is a no-op.
func (c *Controller) AISelect(ctx context.Context, req agent.SelectRequest) (agent.Result, error) {
	room, err := c.botRoom(ctx, req.PlayerID, req.RoomID)
	if err != nil {
		return agent.Result{}, err
	}
	if room.Phase != knowsy.PhaseTopicSelection || room.CurrentRound != req.Round {
		if _, err := c.store.Selection(ctx, req.RoomID, req.Round, req.PlayerID); err != nil {
			return agent.Result{}, ErrWrongPhase
		}
	}

	res, err := c.bots.SelectTopic(ctx, req)
	if err != nil {
		return res, err
	}
	if res.Created {
		if err := c.advance(ctx, room.ID); err != nil {
			c.logger.Error("advancing after bot selection", "room", room.ID, "error", err)
		}
	}
	return res, nil
}

// AIGuess runs a bot's guess on request, with the same idempotency and
// self-exclusion as human guesses.
func (c *Controller) AIGuess(ctx context.Context, req agent.GuessRequest) (agent.Result, error) {
	if req.PlayerID == req.VIPPlayerID {
		return agent.Result{Skipped: true}, nil
	}
	room, err := c.botRoom(ctx, req.PlayerID, req.RoomID)
	if err != nil {
		return agent.Result{}, err
	}
	open := room.Phase == knowsy.PhaseGuessing &&
		room.CurrentRound == req.Round &&
		room.CurrentVIPID == req.VIPPlayerID
	if !open {
		done, err := c.hasGuessed(ctx, req)
		if err != nil {
			return agent.Result{}, err
		}
		if !done {
			return agent.Result{}, ErrWrongPhase
		}
	}

	res, err := c.bots.Guess(ctx, req)
	if errors.Is(err, store.ErrTurnClosed) {
		return agent.Result{}, ErrWrongPhase
	}
	if err != nil {
		return res, err
	}
	if res.Created {
		if err := c.advance(ctx, room.ID); err != nil {
			c.logger.Error("advancing after bot guess", "room", room.ID, "error", err)
		}
	}
	return res, nil
}

func (c *Controller) botRoom(ctx context.Context, playerID, roomID string) (knowsy.Room, error) {
	p, err := c.store.Player(ctx, playerID)
	if err != nil {
		return knowsy.Room{}, err
	}
	if !p.IsAI {
		return knowsy.Room{}, ErrNotAI
	}
	if p.RoomID != roomID {
		return knowsy.Room{}, store.ErrNotFound
	}
	return c.store.Room(ctx, roomID)
}

func (c *Controller) hasGuessed(ctx context.Context, req agent.GuessRequest) (bool, error) {
	guesses, err := c.store.Guesses(ctx, req.RoomID, req.Round, req.VIPPlayerID)
	if err != nil {
		return false, fmt.Errorf("loading guesses: %w", err)
	}
	for _, g := range guesses {
		if g.PlayerID == req.PlayerID {
			return true, nil
		}
	}
	return false, nil
}
