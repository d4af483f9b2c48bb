// Package game owns room progression. Every phase change is decided here,
// in one process, and written with a revision check so that concurrent
// triggers for the same room resolve to a single write.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playperu/knowsy/internal/agent"
	"github.com/playperu/knowsy/internal/knowsy"
	"github.com/playperu/knowsy/internal/store"
)

type Store interface {
	CreateRoom(ctx context.Context, code, orgID string, totalRounds int, host knowsy.Player, sessionHash string) (knowsy.Room, knowsy.Player, error)
	Room(ctx context.Context, id string) (knowsy.Room, error)
	RoomByCode(ctx context.Context, code string) (knowsy.Room, error)
	UpdateRoom(ctx context.Context, next knowsy.Room) (knowsy.Room, error)
	FinishGame(ctx context.Context, next knowsy.Room, rec knowsy.GameRecord) (knowsy.Room, error)
	RoomsInPhaseSince(ctx context.Context, phase knowsy.Phase, before time.Time) ([]knowsy.Room, error)

	AddPlayer(ctx context.Context, p knowsy.Player, sessionHash string) (knowsy.Player, error)
	Player(ctx context.Context, id string) (knowsy.Player, error)
	PlayerByUser(ctx context.Context, roomID, userID string) (knowsy.Player, error)
	Players(ctx context.Context, roomID string) ([]knowsy.Player, error)
	SetSession(ctx context.Context, playerID, sessionHash string) error
	RemovePlayer(ctx context.Context, roomID, playerID string) (string, error)
	DisconnectedBefore(ctx context.Context, before time.Time) ([]knowsy.Player, error)

	Topic(ctx context.Context, topicID, orgID string) (knowsy.Topic, error)
	InsertSelection(ctx context.Context, sel knowsy.Selection) (knowsy.Selection, bool, error)
	Selection(ctx context.Context, roomID string, round int, playerID string) (knowsy.Selection, error)
	Selections(ctx context.Context, roomID string, round int) ([]knowsy.Selection, error)
	RecordGuess(ctx context.Context, g knowsy.Guess) (knowsy.Guess, bool, error)
	Guesses(ctx context.Context, roomID string, round int, vipID string) ([]knowsy.Guess, error)
	RoundVIPs(ctx context.Context, roomID string, round int) ([]string, error)
}

// Bots takes turns on behalf of players: always for bots, and for humans
// who miss a deadline.
type Bots interface {
	SelectTopic(ctx context.Context, req agent.SelectRequest) (agent.Result, error)
	Guess(ctx context.Context, req agent.GuessRequest) (agent.Result, error)
}

type Config struct {
	MaxPlayers       int
	Cooldown         time.Duration
	SelectionTimeout time.Duration
	GuessTimeout     time.Duration
	DisconnectGrace  time.Duration
}

type Controller struct {
	store  Store
	bots   Bots
	guard  *Guard
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	wg sync.WaitGroup
}

const defaultMaxPlayers = 12

func New(cfg Config, s Store, bots Bots, logger *slog.Logger) *Controller {
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = defaultMaxPlayers
	}
	return &Controller{
		store:  s,
		bots:   bots,
		guard:  NewGuard(cfg.Cooldown),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (c *Controller) SetClock(now func() time.Time) { c.now = now }

// Wait blocks until every background bot turn has finished.
func (c *Controller) Wait() { c.wg.Wait() }

// Start moves a waiting room into the first round's topic selection.
func (c *Controller) Start(ctx context.Context, actorID string) (knowsy.Room, error) {
	return c.hostTrigger(ctx, actorID, func(room knowsy.Room) (knowsy.Room, error) {
		if room.Phase != knowsy.PhaseWaiting {
			return knowsy.Room{}, ErrWrongPhase
		}
		players, err := c.store.Players(ctx, room.ID)
		if err != nil {
			return knowsy.Room{}, fmt.Errorf("loading players: %w", err)
		}
		if len(players) < 2 {
			return knowsy.Room{}, ErrNotEnoughPlayers
		}

		next := room
		next.Phase = knowsy.PhaseTopicSelection
		next.CurrentRound = 1
		next.CurrentVIPID = ""
		next.VIPsCompleted = 0
		updated, err := c.transition(ctx, room, next)
		if err != nil {
			return knowsy.Room{}, err
		}
		c.botSelections(updated, players)
		return updated, nil
	})
}

// NextVIP hands the turn to the next player who has not been VIP this
// round, or closes the round when everyone has been.
//
// The VIP set is the VIPs seen in this round's guesses plus the current VIP,
// who may have no guesses yet. Only players still in the room count towards
// it, so departures never leave a round waiting on someone who is gone.
func (c *Controller) NextVIP(ctx context.Context, actorID string) (knowsy.Room, error) {
	return c.hostTrigger(ctx, actorID, func(room knowsy.Room) (knowsy.Room, error) {
		if room.Phase != knowsy.PhaseScoring {
			return knowsy.Room{}, ErrWrongPhase
		}

		players, err := c.store.Players(ctx, room.ID)
		if err != nil {
			return knowsy.Room{}, fmt.Errorf("loading players: %w", err)
		}
		vips, err := c.store.RoundVIPs(ctx, room.ID, room.CurrentRound)
		if err != nil {
			return knowsy.Room{}, fmt.Errorf("loading round VIPs: %w", err)
		}

		seen := make(map[string]bool, len(vips)+1)
		for _, id := range vips {
			seen[id] = true
		}
		if room.HasVIP() {
			seen[room.CurrentVIPID] = true
		}
		completed := 0
		for _, p := range players {
			if seen[p.ID] {
				completed++
			}
		}

		if completed >= len(players) {
			return c.endRound(ctx, room, players, completed)
		}

		var vip *knowsy.Player
		for i := range players {
			if !seen[players[i].ID] {
				vip = &players[i]
				break
			}
		}
		if vip == nil {
			c.logger.Error("no next VIP", "room", room.ID, "round", room.CurrentRound,
				"completed", completed, "players", len(players))
			return knowsy.Room{}, ErrNoNextVIP
		}

		if err := c.ensureSelection(ctx, room, *vip); err != nil {
			return knowsy.Room{}, err
		}

		next := room
		next.Phase = knowsy.PhaseGuessing
		next.CurrentVIPID = vip.ID
		next.VIPsCompleted = completed
		updated, err := c.transition(ctx, room, next)
		if err != nil {
			return knowsy.Room{}, err
		}
		c.botGuesses(updated, players)
		return updated, nil
	})
}

// EndGame finishes the game early. Only allowed while a VIP turn is being
// scored.
func (c *Controller) EndGame(ctx context.Context, actorID string) (knowsy.Room, error) {
	return c.hostTrigger(ctx, actorID, func(room knowsy.Room) (knowsy.Room, error) {
		if room.Phase != knowsy.PhaseScoring {
			return knowsy.Room{}, ErrWrongPhase
		}
		players, err := c.store.Players(ctx, room.ID)
		if err != nil {
			return knowsy.Room{}, fmt.Errorf("loading players: %w", err)
		}
		return c.finish(ctx, room, room, players)
	})
}

func (c *Controller) hostTrigger(ctx context.Context, actorID string, fn func(knowsy.Room) (knowsy.Room, error)) (knowsy.Room, error) {
	actor, err := c.store.Player(ctx, actorID)
	if err != nil {
		return knowsy.Room{}, err
	}
	if !actor.IsHost {
		return knowsy.Room{}, ErrNotHost
	}

	if !c.guard.Acquire(actor.RoomID) {
		c.logger.Warn("trigger ignored, transition in progress", "room", actor.RoomID, "player", actorID)
		return knowsy.Room{}, ErrBusy
	}
	defer c.guard.Release(actor.RoomID)

	room, err := c.store.Room(ctx, actor.RoomID)
	if err != nil {
		return knowsy.Room{}, err
	}
	return fn(room)
}

func (c *Controller) endRound(ctx context.Context, room knowsy.Room, players []knowsy.Player, completed int) (knowsy.Room, error) {
	if room.CurrentRound >= room.TotalRounds {
		next := room
		next.VIPsCompleted = completed
		return c.finish(ctx, room, next, players)
	}

	next := room
	next.Phase = knowsy.PhaseTopicSelection
	next.CurrentRound++
	next.CurrentVIPID = ""
	next.VIPsCompleted = 0
	updated, err := c.transition(ctx, room, next)
	if err != nil {
		return knowsy.Room{}, err
	}
	c.botSelections(updated, players)
	return updated, nil
}

func (c *Controller) finish(ctx context.Context, room, next knowsy.Room, players []knowsy.Player) (knowsy.Room, error) {
	next.Phase = knowsy.PhaseFinished
	next.PhaseStartedAt = c.now()

	standings := knowsy.Rank(players)
	rec := knowsy.GameRecord{
		TotalRounds: room.TotalRounds,
		Standings:   standings,
	}
	if w, ok := knowsy.Winner(standings); ok {
		rec.WinnerID = w.PlayerID
		rec.WinnerName = w.Name
		rec.WinnerScore = w.Score
	}

	updated, err := c.store.FinishGame(ctx, next, rec)
	if errors.Is(err, store.ErrStaleRevision) {
		c.logger.Warn("finish lost race", "room", room.ID, "revision", room.Revision)
		return knowsy.Room{}, ErrConflict
	}
	if err != nil {
		return knowsy.Room{}, fmt.Errorf("finishing game: %w", err)
	}

	c.logger.Info("game finished",
		"room", room.ID,
		"from", room.Phase,
		"round", room.CurrentRound,
		"winner", rec.WinnerName,
		"score", rec.WinnerScore,
	)
	return updated, nil
}

// transition writes next over room. A write that loses to a concurrent
// transition yields ErrConflict and changes nothing.
func (c *Controller) transition(ctx context.Context, room, next knowsy.Room) (knowsy.Room, error) {
	next.PhaseStartedAt = c.now()
	updated, err := c.store.UpdateRoom(ctx, next)
	if errors.Is(err, store.ErrStaleRevision) {
		c.logger.Warn("transition lost race",
			"room", room.ID,
			"from", room.Phase,
			"to", next.Phase,
			"revision", room.Revision,
		)
		return knowsy.Room{}, ErrConflict
	}
	if err != nil {
		return knowsy.Room{}, fmt.Errorf("writing transition: %w", err)
	}

	c.logger.Info("room transition",
		"room", room.ID,
		"from", room.Phase,
		"to", next.Phase,
		"round", next.CurrentRound,
		"vip", next.CurrentVIPID,
	)
	return updated, nil
}

// advance applies the transitions that follow from submissions alone:
// topic selection ends once every player has a selection, and guessing
// ends once every player other than the VIP has guessed.
func (c *Controller) advance(ctx context.Context, roomID string) error {
	for range 3 {
		room, err := c.store.Room(ctx, roomID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("loading room: %w", err)
		}

		var moved bool
		switch room.Phase {
		case knowsy.PhaseTopicSelection:
			moved, err = c.maybeBeginGuessing(ctx, room)
		case knowsy.PhaseGuessing:
			moved, err = c.maybeScore(ctx, room)
		}
		if errors.Is(err, ErrConflict) {
			return nil
		}
		if err != nil || !moved {
			return err
		}
	}
	return nil
}

func (c *Controller) maybeBeginGuessing(ctx context.Context, room knowsy.Room) (bool, error) {
	players, err := c.store.Players(ctx, room.ID)
	if err != nil {
		return false, fmt.Errorf("loading players: %w", err)
	}
	if len(players) == 0 {
		return false, nil
	}
	sels, err := c.store.Selections(ctx, room.ID, room.CurrentRound)
	if err != nil {
		return false, fmt.Errorf("loading selections: %w", err)
	}

	has := make(map[string]bool, len(sels))
	for _, s := range sels {
		has[s.PlayerID] = true
	}
	for _, p := range players {
		if !has[p.ID] {
			return false, nil
		}
	}

	next := room
	next.Phase = knowsy.PhaseGuessing
	next.CurrentVIPID = players[0].ID
	next.VIPsCompleted = 0
	updated, err := c.transition(ctx, room, next)
	if err != nil {
		return false, err
	}
	c.botGuesses(updated, players)
	return true, nil
}

func (c *Controller) maybeScore(ctx context.Context, room knowsy.Room) (bool, error) {
	players, err := c.store.Players(ctx, room.ID)
	if err != nil {
		return false, fmt.Errorf("loading players: %w", err)
	}
	guesses, err := c.store.Guesses(ctx, room.ID, room.CurrentRound, room.CurrentVIPID)
	if err != nil {
		return false, fmt.Errorf("loading guesses: %w", err)
	}

	guessed := make(map[string]bool, len(guesses))
	for _, g := range guesses {
		guessed[g.PlayerID] = true
	}
	for _, p := range players {
		if p.ID != room.CurrentVIPID && !guessed[p.ID] {
			return false, nil
		}
	}

	if _, err := c.toScoring(ctx, room); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Controller) toScoring(ctx context.Context, room knowsy.Room) (knowsy.Room, error) {
	next := room
	next.Phase = knowsy.PhaseScoring
	return c.transition(ctx, room, next)
}

// ensureSelection fills in a random selection for a VIP who has none, such
// as a player whose topic selection was never stored.
func (c *Controller) ensureSelection(ctx context.Context, room knowsy.Room, vip knowsy.Player) error {
	_, err := c.store.Selection(ctx, room.ID, room.CurrentRound, vip.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("loading selection: %w", err)
	}

	c.logger.Info("generating selection for VIP", "room", room.ID, "round", room.CurrentRound, "vip", vip.ID)
	_, err = c.bots.SelectTopic(ctx, agent.SelectRequest{
		PlayerID: vip.ID,
		RoomID:   room.ID,
		Round:    room.CurrentRound,
	})
	if err != nil {
		return fmt.Errorf("generating selection: %w", err)
	}
	return nil
}
