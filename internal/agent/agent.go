// Package agent plays for bot-controlled players: it picks a topic and a
// ranking for topic selection, and guesses a VIP's ranking by shuffling it.
// Both write straight into the selection and guess store and are safe to call
// more than once for the same turn.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/playperu/knowsy/internal/knowsy"
	"github.com/playperu/knowsy/internal/store"
)

var (
	ErrNoSelection = errors.New("the VIP has no selection for this round")
	ErrNoTopic     = errors.New("no topic has enough items")
	ErrWrongRoom   = errors.New("player is not in this room")
)

type Store interface {
	Player(ctx context.Context, id string) (knowsy.Player, error)
	Room(ctx context.Context, id string) (knowsy.Room, error)
	Topics(ctx context.Context, orgID string) ([]knowsy.Topic, error)
	Selection(ctx context.Context, roomID string, round int, playerID string) (knowsy.Selection, error)
	InsertSelection(ctx context.Context, sel knowsy.Selection) (knowsy.Selection, bool, error)
	RecordGuess(ctx context.Context, g knowsy.Guess) (knowsy.Guess, bool, error)
}

// TopicChooser suggests which topic a bot should rank.
type TopicChooser interface {
	ChooseTopic(ctx context.Context, player knowsy.Player, topics []knowsy.Topic) (string, error)
}

type SelectRequest struct {
	PlayerID string `json:"playerId"`
	RoomID   string `json:"roomId"`
	Round    int    `json:"round"`
}

type GuessRequest struct {
	PlayerID    string `json:"playerId"`
	RoomID      string `json:"roomId"`
	Round       int    `json:"round"`
	VIPPlayerID string `json:"vipPlayerId"`
}

// Result reports what a call did. Created is false when the row already
// existed; Skipped is set for requests that are deliberately ignored.
type Result struct {
	ID      string `json:"id,omitempty"`
	Created bool   `json:"created"`
	Skipped bool   `json:"skipped,omitempty"`
	Score   int    `json:"score"`
}

type Agent struct {
	store   Store
	chooser TopicChooser
	logger  *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Agent)

// WithChooser delegates topic choice, falling back to a random topic when
// the chooser fails.
func WithChooser(c TopicChooser) Option { return func(a *Agent) { a.chooser = c } }

// WithRand fixes the random source.
func WithRand(r *rand.Rand) Option { return func(a *Agent) { a.rng = r } }

func New(s Store, logger *slog.Logger, opts ...Option) *Agent {
	a := &Agent{
		store:  s,
		logger: logger,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// SelectTopic stores a random ranking of five items from one topic for the
// player's turn in the given round.
func (a *Agent) SelectTopic(ctx context.Context, req SelectRequest) (Result, error) {
	player, err := a.player(ctx, req.PlayerID, req.RoomID)
	if err != nil {
		return Result{}, err
	}

	existing, err := a.store.Selection(ctx, req.RoomID, req.Round, req.PlayerID)
	if err == nil {
		return Result{ID: existing.ID}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Result{}, fmt.Errorf("loading selection: %w", err)
	}

	room, err := a.store.Room(ctx, req.RoomID)
	if err != nil {
		return Result{}, fmt.Errorf("loading room: %w", err)
	}
	topics, err := a.store.Topics(ctx, room.OrgID)
	if err != nil {
		return Result{}, fmt.Errorf("loading topics: %w", err)
	}
	topic, err := a.pickTopic(ctx, player, topics)
	if err != nil {
		return Result{}, err
	}

	items := a.shuffled(topic.Refs())[:knowsy.SelectionSize]
	sel, created, err := a.store.InsertSelection(ctx, knowsy.Selection{
		RoomID:   req.RoomID,
		Round:    req.Round,
		PlayerID: req.PlayerID,
		TopicID:  topic.ID,
		Items:    items,
	})
	if err != nil {
		return Result{}, fmt.Errorf("storing selection: %w", err)
	}
	return Result{ID: sel.ID, Created: created}, nil
}

// Guess ranks the VIP's items uniformly at random and scores the result the
// same way a human guess is scored. A player never guesses their own turn.
func (a *Agent) Guess(ctx context.Context, req GuessRequest) (Result, error) {
	if req.PlayerID == req.VIPPlayerID {
		return Result{Skipped: true}, nil
	}
	if _, err := a.player(ctx, req.PlayerID, req.RoomID); err != nil {
		return Result{}, err
	}

	sel, err := a.store.Selection(ctx, req.RoomID, req.Round, req.VIPPlayerID)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, ErrNoSelection
	}
	if err != nil {
		return Result{}, fmt.Errorf("loading selection: %w", err)
	}

	order := a.shuffled(sel.Items)
	g, created, err := a.store.RecordGuess(ctx, knowsy.Guess{
		RoomID:      req.RoomID,
		Round:       req.Round,
		PlayerID:    req.PlayerID,
		VIPPlayerID: req.VIPPlayerID,
		Order:       order,
		Score:       knowsy.Score(sel.Items, order),
	})
	if err != nil {
		return Result{}, fmt.Errorf("storing guess: %w", err)
	}
	return Result{ID: g.ID, Created: created, Score: g.Score}, nil
}

func (a *Agent) player(ctx context.Context, playerID, roomID string) (knowsy.Player, error) {
	p, err := a.store.Player(ctx, playerID)
	if err != nil {
		return p, fmt.Errorf("loading player: %w", err)
	}
	if p.RoomID != roomID {
		return p, ErrWrongRoom
	}
	return p, nil
}

func (a *Agent) pickTopic(ctx context.Context, player knowsy.Player, topics []knowsy.Topic) (knowsy.Topic, error) {
	usable := topics[:0:0]
	for _, t := range topics {
		if len(t.Items) >= knowsy.SelectionSize {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return knowsy.Topic{}, ErrNoTopic
	}

	if a.chooser != nil {
		id, err := a.chooser.ChooseTopic(ctx, player, usable)
		if err == nil {
			for _, t := range usable {
				if t.ID == id {
					return t, nil
				}
			}
			err = fmt.Errorf("unknown topic %q", id)
		}
		a.logger.Warn("topic chooser failed, picking at random", "player", player.ID, "error", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return usable[a.rng.IntN(len(usable))], nil
}

func (a *Agent) shuffled(refs []knowsy.ItemRef) []knowsy.ItemRef {
	out := append([]knowsy.ItemRef(nil), refs...)
	a.mu.Lock()
	a.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	a.mu.Unlock()
	return out
}
