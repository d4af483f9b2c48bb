package reconcile

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/playperu/knowsy/internal/knowsy"
	"github.com/playperu/knowsy/internal/store"
)

// Snapshot is everything a client needs to render a room. It is the same
// for every player in the room.
type Snapshot struct {
	Room    RoomView          `json:"room"`
	Players []knowsy.Standing `json:"players"`
	Round   *RoundView        `json:"round,omitempty"`
	Summary *Summary          `json:"summary,omitempty"`
}

type RoomView struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	Phase          string     `json:"phase"`
	CurrentRound   int        `json:"currentRound"`
	TotalRounds    int        `json:"totalRounds"`
	CurrentVIPID   string     `json:"currentVipId,omitempty"`
	VIPsCompleted  int        `json:"vipsCompleted"`
	Revision       int64      `json:"revision"`
	PhaseStartedAt time.Time  `json:"phaseStartedAt"`
	Deadline       *time.Time `json:"deadline,omitempty"`
}

// RoundView describes the current VIP turn. While guessing, Items are the
// VIP's items in name order so the ranking stays hidden; once scored they
// are in the VIP's order and Results carries every guess.
type RoundView struct {
	Number   int         `json:"number"`
	Selected []string    `json:"selected"`
	VIPID    string      `json:"vipId,omitempty"`
	TopicID  string      `json:"topicId,omitempty"`
	Items    []ItemView  `json:"items,omitempty"`
	Guessed  []string    `json:"guessed,omitempty"`
	Results  []GuessView `json:"results,omitempty"`
}

type ItemView struct {
	Ref   knowsy.ItemRef `json:"ref"`
	Name  string         `json:"name"`
	Image string         `json:"image,omitempty"`
}

type GuessView struct {
	PlayerID string     `json:"playerId"`
	Name     string     `json:"name"`
	Order    []ItemView `json:"order"`
	Score    int        `json:"score"`
}

type Summary struct {
	WinnerID    string    `json:"winnerId,omitempty"`
	WinnerName  string    `json:"winnerName,omitempty"`
	WinnerScore int       `json:"winnerScore"`
	FinishedAt  time.Time `json:"finishedAt"`
}

type Source interface {
	Room(ctx context.Context, id string) (knowsy.Room, error)
	Players(ctx context.Context, roomID string) ([]knowsy.Player, error)
	Selections(ctx context.Context, roomID string, round int) ([]knowsy.Selection, error)
	Guesses(ctx context.Context, roomID string, round int, vipID string) ([]knowsy.Guess, error)
	History(ctx context.Context, roomID string) (knowsy.GameRecord, error)
	ResolveItems(ctx context.Context, refs []knowsy.ItemRef) ([]knowsy.Item, error)
	EnsureHost(ctx context.Context, roomID string) (string, error)
}

// Timeouts lets snapshots carry the deadline of timed phases.
type Timeouts struct {
	Selection time.Duration
	Guess     time.Duration
}

// Build reads the room's current aggregate. Only the current round is
// fetched, never the whole history.
func Build(ctx context.Context, src Source, roomID string, timeouts Timeouts) (Snapshot, error) {
	room, err := src.Room(ctx, roomID)
	if err != nil {
		return Snapshot{}, err
	}

	var (
		players []knowsy.Player
		sels    []knowsy.Selection
		guesses []knowsy.Guess
		rec     *knowsy.GameRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		players, err = src.Players(gctx, roomID)
		return err
	})
	if room.Phase != knowsy.PhaseWaiting {
		g.Go(func() error {
			var err error
			sels, err = src.Selections(gctx, roomID, room.CurrentRound)
			return err
		})
	}
	if room.HasVIP() {
		g.Go(func() error {
			var err error
			guesses, err = src.Guesses(gctx, roomID, room.CurrentRound, room.CurrentVIPID)
			return err
		})
	}
	if room.Phase == knowsy.PhaseFinished {
		g.Go(func() error {
			r, err := src.History(gctx, roomID)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			rec = &r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("loading room state: %w", err)
	}

	snap := Snapshot{
		Room:    roomView(room, timeouts),
		Players: knowsy.Rank(players),
	}
	if rec != nil {
		snap.Summary = &Summary{
			WinnerID:    rec.WinnerID,
			WinnerName:  rec.WinnerName,
			WinnerScore: rec.WinnerScore,
			FinishedAt:  rec.FinishedAt,
		}
	}
	if room.Phase == knowsy.PhaseWaiting {
		return snap, nil
	}

	round, err := roundView(ctx, src, room, players, sels, guesses)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Round = round
	return snap, nil
}

func roomView(room knowsy.Room, timeouts Timeouts) RoomView {
	v := RoomView{
		ID:             room.ID,
		Code:           room.Code,
		Phase:          string(room.Phase),
		CurrentRound:   room.CurrentRound,
		TotalRounds:    room.TotalRounds,
		CurrentVIPID:   room.CurrentVIPID,
		VIPsCompleted:  room.VIPsCompleted,
		Revision:       room.Revision,
		PhaseStartedAt: room.PhaseStartedAt,
	}
	var limit time.Duration
	switch room.Phase {
	case knowsy.PhaseTopicSelection:
		limit = timeouts.Selection
	case knowsy.PhaseGuessing:
		limit = timeouts.Guess
	}
	if limit > 0 {
		d := room.PhaseStartedAt.Add(limit)
		v.Deadline = &d
	}
	return v
}

func roundView(ctx context.Context, src Source, room knowsy.Room, players []knowsy.Player, sels []knowsy.Selection, guesses []knowsy.Guess) (*RoundView, error) {
	v := &RoundView{
		Number:   room.CurrentRound,
		Selected: []string{},
		VIPID:    room.CurrentVIPID,
	}
	var vipSel *knowsy.Selection
	for i, s := range sels {
		v.Selected = append(v.Selected, s.PlayerID)
		if s.PlayerID == room.CurrentVIPID {
			vipSel = &sels[i]
		}
	}
	if vipSel == nil {
		return v, nil
	}
	v.TopicID = vipSel.TopicID

	items, err := resolve(ctx, src, vipSel.Items)
	if err != nil {
		return nil, err
	}

	if room.Phase == knowsy.PhaseGuessing {
		slices.SortFunc(items, func(a, b ItemView) int { return cmp.Compare(a.Name, b.Name) })
		v.Items = items
		for _, g := range guesses {
			v.Guessed = append(v.Guessed, g.PlayerID)
		}
		return v, nil
	}

	v.Items = items
	names := make(map[string]string, len(players))
	for _, p := range players {
		names[p.ID] = p.Name
	}
	for _, g := range guesses {
		order, err := resolve(ctx, src, g.Order)
		if err != nil {
			return nil, err
		}
		v.Guessed = append(v.Guessed, g.PlayerID)
		v.Results = append(v.Results, GuessView{
			PlayerID: g.PlayerID,
			Name:     names[g.PlayerID],
			Order:    order,
			Score:    g.Score,
		})
	}
	return v, nil
}

func resolve(ctx context.Context, src Source, refs []knowsy.ItemRef) ([]ItemView, error) {
	items, err := src.ResolveItems(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("resolving items: %w", err)
	}
	out := make([]ItemView, len(refs))
	for i, r := range refs {
		out[i] = ItemView{Ref: r, Name: items[i].Name, Image: items[i].Image}
	}
	return out, nil
}
