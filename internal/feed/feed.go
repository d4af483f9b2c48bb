// Package feed carries row-level change notifications for game rooms.
//
// The store publishes one Event per committed row change. Subscribers are
// scoped to a single room and receive events in publish order, but a slow
// subscriber may miss events; consumers are expected to re-read the state
// they care about rather than apply events as patches.
package feed

import "context"

type Table string

const (
	TableRooms      Table = "rooms"
	TablePlayers    Table = "players"
	TableSelections Table = "selections"
	TableGuesses    Table = "guesses"
	TableHistory    Table = "game_history"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type Event struct {
	RoomID string `json:"roomId"`
	Table  Table  `json:"table"`
	Op     Op     `json:"op"`
	RowID  string `json:"rowId"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscriber delivers events for one room until the returned cancel func is
// called. The channel is closed after cancel.
type Subscriber interface {
	Subscribe(ctx context.Context, roomID string) (<-chan Event, func(), error)
}

type Feed interface {
	Publisher
	Subscriber
}

// Discard drops every event. Useful for tools and tests that write to the
// store without listeners.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
