package server

import (
	"context"

	"github.com/playperu/knowsy/internal/knowsy"
)

// Store is the read side the handlers use directly. Every write goes
// through the game controller.
type Store interface {
	PlayerBySession(ctx context.Context, sessionHash string) (knowsy.Player, error)
	Player(ctx context.Context, id string) (knowsy.Player, error)
	Players(ctx context.Context, roomID string) ([]knowsy.Player, error)
	RoomByCode(ctx context.Context, code string) (knowsy.Room, error)
	Topics(ctx context.Context, orgID string) ([]knowsy.Topic, error)
	Touch(ctx context.Context, playerID string) error
	SetConnected(ctx context.Context, p knowsy.Player, connected bool) error
}
