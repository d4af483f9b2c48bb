package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/playperu/knowsy/internal/knowsy"
)

// presence counts open event streams per player. A player is connected
// while at least one stream is open, so a second tab closing does not mark
// them as gone.
//
// Counts are local to this process. With several instances behind a shared
// feed, a stream closing here can stamp left_at while the player still has
// a stream open elsewhere; the heartbeat of that other stream refreshes
// last_seen_at and clears left_at again, and the sweeper only removes
// players whose last_seen_at is also older than the grace period.
type presence struct {
	mu     sync.Mutex
	conns  map[string]int
	store  Store
	logger *slog.Logger
}

func newPresence(st Store, logger *slog.Logger) *presence {
	return &presence{conns: make(map[string]int), store: st, logger: logger}
}

func (p *presence) connect(ctx context.Context, player knowsy.Player) {
	p.mu.Lock()
	p.conns[player.ID]++
	first := p.conns[player.ID] == 1
	p.mu.Unlock()

	if first || player.LeftAt != nil {
		if err := p.store.SetConnected(ctx, player, true); err != nil {
			p.logger.Warn("marking player connected", "player", player.ID, "error", err)
		}
	}
}

// disconnect runs after the request context is gone, so it writes on a
// context of its own.
func (p *presence) disconnect(player knowsy.Player) {
	p.mu.Lock()
	p.conns[player.ID]--
	last := p.conns[player.ID] <= 0
	if last {
		delete(p.conns, player.ID)
	}
	p.mu.Unlock()

	if !last {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.SetConnected(ctx, player, false); err != nil {
		p.logger.Warn("marking player disconnected", "player", player.ID, "error", err)
	}
}

// heartbeat runs on every keep-alive of an open stream.
func (p *presence) heartbeat(ctx context.Context, playerID string) {
	if err := p.store.Touch(ctx, playerID); err != nil {
		p.logger.Warn("touching player", "player", playerID, "error", err)
		return
	}
	current, err := p.store.Player(ctx, playerID)
	if err != nil {
		p.logger.Warn("loading player", "player", playerID, "error", err)
		return
	}
	if current.LeftAt == nil {
		return
	}
	if err := p.store.SetConnected(ctx, current, true); err != nil {
		p.logger.Warn("marking player connected", "player", playerID, "error", err)
	}
}

func (p *presence) count(playerID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[playerID]
}
