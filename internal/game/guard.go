package game

import (
	"sync"
	"time"
)

// Guard marks rooms with a host-triggered transition in flight. A room stays
// marked for a cooldown after the transition finishes so that a repeated
// trigger (double click, replayed request) is dropped rather than applied
// twice.
type Guard struct {
	mu       sync.Mutex
	busy     map[string]struct{}
	cooldown time.Duration
}

func NewGuard(cooldown time.Duration) *Guard {
	return &Guard{
		busy:     make(map[string]struct{}),
		cooldown: cooldown,
	}
}

// Acquire reports whether the caller now owns the room's transition slot.
func (g *Guard) Acquire(roomID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.busy[roomID]; ok {
		return false
	}
	g.busy[roomID] = struct{}{}
	return true
}

// Release frees the room once the cooldown has passed.
func (g *Guard) Release(roomID string) {
	if g.cooldown <= 0 {
		g.free(roomID)
		return
	}
	time.AfterFunc(g.cooldown, func() { g.free(roomID) })
}

func (g *Guard) free(roomID string) {
	g.mu.Lock()
	delete(g.busy, roomID)
	g.mu.Unlock()
}
