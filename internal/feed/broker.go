package feed

import (
	"context"
	"sync"
)

const subscriberBuffer = 32

// Broker is the in-process feed, keyed by room ID.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan Event]struct{}),
	}
}

func (b *Broker) Subscribe(_ context.Context, roomID string) (<-chan Event, func(), error) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	if b.subs[roomID] == nil {
		b.subs[roomID] = make(map[chan Event]struct{})
	}
	b.subs[roomID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[roomID], ch)
			if len(b.subs[roomID]) == 0 {
				delete(b.subs, roomID)
			}
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel, nil
}

// Publish never blocks: a subscriber with a full buffer misses the event.
func (b *Broker) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	for ch := range b.subs[ev.RoomID] {
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.RUnlock()
	return nil
}

// Subscribers returns the number of live subscriptions for a room.
func (b *Broker) Subscribers(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[roomID])
}
