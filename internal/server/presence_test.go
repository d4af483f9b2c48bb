package server

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/playperu/knowsy/internal/knowsy"
)

type connStore struct {
	Store
	mu      sync.Mutex
	calls   []bool
	touched int
	leftAt  *time.Time
}

func (s *connStore) SetConnected(_ context.Context, _ knowsy.Player, connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, connected)
	if connected {
		s.leftAt = nil
	}
	return nil
}

func (s *connStore) Touch(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched++
	return nil
}

func (s *connStore) Player(_ context.Context, id string) (knowsy.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return knowsy.Player{ID: id, RoomID: "room", LeftAt: s.leftAt}, nil
}

func TestPresenceCountsStreams(t *testing.T) {
	st := &connStore{}
	p := newPresence(st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	bob := knowsy.Player{ID: "bob", RoomID: "room"}

	p.connect(context.Background(), bob)
	p.connect(context.Background(), bob)
	if got := p.count("bob"); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}

	p.disconnect(bob)
	if len(st.calls) != 1 {
		t.Fatalf("closing one of two streams should not mark Bob gone, calls = %v", st.calls)
	}

	p.disconnect(bob)
	if got := p.count("bob"); got != 0 {
		t.Errorf("count = %d, want 0", got)
	}
	want := []bool{true, false}
	if len(st.calls) != len(want) || st.calls[0] != want[0] || st.calls[1] != want[1] {
		t.Errorf("calls = %v, want %v", st.calls, want)
	}
}

func TestPresenceHeartbeatClearsForeignDisconnect(t *testing.T) {
	left := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	st := &connStore{}
	p := newPresence(st, slog.New(slog.NewTextHandler(io.Discard, nil)))

	p.heartbeat(context.Background(), "bob")
	if st.touched != 1 || len(st.calls) != 0 {
		t.Fatalf("touched = %d, calls = %v; want a touch and no reconnect", st.touched, st.calls)
	}

	// Another instance closed Bob's stream there while this one stays open.
	st.leftAt = &left
	p.heartbeat(context.Background(), "bob")
	if st.touched != 2 {
		t.Errorf("touched = %d, want 2", st.touched)
	}
	if len(st.calls) != 1 || !st.calls[0] {
		t.Errorf("calls = %v, want [true]", st.calls)
	}
	if st.leftAt != nil {
		t.Errorf("left_at still set after heartbeat")
	}
}
