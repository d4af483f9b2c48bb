// Package reconcile keeps a client's view of a room in step with the store.
// It never patches state from events: every change event, and every poll
// tick as a fallback for lost events, triggers a fresh read of the room.
package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/playperu/knowsy/internal/feed"
	"github.com/playperu/knowsy/internal/store"
)

var ErrFeedClosed = errors.New("change feed closed")

type Reconciler struct {
	src      Source
	feed     feed.Subscriber
	poll     time.Duration
	timeouts Timeouts
	logger   *slog.Logger
}

func New(src Source, sub feed.Subscriber, poll time.Duration, timeouts Timeouts, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		src:      src,
		feed:     sub,
		poll:     poll,
		timeouts: timeouts,
		logger:   logger,
	}
}

// Snapshot builds the room's current snapshot.
func (r *Reconciler) Snapshot(ctx context.Context, roomID string) (Snapshot, error) {
	return Build(ctx, r.src, roomID, r.timeouts)
}

// Run calls emit with the room's snapshot straight away and then after each
// change, until ctx is done or emit fails. Snapshots equal to the last one
// emitted are skipped. Run also repairs the host flag before each read so a
// room left without a host regains one within a cycle.
func (r *Reconciler) Run(ctx context.Context, roomID string, emit func(Snapshot) error) error {
	events, cancel, err := r.feed.Subscribe(ctx, roomID)
	if err != nil {
		return err
	}
	defer cancel()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	var last []byte
	refresh := func() error {
		if promoted, err := r.src.EnsureHost(ctx, roomID); err != nil {
			r.logger.Warn("host repair failed", "room", roomID, "error", err)
		} else if promoted != "" {
			r.logger.Info("host restored", "room", roomID, "player", promoted)
		}

		snap, err := r.Snapshot(ctx, roomID)
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// The next event or tick retries.
			r.logger.Warn("snapshot failed", "room", roomID, "error", err)
			return nil
		}

		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		if bytes.Equal(data, last) {
			return nil
		}
		last = data
		return emit(snap)
	}

	if err := refresh(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrFeedClosed
			}
			drain(events)
			if err := refresh(); err != nil {
				return err
			}
		case <-ticker.C:
			if err := refresh(); err != nil {
				return err
			}
		}
	}
}

// drain discards queued events; one refresh covers them all.
func drain(events <-chan feed.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
