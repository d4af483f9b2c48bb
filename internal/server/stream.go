package server

import (
	"context"

	"github.com/playperu/knowsy/internal/reconcile"
)

// streamSnapshots runs the reconciler for roomID in its own goroutine so the
// caller can interleave keep-alives with snapshot writes on one connection.
// The error channel receives Run's result once and is then closed.
func streamSnapshots(ctx context.Context, rec *reconcile.Reconciler, roomID string) (<-chan reconcile.Snapshot, <-chan error) {
	snaps := make(chan reconcile.Snapshot)
	done := make(chan error, 1)

	go func() {
		defer close(done)
		done <- rec.Run(ctx, roomID, func(s reconcile.Snapshot) error {
			select {
			case snaps <- s:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return snaps, done
}
