package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/playperu/knowsy/internal/reconcile"
	"github.com/playperu/knowsy/internal/store"
)

const pingInterval = 30 * time.Second

// handleEvents streams the room's snapshot as Server-Sent Events. The
// player counts as connected for as long as the stream is open.
func handleEvents(rec *reconcile.Reconciler, conns *presence, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := playerFrom(r)

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		conns.connect(r.Context(), p)
		defer conns.disconnect(p)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		snaps, done := streamSnapshots(ctx, rec, p.RoomID)

		ping := time.NewTicker(pingInterval)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case s := <-snaps:
				data, err := json.Marshal(s)
				if err != nil {
					logger.Error("encoding snapshot", "room", p.RoomID, "error", err)
					return
				}
				fmt.Fprintf(w, "event: state\ndata: %s\n\n", data)
				flusher.Flush()
			case err := <-done:
				if errors.Is(err, store.ErrNotFound) {
					fmt.Fprintf(w, "event: closed\ndata: {}\n\n")
					flusher.Flush()
				} else if err != nil && ctx.Err() == nil {
					logger.Error("event stream ended", "room", p.RoomID, "player", p.ID, "error", err)
				}
				return
			case <-ping.C:
				fmt.Fprintf(w, ": ping\n\n")
				flusher.Flush()
				conns.heartbeat(ctx, p.ID)
			}
		}
	}
}
