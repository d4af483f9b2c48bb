package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/playperu/knowsy/internal/reconcile"
	"github.com/playperu/knowsy/internal/store"
)

// handleWS serves the same snapshot stream as handleEvents over a
// WebSocket. Clients only listen; anything they send is discarded.
func handleWS(rec *reconcile.Reconciler, conns *presence, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := playerFrom(r)

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		ctx := conn.CloseRead(r.Context())
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		conns.connect(ctx, p)
		defer conns.disconnect(p)

		snaps, done := streamSnapshots(ctx, rec, p.RoomID)

		ping := time.NewTicker(pingInterval)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case s := <-snaps:
				wctx, wcancel := context.WithTimeout(ctx, 10*time.Second)
				err := wsjson.Write(wctx, conn, s)
				wcancel()
				if err != nil {
					logger.Debug("websocket write failed", "player", p.ID, "error", err)
					return
				}
			case err := <-done:
				if errors.Is(err, store.ErrNotFound) {
					conn.Close(websocket.StatusNormalClosure, "room closed")
					return
				}
				if err != nil && ctx.Err() == nil {
					logger.Error("websocket stream ended", "room", p.RoomID, "player", p.ID, "error", err)
				}
				conn.Close(websocket.StatusInternalError, "stream ended")
				return
			case <-ping.C:
				if err := conn.Ping(ctx); err != nil {
					logger.Debug("websocket ping failed", "player", p.ID, "error", err)
					return
				}
				conns.heartbeat(ctx, p.ID)
			}
		}
	}
}
