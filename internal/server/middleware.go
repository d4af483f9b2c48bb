package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/knowsy/internal/knowsy"
	"github.com/playperu/knowsy/internal/session"
	"github.com/playperu/knowsy/internal/store"
)

type ctxKey int

const ctxKeyPlayer ctxKey = iota

// playerMiddleware resolves the session token to a seated player and
// records the activity.
func playerMiddleware(st Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "session token required")
				return
			}

			p, err := st.PlayerBySession(r.Context(), session.Hash(token))
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "invalid session token")
				return
			}
			if err != nil {
				logger.Error("resolving session", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if err := st.Touch(r.Context(), p.ID); err != nil {
				logger.Warn("touching player", "player", p.ID, "error", err)
			}

			ctx := context.WithValue(r.Context(), ctxKeyPlayer, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// functionsKeyMiddleware guards the bot function endpoints with a shared
// key. With no key configured the endpoints do not exist.
func functionsKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				writeError(w, http.StatusNotFound, "not found")
				return
			}
			got := r.Header.Get("X-Functions-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid functions key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func playerFrom(r *http.Request) knowsy.Player {
	return r.Context().Value(ctxKeyPlayer).(knowsy.Player)
}
