package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/knowsy/internal/agent"
	"github.com/playperu/knowsy/internal/game"
	"github.com/playperu/knowsy/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeGameError maps controller and store errors to HTTP statuses.
func writeGameError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, game.ErrInvalidInput),
		errors.Is(err, game.ErrInvalidSelection),
		errors.Is(err, game.ErrInvalidGuess):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrNotHost),
		errors.Is(err, game.ErrNotAI):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, agent.ErrWrongRoom):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, game.ErrWrongPhase),
		errors.Is(err, store.ErrTurnClosed),
		errors.Is(err, game.ErrBusy),
		errors.Is(err, game.ErrConflict),
		errors.Is(err, game.ErrNoNextVIP),
		errors.Is(err, game.ErrRoomFull),
		errors.Is(err, game.ErrNotEnoughPlayers),
		errors.Is(err, agent.ErrNoSelection),
		errors.Is(err, agent.ErrNoTopic):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
