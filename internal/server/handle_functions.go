package server

import (
	"log/slog"
	"net/http"

	"github.com/playperu/knowsy/internal/agent"
	"github.com/playperu/knowsy/internal/game"
)

func handleAISelect(ctrl *game.Controller, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req agent.SelectRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.PlayerID == "" || req.RoomID == "" {
			writeError(w, http.StatusBadRequest, "playerId and roomId are required")
			return
		}

		res, err := ctrl.AISelect(r.Context(), req)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleAIGuess(ctrl *game.Controller, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req agent.GuessRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.PlayerID == "" || req.RoomID == "" || req.VIPPlayerID == "" {
			writeError(w, http.StatusBadRequest, "playerId, roomId and vipPlayerId are required")
			return
		}

		res, err := ctrl.AIGuess(r.Context(), req)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
