package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/playperu/knowsy/internal/game"
	"github.com/playperu/knowsy/internal/knowsy"
	"github.com/playperu/knowsy/internal/reconcile"
)

type SelectionRequest struct {
	TopicID string           `json:"topicId"`
	Items   []knowsy.ItemRef `json:"items"`
}

type SelectionResponse struct {
	ID      string           `json:"id"`
	Round   int              `json:"round"`
	TopicID string           `json:"topicId"`
	Items   []knowsy.ItemRef `json:"items"`
}

type GuessRequest struct {
	VIPPlayerID string           `json:"vipPlayerId"`
	Order       []knowsy.ItemRef `json:"order"`
}

type GuessResponse struct {
	ID      string `json:"id,omitempty"`
	Score   int    `json:"score"`
	Created bool   `json:"created"`
	Skipped bool   `json:"skipped,omitempty"`
}

type AddBotRequest struct {
	Name string `json:"name,omitempty"`
}

type PlayerResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsHost bool   `json:"isHost"`
	IsAI   bool   `json:"isAi"`
}

func handleGameState(rec *reconcile.Reconciler, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := rec.Snapshot(r.Context(), playerFrom(r).RoomID)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

type hostAction func(ctx context.Context, actorID string) (knowsy.Room, error)

// handleTransition runs a host-triggered transition and answers with the
// room's fresh snapshot.
func handleTransition(action hostAction, rec *reconcile.Reconciler, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := playerFrom(r)
		if _, err := action(r.Context(), p.ID); err != nil {
			writeGameError(w, logger, err)
			return
		}

		snap, err := rec.Snapshot(r.Context(), p.RoomID)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleSelection(ctrl *game.Controller, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectionRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		sel, err := ctrl.SubmitSelection(r.Context(), playerFrom(r).ID, req.TopicID, req.Items)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, SelectionResponse{
			ID:      sel.ID,
			Round:   sel.Round,
			TopicID: sel.TopicID,
			Items:   sel.Items,
		})
	}
}

func handleGuess(ctrl *game.Controller, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GuessRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := ctrl.SubmitGuess(r.Context(), playerFrom(r).ID, req.VIPPlayerID, req.Order)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, GuessResponse{
			ID:      res.Guess.ID,
			Score:   res.Guess.Score,
			Created: res.Created,
			Skipped: res.Skipped,
		})
	}
}

func handleAddBot(ctrl *game.Controller, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddBotRequest
		if r.ContentLength != 0 {
			if err := readJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		bot, err := ctrl.AddBot(r.Context(), playerFrom(r).ID, req.Name)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, PlayerResponse{
			ID:     bot.ID,
			Name:   bot.Name,
			IsHost: bot.IsHost,
			IsAI:   bot.IsAI,
		})
	}
}

func handleLeave(ctrl *game.Controller, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ctrl.Leave(r.Context(), playerFrom(r).ID); err != nil {
			writeGameError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
