package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/knowsy/internal/game"
)

type CreateRoomRequest struct {
	HostName    string `json:"hostName"`
	UserID      string `json:"userId,omitempty"`
	OrgID       string `json:"orgId,omitempty"`
	TotalRounds int    `json:"totalRounds,omitempty"`
}

type JoinRequest struct {
	PlayerName string `json:"playerName"`
	UserID     string `json:"userId,omitempty"`
}

// TicketResponse carries the session token. It is only ever returned here.
type TicketResponse struct {
	Token    string `json:"token"`
	PlayerID string `json:"playerId"`
	RoomID   string `json:"roomId"`
	Code     string `json:"code"`
	IsHost   bool   `json:"isHost"`
}

type RoomLookupResponse struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Phase       string `json:"phase"`
	TotalRounds int    `json:"totalRounds"`
	Players     int    `json:"players"`
}

func ticketResponse(t game.Ticket) TicketResponse {
	return TicketResponse{
		Token:    t.Token,
		PlayerID: t.Player.ID,
		RoomID:   t.Room.ID,
		Code:     t.Room.Code,
		IsHost:   t.Player.IsHost,
	}
}

func handleCreateRoom(ctrl *game.Controller, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRoomRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		t, err := ctrl.CreateRoom(r.Context(), game.NewRoom{
			HostName:    req.HostName,
			UserID:      req.UserID,
			OrgID:       req.OrgID,
			TotalRounds: req.TotalRounds,
		})
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, ticketResponse(t))
	}
}

func handleRoomLookup(st Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, err := st.RoomByCode(r.Context(), strings.ToUpper(chi.URLParam(r, "code")))
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		players, err := st.Players(r.Context(), room.ID)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, RoomLookupResponse{
			ID:          room.ID,
			Code:        room.Code,
			Phase:       string(room.Phase),
			TotalRounds: room.TotalRounds,
			Players:     len(players),
		})
	}
}

func handleJoin(ctrl *game.Controller, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		t, err := ctrl.Join(r.Context(), chi.URLParam(r, "code"), req.PlayerName, req.UserID)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, ticketResponse(t))
	}
}
