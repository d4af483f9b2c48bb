package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/knowsy/internal/agent"
	"github.com/playperu/knowsy/internal/handler/health"
	"github.com/playperu/knowsy/internal/reconcile"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

type roomCodeParams struct {
	Code string `path:"code" description:"Six letter join code."`
}

type topicParams struct {
	Org string `query:"org" description:"Organization whose custom items are included."`
}

type operation struct {
	method, path string
	summary      string
	description  string
	params       any
	req          any
	resp         any
	status       int
	contentType  string
	errors       []int
}

var operations = []operation{
	{
		method:      http.MethodGet,
		path:        "/healthz",
		summary:     "Health check",
		description: "Returns the health status of the database and the change feed.",
		resp:        health.Response{},
		status:      http.StatusOK,
		errors:      []int{http.StatusServiceUnavailable},
	},
	{
		method:      http.MethodPost,
		path:        "/api/rooms",
		summary:     "Create room",
		description: "Creates a room in the waiting phase with the caller as host. Returns a session token.",
		req:         CreateRoomRequest{},
		resp:        TicketResponse{},
		status:      http.StatusCreated,
		errors:      []int{http.StatusBadRequest},
	},
	{
		method:      http.MethodGet,
		path:        "/api/rooms/{code}",
		params:      roomCodeParams{},
		summary:     "Look up room",
		description: "Looks up a room by its join code before joining.",
		resp:        RoomLookupResponse{},
		status:      http.StatusOK,
		errors:      []int{http.StatusNotFound},
	},
	{
		method:      http.MethodPost,
		path:        "/api/rooms/{code}/join",
		params:      roomCodeParams{},
		summary:     "Join room",
		description: "Joins a waiting room, or reclaims the caller's seat when userId matches. Returns a session token.",
		req:         JoinRequest{},
		resp:        TicketResponse{},
		status:      http.StatusOK,
		errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	},
	{
		method:      http.MethodGet,
		path:        "/api/game/state",
		summary:     "Get room snapshot",
		description: "Returns the room's current snapshot. Requires Bearer token.",
		resp:        reconcile.Snapshot{},
		status:      http.StatusOK,
		errors:      []int{http.StatusUnauthorized},
	},
	{
		method:      http.MethodGet,
		path:        "/api/game/events",
		summary:     "SSE snapshot stream",
		description: "Server-Sent Events stream of room snapshots. Pass token as query parameter.",
		status:      http.StatusOK,
		contentType: "text/event-stream",
		errors:      []int{http.StatusUnauthorized},
	},
	{
		method:      http.MethodGet,
		path:        "/api/game/ws",
		summary:     "WebSocket snapshot stream",
		description: "Upgrades to a WebSocket that receives room snapshots as JSON text frames.",
		status:      http.StatusSwitchingProtocols,
		contentType: "application/json",
		errors:      []int{http.StatusUnauthorized},
	},
	{
		method:      http.MethodGet,
		path:        "/api/topics",
		params:      topicParams{},
		summary:     "List topics",
		description: "Lists the shared catalog topics, with an organization's custom items when org is given.",
		resp:        []TopicResponse{},
		status:      http.StatusOK,
	},
	{
		method:      http.MethodPost,
		path:        "/api/game/bots",
		summary:     "Add bot",
		description: "Seats a bot player. Host only, waiting phase only.",
		req:         AddBotRequest{},
		resp:        PlayerResponse{},
		status:      http.StatusCreated,
		errors:      []int{http.StatusForbidden, http.StatusConflict},
	},
	{
		method:      http.MethodPost,
		path:        "/api/game/start",
		summary:     "Start game",
		description: "Moves a waiting room with at least two players to topic selection. Host only.",
		resp:        reconcile.Snapshot{},
		status:      http.StatusOK,
		errors:      []int{http.StatusForbidden, http.StatusConflict},
	},
	{
		method:      http.MethodPost,
		path:        "/api/game/next-vip",
		summary:     "Next VIP",
		description: "Advances to the next VIP's turn, or closes the round when every player has been VIP. Host only.",
		resp:        reconcile.Snapshot{},
		status:      http.StatusOK,
		errors:      []int{http.StatusForbidden, http.StatusConflict},
	},
	{
		method:      http.MethodPost,
		path:        "/api/game/end",
		summary:     "End turn",
		description: "Finishes the game early while a VIP turn is being scored and records the summary. Host only.",
		resp:        reconcile.Snapshot{},
		status:      http.StatusOK,
		errors:      []int{http.StatusForbidden, http.StatusConflict},
	},
	{
		method:      http.MethodPost,
		path:        "/api/game/selection",
		summary:     "Submit selection",
		description: "Stores the caller's ranked list of five items for the current round.",
		req:         SelectionRequest{},
		resp:        SelectionResponse{},
		status:      http.StatusOK,
		errors:      []int{http.StatusBadRequest, http.StatusConflict},
	},
	{
		method:      http.MethodPost,
		path:        "/api/game/guess",
		summary:     "Submit guess",
		description: "Scores the caller's guess of the current VIP's ranking.",
		req:         GuessRequest{},
		resp:        GuessResponse{},
		status:      http.StatusOK,
		errors:      []int{http.StatusBadRequest, http.StatusConflict},
	},
	{
		method:      http.MethodPost,
		path:        "/api/game/leave",
		summary:     "Leave room",
		description: "Removes the caller from the room. The host flag moves to the earliest remaining player.",
		status:      http.StatusNoContent,
		errors:      []int{http.StatusUnauthorized},
	},
	{
		method:      http.MethodPost,
		path:        "/api/functions/ai-select",
		summary:     "Bot topic selection",
		description: "Makes a bot pick a topic and a random ranking. Idempotent. Requires X-Functions-Key.",
		req:         agent.SelectRequest{},
		resp:        agent.Result{},
		status:      http.StatusOK,
		errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict},
	},
	{
		method:      http.MethodPost,
		path:        "/api/functions/ai-guess",
		summary:     "Bot guess",
		description: "Makes a bot guess the VIP's ranking. Idempotent. Requires X-Functions-Key.",
		req:         agent.GuessRequest{},
		resp:        agent.Result{},
		status:      http.StatusOK,
		errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict},
	},
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Knowsy API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Backend API for Knowsy game rooms.")

	for _, op := range operations {
		oc, err := r.NewOperationContext(op.method, op.path)
		if err != nil {
			continue
		}
		oc.SetSummary(op.summary)
		oc.SetDescription(op.description)
		if op.params != nil {
			oc.AddReqStructure(op.params)
		}
		if op.req != nil {
			oc.AddReqStructure(op.req)
		}
		if op.contentType != "" {
			oc.AddRespStructure(nil, openapi.WithHTTPStatus(op.status), openapi.WithContentType(op.contentType))
		} else {
			oc.AddRespStructure(op.resp, openapi.WithHTTPStatus(op.status))
		}
		for _, status := range op.errors {
			oc.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(status))
		}
		_ = r.AddOperation(oc)
	}

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func handleSwaggerUI() http.Handler {
	return v5emb.New("Knowsy API", "/openapi.json", "/docs")
}
