package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	conns := newPresence(deps.Store, logger)

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", handleSwaggerUI())

	// Entry points, no session yet.
	r.Route("/api/rooms", func(r chi.Router) {
		r.Post("/", handleCreateRoom(deps.Game, logger))
		r.Get("/{code}", handleRoomLookup(deps.Store, logger))
		r.Post("/{code}/join", handleJoin(deps.Game, logger))
	})

	r.Get("/api/topics", handleTopics(deps.Store, logger))

	// Player routes, session resolved by playerMiddleware.
	r.Route("/api/game", func(r chi.Router) {
		r.Use(playerMiddleware(deps.Store, logger))
		r.Get("/state", handleGameState(deps.Reconciler, logger))
		r.Get("/events", handleEvents(deps.Reconciler, conns, logger))
		r.Get("/ws", handleWS(deps.Reconciler, conns, logger))
		r.Post("/bots", handleAddBot(deps.Game, logger))
		r.Post("/start", handleTransition(deps.Game.Start, deps.Reconciler, logger))
		r.Post("/next-vip", handleTransition(deps.Game.NextVIP, deps.Reconciler, logger))
		r.Post("/end", handleTransition(deps.Game.EndGame, deps.Reconciler, logger))
		r.Post("/selection", handleSelection(deps.Game, logger))
		r.Post("/guess", handleGuess(deps.Game, logger))
		r.Post("/leave", handleLeave(deps.Game, logger))
	})

	// Bot turns triggered by an external scheduler.
	r.Route("/api/functions", func(r chi.Router) {
		r.Use(functionsKeyMiddleware(deps.FunctionsKey))
		r.Post("/ai-select", handleAISelect(deps.Game, logger))
		r.Post("/ai-guess", handleAIGuess(deps.Game, logger))
	})

	if deps.SPADir != "" {
		if info, err := os.Stat(deps.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", deps.SPADir)
			r.NotFound(handleSPA(deps.SPADir))
		}
	}
}
