package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/motionquiz/internal/metrics"
)

func addRoutes(r chi.Router, logger *slog.Logger, d Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("MotionQuiz API", "/openapi.json", "/docs"))
	r.Handle("/metrics", metrics.Handler())
	if d.Health != nil {
		r.Mount("/healthz", d.Health)
	}

	// Browsers cannot set headers on the upgrade, so /ws takes the token
	// as a query parameter.
	r.Get("/ws", handleWS(logger, d))

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(d.Verifier))

		r.Post("/sessions", handleCreateSession(logger, d.Sessions))
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", handleGetSession(logger, d.Sessions))
			r.Post("/join", handleJoinSession(logger, d.Sessions))
			r.Post("/start", handleHostCommand(logger, d.Sessions, d.Sessions.Start))
			r.Post("/advance", handleHostCommand(logger, d.Sessions, d.Sessions.Advance))
			r.Post("/end", handleHostCommand(logger, d.Sessions, d.Sessions.End))
			r.Post("/answers", handleSubmitAnswer(logger, d.Sessions, d.Sensors))
			r.Get("/leaderboard", handleLeaderboard(logger, d.Sessions))
			r.Get("/rounds/{roundID}", handleRound(logger, d.Sessions))
		})
		r.Get("/rooms/{roomID}/presence", handlePresence(logger, d.Hub, d.Sessions, d.Rooms))
	})
}
