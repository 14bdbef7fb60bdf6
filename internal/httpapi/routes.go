package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/blokus-relay/internal/hub"
	"github.com/DoyleJ11/blokus-relay/internal/ws"
)

func SetupRoutes(h *hub.Hub, wsOpts ws.Options, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz(h))
	r.Route("/games", func(r chi.Router) {
		r.Post("/", CreateGame(h, log))
		r.Get("/", ListGames(h))
		r.Get("/{gameID}", GetGame(h))
	})
	r.Get("/ws", ws.Handler(h, wsOpts))
	return r
}
