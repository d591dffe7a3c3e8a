package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/go-otp-relay/internal/config"
	"github.com/go-otp-relay/internal/transport/http/handler"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	healthH := handler.NewHealthHandler(deps.Readiness)
	verificationH := handler.NewVerificationHandler(deps.VerificationSvc)

	r.Get("/health/live", healthH.Live)
	r.Get("/health/ready", healthH.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/whatsapp-verification", verificationH.Register)
		r.Get("/whatsapp-verification/{requestId}", verificationH.Get)
	})

	return r
}
