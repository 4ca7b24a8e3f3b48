/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the cooperative dashboard

ROUTE GROUPS:
  /api/statistics/*  Daily production statistics
  /api/invoices/*    Sales documents
  /api/ledger        Combined range reads
  /api/health        Liveness probe

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public;
  deployments sit behind the cooperative VPN.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. Allowed CORS
// origins come from configuration (LEDGER_ALLOWED_ORIGINS); with none given
// any origin may call, which suits deployments behind the cooperative VPN.
func NewRouter(h *Handler, allowedOrigins ...string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/ledger", h.GetLedger)

		r.Route("/statistics", func(r chi.Router) {
			r.Post("/", h.UpsertStatistics)
			r.Put("/{id}", h.UpdateStatistic)
			r.Delete("/{id}", h.DeleteStatistic)
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Post("/", h.InsertInvoices)
			r.Put("/{id}", h.UpdateInvoice)
			r.Delete("/{id}", h.DeleteInvoice)
		})
	})

	return r
}
