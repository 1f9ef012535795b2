/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /ping                 Liveness
  /api/users/*          Registration, balances, reconciliation, payments
  /api/transactions     Coffee debit recording
  /api/leaderboard      Shot totals per window
  /api/userstats/*      Per-user summaries
  /api/timeseries       Filterable log projection

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

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	// Liveness: the coffee machine pings this before it trusts the server.
	r.Get("/ping", h.Ping)
	r.Post("/ping", h.Ping)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{crsid}", h.GetUser)
			r.Get("/{crsid}/balance", h.GetBalance)
			r.Get("/{crsid}/check", h.CheckUser)
			r.Post("/{crsid}/pay", h.Pay)
		})

		r.Post("/transactions", h.RecordTransaction)
		r.Get("/leaderboard", h.Leaderboard)
		r.Get("/userstats/{crsid}", h.UserStats)
		r.Get("/timeseries", h.TimeSeries)
	})

	return r
}
