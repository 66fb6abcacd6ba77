/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/members/*    Member management, statements, balances
  /api/reports/*    Monthly report lifecycle and entry validation
  /api/summary/*    Annual summary and member distribution
  /api/totals       Cumulative totals snapshot
  /api/admin/*      Audit and reset

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
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

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.CreateMember)
			r.Delete("/{id}", h.DeleteMember)
			r.Get("/{id}/statement", h.GetMemberStatement)
			r.Get("/{id}/balance", h.GetMemberBalance)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", h.ListReports)
			r.Post("/", h.CreateReport)
			r.Get("/{id}", h.GetReport)
			r.Put("/{id}", h.UpdateReport)
			r.Delete("/{id}", h.DeleteReport)
			r.Get("/year/{year}", h.ListReportsByYear)
			r.Post("/validate", h.ValidateEntry)
			r.Post("/validate-batch", h.ValidateBatch)
		})

		r.Route("/summary", func(r chi.Router) {
			r.Get("/annual/{year}", h.GetAnnualSummary)
			r.Get("/distribution/{year}", h.GetMemberDistribution)
		})

		r.Get("/totals", h.GetTotals)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/audit", h.AuditLedger)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
