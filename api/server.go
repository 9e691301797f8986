/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the check-in frontend

ROUTE GROUPS:
  /api/auth/*     Accounts (register/login public, me authenticated)
  /api/checkin/*  Token resolution (public) and check-in (authenticated)
  /api/admin/*    Session/occurrence management and reports (admin only)
  /               Health check

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: JWT middleware
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
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	authenticated := Authenticator(h.JWTSecret)

	r.Get("/", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Account routes
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.With(authenticated).Get("/me", h.Me)
		})

		// Check-in routes
		r.Route("/checkin", func(r chi.Router) {
			// Token resolution is public: the QR landing page loads it
			// before the participant authenticates.
			r.Get("/{token}", h.ResolveToken)

			r.Group(func(r chi.Router) {
				r.Use(authenticated)
				r.Post("/", h.CheckIn)
				r.Get("/attendance/{occurrenceID}", h.AttendanceByOccurrence)
			})
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticated)
			r.Use(RequireAdmin)

			r.Get("/dashboard", h.Dashboard)

			r.Post("/sessions", h.CreateSession)
			r.Get("/sessions", h.ListSessions)
			r.Put("/sessions/{id}/policy", h.UpdatePolicy)

			r.Post("/occurrences", h.CreateOccurrence)
			r.Get("/occurrences", h.ListOccurrences)

			r.Get("/attendance", h.ListAttendance)
			r.Get("/penalties", h.ListPenalties)
			r.Get("/penalties/summary", h.PenaltySummary)
		})
	})

	return r
}
