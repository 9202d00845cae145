package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		r.Get("/thermostat", s.withAuth(s.handleGetDefaultThermostat))

		// GET resolves the path segment as a slug; PATCH and the audit
		// listing resolve it as a thermostat id.
		r.Route("/thermostats/{ref}", func(r chi.Router) {
			// Slug lookup is unauthenticated so wall panels on the local
			// network can render a thermostat without credentials.
			r.Get("/", s.handleGetThermostatBySlug)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Patch("/", s.handlePatchThermostat)
				r.Get("/audit", s.handleListAudit)
			})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication; the ticket then authenticates
			// the WebSocket upgrade without exposing the JWT in the URL.
			r.Post("/auth/ws-ticket", s.handleWSTicket)
		})

		// WebSocket upgrade cannot carry an Authorization header from a
		// browser; the single-use ticket authenticates it instead.
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// withAuth wraps a single handler func with the auth middleware.
func (s *Server) withAuth(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.authMiddleware(h).ServeHTTP(w, r)
	}
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
