// Package server exposes the on-demand HTTP trigger for the generation engine.
package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the API router with the middleware stack configured
func NewRouter(h *Handler, authToken string, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(authToken))
			r.Post("/runs", h.TriggerRun)
		})
	})

	return r
}

// bearerAuth rejects requests missing the configured bearer token.
// An empty token disables authentication (local development).
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				header := r.Header.Get("Authorization")
				got, ok := strings.CutPrefix(header, "Bearer ")
				if !ok || got != token {
					writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
