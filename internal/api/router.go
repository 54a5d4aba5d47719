package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds all dependency checks of one health request.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Get("/device", s.handleGetDevice)
		r.Post("/commands/{name}", s.handleCommand)
		r.Put("/identity", s.handleSetIdentity)
		r.Post("/samples", s.handleSample)

		r.Get("/events", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status. A node that lost its
// broker or a dependency is degraded but still serving.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	connected := s.bus != nil && s.bus.IsConnected()
	if !connected {
		status = "degraded"
	}

	body := map[string]any{
		"version":        s.version,
		"mqtt_connected": connected,
	}
	if s.bus != nil {
		body["mqtt_subscriptions"] = s.bus.SubscriptionCount()
	}
	if len(s.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		components := make(map[string]string, len(s.checks))
		for name, c := range s.checks {
			if err := c.HealthCheck(ctx); err != nil {
				components[name] = err.Error()
				status = "degraded"
				continue
			}
			components[name] = "ok"
		}
		body["components"] = components
	}
	body["status"] = status
	writeJSON(w, http.StatusOK, body)
}
