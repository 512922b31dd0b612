package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, traceContext, g.metrics.middleware)

	// Public.
	r.Get("/health", g.handleHealth())
	r.Handle("/metrics", promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.audit, g.failures))
		}
		r.Use(middleware.RequestSize(g.config.MaxBodyBytes))

		r.Get("/status", g.handleStatus())
		r.Route("/api", func(r chi.Router) {
			r.Post("/generations", g.handleGenerate())
			r.Get("/generations/{id}", g.handleGetGeneration())
			r.Post("/generations/{id}/feedback", g.handleFeedback())
			r.Get("/users/{userID}/usage", g.handleUsage())
		})
	})
	return r
}

// traceContext continues a trace started by the caller.
func traceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
