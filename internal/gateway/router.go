package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(g.traceMiddleware)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	r.Handle("/metrics", promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/watches", g.handleCreateWatch())
		r.Get("/watches/{id}", g.handleGetWatch())
	})

	// Live sample stream.
	r.Get("/ws/watches/{id}", g.handleStream())

	// Status requires auth when a token is configured.
	r.Group(func(r chi.Router) {
		if g.cfg.AuthToken != "" {
			r.Use(authMiddleware(g.cfg.AuthToken))
		}
		r.Get("/status", g.handleStatus())
	})

	return r
}

// traceMiddleware opens a span per request when a tracer provider is
// configured; with the default no-op provider it costs nothing.
func (g *Gateway) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := g.tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
