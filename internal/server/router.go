package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// NewRouter assembles the HTTP surface: the chat endpoint behind a per-IP
// rate limit, the diagnostic read-only endpoints, and /metrics.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(recoverer(h.logger))
	r.Use(cors(h.cfg.Server.CORS.AllowedOrigins))

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(h.cfg.Server.RateLimit.RequestsPerMinute, time.Minute))
		r.Post("/query", h.handleQuery)
	})

	r.Get("/health", h.handleHealth)
	r.Get("/status", h.handleStatus)
	r.Get("/cache-stats", h.handleCacheStats)
	r.Get("/llm-status", h.handleLLMStatus)
	r.Get("/illustrations/search", h.handleIllustrationSearch)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	return r
}
