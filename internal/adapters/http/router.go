package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/promptrelay/chat-api/internal/application"
)

// Handler is the HTTP adapter entrypoint for chat use-cases.
// Keeping only application dependency here preserves clean adapter boundaries.
type Handler struct {
	service *application.Service
	auth    APIKeyAuth
}

// NewHandler constructs an HTTP handler bound to the application service.
func NewHandler(service *application.Service, auth APIKeyAuth) *Handler {
	return &Handler{service: service, auth: auth}
}

// NewRouter registers chat HTTP routes and the middleware stack.
// Centralizing routes here ensures consistent auth and error behavior across endpoints.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/chat/v1", func(r chi.Router) {
		r.Use(handler.apiKeyMiddleware)
		r.Post("/completions", handler.createCompletion)
		r.Get("/history", handler.history)
		r.Get("/interactions/{interaction_id}", handler.getInteraction)
		r.Get("/rate-limit", handler.rateLimitInfo)
		r.Delete("/rate-limit", handler.resetRateLimit)
		r.Delete("/cache", handler.invalidateCache)
		r.Get("/metrics", handler.metrics)
	})

	return r
}
