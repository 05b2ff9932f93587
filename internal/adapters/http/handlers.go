package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/promptrelay/chat-api/internal/application"
)

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	health := h.service.CheckHealth(r.Context())
	status := http.StatusOK
	if !health.Database {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": statusLabel(status == http.StatusOK),
		"data":   health,
	})
}

func (h *Handler) createCompletion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Prompt string `json:"prompt"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	res, err := h.service.ProcessPrompt(r.Context(), application.ProcessRequest{
		UserID:     req.UserID,
		Prompt:     req.Prompt,
		APIKeyHash: apiKeyHashFromContext(r.Context()),
		TraceID:    requestIDFromContext(r.Context()),
	})
	if err != nil {
		logHTTPOperationError(r.Context(), "create_completion", err)
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	limit := parseIntDefault(r.URL.Query().Get("limit"), 0)

	items, err := h.service.GetUserHistory(r.Context(), userID, limit)
	if err != nil {
		logHTTPOperationError(r.Context(), "get_history", err)
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"interactions": items})
}

func (h *Handler) getInteraction(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetInteraction(r.Context(), chi.URLParam(r, "interaction_id"))
	if err != nil {
		logHTTPOperationError(r.Context(), "get_interaction", err)
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, item)
}

func (h *Handler) rateLimitInfo(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "user_id is required")
		return
	}
	info := h.service.RateLimitInfo(r.Context(), userID, apiKeyHashFromContext(r.Context()))
	writeSuccess(w, http.StatusOK, info)
}

func (h *Handler) resetRateLimit(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "user_id is required")
		return
	}
	if err := h.service.ResetRateLimit(r.Context(), userID, apiKeyHashFromContext(r.Context())); err != nil {
		logHTTPOperationError(r.Context(), "reset_rate_limit", err)
		writeDomainError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "rate limit reset")
}

func (h *Handler) invalidateCache(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if err := h.service.InvalidateCached(r.Context(), req.Prompt); err != nil {
		logHTTPOperationError(r.Context(), "invalidate_cache", err)
		writeDomainError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "cache entry invalidated")
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.service.MetricsSnapshot())
}

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

func parseIntDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
