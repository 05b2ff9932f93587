package http

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/promptrelay/chat-api/internal/domain"
)

type ctxKey string

const (
	ctxKeyRequestID  ctxKey = "request_id"
	ctxKeyAPIKeyHash ctxKey = "api_key_hash"
)

// APIKeyAuth validates the X-API-Key header against a static key set.
// An empty Keys set with Require=false disables auth entirely.
type APIKeyAuth struct {
	Keys    []string
	Require bool
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				httpLogger().ErrorContext(r.Context(), "panic recovered",
					"operation", "http_panic_recovery",
					"outcome", "failure",
					"request_id", requestIDFromContext(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			if h.auth.Require {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing api key")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		valid := false
		for _, known := range h.auth.Keys {
			if subtle.ConstantTimeCompare([]byte(known), []byte(key)) == 1 {
				valid = true
			}
		}
		if !valid {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid api key")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyAPIKeyHash, hashAPIKey(key))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// hashAPIKey derives the short digest used in rate-limit keys so raw keys
// never reach Redis or the logs.
func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(payload)
	r.bytes += n
	return n, err
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		statusCode := recorder.statusCode
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		outcome := "success"
		if statusCode >= 400 {
			outcome = "failure"
		}

		fields := []any{
			"operation", "http_request",
			"outcome", outcome,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", statusCode,
			"bytes", recorder.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFromContext(r.Context()),
		}
		switch {
		case statusCode >= 500:
			httpLogger().ErrorContext(r.Context(), "http request completed", fields...)
		case statusCode >= 400:
			httpLogger().WarnContext(r.Context(), "http request completed", fields...)
		default:
			httpLogger().InfoContext(r.Context(), "http request completed", fields...)
		}
	})
}

func requestIDFromContext(ctx context.Context) string {
	v := ctx.Value(ctxKeyRequestID)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func apiKeyHashFromContext(ctx context.Context) string {
	v := ctx.Value(ctxKeyAPIKeyHash)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// writeDomainError maps domain errors onto HTTP responses. Throttling and
// open-circuit errors carry a Retry-After so well-behaved clients back off.
func writeDomainError(w http.ResponseWriter, err error) {
	var rateErr *domain.RateLimitError
	if errors.As(err, &rateErr) {
		setRetryAfter(w, rateErr.Window)
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
		return
	}
	var circuitErr *domain.CircuitOpenError
	if errors.As(err, &circuitErr) {
		setRetryAfter(w, circuitErr.RetryAfter)
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "llm temporarily unavailable")
		return
	}
	status, code, msg := mapDomainError(err)
	writeError(w, status, code, msg)
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	seconds := int64(d.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
}

func mapDomainError(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED", "too many requests"
	case errors.Is(err, domain.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "llm temporarily unavailable"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrLLMProvider):
		return http.StatusBadGateway, "UPSTREAM_ERROR", "llm provider error"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}
