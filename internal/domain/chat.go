package domain

import (
	"time"

	"github.com/google/uuid"
)

// Interaction is the canonical audit record for one chat request.
// It is created before the LLM call and updated in place afterwards, so a
// row with a nil Response and a non-empty Error tells the full failure story.
type Interaction struct {
	InteractionID uuid.UUID `json:"interaction_id"`
	UserID        string    `json:"user_id"`
	Prompt        string    `json:"prompt"`
	Response      *string   `json:"response,omitempty"`
	Model         *string   `json:"model,omitempty"`
	Tokens        *int      `json:"tokens,omitempty"`
	LatencyMs     *int64    `json:"latency_ms,omitempty"`
	Error         *string   `json:"error,omitempty"`
	TraceID       string    `json:"trace_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// InteractionUpdate carries the post-call mutation for an Interaction.
// Nil fields are left untouched.
type InteractionUpdate struct {
	Response  *string
	Model     *string
	Tokens    *int
	LatencyMs *int64
	Error     *string
}

// Generation is one completed LLM call.
type Generation struct {
	Text   string
	Model  string
	Tokens int
}

// CircuitState enumerates the breaker's three states.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CacheHealth reports per-backend cache availability.
type CacheHealth struct {
	Primary  bool `json:"primary"`
	Fallback bool `json:"fallback"`
}

// Health is the aggregate readiness report for the service.
type Health struct {
	Database       bool         `json:"database"`
	LLM            bool         `json:"llm"`
	Cache          CacheHealth  `json:"cache"`
	CircuitBreaker CircuitState `json:"circuit_breaker"`
}

// MetricsSnapshot is a point-in-time read of the request counters.
// Counters are monotonically increasing for the process lifetime.
type MetricsSnapshot struct {
	TotalRequests  int64 `json:"total_requests"`
	TotalErrors    int64 `json:"total_errors"`
	TotalCacheHits int64 `json:"total_cache_hits"`
	TotalLatencyMs int64 `json:"total_latency_ms"`
}
