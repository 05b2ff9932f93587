package application

import (
	"time"

	"github.com/google/uuid"
)

// Config holds the orchestration policy knobs supplied at construction.
type Config struct {
	// LLMTimeout bounds one end-to-end generation, retries included.
	LLMTimeout time.Duration
	// DefaultHistoryLimit applies when a history query omits the limit.
	DefaultHistoryLimit int
	// MaxHistoryLimit caps history queries.
	MaxHistoryLimit int
}

// ProcessRequest is one inference request entering the orchestrator.
type ProcessRequest struct {
	UserID     string
	Prompt     string
	APIKeyHash string
	TraceID    string
}

// ProcessResult is the orchestrator's answer for a processed prompt.
type ProcessResult struct {
	InteractionID uuid.UUID `json:"interaction_id"`
	Response      string    `json:"response"`
	Model         string    `json:"model"`
	Cached        bool      `json:"cached"`
	LatencyMs     int64     `json:"latency_ms"`
	Timestamp     time.Time `json:"timestamp"`
}
