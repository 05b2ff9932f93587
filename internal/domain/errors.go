package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidInput flags request-level validation failures.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized covers missing or rejected API keys.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited signals the sliding-window quota is exhausted.
	// The request is stopped before any LLM spend.
	ErrRateLimited = errors.New("rate limited")
	// ErrCircuitOpen signals the breaker is rejecting calls during cooldown.
	// The protected operation is never invoked while this is returned.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrLLMProvider is returned once generation retries are exhausted.
	ErrLLMProvider = errors.New("llm provider failed")
	// ErrPersistence covers interaction store failures. A pre-call create
	// failure aborts processing before incurring LLM cost.
	ErrPersistence = errors.New("persistence failed")
)

// RateLimitError carries the quota context needed for a Retry-After hint.
type RateLimitError struct {
	Limit  int
	Window time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per %s", e.Limit, e.Window)
}

// Is lets errors.Is(err, ErrRateLimited) match without unwrapping chains.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// CircuitOpenError reports how long callers should wait before retrying.
type CircuitOpenError struct {
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open, retry after %s", e.RetryAfter.Round(time.Second))
}

// Is lets errors.Is(err, ErrCircuitOpen) match without unwrapping chains.
func (e *CircuitOpenError) Is(target error) bool { return target == ErrCircuitOpen }
