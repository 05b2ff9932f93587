package ports

import (
	"context"

	"github.com/promptrelay/chat-api/internal/domain"
)

// LLMClient generates a completion for a prompt. Generate is expected to be
// slow and may fail transiently; callers bound it with a context deadline
// and guard it with the circuit breaker.
type LLMClient interface {
	Generate(ctx context.Context, prompt, traceID string) (domain.Generation, error)
	HealthCheck(ctx context.Context) bool
}
