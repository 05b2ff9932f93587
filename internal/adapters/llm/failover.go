package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/promptrelay/chat-api/internal/application"
	"github.com/promptrelay/chat-api/internal/domain"
	"github.com/promptrelay/chat-api/internal/ports"
)

// ProviderConfig selects and configures one upstream provider.
type ProviderConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewProvider builds a single client from its config.
func NewProvider(cfg ProviderConfig) (ports.LLMClient, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Failover tries each provider in order, retrying transient failures per
// provider before moving to the next. The last provider's final error is
// what callers see.
type Failover struct {
	providers []namedProvider
	retry     application.RetryPolicy
}

type namedProvider struct {
	name   string
	client ports.LLMClient
}

var _ ports.LLMClient = (*Failover)(nil)

func NewFailover(retry application.RetryPolicy) *Failover {
	return &Failover{retry: retry}
}

func (f *Failover) Add(name string, client ports.LLMClient) *Failover {
	f.providers = append(f.providers, namedProvider{name: name, client: client})
	return f
}

func (f *Failover) Generate(ctx context.Context, prompt, traceID string) (domain.Generation, error) {
	if len(f.providers) == 0 {
		return domain.Generation{}, fmt.Errorf("%w: no providers configured", domain.ErrLLMProvider)
	}

	var lastErr error
	for _, p := range f.providers {
		var gen domain.Generation
		err := f.retry.Execute(ctx, func(callCtx context.Context) error {
			result, genErr := p.client.Generate(callCtx, prompt, traceID)
			if genErr != nil {
				return genErr
			}
			gen = result
			return nil
		})
		if err == nil {
			return gen, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		slog.Default().WarnContext(ctx, "llm provider failed, trying next",
			"module", "llm",
			"layer", "adapter",
			"operation", "generate",
			"outcome", "failover",
			"provider", p.name,
			"trace_id", traceID,
			"error", err.Error(),
		)
	}
	return domain.Generation{}, fmt.Errorf("%w: %w", domain.ErrLLMProvider, lastErr)
}

// HealthCheck reports healthy when any provider in the chain is reachable.
func (f *Failover) HealthCheck(ctx context.Context) bool {
	for _, p := range f.providers {
		if p.client.HealthCheck(ctx) {
			return true
		}
	}
	return false
}
