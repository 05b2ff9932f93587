package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/promptrelay/chat-api/internal/domain"
	"github.com/promptrelay/chat-api/internal/ports"
)

// MockClient answers deterministically without outbound calls. Useful for
// local development and as a last-resort fallback provider.
type MockClient struct{}

var _ ports.LLMClient = (*MockClient)(nil)

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Generate(ctx context.Context, prompt, traceID string) (domain.Generation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Generation{}, err
	}
	text := fmt.Sprintf("Mock response to: %s", strings.TrimSpace(prompt))
	return domain.Generation{
		Text:   text,
		Model:  "mock",
		Tokens: len(strings.Fields(prompt)) + len(strings.Fields(text)),
	}, nil
}

func (c *MockClient) HealthCheck(ctx context.Context) bool { return true }
