package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/promptrelay/chat-api/internal/domain"
	"github.com/promptrelay/chat-api/internal/ports"
)

// OpenAIClient calls any OpenAI-compatible chat completions endpoint.
// Pointing BaseURL at a local inference server works the same way.
type OpenAIClient struct {
	client openai.Client
	model  string
}

var _ ports.LLMClient = (*OpenAIClient)(nil)

func NewOpenAIClient(apiKey, baseURL, model string) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt, traceID string) (domain.Generation, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}, option.WithHeader("X-Trace-Id", traceID))
	if err != nil {
		return domain.Generation{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Generation{}, fmt.Errorf("chat completion: empty choices")
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return domain.Generation{
		Text:   resp.Choices[0].Message.Content,
		Model:  model,
		Tokens: int(resp.Usage.TotalTokens),
	}, nil
}

func (c *OpenAIClient) HealthCheck(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := c.client.Models.List(probeCtx)
	return err == nil
}
