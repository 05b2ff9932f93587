package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/promptrelay/chat-api/internal/application"
	"github.com/promptrelay/chat-api/internal/domain"
)

type scriptedClient struct {
	errs  []error
	calls int
}

func (c *scriptedClient) Generate(context.Context, string, string) (domain.Generation, error) {
	c.calls++
	if c.calls <= len(c.errs) && c.errs[c.calls-1] != nil {
		return domain.Generation{}, c.errs[c.calls-1]
	}
	return domain.Generation{Text: "ok", Model: "scripted", Tokens: 1}, nil
}

func (c *scriptedClient) HealthCheck(context.Context) bool { return true }

func fastPolicy(maxAttempts int) application.RetryPolicy {
	p := application.NewRetryPolicy(maxAttempts, time.Millisecond, time.Millisecond)
	return p
}

func TestFailoverRetriesPrimaryBeforeFallback(t *testing.T) {
	t.Parallel()

	primary := &scriptedClient{errs: []error{errors.New("transient"), nil}}
	fallback := &scriptedClient{}
	chain := NewFailover(fastPolicy(3)).Add("primary", primary).Add("fallback", fallback)

	gen, err := chain.Generate(context.Background(), "hi", "t-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.Text != "ok" {
		t.Fatalf("text = %q", gen.Text)
	}
	if primary.calls != 2 {
		t.Fatalf("primary calls = %d, want retry on the same provider first", primary.calls)
	}
	if fallback.calls != 0 {
		t.Fatal("fallback called although primary recovered")
	}
}

func TestFailoverMovesToNextProvider(t *testing.T) {
	t.Parallel()

	primary := &scriptedClient{errs: []error{errors.New("down"), errors.New("down")}}
	fallback := &scriptedClient{}
	chain := NewFailover(fastPolicy(2)).Add("primary", primary).Add("fallback", fallback)

	gen, err := chain.Generate(context.Background(), "hi", "t-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.Model != "scripted" || fallback.calls != 1 {
		t.Fatalf("gen = %+v, fallback calls = %d", gen, fallback.calls)
	}
}

func TestFailoverSurfacesLastError(t *testing.T) {
	t.Parallel()

	last := errors.New("fallback also down")
	primary := &scriptedClient{errs: []error{errors.New("down")}}
	fallback := &scriptedClient{errs: []error{last}}
	chain := NewFailover(fastPolicy(1)).Add("primary", primary).Add("fallback", fallback)

	_, err := chain.Generate(context.Background(), "hi", "t-1")
	if !errors.Is(err, domain.ErrLLMProvider) {
		t.Fatalf("err = %v, want provider error", err)
	}
	if !strings.Contains(err.Error(), last.Error()) {
		t.Fatalf("err = %v, want the final provider's failure preserved", err)
	}
	if !errors.Is(err, last) {
		t.Fatalf("err = %v, want the original cause reachable via errors.Is", err)
	}
}

func TestMockClientEchoesPrompt(t *testing.T) {
	t.Parallel()

	gen, err := NewMockClient().Generate(context.Background(), "  hello world ", "t-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.Model != "mock" {
		t.Fatalf("model = %q", gen.Model)
	}
	if !strings.Contains(gen.Text, "hello world") {
		t.Fatalf("text = %q", gen.Text)
	}
	if gen.Tokens == 0 {
		t.Fatal("tokens not counted")
	}
}

func TestNewProviderRejectsUnknown(t *testing.T) {
	t.Parallel()

	if _, err := NewProvider(ProviderConfig{Provider: "carrier-pigeon"}); err == nil {
		t.Fatal("unknown provider accepted")
	}
}
