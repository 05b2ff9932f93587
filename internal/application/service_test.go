package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/promptrelay/chat-api/internal/domain"
)

type serviceFixture struct {
	svc     *Service
	repo    *fakeInteractionRepo
	llm     *fakeLLM
	limiter *fakeRateLimitBackend
	cache   *fakeCacheBackend
	metrics *SimpleMetricsCollector
}

func newServiceFixture(t *testing.T, rateLimit int) *serviceFixture {
	t.Helper()
	repo := newFakeInteractionRepo()
	llm := newFakeLLM("the answer")
	limiter := newFakeRateLimitBackend()
	cache := newFakeCacheBackend()
	metrics := NewSimpleMetricsCollector()

	svc := NewService(Dependencies{
		Config: Config{
			LLMTimeout:          time.Second,
			DefaultHistoryLimit: 10,
			MaxHistoryLimit:     100,
		},
		Interactions: repo,
		LLM:          llm,
		Cache:        NewCacheService(cache, nil, time.Hour, true),
		RateLimiter:  NewRateLimiter(limiter, nil, rateLimit, time.Minute),
		Breaker:      NewCircuitBreaker(5, time.Minute),
		Metrics:      metrics,
	})
	return &serviceFixture{svc: svc, repo: repo, llm: llm, limiter: limiter, cache: cache, metrics: metrics}
}

func TestProcessPromptColdCacheCallsLLM(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, 10)
	res, err := f.svc.ProcessPrompt(context.Background(), ProcessRequest{
		UserID: "alice", Prompt: "What is Go?", TraceID: "t-1",
	})
	if err != nil {
		t.Fatalf("ProcessPrompt: %v", err)
	}
	if res.Cached {
		t.Fatal("cold cache reported a hit")
	}
	if res.Response != "the answer" || res.Model != "test-model" {
		t.Fatalf("result = %+v", res)
	}
	if f.llm.calls != 1 {
		t.Fatalf("llm calls = %d, want 1", f.llm.calls)
	}

	row, err := f.repo.GetByID(context.Background(), res.InteractionID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.Response == nil || *row.Response != "the answer" {
		t.Fatalf("stored response = %v", row.Response)
	}
	if row.Tokens == nil || *row.Tokens != 7 {
		t.Fatalf("stored tokens = %v", row.Tokens)
	}
}

func TestProcessPromptCacheHitSkipsLLMAndRateLimiter(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, 10)
	ctx := context.Background()

	if _, err := f.svc.ProcessPrompt(ctx, ProcessRequest{UserID: "alice", Prompt: "What is Go?"}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	checksAfterFirst := f.limiter.checks

	// A case and whitespace variant of the same prompt must hit the cache.
	res, err := f.svc.ProcessPrompt(ctx, ProcessRequest{UserID: "bob", Prompt: "  WHAT IS GO?\n"})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !res.Cached {
		t.Fatal("expected a cache hit")
	}
	if res.Model != "cache" {
		t.Fatalf("model = %q, want cache", res.Model)
	}
	if res.Response != "the answer" {
		t.Fatalf("response = %q", res.Response)
	}
	if f.llm.calls != 1 {
		t.Fatalf("llm calls = %d, want 1", f.llm.calls)
	}
	if f.limiter.checks != checksAfterFirst {
		t.Fatal("cache hit consumed rate-limit quota")
	}

	snap := f.metrics.Snapshot()
	if snap.TotalRequests != 2 || snap.TotalCacheHits != 1 || snap.TotalErrors != 0 {
		t.Fatalf("metrics = %+v", snap)
	}
}

func TestProcessPromptCacheHitStillRecordsInteraction(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, 10)
	ctx := context.Background()

	_, _ = f.svc.ProcessPrompt(ctx, ProcessRequest{UserID: "alice", Prompt: "hello"})
	res, err := f.svc.ProcessPrompt(ctx, ProcessRequest{UserID: "alice", Prompt: "hello"})
	if err != nil {
		t.Fatalf("cached call: %v", err)
	}
	row, err := f.repo.GetByID(ctx, res.InteractionID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.Model == nil || *row.Model != "cache" {
		t.Fatalf("stored model = %v, want cache", row.Model)
	}
}

func TestProcessPromptRejectsWhenRateLimited(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, 1)
	ctx := context.Background()

	if _, err := f.svc.ProcessPrompt(ctx, ProcessRequest{UserID: "alice", Prompt: "one"}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := f.svc.ProcessPrompt(ctx, ProcessRequest{UserID: "alice", Prompt: "two"})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want rate-limited", err)
	}
	if f.llm.calls != 1 {
		t.Fatalf("llm calls = %d, want 1", f.llm.calls)
	}
	if f.repo.creates != 1 {
		t.Fatalf("interaction creates = %d, rejected request must not persist", f.repo.creates)
	}

	snap := f.metrics.Snapshot()
	if snap.TotalErrors != 1 {
		t.Fatalf("TotalErrors = %d, want 1", snap.TotalErrors)
	}
}

func TestProcessPromptLLMFailureRecordsError(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, 10)
	f.llm.err = errors.New("upstream exploded")
	ctx := context.Background()

	_, err := f.svc.ProcessPrompt(ctx, ProcessRequest{UserID: "alice", Prompt: "boom"})
	if err == nil || !errors.Is(err, f.llm.err) {
		t.Fatalf("err = %v, want original llm error", err)
	}

	if f.repo.creates != 1 || f.repo.updates != 1 {
		t.Fatalf("repo creates/updates = %d/%d", f.repo.creates, f.repo.updates)
	}
	for _, row := range f.repo.rows {
		if row.Error == nil || *row.Error == "" {
			t.Fatal("interaction error text not recorded")
		}
		if row.Response != nil {
			t.Fatal("failed call stored a response")
		}
	}
	if f.cache.sets != 0 {
		t.Fatal("failed call was cached")
	}
}

func TestProcessPromptCircuitOpenSurfacesTypedError(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, 100)
	f.llm.err = errors.New("upstream exploded")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = f.svc.ProcessPrompt(ctx, ProcessRequest{UserID: "alice", Prompt: "boom"})
	}
	llmCalls := f.llm.calls

	_, err := f.svc.ProcessPrompt(ctx, ProcessRequest{UserID: "alice", Prompt: "boom"})
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("err = %v, want circuit-open", err)
	}
	var openErr *domain.CircuitOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("err = %T, want *domain.CircuitOpenError", err)
	}
	if openErr.RetryAfter <= 0 {
		t.Fatalf("RetryAfter = %v, want positive cooldown", openErr.RetryAfter)
	}
	if f.llm.calls != llmCalls {
		t.Fatal("llm called while breaker open")
	}
}

func TestProcessPromptValidatesInput(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, 10)
	ctx := context.Background()

	if _, err := f.svc.ProcessPrompt(ctx, ProcessRequest{UserID: "", Prompt: "hi"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("missing user: err = %v", err)
	}
	if _, err := f.svc.ProcessPrompt(ctx, ProcessRequest{UserID: "alice", Prompt: "   "}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("blank prompt: err = %v", err)
	}
	if f.llm.calls != 0 {
		t.Fatal("invalid input reached the llm")
	}
}

func TestProcessPromptCreateFailureWrapsPersistence(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, 10)
	f.repo.createErr = errors.New("pg down")

	_, err := f.svc.ProcessPrompt(context.Background(), ProcessRequest{UserID: "alice", Prompt: "hi"})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("err = %v, want persistence error", err)
	}
	if f.llm.calls != 0 {
		t.Fatal("llm called despite create failure")
	}
}

func TestGetUserHistoryClampsLimit(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, 100)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		_, _ = f.svc.ProcessPrompt(ctx, ProcessRequest{UserID: "alice", Prompt: "q" + string(rune('a'+i))})
	}

	items, err := f.svc.GetUserHistory(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("GetUserHistory: %v", err)
	}
	if len(items) != 10 {
		t.Fatalf("default limit returned %d rows, want 10", len(items))
	}

	items, err = f.svc.GetUserHistory(ctx, "alice", 10000)
	if err != nil {
		t.Fatalf("GetUserHistory: %v", err)
	}
	if len(items) > 100 {
		t.Fatalf("max limit returned %d rows", len(items))
	}

	if _, err := f.svc.GetUserHistory(ctx, " ", 5); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("blank user: err = %v", err)
	}
}

func TestCheckHealthAggregates(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, 10)
	f.repo.healthErr = errors.New("pg down")
	f.llm.healthy = false

	health := f.svc.CheckHealth(context.Background())
	if health.Database {
		t.Fatal("database reported healthy")
	}
	if health.LLM {
		t.Fatal("llm reported healthy")
	}
	if !health.Cache.Primary {
		t.Fatal("cache primary reported unhealthy")
	}
	if health.CircuitBreaker != domain.CircuitClosed {
		t.Fatalf("breaker state = %s", health.CircuitBreaker)
	}
}

func TestMetricsSnapshotAccumulatesLatency(t *testing.T) {
	t.Parallel()

	c := NewSimpleMetricsCollector()
	c.RecordRequest(portsMetric(12, true, true))
	c.RecordRequest(portsMetric(30, false, false))

	snap := c.Snapshot()
	if snap.TotalRequests != 2 || snap.TotalCacheHits != 1 || snap.TotalErrors != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.TotalLatencyMs != 42 {
		t.Fatalf("TotalLatencyMs = %d, want 42", snap.TotalLatencyMs)
	}
}
