package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/promptrelay/chat-api/internal/domain"
	"github.com/promptrelay/chat-api/internal/ports"
)

// cachedModel labels interactions answered from cache.
const cachedModel = "cache"

// Service orchestrates one inference request across cache, rate limiter,
// circuit breaker, LLM client and interaction store. All collaborators are
// constructor-injected; the service owns no hidden global state.
type Service struct {
	cfg     Config
	repo    ports.InteractionRepository
	llm     ports.LLMClient
	cache   *CacheService
	limiter *RateLimiter
	breaker *CircuitBreaker
	metrics ports.MetricsCollector
	nowFn   func() time.Time
}

// Dependencies bundles the collaborators for NewService.
type Dependencies struct {
	Config       Config
	Interactions ports.InteractionRepository
	LLM          ports.LLMClient
	Cache        *CacheService
	RateLimiter  *RateLimiter
	Breaker      *CircuitBreaker
	Metrics      ports.MetricsCollector
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 60 * time.Second
	}
	if cfg.DefaultHistoryLimit <= 0 {
		cfg.DefaultHistoryLimit = 10
	}
	if cfg.MaxHistoryLimit <= 0 {
		cfg.MaxHistoryLimit = 100
	}
	return &Service{
		cfg:     cfg,
		repo:    deps.Interactions,
		llm:     deps.LLM,
		cache:   deps.Cache,
		limiter: deps.RateLimiter,
		breaker: deps.Breaker,
		metrics: deps.Metrics,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// ProcessPrompt runs the full pipeline: cache lookup, rate-limit check,
// circuit-broken LLM call, persistence and cache population. A cache hit
// answers immediately and does not consume rate-limit quota; cached answers
// are free, so charging them would only punish repeat questions.
func (s *Service) ProcessPrompt(ctx context.Context, req ProcessRequest) (ProcessResult, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return ProcessResult{}, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return ProcessResult{}, fmt.Errorf("%w: prompt is required", domain.ErrInvalidInput)
	}

	start := s.nowFn()

	if cached, hit := s.cache.GetResponse(ctx, req.Prompt); hit {
		return s.respondFromCache(ctx, req, cached, start)
	}

	if err := s.limiter.Check(ctx, req.UserID, req.APIKeyHash); err != nil {
		s.recordOutcome(req.UserID, "error", start, false, false)
		return ProcessResult{}, err
	}

	interactionID, err := s.repo.Create(ctx, ports.CreateInteractionParams{
		UserID:  req.UserID,
		Prompt:  req.Prompt,
		TraceID: req.TraceID,
	})
	if err != nil {
		s.recordOutcome(req.UserID, "error", start, false, false)
		return ProcessResult{}, fmt.Errorf("%w: create interaction: %v", domain.ErrPersistence, err)
	}

	llmCtx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	var gen domain.Generation
	err = s.breaker.Call(llmCtx, func(callCtx context.Context) error {
		result, genErr := s.llm.Generate(callCtx, req.Prompt, req.TraceID)
		if genErr != nil {
			return genErr
		}
		gen = result
		return nil
	})
	if err != nil {
		errText := err.Error()
		if updErr := s.repo.Update(ctx, interactionID, domain.InteractionUpdate{Error: &errText}); updErr != nil {
			slog.Default().ErrorContext(ctx, "interaction error update failed",
				"module", "orchestrator",
				"layer", "application",
				"operation", "update_interaction",
				"outcome", "failure",
				"interaction_id", interactionID.String(),
				"trace_id", req.TraceID,
				"error", updErr.Error(),
			)
		}
		s.recordOutcome(req.UserID, "error", start, false, false)
		slog.Default().ErrorContext(ctx, "prompt processing failed",
			"module", "orchestrator",
			"layer", "application",
			"operation", "process_prompt",
			"outcome", "failure",
			"interaction_id", interactionID.String(),
			"trace_id", req.TraceID,
			"error", err.Error(),
		)
		return ProcessResult{}, err
	}

	latencyMs := s.millisSince(start)
	updErr := s.repo.Update(ctx, interactionID, domain.InteractionUpdate{
		Response:  &gen.Text,
		Model:     &gen.Model,
		Tokens:    &gen.Tokens,
		LatencyMs: &latencyMs,
	})

	// The generation is cached even when the update fails so the answer is
	// not lost with the audit row.
	s.cache.SetResponse(ctx, req.Prompt, gen.Text)

	if updErr != nil {
		s.recordOutcome(req.UserID, gen.Model, start, false, false)
		return ProcessResult{}, fmt.Errorf("%w: update interaction: %v", domain.ErrPersistence, updErr)
	}

	s.recordOutcome(req.UserID, gen.Model, start, false, true)
	return ProcessResult{
		InteractionID: interactionID,
		Response:      gen.Text,
		Model:         gen.Model,
		Cached:        false,
		LatencyMs:     s.millisSince(start),
		Timestamp:     s.nowFn(),
	}, nil
}

// respondFromCache still creates an interaction row so cached answers remain
// auditable alongside generated ones.
func (s *Service) respondFromCache(ctx context.Context, req ProcessRequest, cached string, start time.Time) (ProcessResult, error) {
	interactionID, err := s.repo.Create(ctx, ports.CreateInteractionParams{
		UserID:  req.UserID,
		Prompt:  req.Prompt,
		TraceID: req.TraceID,
	})
	if err != nil {
		s.recordOutcome(req.UserID, cachedModel, start, true, false)
		return ProcessResult{}, fmt.Errorf("%w: create interaction: %v", domain.ErrPersistence, err)
	}

	latencyMs := s.millisSince(start)
	model := cachedModel
	if err := s.repo.Update(ctx, interactionID, domain.InteractionUpdate{
		Response:  &cached,
		Model:     &model,
		LatencyMs: &latencyMs,
	}); err != nil {
		s.recordOutcome(req.UserID, cachedModel, start, true, false)
		return ProcessResult{}, fmt.Errorf("%w: update interaction: %v", domain.ErrPersistence, err)
	}

	s.recordOutcome(req.UserID, cachedModel, start, true, true)
	return ProcessResult{
		InteractionID: interactionID,
		Response:      cached,
		Model:         cachedModel,
		Cached:        true,
		LatencyMs:     s.millisSince(start),
		Timestamp:     s.nowFn(),
	}, nil
}

// GetUserHistory lists the most recent interactions for a user.
func (s *Service) GetUserHistory(ctx context.Context, userID string, limit int) ([]domain.Interaction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = s.cfg.DefaultHistoryLimit
	}
	if limit > s.cfg.MaxHistoryLimit {
		limit = s.cfg.MaxHistoryLimit
	}
	return s.repo.ListByUser(ctx, userID, limit)
}

// GetInteraction fetches a single interaction row.
func (s *Service) GetInteraction(ctx context.Context, id string) (domain.Interaction, error) {
	parsed, err := parseInteractionID(id)
	if err != nil {
		return domain.Interaction{}, err
	}
	return s.repo.GetByID(ctx, parsed)
}

// RateLimitInfo reports the remaining quota for a user.
func (s *Service) RateLimitInfo(ctx context.Context, userID, apiKeyHash string) RateLimitInfo {
	return s.limiter.Info(ctx, userID, apiKeyHash)
}

// ResetRateLimit clears the window for a user. Administrative operation.
func (s *Service) ResetRateLimit(ctx context.Context, userID, apiKeyHash string) error {
	return s.limiter.Reset(ctx, userID, apiKeyHash)
}

// InvalidateCached drops the cached response for a prompt on every backend.
// Administrative operation.
func (s *Service) InvalidateCached(ctx context.Context, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("%w: prompt is required", domain.ErrInvalidInput)
	}
	s.cache.Invalidate(ctx, prompt)
	return nil
}

// MetricsSnapshot reads the request counters.
func (s *Service) MetricsSnapshot() domain.MetricsSnapshot {
	return s.metrics.Snapshot()
}

// CheckHealth probes every collaborator and reports the breaker state.
// Probe failures are reported, never raised.
func (s *Service) CheckHealth(ctx context.Context) domain.Health {
	health := domain.Health{CircuitBreaker: s.breaker.State()}

	if err := s.repo.HealthCheck(ctx); err == nil {
		health.Database = true
	} else {
		slog.Default().ErrorContext(ctx, "database health check failed",
			"module", "orchestrator",
			"layer", "application",
			"operation", "check_health",
			"outcome", "failure",
			"error", err.Error(),
		)
	}

	health.LLM = s.llm.HealthCheck(ctx)
	health.Cache = s.cache.HealthCheck(ctx)
	return health
}

func (s *Service) recordOutcome(userID, model string, start time.Time, cached, success bool) {
	s.metrics.RecordRequest(ports.RequestMetric{
		UserID:    userID,
		Model:     model,
		LatencyMs: s.millisSince(start),
		Cached:    cached,
		Success:   success,
	})
}

func (s *Service) millisSince(start time.Time) int64 {
	return s.nowFn().Sub(start).Milliseconds()
}

func parseInteractionID(raw string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed interaction id", domain.ErrInvalidInput)
	}
	return parsed, nil
}
