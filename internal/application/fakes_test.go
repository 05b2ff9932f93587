package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/promptrelay/chat-api/internal/domain"
	"github.com/promptrelay/chat-api/internal/ports"
)

type fakeCacheBackend struct {
	mu      sync.Mutex
	data    map[string]string
	getErr  error
	setErr  error
	gets    int
	sets    int
	healthy bool
}

func newFakeCacheBackend() *fakeCacheBackend {
	return &fakeCacheBackend{data: make(map[string]string), healthy: true}
}

func (f *fakeCacheBackend) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return "", false, f.getErr
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeCacheBackend) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value
	return nil
}

func (f *fakeCacheBackend) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeCacheBackend) HealthCheck(context.Context) bool { return f.healthy }

type fakeRateLimitBackend struct {
	mu        sync.Mutex
	counts    map[string]int
	err       error
	remaining int
	checks    int
	resets    int
}

func newFakeRateLimitBackend() *fakeRateLimitBackend {
	return &fakeRateLimitBackend{counts: make(map[string]int)}
}

func (f *fakeRateLimitBackend) CheckAndIncrement(_ context.Context, key string, limit int, _ time.Duration) (bool, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.err != nil {
		return false, 0, f.err
	}
	if f.counts[key] >= limit {
		return false, f.counts[key], nil
	}
	f.counts[key]++
	return true, f.counts[key], nil
}

func (f *fakeRateLimitBackend) GetRemaining(_ context.Context, key string, limit int, _ time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	r := limit - f.counts[key]
	if r < 0 {
		r = 0
	}
	return r, nil
}

func (f *fakeRateLimitBackend) Reset(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	if f.err != nil {
		return f.err
	}
	delete(f.counts, key)
	return nil
}

type fakeInteractionRepo struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]domain.Interaction
	createErr error
	updateErr error
	healthErr error
	creates   int
	updates   int
}

func newFakeInteractionRepo() *fakeInteractionRepo {
	return &fakeInteractionRepo{rows: make(map[uuid.UUID]domain.Interaction)}
}

func (f *fakeInteractionRepo) Create(_ context.Context, params ports.CreateInteractionParams) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return uuid.Nil, f.createErr
	}
	id := uuid.New()
	f.rows[id] = domain.Interaction{
		InteractionID: id,
		UserID:        params.UserID,
		Prompt:        params.Prompt,
		TraceID:       params.TraceID,
	}
	return id, nil
}

func (f *fakeInteractionRepo) Update(_ context.Context, id uuid.UUID, update domain.InteractionUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return f.updateErr
	}
	row, ok := f.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if update.Response != nil {
		row.Response = update.Response
	}
	if update.Model != nil {
		row.Model = update.Model
	}
	if update.Tokens != nil {
		row.Tokens = update.Tokens
	}
	if update.LatencyMs != nil {
		row.LatencyMs = update.LatencyMs
	}
	if update.Error != nil {
		row.Error = update.Error
	}
	f.rows[id] = row
	return nil
}

func (f *fakeInteractionRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Interaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return domain.Interaction{}, domain.ErrNotFound
	}
	return row, nil
}

func (f *fakeInteractionRepo) ListByUser(_ context.Context, userID string, limit int) ([]domain.Interaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Interaction, 0)
	for _, row := range f.rows {
		if row.UserID == userID && len(out) < limit {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeInteractionRepo) HealthCheck(context.Context) error { return f.healthErr }

type fakeLLM struct {
	mu      sync.Mutex
	text    string
	model   string
	tokens  int
	err     error
	calls   int
	healthy bool
}

func newFakeLLM(text string) *fakeLLM {
	return &fakeLLM{text: text, model: "test-model", tokens: 7, healthy: true}
}

func (f *fakeLLM) Generate(_ context.Context, prompt, _ string) (domain.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.Generation{}, f.err
	}
	return domain.Generation{Text: f.text, Model: f.model, Tokens: f.tokens}, nil
}

func (f *fakeLLM) HealthCheck(context.Context) bool { return f.healthy }

var errBackendDown = errors.New("backend down")

func portsMetric(latencyMs int64, cached, success bool) ports.RequestMetric {
	return ports.RequestMetric{
		UserID:    "alice",
		Model:     "test-model",
		LatencyMs: latencyMs,
		Cached:    cached,
		Success:   success,
	}
}
