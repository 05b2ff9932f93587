package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/promptrelay/chat-api/internal/domain"
)

// CircuitBreaker guards a volatile downstream call with the classic
// closed/open/half-open state machine. State transitions are serialized
// under a mutex; the protected operation itself runs outside the lock so a
// slow call never blocks unrelated requests.
type CircuitBreaker struct {
	failureThreshold int
	recoveryTimeout  time.Duration

	mu            sync.Mutex
	state         domain.CircuitState
	failureCount  int
	lastFailureAt time.Time
	probeInFlight bool

	nowFn func() time.Time
}

// NewCircuitBreaker builds a closed breaker. failureThreshold consecutive
// failures open it; after recoveryTimeout a single probe call is let through.
func NewCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            domain.CircuitClosed,
		nowFn:            func() time.Time { return time.Now().UTC() },
	}
}

// State reports the current breaker state for health checks.
func (b *CircuitBreaker) State() domain.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Call invokes op under breaker protection. While open it rejects with a
// *domain.CircuitOpenError carrying the remaining cooldown and never invokes
// op. In half-open, exactly one probe runs at a time; its outcome decides
// the next state.
func (b *CircuitBreaker) Call(ctx context.Context, op Operation) (err error) {
	if err := b.beforeCall(); err != nil {
		return err
	}
	completed := false
	// A panicking op must still release the half-open probe slot, counted
	// as a failure, or the breaker rejects every later call forever.
	defer func() {
		b.afterCall(ctx, completed && err == nil)
	}()
	err = op(ctx)
	completed = true
	return err
}

func (b *CircuitBreaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case domain.CircuitOpen:
		elapsed := b.nowFn().Sub(b.lastFailureAt)
		if elapsed <= b.recoveryTimeout {
			return &domain.CircuitOpenError{RetryAfter: b.recoveryTimeout - elapsed}
		}
		b.state = domain.CircuitHalfOpen
		b.probeInFlight = true
		return nil
	case domain.CircuitHalfOpen:
		if b.probeInFlight {
			return &domain.CircuitOpenError{RetryAfter: b.recoveryTimeout}
		}
		b.probeInFlight = true
		return nil
	default:
		return nil
	}
}

func (b *CircuitBreaker) afterCall(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == domain.CircuitHalfOpen {
		b.probeInFlight = false
		if success {
			b.state = domain.CircuitClosed
			b.failureCount = 0
			slog.Default().InfoContext(ctx, "circuit breaker recovered",
				"module", "circuit_breaker",
				"layer", "application",
				"operation", "half_open_probe",
				"outcome", "success",
			)
			return
		}
		b.state = domain.CircuitOpen
		b.lastFailureAt = b.nowFn()
		slog.Default().WarnContext(ctx, "circuit breaker reopened",
			"module", "circuit_breaker",
			"layer", "application",
			"operation", "half_open_probe",
			"outcome", "failure",
		)
		return
	}

	if success {
		b.failureCount = 0
		return
	}

	b.failureCount++
	b.lastFailureAt = b.nowFn()
	if b.failureCount >= b.failureThreshold {
		b.state = domain.CircuitOpen
		slog.Default().WarnContext(ctx, "circuit breaker opened",
			"module", "circuit_breaker",
			"layer", "application",
			"operation", "record_failure",
			"outcome", "failure",
			"failure_count", b.failureCount,
		)
	}
}
