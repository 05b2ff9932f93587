package application

import (
	"log/slog"
	"sync/atomic"

	"github.com/promptrelay/chat-api/internal/domain"
	"github.com/promptrelay/chat-api/internal/ports"
)

// SimpleMetricsCollector keeps process-local request counters on atomics so
// recording never contends with request handling.
type SimpleMetricsCollector struct {
	totalRequests  atomic.Int64
	totalErrors    atomic.Int64
	totalCacheHits atomic.Int64
	totalLatencyMs atomic.Int64
}

// NewSimpleMetricsCollector returns a zeroed collector.
func NewSimpleMetricsCollector() *SimpleMetricsCollector {
	return &SimpleMetricsCollector{}
}

// RecordRequest folds one completed request into the counters.
func (c *SimpleMetricsCollector) RecordRequest(metric ports.RequestMetric) {
	c.totalRequests.Add(1)
	c.totalLatencyMs.Add(metric.LatencyMs)
	if metric.Cached {
		c.totalCacheHits.Add(1)
	}
	if !metric.Success {
		c.totalErrors.Add(1)
	}

	slog.Default().Info("metrics recorded",
		"module", "metrics",
		"layer", "application",
		"operation", "record_request",
		"outcome", "success",
		"user_id", metric.UserID,
		"model", metric.Model,
		"latency_ms", metric.LatencyMs,
		"cached", metric.Cached,
		"request_success", metric.Success,
		"total_requests", c.totalRequests.Load(),
	)
}

// Snapshot reads the counters without resetting them.
func (c *SimpleMetricsCollector) Snapshot() domain.MetricsSnapshot {
	return domain.MetricsSnapshot{
		TotalRequests:  c.totalRequests.Load(),
		TotalErrors:    c.totalErrors.Load(),
		TotalCacheHits: c.totalCacheHits.Load(),
		TotalLatencyMs: c.totalLatencyMs.Load(),
	}
}
