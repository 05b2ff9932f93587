package ports

import "github.com/promptrelay/chat-api/internal/domain"

// RequestMetric is one completed request observation.
type RequestMetric struct {
	UserID    string
	Model     string
	LatencyMs int64
	Cached    bool
	Success   bool
}

// MetricsCollector accumulates request counters. Implementations must be
// safe for concurrent use and must never fail the surrounding request.
type MetricsCollector interface {
	RecordRequest(metric RequestMetric)
	Snapshot() domain.MetricsSnapshot
}
