package http

import (
	"context"
	"log/slog"
)

const serviceName = "chat-api"

func httpLogger() *slog.Logger {
	return slog.Default().With(
		"service", serviceName,
		"module", "http",
		"layer", "adapter",
	)
}

func logHTTPOperationError(ctx context.Context, operation string, err error) {
	httpLogger().WarnContext(ctx, "http operation failed",
		"operation", operation,
		"outcome", "failure",
		"request_id", requestIDFromContext(ctx),
		"error", err.Error(),
	)
}
