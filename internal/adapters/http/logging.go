package http

import (
	"context"
	"log/slog"
)

const serviceName = "M91-License-Service"

func httpLogger() *slog.Logger {
	return slog.Default().With(
		"service", serviceName,
		"module", "http",
		"layer", "adapter",
	)
}

// logHTTPOperationError records a failed licensing operation. 5xx means the
// service broke; everything else is the caller being told no (full licenses,
// depleted codes, quota hits) and stays at warn so alerting keys off errors
// that are actually ours.
func logHTTPOperationError(ctx context.Context, operation string, statusCode int, code, message string, err error) {
	fields := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", statusCode,
		"error_code", code,
		"message", message,
		"request_id", requestIDFromContext(ctx),
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	if statusCode >= 500 {
		httpLogger().ErrorContext(ctx, "licensing request failed", fields...)
		return
	}
	httpLogger().WarnContext(ctx, "licensing request rejected", fields...)
}
