package events

import (
	"context"
	"log/slog"
)

// LoggingPublisher is the broker stand-in for environments without the
// platform event bus. Payloads are not logged; license events carry owner
// identifiers.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, eventType string, payload []byte) error {
	p.logger.InfoContext(ctx, "licensing event published",
		"module", "events.publisher",
		"layer", "adapter",
		"operation", "publish_event",
		"outcome", "success",
		"event_type", eventType,
		"payload_bytes", len(payload),
	)
	return nil
}
