package ports

import "context"

// EventPublisher delivers one outbox payload to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte) error
}
