package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// OutboxWorker drains the licensing outbox: license lifecycle and redeem
// events written transactionally by the service are claimed in batches here
// and handed to the broker. Claims carry a token with a TTL so a crashed
// worker's batch becomes claimable again instead of staying stuck.
type OutboxWorker struct {
	logger     *slog.Logger
	outbox     ports.OutboxRepository
	publisher  ports.EventPublisher
	interval   time.Duration
	batchSize  int
	claimTTL   time.Duration
	maxRetries int
}

func NewOutboxWorker(
	logger *slog.Logger,
	outbox ports.OutboxRepository,
	publisher ports.EventPublisher,
	interval time.Duration,
	batchSize int,
	claimTTL time.Duration,
	maxRetries int,
) *OutboxWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if claimTTL <= 0 {
		claimTTL = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &OutboxWorker{
		logger:     logger,
		outbox:     outbox,
		publisher:  publisher,
		interval:   interval,
		batchSize:  batchSize,
		claimTTL:   claimTTL,
		maxRetries: maxRetries,
	}
}

// Run drains the outbox on a fixed cadence until the context is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.processOnce(ctx); err != nil {
			w.logger.ErrorContext(ctx, "outbox drain failed",
				"module", "events.outbox_worker",
				"layer", "adapter",
				"operation", "drain_outbox",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type deliveryOutcome int

const (
	deliveryPublished deliveryOutcome = iota
	deliveryRetryScheduled
	deliveryDeadLettered
)

func (w *OutboxWorker) processOnce(ctx context.Context) error {
	claimToken := uuid.NewString()
	records, err := w.outbox.ClaimUnpublished(ctx, w.batchSize, claimToken, time.Now().UTC().Add(w.claimTTL))
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	var published, retried, deadLettered int
	for _, rec := range records {
		switch w.deliver(ctx, rec, claimToken, now) {
		case deliveryPublished:
			published++
		case deliveryRetryScheduled:
			retried++
		case deliveryDeadLettered:
			deadLettered++
		}
	}

	w.logger.InfoContext(ctx, "outbox batch drained",
		"module", "events.outbox_worker",
		"layer", "adapter",
		"operation", "drain_outbox",
		"outcome", "success",
		"batch_size", len(records),
		"published_count", published,
		"retry_count", retried,
		"dead_lettered_count", deadLettered,
	)
	return nil
}

// deliver publishes one claimed record and settles it. A record that arrives
// with its retry budget already spent is parked without another broker call.
func (w *OutboxWorker) deliver(ctx context.Context, rec ports.OutboxRecord, claimToken string, now time.Time) deliveryOutcome {
	if rec.RetryCount >= w.maxRetries {
		_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, "retry budget exhausted before publish", now)
		return deliveryDeadLettered
	}

	err := w.publisher.Publish(ctx, rec.EventType, rec.Payload)
	if err == nil {
		_ = w.outbox.MarkPublished(ctx, rec.OutboxID, claimToken, now)
		return deliveryPublished
	}

	retries := rec.RetryCount + 1
	fields := []any{
		"module", "events.outbox_worker",
		"layer", "adapter",
		"operation", "publish_event",
		"outcome", "failure",
		"outbox_id", rec.OutboxID,
		"event_type", rec.EventType,
		"retry_count", retries,
		"error", err,
	}
	if retries >= w.maxRetries {
		w.logger.ErrorContext(ctx, "licensing event moved to dlq", fields...)
		_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, err.Error(), now)
		return deliveryDeadLettered
	}
	w.logger.WarnContext(ctx, "licensing event publish failed; retry scheduled", fields...)
	_ = w.outbox.MarkFailed(ctx, rec.OutboxID, claimToken, err.Error(), now)
	return deliveryRetryScheduled
}
