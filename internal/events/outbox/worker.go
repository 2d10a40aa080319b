// Package outbox relays committed events from the outbox to the event stream.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pollster/internal/events/models"
	"pollster/internal/platform/metrics"
)

// Repository is the outbox side of the event store.
type Repository interface {
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]models.OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID, claimToken string, now time.Time) error
	MarkFailed(ctx context.Context, outboxID, claimToken, reason string, now time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID, claimToken, reason string, now time.Time) error
}

// Publisher delivers one outbox record to the stream.
type Publisher interface {
	Publish(ctx context.Context, rec models.OutboxRecord) error
}

// Worker pulls unpublished outbox records and publishes them, retrying failed
// records up to maxRetries before dead-lettering them.
type Worker struct {
	logger     *slog.Logger
	outbox     Repository
	publisher  Publisher
	metrics    *metrics.Metrics
	interval   time.Duration
	batchSize  int
	claimTTL   time.Duration
	maxRetries int
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxRetries = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func NewWorker(logger *slog.Logger, outbox Repository, publisher Publisher, opts ...Option) *Worker {
	w := &Worker{
		logger:     logger,
		outbox:     outbox,
		publisher:  publisher,
		interval:   2 * time.Second,
		batchSize:  100,
		claimTTL:   30 * time.Second,
		maxRetries: 5,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run executes the periodic publish loop until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessOnce(ctx); err != nil {
			w.logger.ErrorContext(ctx, "outbox iteration failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce relays one batch and returns how many records were published.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	claimToken := uuid.NewString()
	records, err := w.outbox.ClaimUnpublished(ctx, w.batchSize, claimToken, time.Now().UTC().Add(w.claimTTL))
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	published, failed, deadLettered := 0, 0, 0
	for _, rec := range records {
		if rec.RetryCount >= w.maxRetries {
			deadLettered++
			w.metrics.IncrementOutbox("dead_lettered")
			_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, "retry threshold reached before publish", now)
			continue
		}

		if err := w.publisher.Publish(ctx, rec); err != nil {
			failed++
			if rec.RetryCount+1 >= w.maxRetries {
				deadLettered++
				w.metrics.IncrementOutbox("dead_lettered")
				w.logger.ErrorContext(ctx, "outbox message dead-lettered",
					"outbox_id", rec.OutboxID,
					"event_type", rec.EventType,
					"retry_count", rec.RetryCount+1,
					"error", err,
				)
				_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, err.Error(), now)
				continue
			}
			w.metrics.IncrementOutbox("failed")
			w.logger.WarnContext(ctx, "outbox publish failed; retry scheduled",
				"outbox_id", rec.OutboxID,
				"event_type", rec.EventType,
				"retry_count", rec.RetryCount+1,
				"error", err,
			)
			_ = w.outbox.MarkFailed(ctx, rec.OutboxID, claimToken, err.Error(), now)
			continue
		}
		published++
		w.metrics.IncrementOutbox("published")
		_ = w.outbox.MarkPublished(ctx, rec.OutboxID, claimToken, now)
	}

	if len(records) > 0 {
		w.logger.InfoContext(ctx, "outbox batch processed",
			"batch_size", len(records),
			"published_count", published,
			"failed_count", failed,
			"dead_lettered_count", deadLettered,
		)
	}
	return published, nil
}
