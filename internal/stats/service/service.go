// Package service projects respondent events into the statistics read-model
// and serves it to administrators.
package service

import (
	"context"
	"log/slog"

	eventmodels "pollster/internal/events/models"
	"pollster/internal/events/outbox"
	"pollster/internal/platform/kafka/consumer"
	"pollster/internal/platform/metrics"
	"pollster/internal/stats/models"
	dErrors "pollster/pkg/domain-errors"
)

// Store is the read-model port. Apply must ignore an event id it has already
// applied, because the stream delivers at least once.
type Store interface {
	Apply(ctx context.Context, eventID string, incs []models.Increment) (bool, error)
	Sections(ctx context.Context) (map[models.Section]models.Counters, error)
}

type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ outbox.EventHandler = (*Service)(nil)
	_ consumer.Handler    = (*Service)(nil)
)

// HandleEvent projects one event. Events that do not affect statistics are
// acknowledged without touching the store.
func (s *Service) HandleEvent(ctx context.Context, event *eventmodels.Event) error {
	incs := Project(event)
	if len(incs) == 0 {
		return nil
	}
	applied, err := s.store.Apply(ctx, event.ID.String(), incs)
	if err != nil {
		s.logger.ErrorContext(ctx, "stats projection failed",
			"event_id", event.ID.String(),
			"event_type", event.Type,
			"error", err,
		)
		return err
	}
	if applied {
		s.metrics.IncrementProjected(string(event.Type))
	}
	return nil
}

// Handle consumes one record from the event stream.
func (s *Service) Handle(ctx context.Context, msg *consumer.Message) error {
	event, err := outbox.Decode(msg.Value)
	if err != nil {
		// a poison record would block its partition forever
		s.logger.ErrorContext(ctx, "skipping undecodable event",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	return s.HandleEvent(ctx, event)
}

// Snapshot returns the current read-model.
func (s *Service) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	sections, err := s.store.Sections(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to read statistics")
	}
	return models.NewSnapshot(sections), nil
}
