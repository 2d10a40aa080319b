// Package service provides the fail-closed event appender used inside
// business transactions.
//
// Emit writes synchronously; if the event cannot be persisted the caller's
// transaction MUST fail, so no state change ever commits without its audit row.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pollster/internal/events/models"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
	"pollster/pkg/requestcontext"
)

// Store is the persistence port of the event log.
type Store interface {
	Append(ctx context.Context, event *models.Event) error
	ListByRespondents(ctx context.Context, ids []id.RespondentID) ([]*models.Event, error)
	Timeline(ctx context.Context, respondentID id.RespondentID, limit int) ([]*models.Event, error)
	ReassignRespondent(ctx context.Context, from, to id.RespondentID) (int, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
	PruneOutboxBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ScrubRespondents(ctx context.Context, ids []id.RespondentID) (int, error)
}

// Log appends respondent events enriched with request metadata.
type Log struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Log)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

func New(store Store, opts ...Option) *Log {
	l := &Log{store: store}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Emit records one event for respondentID. Source defaults to the request's
// entry point; IP, user agent, session token and time come from ctx.
func (l *Log) Emit(ctx context.Context, respondentID id.RespondentID, eventType models.Type, payload models.Payload) error {
	event, err := models.NewEvent(respondentID, eventType, payload, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	event.Source = requestcontext.EntryPoint(ctx).String()
	event.IPAddress = requestcontext.ClientIP(ctx)
	event.UserAgent = requestcontext.UserAgent(ctx)
	event.SessionToken = requestcontext.SessionToken(ctx)
	return l.Append(ctx, event)
}

// Append persists a fully built event.
func (l *Log) Append(ctx context.Context, event *models.Event) error {
	if err := l.store.Append(ctx, event); err != nil {
		if l.logger != nil {
			l.logger.ErrorContext(ctx, "CRITICAL: event append failed",
				"event_type", event.Type,
				"respondent_id", event.RespondentID,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		return dErrors.Wrap(fmt.Errorf("event persistence failed: %w", err), dErrors.CodeStorage, "failed to record event")
	}
	return nil
}

// History returns every event of the given respondents in timestamp order.
func (l *Log) History(ctx context.Context, ids ...id.RespondentID) ([]*models.Event, error) {
	events, err := l.store.ListByRespondents(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load events")
	}
	return events, nil
}

// Timeline returns the newest events of one respondent.
func (l *Log) Timeline(ctx context.Context, respondentID id.RespondentID, limit int) ([]*models.Event, error) {
	events, err := l.store.Timeline(ctx, respondentID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load timeline")
	}
	return events, nil
}

// Reassign moves every event of from onto to. Only merges call this.
func (l *Log) Reassign(ctx context.Context, from, to id.RespondentID) (int, error) {
	n, err := l.store.ReassignRespondent(ctx, from, to)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorage, "failed to reassign events")
	}
	return n, nil
}

// Scrub strips request metadata from every event and outbox row of the given
// respondents. Erasure calls it inside its transaction.
func (l *Log) Scrub(ctx context.Context, ids ...id.RespondentID) (int, error) {
	n, err := l.store.ScrubRespondents(ctx, ids)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorage, "failed to scrub events")
	}
	return n, nil
}

// PruneOutbox deletes relayed or dead-lettered outbox rows older than
// cutoff. Pending rows are kept so nothing is lost before it is published.
func (l *Log) PruneOutbox(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := l.store.PruneOutboxBefore(ctx, cutoff)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorage, "failed to prune outbox")
	}
	if l.logger != nil {
		l.logger.InfoContext(ctx, "outbox pruned", "cutoff", cutoff, "deleted", n)
	}
	return n, nil
}

// Prune physically deletes events older than cutoff.
func (l *Log) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := l.store.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorage, "failed to prune events")
	}
	if l.logger != nil {
		l.logger.InfoContext(ctx, "events pruned", "cutoff", cutoff, "deleted", n)
	}
	return n, nil
}
