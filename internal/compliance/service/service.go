// Package service implements the data subject rights: export of everything
// held about a respondent, erasure, and retention pruning of the event log.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	answermodels "pollster/internal/answers/models"
	"pollster/internal/compliance/models"
	consentmodels "pollster/internal/consent/models"
	eventmodels "pollster/internal/events/models"
	participationmodels "pollster/internal/participation/models"
	"pollster/internal/platform/metrics"
	respondentmodels "pollster/internal/respondent/models"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
	"pollster/pkg/platform/sentinel"
	txcontext "pollster/pkg/platform/tx"
	"pollster/pkg/requestcontext"
)

// Respondents is the slice of the respondent store compliance needs.
type Respondents interface {
	FindByID(ctx context.Context, respondentID id.RespondentID) (*respondentmodels.Respondent, error)
	ListMergedInto(ctx context.Context, root id.RespondentID) ([]*respondentmodels.Respondent, error)
	Execute(ctx context.Context, respondentID id.RespondentID, validate func(*respondentmodels.Respondent) error, mutate func(*respondentmodels.Respondent)) (*respondentmodels.Respondent, error)
	DeleteSessions(ctx context.Context, respondentID id.RespondentID) (int, error)
}

type ConsentStore interface {
	ListByRespondents(ctx context.Context, respondentIDs []id.RespondentID) ([]*consentmodels.Record, error)
	RevokeAllActive(ctx context.Context, respondentID id.RespondentID, now time.Time) (int, error)
}

type ParticipationReader interface {
	ListByRespondents(ctx context.Context, respondentIDs []id.RespondentID) ([]*participationmodels.Record, error)
}

type AnswerReader interface {
	ListByRespondents(ctx context.Context, respondentIDs []id.RespondentID) ([]*answermodels.Answer, error)
}

type EventLog interface {
	Emit(ctx context.Context, respondentID id.RespondentID, eventType eventmodels.Type, payload eventmodels.Payload) error
	History(ctx context.Context, ids ...id.RespondentID) ([]*eventmodels.Event, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Scrub(ctx context.Context, ids ...id.RespondentID) (int, error)
	PruneOutbox(ctx context.Context, cutoff time.Time) (int64, error)
}

type Service struct {
	respondents    Respondents
	consents       ConsentStore
	participations ParticipationReader
	answers        AnswerReader
	events         EventLog
	tx             txcontext.Runner
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
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

// WithAnswers includes domain answers in exports.
func WithAnswers(answers AnswerReader) Option {
	return func(s *Service) {
		s.answers = answers
	}
}

func New(respondents Respondents, consents ConsentStore, participations ParticipationReader, events EventLog, tx txcontext.Runner, opts ...Option) *Service {
	s := &Service{
		respondents:    respondents,
		consents:       consents,
		participations: participations,
		events:         events,
		tx:             tx,
		logger:         slog.Default(),
		tracer:         otel.Tracer("pollster/compliance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export assembles the bundle for the person behind respondentID. A merged
// respondent id exports its root. The reads run concurrently and the first
// failure cancels the rest.
func (s *Service) Export(ctx context.Context, respondentID id.RespondentID) (*models.Bundle, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "compliance.Export",
		trace.WithAttributes(attribute.String("respondent_id", respondentID.String())))
	defer span.End()

	root, err := s.root(ctx, respondentID)
	if err != nil {
		return nil, err
	}
	if root.IsDeleted() {
		return nil, dErrors.New(dErrors.CodeNotFound, "respondent not found")
	}
	merged, err := s.respondents.ListMergedInto(ctx, root.ID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list merged respondents")
	}

	bundle := &models.Bundle{
		Respondent: root,
		Merged:     merged,
		ExportedAt: requestcontext.Now(ctx),
	}
	ids := bundle.RespondentIDs()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		records, err := s.consents.ListByRespondents(gctx, ids)
		if err != nil {
			return wrapStoreErr(err, "failed to export consents")
		}
		bundle.Consents = records
		return nil
	})
	g.Go(func() error {
		records, err := s.participations.ListByRespondents(gctx, ids)
		if err != nil {
			return wrapStoreErr(err, "failed to export participations")
		}
		bundle.Participations = records
		return nil
	})
	g.Go(func() error {
		events, err := s.events.History(gctx, ids...)
		if err != nil {
			return err
		}
		bundle.Events = events
		return nil
	})
	if s.answers != nil {
		g.Go(func() error {
			answers, err := s.answers.ListByRespondents(gctx, ids)
			if err != nil {
				return wrapStoreErr(err, "failed to export answers")
			}
			bundle.Answers = answers
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "export failed")
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		return s.events.Emit(txCtx, root.ID, eventmodels.TypeDataExported, eventmodels.Payload{
			"respondents":    len(ids),
			"consents":       len(bundle.Consents),
			"participations": len(bundle.Participations),
			"events":         len(bundle.Events),
			"answers":        len(bundle.Answers),
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveExport(start)
	s.logger.InfoContext(ctx, "respondent data exported",
		"respondent_id", root.ID,
		"merged", len(merged),
		"request_id", requestcontext.RequestID(ctx),
	)
	return bundle, nil
}

// Erase revokes every active consent, scrubs personal data from the root and
// every respondent merged into it, drops their session tokens and records
// data_deleted, all in one transaction. Participations, answers and events
// stay for statistics and remain attributable to the soft-deleted ids, but
// request metadata is stripped from the events and from their outbox copies.
func (s *Service) Erase(ctx context.Context, respondentID id.RespondentID) (*models.ErasureResult, error) {
	ctx, span := s.tracer.Start(ctx, "compliance.Erase",
		trace.WithAttributes(attribute.String("respondent_id", respondentID.String())))
	defer span.End()

	var result *models.ErasureResult
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		root, err := s.root(txCtx, respondentID)
		if err != nil {
			return err
		}
		merged, err := s.respondents.ListMergedInto(txCtx, root.ID)
		if err != nil {
			return wrapStoreErr(err, "failed to list merged respondents")
		}

		res := &models.ErasureResult{RespondentID: root.ID, ErasedAt: now}
		if _, err := s.respondents.Execute(txCtx, root.ID, canErase, func(r *respondentmodels.Respondent) {
			r.ApplyErasure(now)
		}); err != nil {
			return wrapStoreErr(err, "failed to erase respondent")
		}
		res.Erased = append(res.Erased, root.ID)
		for _, m := range merged {
			if m.IsDeleted() {
				continue
			}
			if _, err := s.respondents.Execute(txCtx, m.ID, canErase, func(r *respondentmodels.Respondent) {
				r.ApplyErasure(now)
			}); err != nil {
				return wrapStoreErr(err, "failed to erase merged respondent")
			}
			res.Erased = append(res.Erased, m.ID)
		}

		records, err := s.consents.ListByRespondents(txCtx, res.Erased)
		if err != nil {
			return wrapStoreErr(err, "failed to list consents")
		}
		revoked := []string{}
		for _, r := range records {
			if r.IsActive() {
				revoked = append(revoked, string(r.Category))
			}
		}

		for _, rid := range res.Erased {
			n, err := s.consents.RevokeAllActive(txCtx, rid, now)
			if err != nil {
				return wrapStoreErr(err, "failed to revoke consents")
			}
			res.ConsentsRevoked += n
			dropped, err := s.respondents.DeleteSessions(txCtx, rid)
			if err != nil {
				return wrapStoreErr(err, "failed to drop sessions")
			}
			res.SessionsDropped += dropped
		}

		if err := s.events.Emit(txCtx, root.ID, eventmodels.TypeDataDeleted, eventmodels.Payload{
			"erased":             len(res.Erased),
			"consents_revoked":   res.ConsentsRevoked,
			"revoked_categories": revoked,
			"sessions_dropped":   res.SessionsDropped,
		}); err != nil {
			return err
		}
		scrubbed, err := s.events.Scrub(txCtx, res.Erased...)
		if err != nil {
			return err
		}
		res.EventsScrubbed = scrubbed
		result = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "erase failed")
		return nil, err
	}

	s.metrics.IncrementErased(len(result.Erased))
	s.logger.InfoContext(ctx, "respondent data erased",
		"respondent_id", result.RespondentID,
		"erased", len(result.Erased),
		"consents_revoked", result.ConsentsRevoked,
		"events_scrubbed", result.EventsScrubbed,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

// PruneEvents physically deletes events older than horizon, along with
// outbox rows that were published or dead-lettered before the same cutoff.
func (s *Service) PruneEvents(ctx context.Context, horizon time.Duration) (*models.PruneResult, error) {
	if horizon <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "retention horizon must be positive")
	}
	cutoff := requestcontext.Now(ctx).Add(-horizon)
	n, err := s.events.Prune(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	s.metrics.AddPruned(n)
	outboxDeleted, err := s.events.PruneOutbox(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	return &models.PruneResult{Cutoff: cutoff, Deleted: n, OutboxDeleted: outboxDeleted}, nil
}

// root loads respondentID and follows its merge pointer without hiding
// deleted respondents, so erasure can report them as a conflict.
func (s *Service) root(ctx context.Context, respondentID id.RespondentID) (*respondentmodels.Respondent, error) {
	if respondentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "respondent id is required")
	}
	r, err := s.respondents.FindByID(ctx, respondentID)
	if err != nil {
		return nil, wrapStoreErr(err, "respondent not found")
	}
	if r.IsMerged && r.MergedIntoID != nil {
		if r, err = s.respondents.FindByID(ctx, *r.MergedIntoID); err != nil {
			return nil, wrapStoreErr(err, "merge target not found")
		}
	}
	return r, nil
}

func canErase(r *respondentmodels.Respondent) error {
	if err := r.CanErase(); err != nil {
		return dErrors.New(dErrors.CodeConflict, err.Error())
	}
	return nil
}

func wrapStoreErr(err error, msg string) error {
	var domainErr *dErrors.Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeStorage, msg)
	}
}
