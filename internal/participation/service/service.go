// Package service tracks respondents' progress through surveys.
package service

import (
	"context"
	"errors"
	"log/slog"

	eventmodels "pollster/internal/events/models"
	"pollster/internal/participation/models"
	"pollster/internal/platform/metrics"
	respmodels "pollster/internal/respondent/models"
	surveymodels "pollster/internal/survey/models"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
	"pollster/pkg/platform/sentinel"
	txcontext "pollster/pkg/platform/tx"
	"pollster/pkg/requestcontext"
)

type Store interface {
	Insert(ctx context.Context, r *models.Record) error
	FindByPair(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID) (*models.Record, error)
	Execute(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error)
	ListByRespondent(ctx context.Context, respondentID id.RespondentID) ([]*models.Record, error)
	ListByRespondents(ctx context.Context, respondentIDs []id.RespondentID) ([]*models.Record, error)
	ReassignRespondent(ctx context.Context, from, to id.RespondentID) (int, []id.SurveyID, error)
}

type RespondentResolver interface {
	Resolve(ctx context.Context, respondentID id.RespondentID) (*respmodels.Respondent, error)
}

type SurveyCatalog interface {
	Get(ctx context.Context, surveyID id.SurveyID) (*surveymodels.Survey, error)
}

type EventLog interface {
	Emit(ctx context.Context, respondentID id.RespondentID, eventType eventmodels.Type, payload eventmodels.Payload) error
}

type Service struct {
	store       Store
	tx          txcontext.Runner
	respondents RespondentResolver
	events      EventLog
	catalog     SurveyCatalog
	logger      *slog.Logger
	metrics     *metrics.Metrics
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

// WithCatalog makes Start check that the survey exists and is active, and
// seed the question count from it.
func WithCatalog(catalog SurveyCatalog) Option {
	return func(s *Service) {
		s.catalog = catalog
	}
}

func New(store Store, tx txcontext.Runner, respondents RespondentResolver, events EventLog, opts ...Option) *Service {
	s := &Service{
		store:       store,
		tx:          tx,
		respondents: respondents,
		events:      events,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start returns the participation for the pair, creating it when absent.
// Completed participations cannot be restarted; abandoned ones are returned
// unchanged. survey_started is emitted only on creation.
func (s *Service) Start(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID, source string) (*models.Record, error) {
	if surveyID <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "survey id is required")
	}
	root, err := s.respondents.Resolve(ctx, respondentID)
	if err != nil {
		return nil, err
	}
	total, err := s.totalQuestions(ctx, surveyID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var (
		record  *models.Record
		created bool
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.store.FindByPair(txCtx, root.ID, surveyID)
		if err == nil {
			record = existing
			return nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		record, err = models.NewParticipation(id.NewParticipationID(), root.ID, surveyID, total, now)
		if err != nil {
			return toValidation(err)
		}
		if err := s.store.Insert(txCtx, record); err != nil {
			return err
		}
		created = true
		return s.events.Emit(txCtx, root.ID, eventmodels.TypeSurveyStarted, eventmodels.Payload{
			"survey_id":        int64(surveyID),
			"participation_id": record.ID.String(),
			"source":           source,
		})
	})
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		// a concurrent start won the pair
		record, err = s.store.FindByPair(ctx, root.ID, surveyID)
	}
	if err != nil {
		return nil, wrapStoreErr(err, "failed to start survey")
	}
	if record.Status == models.StatusCompleted {
		return nil, dErrors.New(dErrors.CodeConflict, "survey already completed")
	}

	if created {
		s.metrics.IncrementParticipationStatus(string(models.StatusStarted))
		s.logger.InfoContext(ctx, "survey started",
			"request_id", requestcontext.RequestID(ctx),
			"respondent_id", root.ID.String(),
			"survey_id", int64(surveyID),
		)
	}
	return record, nil
}

func (s *Service) totalQuestions(ctx context.Context, surveyID id.SurveyID) (int, error) {
	if s.catalog == nil {
		return 0, nil
	}
	survey, err := s.catalog.Get(ctx, surveyID)
	if err != nil {
		return 0, wrapStoreErr(err, "survey not found")
	}
	if !survey.IsActive {
		return 0, dErrors.New(dErrors.CodeConflict, "survey is not active")
	}
	return survey.TotalQuestions, nil
}

// UpdateProgress applies a progress report. Reports never lower the stored
// percentage; reaching 100% completes the survey.
func (s *Service) UpdateProgress(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID, progress models.Progress) (*models.Record, error) {
	if err := progress.Validate(); err != nil {
		return nil, err
	}
	root, err := s.respondents.Resolve(ctx, respondentID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var (
		record *models.Record
		before models.Status
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		record, err = s.store.Execute(txCtx, root.ID, surveyID, canChange, func(r *models.Record) {
			before = r.Status
			r.ApplyProgress(progress, now)
		})
		if err != nil {
			return err
		}
		eventType := eventmodels.TypeSurveyProgressUpdated
		if record.Status == models.StatusCompleted {
			eventType = eventmodels.TypeSurveyCompleted
		}
		return s.events.Emit(txCtx, root.ID, eventType, eventmodels.Payload{
			"survey_id":           int64(surveyID),
			"status":              string(record.Status),
			"previous_status":     string(before),
			"progress_percentage": record.ProgressPercentage,
			"questions_answered":  record.QuestionsAnswered,
			"total_questions":     record.TotalQuestions,
			"time_spent_seconds":  record.TimeSpentSeconds,
		})
	})
	if err != nil {
		return nil, wrapStoreErr(err, "participation not found")
	}
	if record.Status != before {
		s.metrics.IncrementParticipationStatus(string(record.Status))
	}
	return record, nil
}

// Complete marks the survey completed explicitly, whatever the last reported
// progress.
func (s *Service) Complete(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID, source string) (*models.Record, error) {
	root, err := s.respondents.Resolve(ctx, respondentID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var (
		record *models.Record
		before models.Status
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		record, err = s.store.Execute(txCtx, root.ID, surveyID, canChange, func(r *models.Record) {
			before = r.Status
			r.ApplyCompletion(source, now)
		})
		if err != nil {
			return err
		}
		return s.events.Emit(txCtx, root.ID, eventmodels.TypeSurveyCompleted, eventmodels.Payload{
			"survey_id":          int64(surveyID),
			"status":             string(record.Status),
			"previous_status":    string(before),
			"completion_source":  source,
			"time_spent_seconds": record.TimeSpentSeconds,
		})
	})
	if err != nil {
		return nil, wrapStoreErr(err, "participation not found")
	}
	s.metrics.IncrementParticipationStatus(string(models.StatusCompleted))
	s.logger.InfoContext(ctx, "survey completed",
		"request_id", requestcontext.RequestID(ctx),
		"respondent_id", root.ID.String(),
		"survey_id", int64(surveyID),
	)
	return record, nil
}

// Abandon closes a non-terminal participation, recording why and how far the
// respondent got.
func (s *Service) Abandon(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID, reason string) (*models.Record, error) {
	root, err := s.respondents.Resolve(ctx, respondentID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var (
		record *models.Record
		before models.Status
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		record, err = s.store.Execute(txCtx, root.ID, surveyID, canChange, func(r *models.Record) {
			before = r.Status
			r.ApplyAbandon(reason, now)
		})
		if err != nil {
			return err
		}
		return s.events.Emit(txCtx, root.ID, eventmodels.TypeSurveyAbandoned, eventmodels.Payload{
			"survey_id":               int64(surveyID),
			"status":                  string(record.Status),
			"previous_status":         string(before),
			"reason":                  reason,
			"abandoned_at_percentage": *record.AbandonedAtPercentage,
		})
	})
	if err != nil {
		return nil, wrapStoreErr(err, "participation not found")
	}
	s.metrics.IncrementParticipationStatus(string(models.StatusAbandoned))
	return record, nil
}

func (s *Service) Get(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID) (*models.Record, error) {
	root, err := s.respondents.Resolve(ctx, respondentID)
	if err != nil {
		return nil, err
	}
	record, err := s.store.FindByPair(ctx, root.ID, surveyID)
	if err != nil {
		return nil, wrapStoreErr(err, "participation not found")
	}
	return record, nil
}

func (s *Service) ListByRespondent(ctx context.Context, respondentID id.RespondentID) ([]*models.Record, error) {
	root, err := s.respondents.Resolve(ctx, respondentID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListByRespondent(ctx, root.ID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list participations")
	}
	return records, nil
}

// ReassignRespondent moves participations during a merge. Runs inside the
// caller's transaction.
func (s *Service) ReassignRespondent(ctx context.Context, from, to id.RespondentID) (int, []id.SurveyID, error) {
	return s.store.ReassignRespondent(ctx, from, to)
}

func canChange(r *models.Record) error {
	if err := r.CanChange(); err != nil {
		return dErrors.New(dErrors.CodeConflict, err.Error())
	}
	return nil
}
