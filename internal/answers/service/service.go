// Package service accepts survey answers once the compliance gate allows the
// respondent to submit them.
package service

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"pollster/internal/answers/models"
	respmodels "pollster/internal/respondent/models"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
	txcontext "pollster/pkg/platform/tx"
	"pollster/pkg/requestcontext"
)

type Store interface {
	Save(ctx context.Context, answers ...*models.Answer) error
	ListByRespondents(ctx context.Context, respondentIDs []id.RespondentID) ([]*models.Answer, error)
	ReassignRespondent(ctx context.Context, from, to id.RespondentID) (int, error)
}

type RespondentResolver interface {
	Resolve(ctx context.Context, respondentID id.RespondentID) (*respmodels.Respondent, error)
}

// Gate enforces the survey's mandatory consent requirements.
type Gate interface {
	Require(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID) error
}

type Service struct {
	store       Store
	tx          txcontext.Runner
	respondents RespondentResolver
	gate        Gate
	logger      *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, tx txcontext.Runner, respondents RespondentResolver, gate Gate, opts ...Option) *Service {
	s := &Service{
		store:       store,
		tx:          tx,
		respondents: respondents,
		gate:        gate,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit stores a batch of answers for the respondent's root. It fails
// closed with ComplianceDenied when mandatory consents are missing.
func (s *Service) Submit(ctx context.Context, respondentID id.RespondentID, sub models.Submission) ([]*models.Answer, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	root, err := s.respondents.Resolve(ctx, respondentID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Require(ctx, root.ID, sub.SurveyID); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(sub.Answers))
	for k := range sub.Answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := requestcontext.Now(ctx)
	answers := make([]*models.Answer, 0, len(keys))
	for _, k := range keys {
		answers = append(answers, &models.Answer{
			ID:           uuid.New(),
			RespondentID: root.ID,
			SurveyID:     sub.SurveyID,
			QuestionKey:  k,
			Value:        sub.Answers[k],
			AnsweredAt:   now,
		})
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		return s.store.Save(txCtx, answers...)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to save answers")
	}
	s.logger.InfoContext(ctx, "answers saved",
		"request_id", requestcontext.RequestID(ctx),
		"respondent_id", root.ID.String(),
		"survey_id", int64(sub.SurveyID),
		"count", len(answers),
	)
	return answers, nil
}

// ReassignRespondent moves answers during a merge. Runs inside the caller's
// transaction.
func (s *Service) ReassignRespondent(ctx context.Context, from, to id.RespondentID) (int, error) {
	return s.store.ReassignRespondent(ctx, from, to)
}
