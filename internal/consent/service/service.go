// Package service is the consent ledger: an append-mostly history of consent
// decisions per respondent, category and survey scope, plus the compliance
// gate consulted before regulated writes.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"pollster/internal/consent/models"
	eventmodels "pollster/internal/events/models"
	"pollster/internal/platform/metrics"
	respmodels "pollster/internal/respondent/models"
	surveymodels "pollster/internal/survey/models"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
	"pollster/pkg/platform/sentinel"
	txcontext "pollster/pkg/platform/tx"
	"pollster/pkg/requestcontext"
)

// Store is the persistence port for consent records.
type Store interface {
	Insert(ctx context.Context, r *models.Record) error
	FindActive(ctx context.Context, respondentID id.RespondentID, category id.ConsentCategory, survey id.SurveyRef) (*models.Record, error)
	Revoke(ctx context.Context, respondentID id.RespondentID, consentID id.ConsentID, now time.Time) error
	RevokeAllActive(ctx context.Context, respondentID id.RespondentID, now time.Time) (int, error)
	ListByRespondent(ctx context.Context, respondentID id.RespondentID) ([]*models.Record, error)
	ListByRespondents(ctx context.Context, respondentIDs []id.RespondentID) ([]*models.Record, error)
	ListActive(ctx context.Context, respondentID id.RespondentID) ([]*models.Record, error)
	ReassignRespondent(ctx context.Context, from, to id.RespondentID, now time.Time) (int, error)
}

// RespondentResolver maps any respondent id to its live root.
type RespondentResolver interface {
	Resolve(ctx context.Context, respondentID id.RespondentID) (*respmodels.Respondent, error)
}

// SurveyCatalog exposes the declared data requirements of surveys.
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
	catalog     SurveyCatalog
	events      EventLog
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

func New(store Store, tx txcontext.Runner, respondents RespondentResolver, catalog SurveyCatalog, events EventLog, opts ...Option) *Service {
	s := &Service{
		store:       store,
		tx:          tx,
		respondents: respondents,
		catalog:     catalog,
		events:      events,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Grant records an active consent for the key, superseding any active record
// in the same transaction. A concurrent grant for the same key is retried
// once; the retry supersedes the winner.
func (s *Service) Grant(ctx context.Context, req models.GrantRequest) (*models.Record, error) {
	if !req.Category.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid consent category: "+string(req.Category))
	}
	if err := models.ValidateScope(req.Survey); err != nil {
		return nil, toValidation(err)
	}
	root, err := s.respondents.Resolve(ctx, req.RespondentID)
	if err != nil {
		return nil, err
	}

	record, err := s.grantOnce(ctx, root.ID, req)
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		record, err = s.grantOnce(ctx, root.ID, req)
	}
	if err != nil {
		return nil, wrapStoreErr(err, "failed to grant consent")
	}

	s.metrics.IncrementConsentDecision(string(req.Category), "granted")
	s.logger.InfoContext(ctx, "consent granted",
		"request_id", requestcontext.RequestID(ctx),
		"respondent_id", root.ID.String(),
		"category", string(req.Category),
		"consent_id", record.ID.String(),
	)
	return record, nil
}

func (s *Service) grantOnce(ctx context.Context, respondentID id.RespondentID, req models.GrantRequest) (*models.Record, error) {
	now := requestcontext.Now(ctx)
	var record *models.Record
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		payload := eventmodels.Payload{
			"category": string(req.Category),
			"version":  req.Version,
			"source":   req.Source,
		}
		if req.Survey != nil {
			payload["survey_id"] = int64(*req.Survey)
		}

		prior, err := s.store.FindActive(txCtx, respondentID, req.Category, req.Survey)
		switch {
		case err == nil:
			if err := s.store.Revoke(txCtx, respondentID, prior.ID, now); err != nil {
				return err
			}
			payload["superseded"] = prior.ID.String()
		case !errors.Is(err, sentinel.ErrNotFound):
			return err
		}

		record, err = models.NewGrant(id.NewConsentID(), models.GrantParams{
			RespondentID: respondentID,
			Category:     req.Category,
			Survey:       req.Survey,
			Version:      req.Version,
			Details:      req.Details,
			Source:       req.Source,
			IPAddress:    requestcontext.ClientIP(ctx),
			UserAgent:    requestcontext.UserAgent(ctx),
		}, now)
		if err != nil {
			return toValidation(err)
		}
		payload["version"] = record.Version
		payload["consent_id"] = record.ID.String()
		if err := s.store.Insert(txCtx, record); err != nil {
			return err
		}
		return s.events.Emit(txCtx, respondentID, eventmodels.TypeConsentGranted, payload)
	})
	return record, err
}

// Revoke deactivates the active record for the key. It reports false, and
// records nothing, when no record was active.
func (s *Service) Revoke(ctx context.Context, respondentID id.RespondentID, category id.ConsentCategory, survey id.SurveyRef) (bool, error) {
	if !category.IsValid() {
		return false, dErrors.New(dErrors.CodeValidation, "invalid consent category: "+string(category))
	}
	if err := models.ValidateScope(survey); err != nil {
		return false, toValidation(err)
	}
	root, err := s.respondents.Resolve(ctx, respondentID)
	if err != nil {
		return false, err
	}

	now := requestcontext.Now(ctx)
	revoked := false
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		active, err := s.store.FindActive(txCtx, root.ID, category, survey)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.store.Revoke(txCtx, root.ID, active.ID, now); err != nil {
			return err
		}
		revoked = true
		payload := eventmodels.Payload{
			"category":   string(category),
			"consent_id": active.ID.String(),
		}
		if survey != nil {
			payload["survey_id"] = int64(*survey)
		}
		return s.events.Emit(txCtx, root.ID, eventmodels.TypeConsentRevoked, payload)
	})
	if err != nil {
		return false, wrapStoreErr(err, "failed to revoke consent")
	}
	if revoked {
		s.metrics.IncrementConsentDecision(string(category), "revoked")
		s.logger.InfoContext(ctx, "consent revoked",
			"request_id", requestcontext.RequestID(ctx),
			"respondent_id", root.ID.String(),
			"category", string(category),
		)
	}
	return revoked, nil
}

// HasConsent reports an active record for the exact key. A global grant does
// not satisfy a survey-scoped check, nor the reverse.
func (s *Service) HasConsent(ctx context.Context, respondentID id.RespondentID, category id.ConsentCategory, survey id.SurveyRef) (bool, error) {
	if err := models.ValidateScope(survey); err != nil {
		return false, toValidation(err)
	}
	root, err := s.respondents.Resolve(ctx, respondentID)
	if err != nil {
		return false, err
	}
	return s.hasConsent(ctx, root.ID, category, survey)
}

func (s *Service) hasConsent(ctx context.Context, respondentID id.RespondentID, category id.ConsentCategory, survey id.SurveyRef) (bool, error) {
	_, err := s.store.FindActive(ctx, respondentID, category, survey)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return false, nil
	default:
		return false, wrapStoreErr(err, "failed to read consent")
	}
}

// List returns the full consent history of the respondent, revoked records
// included, in grant order.
func (s *Service) List(ctx context.Context, respondentID id.RespondentID) ([]*models.Record, error) {
	root, err := s.respondents.Resolve(ctx, respondentID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListByRespondent(ctx, root.ID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list consents")
	}
	return records, nil
}

// Status summarises which categories are actively granted.
func (s *Service) Status(ctx context.Context, respondentID id.RespondentID) (models.Status, error) {
	root, err := s.respondents.Resolve(ctx, respondentID)
	if err != nil {
		return models.Status{}, err
	}
	active, err := s.store.ListActive(ctx, root.ID)
	if err != nil {
		return models.Status{}, wrapStoreErr(err, "failed to read consent status")
	}
	return models.StatusOf(active), nil
}

// ReassignRespondent moves consents during a merge. Runs inside the caller's
// transaction.
func (s *Service) ReassignRespondent(ctx context.Context, from, to id.RespondentID, now time.Time) (int, error) {
	return s.store.ReassignRespondent(ctx, from, to, now)
}

// RevokeAll revokes every active consent of the respondent. Used by erasure
// inside the caller's transaction.
func (s *Service) RevokeAll(ctx context.Context, respondentID id.RespondentID, now time.Time) (int, error) {
	return s.store.RevokeAllActive(ctx, respondentID, now)
}
