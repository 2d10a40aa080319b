package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pollster/internal/consent/models"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
	"pollster/pkg/platform/httputil"
	"pollster/pkg/requestcontext"
)

// Service defines the interface for consent operations.
type Service interface {
	Grant(ctx context.Context, req models.GrantRequest) (*models.Record, error)
	Revoke(ctx context.Context, respondentID id.RespondentID, category id.ConsentCategory, survey id.SurveyRef) (bool, error)
	List(ctx context.Context, respondentID id.RespondentID) ([]*models.Record, error)
	Status(ctx context.Context, respondentID id.RespondentID) (models.Status, error)
	CheckRequirements(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID) (*models.CheckResult, error)
}

// Handler handles consent endpoints for the resolved respondent.
type Handler struct {
	logger  *slog.Logger
	consent Service
}

// New creates a new consent Handler.
func New(consent Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		consent: consent,
	}
}

// Register registers the read-only consent routes. The router must resolve
// the respondent first.
func (h *Handler) Register(r chi.Router) {
	r.Get("/me/consents", h.HandleList)
	r.Get("/me/consents/status", h.HandleStatus)
	r.Get("/me/surveys/{survey_id}/requirements", h.HandleRequirements)
}

// RegisterVerified registers grant and revoke. Only a session that owns the
// respondent may change its consents.
func (h *Handler) RegisterVerified(r chi.Router) {
	r.Post("/me/consents", h.HandleGrant)
	r.Delete("/me/consents/{category}", h.HandleRevoke)
}

// HandleGrant handles POST /me/consents.
func (h *Handler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	respondentID, ok := currentRespondent(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[GrantRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.consent.Grant(ctx, req.ToModel(respondentID, string(requestcontext.EntryPoint(ctx))))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to grant consent",
			"request_id", requestID,
			"respondent_id", respondentID,
			"category", req.Category,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromRecord(record))
}

// HandleRevoke handles DELETE /me/consents/{category}. The optional survey_id
// query parameter selects a survey-scoped record.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	respondentID, ok := currentRespondent(w, r)
	if !ok {
		return
	}
	category, err := id.ParseConsentCategory(chi.URLParam(r, "category"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	survey, err := surveyQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	revoked, err := h.consent.Revoke(ctx, respondentID, category, survey)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to revoke consent",
			"request_id", requestID,
			"respondent_id", respondentID,
			"category", category,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RevokeResponse{Category: category, Revoked: revoked})
}

// HandleList handles GET /me/consents: the full history, revoked included.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	respondentID, ok := currentRespondent(w, r)
	if !ok {
		return
	}
	records, err := h.consent.List(ctx, respondentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list consents",
			"request_id", requestcontext.RequestID(ctx),
			"respondent_id", respondentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecords(records))
}

// HandleStatus handles GET /me/consents/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	respondentID, ok := currentRespondent(w, r)
	if !ok {
		return
	}
	status, err := h.consent.Status(ctx, respondentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// HandleRequirements handles GET /me/surveys/{survey_id}/requirements. It
// tells the client which categories to ask for before the survey starts.
func (h *Handler) HandleRequirements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	respondentID, ok := currentRespondent(w, r)
	if !ok {
		return
	}
	surveyID, err := id.ParseSurveyID(chi.URLParam(r, "survey_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.consent.CheckRequirements(ctx, respondentID, surveyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func currentRespondent(w http.ResponseWriter, r *http.Request) (id.RespondentID, bool) {
	respondentID, ok := requestcontext.RespondentID(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "session token required"))
		return id.RespondentID{}, false
	}
	return respondentID, true
}

func surveyQuery(r *http.Request) (id.SurveyRef, error) {
	raw := r.URL.Query().Get("survey_id")
	if raw == "" {
		return nil, nil
	}
	surveyID, err := id.ParseSurveyID(raw)
	if err != nil {
		return nil, err
	}
	return id.Survey(surveyID), nil
}
