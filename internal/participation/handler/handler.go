package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	answermodels "pollster/internal/answers/models"
	"pollster/internal/participation/models"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
	"pollster/pkg/platform/httputil"
	"pollster/pkg/requestcontext"
)

// Service defines the participation operations exposed over HTTP.
type Service interface {
	Start(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID, source string) (*models.Record, error)
	UpdateProgress(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID, progress models.Progress) (*models.Record, error)
	Complete(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID, source string) (*models.Record, error)
	Abandon(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID, reason string) (*models.Record, error)
	Get(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID) (*models.Record, error)
	ListByRespondent(ctx context.Context, respondentID id.RespondentID) ([]*models.Record, error)
}

// Answers stores survey answers behind the compliance gate.
type Answers interface {
	Submit(ctx context.Context, respondentID id.RespondentID, sub answermodels.Submission) ([]*answermodels.Answer, error)
}

// Handler wires survey participation endpoints.
type Handler struct {
	service Service
	answers Answers
	logger  *slog.Logger
}

// New constructs a participation handler.
func New(service Service, answers Answers, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		answers: answers,
		logger:  logger,
	}
}

// Register mounts participation endpoints behind respondent resolution.
func (h *Handler) Register(r chi.Router) {
	r.Get("/me/participations", h.HandleList)
	r.Post("/me/surveys/{survey_id}/start", h.HandleStart)
	r.Put("/me/surveys/{survey_id}/progress", h.HandleProgress)
	r.Post("/me/surveys/{survey_id}/complete", h.HandleComplete)
	r.Post("/me/surveys/{survey_id}/abandon", h.HandleAbandon)
	r.Get("/me/surveys/{survey_id}/participation", h.HandleGet)
	r.Post("/me/surveys/{survey_id}/answers", h.HandleSubmitAnswers)
}

// HandleStart handles POST /me/surveys/{survey_id}/start. Starting twice
// returns the existing participation.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	respondentID, surveyID, ok := pair(w, r)
	if !ok {
		return
	}
	record, err := h.service.Start(ctx, respondentID, surveyID, string(requestcontext.EntryPoint(ctx)))
	h.respond(w, r, "start", surveyID, record, err)
}

// HandleProgress handles PUT /me/surveys/{survey_id}/progress.
func (h *Handler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	respondentID, surveyID, ok := pair(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ProgressRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	record, err := h.service.UpdateProgress(ctx, respondentID, surveyID, req.Progress())
	h.respond(w, r, "progress", surveyID, record, err)
}

// HandleComplete handles POST /me/surveys/{survey_id}/complete.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	respondentID, surveyID, ok := pair(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CompleteRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	source := req.Source
	if source == "" {
		source = string(requestcontext.EntryPoint(ctx))
	}
	record, err := h.service.Complete(ctx, respondentID, surveyID, source)
	h.respond(w, r, "complete", surveyID, record, err)
}

// HandleAbandon handles POST /me/surveys/{survey_id}/abandon.
func (h *Handler) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	respondentID, surveyID, ok := pair(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AbandonRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	record, err := h.service.Abandon(ctx, respondentID, surveyID, req.Reason)
	h.respond(w, r, "abandon", surveyID, record, err)
}

// HandleGet handles GET /me/surveys/{survey_id}/participation.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	respondentID, surveyID, ok := pair(w, r)
	if !ok {
		return
	}
	record, err := h.service.Get(r.Context(), respondentID, surveyID)
	h.respond(w, r, "get", surveyID, record, err)
}

// HandleList handles GET /me/participations.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	respondentID, ok := requestcontext.RespondentID(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "session token required"))
		return
	}
	records, err := h.service.ListByRespondent(ctx, respondentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list participations",
			"request_id", requestcontext.RequestID(ctx),
			"respondent_id", respondentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if records == nil {
		records = []*models.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Participations: records})
}

// HandleSubmitAnswers handles POST /me/surveys/{survey_id}/answers. Missing
// mandatory consents yield 403 with the categories to ask for.
func (h *Handler) HandleSubmitAnswers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	respondentID, surveyID, ok := pair(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AnswersRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	saved, err := h.answers.Submit(ctx, respondentID, answermodels.Submission{SurveyID: surveyID, Answers: req.Answers})
	if err != nil {
		h.logger.WarnContext(ctx, "answers rejected",
			"request_id", requestID,
			"respondent_id", respondentID,
			"survey_id", int64(surveyID),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, AnswersResponse{SurveyID: surveyID, Saved: len(saved)})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, op string, surveyID id.SurveyID, record *models.Record, err error) {
	ctx := r.Context()
	if err != nil {
		h.logger.WarnContext(ctx, "participation "+op+" failed",
			"request_id", requestcontext.RequestID(ctx),
			"survey_id", int64(surveyID),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// pair reads the respondent from the context and the survey from the path.
func pair(w http.ResponseWriter, r *http.Request) (id.RespondentID, id.SurveyID, bool) {
	respondentID, ok := requestcontext.RespondentID(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "session token required"))
		return id.RespondentID{}, 0, false
	}
	surveyID, err := id.ParseSurveyID(chi.URLParam(r, "survey_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.RespondentID{}, 0, false
	}
	return respondentID, surveyID, true
}
