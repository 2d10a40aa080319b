package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pollster/internal/compliance/models"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
	"pollster/pkg/platform/httputil"
	"pollster/pkg/platform/middleware/metadata"
	"pollster/pkg/requestcontext"
)

// Service defines the data subject operations.
type Service interface {
	Export(ctx context.Context, respondentID id.RespondentID) (*models.Bundle, error)
	Erase(ctx context.Context, respondentID id.RespondentID) (*models.ErasureResult, error)
	PruneEvents(ctx context.Context, horizon time.Duration) (*models.PruneResult, error)
}

// Handler serves export and erasure for respondents and operators.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a compliance handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterVerified mounts self-service endpoints. The router must resolve the
// respondent and require a verified session in front of them.
func (h *Handler) RegisterVerified(r chi.Router) {
	r.Get("/me/export", h.HandleExportMe)
	r.Delete("/me", h.HandleEraseMe)
}

// RegisterAdmin mounts operator endpoints.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/respondents/{respondent_id}/export", h.HandleExport)
	r.Delete("/respondents/{respondent_id}", h.HandleErase)
	r.Post("/events/prune", h.HandlePrune)
}

// HandleExportMe handles GET /me/export.
func (h *Handler) HandleExportMe(w http.ResponseWriter, r *http.Request) {
	respondentID, ok := requestcontext.RespondentID(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "session token required"))
		return
	}
	h.export(w, r, respondentID)
}

// HandleEraseMe handles DELETE /me and clears the session cookie.
func (h *Handler) HandleEraseMe(w http.ResponseWriter, r *http.Request) {
	respondentID, ok := requestcontext.RespondentID(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "session token required"))
		return
	}
	result, err := h.erase(r, respondentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     metadata.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleExport handles GET /admin/respondents/{respondent_id}/export.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	respondentID, err := id.ParseRespondentID(chi.URLParam(r, "respondent_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.export(w, r, respondentID)
}

// HandleErase handles DELETE /admin/respondents/{respondent_id}.
func (h *Handler) HandleErase(w http.ResponseWriter, r *http.Request) {
	respondentID, err := id.ParseRespondentID(chi.URLParam(r, "respondent_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.erase(r, respondentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandlePrune handles POST /admin/events/prune.
func (h *Handler) HandlePrune(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[PruneRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.PruneEvents(ctx, req.Horizon())
	if err != nil {
		h.logger.ErrorContext(ctx, "event pruning failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "events pruned",
		"request_id", requestID,
		"cutoff", result.Cutoff,
		"deleted", result.Deleted,
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request, respondentID id.RespondentID) {
	ctx := r.Context()
	bundle, err := h.service.Export(ctx, respondentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "export failed",
			"request_id", requestcontext.RequestID(ctx),
			"respondent_id", respondentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="respondent-`+bundle.Respondent.ID.String()+`.json"`)
	httputil.WriteJSON(w, http.StatusOK, bundle)
}

func (h *Handler) erase(r *http.Request, respondentID id.RespondentID) (*models.ErasureResult, error) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	result, err := h.service.Erase(ctx, respondentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "erasure failed",
			"request_id", requestID,
			"respondent_id", respondentID,
			"error", err,
		)
		return nil, err
	}
	h.logger.InfoContext(ctx, "respondent erased",
		"request_id", requestID,
		"respondent_id", result.RespondentID,
		"erased", len(result.Erased),
	)
	return result, nil
}
