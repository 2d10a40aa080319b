package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	eventmodels "pollster/internal/events/models"
	"pollster/internal/respondent/models"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
	"pollster/pkg/platform/httputil"
	"pollster/pkg/platform/middleware/metadata"
	"pollster/pkg/requestcontext"
)

// Service defines the respondent operations exposed over HTTP.
type Service interface {
	GetOrCreate(ctx context.Context, req models.GetOrCreateRequest) (*models.Resolution, error)
	Resolve(ctx context.Context, respondentID id.RespondentID) (*models.Respondent, error)
	Get(ctx context.Context, respondentID id.RespondentID) (*models.Respondent, error)
	List(ctx context.Context, page models.Page) (*models.ListResult, error)
	UpdateLocation(ctx context.Context, respondentID id.RespondentID, update models.LocationUpdate, survey id.SurveyRef) (*models.Respondent, error)
	UpdateAnonymousProfile(ctx context.Context, respondentID id.RespondentID, profile models.AnonymousProfile, survey id.SurveyRef) (*models.Respondent, error)
	AutoMerge(ctx context.Context, userID id.UserID) ([]id.RespondentID, error)
	Merge(ctx context.Context, source, target id.RespondentID) (*models.MergeResult, error)
}

// Timeline reads a respondent's recent events, newest first.
type Timeline interface {
	Timeline(ctx context.Context, respondentID id.RespondentID, limit int) ([]*eventmodels.Event, error)
}

const (
	defaultTimelineLimit = 50
	maxTimelineLimit     = 500
)

// Handler wires respondent endpoints to the respondent service.
type Handler struct {
	service  Service
	timeline Timeline
	logger   *slog.Logger
}

// New constructs a respondent handler with its dependencies.
func New(service Service, timeline Timeline, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		timeline: timeline,
		logger:   logger,
	}
}

// Register mounts visitor endpoints. The router must run ResolveRespondent
// in front of them.
func (h *Handler) Register(r chi.Router) {
	r.Get("/me", h.HandleMe)
}

// RegisterVerified mounts endpoints that write personal data. The router
// must run RequireVerifiedSession in front of them.
func (h *Handler) RegisterVerified(r chi.Router) {
	r.Put("/me/location", h.HandleUpdateLocation)
	r.Put("/me/profile", h.HandleUpdateProfile)
}

// RegisterAuthenticated mounts endpoints that need a signed-in user.
func (h *Handler) RegisterAuthenticated(r chi.Router) {
	r.Post("/me/merge", h.HandleAutoMerge)
}

// RegisterAdmin mounts operator endpoints.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/respondents", h.HandleList)
	r.Get("/respondents/{respondent_id}", h.HandleGet)
	r.Post("/respondents/{respondent_id}/merge", h.HandleMerge)
	r.Get("/respondents/{respondent_id}/events", h.HandleTimeline)
}

// ResolveRespondent resolves the visitor to a respondent and stores its id in
// the request context. The session token must already be present.
func (h *Handler) ResolveRespondent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		req := models.GetOrCreateRequest{
			SessionToken:   requestcontext.SessionToken(ctx),
			ClientIP:       requestcontext.ClientIP(ctx),
			UserAgent:      requestcontext.UserAgent(ctx),
			AcceptLanguage: requestcontext.AcceptLanguage(ctx),
			AcceptEncoding: requestcontext.AcceptEncoding(ctx),
			Referrer:       requestcontext.Referrer(ctx),
			EntryPoint:     requestcontext.EntryPoint(ctx),
			External:       telegramData(r.Header.Get(metadata.TelegramInitDataHeader)),
		}
		if userID, ok := requestcontext.UserID(ctx); ok {
			req.UserID = &userID
		}

		res, err := h.service.GetOrCreate(ctx, req)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to resolve respondent",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			httputil.WriteError(w, err)
			return
		}
		if res.Outcome == models.OutcomeCreated || res.Linked {
			h.logger.InfoContext(ctx, "respondent resolved",
				"request_id", requestcontext.RequestID(ctx),
				"respondent_id", res.Respondent.ID,
				"outcome", res.Outcome,
				"linked", res.Linked,
			)
		}
		ctx = requestcontext.WithRespondentID(ctx, res.Respondent.ID)
		ctx = requestcontext.WithSessionVerified(ctx, res.Verified)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireVerifiedSession rejects requests whose session has not proven it
// owns the resolved respondent. Fingerprint adoption resolves a visitor but
// never grants access to their personal data.
func (h *Handler) RequireVerifiedSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if !requestcontext.SessionVerified(ctx) {
			respondentID, _ := requestcontext.RespondentID(ctx)
			h.logger.WarnContext(ctx, "unverified session refused",
				"request_id", requestcontext.RequestID(ctx),
				"respondent_id", respondentID,
				"path", r.URL.Path,
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "session has not been verified for this respondent; sign in to continue"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleMe handles GET /me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	respondentID, ok := h.currentRespondent(w, r)
	if !ok {
		return
	}
	resp, err := h.service.Resolve(ctx, respondentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load respondent",
			"request_id", requestcontext.RequestID(ctx),
			"respondent_id", respondentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRespondent(resp).forSession(requestcontext.SessionVerified(ctx)))
}

// HandleUpdateLocation handles PUT /me/location.
func (h *Handler) HandleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	respondentID, ok := h.currentRespondent(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[LocationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	resp, err := h.service.UpdateLocation(ctx, respondentID, req.Update(), req.Survey())
	if err != nil {
		h.logger.WarnContext(ctx, "location update rejected",
			"request_id", requestID,
			"respondent_id", respondentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRespondent(resp).forSession(true))
}

// HandleUpdateProfile handles PUT /me/profile.
func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	respondentID, ok := h.currentRespondent(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ProfileRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	resp, err := h.service.UpdateAnonymousProfile(ctx, respondentID, req.Profile(), req.Survey())
	if err != nil {
		h.logger.WarnContext(ctx, "profile update rejected",
			"request_id", requestID,
			"respondent_id", respondentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRespondent(resp).forSession(true))
}

// HandleAutoMerge handles POST /me/merge. It folds the signed-in user's
// anonymous history into their primary respondent.
func (h *Handler) HandleAutoMerge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID, ok := requestcontext.UserID(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	merged, err := h.service.AutoMerge(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "auto merge failed",
			"request_id", requestID,
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "auto merge completed",
		"request_id", requestID,
		"user_id", userID,
		"merged", len(merged),
	)
	httputil.WriteJSON(w, http.StatusOK, AutoMergeResponse{Merged: merged})
}

// HandleList handles GET /admin/respondents.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := parsePage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.List(ctx, page)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list respondents",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleGet handles GET /admin/respondents/{respondent_id}. Merged and
// erased respondents are returned as stored.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	respondentID, err := id.ParseRespondentID(chi.URLParam(r, "respondent_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp, err := h.service.Get(ctx, respondentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleMerge handles POST /admin/respondents/{respondent_id}/merge.
func (h *Handler) HandleMerge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	source, err := id.ParseRespondentID(chi.URLParam(r, "respondent_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[MergeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Merge(ctx, source, req.Target())
	if err != nil {
		h.logger.ErrorContext(ctx, "manual merge failed",
			"request_id", requestID,
			"source_id", source,
			"target_id", req.TargetID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "manual merge completed",
		"request_id", requestID,
		"source_id", result.SourceID,
		"target_id", result.TargetID,
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleTimeline handles GET /admin/respondents/{respondent_id}/events.
func (h *Handler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	respondentID, err := id.ParseRespondentID(chi.URLParam(r, "respondent_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit := defaultTimelineLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxTimelineLimit)
	}

	events, err := h.timeline.Timeline(ctx, respondentID, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read timeline",
			"request_id", requestcontext.RequestID(ctx),
			"respondent_id", respondentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TimelineResponse{RespondentID: respondentID, Events: events})
}

func (h *Handler) currentRespondent(w http.ResponseWriter, r *http.Request) (id.RespondentID, bool) {
	respondentID, ok := requestcontext.RespondentID(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "session token required"))
		return id.RespondentID{}, false
	}
	return respondentID, true
}
