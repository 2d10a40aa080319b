package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pollster/internal/stats/models"
	"pollster/pkg/platform/httputil"
	"pollster/pkg/requestcontext"
)

// Service reads the statistics read-model.
type Service interface {
	Snapshot(ctx context.Context) (*models.Snapshot, error)
}

// Handler serves operator statistics.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterAdmin mounts GET /stats.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/stats", h.HandleSnapshot)
}

// HandleSnapshot returns every counter section. The counters trail the
// event stream.
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snapshot, err := h.service.Snapshot(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read statistics",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snapshot)
}
