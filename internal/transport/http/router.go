package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	compliancehandler "pollster/internal/compliance/handler"
	consenthandler "pollster/internal/consent/handler"
	participationhandler "pollster/internal/participation/handler"
	respondenthandler "pollster/internal/respondent/handler"
	statshandler "pollster/internal/stats/handler"
	"pollster/pkg/platform/httputil"
	"pollster/pkg/platform/middleware/admin"
	"pollster/pkg/platform/middleware/auth"
	"pollster/pkg/platform/middleware/metadata"
	"pollster/pkg/platform/middleware/requestid"
	"pollster/pkg/platform/middleware/requesttime"
	"pollster/pkg/platform/middleware/session"
)

// requestTimeout bounds every request, including the store round trips of
// respondent resolution.
const requestTimeout = 30 * time.Second

// Handlers groups the module handlers mounted by the router.
type Handlers struct {
	Respondents    *respondenthandler.Handler
	Consents       *consenthandler.Handler
	Participations *participationhandler.Handler
	Compliance     *compliancehandler.Handler
	Stats          *statshandler.Handler
}

// Config carries the transport-level settings.
type Config struct {
	AdminToken   string
	SecureCookie bool
	Tokens       auth.TokenValidator
	// TrustProxyHeaders takes the client IP from forwarding headers.
	TrustProxyHeaders bool
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error
}

// NewRouter wires all public endpoints.
//
// Visitor routes run behind session minting and respondent resolution, so
// every handler below them finds a respondent id in the request context.
func NewRouter(cfg Config, h Handlers, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(chimiddleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(req.Context()); err != nil {
				logger.WarnContext(req.Context(), "readiness check failed", "error", err)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(metadata.Middleware(cfg.TrustProxyHeaders))
		r.Use(auth.OptionalAuth(cfg.Tokens, logger))
		r.Use(session.Ensure(cfg.SecureCookie))
		r.Use(h.Respondents.ResolveRespondent)

		h.Respondents.Register(r)
		h.Consents.Register(r)
		h.Participations.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(h.Respondents.RequireVerifiedSession)
			h.Respondents.RegisterVerified(r)
			h.Consents.RegisterVerified(r)
			h.Compliance.RegisterVerified(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(logger))
			h.Respondents.RegisterAuthenticated(r)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.RequireAdminToken(cfg.AdminToken, logger))
		h.Respondents.RegisterAdmin(r)
		h.Compliance.RegisterAdmin(r)
		h.Stats.RegisterAdmin(r)
	})

	return r
}
