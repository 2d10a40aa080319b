package handler

import (
	"strings"
	"time"

	dErrors "pollster/pkg/domain-errors"
)

// minRetention keeps an operator typo from wiping the whole audit log.
const minRetention = 24 * time.Hour

// PruneRequest is the HTTP request body for POST /admin/events/prune.
type PruneRequest struct {
	OlderThan string `json:"older_than"`

	horizon time.Duration
}

// Validate implements httputil.Validatable.
func (r *PruneRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	raw := strings.TrimSpace(r.OlderThan)
	if raw == "" {
		return dErrors.New(dErrors.CodeValidation, "older_than is required")
	}
	horizon, err := time.ParseDuration(raw)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "older_than must be a duration such as 2160h")
	}
	if horizon < minRetention {
		return dErrors.New(dErrors.CodeValidation, "older_than must be at least 24h")
	}
	r.horizon = horizon
	return nil
}

func (r *PruneRequest) Horizon() time.Duration {
	return r.horizon
}
