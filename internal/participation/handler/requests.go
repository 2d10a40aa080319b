package handler

import (
	"encoding/json"
	"strings"

	"pollster/internal/participation/models"
	dErrors "pollster/pkg/domain-errors"
)

const (
	maxReasonLength = 500
	maxSourceLength = 64
	maxAnswers      = 500
)

// ProgressRequest is the HTTP request body for PUT .../progress.
type ProgressRequest struct {
	Answered         int `json:"answered"`
	Total            int `json:"total"`
	TimeSpentSeconds int `json:"time_spent_seconds"`
}

// Validate implements httputil.Validatable.
func (r *ProgressRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return r.Progress().Validate()
}

func (r *ProgressRequest) Progress() models.Progress {
	return models.Progress{
		Answered:         r.Answered,
		Total:            r.Total,
		TimeSpentSeconds: r.TimeSpentSeconds,
	}
}

// CompleteRequest is the optional body of POST .../complete.
type CompleteRequest struct {
	Source string `json:"source"`
}

// Validate implements httputil.Validatable. An empty body is allowed.
func (r *CompleteRequest) Validate() error {
	r.Source = strings.TrimSpace(r.Source)
	if len(r.Source) > maxSourceLength {
		return dErrors.New(dErrors.CodeValidation, "source must be at most 64 characters")
	}
	return nil
}

// AbandonRequest is the optional body of POST .../abandon.
type AbandonRequest struct {
	Reason string `json:"reason"`
}

// Validate implements httputil.Validatable. An empty body is allowed.
func (r *AbandonRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 500 characters")
	}
	return nil
}

// AnswersRequest is the HTTP request body for POST .../answers, keyed by
// question.
type AnswersRequest struct {
	Answers map[string]json.RawMessage `json:"answers"`
}

// Validate implements httputil.Validatable. Per-answer checks happen in the
// answers service.
func (r *AnswersRequest) Validate() error {
	if r == nil || len(r.Answers) == 0 {
		return dErrors.New(dErrors.CodeValidation, "answers are required")
	}
	if len(r.Answers) > maxAnswers {
		return dErrors.New(dErrors.CodeValidation, "too many answers in one submission")
	}
	return nil
}
