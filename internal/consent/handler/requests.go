package handler

import (
	"pollster/internal/consent/models"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
)

const (
	maxVersionLength = 32
	maxDetailKeys    = 32
)

// GrantRequest is the HTTP request body for POST /me/consents.
type GrantRequest struct {
	Category string         `json:"category"`
	SurveyID *int64         `json:"survey_id"`
	Version  string         `json:"version"`
	Details  map[string]any `json:"details"`

	category id.ConsentCategory
}

// Validate implements httputil.Validatable.
func (r *GrantRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	trimStrings(r)
	if len(r.Version) > maxVersionLength {
		return dErrors.New(dErrors.CodeValidation, "version must be at most 32 characters")
	}
	if len(r.Details) > maxDetailKeys {
		return dErrors.New(dErrors.CodeValidation, "details has too many keys")
	}
	if r.SurveyID != nil && *r.SurveyID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "survey_id must be positive")
	}
	category, err := id.ParseConsentCategory(r.Category)
	if err != nil {
		return err
	}
	r.category = category
	return nil
}

// ToModel builds the service request for the resolved respondent.
func (r *GrantRequest) ToModel(respondentID id.RespondentID, source string) models.GrantRequest {
	req := models.GrantRequest{
		RespondentID: respondentID,
		Category:     r.category,
		Source:       source,
		Version:      r.Version,
		Details:      r.Details,
	}
	if r.SurveyID != nil {
		req.Survey = id.Survey(id.SurveyID(*r.SurveyID))
	}
	return req
}
