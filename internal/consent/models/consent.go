package models

import (
	"time"

	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
)

// DefaultVersion tags grants made without an explicit policy version.
const DefaultVersion = "1.0"

// Record is one consent decision for a (respondent, category, survey) key. A
// nil SurveyID scopes the record globally; global and survey-scoped records
// are distinct keys.
//
// Invariants:
//   - Category is one of the supported categories
//   - RevokedAt, once set, never changes
//   - at most one active record exists per key
type Record struct {
	ID           id.ConsentID       `json:"id"`
	RespondentID id.RespondentID    `json:"respondent_id"`
	SurveyID     id.SurveyRef       `json:"survey_id,omitempty"`
	Category     id.ConsentCategory `json:"category"`
	Granted      bool               `json:"granted"`
	GrantedAt    time.Time          `json:"granted_at"`
	RevokedAt    *time.Time         `json:"revoked_at,omitempty"`
	Version      string             `json:"version"`
	Details      map[string]any     `json:"details,omitempty"`
	Source       string             `json:"source"`
	IPAddress    string             `json:"ip_address,omitempty"`
	UserAgent    string             `json:"user_agent,omitempty"`
}

// GrantParams describes a new grant.
type GrantParams struct {
	RespondentID id.RespondentID
	Category     id.ConsentCategory
	Survey       id.SurveyRef
	Version      string
	Details      map[string]any
	Source       string
	IPAddress    string
	UserAgent    string
}

func NewGrant(consentID id.ConsentID, p GrantParams, now time.Time) (*Record, error) {
	if p.RespondentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "consent requires a respondent")
	}
	if !p.Category.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid consent category: "+string(p.Category))
	}
	if err := ValidateScope(p.Survey); err != nil {
		return nil, err
	}
	version := p.Version
	if version == "" {
		version = DefaultVersion
	}
	return &Record{
		ID:           consentID,
		RespondentID: p.RespondentID,
		SurveyID:     copyRef(p.Survey),
		Category:     p.Category,
		Granted:      true,
		GrantedAt:    now,
		Version:      version,
		Details:      p.Details,
		Source:       p.Source,
		IPAddress:    p.IPAddress,
		UserAgent:    p.UserAgent,
	}, nil
}

// ValidateScope rejects a survey scope that is not a positive id. A nil
// scope is global.
func ValidateScope(survey id.SurveyRef) error {
	if survey != nil && *survey <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "survey id must be positive")
	}
	return nil
}

// IsActive reports a granted, unrevoked record.
func (r *Record) IsActive() bool {
	return r.Granted && r.RevokedAt == nil
}

// Matches reports whether the record belongs to the exact key.
func (r *Record) Matches(category id.ConsentCategory, survey id.SurveyRef) bool {
	return r.Category == category && id.SameSurvey(r.SurveyID, survey)
}

// SameKey reports whether two records share category and survey scope.
func (r *Record) SameKey(other *Record) bool {
	return r.Matches(other.Category, other.SurveyID)
}

// CanRevoke rejects revoking an inactive record.
func (r *Record) CanRevoke() error {
	if !r.IsActive() {
		return dErrors.New(dErrors.CodeInvariantViolation, "consent is not active")
	}
	return nil
}

// ApplyRevocation marks the record revoked.
// Must only be called after CanRevoke returns nil.
func (r *Record) ApplyRevocation(now time.Time) {
	r.RevokedAt = &now
}

// Supersedes reports whether r should survive over other when both are active
// for the same key: the most recent grant wins.
func (r *Record) Supersedes(other *Record) bool {
	return r.GrantedAt.After(other.GrantedAt)
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.SurveyID = copyRef(r.SurveyID)
	if r.RevokedAt != nil {
		t := *r.RevokedAt
		c.RevokedAt = &t
	}
	if r.Details != nil {
		c.Details = make(map[string]any, len(r.Details))
		for k, v := range r.Details {
			c.Details[k] = v
		}
	}
	return &c
}

func copyRef(ref id.SurveyRef) id.SurveyRef {
	if ref == nil {
		return nil
	}
	return id.Survey(*ref)
}
