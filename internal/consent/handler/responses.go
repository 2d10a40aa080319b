package handler

import (
	"time"

	"pollster/internal/consent/models"
	id "pollster/pkg/domain"
)

// RecordResponse is one consent record as shown to its respondent.
type RecordResponse struct {
	ID        id.ConsentID       `json:"id"`
	Category  id.ConsentCategory `json:"category"`
	SurveyID  *id.SurveyID       `json:"survey_id,omitempty"`
	Active    bool               `json:"active"`
	Version   string             `json:"version"`
	GrantedAt time.Time          `json:"granted_at"`
	RevokedAt *time.Time         `json:"revoked_at,omitempty"`
}

func FromRecord(r *models.Record) RecordResponse {
	return RecordResponse{
		ID:        r.ID,
		Category:  r.Category,
		SurveyID:  r.SurveyID,
		Active:    r.IsActive(),
		Version:   r.Version,
		GrantedAt: r.GrantedAt,
		RevokedAt: r.RevokedAt,
	}
}

// ListResponse is the consent history of a respondent.
type ListResponse struct {
	Consents []RecordResponse `json:"consents"`
}

func FromRecords(records []*models.Record) ListResponse {
	out := ListResponse{Consents: make([]RecordResponse, 0, len(records))}
	for _, r := range records {
		out.Consents = append(out.Consents, FromRecord(r))
	}
	return out
}

// RevokeResponse reports whether an active record was revoked.
type RevokeResponse struct {
	Category id.ConsentCategory `json:"category"`
	Revoked  bool               `json:"revoked"`
}
