package handler

import (
	"time"

	eventmodels "pollster/internal/events/models"
	"pollster/internal/respondent/models"
	id "pollster/pkg/domain"
)

// RespondentResponse is what a visitor sees about themselves.
type RespondentResponse struct {
	ID              id.RespondentID  `json:"id"`
	EntryPoint      id.EntryPoint    `json:"entry_point"`
	IsAnonymous     bool             `json:"is_anonymous"`
	Authenticated   bool             `json:"authenticated"`
	Verified        bool             `json:"verified"`
	AnonymousName   string           `json:"anonymous_name,omitempty"`
	AnonymousEmail  string           `json:"anonymous_email,omitempty"`
	GeoInfo         models.Blob      `json:"geo_info,omitempty"`
	PreciseLocation *models.Location `json:"precise_location,omitempty"`
	FirstSeenAt     time.Time        `json:"first_seen_at"`
	LastActivityAt  time.Time        `json:"last_activity_at"`
}

// FromRespondent converts a respondent to its visitor-facing form.
func FromRespondent(r *models.Respondent) *RespondentResponse {
	return &RespondentResponse{
		ID:              r.ID,
		EntryPoint:      r.EntryPoint,
		IsAnonymous:     r.IsAnonymous,
		Authenticated:   r.UserID != nil,
		AnonymousName:   r.AnonymousName,
		AnonymousEmail:  r.AnonymousEmail,
		GeoInfo:         r.GeoInfo,
		PreciseLocation: r.PreciseLocation,
		FirstSeenAt:     r.FirstSeenAt,
		LastActivityAt:  r.LastActivityAt,
	}
}

// forSession marks whether the session proved ownership and, when it did
// not, drops the personal data the respondent volunteered.
func (r *RespondentResponse) forSession(verified bool) *RespondentResponse {
	r.Verified = verified
	if !verified {
		r.AnonymousName = ""
		r.AnonymousEmail = ""
		r.GeoInfo = nil
		r.PreciseLocation = nil
	}
	return r
}

// AutoMergeResponse lists the respondents folded into the primary one.
type AutoMergeResponse struct {
	Merged []id.RespondentID `json:"merged"`
}

// TimelineResponse is a page of a respondent's events, newest first.
type TimelineResponse struct {
	RespondentID id.RespondentID      `json:"respondent_id"`
	Events       []*eventmodels.Event `json:"events"`
}
