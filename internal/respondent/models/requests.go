package models

import (
	"time"

	id "pollster/pkg/domain"
)

// ResolveOutcome tells how GetOrCreate found its respondent.
type ResolveOutcome string

const (
	OutcomeSession     ResolveOutcome = "session"
	OutcomeFingerprint ResolveOutcome = "fingerprint"
	OutcomeCreated     ResolveOutcome = "created"
	// OutcomeUser means the signed-in user's own respondent was attached to
	// a session that resolved to someone else.
	OutcomeUser ResolveOutcome = "user"
)

// GetOrCreateRequest carries everything known about the visitor on this
// request. Only SessionToken is required.
type GetOrCreateRequest struct {
	SessionToken   string
	Fingerprint    string
	ClientIP       string
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	Referrer       string
	UserID         *id.UserID
	EntryPoint     id.EntryPoint
	// External is a channel payload such as a Telegram WebApp user.
	External Blob
	// Anonymous is an optional self-reported profile hint.
	Anonymous *AnonymousProfile
}

// AnonymousProfile is personal data a visitor volunteers without an account.
type AnonymousProfile struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Resolution is the result of GetOrCreate. Verified is false when nothing
// on the request proves the visitor is the respondent, as with a fingerprint
// adoption or an account-linked respondent reached without signing in.
type Resolution struct {
	Respondent *Respondent
	Outcome    ResolveOutcome
	Linked     bool
	Verified   bool
}

// Session is a token that resolves to a respondent. An adopted session was
// attached by fingerprint match and does not prove ownership.
type Session struct {
	Token        string
	RespondentID id.RespondentID
	Adopted      bool
	CreatedAt    time.Time
}

// LocationUpdate carries coarse geo attributes and an optional precise fix.
type LocationUpdate struct {
	Country  string
	Region   string
	City     string
	Timezone string
	Precise  *Location
}

// Geo returns the coarse attributes as a blob, omitting empty values.
func (u LocationUpdate) Geo() Blob {
	geo := Blob{}
	for k, v := range map[string]string{
		"country":  u.Country,
		"region":   u.Region,
		"city":     u.City,
		"timezone": u.Timezone,
	} {
		if v != "" {
			geo[k] = v
		}
	}
	return geo
}

// Page bounds an admin listing.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ListResult is one page of respondents.
type ListResult struct {
	Respondents []*Respondent `json:"respondents"`
	Total       int           `json:"total"`
	Limit       int           `json:"limit"`
	Offset      int           `json:"offset"`
}

// MergeResult describes a completed merge.
type MergeResult struct {
	SourceID        id.RespondentID `json:"source_id"`
	TargetID        id.RespondentID `json:"target_id"`
	Events          int             `json:"events"`
	Consents        int             `json:"consents"`
	Participations  int             `json:"participations"`
	Answers         int             `json:"answers"`
	RetainedSurveys []id.SurveyID   `json:"retained_surveys,omitempty"`
	MergedAt        time.Time       `json:"merged_at"`
}
