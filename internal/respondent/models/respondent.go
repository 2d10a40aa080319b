package models

import (
	"time"

	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
)

// Blob is a structured, schemaless attribute bag (browser, device, geo...).
type Blob map[string]any

// Location is a precise position reported by the client. It is regulated data
// and is only stored with location consent.
type Location struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// Respondent is the aggregate root for one visitor, anonymous or linked to an
// authenticated user.
//
// Invariants:
//   - SessionToken is non-empty
//   - an authenticated respondent (IsAnonymous == false) has a UserID
//   - IsMerged implies !IsActive and MergedIntoID != nil
//   - MergedIntoID never points to the respondent itself
//   - a merged respondent is never modified again
//   - anonymous -> authenticated happens at most once and never reverses
type Respondent struct {
	ID              id.RespondentID  `json:"id"`
	UserID          *id.UserID       `json:"user_id,omitempty"`
	SessionToken    string           `json:"session_token"`
	Fingerprint     string           `json:"fingerprint,omitempty"`
	IPAddress       string           `json:"ip_address,omitempty"`
	UserAgent       string           `json:"user_agent,omitempty"`
	BrowserInfo     Blob             `json:"browser_info,omitempty"`
	DeviceInfo      Blob             `json:"device_info,omitempty"`
	GeoInfo         Blob             `json:"geo_info,omitempty"`
	ReferrerInfo    Blob             `json:"referrer_info,omitempty"`
	TelegramData    Blob             `json:"telegram_data,omitempty"`
	EntryPoint      id.EntryPoint    `json:"entry_point"`
	PreciseLocation *Location        `json:"precise_location,omitempty"`
	AnonymousName   string           `json:"anonymous_name,omitempty"`
	AnonymousEmail  string           `json:"anonymous_email,omitempty"`
	IsAnonymous     bool             `json:"is_anonymous"`
	IsActive        bool             `json:"is_active"`
	IsMerged        bool             `json:"is_merged"`
	MergedIntoID    *id.RespondentID `json:"merged_into_id,omitempty"`
	MergedAt        *time.Time       `json:"merged_at,omitempty"`
	FirstSeenAt     time.Time        `json:"first_seen_at"`
	LastActivityAt  time.Time        `json:"last_activity_at"`
	DeletedAt       *time.Time       `json:"deleted_at,omitempty"`
}

// NewParams carries the client signals captured when a respondent is created.
type NewParams struct {
	SessionToken string
	UserID       *id.UserID
	Fingerprint  string
	IPAddress    string
	UserAgent    string
	BrowserInfo  Blob
	DeviceInfo   Blob
	GeoInfo      Blob
	ReferrerInfo Blob
	TelegramData Blob
	EntryPoint   id.EntryPoint
}

func NewRespondent(respondentID id.RespondentID, p NewParams, now time.Time) (*Respondent, error) {
	if respondentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "respondent id cannot be nil")
	}
	if p.SessionToken == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session token cannot be empty")
	}
	if p.UserID != nil && p.UserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user id cannot be nil")
	}
	return &Respondent{
		ID:             respondentID,
		UserID:         p.UserID,
		SessionToken:   p.SessionToken,
		Fingerprint:    p.Fingerprint,
		IPAddress:      p.IPAddress,
		UserAgent:      p.UserAgent,
		BrowserInfo:    p.BrowserInfo,
		DeviceInfo:     p.DeviceInfo,
		GeoInfo:        p.GeoInfo,
		ReferrerInfo:   p.ReferrerInfo,
		TelegramData:   p.TelegramData,
		EntryPoint:     p.EntryPoint.OrDefault(id.EntryWeb),
		IsAnonymous:    p.UserID == nil,
		IsActive:       true,
		FirstSeenAt:    now,
		LastActivityAt: now,
	}, nil
}

func (r *Respondent) IsDeleted() bool {
	return r.DeletedAt != nil
}

// IsLive reports whether the respondent can still receive activity.
func (r *Respondent) IsLive() bool {
	return r.IsActive && !r.IsMerged && !r.IsDeleted()
}

// IsLinkedTo reports whether the respondent belongs to userID.
func (r *Respondent) IsLinkedTo(userID id.UserID) bool {
	return r.UserID != nil && *r.UserID == userID
}

// IsUnlinked reports an anonymous respondent no user has claimed.
func (r *Respondent) IsUnlinked() bool {
	return r.IsAnonymous && r.UserID == nil
}

// Touch refreshes the activity timestamp. Time never moves backwards.
func (r *Respondent) Touch(now time.Time) {
	if now.After(r.LastActivityAt) {
		r.LastActivityAt = now
	}
}

// CanLinkUser checks whether the respondent may be claimed by userID.
func (r *Respondent) CanLinkUser(userID id.UserID) error {
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "user id cannot be nil")
	}
	if r.IsMerged {
		return dErrors.New(dErrors.CodeInvariantViolation, "respondent has been merged")
	}
	if r.IsDeleted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "respondent has been deleted")
	}
	if r.IsLinkedTo(userID) {
		return dErrors.New(dErrors.CodeInvariantViolation, "respondent is already linked to this user")
	}
	if !r.IsAnonymous || r.UserID != nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "respondent belongs to another user")
	}
	return nil
}

// ApplyLinkUser turns the respondent into an authenticated one.
// Must only be called after CanLinkUser returns nil.
func (r *Respondent) ApplyLinkUser(userID id.UserID, now time.Time) {
	r.UserID = &userID
	r.IsAnonymous = false
	r.Touch(now)
}

// CanMergeInto checks whether r may be folded into target.
func (r *Respondent) CanMergeInto(target *Respondent) error {
	if target == nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "merge target is required")
	}
	if r.ID == target.ID {
		return dErrors.New(dErrors.CodeInvariantViolation, "respondent cannot be merged into itself")
	}
	if r.IsMerged {
		return dErrors.New(dErrors.CodeInvariantViolation, "source respondent is already merged")
	}
	if r.IsDeleted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "source respondent has been deleted")
	}
	if target.IsMerged {
		return dErrors.New(dErrors.CodeInvariantViolation, "merge target is itself merged")
	}
	if target.IsDeleted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "merge target has been deleted")
	}
	return nil
}

// ApplyMergeInto marks r as merged into target and folds r's sparse attributes
// into target. Target's existing values always win.
// Must only be called after CanMergeInto returns nil.
func (r *Respondent) ApplyMergeInto(target *Respondent, now time.Time) {
	targetID := target.ID
	r.IsActive = false
	r.IsMerged = true
	r.MergedIntoID = &targetID
	r.MergedAt = &now

	if r.FirstSeenAt.Before(target.FirstSeenAt) {
		target.FirstSeenAt = r.FirstSeenAt
	}
	target.Touch(r.LastActivityAt)
	fillString(&target.AnonymousName, r.AnonymousName)
	fillString(&target.AnonymousEmail, r.AnonymousEmail)
	fillString(&target.Fingerprint, r.Fingerprint)
	fillString(&target.IPAddress, r.IPAddress)
	if target.PreciseLocation == nil && r.PreciseLocation != nil {
		loc := *r.PreciseLocation
		target.PreciseLocation = &loc
	}
	target.GeoInfo = fillBlob(target.GeoInfo, r.GeoInfo)
	target.DeviceInfo = fillBlob(target.DeviceInfo, r.DeviceInfo)
	target.BrowserInfo = fillBlob(target.BrowserInfo, r.BrowserInfo)
	target.TelegramData = fillBlob(target.TelegramData, r.TelegramData)
}

// CanUpdate rejects writes to merged or deleted respondents.
func (r *Respondent) CanUpdate() error {
	if r.IsMerged {
		return dErrors.New(dErrors.CodeInvariantViolation, "respondent has been merged")
	}
	if r.IsDeleted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "respondent has been deleted")
	}
	return nil
}

// ApplyLocation stores general geo attributes and, when given, the precise
// location.
func (r *Respondent) ApplyLocation(geo Blob, precise *Location, now time.Time) {
	if len(geo) > 0 {
		if r.GeoInfo == nil {
			r.GeoInfo = Blob{}
		}
		for k, v := range geo {
			r.GeoInfo[k] = v
		}
	}
	if precise != nil {
		loc := *precise
		r.PreciseLocation = &loc
	}
	r.Touch(now)
}

// ApplyAnonymousProfile overwrites the self-reported name and email. Empty
// values leave the stored value untouched.
func (r *Respondent) ApplyAnonymousProfile(name, email string, now time.Time) {
	if name != "" {
		r.AnonymousName = name
	}
	if email != "" {
		r.AnonymousEmail = email
	}
	r.Touch(now)
}

// CanErase rejects a second erasure.
func (r *Respondent) CanErase() error {
	if r.IsDeleted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "respondent data already deleted")
	}
	return nil
}

// ApplyErasure soft-deletes the respondent and scrubs personal data. Identity
// links (user, merge pointer) stay so the event history remains attributable.
func (r *Respondent) ApplyErasure(now time.Time) {
	r.Fingerprint = ""
	r.IPAddress = ""
	r.UserAgent = ""
	r.BrowserInfo = nil
	r.DeviceInfo = nil
	r.GeoInfo = nil
	r.ReferrerInfo = nil
	r.TelegramData = nil
	r.PreciseLocation = nil
	r.AnonymousName = ""
	r.AnonymousEmail = ""
	r.IsActive = false
	r.DeletedAt = &now
}

// Clone returns a deep copy safe to hand out from in-memory stores.
func (r *Respondent) Clone() *Respondent {
	if r == nil {
		return nil
	}
	c := *r
	if r.UserID != nil {
		u := *r.UserID
		c.UserID = &u
	}
	if r.MergedIntoID != nil {
		m := *r.MergedIntoID
		c.MergedIntoID = &m
	}
	if r.MergedAt != nil {
		t := *r.MergedAt
		c.MergedAt = &t
	}
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		c.DeletedAt = &t
	}
	if r.PreciseLocation != nil {
		l := *r.PreciseLocation
		c.PreciseLocation = &l
	}
	c.BrowserInfo = r.BrowserInfo.clone()
	c.DeviceInfo = r.DeviceInfo.clone()
	c.GeoInfo = r.GeoInfo.clone()
	c.ReferrerInfo = r.ReferrerInfo.clone()
	c.TelegramData = r.TelegramData.clone()
	return &c
}

func (b Blob) clone() Blob {
	if b == nil {
		return nil
	}
	out := make(Blob, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

func fillString(dst *string, src string) {
	if *dst == "" && src != "" {
		*dst = src
	}
}

func fillBlob(dst, src Blob) Blob {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = Blob{}
	}
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
	return dst
}
