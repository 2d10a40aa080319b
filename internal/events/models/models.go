package models

import (
	"time"

	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
)

// Type names a respondent lifecycle event.
type Type string

const (
	TypeCreated               Type = "created"
	TypeResumed               Type = "resumed"
	TypeUserLinked            Type = "user_linked"
	TypeMerged                Type = "merged"
	TypeConsentGranted        Type = "consent_granted"
	TypeConsentRevoked        Type = "consent_revoked"
	TypeSurveyStarted         Type = "survey_started"
	TypeSurveyProgressUpdated Type = "survey_progress_updated"
	TypeSurveyCompleted       Type = "survey_completed"
	TypeSurveyAbandoned       Type = "survey_abandoned"
	TypeLocationUpdated       Type = "location_updated"
	TypeProfileUpdated        Type = "profile_updated"
	TypeDataExported          Type = "data_exported"
	TypeDataDeleted           Type = "data_deleted"
)

// Category classifies events for routing on the event stream.
type Category string

const (
	// CategoryCompliance covers events with regulatory significance: identity
	// lifecycle, consent decisions and data subject requests.
	CategoryCompliance Category = "compliance"
	// CategoryActivity covers survey activity.
	CategoryActivity Category = "activity"
)

var categories = map[Type]Category{
	TypeCreated:               CategoryCompliance,
	TypeResumed:               CategoryActivity,
	TypeUserLinked:            CategoryCompliance,
	TypeMerged:                CategoryCompliance,
	TypeConsentGranted:        CategoryCompliance,
	TypeConsentRevoked:        CategoryCompliance,
	TypeSurveyStarted:         CategoryActivity,
	TypeSurveyProgressUpdated: CategoryActivity,
	TypeSurveyCompleted:       CategoryActivity,
	TypeSurveyAbandoned:       CategoryActivity,
	TypeLocationUpdated:       CategoryCompliance,
	TypeProfileUpdated:        CategoryCompliance,
	TypeDataExported:          CategoryCompliance,
	TypeDataDeleted:           CategoryCompliance,
}

// Category returns the routing category; unknown types are activity.
func (t Type) Category() Category {
	if c, ok := categories[t]; ok {
		return c
	}
	return CategoryActivity
}

func (t Type) IsValid() bool {
	_, ok := categories[t]
	return ok
}

func (t Type) String() string {
	return string(t)
}

// Payload is the free-form body of an event.
type Payload map[string]any

// Event is an immutable audit entry. It is never updated; only its respondent
// reference moves on merge, and retention pruning deletes it.
type Event struct {
	ID           id.EventID      `json:"id"`
	RespondentID id.RespondentID `json:"respondent_id"`
	Type         Type            `json:"event_type"`
	Payload      Payload         `json:"payload,omitempty"`
	Source       string          `json:"source,omitempty"`
	IPAddress    string          `json:"ip_address,omitempty"`
	UserAgent    string          `json:"user_agent,omitempty"`
	SessionToken string          `json:"session_token,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// NewEvent builds an event with a fresh id.
func NewEvent(respondentID id.RespondentID, eventType Type, payload Payload, now time.Time) (*Event, error) {
	if respondentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "event requires a respondent")
	}
	if !eventType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown event type: "+string(eventType))
	}
	if payload == nil {
		payload = Payload{}
	}
	return &Event{
		ID:           id.NewEventID(),
		RespondentID: respondentID,
		Type:         eventType,
		Payload:      payload,
		OccurredAt:   now,
	}, nil
}

// OutboxRecord is one pending publication of an event to the stream.
type OutboxRecord struct {
	OutboxID   string
	EventType  Type
	Key        string
	Payload    []byte
	RetryCount int
	CreatedAt  time.Time
}
