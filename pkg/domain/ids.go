package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	dErrors "pollster/pkg/domain-errors"
)

// Typed identifiers. Distinct types keep a respondent id from being passed
// where a user id is expected; construct them via the Parse functions at trust
// boundaries.
type (
	UserID          uuid.UUID
	RespondentID    uuid.UUID
	ConsentID       uuid.UUID
	ParticipationID uuid.UUID
	EventID         uuid.UUID
)

// SurveyID references a survey owned by the authoring collaborator.
type SurveyID int64

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

func ParseRespondentID(s string) (RespondentID, error) {
	u, err := parseUUID(s, "respondent id")
	return RespondentID(u), err
}

func ParseConsentID(s string) (ConsentID, error) {
	u, err := parseUUID(s, "consent id")
	return ConsentID(u), err
}

func ParseParticipationID(s string) (ParticipationID, error) {
	u, err := parseUUID(s, "participation id")
	return ParticipationID(u), err
}

func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID(s, "event id")
	return EventID(u), err
}

// ParseSurveyID accepts a positive decimal survey id.
func ParseSurveyID(s string) (SurveyID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "survey id cannot be empty")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid survey id")
	}
	return SurveyID(n), nil
}

// NewRespondentID mints a random respondent id.
func NewRespondentID() RespondentID { return RespondentID(uuid.New()) }

func NewConsentID() ConsentID { return ConsentID(uuid.New()) }

func NewParticipationID() ParticipationID { return ParticipationID(uuid.New()) }

func NewEventID() EventID { return EventID(uuid.New()) }

func (id UserID) String() string          { return uuid.UUID(id).String() }
func (id RespondentID) String() string    { return uuid.UUID(id).String() }
func (id ConsentID) String() string       { return uuid.UUID(id).String() }
func (id ParticipationID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string         { return uuid.UUID(id).String() }
func (id SurveyID) String() string        { return strconv.FormatInt(int64(id), 10) }

func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id RespondentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ConsentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// Less orders respondent ids by their canonical string form. Used as the
// deterministic tie-break when picking a primary respondent.
func (id RespondentID) Less(other RespondentID) bool {
	return id.String() < other.String()
}

// SurveyRef is an optional survey scope; nil means global.
type SurveyRef = *SurveyID

// Survey returns a survey scope pointer for id.
func Survey(id SurveyID) SurveyRef {
	return &id
}

// SameSurvey compares two optional survey scopes.
func SameSurvey(a, b SurveyRef) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
