package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"pollster/internal/respondent/models"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
	"pollster/pkg/email"
)

const (
	maxPlaceLength = 120
	maxNameLength  = 200
)

// LocationRequest is the HTTP request body for PUT /me/location.
type LocationRequest struct {
	Country   string   `json:"country"`
	Region    string   `json:"region"`
	City      string   `json:"city"`
	Timezone  string   `json:"timezone"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  float64  `json:"accuracy"`
	SurveyID  *int64   `json:"survey_id"`
}

// Validate implements httputil.Validatable.
func (r *LocationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	for _, field := range []*string{&r.Country, &r.Region, &r.City, &r.Timezone} {
		*field = strings.TrimSpace(*field)
		if len(*field) > maxPlaceLength {
			return dErrors.New(dErrors.CodeValidation, "location fields must be at most 120 characters")
		}
	}
	if (r.Latitude == nil) != (r.Longitude == nil) {
		return dErrors.New(dErrors.CodeValidation, "latitude and longitude must be sent together")
	}
	if r.Accuracy < 0 {
		return dErrors.New(dErrors.CodeValidation, "accuracy cannot be negative")
	}
	return validateSurvey(r.SurveyID)
}

// Update builds the domain update; range checks on the fix happen in the
// service.
func (r *LocationRequest) Update() models.LocationUpdate {
	update := models.LocationUpdate{
		Country:  r.Country,
		Region:   r.Region,
		City:     r.City,
		Timezone: r.Timezone,
	}
	if r.Latitude != nil {
		update.Precise = &models.Location{
			Latitude:  *r.Latitude,
			Longitude: *r.Longitude,
			Accuracy:  r.Accuracy,
		}
	}
	return update
}

// Survey returns the consent scope the write is made under.
func (r *LocationRequest) Survey() id.SurveyRef {
	return surveyRef(r.SurveyID)
}

// ProfileRequest is the HTTP request body for PUT /me/profile.
type ProfileRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	SurveyID *int64 `json:"survey_id"`
}

// Validate implements httputil.Validatable.
func (r *ProfileRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	if r.Name == "" && r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "name or email is required")
	}
	if len(r.Name) > maxNameLength {
		return dErrors.New(dErrors.CodeValidation, "name must be at most 200 characters")
	}
	if _, ok := email.Normalize(r.Email); r.Email != "" && !ok {
		return dErrors.New(dErrors.CodeValidation, "invalid email")
	}
	return validateSurvey(r.SurveyID)
}

func (r *ProfileRequest) Profile() models.AnonymousProfile {
	return models.AnonymousProfile{Name: r.Name, Email: r.Email}
}

func (r *ProfileRequest) Survey() id.SurveyRef {
	return surveyRef(r.SurveyID)
}

// MergeRequest is the HTTP request body for an operator merge.
type MergeRequest struct {
	TargetID string `json:"target_id"`

	target id.RespondentID
}

// Validate implements httputil.Validatable.
func (r *MergeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	target, err := id.ParseRespondentID(strings.TrimSpace(r.TargetID))
	if err != nil {
		return err
	}
	r.target = target
	return nil
}

func (r *MergeRequest) Target() id.RespondentID {
	return r.target
}

func validateSurvey(surveyID *int64) error {
	if surveyID != nil && *surveyID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "survey_id must be positive")
	}
	return nil
}

func surveyRef(surveyID *int64) id.SurveyRef {
	if surveyID == nil {
		return nil
	}
	return id.Survey(id.SurveyID(*surveyID))
}

// parsePage reads limit and offset query parameters.
func parsePage(r *http.Request) (models.Page, error) {
	var page models.Page
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &page.Limit}, {"offset", &page.Offset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return models.Page{}, dErrors.New(dErrors.CodeValidation, p.name+" must be a non-negative integer")
		}
		*p.dst = n
	}
	return page.Normalize(), nil
}

// telegramData extracts the user object from Telegram WebApp init data. The
// payload is descriptive only; it never decides identity.
func telegramData(raw string) models.Blob {
	if raw == "" {
		return nil
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil
	}
	var user models.Blob
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil {
		return nil
	}
	return models.Blob{"user": user}
}
