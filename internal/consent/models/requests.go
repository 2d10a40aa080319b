package models

import (
	id "pollster/pkg/domain"
)

// GrantRequest is the input of Service.Grant.
type GrantRequest struct {
	RespondentID id.RespondentID
	Category     id.ConsentCategory
	Survey       id.SurveyRef
	Source       string
	Version      string
	Details      map[string]any
}

// CheckResult is the verdict of the compliance gate for one survey.
type CheckResult struct {
	Satisfied bool                 `json:"satisfied"`
	Missing   []id.ConsentCategory `json:"missing"`
}

// MissingStrings returns the missing categories as plain strings.
func (r CheckResult) MissingStrings() []string {
	out := make([]string, len(r.Missing))
	for i, c := range r.Missing {
		out[i] = string(c)
	}
	return out
}

// Status summarises a respondent's active consents.
type Status struct {
	Global  map[id.ConsentCategory]bool            `json:"global"`
	Surveys map[id.SurveyID][]id.ConsentCategory `json:"surveys,omitempty"`
}

// StatusOf builds the status from a respondent's active records.
func StatusOf(active []*Record) Status {
	st := Status{Global: make(map[id.ConsentCategory]bool, len(id.ConsentCategories()))}
	for _, c := range id.ConsentCategories() {
		st.Global[c] = false
	}
	for _, r := range active {
		if !r.IsActive() {
			continue
		}
		if r.SurveyID == nil {
			st.Global[r.Category] = true
			continue
		}
		if st.Surveys == nil {
			st.Surveys = make(map[id.SurveyID][]id.ConsentCategory)
		}
		st.Surveys[*r.SurveyID] = append(st.Surveys[*r.SurveyID], r.Category)
	}
	return st
}
