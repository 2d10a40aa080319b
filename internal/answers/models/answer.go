// Package models holds survey answers. Answer content belongs to the survey
// domain; this module only stores it against a respondent so merges, export
// and erasure reach it.
package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
)

type Answer struct {
	ID           uuid.UUID       `json:"id"`
	RespondentID id.RespondentID `json:"respondent_id"`
	SurveyID     id.SurveyID     `json:"survey_id"`
	QuestionKey  string          `json:"question_key"`
	Value        json.RawMessage `json:"answer"`
	AnsweredAt   time.Time       `json:"answered_at"`
}

// Submission is one batch of answers to a survey.
type Submission struct {
	SurveyID id.SurveyID
	Answers  map[string]json.RawMessage
}

func (s Submission) Validate() error {
	if s.SurveyID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "survey id is required")
	}
	if len(s.Answers) == 0 {
		return dErrors.New(dErrors.CodeValidation, "answers are required")
	}
	for key, value := range s.Answers {
		if strings.TrimSpace(key) == "" {
			return dErrors.New(dErrors.CodeValidation, "question key cannot be empty")
		}
		if !json.Valid(value) {
			return dErrors.New(dErrors.CodeValidation, "answer to "+key+" is not valid json")
		}
	}
	return nil
}
