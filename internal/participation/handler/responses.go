package handler

import (
	"pollster/internal/participation/models"
	id "pollster/pkg/domain"
)

// ListResponse lists a respondent's participations.
type ListResponse struct {
	Participations []*models.Record `json:"participations"`
}

// AnswersResponse acknowledges a stored answer batch.
type AnswersResponse struct {
	SurveyID id.SurveyID `json:"survey_id"`
	Saved    int         `json:"saved"`
}
