package service

import (
	"context"
	"strings"

	"pollster/internal/consent/models"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
	"pollster/pkg/requestcontext"
)

// CheckRequirements compares the survey's mandatory data requirements with
// the respondent's active survey-scoped consents.
func (s *Service) CheckRequirements(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID) (*models.CheckResult, error) {
	root, err := s.respondents.Resolve(ctx, respondentID)
	if err != nil {
		return nil, err
	}
	survey, err := s.catalog.Get(ctx, surveyID)
	if err != nil {
		return nil, wrapStoreErr(err, "survey not found")
	}

	result := &models.CheckResult{Satisfied: true, Missing: []id.ConsentCategory{}}
	for _, category := range survey.RequiredCategories() {
		ok, err := s.hasConsent(ctx, root.ID, category, id.Survey(surveyID))
		if err != nil {
			return nil, err
		}
		if !ok {
			result.Missing = append(result.Missing, category)
		}
	}
	result.Satisfied = len(result.Missing) == 0
	return result, nil
}

// Require fails closed with ComplianceDenied listing the missing categories.
func (s *Service) Require(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID) error {
	result, err := s.CheckRequirements(ctx, respondentID, surveyID)
	if err != nil {
		return err
	}
	if result.Satisfied {
		return nil
	}
	s.deny(ctx, respondentID, result.MissingStrings())
	return dErrors.NewWithDetails(dErrors.CodeComplianceDenied,
		"missing consent: "+strings.Join(result.MissingStrings(), ", "),
		result.MissingStrings()...)
}

// RequireCategory fails closed unless the exact key is actively granted.
func (s *Service) RequireCategory(ctx context.Context, respondentID id.RespondentID, category id.ConsentCategory, survey id.SurveyRef) error {
	ok, err := s.HasConsent(ctx, respondentID, category, survey)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	s.deny(ctx, respondentID, []string{string(category)})
	return dErrors.NewWithDetails(dErrors.CodeComplianceDenied, "missing consent: "+string(category), string(category))
}

func (s *Service) deny(ctx context.Context, respondentID id.RespondentID, missing []string) {
	s.metrics.IncrementComplianceDenied(missing)
	s.logger.InfoContext(ctx, "compliance check denied",
		"request_id", requestcontext.RequestID(ctx),
		"respondent_id", respondentID.String(),
		"missing", missing,
	)
}
