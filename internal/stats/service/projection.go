package service

import (
	eventmodels "pollster/internal/events/models"
	participationmodels "pollster/internal/participation/models"
	"pollster/internal/stats/models"
)

// Project maps an event to the counter changes it causes. Payload values
// arrive either as Go values (in-process) or JSON-decoded ones (from the
// stream), so readers accept both.
func Project(event *eventmodels.Event) []models.Increment {
	p := event.Payload
	switch event.Type {
	case eventmodels.TypeCreated:
		incs := []models.Increment{inc(models.SectionRespondents, models.FieldCreated, 1)}
		if b, ok := p["is_anonymous"].(bool); !ok || b {
			incs = append(incs, inc(models.SectionRespondents, models.FieldAnonymous, 1))
		} else {
			incs = append(incs, inc(models.SectionRespondents, models.FieldAuthenticated, 1))
		}
		incs = appendNamed(incs, models.SectionEntryPoints, str(p, "entry_point"))
		incs = appendNamed(incs, models.SectionDeviceTypes, str(p, "device_type"))
		incs = appendNamed(incs, models.SectionBrowsers, str(p, "browser"))
		return incs

	case eventmodels.TypeUserLinked:
		return []models.Increment{
			inc(models.SectionRespondents, models.FieldAnonymous, -1),
			inc(models.SectionRespondents, models.FieldAuthenticated, 1),
		}

	case eventmodels.TypeMerged:
		return []models.Increment{inc(models.SectionRespondents, models.FieldMerged, 1)}

	case eventmodels.TypeDataExported:
		return []models.Increment{inc(models.SectionRespondents, models.FieldExports, 1)}

	case eventmodels.TypeDataDeleted:
		incs := []models.Increment{inc(models.SectionRespondents, models.FieldErased, num(p, "erased"))}
		for _, category := range strs(p, "revoked_categories") {
			incs = append(incs, inc(models.SectionConsentsRevoked, category, 1))
		}
		return incs

	case eventmodels.TypeConsentGranted:
		category := str(p, "category")
		if category == "" {
			return nil
		}
		incs := []models.Increment{inc(models.SectionConsentsGranted, category, 1)}
		if str(p, "superseded") != "" {
			incs = append(incs, inc(models.SectionConsentsRevoked, category, 1))
		}
		return incs

	case eventmodels.TypeConsentRevoked:
		if category := str(p, "category"); category != "" {
			return []models.Increment{inc(models.SectionConsentsRevoked, category, 1)}
		}
		return nil

	case eventmodels.TypeSurveyStarted:
		return []models.Increment{inc(models.SectionParticipation, string(participationmodels.StatusStarted), 1)}

	case eventmodels.TypeSurveyProgressUpdated, eventmodels.TypeSurveyCompleted, eventmodels.TypeSurveyAbandoned:
		status := str(p, "status")
		if status == "" || status == str(p, "previous_status") {
			return nil
		}
		return []models.Increment{inc(models.SectionParticipation, status, 1)}
	}
	return nil
}

func inc(section models.Section, field string, by int64) models.Increment {
	return models.Increment{Section: section, Field: field, By: by}
}

func appendNamed(incs []models.Increment, section models.Section, name string) []models.Increment {
	if name == "" {
		name = "unknown"
	}
	return append(incs, inc(section, name, 1))
}

func str(p eventmodels.Payload, key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case interface{ String() string }:
		return v.String()
	}
	return ""
}

func num(p eventmodels.Payload, key string) int64 {
	switch v := p[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func strs(p eventmodels.Payload, key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
