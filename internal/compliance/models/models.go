package models

import (
	"time"

	answermodels "pollster/internal/answers/models"
	consentmodels "pollster/internal/consent/models"
	eventmodels "pollster/internal/events/models"
	participationmodels "pollster/internal/participation/models"
	respondentmodels "pollster/internal/respondent/models"
	id "pollster/pkg/domain"
)

// Bundle is everything stored about one person: the root respondent, every
// respondent merged into it and the rows that reference them.
type Bundle struct {
	Respondent     *respondentmodels.Respondent   `json:"respondent"`
	Merged         []*respondentmodels.Respondent `json:"merged_respondents"`
	Consents       []*consentmodels.Record        `json:"consents"`
	Participations []*participationmodels.Record  `json:"participations"`
	Events         []*eventmodels.Event           `json:"events"`
	Answers        []*answermodels.Answer         `json:"answers"`
	ExportedAt     time.Time                      `json:"exported_at"`
}

// RespondentIDs returns the root id followed by every merged id.
func (b *Bundle) RespondentIDs() []id.RespondentID {
	ids := make([]id.RespondentID, 0, len(b.Merged)+1)
	ids = append(ids, b.Respondent.ID)
	for _, m := range b.Merged {
		ids = append(ids, m.ID)
	}
	return ids
}

// ErasureResult summarises one erasure.
type ErasureResult struct {
	RespondentID    id.RespondentID   `json:"respondent_id"`
	Erased          []id.RespondentID `json:"erased"`
	ConsentsRevoked int               `json:"consents_revoked"`
	SessionsDropped int               `json:"sessions_dropped"`
	EventsScrubbed  int               `json:"events_scrubbed"`
	ErasedAt        time.Time         `json:"erased_at"`
}

// PruneResult summarises one retention run.
type PruneResult struct {
	Cutoff        time.Time `json:"cutoff"`
	Deleted       int64     `json:"deleted"`
	OutboxDeleted int64     `json:"outbox_deleted"`
}
