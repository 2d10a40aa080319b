// Package store persists participation records, one per (respondent, survey).
package store

import (
	"context"
	"sort"
	"sync"

	"pollster/internal/participation/models"
	id "pollster/pkg/domain"
	"pollster/pkg/platform/sentinel"
	txcontext "pollster/pkg/platform/tx"
)

type pairKey struct {
	respondentID id.RespondentID
	surveyID     id.SurveyID
}

type InMemory struct {
	mu      sync.RWMutex
	records map[pairKey]*models.Record
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[pairKey]*models.Record)}
}

// remember registers an undo for one pair. Caller holds s.mu.
func (s *InMemory) remember(ctx context.Context, key pairKey) {
	prev, existed := s.records[key]
	prev = prev.Clone()
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.records[key] = prev
		} else {
			delete(s.records, key)
		}
	})
}

// Insert adds a record. A taken pair yields sentinel.ErrAlreadyUsed.
func (s *InMemory) Insert(ctx context.Context, r *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{r.RespondentID, r.SurveyID}
	if _, taken := s.records[key]; taken {
		return sentinel.ErrAlreadyUsed
	}
	s.remember(ctx, key)
	s.records[key] = r.Clone()
	return nil
}

func (s *InMemory) FindByPair(_ context.Context, respondentID id.RespondentID, surveyID id.SurveyID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[pairKey{respondentID, surveyID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

// Execute loads the pair, validates, and applies mutate atomically.
func (s *InMemory) Execute(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{respondentID, surveyID}
	r, ok := s.records[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	updated := r.Clone()
	if err := validate(updated); err != nil {
		return nil, err
	}
	s.remember(ctx, key)
	mutate(updated)
	s.records[key] = updated
	return updated.Clone(), nil
}

func (s *InMemory) ListByRespondent(ctx context.Context, respondentID id.RespondentID) ([]*models.Record, error) {
	return s.ListByRespondents(ctx, []id.RespondentID{respondentID})
}

// ListByRespondents returns the records of the given respondents ordered by
// start time.
func (s *InMemory) ListByRespondents(_ context.Context, respondentIDs []id.RespondentID) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[id.RespondentID]bool, len(respondentIDs))
	for _, rid := range respondentIDs {
		wanted[rid] = true
	}
	var out []*models.Record
	for key, r := range s.records {
		if wanted[key.respondentID] {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].SurveyID < out[j].SurveyID
	})
	return out, nil
}

// ReassignRespondent moves from's records onto to. Records for surveys to
// already has stay on from; their survey ids are returned as retained.
func (s *InMemory) ReassignRespondent(ctx context.Context, from, to id.RespondentID) (int, []id.SurveyID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		moved    int
		retained []id.SurveyID
	)
	for key, r := range s.records {
		if key.respondentID != from {
			continue
		}
		dst := pairKey{to, key.surveyID}
		if _, taken := s.records[dst]; taken {
			retained = append(retained, key.surveyID)
			continue
		}
		s.remember(ctx, key)
		s.remember(ctx, dst)
		r.RespondentID = to
		s.records[dst] = r
		delete(s.records, key)
		moved++
	}
	sort.Slice(retained, func(i, j int) bool { return retained[i] < retained[j] })
	return moved, retained, nil
}
