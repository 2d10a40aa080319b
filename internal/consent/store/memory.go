// Package store persists consent records.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"pollster/internal/consent/models"
	id "pollster/pkg/domain"
	"pollster/pkg/platform/sentinel"
	txcontext "pollster/pkg/platform/tx"
)

// InMemory keeps records per respondent in grant order.
type InMemory struct {
	mu      sync.RWMutex
	records map[id.RespondentID][]*models.Record
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[id.RespondentID][]*models.Record)}
}

// remember snapshots every list touched by a mutation. Caller holds s.mu.
func (s *InMemory) remember(ctx context.Context, respondentIDs ...id.RespondentID) {
	if !txcontext.InMemoryTx(ctx) {
		return
	}
	snapshot := make(map[id.RespondentID][]*models.Record, len(respondentIDs))
	for _, rid := range respondentIDs {
		snapshot[rid] = cloneAll(s.records[rid])
	}
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for rid, list := range snapshot {
			if len(list) == 0 {
				delete(s.records, rid)
				continue
			}
			s.records[rid] = list
		}
	})
}

// Insert appends a record. A second active record for the same key yields
// sentinel.ErrAlreadyUsed.
func (s *InMemory) Insert(ctx context.Context, r *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.IsActive() {
		if _, ok := findActive(s.records[r.RespondentID], r.Category, r.SurveyID); ok {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.remember(ctx, r.RespondentID)
	s.records[r.RespondentID] = append(s.records[r.RespondentID], r.Clone())
	return nil
}

// FindActive returns the active record for the key or sentinel.ErrNotFound.
func (s *InMemory) FindActive(_ context.Context, respondentID id.RespondentID, category id.ConsentCategory, survey id.SurveyRef) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := findActive(s.records[respondentID], category, survey)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

// Revoke stamps the record revoked. Inactive or unknown records yield
// sentinel.ErrNotFound.
func (s *InMemory) Revoke(ctx context.Context, respondentID id.RespondentID, consentID id.ConsentID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records[respondentID] {
		if r.ID != consentID {
			continue
		}
		if r.CanRevoke() != nil {
			return sentinel.ErrNotFound
		}
		s.remember(ctx, respondentID)
		r.ApplyRevocation(now)
		return nil
	}
	return sentinel.ErrNotFound
}

// RevokeAllActive revokes every active record of the respondent.
func (s *InMemory) RevokeAllActive(ctx context.Context, respondentID id.RespondentID, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remember(ctx, respondentID)
	n := 0
	for _, r := range s.records[respondentID] {
		if r.IsActive() {
			r.ApplyRevocation(now)
			n++
		}
	}
	return n, nil
}

func (s *InMemory) ListByRespondent(_ context.Context, respondentID id.RespondentID) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.records[respondentID]), nil
}

// ListByRespondents returns every record of the given respondents ordered by
// grant time.
func (s *InMemory) ListByRespondents(_ context.Context, respondentIDs []id.RespondentID) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Record
	for _, rid := range respondentIDs {
		out = append(out, cloneAll(s.records[rid])...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].GrantedAt.Before(out[j].GrantedAt) })
	return out, nil
}

func (s *InMemory) ListActive(_ context.Context, respondentID id.RespondentID) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Record
	for _, r := range s.records[respondentID] {
		if r.IsActive() {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// ReassignRespondent moves every record of from onto to. When both hold an
// active record for the same key, the older grant is revoked at now so the
// target keeps a single active record per key.
func (s *InMemory) ReassignRespondent(ctx context.Context, from, to id.RespondentID, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	moving := s.records[from]
	if len(moving) == 0 {
		return 0, nil
	}
	s.remember(ctx, from, to)
	for _, src := range moving {
		if !src.IsActive() {
			continue
		}
		dst, ok := findActive(s.records[to], src.Category, src.SurveyID)
		if !ok {
			continue
		}
		if src.Supersedes(dst) {
			dst.ApplyRevocation(now)
		} else {
			src.ApplyRevocation(now)
		}
	}
	for _, r := range moving {
		r.RespondentID = to
	}
	merged := append(s.records[to], moving...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].GrantedAt.Before(merged[j].GrantedAt) })
	s.records[to] = merged
	delete(s.records, from)
	return len(moving), nil
}

func findActive(list []*models.Record, category id.ConsentCategory, survey id.SurveyRef) (*models.Record, bool) {
	for _, r := range list {
		if r.IsActive() && r.Matches(category, survey) {
			return r, true
		}
	}
	return nil, false
}

func cloneAll(list []*models.Record) []*models.Record {
	if len(list) == 0 {
		return nil
	}
	out := make([]*models.Record, len(list))
	for i, r := range list {
		out[i] = r.Clone()
	}
	return out
}
