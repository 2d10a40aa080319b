// Package store persists survey answers.
package store

import (
	"context"
	"sort"
	"sync"

	"pollster/internal/answers/models"
	id "pollster/pkg/domain"
	txcontext "pollster/pkg/platform/tx"
)

type InMemory struct {
	mu      sync.RWMutex
	answers []*models.Answer
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Save(ctx context.Context, answers ...*models.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.answers)
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.answers = s.answers[:n]
	})
	for _, a := range answers {
		c := *a
		s.answers = append(s.answers, &c)
	}
	return nil
}

func (s *InMemory) ListByRespondents(_ context.Context, respondentIDs []id.RespondentID) ([]*models.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[id.RespondentID]bool, len(respondentIDs))
	for _, rid := range respondentIDs {
		wanted[rid] = true
	}
	var out []*models.Answer
	for _, a := range s.answers {
		if wanted[a.RespondentID] {
			c := *a
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AnsweredAt.Before(out[j].AnsweredAt) })
	return out, nil
}

// ReassignRespondent moves every answer of from onto to.
func (s *InMemory) ReassignRespondent(ctx context.Context, from, to id.RespondentID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved []*models.Answer
	for _, a := range s.answers {
		if a.RespondentID == from {
			a.RespondentID = to
			moved = append(moved, a)
		}
	}
	if len(moved) > 0 {
		txcontext.OnRollback(ctx, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for _, a := range moved {
				a.RespondentID = from
			}
		})
	}
	return len(moved), nil
}
