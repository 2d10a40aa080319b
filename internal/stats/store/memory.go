// Package store persists the statistics read-model.
package store

import (
	"context"
	"maps"
	"sync"

	"pollster/internal/stats/models"
)

// InMemory keeps the read-model in process. Applying an event id twice is a
// no-op, matching the redelivery guard of the Redis store.
type InMemory struct {
	mu       sync.RWMutex
	sections map[models.Section]models.Counters
	seen     map[string]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{
		sections: make(map[models.Section]models.Counters),
		seen:     make(map[string]struct{}),
	}
}

// Apply adds every increment unless eventID was applied before. It reports
// whether the increments were applied.
func (s *InMemory) Apply(_ context.Context, eventID string, incs []models.Increment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[eventID]; dup {
		return false, nil
	}
	s.seen[eventID] = struct{}{}
	for _, inc := range incs {
		c, ok := s.sections[inc.Section]
		if !ok {
			c = models.Counters{}
			s.sections[inc.Section] = c
		}
		c[inc.Field] += inc.By
	}
	return true, nil
}

// Sections returns a copy of every section.
func (s *InMemory) Sections(_ context.Context) (map[models.Section]models.Counters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.Section]models.Counters, len(s.sections))
	for k, v := range s.sections {
		out[k] = maps.Clone(v)
	}
	return out, nil
}
