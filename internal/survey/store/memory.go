// Package store holds the survey catalog.
package store

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"pollster/internal/survey/models"
	id "pollster/pkg/domain"
	"pollster/pkg/platform/sentinel"
)

type InMemory struct {
	mu      sync.RWMutex
	surveys map[id.SurveyID]*models.Survey
}

func NewInMemory() *InMemory {
	return &InMemory{surveys: make(map[id.SurveyID]*models.Survey)}
}

func (s *InMemory) Get(_ context.Context, surveyID id.SurveyID) (*models.Survey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sv, ok := s.surveys[surveyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return sv.Clone(), nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Survey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Survey, 0, len(s.surveys))
	for _, sv := range s.surveys {
		out = append(out, sv.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) Upsert(_ context.Context, sv *models.Survey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surveys[sv.ID] = sv.Clone()
	return nil
}

// catalogFile is the YAML seed format:
//
//	surveys:
//	  - id: 7
//	    title: Commute habits
//	    total_questions: 12
//	    requirements:
//	      - flag: location
//	        mandatory: true
type catalogFile struct {
	Surveys []catalogEntry `yaml:"surveys"`
}

type catalogEntry struct {
	ID             id.SurveyID          `yaml:"id"`
	Title          string               `yaml:"title"`
	IsActive       *bool                `yaml:"is_active"`
	TotalQuestions int                  `yaml:"total_questions"`
	Requirements   []models.Requirement `yaml:"requirements"`
}

// LoadFile parses a YAML catalog seed.
func LoadFile(path string, now time.Time) ([]*models.Survey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read survey catalog: %w", err)
	}
	return Parse(raw, now)
}

// Parse decodes a YAML catalog. Surveys default to active.
func Parse(raw []byte, now time.Time) ([]*models.Survey, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse survey catalog: %w", err)
	}
	out := make([]*models.Survey, 0, len(f.Surveys))
	for _, e := range f.Surveys {
		sv := &models.Survey{
			ID:             e.ID,
			Title:          e.Title,
			IsActive:       e.IsActive == nil || *e.IsActive,
			TotalQuestions: e.TotalQuestions,
			Requirements:   e.Requirements,
			UpdatedAt:      now,
		}
		if err := sv.Validate(); err != nil {
			return nil, fmt.Errorf("survey %d: %w", sv.ID, err)
		}
		out = append(out, sv)
	}
	return out, nil
}

// Seed upserts every survey into the catalog.
func Seed(ctx context.Context, catalog interface {
	Upsert(ctx context.Context, sv *models.Survey) error
}, surveys []*models.Survey) error {
	for _, sv := range surveys {
		if err := catalog.Upsert(ctx, sv); err != nil {
			return fmt.Errorf("seed survey %d: %w", sv.ID, err)
		}
	}
	return nil
}
