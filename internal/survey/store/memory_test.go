package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollster/internal/survey/models"
	id "pollster/pkg/domain"
	"pollster/pkg/platform/sentinel"
)

const catalogYAML = `
surveys:
  - id: 7
    title: Commute habits
    total_questions: 12
    requirements:
      - flag: location
        mandatory: true
      - flag: email
        mandatory: false
  - id: 9
    title: Archived poll
    is_active: false
`

func TestParseAndSeed(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	surveys, err := Parse([]byte(catalogYAML), now)
	require.NoError(t, err)
	require.Len(t, surveys, 2)

	assert.True(t, surveys[0].IsActive)
	assert.False(t, surveys[1].IsActive)
	assert.Equal(t, 12, surveys[0].TotalQuestions)
	assert.Equal(t, now, surveys[0].UpdatedAt)

	catalog := NewInMemory()
	ctx := context.Background()
	require.NoError(t, Seed(ctx, catalog, surveys))

	got, err := catalog.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []id.ConsentCategory{id.ConsentLocation}, got.RequiredCategories())

	all, err := catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, id.SurveyID(7), all[0].ID)
}

func TestParse_RejectsUnknownFlag(t *testing.T) {
	_, err := Parse([]byte("surveys:\n  - id: 1\n    requirements:\n      - flag: shoe_size\n"), time.Now())
	assert.Error(t, err)
}

func TestGet_Missing(t *testing.T) {
	_, err := NewInMemory().Get(context.Background(), 42)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestGet_ReturnsCopy(t *testing.T) {
	catalog := NewInMemory()
	ctx := context.Background()
	require.NoError(t, catalog.Upsert(ctx, &models.Survey{ID: 1, Requirements: []models.Requirement{{Flag: models.FlagName, Mandatory: true}}}))

	got, err := catalog.Get(ctx, 1)
	require.NoError(t, err)
	got.Requirements[0].Flag = models.FlagCookies

	again, err := catalog.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.FlagName, again.Requirements[0].Flag)
}
