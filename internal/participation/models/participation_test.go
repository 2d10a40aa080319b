package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newRecord(t *testing.T) *Record {
	t.Helper()
	r, err := NewParticipation(id.NewParticipationID(), id.NewRespondentID(), 7, 10, t0)
	require.NoError(t, err)
	return r
}

func TestNewParticipation(t *testing.T) {
	r := newRecord(t)
	assert.Equal(t, StatusStarted, r.Status)
	assert.Zero(t, r.ProgressPercentage)
	assert.Nil(t, r.CompletedAt)

	_, err := NewParticipation(id.NewParticipationID(), id.RespondentID{}, 7, 0, t0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewParticipation(id.NewParticipationID(), id.NewRespondentID(), 0, 0, t0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestProgressValidate(t *testing.T) {
	tests := []struct {
		name  string
		p     Progress
		valid bool
	}{
		{"zero", Progress{}, true},
		{"partial", Progress{Answered: 3, Total: 10}, true},
		{"negative answered", Progress{Answered: -1, Total: 10}, false},
		{"negative total", Progress{Answered: 0, Total: -1}, false},
		{"answered over total", Progress{Answered: 11, Total: 10}, false},
		{"negative time", Progress{Answered: 1, Total: 2, TimeSpentSeconds: -5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusStarted, StatusFor(0))
	assert.Equal(t, StatusInProgress, StatusFor(0.5))
	assert.Equal(t, StatusInProgress, StatusFor(79.99))
	assert.Equal(t, StatusAlmostCompleted, StatusFor(80))
	assert.Equal(t, StatusCompleted, StatusFor(100))
}

func TestProgressCompletion(t *testing.T) {
	tests := []struct {
		name     string
		p        Progress
		complete bool
		pct      float64
	}{
		{"empty survey", Progress{}, false, 0},
		{"all answered", Progress{Answered: 10, Total: 10}, true, 100},
		{"rounds to a hundred", Progress{Answered: 99999, Total: 100000}, false, 99.99},
		{"last of three", Progress{Answered: 2, Total: 3}, false, 66.67},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.complete, tt.p.IsComplete())
			assert.Equal(t, tt.pct, tt.p.Percentage())
			if !tt.complete {
				assert.NotEqual(t, StatusCompleted, tt.p.Status())
			}
		})
	}
}

func TestApplyProgress(t *testing.T) {
	t.Run("moves forward through statuses", func(t *testing.T) {
		r := newRecord(t)
		r.ApplyProgress(Progress{Answered: 3, Total: 10, TimeSpentSeconds: 30}, t0.Add(time.Minute))
		assert.Equal(t, StatusInProgress, r.Status)
		assert.Equal(t, 30.0, r.ProgressPercentage)

		r.ApplyProgress(Progress{Answered: 8, Total: 10, TimeSpentSeconds: 20}, t0.Add(2*time.Minute))
		assert.Equal(t, StatusAlmostCompleted, r.Status)
		assert.Equal(t, 50, r.TimeSpentSeconds)
		assert.Equal(t, t0.Add(2*time.Minute), r.LastActivityAt)
	})

	t.Run("lower percentage is ignored", func(t *testing.T) {
		r := newRecord(t)
		r.ApplyProgress(Progress{Answered: 6, Total: 10}, t0)
		r.ApplyProgress(Progress{Answered: 2, Total: 10, TimeSpentSeconds: 15}, t0.Add(time.Minute))
		assert.Equal(t, 60.0, r.ProgressPercentage)
		assert.Equal(t, 6, r.QuestionsAnswered)
		assert.Equal(t, StatusInProgress, r.Status)
		assert.Equal(t, 15, r.TimeSpentSeconds)
	})

	t.Run("full progress completes", func(t *testing.T) {
		r := newRecord(t)
		r.ApplyProgress(Progress{Answered: 10, Total: 10}, t0.Add(time.Hour))
		assert.Equal(t, StatusCompleted, r.Status)
		assert.Equal(t, 100.0, r.ProgressPercentage)
		require.NotNil(t, r.CompletedAt)
		assert.Equal(t, t0.Add(time.Hour), *r.CompletedAt)
		assert.True(t, dErrors.HasCode(r.CanChange(), dErrors.CodeInvariantViolation))
	})

	t.Run("one unanswered question out of many does not complete", func(t *testing.T) {
		r := newRecord(t)
		r.ApplyProgress(Progress{Answered: 99999, Total: 100000}, t0)
		assert.Equal(t, StatusAlmostCompleted, r.Status)
		assert.Equal(t, 99.99, r.ProgressPercentage)
		assert.Nil(t, r.CompletedAt)
		assert.NoError(t, r.CanChange())

		r.ApplyProgress(Progress{Answered: 100000, Total: 100000}, t0.Add(time.Minute))
		assert.Equal(t, StatusCompleted, r.Status)
		assert.Equal(t, 100.0, r.ProgressPercentage)
	})

	t.Run("empty survey reports zero", func(t *testing.T) {
		r := newRecord(t)
		r.ApplyProgress(Progress{Answered: 0, Total: 0}, t0)
		assert.Equal(t, StatusStarted, r.Status)
		assert.Zero(t, r.ProgressPercentage)
	})
}

func TestApplyAbandon(t *testing.T) {
	r := newRecord(t)
	r.ApplyProgress(Progress{Answered: 4, Total: 10}, t0)
	r.ApplyAbandon("too long", t0.Add(time.Minute))

	assert.Equal(t, StatusAbandoned, r.Status)
	assert.Equal(t, "too long", r.AbandonReason)
	require.NotNil(t, r.AbandonedAtPercentage)
	assert.Equal(t, 40.0, *r.AbandonedAtPercentage)
	assert.Nil(t, r.CompletedAt)
	assert.Error(t, r.CanChange())
}

func TestApplyCompletion(t *testing.T) {
	r := newRecord(t)
	r.ApplyCompletion("webhook", t0)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, 10, r.QuestionsAnswered)
	assert.Equal(t, "webhook", r.CompletionSource)
}
