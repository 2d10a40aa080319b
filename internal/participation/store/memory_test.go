package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollster/internal/participation/models"
	id "pollster/pkg/domain"
	"pollster/pkg/platform/sentinel"
	txcontext "pollster/pkg/platform/tx"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func insert(t *testing.T, s *InMemory, rid id.RespondentID, sid id.SurveyID) *models.Record {
	t.Helper()
	r, err := models.NewParticipation(id.NewParticipationID(), rid, sid, 10, t0)
	require.NoError(t, err)
	require.NoError(t, s.Insert(context.Background(), r))
	return r
}

func TestInsert_PairIsUnique(t *testing.T) {
	s := NewInMemory()
	rid := id.NewRespondentID()
	insert(t, s, rid, 1)

	dup, err := models.NewParticipation(id.NewParticipationID(), rid, 1, 0, t0)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Insert(context.Background(), dup), sentinel.ErrAlreadyUsed)
}

func TestExecute_ValidateBlocksMutation(t *testing.T) {
	s := NewInMemory()
	rid := id.NewRespondentID()
	insert(t, s, rid, 1)
	blocked := errors.New("blocked")

	_, err := s.Execute(context.Background(), rid, 1,
		func(*models.Record) error { return blocked },
		func(r *models.Record) { r.Status = models.StatusAbandoned })
	assert.ErrorIs(t, err, blocked)

	got, err := s.FindByPair(context.Background(), rid, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarted, got.Status)

	_, err = s.Execute(context.Background(), rid, 2, func(*models.Record) error { return nil }, func(*models.Record) {})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestReassignRespondent_RetainsCollisions(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	source, target := id.NewRespondentID(), id.NewRespondentID()
	insert(t, s, source, 1)
	insert(t, s, source, 2)
	insert(t, s, source, 5)
	insert(t, s, target, 2)
	insert(t, s, target, 5)

	moved, retained, err := s.ReassignRespondent(ctx, source, target)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	assert.Equal(t, []id.SurveyID{2, 5}, retained)

	onTarget, err := s.ListByRespondent(ctx, target)
	require.NoError(t, err)
	assert.Len(t, onTarget, 3)

	onSource, err := s.ListByRespondent(ctx, source)
	require.NoError(t, err)
	assert.Len(t, onSource, 2)

	both, err := s.ListByRespondents(ctx, []id.RespondentID{source, target})
	require.NoError(t, err)
	assert.Len(t, both, 5)
}

func TestReassignRespondent_RollsBack(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	source, target := id.NewRespondentID(), id.NewRespondentID()
	insert(t, s, source, 1)
	boom := errors.New("boom")

	err := txcontext.NewMemory().RunInTx(ctx, func(txCtx context.Context) error {
		_, _, err := s.ReassignRespondent(txCtx, source, target)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.FindByPair(ctx, source, 1)
	assert.NoError(t, err)
	_, err = s.FindByPair(ctx, target, 1)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
