package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pollster/internal/respondent/models"
	id "pollster/pkg/domain"
	"pollster/pkg/platform/sentinel"
	txcontext "pollster/pkg/platform/tx"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) create(token, fp, ip string, at time.Time) *models.Respondent {
	r, err := models.NewRespondent(id.NewRespondentID(), models.NewParams{
		SessionToken: token,
		Fingerprint:  fp,
		IPAddress:    ip,
	}, at)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, r))
	return r
}

func (s *InMemoryStoreSuite) TestCreateGuardsSessionToken() {
	s.create("tok-1", "", "", s.now)

	dup, err := models.NewRespondent(id.NewRespondentID(), models.NewParams{SessionToken: "tok-1"}, s.now)
	s.Require().NoError(err)
	s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrAlreadyUsed)
}

func (s *InMemoryStoreSuite) TestSessionAliases() {
	r := s.create("tok-1", "", "", s.now)
	alias := models.Session{Token: "tok-2", RespondentID: r.ID, Adopted: true, CreatedAt: s.now}
	s.Require().NoError(s.store.AddSession(s.ctx, alias))
	s.ErrorIs(s.store.AddSession(s.ctx, alias), sentinel.ErrAlreadyUsed)

	found, err := s.store.FindSession(s.ctx, "tok-2")
	s.Require().NoError(err)
	s.Equal(r.ID, found.RespondentID)
	s.True(found.Adopted)

	issued, err := s.store.FindSession(s.ctx, "tok-1")
	s.Require().NoError(err)
	s.False(issued.Adopted)

	other := s.create("tok-3", "", "", s.now)
	n, err := s.store.ReassignSessions(s.ctx, r.ID, other.ID)
	s.Require().NoError(err)
	s.Equal(2, n)

	found, err = s.store.FindSession(s.ctx, "tok-1")
	s.Require().NoError(err)
	s.Equal(other.ID, found.RespondentID)

	s.Require().NoError(s.store.DropSession(s.ctx, "tok-2"))
	s.Require().NoError(s.store.DropSession(s.ctx, "tok-2"))
	_, err = s.store.FindSession(s.ctx, "tok-2")
	s.ErrorIs(err, sentinel.ErrNotFound)

	n, err = s.store.DeleteSessions(s.ctx, other.ID)
	s.Require().NoError(err)
	s.Equal(2, n)
	_, err = s.store.FindSession(s.ctx, "tok-3")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestFindByFingerprintOrdersByActivity() {
	older := s.create("a", "fp", "", s.now)
	newer := s.create("b", "fp", "", s.now.Add(time.Hour))
	s.create("c", "other", "", s.now.Add(2*time.Hour))

	found, err := s.store.FindByFingerprint(s.ctx, "fp", 10)
	s.Require().NoError(err)
	s.Require().Len(found, 2)
	s.Equal(newer.ID, found[0].ID)
	s.Equal(older.ID, found[1].ID)

	limited, err := s.store.FindByFingerprint(s.ctx, "fp", 1)
	s.Require().NoError(err)
	s.Len(limited, 1)
}

func (s *InMemoryStoreSuite) TestFindAnonymousBySignals() {
	byFP := s.create("a", "fp-1", "", s.now)
	byIP := s.create("b", "fp-2", "10.0.0.1", s.now)
	s.create("c", "fp-3", "10.0.0.2", s.now)

	linked := s.create("d", "fp-1", "", s.now)
	userID := id.UserID(id.NewRespondentID())
	_, err := s.store.Execute(s.ctx, linked.ID, func(*models.Respondent) error { return nil }, func(r *models.Respondent) {
		r.ApplyLinkUser(userID, s.now)
	})
	s.Require().NoError(err)

	found, err := s.store.FindAnonymousBySignals(s.ctx, []string{"fp-1"}, []string{"10.0.0.1"})
	s.Require().NoError(err)
	ids := map[id.RespondentID]bool{}
	for _, r := range found {
		ids[r.ID] = true
	}
	s.Equal(map[id.RespondentID]bool{byFP.ID: true, byIP.ID: true}, ids)

	none, err := s.store.FindAnonymousBySignals(s.ctx, nil, nil)
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *InMemoryStoreSuite) TestRepointMerged() {
	a := s.create("a", "", "", s.now)
	b := s.create("b", "", "", s.now)
	c := s.create("c", "", "", s.now)

	locked, err := s.store.LockForUpdate(s.ctx, a.ID, b.ID)
	s.Require().NoError(err)
	locked[a.ID].ApplyMergeInto(locked[b.ID], s.now)
	s.Require().NoError(s.store.Update(s.ctx, locked[a.ID]))

	n, err := s.store.RepointMerged(s.ctx, b.ID, c.ID)
	s.Require().NoError(err)
	s.Equal(1, n)

	merged, err := s.store.ListMergedInto(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Require().Len(merged, 1)
	s.Equal(a.ID, merged[0].ID)
}

func (s *InMemoryStoreSuite) TestLockForUpdateMissing() {
	a := s.create("a", "", "", s.now)
	_, err := s.store.LockForUpdate(s.ctx, a.ID, id.NewRespondentID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestRollbackUndoesCreateAndAlias() {
	boom := errors.New("boom")
	var created id.RespondentID
	err := txcontext.NewMemory().RunInTx(s.ctx, func(txCtx context.Context) error {
		r, err := models.NewRespondent(id.NewRespondentID(), models.NewParams{SessionToken: "tok"}, s.now)
		s.Require().NoError(err)
		s.Require().NoError(s.store.Create(txCtx, r))
		s.Require().NoError(s.store.AddSession(txCtx, models.Session{Token: "alias", RespondentID: r.ID, CreatedAt: s.now}))
		created = r.ID
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.store.FindByID(s.ctx, created)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindSession(s.ctx, "tok")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindSession(s.ctx, "alias")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestListPages() {
	for i := 0; i < 5; i++ {
		s.create(string(rune('a'+i)), "", "", s.now.Add(time.Duration(i)*time.Minute))
	}
	items, total, err := s.store.List(s.ctx, models.Page{Limit: 2, Offset: 1})
	s.Require().NoError(err)
	s.Equal(5, total)
	s.Require().Len(items, 2)
	s.Equal("d", items[0].SessionToken)

	items, _, err = s.store.List(s.ctx, models.Page{Limit: 2, Offset: 10})
	s.Require().NoError(err)
	s.Empty(items)
}
