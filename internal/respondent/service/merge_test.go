package service

import (
	"context"
	"errors"
	"time"

	consentmodels "pollster/internal/consent/models"
	consentservice "pollster/internal/consent/service"
	consentstore "pollster/internal/consent/store"
	eventmodels "pollster/internal/events/models"
	eventservice "pollster/internal/events/service"
	eventstore "pollster/internal/events/store"
	participationservice "pollster/internal/participation/service"
	participationstore "pollster/internal/participation/store"
	"pollster/internal/respondent/models"
	"pollster/internal/respondent/store"
	surveystore "pollster/internal/survey/store"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
	txcontext "pollster/pkg/platform/tx"
	"pollster/pkg/requestcontext"
)

type failingAnswers struct{}

func (failingAnswers) ReassignRespondent(context.Context, id.RespondentID, id.RespondentID) (int, error) {
	return 0, errors.New("answers store unavailable")
}

type mergeFixture struct {
	store          *store.InMemory
	events         *eventservice.Log
	consents       *consentservice.Service
	participations *participationservice.Service
	runner         *txcontext.Memory
}

func (s *RespondentServiceSuite) newMergeFixture() *mergeFixture {
	f := &mergeFixture{
		store:  store.NewInMemory(),
		events: eventservice.New(eventstore.NewInMemory()),
		runner: txcontext.NewMemory(),
	}
	resolver := NewResolver(f.store)
	f.consents = consentservice.New(consentstore.NewInMemory(), f.runner, resolver, surveystore.NewInMemory(), f.events)
	f.participations = participationservice.New(participationstore.NewInMemory(), f.runner, resolver, f.events)
	return f
}

func (f *mergeFixture) service(answers AnswerReassigner) *Service {
	return New(f.store, f.runner, f.events,
		WithConsentGate(f.consents),
		WithDependents(f.consents, f.participations, answers),
	)
}

// seed creates user alice's respondent U, an anonymous respondent A sharing
// U's IP address and an unrelated anonymous respondent C.
func (s *RespondentServiceSuite) seed(svc *Service, f *mergeFixture) (alice id.UserID, u, a, c id.RespondentID) {
	alice = id.UserID(id.NewRespondentID())
	owned := visit("tok-u", firefoxUA, "10.0.0.1")
	owned.UserID = &alice
	resU, err := svc.GetOrCreate(s.ctx, owned)
	s.Require().NoError(err)

	resA, err := svc.GetOrCreate(s.ctx, visit("tok-a", safariUA, "10.0.0.1"))
	s.Require().NoError(err)
	s.Require().Equal(models.OutcomeCreated, resA.Outcome)

	resC, err := svc.GetOrCreate(s.ctx, visit("tok-c", safariUA, "192.168.1.20"))
	s.Require().NoError(err)
	s.Require().Equal(models.OutcomeCreated, resC.Outcome)

	u, a, c = resU.Respondent.ID, resA.Respondent.ID, resC.Respondent.ID

	_, err = f.consents.Grant(s.ctx, consentmodels.GrantRequest{RespondentID: u, Category: id.ConsentPersonalData})
	s.Require().NoError(err)
	_, err = f.consents.Grant(s.at(time.Minute), consentmodels.GrantRequest{RespondentID: a, Category: id.ConsentPersonalData})
	s.Require().NoError(err)
	_, err = f.consents.Grant(s.at(time.Minute), consentmodels.GrantRequest{RespondentID: a, Category: id.ConsentAnalytics})
	s.Require().NoError(err)

	_, err = f.participations.Start(s.ctx, u, 7, "web")
	s.Require().NoError(err)
	_, err = f.participations.Start(s.ctx, a, 7, "web")
	s.Require().NoError(err)
	_, err = f.participations.Start(s.ctx, a, 12, "web")
	s.Require().NoError(err)
	return alice, u, a, c
}

func (s *RespondentServiceSuite) TestAutoMerge() {
	f := s.newMergeFixture()
	svc := f.service(nil)
	alice, u, a, c := s.seed(svc, f)
	ctx := requestcontext.WithTime(s.ctx, s.now.Add(time.Hour))

	merged, err := svc.AutoMerge(ctx, alice)
	s.Require().NoError(err)
	s.Equal([]id.RespondentID{a}, merged)

	s.Run("source becomes a forwarding pointer", func() {
		src, err := svc.Get(ctx, a)
		s.Require().NoError(err)
		s.True(src.IsMerged)
		s.False(src.IsActive)
		s.Require().NotNil(src.MergedIntoID)
		s.Equal(u, *src.MergedIntoID)

		root, err := svc.Resolve(ctx, a)
		s.Require().NoError(err)
		s.Equal(u, root.ID)
	})

	s.Run("unrelated anonymous respondent is untouched", func() {
		other, err := svc.Get(ctx, c)
		s.Require().NoError(err)
		s.False(other.IsMerged)
	})

	s.Run("source token resolves to target", func() {
		res, err := svc.GetOrCreate(ctx, visit("tok-a", safariUA, "10.0.0.1"))
		s.Require().NoError(err)
		s.Equal(models.OutcomeSession, res.Outcome)
		s.Equal(u, res.Respondent.ID)
	})

	s.Run("newest consent wins and everything moves", func() {
		records, err := f.consents.List(ctx, u)
		s.Require().NoError(err)
		s.Len(records, 3)
		status, err := f.consents.Status(ctx, u)
		s.Require().NoError(err)
		s.True(status.Global[id.ConsentPersonalData])
		s.True(status.Global[id.ConsentAnalytics])

		active := 0
		for _, r := range records {
			if r.IsActive() {
				active++
				if r.Category == id.ConsentPersonalData {
					s.Equal(s.now.Add(time.Minute), r.GrantedAt)
				}
			}
		}
		s.Equal(2, active)
	})

	s.Run("colliding participation stays on the source", func() {
		onTarget, err := f.participations.ListByRespondent(ctx, u)
		s.Require().NoError(err)
		s.Len(onTarget, 2)
	})

	s.Run("merged event records the reassignment", func() {
		history, err := f.events.History(ctx, a)
		s.Require().NoError(err)
		s.Require().Len(history, 1)
		ev := history[0]
		s.Equal(eventmodels.TypeMerged, ev.Type)
		s.Equal(u.String(), ev.Payload["target_id"])
		s.EqualValues(2, ev.Payload["consents"])
		s.EqualValues(1, ev.Payload["participations"])
		s.Equal([]id.SurveyID{7}, ev.Payload["retained_surveys"])
	})

	s.Run("second call is a no-op", func() {
		again, err := svc.AutoMerge(ctx, alice)
		s.Require().NoError(err)
		s.Empty(again)

		history, err := f.events.History(ctx, a)
		s.Require().NoError(err)
		s.Len(history, 1)
	})
}

func (s *RespondentServiceSuite) TestAutoMergeWithoutPrimary() {
	f := s.newMergeFixture()
	svc := f.service(nil)

	merged, err := svc.AutoMerge(s.ctx, id.UserID(id.NewRespondentID()))
	s.Require().NoError(err)
	s.Empty(merged)

	_, err = svc.AutoMerge(s.ctx, id.UserID{})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *RespondentServiceSuite) TestMergeIsAtomic() {
	f := s.newMergeFixture()
	svc := f.service(failingAnswers{})
	_, u, a, _ := s.seed(svc, f)

	_, err := svc.Merge(s.ctx, a, u)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStorage))

	src, err := svc.Get(s.ctx, a)
	s.Require().NoError(err)
	s.False(src.IsMerged)

	history, err := f.events.History(s.ctx, a)
	s.Require().NoError(err)
	s.Len(history, 5)

	records, err := f.consents.List(s.ctx, a)
	s.Require().NoError(err)
	s.Len(records, 2)

	onTarget, err := f.participations.ListByRespondent(s.ctx, u)
	s.Require().NoError(err)
	s.Len(onTarget, 1)

	res, err := svc.GetOrCreate(s.ctx, visit("tok-a", safariUA, "10.0.0.1"))
	s.Require().NoError(err)
	s.Equal(a, res.Respondent.ID)
}

func (s *RespondentServiceSuite) TestMergeGuards() {
	f := s.newMergeFixture()
	svc := f.service(nil)
	_, u, a, c := s.seed(svc, f)

	_, err := svc.Merge(s.ctx, a, a)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = svc.Merge(s.ctx, a, id.NewRespondentID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = svc.Merge(s.ctx, a, u)
	s.Require().NoError(err)

	_, err = svc.Merge(s.ctx, a, c)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}
