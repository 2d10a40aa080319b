package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	answermodels "pollster/internal/answers/models"
	answerstore "pollster/internal/answers/store"
	consentmodels "pollster/internal/consent/models"
	consentservice "pollster/internal/consent/service"
	consentstore "pollster/internal/consent/store"
	eventmodels "pollster/internal/events/models"
	eventservice "pollster/internal/events/service"
	eventstore "pollster/internal/events/store"
	participationservice "pollster/internal/participation/service"
	participationstore "pollster/internal/participation/store"
	respmodels "pollster/internal/respondent/models"
	respservice "pollster/internal/respondent/service"
	respstore "pollster/internal/respondent/store"
	surveystore "pollster/internal/survey/store"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
	txcontext "pollster/pkg/platform/tx"
	"pollster/pkg/requestcontext"
)

type ComplianceServiceSuite struct {
	suite.Suite
	respondents    *respstore.InMemory
	consentStore   *consentstore.InMemory
	participations *participationstore.InMemory
	answers        *answerstore.InMemory
	eventStore     *eventstore.InMemory
	events         *eventservice.Log
	runner         *txcontext.Memory
	identity       *respservice.Service
	consents       *consentservice.Service
	tracker        *participationservice.Service
	service        *Service
	ctx            context.Context
	now            time.Time
}

func TestComplianceServiceSuite(t *testing.T) {
	suite.Run(t, new(ComplianceServiceSuite))
}

func (s *ComplianceServiceSuite) SetupTest() {
	s.respondents = respstore.NewInMemory()
	s.consentStore = consentstore.NewInMemory()
	s.participations = participationstore.NewInMemory()
	s.answers = answerstore.NewInMemory()
	s.eventStore = eventstore.NewInMemory()
	s.events = eventservice.New(s.eventStore)
	s.runner = txcontext.NewMemory()

	resolver := respservice.NewResolver(s.respondents)
	s.consents = consentservice.New(s.consentStore, s.runner, resolver, surveystore.NewInMemory(), s.events)
	s.tracker = participationservice.New(s.participations, s.runner, resolver, s.events)
	s.identity = respservice.New(s.respondents, s.runner, s.events,
		respservice.WithConsentGate(s.consents),
		respservice.WithDependents(s.consents, s.tracker, s.answers),
	)
	s.service = New(s.respondents, s.consentStore, s.participations, s.events, s.runner, WithAnswers(s.answers))

	s.now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

// person creates an authenticated respondent with one anonymous respondent
// merged into it, a consent, a participation and an answer.
func (s *ComplianceServiceSuite) person() (root, merged id.RespondentID) {
	user := id.UserID(uuid.New())
	owned, err := s.identity.GetOrCreate(s.ctx, respmodels.GetOrCreateRequest{
		SessionToken: "tok-root",
		UserID:       &user,
		ClientIP:     "10.1.1.1",
		UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) Gecko/20100101 Firefox/122.0",
	})
	s.Require().NoError(err)
	anon, err := s.identity.GetOrCreate(s.ctx, respmodels.GetOrCreateRequest{SessionToken: "tok-anon"})
	s.Require().NoError(err)
	root, merged = owned.Respondent.ID, anon.Respondent.ID

	_, err = s.consents.Grant(s.ctx, consentmodels.GrantRequest{RespondentID: merged, Category: id.ConsentAnalytics})
	s.Require().NoError(err)
	_, err = s.consents.Grant(s.ctx, consentmodels.GrantRequest{RespondentID: root, Category: id.ConsentPersonalData})
	s.Require().NoError(err)
	_, err = s.tracker.Start(s.ctx, merged, 7, "web")
	s.Require().NoError(err)
	s.Require().NoError(s.answers.Save(s.ctx, &answermodels.Answer{
		ID:           uuid.New(),
		RespondentID: merged,
		SurveyID:     7,
		QuestionKey:  "q1",
		Value:        json.RawMessage(`"yes"`),
		AnsweredAt:   s.now,
	}))

	_, err = s.identity.Merge(requestcontext.WithTime(s.ctx, s.now.Add(time.Minute)), merged, root)
	s.Require().NoError(err)
	return root, merged
}

func (s *ComplianceServiceSuite) TestExport() {
	root, merged := s.person()

	for _, rid := range []id.RespondentID{root, merged} {
		bundle, err := s.service.Export(s.ctx, rid)
		s.Require().NoError(err)
		s.Equal(root, bundle.Respondent.ID)
		s.Require().Len(bundle.Merged, 1)
		s.Equal(merged, bundle.Merged[0].ID)
		s.Len(bundle.Consents, 2)
		s.Len(bundle.Participations, 1)
		s.Len(bundle.Answers, 1)
		s.Equal(s.now, bundle.ExportedAt)

		var types []eventmodels.Type
		for _, e := range bundle.Events {
			types = append(types, e.Type)
		}
		s.Contains(types, eventmodels.TypeMerged)
		s.Contains(types, eventmodels.TypeSurveyStarted)
		for i := 1; i < len(bundle.Events); i++ {
			s.False(bundle.Events[i].OccurredAt.Before(bundle.Events[i-1].OccurredAt))
		}
	}

	timeline, err := s.events.Timeline(s.ctx, root, 1)
	s.Require().NoError(err)
	s.Require().Len(timeline, 1)
	s.Equal(eventmodels.TypeDataExported, timeline[0].Type)

	_, err = s.service.Export(s.ctx, id.NewRespondentID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ComplianceServiceSuite) TestErase() {
	root, merged := s.person()
	tracked := requestcontext.WithSessionToken(requestcontext.WithClientMetadata(s.ctx, "203.0.113.9", "Mozilla/5.0"), "tok-anon")
	s.Require().NoError(s.events.Emit(tracked, merged, eventmodels.TypeResumed, nil))
	ctx := requestcontext.WithTime(requestcontext.WithClientMetadata(s.ctx, "203.0.113.10", "curl/8.5"), s.now.Add(time.Hour))

	result, err := s.service.Erase(ctx, merged)
	s.Require().NoError(err)
	s.Equal(root, result.RespondentID)
	s.ElementsMatch([]id.RespondentID{root, merged}, result.Erased)
	s.Equal(2, result.ConsentsRevoked)
	s.Equal(2, result.SessionsDropped)

	s.Run("personal data is scrubbed", func() {
		for _, rid := range result.Erased {
			r, err := s.respondents.FindByID(ctx, rid)
			s.Require().NoError(err)
			s.True(r.IsDeleted())
			s.False(r.IsActive)
			s.Empty(r.IPAddress)
			s.Empty(r.Fingerprint)
			s.Nil(r.BrowserInfo)
		}
	})

	s.Run("consents are revoked", func() {
		records, err := s.consentStore.ListByRespondents(ctx, []id.RespondentID{root})
		s.Require().NoError(err)
		for _, r := range records {
			s.False(r.IsActive())
		}
	})

	s.Run("old token no longer resolves", func() {
		res, err := s.identity.GetOrCreate(ctx, respmodels.GetOrCreateRequest{SessionToken: "tok-root"})
		s.Require().NoError(err)
		s.Equal(respmodels.OutcomeCreated, res.Outcome)
		s.NotEqual(root, res.Respondent.ID)
	})

	s.Run("data_deleted is recorded", func() {
		timeline, err := s.events.Timeline(ctx, root, 1)
		s.Require().NoError(err)
		s.Require().Len(timeline, 1)
		s.Equal(eventmodels.TypeDataDeleted, timeline[0].Type)
	})

	s.Run("request metadata is stripped from events and outbox", func() {
		s.Positive(result.EventsScrubbed)
		history, err := s.events.History(ctx, result.Erased...)
		s.Require().NoError(err)
		s.Require().NotEmpty(history)
		for _, e := range history {
			s.Empty(e.IPAddress, e.Type)
			s.Empty(e.UserAgent, e.Type)
			s.Empty(e.SessionToken, e.Type)
		}

		pending, err := s.eventStore.ClaimUnpublished(ctx, 100, "worker-1", s.now.Add(2*time.Hour))
		s.Require().NoError(err)
		s.Require().NotEmpty(pending)
		for _, rec := range pending {
			s.NotContains(string(rec.Payload), "203.0.113.9")
			s.NotContains(string(rec.Payload), "203.0.113.10")
			s.NotContains(string(rec.Payload), "tok-anon")
		}
	})

	s.Run("erasing twice is a conflict", func() {
		_, err := s.service.Erase(ctx, root)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("erased respondent cannot be exported", func() {
		_, err := s.service.Export(ctx, root)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

type failingConsents struct {
	*consentstore.InMemory
}

func (failingConsents) RevokeAllActive(context.Context, id.RespondentID, time.Time) (int, error) {
	return 0, errors.New("connection reset")
}

func (s *ComplianceServiceSuite) TestEraseRollsBack() {
	root, _ := s.person()
	svc := New(s.respondents, failingConsents{s.consentStore}, s.participations, s.events, s.runner)

	_, err := svc.Erase(s.ctx, root)
	s.True(dErrors.HasCode(err, dErrors.CodeStorage))

	r, err := s.respondents.FindByID(s.ctx, root)
	s.Require().NoError(err)
	s.False(r.IsDeleted())
	s.NotEmpty(r.IPAddress)

	found, err := s.respondents.FindSession(s.ctx, "tok-root")
	s.Require().NoError(err)
	s.Equal(root, found.RespondentID)
}

func (s *ComplianceServiceSuite) TestPruneEvents() {
	rid := id.NewRespondentID()
	old := requestcontext.WithTime(s.ctx, s.now.Add(-100*24*time.Hour))
	s.Require().NoError(s.events.Emit(old, rid, eventmodels.TypeCreated, nil))
	s.Require().NoError(s.events.Emit(old, rid, eventmodels.TypeResumed, nil))
	s.Require().NoError(s.events.Emit(s.ctx, rid, eventmodels.TypeResumed, nil))

	result, err := s.service.PruneEvents(s.ctx, 90*24*time.Hour)
	s.Require().NoError(err)
	s.Equal(int64(2), result.Deleted)
	s.Equal(s.now.Add(-90*24*time.Hour), result.Cutoff)

	history, err := s.events.History(s.ctx, rid)
	s.Require().NoError(err)
	s.Len(history, 1)

	s.Run("delivered outbox rows are pruned with the events", func() {
		s.Require().NoError(s.events.Emit(old, rid, eventmodels.TypeResumed, nil))
		claimed, err := s.eventStore.ClaimUnpublished(s.ctx, 100, "worker-1", s.now.Add(time.Minute))
		s.Require().NoError(err)
		for _, rec := range claimed {
			if rec.CreatedAt.Before(s.now) {
				s.Require().NoError(s.eventStore.MarkPublished(s.ctx, rec.OutboxID, "worker-1", s.now))
			}
		}

		result, err := s.service.PruneEvents(s.ctx, 90*24*time.Hour)
		s.Require().NoError(err)
		s.Equal(int64(3), result.OutboxDeleted)
		s.Equal(1, s.eventStore.PendingCount())
	})

	_, err = s.service.PruneEvents(s.ctx, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
