package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	eventmodels "pollster/internal/events/models"
	"pollster/internal/platform/kafka/consumer"
	"pollster/internal/stats/models"
	"pollster/internal/stats/store"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
)

type StatsServiceSuite struct {
	suite.Suite
	store   *store.InMemory
	service *Service
	ctx     context.Context
	rid     id.RespondentID
}

func TestStatsServiceSuite(t *testing.T) {
	suite.Run(t, new(StatsServiceSuite))
}

func (s *StatsServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.service = New(s.store)
	s.ctx = context.Background()
	s.rid = id.NewRespondentID()
}

func (s *StatsServiceSuite) event(t eventmodels.Type, payload eventmodels.Payload) *eventmodels.Event {
	e, err := eventmodels.NewEvent(s.rid, t, payload, time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	return e
}

// wire sends the event through the stream encoding.
func (s *StatsServiceSuite) wire(e *eventmodels.Event) *consumer.Message {
	raw, err := json.Marshal(e)
	s.Require().NoError(err)
	return &consumer.Message{Topic: "respondent-events", Key: []byte(e.RespondentID.String()), Value: raw}
}

func (s *StatsServiceSuite) TestRespondentCounters() {
	created := s.event(eventmodels.TypeCreated, eventmodels.Payload{
		"entry_point":  id.EntryTelegramWebApp,
		"is_anonymous": true,
		"device_type":  "mobile",
		"browser":      "Safari",
	})
	s.Require().NoError(s.service.HandleEvent(s.ctx, created))
	s.Require().NoError(s.service.Handle(s.ctx, s.wire(s.event(eventmodels.TypeCreated, eventmodels.Payload{
		"entry_point":  "web",
		"is_anonymous": false,
	}))))
	s.Require().NoError(s.service.HandleEvent(s.ctx, s.event(eventmodels.TypeUserLinked, nil)))
	s.Require().NoError(s.service.HandleEvent(s.ctx, s.event(eventmodels.TypeMerged, eventmodels.Payload{"target_id": "x"})))

	snap, err := s.service.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), snap.Respondents[models.FieldCreated])
	s.Equal(int64(0), snap.Respondents[models.FieldAnonymous])
	s.Equal(int64(2), snap.Respondents[models.FieldAuthenticated])
	s.Equal(int64(1), snap.Respondents[models.FieldMerged])
	s.Equal(models.Counters{"telegram_webapp": 1, "web": 1}, snap.EntryPoints)
	s.Equal(models.Counters{"mobile": 1, "unknown": 1}, snap.DeviceTypes)
	s.Equal(models.Counters{"Safari": 1, "unknown": 1}, snap.Browsers)
}

func (s *StatsServiceSuite) TestRedeliveryIsIgnored() {
	e := s.event(eventmodels.TypeSurveyStarted, eventmodels.Payload{"survey_id": int64(7)})
	for range 3 {
		s.Require().NoError(s.service.Handle(s.ctx, s.wire(e)))
	}
	snap, err := s.service.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), snap.Participation["started"])
}

func (s *StatsServiceSuite) TestConsentCounters() {
	for _, e := range []*eventmodels.Event{
		s.event(eventmodels.TypeConsentGranted, eventmodels.Payload{"category": "location"}),
		s.event(eventmodels.TypeConsentGranted, eventmodels.Payload{"category": "location", "superseded": id.NewConsentID().String()}),
		s.event(eventmodels.TypeConsentGranted, eventmodels.Payload{"category": "analytics"}),
		s.event(eventmodels.TypeConsentRevoked, eventmodels.Payload{"category": "analytics"}),
		s.event(eventmodels.TypeConsentGranted, eventmodels.Payload{"category": "personal_data"}),
		s.event(eventmodels.TypeDataDeleted, eventmodels.Payload{"erased": 2, "revoked_categories": []string{"personal_data"}}),
	} {
		s.Require().NoError(s.service.Handle(s.ctx, s.wire(e)))
	}

	snap, err := s.service.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), snap.ActiveConsents["location"])
	s.Equal(int64(0), snap.ActiveConsents["analytics"])
	s.Equal(int64(0), snap.ActiveConsents["personal_data"])
	s.Equal(int64(0), snap.ActiveConsents["marketing"])
	s.Equal(int64(2), snap.Respondents[models.FieldErased])
}

func (s *StatsServiceSuite) TestParticipationTransitions() {
	for _, e := range []*eventmodels.Event{
		s.event(eventmodels.TypeSurveyStarted, nil),
		s.event(eventmodels.TypeSurveyProgressUpdated, eventmodels.Payload{"status": "in_progress", "previous_status": "started"}),
		s.event(eventmodels.TypeSurveyProgressUpdated, eventmodels.Payload{"status": "in_progress", "previous_status": "in_progress"}),
		s.event(eventmodels.TypeSurveyProgressUpdated, eventmodels.Payload{"status": "almost_completed", "previous_status": "in_progress"}),
		s.event(eventmodels.TypeSurveyCompleted, eventmodels.Payload{"status": "completed", "previous_status": "almost_completed"}),
		s.event(eventmodels.TypeSurveyAbandoned, eventmodels.Payload{"status": "abandoned", "previous_status": "started"}),
	} {
		s.Require().NoError(s.service.HandleEvent(s.ctx, e))
	}

	snap, err := s.service.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.Counters{
		"started":          1,
		"in_progress":      1,
		"almost_completed": 1,
		"completed":        1,
		"abandoned":        1,
	}, snap.Participation)
}

func (s *StatsServiceSuite) TestIrrelevantAndPoisonRecords() {
	s.Require().NoError(s.service.HandleEvent(s.ctx, s.event(eventmodels.TypeLocationUpdated, nil)))
	s.Require().NoError(s.service.Handle(s.ctx, &consumer.Message{Value: []byte("{not json")}))

	sections, err := s.store.Sections(s.ctx)
	s.Require().NoError(err)
	s.Empty(sections)
}

type brokenStore struct{}

func (brokenStore) Apply(context.Context, string, []models.Increment) (bool, error) {
	return false, errors.New("redis down")
}

func (brokenStore) Sections(context.Context) (map[models.Section]models.Counters, error) {
	return nil, errors.New("redis down")
}

func TestStoreFailures(t *testing.T) {
	svc := New(brokenStore{})
	rid := id.NewRespondentID()
	e, err := eventmodels.NewEvent(rid, eventmodels.TypeMerged, nil, time.Now())
	require.NoError(t, err)

	assert.Error(t, svc.HandleEvent(context.Background(), e), "failure must leave the offset uncommitted")

	_, err = svc.Snapshot(context.Background())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStorage))
}
