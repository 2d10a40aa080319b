package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	answermodels "pollster/internal/answers/models"
	"pollster/internal/participation/handler/mocks"
	"pollster/internal/participation/models"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
	"pollster/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service Answers

type ParticipationHandlerSuite struct {
	suite.Suite
	service      *mocks.MockService
	answers      *mocks.MockAnswers
	router       chi.Router
	respondentID id.RespondentID
	now          time.Time
}

func TestParticipationHandlerSuite(t *testing.T) {
	suite.Run(t, new(ParticipationHandlerSuite))
}

func (s *ParticipationHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.answers = mocks.NewMockAnswers(ctrl)
	s.router = chi.NewRouter()
	New(s.service, s.answers, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
	s.respondentID = id.NewRespondentID()
	s.now = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
}

func (s *ParticipationHandlerSuite) do(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := requestcontext.WithRespondentID(req.Context(), s.respondentID)
	ctx = requestcontext.WithEntryPoint(ctx, id.EntryWeb)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req.WithContext(ctx))
	return w
}

func (s *ParticipationHandlerSuite) record(status models.Status, pct float64) *models.Record {
	return &models.Record{
		ID:                 id.NewParticipationID(),
		RespondentID:       s.respondentID,
		SurveyID:           7,
		Status:             status,
		ProgressPercentage: pct,
		TotalQuestions:     10,
		StartedAt:          s.now,
		LastActivityAt:     s.now,
	}
}

func (s *ParticipationHandlerSuite) TestStart() {
	s.service.EXPECT().Start(gomock.Any(), s.respondentID, id.SurveyID(7), "web").
		Return(s.record(models.StatusStarted, 0), nil)

	w := s.do(http.MethodPost, "/me/surveys/7/start", "")

	s.Equal(http.StatusOK, w.Code)
	var resp models.Record
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(models.StatusStarted, resp.Status)
	s.Equal(10, resp.TotalQuestions)
}

func (s *ParticipationHandlerSuite) TestStartInactiveSurvey() {
	s.service.EXPECT().Start(gomock.Any(), s.respondentID, id.SurveyID(7), "web").
		Return(nil, dErrors.New(dErrors.CodeConflict, "survey is not active"))

	w := s.do(http.MethodPost, "/me/surveys/7/start", "")
	s.Equal(http.StatusConflict, w.Code)
}

func (s *ParticipationHandlerSuite) TestProgress() {
	s.Run("forwards the counters", func() {
		s.service.EXPECT().UpdateProgress(gomock.Any(), s.respondentID, id.SurveyID(7),
			models.Progress{Answered: 9, Total: 10, TimeSpentSeconds: 40}).
			Return(s.record(models.StatusAlmostCompleted, 90), nil)

		w := s.do(http.MethodPut, "/me/surveys/7/progress", `{"answered":9,"total":10,"time_spent_seconds":40}`)

		s.Equal(http.StatusOK, w.Code)
		s.Contains(w.Body.String(), `"status":"almost_completed"`)
	})

	s.Run("answered above total is rejected before the service", func() {
		w := s.do(http.MethodPut, "/me/surveys/7/progress", `{"answered":11,"total":10}`)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("terminal participation conflicts", func() {
		s.service.EXPECT().UpdateProgress(gomock.Any(), s.respondentID, id.SurveyID(7), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "participation is completed"))

		w := s.do(http.MethodPut, "/me/surveys/7/progress", `{"answered":1,"total":10}`)
		s.Equal(http.StatusConflict, w.Code)
	})
}

func (s *ParticipationHandlerSuite) TestComplete() {
	s.Run("defaults the source to the entry point", func() {
		s.service.EXPECT().Complete(gomock.Any(), s.respondentID, id.SurveyID(7), "web").
			Return(s.record(models.StatusCompleted, 100), nil)

		w := s.do(http.MethodPost, "/me/surveys/7/complete", "")
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("uses the declared source", func() {
		s.service.EXPECT().Complete(gomock.Any(), s.respondentID, id.SurveyID(7), "email_link").
			Return(s.record(models.StatusCompleted, 100), nil)

		w := s.do(http.MethodPost, "/me/surveys/7/complete", `{"source":" email_link "}`)
		s.Equal(http.StatusOK, w.Code)
	})
}

func (s *ParticipationHandlerSuite) TestAbandon() {
	s.service.EXPECT().Abandon(gomock.Any(), s.respondentID, id.SurveyID(7), "too long").
		Return(s.record(models.StatusAbandoned, 40), nil)

	w := s.do(http.MethodPost, "/me/surveys/7/abandon", `{"reason":"too long"}`)
	s.Equal(http.StatusOK, w.Code)
}

func (s *ParticipationHandlerSuite) TestGetAndList() {
	s.Run("missing participation", func() {
		s.service.EXPECT().Get(gomock.Any(), s.respondentID, id.SurveyID(3)).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "participation not found"))

		w := s.do(http.MethodGet, "/me/surveys/3/participation", "")
		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("empty list is an empty array", func() {
		s.service.EXPECT().ListByRespondent(gomock.Any(), s.respondentID).Return(nil, nil)

		w := s.do(http.MethodGet, "/me/participations", "")

		s.Equal(http.StatusOK, w.Code)
		s.JSONEq(`{"participations":[]}`, w.Body.String())
	})

	s.Run("invalid survey id", func() {
		w := s.do(http.MethodGet, "/me/surveys/zero/participation", "")
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *ParticipationHandlerSuite) TestSubmitAnswers() {
	s.Run("stores the batch", func() {
		s.answers.EXPECT().Submit(gomock.Any(), s.respondentID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.RespondentID, sub answermodels.Submission) ([]*answermodels.Answer, error) {
				s.Equal(id.SurveyID(7), sub.SurveyID)
				s.JSONEq(`"blue"`, string(sub.Answers["color"]))
				return []*answermodels.Answer{{}, {}}, nil
			})

		w := s.do(http.MethodPost, "/me/surveys/7/answers", `{"answers":{"color":"blue","age":31}}`)

		s.Equal(http.StatusCreated, w.Code)
		s.JSONEq(`{"survey_id":7,"saved":2}`, w.Body.String())
	})

	s.Run("gate denial names the missing consent", func() {
		s.answers.EXPECT().Submit(gomock.Any(), s.respondentID, gomock.Any()).
			Return(nil, dErrors.NewWithDetails(dErrors.CodeComplianceDenied, "missing consent: personal_data", "personal_data"))

		w := s.do(http.MethodPost, "/me/surveys/7/answers", `{"answers":{"email":"a@b.c"}}`)

		s.Equal(http.StatusForbidden, w.Code)
		s.Contains(w.Body.String(), `"missing":["personal_data"]`)
	})

	s.Run("empty batch", func() {
		w := s.do(http.MethodPost, "/me/surveys/7/answers", `{"answers":{}}`)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}
