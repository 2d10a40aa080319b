package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"pollster/internal/consent/handler/mocks"
	"pollster/internal/consent/models"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
	"pollster/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type ConsentHandlerSuite struct {
	suite.Suite
	respondentID id.RespondentID
	grantedAt    time.Time
}

func TestConsentHandlerSuite(t *testing.T) {
	suite.Run(t, new(ConsentHandlerSuite))
}

func (s *ConsentHandlerSuite) SetupTest() {
	s.respondentID = id.NewRespondentID()
	s.grantedAt = time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
}

func newTestRouter(t *testing.T) (chi.Router, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockService := mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	h := New(mockService, logger)
	h.Register(r)
	h.RegisterVerified(r)
	return r, mockService
}

func (s *ConsentHandlerSuite) do(router chi.Router, method, target string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := requestcontext.WithRespondentID(req.Context(), s.respondentID)
	ctx = requestcontext.WithEntryPoint(ctx, id.EntryTelegramWebApp)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req.WithContext(ctx))
	return w
}

func (s *ConsentHandlerSuite) TestHandleGrant() {
	s.Run("survey scoped grant", func() {
		router, mockService := newTestRouter(s.T())
		consentID := id.NewConsentID()
		mockService.EXPECT().Grant(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req models.GrantRequest) (*models.Record, error) {
				assert.Equal(s.T(), s.respondentID, req.RespondentID)
				assert.Equal(s.T(), id.ConsentLocation, req.Category)
				require.NotNil(s.T(), req.Survey)
				assert.Equal(s.T(), id.SurveyID(7), *req.Survey)
				assert.Equal(s.T(), "telegram_webapp", req.Source)
				assert.Equal(s.T(), "2.0", req.Version)
				return &models.Record{
					ID:           consentID,
					RespondentID: s.respondentID,
					SurveyID:     req.Survey,
					Category:     req.Category,
					Granted:      true,
					GrantedAt:    s.grantedAt,
					Version:      "2.0",
				}, nil
			})

		w := s.do(router, http.MethodPost, "/me/consents", map[string]any{
			"category":  " location ",
			"survey_id": 7,
			"version":   "2.0",
		})

		s.Equal(http.StatusCreated, w.Code)
		var resp RecordResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(consentID, resp.ID)
		s.True(resp.Active)
		s.Require().NotNil(resp.SurveyID)
		s.Equal(id.SurveyID(7), *resp.SurveyID)
	})

	s.Run("unknown category never reaches the service", func() {
		router, _ := newTestRouter(s.T())
		w := s.do(router, http.MethodPost, "/me/consents", map[string]any{"category": "telepathy"})
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("storage failure hides details", func() {
		router, mockService := newTestRouter(s.T())
		mockService.EXPECT().Grant(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeStorage, "connection reset"))

		w := s.do(router, http.MethodPost, "/me/consents", map[string]any{"category": "analytics"})

		s.Equal(http.StatusServiceUnavailable, w.Code)
		s.NotContains(w.Body.String(), "connection reset")
	})
}

func (s *ConsentHandlerSuite) TestHandleRevoke() {
	s.Run("global revoke", func() {
		router, mockService := newTestRouter(s.T())
		mockService.EXPECT().Revoke(gomock.Any(), s.respondentID, id.ConsentMarketing, gomock.Nil()).Return(true, nil)

		w := s.do(router, http.MethodDelete, "/me/consents/marketing", nil)

		s.Equal(http.StatusOK, w.Code)
		var resp RevokeResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.True(resp.Revoked)
	})

	s.Run("survey scoped revoke with nothing active", func() {
		router, mockService := newTestRouter(s.T())
		mockService.EXPECT().Revoke(gomock.Any(), s.respondentID, id.ConsentLocation, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.RespondentID, _ id.ConsentCategory, survey id.SurveyRef) (bool, error) {
				s.Require().NotNil(survey)
				s.Equal(id.SurveyID(12), *survey)
				return false, nil
			})

		w := s.do(router, http.MethodDelete, "/me/consents/location?survey_id=12", nil)

		s.Equal(http.StatusOK, w.Code)
		s.Contains(w.Body.String(), `"revoked":false`)
	})

	s.Run("bad survey id", func() {
		router, _ := newTestRouter(s.T())
		w := s.do(router, http.MethodDelete, "/me/consents/location?survey_id=-3", nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *ConsentHandlerSuite) TestHandleList() {
	router, mockService := newTestRouter(s.T())
	revokedAt := s.grantedAt.Add(time.Hour)
	mockService.EXPECT().List(gomock.Any(), s.respondentID).Return([]*models.Record{
		{ID: id.NewConsentID(), Category: id.ConsentAnalytics, Granted: true, GrantedAt: s.grantedAt, RevokedAt: &revokedAt},
		{ID: id.NewConsentID(), Category: id.ConsentAnalytics, Granted: true, GrantedAt: revokedAt},
	}, nil)

	w := s.do(router, http.MethodGet, "/me/consents", nil)

	s.Equal(http.StatusOK, w.Code)
	var resp ListResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Require().Len(resp.Consents, 2)
	s.False(resp.Consents[0].Active)
	s.True(resp.Consents[1].Active)
}

func (s *ConsentHandlerSuite) TestHandleStatus() {
	router, mockService := newTestRouter(s.T())
	mockService.EXPECT().Status(gomock.Any(), s.respondentID).Return(models.Status{
		Global:  map[id.ConsentCategory]bool{id.ConsentAnalytics: true, id.ConsentLocation: false},
		Surveys: map[id.SurveyID][]id.ConsentCategory{7: {id.ConsentLocation}},
	}, nil)

	w := s.do(router, http.MethodGet, "/me/consents/status", nil)

	s.Equal(http.StatusOK, w.Code)
	var resp models.Status
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.True(resp.Global[id.ConsentAnalytics])
	s.Equal([]id.ConsentCategory{id.ConsentLocation}, resp.Surveys[7])
}

func (s *ConsentHandlerSuite) TestHandleRequirements() {
	s.Run("lists missing categories", func() {
		router, mockService := newTestRouter(s.T())
		mockService.EXPECT().CheckRequirements(gomock.Any(), s.respondentID, id.SurveyID(7)).
			Return(&models.CheckResult{Missing: []id.ConsentCategory{id.ConsentPersonalData}}, nil)

		w := s.do(router, http.MethodGet, "/me/surveys/7/requirements", nil)

		s.Equal(http.StatusOK, w.Code)
		s.JSONEq(`{"satisfied":false,"missing":["personal_data"]}`, w.Body.String())
	})

	s.Run("unknown survey", func() {
		router, mockService := newTestRouter(s.T())
		mockService.EXPECT().CheckRequirements(gomock.Any(), s.respondentID, id.SurveyID(99)).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "survey not found"))

		w := s.do(router, http.MethodGet, "/me/surveys/99/requirements", nil)
		s.Equal(http.StatusNotFound, w.Code)
	})
}

func TestTrimStrings(t *testing.T) {
	version := "  1.0 "
	v := struct {
		Name    string
		Version *string
		Tags    []string
		Count   int
		hidden  string
	}{Name: " a ", Version: &version, Tags: []string{" x", "y "}, Count: 3, hidden: " h "}

	trimStrings(&v)

	assert.Equal(t, "a", v.Name)
	assert.Equal(t, "1.0", *v.Version)
	assert.Equal(t, []string{"x", "y"}, v.Tags)
	assert.Equal(t, " h ", v.hidden)
}
