package httptransport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	answersservice "pollster/internal/answers/service"
	answersstore "pollster/internal/answers/store"
	compliancehandler "pollster/internal/compliance/handler"
	compliancemodels "pollster/internal/compliance/models"
	complianceservice "pollster/internal/compliance/service"
	consenthandler "pollster/internal/consent/handler"
	consentmodels "pollster/internal/consent/models"
	consentservice "pollster/internal/consent/service"
	consentstore "pollster/internal/consent/store"
	eventservice "pollster/internal/events/service"
	eventstore "pollster/internal/events/store"
	jwttoken "pollster/internal/jwt_token"
	participationhandler "pollster/internal/participation/handler"
	participationservice "pollster/internal/participation/service"
	participationstore "pollster/internal/participation/store"
	respondenthandler "pollster/internal/respondent/handler"
	respondentservice "pollster/internal/respondent/service"
	respondentstore "pollster/internal/respondent/store"
	statshandler "pollster/internal/stats/handler"
	statsservice "pollster/internal/stats/service"
	statsstore "pollster/internal/stats/store"
	surveymodels "pollster/internal/survey/models"
	surveystore "pollster/internal/survey/store"
	id "pollster/pkg/domain"
	"pollster/pkg/platform/middleware/admin"
	"pollster/pkg/platform/middleware/metadata"
	txcontext "pollster/pkg/platform/tx"
	"pollster/pkg/testutil"
)

const (
	testAdminToken = "admin-secret"
	testUserAgent  = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
)

var testTokens = jwttoken.New("test-signing-key", "pollster", "pollster")

// client is one browser talking to the router: it keeps the session cookie
// it was issued and optionally signs requests in.
type client struct {
	t       *testing.T
	router  http.Handler
	session string
	bearer  string
}

func newClient(t *testing.T, router http.Handler) *client {
	return &client{t: t, router: router}
}

func (c *client) signIn(userID id.UserID) {
	token, err := testTokens.Issue(userID, time.Hour)
	require.NoError(c.t, err)
	c.bearer = token
}

func (c *client) signOut() {
	c.bearer = ""
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(c.t, method, path, body)
	req.Header.Set("User-Agent", testUserAgent)
	if c.session != "" {
		req = testutil.WithSessionCookie(req, c.session)
	}
	if c.bearer != "" {
		req = testutil.WithBearer(req, c.bearer)
	}
	rr := testutil.DoRequest(c.router, req)
	if minted := testutil.SessionCookie(rr); minted != "" {
		c.session = minted
	}
	return rr
}

func (c *client) me() *respondenthandler.RespondentResponse {
	rr := c.do(http.MethodGet, "/me", nil)
	testutil.AssertStatus(c.t, rr, http.StatusOK)
	return testutil.UnmarshalResponse[respondenthandler.RespondentResponse](c.t, rr)
}

// newTestRouter wires the whole visitor stack on the in-memory backend.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	surveys := surveystore.NewInMemory()
	require.NoError(t, surveys.Upsert(context.Background(), &surveymodels.Survey{
		ID:             1,
		Title:          "Commute habits",
		IsActive:       true,
		TotalQuestions: 4,
		Requirements:   []surveymodels.Requirement{{Flag: surveymodels.FlagEmail, Mandatory: true}},
	}))

	tx := txcontext.NewMemory()
	respondentStore := respondentstore.NewInMemory()
	consentStore := consentstore.NewInMemory()
	participationStore := participationstore.NewInMemory()
	answerStore := answersstore.NewInMemory()
	eventLog := eventservice.New(eventstore.NewInMemory(), eventservice.WithLogger(logger))
	resolver := respondentservice.NewResolver(respondentStore)

	consents := consentservice.New(consentStore, tx, resolver, surveys, eventLog, consentservice.WithLogger(logger))
	participations := participationservice.New(participationStore, tx, resolver, eventLog,
		participationservice.WithCatalog(surveys),
		participationservice.WithLogger(logger),
	)
	answers := answersservice.New(answerStore, tx, resolver, consents, answersservice.WithLogger(logger))
	respondents := respondentservice.New(respondentStore, tx, eventLog,
		respondentservice.WithConsentGate(consents),
		respondentservice.WithDependents(consentStore, participationStore, answerStore),
		respondentservice.WithLogger(logger),
	)
	compliance := complianceservice.New(respondentStore, consentStore, participationStore, eventLog, tx,
		complianceservice.WithAnswers(answerStore),
		complianceservice.WithLogger(logger),
	)
	stats := statsservice.New(statsstore.NewInMemory(), statsservice.WithLogger(logger))

	return NewRouter(Config{
		AdminToken: testAdminToken,
		Tokens:     testTokens,
	}, Handlers{
		Respondents:    respondenthandler.New(respondents, eventLog, logger),
		Consents:       consenthandler.New(consents, logger),
		Participations: participationhandler.New(participations, answers, logger),
		Compliance:     compliancehandler.New(compliance, logger),
		Stats:          statshandler.New(stats, logger),
	}, logger)
}

func TestVisitorJourney(t *testing.T) {
	router := newTestRouter(t)

	testutil.Given(t, "a first-time visitor", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/me", nil))
		testutil.AssertStatus(t, rr, http.StatusOK)
		session := testutil.SessionCookie(rr)
		require.NotEmpty(t, session)
		me := testutil.UnmarshalResponse[respondenthandler.RespondentResponse](t, rr)
		assert.True(t, me.IsAnonymous)

		do := func(method, path string, body any) *httptest.ResponseRecorder {
			return testutil.DoRequest(router, testutil.WithSessionCookie(testutil.NewJSONRequest(t, method, path, body), session))
		}

		testutil.When(t, "the visitor comes back with the cookie", func(t *testing.T) {
			rr := do(http.MethodGet, "/me", nil)
			testutil.Then(t, "the same respondent is resolved", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
				assert.Empty(t, testutil.SessionCookie(rr))
				again := testutil.UnmarshalResponse[respondenthandler.RespondentResponse](t, rr)
				assert.Equal(t, me.ID, again.ID)
			})
		})

		testutil.When(t, "answers arrive before consent", func(t *testing.T) {
			rr := do(http.MethodPost, "/me/surveys/1/answers", map[string]any{"answers": map[string]any{"email": "a@example.com"}})
			testutil.Then(t, "they are refused with the missing category", func(t *testing.T) {
				errResp := testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "compliance_denied")
				assert.Equal(t, []string{"personal_data"}, errResp.Missing)
			})
		})

		testutil.When(t, "the visitor consents for the survey and answers", func(t *testing.T) {
			grant := do(http.MethodPost, "/me/consents", map[string]any{"category": "personal_data", "survey_id": 1, "version": "1.0"})
			testutil.AssertStatus(t, grant, http.StatusCreated)

			check := do(http.MethodGet, "/me/surveys/1/requirements", nil)
			testutil.AssertStatus(t, check, http.StatusOK)
			assert.True(t, testutil.UnmarshalResponse[consentmodels.CheckResult](t, check).Satisfied)

			testutil.AssertStatus(t, do(http.MethodPost, "/me/surveys/1/start", nil), http.StatusOK)
			submit := do(http.MethodPost, "/me/surveys/1/answers", map[string]any{"answers": map[string]any{"email": "a@example.com"}})

			testutil.Then(t, "the answers are stored", func(t *testing.T) {
				testutil.AssertStatus(t, submit, http.StatusCreated)
				assert.JSONEq(t, `{"survey_id":1,"saved":1}`, submit.Body.String())
			})
		})

		testutil.When(t, "the visitor exports their data", func(t *testing.T) {
			rr := do(http.MethodGet, "/me/export", nil)
			testutil.Then(t, "the bundle holds everything recorded so far", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
				bundle := testutil.UnmarshalResponse[compliancemodels.Bundle](t, rr)
				require.NotNil(t, bundle.Respondent)
				assert.Equal(t, me.ID, bundle.Respondent.ID)
				assert.Len(t, bundle.Consents, 1)
				assert.Len(t, bundle.Participations, 1)
				assert.Len(t, bundle.Answers, 1)
				assert.NotEmpty(t, bundle.Events)
			})
		})

		testutil.When(t, "the visitor asks to be forgotten", func(t *testing.T) {
			rr := do(http.MethodDelete, "/me", nil)
			testutil.Then(t, "the session cookie is cleared", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
				var cleared bool
				for _, c := range rr.Result().Cookies() {
					if c.Name == metadata.SessionCookie && c.MaxAge < 0 {
						cleared = true
					}
				}
				assert.True(t, cleared)
			})
		})
	})
}

func TestFingerprintMatchDoesNotGrantDataAccess(t *testing.T) {
	router := newTestRouter(t)

	testutil.Given(t, "a visitor who saved a profile", func(t *testing.T) {
		alice := newClient(t, router)
		owner := alice.me()
		testutil.AssertStatus(t, alice.do(http.MethodPost, "/me/consents", map[string]any{"category": "personal_data", "version": "1.0"}), http.StatusCreated)
		testutil.AssertStatus(t, alice.do(http.MethodPut, "/me/profile", map[string]any{"name": "Alice", "email": "alice@example.com"}), http.StatusOK)

		testutil.When(t, "another browser with the same signals and no cookie asks for an export", func(t *testing.T) {
			stranger := newClient(t, router)
			rr := stranger.do(http.MethodGet, "/me/export", nil)

			testutil.Then(t, "the export is refused without leaking the profile", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
				assert.NotContains(t, rr.Body.String(), "alice@example.com")
			})

			testutil.Then(t, "the matched respondent is shown without personal data", func(t *testing.T) {
				seen := stranger.me()
				assert.Equal(t, owner.ID, seen.ID)
				assert.False(t, seen.Verified)
				assert.Empty(t, seen.AnonymousName)
				assert.Empty(t, seen.AnonymousEmail)
			})

			testutil.Then(t, "erasure, profile and consent changes are refused", func(t *testing.T) {
				testutil.AssertStatus(t, stranger.do(http.MethodDelete, "/me", nil), http.StatusForbidden)
				testutil.AssertStatus(t, stranger.do(http.MethodPut, "/me/profile", map[string]any{"name": "Mallory"}), http.StatusForbidden)
				testutil.AssertStatus(t, stranger.do(http.MethodPut, "/me/location", map[string]any{"country": "PT"}), http.StatusForbidden)
				testutil.AssertStatus(t, stranger.do(http.MethodPost, "/me/consents", map[string]any{"category": "marketing", "version": "1.0"}), http.StatusForbidden)
				testutil.AssertStatus(t, stranger.do(http.MethodDelete, "/me/consents/personal_data", nil), http.StatusForbidden)
			})
		})

		testutil.When(t, "the original visitor returns with their cookie", func(t *testing.T) {
			rr := alice.do(http.MethodGet, "/me/export", nil)
			testutil.Then(t, "their export still works", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
				bundle := testutil.UnmarshalResponse[compliancemodels.Bundle](t, rr)
				require.NotNil(t, bundle.Respondent)
				assert.Equal(t, "alice@example.com", bundle.Respondent.AnonymousEmail)
			})
		})
	})
}

func TestSharedBrowserAcrossUsers(t *testing.T) {
	router := newTestRouter(t)

	testutil.Given(t, "a browser whose session was linked to one user", func(t *testing.T) {
		browser := newClient(t, router)
		browser.me()
		userX := id.UserID(id.NewRespondentID())
		userY := id.UserID(id.NewRespondentID())
		browser.signIn(userX)
		first := browser.me()
		require.True(t, first.Authenticated)

		testutil.When(t, "a second user signs in on the same browser", func(t *testing.T) {
			browser.signIn(userY)
			rr := browser.do(http.MethodGet, "/me", nil)

			testutil.Then(t, "they get their own respondent", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
				second := testutil.UnmarshalResponse[respondenthandler.RespondentResponse](t, rr)
				assert.NotEqual(t, first.ID, second.ID)
				assert.True(t, second.Authenticated)
				assert.True(t, second.Verified)

				export := browser.do(http.MethodGet, "/me/export", nil)
				testutil.AssertStatus(t, export, http.StatusOK)
				bundle := testutil.UnmarshalResponse[compliancemodels.Bundle](t, export)
				require.NotNil(t, bundle.Respondent)
				assert.Equal(t, second.ID, bundle.Respondent.ID)
			})
		})

		testutil.When(t, "the browser is used signed out", func(t *testing.T) {
			browser.signOut()
			rr := browser.do(http.MethodGet, "/me/export", nil)
			testutil.Then(t, "the linked account's data needs a sign-in", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
			})
		})

		testutil.When(t, "the first user signs back in", func(t *testing.T) {
			browser.signIn(userX)
			testutil.Then(t, "their original respondent is resolved", func(t *testing.T) {
				assert.Equal(t, first.ID, browser.me().ID)
			})
		})
	})
}

func TestAdminRoutes(t *testing.T) {
	router := newTestRouter(t)

	testutil.Given(t, "the admin surface", func(t *testing.T) {
		testutil.When(t, "no admin token is sent", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/admin/stats", nil))
			testutil.Then(t, "the request is unauthorized", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusUnauthorized)
			})
		})

		testutil.When(t, "the admin token is sent", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodGet, "/admin/stats", nil)
			req.Header.Set(admin.TokenHeader, testAdminToken)
			rr := testutil.DoRequest(router, req)
			testutil.Then(t, "the snapshot is served without minting a session", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
				assert.Empty(t, testutil.SessionCookie(rr))
			})
		})
	})
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/healthz", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/readyz", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
}
