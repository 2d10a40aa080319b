//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pollster/internal/events/models"
	"pollster/internal/events/store"
	id "pollster/pkg/domain"
	"pollster/pkg/testutil/containers"
)

type PostgresEventStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *store.PostgresStore
	now   time.Time
}

func TestPostgresEventStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresEventStoreSuite))
}

func (s *PostgresEventStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.pg.DB)
	s.now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
}

func (s *PostgresEventStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "respondent_events", "outbox"))
}

func (s *PostgresEventStoreSuite) append(rid id.RespondentID, at time.Time) {
	event, err := models.NewEvent(rid, models.TypeResumed, models.Payload{"matched_by": "session"}, at)
	s.Require().NoError(err)
	event.Source = "web"
	event.IPAddress = "203.0.113.9"
	event.UserAgent = "Mozilla/5.0"
	event.SessionToken = "tok-" + rid.String()
	s.Require().NoError(s.store.Append(context.Background(), event))
}

func (s *PostgresEventStoreSuite) TestScrubRespondents() {
	ctx := context.Background()
	erased, kept := id.NewRespondentID(), id.NewRespondentID()
	s.append(erased, s.now)
	s.append(erased, s.now.Add(time.Minute))
	s.append(kept, s.now)
	_, err := s.pg.Exec(ctx, `UPDATE outbox SET published_at = $1`, s.now)
	s.Require().NoError(err)

	n, err := s.store.ScrubRespondents(ctx, []id.RespondentID{erased})
	s.Require().NoError(err)
	s.Equal(2, n)

	s.Run("events lose request metadata", func() {
		events, err := s.store.ListByRespondents(ctx, []id.RespondentID{erased})
		s.Require().NoError(err)
		s.Require().Len(events, 2)
		for _, e := range events {
			s.Empty(e.IPAddress)
			s.Empty(e.UserAgent)
			s.Empty(e.SessionToken)
			s.Equal("session", e.Payload["matched_by"])
		}
	})

	s.Run("published outbox envelopes lose request metadata", func() {
		var leaked int
		s.Require().NoError(s.pg.DB.QueryRowContext(ctx, `
			SELECT count(*) FROM outbox
			WHERE aggregate_id = $1
			  AND (payload ? 'ip_address' OR payload ? 'user_agent' OR payload ? 'session_token')
		`, erased.String()).Scan(&leaked))
		s.Zero(leaked)
	})

	s.Run("other respondents are untouched", func() {
		events, err := s.store.ListByRespondents(ctx, []id.RespondentID{kept})
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal("203.0.113.9", events[0].IPAddress)

		var ip string
		s.Require().NoError(s.pg.DB.QueryRowContext(ctx,
			`SELECT payload ->> 'ip_address' FROM outbox WHERE aggregate_id = $1`, kept.String()).Scan(&ip))
		s.Equal("203.0.113.9", ip)
	})
}

func (s *PostgresEventStoreSuite) TestPruneOutboxBefore() {
	ctx := context.Background()
	rid := id.NewRespondentID()
	old := s.now.Add(-100 * 24 * time.Hour)
	s.append(rid, old)
	s.append(rid, old.Add(time.Minute))
	s.append(rid, old.Add(2*time.Minute))
	s.append(rid, s.now)

	_, err := s.pg.Exec(ctx, `UPDATE outbox SET published_at = $1 WHERE created_at = $2`, s.now, old)
	s.Require().NoError(err)
	_, err = s.pg.Exec(ctx, `UPDATE outbox SET dead_lettered_at = $1 WHERE created_at = $2`, s.now, old.Add(time.Minute))
	s.Require().NoError(err)
	_, err = s.pg.Exec(ctx, `UPDATE outbox SET published_at = $1 WHERE created_at = $1`, s.now)
	s.Require().NoError(err)

	n, err := s.store.PruneOutboxBefore(ctx, s.now.Add(-90*24*time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	var remaining int
	s.Require().NoError(s.pg.DB.QueryRowContext(ctx, `SELECT count(*) FROM outbox`).Scan(&remaining))
	s.Equal(2, remaining, "pending old rows and recent rows stay")
}
