package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"pollster/internal/events/models"
	"pollster/internal/platform/postgres"
	id "pollster/pkg/domain"
	"pollster/pkg/platform/sentinel"
)

// PostgresStore persists events and writes an outbox row in the same
// transaction (transactional outbox). The outbox worker relays rows to the stream.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event *models.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	envelope, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	conn := postgres.Conn(ctx, s.db)
	_, err = conn.ExecContext(ctx, `
		INSERT INTO respondent_events (
			id, respondent_id, event_type, payload, source,
			ip_address, user_agent, session_token, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9)
	`,
		event.ID, event.RespondentID, string(event.Type), payload, event.Source,
		event.IPAddress, event.UserAgent, event.SessionToken, event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), "respondent", event.RespondentID.String(), string(event.Type), envelope, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

const eventColumns = `
	id, respondent_id, event_type, payload, source,
	COALESCE(ip_address, ''), COALESCE(user_agent, ''), COALESCE(session_token, ''), occurred_at
`

func (s *PostgresStore) ListByRespondents(ctx context.Context, ids []id.RespondentID) ([]*models.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM respondent_events
		WHERE respondent_id = ANY($1::uuid[])
		ORDER BY occurred_at, seq
	`, pq.Array(idStrings(ids)))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) Timeline(ctx context.Context, respondentID id.RespondentID, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM respondent_events
		WHERE respondent_id = $1
		ORDER BY occurred_at DESC, seq DESC
		LIMIT $2
	`, respondentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) ReassignRespondent(ctx context.Context, from, to id.RespondentID) (int, error) {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx,
		`UPDATE respondent_events SET respondent_id = $2 WHERE respondent_id = $1`, from, to)
	if err != nil {
		return 0, fmt.Errorf("reassign events: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx,
		`DELETE FROM respondent_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}

// ScrubRespondents nulls the request metadata of the respondents' events and
// removes the same fields from their outbox envelopes, relayed or not.
func (s *PostgresStore) ScrubRespondents(ctx context.Context, ids []id.RespondentID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	conn := postgres.Conn(ctx, s.db)
	keys := pq.Array(idStrings(ids))
	res, err := conn.ExecContext(ctx, `
		UPDATE respondent_events
		SET ip_address = NULL, user_agent = NULL, session_token = NULL
		WHERE respondent_id = ANY($1::uuid[])
		  AND (ip_address IS NOT NULL OR user_agent IS NOT NULL OR session_token IS NOT NULL)
	`, keys)
	if err != nil {
		return 0, fmt.Errorf("scrub events: %w", err)
	}
	n, _ := res.RowsAffected()

	_, err = conn.ExecContext(ctx, `
		UPDATE outbox
		SET payload = payload - '{ip_address,user_agent,session_token}'::text[]
		WHERE aggregate_type = 'respondent' AND aggregate_id = ANY($1::text[])
	`, keys)
	if err != nil {
		return 0, fmt.Errorf("scrub outbox: %w", err)
	}
	return int(n), nil
}

func scanEvents(rows *sql.Rows) ([]*models.Event, error) {
	var out []*models.Event
	for rows.Next() {
		var (
			e       models.Event
			evtType string
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.RespondentID, &evtType, &payload, &e.Source,
			&e.IPAddress, &e.UserAgent, &e.SessionToken, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = models.Type(evtType)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("decode event payload: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func idStrings(ids []id.RespondentID) []string {
	out := make([]string, len(ids))
	for i, rid := range ids {
		out[i] = rid.String()
	}
	return out
}

// -----------------------------------------------------------------------------
// Outbox
// -----------------------------------------------------------------------------

// ClaimUnpublished leases up to limit pending rows to claimToken until claimUntil.
// SKIP LOCKED lets several workers drain the outbox concurrently.
func (s *PostgresStore) ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]models.OutboxRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE outbox SET claim_token = $1, claim_expires_at = $2
		WHERE id IN (
			SELECT id FROM outbox
			WHERE published_at IS NULL
			  AND dead_lettered_at IS NULL
			  AND (claim_expires_at IS NULL OR claim_expires_at < now())
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_type, aggregate_id, payload, retry_count, created_at
	`, claimToken, claimUntil, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	defer rows.Close()

	var out []models.OutboxRecord
	for rows.Next() {
		var (
			rec       models.OutboxRecord
			eventType string
		)
		if err := rows.Scan(&rec.OutboxID, &eventType, &rec.Key, &rec.Payload, &rec.RetryCount, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		rec.EventType = models.Type(eventType)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// PruneOutboxBefore deletes published and dead-lettered rows created before
// cutoff.
func (s *PostgresStore) PruneOutboxBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		DELETE FROM outbox
		WHERE created_at < $1
		  AND (published_at IS NOT NULL OR dead_lettered_at IS NOT NULL)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune outbox: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) markClaimed(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update outbox: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) MarkPublished(ctx context.Context, outboxID, claimToken string, now time.Time) error {
	return s.markClaimed(ctx, `
		UPDATE outbox SET published_at = $3, claim_token = NULL, claim_expires_at = NULL
		WHERE id = $1 AND claim_token = $2
	`, outboxID, claimToken, now)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, outboxID, claimToken, reason string, _ time.Time) error {
	return s.markClaimed(ctx, `
		UPDATE outbox SET retry_count = retry_count + 1, last_error = $3, claim_token = NULL, claim_expires_at = NULL
		WHERE id = $1 AND claim_token = $2
	`, outboxID, claimToken, reason)
}

func (s *PostgresStore) MarkDeadLettered(ctx context.Context, outboxID, claimToken, reason string, now time.Time) error {
	return s.markClaimed(ctx, `
		UPDATE outbox SET dead_lettered_at = $3, last_error = $4, claim_token = NULL, claim_expires_at = NULL
		WHERE id = $1 AND claim_token = $2
	`, outboxID, claimToken, now, reason)
}
