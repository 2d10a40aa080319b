package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"pollster/internal/consent/models"
	"pollster/internal/platform/postgres"
	id "pollster/pkg/domain"
	"pollster/pkg/platform/sentinel"
)

// PostgresStore persists consent records in PostgreSQL. The partial unique
// index ux_consent_records_active_key guards one active record per key.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const consentColumns = `id, respondent_id, survey_id, category, granted, granted_at, revoked_at,
	version, details, source, ip_address, user_agent`

func (s *PostgresStore) Insert(ctx context.Context, r *models.Record) error {
	var details any
	if len(r.Details) > 0 {
		raw, err := json.Marshal(r.Details)
		if err != nil {
			return fmt.Errorf("encode consent details: %w", err)
		}
		details = string(raw)
	}
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO consent_records (`+consentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, r.ID, r.RespondentID, surveyArg(r.SurveyID), string(r.Category), r.Granted, r.GrantedAt, nullTime(r.RevokedAt),
		r.Version, details, r.Source, nullString(r.IPAddress), nullString(r.UserAgent))
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert consent: %w", err)
	}
	return nil
}

// FindActive locks and returns the active record for the key.
func (s *PostgresStore) FindActive(ctx context.Context, respondentID id.RespondentID, category id.ConsentCategory, survey id.SurveyRef) (*models.Record, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+consentColumns+`
		FROM consent_records
		WHERE respondent_id = $1 AND category = $2 AND survey_id IS NOT DISTINCT FROM $3::bigint
		  AND granted AND revoked_at IS NULL
		FOR UPDATE
	`, respondentID, string(category), surveyArg(survey))
	return scanConsent(row)
}

func (s *PostgresStore) Revoke(ctx context.Context, respondentID id.RespondentID, consentID id.ConsentID, now time.Time) error {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE consent_records SET revoked_at = $3
		WHERE id = $1 AND respondent_id = $2 AND granted AND revoked_at IS NULL
	`, consentID, respondentID, now)
	if err != nil {
		return fmt.Errorf("revoke consent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RevokeAllActive(ctx context.Context, respondentID id.RespondentID, now time.Time) (int, error) {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE consent_records SET revoked_at = $2
		WHERE respondent_id = $1 AND granted AND revoked_at IS NULL
	`, respondentID, now)
	if err != nil {
		return 0, fmt.Errorf("revoke all consents: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) ListByRespondent(ctx context.Context, respondentID id.RespondentID) ([]*models.Record, error) {
	return s.ListByRespondents(ctx, []id.RespondentID{respondentID})
}

func (s *PostgresStore) ListByRespondents(ctx context.Context, respondentIDs []id.RespondentID) ([]*models.Record, error) {
	if len(respondentIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(respondentIDs))
	for i, rid := range respondentIDs {
		ids[i] = rid.String()
	}
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT `+consentColumns+`
		FROM consent_records
		WHERE respondent_id = ANY($1::uuid[])
		ORDER BY granted_at, id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	return scanConsents(rows)
}

func (s *PostgresStore) ListActive(ctx context.Context, respondentID id.RespondentID) ([]*models.Record, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT `+consentColumns+`
		FROM consent_records
		WHERE respondent_id = $1 AND granted AND revoked_at IS NULL
		ORDER BY granted_at, id
	`, respondentID)
	if err != nil {
		return nil, fmt.Errorf("list active consents: %w", err)
	}
	return scanConsents(rows)
}

// ReassignRespondent moves every record of from onto to. Colliding active
// keys keep the most recent grant; ties keep the target's record.
func (s *PostgresStore) ReassignRespondent(ctx context.Context, from, to id.RespondentID, now time.Time) (int, error) {
	conn := postgres.Conn(ctx, s.db)
	_, err := conn.ExecContext(ctx, `
		UPDATE consent_records AS loser SET revoked_at = $3
		FROM consent_records AS winner
		WHERE loser.granted AND loser.revoked_at IS NULL
		  AND winner.granted AND winner.revoked_at IS NULL
		  AND loser.category = winner.category
		  AND loser.survey_id IS NOT DISTINCT FROM winner.survey_id
		  AND (
		    (loser.respondent_id = $1 AND winner.respondent_id = $2 AND loser.granted_at <= winner.granted_at)
		    OR (loser.respondent_id = $2 AND winner.respondent_id = $1 AND loser.granted_at < winner.granted_at)
		  )
	`, from, to, now)
	if err != nil {
		return 0, fmt.Errorf("resolve consent collisions: %w", err)
	}
	res, err := conn.ExecContext(ctx, `UPDATE consent_records SET respondent_id = $2 WHERE respondent_id = $1`, from, to)
	if err != nil {
		return 0, fmt.Errorf("reassign consents: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsent(row rowScanner) (*models.Record, error) {
	var (
		r             models.Record
		survey        sql.Null[int64]
		category      string
		revokedAt     sql.NullTime
		details       []byte
		ip, userAgent sql.NullString
	)
	err := row.Scan(&r.ID, &r.RespondentID, &survey, &category, &r.Granted, &r.GrantedAt, &revokedAt,
		&r.Version, &details, &r.Source, &ip, &userAgent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan consent: %w", err)
	}
	r.Category = id.ConsentCategory(category)
	if survey.Valid {
		r.SurveyID = id.Survey(id.SurveyID(survey.V))
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		r.RevokedAt = &t
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &r.Details); err != nil {
			return nil, fmt.Errorf("decode consent details: %w", err)
		}
	}
	r.IPAddress = ip.String
	r.UserAgent = userAgent.String
	return &r, nil
}

func scanConsents(rows *sql.Rows) ([]*models.Record, error) {
	defer rows.Close()
	var out []*models.Record
	for rows.Next() {
		r, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return out, nil
}

func surveyArg(ref id.SurveyRef) any {
	if ref == nil {
		return nil
	}
	return int64(*ref)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
