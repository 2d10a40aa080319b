package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pollster/internal/platform/postgres"
	"pollster/internal/survey/models"
	id "pollster/pkg/domain"
	"pollster/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, surveyID id.SurveyID) (*models.Survey, error) {
	conn := postgres.Conn(ctx, s.db)
	var sv models.Survey
	err := conn.QueryRowContext(ctx, `
		SELECT id, title, is_active, total_questions, updated_at
		FROM surveys WHERE id = $1
	`, int64(surveyID)).Scan(&sv.ID, &sv.Title, &sv.IsActive, &sv.TotalQuestions, &sv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find survey: %w", err)
	}
	reqs, err := s.requirements(ctx, conn, surveyID)
	if err != nil {
		return nil, err
	}
	sv.Requirements = reqs
	return &sv, nil
}

func (s *PostgresStore) requirements(ctx context.Context, conn postgres.Executor, surveyID id.SurveyID) ([]models.Requirement, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT flag, mandatory FROM survey_requirements WHERE survey_id = $1 ORDER BY flag
	`, int64(surveyID))
	if err != nil {
		return nil, fmt.Errorf("list survey requirements: %w", err)
	}
	defer rows.Close()
	var out []models.Requirement
	for rows.Next() {
		var (
			flag string
			r    models.Requirement
		)
		if err := rows.Scan(&flag, &r.Mandatory); err != nil {
			return nil, fmt.Errorf("scan survey requirement: %w", err)
		}
		r.Flag = models.Flag(flag)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Survey, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `SELECT id FROM surveys ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}
	var ids []id.SurveyID
	for rows.Next() {
		var sid int64
		if err := rows.Scan(&sid); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan survey id: %w", err)
		}
		ids = append(ids, id.SurveyID(sid))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate surveys: %w", err)
	}
	out := make([]*models.Survey, 0, len(ids))
	for _, sid := range ids {
		sv, err := s.Get(ctx, sid)
		if err != nil {
			return nil, err
		}
		out = append(out, sv)
	}
	return out, nil
}

// Upsert replaces the survey and its requirement set. Callers seeding many
// surveys should wrap the calls in a transaction.
func (s *PostgresStore) Upsert(ctx context.Context, sv *models.Survey) error {
	conn := postgres.Conn(ctx, s.db)
	_, err := conn.ExecContext(ctx, `
		INSERT INTO surveys (id, title, is_active, total_questions, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			is_active = EXCLUDED.is_active,
			total_questions = EXCLUDED.total_questions,
			updated_at = EXCLUDED.updated_at
	`, int64(sv.ID), sv.Title, sv.IsActive, sv.TotalQuestions, sv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert survey: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM survey_requirements WHERE survey_id = $1`, int64(sv.ID)); err != nil {
		return fmt.Errorf("clear survey requirements: %w", err)
	}
	for _, r := range sv.Requirements {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO survey_requirements (survey_id, flag, mandatory) VALUES ($1, $2, $3)
			ON CONFLICT (survey_id, flag) DO UPDATE SET mandatory = EXCLUDED.mandatory
		`, int64(sv.ID), string(r.Flag), r.Mandatory)
		if err != nil {
			return fmt.Errorf("insert survey requirement: %w", err)
		}
	}
	return nil
}
