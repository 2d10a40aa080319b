package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"pollster/internal/participation/models"
	"pollster/internal/platform/postgres"
	id "pollster/pkg/domain"
	"pollster/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const participationColumns = `id, respondent_id, survey_id, status, progress_percentage,
	questions_answered, total_questions, started_at, completed_at, last_activity_at,
	time_spent_seconds, completion_source, abandon_reason, abandoned_at_percentage`

// Insert adds a record. The participations_pair constraint turns a concurrent
// start into sentinel.ErrAlreadyUsed.
func (s *PostgresStore) Insert(ctx context.Context, r *models.Record) error {
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO participations (`+participationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, recordArgs(r)...)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert participation: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByPair(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID) (*models.Record, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+participationColumns+`
		FROM participations WHERE respondent_id = $1 AND survey_id = $2
	`, respondentID, int64(surveyID))
	return scanRecord(row)
}

// Execute locks the pair row, validates, mutates and writes it back. Must run
// inside a transaction for the lock to hold.
func (s *PostgresStore) Execute(ctx context.Context, respondentID id.RespondentID, surveyID id.SurveyID, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	conn := postgres.Conn(ctx, s.db)
	row := conn.QueryRowContext(ctx, `
		SELECT `+participationColumns+`
		FROM participations WHERE respondent_id = $1 AND survey_id = $2
		FOR UPDATE
	`, respondentID, int64(surveyID))
	r, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	if err := validate(r); err != nil {
		return nil, err
	}
	mutate(r)
	_, err = conn.ExecContext(ctx, `
		UPDATE participations SET
			status = $2, progress_percentage = $3, questions_answered = $4, total_questions = $5,
			completed_at = $6, last_activity_at = $7, time_spent_seconds = $8,
			completion_source = $9, abandon_reason = $10, abandoned_at_percentage = $11
		WHERE id = $1
	`, r.ID, string(r.Status), r.ProgressPercentage, r.QuestionsAnswered, r.TotalQuestions,
		nullTime(r.CompletedAt), r.LastActivityAt, r.TimeSpentSeconds,
		nullString(r.CompletionSource), nullString(r.AbandonReason), nullFloat(r.AbandonedAtPercentage))
	if err != nil {
		return nil, fmt.Errorf("update participation: %w", err)
	}
	return r, nil
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
		SELECT `+participationColumns+`
		FROM participations WHERE respondent_id = ANY($1::uuid[])
		ORDER BY started_at, survey_id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list participations: %w", err)
	}
	defer rows.Close()
	var out []*models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participations: %w", err)
	}
	return out, nil
}

// ReassignRespondent moves from's records onto to, leaving records for surveys
// to already has on from.
func (s *PostgresStore) ReassignRespondent(ctx context.Context, from, to id.RespondentID) (int, []id.SurveyID, error) {
	conn := postgres.Conn(ctx, s.db)
	res, err := conn.ExecContext(ctx, `
		UPDATE participations AS p SET respondent_id = $2
		WHERE p.respondent_id = $1
		  AND NOT EXISTS (
		    SELECT 1 FROM participations t WHERE t.respondent_id = $2 AND t.survey_id = p.survey_id
		  )
	`, from, to)
	if err != nil {
		return 0, nil, fmt.Errorf("reassign participations: %w", err)
	}
	moved, _ := res.RowsAffected()

	rows, err := conn.QueryContext(ctx, `
		SELECT survey_id FROM participations WHERE respondent_id = $1 ORDER BY survey_id
	`, from)
	if err != nil {
		return 0, nil, fmt.Errorf("list retained participations: %w", err)
	}
	defer rows.Close()
	var retained []id.SurveyID
	for rows.Next() {
		var sid int64
		if err := rows.Scan(&sid); err != nil {
			return 0, nil, fmt.Errorf("scan retained participation: %w", err)
		}
		retained = append(retained, id.SurveyID(sid))
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("iterate retained participations: %w", err)
	}
	return int(moved), retained, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		r              models.Record
		surveyID       int64
		status         string
		completedAt    sql.NullTime
		source, reason sql.NullString
		abandonedAtPct sql.NullFloat64
	)
	err := row.Scan(&r.ID, &r.RespondentID, &surveyID, &status, &r.ProgressPercentage,
		&r.QuestionsAnswered, &r.TotalQuestions, &r.StartedAt, &completedAt, &r.LastActivityAt,
		&r.TimeSpentSeconds, &source, &reason, &abandonedAtPct)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan participation: %w", err)
	}
	r.SurveyID = id.SurveyID(surveyID)
	r.Status = models.Status(status)
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	if abandonedAtPct.Valid {
		p := abandonedAtPct.Float64
		r.AbandonedAtPercentage = &p
	}
	r.CompletionSource = source.String
	r.AbandonReason = reason.String
	return &r, nil
}

func recordArgs(r *models.Record) []any {
	return []any{
		r.ID, r.RespondentID, int64(r.SurveyID), string(r.Status), r.ProgressPercentage,
		r.QuestionsAnswered, r.TotalQuestions, r.StartedAt, nullTime(r.CompletedAt), r.LastActivityAt,
		r.TimeSpentSeconds, nullString(r.CompletionSource), nullString(r.AbandonReason), nullFloat(r.AbandonedAtPercentage),
	}
}
