package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"pollster/internal/answers/models"
	"pollster/internal/platform/postgres"
	id "pollster/pkg/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, answers ...*models.Answer) error {
	conn := postgres.Conn(ctx, s.db)
	for _, a := range answers {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO survey_answers (id, respondent_id, survey_id, question_key, answer, answered_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, a.ID, a.RespondentID, int64(a.SurveyID), a.QuestionKey, string(a.Value), a.AnsweredAt)
		if err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListByRespondents(ctx context.Context, respondentIDs []id.RespondentID) ([]*models.Answer, error) {
	if len(respondentIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(respondentIDs))
	for i, rid := range respondentIDs {
		ids[i] = rid.String()
	}
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT id, respondent_id, survey_id, question_key, answer, answered_at
		FROM survey_answers WHERE respondent_id = ANY($1::uuid[])
		ORDER BY answered_at, id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()
	var out []*models.Answer
	for rows.Next() {
		var (
			a        models.Answer
			surveyID int64
			value    []byte
		)
		if err := rows.Scan(&a.ID, &a.RespondentID, &surveyID, &a.QuestionKey, &value, &a.AnsweredAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		a.SurveyID = id.SurveyID(surveyID)
		a.Value = value
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ReassignRespondent(ctx context.Context, from, to id.RespondentID) (int, error) {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx,
		`UPDATE survey_answers SET respondent_id = $2 WHERE respondent_id = $1`, from, to)
	if err != nil {
		return 0, fmt.Errorf("reassign answers: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
