package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"pollster/internal/platform/postgres"
	"pollster/internal/respondent/models"
	id "pollster/pkg/domain"
	"pollster/pkg/platform/sentinel"
)

// PostgresStore persists respondents in PostgreSQL. Calls join the
// transaction carried by ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const respondentColumns = `id, user_id, session_token, fingerprint, ip_address, user_agent,
	browser_info, device_info, geo_info, referrer_info, telegram_data, entry_point,
	precise_location, anonymous_name, anonymous_email, is_anonymous, is_active, is_merged,
	merged_into_id, merged_at, first_seen_at, last_activity_at, deleted_at`

// Create inserts the respondent and its session alias. The alias primary key
// is the creation guard: a taken token yields sentinel.ErrAlreadyUsed without
// aborting the surrounding transaction.
func (s *PostgresStore) Create(ctx context.Context, r *models.Respondent) error {
	conn := postgres.Conn(ctx, s.db)
	// the session foreign key is deferred, so the token is claimed first
	if err := s.insertSession(ctx, conn, models.Session{Token: r.SessionToken, RespondentID: r.ID, CreatedAt: r.FirstSeenAt}); err != nil {
		return err
	}
	args, err := respondentArgs(r)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO respondents (`+respondentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`, args...)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert respondent: %w", err)
	}
	return nil
}

func (s *PostgresStore) insertSession(ctx context.Context, conn postgres.Executor, sess models.Session) error {
	res, err := conn.ExecContext(ctx, `
		INSERT INTO respondent_sessions (session_token, respondent_id, adopted_by_fingerprint, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_token) DO NOTHING
	`, sess.Token, sess.RespondentID, sess.Adopted, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, respondentID id.RespondentID) (*models.Respondent, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+respondentColumns+` FROM respondents WHERE id = $1`, respondentID)
	return scanRespondent(row)
}

func (s *PostgresStore) FindSession(ctx context.Context, token string) (*models.Session, error) {
	sess := &models.Session{Token: token}
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT respondent_id, adopted_by_fingerprint, created_at
		FROM respondent_sessions
		WHERE session_token = $1
	`, token).Scan(&sess.RespondentID, &sess.Adopted, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) AddSession(ctx context.Context, sess models.Session) error {
	return s.insertSession(ctx, postgres.Conn(ctx, s.db), sess)
}

func (s *PostgresStore) DropSession(ctx context.Context, token string) error {
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx,
		`DELETE FROM respondent_sessions WHERE session_token = $1`, token)
	if err != nil {
		return fmt.Errorf("drop session: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReassignSessions(ctx context.Context, from, to id.RespondentID) (int, error) {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx,
		`UPDATE respondent_sessions SET respondent_id = $2 WHERE respondent_id = $1`, from, to)
	if err != nil {
		return 0, fmt.Errorf("reassign sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) DeleteSessions(ctx context.Context, respondentID id.RespondentID) (int, error) {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx,
		`DELETE FROM respondent_sessions WHERE respondent_id = $1`, respondentID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) Touch(ctx context.Context, respondentID id.RespondentID, now time.Time) error {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE respondents SET last_activity_at = GREATEST(last_activity_at, $2)
		WHERE id = $1 AND NOT is_merged
	`, respondentID, now)
	if err != nil {
		return fmt.Errorf("touch respondent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.FindByID(ctx, respondentID); err != nil {
			return err
		}
	}
	return nil
}

// Execute locks the row with SELECT ... FOR UPDATE, validates, mutates and
// writes it back. It must run inside a transaction to hold the lock.
func (s *PostgresStore) Execute(ctx context.Context, respondentID id.RespondentID, validate func(*models.Respondent) error, mutate func(*models.Respondent)) (*models.Respondent, error) {
	locked, err := s.LockForUpdate(ctx, respondentID)
	if err != nil {
		return nil, err
	}
	r := locked[respondentID]
	if err := validate(r); err != nil {
		return nil, err
	}
	mutate(r)
	if err := s.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// LockForUpdate row-locks the respondents in id order so concurrent mergers
// cannot deadlock. Any missing id yields sentinel.ErrNotFound.
func (s *PostgresStore) LockForUpdate(ctx context.Context, ids ...id.RespondentID) (map[id.RespondentID]*models.Respondent, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT `+respondentColumns+` FROM respondents
		WHERE id = ANY($1::uuid[])
		ORDER BY id
		FOR UPDATE
	`, pq.Array(idStrings(ids)))
	if err != nil {
		return nil, fmt.Errorf("lock respondents: %w", err)
	}
	found, err := scanRespondents(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[id.RespondentID]*models.Respondent, len(found))
	for _, r := range found {
		out[r.ID] = r
	}
	for _, rid := range ids {
		if _, ok := out[rid]; !ok {
			return nil, sentinel.ErrNotFound
		}
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, r *models.Respondent) error {
	args, err := respondentArgs(r)
	if err != nil {
		return err
	}
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE respondents SET
			user_id = $2, session_token = $3, fingerprint = $4, ip_address = $5, user_agent = $6,
			browser_info = $7, device_info = $8, geo_info = $9, referrer_info = $10, telegram_data = $11,
			entry_point = $12, precise_location = $13, anonymous_name = $14, anonymous_email = $15,
			is_anonymous = $16, is_active = $17, is_merged = $18, merged_into_id = $19, merged_at = $20,
			first_seen_at = $21, last_activity_at = $22, deleted_at = $23
		WHERE id = $1
	`, args...)
	if err != nil {
		return fmt.Errorf("update respondent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RepointMerged(ctx context.Context, from, to id.RespondentID) (int, error) {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx,
		`UPDATE respondents SET merged_into_id = $2 WHERE merged_into_id = $1`, from, to)
	if err != nil {
		return 0, fmt.Errorf("repoint merged respondents: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) FindByFingerprint(ctx context.Context, fp string, limit int) ([]*models.Respondent, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT `+respondentColumns+` FROM respondents
		WHERE fingerprint = $1 AND NOT is_merged AND deleted_at IS NULL
		ORDER BY last_activity_at DESC, id
		LIMIT $2
	`, fp, limit)
	if err != nil {
		return nil, fmt.Errorf("find by fingerprint: %w", err)
	}
	return scanRespondents(rows)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Respondent, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT `+respondentColumns+` FROM respondents
		WHERE user_id = $1
		ORDER BY last_activity_at DESC, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list by user: %w", err)
	}
	return scanRespondents(rows)
}

func (s *PostgresStore) FindAnonymousBySignals(ctx context.Context, fingerprints, ips []string) ([]*models.Respondent, error) {
	if len(fingerprints) == 0 && len(ips) == 0 {
		return nil, nil
	}
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT `+respondentColumns+` FROM respondents
		WHERE is_anonymous AND user_id IS NULL
		  AND is_active AND NOT is_merged AND deleted_at IS NULL
		  AND (fingerprint = ANY($1::text[]) OR ip_address = ANY($2::text[]))
		ORDER BY last_activity_at DESC, id
	`, pq.Array(fingerprints), pq.Array(ips))
	if err != nil {
		return nil, fmt.Errorf("find by signals: %w", err)
	}
	return scanRespondents(rows)
}

func (s *PostgresStore) ListMergedInto(ctx context.Context, root id.RespondentID) ([]*models.Respondent, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT `+respondentColumns+` FROM respondents
		WHERE merged_into_id = $1
		ORDER BY last_activity_at DESC, id
	`, root)
	if err != nil {
		return nil, fmt.Errorf("list merged respondents: %w", err)
	}
	return scanRespondents(rows)
}

func (s *PostgresStore) List(ctx context.Context, page models.Page) ([]*models.Respondent, int, error) {
	conn := postgres.Conn(ctx, s.db)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM respondents`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count respondents: %w", err)
	}
	rows, err := conn.QueryContext(ctx, `
		SELECT `+respondentColumns+` FROM respondents
		ORDER BY last_activity_at DESC, id
		LIMIT $1 OFFSET $2
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list respondents: %w", err)
	}
	out, err := scanRespondents(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// -----------------------------------------------------------------------------
// Row mapping
// -----------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRespondent(row rowScanner) (*models.Respondent, error) {
	var (
		r                                            models.Respondent
		userID                                       sql.Null[id.UserID]
		mergedIntoID                                 sql.Null[id.RespondentID]
		fingerprint, ip, anonName, anonEmail         sql.NullString
		browser, device, geo, referrer, tg, location []byte
		mergedAt, deletedAt                          sql.NullTime
		entryPoint                                   string
	)
	err := row.Scan(
		&r.ID, &userID, &r.SessionToken, &fingerprint, &ip, &r.UserAgent,
		&browser, &device, &geo, &referrer, &tg, &entryPoint,
		&location, &anonName, &anonEmail, &r.IsAnonymous, &r.IsActive, &r.IsMerged,
		&mergedIntoID, &mergedAt, &r.FirstSeenAt, &r.LastActivityAt, &deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan respondent: %w", err)
	}

	if userID.Valid {
		u := userID.V
		r.UserID = &u
	}
	if mergedIntoID.Valid {
		m := mergedIntoID.V
		r.MergedIntoID = &m
	}
	if mergedAt.Valid {
		t := mergedAt.Time
		r.MergedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		r.DeletedAt = &t
	}
	r.Fingerprint = fingerprint.String
	r.IPAddress = ip.String
	r.AnonymousName = anonName.String
	r.AnonymousEmail = anonEmail.String
	r.EntryPoint = id.EntryPoint(entryPoint)

	for _, blob := range []struct {
		raw []byte
		dst *models.Blob
	}{
		{browser, &r.BrowserInfo},
		{device, &r.DeviceInfo},
		{geo, &r.GeoInfo},
		{referrer, &r.ReferrerInfo},
		{tg, &r.TelegramData},
	} {
		if len(blob.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(blob.raw, blob.dst); err != nil {
			return nil, fmt.Errorf("decode respondent blob: %w", err)
		}
	}
	if len(location) > 0 {
		var loc models.Location
		if err := json.Unmarshal(location, &loc); err != nil {
			return nil, fmt.Errorf("decode precise location: %w", err)
		}
		r.PreciseLocation = &loc
	}
	return &r, nil
}

func scanRespondents(rows *sql.Rows) ([]*models.Respondent, error) {
	defer rows.Close()
	var out []*models.Respondent
	for rows.Next() {
		r, err := scanRespondent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate respondents: %w", err)
	}
	return out, nil
}

func respondentArgs(r *models.Respondent) ([]any, error) {
	blobs := make([]any, 0, 6)
	for _, b := range []models.Blob{r.BrowserInfo, r.DeviceInfo, r.GeoInfo, r.ReferrerInfo, r.TelegramData} {
		v, err := jsonArg(b, len(b) == 0)
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, v)
	}
	location, err := jsonArg(r.PreciseLocation, r.PreciseLocation == nil)
	if err != nil {
		return nil, err
	}
	return []any{
		r.ID, nullUserID(r.UserID), r.SessionToken, nullString(r.Fingerprint), nullString(r.IPAddress), r.UserAgent,
		blobs[0], blobs[1], blobs[2], blobs[3], blobs[4], string(r.EntryPoint.OrDefault(id.EntryWeb)),
		location, nullString(r.AnonymousName), nullString(r.AnonymousEmail), r.IsAnonymous, r.IsActive, r.IsMerged,
		nullRespondentID(r.MergedIntoID), nullTime(r.MergedAt), r.FirstSeenAt, r.LastActivityAt, nullTime(r.DeletedAt),
	}, nil
}

func jsonArg(v any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	return string(raw), nil
}

func nullUserID(v *id.UserID) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullRespondentID(v *id.RespondentID) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func idStrings(ids []id.RespondentID) []string {
	out := make([]string, len(ids))
	for i, rid := range ids {
		out[i] = rid.String()
	}
	return out
}
