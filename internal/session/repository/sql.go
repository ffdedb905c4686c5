package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"claude-director/core/internal/db"
	"claude-director/core/internal/session/domain"
)

// SQLRepository persists sessions through the shared db handle. The snapshot
// is stored as a JSON object and timestamps as RFC3339 text.
type SQLRepository struct {
	db *db.DB
}

// NewSQLRepository returns a session repository that uses the given db for persistence.
func NewSQLRepository(d *db.DB) *SQLRepository {
	return &SQLRepository{db: d}
}

const sessionColumns = `session_id, tenant_id, user_id, started_at, last_backup_at, ended_at, snapshot, quality_score`

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`), id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// Create persists the session to the database. The session must have ID set.
func (r *SQLRepository) Create(ctx context.Context, s *domain.Session) error {
	snapshot, err := json.Marshal(orEmpty(s.Snapshot))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		s.ID, s.TenantID, s.UserID, s.StartedAt.Format(db.TimeFormat),
		timeToNull(s.LastBackupAt), timeToNull(s.EndedAt), string(snapshot), s.QualityScore)
	return err
}

// UpdateBackup persists a new snapshot with its quality score and stamps
// last_backup_at.
func (r *SQLRepository) UpdateBackup(ctx context.Context, id string, snapshot map[string]any, quality float64, at time.Time) error {
	raw, err := json.Marshal(orEmpty(snapshot))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE sessions SET snapshot = ?, quality_score = ?, last_backup_at = ? WHERE session_id = ?`),
		string(raw), quality, at.Format(db.TimeFormat), id)
	return err
}

// SetEnded marks the session as ended. Sessions that already ended keep their
// original ended_at.
func (r *SQLRepository) SetEnded(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE sessions SET ended_at = ? WHERE session_id = ? AND ended_at IS NULL`),
		at.Format(db.TimeFormat), id)
	return err
}

// LatestBackedUp returns the not-yet-ended session with the most recent
// backup, or nil when no backed-up active session exists.
func (r *SQLRepository) LatestBackedUp(ctx context.Context) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE ended_at IS NULL AND last_backup_at IS NOT NULL
		 ORDER BY last_backup_at DESC LIMIT 1`)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListIdleActive returns active sessions whose last backup (or start, if never
// backed up) is older than cutoff.
func (r *SQLRepository) ListIdleActive(ctx context.Context, cutoff time.Time) ([]*domain.Session, error) {
	c := cutoff.Format(db.TimeFormat)
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE ended_at IS NULL
		   AND ((last_backup_at IS NOT NULL AND last_backup_at < ?)
		     OR (last_backup_at IS NULL AND started_at < ?))`), c, c)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Count returns the number of session rows.
func (r *SQLRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*domain.Session, error) {
	var (
		s                  domain.Session
		startedAt, rawSnap string
		backupAt, endedAt  sql.NullString
	)
	if err := row.Scan(&s.ID, &s.TenantID, &s.UserID, &startedAt, &backupAt, &endedAt, &rawSnap, &s.QualityScore); err != nil {
		return nil, err
	}
	var err error
	if s.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, err
	}
	if s.LastBackupAt, err = nullToTime(backupAt); err != nil {
		return nil, err
	}
	if s.EndedAt, err = nullToTime(endedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rawSnap), &s.Snapshot); err != nil {
		return nil, err
	}
	return &s, nil
}

func timeToNull(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(db.TimeFormat), Valid: true}
}

func nullToTime(n sql.NullString) (*time.Time, error) {
	if !n.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, n.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
