package repository

import (
	"context"
	"time"

	"claude-director/core/internal/audit/domain"
	"claude-director/core/internal/db"
)

// SQLRepository persists audit logs through the shared db handle.
type SQLRepository struct {
	db *db.DB
}

// NewSQLRepository returns an audit repository that uses the given db for persistence.
func NewSQLRepository(d *db.DB) *SQLRepository {
	return &SQLRepository{db: d}
}

// Create persists one audit log entry.
func (r *SQLRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO audit_logs (id, tenant_id, user_id, action, resource, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		entry.ID, entry.TenantID, entry.UserID, entry.Action, entry.Resource,
		entry.Metadata, entry.CreatedAt.Format(db.TimeFormat))
	return err
}

// ListByTenant returns the most recent entries for the tenant, newest first.
func (r *SQLRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(
		`SELECT id, tenant_id, user_id, action, resource, metadata, created_at
		 FROM audit_logs WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ?`),
		tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var e domain.AuditLog
		var createdAt string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.UserID, &e.Action, &e.Resource, &e.Metadata, &createdAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
