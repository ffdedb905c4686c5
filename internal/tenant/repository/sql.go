package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"claude-director/core/internal/db"
	"claude-director/core/internal/tenant/domain"
)

// SQLRepository persists tenant profiles through the shared db handle.
// Timestamps are stored as RFC3339 text and membership sets as JSON arrays,
// so the same statements run on SQLite and Postgres.
type SQLRepository struct {
	db *db.DB
}

// NewSQLRepository returns a tenant repository that uses the given db for persistence.
func NewSQLRepository(d *db.DB) *SQLRepository {
	return &SQLRepository{db: d}
}

// GetByID returns the profile for tenantID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *SQLRepository) GetByID(ctx context.Context, tenantID string) (*domain.Profile, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(
		`SELECT tenant_id, name, tier, isolation_level, admin_users, allowed_domains,
		        access_policy, is_active, created_at, last_accessed_at
		 FROM tenants WHERE tenant_id = ?`), tenantID)

	var (
		p                     domain.Profile
		admins, domains       string
		active                int
		createdAt, lastAccess string
		tier, isolation       string
	)
	err := row.Scan(&p.TenantID, &p.Name, &tier, &isolation, &admins, &domains,
		&p.AccessPolicy, &active, &createdAt, &lastAccess)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.Tier = domain.Tier(tier)
	p.IsolationLevel = domain.IsolationLevel(isolation)
	p.IsActive = active != 0
	if p.AdminUsers, err = decodeSet(admins); err != nil {
		return nil, err
	}
	if p.AllowedDomains, err = decodeSet(domains); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if p.LastAccessedAt, err = time.Parse(time.RFC3339Nano, lastAccess); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create persists the profile to the database. The profile must have TenantID set.
func (r *SQLRepository) Create(ctx context.Context, p *domain.Profile) error {
	admins, err := encodeSet(p.AdminUsers)
	if err != nil {
		return err
	}
	domains, err := encodeSet(p.AllowedDomains)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO tenants (tenant_id, name, tier, isolation_level, admin_users,
		                      allowed_domains, access_policy, is_active, created_at, last_accessed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.TenantID, p.Name, string(p.Tier), string(p.IsolationLevel), admins, domains,
		p.AccessPolicy, boolToInt(p.IsActive),
		p.CreatedAt.Format(db.TimeFormat), p.LastAccessedAt.Format(db.TimeFormat))
	return err
}

// Update updates the existing profile record. TenantID is the immutable key.
func (r *SQLRepository) Update(ctx context.Context, p *domain.Profile) error {
	admins, err := encodeSet(p.AdminUsers)
	if err != nil {
		return err
	}
	domains, err := encodeSet(p.AllowedDomains)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE tenants SET name = ?, tier = ?, isolation_level = ?, admin_users = ?,
		        allowed_domains = ?, access_policy = ?, is_active = ?, last_accessed_at = ?
		 WHERE tenant_id = ?`),
		p.Name, string(p.Tier), string(p.IsolationLevel), admins, domains,
		p.AccessPolicy, boolToInt(p.IsActive),
		p.LastAccessedAt.Format(db.TimeFormat), p.TenantID)
	return err
}

// TouchLastAccessed sets the tenant's last-accessed timestamp.
func (r *SQLRepository) TouchLastAccessed(ctx context.Context, tenantID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE tenants SET last_accessed_at = ? WHERE tenant_id = ?`),
		at.Format(db.TimeFormat), tenantID)
	return err
}

// Count returns the number of tenant rows.
func (r *SQLRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&n)
	return n, err
}

func encodeSet(s map[string]struct{}) (string, error) {
	list := make([]string, 0, len(s))
	for k := range s {
		list = append(list, k)
	}
	b, err := json.Marshal(list)
	return string(b), err
}

func decodeSet(raw string) (map[string]struct{}, error) {
	if raw == "" {
		return map[string]struct{}{}, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(list))
	for _, k := range list {
		out[k] = struct{}{}
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
