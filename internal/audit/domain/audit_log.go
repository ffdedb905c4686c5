package domain

import "time"

// AuditLog is one audit trail entry for a tenant or session mutation.
type AuditLog struct {
	ID        string
	TenantID  string
	UserID    string
	Action    string
	Resource  string
	Metadata  string
	CreatedAt time.Time
}
