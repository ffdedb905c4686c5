package repository

import (
	"context"

	"claude-director/core/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*domain.AuditLog, error)
}
