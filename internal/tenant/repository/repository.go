package repository

import (
	"context"
	"time"

	"claude-director/core/internal/tenant/domain"
)

// Repository defines persistence for tenant profiles.
type Repository interface {
	GetByID(ctx context.Context, tenantID string) (*domain.Profile, error)
	Create(ctx context.Context, p *domain.Profile) error
	Update(ctx context.Context, p *domain.Profile) error
	TouchLastAccessed(ctx context.Context, tenantID string, at time.Time) error
	Count(ctx context.Context) (int, error)
}
