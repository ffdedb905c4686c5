package repository

import (
	"context"
	"time"

	"claude-director/core/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	UpdateBackup(ctx context.Context, id string, snapshot map[string]any, quality float64, at time.Time) error
	SetEnded(ctx context.Context, id string, at time.Time) error
	// LatestBackedUp returns the not-yet-ended session with the most recent
	// backup, or nil when none exists.
	LatestBackedUp(ctx context.Context) (*domain.Session, error)
	// ListIdleActive returns active sessions whose last backup (or start, if
	// never backed up) is older than cutoff.
	ListIdleActive(ctx context.Context, cutoff time.Time) ([]*domain.Session, error)
	Count(ctx context.Context) (int, error)
}
