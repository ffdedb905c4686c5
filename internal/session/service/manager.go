// Package service implements the session lifecycle: start, crash-recoverable
// snapshot backups, restart detection, and idempotent end.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"claude-director/core/internal/audit"
	"claude-director/core/internal/clock"
	"claude-director/core/internal/metrics"
	"claude-director/core/internal/session/domain"
	"claude-director/core/internal/session/repository"
	"claude-director/core/internal/tenant/registry"
)

// Sentinel errors for the session manager. ErrAccessDenied is shared with the
// tenant registry so callers can match either source with errors.Is.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrAccessDenied       = registry.ErrAccessDenied
	ErrStorageUnavailable = registry.ErrStorageUnavailable
)

// TenantValidator answers whether a user may access a tenant. Satisfied by
// *registry.Registry.
type TenantValidator interface {
	ValidateAccess(ctx context.Context, tenantID, userID string) (bool, error)
}

// Manager creates and tracks sessions. A session is ACTIVE from StartSession
// until EndSession; BackupSession persists a snapshot without changing state.
type Manager struct {
	repo      repository.Repository
	validator TenantValidator
	weights   domain.QualityWeights
	clk       clock.Clock
	sink      metrics.Sink
	auditl    audit.AuditLogger
}

// Option configures a Manager.
type Option func(*Manager)

// WithQualityWeights sets the snapshot quality weights. Defaults to equal weights.
func WithQualityWeights(w domain.QualityWeights) Option {
	return func(m *Manager) { m.weights = w }
}

// WithClock sets the time source. Defaults to the real clock.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clk = c }
}

// WithMetrics sets the metrics sink. Defaults to a discard sink.
func WithMetrics(s metrics.Sink) Option {
	return func(m *Manager) { m.sink = s }
}

// WithAuditLogger sets the audit logger. Defaults to discard.
func WithAuditLogger(l audit.AuditLogger) Option {
	return func(m *Manager) { m.auditl = l }
}

// NewManager returns a session Manager backed by repo and gated by validator.
func NewManager(repo repository.Repository, validator TenantValidator, opts ...Option) *Manager {
	m := &Manager{
		repo:      repo,
		validator: validator,
		weights:   domain.DefaultQualityWeights(),
		clk:       clock.Real{},
		sink:      metrics.Noop{},
		auditl:    audit.Nop{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartSession creates a new ACTIVE session for (tenant, user). Returns
// ErrAccessDenied when the tenant registry rejects the user; nothing is
// persisted in that case.
func (m *Manager) StartSession(ctx context.Context, tenantID, userID string) (*domain.Session, error) {
	ok, err := m.validator.ValidateAccess(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: user %s on tenant %s", ErrAccessDenied, userID, tenantID)
	}

	s := &domain.Session{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		UserID:    userID,
		StartedAt: m.clk.Now(),
		Snapshot:  map[string]any{},
	}
	if err := m.repo.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	m.sink.SessionStarted(ctx)
	m.auditl.LogEvent(ctx, tenantID, userID, "session.start", "session", s.ID)
	return s, nil
}

// GetSession returns the session for id, or nil if not found.
func (m *Manager) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	s, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return s, nil
}

// BackupSession persists snapshot for the session and returns its quality
// score. Returns ErrSessionNotFound when the session is absent or already
// ended.
func (m *Manager) BackupSession(ctx context.Context, id string, snapshot map[string]any) (float64, error) {
	s, err := m.GetSession(ctx, id)
	if err != nil {
		return 0, err
	}
	if s == nil || s.Ended() {
		return 0, ErrSessionNotFound
	}

	quality := m.weights.Score(snapshot)
	if err := m.repo.UpdateBackup(ctx, id, snapshot, quality, m.clk.Now()); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return quality, nil
}

// DetectRestart returns the most recently backed-up active session when its
// backup is younger than idleThreshold and its quality score is at least
// minQuality; otherwise nil. A heuristic for "was the process just
// restarted", not a hard guarantee.
func (m *Manager) DetectRestart(ctx context.Context, idleThreshold time.Duration, minQuality float64) (*domain.Session, error) {
	s, err := m.repo.LatestBackedUp(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if s == nil || s.LastBackupAt == nil {
		return nil, nil
	}
	if m.clk.Now().Sub(*s.LastBackupAt) >= idleThreshold {
		return nil, nil
	}
	if s.QualityScore < minQuality {
		return nil, nil
	}
	return s, nil
}

// RestoreSnapshot returns the last persisted snapshot for the session.
// Returns ErrSessionNotFound when the session is absent.
func (m *Manager) RestoreSnapshot(ctx context.Context, id string) (map[string]any, error) {
	s, err := m.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s.Snapshot, nil
}

// EndSession moves the session to its terminal state. Idempotent: ending an
// already-ended session is a no-op, not an error. Returns ErrSessionNotFound
// only when the session never existed.
func (m *Manager) EndSession(ctx context.Context, id string) error {
	s, err := m.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if s == nil {
		return ErrSessionNotFound
	}
	if s.Ended() {
		return nil
	}
	if err := m.repo.SetEnded(ctx, id, m.clk.Now()); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	m.sink.SessionEnded(ctx)
	m.auditl.LogEvent(ctx, s.TenantID, s.UserID, "session.end", "session", id)
	return nil
}

// EndIdleSessions ends every active session whose last backup (or start) is
// older than idleThreshold. Individual failures are logged and skipped so one
// bad session cannot halt the sweep. Returns how many sessions were ended.
func (m *Manager) EndIdleSessions(ctx context.Context, idleThreshold time.Duration) (int, error) {
	cutoff := m.clk.Now().Add(-idleThreshold)
	idle, err := m.repo.ListIdleActive(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	ended := 0
	for _, s := range idle {
		if err := m.repo.SetEnded(ctx, s.ID, m.clk.Now()); err != nil {
			log.Printf("session: end idle session %s: %v", s.ID, err)
			continue
		}
		m.sink.SessionEnded(ctx)
		m.auditl.LogEvent(ctx, s.TenantID, s.UserID, "session.end_idle", "session", s.ID)
		ended++
	}
	return ended, nil
}
