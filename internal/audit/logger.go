// Package audit records best-effort audit events for tenant and session
// mutations. Failures are logged, never surfaced to the caller.
package audit

import (
	"context"
	"log"

	"github.com/google/uuid"

	"claude-director/core/internal/audit/domain"
	auditrepo "claude-director/core/internal/audit/repository"
	"claude-director/core/internal/clock"
)

// SentinelTenantID is the tenant_id used for audit events that have no tenant.
const SentinelTenantID = "_system"

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, tenantID, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository.
type Logger struct {
	repo auditrepo.Repository
	clk  clock.Clock
}

// NewLogger returns an AuditLogger that persists to repo. clk may be nil;
// then the real clock is used.
func NewLogger(repo auditrepo.Repository, clk clock.Clock) *Logger {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Logger{repo: repo, clk: clk}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, tenantID, userID, action, resource, metadata string) {
	if l.repo == nil {
		return
	}
	if tenantID == "" {
		tenantID = SentinelTenantID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		Metadata:  metadata,
		CreatedAt: l.clk.Now(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}

// Nop is an AuditLogger that discards events.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, string, string) {}
