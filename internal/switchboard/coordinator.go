// Package switchboard ties the tenant registry, session manager, and context
// store together: it is the single entry point for establishing a validated
// tenant/session context.
package switchboard

import (
	"context"
	"errors"
	"log"
	"time"

	"claude-director/core/internal/clock"
	"claude-director/core/internal/contextstore"
	"claude-director/core/internal/metrics"
	sessiondomain "claude-director/core/internal/session/domain"
	sessionsvc "claude-director/core/internal/session/service"
	"claude-director/core/internal/tenant/registry"
)

// Handle is the result of a successful context switch. It is only returned
// after every step succeeded; callers never see a partially built handle.
type Handle struct {
	TenantID         string
	UserID           string
	SessionID        string
	ContextNamespace string
	CacheNamespace   string
	SwitchTimeMS     float64
}

// ContextNamespace returns the tenant's context namespace. A pure function of
// the tenant id: concurrent switches for the same tenant always agree.
func ContextNamespace(tenantID string) string {
	return "tenant:" + tenantID + ":context"
}

// CacheNamespace returns the tenant's cache namespace. Pure, like ContextNamespace.
func CacheNamespace(tenantID string) string {
	return "tenant:" + tenantID + ":cache"
}

// AccessValidator answers access-control questions. Satisfied by *registry.Registry.
type AccessValidator interface {
	ValidateAccess(ctx context.Context, tenantID, userID string) (bool, error)
}

// SessionManager is the session surface the coordinator needs. Satisfied by
// *service.Manager.
type SessionManager interface {
	StartSession(ctx context.Context, tenantID, userID string) (*sessiondomain.Session, error)
	GetSession(ctx context.Context, id string) (*sessiondomain.Session, error)
}

// Coordinator performs context switches. Validation strictly precedes any
// mutation, so a failed switch leaves no session or context record behind.
type Coordinator struct {
	validator AccessValidator
	sessions  SessionManager
	store     *contextstore.Store
	clk       clock.Clock
	sink      metrics.Sink
	budget    time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the time source. Defaults to the real clock.
func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) { co.clk = c }
}

// WithMetrics sets the metrics sink. Defaults to a discard sink.
func WithMetrics(s metrics.Sink) Option {
	return func(co *Coordinator) { co.sink = s }
}

// WithLatencyBudget sets the switch duration above which a warning is logged.
// Exceeding the budget is never an error. Defaults to 5ms.
func WithLatencyBudget(d time.Duration) Option {
	return func(co *Coordinator) { co.budget = d }
}

// New returns a Coordinator over the given collaborators.
func New(validator AccessValidator, sessions SessionManager, store *contextstore.Store, opts ...Option) *Coordinator {
	co := &Coordinator{
		validator: validator,
		sessions:  sessions,
		store:     store,
		clk:       clock.Real{},
		sink:      metrics.Noop{},
		budget:    5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(co)
	}
	return co
}

// SwitchContext establishes a validated context for (tenant, user). When
// sessionID is empty a new session is started; otherwise the existing session
// must be active and belong to the same tenant and user. Honors ctx
// cancellation between steps: on timeout the switch fails at the step in
// progress and no handle is returned.
func (co *Coordinator) SwitchContext(ctx context.Context, tenantID, userID, sessionID string) (*Handle, error) {
	start := co.clk.Now()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ok, err := co.validator.ValidateAccess(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, registry.ErrAccessDenied
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var session *sessiondomain.Session
	if sessionID != "" {
		session, err = co.sessions.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		// A session id from another tenant or user is treated as not found
		// rather than denied, so its existence is not leaked.
		if session == nil || session.Ended() || session.TenantID != tenantID || session.UserID != userID {
			return nil, sessionsvc.ErrSessionNotFound
		}
	} else {
		session, err = co.sessions.StartSession(ctx, tenantID, userID)
		if err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	contextNS := ContextNamespace(tenantID)
	cacheNS := CacheNamespace(tenantID)
	if err := co.ensureNamespaceRecord(ctx, tenantID, contextNS); err != nil {
		return nil, err
	}

	elapsed := co.clk.Now().Sub(start)
	co.sink.SwitchTime(ctx, elapsed)
	if elapsed > co.budget {
		log.Printf("switchboard: context switch for tenant %s took %s (budget %s)", tenantID, elapsed, co.budget)
	}

	return &Handle{
		TenantID:         tenantID,
		UserID:           userID,
		SessionID:        session.ID,
		ContextNamespace: contextNS,
		CacheNamespace:   cacheNS,
		SwitchTimeMS:     float64(elapsed.Microseconds()) / 1000.0,
	}, nil
}

// ensureNamespaceRecord makes sure the tenant's namespace record exists in
// the context store. Concurrent switches may race on Create; losing the race
// counts as success because the namespace is deterministic.
func (co *Coordinator) ensureNamespaceRecord(ctx context.Context, tenantID, contextNS string) error {
	if rec := co.store.Get(ctx, contextNS); rec != nil {
		return nil
	}
	_, err := co.store.Create(ctx, contextstore.CreateParams{
		Scope:     contextstore.ScopeTenant,
		TenantID:  tenantID,
		ContextID: contextNS,
		Data:      map[string]any{"tenant_id": tenantID},
	})
	if errors.Is(err, contextstore.ErrDuplicateContext) {
		return nil
	}
	return err
}
