// Package registry manages tenant profiles and answers access-control
// questions for the rest of the core.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"claude-director/core/internal/audit"
	"claude-director/core/internal/clock"
	"claude-director/core/internal/policy/engine"
	"claude-director/core/internal/tenant/domain"
	"claude-director/core/internal/tenant/repository"
)

// Sentinel errors for the tenant registry.
var (
	// ErrDuplicateTenant is returned by CreateTenant when the tenant id already exists.
	ErrDuplicateTenant = errors.New("tenant id already exists")
	// ErrInvalidIdentifier is returned when a tenant id fails the format check.
	ErrInvalidIdentifier = errors.New("invalid tenant identifier")
	// ErrTenantNotFound is returned by mutating operations on an unknown tenant.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrAccessDenied is returned when a user is not authorized for a tenant.
	ErrAccessDenied = errors.New("access denied")
	// ErrStorageUnavailable wraps backend failures; the registry never retries.
	ErrStorageUnavailable = errors.New("tenant storage unavailable")
)

// Registry creates and queries tenant profiles. Query operations on an
// unknown tenant return a definitive miss, never an error; authorization
// outcomes are booleans.
type Registry struct {
	repo   repository.Repository
	policy engine.Evaluator
	auditl audit.AuditLogger
	clk    clock.Clock

	// cacheMu guards cache, a read-through copy of recently fetched profiles
	// invalidated on every mutation.
	cacheMu sync.RWMutex
	cache   map[string]*domain.Profile
}

// Option configures a Registry.
type Option func(*Registry)

// WithPolicyEngine sets the evaluator consulted for tenants that carry a
// custom access policy. Without one, custom policies are ignored and the
// built-in membership check applies.
func WithPolicyEngine(e engine.Evaluator) Option {
	return func(r *Registry) { r.policy = e }
}

// WithAuditLogger sets the audit logger. Defaults to discard.
func WithAuditLogger(l audit.AuditLogger) Option {
	return func(r *Registry) { r.auditl = l }
}

// WithClock sets the time source. Defaults to the real clock.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clk = c }
}

// New returns a Registry backed by repo.
func New(repo repository.Repository, opts ...Option) *Registry {
	r := &Registry{
		repo:   repo,
		auditl: audit.Nop{},
		clk:    clock.Real{},
		cache:  make(map[string]*domain.Profile),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateParams holds input for CreateTenant. AdminUser, when set, becomes the
// first admin of the tenant.
type CreateParams struct {
	TenantID       string
	Name           string
	Tier           domain.Tier
	IsolationLevel domain.IsolationLevel
	AdminUser      string
	AllowedDomains []string
	AccessPolicy   string
}

// CreateTenant creates and persists a new tenant profile. Returns
// ErrInvalidIdentifier for a malformed id and ErrDuplicateTenant when the id
// is taken.
func (r *Registry) CreateTenant(ctx context.Context, p CreateParams) (*domain.Profile, error) {
	if !domain.ValidateTenantID(p.TenantID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, p.TenantID)
	}

	existing, err := r.repo.GetByID(ctx, p.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if existing != nil {
		return nil, ErrDuplicateTenant
	}

	now := r.clk.Now()
	profile := &domain.Profile{
		TenantID:       p.TenantID,
		Name:           p.Name,
		Tier:           p.Tier,
		IsolationLevel: p.IsolationLevel,
		AdminUsers:     map[string]struct{}{},
		AllowedDomains: map[string]struct{}{},
		AccessPolicy:   p.AccessPolicy,
		IsActive:       true,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if p.AdminUser != "" {
		profile.AdminUsers[p.AdminUser] = struct{}{}
	}
	for _, d := range p.AllowedDomains {
		profile.AllowedDomains[d] = struct{}{}
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if err := r.repo.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	r.auditl.LogEvent(ctx, p.TenantID, p.AdminUser, "tenant.create", "tenant", p.Name)
	return profile, nil
}

// GetTenant returns the profile for tenantID, or nil if not found. The
// returned profile is the caller's own copy; mutating it does not affect the
// cache.
func (r *Registry) GetTenant(ctx context.Context, tenantID string) (*domain.Profile, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[tenantID]
	r.cacheMu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	profile, err := r.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if profile == nil {
		return nil, nil
	}

	r.cacheMu.Lock()
	r.cache[tenantID] = profile
	r.cacheMu.Unlock()
	return profile.Clone(), nil
}

// DeactivateTenant sets is_active=false. A soft delete: the row and its audit
// trail are preserved. Returns ErrTenantNotFound for an unknown id.
func (r *Registry) DeactivateTenant(ctx context.Context, tenantID, actorID string) error {
	profile, err := r.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if profile == nil {
		return ErrTenantNotFound
	}
	if !profile.IsActive {
		return nil
	}

	updated := *profile
	updated.IsActive = false
	if err := r.repo.Update(ctx, &updated); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	r.invalidate(tenantID)
	r.auditl.LogEvent(ctx, tenantID, actorID, "tenant.deactivate", "tenant", "")
	return nil
}

// AddAdminUser adds newAdmin to the tenant's admin set. The actor must
// already be an admin of the tenant.
func (r *Registry) AddAdminUser(ctx context.Context, tenantID, actorID, newAdmin string) error {
	return r.mutateMembership(ctx, tenantID, actorID, "tenant.add_admin", newAdmin, func(p *domain.Profile) {
		p.AdminUsers[newAdmin] = struct{}{}
	})
}

// AddAllowedDomain adds an email-domain suffix to the tenant's allowlist.
// The actor must be an admin of the tenant.
func (r *Registry) AddAllowedDomain(ctx context.Context, tenantID, actorID, emailDomain string) error {
	return r.mutateMembership(ctx, tenantID, actorID, "tenant.add_domain", emailDomain, func(p *domain.Profile) {
		p.AllowedDomains[emailDomain] = struct{}{}
	})
}

func (r *Registry) mutateMembership(ctx context.Context, tenantID, actorID, action, metadata string, apply func(*domain.Profile)) error {
	ok, err := r.ValidateAdminAccess(ctx, tenantID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccessDenied
	}

	profile, err := r.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if profile == nil {
		return ErrTenantNotFound
	}

	// GetTenant returned a private copy, so it can be mutated in place.
	apply(profile)
	if err := r.repo.Update(ctx, profile); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	r.invalidate(tenantID)
	r.auditl.LogEvent(ctx, tenantID, actorID, action, "tenant", metadata)
	return nil
}

// ValidateAccess reports whether userID may access the tenant: the tenant
// must exist and be active, and the user must be an admin or carry an allowed
// email domain. Admins always pass; for everyone else a tenant with a custom
// access policy is decided by the policy engine instead of the domain
// allowlist. A lookup miss is false, never an error.
func (r *Registry) ValidateAccess(ctx context.Context, tenantID, userID string) (bool, error) {
	profile, err := r.GetTenant(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if profile == nil || !profile.IsActive {
		return false, nil
	}

	allowed := profile.IsAdmin(userID)
	if !allowed {
		if profile.AccessPolicy != "" && r.policy != nil {
			allowed, err = r.policy.EvaluateAccess(ctx, profile, userID)
			if err != nil {
				return false, err
			}
		} else {
			allowed = r.domainAllowed(profile, userID)
		}
	}

	if allowed {
		if err := r.repo.TouchLastAccessed(ctx, tenantID, r.clk.Now()); err != nil {
			log.Printf("registry: touch last accessed for %s: %v", tenantID, err)
		}
	}
	return allowed, nil
}

// ValidateAdminAccess reports whether userID is an admin of an active tenant.
func (r *Registry) ValidateAdminAccess(ctx context.Context, tenantID, userID string) (bool, error) {
	profile, err := r.GetTenant(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if profile == nil || !profile.IsActive {
		return false, nil
	}
	return profile.IsAdmin(userID), nil
}

// TenantCount returns the number of tenants in the backing store.
func (r *Registry) TenantCount(ctx context.Context) (int, error) {
	return r.repo.Count(ctx)
}

func (r *Registry) domainAllowed(profile *domain.Profile, userID string) bool {
	i := strings.LastIndex(userID, "@")
	if i < 0 {
		return false
	}
	_, ok := profile.AllowedDomains[userID[i+1:]]
	return ok
}

func (r *Registry) invalidate(tenantID string) {
	r.cacheMu.Lock()
	delete(r.cache, tenantID)
	r.cacheMu.Unlock()
}
