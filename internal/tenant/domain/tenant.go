// Package domain defines the tenant profile and its validation rules.
package domain

import (
	"errors"
	"regexp"
	"time"
)

// Profile represents an organization/tenant. TenantID is immutable after creation.
type Profile struct {
	TenantID       string
	Name           string
	Tier           Tier
	IsolationLevel IsolationLevel
	// AdminUsers have unconditional access to the tenant.
	AdminUsers map[string]struct{}
	// AllowedDomains are email-domain suffixes granted access. Empty means
	// only admins pass.
	AllowedDomains map[string]struct{}
	// AccessPolicy is an optional Rego policy consulted for CUSTOM-tier
	// tenants; empty means the built-in membership check applies.
	AccessPolicy   string
	IsActive       bool
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

type Tier string

const (
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
	TierCustom       Tier = "custom"
)

type IsolationLevel string

const (
	IsolationStrict          IsolationLevel = "strict"
	IsolationSharedAnalytics IsolationLevel = "shared_analytics"
	IsolationFederated       IsolationLevel = "federated"
)

// tenantIDPattern restricts tenant identifiers to a storage- and
// namespace-safe character set.
var tenantIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateTenantID reports whether id is a well-formed tenant identifier:
// non-empty, at most 64 characters, lowercase alphanumerics with - and _.
func ValidateTenantID(id string) bool {
	return tenantIDPattern.MatchString(id)
}

// Validate validates the profile for persistence. Returns an error describing
// the first validation failure.
func (p *Profile) Validate() error {
	if !ValidateTenantID(p.TenantID) {
		return errors.New("tenant id must match " + tenantIDPattern.String())
	}
	if p.Name == "" {
		return errors.New("name is required")
	}
	if p.Tier == "" {
		p.Tier = TierStarter
	}
	if p.IsolationLevel == "" {
		p.IsolationLevel = IsolationStrict
	}
	return nil
}

// Clone returns a copy of the profile with its own membership sets, so a
// caller mutating the copy cannot affect shared state.
func (p *Profile) Clone() *Profile {
	c := *p
	c.AdminUsers = cloneSet(p.AdminUsers)
	c.AllowedDomains = cloneSet(p.AllowedDomains)
	return &c
}

func cloneSet(s map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// IsAdmin reports whether userID is in the admin set.
func (p *Profile) IsAdmin(userID string) bool {
	_, ok := p.AdminUsers[userID]
	return ok
}

// AdminList returns the admin users as a slice, for persistence.
func (p *Profile) AdminList() []string {
	out := make([]string, 0, len(p.AdminUsers))
	for u := range p.AdminUsers {
		out = append(out, u)
	}
	return out
}

// DomainList returns the allowed domains as a slice, for persistence.
func (p *Profile) DomainList() []string {
	out := make([]string, 0, len(p.AllowedDomains))
	for d := range p.AllowedDomains {
		out = append(out, d)
	}
	return out
}
