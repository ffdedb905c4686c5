// Package contextstore implements keyed storage of context records with
// TTL semantics and scope-indexed lookup. Records are evicted lazily on
// read and in bulk by SweepExpired.
package contextstore

import "time"

// Scope is the lifetime/visibility class of a context record.
type Scope string

const (
	ScopeSession      Scope = "session"
	ScopeConversation Scope = "conversation"
	ScopeGlobal       Scope = "global"
	ScopeTenant       Scope = "tenant"
	ScopeAnalytics    Scope = "analytics"
	ScopeNavigation   Scope = "navigation"
)

// Scopes lists all known scopes. Used to build the per-scope shards.
var Scopes = []Scope{ScopeSession, ScopeConversation, ScopeGlobal, ScopeTenant, ScopeAnalytics, ScopeNavigation}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeSession, ScopeConversation, ScopeGlobal, ScopeTenant, ScopeAnalytics, ScopeNavigation:
		return true
	}
	return false
}

// Record is one context entry. TenantID is empty except for tenant-owned
// records; ExpiresAt nil means the record never expires.
type Record struct {
	ContextID      string
	Scope          Scope
	TenantID       string
	Data           map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastAccessedAt time.Time
	ExpiresAt      *time.Time
	AccessCount    int64
}

// Expired reports whether the record's TTL has passed at now.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// clone returns a copy of the record with its own Data map, so callers can
// read it without holding store locks.
func (r *Record) clone() *Record {
	c := *r
	c.Data = make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		c.Data[k] = v
	}
	return &c
}
