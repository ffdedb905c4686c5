// Package engine evaluates tenant access policies. The default engine runs
// Rego through OPA; tenants without a custom policy never reach it.
package engine

import (
	"context"

	"claude-director/core/internal/tenant/domain"
)

// Evaluator decides whether a user may access a tenant under the tenant's
// custom access policy.
type Evaluator interface {
	// EvaluateAccess evaluates the tenant's access policy for userID.
	// Implementations must fall back to the built-in membership rule when the
	// policy cannot be compiled or evaluated, never failing closed on a
	// malformed policy alone.
	EvaluateAccess(ctx context.Context, profile *domain.Profile, userID string) (bool, error)
}
