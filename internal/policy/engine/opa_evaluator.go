package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"claude-director/core/internal/tenant/domain"
)

const accessQuery = "data.claudedirector.tenant_access.allow"

// Default Rego policy that matches the built-in membership check: admins
// always pass, otherwise the user's email domain must be allowed.
const defaultRegoPolicy = `package claudedirector.tenant_access

default allow = false

allow if {
	input.user.id in input.tenant.admin_users
}

allow if {
	input.user.domain != ""
	input.user.domain in input.tenant.allowed_domains
}
`

// OPAEvaluator evaluates tenant access policies using OPA Rego.
type OPAEvaluator struct{}

// NewOPAEvaluator returns an OPA-based access policy evaluator.
func NewOPAEvaluator() *OPAEvaluator {
	return &OPAEvaluator{}
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and
// evaluate the default policy. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	input := buildInput(&domain.Profile{
		TenantID:       "healthcheck",
		AdminUsers:     map[string]struct{}{},
		AllowedDomains: map[string]struct{}{},
	}, "nobody@example.com")
	_, err := evaluate(ctx, defaultRegoPolicy, input)
	return err
}

// EvaluateAccess evaluates the tenant's custom access policy for userID,
// falling back to the default policy when the custom one is empty or broken.
func (e *OPAEvaluator) EvaluateAccess(ctx context.Context, profile *domain.Profile, userID string) (bool, error) {
	input := buildInput(profile, userID)

	policy := profile.AccessPolicy
	if policy == "" {
		policy = defaultRegoPolicy
	}

	allow, err := evaluate(ctx, policy, input)
	if err != nil {
		log.Printf("policy: evaluation failed for tenant %s: %v, using default policy", profile.TenantID, err)
		return evaluate(ctx, defaultRegoPolicy, input)
	}
	return allow, nil
}

func buildInput(profile *domain.Profile, userID string) map[string]interface{} {
	userDomain := ""
	if i := strings.LastIndex(userID, "@"); i >= 0 {
		userDomain = userID[i+1:]
	}
	return map[string]interface{}{
		"tenant": map[string]interface{}{
			"id":              profile.TenantID,
			"tier":            string(profile.Tier),
			"isolation_level": string(profile.IsolationLevel),
			"active":          profile.IsActive,
			"admin_users":     profile.AdminList(),
			"allowed_domains": profile.DomainList(),
		},
		"user": map[string]interface{}{
			"id":     userID,
			"domain": userDomain,
		},
	}
}

func evaluate(ctx context.Context, policy string, input map[string]interface{}) (bool, error) {
	compiler, err := ast.CompileModules(map[string]string{"access_policy.rego": policy})
	if err != nil {
		return false, fmt.Errorf("compile policy: %w", err)
	}
	q := rego.New(
		rego.Query(accessQuery),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return false, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("policy query returned no result")
	}
	allow, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy allow is not a boolean")
	}
	return allow, nil
}
