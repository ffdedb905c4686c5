package engine

import (
	"context"
	"testing"

	"claude-director/core/internal/tenant/domain"
)

func acmeProfile() *domain.Profile {
	return &domain.Profile{
		TenantID:       "acme",
		Tier:           domain.TierProfessional,
		IsActive:       true,
		AdminUsers:     map[string]struct{}{"alice@acme.com": {}},
		AllowedDomains: map[string]struct{}{"acme.com": {}},
	}
}

func TestOPAEvaluator_DefaultPolicy(t *testing.T) {
	e := NewOPAEvaluator()
	ctx := context.Background()
	profile := acmeProfile()

	cases := []struct {
		user string
		want bool
	}{
		{"alice@acme.com", true},
		{"carol@acme.com", true},
		{"bob@other.com", false},
		{"no-at-sign", false},
	}
	for _, c := range cases {
		got, err := e.EvaluateAccess(ctx, profile, c.user)
		if err != nil {
			t.Fatalf("EvaluateAccess(%q): %v", c.user, err)
		}
		if got != c.want {
			t.Errorf("EvaluateAccess(%q) = %v, want %v", c.user, got, c.want)
		}
	}
}

func TestOPAEvaluator_CustomPolicy(t *testing.T) {
	e := NewOPAEvaluator()
	profile := acmeProfile()
	// Enterprise-only policy: ignores membership entirely.
	profile.AccessPolicy = `package claudedirector.tenant_access

default allow = false

allow if {
	input.tenant.tier == "enterprise"
}
`

	if ok, err := e.EvaluateAccess(context.Background(), profile, "alice@acme.com"); err != nil || ok {
		t.Errorf("professional tier: ok=%v err=%v, want false nil", ok, err)
	}

	profile.Tier = domain.TierEnterprise
	if ok, err := e.EvaluateAccess(context.Background(), profile, "bob@other.com"); err != nil || !ok {
		t.Errorf("enterprise tier: ok=%v err=%v, want true nil", ok, err)
	}
}

func TestOPAEvaluator_BrokenPolicyFallsBack(t *testing.T) {
	e := NewOPAEvaluator()
	profile := acmeProfile()
	profile.AccessPolicy = "package claudedirector.tenant_access\n\nallow if { this is not rego"

	// The broken policy must not lock admins out.
	if ok, err := e.EvaluateAccess(context.Background(), profile, "alice@acme.com"); err != nil || !ok {
		t.Errorf("admin under broken policy: ok=%v err=%v, want true nil", ok, err)
	}
	if ok, err := e.EvaluateAccess(context.Background(), profile, "bob@other.com"); err != nil || ok {
		t.Errorf("outsider under broken policy: ok=%v err=%v, want false nil", ok, err)
	}
}

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	if err := NewOPAEvaluator().HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
