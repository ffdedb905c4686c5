// seed inserts development sample data for local testing: a demo tenant with
// one admin, plus a first session. Idempotent: skips inserts if the demo
// tenant already exists.
package main

import (
	"context"
	"log"

	"claude-director/core/internal/audit"
	auditrepo "claude-director/core/internal/audit/repository"
	"claude-director/core/internal/config"
	"claude-director/core/internal/db"
	sessionrepo "claude-director/core/internal/session/repository"
	sessionsvc "claude-director/core/internal/session/service"
	"claude-director/core/internal/tenant/domain"
	"claude-director/core/internal/tenant/registry"
	tenantrepo "claude-director/core/internal/tenant/repository"
)

const (
	demoTenantID = "demo-org"
	demoAdmin    = "admin@demo-org.example"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	auditLogger := audit.NewLogger(auditrepo.NewSQLRepository(conn), nil)
	reg := registry.New(tenantrepo.NewSQLRepository(conn), registry.WithAuditLogger(auditLogger))

	if existing, err := reg.GetTenant(ctx, demoTenantID); err != nil {
		log.Fatalf("seed: %v", err)
	} else if existing != nil {
		log.Printf("seed: tenant %s already exists, nothing to do", demoTenantID)
		return
	}

	if _, err := reg.CreateTenant(ctx, registry.CreateParams{
		TenantID:       demoTenantID,
		Name:           "Demo Organization",
		Tier:           domain.TierProfessional,
		IsolationLevel: domain.IsolationStrict,
		AdminUser:      demoAdmin,
		AllowedDomains: []string{"demo-org.example"},
	}); err != nil {
		log.Fatalf("seed: create tenant: %v", err)
	}

	sessions := sessionsvc.NewManager(sessionrepo.NewSQLRepository(conn), reg,
		sessionsvc.WithQualityWeights(cfg.QualityWeights()),
		sessionsvc.WithAuditLogger(auditLogger))
	s, err := sessions.StartSession(ctx, demoTenantID, demoAdmin)
	if err != nil {
		log.Fatalf("seed: start session: %v", err)
	}

	log.Printf("seed: created tenant %s with admin %s and session %s", demoTenantID, demoAdmin, s.ID)
}
