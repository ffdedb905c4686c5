package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"claude-director/core/internal/db"
	"claude-director/core/internal/tenant/domain"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open("file:" + filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	schema, err := db.MigrationFS.ReadFile("migrations/0001_init.up.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := d.Exec(string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return d
}

func TestSQLRepository_CreateGet(t *testing.T) {
	repo := NewSQLRepository(openTestDB(t))
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	p := &domain.Profile{
		TenantID:       "acme",
		Name:           "Acme Corp",
		Tier:           domain.TierProfessional,
		IsolationLevel: domain.IsolationStrict,
		AdminUsers:     map[string]struct{}{"alice@acme.com": {}},
		AllowedDomains: map[string]struct{}{"acme.com": {}},
		IsActive:       true,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, "acme")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil {
		t.Fatal("GetByID returned nil for existing tenant")
	}
	if got.Name != "Acme Corp" || got.Tier != domain.TierProfessional {
		t.Errorf("profile = %+v", got)
	}
	if !got.IsAdmin("alice@acme.com") {
		t.Error("admin set lost in round trip")
	}
	if _, ok := got.AllowedDomains["acme.com"]; !ok {
		t.Error("allowed domains lost in round trip")
	}
	if !got.CreatedAt.Equal(now) || !got.LastAccessedAt.Equal(now) {
		t.Errorf("timestamps: created=%v accessed=%v, want %v", got.CreatedAt, got.LastAccessedAt, now)
	}
	if !got.IsActive {
		t.Error("is_active lost in round trip")
	}
}

func TestSQLRepository_GetByID_Miss(t *testing.T) {
	repo := NewSQLRepository(openTestDB(t))

	got, err := repo.GetByID(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Errorf("GetByID miss = %+v, want nil", got)
	}
}

func TestSQLRepository_Update(t *testing.T) {
	repo := NewSQLRepository(openTestDB(t))
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	p := &domain.Profile{
		TenantID:       "acme",
		Name:           "Acme",
		Tier:           domain.TierStarter,
		IsolationLevel: domain.IsolationStrict,
		AdminUsers:     map[string]struct{}{},
		AllowedDomains: map[string]struct{}{},
		IsActive:       true,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	p.IsActive = false
	p.AdminUsers["root@acme.com"] = struct{}{}
	if err := repo.Update(ctx, p); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := repo.GetByID(ctx, "acme")
	if got.IsActive {
		t.Error("IsActive not persisted")
	}
	if !got.IsAdmin("root@acme.com") {
		t.Error("admin set not persisted")
	}
}

func TestSQLRepository_TouchLastAccessedAndCount(t *testing.T) {
	repo := NewSQLRepository(openTestDB(t))
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	p := &domain.Profile{
		TenantID:       "acme",
		Name:           "Acme",
		Tier:           domain.TierStarter,
		IsolationLevel: domain.IsolationStrict,
		AdminUsers:     map[string]struct{}{},
		AllowedDomains: map[string]struct{}{},
		IsActive:       true,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	later := now.Add(45 * time.Minute)
	if err := repo.TouchLastAccessed(ctx, "acme", later); err != nil {
		t.Fatalf("TouchLastAccessed: %v", err)
	}
	got, _ := repo.GetByID(ctx, "acme")
	if !got.LastAccessedAt.Equal(later) {
		t.Errorf("LastAccessedAt = %v, want %v", got.LastAccessedAt, later)
	}

	if n, err := repo.Count(ctx); err != nil || n != 1 {
		t.Errorf("Count = %d, %v, want 1, nil", n, err)
	}
}
