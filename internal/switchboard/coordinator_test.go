package switchboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"claude-director/core/internal/clock"
	"claude-director/core/internal/contextstore"
	sessiondomain "claude-director/core/internal/session/domain"
	sessionsvc "claude-director/core/internal/session/service"
	"claude-director/core/internal/tenant/registry"
)

// suffixValidator grants access when the user's email ends in one of the
// tenant's allowed suffixes.
type suffixValidator struct {
	allowed map[string][]string
}

func (v suffixValidator) ValidateAccess(ctx context.Context, tenantID, userID string) (bool, error) {
	for _, suffix := range v.allowed[tenantID] {
		if strings.HasSuffix(userID, suffix) {
			return true, nil
		}
	}
	return false, nil
}

type memSessionManager struct {
	mu       sync.Mutex
	sessions map[string]*sessiondomain.Session
	started  int
	clk      clock.Clock
}

func newMemSessionManager(clk clock.Clock) *memSessionManager {
	return &memSessionManager{sessions: make(map[string]*sessiondomain.Session), clk: clk}
}

func (m *memSessionManager) StartSession(ctx context.Context, tenantID, userID string) (*sessiondomain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &sessiondomain.Session{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		UserID:    userID,
		StartedAt: m.clk.Now(),
		Snapshot:  map[string]any{},
	}
	m.sessions[s.ID] = s
	m.started++
	return s, nil
}

func (m *memSessionManager) GetSession(ctx context.Context, id string) (*sessiondomain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionManager) startedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func newTestCoordinator() (*Coordinator, *memSessionManager, *contextstore.Store) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	validator := suffixValidator{allowed: map[string][]string{
		"acme": {"@acme.com"},
		"beta": {"@beta.com"},
	}}
	sessions := newMemSessionManager(clk)
	store := contextstore.New(contextstore.WithClock(clk))
	return New(validator, sessions, store, WithClock(clk)), sessions, store
}

func TestCoordinator_SwitchContext(t *testing.T) {
	co, _, store := newTestCoordinator()

	h, err := co.SwitchContext(context.Background(), "acme", "alice@acme.com", "")
	if err != nil {
		t.Fatalf("SwitchContext: %v", err)
	}
	if h.SessionID == "" {
		t.Error("handle has no session")
	}
	if h.ContextNamespace != "tenant:acme:context" {
		t.Errorf("ContextNamespace = %q", h.ContextNamespace)
	}
	if h.CacheNamespace != "tenant:acme:cache" {
		t.Errorf("CacheNamespace = %q", h.CacheNamespace)
	}
	if h.SwitchTimeMS < 0 {
		t.Errorf("SwitchTimeMS = %v", h.SwitchTimeMS)
	}

	if rec := store.Get(context.Background(), h.ContextNamespace); rec == nil {
		t.Error("namespace record not created")
	} else if rec.Scope != contextstore.ScopeTenant || rec.TenantID != "acme" {
		t.Errorf("namespace record scope=%v tenant=%v", rec.Scope, rec.TenantID)
	}
}

func TestCoordinator_SwitchContext_DeniedLeavesNothing(t *testing.T) {
	co, sessions, store := newTestCoordinator()

	_, err := co.SwitchContext(context.Background(), "acme", "bob@other.com", "")
	if !errors.Is(err, registry.ErrAccessDenied) {
		t.Fatalf("err = %v, want ErrAccessDenied", err)
	}
	if n := sessions.startedCount(); n != 0 {
		t.Errorf("sessions started = %d, want 0", n)
	}
	if rec := store.Get(context.Background(), ContextNamespace("acme")); rec != nil {
		t.Error("namespace record created for denied switch")
	}
}

func TestCoordinator_SwitchContext_ExistingSession(t *testing.T) {
	co, sessions, _ := newTestCoordinator()
	ctx := context.Background()

	first, err := co.SwitchContext(ctx, "acme", "alice@acme.com", "")
	if err != nil {
		t.Fatalf("first switch: %v", err)
	}

	second, err := co.SwitchContext(ctx, "acme", "alice@acme.com", first.SessionID)
	if err != nil {
		t.Fatalf("resume switch: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("resumed session = %s, want %s", second.SessionID, first.SessionID)
	}
	if n := sessions.startedCount(); n != 1 {
		t.Errorf("sessions started = %d, want 1", n)
	}

	if _, err := co.SwitchContext(ctx, "acme", "alice@acme.com", "ghost"); !errors.Is(err, sessionsvc.ErrSessionNotFound) {
		t.Errorf("unknown session: err = %v, want ErrSessionNotFound", err)
	}
}

func TestCoordinator_SwitchContext_SessionBoundToTenantAndUser(t *testing.T) {
	co, _, _ := newTestCoordinator()
	ctx := context.Background()

	h, err := co.SwitchContext(ctx, "acme", "alice@acme.com", "")
	if err != nil {
		t.Fatalf("SwitchContext: %v", err)
	}

	// A user of another tenant cannot resume the session.
	if _, err := co.SwitchContext(ctx, "beta", "carol@beta.com", h.SessionID); !errors.Is(err, sessionsvc.ErrSessionNotFound) {
		t.Errorf("cross-tenant resume: err = %v, want ErrSessionNotFound", err)
	}

	// Neither can a different user of the same tenant.
	if _, err := co.SwitchContext(ctx, "acme", "dave@acme.com", h.SessionID); !errors.Is(err, sessionsvc.ErrSessionNotFound) {
		t.Errorf("cross-user resume: err = %v, want ErrSessionNotFound", err)
	}

	// The owner still can.
	if _, err := co.SwitchContext(ctx, "acme", "alice@acme.com", h.SessionID); err != nil {
		t.Errorf("owner resume: %v", err)
	}
}

func TestCoordinator_SwitchContext_EndedSession(t *testing.T) {
	co, sessions, _ := newTestCoordinator()
	ctx := context.Background()

	h, err := co.SwitchContext(ctx, "acme", "alice@acme.com", "")
	if err != nil {
		t.Fatalf("SwitchContext: %v", err)
	}
	ended := sessions.clk.Now()
	sessions.mu.Lock()
	sessions.sessions[h.SessionID].EndedAt = &ended
	sessions.mu.Unlock()

	if _, err := co.SwitchContext(ctx, "acme", "alice@acme.com", h.SessionID); !errors.Is(err, sessionsvc.ErrSessionNotFound) {
		t.Errorf("ended session: err = %v, want ErrSessionNotFound", err)
	}
}

func TestCoordinator_SwitchContext_Cancelled(t *testing.T) {
	co, sessions, _ := newTestCoordinator()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := co.SwitchContext(ctx, "acme", "alice@acme.com", ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n := sessions.startedCount(); n != 0 {
		t.Errorf("sessions started = %d, want 0", n)
	}
}

func TestCoordinator_ConcurrentSwitchesShareNamespace(t *testing.T) {
	co, _, store := newTestCoordinator()

	const n = 16
	handles := make([]*Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := co.SwitchContext(context.Background(), "acme", "alice@acme.com", "")
			if err != nil {
				t.Errorf("switch %d: %v", i, err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for _, h := range handles {
		if h == nil {
			t.Fatal("missing handle")
		}
		if h.ContextNamespace != "tenant:acme:context" {
			t.Errorf("namespace = %q", h.ContextNamespace)
		}
	}
	if n := store.CountByScope(contextstore.ScopeTenant); n != 1 {
		t.Errorf("tenant-scope records = %d, want 1", n)
	}
}

// advancingValidator moves the fake clock while validating, simulating a slow
// access check.
type advancingValidator struct {
	clk *clock.Fake
	d   time.Duration
}

func (v advancingValidator) ValidateAccess(ctx context.Context, tenantID, userID string) (bool, error) {
	v.clk.Advance(v.d)
	return true, nil
}

func TestCoordinator_SwitchTimeUsesInjectedClock(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	sessions := newMemSessionManager(clk)
	store := contextstore.New(contextstore.WithClock(clk))
	co := New(advancingValidator{clk: clk, d: 3 * time.Millisecond}, sessions, store, WithClock(clk))

	h, err := co.SwitchContext(context.Background(), "acme", "alice@acme.com", "")
	if err != nil {
		t.Fatalf("SwitchContext: %v", err)
	}
	if h.SwitchTimeMS != 3 {
		t.Errorf("SwitchTimeMS = %v, want 3", h.SwitchTimeMS)
	}
}

func TestNamespaces_Deterministic(t *testing.T) {
	if ContextNamespace("t1") != ContextNamespace("t1") {
		t.Error("ContextNamespace not deterministic")
	}
	if ContextNamespace("t1") == ContextNamespace("t2") {
		t.Error("namespaces collide across tenants")
	}
	if CacheNamespace("t1") != "tenant:t1:cache" {
		t.Errorf("CacheNamespace = %q", CacheNamespace("t1"))
	}
}
