package contextstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"claude-director/core/internal/clock"
	"claude-director/core/internal/metrics"
)

// Sentinel errors for the context store.
var (
	// ErrDuplicateContext is returned by Create when the supplied context ID
	// collides with an existing non-expired record.
	ErrDuplicateContext = errors.New("context id already exists")
	// ErrNotFound is returned by Update when the record is absent or expired.
	ErrNotFound = errors.New("context not found")
)

// shard holds the records of a single scope behind its own lock, so eviction
// in one scope never blocks access to another.
type shard struct {
	mu sync.RWMutex
	m  map[string]*Record
}

// Store is an in-memory context store sharded by scope. Safe for concurrent
// use; operations on a single context ID are linearized via the shard lock.
type Store struct {
	shards map[Scope]*shard

	// indexMu guards index, which maps context ID to its scope so Get and
	// Update do not need to search every shard.
	indexMu sync.RWMutex
	index   map[string]Scope

	clk     clock.Clock
	sink    metrics.Sink
	trigger func()
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source. Defaults to the real clock.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clk = c }
}

// WithMetrics sets the metrics sink. Defaults to a discard sink.
func WithMetrics(sink metrics.Sink) Option {
	return func(s *Store) { s.sink = sink }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		shards: make(map[Scope]*shard, len(Scopes)),
		index:  make(map[string]Scope),
		clk:    clock.Real{},
		sink:   metrics.Noop{},
	}
	for _, sc := range Scopes {
		s.shards[sc] = &shard{m: make(map[string]*Record)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetSweepTrigger registers fn to be called after each Get. The garbage
// collector uses it for amortized sweeps; fn must not block.
func (s *Store) SetSweepTrigger(fn func()) {
	s.trigger = fn
}

// CreateParams holds input for Create. ContextID is generated when empty;
// TTL <= 0 means the record never expires. TenantID is required for
// tenant-scoped records.
type CreateParams struct {
	Scope     Scope
	TenantID  string
	Data      map[string]any
	TTL       time.Duration
	ContextID string
}

// Create stores a new record and returns a copy of it. IDs are unique across
// the whole store: a collision with a live record in any scope returns
// ErrDuplicateContext, while a collision with an expired record evicts it and
// succeeds.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Record, error) {
	if !p.Scope.Valid() {
		return nil, errors.New("unknown scope " + string(p.Scope))
	}
	if p.Scope == ScopeTenant && p.TenantID == "" {
		return nil, errors.New("tenant-scoped context requires a tenant id")
	}
	id := p.ContextID
	if id == "" {
		id = uuid.New().String()
	}

	now := s.clk.Now()
	rec := &Record{
		ContextID:      id,
		Scope:          p.Scope,
		TenantID:       p.TenantID,
		Data:           make(map[string]any, len(p.Data)),
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessedAt: now,
	}
	for k, v := range p.Data {
		rec.Data[k] = v
	}
	if p.TTL > 0 {
		exp := now.Add(p.TTL)
		rec.ExpiresAt = &exp
	}

	// The index is authoritative for uniqueness, so the whole check-evict-insert
	// runs under indexMu. Shard locks nest inside it; no path takes them in the
	// other order.
	s.indexMu.Lock()
	if prev, ok := s.index[id]; ok {
		other := s.shards[prev]
		other.mu.Lock()
		if r, ok := other.m[id]; ok {
			if !r.Expired(now) {
				other.mu.Unlock()
				s.indexMu.Unlock()
				return nil, ErrDuplicateContext
			}
			delete(other.m, id)
		}
		other.mu.Unlock()
	}
	sh := s.shards[p.Scope]
	sh.mu.Lock()
	sh.m[id] = rec
	sh.mu.Unlock()
	s.index[id] = p.Scope
	s.indexMu.Unlock()

	s.sink.ContextCreated(ctx)
	return rec.clone(), nil
}

// Get returns the record for id, or nil if absent or expired. A hit updates
// LastAccessedAt and increments AccessCount; an expired record is evicted as
// a side effect. Never returns an error for a miss.
func (s *Store) Get(ctx context.Context, id string) *Record {
	defer func() {
		if s.trigger != nil {
			s.trigger()
		}
	}()

	s.indexMu.RLock()
	scope, ok := s.index[id]
	s.indexMu.RUnlock()
	if !ok {
		return nil
	}

	now := s.clk.Now()
	sh := s.shards[scope]
	sh.mu.Lock()
	rec, ok := sh.m[id]
	if !ok {
		sh.mu.Unlock()
		s.dropIndex(id, scope)
		return nil
	}
	if rec.Expired(now) {
		delete(sh.m, id)
		sh.mu.Unlock()
		s.dropIndex(id, scope)
		s.sink.ContextsExpired(ctx, 1)
		return nil
	}
	rec.LastAccessedAt = now
	rec.AccessCount++
	out := rec.clone()
	sh.mu.Unlock()
	return out
}

// Update replaces or merges the record's data. merge=true performs a shallow
// union (existing keys overwritten, new keys added); merge=false replaces the
// data entirely. Returns ErrNotFound if the record is absent or expired.
func (s *Store) Update(ctx context.Context, id string, data map[string]any, merge bool) error {
	s.indexMu.RLock()
	scope, ok := s.index[id]
	s.indexMu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	now := s.clk.Now()
	sh := s.shards[scope]
	sh.mu.Lock()
	rec, ok := sh.m[id]
	if !ok {
		sh.mu.Unlock()
		s.dropIndex(id, scope)
		return ErrNotFound
	}
	if rec.Expired(now) {
		delete(sh.m, id)
		sh.mu.Unlock()
		s.dropIndex(id, scope)
		s.sink.ContextsExpired(ctx, 1)
		return ErrNotFound
	}
	if merge {
		for k, v := range data {
			rec.Data[k] = v
		}
	} else {
		rec.Data = make(map[string]any, len(data))
		for k, v := range data {
			rec.Data[k] = v
		}
	}
	rec.UpdatedAt = now
	sh.mu.Unlock()
	return nil
}

// Delete removes the record for id. Idempotent: returns false if the id was absent.
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.indexMu.RLock()
	scope, ok := s.index[id]
	s.indexMu.RUnlock()
	if !ok {
		return false
	}
	sh := s.shards[scope]
	sh.mu.Lock()
	_, ok = sh.m[id]
	delete(sh.m, id)
	sh.mu.Unlock()
	s.dropIndex(id, scope)
	return ok
}

// ListByScope returns copies of all non-expired records in the scope, lazily
// evicting any expired ones encountered.
func (s *Store) ListByScope(ctx context.Context, scope Scope) []*Record {
	sh, ok := s.shards[scope]
	if !ok {
		return nil
	}
	now := s.clk.Now()

	var out []*Record
	var expired []string
	sh.mu.Lock()
	for id, rec := range sh.m {
		if rec.Expired(now) {
			expired = append(expired, id)
			continue
		}
		out = append(out, rec.clone())
	}
	for _, id := range expired {
		delete(sh.m, id)
	}
	sh.mu.Unlock()

	for _, id := range expired {
		s.dropIndex(id, scope)
	}
	if n := int64(len(expired)); n > 0 {
		s.sink.ContextsExpired(ctx, n)
	}
	return out
}

// CountByScope returns the number of live records in the scope. Expired but
// not-yet-evicted records are not counted.
func (s *Store) CountByScope(scope Scope) int {
	sh, ok := s.shards[scope]
	if !ok {
		return 0
	}
	now := s.clk.Now()
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	n := 0
	for _, rec := range sh.m {
		if !rec.Expired(now) {
			n++
		}
	}
	return n
}

// SweepExpired evicts all expired records and returns how many were removed.
// Expired ids are enumerated under the shard read lock, which is released
// before deletion so the sweep never holds a lock across the whole pass.
func (s *Store) SweepExpired(ctx context.Context) int {
	now := s.clk.Now()
	total := 0
	for scope, sh := range s.shards {
		var expired []string
		sh.mu.RLock()
		for id, rec := range sh.m {
			if rec.Expired(now) {
				expired = append(expired, id)
			}
		}
		sh.mu.RUnlock()

		for _, id := range expired {
			sh.mu.Lock()
			if rec, ok := sh.m[id]; ok && rec.Expired(now) {
				delete(sh.m, id)
				total++
			}
			sh.mu.Unlock()
			s.dropIndex(id, scope)
		}
	}
	if total > 0 {
		s.sink.ContextsExpired(ctx, int64(total))
	}
	return total
}

// dropIndex removes the id→scope mapping if it still points at scope.
func (s *Store) dropIndex(id string, scope Scope) {
	s.indexMu.Lock()
	if cur, ok := s.index[id]; ok && cur == scope {
		delete(s.index, id)
	}
	s.indexMu.Unlock()
}
