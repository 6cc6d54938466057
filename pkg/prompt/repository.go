package prompt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	metrics "github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/observability"
)

const (
	defaultNumCounters = 1e4 // admission counters, ~10x the expected keys
	defaultMaxCost     = 1e3 // one unit per cached query
	defaultBufferItems = 64
	defaultCacheTTL    = 30 * time.Minute
)

// Repository serves applicable templates from a TTL cache in front of a
// Store. Cached results may be stale for up to the TTL; Invalidate drops
// them after a store write.
type Repository struct {
	store  Store
	cache  *ristretto.Cache
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// NewRepository creates a repository over store. ttl <= 0 selects 30
// minutes.
func NewRepository(store Store, ttl time.Duration) (*Repository, error) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: defaultNumCounters,
		MaxCost:     defaultMaxCost,
		BufferItems: defaultBufferItems,
		// cost counts cached queries, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create template cache: %w", err)
	}
	return &Repository{store: store, cache: cache, ttl: ttl}, nil
}

// Store returns the underlying store.
func (r *Repository) Store() Store {
	return r.store
}

// cacheKey identifies a query by agent, category and task type.
func cacheKey(agentName string, category Category, taskType string) string {
	if taskType == "" {
		taskType = "default"
	}
	return agentName + "|" + string(category) + "|" + taskType
}

// FindApplicable returns the active templates of category usable by
// agentName for tc, best performing first. Returned templates are compiled
// and shared; callers must not modify them.
func (r *Repository) FindApplicable(ctx context.Context, agentName string, category Category, tc TaskContext) ([]*Template, error) {
	key := cacheKey(agentName, category, tc.Type)

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()

	if !closed {
		if v, ok := r.cache.Get(key); ok {
			if templates, ok := v.([]*Template); ok {
				metrics.RecordTemplateCache("hit")
				return append([]*Template(nil), templates...), nil
			}
		}
	}
	metrics.RecordTemplateCache("miss")

	templates, err := r.store.Find(ctx, Query{AgentName: agentName, Category: category, TaskType: tc.Type})
	if err != nil {
		return nil, fmt.Errorf("find templates: %w", err)
	}
	for _, t := range templates {
		t.Compile()
	}

	if !closed {
		r.cache.SetWithTTL(key, templates, 1, r.ttl)
	}
	return append([]*Template(nil), templates...), nil
}

// Wait blocks until pending cache writes are applied.
func (r *Repository) Wait() {
	r.cache.Wait()
}

// Invalidate drops every cached query.
func (r *Repository) Invalidate() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.closed {
		r.cache.Clear()
	}
}

// Close releases the cache.
func (r *Repository) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.cache.Close()
}
