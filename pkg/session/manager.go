package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"

	"github.com/jonathanEDR/web-scuticompany-back-sub007/internal/observability"
	metrics "github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/observability"
)

// Actions that mark a session as user driven.
const (
	ActionCoordinate = "coordinate"
	ActionRoute      = "route"
)

// userInputFields are the input keys that carry a user message or command.
var userInputFields = []string{"message", "userMessage", "user_message", "command", "query"}

// Manager is the session context cache. It serves recently used sessions
// from memory and writes every mutation through to the backend.
//
// Mutations are read-modify-write without version checks: concurrent writers
// on the same session are last-write-wins. Manager is safe for concurrent use.
type Manager struct {
	backend StorageBackend
	cfg     Config
	now     func() time.Time
	newID   func() string

	mu    sync.RWMutex
	cache map[string]*cacheEntry

	schedMu sync.Mutex
	sched   *cron.Cron
	logCtx  context.Context
}

type cacheEntry struct {
	sess       *Session
	insertedAt time.Time
	lastAccess time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig sets the cache configuration.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.cfg = cfg.withDefaults()
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// CreateOptions configures session creation.
type CreateOptions struct {
	UserID   string
	UserRole string
	Context  GlobalContext
}

// Created is the result of a successful creation.
type Created struct {
	SessionID string `json:"sessionId"`
	Session   View   `json:"session"`
}

// InteractionInput describes one agent invocation to log.
type InteractionInput struct {
	Agent    string
	Action   string
	Input    any
	Result   any
	Duration time.Duration
	// Failed marks an unsuccessful invocation; the zero value logs success.
	Failed bool
}

// NewManager creates a session manager with the given storage backend.
func NewManager(backend StorageBackend, opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		cfg:     DefaultConfig(),
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
		cache:   make(map[string]*cacheEntry),
		logCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Start schedules the idle-eviction sweep. ctx carries the logger used by
// the sweep. Calling Start twice is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()

	if m.sched != nil {
		return
	}
	m.logCtx = ctx
	m.sched = cron.New()
	m.sched.Schedule(cron.Every(m.cfg.SweepInterval), cron.FuncJob(func() {
		if n := m.EvictIdle(m.now()); n > 0 {
			log.Debug(m.logCtx, log.KV{K: "msg", V: "evicted idle sessions"}, log.KV{K: "count", V: n})
		}
	}))
	m.sched.Start()
}

// Close stops the sweep, drops the cache and closes the backend.
func (m *Manager) Close() error {
	m.schedMu.Lock()
	if m.sched != nil {
		<-m.sched.Stop().Done()
		m.sched = nil
	}
	m.schedMu.Unlock()

	m.mu.Lock()
	m.cache = make(map[string]*cacheEntry)
	m.mu.Unlock()
	metrics.SetCachedSessions(0)

	return m.backend.Close()
}

// Create creates and caches a new session.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Created, error) {
	ctx, span := observability.StartSpanWithOtel(ctx, "session.create",
		trace.WithAttributes(attribute.String("user_id", opts.UserID)))
	defer span.End()

	now := m.now()
	sess := &Session{
		ID:            m.newID(),
		UserID:        opts.UserID,
		UserRole:      opts.UserRole,
		GlobalContext: opts.Context.normalize(),
		Interactions:  []Interaction{},
		SharedData:    SharedData{},
		Status:        StatusActive,
		CreatedAt:     now,
	}
	sess.Touch(now, m.cfg.TTL)

	start := time.Now()
	if err := m.backend.CreateSession(ctx, sess); err != nil {
		metrics.RecordSessionOperation("create", "error", time.Since(start))
		span.RecordError(err)
		log.Error(ctx, err, log.KV{K: "msg", V: "create session"}, log.KV{K: "user_id", V: opts.UserID})
		return nil, fmt.Errorf("create session: %w", err)
	}
	metrics.RecordSessionOperation("create", "ok", time.Since(start))
	m.put(sess, now)

	log.Info(ctx, log.KV{K: "msg", V: "session created"}, log.KV{K: "session_id", V: sess.ID}, log.KV{K: "user_id", V: sess.UserID})
	return &Created{SessionID: sess.ID, Session: sess.Sanitize()}, nil
}

// Get resolves a session. Cached entries younger than the idle horizon are
// served directly; otherwise the backend is queried for a live session,
// which is reactivated, has its expiry extended and is cached again.
// Returns nil and false when the session is absent or the backend fails.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, bool) {
	if sessionID == "" {
		return nil, false
	}
	ctx, span := observability.StartSpanWithOtel(ctx, "session.get",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	now := m.now()
	if sess := m.cached(sessionID, now); sess != nil {
		metrics.RecordSessionCache("hit")
		return sess, true
	}
	metrics.RecordSessionCache("miss")

	start := time.Now()
	sess, err := m.backend.FindSession(ctx, sessionID, LiveStatuses...)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			metrics.RecordSessionOperation("find", "not_found", time.Since(start))
			return nil, false
		}
		metrics.RecordSessionOperation("find", "error", time.Since(start))
		span.RecordError(err)
		log.Error(ctx, err, log.KV{K: "msg", V: "find session"}, log.KV{K: "session_id", V: sessionID})
		return nil, false
	}
	metrics.RecordSessionOperation("find", "ok", time.Since(start))

	sess.Status = StatusActive
	sess.Touch(now, m.cfg.TTL)
	if err := m.save(ctx, sess); err != nil {
		return nil, false
	}
	m.put(sess, now)
	return sess.Clone(), true
}

// GetOrCreate returns the session identified by sessionID or, when it cannot
// be resolved, a freshly created one. Creation failures are returned.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string, opts CreateOptions) (*Session, error) {
	if sess, ok := m.Get(ctx, sessionID); ok {
		return sess, nil
	}
	created, err := m.Create(ctx, opts)
	if err != nil {
		return nil, err
	}
	if sess := m.cached(created.SessionID, m.now()); sess != nil {
		return sess, nil
	}
	sess, ok := m.Get(ctx, created.SessionID)
	if !ok {
		return nil, fmt.Errorf("load created session %s: %w", created.SessionID, ErrSessionNotFound)
	}
	return sess, nil
}

// AddInteraction appends an interaction to the session log, keeping the
// most recent HistoryLimit entries. Returns false when the session is absent
// or the write fails.
func (m *Manager) AddInteraction(ctx context.Context, sessionID string, in InteractionInput) bool {
	input, err := NewPayload(in.Input)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "encode interaction input"}, log.KV{K: "session_id", V: sessionID})
		return false
	}
	result, err := NewPayload(in.Result)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "encode interaction result"}, log.KV{K: "session_id", V: sessionID})
		return false
	}
	return m.mutate(ctx, sessionID, "add_interaction", func(sess *Session, now time.Time) {
		sess.appendInteraction(Interaction{
			Timestamp:  now,
			Agent:      in.Agent,
			Action:     in.Action,
			Input:      input,
			Result:     result,
			DurationMs: in.Duration.Milliseconds(),
			Success:    !in.Failed,
		}, m.cfg.HistoryLimit)
	})
}

// UpdateSharedData stores value under key in the session's shared data.
func (m *Manager) UpdateSharedData(ctx context.Context, sessionID, key string, value any) bool {
	payload, err := NewPayload(value)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "encode shared data"}, log.KV{K: "session_id", V: sessionID}, log.KV{K: "key", V: key})
		return false
	}
	return m.mutate(ctx, sessionID, "update_shared_data", func(sess *Session, _ time.Time) {
		sess.SharedData = sess.SharedData.Set(key, payload)
	})
}

// GetSharedData returns the whole shared data table of a session.
func (m *Manager) GetSharedData(ctx context.Context, sessionID string) (SharedData, bool) {
	sess, ok := m.Get(ctx, sessionID)
	if !ok {
		return nil, false
	}
	return sess.SharedData, true
}

// GetSharedValue returns one shared data value.
func (m *Manager) GetSharedValue(ctx context.Context, sessionID, key string) (Payload, bool) {
	data, ok := m.GetSharedData(ctx, sessionID)
	if !ok {
		return Payload{}, false
	}
	return data.Get(key)
}

// Extend pushes the session expiry to now+d without recording activity.
func (m *Manager) Extend(ctx context.Context, sessionID string, d time.Duration) bool {
	sess, ok := m.Get(ctx, sessionID)
	if !ok {
		return false
	}
	now := m.now()
	sess.ExpiresAt = now.Add(d)
	if sess.ExpiresAt.Before(sess.LastActivity) {
		sess.ExpiresAt = sess.LastActivity
	}
	if err := m.save(ctx, sess); err != nil {
		return false
	}
	m.put(sess, now)
	return true
}

// EnrichedContext builds the view of a session consumed by agentName. The
// zero value is returned when the session does not exist.
func (m *Manager) EnrichedContext(ctx context.Context, sessionID, agentName string) EnrichedContext {
	sess, ok := m.Get(ctx, sessionID)
	if !ok {
		return EnrichedContext{}
	}

	recent := lastN(sess.Interactions, 5, func(Interaction) bool { return true })
	history := lastN(sess.Interactions, 3, func(in Interaction) bool { return in.Agent == agentName })

	return EnrichedContext{
		SessionID:          sess.ID,
		UserID:             sess.UserID,
		UserRole:           sess.UserRole,
		GlobalContext:      sess.GlobalContext,
		SharedData:         sess.SharedData.Map(),
		RecentInteractions: recent,
		AgentHistory:       history,
		CreatedAt:          sess.CreatedAt,
		LastActivity:       sess.LastActivity,
	}
}

// lastN returns up to n of the latest interactions accepted by keep, in log
// order.
func lastN(entries []Interaction, n int, keep func(Interaction) bool) []Interaction {
	var out []Interaction
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		if keep(entries[i]) {
			out = append(out, entries[i].clone())
		}
	}
	slices.Reverse(out)
	return out
}

// Complete marks the session completed and drops it from the cache. The
// stored document is kept and reactivated on the next access.
func (m *Manager) Complete(ctx context.Context, sessionID string) bool {
	sess, ok := m.Get(ctx, sessionID)
	if !ok {
		return false
	}
	sess.Status = StatusCompleted
	if err := m.save(ctx, sess); err != nil {
		return false
	}
	m.Invalidate(sessionID)
	log.Info(ctx, log.KV{K: "msg", V: "session completed"}, log.KV{K: "session_id", V: sessionID})
	return true
}

// Stats reports the cache size and the per-status aggregation of the store.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ActiveInCache: m.CacheLen()}
	byStatus, err := m.backend.CountByStatus(ctx)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "aggregate session stats"})
		return stats, fmt.Errorf("session stats: %w", err)
	}
	stats.ByStatus = byStatus
	return stats, nil
}

// UserSessions returns up to limit sessions of userID that contain at least
// one user-driven interaction, newest activity first. limit <= 0 means 10.
func (m *Manager) UserSessions(ctx context.Context, userID string, limit int) []*Session {
	if limit <= 0 {
		limit = 10
	}
	sessions, err := m.backend.ListByUser(ctx, userID)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "list user sessions"}, log.KV{K: "user_id", V: userID})
		return nil
	}
	out := make([]*Session, 0, limit)
	for _, s := range sessions {
		if !userDriven(s) {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}

// userDriven reports whether any interaction came from a user request.
func userDriven(s *Session) bool {
	for _, in := range s.Interactions {
		if in.Action == ActionCoordinate || in.Action == ActionRoute {
			return true
		}
		var fields map[string]any
		if err := in.Input.Decode(&fields); err != nil {
			continue
		}
		for _, k := range userInputFields {
			if v, ok := fields[k]; ok && v != nil && v != "" {
				return true
			}
		}
	}
	return false
}

// EvictIdle removes cache entries not accessed within the idle horizon and
// returns how many were removed. The backend is never touched.
func (m *Manager) EvictIdle(now time.Time) int {
	m.mu.Lock()
	evicted := 0
	for id, e := range m.cache {
		if now.Sub(e.lastAccess) > m.cfg.CacheIdle {
			delete(m.cache, id)
			evicted++
		}
	}
	size := len(m.cache)
	m.mu.Unlock()

	metrics.RecordSessionEvictions(evicted)
	metrics.SetCachedSessions(size)
	return evicted
}

// Invalidate drops one session from the cache.
func (m *Manager) Invalidate(sessionID string) {
	m.mu.Lock()
	delete(m.cache, sessionID)
	size := len(m.cache)
	m.mu.Unlock()
	metrics.SetCachedSessions(size)
}

// CacheLen returns the number of cached sessions.
func (m *Manager) CacheLen() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}

// mutate loads the session, applies fn, rolls the expiry forward and writes
// the result through to the backend and the cache.
func (m *Manager) mutate(ctx context.Context, sessionID, op string, fn func(*Session, time.Time)) bool {
	ctx, span := observability.StartSpanWithOtel(ctx, "session."+op,
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	sess, ok := m.Get(ctx, sessionID)
	if !ok {
		return false
	}
	now := m.now()
	fn(sess, now)
	sess.Touch(now, m.cfg.TTL)
	if err := m.save(ctx, sess); err != nil {
		span.RecordError(err)
		return false
	}
	m.put(sess, now)
	return true
}

func (m *Manager) save(ctx context.Context, sess *Session) error {
	start := time.Now()
	if err := m.backend.SaveSession(ctx, sess); err != nil {
		metrics.RecordSessionOperation("save", "error", time.Since(start))
		log.Error(ctx, err, log.KV{K: "msg", V: "save session"}, log.KV{K: "session_id", V: sess.ID})
		return err
	}
	metrics.RecordSessionOperation("save", "ok", time.Since(start))
	return nil
}

// cached returns a copy of a fresh cache entry and refreshes its access time.
// Entries older than the idle horizon are dropped.
func (m *Manager) cached(sessionID string, now time.Time) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.cache[sessionID]
	if !ok {
		return nil
	}
	if now.Sub(e.insertedAt) >= m.cfg.CacheIdle {
		delete(m.cache, sessionID)
		return nil
	}
	e.lastAccess = now
	return e.sess.Clone()
}

func (m *Manager) put(sess *Session, now time.Time) {
	m.mu.Lock()
	m.cache[sess.ID] = &cacheEntry{
		sess:       sess.Clone(),
		insertedAt: now,
		lastAccess: now,
	}
	size := len(m.cache)
	m.mu.Unlock()
	metrics.SetCachedSessions(size)
}
