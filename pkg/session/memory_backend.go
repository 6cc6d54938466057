package session

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend implements StorageBackend in process memory.
// Expired sessions are dropped lazily on access, mirroring the TTL deletion
// of the durable backends. It is meant for tests and single-node tooling.
type MemoryBackend struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
	closed   bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// WithClock overrides the clock used for expiry checks.
func (b *MemoryBackend) WithClock(now func() time.Time) *MemoryBackend {
	b.now = now
	return b
}

// CreateSession inserts a new session.
func (b *MemoryBackend) CreateSession(ctx context.Context, sess *Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrStorageClosed
	}
	if existing, ok := b.sessions[sess.ID]; ok && !existing.Expired(b.now()) {
		return ErrSessionExists
	}
	b.sessions[sess.ID] = sess.Clone()
	return nil
}

// FindSession retrieves a live session by ID.
func (b *MemoryBackend) FindSession(ctx context.Context, sessionID string, statuses ...Status) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrStorageClosed
	}
	sess, ok := b.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.Expired(b.now()) {
		delete(b.sessions, sessionID)
		return nil, ErrSessionNotFound
	}
	if !statusAllowed(sess.Status, statuses) {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// SaveSession replaces the stored session.
func (b *MemoryBackend) SaveSession(ctx context.Context, sess *Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrStorageClosed
	}
	b.sessions[sess.ID] = sess.Clone()
	return nil
}

// CountByStatus aggregates live sessions by status.
func (b *MemoryBackend) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	sessions, err := b.live(func(*Session) bool { return true })
	if err != nil {
		return nil, err
	}
	return aggregate(sessions), nil
}

// ListByUser returns the user's live sessions, newest activity first.
func (b *MemoryBackend) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	sessions, err := b.live(func(s *Session) bool { return s.UserID == userID })
	if err != nil {
		return nil, err
	}
	sortByActivity(sessions)
	return sessions, nil
}

func (b *MemoryBackend) live(keep func(*Session) bool) ([]*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrStorageClosed
	}
	now := b.now()
	out := make([]*Session, 0, len(b.sessions))
	for id, s := range b.sessions {
		if s.Expired(now) {
			delete(b.sessions, id)
			continue
		}
		if keep(s) {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

// Len returns the number of stored sessions, expired ones included.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Ping reports whether the backend is open.
func (b *MemoryBackend) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

// Close marks the backend closed.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
