package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrInvalidPathComponent is returned when a path component contains unsafe characters.
var ErrInvalidPathComponent = errors.New("invalid path component: contains path separator or traversal sequence")

// validatePathComponent checks that a string is safe to use as a path component.
// It rejects empty strings, path separators, and traversal sequences.
func validatePathComponent(s string) error {
	if s == "" {
		return errors.New("path component cannot be empty")
	}
	if strings.ContainsAny(s, `/\`) || strings.Contains(s, "..") {
		return ErrInvalidPathComponent
	}
	return nil
}

// FileBackend implements StorageBackend using one JSON document per session.
// Storage layout:
//
//	~/.scuti/sessions/
//	  ├── <session-id>.json
//	  └── <session-id>.json
//
// Expired documents are removed whenever a read or scan reaches them.
type FileBackend struct {
	baseDir string
	now     func() time.Time
	mu      sync.RWMutex
	closed  bool
}

// NewFileBackend creates a new file-based storage backend.
// If baseDir is empty, uses ~/.scuti/sessions.
func NewFileBackend(baseDir string) (*FileBackend, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".scuti", "sessions")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &FileBackend{
		baseDir: baseDir,
		now:     time.Now,
	}, nil
}

func (f *FileBackend) path(sessionID string) string {
	return filepath.Join(f.baseDir, sessionID+".json")
}

// CreateSession writes a new session document.
func (f *FileBackend) CreateSession(ctx context.Context, sess *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStorageClosed
	}
	if err := validatePathComponent(sess.ID); err != nil {
		return fmt.Errorf("invalid session ID: %w", err)
	}

	existing, err := f.read(sess.ID)
	if err == nil && !existing.Expired(f.now()) {
		return ErrSessionExists
	}
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	return f.write(sess)
}

// FindSession reads a live session document.
func (f *FileBackend) FindSession(ctx context.Context, sessionID string, statuses ...Status) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrStorageClosed
	}
	if err := validatePathComponent(sessionID); err != nil {
		return nil, fmt.Errorf("invalid session ID: %w", err)
	}

	sess, err := f.read(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Expired(f.now()) {
		_ = os.Remove(f.path(sessionID))
		return nil, ErrSessionNotFound
	}
	if !statusAllowed(sess.Status, statuses) {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// SaveSession overwrites the session document.
func (f *FileBackend) SaveSession(ctx context.Context, sess *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStorageClosed
	}
	if err := validatePathComponent(sess.ID); err != nil {
		return fmt.Errorf("invalid session ID: %w", err)
	}
	return f.write(sess)
}

// CountByStatus aggregates every live document by status.
func (f *FileBackend) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	sessions, err := f.scan(func(*Session) bool { return true })
	if err != nil {
		return nil, err
	}
	return aggregate(sessions), nil
}

// ListByUser returns a user's sessions, newest activity first.
func (f *FileBackend) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	sessions, err := f.scan(func(s *Session) bool { return s.UserID == userID })
	if err != nil {
		return nil, err
	}
	sortByActivity(sessions)
	return sessions, nil
}

// scan loads every document, deleting the expired ones.
func (f *FileBackend) scan(keep func(*Session) bool) ([]*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrStorageClosed
	}

	entries, err := os.ReadDir(f.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read base directory: %w", err)
	}

	now := f.now()
	var out []*Session
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		sess, err := f.read(id)
		if err != nil {
			// Skip unreadable documents
			continue
		}
		if sess.Expired(now) {
			_ = os.Remove(f.path(id))
			continue
		}
		if keep(sess) {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (f *FileBackend) read(sessionID string) (*Session, error) {
	data, err := os.ReadFile(f.path(sessionID)) // #nosec G304 - session ID validated to prevent traversal
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("read session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	return &sess, nil
}

// write stores the document through a temp file so readers never observe a
// partial write.
func (f *FileBackend) write(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	tmp := f.path(sess.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, f.path(sess.ID)); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}

// Ping reports whether the base directory is reachable.
func (f *FileBackend) Ping(ctx context.Context) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return ErrStorageClosed
	}
	if _, err := os.Stat(f.baseDir); err != nil {
		return fmt.Errorf("stat base directory: %w", err)
	}
	return nil
}

// Close marks the backend as closed.
func (f *FileBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
