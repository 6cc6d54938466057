package session

import (
	"context"
	"errors"
	"slices"
	"sort"
)

// Common errors for storage operations.
var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when creating a session whose ID is taken.
	ErrSessionExists = errors.New("session already exists")
	// ErrStorageClosed is returned when operating on a closed storage backend.
	ErrStorageClosed = errors.New("storage backend is closed")
)

// StorageBackend abstracts durable session persistence.
// Implementations must be safe for concurrent use and must delete sessions
// once their ExpiresAt passes, whatever the state of in-process caches.
type StorageBackend interface {
	// CreateSession inserts a new session document.
	// Returns ErrSessionExists if the ID is already stored.
	CreateSession(ctx context.Context, sess *Session) error

	// FindSession retrieves a session by ID whose status is one of statuses.
	// Returns ErrSessionNotFound when no such session is stored.
	FindSession(ctx context.Context, sessionID string, statuses ...Status) (*Session, error)

	// SaveSession replaces the stored session document.
	SaveSession(ctx context.Context, sess *Session) error

	// CountByStatus aggregates session count and mean interaction log length
	// per status.
	CountByStatus(ctx context.Context) ([]StatusCount, error)

	// ListByUser returns the sessions of a user ordered by most recent
	// activity first.
	ListByUser(ctx context.Context, userID string) ([]*Session, error)

	// Ping checks connectivity with the underlying store.
	Ping(ctx context.Context) error

	// Close releases any resources held by the backend.
	Close() error
}

// statusAllowed reports whether st is in statuses; an empty list allows all.
func statusAllowed(st Status, statuses []Status) bool {
	return len(statuses) == 0 || slices.Contains(statuses, st)
}

// aggregate computes the per-status counts for backends that scan documents.
func aggregate(sessions []*Session) []StatusCount {
	type acc struct {
		count        int
		interactions int
	}
	byStatus := make(map[Status]*acc)
	for _, s := range sessions {
		a, ok := byStatus[s.Status]
		if !ok {
			a = &acc{}
			byStatus[s.Status] = a
		}
		a.count++
		a.interactions += len(s.Interactions)
	}
	out := make([]StatusCount, 0, len(byStatus))
	for st, a := range byStatus {
		out = append(out, StatusCount{
			Status:          st,
			Count:           a.count,
			AvgInteractions: float64(a.interactions) / float64(a.count),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out
}

// sortByActivity orders sessions newest activity first.
func sortByActivity(sessions []*Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
}
