package prompt

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrTemplateNotFound is returned when no template has the given ID.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrTemplateExists is returned when creating a template whose ID is taken.
	ErrTemplateExists = errors.New("template already exists")
)

// Query selects the candidate templates of a render.
type Query struct {
	AgentName string
	Category  Category
	// TaskType additionally restricts the task types when set.
	TaskType string
}

// Matches reports whether t satisfies the query. Only active templates
// match.
func (q Query) Matches(t *Template) bool {
	return t.Status == StatusActive &&
		t.Category == q.Category &&
		t.Applicability.MatchesAgent(q.AgentName) &&
		t.Applicability.MatchesTaskType(q.TaskType)
}

// Store is the durable template store.
type Store interface {
	// Create inserts a template. Returns ErrTemplateExists if the ID is taken.
	Create(ctx context.Context, t *Template) error

	// Find returns the templates matching q ordered by descending
	// performance score, then descending success rate.
	Find(ctx context.Context, q Query) ([]*Template, error)

	// Count returns the number of stored templates.
	Count(ctx context.Context) (int64, error)

	// Get returns the template with the given ID or ErrTemplateNotFound.
	Get(ctx context.Context, id string) (*Template, error)

	// UpdateMetrics replaces the metrics of a template.
	UpdateMetrics(ctx context.Context, id string, m Metrics) error

	// Ping checks connectivity with the underlying store.
	Ping(ctx context.Context) error
}

// sortByPerformance orders templates by descending performance score, then
// descending success rate, keeping the input order otherwise.
func sortByPerformance(templates []*Template) {
	sort.SliceStable(templates, func(i, j int) bool {
		a, b := templates[i].Metrics, templates[j].Metrics
		if a.PerformanceScore != b.PerformanceScore {
			return a.PerformanceScore > b.PerformanceScore
		}
		return a.SuccessRate > b.SuccessRate
	})
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]*Template
	order     []string
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: make(map[string]*Template),
		now:       time.Now,
	}
}

// Create inserts a copy of t.
func (s *MemoryStore) Create(ctx context.Context, t *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[t.ID]; ok {
		return ErrTemplateExists
	}
	c := t.Clone()
	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.templates[t.ID] = c
	s.order = append(s.order, t.ID)
	return nil
}

// Find returns copies of the matching templates.
func (s *MemoryStore) Find(ctx context.Context, q Query) ([]*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Template
	for _, id := range s.order {
		if t := s.templates[id]; q.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	sortByPerformance(out)
	return out, nil
}

// Count returns the number of stored templates.
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.templates)), nil
}

// Get returns a copy of the template.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return t.Clone(), nil
}

// UpdateMetrics replaces the metrics of a template.
func (s *MemoryStore) UpdateMetrics(ctx context.Context, id string, m Metrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[id]
	if !ok {
		return ErrTemplateNotFound
	}
	t.Metrics = m
	t.UpdatedAt = s.now()
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
