package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Filter narrows Query results. Zero fields are ignored.
type Filter struct {
	// UserID restricts to workflows where the user is an active participant
	UserID string
	// Role restricts to workflows with an active participant in the role;
	// combined with UserID it means "this user occupying this role"
	Role Role
	// Statuses restricts to the given lifecycle statuses
	Statuses []Status
	// ChangedSince restricts to workflows modified strictly after the
	// instant; lets callers poll cheaply instead of re-reading everything
	ChangedSince time.Time
}

// Matches reports whether a workflow satisfies the filter
func (f Filter) Matches(w *Workflow) bool {
	if f.UserID != "" || f.Role != "" {
		found := false
		for _, p := range w.Participants {
			if !p.IsActive {
				continue
			}
			if f.UserID != "" && p.UserID != f.UserID {
				continue
			}
			if f.Role != "" && p.Role != f.Role {
				continue
			}
			found = true
			break
		}
		if !found {
			return false
		}
	}

	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if w.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if !f.ChangedSince.IsZero() && !w.LastModified.After(f.ChangedSince) {
		return false
	}

	return true
}

// Repository persists workflow aggregates. Implementations must perform the
// Save version check atomically with the write; the engine relies on it for
// the one-winner guarantee between racing actors.
type Repository interface {
	// Get returns the aggregate or ErrNotFound
	Get(ctx context.Context, id string) (*Workflow, error)

	// Create stores a new aggregate; fails if the ID already exists
	Create(ctx context.Context, w *Workflow) error

	// Save replaces the stored aggregate only if its version still equals
	// expectedVersion, otherwise returns a ConflictError
	Save(ctx context.Context, w *Workflow, expectedVersion int) error

	// Query returns aggregates matching the filter, oldest first
	Query(ctx context.Context, filter Filter) ([]*Workflow, error)
}

// InMemoryRepository provides an in-memory Repository for tests and
// single-process deployments
type InMemoryRepository struct {
	workflows map[string]*Workflow
	mu        sync.RWMutex
}

// NewInMemoryRepository creates an empty in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		workflows: make(map[string]*Workflow),
	}
}

// Get implements Repository
func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, exists := r.workflows[id]
	if !exists {
		return nil, fmt.Errorf("%w: workflow %s", ErrNotFound, id)
	}
	return w.Clone(), nil
}

// Create implements Repository
func (r *InMemoryRepository) Create(ctx context.Context, w *Workflow) error {
	if w == nil || w.ID == "" {
		return fmt.Errorf("%w: workflow ID required", ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[w.ID]; exists {
		return &ConflictError{WorkflowID: w.ID, ExpectedVersion: 0, ActualVersion: r.workflows[w.ID].Version}
	}
	r.workflows[w.ID] = w.Clone()
	return nil
}

// Save implements Repository with a compare-and-swap on the version
func (r *InMemoryRepository) Save(ctx context.Context, w *Workflow, expectedVersion int) error {
	if w == nil || w.ID == "" {
		return fmt.Errorf("%w: workflow ID required", ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.workflows[w.ID]
	if !exists {
		return fmt.Errorf("%w: workflow %s", ErrNotFound, w.ID)
	}
	if stored.Version != expectedVersion {
		return &ConflictError{WorkflowID: w.ID, ExpectedVersion: expectedVersion, ActualVersion: stored.Version}
	}

	r.workflows[w.ID] = w.Clone()
	return nil
}

// Query implements Repository
func (r *InMemoryRepository) Query(ctx context.Context, filter Filter) ([]*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Workflow
	for _, w := range r.workflows {
		if filter.Matches(w) {
			out = append(out, w.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
