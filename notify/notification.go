package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/capflow/capflow-go/workflow"
)

// Kind classifies why a notification was produced
type Kind string

const (
	KindActionRequired  Kind = "action_required"
	KindAcknowledgement Kind = "acknowledgement"
	KindIssuerUpdate    Kind = "issuer_update"
)

// Notification is one message derived from a workflow transition
type Notification struct {
	ID              string        `json:"id"`
	WorkflowID      string        `json:"workflowId"`
	Kind            Kind          `json:"kind"`
	RecipientRole   workflow.Role `json:"recipientRole"`
	RecipientUserID string        `json:"recipientUserId,omitempty"`
	Message         string        `json:"message"`
	CreatedAt       time.Time     `json:"createdAt"`
	ReadAt          *time.Time    `json:"readAt,omitempty"`
	DedupeKey       string        `json:"dedupeKey"`
}

// Store persists notifications. Append must be idempotent on the dedupe
// key: re-appending an existing key is not an error, it just inserts
// nothing.
type Store interface {
	// Append stores a notification unless its dedupe key already exists.
	// The bool reports whether a row was actually inserted.
	Append(ctx context.Context, n Notification) (bool, error)

	// MarkRead stamps the read time; workflow.ErrNotFound for unknown IDs
	MarkRead(ctx context.Context, id string) error

	// ListFor returns notifications addressed to the user in the role,
	// newest first
	ListFor(ctx context.Context, userID string, role workflow.Role) ([]Notification, error)
}

// InMemoryStore provides an in-memory Store for tests and single-process
// deployments
type InMemoryStore struct {
	notifications []Notification
	byDedupeKey   map[string]string
	byID          map[string]int
	now           func() time.Time
	mu            sync.RWMutex
}

// NewInMemoryStore creates an empty in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byDedupeKey: make(map[string]string),
		byID:        make(map[string]int),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Append implements Store
func (s *InMemoryStore) Append(ctx context.Context, n Notification) (bool, error) {
	if n.ID == "" || n.DedupeKey == "" {
		return false, fmt.Errorf("%w: notification ID and dedupe key required", workflow.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byDedupeKey[n.DedupeKey]; exists {
		return false, nil
	}

	s.byDedupeKey[n.DedupeKey] = n.ID
	s.byID[n.ID] = len(s.notifications)
	s.notifications = append(s.notifications, n)
	return true, nil
}

// MarkRead implements Store
func (s *InMemoryStore) MarkRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, exists := s.byID[id]
	if !exists {
		return fmt.Errorf("%w: notification %s", workflow.ErrNotFound, id)
	}
	if s.notifications[idx].ReadAt == nil {
		now := s.now()
		s.notifications[idx].ReadAt = &now
	}
	return nil
}

// ListFor implements Store
func (s *InMemoryStore) ListFor(ctx context.Context, userID string, role workflow.Role) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for _, n := range s.notifications {
		if n.RecipientRole != role {
			continue
		}
		if n.RecipientUserID != "" && n.RecipientUserID != userID {
			continue
		}
		out = append(out, n)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
