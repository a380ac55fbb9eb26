package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedWorkflow(id, userID string, role Role, status Status, modified time.Time) *Workflow {
	return &Workflow{
		ID:           id,
		Status:       status,
		CurrentStage: StageCapitalRaiseIntent,
		Participants: []Participant{{Role: role, UserID: userID, IsActive: true}},
		CreatedAt:    modified,
		LastModified: modified,
		Version:      1,
	}
}

func TestInMemoryRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Get returns not found for unknown IDs", func(t *testing.T) {
		repo := NewInMemoryRepository()

		_, err := repo.Get(ctx, "missing")

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Create then Get round-trips a deep copy", func(t *testing.T) {
		repo := NewInMemoryRepository()
		w := storedWorkflow("wf-1", "u1", RoleIssuer, StatusActive, now)

		require.NoError(t, repo.Create(ctx, w))

		got, err := repo.Get(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, w.ID, got.ID)

		// mutating the returned copy must not touch the stored aggregate
		got.Participants[0].UserID = "hijacked"
		again, err := repo.Get(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, "u1", again.Participants[0].UserID)
	})

	t.Run("Create refuses duplicate IDs", func(t *testing.T) {
		repo := NewInMemoryRepository()
		w := storedWorkflow("wf-1", "u1", RoleIssuer, StatusActive, now)

		require.NoError(t, repo.Create(ctx, w))
		err := repo.Create(ctx, w)

		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("Save applies only on the expected version", func(t *testing.T) {
		repo := NewInMemoryRepository()
		w := storedWorkflow("wf-1", "u1", RoleIssuer, StatusActive, now)
		require.NoError(t, repo.Create(ctx, w))

		updated := w.Clone()
		updated.Version = 2
		require.NoError(t, repo.Save(ctx, updated, 1))

		stale := w.Clone()
		stale.Version = 2
		err := repo.Save(ctx, stale, 1)
		assert.ErrorIs(t, err, ErrConflict)

		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, 1, conflict.ExpectedVersion)
		assert.Equal(t, 2, conflict.ActualVersion)
	})

	t.Run("Save on a missing workflow fails not found", func(t *testing.T) {
		repo := NewInMemoryRepository()
		w := storedWorkflow("wf-1", "u1", RoleIssuer, StatusActive, now)

		err := repo.Save(ctx, w, 1)

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("racing writers from the same version produce exactly one winner", func(t *testing.T) {
		repo := NewInMemoryRepository()
		w := storedWorkflow("wf-1", "u1", RoleIssuer, StatusActive, now)
		require.NoError(t, repo.Create(ctx, w))

		const writers = 8
		var wg sync.WaitGroup
		errs := make([]error, writers)

		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				attempt := w.Clone()
				attempt.Version = 2
				errs[i] = repo.Save(ctx, attempt, 1)
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, ErrConflict)
			}
		}
		assert.Equal(t, 1, winners)
	})
}

func TestInMemoryRepositoryQuery(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	repo := NewInMemoryRepository()
	require.NoError(t, repo.Create(ctx, storedWorkflow("wf-a", "u1", RoleIssuer, StatusActive, base)))
	require.NoError(t, repo.Create(ctx, storedWorkflow("wf-b", "u2", RoleRegulator, StatusActive, base.Add(time.Hour))))
	require.NoError(t, repo.Create(ctx, storedWorkflow("wf-c", "u1", RoleIssuer, StatusRejected, base.Add(2*time.Hour))))

	t.Run("empty filter returns everything oldest first", func(t *testing.T) {
		out, err := repo.Query(ctx, Filter{})
		require.NoError(t, err)

		require.Len(t, out, 3)
		assert.Equal(t, "wf-a", out[0].ID)
		assert.Equal(t, "wf-c", out[2].ID)
	})

	t.Run("filters by user and role together", func(t *testing.T) {
		out, err := repo.Query(ctx, Filter{UserID: "u1", Role: RoleIssuer})
		require.NoError(t, err)
		assert.Len(t, out, 2)

		out, err = repo.Query(ctx, Filter{UserID: "u1", Role: RoleRegulator})
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("filters by status", func(t *testing.T) {
		out, err := repo.Query(ctx, Filter{Statuses: []Status{StatusRejected}})
		require.NoError(t, err)

		require.Len(t, out, 1)
		assert.Equal(t, "wf-c", out[0].ID)
	})

	t.Run("ChangedSince is a strict cutoff", func(t *testing.T) {
		out, err := repo.Query(ctx, Filter{ChangedSince: base})
		require.NoError(t, err)
		assert.Len(t, out, 2)

		out, err = repo.Query(ctx, Filter{ChangedSince: base.Add(3 * time.Hour)})
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("inactive participants do not match", func(t *testing.T) {
		w := storedWorkflow("wf-d", "u9", RoleBroker, StatusActive, base)
		w.Participants[0].IsActive = false
		require.NoError(t, repo.Create(ctx, w))

		out, err := repo.Query(ctx, Filter{UserID: "u9"})
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}
