package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/capflow/capflow-go/workflow"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Append(ctx context.Context, n Notification) (bool, error) {
	args := m.Called(ctx, n)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) MarkRead(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockStore) ListFor(ctx context.Context, userID string, role workflow.Role) ([]Notification, error) {
	args := m.Called(ctx, userID, role)
	return args.Get(0).([]Notification), args.Error(1)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleWorkflow(stage workflow.Stage, status workflow.Status) *workflow.Workflow {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	return &workflow.Workflow{
		ID:            "wf-1",
		IssuerCompany: "Green Energy Rwanda Ltd",
		Status:        status,
		CurrentStage:  stage,
		Participants: []workflow.Participant{
			{Role: workflow.RoleIssuer, UserID: "user-issuer", IsActive: true},
			{Role: workflow.RoleInvestmentBank, UserID: "user-ib", IsActive: true},
			{Role: workflow.RoleRegulator, UserID: "user-cma", IsActive: true},
		},
		CreatedAt:    now,
		LastModified: now,
		Version:      3,
	}
}

func newTestDispatcher() (*Dispatcher, *InMemoryStore) {
	store := NewInMemoryStore()
	d := NewDispatcher(store, workflow.NewStageGraph(), WithDispatcherLogger(quietLogger()))
	return d, store
}

func TestDispatcherOnCreated(t *testing.T) {
	ctx := context.Background()

	t.Run("notifies the issuer that the case is open", func(t *testing.T) {
		d, store := newTestDispatcher()
		w := sampleWorkflow(workflow.StageCapitalRaiseIntent, workflow.StatusActive)

		require.NoError(t, d.OnCreated(ctx, w))

		got, err := store.ListFor(ctx, "user-issuer", workflow.RoleIssuer)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, KindActionRequired, got[0].Kind)
		assert.Equal(t, "wf-1", got[0].WorkflowID)
		assert.Contains(t, got[0].Message, "Green Energy Rwanda Ltd")
	})

	t.Run("redelivery inserts nothing", func(t *testing.T) {
		d, store := newTestDispatcher()
		w := sampleWorkflow(workflow.StageCapitalRaiseIntent, workflow.StatusActive)

		require.NoError(t, d.OnCreated(ctx, w))
		require.NoError(t, d.OnCreated(ctx, w))

		got, err := store.ListFor(ctx, "user-issuer", workflow.RoleIssuer)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}

func TestDispatcherOnTransition(t *testing.T) {
	ctx := context.Background()
	closed := workflow.StageHistoryEntry{
		ID:      "entry-4",
		Stage:   workflow.StageProspectusBuilding,
		Action:  workflow.ActionSubmitProspectus,
		ActorID: "user-ib",
	}

	t.Run("produces action-required, acknowledgement, and issuer update", func(t *testing.T) {
		d, store := newTestDispatcher()
		w := sampleWorkflow(workflow.StageRegulatoryReview, workflow.StatusActive)

		require.NoError(t, d.OnTransition(ctx, w, closed))

		regulator, err := store.ListFor(ctx, "user-cma", workflow.RoleRegulator)
		require.NoError(t, err)
		require.Len(t, regulator, 1)
		assert.Equal(t, KindActionRequired, regulator[0].Kind)
		assert.Contains(t, regulator[0].Message, string(workflow.StageRegulatoryReview))

		bank, err := store.ListFor(ctx, "user-ib", workflow.RoleInvestmentBank)
		require.NoError(t, err)
		require.Len(t, bank, 1)
		assert.Equal(t, KindAcknowledgement, bank[0].Kind)

		issuer, err := store.ListFor(ctx, "user-issuer", workflow.RoleIssuer)
		require.NoError(t, err)
		require.Len(t, issuer, 1)
		assert.Equal(t, KindIssuerUpdate, issuer[0].Kind)
	})

	t.Run("redelivering the same transition inserts nothing", func(t *testing.T) {
		d, store := newTestDispatcher()
		w := sampleWorkflow(workflow.StageRegulatoryReview, workflow.StatusActive)

		require.NoError(t, d.OnTransition(ctx, w, closed))
		require.NoError(t, d.OnTransition(ctx, w, closed))

		issuer, err := store.ListFor(ctx, "user-issuer", workflow.RoleIssuer)
		require.NoError(t, err)
		assert.Len(t, issuer, 1)
	})

	t.Run("rejection sends no action-required and carries the reason", func(t *testing.T) {
		d, store := newTestDispatcher()
		w := sampleWorkflow(workflow.StageRejected, workflow.StatusRejected)
		rejection := workflow.StageHistoryEntry{
			Stage:   workflow.StageRegulatoryReview,
			Action:  workflow.ActionRejectFiling,
			ActorID: "user-cma",
			Notes:   "incomplete disclosures",
		}

		require.NoError(t, d.OnTransition(ctx, w, rejection))

		issuer, err := store.ListFor(ctx, "user-issuer", workflow.RoleIssuer)
		require.NoError(t, err)
		require.Len(t, issuer, 1)
		assert.Equal(t, KindIssuerUpdate, issuer[0].Kind)
		assert.Contains(t, issuer[0].Message, "incomplete disclosures")

		regulator, err := store.ListFor(ctx, "user-cma", workflow.RoleRegulator)
		require.NoError(t, err)
		require.Len(t, regulator, 1)
		assert.Equal(t, KindAcknowledgement, regulator[0].Kind)
	})

	t.Run("store failure surfaces to the caller", func(t *testing.T) {
		store := &mockStore{}
		store.On("Append", mock.Anything, mock.Anything).Return(false, errors.New("store down"))
		d := NewDispatcher(store, workflow.NewStageGraph(), WithDispatcherLogger(quietLogger()))
		w := sampleWorkflow(workflow.StageRegulatoryReview, workflow.StatusActive)

		err := d.OnTransition(ctx, w, closed)

		assert.Error(t, err)
		store.AssertExpectations(t)
	})

	t.Run("vacant next role still gets a role-addressed notification", func(t *testing.T) {
		d, store := newTestDispatcher()
		w := sampleWorkflow(workflow.StageListingApproval, workflow.StatusActive)
		approval := workflow.StageHistoryEntry{
			Stage:   workflow.StageRegulatoryReview,
			Action:  workflow.ActionApproveFiling,
			ActorID: "user-cma",
		}

		require.NoError(t, d.OnTransition(ctx, w, approval))

		// no exchange participant is bound yet; anyone in the role sees it
		exchange, err := store.ListFor(ctx, "user-anyone", workflow.RoleExchange)
		require.NoError(t, err)
		require.Len(t, exchange, 1)
		assert.Equal(t, KindActionRequired, exchange[0].Kind)
		assert.Empty(t, exchange[0].RecipientUserID)
	})
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	note := func(id, key, user string, role workflow.Role, at time.Time) Notification {
		return Notification{
			ID:              id,
			WorkflowID:      "wf-1",
			Kind:            KindActionRequired,
			RecipientRole:   role,
			RecipientUserID: user,
			Message:         "m",
			CreatedAt:       at,
			DedupeKey:       key,
		}
	}

	t.Run("Append dedupes on the key", func(t *testing.T) {
		store := NewInMemoryStore()

		inserted, err := store.Append(ctx, note("n1", "k1", "u1", workflow.RoleIssuer, base))
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = store.Append(ctx, note("n2", "k1", "u1", workflow.RoleIssuer, base))
		require.NoError(t, err)
		assert.False(t, inserted)
	})

	t.Run("Append requires ID and dedupe key", func(t *testing.T) {
		store := NewInMemoryStore()

		_, err := store.Append(ctx, Notification{ID: "n1"})

		assert.ErrorIs(t, err, workflow.ErrValidation)
	})

	t.Run("ListFor filters by role and user, newest first", func(t *testing.T) {
		store := NewInMemoryStore()
		_, err := store.Append(ctx, note("n1", "k1", "u1", workflow.RoleIssuer, base))
		require.NoError(t, err)
		_, err = store.Append(ctx, note("n2", "k2", "u1", workflow.RoleIssuer, base.Add(time.Minute)))
		require.NoError(t, err)
		_, err = store.Append(ctx, note("n3", "k3", "u2", workflow.RoleIssuer, base))
		require.NoError(t, err)
		_, err = store.Append(ctx, note("n4", "k4", "", workflow.RoleRegulator, base))
		require.NoError(t, err)

		got, err := store.ListFor(ctx, "u1", workflow.RoleIssuer)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "n2", got[0].ID)
		assert.Equal(t, "n1", got[1].ID)

		// role-addressed notifications reach every user acting in the role
		got, err = store.ListFor(ctx, "u-any", workflow.RoleRegulator)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("MarkRead stamps once and unknown IDs fail", func(t *testing.T) {
		store := NewInMemoryStore()
		_, err := store.Append(ctx, note("n1", "k1", "u1", workflow.RoleIssuer, base))
		require.NoError(t, err)

		require.NoError(t, store.MarkRead(ctx, "n1"))
		got, err := store.ListFor(ctx, "u1", workflow.RoleIssuer)
		require.NoError(t, err)
		require.NotNil(t, got[0].ReadAt)

		stamp := *got[0].ReadAt
		require.NoError(t, store.MarkRead(ctx, "n1"))
		got, _ = store.ListFor(ctx, "u1", workflow.RoleIssuer)
		assert.Equal(t, stamp, *got[0].ReadAt)

		assert.ErrorIs(t, store.MarkRead(ctx, "missing"), workflow.ErrNotFound)
	})
}
