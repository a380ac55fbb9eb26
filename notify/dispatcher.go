package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/capflow/capflow-go/workflow"
	"github.com/google/uuid"
)

// Dispatcher implements workflow.TransitionObserver: it turns committed
// transitions into stored, deduplicated notifications for the affected
// parties.
type Dispatcher struct {
	store  Store
	graph  *workflow.StageGraph
	logger *slog.Logger
	now    func() time.Time
}

// DispatcherOption configures a dispatcher
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the dispatcher logger
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithDispatcherClock injects the time source, for tests
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// NewDispatcher creates a dispatcher writing to the given store
func NewDispatcher(store Store, graph *workflow.StageGraph, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:  store,
		graph:  graph,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// OnCreated notifies the issuer that their case is open and awaiting the
// first action
func (d *Dispatcher) OnCreated(ctx context.Context, w *workflow.Workflow) error {
	n := Notification{
		Kind:          KindActionRequired,
		RecipientRole: workflow.RoleIssuer,
		Message:       fmt.Sprintf("Capital-raise case for %s opened; stage %s awaits your action", w.IssuerCompany, w.CurrentStage),
		DedupeKey:     fmt.Sprintf("%s|%s|created|%s", w.ID, w.CurrentStage, KindActionRequired),
	}
	if issuer := w.ActiveParticipant(workflow.RoleIssuer); issuer != nil {
		n.RecipientUserID = issuer.UserID
	}
	return d.append(ctx, w, n)
}

// OnTransition derives notifications from a committed transition: action
// required for the new stage's owner, an acknowledgement for the actor, and
// an issuer update. Redelivery of the same transition inserts nothing.
func (d *Dispatcher) OnTransition(ctx context.Context, w *workflow.Workflow, closed workflow.StageHistoryEntry) error {
	base := fmt.Sprintf("%s|%s|%s", w.ID, closed.Stage, closed.Action)
	actedRole := d.graph.OwnerRole(closed.Stage)

	var firstErr error
	appendOne := func(n Notification) {
		if err := d.append(ctx, w, n); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if !d.graph.IsTerminal(w.CurrentStage) {
		nextOwner := d.graph.OwnerRole(w.CurrentStage)
		n := Notification{
			Kind:          KindActionRequired,
			RecipientRole: nextOwner,
			Message:       fmt.Sprintf("Workflow for %s reached stage %s and awaits role %s", w.IssuerCompany, w.CurrentStage, nextOwner),
			DedupeKey:     fmt.Sprintf("%s|%s|%s", base, KindActionRequired, nextOwner),
		}
		if p := w.ActiveParticipant(nextOwner); p != nil {
			n.RecipientUserID = p.UserID
		}
		appendOne(n)
	}

	appendOne(Notification{
		Kind:            KindAcknowledgement,
		RecipientRole:   actedRole,
		RecipientUserID: closed.ActorID,
		Message:         fmt.Sprintf("Your action %s on stage %s was applied", closed.Action, closed.Stage),
		DedupeKey:       fmt.Sprintf("%s|%s|%s", base, KindAcknowledgement, actedRole),
	})

	issuerMsg := fmt.Sprintf("Workflow for %s moved from %s to %s", w.IssuerCompany, closed.Stage, w.CurrentStage)
	switch w.Status {
	case workflow.StatusRejected:
		issuerMsg = fmt.Sprintf("Filing for %s was rejected at stage %s: %s", w.IssuerCompany, closed.Stage, closed.Notes)
	case workflow.StatusCompleted:
		issuerMsg = fmt.Sprintf("Capital raise for %s completed settlement", w.IssuerCompany)
	}
	issuerNote := Notification{
		Kind:          KindIssuerUpdate,
		RecipientRole: workflow.RoleIssuer,
		Message:       issuerMsg,
		DedupeKey:     fmt.Sprintf("%s|%s|%s", base, KindIssuerUpdate, workflow.RoleIssuer),
	}
	if issuer := w.ActiveParticipant(workflow.RoleIssuer); issuer != nil {
		issuerNote.RecipientUserID = issuer.UserID
	}
	appendOne(issuerNote)

	return firstErr
}

// MarkRead stamps a notification as read
func (d *Dispatcher) MarkRead(ctx context.Context, id string) error {
	return d.store.MarkRead(ctx, id)
}

// ListFor returns the notifications addressed to a user acting in a role
func (d *Dispatcher) ListFor(ctx context.Context, userID string, role workflow.Role) ([]Notification, error) {
	return d.store.ListFor(ctx, userID, role)
}

func (d *Dispatcher) append(ctx context.Context, w *workflow.Workflow, n Notification) error {
	n.ID = uuid.New().String()
	n.WorkflowID = w.ID
	n.CreatedAt = d.now()

	inserted, err := d.store.Append(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	if !inserted {
		d.logger.Debug("notification deduplicated",
			"workflowId", w.ID,
			"dedupeKey", n.DedupeKey)
		return nil
	}

	d.logger.Info("notification stored",
		"workflowId", w.ID,
		"kind", n.Kind,
		"recipientRole", n.RecipientRole,
		"dedupeKey", n.DedupeKey)
	return nil
}
