package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/capflow/capflow-go/contracts"
	"github.com/google/uuid"
)

// TransitionObserver receives committed transitions as side effects. The
// notification dispatcher implements this. Observer failures are logged and
// never fail the transition.
type TransitionObserver interface {
	// OnCreated fires once when a workflow is first submitted
	OnCreated(ctx context.Context, w *Workflow) error

	// OnTransition fires after every committed stage transition with the
	// new snapshot and the history entry that was just closed
	OnTransition(ctx context.Context, w *Workflow, closed StageHistoryEntry) error
}

// Processor is the transactional core of the engine. It validates
// authorization and preconditions, applies one transition atomically
// through the repository's version check, and fans out side effects only
// after the commit.
type Processor struct {
	graph     *StageGraph
	repo      Repository
	logger    *slog.Logger
	observers []TransitionObserver
	publisher EventPublisher
	now       func() time.Time
}

// ProcessorOption configures a processor
type ProcessorOption func(*Processor)

// WithLogger sets the processor logger
func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithStageGraph replaces the default pipeline definition, mainly so SLA
// overrides built with WithStageSLA can be injected
func WithStageGraph(graph *StageGraph) ProcessorOption {
	return func(p *Processor) {
		p.graph = graph
	}
}

// WithObserver registers a transition observer
func WithObserver(observer TransitionObserver) ProcessorOption {
	return func(p *Processor) {
		p.observers = append(p.observers, observer)
	}
}

// WithEventPublisher enables transition event publishing
func WithEventPublisher(publisher EventPublisher) ProcessorOption {
	return func(p *Processor) {
		p.publisher = publisher
	}
}

// WithClock injects the time source, for tests
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		p.now = now
	}
}

// NewProcessor creates a processor over the given repository
func NewProcessor(repo Repository, opts ...ProcessorOption) *Processor {
	p := &Processor{
		graph:  NewStageGraph(),
		repo:   repo,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Graph exposes the stage graph so presentation layers share the single
// source of truth for allowed actions
func (p *Processor) Graph() *StageGraph {
	return p.graph
}

// Submit creates a new workflow from an issuer's capital-raise intent. The
// first stage opens immediately and the issuer is bound as the workflow's
// issuer participant.
func (p *Processor) Submit(ctx context.Context, intent Intent, actor Actor) (*Workflow, error) {
	if actor.Role != RoleIssuer {
		return nil, &ActionError{Reason: "only the issuer may submit a capital-raise intent", Err: ErrUnauthorized}
	}
	if actor.UserID == "" {
		return nil, &ActionError{Reason: "actor user ID required", Err: ErrValidation}
	}
	if strings.TrimSpace(intent.IssuerCompany) == "" {
		return nil, &ActionError{Reason: "issuer company required", Err: ErrValidation}
	}
	if intent.TargetAmount <= 0 {
		return nil, &ActionError{Reason: "target amount must be positive", Err: ErrValidation}
	}
	if strings.TrimSpace(intent.Currency) == "" {
		return nil, &ActionError{Reason: "currency required", Err: ErrValidation}
	}

	now := p.now()
	w := &Workflow{
		ID:             uuid.New().String(),
		IssuerCompany:  intent.IssuerCompany,
		InstrumentType: intent.InstrumentType,
		Currency:       intent.Currency,
		TargetAmount:   intent.TargetAmount,
		Status:         StatusActive,
		CurrentStage:   StageCapitalRaiseIntent,
		History: []StageHistoryEntry{{
			ID:        uuid.New().String(),
			Stage:     StageCapitalRaiseIntent,
			EnteredAt: now,
		}},
		Participants: []Participant{{
			Role:       RoleIssuer,
			UserID:     actor.UserID,
			Name:       actor.Name,
			IsActive:   true,
			AssignedAt: now,
		}},
		CreatedAt:    now,
		LastModified: now,
		Version:      1,
	}

	if err := p.repo.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	p.logger.Info("workflow submitted",
		"workflowId", w.ID,
		"issuer", w.IssuerCompany,
		"targetAmount", w.TargetAmount,
		"currency", w.Currency)

	snapshot := w.Clone()
	for _, obs := range p.observers {
		if err := obs.OnCreated(ctx, snapshot); err != nil {
			p.logger.Error("observer failed on workflow creation", "error", err, "workflowId", w.ID)
		}
	}

	return snapshot, nil
}

// Execute applies one action to a workflow as a single atomic unit. All
// checks run against a private copy of the aggregate; nothing is mutated if
// any check fails, and the commit itself is guarded by the repository's
// version check.
func (p *Processor) Execute(ctx context.Context, workflowID string, action Action, actor Actor, payload Payload, idempotencyKey string) (*Workflow, error) {
	stored, err := p.repo.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	w := stored.Clone()

	// Replay of an already-applied call returns the original result without
	// advancing again. This check runs before everything else: the prior
	// transition may have moved or even terminated the workflow, and a
	// retried delivery must still see its own success.
	if idempotencyKey != "" {
		if rec := w.idempotencyRecord(idempotencyKey); rec != nil {
			var prior Workflow
			if err := json.Unmarshal(rec.Snapshot, &prior); err != nil {
				return nil, fmt.Errorf("failed to decode idempotency snapshot: %w", err)
			}
			p.logger.Info("idempotent replay",
				"workflowId", w.ID,
				"action", action,
				"idempotencyKey", idempotencyKey)
			return &prior, nil
		}
	}

	if w.IsTerminal() {
		return nil, &ActionError{WorkflowID: w.ID, Stage: w.CurrentStage, Action: action,
			Reason: fmt.Sprintf("workflow is %s", w.Status), Err: ErrTerminal}
	}
	if w.Status == StatusPaused {
		return nil, &ActionError{WorkflowID: w.ID, Stage: w.CurrentStage, Action: action,
			Reason: "workflow is paused", Err: ErrInvalidTransition}
	}

	stage := w.CurrentStage
	next, legal := p.graph.NextStage(stage, action)
	if !legal {
		return nil, &ActionError{WorkflowID: w.ID, Stage: stage, Action: action,
			Reason: "action not allowed at this stage", Err: ErrInvalidTransition}
	}

	owner := p.graph.OwnerRole(stage)
	if actor.Role != owner {
		return nil, &ActionError{WorkflowID: w.ID, Stage: stage, Action: action,
			Reason: fmt.Sprintf("stage is owned by role %s", owner), Err: ErrUnauthorized}
	}
	assigned := w.ActiveParticipant(owner)
	if assigned != nil && assigned.UserID != actor.UserID {
		return nil, &ActionError{WorkflowID: w.ID, Stage: stage, Action: action,
			Reason: "acting identity does not hold this role", Err: ErrUnauthorized}
	}

	// Rejection skips document gating: a filing can be thrown out with the
	// paperwork still pending.
	if next != StageRejected && !w.prerequisitesMet(p.graph, stage) {
		return nil, &ActionError{WorkflowID: w.ID, Stage: stage, Action: action,
			Reason: "required documents not all approved", Err: ErrValidation}
	}

	if action == ActionRejectFiling && strings.TrimSpace(payload.Notes) == "" {
		return nil, &ActionError{WorkflowID: w.ID, Stage: stage, Action: action,
			Reason: "rejection reason required", Err: ErrValidation}
	}
	if action == ActionCreateISIN {
		if w.VirtualISIN != "" {
			return nil, &ActionError{WorkflowID: w.ID, Stage: stage, Action: action,
				Reason: "virtual ISIN already assigned", Err: ErrInvalidTransition}
		}
		if payload.ISIN != "" && len(payload.ISIN) != isinLength {
			return nil, &ActionError{WorkflowID: w.ID, Stage: stage, Action: action,
				Reason: fmt.Sprintf("ISIN must be %d characters", isinLength), Err: ErrValidation}
		}
	}

	now := p.now()
	entry := w.OpenEntry()
	if entry == nil {
		return nil, fmt.Errorf("workflow %s is active but has no open stage entry", w.ID)
	}
	entry.CompletedAt = &now
	entry.ActorID = actor.UserID
	entry.Action = action
	if payload.Notes != "" {
		entry.Notes = payload.Notes
	}
	closed := *entry

	if assigned == nil {
		w.bindParticipant(owner, actor, now)
	}

	switch next {
	case StageRejected:
		w.Status = StatusRejected
	case StageCompleted:
		w.Status = StatusCompleted
	default:
		w.History = append(w.History, StageHistoryEntry{
			ID:        uuid.New().String(),
			Stage:     next,
			EnteredAt: now,
		})
	}
	w.CurrentStage = next

	if action == ActionCreateISIN {
		if payload.ISIN != "" {
			w.VirtualISIN = payload.ISIN
		} else {
			w.VirtualISIN = generateVirtualISIN()
		}
	}

	oldVersion := w.Version
	w.LastModified = now
	w.Version++

	if idempotencyKey != "" {
		snapshot, err := json.Marshal(w)
		if err != nil {
			return nil, fmt.Errorf("failed to record idempotency snapshot: %w", err)
		}
		w.Idempotency = append(w.Idempotency, IdempotencyRecord{
			Key:       idempotencyKey,
			Action:    action,
			AppliedAt: now,
			Snapshot:  snapshot,
		})
	}

	if err := p.repo.Save(ctx, w, oldVersion); err != nil {
		return nil, err
	}

	p.logger.Info("workflow transition committed",
		"workflowId", w.ID,
		"action", action,
		"fromStage", closed.Stage,
		"toStage", w.CurrentStage,
		"actorId", actor.UserID,
		"version", w.Version)

	snapshot := w.Clone()
	for _, obs := range p.observers {
		if err := obs.OnTransition(ctx, snapshot, closed); err != nil {
			p.logger.Error("transition observer failed", "error", err, "workflowId", w.ID)
		}
	}
	p.publishTransitionEvent(ctx, snapshot, closed)

	return snapshot, nil
}

// Pause suspends an active workflow without closing the open stage entry.
// Pausing an already-paused workflow is a no-op.
func (p *Processor) Pause(ctx context.Context, workflowID string, actor Actor, notes string) (*Workflow, error) {
	return p.setPaused(ctx, workflowID, actor, notes, true)
}

// Resume re-enables actions on a paused workflow. The existing open entry
// is reused; no duplicate history row is created. Resuming an active
// workflow is a no-op.
func (p *Processor) Resume(ctx context.Context, workflowID string, actor Actor) (*Workflow, error) {
	return p.setPaused(ctx, workflowID, actor, "", false)
}

func (p *Processor) setPaused(ctx context.Context, workflowID string, actor Actor, notes string, paused bool) (*Workflow, error) {
	stored, err := p.repo.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	w := stored.Clone()

	if w.IsTerminal() {
		return nil, &ActionError{WorkflowID: w.ID, Stage: w.CurrentStage,
			Reason: fmt.Sprintf("workflow is %s", w.Status), Err: ErrTerminal}
	}

	owner := p.graph.OwnerRole(w.CurrentStage)
	if actor.Role != RoleIssuer && actor.Role != owner {
		return nil, &ActionError{WorkflowID: w.ID, Stage: w.CurrentStage,
			Reason: "only the issuer or the current stage owner may pause or resume", Err: ErrUnauthorized}
	}
	if assigned := w.ActiveParticipant(actor.Role); assigned != nil && assigned.UserID != actor.UserID {
		return nil, &ActionError{WorkflowID: w.ID, Stage: w.CurrentStage,
			Reason: "acting identity does not hold this role", Err: ErrUnauthorized}
	}

	if paused == (w.Status == StatusPaused) {
		return w, nil
	}

	oldVersion := w.Version
	if paused {
		w.Status = StatusPaused
	} else {
		w.Status = StatusActive
	}
	w.LastModified = p.now()
	w.Version++

	if err := p.repo.Save(ctx, w, oldVersion); err != nil {
		return nil, err
	}

	p.logger.Info("workflow pause state changed",
		"workflowId", w.ID,
		"status", w.Status,
		"actorId", actor.UserID,
		"notes", notes)

	return w.Clone(), nil
}

// Get returns an immutable snapshot of a workflow
func (p *Processor) Get(ctx context.Context, workflowID string) (*Workflow, error) {
	return p.repo.Get(ctx, workflowID)
}

// ListForParticipant returns workflows where the user actively occupies the
// role, oldest first
func (p *Processor) ListForParticipant(ctx context.Context, userID string, role Role) ([]*Workflow, error) {
	return p.repo.Query(ctx, Filter{UserID: userID, Role: role})
}

// ChangedSince returns workflows modified after the given instant, letting
// callers choose cheap polling over push
func (p *Processor) ChangedSince(ctx context.Context, since time.Time) ([]*Workflow, error) {
	return p.repo.Query(ctx, Filter{ChangedSince: since})
}

// IsOverdue reports whether the open stage has exceeded its SLA at the
// given instant. Paused and terminal workflows are never overdue. The
// engine only answers the question; acting on a breach belongs to an
// external scheduler.
func (p *Processor) IsOverdue(ctx context.Context, workflowID string, now time.Time) (bool, error) {
	w, err := p.repo.Get(ctx, workflowID)
	if err != nil {
		return false, err
	}

	if w.Status != StatusActive {
		return false, nil
	}
	entry := w.OpenEntry()
	if entry == nil {
		return false, nil
	}

	sla := p.graph.SLA(entry.Stage)
	if sla <= 0 {
		return false, nil
	}
	return now.Sub(entry.EnteredAt) > sla, nil
}

func (p *Processor) publishTransitionEvent(ctx context.Context, w *Workflow, closed StageHistoryEntry) {
	if p.publisher == nil {
		return
	}

	var event contracts.Event
	switch w.Status {
	case StatusCompleted:
		event = NewWorkflowCompletedEvent(w)
	case StatusRejected:
		event = NewWorkflowRejectedEvent(w, closed)
	default:
		event = NewWorkflowAdvancedEvent(w, closed)
	}

	if err := p.publisher.PublishEvent(ctx, event); err != nil {
		p.logger.Error("failed to publish transition event",
			"error", err,
			"workflowId", w.ID,
			"eventType", event.GetType())
	}
}

const isinLength = 12

// generateVirtualISIN synthesizes a simulation-only identifier in ISIN
// shape: RW country prefix plus ten characters from a fresh UUID.
func generateVirtualISIN() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return "RW" + raw[:isinLength-2]
}
