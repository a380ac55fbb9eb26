package workflow

import (
	"context"

	"github.com/capflow/capflow-go/contracts"
)

// EventPublisher delivers transition events to external consumers. Delivery
// is best-effort: publish failures are logged and never roll back the
// already-committed transition.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event contracts.Event) error
}

// WorkflowAdvancedEvent is published when a workflow moves to its next stage
type WorkflowAdvancedEvent struct {
	contracts.BaseEvent

	WorkflowID    string `json:"workflowId"`
	IssuerCompany string `json:"issuerCompany"`
	FromStage     Stage  `json:"fromStage"`
	ToStage       Stage  `json:"toStage"`
	Action        Action `json:"action"`
	ActorID       string `json:"actorId"`
	Version       int    `json:"version"`
}

// NewWorkflowAdvancedEvent creates an advancement event from a committed
// transition
func NewWorkflowAdvancedEvent(w *Workflow, closed StageHistoryEntry) *WorkflowAdvancedEvent {
	return &WorkflowAdvancedEvent{
		BaseEvent:     contracts.NewBaseEvent("WorkflowAdvancedEvent", w.ID, int64(w.Version)),
		WorkflowID:    w.ID,
		IssuerCompany: w.IssuerCompany,
		FromStage:     closed.Stage,
		ToStage:       w.CurrentStage,
		Action:        closed.Action,
		ActorID:       closed.ActorID,
		Version:       w.Version,
	}
}

// WorkflowRejectedEvent is published when a filing is rejected into the
// terminal rejected status
type WorkflowRejectedEvent struct {
	contracts.BaseEvent

	WorkflowID    string `json:"workflowId"`
	IssuerCompany string `json:"issuerCompany"`
	RejectedAt    Stage  `json:"rejectedAt"`
	ActorID       string `json:"actorId"`
	Reason        string `json:"reason"`
	Version       int    `json:"version"`
}

// NewWorkflowRejectedEvent creates a rejection event from the closing entry
func NewWorkflowRejectedEvent(w *Workflow, closed StageHistoryEntry) *WorkflowRejectedEvent {
	return &WorkflowRejectedEvent{
		BaseEvent:     contracts.NewBaseEvent("WorkflowRejectedEvent", w.ID, int64(w.Version)),
		WorkflowID:    w.ID,
		IssuerCompany: w.IssuerCompany,
		RejectedAt:    closed.Stage,
		ActorID:       closed.ActorID,
		Reason:        closed.Notes,
		Version:       w.Version,
	}
}

// WorkflowCompletedEvent is published when the full pipeline finishes
type WorkflowCompletedEvent struct {
	contracts.BaseEvent

	WorkflowID    string `json:"workflowId"`
	IssuerCompany string `json:"issuerCompany"`
	VirtualISIN   string `json:"virtualIsin,omitempty"`
	TotalStages   int    `json:"totalStages"`
	Version       int    `json:"version"`
}

// NewWorkflowCompletedEvent creates a completion event
func NewWorkflowCompletedEvent(w *Workflow) *WorkflowCompletedEvent {
	return &WorkflowCompletedEvent{
		BaseEvent:     contracts.NewBaseEvent("WorkflowCompletedEvent", w.ID, int64(w.Version)),
		WorkflowID:    w.ID,
		IssuerCompany: w.IssuerCompany,
		VirtualISIN:   w.VirtualISIN,
		TotalStages:   len(w.History),
		Version:       w.Version,
	}
}
