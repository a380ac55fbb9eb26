package workflow

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies an institutional participant type in the pipeline
type Role string

const (
	RoleIssuer         Role = "issuer"
	RoleInvestmentBank Role = "investment_bank"
	RoleRegulator      Role = "regulator"
	RoleExchange       Role = "exchange"
	RoleCSD            Role = "csd"
	RoleBroker         Role = "broker"
	RoleInvestor       Role = "investor"
)

// Status represents the overall lifecycle status of a workflow
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// DocumentStatus represents the review status of an attached document
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentApproved DocumentStatus = "approved"
	DocumentRejected DocumentStatus = "rejected"
)

// Actor is the externally resolved identity performing an operation.
// The engine trusts the resolution and only checks it against the
// workflow's participant directory.
type Actor struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
	Name   string `json:"name,omitempty"`
}

// Intent is the issuer's capital-raise submission that creates a workflow
type Intent struct {
	IssuerCompany  string `json:"issuerCompany"`
	InstrumentType string `json:"instrumentType"`
	Currency       string `json:"currency"`
	TargetAmount   int64  `json:"targetAmount"`
}

// Payload carries optional action-specific input
type Payload struct {
	Notes string `json:"notes,omitempty"`
	ISIN  string `json:"isin,omitempty"`
}

// StageHistoryEntry is one row of the audit trail. Entries are append-only;
// once CompletedAt is set the entry is never edited again.
type StageHistoryEntry struct {
	ID          string     `json:"id"`
	Stage       Stage      `json:"stage"`
	EnteredAt   time.Time  `json:"enteredAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	ActorID     string     `json:"actorId,omitempty"`
	Action      Action     `json:"action,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// Participant is the identity occupying a role for a specific workflow
type Participant struct {
	Role       Role      `json:"role"`
	UserID     string    `json:"userId"`
	Name       string    `json:"name,omitempty"`
	IsActive   bool      `json:"isActive"`
	AssignedAt time.Time `json:"assignedAt"`
}

// Document is the metadata record of a file attached to a workflow. The
// bytes themselves live in an external blob store; FileRef points at them.
type Document struct {
	ID         string         `json:"id"`
	Stage      Stage          `json:"stage"`
	Type       DocumentType   `json:"type"`
	Status     DocumentStatus `json:"status"`
	FileRef    string         `json:"fileRef,omitempty"`
	UploadedBy string         `json:"uploadedBy,omitempty"`
	UploadedAt time.Time      `json:"uploadedAt"`
	ReviewedBy string         `json:"reviewedBy,omitempty"`
	ReviewedAt *time.Time     `json:"reviewedAt,omitempty"`
}

// IdempotencyRecord remembers an applied transition so a redelivered call
// returns the original result instead of advancing twice
type IdempotencyRecord struct {
	Key       string          `json:"key"`
	Action    Action          `json:"action"`
	AppliedAt time.Time       `json:"appliedAt"`
	Snapshot  json.RawMessage `json:"snapshot"`
}

// Workflow is the aggregate for one capital-raise case. History,
// participants, documents, and idempotency records travel with it and are
// persisted atomically under one version.
type Workflow struct {
	ID             string              `json:"id"`
	IssuerCompany  string              `json:"issuerCompany"`
	InstrumentType string              `json:"instrumentType"`
	Currency       string              `json:"currency"`
	TargetAmount   int64               `json:"targetAmount"`
	VirtualISIN    string              `json:"virtualIsin,omitempty"`
	Status         Status              `json:"status"`
	CurrentStage   Stage               `json:"currentStage"`
	History        []StageHistoryEntry `json:"history"`
	Participants   []Participant       `json:"participants"`
	Documents      []Document          `json:"documents"`
	Idempotency    []IdempotencyRecord `json:"idempotency,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	LastModified   time.Time           `json:"lastModified"`
	Version        int                 `json:"version"`
}

// OpenEntry returns the unique history entry that has not completed yet,
// or nil once the workflow is terminal
func (w *Workflow) OpenEntry() *StageHistoryEntry {
	for i := len(w.History) - 1; i >= 0; i-- {
		if w.History[i].CompletedAt == nil {
			return &w.History[i]
		}
	}
	return nil
}

// IsTerminal reports whether the workflow reached a terminal status
func (w *Workflow) IsTerminal() bool {
	return w.Status == StatusRejected || w.Status == StatusCompleted
}

// Clone returns a deep copy so callers can hand out snapshots without
// exposing internal state to mutation
func (w *Workflow) Clone() *Workflow {
	data, err := json.Marshal(w)
	if err != nil {
		// The aggregate is plain data; marshaling can only fail on a
		// corrupted in-memory value.
		panic(fmt.Sprintf("workflow: clone marshal: %v", err))
	}

	var cp Workflow
	if err := json.Unmarshal(data, &cp); err != nil {
		panic(fmt.Sprintf("workflow: clone unmarshal: %v", err))
	}
	return &cp
}

// idempotencyRecord returns the record for key, or nil
func (w *Workflow) idempotencyRecord(key string) *IdempotencyRecord {
	for i := range w.Idempotency {
		if w.Idempotency[i].Key == key {
			return &w.Idempotency[i]
		}
	}
	return nil
}
