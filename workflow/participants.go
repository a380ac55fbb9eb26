package workflow

import (
	"context"
	"fmt"
	"time"
)

// ActiveParticipant returns the identity currently occupying a role, or nil
func (w *Workflow) ActiveParticipant(role Role) *Participant {
	for i := range w.Participants {
		if w.Participants[i].Role == role && w.Participants[i].IsActive {
			return &w.Participants[i]
		}
	}
	return nil
}

// bindParticipant occupies a vacant role with the acting identity. Callers
// must have checked vacancy first.
func (w *Workflow) bindParticipant(role Role, actor Actor, now time.Time) {
	w.Participants = append(w.Participants, Participant{
		Role:       role,
		UserID:     actor.UserID,
		Name:       actor.Name,
		IsActive:   true,
		AssignedAt: now,
	})
}

// AssignParticipant binds an identity to a role on the workflow. Assigning
// the same identity again is an idempotent no-op; a different identity on an
// occupied role fails ErrConflict and requires ReplaceParticipant instead.
func (p *Processor) AssignParticipant(ctx context.Context, workflowID string, role Role, participant Participant) (*Workflow, error) {
	stored, err := p.repo.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	w := stored.Clone()

	if w.IsTerminal() {
		return nil, &ActionError{WorkflowID: w.ID, Stage: w.CurrentStage,
			Reason: fmt.Sprintf("workflow is %s", w.Status), Err: ErrTerminal}
	}
	if participant.UserID == "" {
		return nil, &ActionError{WorkflowID: w.ID, Reason: "participant user ID required", Err: ErrValidation}
	}

	if existing := w.ActiveParticipant(role); existing != nil {
		if existing.UserID == participant.UserID {
			return w, nil
		}
		return nil, &ActionError{WorkflowID: w.ID,
			Reason: fmt.Sprintf("role %s already occupied by another identity", role), Err: ErrConflict}
	}

	now := p.now()
	w.Participants = append(w.Participants, Participant{
		Role:       role,
		UserID:     participant.UserID,
		Name:       participant.Name,
		IsActive:   true,
		AssignedAt: now,
	})

	oldVersion := w.Version
	w.LastModified = now
	w.Version++

	if err := p.repo.Save(ctx, w, oldVersion); err != nil {
		return nil, err
	}

	p.logger.Info("participant assigned",
		"workflowId", w.ID,
		"role", role,
		"userId", participant.UserID)

	return w.Clone(), nil
}

// ReplaceParticipant explicitly swaps the identity occupying a role. The
// previous participant row is kept deactivated for the audit trail.
func (p *Processor) ReplaceParticipant(ctx context.Context, workflowID string, role Role, participant Participant) (*Workflow, error) {
	stored, err := p.repo.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	w := stored.Clone()

	if w.IsTerminal() {
		return nil, &ActionError{WorkflowID: w.ID, Stage: w.CurrentStage,
			Reason: fmt.Sprintf("workflow is %s", w.Status), Err: ErrTerminal}
	}
	if participant.UserID == "" {
		return nil, &ActionError{WorkflowID: w.ID, Reason: "participant user ID required", Err: ErrValidation}
	}

	existing := w.ActiveParticipant(role)
	if existing == nil {
		return nil, &ActionError{WorkflowID: w.ID,
			Reason: fmt.Sprintf("role %s has no active participant to replace", role), Err: ErrNotFound}
	}
	if existing.UserID == participant.UserID {
		return w, nil
	}

	now := p.now()
	existing.IsActive = false
	w.Participants = append(w.Participants, Participant{
		Role:       role,
		UserID:     participant.UserID,
		Name:       participant.Name,
		IsActive:   true,
		AssignedAt: now,
	})

	oldVersion := w.Version
	w.LastModified = now
	w.Version++

	if err := p.repo.Save(ctx, w, oldVersion); err != nil {
		return nil, err
	}

	p.logger.Info("participant replaced",
		"workflowId", w.ID,
		"role", role,
		"previousUserId", existing.UserID,
		"userId", participant.UserID)

	return w.Clone(), nil
}

// ResolveParticipant returns the identity occupying a role, or ErrNotFound
func (p *Processor) ResolveParticipant(ctx context.Context, workflowID string, role Role) (*Participant, error) {
	w, err := p.repo.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	participant := w.ActiveParticipant(role)
	if participant == nil {
		return nil, fmt.Errorf("%w: no active participant for role %s on workflow %s", ErrNotFound, role, workflowID)
	}
	cp := *participant
	return &cp, nil
}
