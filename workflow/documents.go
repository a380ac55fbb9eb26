package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// prerequisitesMet reports whether every document type the stage requires
// has at least one approved document attached at that stage
func (w *Workflow) prerequisitesMet(graph *StageGraph, stage Stage) bool {
	for _, required := range graph.RequiredDocuments(stage) {
		approved := false
		for _, doc := range w.Documents {
			if doc.Stage == stage && doc.Type == required && doc.Status == DocumentApproved {
				approved = true
				break
			}
		}
		if !approved {
			return false
		}
	}
	return true
}

// documentByID returns the document with the given ID, or nil
func (w *Workflow) documentByID(documentID string) *Document {
	for i := range w.Documents {
		if w.Documents[i].ID == documentID {
			return &w.Documents[i]
		}
	}
	return nil
}

// AttachDocument records document metadata against a stage. The ledger is
// append-only: a rejected document stays in place and a fresh upload
// supersedes it by reaching approved first.
func (p *Processor) AttachDocument(ctx context.Context, workflowID string, stage Stage, docType DocumentType, fileRef string, actor Actor) (*Workflow, error) {
	stored, err := p.repo.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	w := stored.Clone()

	if w.IsTerminal() {
		return nil, &ActionError{WorkflowID: w.ID, Stage: w.CurrentStage,
			Reason: fmt.Sprintf("workflow is %s", w.Status), Err: ErrTerminal}
	}
	if !p.graph.KnownStage(stage) || p.graph.IsTerminal(stage) {
		return nil, &ActionError{WorkflowID: w.ID, Stage: stage,
			Reason: "documents cannot attach to this stage", Err: ErrValidation}
	}
	if docType == "" {
		return nil, &ActionError{WorkflowID: w.ID, Stage: stage,
			Reason: "document type required", Err: ErrValidation}
	}

	now := p.now()
	doc := Document{
		ID:         uuid.New().String(),
		Stage:      stage,
		Type:       docType,
		Status:     DocumentPending,
		FileRef:    fileRef,
		UploadedBy: actor.UserID,
		UploadedAt: now,
	}
	w.Documents = append(w.Documents, doc)

	oldVersion := w.Version
	w.LastModified = now
	w.Version++

	if err := p.repo.Save(ctx, w, oldVersion); err != nil {
		return nil, err
	}

	p.logger.Info("document attached",
		"workflowId", w.ID,
		"documentId", doc.ID,
		"stage", stage,
		"type", docType,
		"uploadedBy", actor.UserID)

	return w.Clone(), nil
}

// ReviewDocument decides a pending document. Only the role designated as
// the stage's document reviewer may decide, and a decided document is never
// re-decided.
func (p *Processor) ReviewDocument(ctx context.Context, workflowID, documentID string, decision DocumentStatus, reviewer Actor) (*Workflow, error) {
	if decision != DocumentApproved && decision != DocumentRejected {
		return nil, &ActionError{WorkflowID: workflowID,
			Reason: fmt.Sprintf("decision must be %s or %s", DocumentApproved, DocumentRejected), Err: ErrValidation}
	}

	stored, err := p.repo.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	w := stored.Clone()

	if w.IsTerminal() {
		return nil, &ActionError{WorkflowID: w.ID, Stage: w.CurrentStage,
			Reason: fmt.Sprintf("workflow is %s", w.Status), Err: ErrTerminal}
	}

	doc := w.documentByID(documentID)
	if doc == nil {
		return nil, fmt.Errorf("%w: document %s on workflow %s", ErrNotFound, documentID, workflowID)
	}
	if doc.Status != DocumentPending {
		return nil, &ActionError{WorkflowID: w.ID, Stage: doc.Stage,
			Reason: fmt.Sprintf("document already %s", doc.Status), Err: ErrInvalidTransition}
	}

	allowed := p.graph.ReviewerRole(doc.Stage)
	if allowed == "" || reviewer.Role != allowed {
		return nil, &ActionError{WorkflowID: w.ID, Stage: doc.Stage,
			Reason: fmt.Sprintf("documents at stage %s are reviewed by role %s", doc.Stage, allowed), Err: ErrUnauthorized}
	}

	now := p.now()
	doc.Status = decision
	doc.ReviewedBy = reviewer.UserID
	doc.ReviewedAt = &now

	oldVersion := w.Version
	w.LastModified = now
	w.Version++

	if err := p.repo.Save(ctx, w, oldVersion); err != nil {
		return nil, err
	}

	p.logger.Info("document reviewed",
		"workflowId", w.ID,
		"documentId", documentID,
		"decision", decision,
		"reviewedBy", reviewer.UserID)

	return w.Clone(), nil
}

// PrerequisitesMet reports whether a stage's required documents are all
// approved; the same check Execute applies before a completing action
func (p *Processor) PrerequisitesMet(ctx context.Context, workflowID string, stage Stage) (bool, error) {
	w, err := p.repo.Get(ctx, workflowID)
	if err != nil {
		return false, err
	}
	return w.prerequisitesMet(p.graph, stage), nil
}
