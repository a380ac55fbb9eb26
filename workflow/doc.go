// Package workflow implements the capital-raise listing pipeline as an
// explicit state machine.
//
// A single capital-raise case moves through an ordered sequence of regulated
// stages, from the issuer's initial intent to final settlement. Every stage
// is owned by exactly one institutional role, and only that role's assigned
// participant may advance the case. The engine keeps an append-only stage
// history as the audit trail, gates stage completion on document approvals,
// and persists the whole case as one aggregate under optimistic concurrency.
//
// Key pieces:
//   - StageGraph: static lookup table of stages, owning roles, permitted
//     actions, document prerequisites, and per-stage SLAs
//   - Processor: the transactional core applying role-gated transitions
//   - Repository: injected persistence with compare-and-swap versioning
//   - Typed error taxonomy for transport-level mapping
//
// Basic usage:
//
//	repo := workflow.NewInMemoryRepository()
//	proc := workflow.NewProcessor(repo)
//
//	wf, err := proc.Submit(ctx, workflow.Intent{
//	    IssuerCompany:  "Green Energy Rwanda Ltd",
//	    InstrumentType: "equity",
//	    Currency:       "RWF",
//	    TargetAmount:   500_000_000,
//	}, issuer)
//
//	wf, err = proc.Execute(ctx, wf.ID, workflow.ActionSubmitApplication, issuer, workflow.Payload{}, "")
//
// All mutations go through the Processor; a failed check leaves the stored
// aggregate untouched. Concurrent actors racing on the same workflow resolve
// through the version check: one commit wins, the other observes ErrConflict
// and must re-read and retry.
package workflow
