// Package notify derives participant notifications from committed workflow
// transitions.
//
// The dispatcher observes the engine and synthesizes, for every transition:
// an action-required notification for the role owning the new stage, an
// acknowledgement for the role that just acted, and an update for the
// issuer. Each notification carries a dedupe key built from the workflow,
// the closed stage, the action, and the notification kind, so redelivery of
// the same transition never creates duplicates: storage is at-least-once,
// the key makes it effectively exactly-once.
//
// Dispatch is best-effort. A store failure is reported to the caller for
// logging but must never roll back the transition that triggered it.
package notify
