// Package reconciler implements the Managed-Host State Reconciler (§4.1):
// the root control loop that, for every Host together with its DPUs,
// computes the next ManagedHostState, performs the side effects a
// transition implies, and persists the result under CAS. Grounded in the
// teacher's controller Reconcile-loop idiom (one object per iteration,
// suspend at every I/O boundary, classify the outcome), generalized from a
// Kubernetes reconcile.Result to the three-way Transition/Wait/Error
// outcome §4.1 "Outcome of one iteration per host" names explicitly.
package reconciler

import (
	"time"

	"github.com/carbide-fleet/carbide/pkg/model"
)

// OutcomeKind is the closed set of per-host iteration results.
type OutcomeKind string

const (
	OutcomeTransition OutcomeKind = "Transition"
	OutcomeWait       OutcomeKind = "Wait"
	OutcomeError      OutcomeKind = "Error"
)

// Outcome is what one host-iteration decided, per §4.1 "Outcome of one
// iteration per host".
type Outcome struct {
	Kind OutcomeKind

	// Transition
	NextState model.ManagedHostState

	// Wait
	WaitReason string

	// Error
	ErrorKind   string
	ErrorDetail string

	// RebootIssued is set alongside a Wait outcome when this iteration
	// issued a reboot-escalation step against the BMC (reboot.go); the
	// caller persists the updated bookkeeping even though the substate
	// itself hasn't changed.
	RebootIssued       bool
	RebootAttemptCount int
	RebootRequestedAt  time.Time
}

// Transition builds a Transition outcome.
func Transition(next model.ManagedHostState) Outcome {
	return Outcome{Kind: OutcomeTransition, NextState: next}
}

// Wait builds a Wait outcome; reason is emitted for observability, never
// acted on beyond that (§4.1 "Failure semantics").
func Wait(reason string) Outcome {
	return Outcome{Kind: OutcomeWait, WaitReason: reason}
}

// Error builds an Error outcome. kind should be one of the error-taxonomy
// tags from §7; detail is free text for logs/journal.
func Error(kind, detail string) Outcome {
	return Outcome{Kind: OutcomeError, ErrorKind: kind, ErrorDetail: detail}
}

// WaitForReboot builds a Wait outcome that also carries the updated reboot
// bookkeeping an escalation step produced (§4.1 "bounded by
// last_reboot_requested.time and an expected liveness window").
func WaitForReboot(reason string, attemptCount int, requestedAt time.Time) Outcome {
	o := Wait(reason)
	o.RebootIssued = true
	o.RebootAttemptCount = attemptCount
	o.RebootRequestedAt = requestedAt
	return o
}

// Failed builds the terminal Machine state a fatal per-host error
// transitions into (§4.1 "Invalid state ... fatal for the host").
func Failed(detail string) model.ManagedHostState {
	return model.ManagedHostState{Kind: model.ManagedHostStateFailed, FailureDetails: detail}
}
