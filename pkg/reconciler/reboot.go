// Reboot side effect: §4.1 "Issue BMC reboot ... called only when a state
// transition demands it and the host isn't still waiting on a prior reboot,
// bounded by last_reboot_requested.time and an expected liveness window."
// Wraps pkg/recovery's escalation ladder with the bookkeeping the Machine
// entity persists between iterations.
package reconciler

import (
	"context"
	"time"

	"github.com/carbide-fleet/carbide/pkg/recovery"
	"github.com/carbide-fleet/carbide/pkg/redfish"
)

// RebootDecision is what one iteration should do about a pending or
// newly-required reboot.
type RebootDecision struct {
	// Issue is true when the caller must call IssueReboot before
	// transitioning state.
	Issue bool
	// Step is the escalation step that would be (or was) issued.
	Step recovery.Step
}

// DecideReboot reports whether a reboot is outstanding, still within its
// liveness window, or needs to be (re)issued. wantReboot is true when the
// current state transition needs a reboot to have happened; lastRequestedAt
// and attemptCount are the Machine's persisted bookkeeping.
func DecideReboot(e recovery.Escalator, wantReboot bool, lastRequestedAt *time.Time, attemptCount int, now time.Time) RebootDecision {
	if !wantReboot {
		return RebootDecision{}
	}
	if lastRequestedAt != nil && !e.DueForEscalation(lastRequestedAt, now) {
		// A reboot is outstanding and still within its liveness window:
		// nothing to do this iteration, the caller should Wait.
		return RebootDecision{}
	}
	return RebootDecision{Issue: true, Step: recovery.NextStep(attemptCount)}
}

// IssueReboot performs the escalation step against client and returns the
// updated bookkeeping the caller must persist on the Machine alongside its
// state transition.
func IssueReboot(ctx context.Context, e recovery.Escalator, client redfish.Client, attemptCount int, step recovery.Step, now time.Time) (newAttemptCount int, requestedAt time.Time, err error) {
	if err := e.IssueStep(ctx, client, step); err != nil {
		return attemptCount, time.Time{}, err
	}
	return attemptCount + 1, now, nil
}
