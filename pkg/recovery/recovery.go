// Package recovery implements the reboot-escalation schedule the reconciler
// applies when a host fails to come back after a requested reboot,
// generalized from the teacher's internal/recovery/recovery.go
// PowerStateRecovery strategy (retry-with-backoff against a single BMC
// power-state target) into the design's persisted, cross-iteration
// escalation ladder: Reboot, Reboot, PowerOff, PowerOn, Reboot, ...
package recovery

import (
	"context"
	"time"

	"github.com/stmcginnis/gofish/redfish"

	carbideredfish "github.com/carbide-fleet/carbide/pkg/redfish"
)

// Step is one action in the escalation ladder.
type Step string

const (
	StepReboot   Step = "Reboot"
	StepPowerOff Step = "PowerOff"
	StepPowerOn  Step = "PowerOn"
)

// schedule is the repeating ladder: two plain reboots before escalating to a
// full power cycle, then back to plain reboots. attemptCount 0 and 1 give
// Reboot, 2 gives PowerOff, 3 gives PowerOn, and 4 starts the ladder over
// with Reboot.
var schedule = []Step{StepReboot, StepReboot, StepPowerOff, StepPowerOn}

// NextStep returns the escalation step to take given attemptCount prior
// failed attempts (0 on the very first reboot request). The schedule
// repeats indefinitely so a host that keeps failing keeps cycling through
// power-off/power-on rather than escalating further.
func NextStep(attemptCount int) Step {
	if attemptCount < 0 {
		attemptCount = 0
	}
	return schedule[attemptCount%len(schedule)]
}

// Escalator drives one escalation step against a BMC client.
type Escalator struct {
	// LivenessWindow bounds how long the reconciler waits after issuing a
	// reboot before treating it as failed and advancing the schedule.
	LivenessWindow time.Duration
}

// DefaultEscalator is the schedule's default liveness window: long enough
// for a BIOS POST and OS boot to discovery image, short enough that a truly
// stuck host escalates within a few reconciliation cadences.
func DefaultEscalator() Escalator {
	return Escalator{LivenessWindow: 10 * time.Minute}
}

// DueForEscalation reports whether lastRequestedAt is far enough in the past
// that the current step should be considered failed and the schedule should
// advance. A nil lastRequestedAt means no reboot is currently outstanding.
func (e Escalator) DueForEscalation(lastRequestedAt *time.Time, now time.Time) bool {
	if lastRequestedAt == nil {
		return false
	}
	return now.Sub(*lastRequestedAt) >= e.LivenessWindow
}

// IssueStep performs step against client. It is the reconciler's side
// effect; the caller is responsible for persisting the new attempt count
// and LastRebootRequestedAt only after this returns successfully.
func (e Escalator) IssueStep(ctx context.Context, client carbideredfish.Client, step Step) error {
	switch step {
	case StepReboot:
		return client.SetPowerState(ctx, redfish.ForceRestartPowerState)
	case StepPowerOff:
		return client.SetPowerState(ctx, redfish.ForceOffPowerState)
	case StepPowerOn:
		return client.SetPowerState(ctx, redfish.OnPowerState)
	default:
		return client.SetPowerState(ctx, redfish.ForceRestartPowerState)
	}
}
