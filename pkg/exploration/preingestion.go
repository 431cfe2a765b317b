// Preingestion state machine: §4.2 "Preingestion state machine per
// endpoint". Advance is a pure function of the current state plus the
// observed/desired firmware diff and a clock; the caller (Engine) is
// responsible for issuing the side effects a transition implies (BMC
// reset, firmware task kickoff, power drain) and persisting the result.
package exploration

import (
	"sort"
	"time"

	"github.com/carbide-fleet/carbide/pkg/model"
)

// PendingFirmwareUpgrades returns the components whose observed version
// differs from the desired version, in a deterministic (component name)
// order so repeated passes pick the same "next" component.
func PendingFirmwareUpgrades(observed, desired model.FirmwareInventory) []model.FirmwareComponentType {
	var out []model.FirmwareComponentType
	for component, wantVersion := range desired {
		if observed[component] != wantVersion {
			out = append(out, component)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Deps bundles the tunables Advance needs beyond the current state.
type Deps struct {
	Now               time.Time
	MaxFirmwareWait    time.Duration
	PowerDrainsPerStep int
	PowerDrainInterval time.Duration
}

// Advance computes the next PreingestionState given the current one, the
// endpoint's observed vs. desired firmware, and a BootOn check (host power
// state == On, used by the reset substates' WaitHostBoot gate). It never
// performs I/O; Engine issues the BMC side effect a transition implies
// before calling Advance again on the next iteration.
func Advance(current model.PreingestionState, observed, desired model.FirmwareInventory, hostIsOn bool, deps Deps) model.PreingestionState {
	switch current.Kind {
	case model.PreingestionInitial:
		return model.PreingestionState{Kind: model.PreingestionRecheckVersions}

	case model.PreingestionRecheckVersions:
		return model.PreingestionState{Kind: model.PreingestionInitialReset, ResetSubstate: model.ResetSubstateStart}

	case model.PreingestionInitialReset:
		next, done := advanceReset(current, hostIsOn)
		if done {
			return model.PreingestionState{Kind: model.PreingestionTimeSyncReset, ResetSubstate: model.ResetSubstateStart}
		}
		return next

	case model.PreingestionTimeSyncReset:
		next, done := advanceReset(current, hostIsOn)
		if done {
			return nextFirmwareStepOrComplete(nil, observed, desired, deps)
		}
		return next

	case model.PreingestionUpgradeFirmwareWait:
		if current.DelayUntil != nil && deps.Now.After(*current.DelayUntil) {
			return model.PreingestionState{
				Kind:          model.PreingestionRecheckVersionsAfterFailure,
				FailureReason: "firmware upgrade task exceeded maximum wait for component " + string(current.Component),
			}
		}
		// Task still outstanding; Engine re-polls next iteration by handing
		// back the same state (no state change == a benign Wait at the
		// reconciler layer, mirrored here for preingestion).
		return current

	case model.PreingestionResetForNewFirmware:
		if current.PowerDrainsNeeded <= 0 {
			return model.PreingestionState{
				Kind:            model.PreingestionNewFirmwareReportedWait,
				Component:       current.Component,
				FinalVersion:    current.FinalVersion,
				PreviousResetAt: current.LastPowerDrainAt,
			}
		}
		if current.LastPowerDrainAt != nil && deps.Now.Sub(*current.LastPowerDrainAt) < deps.PowerDrainInterval {
			return current
		}
		now := deps.Now
		return model.PreingestionState{
			Kind:              model.PreingestionResetForNewFirmware,
			Component:         current.Component,
			FinalVersion:      current.FinalVersion,
			PowerDrainsNeeded: current.PowerDrainsNeeded - 1,
			LastPowerDrainAt:  &now,
		}

	case model.PreingestionNewFirmwareReportedWait:
		if observed[current.Component] == current.FinalVersion {
			return nextFirmwareStepOrComplete(&current.Component, observed, desired, deps)
		}
		return current

	case model.PreingestionRecheckVersionsAfterFailure:
		return model.PreingestionState{Kind: model.PreingestionRecheckVersions}

	case model.PreingestionFailed, model.PreingestionComplete:
		return current

	default:
		return model.PreingestionState{Kind: model.PreingestionFailed, FailureReason: "unknown preingestion state"}
	}
}

// advanceReset steps one reset substate machine (shared shape by
// InitialReset and TimeSyncReset): Start issues the reset (Engine's job),
// moving to BMCWasReset; BMCWasReset waits one iteration then moves to
// WaitHostBoot; WaitHostBoot holds until hostIsOn, at which point done is
// true and the caller decides what state kind comes next.
func advanceReset(current model.PreingestionState, hostIsOn bool) (next model.PreingestionState, done bool) {
	switch current.ResetSubstate {
	case model.ResetSubstateStart:
		return model.PreingestionState{Kind: current.Kind, ResetSubstate: model.ResetSubstateBMCWasReset}, false
	case model.ResetSubstateBMCWasReset:
		return model.PreingestionState{Kind: current.Kind, ResetSubstate: model.ResetSubstateWaitHostBoot}, false
	case model.ResetSubstateWaitHostBoot:
		if !hostIsOn {
			return current, false
		}
		return current, true
	default:
		return model.PreingestionState{Kind: current.Kind, ResetSubstate: model.ResetSubstateStart}, false
	}
}

// nextFirmwareStepOrComplete picks the next pending firmware component (skipping
// justFinished, if any) or returns Complete when none remain.
func nextFirmwareStepOrComplete(justFinished *model.FirmwareComponentType, observed, desired model.FirmwareInventory, deps Deps) model.PreingestionState {
	pending := PendingFirmwareUpgrades(observed, desired)
	for _, c := range pending {
		if justFinished != nil && c == *justFinished {
			continue
		}
		deadline := deps.Now.Add(deps.MaxFirmwareWait)
		return model.PreingestionState{
			Kind:              model.PreingestionUpgradeFirmwareWait,
			Component:         c,
			FinalVersion:      desired[c],
			PowerDrainsNeeded: deps.PowerDrainsPerStep,
			DelayUntil:        &deadline,
		}
	}
	return model.PreingestionState{Kind: model.PreingestionComplete}
}
