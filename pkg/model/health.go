package model

import (
	"time"

	"github.com/carbide-fleet/carbide/pkg/ids"
)

// AlertClassification is a closed set of probe-alert classifications. The
// only one the reconciler currently acts on is PreventAllocations, which
// blocks instance assignment.
type AlertClassification string

const (
	AlertClassificationInfo                AlertClassification = "Info"
	AlertClassificationWarning              AlertClassification = "Warning"
	AlertClassificationPreventAllocations   AlertClassification = "PreventAllocations"
)

// Alert is one probe-reported condition against a machine.
type Alert struct {
	Probe           string
	Target          string
	Classifications []AlertClassification
}

// HasPreventAllocations reports whether any classification on this alert
// blocks instance assignment.
func (a Alert) HasPreventAllocations() bool {
	for _, c := range a.Classifications {
		if c == AlertClassificationPreventAllocations {
			return true
		}
	}
	return false
}

// OverrideMode controls how a HealthReport override combines with the live
// report: Merge unions alerts, Replace substitutes entirely.
type OverrideMode string

const (
	OverrideModeMerge   OverrideMode = "Merge"
	OverrideModeReplace OverrideMode = "Replace"
)

// HealthOverride is one named override layered onto a machine's live health
// report. The well-known "host-update" override name gates reprovisioning
// (see design notes: a Set reprovision is rejected while one is present).
type HealthOverride struct {
	Name   string
	Mode   OverrideMode
	Alerts []Alert
}

const HealthOverrideHostUpdate = "host-update"

// HealthReport is one source's observation of a machine's health; a machine
// has a merged view across all sources plus overrides.
type HealthReport struct {
	MachineID ids.MachineId
	Source    string
	ObservedAt time.Time
	Alerts    []Alert
	Overrides []HealthOverride
}

// HasHostUpdateOverride reports whether a "host-update" override is already
// present, which must block a new reprovision Set request.
func (h HealthReport) HasHostUpdateOverride() bool {
	for _, o := range h.Overrides {
		if o.Name == HealthOverrideHostUpdate {
			return true
		}
	}
	return false
}

// Merged combines all sources' alerts with all Merge overrides, then
// substitutes with the single allowed Replace override if present.
func Merged(reports []HealthReport) []Alert {
	var replace *HealthOverride
	var merged []Alert
	for _, r := range reports {
		merged = append(merged, r.Alerts...)
		for i := range r.Overrides {
			o := r.Overrides[i]
			if o.Mode == OverrideModeReplace {
				replace = &o
				continue
			}
			merged = append(merged, o.Alerts...)
		}
	}
	if replace != nil {
		return replace.Alerts
	}
	return merged
}

// BlocksAllocation reports whether any alert in alerts carries
// PreventAllocations.
func BlocksAllocation(alerts []Alert) bool {
	for _, a := range alerts {
		if a.HasPreventAllocations() {
			return true
		}
	}
	return false
}
