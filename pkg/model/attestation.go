package model

import (
	"time"

	"github.com/carbide-fleet/carbide/pkg/ids"
)

// BundleState is the closed lifecycle of a MeasurementBundle. Revoked is a
// one-way terminal sink: no transition out of Revoked is ever legal.
type BundleState string

const (
	BundleStatePending  BundleState = "Pending"
	BundleStateActive   BundleState = "Active"
	BundleStateObsolete BundleState = "Obsolete"
	BundleStateRetired  BundleState = "Retired"
	BundleStateRevoked  BundleState = "Revoked"
)

// ParticipatesInMatching reports whether a bundle in this state is
// considered during report intake at all (Pending never does).
func (s BundleState) ParticipatesInMatching() bool {
	return s != BundleStatePending
}

// IsMatchSuccess reports whether a full PCR match against a bundle in this
// state should be treated as Measured (Active, Obsolete) rather than
// MeasuringFailed (Retired, Revoked).
func (s BundleState) IsMatchSuccess() bool {
	return s == BundleStateActive || s == BundleStateObsolete
}

// ProfileAttribute is one (key, value) identity attribute of a profile.
type ProfileAttribute struct {
	Key   string
	Value string
}

// MeasurementSystemProfile groups bundles and machines sharing an identity
// schema (vendor, product, selected DMI attributes).
type MeasurementSystemProfile struct {
	ID         ids.ProfileId
	Name       string
	Attributes []ProfileAttribute
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int64
}

// PCRValue is one Platform Configuration Register slot and its expected or
// observed SHA digest.
type PCRValue struct {
	Register int
	SHA      string
}

// MeasurementBundle is an authorized set of PCR values under a profile.
type MeasurementBundle struct {
	ID        ids.BundleId
	ProfileID ids.ProfileId
	Name      string
	State     BundleState
	Values    []PCRValue
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// MatchesExactly reports whether report's PCR values are exactly the set of
// registers carried by the bundle, with equal SHA values.
func (b MeasurementBundle) MatchesExactly(report MeasurementReport) bool {
	if len(b.Values) != len(report.PCRValues) {
		return false
	}
	want := make(map[int]string, len(b.Values))
	for _, v := range b.Values {
		want[v.Register] = v.SHA
	}
	for _, v := range report.PCRValues {
		sha, ok := want[v.Register]
		if !ok || sha != v.SHA {
			return false
		}
	}
	return true
}

// MatchCount returns how many PCR register/value pairs b and report share,
// used by the closest-match ranking query.
func (b MeasurementBundle) MatchCount(report MeasurementReport) int {
	want := make(map[int]string, len(report.PCRValues))
	for _, v := range report.PCRValues {
		want[v.Register] = v.SHA
	}
	count := 0
	for _, v := range b.Values {
		if sha, ok := want[v.Register]; ok && sha == v.SHA {
			count++
		}
	}
	return count
}

// MeasurementReport is a single PCR report submitted by a machine.
type MeasurementReport struct {
	ID        ids.ReportId
	MachineID ids.MachineId
	PCRValues []PCRValue
	Timestamp time.Time
}

// MeasurementJournal is one append-only decision row produced by report intake.
type MeasurementJournal struct {
	ID             ids.JournalId
	MachineID      ids.MachineId
	ReportID       ids.ReportId
	MatchedProfile ids.ProfileId
	MatchedBundle  *ids.BundleId
	ResultingState AttestationVerdict
	CreatedAt      time.Time
}

// ApprovalScope controls whether an approval is consumed after one match.
type ApprovalScope string

const (
	ApprovalScopeOneshot ApprovalScope = "Oneshot"
	ApprovalScopePersist ApprovalScope = "Persist"
)

// ApprovalTargetKind distinguishes a wildcard machine target, a specific
// machine target, or a profile target.
type ApprovalTargetKind string

const (
	ApprovalTargetAnyMachine      ApprovalTargetKind = "AnyMachine"
	ApprovalTargetSpecificMachine ApprovalTargetKind = "SpecificMachine"
	ApprovalTargetProfile         ApprovalTargetKind = "Profile"
)

// ApprovalTarget names what a MeasurementApproval applies to.
type ApprovalTarget struct {
	Kind      ApprovalTargetKind
	MachineID ids.MachineId // valid when Kind == ApprovalTargetSpecificMachine
	ProfileID ids.ProfileId // valid when Kind == ApprovalTargetProfile
}

// PCRSelector is a parsed comma-and-dash PCR register selector (e.g.
// "0-6,8"). Parsing lives in pkg/attestation; this is the parsed, immutable
// result, a set of register numbers.
type PCRSelector struct {
	Registers map[int]struct{}
}

// Contains reports whether register r is included in the selector.
func (s PCRSelector) Contains(r int) bool {
	if s.Registers == nil {
		return false
	}
	_, ok := s.Registers[r]
	return ok
}

// Select filters report's PCR values down to exactly the registers named by
// the selector, in the order they appear in the report.
func (s PCRSelector) Select(report MeasurementReport) []PCRValue {
	var out []PCRValue
	for _, v := range report.PCRValues {
		if s.Contains(v.Register) {
			out = append(out, v)
		}
	}
	return out
}

// MeasurementApproval authorizes auto-promotion of a new Active bundle for
// reports matching its target.
type MeasurementApproval struct {
	ID       ids.ApprovalId
	Target   ApprovalTarget
	Scope    ApprovalScope
	Selector PCRSelector
	Comments string
	Consumed bool // set true once a Oneshot approval has been used
	CreatedAt time.Time
}
