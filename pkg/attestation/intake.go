// Report intake: §4.3 "Report intake algorithm". Intake is the single entry
// point that turns one submitted MeasurementReport into a journal row and an
// attestation verdict, mutating profiles/bundles/approvals as the algorithm
// requires. Every step that touches persistence does so through the Store
// interface so the decision logic stays testable against a fake store.
package attestation

import (
	"context"
	"fmt"
	"time"

	"github.com/carbide-fleet/carbide/pkg/carbideerr"
	"github.com/carbide-fleet/carbide/pkg/fsm"
	"github.com/carbide-fleet/carbide/pkg/ids"
	"github.com/carbide-fleet/carbide/pkg/model"
	"github.com/carbide-fleet/carbide/pkg/persistence"
)

// Engine implements the attestation engine described in §4.3.
type Engine struct {
	store persistence.Store
}

// New builds an Engine over store.
func New(store persistence.Store) *Engine {
	return &Engine{store: store}
}

// Outcome is what Intake decided for one report.
type Outcome struct {
	Profile ids.ProfileId
	Bundle  *ids.BundleId
	Verdict model.AttestationVerdict
}

// Intake runs the report-intake algorithm for one report submitted by
// machine, identified by its (vendor, product, DMI) profile attributes.
// attrs is the profile identity key derived by the caller from the
// machine's discovery info (§4.3 step 1); Intake creates the profile on
// first sight and associates the report with it from then on.
func (e *Engine) Intake(ctx context.Context, machine ids.MachineId, attrs []model.ProfileAttribute, report model.MeasurementReport) (Outcome, error) {
	profile, err := e.resolveProfile(ctx, attrs)
	if err != nil {
		return Outcome{}, err
	}

	bundles, err := e.store.ListBundlesForProfile(ctx, profile.ID)
	if err != nil {
		return Outcome{}, err
	}

	if b := matchBundle(bundles, report, model.BundleStateActive, model.BundleStateObsolete); b != nil {
		return e.finish(ctx, machine, report, profile.ID, &b.ID, model.AttestationMeasured)
	}
	if b := matchBundle(bundles, report, model.BundleStateRetired, model.BundleStateRevoked); b != nil {
		return e.finish(ctx, machine, report, profile.ID, &b.ID, model.AttestationMeasuringFailed)
	}

	bundleID, err := e.consultApprovals(ctx, machine, profile.ID, report)
	if err != nil {
		return Outcome{}, err
	}
	if bundleID != nil {
		return e.finish(ctx, machine, report, profile.ID, bundleID, model.AttestationMeasured)
	}

	return e.finish(ctx, machine, report, profile.ID, nil, model.AttestationPendingBundle)
}

func (e *Engine) resolveProfile(ctx context.Context, attrs []model.ProfileAttribute) (model.MeasurementSystemProfile, error) {
	existing, err := e.store.FindProfileByAttributes(ctx, attrs)
	if err != nil {
		return model.MeasurementSystemProfile{}, err
	}
	if existing != nil {
		return *existing, nil
	}
	p := model.MeasurementSystemProfile{
		ID:         ids.NewProfileId(),
		Name:       profileName(attrs),
		Attributes: attrs,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := e.store.CreateProfile(ctx, p); err != nil {
		return model.MeasurementSystemProfile{}, err
	}
	return p, nil
}

func profileName(attrs []model.ProfileAttribute) string {
	name := "profile"
	for _, a := range attrs {
		name += "/" + a.Key + "=" + a.Value
	}
	return name
}

// matchBundle returns the first bundle in one of the given states whose PCR
// values exactly match report, or nil. Bundle order follows
// ListBundlesForProfile; when more than one bundle in the same state fully
// matches, the first one returned by the store wins (an explorable
// operator-side ambiguity the design leaves to bundle hygiene, not intake).
func matchBundle(bundles []model.MeasurementBundle, report model.MeasurementReport, states ...model.BundleState) *model.MeasurementBundle {
	want := make(map[model.BundleState]struct{}, len(states))
	for _, s := range states {
		want[s] = struct{}{}
	}
	for i := range bundles {
		if _, ok := want[bundles[i].State]; !ok {
			continue
		}
		if bundles[i].MatchesExactly(report) {
			return &bundles[i]
		}
	}
	return nil
}

// consultApprovals implements §4.3 step 4: a specific-machine approval wins
// over a wildcard approval, which wins over a profile approval. The winning
// approval's selector carves out the new bundle's PCR values from report;
// Oneshot approvals are consumed immediately.
func (e *Engine) consultApprovals(ctx context.Context, machine ids.MachineId, profile ids.ProfileId, report model.MeasurementReport) (*ids.BundleId, error) {
	machineApprovals, err := e.store.ListApprovalsForMachine(ctx, machine)
	if err != nil {
		return nil, err
	}
	if a := pickApproval(machineApprovals, model.ApprovalTargetSpecificMachine); a != nil {
		return e.promoteBundle(ctx, profile, report, *a)
	}

	wildcardApprovals, err := e.store.ListApprovalsWildcard(ctx)
	if err != nil {
		return nil, err
	}
	if a := pickApproval(wildcardApprovals, model.ApprovalTargetAnyMachine); a != nil {
		return e.promoteBundle(ctx, profile, report, *a)
	}

	profileApprovals, err := e.store.ListApprovalsForProfile(ctx, profile)
	if err != nil {
		return nil, err
	}
	if a := pickApproval(profileApprovals, model.ApprovalTargetProfile); a != nil {
		return e.promoteBundle(ctx, profile, report, *a)
	}

	return nil, nil
}

func pickApproval(approvals []model.MeasurementApproval, kind model.ApprovalTargetKind) *model.MeasurementApproval {
	for i := range approvals {
		if approvals[i].Consumed {
			continue
		}
		if approvals[i].Target.Kind == kind {
			return &approvals[i]
		}
	}
	return nil
}

func (e *Engine) promoteBundle(ctx context.Context, profile ids.ProfileId, report model.MeasurementReport, approval model.MeasurementApproval) (*ids.BundleId, error) {
	selected := approval.Selector.Select(report)
	if len(selected) == 0 {
		return nil, fmt.Errorf("attestation: approval %s selector matches no PCR registers in report", approval.ID)
	}
	bundle := model.MeasurementBundle{
		ID:        ids.NewBundleId(),
		ProfileID: profile,
		Name:      fmt.Sprintf("auto-approved-%s", approval.ID),
		State:     model.BundleStateActive,
		Values:    selected,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := e.store.CreateBundle(ctx, bundle); err != nil {
		return nil, err
	}
	if approval.Scope == model.ApprovalScopeOneshot {
		if err := e.store.ConsumeApproval(ctx, approval.ID); err != nil {
			return nil, err
		}
	}
	return &bundle.ID, nil
}

func (e *Engine) finish(ctx context.Context, machine ids.MachineId, report model.MeasurementReport, profile ids.ProfileId, bundle *ids.BundleId, verdict model.AttestationVerdict) (Outcome, error) {
	if err := e.store.CreateReport(ctx, report); err != nil {
		return Outcome{}, err
	}
	j := model.MeasurementJournal{
		ID:             ids.NewJournalId(),
		MachineID:      machine,
		ReportID:       report.ID,
		MatchedProfile: profile,
		MatchedBundle:  bundle,
		ResultingState: verdict,
		CreatedAt:      time.Now(),
	}
	if err := e.store.AppendJournal(ctx, j); err != nil {
		return Outcome{}, err
	}
	if err := e.stampVerdict(ctx, machine, verdict); err != nil {
		return Outcome{}, err
	}
	return Outcome{Profile: profile, Bundle: bundle, Verdict: verdict}, nil
}

// stampVerdict writes verdict onto the Machine row so the reconciler's
// HostInit substate machine (which only reads already-loaded Machine state,
// never the journal) observes it on its next iteration. A CAS conflict
// means some other writer updated the Machine in between; the verdict was
// already durable in the journal, so it is safe to retry on the next report
// rather than fail this Intake call. A Machine with no stored row likewise
// keeps its verdict in the journal only.
func (e *Engine) stampVerdict(ctx context.Context, machine ids.MachineId, verdict model.AttestationVerdict) error {
	m, err := e.store.GetMachine(ctx, machine)
	if cerr, ok := carbideerr.As(err); ok && cerr.Kind == carbideerr.KindNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	m.AttestationVerdict = verdict
	err = e.store.UpdateMachine(ctx, m, m.StateVersion)
	if cerr, ok := carbideerr.As(err); ok && cerr.Kind == carbideerr.KindConcurrentModification {
		return nil
	}
	return err
}

// ClosestMatch implements the §4.3 "Closest-match query": rank non-Pending,
// non-retired, non-revoked bundles of the profile matching report's
// identity by PCR-equality count, returning the best match. ok is false
// when no bundle in the profile scores above zero.
func (e *Engine) ClosestMatch(ctx context.Context, profile ids.ProfileId, report model.MeasurementReport) (bundle model.MeasurementBundle, fullMatch bool, ok bool, err error) {
	bundles, err := e.store.ListBundlesForProfile(ctx, profile)
	if err != nil {
		return model.MeasurementBundle{}, false, false, err
	}

	var best model.MeasurementBundle
	bestScore := 0
	found := false
	for _, b := range bundles {
		if b.State == model.BundleStatePending || b.State == model.BundleStateRetired || b.State == model.BundleStateRevoked {
			continue
		}
		if b.MatchesExactly(report) {
			return b, true, true, nil
		}
		if score := b.MatchCount(report); score > bestScore {
			best, bestScore, found = b, score, true
		}
	}
	return best, false, found, nil
}

var bundleStates = []model.BundleState{
	model.BundleStatePending, model.BundleStateActive, model.BundleStateObsolete,
	model.BundleStateRetired, model.BundleStateRevoked,
}

// setStateEvent names the fsm.Event for moving a bundle to a specific
// target state. The Table is keyed by (from, event) -> one rule, so each
// destination gets its own event rather than sharing one "SetState" event
// across every target.
func setStateEvent(to model.BundleState) fsm.Event {
	return fsm.Event("SetState:" + string(to))
}

// bundleLifecycle is the declarative Table backing bundle-state transitions
// (§3 "all other bundle states are freely transitionable" except Revoked,
// which may never change afterwards), built once and shared by every
// ValidateBundleTransition call rather than reconstructed per check.
var bundleLifecycle = fsm.NewTable(bundleTransitionRules())

func bundleTransitionRules() []fsm.Rule {
	rules := make([]fsm.Rule, 0, len(bundleStates)*len(bundleStates))
	for _, from := range bundleStates {
		for _, to := range bundleStates {
			if from == model.BundleStateRevoked && to != model.BundleStateRevoked {
				continue // Revoked is a one-way sink; no rule means no legal transition out of it.
			}
			rules = append(rules, fsm.Rule{
				From:  fsm.ConvertState(from),
				Event: setStateEvent(to),
				To:    fsm.ConvertState(to),
			})
		}
	}
	return rules
}

// ValidateBundleTransition checks (current, next) against the bundle
// lifecycle Table and reports a FailedPrecondition when the destination
// isn't reachable — in practice, only ever an attempt to leave Revoked.
func ValidateBundleTransition(current, next model.BundleState) error {
	if !bundleLifecycle.IsValid(fsm.ConvertState(current), setStateEvent(next)) {
		return carbideerr.FailedPrecondition("TransitionBundleState", "cannot transition a bundle out of Revoked")
	}
	return nil
}

// EnsureNotFromRevoked is a defensive check used before any bundle-state
// transition: Revoked is a one-way sink (§3 invariants), so attempting to
// move a bundle out of it is always a programmer error, not a retryable
// condition. Implemented on top of the declarative bundleLifecycle Table.
func EnsureNotFromRevoked(current model.BundleState, next model.BundleState) error {
	return ValidateBundleTransition(current, next)
}
