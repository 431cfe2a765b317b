// Loop is the Managed-Host State Reconciler's root control loop (§4.1/§5):
// one iteration lists every Host, fans out across them under a bounded
// concurrency limit (golang.org/x/sync/errgroup, mirroring
// pkg/exploration.Engine's fan-out idiom), and for each Host loads its DPU
// peers, instance desire, and merged health and passes them, with the host
// row, to the substate Decide functions
// in the rest of this package. Every external I/O (persistence call,
// Redfish call) is a suspension point; nothing here is CPU-bound enough to
// need preemption (§5 "Scheduling model").
package reconciler

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/carbide-fleet/carbide/pkg/carbideerr"
	"github.com/carbide-fleet/carbide/pkg/config"
	"github.com/carbide-fleet/carbide/pkg/dpf"
	"github.com/carbide-fleet/carbide/pkg/ids"
	"github.com/carbide-fleet/carbide/pkg/metrics"
	"github.com/carbide-fleet/carbide/pkg/model"
	"github.com/carbide-fleet/carbide/pkg/persistence"
	"github.com/carbide-fleet/carbide/pkg/recovery"
	"github.com/carbide-fleet/carbide/pkg/redfish"
)

// Loop wires the substate decision functions to their I/O collaborators:
// the persistence Store, a Redfish ClientFactory per BMC, and — only when
// site policy enables DPF — a KubeClientProvider against the external
// operator (§4.1 "DPF variant").
type Loop struct {
	Store          persistence.Store
	Factory        redfish.ClientFactory
	DPF            dpf.KubeClientProvider
	Policy         config.PolicyConfig
	Reconciler     config.ReconcilerConfig
	Escalator      recovery.Escalator
	SecretResolver config.SecretResolver
	Log            logr.Logger

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// RunOnce performs one reconciliation pass over every Host. A single host's
// failure is logged and never aborts the fan-out, matching the
// exploration engine's per-endpoint isolation.
func (l *Loop) RunOnce(ctx context.Context) error {
	hosts, err := l.Store.ListMachines(ctx, persistence.MachineFilter{Types: []model.MachineType{model.MachineTypeHost}})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	limit := l.Reconciler.MaxConcurrentHosts
	if limit <= 0 {
		limit = 16
	}
	g.SetLimit(limit)

	for _, h := range hosts {
		h := h
		g.Go(func() error {
			if err := l.reconcileHost(gctx, h); err != nil {
				l.Log.V(1).Info("host reconciliation failed", "host", h.ID.String(), "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// reconcileHost implements one host-iteration: gather a Snapshot, decide
// the next ManagedHostState, perform any side effects the decision implies,
// and persist under CAS (§4.1 "Outcome of one iteration per host").
func (l *Loop) reconcileHost(ctx context.Context, host model.Machine) error {
	dpus, err := l.Store.ListDpusForHost(ctx, host.ID)
	if err != nil {
		return err
	}
	desire, err := l.Store.GetInstanceDesire(ctx, host.ID)
	if err != nil {
		if e, ok := carbideerr.As(err); !ok || e.Kind != carbideerr.KindNotFound {
			return err
		}
		desire = nil
	}
	healthReports, err := l.Store.ListHealthReports(ctx, host.ID)
	if err != nil {
		return err
	}
	merged := model.Merged(healthReports)

	outcome := l.decide(ctx, host, dpus, desire, merged)
	metrics.ReconcileIterationsTotal.WithLabelValues(string(outcome.Kind)).Inc()

	switch outcome.Kind {
	case OutcomeWait:
		l.Log.V(2).Info("host waiting", "host", host.ID.String(), "reason", outcome.WaitReason)
		if outcome.RebootIssued {
			host.RebootAttemptCount = outcome.RebootAttemptCount
			requestedAt := outcome.RebootRequestedAt
			host.LastRebootRequestedAt = &requestedAt
			return l.persist(ctx, host)
		}
		return nil
	case OutcomeError:
		host.State = Failed(outcome.ErrorDetail)
		return l.persist(ctx, host)
	case OutcomeTransition:
		host.State = outcome.NextState
		return l.persist(ctx, host)
	}
	return nil
}

// persist writes host back with CAS; a version mismatch is a benign skip
// (§4.1 "CAS conflict on persistence write: iteration is a no-op").
func (l *Loop) persist(ctx context.Context, host model.Machine) error {
	err := l.Store.UpdateMachine(ctx, host, host.StateVersion)
	if e, ok := carbideerr.As(err); ok && e.Kind == carbideerr.KindConcurrentModification {
		return nil
	}
	return err
}

// decide dispatches on the host's independent Quarantine annotation first
// (it preempts every other substate machine), then a pending reprovision
// request, then the host's top-level ManagedHostState, matching §3's
// "Maintenance and Quarantine are independent annotations" and §4.1's
// "DPUReprovision ... terminates into HostInit::Discovered or
// Assigned::Ready".
func (l *Loop) decide(ctx context.Context, host model.Machine, dpus []model.Machine, desire *model.InstanceDesire, health []model.Alert) Outcome {
	if host.Quarantine.Quarantined {
		if host.State.Kind != model.ManagedHostStateQuarantined {
			return Transition(model.ManagedHostState{Kind: model.ManagedHostStateQuarantined})
		}
		return Wait("host is quarantined")
	}
	if host.State.Kind == model.ManagedHostStateQuarantined {
		// Quarantine was cleared by an admin; resume into Ready, the
		// nearest stable state a quarantined host can safely re-enter.
		return Transition(model.ManagedHostState{Kind: model.ManagedHostStateReady})
	}

	if host.ReprovisionRequest.Requested && host.State.Kind != model.ManagedHostStateDPUReprovision {
		return l.beginReprovision(host, dpus)
	}

	switch host.State.Kind {
	case model.ManagedHostStateHostInit:
		return l.decideHostInit(ctx, host, dpus)
	case model.ManagedHostStateDPUInit:
		return l.decideDpuInit(ctx, host, dpus)
	case model.ManagedHostStateReady:
		if desire != nil {
			return Transition(model.ManagedHostState{Kind: model.ManagedHostStateAssigned, InstanceState: model.InstanceStateBootingWithDiscoveryImage})
		}
		return Wait("no instance desire")
	case model.ManagedHostStateAssigned:
		return l.decideAssigned(host, desire, health)
	case model.ManagedHostStateDPUReprovision:
		return l.decideReprovision(ctx, host, dpus)
	case model.ManagedHostStateFailed:
		return Wait("host failed, awaiting admin intervention")
	default:
		return Error("InvalidState", "unrecognized ManagedHostState kind")
	}
}

// beginReprovision initiates the DPUReprovision pipeline across every DPU
// attached to host, matching the "all DPUs cross the barrier together"
// requirement by giving every DPU the same starting substate.
func (l *Loop) beginReprovision(host model.Machine, dpus []model.Machine) Outcome {
	states := make(map[ids.MachineId]model.ReprovisionState, len(dpus))
	for _, d := range dpus {
		states[d.ID] = model.ReprovisionStateNotUnderReprovision
	}
	return Transition(model.ManagedHostState{Kind: model.ManagedHostStateDPUReprovision, DpuReprovisionStates: states})
}
