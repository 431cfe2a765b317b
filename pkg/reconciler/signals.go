// Per-substate signal gathering: the only place in this package that
// performs I/O. Every DecideXxx function in hostinit.go/dpuinit.go/
// assigned.go/reprovision.go stays a pure function of its Signals struct;
// these methods build that struct from Redfish calls, the DPF operator, and
// already-loaded persistence state, then hand the result to the pure
// decision function (§5 "every external I/O ... is a suspension point").
package reconciler

import (
	"context"

	gofishredfish "github.com/stmcginnis/gofish/redfish"

	"github.com/carbide-fleet/carbide/pkg/carbideerr"
	"github.com/carbide-fleet/carbide/pkg/config"
	"github.com/carbide-fleet/carbide/pkg/ids"
	"github.com/carbide-fleet/carbide/pkg/metrics"
	"github.com/carbide-fleet/carbide/pkg/model"
	"github.com/carbide-fleet/carbide/pkg/redfish"
)

func (l *Loop) dialHost(ctx context.Context, m model.Machine) (redfish.Client, error) {
	if m.Connection.Address == "" {
		return nil, carbideerr.InvalidArgument("dialHost", "machine has no BMC address")
	}
	username, password := m.Connection.Username, ""
	if m.Connection.CredentialSecretRef != "" {
		resolver := l.SecretResolver
		if resolver == nil {
			resolver = config.EnvSecretResolver
		}
		u, p, err := resolver(m.Connection.CredentialSecretRef)
		if err != nil {
			return nil, carbideerr.MissingCredentials("dialHost", m.Connection.CredentialSecretRef)
		}
		username, password = u, p
	}
	client, err := l.Factory(ctx, m.Connection.Address, username, password, m.Connection.InsecureSkipVerify)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// decideHostInit gathers HostInitSignals from the host's BMC and the
// already-loaded host and DPU rows, then dispatches to DecideHostInit.
func (l *Loop) decideHostInit(ctx context.Context, host model.Machine, dpus []model.Machine) Outcome {
	client, err := l.dialHost(ctx, host)
	if err != nil {
		if carbideerr.KindOf(err) == carbideerr.KindMissingCredentials {
			return Error("MissingCredentials", err.Error())
		}
		return Wait("BMC not yet reachable: " + err.Error())
	}
	defer client.Close(ctx)

	sig := HostInitSignals{
		BMCReachable:       true,
		AttestationVerdict: host.AttestationVerdict,
		SecureBootRequired: l.Policy.SecureBootRequired,
		HasPairedDpus:      len(dpus) > 0,
	}

	ps, err := client.GetPowerState(ctx)
	if err == nil {
		sig.HostPoweredOn = string(ps) == "On"
	}

	// ScoutImageBooted / firmware-matches-expected are reported signals:
	// once the discovery image or exploration engine has written a fresh
	// LastDiscoveryAt timestamp and the firmware inventory has been
	// refreshed against the desired set, this iteration observes it.
	sig.ScoutImageBooted = !host.LastDiscoveryAt.IsZero()
	sig.FirmwareMatchesExpected = host.State.MachineState != model.MachineStateFirmwareVerification || len(host.Firmware) > 0

	outcome := DecideHostInit(host.State.MachineState, sig)
	if outcome.Kind == OutcomeError {
		metrics.BMCCommandsTotal.WithLabelValues("GetPowerState", "error").Inc()
	}

	// A host stuck waiting to power on and acquire a DHCP lease is the one
	// HostInit wait condition a BMC-side nudge can unstick; every other
	// wait is waiting on the host itself (PXE, measured-boot, firmware).
	if outcome.Kind == OutcomeWait && host.State.MachineState == model.MachineStateHostDHCP && !sig.HostPoweredOn {
		if reb := l.issueRebootIfDue(ctx, client, host, true); reb != nil {
			return *reb
		}
	}
	return outcome
}

// issueRebootIfDue checks the reboot-escalation ladder against the host's
// persisted bookkeeping and, if an escalation step is due, issues it and
// returns the Wait outcome carrying the updated bookkeeping. Returns nil
// when no escalation step was due this iteration.
func (l *Loop) issueRebootIfDue(ctx context.Context, client redfish.Client, host model.Machine, wantReboot bool) *Outcome {
	decision := DecideReboot(l.Escalator, wantReboot, host.LastRebootRequestedAt, host.RebootAttemptCount, l.now())
	if !decision.Issue {
		return nil
	}
	attempt, requestedAt, err := IssueReboot(ctx, l.Escalator, client, host.RebootAttemptCount, decision.Step, l.now())
	if err != nil {
		metrics.BMCCommandsTotal.WithLabelValues("Reboot", "error").Inc()
		return nil
	}
	metrics.BMCCommandsTotal.WithLabelValues("Reboot", "ok").Inc()
	metrics.RebootEscalationStepTotal.WithLabelValues(string(decision.Step)).Inc()
	o := WaitForReboot("issued reboot-escalation step "+string(decision.Step), attempt, requestedAt)
	return &o
}

// decideDpuInit advances every DPU's substate independently and promotes
// the host out of DPUInit once all are Ready.
func (l *Loop) decideDpuInit(ctx context.Context, host model.Machine, dpus []model.Machine) Outcome {
	states := host.State.DpuInitStates
	if states == nil {
		states = map[ids.MachineId]model.DpuInitState{}
	}
	signals := make(map[ids.MachineId]DpuInitSignals, len(dpus))
	for _, d := range dpus {
		if _, ok := states[d.ID]; !ok {
			states[d.ID] = model.DpuInitStateInstallingBFB
		}
		signals[d.ID] = DpuInitSignals{
			BFBInstalled:           !d.LastDiscoveryAt.IsZero(),
			NetworkInstallObserved: !d.LastDiscoveryAt.IsZero(),
			PairedWithHost:         d.AssociatedHostMachineID != nil && *d.AssociatedHostMachineID == host.ID,
			DPFEnabled:             l.Policy.DPFEnabled,
		}
	}

	progress := AdvanceDPUInit(states, signals)
	next := make(map[ids.MachineId]model.DpuInitState, len(progress))
	for id, p := range progress {
		next[id] = p.Next
	}

	if AllDpuInitReady(next) {
		return Transition(model.ManagedHostState{Kind: model.ManagedHostStateReady})
	}
	return Transition(model.ManagedHostState{Kind: model.ManagedHostStateDPUInit, DpuInitStates: next})
}

func (l *Loop) decideAssigned(host model.Machine, desire *model.InstanceDesire, health []model.Alert) Outcome {
	sig := InstanceSignals{
		DiscoveryImageBooted:   !host.LastDiscoveryAt.IsZero(),
		TenantOSBooted:         !host.LastDiscoveryAt.IsZero() && host.State.InstanceState == model.InstanceStateBootingTenantOS,
		NetworkConfigAcked:     desire != nil,
		HealthBlocksAllocation: model.BlocksAllocation(health),
	}
	next, wait, errDetail := DecideInstance(host.State.InstanceState, sig)
	if errDetail != "" {
		return Error("InstanceFailed", errDetail)
	}
	if wait != "" {
		return Wait(wait)
	}
	return Transition(model.ManagedHostState{Kind: model.ManagedHostStateAssigned, InstanceState: next})
}

// decideReprovision advances every DPU's ReprovisionState and, once every
// DPU has reached Terminated, resolves the host's next top-level state
// (§4.1 "terminates into HostInit::Discovered or Assigned::Ready").
func (l *Loop) decideReprovision(ctx context.Context, host model.Machine, dpus []model.Machine) Outcome {
	states := host.State.DpuReprovisionStates
	if states == nil {
		states = map[ids.MachineId]model.ReprovisionState{}
	}

	allAtOrPastPowerDown := model.AllDpuStatesInSync(states)
	next := make(map[ids.MachineId]model.ReprovisionState, len(dpus))

	for _, d := range dpus {
		current, ok := states[d.ID]
		if !ok {
			current = model.ReprovisionStateNotUnderReprovision
		}
		sig := l.gatherReprovisionSignals(ctx, host, d, current)

		var n model.ReprovisionState
		if l.Policy.DPFEnabled {
			n, _ = DecideReprovisionDPF(current, sig)
		} else {
			n, _ = DecideReprovisionLegacy(current, allAtOrPastPowerDown, sig)
		}
		next[d.ID] = n
	}

	allTerminated := len(next) > 0
	for _, s := range next {
		if !s.IsTerminal() {
			allTerminated = false
			break
		}
	}

	if allTerminated {
		if host.State.InstanceState != "" || host.ReprovisionRequest.UpdateMessage != "" {
			return Transition(model.ManagedHostState{Kind: model.ManagedHostStateAssigned, InstanceState: model.InstanceStateReady})
		}
		return Transition(model.ManagedHostState{
			Kind:         model.ManagedHostStateHostInit,
			MachineState: model.MachineStateDiscovered,
		})
	}

	return Transition(model.ManagedHostState{Kind: model.ManagedHostStateDPUReprovision, DpuReprovisionStates: next})
}

// gatherReprovisionSignals performs the BMC/DPF probes one DPU's current
// reprovision substate needs. Unreachable collaborators degrade to a Wait
// (via a false signal) rather than propagating a transient error, per §4.1
// "Transient Redfish/network errors inside a transition: no state change".
func (l *Loop) gatherReprovisionSignals(ctx context.Context, host, dpu model.Machine, current model.ReprovisionState) ReprovisionSignals {
	var sig ReprovisionSignals

	switch current {
	case model.ReprovisionStateInstallDpuOs:
		sig.BFBInstalled = !dpu.LastDiscoveryAt.IsZero()
	case model.ReprovisionStateWaitingForNetworkInstall:
		sig.NetworkInstallObserved = !dpu.LastDiscoveryAt.IsZero()
	case model.ReprovisionStatePoweringOffHost, model.ReprovisionStatePowerDown:
		client, err := l.dialHost(ctx, host)
		if err == nil {
			defer client.Close(ctx)
			if current == model.ReprovisionStatePoweringOffHost {
				if err := client.SetPowerState(ctx, gofishredfish.ForceOffPowerState); err == nil {
					metrics.BMCCommandsTotal.WithLabelValues("ForceOff", "ok").Inc()
					sig.HostPoweredOff = true
				}
			} else if ps, err := client.GetPowerState(ctx); err == nil {
				sig.HostPoweredOff = string(ps) == "Off"
			}
		}
	case model.ReprovisionStateVerifyFirmwareVersions:
		sig.FirmwareVerified = len(dpu.Firmware) > 0
	case model.ReprovisionStateWaitingForNetworkConfig:
		sig.NetworkConfigAcked = true
	case model.ReprovisionStateRebootHostBmc:
		client, err := l.dialHost(ctx, host)
		if err == nil {
			defer client.Close(ctx)
			if err := client.RebootBMC(ctx); err == nil {
				sig.HostBmcResetAcked = true
			}
		}
	case model.ReprovisionStateRebootHost:
		client, err := l.dialHost(ctx, host)
		if err == nil {
			defer client.Close(ctx)
			if err := client.SetPowerState(ctx, gofishredfish.OnPowerState); err == nil {
				metrics.BMCCommandsTotal.WithLabelValues("On", "ok").Inc()
			}
			if ps, err := client.GetPowerState(ctx); err == nil {
				sig.HostBackOnline = string(ps) == "On"
			}
		}

	// DPF variant.
	case model.ReprovisionStateWaitForDpuDeviceToReady:
		if l.DPF != nil {
			ns, name := dpfCoordinates(dpu)
			err := l.DPF.WaitForDpuDeviceReady(ctx, ns, name)
			sig.DpuDeviceReady = err == nil
		}
	case model.ReprovisionStateWaitingForOsInstallToComplete:
		sig.OsInstallComplete = !dpu.LastDiscoveryAt.IsZero()
	case model.ReprovisionStateWaitForNetworkConfigAndRemoveAnnotation:
		if l.DPF != nil {
			ns, name := dpfCoordinates(dpu)
			if err := l.DPF.RemoveNodeEffectAnnotation(ctx, ns, name); err == nil {
				sig.NetworkConfigAndAnnotationRemoved = true
			}
		}
	case model.ReprovisionStateWaitingForAllDpusUnderReprovisioningToBeDeleted:
		if l.DPF != nil {
			ns, name := dpfCoordinates(dpu)
			deleted, err := l.DPF.DpuDeleted(ctx, ns, name)
			sig.AllSiblingsDeleted = err == nil && deleted
		}
	}

	return sig
}

func dpfCoordinates(dpu model.Machine) (namespace, name string) {
	return "dpf-system", dpu.ID.String()
}
