package reconciler

import (
	"testing"

	"github.com/carbide-fleet/carbide/pkg/model"
)

func TestDecideHostInitWaitsOnUnreachedSignals(t *testing.T) {
	cases := []struct {
		name    string
		current model.MachineState
		sig     HostInitSignals
	}{
		{"bmc unreachable", model.MachineStateBMCDiscovery, HostInitSignals{}},
		{"no dhcp lease", model.MachineStateHostDHCP, HostInitSignals{}},
		{"scout not booted", model.MachineStatePXEScout, HostInitSignals{}},
		{"no measured-boot report yet", model.MachineStateInitialMeasuredBoot, HostInitSignals{AttestationVerdict: model.AttestationDiscovered}},
		{"firmware mismatch", model.MachineStateFirmwareVerification, HostInitSignals{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := DecideHostInit(tc.current, tc.sig)
			if out.Kind != OutcomeWait {
				t.Fatalf("Kind = %v, want Wait", out.Kind)
			}
		})
	}
}

func TestDecideHostInitAdvancesThroughDiscovery(t *testing.T) {
	out := DecideHostInit(model.MachineStateBMCDiscovery, HostInitSignals{BMCReachable: true})
	if out.Kind != OutcomeTransition || out.NextState.MachineState != model.MachineStateHostDHCP {
		t.Fatalf("got %+v, want transition to HostDHCP", out)
	}

	out = DecideHostInit(model.MachineStateHostDHCP, HostInitSignals{HostPoweredOn: true})
	if out.Kind != OutcomeTransition || out.NextState.MachineState != model.MachineStatePXEScout {
		t.Fatalf("got %+v, want transition to PXEScout", out)
	}

	out = DecideHostInit(model.MachineStatePXEScout, HostInitSignals{ScoutImageBooted: true})
	if out.Kind != OutcomeTransition || out.NextState.MachineState != model.MachineStateInitialMeasuredBoot {
		t.Fatalf("got %+v, want transition to InitialMeasuredBoot", out)
	}
}

func TestDecideHostInitMeasuredBootFailureIsFatalUnderSecureBoot(t *testing.T) {
	sig := HostInitSignals{AttestationVerdict: model.AttestationMeasuringFailed, SecureBootRequired: true}
	out := DecideHostInit(model.MachineStateInitialMeasuredBoot, sig)
	if out.Kind != OutcomeError {
		t.Fatalf("Kind = %v, want Error when secure boot is required and attestation failed", out.Kind)
	}
}

func TestDecideHostInitMeasuredBootFailureToleratedWithoutSecureBoot(t *testing.T) {
	sig := HostInitSignals{AttestationVerdict: model.AttestationMeasuringFailed, SecureBootRequired: false}
	out := DecideHostInit(model.MachineStateInitialMeasuredBoot, sig)
	if out.Kind != OutcomeTransition || out.NextState.MachineState != model.MachineStateFirmwareVerification {
		t.Fatalf("got %+v, want transition past measured boot when secure boot isn't required", out)
	}
}

func TestDecideHostInitDiscoveredSplitsOnPairedDpus(t *testing.T) {
	out := DecideHostInit(model.MachineStateDiscovered, HostInitSignals{HasPairedDpus: true})
	if out.Kind != OutcomeTransition || out.NextState.Kind != model.ManagedHostStateDPUInit {
		t.Fatalf("got %+v, want DPUInit when DPUs are paired", out)
	}
	if out.NextState.DpuInitStates == nil {
		t.Fatalf("expected an initialized (possibly empty) DpuInitStates map")
	}

	out = DecideHostInit(model.MachineStateDiscovered, HostInitSignals{HasPairedDpus: false})
	if out.Kind != OutcomeTransition || out.NextState.Kind != model.ManagedHostStateReady {
		t.Fatalf("got %+v, want Ready when no DPUs are paired", out)
	}
}

func TestDecideHostInitUnrecognizedStateIsError(t *testing.T) {
	out := DecideHostInit(model.MachineState("bogus"), HostInitSignals{})
	if out.Kind != OutcomeError {
		t.Fatalf("Kind = %v, want Error for an unrecognized MachineState", out.Kind)
	}
}
