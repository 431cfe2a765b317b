package reconciler

import (
	"testing"

	"github.com/carbide-fleet/carbide/pkg/model"
)

func TestSelectPXEScriptHostInit(t *testing.T) {
	cases := []struct {
		name  string
		state MachinePXEState
		want  PXEScript
	}{
		{"bmc discovery boots scout", MachinePXEState{Kind: model.ManagedHostStateHostInit, MachineState: model.MachineStateBMCDiscovery}, PXEScriptScout},
		{"measured boot boots scout", MachinePXEState{Kind: model.ManagedHostStateHostInit, MachineState: model.MachineStateInitialMeasuredBoot}, PXEScriptScout},
		{"firmware verification exits to installed OS", MachinePXEState{Kind: model.ManagedHostStateHostInit, MachineState: model.MachineStateFirmwareVerification}, PXEScriptExit},
		{"discovered exits", MachinePXEState{Kind: model.ManagedHostStateHostInit, MachineState: model.MachineStateDiscovered}, PXEScriptExit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SelectPXEScript(model.MachineTypeHost, tc.state, ArchitectureX86_64)
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSelectPXEScriptAssigned(t *testing.T) {
	booting := MachinePXEState{Kind: model.ManagedHostStateAssigned, InstanceState: model.InstanceStateBootingWithDiscoveryImage}
	if got := SelectPXEScript(model.MachineTypeHost, booting, ArchitectureX86_64); got != PXEScriptScout {
		t.Fatalf("got %v, want scout.efi while booting the discovery image", got)
	}

	ready := MachinePXEState{Kind: model.ManagedHostStateAssigned, InstanceState: model.InstanceStateReady}
	if got := SelectPXEScript(model.MachineTypeHost, ready, ArchitectureX86_64); got != PXEScriptExit {
		t.Fatalf("got %v, want exit once the instance is Ready", got)
	}
}

func TestSelectPXEScriptDpu(t *testing.T) {
	installing := MachinePXEState{Kind: model.ManagedHostStateDPUInit, DpuInitState: model.DpuInitStateInstallingBFB}
	if got := SelectPXEScript(model.MachineTypeDpu, installing, ArchitectureAArch64); got != PXEScriptCarbide {
		t.Fatalf("got %v, want carbide.efi while the DPU installs its BFB", got)
	}

	ready := MachinePXEState{Kind: model.ManagedHostStateDPUInit, DpuInitState: model.DpuInitStateReady}
	if got := SelectPXEScript(model.MachineTypeDpu, ready, ArchitectureAArch64); got != PXEScriptExit {
		t.Fatalf("got %v, want exit once the DPU reports Ready", got)
	}

	reprovisioning := MachinePXEState{Kind: model.ManagedHostStateDPUReprovision, ReprovisionState: model.ReprovisionStateInstallDpuOs}
	if got := SelectPXEScript(model.MachineTypeDpu, reprovisioning, ArchitectureAArch64); got != PXEScriptCarbide {
		t.Fatalf("got %v, want carbide.efi while reinstalling the DPU OS", got)
	}

	postReprovision := MachinePXEState{Kind: model.ManagedHostStateDPUReprovision, ReprovisionState: model.ReprovisionStateRebootHost}
	if got := SelectPXEScript(model.MachineTypeDpu, postReprovision, ArchitectureAArch64); got != PXEScriptExit {
		t.Fatalf("got %v, want exit once the reprovision pipeline is past the install phase", got)
	}
}
