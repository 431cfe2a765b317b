package model

import (
	"testing"
	"time"

	"github.com/carbide-fleet/carbide/pkg/ids"
)

func TestReprovisionStatePhaseOrdering(t *testing.T) {
	if ReprovisionStateNotUnderReprovision.Phase() != 0 {
		t.Fatalf("NotUnderReprovision should be phase 0")
	}
	if ReprovisionStateTerminated.Phase() <= ReprovisionStateRebootHost.Phase() {
		t.Fatalf("Terminated must sort after RebootHost")
	}
	if ReprovisionStateCreateDpuDevice.Phase() != -1 {
		t.Fatalf("DPF-variant states must report phase -1, got %d", ReprovisionStateCreateDpuDevice.Phase())
	}
}

func TestAtOrPastPowerDown(t *testing.T) {
	cases := []struct {
		state ReprovisionState
		want  bool
	}{
		{ReprovisionStateInstallDpuOs, false},
		{ReprovisionStatePoweringOffHost, false},
		{ReprovisionStatePowerDown, true},
		{ReprovisionStateRebootHost, true},
		{ReprovisionStateTerminated, true},
	}
	for _, c := range cases {
		if got := c.state.AtOrPastPowerDown(); got != c.want {
			t.Fatalf("%v.AtOrPastPowerDown() = %v, want %v", c.state, got, c.want)
		}
	}
}

func TestAtOrPastInstallDpuOs(t *testing.T) {
	if ReprovisionStateNotUnderReprovision.AtOrPastInstallDpuOs() {
		t.Fatalf("NotUnderReprovision is before InstallDpuOs")
	}
	if !ReprovisionStateInstallDpuOs.AtOrPastInstallDpuOs() {
		t.Fatalf("InstallDpuOs itself should satisfy the gate")
	}
	if !ReprovisionStateTerminated.AtOrPastInstallDpuOs() {
		t.Fatalf("Terminated is well past InstallDpuOs")
	}
	if !ReprovisionStateCreateDpuDevice.AtOrPastInstallDpuOs() {
		t.Fatalf("DPF-variant states are always past the legacy gate")
	}
}

func TestReprovisionRequestHasStarted(t *testing.T) {
	if (ReprovisionRequest{}).HasStarted() {
		t.Fatalf("a zero-value request has not started")
	}
	now := time.Now()
	if !(ReprovisionRequest{StartedAt: &now}).HasStarted() {
		t.Fatalf("a request with StartedAt set has started")
	}
}

func TestAllDpuStatesInSyncBarrier(t *testing.T) {
	a, b := ids.NewMachineId(ids.MachineKindDpu), ids.NewMachineId(ids.MachineKindDpu)

	notInSync := map[ids.MachineId]ReprovisionState{
		a: ReprovisionStatePowerDown,
		b: ReprovisionStateWaitingForNetworkInstall,
	}
	if AllDpuStatesInSync(notInSync) {
		t.Fatalf("expected false: one DPU has not reached PowerDown")
	}

	inSync := map[ids.MachineId]ReprovisionState{
		a: ReprovisionStatePowerDown,
		b: ReprovisionStateRebootHost,
	}
	if !AllDpuStatesInSync(inSync) {
		t.Fatalf("expected true: both DPUs are at or past PowerDown")
	}

	if !AllDpuStatesInSync(map[ids.MachineId]ReprovisionState{}) {
		t.Fatalf("an empty set vacuously satisfies the barrier")
	}
}
