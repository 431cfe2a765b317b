package reconciler

import (
	"testing"

	"github.com/carbide-fleet/carbide/pkg/ids"
	"github.com/carbide-fleet/carbide/pkg/model"
)

func TestDecideDpuInitHappyPathLegacy(t *testing.T) {
	s, wait := DecideDpuInit(model.DpuInitStateInstallingBFB, DpuInitSignals{BFBInstalled: true})
	if wait != "" || s != model.DpuInitStateWaitingForNetworkInstall {
		t.Fatalf("got state=%v wait=%q, want WaitingForNetworkInstall", s, wait)
	}

	s, wait = DecideDpuInit(s, DpuInitSignals{NetworkInstallObserved: true})
	if wait != "" || s != model.DpuInitStatePairing {
		t.Fatalf("got state=%v wait=%q, want Pairing", s, wait)
	}

	s, wait = DecideDpuInit(s, DpuInitSignals{PairedWithHost: true, DPFEnabled: false})
	if wait != "" || s != model.DpuInitStateLegacyMode {
		t.Fatalf("got state=%v wait=%q, want LegacyMode", s, wait)
	}

	s, wait = DecideDpuInit(s, DpuInitSignals{})
	if wait != "" || s != model.DpuInitStateReady {
		t.Fatalf("got state=%v wait=%q, want Ready", s, wait)
	}
}

func TestDecideDpuInitPairingSplitsOnDPFPolicy(t *testing.T) {
	s, _ := DecideDpuInit(model.DpuInitStatePairing, DpuInitSignals{PairedWithHost: true, DPFEnabled: true})
	if s != model.DpuInitStateDPFMode {
		t.Fatalf("state = %v, want DPFMode when site policy enables DPF", s)
	}
}

func TestDecideDpuInitWaitsWithoutRegression(t *testing.T) {
	s, wait := DecideDpuInit(model.DpuInitStatePairing, DpuInitSignals{})
	if s != model.DpuInitStatePairing || wait == "" {
		t.Fatalf("got state=%v wait=%q, want to hold at Pairing with a wait reason", s, wait)
	}
}

func TestAllDpuInitReady(t *testing.T) {
	a, b := ids.NewMachineId(ids.MachineKindDpu), ids.NewMachineId(ids.MachineKindDpu)

	if AllDpuInitReady(map[ids.MachineId]model.DpuInitState{}) {
		t.Fatalf("an empty DPU set must not report ready: a host with no DPUs takes the HasPairedDpus=false branch instead")
	}

	notReady := map[ids.MachineId]model.DpuInitState{a: model.DpuInitStateReady, b: model.DpuInitStatePairing}
	if AllDpuInitReady(notReady) {
		t.Fatalf("expected not-ready while one DPU is still Pairing")
	}

	ready := map[ids.MachineId]model.DpuInitState{a: model.DpuInitStateReady, b: model.DpuInitStateReady}
	if !AllDpuInitReady(ready) {
		t.Fatalf("expected ready once every DPU reports Ready")
	}
}

func TestAdvanceDPUInitStepsEachDpuIndependently(t *testing.T) {
	a, b := ids.NewMachineId(ids.MachineKindDpu), ids.NewMachineId(ids.MachineKindDpu)
	states := map[ids.MachineId]model.DpuInitState{
		a: model.DpuInitStateInstallingBFB,
		b: model.DpuInitStateWaitingForNetworkInstall,
	}
	signals := map[ids.MachineId]DpuInitSignals{
		a: {BFBInstalled: false},
		b: {NetworkInstallObserved: true},
	}
	progress := AdvanceDPUInit(states, signals)
	if progress[a].Next != model.DpuInitStateInstallingBFB || progress[a].Wait == "" {
		t.Fatalf("dpu a should remain installing BFB with a wait reason, got %+v", progress[a])
	}
	if progress[b].Next != model.DpuInitStatePairing || progress[b].Wait != "" {
		t.Fatalf("dpu b should advance to Pairing, got %+v", progress[b])
	}
}
