package exploration

import (
	"net"
	"testing"

	"github.com/carbide-fleet/carbide/pkg/model"
)

func TestPairHostsHappyPath(t *testing.T) {
	host := model.EndpointExplorationReport{
		IP:               net.ParseIP("10.0.0.1"),
		Type:             model.EndpointTypeHostBMC,
		SystemIDs:        []string{"System.Embedded.1"},
		BootInterfaceMAC: "aa:bb:cc:dd:ee:01",
	}
	dpu := model.EndpointExplorationReport{
		IP:      net.ParseIP("10.0.0.2"),
		Type:    model.EndpointTypeDpuBMC,
		PF0MAC:  "aa:bb:cc:dd:ee:01",
		NicMode: model.NicModeDPU,
	}

	out := PairHosts([]model.EndpointExplorationReport{host, dpu})
	if len(out) != 1 {
		t.Fatalf("expected 1 paired host, got %d", len(out))
	}
	if !out[0].IsPaired() {
		t.Fatalf("expected host to be paired, blockers: %v", out[0].BlockedBy)
	}
	if len(out[0].Dpus) != 1 || out[0].Dpus[0].BmcIP.String() != "10.0.0.2" {
		t.Fatalf("unexpected dpu match: %+v", out[0].Dpus)
	}
}

func TestPairHostsMissingSystemReport(t *testing.T) {
	host := model.EndpointExplorationReport{
		IP:   net.ParseIP("10.0.0.1"),
		Type: model.EndpointTypeHostBMC,
	}
	out := PairHosts([]model.EndpointExplorationReport{host})
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	if out[0].IsPaired() {
		t.Fatal("expected unpaired result")
	}
	if len(out[0].BlockedBy) != 1 || out[0].BlockedBy[0] != model.PairingBlockerHostSystemReportMissing {
		t.Fatalf("unexpected blockers: %v", out[0].BlockedBy)
	}
}

func TestPairHostsNoMatchingDpu(t *testing.T) {
	host := model.EndpointExplorationReport{
		IP:               net.ParseIP("10.0.0.1"),
		Type:             model.EndpointTypeHostBMC,
		SystemIDs:        []string{"System.Embedded.1"},
		BootInterfaceMAC: "aa:bb:cc:dd:ee:01",
	}
	dpu := model.EndpointExplorationReport{
		IP:     net.ParseIP("10.0.0.2"),
		Type:   model.EndpointTypeDpuBMC,
		PF0MAC: "ff:ff:ff:ff:ff:ff",
	}
	out := PairHosts([]model.EndpointExplorationReport{host, dpu})
	if out[0].IsPaired() {
		t.Fatal("expected unpaired result")
	}
	if len(out[0].BlockedBy) != 1 || out[0].BlockedBy[0] != model.PairingBlockerNoDpuReportedByHost {
		t.Fatalf("unexpected blockers: %v", out[0].BlockedBy)
	}
}

func TestPairHostsDpuNicModeUnknown(t *testing.T) {
	host := model.EndpointExplorationReport{
		IP:               net.ParseIP("10.0.0.1"),
		Type:             model.EndpointTypeHostBMC,
		SystemIDs:        []string{"System.Embedded.1"},
		BootInterfaceMAC: "aa:bb:cc:dd:ee:01",
	}
	dpu := model.EndpointExplorationReport{
		IP:     net.ParseIP("10.0.0.2"),
		Type:   model.EndpointTypeDpuBMC,
		PF0MAC: "aa:bb:cc:dd:ee:01",
		// NicMode left at its zero value: the BMC never reported one.
	}
	out := PairHosts([]model.EndpointExplorationReport{host, dpu})
	if out[0].IsPaired() {
		t.Fatal("expected unpaired result for an undetermined NIC mode")
	}
	if len(out[0].BlockedBy) != 1 || out[0].BlockedBy[0] != model.PairingBlockerDpuNicModeUnknown {
		t.Fatalf("unexpected blockers: %v", out[0].BlockedBy)
	}
}

func TestPairHostsManualPowerCycleRequiredOnNonDellHost(t *testing.T) {
	host := model.EndpointExplorationReport{
		IP:               net.ParseIP("10.0.0.1"),
		Type:             model.EndpointTypeHostBMC,
		Vendor:           "Supermicro",
		SystemIDs:        []string{"System.Embedded.1"},
		BootInterfaceMAC: "aa:bb:cc:dd:ee:01",
	}
	dpu := model.EndpointExplorationReport{
		IP:      net.ParseIP("10.0.0.2"),
		Type:    model.EndpointTypeDpuBMC,
		PF0MAC:  "aa:bb:cc:dd:ee:01",
		NicMode: model.NicModeNIC,
	}
	out := PairHosts([]model.EndpointExplorationReport{host, dpu})
	if out[0].IsPaired() {
		t.Fatal("expected unpaired result for a non-Dell host with a DPU still in NIC mode")
	}
	if len(out[0].BlockedBy) != 1 || out[0].BlockedBy[0] != model.PairingBlockerManualPowerCycleRequired {
		t.Fatalf("unexpected blockers: %v", out[0].BlockedBy)
	}
}

func TestPairHostsDellHostNicModeSwitchNotBlocked(t *testing.T) {
	host := model.EndpointExplorationReport{
		IP:               net.ParseIP("10.0.0.1"),
		Type:             model.EndpointTypeHostBMC,
		Vendor:           "Dell Inc.",
		SystemIDs:        []string{"System.Embedded.1"},
		BootInterfaceMAC: "aa:bb:cc:dd:ee:01",
	}
	dpu := model.EndpointExplorationReport{
		IP:      net.ParseIP("10.0.0.2"),
		Type:    model.EndpointTypeDpuBMC,
		PF0MAC:  "aa:bb:cc:dd:ee:01",
		NicMode: model.NicModeNIC,
	}
	out := PairHosts([]model.EndpointExplorationReport{host, dpu})
	if !out[0].IsPaired() {
		t.Fatalf("expected a Dell host to pair through a DPU NIC-mode switch, blockers: %v", out[0].BlockedBy)
	}
}

func TestPairHostsVikingCpldVersionIssue(t *testing.T) {
	host := model.EndpointExplorationReport{
		IP:               net.ParseIP("10.0.0.1"),
		Type:             model.EndpointTypeHostBMC,
		SystemIDs:        []string{"System.Embedded.1"},
		BootInterfaceMAC: "aa:bb:cc:dd:ee:01",
	}
	dpu := model.EndpointExplorationReport{
		IP:      net.ParseIP("10.0.0.2"),
		Type:    model.EndpointTypeDpuBMC,
		PF0MAC:  "aa:bb:cc:dd:ee:01",
		NicMode: model.NicModeDPU,
		Firmware: model.FirmwareInventory{
			model.FirmwareComponentCPLD: "1.2.0",
		},
	}
	out := PairHosts([]model.EndpointExplorationReport{host, dpu})
	if out[0].IsPaired() {
		t.Fatal("expected unpaired result for a too-old Viking CPLD version")
	}
	if len(out[0].BlockedBy) != 1 || out[0].BlockedBy[0] != model.PairingBlockerVikingCpldVersionIssue {
		t.Fatalf("unexpected blockers: %v", out[0].BlockedBy)
	}
}

func TestPairHostsIdempotentUnderInputOrder(t *testing.T) {
	host := model.EndpointExplorationReport{
		IP:               net.ParseIP("10.0.0.1"),
		Type:             model.EndpointTypeHostBMC,
		SystemIDs:        []string{"System.Embedded.1"},
		BootInterfaceMAC: "aa:bb:cc:dd:ee:01",
	}
	dpuA := model.EndpointExplorationReport{IP: net.ParseIP("10.0.0.2"), Type: model.EndpointTypeDpuBMC, PF0MAC: "aa:bb:cc:dd:ee:01", NicMode: model.NicModeDPU}
	dpuB := model.EndpointExplorationReport{IP: net.ParseIP("10.0.0.3"), Type: model.EndpointTypeDpuBMC, PF0MAC: "aa:bb:cc:dd:ee:01", NicMode: model.NicModeDPU}

	out1 := PairHosts([]model.EndpointExplorationReport{host, dpuA, dpuB})
	out2 := PairHosts([]model.EndpointExplorationReport{dpuB, dpuA, host})

	if len(out1) != 1 || len(out2) != 1 {
		t.Fatalf("expected 1 result each, got %d and %d", len(out1), len(out2))
	}
	if len(out1[0].Dpus) != 2 || len(out2[0].Dpus) != 2 {
		t.Fatalf("expected 2 matched dpus each")
	}
	for i := range out1[0].Dpus {
		if out1[0].Dpus[i].BmcIP.String() != out2[0].Dpus[i].BmcIP.String() {
			t.Fatalf("pairing order not deterministic: %v vs %v", out1[0].Dpus, out2[0].Dpus)
		}
	}
}
