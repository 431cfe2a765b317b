package model

import (
	"github.com/carbide-fleet/carbide/pkg/ids"
)

// NetworkConfig is the desired network configuration for an instance's
// managed host, as handed to the DPU agent.
type NetworkConfig struct {
	Interfaces []NetworkInterfaceConfig
	IBConfig   *InfiniBandConfig
}

// NetworkInterfaceConfig describes one interface's desired addressing.
type NetworkInterfaceConfig struct {
	Name    string
	MAC     string
	Address string
	VLAN    int
}

// InfiniBandConfig is the desired IB fabric binding for an instance, the one
// point where fabric programming intersects the instance state machine
// (everything else about fabric programming is out of scope).
type InfiniBandConfig struct {
	PartitionKey string
	GUID         string
}

// InstanceDesire is the admin/tenant-facing desired state for an assigned
// machine; the reconciler reconciles Assigned substates toward it.
type InstanceDesire struct {
	ID             ids.InstanceId
	TargetMachineID ids.MachineId
	Network        NetworkConfig
	ConfigVersion  int64
}

// AgentUpgradePolicy is the DPU agent's self-upgrade policy.
type AgentUpgradePolicy string

const (
	AgentUpgradePolicyOff    AgentUpgradePolicy = "Off"
	AgentUpgradePolicyUpOnly AgentUpgradePolicy = "UpOnly"
	AgentUpgradePolicyUpDown AgentUpgradePolicy = "UpDown"
)
