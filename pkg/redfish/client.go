// Package redfish wraps github.com/stmcginnis/gofish behind a narrow,
// typed interface exposing exactly the BMC operations Carbide's
// exploration engine and reconciler need, so callers never touch gofish
// types directly and tests can swap in MockClient.
package redfish

import (
	"context"
	"net"

	"github.com/stmcginnis/gofish/common"
	"github.com/stmcginnis/gofish/redfish"
)

// Client is a typed Redfish operation set against one BMC endpoint.
type Client interface {
	Close(ctx context.Context)

	GetSystemInfo(ctx context.Context) (*SystemInfo, error)
	GetChassisInfo(ctx context.Context) ([]ChassisInfo, error)
	GetManagers(ctx context.Context) ([]ManagerInfo, error)
	GetFirmwareInventory(ctx context.Context) (map[string]string, error)
	GetBIOSAttributes(ctx context.Context) (map[string]interface{}, error)

	GetPowerState(ctx context.Context) (redfish.PowerState, error)
	SetPowerState(ctx context.Context, state redfish.PowerState) error
	RebootBMC(ctx context.Context) error

	GetSecureBootEnabled(ctx context.Context) (bool, error)
	GetBootOrder(ctx context.Context) ([]string, error)
	SetBootOrder(ctx context.Context, order []string) error

	SetBootSourceISO(ctx context.Context, isoURL string) error
	SetBootSourcePXE(ctx context.Context) error
	EjectVirtualMedia(ctx context.Context) error

	SetBootParameters(ctx context.Context, params []string) error
	SetBootParametersWithAnnotations(ctx context.Context, params []string, annotations map[string]string) error

	GetNetworkAddresses(ctx context.Context) ([]NetworkAddress, error)
}

// SystemInfo is the subset of a Redfish ComputerSystem Carbide cares about.
type SystemInfo struct {
	ID           string
	Manufacturer string
	Model        string
	SerialNumber string
	Status       common.Status
}

// ChassisInfo is the subset of a Redfish Chassis Carbide cares about,
// including the position fields the exploration engine merges "first wins"
// across multiple chassis entries.
type ChassisInfo struct {
	ID           string
	PartNumber   string
	SerialNumber string
	PhysicalSlot string
	ComputeTrayIndex string
	TopologyID       string
	RevisionID       string
}

// ManagerInfo is the subset of a Redfish Manager (BMC firmware, etc.)
// Carbide cares about.
type ManagerInfo struct {
	ID              string
	FirmwareVersion string
}

// NetworkAddressType distinguishes IPv4 from IPv6 addresses.
type NetworkAddressType string

const (
	IPv4AddressType NetworkAddressType = "IPv4"
	IPv6AddressType NetworkAddressType = "IPv6"
)

// NetworkAddress is one interface address reported by the BMC.
type NetworkAddress struct {
	Type          NetworkAddressType
	Address       string
	Gateway       string
	InterfaceName string
	MACAddress    string
}

// ClientFactory creates a Client for one BMC endpoint; both the
// exploration engine and the reconciler depend on this function type
// rather than a concrete constructor, so tests can inject MockClient.
type ClientFactory func(ctx context.Context, address, username, password string, insecure bool) (Client, error)

// IsPrivateIPv4 reports whether ip is within an RFC 1918 private range (or
// loopback/link-local), used to classify discovered BMC-adjacent addresses.
func IsPrivateIPv4(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
	} {
		if _, n, err := net.ParseCIDR(cidr); err == nil && n.Contains(parsed) {
			return true
		}
	}
	return false
}

// IsPrivateIPv6 reports whether ip is an RFC 4193 ULA, link-local, or loopback address.
func IsPrivateIPv6(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, cidr := range []string{
		"fc00::/7",
		"fe80::/10",
		"::1/128",
	} {
		if _, n, err := net.ParseCIDR(cidr); err == nil && n.Contains(parsed) {
			return true
		}
	}
	return false
}
