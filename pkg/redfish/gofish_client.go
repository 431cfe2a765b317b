package redfish

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-logr/logr"
	"github.com/stmcginnis/gofish"
	"github.com/stmcginnis/gofish/common"
	"github.com/stmcginnis/gofish/redfish"

	"github.com/carbide-fleet/carbide/pkg/carbideerr"
)

// gofishClient implements Client using github.com/stmcginnis/gofish.
type gofishClient struct {
	gofish      *gofish.APIClient
	apiEndpoint string
	log         logr.Logger
}

// NewClient connects to address and returns a Client. address is given a
// "https://" scheme if none is present.
func NewClient(ctx context.Context, address, username, password string, insecure bool) (Client, error) {
	log := logr.FromContextOrDiscard(ctx).WithName("redfish-client")

	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		address = "https://" + address
	}

	cfg := gofish.ClientConfig{
		Endpoint: address,
		Username: username,
		Password: password,
		Insecure: insecure,
	}

	c, err := gofish.ConnectContext(ctx, cfg)
	if err != nil {
		return nil, classifyConnectError("NewClient", address, err)
	}

	log.V(1).Info("connected to redfish endpoint", "address", address)
	return &gofishClient{gofish: c, apiEndpoint: address, log: log}, nil
}

func classifyConnectError(op, endpoint string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return carbideerr.ConnectionTimeout(op, endpoint, err)
		}
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "401"), strings.Contains(strings.ToLower(msg), "unauthorized"):
		return carbideerr.Unauthorized(op, endpoint)
	case strings.Contains(msg, "connection refused"):
		return carbideerr.ConnectionRefused(op, endpoint, err)
	case strings.Contains(msg, "no route to host"), strings.Contains(msg, "network is unreachable"):
		return carbideerr.Unreachable(op, endpoint, err)
	default:
		return carbideerr.Unreachable(op, endpoint, err)
	}
}

func (c *gofishClient) Close(ctx context.Context) {
	if c.gofish != nil {
		c.gofish.Logout()
		c.gofish = nil
	}
}

func (c *gofishClient) getSystem(ctx context.Context) (*redfish.ComputerSystem, error) {
	if c.gofish == nil {
		return nil, carbideerr.Internal("getSystem", fmt.Errorf("redfish client is not connected"))
	}
	systems, err := c.gofish.Service.Systems()
	if err != nil {
		return nil, carbideerr.RedfishError("GetSystems", c.apiEndpoint, 0, err.Error())
	}
	if len(systems) == 0 {
		return nil, carbideerr.RedfishError("GetSystems", c.apiEndpoint, 0, "no systems found")
	}
	return systems[0], nil
}

func (c *gofishClient) GetSystemInfo(ctx context.Context) (*SystemInfo, error) {
	system, err := c.getSystem(ctx)
	if err != nil {
		return nil, err
	}
	return &SystemInfo{
		ID:           system.ID,
		Manufacturer: system.Manufacturer,
		Model:        system.Model,
		SerialNumber: system.SerialNumber,
		Status:       system.Status,
	}, nil
}

func (c *gofishClient) GetChassisInfo(ctx context.Context) ([]ChassisInfo, error) {
	if c.gofish == nil {
		return nil, carbideerr.Internal("GetChassisInfo", fmt.Errorf("redfish client is not connected"))
	}
	chassisList, err := c.gofish.Service.Chassis()
	if err != nil {
		return nil, carbideerr.RedfishError("GetChassisInfo", c.apiEndpoint, 0, err.Error())
	}
	out := make([]ChassisInfo, 0, len(chassisList))
	for _, ch := range chassisList {
		out = append(out, ChassisInfo{
			ID:           ch.ID,
			PartNumber:   ch.PartNumber,
			SerialNumber: ch.SerialNumber,
		})
	}
	return out, nil
}

func (c *gofishClient) GetManagers(ctx context.Context) ([]ManagerInfo, error) {
	if c.gofish == nil {
		return nil, carbideerr.Internal("GetManagers", fmt.Errorf("redfish client is not connected"))
	}
	managers, err := c.gofish.Service.Managers()
	if err != nil {
		return nil, carbideerr.RedfishError("GetManagers", c.apiEndpoint, 0, err.Error())
	}
	out := make([]ManagerInfo, 0, len(managers))
	for _, m := range managers {
		out = append(out, ManagerInfo{ID: m.ID, FirmwareVersion: m.FirmwareVersion})
	}
	return out, nil
}

func (c *gofishClient) GetFirmwareInventory(ctx context.Context) (map[string]string, error) {
	if c.gofish == nil {
		return nil, carbideerr.Internal("GetFirmwareInventory", fmt.Errorf("redfish client is not connected"))
	}
	us, err := c.gofish.Service.UpdateService()
	if err != nil {
		return nil, carbideerr.RedfishError("GetFirmwareInventory", c.apiEndpoint, 0, err.Error())
	}
	inventory, err := us.FirmwareInventories()
	if err != nil {
		return nil, carbideerr.RedfishError("GetFirmwareInventory", c.apiEndpoint, 0, err.Error())
	}
	out := make(map[string]string, len(inventory))
	for _, sw := range inventory {
		out[sw.ID] = sw.Version
	}
	return out, nil
}

// GetBIOSAttributes returns the connected System's full BIOS attribute map,
// delegating to the BIOSAttributeManager this client already exposes for
// vendor boot-parameter injection. Exploration reads a DPU's NIC/DPU mode
// toggle off this same map (see ParseNicMode).
func (c *gofishClient) GetBIOSAttributes(ctx context.Context) (map[string]interface{}, error) {
	return NewBIOSAttributeManager(c).GetBIOSAttributes(ctx, nil)
}

func (c *gofishClient) GetPowerState(ctx context.Context) (redfish.PowerState, error) {
	system, err := c.getSystem(ctx)
	if err != nil {
		return "", err
	}
	return system.PowerState, nil
}

func (c *gofishClient) SetPowerState(ctx context.Context, state redfish.PowerState) error {
	system, err := c.getSystem(ctx)
	if err != nil {
		return err
	}

	var resetType redfish.ResetType
	switch state {
	case redfish.OnPowerState:
		resetType = redfish.OnResetType
	case redfish.OffPowerState:
		resetType = redfish.ForceOffResetType
	default:
		switch redfish.ResetType(state) {
		case redfish.OnResetType, redfish.ForceOffResetType, redfish.GracefulShutdownResetType,
			redfish.GracefulRestartResetType, redfish.ForceRestartResetType, redfish.NmiResetType,
			redfish.ForceOnResetType, redfish.PushPowerButtonResetType, redfish.PowerCycleResetType:
			resetType = redfish.ResetType(state)
		default:
			return carbideerr.InvalidArgument("SetPowerState", fmt.Sprintf("unsupported power state %q", state))
		}
	}

	if err := system.Reset(resetType); err != nil {
		return carbideerr.RedfishError("SetPowerState", c.apiEndpoint, 0, err.Error())
	}
	return nil
}

func (c *gofishClient) RebootBMC(ctx context.Context) error {
	if c.gofish == nil {
		return carbideerr.Internal("RebootBMC", fmt.Errorf("redfish client is not connected"))
	}
	managers, err := c.gofish.Service.Managers()
	if err != nil {
		return carbideerr.RedfishError("RebootBMC", c.apiEndpoint, 0, err.Error())
	}
	if len(managers) == 0 {
		return carbideerr.RedfishError("RebootBMC", c.apiEndpoint, 0, "no managers found")
	}
	if err := managers[0].Reset(redfish.GracefulRestartResetType); err != nil {
		return carbideerr.RedfishError("RebootBMC", c.apiEndpoint, 0, err.Error())
	}
	return nil
}

func (c *gofishClient) GetSecureBootEnabled(ctx context.Context) (bool, error) {
	system, err := c.getSystem(ctx)
	if err != nil {
		return false, err
	}
	sb, err := system.SecureBoot()
	if err != nil {
		return false, carbideerr.RedfishError("GetSecureBootEnabled", c.apiEndpoint, 0, err.Error())
	}
	return sb.SecureBootEnable, nil
}

func (c *gofishClient) GetBootOrder(ctx context.Context) ([]string, error) {
	system, err := c.getSystem(ctx)
	if err != nil {
		return nil, err
	}
	return system.Boot.BootOrder, nil
}

func (c *gofishClient) SetBootOrder(ctx context.Context, order []string) error {
	system, err := c.getSystem(ctx)
	if err != nil {
		return err
	}
	if err := system.SetBoot(redfish.Boot{BootOrder: order}); err != nil {
		return carbideerr.RedfishError("SetBootOrder", c.apiEndpoint, 0, err.Error())
	}
	return nil
}

func (c *gofishClient) findFirstVirtualMedia(ctx context.Context) (*redfish.VirtualMedia, error) {
	if c.gofish == nil {
		return nil, carbideerr.Internal("findFirstVirtualMedia", fmt.Errorf("redfish client is not connected"))
	}
	system, err := c.getSystem(ctx)
	if err != nil {
		return nil, err
	}
	mgrLinks, err := system.ManagedBy()
	if err != nil || len(mgrLinks) == 0 {
		return nil, carbideerr.RedfishError("findFirstVirtualMedia", c.apiEndpoint, 0, "system has no manager links")
	}
	mgr, err := redfish.GetManager(c.gofish, mgrLinks[0].ODataID)
	if err != nil {
		return nil, carbideerr.RedfishError("findFirstVirtualMedia", c.apiEndpoint, 0, err.Error())
	}
	virtualMedia, err := mgr.VirtualMedia()
	if err != nil {
		return nil, carbideerr.RedfishError("findFirstVirtualMedia", c.apiEndpoint, 0, err.Error())
	}
	for _, vm := range virtualMedia {
		for _, mediaType := range vm.MediaTypes {
			if mediaType == redfish.CDMediaType || mediaType == redfish.DVDMediaType {
				return vm, nil
			}
		}
	}
	return nil, carbideerr.RedfishError("findFirstVirtualMedia", c.apiEndpoint, 0, "no suitable virtual media found")
}

func (c *gofishClient) SetBootSourceISO(ctx context.Context, isoURL string) error {
	vm, err := c.findFirstVirtualMedia(ctx)
	if err != nil {
		return err
	}

	if err := vm.InsertMedia(isoURL, true, false); err != nil {
		if vm.Image != "" && vm.Image != isoURL {
			if ejectErr := vm.EjectMedia(); ejectErr != nil {
				c.log.V(1).Info("eject before re-insert failed", "error", ejectErr)
			}
			if err = vm.InsertMedia(isoURL, true, false); err != nil {
				return carbideerr.RedfishError("SetBootSourceISO", c.apiEndpoint, 0, err.Error())
			}
		} else if vm.Image != isoURL {
			return carbideerr.RedfishError("SetBootSourceISO", c.apiEndpoint, 0, err.Error())
		}
	}

	system, err := c.getSystem(ctx)
	if err != nil {
		return err
	}
	boot := redfish.Boot{
		BootSourceOverrideTarget:  redfish.CdBootSourceOverrideTarget,
		BootSourceOverrideEnabled: redfish.OnceBootSourceOverrideEnabled,
	}
	if err := system.SetBoot(boot); err != nil {
		return carbideerr.RedfishError("SetBootSourceISO", c.apiEndpoint, 0, err.Error())
	}
	return nil
}

func (c *gofishClient) SetBootSourcePXE(ctx context.Context) error {
	system, err := c.getSystem(ctx)
	if err != nil {
		return err
	}
	boot := redfish.Boot{
		BootSourceOverrideTarget:  redfish.PxeBootSourceOverrideTarget,
		BootSourceOverrideEnabled: redfish.OnceBootSourceOverrideEnabled,
	}
	if err := system.SetBoot(boot); err != nil {
		return carbideerr.RedfishError("SetBootSourcePXE", c.apiEndpoint, 0, err.Error())
	}
	return nil
}

func (c *gofishClient) EjectVirtualMedia(ctx context.Context) error {
	vm, err := c.findFirstVirtualMedia(ctx)
	if err != nil {
		if e, ok := carbideerr.As(err); ok && strings.Contains(e.Reason, "no suitable virtual media") {
			return nil
		}
		return err
	}
	if vm.Image == "" {
		return nil
	}
	if err := vm.EjectMedia(); err != nil {
		return carbideerr.RedfishError("EjectVirtualMedia", c.apiEndpoint, 0, err.Error())
	}
	return nil
}

// defaultEFIBootloaderPath is the common UEFI shell path used when no
// vendor-specific boot parameter mechanism applies; see vendor.go for the
// per-vendor overrides.
const defaultEFIBootloaderPath = `\EFI\BOOT\BOOTX64.EFI`

func (c *gofishClient) SetBootParameters(ctx context.Context, params []string) error {
	return c.SetBootParametersWithAnnotations(ctx, params, nil)
}

func (c *gofishClient) SetBootParametersWithAnnotations(ctx context.Context, params []string, annotations map[string]string) error {
	system, err := c.getSystem(ctx)
	if err != nil {
		return err
	}

	var boot redfish.Boot
	if len(params) == 0 {
		boot = redfish.Boot{
			BootSourceOverrideEnabled:    redfish.DisabledBootSourceOverrideEnabled,
			BootSourceOverrideTarget:     redfish.NoneBootSourceOverrideTarget,
			UefiTargetBootSourceOverride: "",
		}
	} else {
		path := defaultEFIBootloaderPath
		if override, ok := annotations[AnnotationEFIBootloaderPath]; ok && override != "" {
			path = override
		}
		full := path + " " + strings.Join(params, " ")
		boot = redfish.Boot{
			BootSourceOverrideTarget:     redfish.UefiTargetBootSourceOverrideTarget,
			BootSourceOverrideEnabled:    redfish.OnceBootSourceOverrideEnabled,
			UefiTargetBootSourceOverride: full,
		}
	}

	if err := system.SetBoot(boot); err != nil {
		var redfishErr *common.Error
		if errors.As(err, &redfishErr) {
			return carbideerr.RedfishError("SetBootParameters", c.apiEndpoint, 0, redfishErr.Error())
		}
		return carbideerr.RedfishError("SetBootParameters", c.apiEndpoint, 0, err.Error())
	}
	return nil
}

// AnnotationEFIBootloaderPath lets a vendor override supply a non-default
// EFI bootloader path (e.g. a shim path for Secure Boot), consumed by
// SetBootParametersWithAnnotations.
const AnnotationEFIBootloaderPath = "carbide.io/efi-bootloader-path"

func (c *gofishClient) GetNetworkAddresses(ctx context.Context) ([]NetworkAddress, error) {
	system, err := c.getSystem(ctx)
	if err != nil {
		return nil, err
	}
	ethInterfaces, err := system.EthernetInterfaces()
	if err != nil {
		return nil, carbideerr.RedfishError("GetNetworkAddresses", c.apiEndpoint, 0, err.Error())
	}
	var out []NetworkAddress
	for _, eth := range ethInterfaces {
		if eth.IPv4Addresses != nil {
			for _, a := range eth.IPv4Addresses {
				out = append(out, NetworkAddress{
					Type:          IPv4AddressType,
					Address:       a.Address,
					Gateway:       a.Gateway,
					InterfaceName: eth.Name,
					MACAddress:    eth.MACAddress,
				})
			}
		}
		if eth.IPv6Addresses != nil {
			for _, a := range eth.IPv6Addresses {
				out = append(out, NetworkAddress{
					Type:          IPv6AddressType,
					Address:       a.Address,
					InterfaceName: eth.Name,
					MACAddress:    eth.MACAddress,
				})
			}
		}
	}
	return out, nil
}
