package redfish

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
)

// VendorType identifies a BMC vendor for the purpose of selecting a boot
// parameter injection mechanism; it is unrelated to the DPU/Bluefield
// fingerprinting done during exploration.
type VendorType string

const (
	VendorUnknown    VendorType = "unknown"
	VendorDell       VendorType = "dell"
	VendorHPE        VendorType = "hpe"
	VendorLenovo     VendorType = "lenovo"
	VendorSupermicro VendorType = "supermicro"
	VendorGeneric    VendorType = "generic"
)

// BootParameterMechanism is how a given vendor's BMC accepts kernel boot
// parameters.
type BootParameterMechanism string

const (
	MechanismUEFITarget    BootParameterMechanism = "uefi_target"
	MechanismBIOSAttribute BootParameterMechanism = "bios_attribute"
	MechanismBootOptions   BootParameterMechanism = "boot_options"
	MechanismUnsupported   BootParameterMechanism = "unsupported"
)

// VendorConfig is the per-vendor boot parameter configuration.
type VendorConfig struct {
	Type                   VendorType
	BIOSKernelArgAttribute string
	BootParameterMechanism BootParameterMechanism
}

// VendorDetector maps a SystemInfo's Manufacturer string to a VendorConfig.
type VendorDetector struct {
	configs map[VendorType]VendorConfig
}

// NewVendorDetector returns a detector seeded with the known vendor defaults.
func NewVendorDetector() *VendorDetector {
	return &VendorDetector{
		configs: map[VendorType]VendorConfig{
			VendorDell: {
				Type:                   VendorDell,
				BIOSKernelArgAttribute: "KernelArgs",
				BootParameterMechanism: MechanismBIOSAttribute,
			},
			VendorHPE: {
				Type:                   VendorHPE,
				BootParameterMechanism: MechanismUEFITarget,
			},
			VendorLenovo: {
				Type:                   VendorLenovo,
				BootParameterMechanism: MechanismUEFITarget,
			},
			VendorSupermicro: {
				Type:                   VendorSupermicro,
				BIOSKernelArgAttribute: "BootArgs",
				BootParameterMechanism: MechanismBIOSAttribute,
			},
			VendorGeneric: {
				Type:                   VendorGeneric,
				BootParameterMechanism: MechanismUEFITarget,
			},
		},
	}
}

// DetectVendor classifies sysInfo.Manufacturer into a VendorType, defaulting
// to VendorGeneric when no known string matches.
func (vd *VendorDetector) DetectVendor(sysInfo *SystemInfo) VendorType {
	if sysInfo == nil || sysInfo.Manufacturer == "" {
		return VendorUnknown
	}

	manufacturer := strings.ToLower(strings.TrimSpace(sysInfo.Manufacturer))
	switch {
	case strings.Contains(manufacturer, "dell"):
		return VendorDell
	case strings.Contains(manufacturer, "hpe"), strings.Contains(manufacturer, "hewlett"):
		return VendorHPE
	case strings.Contains(manufacturer, "lenovo"):
		return VendorLenovo
	case strings.Contains(manufacturer, "supermicro"), strings.Contains(manufacturer, "super micro"):
		return VendorSupermicro
	default:
		return VendorGeneric
	}
}

// GetVendorConfig returns the configuration for vendor, falling back to the
// generic config if vendor is unrecognized.
func (vd *VendorDetector) GetVendorConfig(vendor VendorType) VendorConfig {
	if config, exists := vd.configs[vendor]; exists {
		return config
	}
	return vd.configs[VendorGeneric]
}

// annotationBootMechanism lets an operator override the detected mechanism
// per-endpoint, consumed by VendorSpecificBootManager.
const (
	annotationBIOSKernelArgAttribute = "carbide.io/bios-kernel-arg-attribute"
	annotationBootMechanism          = "carbide.io/boot-parameter-mechanism"
)

// BIOSAttributeManager manipulates BIOS settings for vendors that expose
// kernel arguments as a BIOS attribute rather than a UEFI boot target.
type BIOSAttributeManager interface {
	GetBIOSAttributes(ctx context.Context, attributeNames []string) (map[string]interface{}, error)
	SetBIOSAttribute(ctx context.Context, attributeName string, value interface{}) error
	SetBIOSAttributes(ctx context.Context, attributes map[string]interface{}) error
	ScheduleBIOSSettingsApply(ctx context.Context) error
}

// VendorSpecificBootManager picks a boot-parameter mechanism per vendor and
// applies it, falling back to the plain UEFI target override done by
// gofishClient.SetBootParameters when the vendor is unrecognized.
type VendorSpecificBootManager struct {
	client   *gofishClient
	detector *VendorDetector
	biosMgr  BIOSAttributeManager
	log      logr.Logger
}

// NewVendorSpecificBootManager builds a boot manager bound to client.
func NewVendorSpecificBootManager(client *gofishClient) *VendorSpecificBootManager {
	return &VendorSpecificBootManager{
		client:   client,
		detector: NewVendorDetector(),
		biosMgr:  NewBIOSAttributeManager(client),
		log:      client.log,
	}
}

// SetBootParametersWithVendorSupport dispatches params to whichever
// mechanism the detected (or annotation-overridden) vendor config selects.
func (vbm *VendorSpecificBootManager) SetBootParametersWithVendorSupport(ctx context.Context, params []string, annotations map[string]string) error {
	sysInfo, err := vbm.client.GetSystemInfo(ctx)
	if err != nil {
		return fmt.Errorf("vendor detection: %w", err)
	}

	vendor := vbm.detector.DetectVendor(sysInfo)
	config := vbm.detector.GetVendorConfig(vendor)
	config = applyAnnotationOverrides(config, annotations)

	vbm.log.V(1).Info("setting boot parameters", "vendor", vendor, "mechanism", config.BootParameterMechanism, "params", params)

	switch config.BootParameterMechanism {
	case MechanismUEFITarget:
		return vbm.client.SetBootParameters(ctx, params)
	case MechanismBIOSAttribute:
		return vbm.setBootParametersBIOS(ctx, params, config.BIOSKernelArgAttribute)
	case MechanismBootOptions:
		return fmt.Errorf("boot parameter setting via boot options is not implemented")
	case MechanismUnsupported:
		return fmt.Errorf("boot parameter setting is not supported for vendor %s", vendor)
	default:
		return vbm.client.SetBootParameters(ctx, params)
	}
}

func applyAnnotationOverrides(config VendorConfig, annotations map[string]string) VendorConfig {
	if annotations == nil {
		return config
	}
	if attr, ok := annotations[annotationBIOSKernelArgAttribute]; ok && attr != "" {
		config.BIOSKernelArgAttribute = attr
		config.BootParameterMechanism = MechanismBIOSAttribute
	}
	if mechanism, ok := annotations[annotationBootMechanism]; ok {
		switch BootParameterMechanism(mechanism) {
		case MechanismUEFITarget, MechanismBIOSAttribute, MechanismBootOptions, MechanismUnsupported:
			config.BootParameterMechanism = BootParameterMechanism(mechanism)
		}
	}
	return config
}

func (vbm *VendorSpecificBootManager) setBootParametersBIOS(ctx context.Context, params []string, attributeName string) error {
	if attributeName == "" {
		return fmt.Errorf("BIOS kernel arg attribute name not specified")
	}

	var value string
	if len(params) > 0 {
		value = strings.Join(params, " ")
	}

	if err := vbm.biosMgr.SetBIOSAttribute(ctx, attributeName, value); err != nil {
		return fmt.Errorf("set BIOS attribute %s: %w", attributeName, err)
	}
	if err := vbm.biosMgr.ScheduleBIOSSettingsApply(ctx); err != nil {
		return fmt.Errorf("schedule BIOS settings apply: %w", err)
	}
	return nil
}
