package redfish

import (
	"context"
	"fmt"
)

// gofishBIOSAttributeManager implements BIOSAttributeManager against a live
// gofish connection.
type gofishBIOSAttributeManager struct {
	client *gofishClient
}

// NewBIOSAttributeManager builds a BIOSAttributeManager bound to client.
func NewBIOSAttributeManager(client *gofishClient) BIOSAttributeManager {
	return &gofishBIOSAttributeManager{client: client}
}

func (bam *gofishBIOSAttributeManager) GetBIOSAttributes(ctx context.Context, attributeNames []string) (map[string]interface{}, error) {
	system, err := bam.client.getSystem(ctx)
	if err != nil {
		return nil, fmt.Errorf("get system for BIOS attributes: %w", err)
	}
	bios, err := system.Bios()
	if err != nil {
		return nil, fmt.Errorf("get BIOS resource: %w", err)
	}

	attributes := make(map[string]interface{})
	if len(attributeNames) == 0 {
		for name, value := range bios.Attributes {
			attributes[name] = value
		}
		return attributes, nil
	}
	for _, name := range attributeNames {
		if value, exists := bios.Attributes[name]; exists {
			attributes[name] = value
		}
	}
	return attributes, nil
}

func (bam *gofishBIOSAttributeManager) SetBIOSAttribute(ctx context.Context, attributeName string, value interface{}) error {
	return bam.SetBIOSAttributes(ctx, map[string]interface{}{attributeName: value})
}

func (bam *gofishBIOSAttributeManager) SetBIOSAttributes(ctx context.Context, attributes map[string]interface{}) error {
	system, err := bam.client.getSystem(ctx)
	if err != nil {
		return fmt.Errorf("get system for BIOS attributes: %w", err)
	}
	bios, err := system.Bios()
	if err != nil {
		return fmt.Errorf("get BIOS resource: %w", err)
	}
	if err := bios.UpdateBiosAttributes(attributes); err != nil {
		return fmt.Errorf("update BIOS attributes: %w", err)
	}
	return nil
}

// ScheduleBIOSSettingsApply requests the BMC apply pending BIOS attribute
// changes on next reset. Dell iDRAC needs an explicit ApplyTime request;
// other vendors schedule this implicitly when the attribute update commits.
func (bam *gofishBIOSAttributeManager) ScheduleBIOSSettingsApply(ctx context.Context) error {
	sysInfo, err := bam.client.GetSystemInfo(ctx)
	if err != nil {
		return nil
	}

	if NewVendorDetector().DetectVendor(sysInfo) != VendorDell {
		return nil
	}

	system, err := bam.client.getSystem(ctx)
	if err != nil {
		return fmt.Errorf("get system for BIOS job scheduling: %w", err)
	}
	bios, err := system.Bios()
	if err != nil {
		return fmt.Errorf("get BIOS resource for job scheduling: %w", err)
	}
	if err := bios.UpdateBiosAttributesApplyAt(map[string]interface{}{}, "OnReset"); err != nil {
		bam.client.log.V(1).Info("ApplyTime setting not supported or failed; relying on implicit job", "error", err)
	}
	return nil
}
