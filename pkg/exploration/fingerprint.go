// Package exploration implements the site exploration and preingestion
// engine: scanning configured BMC endpoints, classifying them, deriving
// machine identity, parsing firmware inventory, pairing Host and DPU BMCs,
// and driving each endpoint through the preingestion state machine until it
// is eligible for ingestion. Grounded in the teacher's
// internal/redfish/vendor.go detector-with-regex-table idiom, generalized
// from "pick a boot-parameter mechanism" into "classify a BMC and its
// firmware components."
package exploration

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/carbide-fleet/carbide/pkg/model"
)

// bluefieldChassisPrefixes is the closed set of chassis part-number prefixes
// that identify a Bluefield DPU or SuperNIC, per §4.2 step 3.
var bluefieldChassisPrefixes = []string{
	"mbf2",       // BlueField-2
	"900-9d3b6",  // BlueField-3 DPU
	"900-9d3b4",  // BlueField-3 SuperNIC
	"900-9d3d4",  // BlueField-3 SuperNIC (alternate SKU)
}

// bluefieldResellerPrefixes covers vendor-specific Bluefield reseller SKUs
// (OEM-rebadged cards carrying the vendor's own part-number scheme but NVIDIA
// Bluefield silicon underneath).
var bluefieldResellerPrefixes = []string{
	"699-9d3b6", // Dell reseller SKU for BlueField-3 DPU
	"699-9d3b4", // Dell reseller SKU for BlueField-3 SuperNIC
	"afbf-",     // generic reseller prefix observed across OEM catalogs
}

// IsBluefieldSystemID reports whether a Redfish System's Id names a
// Bluefield DPU directly.
func IsBluefieldSystemID(id string) bool {
	return strings.EqualFold(id, "Bluefield")
}

// IsBluefieldChassisPartNumber reports whether partNumber matches one of the
// known Bluefield (or reseller) chassis part-number patterns.
func IsBluefieldChassisPartNumber(partNumber string) bool {
	lower := strings.ToLower(strings.TrimSpace(partNumber))
	for _, prefix := range bluefieldChassisPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	for _, prefix := range bluefieldResellerPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// ClassifyEndpoint implements §4.2 step 3: identify whether an endpoint is a
// Host BMC, a DPU BMC, or a Power Shelf, given the System IDs and Chassis
// part numbers collected during enumeration. It never returns a Switch
// classification; an endpoint with neither Systems nor chassis-only
// resources is Unknown.
func ClassifyEndpoint(systemIDs, chassisPartNumbers []string, hasSystems, hasChassisOnly bool) model.EndpointType {
	for _, id := range systemIDs {
		if IsBluefieldSystemID(id) {
			return model.EndpointTypeDpuBMC
		}
	}
	for _, pn := range chassisPartNumbers {
		if IsBluefieldChassisPartNumber(pn) {
			return model.EndpointTypeDpuBMC
		}
	}
	switch {
	case hasSystems:
		return model.EndpointTypeHostBMC
	case hasChassisOnly:
		return model.EndpointTypePowerShelf
	default:
		return model.EndpointTypeUnknown
	}
}

// firmwareComponentPatterns is the per-component regex table §4.2 step 5
// parses the raw firmware inventory map against, keyed by the closed
// FirmwareComponentType enumeration. Component identification happens by
// matching the inventory's component name/ID against these patterns; the
// matched value's version string is the one Carbide stores.
var firmwareComponentPatterns = map[model.FirmwareComponentType]*regexp.Regexp{
	model.FirmwareComponentBIOS:    regexp.MustCompile(`(?i)^(bios|system[-_ ]?rom|uefi)$`),
	model.FirmwareComponentBMC:     regexp.MustCompile(`(?i)^(bmc|idrac|ilo|xcc|manager)$`),
	model.FirmwareComponentCPLD:    regexp.MustCompile(`(?i)^(cpld|viking[-_ ]?cpld)$`),
	model.FirmwareComponentNIC:     regexp.MustCompile(`(?i)^(nic|mellanox|connectx).*$`),
	model.FirmwareComponentDpuATF:  regexp.MustCompile(`(?i)^(atf|arm[-_ ]?trusted[-_ ]?firmware)$`),
	model.FirmwareComponentDpuUEFI: regexp.MustCompile(`(?i)^(dpu[-_ ]?uefi|bf[-_ ]?uefi)$`),
}

// ParseFirmwareInventory maps a raw Redfish firmware-inventory listing
// (component name -> version string, as returned by
// redfish.Client.GetFirmwareInventory) onto the closed FirmwareComponentType
// enumeration. Entries matching no known component are dropped; Carbide
// never stores or upgrades firmware it can't classify.
func ParseFirmwareInventory(raw map[string]string) model.FirmwareInventory {
	out := make(model.FirmwareInventory)
	for name, version := range raw {
		for component, pattern := range firmwareComponentPatterns {
			if pattern.MatchString(name) {
				out[component] = version
				break
			}
		}
	}
	return out
}

// nicModeAttributeNames is the set of BIOS/OEM attribute names observed
// across DPU BMC vendors for the embedded NIC/DPU mode toggle (the original
// site-explorer reads the same toggle off libredfish's NicMode OEM type;
// Carbide has no such type to deserialize against, so it matches on the
// BIOS attribute's raw string value instead).
var nicModeAttributeNames = []string{"NicMode", "OperationMode", "DpuMode"}

// ParseNicMode extracts a DPU's NIC/DPU mode from the BIOS attribute map
// redfish.Client.GetBIOSAttributes returns. An absent or unrecognized
// attribute value classifies as NicModeUnknown, which pairing treats as a
// blocker: Carbide will not pair a DPU whose mode it cannot confirm.
func ParseNicMode(attributes map[string]interface{}) model.NicMode {
	for _, name := range nicModeAttributeNames {
		raw, ok := attributes[name]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		switch {
		case strings.EqualFold(s, "Dpu"), strings.EqualFold(s, "Embedded"):
			return model.NicModeDPU
		case strings.EqualFold(s, "Nic"), strings.EqualFold(s, "Separated"), strings.EqualFold(s, "Classic"):
			return model.NicModeNIC
		}
	}
	return model.NicModeUnknown
}

// minimumVikingCPLDVersion is the lowest Viking CPLD firmware version
// Carbide will pair behind. Below this, the DPU needs a data-center power
// cycle (not a BMC-issued reset) before it can leave board-bypass mode, so
// pairing reports VikingCpldVersionIssue rather than pairing it anyway.
var minimumVikingCPLDVersion = semver.MustParse("2.5.0")

// CPLDVersionBelowMinimum reports whether inv's parsed CPLD firmware
// version is older than minimumVikingCPLDVersion. A missing or
// unparseable version is never treated as a blocker — Carbide only blocks
// on a version it can positively identify as too old.
func CPLDVersionBelowMinimum(inv model.FirmwareInventory) bool {
	raw, ok := inv[model.FirmwareComponentCPLD]
	if !ok || raw == "" {
		return false
	}
	v, err := semver.NewVersion(normalizeDottedVersion(raw))
	if err != nil {
		return false
	}
	return v.LessThan(minimumVikingCPLDVersion)
}

// normalizeDottedVersion strips leading zeros from each dot-separated
// segment of a vendor firmware version string (e.g. "02.05.01") so it
// parses as valid semver; a segment that isn't a plain integer is left
// untouched and will simply fail to parse upstream.
func normalizeDottedVersion(raw string) string {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return raw
		}
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// MachineIDSchema is the set of identity fields hashed into a derived
// MachineId for one machine type, per §4.2 step 4 ("hashing identity fields
// ... per a machine-type-specific schema"). A Host hashes board + chassis
// serials; a DPU hashes its own product serial (Bluefield cards report a
// stable product serial independent of the carrier chassis).
type MachineIDSchema struct {
	Kind   model.MachineType
	Fields []string
}

// DeriveMachineIDHash computes the stable hash Carbide uses as the
// low-order identity bits of a derived MachineId, letting repeated
// exploration passes over the same hardware produce the same identity
// deterministically (§8 invariant 8, pairing idempotence, depends on this).
func DeriveMachineIDHash(discovery model.DiscoveryInfo, kind model.MachineType) string {
	var fields []string
	switch kind {
	case model.MachineTypeDpu:
		fields = []string{discovery.DMIProductSerial, discovery.Vendor, discovery.DMIProductName}
	default:
		fields = []string{
			discovery.DMIProductSerial,
			discovery.DMIBoardSerial,
			discovery.DMIChassisSerial,
			discovery.DMIProductName,
			discovery.Vendor,
		}
	}
	h := sha256.New()
	for _, f := range fields {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
