package device

import (
	"fmt"
	"strings"
)

const sigBaseSuffix = "00001000800000805f9b34fb"

// GATT services and characteristics the session manager talks to.
// All values are in normalized form (see NormalizeUUID).
const (
	HeartRateService     = "180d"
	HeartRateMeasurement = "2a37"

	BatteryService = "180f"
	BatteryLevel   = "2a19"

	DeviceInformationService = "180a"
	SystemID                 = "2a23"
	ModelNumber              = "2a24"
	SerialNumber             = "2a25"
	FirmwareRevision         = "2a26"
	HardwareRevision         = "2a27"
	SoftwareRevision         = "2a28"
	ManufacturerName         = "2a29"

	// Polar Measurement Data (streaming)
	PmdService      = "fb005c8002e7f3871cad8acd2d8df0c8"
	PmdControlPoint = "fb005c8102e7f3871cad8acd2d8df0c8"
	PmdData         = "fb005c8202e7f3871cad8acd2d8df0c8"

	// Polar simple file transfer
	PsftpService = "feee"
	PsftpMTU     = "fb005c5102e7f3871cad8acd2d8df0c8"
	PsftpD2H     = "fb005c5202e7f3871cad8acd2d8df0c8"
)

// Channels used during negotiation.
var (
	HeartRateChannel       = Channel{Service: HeartRateService, Characteristic: HeartRateMeasurement}
	BatteryChannel         = Channel{Service: BatteryService, Characteristic: BatteryLevel}
	PmdControlPointChannel = Channel{Service: PmdService, Characteristic: PmdControlPoint}
	PsftpMTUChannel        = Channel{Service: PsftpService, Characteristic: PsftpMTU}
)

// DISCharacteristics lists the device information characteristics read after
// the feature becomes ready, in read order.
func DISCharacteristics() []string {
	return []string{
		ManufacturerName, ModelNumber, SerialNumber, HardwareRevision,
		FirmwareRevision, SoftwareRevision, SystemID,
	}
}

// NormalizeUUID converts a UUID string to the internal format (lowercase, no dashes).
// Strips a 0x prefix and shortens Bluetooth SIG base UUIDs
// (0000xxxx-0000-1000-8000-00805f9b34fb) to their 16-bit form.
// Returns "" when the input is not hexadecimal.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")
	if u == "" {
		return ""
	}
	for _, r := range u {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return ""
		}
	}
	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// NormalizeUUIDs normalizes a slice of UUID strings to internal format.
func NormalizeUUIDs(uuids []string) []string {
	out := make([]string, len(uuids))
	for i, u := range uuids {
		out[i] = NormalizeUUID(u)
	}
	return out
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
func ShortenUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}

// ValidateUUID validates that UUID strings are non-empty and well-formed.
// Returns normalized UUID strings or an error.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, uuid := range uuids {
		if uuid == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		normalized := NormalizeUUID(uuid)
		if normalized == "" {
			return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, uuid)
		}
		result = append(result, normalized)
	}
	return result, nil
}

// ExpandUUID returns the dashed 128-bit form of a normalized UUID.
// 16-bit UUIDs are placed into the Bluetooth SIG base UUID.
func ExpandUUID(uuid string) string {
	u := NormalizeUUID(uuid)
	switch len(u) {
	case 4:
		u = "0000" + u + sigBaseSuffix
	case 8:
		u = u + sigBaseSuffix
	case 32:
	default:
		return u
	}
	return u[0:8] + "-" + u[8:12] + "-" + u[12:16] + "-" + u[16:20] + "-" + u[20:32]
}

// FeatureForService maps a discovered service to the feature it carries.
func FeatureForService(serviceUUID string) (Feature, bool) {
	switch NormalizeUUID(serviceUUID) {
	case HeartRateService:
		return FeatureHeartRate, true
	case BatteryService:
		return FeatureBattery, true
	case DeviceInformationService:
		return FeatureDeviceInformation, true
	case PmdService:
		return FeatureStreaming, true
	case PsftpService:
		return FeatureFileTransfer, true
	}
	return 0, false
}
