// Package gatt decodes the characteristic payloads the session manager validates
// before delivery: heart rate measurements, battery level, device information
// strings and the Polar measurement data feature bitmask.
package gatt

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/srg/blesession/internal/device"
)

// ErrMalformed marks a payload that cannot be decoded.
var ErrMalformed = errors.New("malformed payload")

// Heart Rate Measurement flag bits.
const (
	hrFlagUint16         = 0x01
	hrFlagContact        = 0x02
	hrFlagContactSupport = 0x04
	hrFlagEnergy         = 0x08
	hrFlagRR             = 0x10
)

// ParseHeartRate decodes a Heart Rate Measurement (0x2A37) notification.
func ParseHeartRate(data []byte, ts time.Time) (device.HrSample, error) {
	var s device.HrSample
	if len(data) < 2 {
		return s, fmt.Errorf("heart rate: %d bytes: %w", len(data), ErrMalformed)
	}

	flags := data[0]
	off := 1
	if flags&hrFlagUint16 != 0 {
		if len(data) < off+2 {
			return s, fmt.Errorf("heart rate: truncated 16-bit value: %w", ErrMalformed)
		}
		s.Rate = int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
	} else {
		s.Rate = int(data[off])
		off++
	}

	s.ContactSupported = flags&hrFlagContactSupport != 0
	s.Contact = s.ContactSupported && flags&hrFlagContact != 0

	if flags&hrFlagEnergy != 0 {
		if len(data) < off+2 {
			return s, fmt.Errorf("heart rate: truncated energy field: %w", ErrMalformed)
		}
		e := int(binary.LittleEndian.Uint16(data[off:]))
		s.EnergyExpended = &e
		off += 2
	}

	if flags&hrFlagRR != 0 {
		rest := data[off:]
		if len(rest)%2 != 0 {
			return s, fmt.Errorf("heart rate: odd RR interval length %d: %w", len(rest), ErrMalformed)
		}
		for i := 0; i+1 < len(rest); i += 2 {
			rr := int(binary.LittleEndian.Uint16(rest[i:]))
			s.RR = append(s.RR, rr)
			s.RRMs = append(s.RRMs, (rr*1000+512)/1024) // nearest ms
		}
	}

	s.Time = ts
	return s, nil
}

// ParseBatteryLevel decodes a Battery Level (0x2A19) value and enforces the 0..100 range.
func ParseBatteryLevel(data []byte) (int, error) {
	if len(data) != 1 {
		return 0, fmt.Errorf("battery level: %d bytes: %w", len(data), ErrMalformed)
	}
	level := int(data[0])
	if level > 100 {
		return 0, fmt.Errorf("battery level %d out of range: %w", level, ErrMalformed)
	}
	return level, nil
}

// FormatDIS renders a device information value. System ID is binary and is
// rendered as upper-case hex; everything else is a UTF-8 string.
func FormatDIS(uuid string, data []byte) (string, error) {
	if device.NormalizeUUID(uuid) == device.SystemID {
		if len(data) == 0 {
			return "", fmt.Errorf("system id: empty: %w", ErrMalformed)
		}
		return strings.ToUpper(hex.EncodeToString(data)), nil
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("dis %s: invalid utf-8: %w", uuid, ErrMalformed)
	}
	return strings.TrimSpace(strings.TrimRight(string(data), "\x00")), nil
}

// PMD control point opcodes and the feature read marker.
const (
	PmdFeatureRead     = 0x0F
	PmdGetSettings     = 0x01
	PmdStartMeasure    = 0x02
	PmdStopMeasure     = 0x03
	PmdControlResponse = 0xF0
)

// ParsePmdFeatures decodes the PMD control point read value into the supported
// streaming features.
func ParsePmdFeatures(data []byte) ([]device.StreamingFeature, error) {
	if len(data) < 2 || data[0] != PmdFeatureRead {
		return nil, fmt.Errorf("pmd features: %w", ErrMalformed)
	}
	var out []device.StreamingFeature
	for _, f := range device.AllStreamingFeatures() {
		if data[1]&(1<<uint(f)) != 0 {
			out = append(out, f)
		}
	}
	return out, nil
}

// PmdCommand builds a control point command for a measurement type.
func PmdCommand(op byte, f device.StreamingFeature) []byte {
	return []byte{op, byte(f)}
}
