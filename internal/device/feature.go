package device

import (
	"fmt"
	"sort"
	"strings"
)

// Feature is a logical capability negotiated over a link.
type Feature int

const (
	FeatureStreaming Feature = iota
	FeatureHeartRate
	FeatureDeviceInformation
	FeatureBattery
	FeatureFileTransfer
)

var featureNames = map[Feature]string{
	FeatureStreaming:         "streaming",
	FeatureHeartRate:         "hr",
	FeatureDeviceInformation: "device_info",
	FeatureBattery:           "battery",
	FeatureFileTransfer:      "file_transfer",
}

func (f Feature) String() string {
	if n, ok := featureNames[f]; ok {
		return n
	}
	return fmt.Sprintf("feature(%d)", int(f))
}

// AllFeatures lists every feature in negotiation order.
func AllFeatures() []Feature {
	return []Feature{
		FeatureStreaming,
		FeatureHeartRate,
		FeatureDeviceInformation,
		FeatureBattery,
		FeatureFileTransfer,
	}
}

// ParseFeature accepts the names produced by Feature.String.
func ParseFeature(s string) (Feature, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for f, n := range featureNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown feature %q", s)
}

// StreamingFeature is a measurement type of the streaming feature set.
type StreamingFeature int

// Values match the PMD measurement type codes.
const (
	StreamECG          StreamingFeature = 0
	StreamPPG          StreamingFeature = 1
	StreamACC          StreamingFeature = 2
	StreamPPI          StreamingFeature = 3
	StreamGyro         StreamingFeature = 5
	StreamMagnetometer StreamingFeature = 6
)

var streamingNames = map[StreamingFeature]string{
	StreamECG:          "ecg",
	StreamPPG:          "ppg",
	StreamACC:          "acc",
	StreamPPI:          "ppi",
	StreamGyro:         "gyro",
	StreamMagnetometer: "magnetometer",
}

func (s StreamingFeature) String() string {
	if n, ok := streamingNames[s]; ok {
		return n
	}
	return fmt.Sprintf("stream(%d)", int(s))
}

// AllStreamingFeatures lists the known measurement types in code order.
func AllStreamingFeatures() []StreamingFeature {
	return []StreamingFeature{StreamECG, StreamPPG, StreamACC, StreamPPI, StreamGyro, StreamMagnetometer}
}

// ParseStreamingFeature accepts the names produced by StreamingFeature.String.
func ParseStreamingFeature(s string) (StreamingFeature, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "mag" {
		return StreamMagnetometer, nil
	}
	for f, n := range streamingNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown streaming feature %q", s)
}

// ParseStreamingFeatures parses a list of names, dropping duplicates.
func ParseStreamingFeatures(names []string) ([]StreamingFeature, error) {
	seen := make(map[StreamingFeature]bool, len(names))
	out := make([]StreamingFeature, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		f, err := ParseStreamingFeature(n)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	SortStreamingFeatures(out)
	return out, nil
}

// SortStreamingFeatures orders features by measurement type code.
func SortStreamingFeatures(fs []StreamingFeature) {
	sort.Slice(fs, func(i, j int) bool { return fs[i] < fs[j] })
}
