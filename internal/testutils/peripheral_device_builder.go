package testutils

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/srg/blesession/internal/device"
)

// CharacteristicConfig represents a GATT characteristic of a fake peripheral
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig represents a GATT service of a fake peripheral
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete fake peripheral profile
type DeviceProfileConfig struct {
	Name      string          `json:"name,omitempty"`
	Services  []ServiceConfig `json:"services"`
	Streaming []string        `json:"streaming,omitempty"` // PMD measurement types, e.g. "ecg"
}

// Peripheral is a built fake device. Each dial creates a fresh FakeLink from it.
type Peripheral struct {
	Name string

	caps         device.Capabilities
	values       map[device.Channel][]byte
	subscribeErr map[device.Channel]error
	readErr      map[device.Channel]error
	streamErr    map[device.StreamingFeature]error
	earlyNotify  map[device.Channel][]byte
}

// Capabilities returns what links to this peripheral advertise.
func (p *Peripheral) Capabilities() device.Capabilities {
	return p.caps
}

// PeripheralDeviceBuilder builds fake peripherals with a fluent API
type PeripheralDeviceBuilder struct {
	profile      DeviceProfileConfig
	subscribeErr map[device.Channel]error
	readErr      map[device.Channel]error
	streamErr    map[device.StreamingFeature]error
	earlyNotify  map[device.Channel][]byte
}

// NewPeripheralDeviceBuilder creates a new peripheral device builder
func NewPeripheralDeviceBuilder() *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{
		profile: DeviceProfileConfig{
			Services: []ServiceConfig{},
		},
		subscribeErr: make(map[device.Channel]error),
		readErr:      make(map[device.Channel]error),
		streamErr:    make(map[device.StreamingFeature]error),
		earlyNotify:  make(map[device.Channel][]byte),
	}
}

// WithName sets the advertised name
func (b *PeripheralDeviceBuilder) WithName(name string) *PeripheralDeviceBuilder {
	b.profile.Name = name
	return b
}

// WithService adds a service to the device profile
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{
		UUID:            uuid,
		Characteristics: []CharacteristicConfig{},
	})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// WithStreaming sets the PMD measurement types the peripheral advertises
func (b *PeripheralDeviceBuilder) WithStreaming(names ...string) *PeripheralDeviceBuilder {
	b.profile.Streaming = append(b.profile.Streaming, names...)
	return b
}

// FailSubscribe makes Subscribe on ch return err
func (b *PeripheralDeviceBuilder) FailSubscribe(ch device.Channel, err error) *PeripheralDeviceBuilder {
	b.subscribeErr[ch] = err
	return b
}

// FailRead makes Read on ch return err
func (b *PeripheralDeviceBuilder) FailRead(ch device.Channel, err error) *PeripheralDeviceBuilder {
	b.readErr[ch] = err
	return b
}

// FailStream makes PMD control point writes for sf return err
func (b *PeripheralDeviceBuilder) FailStream(sf device.StreamingFeature, err error) *PeripheralDeviceBuilder {
	b.streamErr[sf] = err
	return b
}

// NotifyOnSubscribe makes the peripheral send data on ch as soon as the
// subscription is enabled, before Subscribe returns
func (b *PeripheralDeviceBuilder) NotifyOnSubscribe(ch device.Channel, data []byte) *PeripheralDeviceBuilder {
	b.earlyNotify[ch] = data
	return b
}

// FromJSON fills the device profile from JSON
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = config
	return b
}

// Build creates the peripheral. Features are derived from the services present.
func (b *PeripheralDeviceBuilder) Build() *Peripheral {
	p := &Peripheral{
		Name:         b.profile.Name,
		values:       make(map[device.Channel][]byte),
		subscribeErr: b.subscribeErr,
		readErr:      b.readErr,
		streamErr:    b.streamErr,
		earlyNotify:  b.earlyNotify,
	}

	seen := make(map[device.Feature]bool)
	for _, svc := range b.profile.Services {
		svcUUID := device.NormalizeUUID(svc.UUID)
		if f, ok := device.FeatureForService(svcUUID); ok && !seen[f] {
			seen[f] = true
			p.caps.Features = append(p.caps.Features, f)
		}
		for _, c := range svc.Characteristics {
			charUUID := device.NormalizeUUID(c.UUID)
			p.values[device.Channel{Service: svcUUID, Characteristic: charUUID}] = c.Value
			if svcUUID == device.DeviceInformationService {
				p.caps.DIS = append(p.caps.DIS, charUUID)
			}
		}
	}
	sort.Slice(p.caps.Features, func(i, j int) bool { return p.caps.Features[i] < p.caps.Features[j] })

	if seen[device.FeatureStreaming] {
		streams, err := device.ParseStreamingFeatures(b.profile.Streaming)
		if err != nil {
			panic(fmt.Sprintf("PeripheralDeviceBuilder.Build: %v", err))
		}
		p.caps.Streaming = streams
	}
	return p
}

// GetServices returns the configured services
func (b *PeripheralDeviceBuilder) GetServices() []ServiceConfig {
	return b.profile.Services
}
