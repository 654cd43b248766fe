// Package goble implements device.Transport on top of go-ble (CoreBluetooth on macOS).
package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesession/internal/device"
)

// Transport dials Polar devices through the process-wide go-ble default device.
type Transport struct {
	logger *logrus.Logger
	probe  *device.PowerProbe

	mu  sync.Mutex
	dev ble.Device
}

var (
	_ device.Transport     = (*Transport)(nil)
	_ device.PowerReporter = (*Transport)(nil)
)

// NewTransport creates a transport. The HCI device is created lazily on the first dial.
func NewTransport(logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	t := &Transport{logger: logger}
	t.probe = device.NewPowerProbe(device.DefaultPowerProbeInterval, t.reopen, logger)
	return t
}

// OnPowerChanged implements device.PowerReporter.
func (t *Transport) OnPowerChanged(fn func(powered bool)) {
	t.probe.OnPowerChanged(fn)
}

// Dial connects to info.Address (info.ID when empty) and discovers its profile.
func (t *Transport) Dial(ctx context.Context, info device.Info) (device.Link, error) {
	address := strings.TrimSpace(info.Address)
	if address == "" {
		address = info.ID
	}
	if address == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	if err := t.ensureDevice(); err != nil {
		return nil, t.probe.Observe(err)
	}

	t.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Debug("Failed to dial BLE device")
		return nil, t.probe.Observe(fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err)))
	}

	t.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			t.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	l := newLink(client, profile, t.logger.WithField("address", address))
	t.logger.WithFields(logrus.Fields{
		"address":  address,
		"services": len(profile.Services),
		"features": len(l.caps.Features),
	}).Info("BLE device connected successfully")
	return l, nil
}

// Close stops probing and releases the HCI device.
func (t *Transport) Close() error {
	t.probe.Stop()

	t.mu.Lock()
	dev := t.dev
	t.dev = nil
	t.mu.Unlock()

	if dev == nil {
		return nil
	}
	return dev.Stop()
}

func (t *Transport) ensureDevice() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev != nil {
		return nil
	}
	return t.openLocked()
}

// reopen replaces the HCI device; the probe calls it while the adapter is off.
func (t *Transport) reopen() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev != nil {
		if err := t.dev.Stop(); err != nil {
			t.logger.WithField("error", err).Debug("Failed to stop previous BLE device")
		}
		t.dev = nil
	}
	return t.openLocked()
}

func (t *Transport) openLocked() error {
	dev, err := DeviceFactory()
	if err != nil {
		return fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	ble.SetDefaultDevice(dev)
	t.dev = dev
	return nil
}
