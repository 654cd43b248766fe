//go:build linux

package tinyble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesession/internal/device"
	"tinygo.org/x/bluetooth"
)

// Transport dials devices through the default BlueZ adapter.
type Transport struct {
	adapter *bluetooth.Adapter
	logger  *logrus.Logger
	probe   *device.PowerProbe

	mu      sync.Mutex
	enabled bool
	links   map[string]*link // keyed by adapter address string
}

var (
	_ device.Transport     = (*Transport)(nil)
	_ device.PowerReporter = (*Transport)(nil)
)

// NewTransport creates a transport on bluetooth.DefaultAdapter.
func NewTransport(logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	t := &Transport{
		adapter: bluetooth.DefaultAdapter,
		logger:  logger,
		links:   make(map[string]*link),
	}
	t.probe = device.NewPowerProbe(device.DefaultPowerProbeInterval, t.enable, logger)
	return t
}

// OnPowerChanged implements device.PowerReporter.
func (t *Transport) OnPowerChanged(fn func(powered bool)) {
	t.probe.OnPowerChanged(fn)
}

func (t *Transport) enable() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.adapter.Enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", NormalizeError(err))
	}
	if !t.enabled {
		// BlueZ reports link loss through the adapter-level handler
		t.adapter.SetConnectHandler(t.onConnectChange)
		t.enabled = true
	}
	return nil
}

func (t *Transport) onConnectChange(d bluetooth.Device, connected bool) {
	if connected {
		return
	}
	key := d.Address.String()
	t.mu.Lock()
	l, ok := t.links[key]
	t.mu.Unlock()
	if ok {
		l.logger.Warn("BlueZ reported disconnection")
		l.markDown()
	}
}

// Dial connects to the MAC address in info.Address (info.ID when empty).
func (t *Transport) Dial(ctx context.Context, info device.Info) (device.Link, error) {
	address := strings.TrimSpace(info.Address)
	if address == "" {
		address = info.ID
	}
	mac, err := bluetooth.ParseMAC(address)
	if err != nil {
		return nil, fmt.Errorf("invalid device address %q: %w", address, err)
	}

	if err := t.enable(); err != nil {
		return nil, t.probe.Observe(err)
	}

	addr := bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}

	// Connect blocks with its own timeout; ctx only bounds the wait
	type connectResult struct {
		dev bluetooth.Device
		err error
	}
	ch := make(chan connectResult, 1)
	go func() {
		dev, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{dev, err}
	}()

	var dev bluetooth.Device
	select {
	case <-ctx.Done():
		go func() {
			// late success must not leak a connection
			if r := <-ch; r.err == nil {
				_ = r.dev.Disconnect()
			}
		}()
		return nil, fmt.Errorf("connect to %s: %w", address, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, t.probe.Observe(fmt.Errorf("connect to %s: %w", address, NormalizeError(r.err)))
		}
		dev = r.dev
	}

	entry := t.logger.WithField("address", address)
	l, err := newLink(ctx, dev, entry)
	if err != nil {
		_ = dev.Disconnect()
		return nil, err
	}

	key := dev.Address.String()
	l.release = func() {
		t.mu.Lock()
		if t.links[key] == l {
			delete(t.links, key)
		}
		t.mu.Unlock()
	}
	t.mu.Lock()
	t.links[key] = l
	t.mu.Unlock()

	entry.WithField("features", len(l.caps.Features)).Info("BLE device connected successfully")
	return l, nil
}

// Close stops the power probe. Links are closed by their owners.
func (t *Transport) Close() error {
	t.probe.Stop()
	return nil
}
