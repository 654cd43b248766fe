//go:build linux

package tinyble

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesession/internal/device"
	"github.com/srg/blesession/internal/gatt"
	"tinygo.org/x/bluetooth"
)

// readBufferSize bounds a single characteristic read; ATT values never exceed 512 bytes.
const readBufferSize = 512

type link struct {
	dev    bluetooth.Device
	logger *logrus.Entry
	chars  map[device.Channel]bluetooth.DeviceCharacteristic
	caps   device.Capabilities

	done      chan struct{}
	closeOnce sync.Once
	release   func()
}

func newLink(ctx context.Context, dev bluetooth.Device, logger *logrus.Entry) (*link, error) {
	l := &link{
		dev:    dev,
		logger: logger,
		chars:  make(map[device.Channel]bluetooth.DeviceCharacteristic),
		done:   make(chan struct{}),
	}

	services, err := dev.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", NormalizeError(err))
	}

	seen := make(map[device.Feature]bool)
	for _, svc := range services {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		svcUUID := device.NormalizeUUID(svc.UUID().String())
		f, known := device.FeatureForService(svcUUID)
		if !known {
			continue
		}
		if !seen[f] {
			seen[f] = true
			l.caps.Features = append(l.caps.Features, f)
		}

		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"service_uuid": svcUUID,
				"error":        err,
			}).Warn("Failed to discover characteristics")
			continue
		}
		for _, c := range chars {
			ch := device.Channel{Service: svcUUID, Characteristic: device.NormalizeUUID(c.UUID().String())}
			l.chars[ch] = c
			if svcUUID == device.DeviceInformationService {
				l.caps.DIS = append(l.caps.DIS, ch.Characteristic)
			}
		}
	}

	if seen[device.FeatureStreaming] {
		if data, err := l.read(device.PmdControlPointChannel); err == nil {
			l.caps.Streaming, err = gatt.ParsePmdFeatures(data)
			if err != nil {
				logger.WithField("error", err).Debug("Unexpected PMD feature response")
			}
		} else {
			logger.WithField("error", err).Debug("Failed to read PMD features")
		}
	}
	return l, nil
}

func (l *link) Capabilities() device.Capabilities {
	return l.caps
}

func (l *link) characteristic(ch device.Channel) (bluetooth.DeviceCharacteristic, error) {
	select {
	case <-l.done:
		return bluetooth.DeviceCharacteristic{}, device.ErrNotConnected
	default:
	}
	c, ok := l.chars[ch]
	if !ok {
		return c, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{ch.Service, ch.Characteristic}}
	}
	return c, nil
}

func (l *link) Subscribe(ctx context.Context, ch device.Channel, handler func([]byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := l.characteristic(ch)
	if err != nil {
		return err
	}
	if err := c.EnableNotifications(handler); err != nil {
		return fmt.Errorf("subscribe %s: %w", ch, NormalizeError(err))
	}
	return nil
}

func (l *link) Read(ctx context.Context, ch device.Channel) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.read(ch)
}

func (l *link) read(ch device.Channel) ([]byte, error) {
	c, err := l.characteristic(ch)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, readBufferSize)
	n, err := c.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ch, NormalizeError(err))
	}
	return buf[:n], nil
}

func (l *link) Write(ctx context.Context, ch device.Channel, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := l.characteristic(ch)
	if err != nil {
		return err
	}
	return writeValue(c, ch, data)
}

// valueWriter is the write surface of bluetooth.DeviceCharacteristic.
type valueWriter interface {
	WriteWithoutResponse(p []byte) (int, error)
}

var _ valueWriter = bluetooth.DeviceCharacteristic{}

// writeValue writes data to ch. BlueZ picks the ATT write type from the
// characteristic flags when none is given, so the PMD control point still gets
// a write request.
func writeValue(w valueWriter, ch device.Channel, data []byte) error {
	n, err := w.WriteWithoutResponse(data)
	if err != nil {
		return fmt.Errorf("write %s: %w", ch, NormalizeError(err))
	}
	if n != len(data) {
		return fmt.Errorf("write %s: short write %d of %d bytes", ch, n, len(data))
	}
	return nil
}

func (l *link) Disconnected() <-chan struct{} {
	return l.done
}

func (l *link) Close() error {
	select {
	case <-l.done:
		return nil
	default:
	}
	l.markDown()
	if err := l.dev.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect: %w", NormalizeError(err))
	}
	return nil
}

func (l *link) markDown() {
	l.closeOnce.Do(func() {
		close(l.done)
		if l.release != nil {
			l.release()
		}
	})
}
