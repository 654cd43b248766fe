package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesession/internal/device"
	"github.com/srg/blesession/internal/gatt"
	"github.com/srg/blesession/internal/groutine"
)

// gattClient is the part of ble.Client a link uses.
type gattClient interface {
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

type link struct {
	client gattClient
	logger *logrus.Entry
	chars  map[device.Channel]*ble.Characteristic
	caps   device.Capabilities

	mu         sync.Mutex
	subscribed map[device.Channel]bool

	done      chan struct{}
	closeOnce sync.Once
}

func newLink(client gattClient, profile *ble.Profile, logger *logrus.Entry) *link {
	l := &link{
		client:     client,
		logger:     logger,
		chars:      make(map[device.Channel]*ble.Characteristic),
		subscribed: make(map[device.Channel]bool),
		done:       make(chan struct{}),
	}
	l.caps = l.discover(profile)

	// CoreBluetooth exposes link loss on the client
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "ble-link-monitor", func(ctx context.Context) {
			select {
			case <-dc.Disconnected():
				l.logger.Warn("CoreBluetooth reported disconnection")
				l.markDown()
			case <-l.done:
			}
		})
	} else {
		l.logger.Debug("Client does not support Disconnected() channel")
	}
	return l
}

// discover indexes characteristics by channel and derives the advertised features.
func (l *link) discover(profile *ble.Profile) device.Capabilities {
	var caps device.Capabilities
	if profile == nil {
		return caps
	}

	seen := make(map[device.Feature]bool)
	for _, svc := range profile.Services {
		svcUUID := device.NormalizeUUID(svc.UUID.String())
		if f, ok := device.FeatureForService(svcUUID); ok && !seen[f] {
			seen[f] = true
			caps.Features = append(caps.Features, f)
		}
		for _, c := range svc.Characteristics {
			ch := device.Channel{Service: svcUUID, Characteristic: device.NormalizeUUID(c.UUID.String())}
			l.chars[ch] = c
			if svcUUID == device.DeviceInformationService && c.Property&ble.CharRead != 0 {
				caps.DIS = append(caps.DIS, ch.Characteristic)
			}
		}
	}

	if seen[device.FeatureStreaming] {
		caps.Streaming = l.readPmdFeatures()
	}
	return caps
}

// readPmdFeatures reads the measurement types from the PMD control point.
func (l *link) readPmdFeatures() []device.StreamingFeature {
	c, ok := l.chars[device.PmdControlPointChannel]
	if !ok || c.Property&ble.CharRead == 0 {
		return nil
	}
	data, err := l.client.ReadCharacteristic(c)
	if err != nil {
		l.logger.WithField("error", err).Debug("Failed to read PMD features")
		return nil
	}
	features, err := gatt.ParsePmdFeatures(data)
	if err != nil {
		l.logger.WithFields(logrus.Fields{
			"error": err,
			"data":  fmt.Sprintf("%x", data),
		}).Debug("Unexpected PMD feature response")
		return nil
	}
	return features
}

func (l *link) Capabilities() device.Capabilities {
	return l.caps
}

func (l *link) characteristic(ch device.Channel) (*ble.Characteristic, error) {
	select {
	case <-l.done:
		return nil, device.ErrNotConnected
	default:
	}
	c, ok := l.chars[ch]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{ch.Service, ch.Characteristic}}
	}
	return c, nil
}

func (l *link) Subscribe(ctx context.Context, ch device.Channel, handler func([]byte)) error {
	c, err := l.characteristic(ch)
	if err != nil {
		return err
	}
	if c.Property&(ble.CharNotify|ble.CharIndicate) == 0 {
		return fmt.Errorf("characteristic %s does not support notifications: %w", ch, device.ErrUnsupported)
	}
	ind := c.Property&ble.CharNotify == 0

	_, err = call(ctx, func() (struct{}, error) {
		return struct{}{}, l.client.Subscribe(c, ind, func(data []byte) { handler(data) })
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ch, NormalizeError(err))
	}

	l.mu.Lock()
	l.subscribed[ch] = true
	l.mu.Unlock()
	return nil
}

func (l *link) Read(ctx context.Context, ch device.Channel) ([]byte, error) {
	c, err := l.characteristic(ch)
	if err != nil {
		return nil, err
	}
	data, err := call(ctx, func() ([]byte, error) {
		return l.client.ReadCharacteristic(c)
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ch, NormalizeError(err))
	}
	return data, nil
}

func (l *link) Write(ctx context.Context, ch device.Channel, data []byte) error {
	c, err := l.characteristic(ch)
	if err != nil {
		return err
	}
	noRsp := c.Property&ble.CharWrite == 0 && c.Property&ble.CharWriteNR != 0
	_, err = call(ctx, func() (struct{}, error) {
		return struct{}{}, l.client.WriteCharacteristic(c, data, noRsp)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", ch, NormalizeError(err))
	}
	return nil
}

func (l *link) Disconnected() <-chan struct{} {
	return l.done
}

// Close unsubscribes best-effort and cancels the connection.
func (l *link) Close() error {
	select {
	case <-l.done:
		return nil
	default:
	}

	l.mu.Lock()
	channels := make([]device.Channel, 0, len(l.subscribed))
	for ch := range l.subscribed {
		channels = append(channels, ch)
	}
	l.subscribed = make(map[device.Channel]bool)
	l.mu.Unlock()

	for _, ch := range channels {
		c := l.chars[ch]
		if err := l.client.Unsubscribe(c, c.Property&ble.CharNotify == 0); err != nil {
			l.logger.WithFields(logrus.Fields{
				"channel": ch.String(),
				"error":   err,
			}).Debug("Failed to unsubscribe")
		}
	}

	l.markDown()
	if err := l.client.CancelConnection(); err != nil {
		return fmt.Errorf("failed to cancel connection: %w", NormalizeError(err))
	}
	return nil
}

func (l *link) markDown() {
	l.closeOnce.Do(func() { close(l.done) })
}

// call runs a blocking go-ble operation, giving up when ctx ends.
// The operation keeps running in the background after ctx ends.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		v, err := fn()
		resCh <- result{v, err}
	}()
	select {
	case r := <-resCh:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
