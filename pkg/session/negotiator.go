package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesession/internal/device"
	"github.com/srg/blesession/internal/gatt"
	"github.com/srg/blesession/internal/groutine"
)

var errNoControlPoint = errors.New("pmd control point unavailable")

// negotiator brings up the features of a fresh link. Every feature runs in its
// own goroutine so one slow or failing feature never blocks the others; results
// and the payloads they subscribe to are posted to the session mailbox.
type negotiator struct {
	id        string
	enabled   map[device.Feature]bool
	streaming []device.StreamingFeature
	logger    *logrus.Logger

	post    func(ctx context.Context, ev event) error
	trySend func(ev event) bool
}

// start launches negotiation of every feature that is advertised by link and
// enabled in configuration.
func (n *negotiator) start(ctx context.Context, link device.Link, epoch uint64) {
	caps := link.Capabilities()
	for _, f := range device.AllFeatures() {
		if !n.enabled[f] || !caps.Has(f) {
			continue
		}
		f := f
		groutine.Go(ctx, "negotiate-"+f.String(), func(ctx context.Context) {
			n.negotiate(ctx, link, caps, f, epoch)
		}, "device_id", n.id)
	}
}

func (n *negotiator) negotiate(ctx context.Context, link device.Link, caps device.Capabilities, f device.Feature, epoch uint64) {
	switch f {
	case device.FeatureHeartRate:
		n.subscribe(ctx, link, device.HeartRateChannel, f, device.HeartRateMeasurement, epoch)

	case device.FeatureBattery:
		if !n.subscribe(ctx, link, device.BatteryChannel, f, device.BatteryLevel, epoch) {
			return
		}
		data, err := link.Read(ctx, device.BatteryChannel)
		if err != nil {
			n.logger.WithFields(logrus.Fields{
				"device_id": n.id,
				"error":     err,
			}).Debug("Initial battery read failed")
			return
		}
		_ = n.post(ctx, evPayload{epoch: epoch, feature: f, uuid: device.BatteryLevel, data: data, at: time.Now()})

	case device.FeatureDeviceInformation:
		if err := n.post(ctx, evNegotiated{epoch: epoch, feature: f}); err != nil {
			return
		}
		chars := caps.DIS
		if len(chars) == 0 {
			chars = device.DISCharacteristics()
		}
		for _, uuid := range chars {
			ch := device.Channel{Service: device.DeviceInformationService, Characteristic: uuid}
			data, err := link.Read(ctx, ch)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				n.logger.WithFields(logrus.Fields{
					"device_id": n.id,
					"uuid":      uuid,
					"error":     err,
				}).Debug("Device information read failed")
				continue
			}
			if err := n.post(ctx, evPayload{epoch: epoch, feature: f, uuid: uuid, data: data, at: time.Now()}); err != nil {
				return
			}
		}

	case device.FeatureFileTransfer:
		n.subscribe(ctx, link, device.PsftpMTUChannel, f, device.PsftpMTU, epoch)

	case device.FeatureStreaming:
		ev, attempted := n.negotiateStreaming(ctx, link, caps, epoch)
		if !attempted {
			n.logger.WithFields(logrus.Fields{
				"device_id":  n.id,
				"requested":  n.streaming,
				"advertised": caps.Streaming,
			}).Debug("No streaming sub-feature to negotiate")
			return
		}
		_ = n.post(ctx, ev)
	}
}

// subscribe enables notifications on ch and reports the outcome. Notifications
// that arrive before the readiness event is queued are held and posted right
// after it, so the first samples of a fresh link are not lost.
func (n *negotiator) subscribe(ctx context.Context, link device.Link, ch device.Channel, f device.Feature, uuid string, epoch uint64) bool {
	g := &gate{}
	subErr := link.Subscribe(ctx, ch, n.forward(f, uuid, epoch, g))
	if err := n.post(ctx, evNegotiated{epoch: epoch, feature: f, err: subErr}); err != nil || subErr != nil {
		return false
	}
	g.open(n.trySend)
	return true
}

// negotiateStreaming enables the PMD control point once, then queries settings
// for every requested sub-feature the device advertises. It reports false when
// no sub-feature was requested and advertised.
func (n *negotiator) negotiateStreaming(ctx context.Context, link device.Link, caps device.Capabilities, epoch uint64) (evStreaming, bool) {
	ev := evStreaming{epoch: epoch, failures: map[device.StreamingFeature]error{}}

	advertised := make(map[device.StreamingFeature]bool, len(caps.Streaming))
	for _, sf := range caps.Streaming {
		advertised[sf] = true
	}
	var wanted []device.StreamingFeature
	for _, sf := range n.streaming {
		if advertised[sf] {
			wanted = append(wanted, sf)
		}
	}
	if len(wanted) == 0 {
		return ev, false
	}

	err := link.Subscribe(ctx, device.PmdControlPointChannel, func(data []byte) {
		if len(data) > 0 && data[0] == gatt.PmdControlResponse {
			n.logger.WithFields(logrus.Fields{
				"device_id": n.id,
				"response":  fmt.Sprintf("% X", data),
			}).Trace("PMD control point response")
		}
	})
	if err != nil {
		ev.err = fmt.Errorf("%w: %w", errNoControlPoint, err)
		return ev, true
	}

	for _, sf := range wanted {
		if err := link.Write(ctx, device.PmdControlPointChannel, gatt.PmdCommand(gatt.PmdGetSettings, sf)); err != nil {
			ev.failures[sf] = err
			continue
		}
		ev.ready = append(ev.ready, sf)
	}
	device.SortStreamingFeatures(ev.ready)
	return ev, true
}

// forward returns a notification handler posting payloads without blocking the radio.
func (n *negotiator) forward(f device.Feature, uuid string, epoch uint64, g *gate) func([]byte) {
	return func(data []byte) {
		ev := evPayload{epoch: epoch, feature: f, uuid: uuid, data: append([]byte(nil), data...), at: time.Now()}
		if g.hold(ev) {
			return
		}
		if !n.trySend(ev) {
			n.logger.WithFields(logrus.Fields{
				"device_id": n.id,
				"feature":   f.String(),
			}).Trace("Mailbox full, payload dropped")
		}
	}
}

// gateBacklog bounds the payloads held while a subscription is not yet reported.
const gateBacklog = 8

// gate holds notifications until the feature's readiness event is queued.
type gate struct {
	mu     sync.Mutex
	opened bool
	held   []evPayload
}

// hold keeps ev while the gate is closed. It reports false once open.
func (g *gate) hold(ev evPayload) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.opened {
		return false
	}
	if len(g.held) == gateBacklog {
		g.held = g.held[1:]
	}
	g.held = append(g.held, ev)
	return true
}

// open posts the held payloads in arrival order and lets later ones through.
func (g *gate) open(send func(ev event) bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ev := range g.held {
		send(ev)
	}
	g.held = nil
	g.opened = true
}
