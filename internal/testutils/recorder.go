package testutils

import (
	"sync"

	"github.com/srg/blesession/internal/device"
	"github.com/srg/blesession/pkg/session"
)

// Event kinds recorded by RecordingCallback.
const (
	KindPower             = "power"
	KindConnecting        = "connecting"
	KindConnected         = "connected"
	KindDisconnected      = "disconnected"
	KindStreamingReady    = "streaming_ready"
	KindHrReady           = "hr_ready"
	KindFtpReady          = "ftp_ready"
	KindDIS               = "dis"
	KindBattery           = "battery"
	KindHr                = "hr"
	KindNegotiationFailed = "negotiation_failed"
)

// RecordedEvent is one callback invocation.
type RecordedEvent struct {
	Kind    string
	ID      string
	Powered bool
	Streams []device.StreamingFeature
	UUID    string
	Value   string
	Level   int
	Sample  device.HrSample
	Err     error
}

// RecordingCallback records every callback in arrival order.
type RecordingCallback struct {
	mu     sync.Mutex
	events []RecordedEvent

	// PanicOn makes the callback panic after recording an event of that kind.
	PanicOn string

	holdID   string
	holdKind string
	release  chan struct{}
}

var (
	_ session.Callback           = (*RecordingCallback)(nil)
	_ session.DiagnosticListener = (*RecordingCallback)(nil)
)

// NewRecordingCallback creates an empty recorder.
func NewRecordingCallback() *RecordingCallback {
	return &RecordingCallback{}
}

func (r *RecordingCallback) record(ev RecordedEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	panicOn := r.PanicOn
	var release chan struct{}
	if r.release != nil && r.holdID == ev.ID && r.holdKind == ev.Kind {
		release = r.release
	}
	r.mu.Unlock()
	if panicOn != "" && panicOn == ev.Kind {
		panic("recording callback: " + ev.Kind)
	}
	if release != nil {
		<-release
	}
}

// Hold makes callbacks of kind for id block after recording until Release.
func (r *RecordingCallback) Hold(id, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.holdID, r.holdKind = id, kind
	r.release = make(chan struct{})
}

// Release unblocks held callbacks and stops holding. Safe to call repeatedly.
func (r *RecordingCallback) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.release != nil {
		close(r.release)
		r.release = nil
	}
}

func (r *RecordingCallback) BlePowerStateChanged(powered bool) {
	r.record(RecordedEvent{Kind: KindPower, Powered: powered})
}

func (r *RecordingCallback) DeviceConnecting(info device.Info) {
	r.record(RecordedEvent{Kind: KindConnecting, ID: info.ID})
}

func (r *RecordingCallback) DeviceConnected(info device.Info) {
	r.record(RecordedEvent{Kind: KindConnected, ID: info.ID})
}

func (r *RecordingCallback) DeviceDisconnected(info device.Info) {
	r.record(RecordedEvent{Kind: KindDisconnected, ID: info.ID})
}

func (r *RecordingCallback) StreamingFeaturesReady(id string, features []device.StreamingFeature) {
	r.record(RecordedEvent{Kind: KindStreamingReady, ID: id, Streams: features})
}

func (r *RecordingCallback) HrFeatureReady(id string) {
	r.record(RecordedEvent{Kind: KindHrReady, ID: id})
}

func (r *RecordingCallback) PolarFtpFeatureReady(id string) {
	r.record(RecordedEvent{Kind: KindFtpReady, ID: id})
}

func (r *RecordingCallback) DisInformationReceived(id string, uuid string, value string) {
	r.record(RecordedEvent{Kind: KindDIS, ID: id, UUID: uuid, Value: value})
}

func (r *RecordingCallback) BatteryLevelReceived(id string, level int) {
	r.record(RecordedEvent{Kind: KindBattery, ID: id, Level: level})
}

func (r *RecordingCallback) HrNotificationReceived(id string, sample device.HrSample) {
	r.record(RecordedEvent{Kind: KindHr, ID: id, Sample: sample})
}

func (r *RecordingCallback) FeatureNegotiationFailed(id string, err *session.NegotiationError) {
	r.record(RecordedEvent{Kind: KindNegotiationFailed, ID: id, Err: err})
}

// Events returns a copy of everything recorded.
func (r *RecordingCallback) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedEvent(nil), r.events...)
}

// EventsFor returns the events of one device, in order.
func (r *RecordingCallback) EventsFor(id string) []RecordedEvent {
	var out []RecordedEvent
	for _, ev := range r.Events() {
		if ev.ID == id {
			out = append(out, ev)
		}
	}
	return out
}

// Kinds returns the kinds recorded for id, in order. Use "" for power events.
func (r *RecordingCallback) Kinds(id string) []string {
	var out []string
	for _, ev := range r.EventsFor(id) {
		out = append(out, ev.Kind)
	}
	return out
}

// Count returns how many events of kind were recorded for id.
func (r *RecordingCallback) Count(id, kind string) int {
	n := 0
	for _, ev := range r.EventsFor(id) {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the last event of kind for id.
func (r *RecordingCallback) Last(id, kind string) (RecordedEvent, bool) {
	evs := r.EventsFor(id)
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Kind == kind {
			return evs[i], true
		}
	}
	return RecordedEvent{}, false
}

// Reset forgets recorded events.
func (r *RecordingCallback) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
