package session

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesession/internal/device"
	"github.com/stretchr/testify/assert"
)

type panickyCallback struct {
	NopCallback
	connected int
}

func (c *panickyCallback) DeviceConnecting(device.Info) {
	panic("boom")
}

func (c *panickyCallback) DeviceConnected(device.Info) {
	c.connected++
}

type diagnosticCallback struct {
	NopCallback
	failures []*NegotiationError
}

func (c *diagnosticCallback) FeatureNegotiationFailed(_ string, err *NegotiationError) {
	c.failures = append(c.failures, err)
}

func TestDispatcherRecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	cb := &panickyCallback{}
	d := newDispatcher(cb, logger)

	assert.NotPanics(t, func() { d.connecting(device.Info{ID: "A"}) })
	d.connected(device.Info{ID: "A"})

	assert.Equal(t, 1, cb.connected, "dispatcher MUST keep working after a panic")
	assert.Contains(t, buf.String(), "Callback panicked")
	assert.Contains(t, buf.String(), "deviceConnecting")
}

func TestDispatcherDiagnosticsAreOptional(t *testing.T) {
	d := newDispatcher(NopCallback{}, logrus.New())
	assert.NotPanics(t, func() {
		d.negotiationFailed("A", &NegotiationError{Feature: device.FeatureBattery, Err: assert.AnError})
	})

	cb := &diagnosticCallback{}
	d = newDispatcher(cb, logrus.New())
	d.negotiationFailed("A", &NegotiationError{Feature: device.FeatureBattery, Err: assert.AnError})
	assert.Len(t, cb.failures, 1)
}

func TestDispatcherNilCallback(t *testing.T) {
	d := newDispatcher(nil, logrus.New())
	assert.NotPanics(t, func() {
		d.powerChanged(true)
		d.hr("A", device.HrSample{Rate: 60})
	})
}

func TestStreamingReadyGetsCopy(t *testing.T) {
	var got []device.StreamingFeature
	cb := &streamingCallback{fn: func(fs []device.StreamingFeature) { got = fs }}
	d := newDispatcher(cb, logrus.New())

	src := []device.StreamingFeature{device.StreamECG}
	d.streamingReady("A", src)
	src[0] = device.StreamACC

	assert.Equal(t, []device.StreamingFeature{device.StreamECG}, got)
}

type streamingCallback struct {
	NopCallback
	fn func([]device.StreamingFeature)
}

func (c *streamingCallback) StreamingFeaturesReady(_ string, fs []device.StreamingFeature) {
	c.fn(fs)
}

func TestNegotiationErrorFormat(t *testing.T) {
	sf := device.StreamACC
	err := &NegotiationError{Feature: device.FeatureStreaming, Stream: &sf, Err: assert.AnError}
	assert.Contains(t, err.Error(), "streaming/acc")
	assert.ErrorIs(t, err, assert.AnError)

	err = &NegotiationError{Feature: device.FeatureHeartRate, Err: assert.AnError}
	assert.Contains(t, err.Error(), "negotiate hr")
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.Equal(t, "power", PendingPower.String())
	assert.Equal(t, "none", PendingNone.String())
}
