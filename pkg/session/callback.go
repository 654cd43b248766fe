package session

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesession/internal/device"
)

// PowerListener receives process-wide Bluetooth power transitions.
type PowerListener interface {
	// BlePowerStateChanged reports adapter power: true = on, false = off.
	BlePowerStateChanged(powered bool)
}

// ConnectionListener receives device lifecycle events.
type ConnectionListener interface {
	DeviceConnecting(info device.Info)
	DeviceConnected(info device.Info)
	// DeviceDisconnected needs no action from the application unless it wants
	// to stop the session: the device is reconnected automatically until
	// Manager.Disconnect is called.
	DeviceDisconnected(info device.Info)
}

// FeatureListener receives feature readiness events.
type FeatureListener interface {
	// StreamingFeaturesReady lists the streaming sub-features available on the link.
	StreamingFeaturesReady(id string, features []device.StreamingFeature)
	// HrFeatureReady is emitted when heart rate notifications are about to start.
	HrFeatureReady(id string)
	// PolarFtpFeatureReady is emitted when file transfer can be used.
	PolarFtpFeatureReady(id string)
}

// DataListener receives steady-state payloads of ready features.
type DataListener interface {
	DisInformationReceived(id string, uuid string, value string)
	// BatteryLevelReceived reports a level within 0..100.
	BatteryLevelReceived(id string, level int)
	// HrNotificationReceived reports one heart rate notification. Rate is 0
	// while a PPI-only measurement is running.
	HrNotificationReceived(id string, sample device.HrSample)
}

// DiagnosticListener is optional. When the Callback also implements it, each
// failed feature negotiation is reported once per link.
type DiagnosticListener interface {
	FeatureNegotiationFailed(id string, err *NegotiationError)
}

// Callback is the full event surface. Embed NopCallback to implement only the
// events of interest.
type Callback interface {
	PowerListener
	ConnectionListener
	FeatureListener
	DataListener
}

// NopCallback implements Callback with empty methods.
type NopCallback struct{}

func (NopCallback) BlePowerStateChanged(bool)                                {}
func (NopCallback) DeviceConnecting(device.Info)                             {}
func (NopCallback) DeviceConnected(device.Info)                              {}
func (NopCallback) DeviceDisconnected(device.Info)                           {}
func (NopCallback) StreamingFeaturesReady(string, []device.StreamingFeature) {}
func (NopCallback) HrFeatureReady(string)                                    {}
func (NopCallback) PolarFtpFeatureReady(string)                              {}
func (NopCallback) DisInformationReceived(string, string, string)            {}
func (NopCallback) BatteryLevelReceived(string, int)                         {}
func (NopCallback) HrNotificationReceived(string, device.HrSample)           {}

var _ Callback = NopCallback{}

// dispatcher invokes the application callback and contains its failures:
// a panicking callback is logged and the event is considered delivered.
type dispatcher struct {
	cb     Callback
	diag   DiagnosticListener
	logger *logrus.Logger
}

func newDispatcher(cb Callback, logger *logrus.Logger) *dispatcher {
	if cb == nil {
		cb = NopCallback{}
	}
	d := &dispatcher{cb: cb, logger: logger}
	if diag, ok := cb.(DiagnosticListener); ok {
		d.diag = diag
	}
	return d
}

func (d *dispatcher) invoke(event, id string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(logrus.Fields{
				"event":     event,
				"device_id": id,
				"panic":     fmt.Sprint(r),
			}).Error("Callback panicked, event dropped")
		}
	}()
	fn()
}

func (d *dispatcher) powerChanged(powered bool) {
	d.invoke("blePowerStateChanged", "", func() { d.cb.BlePowerStateChanged(powered) })
}

func (d *dispatcher) connecting(info device.Info) {
	d.invoke("deviceConnecting", info.ID, func() { d.cb.DeviceConnecting(info) })
}

func (d *dispatcher) connected(info device.Info) {
	d.invoke("deviceConnected", info.ID, func() { d.cb.DeviceConnected(info) })
}

func (d *dispatcher) disconnected(info device.Info) {
	d.invoke("deviceDisconnected", info.ID, func() { d.cb.DeviceDisconnected(info) })
}

func (d *dispatcher) streamingReady(id string, fs []device.StreamingFeature) {
	cp := append([]device.StreamingFeature(nil), fs...)
	d.invoke("streamingFeaturesReady", id, func() { d.cb.StreamingFeaturesReady(id, cp) })
}

func (d *dispatcher) hrReady(id string) {
	d.invoke("hrFeatureReady", id, func() { d.cb.HrFeatureReady(id) })
}

func (d *dispatcher) ftpReady(id string) {
	d.invoke("polarFtpFeatureReady", id, func() { d.cb.PolarFtpFeatureReady(id) })
}

func (d *dispatcher) disValue(id, uuid, value string) {
	d.invoke("disInformationReceived", id, func() { d.cb.DisInformationReceived(id, uuid, value) })
}

func (d *dispatcher) battery(id string, level int) {
	d.invoke("batteryLevelReceived", id, func() { d.cb.BatteryLevelReceived(id, level) })
}

func (d *dispatcher) hr(id string, s device.HrSample) {
	d.invoke("hrNotificationReceived", id, func() { d.cb.HrNotificationReceived(id, s) })
}

func (d *dispatcher) negotiationFailed(id string, err *NegotiationError) {
	if d.diag == nil {
		return
	}
	d.invoke("featureNegotiationFailed", id, func() { d.diag.FeatureNegotiationFailed(id, err) })
}
