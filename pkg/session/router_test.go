package session

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesession/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routedCallback struct {
	NopCallback
	dis     [][2]string
	battery []int
	hr      []device.HrSample
}

func (c *routedCallback) DisInformationReceived(_ string, uuid, value string) {
	c.dis = append(c.dis, [2]string{uuid, value})
}

func (c *routedCallback) BatteryLevelReceived(_ string, level int) {
	c.battery = append(c.battery, level)
}

func (c *routedCallback) HrNotificationReceived(_ string, s device.HrSample) {
	c.hr = append(c.hr, s)
}

func newTestRouter(cb Callback, ftpSize int) *router {
	logger := logrus.New()
	return newRouter("A", newDispatcher(cb, logger), logger, ftpSize)
}

func TestRouterDropsNotReady(t *testing.T) {
	cb := &routedCallback{}
	r := newTestRouter(cb, 16)

	r.route(false, evPayload{feature: device.FeatureBattery, data: []byte{50}})
	r.dropStale()

	assert.Empty(t, cb.battery)
	assert.Equal(t, int64(2), r.stats().DroppedNotReady)
	assert.Zero(t, r.stats().Delivered)
}

func TestRouterDeviceInformationRecord(t *testing.T) {
	cb := &routedCallback{}
	r := newTestRouter(cb, 16)

	r.route(true, evPayload{feature: device.FeatureDeviceInformation, uuid: device.ManufacturerName, data: []byte("Polar Electro Oy")})
	r.route(true, evPayload{feature: device.FeatureDeviceInformation, uuid: device.SystemID, data: []byte{0x01, 0xAB}})
	// same value again after a reconnect is delivered but does not reorder the record
	r.route(true, evPayload{feature: device.FeatureDeviceInformation, uuid: device.ManufacturerName, data: []byte("Polar Electro Oy")})

	require.Len(t, cb.dis, 3)
	assert.Equal(t, [2]string{device.SystemID, "01AB"}, cb.dis[1])

	record := r.deviceInformation()
	assert.Equal(t, 2, record.Len())
	assert.Equal(t, device.ManufacturerName, record.Oldest().Key)
	assert.Equal(t, device.SystemID, record.Newest().Key)
}

func TestRouterMalformed(t *testing.T) {
	cb := &routedCallback{}
	r := newTestRouter(cb, 16)

	r.route(true, evPayload{feature: device.FeatureBattery, data: []byte{}})
	r.route(true, evPayload{feature: device.FeatureHeartRate, data: []byte{0x00}})
	r.route(true, evPayload{feature: device.FeatureDeviceInformation, uuid: device.ModelNumber, data: []byte{0xff, 0xfe}})

	assert.Empty(t, cb.battery)
	assert.Empty(t, cb.hr)
	assert.Empty(t, cb.dis)
	assert.Equal(t, int64(3), r.stats().DroppedMalformed)
}

func TestRouterHeartRate(t *testing.T) {
	cb := &routedCallback{}
	r := newTestRouter(cb, 16)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	r.route(true, evPayload{feature: device.FeatureHeartRate, data: []byte{0x06, 65}, at: at})

	require.Len(t, cb.hr, 1)
	assert.Equal(t, 65, cb.hr[0].Rate)
	assert.True(t, cb.hr[0].ContactSupported)
	assert.True(t, cb.hr[0].Contact)
	assert.Equal(t, at, cb.hr[0].Time)
	assert.Equal(t, int64(1), r.stats().Delivered)
}

func TestRouterFileTransferOverflow(t *testing.T) {
	r := newTestRouter(NopCallback{}, 4)

	r.route(true, evPayload{feature: device.FeatureFileTransfer, data: []byte("abc")})
	r.route(true, evPayload{feature: device.FeatureFileTransfer, data: []byte("def")})

	assert.Equal(t, int64(2), r.stats().FileTransferLost, "bytes beyond capacity MUST be counted")

	buf := make([]byte, 8)
	n, err := r.readFileTransfer(buf)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(buf[:n]))

	n, err = r.readFileTransfer(buf)
	assert.NoError(t, err)
	assert.Zero(t, n)

	r.route(true, evPayload{feature: device.FeatureFileTransfer, data: []byte("x")})
	r.resetFileTransfer()
	n, _ = r.readFileTransfer(buf)
	assert.Zero(t, n, "reset MUST discard buffered bytes")
}
