package goble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesession/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements gattClient for testing
type MockClient struct {
	mock.Mock
}

func (m *MockClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	args := m.Called(c, value, noRsp)
	return args.Error(0)
}

func (m *MockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	args := m.Called(c, ind, h)
	return args.Error(0)
}

func (m *MockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	args := m.Called(c, ind)
	return args.Error(0)
}

func (m *MockClient) CancelConnection() error {
	args := m.Called()
	return args.Error(0)
}

// darwinClient adds the CoreBluetooth disconnect channel.
type darwinClient struct {
	*MockClient
	disc chan struct{}
}

func (d *darwinClient) Disconnected() <-chan struct{} {
	return d.disc
}

type sensorProfile struct {
	profile *ble.Profile
	hr      *ble.Characteristic
	battery *ble.Characteristic
	cp      *ble.Characteristic
	psftp   *ble.Characteristic
}

func newSensorProfile() sensorProfile {
	p := sensorProfile{
		hr:      &ble.Characteristic{UUID: ble.MustParse("2a37"), Property: ble.CharNotify},
		battery: &ble.Characteristic{UUID: ble.MustParse("2a19"), Property: ble.CharRead | ble.CharNotify},
		cp: &ble.Characteristic{
			UUID:     ble.MustParse("fb005c81-02e7-f387-1cad-8acd2d8df0c8"),
			Property: ble.CharRead | ble.CharWrite | ble.CharIndicate,
		},
		psftp: &ble.Characteristic{
			UUID:     ble.MustParse("fb005c51-02e7-f387-1cad-8acd2d8df0c8"),
			Property: ble.CharWriteNR | ble.CharNotify,
		},
	}
	p.profile = &ble.Profile{Services: []*ble.Service{
		{UUID: ble.MustParse("180d"), Characteristics: []*ble.Characteristic{p.hr}},
		{UUID: ble.MustParse("180f"), Characteristics: []*ble.Characteristic{p.battery}},
		{UUID: ble.MustParse("180a"), Characteristics: []*ble.Characteristic{
			{UUID: ble.MustParse("2a29"), Property: ble.CharRead},
			{UUID: ble.MustParse("2a24"), Property: ble.CharRead},
		}},
		{UUID: ble.MustParse("fb005c80-02e7-f387-1cad-8acd2d8df0c8"), Characteristics: []*ble.Characteristic{p.cp}},
		{UUID: ble.MustParse("feee"), Characteristics: []*ble.Characteristic{p.psftp}},
		{UUID: ble.MustParse("1800"), Characteristics: []*ble.Characteristic{
			{UUID: ble.MustParse("2a00"), Property: ble.CharRead},
		}},
	}}
	return p
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(logger)
}

func TestLinkCapabilities(t *testing.T) {
	p := newSensorProfile()
	client := &MockClient{}
	client.On("ReadCharacteristic", p.cp).Return([]byte{0x0F, 0x05}, nil)

	l := newLink(client, p.profile, testLogger())
	caps := l.Capabilities()

	assert.Equal(t, []device.Feature{
		device.FeatureHeartRate, device.FeatureBattery, device.FeatureDeviceInformation,
		device.FeatureStreaming, device.FeatureFileTransfer,
	}, caps.Features, "features MUST follow discovery order")
	assert.Equal(t, []device.StreamingFeature{device.StreamECG, device.StreamACC}, caps.Streaming)
	assert.Equal(t, []string{device.ManufacturerName, device.ModelNumber}, caps.DIS)
	client.AssertExpectations(t)
}

func TestLinkCapabilitiesWithoutPmdFeatures(t *testing.T) {
	p := newSensorProfile()
	client := &MockClient{}
	client.On("ReadCharacteristic", p.cp).Return(nil, errors.New("att: read not permitted"))

	caps := newLink(client, p.profile, testLogger()).Capabilities()

	assert.True(t, caps.Has(device.FeatureStreaming))
	assert.Empty(t, caps.Streaming, "unreadable control point MUST advertise no sub-features")
}

func TestLinkSubscribeUsesNotifyOrIndicate(t *testing.T) {
	p := newSensorProfile()
	client := &MockClient{}
	client.On("ReadCharacteristic", p.cp).Return([]byte{0x0F, 0x01}, nil)
	client.On("Subscribe", p.hr, false, mock.Anything).Return(nil)
	client.On("Subscribe", p.cp, true, mock.Anything).Return(nil)

	l := newLink(client, p.profile, testLogger())
	ctx := context.Background()

	var got []byte
	require.NoError(t, l.Subscribe(ctx, device.HeartRateChannel, func(b []byte) { got = b }))
	require.NoError(t, l.Subscribe(ctx, device.PmdControlPointChannel, func([]byte) {}))

	// deliver through the handler go-ble received
	h := client.Calls[1].Arguments.Get(2).(ble.NotificationHandler)
	h([]byte{0x00, 61})
	assert.Equal(t, []byte{0x00, 61}, got)

	err := l.Subscribe(ctx, device.Channel{Service: device.DeviceInformationService, Characteristic: device.ModelNumber}, func([]byte) {})
	assert.ErrorIs(t, err, device.ErrUnsupported, "read-only characteristic MUST NOT be subscribable")

	var nf *device.NotFoundError
	assert.ErrorAs(t, l.Subscribe(ctx, device.Channel{Service: "abcd", Characteristic: "1234"}, func([]byte) {}), &nf)
}

func TestLinkReadWrite(t *testing.T) {
	p := newSensorProfile()
	client := &MockClient{}
	client.On("ReadCharacteristic", p.cp).Return([]byte{0x0F, 0x01}, nil)
	client.On("ReadCharacteristic", p.battery).Return([]byte{88}, nil)
	client.On("WriteCharacteristic", p.cp, []byte{0x01, 0x00}, false).Return(nil)
	client.On("WriteCharacteristic", p.psftp, []byte{0xAA}, true).Return(nil)

	l := newLink(client, p.profile, testLogger())
	ctx := context.Background()

	data, err := l.Read(ctx, device.BatteryChannel)
	require.NoError(t, err)
	assert.Equal(t, []byte{88}, data)

	require.NoError(t, l.Write(ctx, device.PmdControlPointChannel, []byte{0x01, 0x00}))
	require.NoError(t, l.Write(ctx, device.PsftpMTUChannel, []byte{0xAA}), "write-without-response characteristic MUST use noRsp")
	client.AssertExpectations(t)
}

func TestLinkReadHonorsContext(t *testing.T) {
	p := newSensorProfile()
	client := &MockClient{}
	client.On("ReadCharacteristic", p.cp).Return([]byte{0x0F, 0x01}, nil)
	client.On("ReadCharacteristic", p.battery).After(time.Second).Return([]byte{88}, nil)

	l := newLink(client, p.profile, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := l.Read(ctx, device.BatteryChannel)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLinkCloseUnsubscribes(t *testing.T) {
	p := newSensorProfile()
	client := &MockClient{}
	client.On("ReadCharacteristic", p.cp).Return([]byte{0x0F, 0x01}, nil)
	client.On("Subscribe", p.hr, false, mock.Anything).Return(nil)
	client.On("Unsubscribe", p.hr, false).Return(nil).Once()
	client.On("CancelConnection").Return(nil).Once()

	l := newLink(client, p.profile, testLogger())
	require.NoError(t, l.Subscribe(context.Background(), device.HeartRateChannel, func([]byte) {}))

	require.NoError(t, l.Close())
	require.NoError(t, l.Close(), "Close MUST be idempotent")

	select {
	case <-l.Disconnected():
	default:
		t.Fatal("Disconnected MUST be closed after Close")
	}
	_, err := l.Read(context.Background(), device.BatteryChannel)
	assert.ErrorIs(t, err, device.ErrNotConnected)
	client.AssertExpectations(t)
}

func TestLinkReportsRemoteDisconnect(t *testing.T) {
	p := newSensorProfile()
	client := &darwinClient{MockClient: &MockClient{}, disc: make(chan struct{})}
	client.On("ReadCharacteristic", p.cp).Return([]byte{0x0F, 0x01}, nil)

	l := newLink(client, p.profile, testLogger())
	close(client.disc)

	select {
	case <-l.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("remote disconnect MUST close Disconnected")
	}
}
