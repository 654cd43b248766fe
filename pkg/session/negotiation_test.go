package session_test

import (
	"errors"
	"testing"
	"time"

	"github.com/srg/blesession/internal/device"
	"github.com/srg/blesession/internal/testutils"
	"github.com/srg/blesession/pkg/session"
	"github.com/stretchr/testify/suite"
)

type NegotiationTestSuite struct {
	testutils.SessionManagerSuite
}

// TestFeaturesNegotiateIndependently verifies that one failing feature does not
// hold back the others.
//
// GOAL: A failed heart rate subscription is reported through the diagnostic
// listener while battery, streaming and file transfer still become ready
//
// TEST SCENARIO: Sensor whose heart rate subscribe fails → connect → other
// readiness events arrive → one diagnostic for heart rate
func (s *NegotiationTestSuite) TestFeaturesNegotiateIndependently() {
	hrErr := errors.New("cccd write rejected")
	s.Transport.Add("A", testutils.CreatePolarSensor("Polar H10", 70).
		FailSubscribe(device.HeartRateChannel, hrErr).
		Build())

	link := s.Connected("A")
	s.WaitCount("A", testutils.KindFtpReady, 1)
	s.WaitCount("A", testutils.KindStreamingReady, 1)
	s.WaitCount("A", testutils.KindBattery, 1)
	s.WaitCount("A", testutils.KindNegotiationFailed, 1, "heart rate failure MUST be reported once")

	s.Equal(0, s.Recorder.Count("A", testutils.KindHrReady))

	failed, _ := s.Recorder.Last("A", testutils.KindNegotiationFailed)
	var negErr *session.NegotiationError
	s.Require().ErrorAs(failed.Err, &negErr)
	s.Equal(device.FeatureHeartRate, negErr.Feature)
	s.ErrorIs(negErr, hrErr)

	s.False(link.Notify(device.HeartRateChannel, []byte{0x00, 60}), "a failed subscription MUST leave no handler")
}

func (s *NegotiationTestSuite) TestStreamingSubFeatureFailure() {
	accErr := errors.New("acc busy")
	s.Transport.Add("A", testutils.CreatePolarSensor("Polar H10", 70).
		FailStream(device.StreamACC, accErr).
		Build())

	s.Connected("A")
	s.WaitCount("A", testutils.KindStreamingReady, 1)
	s.WaitCount("A", testutils.KindNegotiationFailed, 1)

	ready, _ := s.Recorder.Last("A", testutils.KindStreamingReady)
	s.Equal([]device.StreamingFeature{device.StreamECG}, ready.Streams,
		"only negotiated sub-features MUST be listed")

	failed, _ := s.Recorder.Last("A", testutils.KindNegotiationFailed)
	var negErr *session.NegotiationError
	s.Require().ErrorAs(failed.Err, &negErr)
	s.Require().NotNil(negErr.Stream)
	s.Equal(device.StreamACC, *negErr.Stream)
	s.Equal(device.FeatureStreaming, negErr.Feature)
}

func (s *NegotiationTestSuite) TestControlPointFailure() {
	s.Transport.Add("A", testutils.CreatePolarSensor("Polar H10", 70).
		FailSubscribe(device.PmdControlPointChannel, testutils.ErrFakeRadio).
		Build())

	s.Connected("A")
	s.WaitCount("A", testutils.KindNegotiationFailed, 1)
	s.WaitCount("A", testutils.KindHrReady, 1)
	s.Never(func() bool {
		return s.Recorder.Count("A", testutils.KindStreamingReady) > 0
	}, 100*time.Millisecond, s.Tick, "streaming MUST NOT become ready without the control point")
}

func (s *NegotiationTestSuite) TestDeviceInformationReadFailureSkipsValue() {
	s.Transport.Add("A", testutils.CreatePolarSensor("Polar H10", 70).
		FailRead(device.Channel{Service: device.DeviceInformationService, Characteristic: device.ManufacturerName}, testutils.ErrFakeRadio).
		Build())

	s.Connected("A")
	s.WaitCount("A", testutils.KindDIS, 1)

	dis, _ := s.Recorder.Last("A", testutils.KindDIS)
	s.Equal(device.ModelNumber, dis.UUID)
	s.Equal("H10", dis.Value)
	s.Equal(0, s.Recorder.Count("A", testutils.KindNegotiationFailed),
		"a missing device information value MUST NOT fail the feature")
}

func (s *NegotiationTestSuite) TestOnlyAdvertisedFeaturesNegotiate() {
	s.Transport.Add("A", testutils.CreateMockPeripheralDevice().
		WithName("HR strap").
		WithService("180D").
		WithCharacteristic("2A37", "notify", nil).
		Build())

	s.Connected("A")
	s.WaitCount("A", testutils.KindHrReady, 1)
	s.Never(func() bool {
		n := 0
		for _, kind := range []string{testutils.KindFtpReady, testutils.KindStreamingReady, testutils.KindBattery, testutils.KindNegotiationFailed} {
			n += s.Recorder.Count("A", kind)
		}
		return n > 0
	}, 100*time.Millisecond, s.Tick, "features the device does not advertise MUST stay silent")
}

// TestStreamingWithoutSubFeaturesStaysSilent verifies the streaming aggregate
// is only reported when a sub-feature was attempted.
//
// GOAL: A device exposing the PMD service without any measurement type gets no
// streamingFeaturesReady and no control point traffic
//
// TEST SCENARIO: Sensor with heart rate and an empty PMD feature list → connect →
// heart rate ready → no streaming event, no PMD writes
func (s *NegotiationTestSuite) TestStreamingWithoutSubFeaturesStaysSilent() {
	s.Transport.Add("X", testutils.CreateMockPeripheralDeviceFromJSON(`
	{
		"name": "PMD without measurements",
		"services": [
			{
				"uuid": "180D",
				"characteristics": [ { "uuid": "2A37", "properties": "notify" } ]
			},
			{
				"uuid": "FB005C80-02E7-F387-1CAD-8ACD2D8DF0C8",
				"characteristics": [
					{ "uuid": "FB005C81-02E7-F387-1CAD-8ACD2D8DF0C8", "properties": "write,notify" }
				]
			}
		],
		"streaming": []
	}`).Build())

	link := s.Connected("X")
	s.WaitCount("X", testutils.KindHrReady, 1)

	s.Never(func() bool {
		return s.Recorder.Count("X", testutils.KindStreamingReady)+s.Recorder.Count("X", testutils.KindNegotiationFailed) > 0
	}, 100*time.Millisecond, s.Tick, "streamingFeaturesReady MUST NOT be emitted when no sub-feature was attempted")
	s.Empty(link.Writes(), "no PMD command MAY be sent")
	s.False(link.Subscribed(device.PmdControlPointChannel))
}

// TestEarlyNotificationIsDelivered verifies that a sample arriving while the
// subscription is being enabled reaches the sink after hrFeatureReady.
func (s *NegotiationTestSuite) TestEarlyNotificationIsDelivered() {
	s.Transport.Add("A", testutils.CreatePolarSensor("Polar H10", 70).
		NotifyOnSubscribe(device.HeartRateChannel, []byte{0x00, 66}).
		Build())

	s.Connected("A")
	s.WaitCount("A", testutils.KindHr, 1, "the first heart rate sample MUST NOT be lost")

	hr, _ := s.Recorder.Last("A", testutils.KindHr)
	s.Equal(66, hr.Sample.Rate)

	kinds := s.Recorder.Kinds("A")
	var readyAt, hrAt int
	for i, k := range kinds {
		switch k {
		case testutils.KindHrReady:
			readyAt = i
		case testutils.KindHr:
			hrAt = i
		}
	}
	s.Less(readyAt, hrAt, "hrFeatureReady MUST precede the sample")

	st, err := s.Manager.Stats("A")
	s.Require().NoError(err)
	s.Zero(st.DroppedNotReady)
}

func TestNegotiationTestSuite(t *testing.T) {
	suite.Run(t, new(NegotiationTestSuite))
}

type FeatureSelectionTestSuite struct {
	testutils.SessionManagerSuite
}

func (s *FeatureSelectionTestSuite) SetupTest() {
	s.Config().Features = []string{"hr", "battery"}
	s.SessionManagerSuite.SetupTest()
	s.Transport.Add("A", testutils.CreatePolarSensor("Polar H10", 64).Build())
}

func (s *FeatureSelectionTestSuite) TestDisabledFeaturesAreSkipped() {
	link := s.Connected("A")
	s.WaitCount("A", testutils.KindHrReady, 1)
	s.WaitCount("A", testutils.KindBattery, 1)

	s.Never(func() bool {
		return s.Recorder.Count("A", testutils.KindStreamingReady)+s.Recorder.Count("A", testutils.KindFtpReady) > 0
	}, 100*time.Millisecond, s.Tick, "disabled features MUST NOT negotiate")
	s.False(link.Subscribed(device.PmdControlPointChannel))
	s.False(link.Subscribed(device.PsftpMTUChannel))
}

func TestFeatureSelectionTestSuite(t *testing.T) {
	suite.Run(t, new(FeatureSelectionTestSuite))
}
