package testutils

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesession/pkg/config"
	"github.com/srg/blesession/pkg/session"
	"github.com/stretchr/testify/suite"
)

// SessionManagerSuite provides a session.Manager wired to a FakeTransport, a
// RecordingCallback and an isolated power state.
//
// Basic usage:
//
//	type ReconnectSuite struct {
//	    testutils.SessionManagerSuite
//	}
//
//	func (s *ReconnectSuite) SetupTest() {
//	    s.Config().Reconnect.MaxRetries = 2 // adjust configuration first
//	    s.SessionManagerSuite.SetupTest()  // call parent last to build the manager
//	    s.Transport.Add("A", testutils.CreatePolarSensor("H10", 80).Build())
//	}
type SessionManagerSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	Transport *FakeTransport
	Recorder  *RecordingCallback
	Power     *session.PowerState
	Manager   *session.Manager

	// Wait bounds Eventually assertions.
	Wait time.Duration
	// Tick is the Eventually polling interval.
	Tick time.Duration

	cfg *config.Config
}

// SetupSuite is called once before all tests in the suite.
func (s *SessionManagerSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.Wait = 2 * time.Second
	s.Tick = 5 * time.Millisecond
}

// Config returns the configuration the next SetupTest uses. Fast reconnect
// timings are the default.
func (s *SessionManagerSuite) Config() *config.Config {
	if s.cfg == nil {
		s.cfg = config.DefaultConfig()
		s.cfg.ConnectTimeout = 500 * time.Millisecond
		s.cfg.Reconnect.InitialDelay = 10 * time.Millisecond
		s.cfg.Reconnect.MaxDelay = 40 * time.Millisecond
	}
	return s.cfg
}

// SetupTest builds a fresh manager before each test.
func (s *SessionManagerSuite) SetupTest() {
	if s.Transport == nil {
		s.Transport = NewFakeTransport()
	}
	s.Recorder = NewRecordingCallback()
	s.Power = session.NewPowerState(true)

	m, err := session.NewManager(session.Options{
		Config:    s.Config(),
		Transport: s.Transport,
		Callback:  s.Recorder,
		Logger:    s.Logger,
		Power:     s.Power,
	})
	s.Require().NoError(err, "manager MUST be created")
	s.Manager = m
}

// TearDownTest closes the manager and resets per-test state.
func (s *SessionManagerSuite) TearDownTest() {
	if s.Manager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.Wait)
		defer cancel()
		s.NoError(s.Manager.Close(ctx), "manager MUST close cleanly")
	}
	s.Manager = nil
	s.Transport = nil
	s.cfg = nil
}

// WaitCount waits until the recorder holds n events of kind for id.
func (s *SessionManagerSuite) WaitCount(id, kind string, n int, msgAndArgs ...interface{}) {
	s.Eventually(func() bool {
		return s.Recorder.Count(id, kind) == n
	}, s.Wait, s.Tick, msgAndArgs...)
}

// WaitState waits until the session of id reaches state.
func (s *SessionManagerSuite) WaitState(id string, state session.State, msgAndArgs ...interface{}) {
	s.Eventually(func() bool {
		st, err := s.Manager.Status(context.Background(), id)
		return err == nil && st.State == state
	}, s.Wait, s.Tick, msgAndArgs...)
}

// Connected connects id and waits for its deviceConnected event.
func (s *SessionManagerSuite) Connected(id string) *FakeLink {
	before := s.Recorder.Count(id, KindConnected)
	s.Require().NoError(s.Manager.Connect(id))
	s.WaitCount(id, KindConnected, before+1, "device MUST connect")
	link := s.Transport.Link(id)
	s.Require().NotNil(link, "transport MUST have created a link")
	return link
}
