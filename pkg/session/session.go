package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesession/internal/device"
	"github.com/srg/blesession/internal/eventq"
	"github.com/srg/blesession/internal/groutine"
)

var (
	errLinkLost      = errors.New("link lost")
	errPowerOff      = errors.New("bluetooth powered off")
	errSessionClosed = errors.New("session closed")
)

// deviceSession is the per-device state machine. Every transition and every
// callback for the device happens on its worker goroutine, in mailbox order.
type deviceSession struct {
	info    device.Info
	out     *dispatcher
	power   *PowerState
	logger  *logrus.Logger
	mailbox *eventq.Queue[event]

	ctx     context.Context
	cancel  context.CancelFunc
	closing atomic.Bool
	done    chan struct{}

	sup    *supervisor
	neg    *negotiator
	router *router

	// power transitions not yet applied by the worker
	powerMu   sync.Mutex
	powerSeen []bool
	powerWake chan struct{}

	// owned by the worker
	state   State
	pending Pending
	retries int
	epoch   uint64
	ready   map[device.Feature]bool
	streams []device.StreamingFeature
}

func newSession(m *Manager, info device.Info) *deviceSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &deviceSession{
		info:    info,
		out:     m.out,
		power:   m.power,
		logger:  m.logger,
		mailbox: eventq.New[event](m.cfg.EventQueueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   StateIdle,
		ready:   make(map[device.Feature]bool),

		powerWake: make(chan struct{}, 1),
	}
	s.sup = &supervisor{
		info:      info,
		transport: m.transport,
		policy:    m.policy,
		timeout:   m.cfg.ConnectTimeout,
		logger:    m.logger,
		post:      s.mailbox.Send,
		ctx:       ctx,
	}
	s.neg = &negotiator{
		id:        info.ID,
		enabled:   m.features,
		streaming: m.streaming,
		logger:    m.logger,
		post:      s.mailbox.Send,
		trySend:   s.mailbox.TrySend,
	}
	s.router = newRouter(info.ID, m.out, m.logger, m.cfg.FileTransferBufferSize)

	groutine.Go(ctx, "session-worker", s.run, "device_id", info.ID)
	return s
}

func (s *deviceSession) run(context.Context) {
	defer close(s.done)
	for {
		// power transitions go ahead of queued payloads
		select {
		case <-s.powerWake:
			s.applyPower()
			continue
		default:
		}

		select {
		case <-s.powerWake:
			s.applyPower()
		case ev, ok := <-s.mailbox.C():
			if !ok {
				return
			}
			s.mailbox.MarkProcessed()
			s.handle(ev)
		}
	}
}

// notifyPower records a power transition for the worker and returns at once,
// so a session with a slow sink never holds up the others.
func (s *deviceSession) notifyPower(powered bool) {
	s.powerMu.Lock()
	if n := len(s.powerSeen); n == 0 || s.powerSeen[n-1] != powered {
		s.powerSeen = append(s.powerSeen, powered)
	}
	// off,on,off has the effect of on,off
	if n := len(s.powerSeen); n > 2 {
		s.powerSeen = append(s.powerSeen[:0], s.powerSeen[n-2:]...)
	}
	s.powerMu.Unlock()

	select {
	case s.powerWake <- struct{}{}:
	default:
	}
}

func (s *deviceSession) applyPower() {
	s.powerMu.Lock()
	seen := s.powerSeen
	s.powerSeen = nil
	s.powerMu.Unlock()

	if s.closing.Load() {
		return
	}
	for _, powered := range seen {
		s.onPower(powered)
	}
}

// send posts a control event, waiting for room in the mailbox.
func (s *deviceSession) send(ev event) error {
	return s.mailbox.Send(s.ctx, ev)
}

// call runs fn on the worker and waits for it.
func (s *deviceSession) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := s.mailbox.Send(ctx, evCall{fn: fn, done: done}); err != nil {
		if errors.Is(err, eventq.ErrClosed) {
			return ErrUnknownDevice
		}
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops the session and waits for the worker to exit.
func (s *deviceSession) close(ctx context.Context) error {
	s.closing.Store(true)
	s.cancel()

	if err := s.mailbox.Send(ctx, evTeardown{}); err != nil && !errors.Is(err, eventq.ErrClosed) {
		groutine.Go(context.Background(), "session-teardown", func(context.Context) {
			_ = s.mailbox.Send(context.Background(), evTeardown{})
		}, "device_id", s.info.ID)
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *deviceSession) handle(ev event) {
	switch e := ev.(type) {
	case evCall:
		e.fn()
		close(e.done)
		return
	case evTeardown:
		s.teardown()
		s.mailbox.Close()
		return
	}

	if s.closing.Load() {
		switch e := ev.(type) {
		case evAttempt:
			if e.link != nil {
				_ = e.link.Close()
			}
		case evPayload:
			s.router.dropStale()
		}
		return
	}

	switch e := ev.(type) {
	case evStart:
		s.onStart()
	case evAttempt:
		s.onAttempt(e)
	case evLinkLost:
		s.onLinkLost(e)
	case evRetry:
		s.onRetry(e)
	case evNegotiated:
		s.onNegotiated(e)
	case evStreaming:
		s.onStreaming(e)
	case evPayload:
		if e.epoch != s.epoch || s.state != StateConnected {
			s.router.dropStale()
			return
		}
		s.router.route(s.ready[e.feature], e)
	default:
		s.logger.WithFields(logrus.Fields{
			"device_id": s.info.ID,
			"event":     e,
		}).Warn("Unknown session event")
	}
}

func (s *deviceSession) onStart() {
	switch s.state {
	case StateConnecting, StateConnected:
		return
	case StateDisconnected:
		if s.pending != PendingNone {
			return
		}
	}

	s.retries = 0
	if !s.power.Powered() {
		s.state = StateDisconnected
		s.pending = PendingPower
		s.logger.WithField("device_id", s.info.ID).Info("Bluetooth is off, waiting for power")
		return
	}
	s.beginAttempt()
}

// beginAttempt enters Connecting, which is announced once per connection cycle.
func (s *deviceSession) beginAttempt() {
	s.epoch++
	s.sup.stopTimer()
	s.state = StateConnecting
	s.pending = PendingNone
	s.out.connecting(s.info)
	s.sup.dial(s.epoch)
}

func (s *deviceSession) onAttempt(e evAttempt) {
	if e.epoch != s.epoch || s.state != StateConnecting {
		if e.link != nil {
			_ = e.link.Close()
		}
		return
	}

	if e.err != nil {
		s.logger.WithFields(logrus.Fields{
			"device_id": s.info.ID,
			"attempt":   s.retries + 1,
			"error":     e.err,
		}).Warn("Connection attempt failed")

		if errors.Is(e.err, device.ErrBluetoothOff) {
			s.awaitPower()
			power := s.power
			groutine.Go(s.ctx, "power-off", func(context.Context) { power.Set(false) })
			return
		}

		// retries stay silent: the session remains Connecting
		s.retries++
		if _, ok := s.sup.scheduleRetry(s.retries, s.epoch); !ok {
			s.giveUp(e.err)
		}
		return
	}

	s.sup.stopTimer()
	s.retries = 0
	s.state = StateConnected
	s.pending = PendingNone
	s.router.resetFileTransfer()
	linkCtx := s.sup.attach(e.link, s.epoch)

	s.logger.WithFields(logrus.Fields{
		"device_id": s.info.ID,
		"name":      s.info.Name,
	}).Info("Device connected")

	s.out.connected(s.info)
	s.neg.start(linkCtx, e.link, s.epoch)
}

func (s *deviceSession) onLinkLost(e evLinkLost) {
	if e.epoch != s.epoch || s.state != StateConnected {
		return
	}

	s.dropLink(errLinkLost)
	s.state = StateDisconnected
	s.out.disconnected(s.info)

	if !s.power.Powered() {
		s.pending = PendingPower
		return
	}
	s.retries++
	if _, ok := s.sup.scheduleRetry(s.retries, s.epoch); ok {
		s.pending = PendingRetry
		return
	}
	s.pending = PendingNone
	s.logger.WithField("device_id", s.info.ID).Warn("Reconnect disabled or exhausted, session is terminal")
}

func (s *deviceSession) onRetry(e evRetry) {
	if e.epoch != s.epoch {
		return
	}

	switch {
	case s.state == StateConnecting:
		s.epoch++
		s.sup.dial(s.epoch)
	case s.state == StateDisconnected && s.pending == PendingRetry:
		if !s.power.Powered() {
			s.pending = PendingPower
			return
		}
		s.beginAttempt()
	}
}

func (s *deviceSession) onPower(powered bool) {
	if !powered {
		switch s.state {
		case StateConnecting, StateConnected:
			s.awaitPower()
		case StateDisconnected:
			if s.pending == PendingRetry {
				s.sup.stopTimer()
				s.pending = PendingPower
			}
		}
		return
	}

	if s.state == StateDisconnected && s.pending == PendingPower {
		s.retries = 0
		s.beginAttempt()
	}
}

// awaitPower leaves Connecting or Connected because the adapter is off.
func (s *deviceSession) awaitPower() {
	s.dropLink(errPowerOff)
	s.state = StateDisconnected
	s.pending = PendingPower
	s.out.disconnected(s.info)
}

// giveUp ends a connection cycle whose retries are exhausted.
func (s *deviceSession) giveUp(cause error) {
	s.dropLink(cause)
	s.state = StateDisconnected
	s.pending = PendingNone
	s.logger.WithFields(logrus.Fields{
		"device_id": s.info.ID,
		"retries":   s.retries,
	}).Warn("Giving up on device")
	s.out.disconnected(s.info)
}

// dropLink invalidates everything tied to the current link.
func (s *deviceSession) dropLink(cause error) {
	s.epoch++
	s.sup.stopAll(cause)
	s.ready = make(map[device.Feature]bool)
	s.streams = nil
}

func (s *deviceSession) teardown() {
	prev := s.state
	s.state = StateDisconnecting
	s.dropLink(errSessionClosed)
	s.state = StateDisconnected
	s.pending = PendingNone

	if prev == StateConnecting || prev == StateConnected {
		s.out.disconnected(s.info)
	}
	s.logger.WithFields(logrus.Fields{
		"device_id": s.info.ID,
		"state":     prev.String(),
	}).Info("Session closed")
}

func (s *deviceSession) onNegotiated(e evNegotiated) {
	if e.epoch != s.epoch || s.state != StateConnected {
		return
	}
	if e.err != nil {
		s.negotiationFailed(&NegotiationError{Feature: e.feature, Err: e.err})
		return
	}

	s.ready[e.feature] = true
	s.logger.WithFields(logrus.Fields{
		"device_id": s.info.ID,
		"feature":   e.feature.String(),
	}).Debug("Feature ready")

	switch e.feature {
	case device.FeatureHeartRate:
		s.out.hrReady(s.info.ID)
	case device.FeatureFileTransfer:
		s.out.ftpReady(s.info.ID)
	}
}

func (s *deviceSession) onStreaming(e evStreaming) {
	if e.epoch != s.epoch || s.state != StateConnected {
		return
	}
	if e.err != nil {
		s.negotiationFailed(&NegotiationError{Feature: device.FeatureStreaming, Err: e.err})
		return
	}

	failed := make([]device.StreamingFeature, 0, len(e.failures))
	for sf := range e.failures {
		failed = append(failed, sf)
	}
	device.SortStreamingFeatures(failed)
	for _, sf := range failed {
		sf := sf
		s.negotiationFailed(&NegotiationError{Feature: device.FeatureStreaming, Stream: &sf, Err: e.failures[sf]})
	}

	s.streams = e.ready
	if len(e.ready) > 0 {
		s.ready[device.FeatureStreaming] = true
	}
	s.out.streamingReady(s.info.ID, e.ready)
}

func (s *deviceSession) negotiationFailed(err *NegotiationError) {
	s.logger.WithFields(logrus.Fields{
		"device_id": s.info.ID,
		"error":     err,
	}).Warn("Feature negotiation failed")
	s.out.negotiationFailed(s.info.ID, err)
}

// status must run on the worker.
func (s *deviceSession) status() Status {
	st := Status{
		Info:     s.info,
		State:    s.state,
		Pending:  s.pending,
		Retries:  s.retries,
		Streams:  append([]device.StreamingFeature(nil), s.streams...),
		Terminal: s.state == StateDisconnected && s.pending == PendingNone,
	}
	for f, ok := range s.ready {
		if ok {
			st.Ready = append(st.Ready, f)
		}
	}
	sort.Slice(st.Ready, func(i, j int) bool { return st.Ready[i] < st.Ready[j] })
	return st
}

func (s *deviceSession) stats() Stats {
	st := s.router.stats()
	st.DroppedOverflow = s.mailbox.GetMetrics().Dropped
	return st
}

func (s *deviceSession) hasStream(sf device.StreamingFeature) bool {
	for _, v := range s.streams {
		if v == sf {
			return true
		}
	}
	return false
}
