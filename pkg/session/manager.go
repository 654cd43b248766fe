package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesession/internal/device"
	"github.com/srg/blesession/internal/eventq"
	"github.com/srg/blesession/internal/gatt"
	"github.com/srg/blesession/internal/groutine"
	"github.com/srg/blesession/pkg/config"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Options configures a Manager.
type Options struct {
	// Config defaults to config.DefaultConfig().
	Config *config.Config
	// Transport dials physical links. Required.
	Transport device.Transport
	// Callback receives events. Defaults to NopCallback.
	Callback Callback
	// Logger defaults to a logger built from Config.
	Logger *logrus.Logger
	// Power defaults to ProcessPower().
	Power *PowerState
}

// Manager supervises one session per device identifier.
//
// Callbacks for a single device are delivered sequentially and in order.
// Callbacks for different devices, and power changes, may run concurrently.
type Manager struct {
	cfg       *config.Config
	transport device.Transport
	out       *dispatcher
	logger    *logrus.Logger
	power     *PowerState
	policy    ReconnectPolicy
	features  map[device.Feature]bool
	streaming []device.StreamingFeature

	mu       sync.Mutex // serializes session creation and removal
	sessions *hashmap.Map[string, *deviceSession]
	closed   atomic.Bool

	powerQ      *eventq.Queue[bool]
	powerDone   chan struct{}
	unsubscribe func()
}

// NewManager creates a Manager and starts observing the power state.
func NewManager(opts Options) (*Manager, error) {
	if opts.Transport == nil {
		return nil, errors.New("transport is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	features, err := cfg.FeatureSet()
	if err != nil {
		return nil, err
	}
	streaming, err := cfg.StreamingFeatures()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = cfg.NewLogger()
	}
	power := opts.Power
	if power == nil {
		power = ProcessPower()
	}

	m := &Manager{
		cfg:       cfg,
		transport: opts.Transport,
		out:       newDispatcher(opts.Callback, logger),
		logger:    logger,
		power:     power,
		policy:    PolicyFromConfig(cfg.Reconnect),
		features:  features,
		streaming: streaming,
		sessions:  hashmap.New[string, *deviceSession](),
		powerQ:    eventq.New[bool](16),
		powerDone: make(chan struct{}),
	}

	m.unsubscribe = power.Subscribe(func(powered bool) {
		_ = m.powerQ.Send(context.Background(), powered)
	})
	if pr, ok := opts.Transport.(device.PowerReporter); ok {
		pr.OnPowerChanged(func(powered bool) { power.Set(powered) })
	}

	groutine.Go(context.Background(), "session-power", m.powerLoop)

	logger.WithFields(logrus.Fields{
		"features":  cfg.Features,
		"streaming": cfg.Streaming,
		"reconnect": cfg.Reconnect.Enabled,
	}).Debug("Session manager started")
	return m, nil
}

func (m *Manager) powerLoop(context.Context) {
	defer close(m.powerDone)
	for powered := range m.powerQ.C() {
		m.powerQ.MarkProcessed()
		m.logger.WithField("powered", powered).Info("Bluetooth power changed")
		m.out.powerChanged(powered)

		m.sessions.Range(func(_ string, s *deviceSession) bool {
			s.notifyPower(powered)
			return true
		})
	}
}

// Connect starts supervising the device with the given identifier. The
// device is reconnected automatically until Disconnect is called.
// Connecting an already supervised device is a no-op unless its session gave
// up, in which case a new connection cycle starts.
func (m *Manager) Connect(id string) error {
	return m.ConnectWithInfo(device.Info{ID: id})
}

// ConnectWithInfo is Connect with an address or name known in advance.
func (m *Manager) ConnectWithInfo(info device.Info) error {
	if info.ID == "" {
		return errors.New("device id is empty")
	}
	if info.Address == "" {
		info.Address = info.ID
	}

	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		return ErrClosed
	}
	s, ok := m.sessions.Get(info.ID)
	if !ok {
		s = newSession(m, info)
		m.sessions.Set(info.ID, s)
		m.logger.WithField("device_id", info.ID).Info("Session created")
	}
	m.mu.Unlock()

	return s.send(evStart{})
}

// Disconnect closes the session of id and waits until its last callback has
// returned. After it returns no further events are emitted for the device.
// Unknown identifiers are ignored.
func (m *Manager) Disconnect(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions.Get(id)
	if ok {
		m.sessions.Del(id)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return s.close(ctx)
}

// Close disconnects every session and stops observing the power state.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed.Swap(true) {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.unsubscribe()

	var errs []error
	for _, id := range m.Sessions() {
		if err := m.Disconnect(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}

	m.powerQ.Close()
	select {
	case <-m.powerDone:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}

// StartStream starts a streaming measurement that negotiated on the current link.
func (m *Manager) StartStream(ctx context.Context, id string, sf device.StreamingFeature) error {
	return m.streamCommand(ctx, id, sf, gatt.PmdStartMeasure)
}

// StopStream stops a streaming measurement.
func (m *Manager) StopStream(ctx context.Context, id string, sf device.StreamingFeature) error {
	return m.streamCommand(ctx, id, sf, gatt.PmdStopMeasure)
}

func (m *Manager) streamCommand(ctx context.Context, id string, sf device.StreamingFeature, op byte) error {
	s, ok := m.sessions.Get(id)
	if !ok {
		return ErrUnknownDevice
	}

	var (
		link device.Link
		err  error
	)
	if cerr := s.call(ctx, func() {
		switch {
		case s.state != StateConnected:
			err = device.ErrNotConnected
		case !s.hasStream(sf):
			err = fmt.Errorf("%s: %w", sf, ErrFeatureNotReady)
		default:
			link = s.sup.link
		}
	}); cerr != nil {
		return cerr
	}
	if err != nil {
		return err
	}

	m.logger.WithFields(logrus.Fields{
		"device_id": id,
		"stream":    sf.String(),
		"op":        fmt.Sprintf("0x%02X", op),
	}).Debug("Sending PMD command")
	return link.Write(ctx, device.PmdControlPointChannel, gatt.PmdCommand(op, sf))
}

// Status returns a snapshot of the session of id.
func (m *Manager) Status(ctx context.Context, id string) (Status, error) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return Status{}, ErrUnknownDevice
	}
	var st Status
	if err := s.call(ctx, func() { st = s.status() }); err != nil {
		return Status{}, err
	}
	return st, nil
}

// ReadyFeatures returns the features ready on the current link.
func (m *Manager) ReadyFeatures(ctx context.Context, id string) ([]device.Feature, error) {
	st, err := m.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	return st.Ready, nil
}

// DeviceInformation returns a copy of the device information gathered so far,
// keyed by characteristic UUID in the order values first arrived.
func (m *Manager) DeviceInformation(id string) (*orderedmap.OrderedMap[string, string], error) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, ErrUnknownDevice
	}
	return s.router.deviceInformation(), nil
}

// ReadFileTransfer drains buffered file transfer bytes into p.
// Returns 0, nil when nothing is buffered.
func (m *Manager) ReadFileTransfer(id string, p []byte) (int, error) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return 0, ErrUnknownDevice
	}
	return s.router.readFileTransfer(p)
}

// Stats returns payload counters of the session of id.
func (m *Manager) Stats(id string) (Stats, error) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return Stats{}, ErrUnknownDevice
	}
	return s.stats(), nil
}

// Sessions returns the supervised device identifiers, sorted.
func (m *Manager) Sessions() []string {
	ids := make([]string, 0, m.sessions.Len())
	m.sessions.Range(func(id string, _ *deviceSession) bool {
		ids = append(ids, id)
		return true
	})
	sort.Strings(ids)
	return ids
}

// Powered reports the Bluetooth power state observed by this manager.
func (m *Manager) Powered() bool {
	return m.power.Powered()
}
