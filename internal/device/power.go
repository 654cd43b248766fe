package device

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesession/internal/groutine"
)

// DefaultPowerProbeInterval is how often PowerProbe checks an adapter reported off.
const DefaultPowerProbeInterval = 2 * time.Second

// PowerProbe implements PowerReporter for radio stacks that only reveal the
// adapter state through failures. Transports call ReportOff when an operation
// fails with ErrBluetoothOff; the probe then polls check until it succeeds and
// reports power on.
type PowerProbe struct {
	interval time.Duration
	check    func() error
	logger   *logrus.Logger

	mu      sync.Mutex
	fns     []func(bool)
	probing bool
	cancel  context.CancelFunc
}

// NewPowerProbe creates a probe. check returns nil once the adapter is usable.
func NewPowerProbe(interval time.Duration, check func() error, logger *logrus.Logger) *PowerProbe {
	if interval <= 0 {
		interval = DefaultPowerProbeInterval
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &PowerProbe{interval: interval, check: check, logger: logger}
}

// OnPowerChanged implements PowerReporter.
func (p *PowerProbe) OnPowerChanged(fn func(powered bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fns = append(p.fns, fn)
}

// Observe reports power off when err is ErrBluetoothOff and starts probing.
// Returns err unchanged.
func (p *PowerProbe) Observe(err error) error {
	if IsConnectionState(err, BluetoothOff) {
		p.ReportOff()
	}
	return err
}

// ReportOff notifies listeners and polls until the adapter comes back.
func (p *PowerProbe) ReportOff() {
	p.mu.Lock()
	if p.probing {
		p.mu.Unlock()
		return
	}
	p.probing = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	fns := append([]func(bool){}, p.fns...)
	p.mu.Unlock()

	p.logger.Warn("Bluetooth adapter is off")
	for _, fn := range fns {
		fn(false)
	}

	groutine.Go(ctx, "power-probe", p.poll)
}

func (p *PowerProbe) poll(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := p.check(); err != nil {
			p.logger.WithField("error", err).Debug("Bluetooth adapter still unavailable")
			continue
		}

		p.mu.Lock()
		p.probing = false
		p.cancel = nil
		fns := append([]func(bool){}, p.fns...)
		p.mu.Unlock()

		p.logger.Info("Bluetooth adapter is back on")
		for _, fn := range fns {
			fn(true)
		}
		return
	}
}

// Stop ends probing without reporting.
func (p *PowerProbe) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.probing = false
}
