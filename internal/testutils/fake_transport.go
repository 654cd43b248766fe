package testutils

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srg/blesession/internal/device"
)

// FakeTransport is an in-memory device.Transport. Peripherals are registered by id.
type FakeTransport struct {
	mu          sync.Mutex
	peripherals map[string]*Peripheral
	dialErrs    map[string][]error
	blocked     map[string]bool
	dialDelay   time.Duration
	dials       map[string]int
	links       map[string][]*FakeLink
	powerFns    []func(bool)
}

// NewFakeTransport creates an empty transport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		peripherals: make(map[string]*Peripheral),
		dialErrs:    make(map[string][]error),
		blocked:     make(map[string]bool),
		dials:       make(map[string]int),
		links:       make(map[string][]*FakeLink),
	}
}

// Add registers a peripheral under id.
func (t *FakeTransport) Add(id string, p *Peripheral) *FakeTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peripherals[id] = p
	return t
}

// FailDial queues errors returned by the next dials of id, one per dial.
func (t *FakeTransport) FailDial(id string, errs ...error) *FakeTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dialErrs[id] = append(t.dialErrs[id], errs...)
	return t
}

// BlockDial makes dials of id wait until their context ends.
func (t *FakeTransport) BlockDial(id string, block bool) *FakeTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.blocked[id] = block
	return t
}

// WithDialDelay delays every successful dial.
func (t *FakeTransport) WithDialDelay(d time.Duration) *FakeTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dialDelay = d
	return t
}

// Dial implements device.Transport.
func (t *FakeTransport) Dial(ctx context.Context, info device.Info) (device.Link, error) {
	t.mu.Lock()
	t.dials[info.ID]++
	blocked := t.blocked[info.ID]
	delay := t.dialDelay
	var queued error
	if errs := t.dialErrs[info.ID]; len(errs) > 0 {
		queued = errs[0]
		t.dialErrs[info.ID] = errs[1:]
	}
	p := t.peripherals[info.ID]
	t.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if queued != nil {
		return nil, queued
	}
	if p == nil {
		return nil, &device.NotFoundError{Resource: "device", UUIDs: []string{info.ID}}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	link := newFakeLink(p)
	t.mu.Lock()
	t.links[info.ID] = append(t.links[info.ID], link)
	t.mu.Unlock()
	return link, nil
}

// OnPowerChanged implements device.PowerReporter.
func (t *FakeTransport) OnPowerChanged(fn func(bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.powerFns = append(t.powerFns, fn)
}

// ReportPower simulates the radio reporting an adapter power change.
func (t *FakeTransport) ReportPower(powered bool) {
	t.mu.Lock()
	fns := append([]func(bool){}, t.powerFns...)
	t.mu.Unlock()
	for _, fn := range fns {
		fn(powered)
	}
}

// DialCount returns how many dials id received.
func (t *FakeTransport) DialCount(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials[id]
}

// Links returns every link created for id, oldest first.
func (t *FakeTransport) Links(id string) []*FakeLink {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*FakeLink(nil), t.links[id]...)
}

// Link returns the most recent link of id, or nil.
func (t *FakeTransport) Link(id string) *FakeLink {
	links := t.Links(id)
	if len(links) == 0 {
		return nil
	}
	return links[len(links)-1]
}

// FakeWrite is one recorded characteristic write.
type FakeWrite struct {
	Channel device.Channel
	Data    []byte
}

// FakeLink is an in-memory device.Link.
type FakeLink struct {
	p *Peripheral

	mu       sync.Mutex
	handlers map[device.Channel]func([]byte)
	writes   []FakeWrite

	disc     chan struct{}
	discOnce sync.Once
	closed   atomic.Bool
}

func newFakeLink(p *Peripheral) *FakeLink {
	return &FakeLink{
		p:        p,
		handlers: make(map[device.Channel]func([]byte)),
		disc:     make(chan struct{}),
	}
}

func (l *FakeLink) Capabilities() device.Capabilities {
	return l.p.caps
}

func (l *FakeLink) Subscribe(ctx context.Context, ch device.Channel, handler func([]byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.p.subscribeErr[ch]; err != nil {
		return err
	}
	if _, ok := l.p.values[ch]; !ok {
		return &device.NotFoundError{Resource: "characteristic", UUIDs: []string{ch.Service, ch.Characteristic}}
	}
	l.mu.Lock()
	l.handlers[ch] = handler
	l.mu.Unlock()

	if data, ok := l.p.earlyNotify[ch]; ok {
		handler(append([]byte(nil), data...))
	}
	return nil
}

func (l *FakeLink) Read(ctx context.Context, ch device.Channel) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.p.readErr[ch]; err != nil {
		return nil, err
	}
	v, ok := l.p.values[ch]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{ch.Service, ch.Characteristic}}
	}
	return append([]byte(nil), v...), nil
}

func (l *FakeLink) Write(ctx context.Context, ch device.Channel, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.closed.Load() {
		return device.ErrNotConnected
	}
	if ch == device.PmdControlPointChannel && len(data) >= 2 {
		if err := l.p.streamErr[device.StreamingFeature(data[1])]; err != nil {
			return err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes = append(l.writes, FakeWrite{Channel: ch, Data: append([]byte(nil), data...)})
	return nil
}

func (l *FakeLink) Disconnected() <-chan struct{} {
	return l.disc
}

func (l *FakeLink) Close() error {
	l.closed.Store(true)
	l.discOnce.Do(func() { close(l.disc) })
	return nil
}

// Notify delivers data to the subscriber of ch. Returns false if nobody subscribed.
func (l *FakeLink) Notify(ch device.Channel, data []byte) bool {
	l.mu.Lock()
	h := l.handlers[ch]
	l.mu.Unlock()
	if h == nil {
		return false
	}
	h(data)
	return true
}

// Subscribed reports whether ch has a subscriber.
func (l *FakeLink) Subscribed(ch device.Channel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handlers[ch] != nil
}

// Drop simulates the remote side dropping the link.
func (l *FakeLink) Drop() {
	l.discOnce.Do(func() { close(l.disc) })
}

// Closed reports whether the session closed the link.
func (l *FakeLink) Closed() bool {
	return l.closed.Load()
}

// Writes returns the recorded writes.
func (l *FakeLink) Writes() []FakeWrite {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]FakeWrite(nil), l.writes...)
}

// ErrFakeRadio is a generic radio failure for tests.
var ErrFakeRadio = errors.New("fake radio failure")

// String helps assertion messages.
func (l *FakeLink) String() string {
	return fmt.Sprintf("FakeLink(%s, closed=%v)", l.p.Name, l.closed.Load())
}
