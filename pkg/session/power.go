package session

import (
	"sync"
)

// PowerState is the observable Bluetooth adapter power state shared by every
// session of a process. Sessions read it; radio backends and the application
// write it.
type PowerState struct {
	mu      sync.Mutex
	notify  sync.Mutex // serializes notifications so subscribers see transitions in order
	powered bool
	nextID  int
	subs    map[int]func(bool)
}

var (
	processPower     *PowerState
	processPowerOnce sync.Once
)

// ProcessPower returns the process-wide power state. It starts powered.
func ProcessPower() *PowerState {
	processPowerOnce.Do(func() {
		processPower = NewPowerState(true)
	})
	return processPower
}

// NewPowerState creates an isolated power state, mostly for tests.
func NewPowerState(powered bool) *PowerState {
	return &PowerState{
		powered: powered,
		subs:    make(map[int]func(bool)),
	}
}

// Powered returns the current state.
func (p *PowerState) Powered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.powered
}

// Set updates the state and notifies subscribers synchronously when it changed.
// Returns true on a transition.
func (p *PowerState) Set(powered bool) bool {
	p.notify.Lock()
	defer p.notify.Unlock()

	p.mu.Lock()
	if p.powered == powered {
		p.mu.Unlock()
		return false
	}
	p.powered = powered
	subs := make([]func(bool), 0, len(p.subs))
	for id := 0; id < p.nextID; id++ {
		if fn, ok := p.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(powered)
	}
	return true
}

// Subscribe registers fn for transitions. The returned function unsubscribes
// and is safe to call more than once.
func (p *PowerState) Subscribe(fn func(powered bool)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}
