package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPowerStateNotifiesTransitionsOnly(t *testing.T) {
	p := NewPowerState(true)
	var got []bool
	unsubscribe := p.Subscribe(func(powered bool) { got = append(got, powered) })

	assert.False(t, p.Set(true), "setting the current value MUST NOT be a transition")
	assert.True(t, p.Set(false))
	assert.False(t, p.Powered())
	assert.True(t, p.Set(true))

	unsubscribe()
	unsubscribe()
	p.Set(false)

	assert.Equal(t, []bool{false, true}, got, "unsubscribed listener MUST NOT be called")
}

func TestPowerStateSubscriberOrder(t *testing.T) {
	p := NewPowerState(false)
	var (
		mu    sync.Mutex
		order []string
	)
	for _, name := range []string{"first", "second", "third"} {
		name := name
		p.Subscribe(func(bool) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
		})
	}

	require.True(t, p.Set(true))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestProcessPowerIsShared(t *testing.T) {
	assert.Same(t, ProcessPower(), ProcessPower())
}

func TestNotifyPowerNeverBlocks(t *testing.T) {
	s := &deviceSession{powerWake: make(chan struct{}, 1)}

	// nobody drains powerWake
	for _, powered := range []bool{false, false, true, false, true} {
		s.notifyPower(powered)
	}

	assert.Len(t, s.powerWake, 1, "wakeups MUST collapse into one")
	assert.Equal(t, []bool{false, true}, s.powerSeen, "only the last transition pair MAY be kept")
}
