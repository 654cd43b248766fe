package session

import (
	"testing"
	"time"

	"github.com/srg/blesession/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestReconnectPolicyDelay(t *testing.T) {
	p := ReconnectPolicy{
		Enabled:      true,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{1000, 30 * time.Second},
	}
	for _, tt := range tests {
		got, ok := p.Delay(tt.attempt)
		assert.True(t, ok, "attempt %d MUST be allowed with unlimited retries", tt.attempt)
		assert.Equal(t, tt.want, got, "attempt %d", tt.attempt)
	}
}

func TestReconnectPolicyLimits(t *testing.T) {
	p := ReconnectPolicy{Enabled: true, InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 1.5, MaxRetries: 2}

	_, ok := p.Delay(2)
	assert.True(t, ok)
	_, ok = p.Delay(3)
	assert.False(t, ok, "retries beyond MaxRetries MUST be refused")

	p.Enabled = false
	_, ok = p.Delay(1)
	assert.False(t, ok, "disabled policy MUST refuse every retry")
}

func TestReconnectPolicyConstantDelay(t *testing.T) {
	p := ReconnectPolicy{Enabled: true, InitialDelay: 250 * time.Millisecond, MaxDelay: time.Minute, Multiplier: 1}
	for attempt := 1; attempt < 10; attempt++ {
		d, ok := p.Delay(attempt)
		assert.True(t, ok)
		assert.Equal(t, 250*time.Millisecond, d)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	rc := config.DefaultConfig().Reconnect
	p := PolicyFromConfig(rc)

	assert.True(t, p.Enabled)
	assert.Equal(t, rc.InitialDelay, p.InitialDelay)
	assert.Equal(t, rc.MaxDelay, p.MaxDelay)
	assert.Equal(t, rc.Multiplier, p.Multiplier)
	assert.Equal(t, rc.MaxRetries, p.MaxRetries)
}
