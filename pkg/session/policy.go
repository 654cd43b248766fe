package session

import (
	"time"

	"github.com/srg/blesession/pkg/config"
)

// ReconnectPolicy decides when a lost or failed link is retried.
type ReconnectPolicy struct {
	Enabled      bool
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxRetries   int // 0 = unlimited
}

// PolicyFromConfig converts the reconnect section of the configuration.
func PolicyFromConfig(rc config.ReconnectConfig) ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:      rc.Enabled,
		InitialDelay: rc.InitialDelay,
		MaxDelay:     rc.MaxDelay,
		Multiplier:   rc.Multiplier,
		MaxRetries:   rc.MaxRetries,
	}
}

// Delay returns the wait before retry number attempt (1-based) and false when
// no further retry is allowed.
func (p ReconnectPolicy) Delay(attempt int) (time.Duration, bool) {
	if !p.Enabled {
		return 0, false
	}
	if attempt < 1 {
		attempt = 1
	}
	if p.MaxRetries > 0 && attempt > p.MaxRetries {
		return 0, false
	}

	delay := p.InitialDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	maxDelay := p.MaxDelay
	if maxDelay < delay {
		maxDelay = delay
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	// grow step by step so large attempts saturate instead of overflowing
	for i := 1; i < attempt && delay < maxDelay; i++ {
		delay = time.Duration(float64(delay) * mult)
		if mult == 1 {
			break
		}
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay, true
}
