package session

import (
	"time"

	"github.com/srg/blesession/internal/device"
)

// event is anything a session worker consumes from its mailbox.
// Events produced on behalf of a link carry the link epoch; the worker drops
// events whose epoch is not current.
type event interface{}

// evStart asks the session to (re)start connecting.
type evStart struct{}

// evAttempt is the outcome of one dial.
type evAttempt struct {
	epoch uint64
	link  device.Link
	err   error
}

// evLinkLost reports the link of epoch dropped.
type evLinkLost struct {
	epoch uint64
}

// evRetry fires when a backoff timer expires.
type evRetry struct {
	epoch uint64
}

// evNegotiated reports the outcome for one non-streaming feature.
type evNegotiated struct {
	epoch   uint64
	feature device.Feature
	err     error
}

// evStreaming reports the aggregated streaming negotiation.
type evStreaming struct {
	epoch    uint64
	ready    []device.StreamingFeature
	failures map[device.StreamingFeature]error
	err      error // control point setup failed, every sub-feature is lost
}

// evPayload carries raw bytes received for a feature.
type evPayload struct {
	epoch   uint64
	feature device.Feature
	uuid    string // characteristic, used for device information
	data    []byte
	at      time.Time
}

// evCall runs fn on the worker. Calls are executed even while closing.
type evCall struct {
	fn   func()
	done chan struct{}
}

// evTeardown ends the session.
type evTeardown struct{}
