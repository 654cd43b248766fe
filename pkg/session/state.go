package session

import "github.com/srg/blesession/internal/device"

// State is the lifecycle state of a device session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Pending qualifies StateDisconnected.
type Pending int

const (
	// PendingNone means the session is not waiting for anything (terminal when disconnected).
	PendingNone Pending = iota
	// PendingRetry means a reconnect is scheduled by the backoff policy.
	PendingRetry
	// PendingPower means reconnects are suppressed until Bluetooth power returns.
	PendingPower
)

func (p Pending) String() string {
	switch p {
	case PendingRetry:
		return "retry"
	case PendingPower:
		return "power"
	}
	return "none"
}

// Status is a point-in-time view of a session.
type Status struct {
	Info     device.Info
	State    State
	Pending  Pending
	Retries  int
	Ready    []device.Feature
	Streams  []device.StreamingFeature
	Terminal bool
}

// Stats counts what the data router did with incoming payloads.
type Stats struct {
	Delivered        int64
	DroppedNotReady  int64 // payload for a feature that is not ready or a stale link
	DroppedMalformed int64 // payload that failed validation
	DroppedOverflow  int64 // payload rejected because the session mailbox was full
	FileTransferLost int64 // bytes that did not fit into the file transfer buffer
}
