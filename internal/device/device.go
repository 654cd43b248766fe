package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	BluetoothOff     ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}
)

// Operation errors
var (
	ErrTimeout     = errors.New("timeout")
	ErrUnsupported = errors.New("unsupported")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// ContainsIgnoreCase checks substring case-insensitively. Backends use it to
// classify driver error strings.
func ContainsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Info identifies a device in lifecycle events.
//
//nolint:revive // device.Info reads naturally at call sites
type Info struct {
	ID      string // Polar device id or BT address; the session key
	Address string
	Name    string
}

// String returns the most descriptive label available.
func (i Info) String() string {
	if i.Name != "" {
		return fmt.Sprintf("%s (%s)", i.Name, i.ID)
	}
	return i.ID
}

// HrSample is a single heart rate notification.
type HrSample struct {
	Time             time.Time
	Rate             int  // beats per minute, 0 while a PPI-only measurement runs
	ContactSupported bool // sensor reports skin contact
	Contact          bool
	EnergyExpended   *int  // kJ, nil when absent
	RR               []int // RR intervals in 1/1024 s
	RRMs             []int // RR intervals in milliseconds
}

// Channel addresses one GATT characteristic within a service.
type Channel struct {
	Service        string
	Characteristic string
}

// String renders the channel as service/characteristic.
func (c Channel) String() string {
	return c.Service + "/" + c.Characteristic
}

// Capabilities is the feature set a linked device advertises.
type Capabilities struct {
	Features  []Feature
	Streaming []StreamingFeature
	DIS       []string // device information characteristics present on the device
}

// Has reports whether f is advertised.
func (c Capabilities) Has(f Feature) bool {
	for _, v := range c.Features {
		if v == f {
			return true
		}
	}
	return false
}

// Transport dials physical links. Implementations wrap a radio stack.
type Transport interface {
	Dial(ctx context.Context, info Info) (Link, error)
}

// Link is one established physical connection.
//
// Handlers passed to Subscribe may be invoked from any goroutine and must not block.
type Link interface {
	Capabilities() Capabilities
	Subscribe(ctx context.Context, ch Channel, handler func([]byte)) error
	Read(ctx context.Context, ch Channel) ([]byte, error)
	Write(ctx context.Context, ch Channel, data []byte) error

	// Disconnected is closed when the remote side or the radio drops the link.
	Disconnected() <-chan struct{}
	Close() error
}

// PowerReporter is implemented by transports that observe adapter power changes.
type PowerReporter interface {
	OnPowerChanged(fn func(powered bool))
}
