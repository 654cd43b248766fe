package session

import (
	"errors"
	"fmt"

	"github.com/srg/blesession/internal/device"
)

var (
	// ErrUnknownDevice is returned for identifiers without a session.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrFeatureNotReady is returned when a request targets a feature that has not negotiated.
	ErrFeatureNotReady = errors.New("feature not ready")
	// ErrClosed is returned after Manager.Close.
	ErrClosed = errors.New("session manager closed")
)

// NegotiationError describes one failed feature negotiation.
type NegotiationError struct {
	Feature device.Feature
	// Stream is set when a streaming sub-feature failed.
	Stream *device.StreamingFeature
	Err    error
}

func (e *NegotiationError) Error() string {
	if e.Stream != nil {
		return fmt.Sprintf("negotiate %s/%s: %v", e.Feature, e.Stream, e.Err)
	}
	return fmt.Sprintf("negotiate %s: %v", e.Feature, e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}
