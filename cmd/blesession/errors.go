package main

import (
	"errors"
	"fmt"

	"github.com/srg/blesession/internal/device"
	"github.com/srg/blesession/pkg/session"
)

// ErrNoTransport is returned on platforms without a radio backend.
var ErrNoTransport = errors.New("no Bluetooth backend for this platform")

// FormatUserError turns known errors into a message with a hint.
func FormatUserError(err error) string {
	switch {
	// Adapter powered off or missing
	case device.IsConnectionState(err, device.BluetoothOff):
		return fmt.Sprintf("%v (is Bluetooth turned on?)", err)
	case errors.Is(err, ErrNoTransport), errors.Is(err, device.ErrUnsupported):
		return fmt.Sprintf("%v (supported: macOS via CoreBluetooth, Linux via BlueZ)", err)
	case errors.Is(err, session.ErrClosed):
		return "session manager already stopped"
	default:
		return err.Error()
	}
}
