// Package tinyble implements device.Transport with tinygo.org/x/bluetooth (BlueZ over D-Bus).
package tinyble

import (
	"fmt"

	"github.com/srg/blesession/internal/device"
)

// NormalizeError maps BlueZ error strings to ConnectionError sentinels.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case device.ContainsIgnoreCase(msg, "org.bluez.Error.NotReady"),
		device.ContainsIgnoreCase(msg, "not powered"),
		device.ContainsIgnoreCase(msg, "no bluetooth adapter"),
		device.ContainsIgnoreCase(msg, "adapter not found"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case device.ContainsIgnoreCase(msg, "org.bluez.Error.NotConnected"),
		device.ContainsIgnoreCase(msg, "not connected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case device.ContainsIgnoreCase(msg, "org.bluez.Error.AlreadyConnected"),
		device.ContainsIgnoreCase(msg, "already connected"):
		return fmt.Errorf("%w: %v", device.ErrAlreadyConnected, err)
	default:
		return err
	}
}
