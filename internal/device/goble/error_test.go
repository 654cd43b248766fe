package goble

import (
	"errors"
	"testing"

	"github.com/srg/blesession/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name  string
		in    error
		state device.ConnectionState
	}{
		{"central manager off", errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), device.BluetoothOff},
		{"turned off", errors.New("Bluetooth is turned off"), device.BluetoothOff},
		{"powered off", errors.New("adapter powered off"), device.BluetoothOff},
		{"not connected", errors.New("device not connected"), device.NotConnected},
		{"disconnected", errors.New("peripheral disconnected"), device.NotConnected},
		{"already connected", errors.New("device already connected"), device.AlreadyConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.in)
			assert.True(t, device.IsConnectionState(got, tt.state), "got %v", got)
			assert.Contains(t, got.Error(), tt.in.Error(), "original message MUST be preserved")
		})
	}

	t.Run("unknown passes through", func(t *testing.T) {
		in := errors.New("att: insufficient authentication")
		assert.Same(t, in, NormalizeError(in))
	})

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, NormalizeError(nil))
	})
}
