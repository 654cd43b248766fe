//go:build !darwin && !linux

package main

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesession/internal/device"
)

func newPlatformTransport(*logrus.Logger) (device.Transport, func() error, error) {
	return nil, nil, fmt.Errorf("%s: %w", runtime.GOOS, ErrNoTransport)
}
