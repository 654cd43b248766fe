//go:build linux

package main

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/blesession/internal/device"
	"github.com/srg/blesession/internal/device/tinyble"
)

func newPlatformTransport(logger *logrus.Logger) (device.Transport, func() error, error) {
	t := tinyble.NewTransport(logger)
	return t, t.Close, nil
}
