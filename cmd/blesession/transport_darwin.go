//go:build darwin

package main

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/blesession/internal/device"
	"github.com/srg/blesession/internal/device/goble"
)

func newPlatformTransport(logger *logrus.Logger) (device.Transport, func() error, error) {
	t := goble.NewTransport(logger)
	return t, t.Close, nil
}
