// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// Package device opens the modems described by the gateway config for the
// commands.
package device

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/warthog618/smsgw/at"
	"github.com/warthog618/smsgw/config"
	"github.com/warthog618/smsgw/serial"
	"github.com/warthog618/smsgw/socket"
	"github.com/warthog618/smsgw/trace"
)

// ErrUnknownDevice indicates the config does not contain the named device.
var ErrUnknownDevice = errors.New("unknown device")

// newPort opens a serial port.
var newPort = serial.New

// Select loads the config file and returns the named device, or the first
// device if name is empty.
func Select(path, name string) (config.Device, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Device{}, err
	}
	if name == "" {
		return cfg.Devices[0], nil
	}
	d, ok := cfg.Device(name)
	if !ok {
		return d, errors.Wrap(ErrUnknownDevice, name)
	}
	return d, nil
}

// Open opens the transport to the modem, wrapped in a trace if the device
// config requests it.
//
// The returned Closer closes the underlying transport.
func Open(cfg config.Device, log logrus.FieldLogger) (at.Transport, io.Closer, error) {
	var t at.Transport
	var c io.Closer
	switch {
	case cfg.Socket != "":
		s, err := socket.Dial(cfg.Socket)
		if err != nil {
			return nil, nil, err
		}
		t, c = s, s
	default:
		port := cfg.Device
		if cfg.Detect != "" {
			var err error
			if port, err = serial.Detect(cfg.Detect); err != nil {
				return nil, nil, errors.Wrapf(err, "detect '%s'", cfg.Detect)
			}
			log.WithField("port", port).Info("detected modem")
		}
		// the port read timeout provides the engine tick
		p, err := newPort(
			serial.WithPort(port),
			serial.WithBaud(cfg.Baud),
			serial.WithReadTimeout(cfg.Tick))
		if err != nil {
			return nil, nil, err
		}
		t, c = p, p
	}
	if cfg.Trace {
		t = trace.New(t, trace.WithLogger(log))
	}
	return t, c, nil
}
