// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// Package serial provides a serial port transport for modems.
package serial

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// Port is a serial port that implements at.Transport.
type Port struct {
	cfg  Config
	port io.ReadWriteCloser
	buf  []byte
}

// Config defines the serial port parameters.
type Config struct {
	port string
	baud int
	// the read timeout, rounded up to 100ms by the driver
	readTimeout time.Duration
}

// Option modifies the Config used by New.
type Option func(*Config)

// ErrNotFound indicates no serial device matched the description.
var ErrNotFound = errors.New("no matching serial device found")

// openPort opens the underlying port.
var openPort = func(c *serial.Config) (io.ReadWriteCloser, error) {
	return serial.OpenPort(c)
}

// New creates a serial port.
//
// This is currently a simple wrapper around tarm serial.
func New(options ...Option) (*Port, error) {
	cfg := defaultConfig
	cfg.readTimeout = 100 * time.Millisecond
	for _, option := range options {
		option(&cfg)
	}
	p := &Port{cfg: cfg, buf: make([]byte, 1024)}
	if err := p.open(); err != nil {
		return nil, err
	}
	return p, nil
}

// WithPort sets the path of the serial device.
func WithPort(port string) Option {
	return func(c *Config) {
		c.port = port
	}
}

// WithBaud sets the baud rate.
func WithBaud(baud int) Option {
	return func(c *Config) {
		c.baud = baud
	}
}

// WithReadTimeout sets the time a read waits for data.
//
// The default is 100ms, which matches the default AT tick.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.readTimeout = d
	}
}

// Port returns the path of the serial device.
func (c Config) Port() string {
	return c.port
}

// Baud returns the baud rate.
func (c Config) Baud() int {
	return c.baud
}

// ReadTimeout returns the time a read waits for data.
func (c Config) ReadTimeout() time.Duration {
	return c.readTimeout
}

func (p *Port) open() error {
	port, err := openPort(&serial.Config{
		Name:        p.cfg.port,
		Baud:        p.cfg.baud,
		ReadTimeout: p.cfg.readTimeout,
	})
	if err != nil {
		return errors.Wrapf(err, "open %s", p.cfg.port)
	}
	p.port = port
	return nil
}

// Name returns the path of the serial device.
func (p *Port) Name() string {
	return p.cfg.port
}

// Write writes all of b to the port.
func (p *Port) Write(b []byte) error {
	if p.port == nil {
		return errors.New("port closed")
	}
	_, err := p.port.Write(b)
	return err
}

// ReadAvailable returns the bytes available from the port.
//
// The read timeout is fixed when the port is opened, so the timeout
// parameter is ignored.
func (p *Port) ReadAvailable(timeout time.Duration) ([]byte, error) {
	if p.port == nil {
		return nil, errors.New("port closed")
	}
	n, err := p.port.Read(p.buf)
	if err == io.EOF {
		// read timed out
		err = nil
	}
	if n == 0 {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, p.buf[:n])
	return b, err
}

// Reopen closes and reopens the port.
func (p *Port) Reopen() error {
	p.Close()
	return p.open()
}

// Close closes the port.
func (p *Port) Close() error {
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	return err
}
