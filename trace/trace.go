// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// Package trace provides a decorator for a modem transport that logs all
// reads and writes.
package trace

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Transport is the byte channel being traced.
//
// It matches at.Transport.
type Transport interface {
	Write(b []byte) error
	ReadAvailable(timeout time.Duration) ([]byte, error)
	Reopen() error
}

// Trace is a trace log on a Transport.
//
// All reads and writes are written to the logger. Empty reads are not
// logged.
type Trace struct {
	t    Transport
	l    Logger
	wfmt string
	rfmt string
}

// Logger defines the interface used to log trace messages.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Option modifies a Trace object created by New.
type Option func(*Trace)

// New creates a new trace on the Transport.
func New(t Transport, options ...Option) *Trace {
	tr := &Trace{
		t:    t,
		wfmt: "w: %q",
		rfmt: "r: %q",
	}
	for _, option := range options {
		option(tr)
	}
	if tr.l == nil {
		tr.l = logrus.StandardLogger()
	}
	return tr
}

// WithReadFormat sets the format used for read logs.
func WithReadFormat(format string) Option {
	return func(t *Trace) {
		t.rfmt = format
	}
}

// WithWriteFormat sets the format used for write logs.
func WithWriteFormat(format string) Option {
	return func(t *Trace) {
		t.wfmt = format
	}
}

// WithLogger specifies the logger to be used to log trace messages.
//
// By default traces are logged to the logrus standard logger.
func WithLogger(l Logger) Option {
	return func(t *Trace) {
		t.l = l
	}
}

// ReadAvailable reads from the underlying transport and logs any data read.
func (t *Trace) ReadAvailable(timeout time.Duration) ([]byte, error) {
	b, err := t.t.ReadAvailable(timeout)
	if len(b) > 0 {
		t.l.Printf(t.rfmt, b)
	}
	if err != nil {
		t.l.Printf("r error: %v", err)
	}
	return b, err
}

// Write writes to the underlying transport and logs the data written.
func (t *Trace) Write(b []byte) error {
	err := t.t.Write(b)
	if err == nil {
		t.l.Printf(t.wfmt, b)
	} else {
		t.l.Printf("w error: %v", err)
	}
	return err
}

// Reopen reopens the underlying transport.
func (t *Trace) Reopen() error {
	err := t.t.Reopen()
	if err == nil {
		t.l.Printf("reopened")
	} else {
		t.l.Printf("reopen error: %v", err)
	}
	return err
}
