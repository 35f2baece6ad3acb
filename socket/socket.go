// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// Package socket provides a TCP transport for modems reached over the
// network, such as modem emulators and terminal servers.
package socket

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

// Socket is a TCP connection that implements at.Transport.
type Socket struct {
	addr        string
	dialTimeout time.Duration
	conn        net.Conn
	buf         []byte
}

// Option modifies a Socket created by Dial.
type Option func(*Socket)

// WithDialTimeout sets the time allowed to establish the connection.
//
// The default is 10 seconds.
func WithDialTimeout(d time.Duration) Option {
	return func(s *Socket) {
		s.dialTimeout = d
	}
}

// ErrClosed indicates the socket is not connected.
var ErrClosed = errors.New("socket closed")

// Dial connects to the modem at addr, which has the form host:port.
func Dial(addr string, options ...Option) (*Socket, error) {
	s := &Socket{
		addr:        addr,
		dialTimeout: 10 * time.Second,
		buf:         make([]byte, 1024),
	}
	for _, option := range options {
		option(s)
	}
	if err := s.dial(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Socket) dial() error {
	conn, err := net.DialTimeout("tcp", s.addr, s.dialTimeout)
	if err != nil {
		return errors.Wrapf(err, "dial %s", s.addr)
	}
	s.conn = conn
	return nil
}

// Addr returns the address of the modem.
func (s *Socket) Addr() string {
	return s.addr
}

// Write writes all of b to the connection.
func (s *Socket) Write(b []byte) error {
	if s.conn == nil {
		return ErrClosed
	}
	_, err := s.conn.Write(b)
	return err
}

// ReadAvailable returns the bytes received, waiting up to timeout for the
// first to arrive.
//
// A timeout returns no data and no error. A connection closed by the peer
// returns io.EOF.
func (s *Socket) ReadAvailable(timeout time.Duration) ([]byte, error) {
	if s.conn == nil {
		return nil, ErrClosed
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	n, err := s.conn.Read(s.buf)
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		err = nil
	}
	if n == 0 {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, s.buf[:n])
	return b, err
}

// Reopen closes the connection and reconnects.
func (s *Socket) Reopen() error {
	s.Close()
	return s.dial()
}

// Close closes the connection.
func (s *Socket) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
