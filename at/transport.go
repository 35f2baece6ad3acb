// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package at

import "time"

// Transport is the byte channel to the modem.
type Transport interface {
	// Write writes all of b to the modem.
	Write(b []byte) error

	// ReadAvailable returns the bytes received from the modem, waiting up to
	// timeout for at least one byte to arrive.
	//
	// An empty result with a nil error indicates nothing arrived.
	ReadAvailable(timeout time.Duration) ([]byte, error)

	// Reopen closes and reopens the underlying channel.
	Reopen() error
}
