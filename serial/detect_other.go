// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

//go:build !linux
// +build !linux

package serial

import "runtime"

var defaultConfig = Config{
	port: defaultPort(),
	baud: 115200,
}

func defaultPort() string {
	switch runtime.GOOS {
	case "windows":
		return "COM1"
	case "darwin":
		return "/dev/tty.usbserial"
	}
	return "/dev/ttyU0"
}

// Detect is only supported on Linux.
func Detect(match string) (string, error) {
	return "", ErrNotFound
}
