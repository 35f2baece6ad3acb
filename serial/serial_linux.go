// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package serial

import (
	"strings"

	"github.com/hedhyw/Go-Serial-Detector/pkg/v1/serialdet"
)

var defaultConfig = Config{
	port: "/dev/ttyUSB0",
	baud: 115200,
}

var listDevices = func() ([]device, error) {
	devices, err := serialdet.List()
	if err != nil {
		return nil, err
	}
	dd := make([]device, 0, len(devices))
	for _, d := range devices {
		dd = append(dd, device{description: d.Description(), path: d.Path()})
	}
	return dd, nil
}

type device struct {
	description string
	path        string
}

// Detect returns the path of the first serial device with a description
// containing match, ignoring case.
func Detect(match string) (string, error) {
	devices, err := listDevices()
	if err != nil {
		return "", err
	}
	match = strings.ToLower(match)
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.description), match) {
			return d.path, nil
		}
	}
	return "", ErrNotFound
}
