// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// Package acl provides the destination lists that restrict the numbers
// messages may be sent to.
//
// A list file contains one number prefix per line. Anything following a
// '#' is a comment, and whitelist section headers, such as "[queue1]", are
// ignored.
//
//   # support desk
//   358401234567
//   35850        # all of the 050 range
package acl

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// List is a set of number prefixes.
type List struct {
	prefixes []string
}

// Load reads the list from the file.
func Load(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "acl")
	}
	defer f.Close()
	l, err := Parse(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return l, nil
}

// Parse reads the list from r.
func Parse(r io.Reader) (*List, error) {
	l := &List{}
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := s.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" || (strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]")) {
			continue
		}
		l.prefixes = append(l.prefixes, line)
	}
	return l, s.Err()
}

// Len returns the number of prefixes in the list.
func (l *List) Len() int {
	return len(l.prefixes)
}

// Contains returns true if the number starts with any prefix in the list.
//
// A leading '+', or the 's' that forces the unknown number format, is
// ignored.
func (l *List) Contains(number string) bool {
	number = strings.TrimPrefix(strings.TrimPrefix(number, "s"), "+")
	for _, p := range l.prefixes {
		if strings.HasPrefix(number, p) {
			return true
		}
	}
	return false
}

// Check returns the reason a message to the number must not be sent, or ""
// if it may be.
//
// The lists are read from their files on each call, so edits take effect
// without a restart. An empty path disables that list.
func Check(number, blacklist, whitelist string) (string, error) {
	if blacklist != "" {
		l, err := Load(blacklist)
		if err != nil {
			return "", err
		}
		if l.Contains(number) {
			return "destination is blacklisted", nil
		}
	}
	if whitelist != "" {
		l, err := Load(whitelist)
		if err != nil {
			return "", err
		}
		if !l.Contains(number) {
			return "destination is not whitelisted", nil
		}
	}
	return "", nil
}
