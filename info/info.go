// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// Package info provides utility functions for manipulating info lines returned
// by the modem in response to AT commands.
package info

import (
	"strconv"
	"strings"
)

// HasPrefix returns true if the line begins with the info prefix for the command.
func HasPrefix(line, cmd string) bool {
	return strings.HasPrefix(line, cmd+":")
}

// TrimPrefix removes the command  prefix, if any, and any intervening space
// from the info line.
func TrimPrefix(line, cmd string) string {
	return strings.TrimLeft(strings.TrimPrefix(line, cmd+":"), " ")
}

// Fields splits the info line for the command into its comma separated
// fields.
//
// Commas within quoted strings do not split fields, and the quotes are
// retained.
func Fields(line, cmd string) []string {
	v := TrimPrefix(line, cmd)
	var fields []string
	quoted := false
	start := 0
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				fields = append(fields, strings.TrimSpace(v[start:i]))
				start = i + 1
			}
		}
	}
	return append(fields, strings.TrimSpace(v[start:]))
}

// Unquote removes the surrounding double quotes, if any, from a field.
func Unquote(field string) string {
	if len(field) >= 2 && field[0] == '"' && field[len(field)-1] == '"' {
		return field[1 : len(field)-1]
	}
	return field
}

// Int returns the integer value of the field, or def if the field is empty
// or not an integer.
func Int(field string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(field))
	if err != nil {
		return def
	}
	return n
}
