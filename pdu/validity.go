// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package pdu

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultValidity is the relative validity used when none is specified,
// the maximum of 63 weeks.
const DefaultValidity = 255

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// DecodeValidity returns the period of a relative validity octet.
func DecodeValidity(v byte) time.Duration {
	switch {
	case v <= 143:
		return time.Duration(v+1) * 5 * time.Minute
	case v <= 167:
		return 12*time.Hour + time.Duration(v-143)*30*time.Minute
	case v <= 196:
		return time.Duration(v-166) * day
	}
	return time.Duration(v-192) * week
}

// EncodeValidity returns the relative validity octet for the period, rounded
// up to the next representable period.
//
// Periods beyond 63 weeks are capped.
func EncodeValidity(d time.Duration) byte {
	switch {
	case d <= 5*time.Minute:
		return 0
	case d <= 12*time.Hour:
		return byte(ceilDiv(d, 5*time.Minute) - 1)
	case d <= day:
		return byte(143 + ceilDiv(d-12*time.Hour, 30*time.Minute))
	case d <= 30*day:
		n := ceilDiv(d, day)
		if n < 2 {
			n = 2
		}
		return byte(166 + n)
	case d <= 63*week:
		n := ceilDiv(d, week)
		if n < 5 {
			n = 5
		}
		return byte(192 + n)
	}
	return 255
}

func ceilDiv(d, unit time.Duration) int64 {
	return int64((d + unit - 1) / unit)
}

// ExplainValidity describes a relative validity octet, e.g. "3 days (169)".
func ExplainValidity(v byte) string {
	var n int
	var unit string
	switch {
	case v <= 143:
		n, unit = (int(v)+1)*5, "min"
	case v <= 167:
		d := DecodeValidity(v)
		h := int(d / time.Hour)
		if m := int((d % time.Hour) / time.Minute); m != 0 {
			return fmt.Sprintf("%d hours %d min (%d)", h, m, v)
		}
		n, unit = h, "hour"
	case v <= 196:
		n, unit = int(v)-166, "day"
	default:
		n, unit = int(v)-192, "week"
	}
	plural := ""
	if n > 1 {
		plural = "s"
	}
	return fmt.Sprintf("%d %s%s (%d)", n, unit, plural, v)
}

var validityUnits = []struct {
	name string
	d    time.Duration
}{
	{"min", time.Minute},
	{"hour", time.Hour},
	{"day", day},
	{"week", week},
	{"month", 30 * day},
	{"year", 365 * day},
}

// ParseValidity parses a validity given either as the raw octet value,
// 0..255, or as a period such as "2 days", "12 hour" or "week".
func ParseValidity(s string) (byte, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultValidity, nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		if v < 0 || v > 255 {
			return 0, errors.Errorf("validity %d out of range", v)
		}
		return byte(v), nil
	}
	fields := strings.Fields(s)
	n := 1
	unit := fields[0]
	if len(fields) > 1 {
		v, err := strconv.Atoi(fields[0])
		if err != nil || v <= 0 {
			return 0, errors.Errorf("invalid validity '%s'", s)
		}
		n, unit = v, fields[1]
	}
	for _, u := range validityUnits {
		if strings.HasPrefix(unit, u.name) {
			return EncodeValidity(time.Duration(n) * u.d), nil
		}
	}
	return 0, errors.Errorf("invalid validity '%s'", s)
}
