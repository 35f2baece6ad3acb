// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package pdu

import (
	"fmt"
	"strings"

	"github.com/warthog618/smsgw/charset"
)

// Type of address values used when encoding.
const (
	TOAUnknown       = 0x81
	TOAInternational = 0x91
	TOANational      = 0xa1
)

const (
	maxAddressLength     = 50
	maxSMSCAddressLength = 30
)

// Address is a phone number, or an alphanumeric sender, and its type of
// address.
type Address struct {
	Number string
	TOA    byte
}

// Alphanumeric returns true if the address is an alphanumeric sender.
func (a Address) Alphanumeric() bool {
	return a.TOA&0x70 == 0x50
}

// International returns true if the number is in international format.
func (a Address) International() bool {
	return a.TOA&0x70 == 0x10
}

func (a Address) String() string {
	if a.International() && a.Number != "" {
		return "+" + a.Number
	}
	return a.Number
}

// NumberType overrides the numbering format heuristics when encoding a
// destination.
type NumberType int

const (
	// NumberAuto selects the format using the Numbering prefixes.
	NumberAuto NumberType = iota
	NumberUnknown
	NumberInternational
	NumberNational
)

// ParseNumberType converts the value used in message records, 0 for unknown,
// 1 for international and 2 for national, into a NumberType.
func ParseNumberType(s string) NumberType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "unknown":
		return NumberUnknown
	case "1", "international":
		return NumberInternational
	case "2", "national":
		return NumberNational
	}
	return NumberAuto
}

// Numbering holds the prefix lists used to select the numbering format of
// destination numbers.
type Numbering struct {
	// International prefixes. If any are set then numbers that match none of
	// them are sent in national format.
	International []string
	// National prefixes. Numbers that match are sent in national format.
	National []string
}

// Format returns the digits and type of address used to send to the number.
//
// A number starting with 's' is sent as-is in unknown format. A leading '+'
// is dropped. Otherwise the longest matching prefix selects the format, with
// an international prefix winning a tie, and an unmatched number is
// international unless international prefixes are configured. An explicit
// NumberType always wins.
func (n Numbering) Format(number string, nt NumberType) (string, byte) {
	var toa byte
	if strings.HasPrefix(number, "s") {
		number = number[1:]
		toa = TOAUnknown
	} else {
		number = strings.TrimPrefix(number, "+")
		toa = n.heuristic(number)
	}
	switch nt {
	case NumberUnknown:
		toa = TOAUnknown
	case NumberInternational:
		toa = TOAInternational
	case NumberNational:
		toa = TOANational
	}
	return number, toa
}

func (n Numbering) heuristic(number string) byte {
	il := longestPrefix(number, n.International)
	nl := longestPrefix(number, n.National)
	switch {
	case il >= 0 && il >= nl:
		return TOAInternational
	case nl >= 0:
		return TOANational
	case len(n.International) > 0:
		return TOANational
	}
	return TOAInternational
}

// longestPrefix returns the length of the longest prefix matching the number,
// or -1 if none match.
func longestPrefix(number string, prefixes []string) int {
	l := -1
	for _, p := range prefixes {
		if strings.HasPrefix(number, p) && len(p) > l {
			l = len(p)
		}
	}
	return l
}

// swapNibbles returns the semi-octet representation of the digits, padded
// with F if odd.
func swapNibbles(digits string) string {
	if len(digits)%2 != 0 {
		digits += "F"
	}
	b := []byte(digits)
	for i := 0; i+1 < len(b); i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
	return string(b)
}

// encodeAddress returns the hex encoded address field, length in digits,
// type and swapped digits.
func encodeAddress(digits string, toa byte) (string, error) {
	if len(digits) > maxAddressLength {
		return "", ErrTooLong
	}
	for _, c := range digits {
		if !strings.ContainsRune("0123456789", c) {
			return "", ErrInvalidNumber
		}
	}
	return fmt.Sprintf("%02X%02X%s", len(digits), toa, strings.ToUpper(swapNibbles(digits))), nil
}

// encodeSMSC returns the hex encoded SMSC field of a new mode PDU.
func encodeSMSC(smsc string) (string, error) {
	smsc = strings.TrimLeft(smsc, "+")
	if smsc == "" {
		return "00", nil
	}
	if len(smsc) > maxSMSCAddressLength {
		return "", ErrTooLong
	}
	for _, c := range smsc {
		if c < '0' || c > '9' {
			return "", ErrInvalidNumber
		}
	}
	toa := TOAInternational
	if smsc[0] == '0' {
		toa = TOAUnknown
	}
	swapped := swapNibbles(smsc)
	return fmt.Sprintf("%02X%02X%s", len(swapped)/2+1, toa, swapped), nil
}

// decodeSemiOctets returns the digits of swapped semi-octets, with a
// trailing F filler removed.
func decodeSemiOctets(s string) string {
	b := []byte(strings.ToUpper(s))
	for i := 0; i+1 < len(b); i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
	d := string(b)
	if strings.HasSuffix(d, "F") {
		d = d[:len(d)-1]
	}
	return d
}

// decodeAlphanumeric decodes an alphanumeric address of the given number of
// semi-octets.
func decodeAlphanumeric(hexDigits string, length int) (string, []charset.Diagnostic, error) {
	b, err := hexOctets(hexDigits)
	if err != nil {
		return "", nil, err
	}
	septets := charset.UnpackBits(b, length*4/7, 0)
	text, diags := charset.Decode(septets)
	return text, diags, nil
}

// ExplainTOA describes a type of address octet.
func ExplainTOA(toa byte) string {
	ton := []string{
		"unknown",
		"international",
		"national",
		"network specific",
		"subscriber",
		"alphanumeric",
		"abbreviated",
		"reserved",
	}
	npi := map[byte]string{
		0x0: "unknown",
		0x1: "ISDN/telephone",
		0x3: "data",
		0x4: "telex",
		0x8: "national",
		0x9: "private",
		0xa: "ERMES",
	}
	p, ok := npi[toa&0x0f]
	if !ok {
		p = "reserved"
	}
	return fmt.Sprintf("%s, %s", ton[(toa>>4)&0x07], p)
}
