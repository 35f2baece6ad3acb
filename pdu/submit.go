// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package pdu

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/warthog618/smsgw/charset"
)

// Maximum user data sizes.
const (
	MaxSeptets = 160
	MaxOctets  = 140
)

// Submit describes an outgoing message.
type Submit struct {
	// To is the destination number. A leading 's' sends the number as-is in
	// unknown format.
	To string
	// NumberType overrides the numbering format selected for To.
	NumberType NumberType
	// Text is the content of GSM7 and UCS2 messages.
	Text string
	// Data is the content of binary messages.
	Data     []byte
	Alphabet Alphabet
	// Flash requests the message is displayed immediately (class 0).
	Flash bool
	// Report requests a status report.
	Report bool
	// UDH is a user data header, including the length octet, to prefix the
	// user data.
	UDH []byte
	// Validity is the relative validity period. If nil DefaultValidity is
	// used.
	Validity *byte
	// SMSC overrides the SMSC address in new mode PDUs.
	SMSC string
	// Replace is the replace short message type, 1..7, or 0.
	Replace int
	// System marks a system message, 1 or 2, that is not shown to the user.
	// 2 also requests the message is stored to the SIM.
	System int
	Mode   Mode
}

// Encoded is an encoded SMS-SUBMIT.
type Encoded struct {
	// PDU is the hex encoded PDU, including the SMSC field in new mode.
	PDU string
	// TPDULength is the length in octets of the PDU excluding the SMSC
	// field, as required by AT+CMGS.
	TPDULength int
	// Diagnostics are the characters that could not be encoded.
	Diagnostics []charset.Diagnostic
}

// EncodeSubmit encodes the message into an SMS-SUBMIT PDU.
func EncodeSubmit(s Submit, n Numbering) (*Encoded, error) {
	digits, toa := n.Format(s.To, s.NumberType)
	addr, err := encodeAddress(digits, toa)
	if err != nil {
		return nil, errors.Wrapf(err, "destination '%s'", s.To)
	}
	if len(s.UDH) > 0 {
		if _, err := ParseUDH(s.UDH); err != nil {
			return nil, err
		}
	}
	udl, ud, diags, err := encodeUserData(s)
	if err != nil {
		return nil, err
	}
	fo := byte(0x01)
	if len(s.UDH) > 0 {
		fo |= 0x40
	}
	if s.Report {
		fo |= 0x20
	}
	var sb strings.Builder
	smscLen := 0
	switch s.Mode {
	case ModeOld:
		fmt.Fprintf(&sb, "%02X00%s00%02X%02X", fo, addr, dcs(s), udl)
	default:
		fo |= 0x10
		smsc, err := encodeSMSC(s.SMSC)
		if err != nil {
			return nil, errors.Wrapf(err, "smsc '%s'", s.SMSC)
		}
		smscLen = len(smsc) / 2
		vp := byte(DefaultValidity)
		if s.Validity != nil {
			vp = *s.Validity
		}
		fmt.Fprintf(&sb, "%s%02X00%s%02X%02X%02X%02X", smsc, fo, addr, pid(s), dcs(s), vp, udl)
	}
	fmt.Fprintf(&sb, "%X", ud)
	p := sb.String()
	return &Encoded{PDU: p, TPDULength: len(p)/2 - smscLen, Diagnostics: diags}, nil
}

func pid(s Submit) byte {
	switch {
	case s.Mode == ModeOld:
		return 0
	case s.System == 2:
		return 0x7f
	case s.System != 0:
		return 0x40
	case s.Replace >= 1 && s.Replace <= 7:
		return 0x40 + byte(s.Replace)
	}
	return 0
}

func dcs(s Submit) byte {
	if s.System != 0 && s.Mode != ModeOld {
		if s.System == 2 {
			return 0xf6
		}
		return 0xf4
	}
	var c byte
	switch s.Alphabet {
	case Binary:
		c = 0x04
	case UCS2:
		c = 0x08
	}
	if s.Flash {
		c |= 0x10
	}
	return c
}

// encodeUserData returns the TP-UDL and TP-UD of the message.
func encodeUserData(s Submit) (int, []byte, []charset.Diagnostic, error) {
	udh := s.UDH
	if s.Alphabet == GSM7 && (s.System == 0 || s.Mode == ModeOld) {
		septets, diags := charset.Encode(s.Text)
		udhSeptets := (len(udh)*8 + 6) / 7
		if len(septets)+udhSeptets > MaxSeptets {
			return 0, nil, diags, errors.Wrapf(ErrTooLong, "%d septets", len(septets)+udhSeptets)
		}
		fill := udhSeptets*7 - len(udh)*8
		ud := append(append([]byte(nil), udh...), charset.PackBits(septets, fill)...)
		return len(septets) + udhSeptets, ud, diags, nil
	}
	var data []byte
	var diags []charset.Diagnostic
	switch s.Alphabet {
	case UCS2:
		data, diags = charset.EncodeUCS2(s.Text)
	case GSM7:
		data, diags = charset.Encode(s.Text)
	default:
		data = s.Data
	}
	if len(udh)+len(data) > MaxOctets {
		return 0, nil, diags, errors.Wrapf(ErrTooLong, "%d octets", len(udh)+len(data))
	}
	ud := append(append([]byte(nil), udh...), data...)
	return len(ud), ud, diags, nil
}

// Split divides text into the parts of a concatenated message, each of which
// fits in a single PDU alongside a concatenation UDH.
//
// Text that fits in a single PDU without a UDH is returned as a single part.
// Characters are never split, so an escaped GSM character stays in one part.
func Split(text string, a Alphabet) ([]string, error) {
	single, multi := MaxSeptets, MaxSeptets-7
	weight := func(r rune) int {
		s, _ := charset.Encode(string(r))
		return len(s)
	}
	if a == UCS2 {
		single, multi = MaxOctets/2, (MaxOctets-6)/2
		weight = func(r rune) int { return 1 }
	}
	total := 0
	for _, r := range text {
		total += weight(r)
	}
	if total <= single {
		return []string{text}, nil
	}
	var parts []string
	var sb strings.Builder
	l := 0
	for _, r := range text {
		w := weight(r)
		if l+w > multi {
			parts = append(parts, sb.String())
			sb.Reset()
			l = 0
		}
		sb.WriteRune(r)
		l += w
	}
	if sb.Len() > 0 {
		parts = append(parts, sb.String())
	}
	if len(parts) > 255 {
		return nil, errors.Wrapf(ErrTooLong, "%d parts", len(parts))
	}
	return parts, nil
}
