// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// Package pdu encodes and decodes SMS PDUs, as exchanged with a modem in
// PDU mode (AT+CMGF=0).
//
// PDUs are handled as strings of hex octets. Outgoing messages are encoded
// as SMS-SUBMIT. Incoming SMS-DELIVER and SMS-STATUS-REPORT PDUs are
// decoded into a Message, and SMS-SUBMIT PDUs may also be decoded for
// inspection.
package pdu

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/warthog618/smsgw/charset"
)

// Mode identifies the PDU layout used by the modem.
type Mode int

const (
	// ModeNew PDUs are prefixed with the SMSC address.
	ModeNew Mode = iota
	// ModeOld PDUs have no SMSC address, and submitted PDUs carry no
	// validity period.
	ModeOld
)

func (m Mode) String() string {
	if m == ModeOld {
		return "old"
	}
	return "new"
}

func (m Mode) other() Mode {
	if m == ModeOld {
		return ModeNew
	}
	return ModeOld
}

// ParseMode converts the configured name of the mode into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "new":
		return ModeNew, nil
	case "old":
		return ModeOld, nil
	}
	return ModeNew, errors.Errorf("unknown pdu mode '%s'", s)
}

// Alphabet is the character set used to encode the user data.
type Alphabet int

const (
	// GSM7 is the packed 7-bit default alphabet.
	GSM7 Alphabet = iota
	// Binary is 8-bit data.
	Binary
	// UCS2 is 16-bit Unicode.
	UCS2
	// Reserved is the reserved alphabet value, which cannot be decoded.
	Reserved
)

func (a Alphabet) String() string {
	switch a {
	case GSM7:
		return "GSM"
	case Binary:
		return "binary"
	case UCS2:
		return "UCS2"
	}
	return "reserved"
}

// ParseAlphabet converts the name used in message records to an Alphabet.
func ParseAlphabet(s string) (Alphabet, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gsm", "iso", "latin", "ansi", "utf-8", "utf8":
		return GSM7, nil
	case "binary", "bin", "8bit":
		return Binary, nil
	case "ucs", "ucs2", "ucs-2", "unicode":
		return UCS2, nil
	}
	return GSM7, errors.Errorf("unknown alphabet '%s'", s)
}

// MessageType is the TP-MTI of a PDU.
type MessageType int

const (
	// TypeDeliver is an SMS-DELIVER, a message received from the network.
	TypeDeliver MessageType = 0
	// TypeSubmit is an SMS-SUBMIT, a message sent to the network.
	TypeSubmit MessageType = 1
	// TypeStatusReport is an SMS-STATUS-REPORT.
	TypeStatusReport MessageType = 2
	// TypeReserved is the reserved message type.
	TypeReserved MessageType = 3
)

func (t MessageType) String() string {
	switch t {
	case TypeDeliver:
		return "deliver"
	case TypeSubmit:
		return "submit"
	case TypeStatusReport:
		return "status report"
	}
	return "reserved"
}

// Concatenation is the concatenation information carried in a UDH.
type Concatenation struct {
	// Reference is shared by all the parts of the message.
	Reference int
	// Wide indicates a 16-bit reference.
	Wide bool
	// Total is the number of parts in the message.
	Total int
	// Part is the 1-based index of this part.
	Part int
}

// Message is a decoded PDU.
type Message struct {
	Type MessageType
	// Mode is the PDU mode the PDU was successfully decoded with.
	Mode Mode
	SMSC Address
	// Address is the sender of a deliver, and the recipient of a submit or
	// status report.
	Address Address
	// Date and Time are the service centre timestamp, formatted as
	// yy-mm-dd and hh:mm:ss.
	Date string
	Time string
	// ReportRequested indicates a status report is requested for a submit, or
	// will be returned to the sender for a deliver.
	ReportRequested bool
	// Replace is the replace short message type, 1..7, or 0 if none.
	Replace int
	// MessageReference of a submit.
	MessageReference int
	// Validity is the relative validity period of a submit, if present.
	Validity *byte
	PID      byte
	DCS      byte
	Alphabet Alphabet
	// Class is the message class, or -1 if none.
	Class int
	Flash bool
	// UDH is the raw user data header, including the length octet.
	UDH []byte
	// Concat is the concatenation information from the UDH, if any.
	Concat *Concatenation
	// UDL is the TP-UDL of the PDU.
	UDL int
	// Text is the decoded text of a GSM7 or UCS2 message.
	Text string
	// Data is the user data of a binary message, excluding any UDH.
	Data         []byte
	StatusReport *StatusReport
	// Incomplete marks a concatenated message that is missing parts.
	Incomplete bool
	// Warnings are anomalies found in the PDU that did not prevent decoding.
	Warnings []string
	// Diagnostics are characters that could not be converted.
	Diagnostics []charset.Diagnostic
	// PDU is the hex PDU, after any normalisation.
	PDU string
}

// Timestamp returns the date and time as a single string.
func (m *Message) Timestamp() string {
	if m.Date == "" {
		return ""
	}
	return m.Date + " " + m.Time
}

// Body returns the content of the message as text. Binary data is returned
// as hex.
func (m *Message) Body() string {
	if m.StatusReport != nil {
		return m.StatusReport.Body()
	}
	if m.Alphabet == Binary {
		return fmt.Sprintf("%X", m.Data)
	}
	return m.Text
}

func (m *Message) warn(format string, v ...interface{}) {
	m.Warnings = append(m.Warnings, fmt.Sprintf(format, v...))
}

// StatusReport is the content of an SMS-STATUS-REPORT.
type StatusReport struct {
	// MessageID is the message reference of the submit being reported.
	MessageID int
	// DischargeDate and DischargeTime are when the status was reached.
	DischargeDate string
	DischargeTime string
	Status        byte
	// Phrase explains the Status.
	Phrase string
}

// Body returns the report formatted for an incoming message record.
func (s *StatusReport) Body() string {
	return fmt.Sprintf("Message_id: %d\nDischarge_timestamp: %s %s\nStatus: %d,%s\n",
		s.MessageID, s.DischargeDate, s.DischargeTime, s.Status, s.Phrase)
}

// Delivered returns true if the status indicates the message was delivered.
func (s *StatusReport) Delivered() bool {
	return s.Status <= 2
}

// Permanent returns true if the status is final.
func (s *StatusReport) Permanent() bool {
	return s.Status < 0x20 || s.Status >= 0x40
}

var (
	// ErrTooLong indicates the content does not fit in the PDU.
	ErrTooLong = errors.New("too long")

	// ErrInvalidNumber indicates a destination number that cannot be
	// encoded.
	ErrInvalidNumber = errors.New("invalid number")

	// ErrInvalidUDH indicates a malformed user data header.
	ErrInvalidUDH = errors.New("invalid user data header")
)
