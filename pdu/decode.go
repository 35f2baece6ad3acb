// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package pdu

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/warthog618/smsgw/charset"
)

const (
	errTooShort = "string is too short"
	errContent  = "invalid character(s) in string"
)

// DecodeError is a structural error found while decoding a PDU.
type DecodeError struct {
	Mode Mode
	// Position is the 1-based offset into the hex PDU of the first invalid
	// character, or 0 if the error is not positioned.
	Position int
	// Length is the number of hex characters expected at Position.
	Length int
	Reason string
	// Partial is any text recovered before the error.
	Partial string
	// PartialLen and ExpectedLen are the number of characters recovered and
	// the number declared by the PDU.
	PartialLen  int
	ExpectedLen int
}

func (e *DecodeError) Error() string {
	var sb strings.Builder
	sb.WriteString("PDU ERROR: ")
	if e.Position > 0 {
		if e.Length > 0 {
			fmt.Fprintf(&sb, "Position %d,%d: ", e.Position, e.Length)
		} else {
			fmt.Fprintf(&sb, "Position %d: ", e.Position)
		}
	}
	sb.WriteString(e.Reason)
	if e.Partial != "" {
		fmt.Fprintf(&sb, "\nPartial content of text (%d characters, expected %d):\n%s",
			e.PartialLen, e.ExpectedLen, e.Partial)
	}
	return sb.String()
}

// DecodeFailure is returned when a PDU cannot be decoded in either mode.
type DecodeFailure struct {
	// First is the error from the requested mode, Next from the alternate.
	First *DecodeError
	Next  *DecodeError
}

func modeTitle(m Mode) string {
	if m == ModeOld {
		return "old (without CSA)"
	}
	return "new (with CSA)"
}

func (f *DecodeFailure) Error() string {
	return fmt.Sprintf("First tried with PDU mode %s:\n%s\nNext tried with PDU mode %s:\n%s\nNo success.",
		modeTitle(f.First.Mode), f.First.Error(), modeTitle(f.Next.Mode), f.Next.Error())
}

// Best returns the attempt that progressed further into the PDU, preferring
// the requested mode.
func (f *DecodeFailure) Best() *DecodeError {
	if f.Next.Position > f.First.Position || (f.First.Partial == "" && f.Next.Partial != "") {
		return f.Next
	}
	return f.First
}

// Decode decodes a hex PDU.
//
// If the PDU cannot be decoded in the given mode it is retried in the other
// mode. If both fail a *DecodeFailure is returned along with the partially
// decoded message of the better attempt.
func Decode(p string, mode Mode) (*Message, error) {
	p = normalise(p)
	m, err := decodeMode(p, mode)
	if err == nil {
		return m, nil
	}
	m2, err2 := decodeMode(p, mode.other())
	if err2 == nil {
		m2.warn("Decoded using PDU mode %s", mode.other())
		return m2, nil
	}
	f := &DecodeFailure{First: err, Next: err2}
	if f.Best() == err2 {
		return m2, f
	}
	return m, f
}

// normalise removes whitespace and applies the Wavecom status report memory
// patch.
func normalise(p string) string {
	p = strings.ToUpper(strings.Join(strings.Fields(p), ""))
	if strings.HasPrefix(p, "000000FF00") {
		p = p[8:]
		for len(p) < 52 {
			p += "00"
		}
	}
	return p
}

// reader walks the hex PDU.
type reader struct {
	pdu  string
	pos  int
	mode Mode
}

func (r *reader) errorf(pos, length int, format string, v ...interface{}) *DecodeError {
	return &DecodeError{
		Mode:     r.mode,
		Position: pos + 1,
		Length:   length,
		Reason:   fmt.Sprintf(format, v...),
	}
}

func (r *reader) remaining() int {
	return len(r.pdu) - r.pos
}

// octet reads a single octet.
func (r *reader) octet(what string) (byte, *DecodeError) {
	if r.remaining() < 2 {
		return 0, r.errorf(r.pos, 2, "While trying to read %s: %s", what, errTooShort)
	}
	b, err := hex.DecodeString(r.pdu[r.pos : r.pos+2])
	if err != nil {
		return 0, r.errorf(r.pos, 2, "While reading %s: %s", what, errContent)
	}
	r.pos += 2
	return b[0], nil
}

// take returns the next n hex characters.
func (r *reader) take(n int, what string) (string, *DecodeError) {
	if r.remaining() < n {
		return "", r.errorf(r.pos, n, "While trying to read %s (length %d): %s", what, n, errTooShort)
	}
	s := r.pdu[r.pos : r.pos+n]
	r.pos += n
	return s, nil
}

func hexOctets(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// validOctets decodes as many whole octets from s as possible, returning the
// octets and the offset of the first invalid character, or -1.
func validOctets(s string) ([]byte, int) {
	b := make([]byte, 0, len(s)/2)
	for i := 0; i+1 < len(s); i += 2 {
		o, err := hex.DecodeString(s[i : i+2])
		if err != nil {
			return b, i
		}
		b = append(b, o[0])
	}
	return b, -1
}

func decodeMode(p string, mode Mode) (*Message, *DecodeError) {
	r := &reader{pdu: p, mode: mode}
	m := &Message{Mode: mode, Class: -1, PDU: p}
	if mode == ModeNew {
		if err := r.smsc(m); err != nil {
			return m, err
		}
	}
	fo, err := r.octet("first octet")
	if err != nil {
		return m, err
	}
	m.Type = MessageType(fo & 0x03)
	udhi := fo&0x40 != 0
	m.ReportRequested = fo&0x20 != 0
	switch m.Type {
	case TypeDeliver:
		if fo&0x18 != 0 {
			m.warn("Unused bits 3 and 4 are used in the first octet of the SMS-DELIVER PDU.")
		}
		err = r.deliver(m, udhi)
	case TypeSubmit:
		err = r.submit(m, fo, udhi)
	case TypeStatusReport:
		err = r.statusReport(m)
	default:
		err = &DecodeError{
			Mode:   mode,
			Reason: fmt.Sprintf("The PDU data (%02X) says that the message format is %d which is not supported. Cannot decode.", fo, m.Type),
		}
	}
	return m, err
}

func (r *reader) smsc(m *Message) *DecodeError {
	start := r.pos
	l, err := r.octet("SMSC address length")
	if err != nil {
		return err
	}
	if l == 0 {
		return nil
	}
	if l < 2 || int(l-1)*2 > maxSMSCAddressLength {
		return r.errorf(start, 2, "Invalid sender SMSC address length: \"%s\"", p2(r.pdu, start))
	}
	if r.remaining() < int(l)*2 {
		return r.errorf(r.pos, int(l)*2, "While trying to read sender SMSC address (length %d): %s", l, errTooShort)
	}
	tpos := r.pos
	toa, err := r.octet("sender SMSC address type")
	if err != nil {
		return err
	}
	if toa&0x80 == 0 {
		return r.errorf(tpos, 2, "Missing bit 7 in sender SMSC address type: \"%02X\"", toa)
	}
	digits, err := r.take(int(l-1)*2, "sender SMSC address")
	if err != nil {
		return err
	}
	m.SMSC.TOA = toa
	if m.SMSC.Alphanumeric() {
		text, diags, herr := decodeAlphanumeric(digits, int(l-1)*2)
		if herr != nil {
			return r.errorf(tpos+2, len(digits), "Invalid character(s) in alphanumeric SMSC address: \"%s\"", digits)
		}
		m.SMSC.Number = text
		m.Diagnostics = append(m.Diagnostics, diags...)
		return nil
	}
	m.SMSC.Number = decodeSemiOctets(digits)
	return nil
}

func p2(s string, pos int) string {
	if pos+2 > len(s) {
		return s[pos:]
	}
	return s[pos : pos+2]
}

// address reads an address field: length in semi-octets, type of address
// and digits.
func (r *reader) address(m *Message, what string) (Address, *DecodeError) {
	var a Address
	if r.remaining() < 4 {
		return a, r.errorf(r.pos, 4, "While trying to read address length and address type: %s", errTooShort)
	}
	lpos := r.pos
	l, err := r.octet(what + " address length")
	if err != nil {
		return a, err
	}
	if l > maxAddressLength {
		return a, r.errorf(lpos, 2, "Invalid %s address length: \"%02X\"", what, l)
	}
	tpos := r.pos
	toa, err := r.octet(what + " address type")
	if err != nil {
		return a, r.errorf(tpos, 2, "Invalid %s address type: \"%s\"", what, p2(r.pdu, tpos))
	}
	if toa&0x80 == 0 {
		return a, r.errorf(tpos, 2, "Missing bit 7 in %s address type: \"%02X\"", what, toa)
	}
	a.TOA = toa
	n := int(l) + int(l)%2
	dpos := r.pos
	digits, err := r.take(n, what+" address")
	if err != nil {
		return a, err
	}
	if a.Alphanumeric() {
		text, diags, herr := decodeAlphanumeric(digits, int(l))
		if herr != nil {
			return a, r.errorf(dpos, n, "Invalid character(s) in alphanumeric %s address: \"%s\"", what, digits)
		}
		a.Number = text
		m.Diagnostics = append(m.Diagnostics, diags...)
		return a, nil
	}
	number := decodeSemiOctets(digits)
	if l%2 != 0 && len(number) == n {
		m.warn("Length of numeric %s address is odd, but not terminated with 'F'.", what)
		number = number[:l]
	}
	if l%2 == 0 && len(number) < n {
		m.warn("Length of numeric %s address is even, but still was terminated with 'F'.", what)
	}
	if strings.IndexFunc(number, func(c rune) bool { return c < '0' || c > '9' }) >= 0 {
		m.warn("Invalid character(s) in %s address: \"%s\"", what, number)
	}
	a.Number = number
	return a, nil
}

// timestamp reads a 7 octet timestamp, returning the date and time.
func (r *reader) timestamp(m *Message, what string) (string, string, *DecodeError) {
	if r.remaining() < 14 {
		return "", "", r.errorf(r.pos, 14, "While trying to read %s: %s", what, errTooShort)
	}
	dpos := r.pos
	d := decodeSemiOctets(r.pdu[r.pos : r.pos+6])
	if !isDigits(d, 6) {
		return "", "", r.errorf(dpos, 6, "Invalid character(s) in date of %s: \"%s\"", what, d)
	}
	date := d[0:2] + "-" + d[2:4] + "-" + d[4:6]
	if !inRange(d[2:4], 1, 12) || !inRange(d[4:6], 1, 31) {
		m.warn("Invalid values(s) in date of %s.", what)
	}
	tpos := r.pos + 6
	t := decodeSemiOctets(r.pdu[tpos : tpos+6])
	if !isDigits(t, 6) {
		return "", "", r.errorf(tpos, 6, "Invalid character(s) in time of %s: \"%s\"", what, t)
	}
	tm := t[0:2] + ":" + t[2:4] + ":" + t[4:6]
	if !inRange(t[0:2], 0, 23) || !inRange(t[2:4], 0, 59) || !inRange(t[4:6], 0, 59) {
		m.warn("Invalid values(s) in time of %s.", what)
	}
	r.pos += 12
	zpos := r.pos
	if _, err := r.octet("time zone"); err != nil {
		return "", "", r.errorf(zpos, 2, "Invalid character(s) in Time Zone of %s: \"%s\"", what, p2(r.pdu, zpos))
	}
	return date, tm, nil
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func inRange(s string, min, max int) bool {
	v := int(s[0]-'0')*10 + int(s[1]-'0')
	return v >= min && v <= max
}

func (r *reader) pidDCS(m *Message) *DecodeError {
	pid, err := r.octet("TP-PID")
	if err != nil {
		return err
	}
	m.PID = pid
	if pid&0xf8 == 0x40 && pid&0x07 != 0 {
		m.Replace = int(pid & 0x07)
	}
	dpos := r.pos
	dcs, err := r.octet("TP-DCS")
	if err != nil {
		return err
	}
	m.DCS = dcs
	switch {
	case dcs&0xf0 == 0xf0:
		m.Alphabet = GSM7
		if dcs&0x04 != 0 {
			m.Alphabet = Binary
		}
		m.Class = int(dcs & 0x03)
	case dcs&0xf0 == 0xc0 || dcs&0xf0 == 0xd0:
		m.Alphabet = GSM7
	case dcs&0xf0 == 0xe0:
		m.Alphabet = UCS2
	default:
		m.Alphabet = Alphabet((dcs & 0x0c) >> 2)
		if dcs&0x10 != 0 {
			m.Class = int(dcs & 0x03)
		}
		if dcs&0xe0 == 0x20 {
			m.warn("Compressed user data is not supported.")
		}
	}
	if m.Alphabet == Reserved {
		return r.errorf(dpos, 2, "Invalid alphabet in data encoding scheme: value 3 is not supported.")
	}
	m.Flash = m.Class == 0
	return nil
}

func (r *reader) deliver(m *Message, udhi bool) *DecodeError {
	a, err := r.address(m, "sender")
	if err != nil {
		return err
	}
	m.Address = a
	if r.remaining() < 20 {
		return r.errorf(r.pos, 20, "While trying to read TP-PID, TP-DSC, TP-SCTS and TP-UDL: %s", errTooShort)
	}
	if err = r.pidDCS(m); err != nil {
		return err
	}
	if m.Date, m.Time, err = r.timestamp(m, "Service Centre Time Stamp"); err != nil {
		return err
	}
	return r.userData(m, udhi)
}

func (r *reader) submit(m *Message, fo byte, udhi bool) *DecodeError {
	mr, err := r.octet("TP-MR")
	if err != nil {
		return err
	}
	m.MessageReference = int(mr)
	if m.Address, err = r.address(m, "recipient"); err != nil {
		return err
	}
	if err = r.pidDCS(m); err != nil {
		return err
	}
	switch (fo >> 3) & 0x03 {
	case 0x02:
		vp, err := r.octet("TP-VP")
		if err != nil {
			return err
		}
		m.Validity = &vp
	case 0x01:
		if _, err := r.take(14, "TP-VP (enhanced)"); err != nil {
			return err
		}
	case 0x03:
		if m.Date, m.Time, err = r.timestamp(m, "TP-VP"); err != nil {
			return err
		}
	}
	return r.userData(m, udhi)
}

func (r *reader) statusReport(m *Message) *DecodeError {
	if r.remaining() < 6 {
		return r.errorf(r.pos, 6, "While trying to read TP-MR, recipient address length and type: %s", errTooShort)
	}
	mpos := r.pos
	mr, err := r.octet("message id")
	if err != nil {
		return r.errorf(mpos, 2, "Invalid message id: \"%s\"", p2(r.pdu, mpos))
	}
	sr := &StatusReport{MessageID: int(mr)}
	if m.Address, err = r.address(m, "recipient"); err != nil {
		return err
	}
	if m.Date, m.Time, err = r.timestamp(m, "SMSC Timestamp"); err != nil {
		return err
	}
	if sr.DischargeDate, sr.DischargeTime, err = r.timestamp(m, "Discharge Timestamp"); err != nil {
		return err
	}
	spos := r.pos
	st, err := r.octet("Status octet")
	if err != nil {
		if r.remaining() < 2 {
			return err
		}
		return r.errorf(spos, 2, "Invalid Status octet: \"%s\"", p2(r.pdu, spos))
	}
	sr.Status = st
	sr.Phrase = ExplainStatus(st)
	m.StatusReport = sr
	return nil
}

// userData reads TP-UDL and TP-UD.
func (r *reader) userData(m *Message, udhi bool) *DecodeError {
	udl, err := r.octet("TP-UDL")
	if err != nil {
		return err
	}
	m.UDL = int(udl)
	start := r.pos
	octets, bad := validOctets(r.pdu[start:])
	if m.Alphabet == GSM7 {
		return r.septetData(m, udhi, octets, bad)
	}
	what := "binary"
	if m.Alphabet == UCS2 {
		what = "UCS2 text"
	}
	need := m.UDL
	if len(octets) < need {
		return r.dataError(m, udhi, octets, bad, need, what)
	}
	octets = octets[:need]
	data, derr := r.splitUDH(m, udhi, octets)
	if derr != nil {
		return derr
	}
	r.pos += need * 2
	if m.Alphabet == UCS2 {
		m.Text, m.Diagnostics = appendDecode(m.Diagnostics, charset.DecodeUCS2, data)
		return nil
	}
	m.Data = data
	return nil
}

func appendDecode(diags []charset.Diagnostic, f func([]byte) (string, []charset.Diagnostic), b []byte) (string, []charset.Diagnostic) {
	s, d := f(b)
	return s, append(diags, d...)
}

// splitUDH separates the user data header from the user data.
func (r *reader) splitUDH(m *Message, udhi bool, octets []byte) ([]byte, *DecodeError) {
	if !udhi {
		return octets, nil
	}
	if len(octets) == 0 || int(octets[0])+1 > len(octets) {
		return nil, r.errorf(r.pos, 2, "While reading TP-UD: user data header exceeds user data")
	}
	l := int(octets[0]) + 1
	m.UDH = append([]byte(nil), octets[:l]...)
	c, _, err := ExtractConcatenation(m.UDH)
	if err != nil {
		m.warn("Invalid user data header: %s", err)
	}
	m.Concat = c
	return octets[l:], nil
}

func (r *reader) septetData(m *Message, udhi bool, octets []byte, bad int) *DecodeError {
	need := (m.UDL*7 + 7) / 8
	skip := 0
	fill := 0
	avail := octets
	if len(avail) > need {
		avail = avail[:need]
	}
	body := avail
	if udhi {
		b, err := r.splitUDH(m, udhi, avail)
		if err != nil {
			return err
		}
		body = b
		skip = (len(m.UDH)*8 + 6) / 7
		fill = skip*7 - len(m.UDH)*8
	}
	expected := m.UDL - skip
	if expected < 0 {
		return r.errorf(r.pos, 2, "While reading TP-UD (GSM text): TP-UDL %d shorter than user data header", m.UDL)
	}
	septets := charset.UnpackBits(body, expected, fill)
	if len(septets) < expected {
		text, _ := charset.Decode(septets)
		reason := errTooShort
		pos := r.pos + len(octets)*2
		if bad >= 0 {
			reason = errContent
			pos = r.pos + bad
		}
		e := r.errorf(pos, 0, "While reading TP-UD (GSM text): %s", reason)
		e.Partial, e.PartialLen, e.ExpectedLen = text, len([]rune(text)), expected
		m.Text = text
		return e
	}
	m.Text, m.Diagnostics = appendDecode(m.Diagnostics, charset.Decode, septets)
	r.pos += need * 2
	return nil
}

func (r *reader) dataError(m *Message, udhi bool, octets []byte, bad, need int, what string) *DecodeError {
	reason := errTooShort
	pos := r.pos + len(octets)*2
	if bad >= 0 {
		reason = errContent
		pos = r.pos + bad
	}
	e := r.errorf(pos, 0, "While reading TP-UD (%s): %s", what, reason)
	if m.Alphabet != UCS2 {
		return e
	}
	data := octets
	if udhi && len(octets) > 0 && int(octets[0])+1 <= len(octets) {
		data = octets[int(octets[0])+1:]
	}
	text, _ := charset.DecodeUCS2(data[:len(data)/2*2])
	e.Partial, e.PartialLen, e.ExpectedLen = text, len([]rune(text)), need/2
	m.Text = text
	return e
}
