// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// Package charset converts between text and the GSM 03.38 default alphabet,
// and packs and unpacks the 7-bit septet streams carried in SMS user data.
//
// Conversion never fails. Characters that cannot be represented are dropped
// and reported as Diagnostics, so the rest of the message is still delivered.
package charset

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Diagnostic describes a single character that could not be converted.
type Diagnostic struct {
	// Index is the 1-based position of the character in the input.
	Index int
	// Char is the input character, or utf8.RuneError for an unmapped byte.
	Char rune
	// Byte is the unmapped GSM byte when decoding.
	Byte byte
	// Escaped indicates the byte followed an escape.
	Escaped bool
}

func (d Diagnostic) String() string {
	if d.Char != utf8.RuneError {
		return fmt.Sprintf("Cannot convert %d. character %q 0x%X", d.Index, d.Char, d.Char)
	}
	if d.Escaped {
		return fmt.Sprintf("Cannot convert %d. character Esc-0x%02X", d.Index, d.Byte)
	}
	return fmt.Sprintf("Cannot convert %d. character 0x%02X", d.Index, d.Byte)
}

// Encode converts text into unpacked GSM septets.
//
// The text is UTF-8, though bytes that are not part of a valid UTF-8
// sequence are treated as ISO-8859-15. Characters from the extension table
// are returned as an escape followed by the extension septet.
func Encode(text string) ([]byte, []Diagnostic) {
	gsm := make([]byte, 0, len(text))
	var diags []Diagnostic
	idx := 0
	for len(text) > 0 {
		r, size := utf8.DecodeRuneInString(text)
		if r == utf8.RuneError && size == 1 {
			r = charmap.ISO8859_15.DecodeByte(text[0])
		}
		text = text[size:]
		idx++
		if s, ok := encodeRune(r); ok {
			gsm = append(gsm, s...)
			continue
		}
		diags = append(diags, Diagnostic{Index: idx, Char: r})
	}
	return gsm, diags
}

// EncodeISO converts ISO-8859-15 text into unpacked GSM septets.
func EncodeISO(iso []byte) ([]byte, []Diagnostic) {
	var sb strings.Builder
	for _, b := range iso {
		sb.WriteRune(charmap.ISO8859_15.DecodeByte(b))
	}
	return Encode(sb.String())
}

func encodeRune(r rune) ([]byte, bool) {
	if s, ok := runeToDefault[r]; ok {
		return []byte{s}, true
	}
	if s, ok := runeToExtension[r]; ok {
		return []byte{esc, s}, true
	}
	if iso, ok := charmap.ISO8859_15.EncodeRune(r); ok {
		if s, ok := closeMatch[iso]; ok {
			return []byte{s}, true
		}
	}
	return nil, false
}

// Decode converts unpacked GSM septets into text.
//
// An escape selects the extension table for the following septet.
// Unmapped extension septets are dropped. A trailing escape is ignored.
func Decode(septets []byte) (string, []Diagnostic) {
	var sb strings.Builder
	var diags []Diagnostic
	for i := 0; i < len(septets); i++ {
		s := septets[i] & 0x7f
		if s != esc {
			sb.WriteRune(defaultAlphabet[s])
			continue
		}
		i++
		if i >= len(septets) {
			break
		}
		if r, ok := extension[septets[i]&0x7f]; ok {
			sb.WriteRune(r)
			continue
		}
		diags = append(diags, Diagnostic{Index: i + 1, Char: utf8.RuneError, Byte: septets[i], Escaped: true})
	}
	return sb.String(), diags
}

// ToISO converts text to ISO-8859-15, replacing unmappable characters with
// '?'.
func ToISO(text string) []byte {
	iso := make([]byte, 0, len(text))
	for _, r := range text {
		b, ok := charmap.ISO8859_15.EncodeRune(r)
		if !ok {
			b = '?'
		}
		iso = append(iso, b)
	}
	return iso
}

// FromISO converts ISO-8859-15 text to UTF-8.
func FromISO(iso []byte) string {
	var sb strings.Builder
	for _, b := range iso {
		sb.WriteRune(charmap.ISO8859_15.DecodeByte(b))
	}
	return sb.String()
}

// IsGSM returns true if every character in the text maps to the default
// alphabet or its extension without loss.
func IsGSM(text string) bool {
	for _, r := range text {
		if _, ok := runeToDefault[r]; ok {
			continue
		}
		if _, ok := runeToExtension[r]; ok {
			continue
		}
		return false
	}
	return true
}

// SeptetLen returns the number of septets required to encode the text.
func SeptetLen(text string) int {
	s, _ := Encode(text)
	return len(s)
}
