// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package charset

import (
	"unicode/utf16"
	"unicode/utf8"

	"github.com/warthog618/sms/encoding/ucs2"
)

// EncodeUCS2 converts text into big endian UCS2 code units.
//
// Characters outside the basic multilingual plane cannot be carried and are
// dropped.
func EncodeUCS2(text string) ([]byte, []Diagnostic) {
	runes := make([]rune, 0, len(text))
	var diags []Diagnostic
	idx := 0
	for _, r := range text {
		idx++
		if r > 0xffff || utf16.IsSurrogate(r) {
			diags = append(diags, Diagnostic{Index: idx, Char: r})
			continue
		}
		runes = append(runes, r)
	}
	return ucs2.Encode(runes), diags
}

// DecodeUCS2 converts big endian UCS2 code units into text.
//
// Surrogate pairs are combined where the sender used them. A trailing odd
// byte is dropped and reported.
func DecodeUCS2(b []byte) (string, []Diagnostic) {
	var diags []Diagnostic
	if len(b)%2 != 0 {
		diags = append(diags, Diagnostic{Index: len(b)/2 + 1, Char: utf8.RuneError, Byte: b[len(b)-1]})
		b = b[:len(b)-1]
	}
	runes, err := ucs2.Decode(b)
	if err == nil {
		return string(runes), diags
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return string(utf16.Decode(units)), diags
}
