// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package charset_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/smsgw/charset"
)

func TestEncode(t *testing.T) {
	patterns := []struct {
		name  string
		in    string
		out   []byte
		diags int
	}{
		{"empty", "", []byte{}, 0},
		{"ascii", "Hello", []byte("Hello"), 0},
		{"at", "a@b", []byte{'a', 0x00, 'b'}, 0},
		{"dollar", "$5", []byte{0x02, '5'}, 0},
		{"greek", "ΔΩ", []byte{0x10, 0x15}, 0},
		{"underscore", "_", []byte{0x11}, 0},
		{"currency", "¤", []byte{}, 1},
		{"euro", "€1", []byte{0x1b, 0x65, '1'}, 0},
		{"braces", "{}", []byte{0x1b, 0x28, 0x1b, 0x29}, 0},
		{"backslash", `\`, []byte{0x1b, 0x2f}, 0},
		{"pipe", "|", []byte{0x1b, 0x40}, 0},
		{"close match", "á", []byte{'a'}, 0},
		{"cedilla", "ç", []byte{0x09}, 0},
		{"grave accent", "`", []byte{'\''}, 0},
		{"unmapped", "a☃b", []byte{'a', 'b'}, 1},
		{"iso byte", "a\xe1", []byte{'a', 'a'}, 0},
		{"iso euro", "\xa4", []byte{0x1b, 0x65}, 0},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			out, diags := charset.Encode(p.in)
			assert.Equal(t, p.out, out)
			assert.Len(t, diags, p.diags)
		}
		t.Run(p.name, f)
	}
}

func TestEncodeDiagnostic(t *testing.T) {
	_, diags := charset.Encode("ab☃")
	require.Len(t, diags, 1)
	assert.Equal(t, 3, diags[0].Index)
	assert.Equal(t, '☃', diags[0].Char)
	assert.Contains(t, diags[0].String(), "Cannot convert 3. character")
}

func TestEncodeISO(t *testing.T) {
	out, diags := charset.EncodeISO([]byte{'A', 0xe9, 0xa4})
	assert.Equal(t, []byte{'A', 0x05, 0x1b, 0x65}, out)
	assert.Empty(t, diags)
}

func TestDecode(t *testing.T) {
	patterns := []struct {
		name  string
		in    []byte
		out   string
		diags int
	}{
		{"empty", nil, "", 0},
		{"ascii", []byte("Hello"), "Hello", 0},
		{"at", []byte{0x00}, "@", 0},
		{"currency", []byte{0x24}, "€", 0},
		{"euro", []byte{0x1b, 0x65}, "€", 0},
		{"form feed", []byte{0x1b, 0x0a}, "\f", 0},
		{"unmapped extension", []byte{'a', 0x1b, 0x01, 'b'}, "ab", 1},
		{"trailing escape", []byte{'a', 0x1b}, "a", 0},
		{"high bit ignored", []byte{0x80 | 'a'}, "a", 0},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			out, diags := charset.Decode(p.in)
			assert.Equal(t, p.out, out)
			assert.Len(t, diags, p.diags)
		}
		t.Run(p.name, f)
	}
}

func TestEncodeDecodeAlphabet(t *testing.T) {
	text := "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#%&'()*+,-./0123456789:;<=>?" +
		"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà" +
		"\f^{}\\[~]|€"
	gsm, diags := charset.Encode(text)
	require.Empty(t, diags)
	assert.Equal(t, 126+2*10, len(gsm))
	out, diags := charset.Decode(gsm)
	assert.Empty(t, diags)
	assert.Equal(t, text, out)
}

func TestIsGSM(t *testing.T) {
	assert.True(t, charset.IsGSM("Hello {world} €"))
	assert.False(t, charset.IsGSM("héllo á"))
	assert.False(t, charset.IsGSM("日本"))
}

func TestSeptetLen(t *testing.T) {
	assert.Equal(t, 5, charset.SeptetLen("Hello"))
	assert.Equal(t, 3, charset.SeptetLen("a€"))
}

func TestISO(t *testing.T) {
	iso := charset.ToISO("a€é☃")
	assert.Equal(t, []byte{'a', 0xa4, 0xe9, '?'}, iso)
	assert.Equal(t, "a€é?", charset.FromISO(iso))
}

func TestUCS2(t *testing.T) {
	b, diags := charset.EncodeUCS2("Hi€")
	assert.Empty(t, diags)
	assert.Equal(t, []byte{0x00, 'H', 0x00, 'i', 0x20, 0xac}, b)
	s, diags := charset.DecodeUCS2(b)
	assert.Empty(t, diags)
	assert.Equal(t, "Hi€", s)

	b, diags = charset.EncodeUCS2("a😀")
	assert.Len(t, diags, 1)
	assert.Equal(t, []byte{0x00, 'a'}, b)

	s, diags = charset.DecodeUCS2([]byte{0x00, 'a', 0x00})
	assert.Len(t, diags, 1)
	assert.Equal(t, "a", s)
}
