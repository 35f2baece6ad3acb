// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package pdu_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/smsgw/pdu"
)

func TestNumberingFormat(t *testing.T) {
	patterns := []struct {
		name   string
		n      pdu.Numbering
		in     string
		nt     pdu.NumberType
		number string
		toa    byte
	}{
		{"default", pdu.Numbering{}, "4915", pdu.NumberAuto, "4915", pdu.TOAInternational},
		{"plus", pdu.Numbering{}, "+4915", pdu.NumberAuto, "4915", pdu.TOAInternational},
		{"s prefix", pdu.Numbering{}, "s12345", pdu.NumberAuto, "12345", pdu.TOAUnknown},
		{"unknown", pdu.Numbering{}, "12345", pdu.NumberUnknown, "12345", pdu.TOAUnknown},
		{"national type", pdu.Numbering{}, "0401", pdu.NumberNational, "0401", pdu.TOANational},
		{"international type", pdu.Numbering{National: []string{"0"}}, "0401", pdu.NumberInternational, "0401", pdu.TOAInternational},
		{"national prefix", pdu.Numbering{National: []string{"0"}}, "0401", pdu.NumberAuto, "0401", pdu.TOANational},
		{"international prefix", pdu.Numbering{International: []string{"49"}}, "4915", pdu.NumberAuto, "4915", pdu.TOAInternational},
		{"unmatched international", pdu.Numbering{International: []string{"49"}}, "0401", pdu.NumberAuto, "0401", pdu.TOANational},
		{
			"longest wins",
			pdu.Numbering{International: []string{"4"}, National: []string{"49"}},
			"4915", pdu.NumberAuto, "4915", pdu.TOANational,
		},
		{
			"tie to international",
			pdu.Numbering{International: []string{"49"}, National: []string{"49"}},
			"4915", pdu.NumberAuto, "4915", pdu.TOAInternational,
		},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			number, toa := p.n.Format(p.in, p.nt)
			assert.Equal(t, p.number, number)
			assert.Equal(t, p.toa, toa)
		}
		t.Run(p.name, f)
	}
}

func TestParseNumberType(t *testing.T) {
	assert.Equal(t, pdu.NumberUnknown, pdu.ParseNumberType("0"))
	assert.Equal(t, pdu.NumberInternational, pdu.ParseNumberType("1"))
	assert.Equal(t, pdu.NumberNational, pdu.ParseNumberType("national"))
	assert.Equal(t, pdu.NumberAuto, pdu.ParseNumberType(""))
}

func TestExplainTOA(t *testing.T) {
	assert.Equal(t, "international, ISDN/telephone", pdu.ExplainTOA(0x91))
	assert.Equal(t, "unknown, ISDN/telephone", pdu.ExplainTOA(0x81))
	assert.Equal(t, "alphanumeric, unknown", pdu.ExplainTOA(0xd0))
}

func TestValidityInverse(t *testing.T) {
	for v := 0; v <= 255; v++ {
		d := pdu.DecodeValidity(byte(v))
		assert.Equal(t, byte(v), pdu.EncodeValidity(d), v)
	}
}

func TestEncodeValidity(t *testing.T) {
	patterns := []struct {
		name string
		in   time.Duration
		out  byte
	}{
		{"zero", 0, 0},
		{"minute", time.Minute, 0},
		{"six minutes", 6 * time.Minute, 1},
		{"twelve hours", 12 * time.Hour, 143},
		{"thirteen hours", 13 * time.Hour, 145},
		{"day", 24 * time.Hour, 167},
		{"day and hour", 25 * time.Hour, 168},
		{"thirty days", 30 * 24 * time.Hour, 196},
		{"thirty one days", 31 * 24 * time.Hour, 197},
		{"63 weeks", 63 * 7 * 24 * time.Hour, 255},
		{"forever", 1000 * 24 * time.Hour, 255},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			assert.Equal(t, p.out, pdu.EncodeValidity(p.in))
		}
		t.Run(p.name, f)
	}
}

func TestParseValidity(t *testing.T) {
	patterns := []struct {
		name string
		in   string
		out  byte
		err  bool
	}{
		{"empty", "", pdu.DefaultValidity, false},
		{"raw", "167", 167, false},
		{"raw range", "256", 0, true},
		{"days", "3 days", 169, false},
		{"week", "week", 173, false},
		{"hours", "12 hours", 143, false},
		{"minutes", "30 min", 5, false},
		{"month", "1 month", 196, false},
		{"year", "1 year", 245, false},
		{"bad count", "x days", 0, true},
		{"bad unit", "3 fortnights", 0, true},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			v, err := pdu.ParseValidity(p.in)
			if p.err {
				assert.NotNil(t, err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, p.out, v)
		}
		t.Run(p.name, f)
	}
}

func TestExplainValidity(t *testing.T) {
	assert.Equal(t, "5 mins (0)", pdu.ExplainValidity(0))
	assert.Equal(t, "720 mins (143)", pdu.ExplainValidity(143))
	assert.Equal(t, "13 hours (145)", pdu.ExplainValidity(145))
	assert.Equal(t, "12 hours 30 min (144)", pdu.ExplainValidity(144))
	assert.Equal(t, "3 days (169)", pdu.ExplainValidity(169))
	assert.Equal(t, "63 weeks (255)", pdu.ExplainValidity(255))
}

func TestParseUDH(t *testing.T) {
	patterns := []struct {
		name string
		in   []byte
		ies  []pdu.InformationElement
		err  bool
	}{
		{"empty", nil, nil, true},
		{"concat", []byte{0x05, 0x00, 0x03, 0x2a, 0x02, 0x01},
			[]pdu.InformationElement{{ID: 0x00, Data: []byte{0x2a, 0x02, 0x01}}}, false},
		{"two", []byte{0x07, 0x04, 0x02, 0x05, 0x06, 0x0a, 0x01, 0x55},
			[]pdu.InformationElement{
				{ID: 0x04, Data: []byte{0x05, 0x06}},
				{ID: 0x0a, Data: []byte{0x55}},
			}, false},
		{"long", []byte{0x06, 0x00, 0x03, 0x2a, 0x02, 0x01}, nil, true},
		{"short", []byte{0x04, 0x00, 0x03, 0x2a, 0x02, 0x01}, nil, true},
		{"overrun", []byte{0x03, 0x00, 0x05, 0x01}, nil, true},
		{"truncated", []byte{0x01, 0x00}, nil, true},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			ies, err := pdu.ParseUDH(p.in)
			if p.err {
				assert.Equal(t, pdu.ErrInvalidUDH, errors.Cause(err))
				return
			}
			require.Nil(t, err)
			assert.Equal(t, p.ies, ies)
			udh, err := pdu.EncodeUDH(ies)
			require.Nil(t, err)
			assert.Equal(t, p.in, udh)
		}
		t.Run(p.name, f)
	}
}

func TestExtractConcatenation(t *testing.T) {
	patterns := []struct {
		name string
		in   []byte
		c    *pdu.Concatenation
		rest []byte
	}{
		{"8 bit", []byte{0x05, 0x00, 0x03, 0x2a, 0x02, 0x01},
			&pdu.Concatenation{Reference: 0x2a, Total: 2, Part: 1}, nil},
		{"16 bit", []byte{0x06, 0x08, 0x04, 0x12, 0x34, 0x03, 0x02},
			&pdu.Concatenation{Reference: 0x1234, Wide: true, Total: 3, Part: 2}, nil},
		{"mixed", []byte{0x09, 0x04, 0x02, 0x05, 0x06, 0x00, 0x03, 0x01, 0x02, 0x01},
			&pdu.Concatenation{Reference: 1, Total: 2, Part: 1},
			[]byte{0x04, 0x04, 0x02, 0x05, 0x06}},
		{"none", []byte{0x04, 0x04, 0x02, 0x05, 0x06},
			nil, []byte{0x04, 0x04, 0x02, 0x05, 0x06}},
		{"bad concat length", []byte{0x04, 0x00, 0x02, 0x01, 0x02},
			nil, []byte{0x04, 0x00, 0x02, 0x01, 0x02}},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			c, rest, err := pdu.ExtractConcatenation(p.in)
			require.Nil(t, err)
			assert.Equal(t, p.c, c)
			assert.Equal(t, p.rest, rest)
		}
		t.Run(p.name, f)
	}
}

func TestExplainUDH(t *testing.T) {
	s, err := pdu.ExplainUDH(pdu.ConcatenationUDH(1, 2, 1))
	require.Nil(t, err)
	assert.Equal(t, "Length=6, [00]Concatenated short messages, 8-bit reference number", s)
	_, err = pdu.ExplainUDH([]byte{0x02, 0x00})
	assert.NotNil(t, err)
}

func TestDescribeIEI(t *testing.T) {
	assert.Equal(t, "Concatenated short message, 16-bit reference number", pdu.DescribeIEI(0x08))
	assert.Equal(t, "SME to SME specific use", pdu.DescribeIEI(0x85))
	assert.Equal(t, "Reserved for future use", pdu.DescribeIEI(0x30))
}

func TestExplainStatus(t *testing.T) {
	assert.Equal(t, "Error,SM validity period expired", pdu.ExplainStatus(70))
	assert.Equal(t, "Temporary error, SC specific, unknown", pdu.ExplainStatus(50))
	assert.Equal(t, "Permanent error, SC specific, unknown", pdu.ExplainStatus(120))
	assert.Equal(t, "unknown", pdu.ExplainStatus(200))
}

func TestParseMode(t *testing.T) {
	m, err := pdu.ParseMode("old")
	require.Nil(t, err)
	assert.Equal(t, pdu.ModeOld, m)
	m, err = pdu.ParseMode("")
	require.Nil(t, err)
	assert.Equal(t, pdu.ModeNew, m)
	_, err = pdu.ParseMode("ancient")
	assert.NotNil(t, err)
}
