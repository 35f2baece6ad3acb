// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package pdu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/smsgw/pdu"
)

const howAreYou = "07911326040000F0040B911346610089F60000208062917314080CC8F71D14969741F977FD07"

func TestDecodeDeliver(t *testing.T) {
	m, err := pdu.Decode(howAreYou, pdu.ModeNew)
	require.Nil(t, err)
	assert.Equal(t, pdu.TypeDeliver, m.Type)
	assert.Equal(t, pdu.ModeNew, m.Mode)
	assert.Equal(t, "31624000000", m.SMSC.Number)
	assert.Equal(t, "+31641600986", m.Address.String())
	assert.Equal(t, "02-08-26", m.Date)
	assert.Equal(t, "19:37:41", m.Time)
	assert.Equal(t, "02-08-26 19:37:41", m.Timestamp())
	assert.Equal(t, pdu.GSM7, m.Alphabet)
	assert.Equal(t, -1, m.Class)
	assert.False(t, m.Flash)
	assert.Equal(t, 12, m.UDL)
	assert.Equal(t, "How are you?", m.Text)
	assert.Equal(t, "How are you?", m.Body())
	assert.Empty(t, m.Warnings)
}

func TestDecodeNormalise(t *testing.T) {
	m, err := pdu.Decode(" 07911326040000f0 040b911346610089f6 0000208062917314080cc8f71d14969741f977fd07\n", pdu.ModeNew)
	require.Nil(t, err)
	assert.Equal(t, "How are you?", m.Text)
	assert.Equal(t, howAreYou, m.PDU)
}

func TestDecodeModeRetry(t *testing.T) {
	m, err := pdu.Decode(howAreYou, pdu.ModeOld)
	require.Nil(t, err)
	assert.Equal(t, pdu.ModeNew, m.Mode)
	assert.Equal(t, "How are you?", m.Text)
	require.Len(t, m.Warnings, 1)
	assert.Contains(t, m.Warnings[0], "new")
}

func TestDecodeStatusReport(t *testing.T) {
	in := "0006" + "2A" + "0B911346610089F6" + "20806291731408" + "20806291731508" + "00"
	m, err := pdu.Decode(in, pdu.ModeNew)
	require.Nil(t, err)
	assert.Equal(t, pdu.TypeStatusReport, m.Type)
	assert.Equal(t, "31641600986", m.Address.Number)
	require.NotNil(t, m.StatusReport)
	sr := m.StatusReport
	assert.Equal(t, 42, sr.MessageID)
	assert.Equal(t, "02-08-26", sr.DischargeDate)
	assert.Equal(t, "19:37:51", sr.DischargeTime)
	assert.Equal(t, byte(0), sr.Status)
	assert.Equal(t, "Ok,short message received by the SME", sr.Phrase)
	assert.True(t, sr.Delivered())
	assert.True(t, sr.Permanent())
	assert.Equal(t,
		"Message_id: 42\nDischarge_timestamp: 02-08-26 19:37:51\nStatus: 0,Ok,short message received by the SME\n",
		m.Body())
}

func TestDecodeClass(t *testing.T) {
	patterns := []struct {
		name  string
		dcs   string
		a     pdu.Alphabet
		class int
	}{
		{"default", "00", pdu.GSM7, -1},
		{"flash", "10", pdu.GSM7, 0},
		{"class 1", "11", pdu.GSM7, 1},
		{"ucs2", "08", pdu.UCS2, -1},
		{"ucs2 class 2", "1A", pdu.UCS2, 2},
		{"binary", "04", pdu.Binary, -1},
		{"f group binary", "F5", pdu.Binary, 1},
		{"f group gsm", "F0", pdu.GSM7, 0},
		{"waiting gsm", "C0", pdu.GSM7, -1},
		{"waiting ucs2", "E0", pdu.UCS2, -1},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			in := "0004" + "0B911346610089F6" + "00" + p.dcs + "20806291731408" + "00"
			m, err := pdu.Decode(in, pdu.ModeNew)
			require.Nil(t, err)
			assert.Equal(t, p.a, m.Alphabet)
			assert.Equal(t, p.class, m.Class)
			assert.Equal(t, p.class == 0, m.Flash)
		}
		t.Run(p.name, f)
	}
}

func TestDecodeAddressWarnings(t *testing.T) {
	patterns := []struct {
		name   string
		addr   string
		number string
		warn   string
	}{
		{"odd without F", "0B91134661008969", "31641600989", "odd"},
		{"even with F", "0A9113466100F9", "316416009", "even"},
		{"non digit", "04912A43", "A234", "Invalid character"},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			in := "0004" + p.addr + "0000" + "20806291731408" + "00"
			m, err := pdu.Decode(in, pdu.ModeNew)
			require.Nil(t, err)
			assert.Equal(t, p.number, m.Address.Number)
			require.Len(t, m.Warnings, 1)
			assert.Contains(t, m.Warnings[0], p.warn)
		}
		t.Run(p.name, f)
	}
}

func TestDecodeAlphanumeric(t *testing.T) {
	// "Hello" in 10 semi-octets
	in := "0004" + "0AD0C8329BFD06" + "0000" + "20806291731408" + "00"
	m, err := pdu.Decode(in, pdu.ModeNew)
	require.Nil(t, err)
	assert.True(t, m.Address.Alphanumeric())
	assert.Equal(t, "Hello", m.Address.Number)
}

func TestDecodeReplace(t *testing.T) {
	in := "0004" + "0B911346610089F6" + "4500" + "20806291731408" + "00"
	m, err := pdu.Decode(in, pdu.ModeNew)
	require.Nil(t, err)
	assert.Equal(t, 5, m.Replace)
}

func TestDecodeConcatenated(t *testing.T) {
	// 16-bit reference 0x1234, part 2 of 3, UCS2 "Ω"
	in := "0044" + "0B911346610089F6" + "0008" + "20806291731408" + "09" + "0608041234030203A9"
	m, err := pdu.Decode(in, pdu.ModeNew)
	require.Nil(t, err)
	require.NotNil(t, m.Concat)
	assert.Equal(t, pdu.Concatenation{Reference: 0x1234, Wide: true, Total: 3, Part: 2}, *m.Concat)
	assert.Equal(t, []byte{0x06, 0x08, 0x04, 0x12, 0x34, 0x03, 0x02}, m.UDH)
	assert.Equal(t, "Ω", m.Text)
}

func TestDecodeInvalidUDH(t *testing.T) {
	// IE overruns the declared header length
	in := "0044" + "0B911346610089F6" + "0004" + "20806291731408" + "05" + "03000501AA"
	m, err := pdu.Decode(in, pdu.ModeNew)
	require.Nil(t, err)
	assert.Nil(t, m.Concat)
	assert.Equal(t, []byte{0xaa}, m.Data)
	require.Len(t, m.Warnings, 1)
	assert.Contains(t, m.Warnings[0], "user data header")
}

func TestDecodeReservedAlphabet(t *testing.T) {
	in := "0004" + "0B911346610089F6" + "000C" + "20806291731408" + "00"
	_, err := pdu.Decode(in, pdu.ModeNew)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "Invalid alphabet in data encoding scheme: value 3 is not supported.")
}

func TestDecodeFailure(t *testing.T) {
	m, err := pdu.Decode("0011", pdu.ModeNew)
	require.NotNil(t, m)
	require.IsType(t, &pdu.DecodeFailure{}, err)
	f := err.(*pdu.DecodeFailure)
	assert.Equal(t, pdu.ModeNew, f.First.Mode)
	assert.Equal(t, pdu.ModeOld, f.Next.Mode)
	assert.Equal(t, 5, f.First.Position)
	assert.Equal(t, 3, f.Next.Position)
	assert.Equal(t, f.First, f.Best())
	s := err.Error()
	assert.Contains(t, s, "First tried with PDU mode new (with CSA):\nPDU ERROR: Position 5,2:")
	assert.Contains(t, s, "Next tried with PDU mode old (without CSA):\nPDU ERROR: Position 3,4:")
	assert.Contains(t, s, "No success")
}

func TestDecodePartial(t *testing.T) {
	in := howAreYou[:len(howAreYou)-4]
	m, err := pdu.Decode(in, pdu.ModeNew)
	require.IsType(t, &pdu.DecodeFailure{}, err)
	f := err.(*pdu.DecodeFailure)
	best := f.Best()
	assert.Equal(t, pdu.ModeNew, best.Mode)
	assert.Equal(t, "How are yo", best.Partial)
	assert.Equal(t, 10, best.PartialLen)
	assert.Equal(t, 12, best.ExpectedLen)
	assert.Contains(t, best.Error(), "Partial content of text (10 characters, expected 12):\nHow are yo")
	require.NotNil(t, m)
	assert.Equal(t, "How are yo", m.Text)
}

func TestDecodeInvalidContent(t *testing.T) {
	in := howAreYou[:len(howAreYou)-6] + "ZZFD07"
	_, err := pdu.Decode(in, pdu.ModeNew)
	require.IsType(t, &pdu.DecodeFailure{}, err)
	best := err.(*pdu.DecodeFailure).Best()
	assert.Contains(t, best.Reason, "invalid character(s) in string")
	assert.Equal(t, len(howAreYou)-5, best.Position)
}

func TestDecodeErrorString(t *testing.T) {
	patterns := []struct {
		name string
		err  pdu.DecodeError
		out  string
	}{
		{"plain", pdu.DecodeError{Reason: "bad"}, "PDU ERROR: bad"},
		{"position", pdu.DecodeError{Position: 5, Reason: "bad"}, "PDU ERROR: Position 5: bad"},
		{"length", pdu.DecodeError{Position: 5, Length: 2, Reason: "bad"}, "PDU ERROR: Position 5,2: bad"},
		{
			"partial",
			pdu.DecodeError{Position: 5, Reason: "bad", Partial: "ab", PartialLen: 2, ExpectedLen: 4},
			"PDU ERROR: Position 5: bad\nPartial content of text (2 characters, expected 4):\nab",
		},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			assert.Equal(t, p.out, p.err.Error())
		}
		t.Run(p.name, f)
	}
}

func TestDecodeWavecom(t *testing.T) {
	in := "000000FF00" + "06" + "2A" + "0B911346610089F6" + "20806291731408" + "20806291731508" + "00"
	m, err := pdu.Decode(in, pdu.ModeNew)
	require.Nil(t, err)
	require.NotNil(t, m.StatusReport)
	assert.Equal(t, 42, m.StatusReport.MessageID)
}
