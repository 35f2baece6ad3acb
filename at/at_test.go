// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

//  Test suite for AT module.
//
//  Note that these tests provide a mockTransport which does not attempt to
//  emulate a serial modem, but which provides responses required to exercise
//  at.go So, while the commands may follow the structure of the AT protocol
//  they most certainly are not AT commands - just patterns that elicit the
//  behaviour required for the test.

package at_test

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/smsgw/at"
	"github.com/warthog618/smsgw/trace"
)

func TestNew(t *testing.T) {
	patterns := []struct {
		name    string
		options []at.Option
	}{
		{
			"default",
			nil,
		},
		{
			"escTime",
			[]at.Option{at.WithEscTime(100 * time.Millisecond)},
		},
		{
			"ticks",
			[]at.Option{at.WithTick(time.Millisecond), at.WithTimeoutTicks(3), at.WithQuietTicks(1)},
		},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			mt := &mockTransport{}
			a := at.New(mt, p.options...)
			require.NotNil(t, a)
			assert.Equal(t, at.Idle, a.State())
			assert.Equal(t, 0, mt.reads)
			assert.Empty(t, mt.written)
		}
		t.Run(p.name, f)
	}
}

func TestWithEscTime(t *testing.T) {
	cmdSet := map[string][]string{
		"ATZ\r":       {"OK\r\n"},
		"ATE0\r":      {"OK\r\n"},
		"AT+CMEE=1\r": {"OK\r\n"},
	}
	patterns := []struct {
		name    string
		options []at.Option
		d       time.Duration
	}{
		{
			"default",
			nil,
			20 * time.Millisecond,
		},
		{
			"100ms",
			[]at.Option{at.WithEscTime(100 * time.Millisecond)},
			100 * time.Millisecond,
		},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			mt := &mockTransport{cmdSet: cmdSet}
			a := at.New(mt, p.options...)
			require.NotNil(t, a)

			ctx := context.Background()
			start := time.Now()
			err := a.Init(ctx)
			assert.Nil(t, err)
			end := time.Now()
			assert.GreaterOrEqual(t, int64(end.Sub(start)), int64(p.d))
		}
		t.Run(p.name, f)
	}
}

func TestInit(t *testing.T) {
	cmdSet := map[string][]string{
		"ATZ\r":       {"OK\r\n"},
		"ATE0\r":      {"OK\r\n"},
		"AT+CMEE=1\r": {"OK\r\n"},
	}
	a, mt := setupModem(t, cmdSet)
	ctx := context.Background()
	err := a.Init(ctx)
	require.Nil(t, err)
	assert.Equal(t, []string{"\x1b\r", "ATZ\r", "ATE0\r", "AT+CMEE=1\r"}, mt.written)

	// explicit commands
	mt.written = nil
	cmdSet["AT+CMGF=0\r"] = []string{"OK\r\n"}
	err = a.Init(ctx, "+CMGF=0")
	require.Nil(t, err)
	assert.Equal(t, []string{"\x1b\r", "AT+CMGF=0\r"}, mt.written)

	// init commands option
	mt = &mockTransport{cmdSet: cmdSet}
	a = at.New(mt, at.WithInitCmds("Z"))
	err = a.Init(ctx)
	require.Nil(t, err)
	assert.Equal(t, []string{"\x1b\r", "ATZ\r"}, mt.written)
}

func TestInitFailure(t *testing.T) {
	cmdSet := map[string][]string{
		"ATZ\r":  {"OK\r\n"},
		"ATE0\r": {"ERROR\r\n"},
	}
	a, mt := setupModem(t, cmdSet)
	err := a.Init(context.Background())
	require.NotNil(t, err)
	assert.Equal(t, at.ErrError, errors.Cause(err))
	assert.Contains(t, err.Error(), "ATE0 returned error")
	// rejections are not retried
	assert.Equal(t, []string{"\x1b\r", "ATZ\r", "ATE0\r"}, mt.written)
}

func TestInitRetry(t *testing.T) {
	cmdSet := map[string][]string{
		"ATZ\r": {"OK\r\n"},
	}
	mt := &mockTransport{cmdSet: cmdSet}
	a := at.New(mt,
		at.WithTimeoutTicks(2),
		at.WithRetries(1),
		at.WithRetryDelay(0),
		at.WithReopenThreshold(0),
		at.WithInitCmds("Z", "+CGMI"))
	err := a.Init(context.Background())
	require.NotNil(t, err)
	assert.Equal(t, at.ErrTimeout, errors.Cause(err))
	assert.Equal(t, []string{"\x1b\r", "ATZ\r", "AT+CGMI\r", "AT+CGMI\r"}, mt.written)
	assert.Equal(t, uint32(2), a.Timeouts())
	assert.Equal(t, 0, mt.reopens)
}

func TestInitCancelled(t *testing.T) {
	a, _ := setupModem(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := a.Init(ctx)
	assert.Equal(t, context.Canceled, err)
}

func TestTransact(t *testing.T) {
	cmdSet := map[string][]string{
		"ATI\r":        {"Manufacturer\r\n", "Model\r\n"},
		"AT+GMR\r":     {"Revision\r\n", "", "\r\nOK\r\n"},
		"AT+CMGS=1\r":  {"\r\n> "},
		"AT+FOO\r":     {"foo\r\n"},
		"AT+CPMS?\r":   {"\r\n+CPMS: \"SM\",1,30,\"SM\",1,30,", "\"SM\",1,30\r\n"},
		"AT+CMS\r":     {"\r\n+CMS ERROR: 304\r\n"},
		"AT+CME\r":     {"\r\n+CME ERROR: 10\r\n"},
		"AT+ERR\r":     {"\r\nERROR\r\n"},
		"AT+CREG?\r":   {"\r\n+CREG: 0,1\r\n\r\nOK\r\n"},
		"AT+CMGS=10\r": {"\r\n+CMS ERROR: 3", "04\r\n"},
		"AT+CPMS=\"SM\"\r": {
			"\r\n+CPMS: \"SM\",1,30,\"SM\",1,30,\"SM\",1,3",
			"0\r\n",
		},
	}
	patterns := []struct {
		name  string
		tx    at.Transaction
		state at.State
		lines []string
		ticks int
		err   error
	}{
		{
			"silent",
			at.Transaction{Command: "AT+NONE\r", TimeoutTicks: 7},
			at.Timeout,
			nil,
			7,
			at.ErrTimeout,
		},
		{
			"quiet",
			at.Transaction{Command: "ATI\r", QuietTicks: 3},
			at.Completed,
			[]string{"Manufacturer", "Model"},
			5,
			nil,
		},
		{
			"final result",
			at.Transaction{Command: "AT+GMR\r"},
			at.Matched,
			[]string{"Revision", "OK"},
			3,
			nil,
		},
		{
			"pattern",
			at.Transaction{Command: "AT+CMGS=1\r", Pattern: regexp.MustCompile(`(>)|(ERROR)`)},
			at.Matched,
			[]string{">"},
			1,
			nil,
		},
		{
			"pattern unmatched",
			at.Transaction{Command: "AT+FOO\r", Pattern: regexp.MustCompile(`bar`), QuietTicks: 2},
			at.Timeout,
			[]string{"foo"},
			3,
			at.ErrTimeout,
		},
		{
			"cpms",
			at.Transaction{Command: "AT+CPMS?\r"},
			at.Completed,
			[]string{"+CPMS: \"SM\",1,30,\"SM\",1,30,\"SM\",1,30"},
			2,
			nil,
		},
		{
			"cms error",
			at.Transaction{Command: "AT+CMS\r"},
			at.ImmediateError,
			[]string{"+CMS ERROR: 304"},
			1,
			at.CMSError("304"),
		},
		{
			"cme error",
			at.Transaction{Command: "AT+CME\r"},
			at.ImmediateError,
			[]string{"+CME ERROR: 10"},
			1,
			at.CMEError("10"),
		},
		{
			"error",
			at.Transaction{Command: "AT+ERR\r"},
			at.ImmediateError,
			[]string{"ERROR"},
			1,
			at.ErrError,
		},
		{
			"solicited creg",
			at.Transaction{Command: "AT+CREG?\r"},
			at.Matched,
			[]string{"+CREG: 0,1", "OK"},
			1,
			nil,
		},
		{
			"split cms error",
			at.Transaction{Command: "AT+CMGS=10\r"},
			at.ImmediateError,
			[]string{"+CMS ERROR: 304"},
			2,
			at.CMSError("304"),
		},
		{
			"split cpms",
			at.Transaction{Command: "AT+CPMS=\"SM\"\r"},
			at.Completed,
			[]string{"+CPMS: \"SM\",1,30,\"SM\",1,30,\"SM\",1,30"},
			2,
			nil,
		},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			a, mt := setupModem(t, cmdSet)
			r, err := a.Transact(context.Background(), p.tx)
			assert.Equal(t, p.err, err)
			require.NotNil(t, r)
			assert.Equal(t, p.state, r.State)
			assert.Equal(t, p.state, a.State())
			assert.Equal(t, p.lines, r.Lines)
			assert.Equal(t, p.ticks, r.Ticks)
			assert.Equal(t, p.ticks, mt.reads)
			assert.Empty(t, mt.pending)
		}
		t.Run(p.name, f)
	}
}

func TestTransactEcho(t *testing.T) {
	cmdSet := map[string][]string{
		"AT+CSQ\r": {"\r\n+CSQ: 20,99\r\n\r\nOK\r\n"},
	}
	a, mt := setupModem(t, cmdSet)
	mt.echo = true
	i, err := a.Command(context.Background(), "+CSQ")
	require.Nil(t, err)
	assert.Equal(t, []string{"+CSQ: 20,99"}, i)
}

func TestTransactNUL(t *testing.T) {
	cmdSet := map[string][]string{
		"AT\r": {"\x00\r\nO\x00K\r\n"},
	}
	a, _ := setupModem(t, cmdSet)
	r, err := a.Transact(context.Background(), at.Transaction{Command: "AT\r"})
	require.Nil(t, err)
	assert.Equal(t, at.Matched, r.State)
	assert.Equal(t, "\r\nOK\r\n", r.Answer)
}

func TestTransactCancelled(t *testing.T) {
	a, mt := setupModem(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := a.Transact(ctx, at.Transaction{Command: "AT\r"})
	assert.Equal(t, context.Canceled, err)
	require.NotNil(t, r)
	assert.Equal(t, at.Idle, r.State)
	assert.Empty(t, mt.written)
}

func TestTransportError(t *testing.T) {
	patterns := []struct {
		name     string
		writeErr error
		readErr  error
		op       string
	}{
		{"write", errors.New("write failed"), nil, "write"},
		{"read", nil, errors.New("read failed"), "read"},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			a, mt := setupModem(t, nil)
			mt.writeErr = p.writeErr
			mt.readErr = p.readErr
			r, err := a.Transact(context.Background(), at.Transaction{Command: "AT\r"})
			require.NotNil(t, err)
			assert.Equal(t, at.ImmediateError, r.State)
			te, ok := errors.Cause(err).(*at.TransportError)
			require.True(t, ok)
			assert.Equal(t, p.op, te.Op)
			assert.True(t, at.IsRetryable(err))
			assert.False(t, at.IsDeviceRejected(err))
		}
		t.Run(p.name, f)
	}
}

func TestCommand(t *testing.T) {
	cmdSet := map[string][]string{
		"AT\r":        {"\r\nOK\r\n"},
		"ATI\r":       {"\r\nModel: Foo\r\nRevision: 1.0\r\n", "\r\nOK\r\n"},
		"AT+CMEE=2\r": {"\r\n+CME ERROR: 3\r\n"},
	}
	patterns := []struct {
		name     string
		cmd      string
		expected []string
		err      error
	}{
		{"empty", "", nil, nil},
		{"info", "I", []string{"Model: Foo", "Revision: 1.0"}, nil},
		{"cme", "+CMEE=2", nil, at.CMEError("3")},
		{"silent", "+NONE", nil, at.ErrTimeout},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			a, _ := setupModem(t, cmdSet)
			info, err := a.Command(context.Background(), p.cmd)
			assert.Equal(t, p.err, err)
			assert.Equal(t, p.expected, info)
		}
		t.Run(p.name, f)
	}
}

func TestSMSCommand(t *testing.T) {
	cmdSet := map[string][]string{
		"AT+CMGS=6\r":       {"\r\n> "},
		"0011000100\x1a":    {"\r\n+CMGS: 42\r\n", "\r\nOK\r\n"},
		"AT+CMGS=7\r":       {"\r\nERROR\r\n"},
		"AT+CMGS=8\r":       {"\r\n> "},
		"0011000100ERR\x1a": {"\r\n+CMS ERROR: 304\r\n"},
		"AT+CMGS=5\r":       {"\r\n+CMS ERROR: 3", "30\r\n"},
	}
	patterns := []struct {
		name     string
		echo     bool
		cmd      string
		sms      string
		expected []string
		err      error
		written  []string
	}{
		{
			"ok",
			false,
			"+CMGS=6",
			"0011000100",
			[]string{"+CMGS: 42"},
			nil,
			[]string{"AT+CMGS=6\r", "0011000100\x1a"},
		},
		{
			"echo",
			true,
			"+CMGS=6",
			"0011000100",
			[]string{"+CMGS: 42"},
			nil,
			[]string{"AT+CMGS=6\r", "0011000100\x1a"},
		},
		{
			"prompt error",
			false,
			"+CMGS=7",
			"0011000100",
			nil,
			at.ErrError,
			[]string{"AT+CMGS=7\r"},
		},
		{
			"pdu error",
			false,
			"+CMGS=8",
			"0011000100ERR",
			nil,
			at.CMSError("304"),
			[]string{"AT+CMGS=8\r", "0011000100ERR\x1a"},
		},
		{
			"split prompt error",
			false,
			"+CMGS=5",
			"0011000100",
			nil,
			at.CMSError("330"),
			[]string{"AT+CMGS=5\r"},
		},
		{
			"no prompt",
			false,
			"+CMGS=9",
			"0011000100",
			nil,
			at.ErrTimeout,
			[]string{"AT+CMGS=9\r", "\x1b"},
		},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			a, mt := setupModem(t, cmdSet)
			mt.echo = p.echo
			info, err := a.SMSCommand(context.Background(), p.cmd, p.sms)
			assert.Equal(t, p.err, err)
			assert.Equal(t, p.expected, info)
			assert.Equal(t, p.written, mt.written)
		}
		t.Run(p.name, f)
	}
}

func TestExpect(t *testing.T) {
	cmdSet := map[string][]string{
		"AT+CMGR=1\r": {"\r\n+CMGR: 0,,23\r\n", "07911326040000F0\r\n", "\r\nOK\r\n"},
	}
	a, _ := setupModem(t, cmdSet)
	r, err := a.Expect(context.Background(), "+CMGR=1",
		regexp.MustCompile(`(?s)(\+CMGR:.*OK)|(ERROR)|(OK)`), 0)
	require.Nil(t, err)
	assert.Equal(t, at.Matched, r.State)
	assert.Equal(t, []string{"+CMGR: 0,,23", "07911326040000F0"}, r.Info())
	assert.Equal(t, 3, r.Ticks)
}

func TestRouted(t *testing.T) {
	cmdSet := map[string][]string{
		"AT+CSQ\r":  {"\r\n+CMT: ,23\r\n07911326040000F0\r\n", "\r\n+CSQ: 20,99\r\n\r\nOK\r\n"},
		"AT+CNMA\r": {"\r\nOK\r\n"},
	}
	var routed []at.Routed
	mt := &mockTransport{cmdSet: cmdSet}
	a := at.New(mt,
		at.WithRoutedHandler(func(r at.Routed) { routed = append(routed, r) }),
		at.WithCNMA(true))
	i, err := a.Command(context.Background(), "+CSQ")
	require.Nil(t, err)
	assert.Equal(t, []string{"+CSQ: 20,99"}, i)
	require.Len(t, routed, 1)
	assert.Equal(t, at.Routed{Header: "+CMT: ,23", PDU: "07911326040000F0"}, routed[0])
	assert.Equal(t, []string{"AT+CSQ\r", "AT+CNMA\r"}, mt.written)

	// status report, split across transactions
	mt.written = nil
	routed = nil
	cmdSet["AT\r"] = []string{"\r\nOK\r\n+CDS: 25\r\n"}
	_, err = a.Command(context.Background(), "")
	require.Nil(t, err)
	assert.Empty(t, routed)
	mt.pending = append(mt.pending, []byte("0006D60B911326880736F4\r\n"))
	err = a.Poll(context.Background())
	require.Nil(t, err)
	require.Len(t, routed, 1)
	assert.Equal(t, at.Routed{StatusReport: true, Header: "+CDS: 25", PDU: "0006D60B911326880736F4"}, routed[0])
	assert.Equal(t, []string{"AT\r", "AT+CNMA\r"}, mt.written)
}

func TestRoutedWithoutPDU(t *testing.T) {
	var routed []at.Routed
	mt := &mockTransport{}
	a := at.New(mt, at.WithRoutedHandler(func(r at.Routed) { routed = append(routed, r) }))
	mt.pending = append(mt.pending, []byte("+CMT: ,23\r\n\"+12345\",145\r\n"))
	err := a.Poll(context.Background())
	require.Nil(t, err)
	assert.Empty(t, routed)
	assert.Empty(t, mt.written)
}

func TestIncomingCall(t *testing.T) {
	patterns := []struct {
		name    string
		options []at.Option
		input   string
		calls   []at.Call
		written []string
	}{
		{
			"ring",
			nil,
			"\r\nRING\r\n",
			nil,
			[]string{"AT+CHUP\r"},
		},
		{
			"clip",
			nil,
			"\r\nRING\r\n\r\n+CLIP: \"+358401234567\",145,,,,0\r\n",
			[]at.Call{{Number: "358401234567", Type: 145}},
			[]string{"AT+CHUP\r"},
		},
		{
			"ath",
			[]at.Option{at.WithHangup("ATH")},
			"\r\nRING\r\n",
			nil,
			[]string{"ATH\r"},
		},
		{
			"no hangup",
			[]at.Option{at.WithHangup("")},
			"\r\n+CLIP: \"0401234567\",129\r\n",
			[]at.Call{{Number: "0401234567", Type: 129}},
			nil,
		},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			var calls []at.Call
			mt := &mockTransport{cmdSet: map[string][]string{
				"AT+CHUP\r": {"\r\nOK\r\n"},
			}}
			options := append([]at.Option{
				at.WithCallHandler(func(c at.Call) { calls = append(calls, c) }),
			}, p.options...)
			a := at.New(mt, options...)
			mt.pending = append(mt.pending, []byte(p.input))
			err := a.Poll(context.Background())
			require.Nil(t, err)
			assert.Equal(t, p.calls, calls)
			assert.Equal(t, p.written, mt.written)
		}
		t.Run(p.name, f)
	}
}

func TestDetectUnsolicited(t *testing.T) {
	cmdSet := map[string][]string{
		"AT\r":      {"\r\nOK\r\n"},
		"AT+CHUP\r": {"\r\nOK\r\n"},
	}
	mt := &mockTransport{cmdSet: cmdSet}
	logger, hook := test.NewNullLogger()
	a := at.New(mt, at.WithDetectUnsolicited(true), at.WithLogger(logger))
	mt.pending = append(mt.pending, []byte("\r\nRING\r\n"), []byte("\r\n+CMTI: \"SM\",3\r\nstray\r\n"))
	r, err := a.Transact(context.Background(), at.Transaction{Command: "AT\r"})
	require.Nil(t, err)
	assert.Equal(t, []string{"OK"}, r.Lines)
	assert.Equal(t, 1, r.Ticks)
	assert.Equal(t, []string{"AT\r", "AT+CHUP\r"}, mt.written)
	var unexpected []string
	for _, e := range hook.AllEntries() {
		if e.Message == "unexpected input" {
			unexpected = append(unexpected, e.Data["line"].(string))
		}
	}
	assert.Equal(t, []string{"stray"}, unexpected)
}

func TestAddIndication(t *testing.T) {
	a, mt := setupModem(t, nil)
	var got [][]string
	handler := func(info []string) { got = append(got, info) }

	err := a.AddIndication("notify:", handler)
	assert.Nil(t, err)
	mt.pending = append(mt.pending, []byte("notify: :yfiton\r\n"))
	err = a.Poll(context.Background())
	require.Nil(t, err)
	assert.Equal(t, [][]string{{"notify: :yfiton"}}, got)

	err = a.AddIndication("notify:", handler)
	assert.Equal(t, at.ErrIndicationExists, err)

	got = nil
	err = a.AddIndication("foo:", handler, at.WithTrailingLines(2))
	assert.Nil(t, err)
	mt.pending = append(mt.pending, []byte("foo:\r\nbar\r\n"), []byte("baz\r\n"))
	err = a.Poll(context.Background())
	require.Nil(t, err)
	assert.Equal(t, [][]string{{"foo:", "bar", "baz"}}, got)

	// user indications override builtins
	got = nil
	err = a.AddIndication("RING", handler)
	assert.Nil(t, err)
	mt.pending = append(mt.pending, []byte("RING\r\n"))
	err = a.Poll(context.Background())
	require.Nil(t, err)
	assert.Equal(t, [][]string{{"RING"}}, got)
	assert.Empty(t, mt.written)
}

func TestWithIndication(t *testing.T) {
	var got [][]string
	mt := &mockTransport{cmdSet: map[string][]string{
		"AT+CUSD=1\r": {"\r\nOK\r\n\r\n+CUSD: 0,\"Balance\",15\r\n"},
	}}
	a := at.New(mt, at.WithIndication("+CUSD:", func(info []string) { got = append(got, info) }))
	_, err := a.Command(context.Background(), "+CUSD=1")
	require.Nil(t, err)
	// solicited by the command so left in the answer
	assert.Empty(t, got)
	mt.pending = append(mt.pending, []byte("\r\n+CUSD: 0,\"Balance\",15\r\n"))
	err = a.Poll(context.Background())
	require.Nil(t, err)
	assert.Equal(t, [][]string{{"+CUSD: 0,\"Balance\",15"}}, got)
}

func TestCancelIndication(t *testing.T) {
	a, mt := setupModem(t, nil)
	var got [][]string
	err := a.AddIndication("notify:", func(info []string) { got = append(got, info) })
	require.Nil(t, err)
	a.CancelIndication("notify:")
	mt.pending = append(mt.pending, []byte("notify: :yfiton\r\n"))
	err = a.Poll(context.Background())
	require.Nil(t, err)
	assert.Empty(t, got)
	// can be re-added once cancelled
	err = a.AddIndication("notify:", func(info []string) {})
	assert.Nil(t, err)
	// for coverage of cancel of unknown
	a.CancelIndication("foo")
}

func TestTelnet(t *testing.T) {
	cmdSet := map[string][]string{
		"AT\r": {"\r\nOK\r\n"},
	}
	mt := &mockTransport{cmdSet: cmdSet}
	a := at.New(mt, at.WithTelnet(at.Telnet{Login: "user", Password: "secret"}))
	mt.pending = append(mt.pending,
		[]byte{255, 253, 1, 255, 251, 3},
		[]byte("\r\nlogin: "),
		[]byte("\r\nPassword: "))
	// negotiation only reads are empty
	for i := 0; i < 2; i++ {
		err := a.Poll(context.Background())
		require.Nil(t, err)
	}
	assert.Equal(t, []string{
		string([]byte{255, 252, 1, 255, 254, 3}),
		"user\n",
		"secret\n",
	}, mt.written)

	mt.written = nil
	r, err := a.Transact(context.Background(), at.Transaction{Command: "AT\r"})
	require.Nil(t, err)
	assert.Equal(t, at.Matched, r.State)
	assert.Equal(t, []string{"AT\r"}, mt.written)
}

func TestRetry(t *testing.T) {
	patterns := []struct {
		name    string
		errs    []error
		calls   int
		reopens int
		err     error
	}{
		{"ok", nil, 1, 0, nil},
		{"recovers", []error{at.ErrTimeout}, 2, 0, nil},
		{"rejected", []error{at.ErrError}, 1, 0, at.ErrError},
		{"threshold", []error{at.ErrTimeout, at.ErrTimeout}, 3, 1, nil},
		{"exhausted", []error{at.ErrTimeout, at.ErrTimeout, at.ErrTimeout, at.ErrTimeout}, 4, 2, at.ErrTimeout},
		{"transport", []error{&at.TransportError{Op: "read", Err: errors.New("EOF")}}, 2, 1, nil},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			mt := &mockTransport{}
			a := at.New(mt,
				at.WithRetries(3),
				at.WithRetryDelay(time.Millisecond),
				at.WithReopenThreshold(2),
				at.WithLogger(nullLogger()))
			calls := 0
			err := a.Retry(context.Background(), func() error {
				calls++
				if calls <= len(p.errs) {
					return p.errs[calls-1]
				}
				return nil
			})
			assert.Equal(t, p.err, errors.Cause(err))
			assert.Equal(t, p.calls, calls)
			assert.Equal(t, p.reopens, mt.reopens)
			assert.Equal(t, uint32(p.reopens), a.Reopens())
		}
		t.Run(p.name, f)
	}
}

func TestRetryCancelled(t *testing.T) {
	mt := &mockTransport{}
	a := at.New(mt, at.WithRetryDelay(time.Hour), at.WithLogger(nullLogger()))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := a.Retry(ctx, func() error { return at.ErrTimeout })
	assert.Equal(t, context.DeadlineExceeded, err)
}

func TestReopen(t *testing.T) {
	mt := &mockTransport{reopenErrs: []error{errors.New("busy"), errors.New("busy")}}
	a := at.New(mt,
		at.WithReopenBackoff(time.Millisecond, 2*time.Millisecond),
		at.WithLogger(nullLogger()))
	err := a.Reopen(context.Background())
	require.Nil(t, err)
	assert.Equal(t, 3, mt.reopens)
	assert.Equal(t, uint32(1), a.Reopens())
}

func TestReopenCancelled(t *testing.T) {
	mt := &mockTransport{reopenErr: errors.New("no device")}
	a := at.New(mt,
		at.WithReopenBackoff(time.Millisecond, 2*time.Millisecond),
		at.WithLogger(nullLogger()))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := a.Reopen(ctx)
	require.NotNil(t, err)
	te, ok := err.(*at.TransportError)
	require.True(t, ok)
	assert.Equal(t, "reopen", te.Op)
	assert.Equal(t, uint32(0), a.Reopens())
}

func TestCMEError(t *testing.T) {
	patterns := []string{"1", "204", "42"}
	for _, p := range patterns {
		f := func(t *testing.T) {
			err := at.CMEError(p)
			expected := fmt.Sprintf("CME Error: %s", string(err))
			assert.Equal(t, expected, err.Error())
		}
		t.Run(fmt.Sprintf("%x", p), f)
	}
}

func TestCMSError(t *testing.T) {
	patterns := []string{"1", "204", "42"}
	for _, p := range patterns {
		f := func(t *testing.T) {
			err := at.CMSError(p)
			expected := fmt.Sprintf("CMS Error: %s", string(err))
			assert.Equal(t, expected, err.Error())
		}
		t.Run(fmt.Sprintf("%x", p), f)
	}
}

func TestExplain(t *testing.T) {
	patterns := []struct {
		name     string
		err      error
		expected string
	}{
		{"cme", at.CMEError("10"), "SIM not inserted"},
		{"cms", at.CMSError("304"), "Invalid PDU mode parameter"},
		{"wrapped", errors.Wrap(at.CMSError("42"), "send"), "Congestion"},
		{"textual", at.CMEError("SIM busy"), ""},
		{"unknown", at.CMSError("9999"), ""},
		{"other", at.ErrError, ""},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			assert.Equal(t, p.expected, at.Explain(p.err))
		}
		t.Run(p.name, f)
	}
}

func TestErrorClass(t *testing.T) {
	patterns := []struct {
		name      string
		err       error
		retryable bool
		rejected  bool
	}{
		{"timeout", at.ErrTimeout, true, false},
		{"wrapped timeout", errors.Wrap(at.ErrTimeout, "cmd"), true, false},
		{"transport", &at.TransportError{Op: "write", Err: errors.New("EIO")}, true, false},
		{"error", at.ErrError, false, true},
		{"cme", at.CMEError("3"), false, true},
		{"cms", errors.Wrap(at.CMSError("500"), "send"), false, true},
		{"other", errors.New("other"), false, false},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			assert.Equal(t, p.retryable, at.IsRetryable(p.err))
			assert.Equal(t, p.rejected, at.IsDeviceRejected(p.err))
		}
		t.Run(p.name, f)
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	inner := errors.New("EIO")
	err := &at.TransportError{Op: "write", Err: inner}
	assert.Equal(t, "write: EIO", err.Error())
	assert.Equal(t, inner, err.Unwrap())
}

// mockTransport provides the responses in cmdSet, one read per entry,
// after the corresponding command is written.
type mockTransport struct {
	cmdSet     map[string][]string
	echo       bool
	writeErr   error
	readErr    error
	reopenErr  error
	reopenErrs []error
	// reads pending, one per ReadAvailable
	pending [][]byte
	written []string
	reads   int
	reopens int
}

func (m *mockTransport) Write(b []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, string(b))
	if m.echo {
		m.pending = append(m.pending, append([]byte(nil), b...))
	}
	for _, r := range m.cmdSet[string(b)] {
		m.pending = append(m.pending, []byte(r))
	}
	return nil
}

func (m *mockTransport) ReadAvailable(timeout time.Duration) ([]byte, error) {
	m.reads++
	if m.readErr != nil {
		return nil, m.readErr
	}
	if len(m.pending) == 0 {
		return nil, nil
	}
	b := m.pending[0]
	m.pending = m.pending[1:]
	return b, nil
}

func (m *mockTransport) Reopen() error {
	m.reopens++
	if m.reopenErr != nil {
		return m.reopenErr
	}
	if len(m.reopenErrs) > 0 {
		err := m.reopenErrs[0]
		m.reopenErrs = m.reopenErrs[1:]
		return err
	}
	m.pending = nil
	return nil
}

func nullLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func setupModem(t *testing.T, cmdSet map[string][]string) (*at.AT, *mockTransport) {
	mt := &mockTransport{cmdSet: cmdSet}
	var tr at.Transport = mt
	debug := false // set to true to enable tracing of the flow to the mockTransport.
	if debug {
		tr = trace.New(tr)
	}
	a := at.New(tr, at.WithLogger(nullLogger()))
	require.NotNil(t, a)
	return a, mt
}
