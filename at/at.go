// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// Package at provides a low level driver for AT modems.
package at

import (
	"bufio"
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/looplab/fsm"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// AT represents a modem that can be managed using AT commands.
//
// Commands are issued to the modem as transactions, each of which writes a
// command and polls the transport in fixed ticks until the answer is
// complete, a final error is received, or the tick budget is exhausted.
//
// Unsolicited input received while a transaction is in progress, such as a
// routed SMS or an incoming call, is removed from the answer and passed to
// the registered indication handlers.
//
// An AT is not safe for concurrent use. Each modem is expected to be driven
// by a single worker.
type AT struct {
	// the underlying modem
	t Transport

	log logrus.FieldLogger

	// transaction state
	sm *fsm.FSM

	// the duration of a single read
	tick time.Duration

	// default transaction budgets, in ticks
	timeoutTicks    int
	quietTicks      int
	smsTimeoutTicks int

	// the minimum time between an escape and the subsequent command
	escTime time.Duration

	// retry policy for Retry
	retries         int
	retryDelay      time.Duration
	reopenThreshold int
	reopenBackoff   backoff.Backoff

	// drain and dispatch unsolicited input before each transaction
	detect bool

	// indications mapped by prefix, user indications override builtins
	inds     map[string]indication
	builtins map[string]indication

	routed RoutedHandler
	call   CallHandler
	hangup string
	cnma   bool

	// commands issued after the current transaction completes
	followUps []string

	// incomplete indication carried over to the next transaction
	carry string

	telnet *telnetFilter

	// commands issued by Init.
	initCmds []string

	// consecutive retryable failures
	failures *atomic.Uint32
	timeouts *atomic.Uint32
	reopens  *atomic.Uint32
}

// Option is a construction option for an AT.
type Option func(*AT)

// Routed is an SMS or status report routed directly to the terminal,
// rather than being stored by the modem.
type Routed struct {
	// StatusReport is set for a +CDS status report, else the PDU is a +CMT
	// SMS-DELIVER.
	StatusReport bool

	// Header is the indication line preceding the PDU.
	Header string

	// PDU is the hex encoded PDU.
	PDU string
}

// RoutedHandler receives routed messages.
type RoutedHandler func(Routed)

// Call identifies the caller of an incoming call.
type Call struct {
	Number string
	Type   int
}

// CallHandler receives the caller identification of incoming calls.
type CallHandler func(Call)

// New creates a new AT modem.
func New(t Transport, options ...Option) *AT {
	a := &AT{
		t:               t,
		log:             logrus.StandardLogger(),
		tick:            100 * time.Millisecond,
		timeoutTicks:    100,
		quietTicks:      10,
		smsTimeoutTicks: 600,
		escTime:         20 * time.Millisecond,
		retries:         2,
		retryDelay:      time.Second,
		reopenThreshold: 3,
		reopenBackoff: backoff.Backoff{
			Min:    time.Second,
			Max:    5 * time.Minute,
			Factor: 2,
		},
		inds:     make(map[string]indication),
		builtins: make(map[string]indication),
		hangup:   "AT+CHUP",
		failures: atomic.NewUint32(0),
		timeouts: atomic.NewUint32(0),
		reopens:  atomic.NewUint32(0),
	}
	for _, option := range options {
		option(a)
	}
	if a.initCmds == nil {
		a.initCmds = []string{
			"Z",       // reset to factory defaults (also clears the escape from the rx buffer)
			"E0",      // no echo
			"+CMEE=1", // numeric error codes
		}
	}
	a.sm = newStateMachine(a.log)
	a.addBuiltin("+CMT:", a.onRouted(false), WithTrailingLine)
	a.addBuiltin("+CDS:", a.onRouted(true), WithTrailingLine)
	a.addBuiltin("RING", a.onRing)
	a.addBuiltin("+CLIP:", a.onCLIP)
	for _, prefix := range []string{"+CMTI:", "+CDSI:", "+CREG:"} {
		a.addBuiltin(prefix, a.onIgnored)
	}
	return a
}

const (
	sub = "\x1a"
	esc = 0x1b
)

// WithLogger sets the logger for the modem.
//
// The default is the logrus standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *AT) {
		a.log = l
	}
}

// WithTick sets the duration of a single read from the transport.
//
// The default tick is 100msec.
func WithTick(d time.Duration) Option {
	return func(a *AT) {
		a.tick = d
	}
}

// WithTimeoutTicks sets the default number of ticks a transaction waits for
// an answer.
//
// The default is 100 ticks.
func WithTimeoutTicks(n int) Option {
	return func(a *AT) {
		a.timeoutTicks = n
	}
}

// WithQuietTicks sets the default number of consecutive empty ticks, after
// some of the answer has been received, that ends a transaction.
//
// The default is 10 ticks.
func WithQuietTicks(n int) Option {
	return func(a *AT) {
		a.quietTicks = n
	}
}

// WithSMSTimeoutTicks sets the number of ticks to wait for the modem to
// accept the PDU of an SMS command.
//
// The default is 600 ticks.
func WithSMSTimeoutTicks(n int) Option {
	return func(a *AT) {
		a.smsTimeoutTicks = n
	}
}

// WithEscTime sets the guard time for the modem.
//
// The escape time is the minimum time between an escape command being sent to
// the modem and any subsequent commands.
//
// The default guard time is 20msec.
func WithEscTime(d time.Duration) Option {
	return func(a *AT) {
		a.escTime = d
	}
}

// WithRetries sets the number of times Retry repeats an operation that
// failed due to a timeout or transport failure.
//
// The default is 2.
func WithRetries(n int) Option {
	return func(a *AT) {
		a.retries = n
	}
}

// WithRetryDelay sets the delay between retries.
//
// The default is 1 second.
func WithRetryDelay(d time.Duration) Option {
	return func(a *AT) {
		a.retryDelay = d
	}
}

// WithReopenThreshold sets the number of consecutive timeouts after which
// the modem is considered unresponsive and the transport is reopened.
//
// The default is 3.
func WithReopenThreshold(n int) Option {
	return func(a *AT) {
		a.reopenThreshold = n
	}
}

// WithReopenBackoff sets the bounds of the delay between failed attempts to
// reopen the transport.
//
// The default is 1 second doubling up to 5 minutes.
func WithReopenBackoff(min, max time.Duration) Option {
	return func(a *AT) {
		a.reopenBackoff.Min = min
		a.reopenBackoff.Max = max
	}
}

// WithDetectUnsolicited enables the draining of any pending input before
// each transaction, so unsolicited input is dispatched rather than being
// mixed into the answer.
func WithDetectUnsolicited(enable bool) Option {
	return func(a *AT) {
		a.detect = enable
	}
}

// WithRoutedHandler sets the handler for messages routed directly to the
// terminal via +CMT and +CDS indications.
func WithRoutedHandler(h RoutedHandler) Option {
	return func(a *AT) {
		a.routed = h
	}
}

// WithCNMA enables the acknowledgement of routed messages using AT+CNMA.
func WithCNMA(enable bool) Option {
	return func(a *AT) {
		a.cnma = enable
	}
}

// WithCallHandler sets the handler for caller identification of incoming
// calls.
func WithCallHandler(h CallHandler) Option {
	return func(a *AT) {
		a.call = h
	}
}

// WithHangup sets the command used to reject incoming calls.
//
// The default is AT+CHUP. An empty command leaves incoming calls ringing.
func WithHangup(cmd string) Option {
	return func(a *AT) {
		a.hangup = cmd
	}
}

// WithTelnet enables the handling of telnet negotiation and login for modems
// reached via a telnet server.
func WithTelnet(cfg Telnet) Option {
	return func(a *AT) {
		a.telnet = newTelnetFilter(cfg)
	}
}

// InfoHandler receives indication info.
type InfoHandler func([]string)

// WithIndication adds an indication during construction.
func WithIndication(prefix string, handler InfoHandler, options ...IndicationOption) Option {
	ind := newIndication(prefix, handler, options...)
	return func(a *AT) {
		a.inds[prefix] = ind
	}
}

// WithInitCmds specifies the commands issued by Init.
//
// The default commands are ATZ, ATE0 and AT+CMEE=1.
func WithInitCmds(cmds ...string) Option {
	return func(a *AT) {
		a.initCmds = cmds
	}
}

// State returns the state of the most recent transaction.
func (a *AT) State() State {
	return State(a.sm.Current())
}

// Timeouts returns the number of transactions that have timed out.
func (a *AT) Timeouts() uint32 {
	return a.timeouts.Load()
}

// Reopens returns the number of times the transport has been reopened.
func (a *AT) Reopens() uint32 {
	return a.reopens.Load()
}

// AddIndication adds a handler for a set of lines beginning with the prefixed
// line and the following trailing lines.
func (a *AT) AddIndication(prefix string, handler InfoHandler, options ...IndicationOption) error {
	if _, ok := a.inds[prefix]; ok {
		return ErrIndicationExists
	}
	a.inds[prefix] = newIndication(prefix, handler, options...)
	return nil
}

// CancelIndication removes any indication corresponding to the prefix.
func (a *AT) CancelIndication(prefix string) {
	delete(a.inds, prefix)
}

// Transact performs a transaction with the modem.
//
// The returned Result is always populated, even when an error is returned.
// The error is ErrTimeout if the transaction timed out, a *TransportError if
// the transport failed, or the error corresponding to a final error line
// from the modem.
//
// Once the command has been written the transaction runs to completion,
// irrespective of the context.
func (a *AT) Transact(ctx context.Context, t Transaction) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return &Result{State: Idle}, err
	}
	if a.detect {
		if err := a.drain(); err != nil {
			return &Result{State: ImmediateError}, err
		}
	}
	r, err := a.run(ctx, t)
	a.runFollowUps(ctx)
	return r, err
}

// Poll collects any pending unsolicited input and dispatches it to the
// indication handlers.
func (a *AT) Poll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := a.drain()
	a.runFollowUps(ctx)
	return err
}

// Command issues the command to the modem and returns the result.
//
// The command should NOT include the AT prefix, nor <CR> suffix which is
// automatically added.
//
// The return value includes the info (the lines returned by the modem between
// the command and the status line), or an error if the command did not
// complete successfully.
func (a *AT) Command(ctx context.Context, cmd string) ([]string, error) {
	r, err := a.Transact(ctx, Transaction{Command: "AT" + cmd + "\r"})
	if err != nil {
		return r.Info(), err
	}
	return r.Info(), nil
}

// Expect issues the command to the modem and waits for the answer to match
// the pattern.
//
// A zero timeout selects the default.
func (a *AT) Expect(ctx context.Context, cmd string, pattern *regexp.Regexp, timeoutTicks int) (*Result, error) {
	return a.Transact(ctx, Transaction{
		Command:      "AT" + cmd + "\r",
		Pattern:      pattern,
		TimeoutTicks: timeoutTicks,
	})
}

var smsPrompt = regexp.MustCompile(`(>)|(ERROR.*\n)`)

// SMSCommand issues an SMS command to the modem, and returns the result.
//
// An SMS command is issued in two steps; first the command line:
//
//   AT<command><CR>
//
// which the modem responds to with a ">" prompt, after which the SMS PDU is
// sent to the modem:
//
//   <sms><Ctrl-Z>
//
// The modem then completes the command as per other commands, such as those
// issued by Command.
func (a *AT) SMSCommand(ctx context.Context, cmd string, sms string) ([]string, error) {
	r, err := a.Transact(ctx, Transaction{
		Command: "AT" + cmd + "\r",
		Pattern: smsPrompt,
	})
	if err != nil {
		if r.State == Timeout {
			// cancel the outstanding prompt
			a.escape()
		}
		return r.Info(), err
	}
	r, err = a.Transact(ctx, Transaction{
		Command:      sms + sub,
		TimeoutTicks: a.smsTimeoutTicks,
	})
	if err != nil {
		return r.Info(), err
	}
	return r.Info(), nil
}

// Init initialises the modem by escaping any outstanding SMS commands
// and resetting the modem to factory defaults.
//
// The Init is intended to be called after creation and before any other commands
// are issued in order to get the modem into a known state.
//
// The default init commands can be overridden by the cmds parameter.
// Each command is retried as per Retry.
func (a *AT) Init(ctx context.Context, cmds ...string) error {
	// escape any outstanding SMS operations then CR to flush the command
	// buffer
	a.escape('\r')
	if err := sleep(ctx, a.escTime); err != nil {
		return err
	}
	if err := a.drain(); err != nil {
		return err
	}
	if cmds == nil {
		cmds = a.initCmds
	}
	for _, cmd := range cmds {
		err := a.Retry(ctx, func() error {
			_, err := a.Command(ctx, cmd)
			return err
		})
		switch errors.Cause(err) {
		case nil:
		case context.DeadlineExceeded, context.Canceled:
			return err
		default:
			return errors.Wrapf(err, "AT%s returned error", cmd)
		}
	}
	return nil
}

// Retry performs the operation, repeating it if it fails due to a timeout or
// transport failure.
//
// A transport failure, or a run of consecutive timeouts reaching the reopen
// threshold, causes the transport to be reopened before the next attempt.
// Explicit rejections by the modem are returned immediately.
func (a *AT) Retry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt <= a.retries; attempt++ {
		if attempt > 0 {
			if serr := sleep(ctx, a.retryDelay); serr != nil {
				return serr
			}
		}
		err = op()
		if err == nil {
			a.failures.Store(0)
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		failures := a.failures.Inc()
		_, broken := errors.Cause(err).(*TransportError)
		a.log.WithFields(logrus.Fields{
			"attempt":  attempt + 1,
			"failures": failures,
		}).WithError(err).Warn("modem not responding")
		if broken || (a.reopenThreshold > 0 && int(failures) >= a.reopenThreshold) {
			if rerr := a.Reopen(ctx); rerr != nil {
				return rerr
			}
		}
	}
	return err
}

// Reopen closes and reopens the transport.
//
// Failed attempts are repeated, with an increasing delay between attempts,
// until the transport is reopened or the context is done.
func (a *AT) Reopen(ctx context.Context) error {
	for {
		err := a.t.Reopen()
		if err == nil {
			break
		}
		d := a.reopenBackoff.Duration()
		a.log.WithError(err).WithField("delay", d).Warn("reopen failed")
		if serr := sleep(ctx, d); serr != nil {
			return &TransportError{Op: "reopen", Err: err}
		}
	}
	a.reopenBackoff.Reset()
	a.failures.Store(0)
	a.reopens.Inc()
	a.carry = ""
	a.followUps = nil
	if a.telnet != nil {
		a.telnet.reset()
	}
	a.log.Info("modem reopened")
	return nil
}

// run performs a transaction, without any pre or post processing.
func (a *AT) run(ctx context.Context, t Transaction) (*Result, error) {
	cmdID, sms := classify(t.Command)
	r := &Result{}
	a.sm.SetState(string(Idle))
	a.fire(ctx, evSend)
	if t.Command != "" {
		a.log.WithField("cmd", strings.TrimSpace(t.Command)).Debug("->")
		if err := a.t.Write([]byte(t.Command)); err != nil {
			r.State = a.fire(ctx, evFail)
			return r, &TransportError{Op: "write", Err: err}
		}
	}
	a.fire(ctx, evSent)
	timeout := t.TimeoutTicks
	if timeout <= 0 {
		timeout = a.timeoutTicks
	}
	quiet := t.QuietTicks
	if quiet <= 0 {
		quiet = a.quietTicks
	}
	pattern := t.Pattern
	if pattern == nil {
		pattern = finalResult
	}
	var answer strings.Builder
	idle := 0
	ev := evExpire
	for r.Ticks < timeout {
		b, err := a.read()
		r.Ticks++
		if err != nil {
			r.Answer = answer.String()
			r.State = a.fire(ctx, evFail)
			return r, &TransportError{Op: "read", Err: err}
		}
		if len(b) == 0 {
			if answer.Len() == 0 {
				continue
			}
			idle++
			if idle < quiet {
				continue
			}
			if t.Pattern == nil {
				ev = evQuiet
			}
			break
		}
		idle = 0
		answer.Write(b)
		s := answer.String()
		complete := lineComplete(s)
		if (complete || t.Pattern != nil) && pattern.MatchString(s) {
			ev = evMatch
			break
		}
		if complete && cpmsComplete(s) {
			ev = evQuiet
			break
		}
	}
	r.Answer = answer.String()
	a.log.WithFields(logrus.Fields{
		"answer": r.Answer,
		"ticks":  r.Ticks,
	}).Debug("<-")
	r.Lines = a.scan(r.Answer, cmdID, sms)
	if ev == evExpire {
		r.State = a.fire(ctx, evExpire)
		a.timeouts.Inc()
		return r, ErrTimeout
	}
	for _, l := range r.Lines {
		if parseRxLine(l, cmdID) == rxlStatusError {
			r.State = a.fire(ctx, evFail)
			return r, newError(l)
		}
	}
	r.State = a.fire(ctx, ev)
	return r, nil
}

// fire triggers the event and returns the resulting state.
func (a *AT) fire(ctx context.Context, ev string) State {
	if err := a.sm.Event(ctx, ev); err != nil {
		a.log.WithError(err).WithField("event", ev).Debug("transaction")
	}
	return State(a.sm.Current())
}

// classify returns the command identifier of an AT command, or the PDU of
// an SMS payload.
func classify(cmd string) (cmdID string, sms string) {
	if strings.HasSuffix(cmd, sub) {
		return "", strings.TrimSuffix(cmd, sub)
	}
	c := strings.TrimSpace(cmd)
	if len(c) >= 2 && strings.EqualFold(c[:2], "AT") {
		return parseCmdID(c[2:]), ""
	}
	return "", ""
}

// read performs a single tick read from the transport, removing any telnet
// negotiation and NULs.
func (a *AT) read() ([]byte, error) {
	b, err := a.t.ReadAvailable(a.tick)
	if err != nil {
		return nil, err
	}
	if a.telnet != nil {
		data, reply := a.telnet.filter(b)
		if len(reply) > 0 {
			if err := a.t.Write(reply); err != nil {
				return nil, err
			}
		}
		return data, nil
	}
	if len(b) == 0 {
		return b, nil
	}
	data := make([]byte, 0, len(b))
	for _, c := range b {
		if c != 0 {
			data = append(data, c)
		}
	}
	return data, nil
}

// drain reads any pending input and dispatches any indications it contains.
func (a *AT) drain() error {
	var buf []byte
	for i := 0; i < a.timeoutTicks; i++ {
		b, err := a.read()
		if err != nil {
			return &TransportError{Op: "read", Err: err}
		}
		if len(b) == 0 {
			break
		}
		buf = append(buf, b...)
	}
	if len(buf) == 0 && a.carry == "" {
		return nil
	}
	for _, l := range a.scan(string(buf), "", "") {
		a.log.WithField("line", l).Info("unexpected input")
	}
	return nil
}

// scan splits the answer into lines, removing blank lines, echoes and
// indications.
//
// Indications are dispatched to their handlers. An indication missing its
// trailing lines is carried over to the next scan.
func (a *AT) scan(answer string, cmdID string, sms string) []string {
	text := a.carry + answer
	a.carry = ""
	var all []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Split(scanLines)
	for scanner.Scan() {
		if l := strings.TrimSpace(scanner.Text()); l != "" {
			all = append(all, l)
		}
	}
	var lines []string
	for i := 0; i < len(all); i++ {
		l := all[i]
		if cmdID != "" && parseRxLine(l, cmdID) == rxlEchoCmdLine {
			continue
		}
		if sms != "" && strings.HasPrefix(l, sms) {
			// swallow echoed SMS PDU
			continue
		}
		ind, ok := a.indication(l, cmdID)
		if !ok {
			lines = append(lines, l)
			continue
		}
		if i+ind.lines > len(all) {
			a.carry = strings.Join(all[i:], "\r\n") + "\r\n"
			break
		}
		info := make([]string, ind.lines)
		copy(info, all[i:i+ind.lines])
		ind.handler(info)
		i += ind.lines - 1
	}
	return lines
}

// indication returns the indication matching the line, if the line is not
// part of the answer to the command.
func (a *AT) indication(line string, cmdID string) (indication, bool) {
	var match indication
	found := false
	for _, inds := range []map[string]indication{a.inds, a.builtins} {
		for prefix, ind := range inds {
			if !strings.HasPrefix(line, prefix) || len(prefix) <= len(match.prefix) {
				continue
			}
			if cmdID != "" && strings.TrimSuffix(prefix, ":") == cmdID {
				continue
			}
			match = ind
			found = true
		}
		if found {
			return match, true
		}
	}
	return match, false
}

func (a *AT) addBuiltin(prefix string, handler InfoHandler, options ...IndicationOption) {
	a.builtins[prefix] = newIndication(prefix, handler, options...)
}

// queue adds a command to be issued after the current transaction, unless it
// is already queued.
func (a *AT) queue(cmd string) {
	for _, c := range a.followUps {
		if c == cmd {
			return
		}
	}
	a.followUps = append(a.followUps, cmd)
}

const followUpTicks = 5

func (a *AT) runFollowUps(ctx context.Context) {
	for len(a.followUps) > 0 {
		cmd := a.followUps[0]
		a.followUps = a.followUps[1:]
		r, err := a.run(ctx, Transaction{
			Command:      cmd,
			TimeoutTicks: followUpTicks,
			QuietTicks:   1,
		})
		if err != nil && r.State != Timeout {
			a.log.WithError(err).WithField("cmd", strings.TrimSpace(cmd)).Warn("follow-up failed")
		}
	}
}

func (a *AT) onRouted(report bool) InfoHandler {
	return func(info []string) {
		pdu := info[1]
		if strings.Contains(pdu, ",") {
			a.log.WithField("line", pdu).Warn("routed message without PDU")
			return
		}
		if a.routed != nil {
			a.routed(Routed{StatusReport: report, Header: info[0], PDU: pdu})
		} else {
			a.log.WithField("header", info[0]).Warn("routed message dropped")
		}
		if a.cnma {
			a.queue("AT+CNMA\r")
		}
	}
}

func (a *AT) onRing(info []string) {
	a.log.Info("incoming call")
	a.queueHangup()
}

func (a *AT) onCLIP(info []string) {
	c, ok := parseCLIP(info[0])
	if !ok {
		a.log.WithField("line", info[0]).Warn("malformed caller identification")
		return
	}
	a.log.WithFields(logrus.Fields{
		"number": c.Number,
		"type":   c.Type,
	}).Info("incoming call")
	if a.call != nil {
		a.call(c)
	}
	a.queueHangup()
}

func (a *AT) onIgnored(info []string) {
	a.log.WithField("line", info[0]).Debug("indication ignored")
}

func (a *AT) queueHangup() {
	if a.hangup != "" {
		a.queue(a.hangup + "\r")
	}
}

// parseCLIP parses the number and type from a +CLIP indication,
// e.g. +CLIP: "+358401234567",145,,,,0
func parseCLIP(line string) (Call, bool) {
	start := strings.Index(line, "\"")
	if start < 0 {
		return Call{}, false
	}
	end := strings.Index(line[start+1:], "\"")
	if end < 0 {
		return Call{}, false
	}
	c := Call{Number: strings.TrimPrefix(line[start+1:start+1+end], "+")}
	rest := line[start+end+2:]
	if strings.HasPrefix(rest, ",") {
		f := strings.SplitN(rest[1:], ",", 2)
		c.Type, _ = strconv.Atoi(strings.TrimSpace(f[0]))
	}
	return c, true
}

// issue an escape command
func (a *AT) escape(b ...byte) {
	cmd := append([]byte{esc}, b...)
	if err := a.t.Write(cmd); err != nil {
		a.log.WithError(err).Debug("escape failed")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Received line types.
type rxl int

const (
	rxlUnknown rxl = iota
	rxlEchoCmdLine
	rxlInfo
	rxlStatusOK
	rxlStatusError
	rxlSMSPrompt
)

// indication represents an unsolicited result code (URC) from the modem, such
// as a received SMS message.
//
// Indications are lines prefixed with a particular pattern, and may include a
// number of trailing lines. The matching lines are bundled into a slice and
// sent to the handler.
type indication struct {
	prefix  string
	lines   int
	handler InfoHandler
}

func newIndication(prefix string, handler InfoHandler, options ...IndicationOption) indication {
	ind := indication{
		prefix:  prefix,
		handler: handler,
		lines:   1,
	}
	for _, option := range options {
		option(&ind)
	}
	return ind
}

// IndicationOption alters the behavior of the indication.
type IndicationOption func(*indication)

// WithTrailingLines indicates the indication includes a number of lines after
// the line containing the indication.
func WithTrailingLines(l int) func(*indication) {
	return func(ind *indication) {
		ind.lines = l + 1
	}
}

// WithTrailingLine indicates the indication includes one line after the line
// containing the indication.
var WithTrailingLine = WithTrailingLines(1)

// parseCmdID returns the identifier component of the command.
//
// This is the section prior to any '=' or '?' and is generally, but not
// always, used to prefix info lines corresponding to the command.
func parseCmdID(cmdLine string) string {
	if idx := strings.IndexAny(cmdLine, "=?"); idx != -1 {
		return cmdLine[0:idx]
	}
	return cmdLine
}

// parseRxLine parses a received line and identifies the line type.
func parseRxLine(line string, cmdID string) rxl {
	switch {
	case line == "OK":
		return rxlStatusOK
	case strings.HasPrefix(line, "ERROR"),
		strings.HasPrefix(line, "+CME ERROR:"),
		strings.HasPrefix(line, "+CMS ERROR:"):
		return rxlStatusError
	case cmdID != "" && strings.HasPrefix(line, cmdID+":"):
		return rxlInfo
	case line == ">":
		return rxlSMSPrompt
	case strings.HasPrefix(line, "AT"+cmdID):
		return rxlEchoCmdLine
	default:
		// No attempt to identify SMS PDUs at this level, so they will
		// be caught here, along with other unidentified lines.
		return rxlUnknown
	}
}

// scanLines is a custom line scanner that recognises the prompt returned by
// the modem in response to SMS commands such as +CMGS.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	// handle SMS prompt special case - no CR at prompt
	if len(data) >= 1 && data[0] == '>' {
		i := 1
		// there may be trailing space, so swallow that...
		for ; i < len(data) && data[i] == ' '; i++ {
		}
		return i, data[0:1], nil
	}
	return bufio.ScanLines(data, atEOF)
}
