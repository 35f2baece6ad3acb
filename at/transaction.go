// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package at

import (
	"context"
	"regexp"
	"strings"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"
)

// State is the state of a transaction.
type State string

// Transaction states.
//
// A transaction starts Idle, moves to Sending while the command is written
// and then AwaitingResponse until it ends in one of the terminal states.
const (
	Idle             State = "idle"
	Sending          State = "sending"
	AwaitingResponse State = "awaiting"
	// Matched indicates the answer matched the expected pattern.
	Matched State = "matched"
	// Completed indicates the answer ended with a quiet period and no
	// pattern was expected.
	Completed State = "completed"
	// Timeout indicates no usable answer was received within the budget.
	Timeout State = "timeout"
	// ImmediateError indicates the modem rejected the command, or the
	// transport failed.
	ImmediateError State = "error"
)

func (s State) terminal() bool {
	switch s {
	case Matched, Completed, Timeout, ImmediateError:
		return true
	}
	return false
}

// Transaction events.
const (
	evSend   = "send"
	evSent   = "sent"
	evMatch  = "match"
	evQuiet  = "quiet"
	evExpire = "expire"
	evFail   = "fail"
)

func newStateMachine(log logrus.FieldLogger) *fsm.FSM {
	terminal := []string{string(Matched), string(Completed), string(Timeout), string(ImmediateError)}
	return fsm.NewFSM(
		string(Idle),
		fsm.Events{
			{Name: evSend, Src: append([]string{string(Idle)}, terminal...), Dst: string(Sending)},
			{Name: evSent, Src: []string{string(Sending)}, Dst: string(AwaitingResponse)},
			{Name: evMatch, Src: []string{string(AwaitingResponse)}, Dst: string(Matched)},
			{Name: evQuiet, Src: []string{string(AwaitingResponse)}, Dst: string(Completed)},
			{Name: evExpire, Src: []string{string(AwaitingResponse)}, Dst: string(Timeout)},
			{Name: evFail, Src: []string{string(Sending), string(AwaitingResponse)}, Dst: string(ImmediateError)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.WithFields(logrus.Fields{
					"from": e.Src,
					"to":   e.Dst,
				}).Trace("transaction")
			},
		},
	)
}

// Transaction is a single exchange with the modem.
type Transaction struct {
	// Command is written to the modem as is. It may be empty to only collect
	// input.
	Command string

	// Pattern, if set, completes the transaction as soon as the answer
	// matches. If not set the transaction completes on a final result code
	// or a quiet period.
	Pattern *regexp.Regexp

	// TimeoutTicks is the maximum number of reads performed while awaiting
	// the answer. Zero selects the default.
	TimeoutTicks int

	// QuietTicks is the number of consecutive empty reads, after some of the
	// answer has been received, that ends the transaction. Zero selects the
	// default.
	QuietTicks int
}

// Result is the outcome of a transaction.
type Result struct {
	State State

	// Answer is the raw text received, with any telnet negotiation removed.
	Answer string

	// Lines are the lines of the answer, with blank lines, the command echo
	// and unsolicited indications removed.
	Lines []string

	// Ticks is the number of reads performed while awaiting the answer.
	Ticks int
}

// Info returns the lines of the answer other than the final result code.
func (r *Result) Info() []string {
	var info []string
	for _, l := range r.Lines {
		switch parseRxLine(l, "") {
		case rxlStatusOK, rxlStatusError:
			continue
		}
		info = append(info, l)
	}
	return info
}

// finalResult matches the final result codes that end a command.
var finalResult = regexp.MustCompile(`(?m)^(OK|ERROR|\+CM[ES] ERROR:.*)\r?$`)

// lineComplete returns true if the answer ends on a line boundary, so the
// last line cannot be continued by a subsequent read.
func lineComplete(answer string) bool {
	return strings.HasSuffix(answer, "\n") || strings.HasSuffix(answer, "\r")
}

// cpmsComplete returns true for a +CPMS answer that is complete without a
// final result code, which some modems do not send.
func cpmsComplete(answer string) bool {
	idx := strings.Index(answer, "+CPMS:")
	if idx < 0 {
		return false
	}
	return strings.Count(answer[idx:], ",") >= 8
}
