// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package at

import "strings"

// Telnet configures the handling of modems reached through a telnet server,
// such as a network modem or terminal server.
type Telnet struct {
	// Login is sent when LoginPrompt is received.
	Login       string
	LoginPrompt string
	// Password is sent when PasswordPrompt is received.
	Password       string
	PasswordPrompt string
}

// telnet protocol bytes, RFC 854
const (
	iacSE   = 240
	iacSB   = 250
	iacWILL = 251
	iacWONT = 252
	iacDO   = 253
	iacDONT = 254
	iac     = 255
)

type telnetState int

const (
	tsData telnetState = iota
	tsIAC
	tsOption
	tsSub
	tsSubIAC
)

// telnetFilter strips telnet negotiation from the received stream and
// generates the replies to send.
//
// All options are refused. The filter keeps its state across reads so
// sequences split between reads are handled.
type telnetFilter struct {
	cfg       Telnet
	state     telnetState
	verb      byte
	loginSent bool
	pwdSent   bool
	// tail of the recent data, searched for prompts
	window string
}

func newTelnetFilter(cfg Telnet) *telnetFilter {
	if cfg.LoginPrompt == "" {
		cfg.LoginPrompt = "login:"
	}
	if cfg.PasswordPrompt == "" {
		cfg.PasswordPrompt = "Password:"
	}
	return &telnetFilter{cfg: cfg}
}

func (t *telnetFilter) reset() {
	t.state = tsData
	t.loginSent = false
	t.pwdSent = false
	t.window = ""
}

// filter returns the data in b with any telnet commands and NULs removed,
// and any replies to be written to the server.
func (t *telnetFilter) filter(b []byte) (data []byte, reply []byte) {
	data = make([]byte, 0, len(b))
	for _, c := range b {
		switch t.state {
		case tsData:
			switch c {
			case 0:
			case iac:
				t.state = tsIAC
			default:
				data = append(data, c)
			}
		case tsIAC:
			switch c {
			case iacDO, iacDONT, iacWILL, iacWONT:
				t.verb = c
				t.state = tsOption
			case iacSB:
				t.state = tsSub
			case iac:
				data = append(data, c)
				t.state = tsData
			default:
				t.state = tsData
			}
		case tsOption:
			switch t.verb {
			case iacDO:
				reply = append(reply, iac, iacWONT, c)
			case iacWILL:
				reply = append(reply, iac, iacDONT, c)
			}
			t.state = tsData
		case tsSub:
			if c == iac {
				t.state = tsSubIAC
			}
		case tsSubIAC:
			if c == iacSE {
				t.state = tsData
			} else {
				t.state = tsSub
			}
		}
	}
	reply = append(reply, t.login(data)...)
	return data, reply
}

// login returns the credentials to send if a prompt has been received.
//
// Each credential is sent only once per connection.
func (t *telnetFilter) login(data []byte) []byte {
	if t.loginSent && t.pwdSent {
		return nil
	}
	t.window += string(data)
	if len(t.window) > 256 {
		t.window = t.window[len(t.window)-256:]
	}
	var reply []byte
	if !t.loginSent && t.cfg.Login != "" && strings.Contains(t.window, t.cfg.LoginPrompt) {
		t.loginSent = true
		reply = append(reply, t.cfg.Login+"\n"...)
		t.window = t.window[strings.Index(t.window, t.cfg.LoginPrompt)+len(t.cfg.LoginPrompt):]
	}
	if !t.pwdSent && t.cfg.Password != "" && strings.Contains(t.window, t.cfg.PasswordPrompt) {
		t.pwdSent = true
		reply = append(reply, t.cfg.Password+"\n"...)
		t.window = ""
	}
	return reply
}
