// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package gsm

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/warthog618/smsgw/charset"
	"github.com/warthog618/smsgw/info"
)

// USSDReply is the network response to a USSD request.
type USSDReply struct {
	// Status is the <m> field: 0 no further action, 1 further action
	// required, 2 terminated by network.
	Status int
	Text   string
	DCS    int
}

var cusdPattern = regexp.MustCompile(`(\+CUSD:.*\r?\n)|(ERROR.*\n)`)

// ussdTimeoutTicks bounds the wait for the network response.
const ussdTimeoutTicks = 300

// USSD sends the request, such as *101#, and returns the network reply.
//
// The request is sent packed in the GSM 7-bit alphabet.
func (g *GSM) USSD(ctx context.Context, request string) (*USSDReply, error) {
	septets, diags := charset.Encode(request)
	for _, d := range diags {
		g.log.Warn(d.String())
	}
	cmd := fmt.Sprintf(`+CUSD=1,"%X",15`, charset.Pack(septets))
	r, err := g.Expect(ctx, cmd, cusdPattern, ussdTimeoutTicks)
	if err != nil {
		return nil, err
	}
	for _, l := range r.Lines {
		if info.HasPrefix(l, "+CUSD") {
			return parseCUSD(l)
		}
	}
	return nil, ErrMalformedResponse
}

// parseCUSD parses a +CUSD response, e.g. +CUSD: 0,"C8329BFD06",15
func parseCUSD(line string) (*USSDReply, error) {
	f := info.Fields(line, "+CUSD")
	r := &USSDReply{Status: info.Int(f[0], -1), DCS: 15}
	if r.Status < 0 {
		return nil, errors.Wrap(ErrMalformedResponse, line)
	}
	if len(f) < 2 {
		return r, nil
	}
	if len(f) > 2 {
		r.DCS = info.Int(f[2], 15)
	}
	r.Text = decodeUSSD(info.Unquote(f[1]), r.DCS)
	return r, nil
}

// decodeUSSD decodes the USSD string as indicated by the DCS.
//
// Modems vary in whether they return the string as hex or as text, so text
// that is not valid hex is returned as is.
func decodeUSSD(s string, dcs int) string {
	b, err := hex.DecodeString(s)
	if err != nil || len(s) == 0 {
		return s
	}
	if dcs&0xcc == 0x48 {
		// UCS2
		text, _ := charset.DecodeUCS2(b)
		return text
	}
	text, _ := charset.Decode(charset.UnpackPadded(b))
	return strings.TrimRight(text, "\r")
}
