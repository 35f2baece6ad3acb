// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// pdudecode decodes SMS PDUs and displays their content.
//
// PDUs are taken from the command line or, if none are provided, from
// stdin, one per line.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/warthog618/sms/encoding/pdumode"
	"github.com/warthog618/sms/encoding/tpdu"
	"github.com/warthog618/smsgw/pdu"
)

var version = "undefined"

func main() {
	mode := flag.String("o", "new", "PDU mode, new or old")
	cross := flag.Bool("x", false, "also decode using the reference SMS library")
	vsn := flag.Bool("version", false, "report version and exit")
	flag.Parse()
	if *vsn {
		fmt.Printf("%s %s\n", os.Args[0], version)
		os.Exit(0)
	}
	m, err := pdu.ParseMode(*mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	pdus := flag.Args()
	if len(pdus) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if l := strings.TrimSpace(scanner.Text()); l != "" {
				pdus = append(pdus, l)
			}
		}
	}
	failed := false
	for _, p := range pdus {
		if !decode(p, m) {
			failed = true
		}
		if *cross && m == pdu.ModeNew {
			crossCheck(p)
		}
		fmt.Println()
	}
	if failed {
		os.Exit(1)
	}
}

func decode(p string, mode pdu.Mode) bool {
	m, err := pdu.Decode(p, mode)
	if m != nil {
		show(m)
	}
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		return false
	}
	return true
}

func show(m *pdu.Message) {
	fmt.Printf("Type: %s\n", m.Type)
	if m.SMSC.Number != "" {
		fmt.Printf("SMSC: %s\n", m.SMSC)
	}
	if m.Address.Number != "" {
		fmt.Printf("Address: %s (%s)\n", m.Address, pdu.ExplainTOA(m.Address.TOA))
	}
	if ts := m.Timestamp(); ts != "" {
		fmt.Printf("Timestamp: %s\n", ts)
	}
	if m.StatusReport == nil {
		fmt.Printf("Alphabet: %s\n", m.Alphabet)
	}
	if len(m.UDH) > 0 {
		if x, err := pdu.ExplainUDH(m.UDH); err == nil {
			fmt.Printf("UDH: %X\n%s\n", m.UDH, x)
		} else {
			fmt.Printf("UDH: %X (%s)\n", m.UDH, err)
		}
	}
	for _, w := range m.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	for _, d := range m.Diagnostics {
		fmt.Printf("Warning: %s\n", d)
	}
	fmt.Printf("\n%s\n", m.Body())
}

// crossCheck displays the deliver PDU as decoded by github.com/warthog618/sms.
func crossCheck(p string) {
	raw, err := hex.DecodeString(p)
	if err != nil {
		return
	}
	pm, err := pdumode.UnmarshalBinary(raw)
	if err != nil {
		fmt.Printf("sms: %s\n", err)
		return
	}
	t := &tpdu.TPDU{}
	if err = t.UnmarshalBinary(pm.TPDU); err != nil {
		fmt.Printf("sms: %s\n", err)
		return
	}
	if t.SmsType() != tpdu.SmsDeliver {
		return
	}
	alpha, _ := t.Alphabet()
	ud, err := tpdu.DecodeUserData(t.UD, t.UDH, alpha)
	if err != nil {
		fmt.Printf("sms: %s\n", err)
		return
	}
	fmt.Printf("sms: %s %s: %s\n", t.SCTS.Time.Format("06-01-02 15:04:05"), t.OA.Number(), ud)
}
