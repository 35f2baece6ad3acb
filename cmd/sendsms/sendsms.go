// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// sendsms sends an SMS using a modem from the gateway config.
//
// This bypasses the spool, so the message is sent immediately, and provides
// a test that the modem and its config are usable by the gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warthog618/smsgw/cmd/internal/device"
	"github.com/warthog618/smsgw/gsm"
	"github.com/warthog618/smsgw/spool"
)

var version = "undefined"

func main() {
	cfgPath := flag.String("c", "/etc/smsd.yaml", "path to config file")
	name := flag.String("d", "", "name of the device to use, defaults to the first")
	num := flag.String("n", "+12345", "number to send to, in international format")
	msg := flag.String("m", "Zoot Zoot", "the message to send")
	alphabet := flag.String("a", "", "alphabet: gsm, ucs2 or binary")
	report := flag.Bool("r", false, "request a status report")
	timeout := flag.Duration("t", time.Minute, "time allowed to send the message")
	verbose := flag.Bool("v", false, "log modem interactions")
	vsn := flag.Bool("version", false, "report version and exit")
	flag.Parse()
	if *vsn {
		fmt.Printf("%s %s\n", os.Args[0], version)
		os.Exit(0)
	}
	cfg, err := device.Select(*cfgPath, *name)
	if err != nil {
		logrus.Fatal(err)
	}
	cfg.Trace = cfg.Trace || *verbose
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	log := logrus.WithField("device", cfg.Name)
	t, c, err := device.Open(cfg, log)
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()
	g, err := gsm.New(t, cfg, gsm.WithLogger(log))
	if err != nil {
		log.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err = g.Init(ctx); err != nil {
		log.Fatal(err)
	}
	r := spool.NewRecord()
	r.Set(gsm.FieldTo, *num)
	if *alphabet != "" {
		r.Set(gsm.FieldAlphabet, *alphabet)
	}
	if *report {
		r.Set(gsm.FieldReport, "yes")
	}
	r.Body = []byte(*msg)
	o := g.Send(ctx, r)
	if o.Kind != gsm.Sent {
		log.WithError(o.Err).Fatalf("%s: %s", o.Kind, o.Reason)
	}
	fmt.Printf("sent, message ids %v\n", o.MessageIDs)
}
