// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// waitsms waits for SMSs to be received by the modem, and dumps them to stdout.
//
// Messages are read from the modem memory, and so deleted from the modem,
// and concatenated messages are reassembled prior to display.
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
)

var version = "undefined"

func main() {
	cfgPath := flag.String("c", "/etc/smsd.yaml", "path to config file")
	name := flag.String("d", "", "name of the device to use, defaults to the first")
	period := flag.Duration("p", 10*time.Minute, "period to wait")
	poll := flag.Duration("i", 10*time.Second, "polling interval")
	routed := flag.Bool("r", false, "have the modem route messages directly")
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
	cfg.Incoming = true
	cfg.Routed = cfg.Routed || *routed
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
	ctx, cancel := context.WithTimeout(context.Background(), *period)
	defer cancel()
	if err = g.Init(ctx); err != nil {
		log.Fatal(err)
	}
	ticker := time.NewTicker(*poll)
	defer ticker.Stop()
	for {
		in, err := g.PollReceive(ctx)
		for _, i := range in {
			display(i)
		}
		if err != nil {
			log.WithError(err).Warn("receive failed")
		}
		select {
		case <-ctx.Done():
			log.Info("exiting...")
			return
		case <-ticker.C:
		}
	}
}

func display(i gsm.Incoming) {
	m := i.Message
	if m == nil {
		fmt.Printf("undecodable PDU %s: %s\n", i.PDU, i.Err)
		return
	}
	if i.Err != nil {
		fmt.Printf("error: %s\n", i.Err)
	}
	if m.StatusReport != nil {
		fmt.Printf("status report from %s:\n%s\n", m.Address, m.Body())
		return
	}
	suffix := ""
	if m.Incomplete {
		suffix = " (incomplete)"
	}
	fmt.Printf("%s %s%s: %s\n", m.Timestamp(), m.Address, suffix, m.Body())
}
