// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// ussd sends an USSD request using a modem from the gateway config, and
// displays the network response.
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
	msg := flag.String("m", "*101#", "the request to send")
	timeout := flag.Duration("t", time.Minute, "time allowed for the response")
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
	r, err := g.USSD(ctx, *msg)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(r.Text)
	if r.Status == 1 {
		fmt.Println("(further action required)")
	}
}
