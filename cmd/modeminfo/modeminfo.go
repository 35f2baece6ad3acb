// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

// modeminfo queries a configured modem and prints what it reports about
// itself and its network and messaging settings.
//
// The output is intended for diagnosing a device before it is handed to
// smsd.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warthog618/smsgw/at"
	"github.com/warthog618/smsgw/cmd/internal/device"
)

var version = "undefined"

func main() {
	cfgPath := flag.String("c", "/etc/smsd.yaml", "path to config file")
	name := flag.String("d", "", "name of the device to use, defaults to the first")
	timeout := flag.Duration("t", time.Minute, "time allowed for all commands")
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
	a := at.New(t, at.WithLogger(log), at.WithTick(cfg.Tick), at.WithTimeoutTicks(cfg.TimeoutTicks))
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err = a.Init(ctx); err != nil {
		log.Fatal(err)
	}
	for _, g := range groups {
		fmt.Printf("[%s]\n", g.title)
		for _, cmd := range g.cmds {
			report(ctx, a, cmd)
		}
	}
}

// groups lists the queries made, grouped by the part of the gateway they
// concern.
var groups = []struct {
	title string
	cmds  []string
}{
	{"identity", []string{"I", "+GCAP", "+CGMI", "+CGMM", "+CGMR", "+CGSN", "+CIMI", "+CNUM"}},
	{"network", []string{"+CPIN?", "+CSQ", "+CREG?", "+COPS?", "+CEER"}},
	{"messaging", []string{
		"+CSCA?", "+CSMS?", "+CSMS=?", "+CMGF?", "+CMGF=?",
		"+CPMS?", "+CPMS=?", "+CNMI?", "+CNMI=?", "+CNMA=?",
	}},
	{"ussd", []string{"+CUSD?", "+CUSD=?"}},
}

// report issues a query and prints the answer, or the reason it failed.
func report(ctx context.Context, a *at.AT, cmd string) {
	lines, err := a.Command(ctx, cmd)
	fmt.Printf("  AT%s\n", cmd)
	switch {
	case err == nil:
		for _, l := range lines {
			fmt.Printf("    %s\n", l)
		}
	case at.Explain(err) != "":
		fmt.Printf("    %s (%s)\n", err, at.Explain(err))
	default:
		fmt.Printf("    %s\n", err)
	}
}
