// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// smsd is an SMS gateway daemon.
//
// It drives each configured modem, sending the messages queued in the
// outgoing spool directories and storing received messages and status
// reports in the incoming and report spool directories.
//
// SIGUSR1 requests all devices to check their outgoing spools immediately.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/warthog618/smsgw/cmd/internal/device"
	"github.com/warthog618/smsgw/config"
	"github.com/warthog618/smsgw/gsm"
	"github.com/warthog618/smsgw/stats"
	"golang.org/x/sync/errgroup"
)

var version = "undefined"

// statsPeriod is the period between rewrites of the stats file.
const statsPeriod = 10 * time.Second

func main() {
	cfgPath := flag.String("c", "/etc/smsd.yaml", "path to config file")
	verbose := flag.Bool("v", false, "debug logging")
	vsn := flag.Bool("version", false, "report version and exit")
	flag.Parse()
	if *vsn {
		fmt.Printf("%s %s\n", os.Args[0], version)
		os.Exit(0)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logrus.WithError(err).Fatal("loading config")
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithError(err).Fatal("invalid log level")
	}
	if *verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
	logrus.WithFields(logrus.Fields{
		"version": version,
		"devices": len(cfg.Devices),
	}).Info("smsd starting")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	reg := stats.NewRegistry()
	wake := make(chan os.Signal, 1)
	signal.Notify(wake, syscall.SIGUSR1)
	defer signal.Stop(wake)

	eg, ctx := errgroup.WithContext(ctx)
	for _, d := range cfg.Devices {
		d := d
		st := reg.Device(d.Name)
		eg.Go(func() error {
			return runDevice(ctx, d, st)
		})
	}
	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-wake:
				reg.WakeAll()
			}
		}
	})
	if cfg.StatsFile != "" {
		eg.Go(func() error {
			return writeStats(ctx, cfg.StatsFile, reg)
		})
	}
	if err := eg.Wait(); err != nil {
		logrus.WithError(err).Fatal("smsd failed")
	}
	logrus.Info("smsd stopped")
}

// runDevice runs the worker for the device until the context is done,
// restarting it if the modem cannot be opened or initialised.
func runDevice(ctx context.Context, cfg config.Device, st *stats.Device) error {
	log := logrus.WithField("device", cfg.Name)
	b := backoff.Backoff{
		Min:    5 * time.Second,
		Max:    5 * time.Minute,
		Factor: 2,
		Jitter: true,
	}
	for {
		err := runOnce(ctx, cfg, st, log)
		if ctx.Err() != nil {
			return nil
		}
		d := b.Duration()
		log.WithError(err).WithField("delay", d).Error("device stopped, restarting")
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func runOnce(ctx context.Context, cfg config.Device, st *stats.Device, log logrus.FieldLogger) error {
	t, c, err := device.Open(cfg, log)
	if err != nil {
		st.Status.Store(stats.StatusBlocked)
		return err
	}
	defer c.Close()
	w, err := gsm.NewWorker(t, cfg, st, gsm.WithLogger(log))
	if err != nil {
		return err
	}
	if err := w.Run(ctx); err != nil {
		return err
	}
	return errors.New("worker stopped")
}

// writeStats periodically rewrites the stats file until the context is
// done.
func writeStats(ctx context.Context, path string, reg *stats.Registry) error {
	ticker := time.NewTicker(statsPeriod)
	defer ticker.Stop()
	for {
		var buf bytes.Buffer
		if _, err := reg.WriteTo(&buf); err == nil {
			tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path))
			if err = ioutil.WriteFile(tmp, buf.Bytes(), 0644); err == nil {
				err = os.Rename(tmp, path)
			}
			if err != nil {
				logrus.WithError(err).WithField("file", path).Warn("writing stats")
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
