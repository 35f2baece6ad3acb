// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// Package gsm provides SMS send and receive over an AT modem in PDU mode.
package gsm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/warthog618/smsgw/at"
	"github.com/warthog618/smsgw/config"
	"github.com/warthog618/smsgw/info"
	"github.com/warthog618/smsgw/reassembly"
)

// GSM modem decorates the AT modem with GSM specific functionality.
//
// A GSM is driven by a single worker and is not safe for concurrent use.
type GSM struct {
	*at.AT
	cfg   config.Device
	log   logrus.FieldLogger
	now   func() time.Time
	store *reassembly.Store

	// routed messages collected by the AT indication handler
	routed []at.Routed

	// reference for the next concatenated message
	ref byte

	// appended to the options derived from the config
	atOptions []at.Option
}

// Option is a construction option for a GSM.
type Option func(*GSM)

// WithLogger sets the logger used by the GSM and the underlying AT.
func WithLogger(l logrus.FieldLogger) Option {
	return func(g *GSM) {
		g.log = l
	}
}

// WithClock overrides the time source used to age concatenated messages.
func WithClock(now func() time.Time) Option {
	return func(g *GSM) {
		g.now = now
	}
}

// WithATOptions adds options applied to the underlying AT, after those
// derived from the device config.
func WithATOptions(options ...at.Option) Option {
	return func(g *GSM) {
		g.atOptions = append(g.atOptions, options...)
	}
}

// New creates a GSM modem on the transport, configured for the device.
//
// The concatenation log for the device is replayed from cfg.ConcatDir.
func New(t at.Transport, cfg config.Device, options ...Option) (*GSM, error) {
	g := &GSM{
		cfg: cfg,
		log: logrus.StandardLogger().WithField("device", cfg.Name),
		now: time.Now,
		ref: byte(time.Now().UnixNano()),
	}
	for _, option := range options {
		option(g)
	}
	aopts := []at.Option{
		at.WithLogger(g.log),
		at.WithRetries(cfg.Retries),
		at.WithRetryDelay(cfg.RetryDelay),
		at.WithReopenThreshold(cfg.ReopenThreshold),
		at.WithDetectUnsolicited(cfg.DetectUnsolicited),
		at.WithRoutedHandler(g.onRouted),
		at.WithCNMA(cfg.CNMA),
	}
	if cfg.Tick > 0 {
		aopts = append(aopts, at.WithTick(cfg.Tick))
	}
	if cfg.TimeoutTicks > 0 {
		aopts = append(aopts, at.WithTimeoutTicks(cfg.TimeoutTicks))
	}
	if cfg.QuietTicks > 0 {
		aopts = append(aopts, at.WithQuietTicks(cfg.QuietTicks))
	}
	if cfg.SMSTimeoutTicks > 0 {
		aopts = append(aopts, at.WithSMSTimeoutTicks(cfg.SMSTimeoutTicks))
	}
	switch cfg.Hangup {
	case "":
	case "none":
		aopts = append(aopts, at.WithHangup(""))
	default:
		aopts = append(aopts, at.WithHangup(cfg.Hangup))
	}
	if cfg.Telnet.Login != "" || cfg.Telnet.Password != "" || cfg.Socket != "" {
		aopts = append(aopts, at.WithTelnet(at.Telnet{
			Login:          cfg.Telnet.Login,
			LoginPrompt:    cfg.Telnet.LoginPrompt,
			Password:       cfg.Telnet.Password,
			PasswordPrompt: cfg.Telnet.PasswordPrompt,
		}))
	}
	aopts = append(aopts, g.atOptions...)
	g.AT = at.New(t, aopts...)
	store, err := reassembly.Open(cfg.ConcatDir, cfg.Name, cfg.PDUMode,
		reassembly.WithPartialDelivery(cfg.Partial),
		reassembly.WithClock(func() time.Time { return g.now() }),
		reassembly.WithLogger(g.log))
	if err != nil {
		return nil, errors.Wrap(err, "concatenation store")
	}
	g.store = store
	return g, nil
}

func (g *GSM) onRouted(r at.Routed) {
	g.routed = append(g.routed, r)
}

// Config returns the configuration of the device.
func (g *GSM) Config() config.Device {
	return g.cfg
}

// Pending returns the number of incomplete concatenated messages held.
func (g *GSM) Pending() int {
	return g.store.Len()
}

// Init initialises the modem and waits for it to register to the network.
func (g *GSM) Init(ctx context.Context) error {
	if err := g.AT.Init(ctx); err != nil {
		return err
	}
	if err := g.checkPIN(ctx); err != nil {
		return err
	}
	cmds := []string{
		"+CMGF=0", // PDU mode
	}
	if g.cfg.SMSC != "" {
		cmds = append(cmds, fmt.Sprintf(`+CSCA="+%s"`, strings.TrimPrefix(g.cfg.SMSC, "+")))
	}
	cmds = append(cmds, g.cfg.Init...)
	for _, cmd := range cmds {
		if err := g.command(ctx, cmd); err != nil {
			return errors.Wrapf(err, "AT%s returned error", cmd)
		}
	}
	if err := g.waitRegistration(ctx); err != nil {
		return err
	}
	if g.cfg.Routed {
		// route deliveries and status reports directly to the terminal
		if err := g.command(ctx, "+CNMI=2,2,0,1,0"); err != nil {
			g.log.WithError(err).Warn("message routing not supported")
		}
	}
	return nil
}

// command issues a command, retrying if the modem does not respond.
func (g *GSM) command(ctx context.Context, cmd string) error {
	return g.Retry(ctx, func() error {
		_, err := g.Command(ctx, cmd)
		return err
	})
}

func (g *GSM) checkPIN(ctx context.Context) error {
	state, err := g.pinState(ctx)
	if err != nil {
		return err
	}
	switch {
	case state == "READY":
		return nil
	case strings.Contains(state, "PUK"):
		return errors.Wrap(ErrPUKRequired, state)
	case state != "SIM PIN":
		return errors.Wrap(ErrNotPINReady, state)
	case g.cfg.PIN == "":
		return ErrPINRequired
	}
	g.log.Info("entering PIN")
	if _, err := g.Command(ctx, fmt.Sprintf(`+CPIN="%s"`, g.cfg.PIN)); err != nil {
		return errors.Wrap(err, "PIN rejected")
	}
	if state, err = g.pinState(ctx); err != nil {
		return err
	}
	if state != "READY" {
		return errors.Wrap(ErrNotPINReady, state)
	}
	return nil
}

// pinState returns the SIM state reported by +CPIN?, such as READY or
// SIM PIN.
func (g *GSM) pinState(ctx context.Context) (string, error) {
	var i []string
	err := g.Retry(ctx, func() error {
		var err error
		i, err = g.Command(ctx, "+CPIN?")
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "AT+CPIN? returned error")
	}
	for _, l := range i {
		if info.HasPrefix(l, "+CPIN") {
			// some modems quote the state
			return strings.Trim(info.TrimPrefix(l, "+CPIN"), `" `), nil
		}
	}
	return "", ErrMalformedResponse
}

// waitRegistration polls +CREG? until the modem is registered to the home
// or a roaming network.
//
// Modems that do not support +CREG are assumed registered.
func (g *GSM) waitRegistration(ctx context.Context) error {
	for attempt := 0; attempt <= g.cfg.RegistrationRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, g.cfg.RegistrationDelay); err != nil {
				return err
			}
		}
		i, err := g.Command(ctx, "+CREG?")
		if at.IsDeviceRejected(err) {
			g.log.Info("ignoring that modem does not support +CREG")
			return nil
		}
		if err != nil {
			if !at.IsRetryable(err) {
				return err
			}
			g.log.WithError(err).Warn("AT+CREG? failed")
			continue
		}
		stat := registrationStatus(i)
		switch stat {
		case 1:
			g.log.Info("registered to the network")
			return nil
		case 5:
			g.log.Info("registered to a roaming partner network")
			return nil
		case 3:
			g.log.Warn("registration denied")
		default:
			g.log.WithField("status", stat).Info("not registered")
		}
	}
	return ErrNotRegistered
}

// registrationStatus returns the stat field of a +CREG response, or -1 if
// there is none.
func registrationStatus(lines []string) int {
	for _, l := range lines {
		if !info.HasPrefix(l, "+CREG") {
			continue
		}
		f := info.Fields(l, "+CREG")
		if len(f) < 2 {
			return -1
		}
		// some modems pad with leading zeros, e.g. 000,001
		return info.Int(f[1], -1)
	}
	return -1
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

var (
	// ErrNotPINReady indicates the modem SIM card is not ready to perform operations.
	ErrNotPINReady = errors.New("modem is not PIN Ready")
	// ErrPINRequired indicates the SIM requires a PIN and none is configured.
	ErrPINRequired = errors.New("SIM PIN required")
	// ErrPUKRequired indicates the SIM is locked and requires a PUK.
	ErrPUKRequired = errors.New("SIM PUK required")
	// ErrNotRegistered indicates the modem did not register to a network.
	ErrNotRegistered = errors.New("modem is not registered to the network")
	// ErrMalformedResponse indicates the modem returned a badly formed
	// response.
	ErrMalformedResponse = errors.New("modem returned malformed response")
)
