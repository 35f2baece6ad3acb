// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package gsm

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/warthog618/smsgw/acl"
	"github.com/warthog618/smsgw/at"
	"github.com/warthog618/smsgw/config"
	"github.com/warthog618/smsgw/pdu"
	"github.com/warthog618/smsgw/spool"
	"github.com/warthog618/smsgw/stats"
)

// Worker drives a single device, sending the messages queued in its
// outgoing spool and storing the messages it receives.
type Worker struct {
	t       at.Transport
	cfg     config.Device
	stats   *stats.Device
	log     logrus.FieldLogger
	now     func() time.Time
	options []Option

	outgoing *spool.Dir
	incoming *spool.Dir
	failed   *spool.Dir
	sent     *spool.Dir
	reports  *spool.Dir

	// deferred counts the cycles each outgoing record has been deferred.
	deferred map[string]int
}

// timestampFormat is the format of timestamps written to records.
const timestampFormat = "06-01-02 15:04:05"

// NewWorker creates the worker for the device, creating its spool
// directories if necessary.
//
// The options are applied to the GSM created by Run.
func NewWorker(t at.Transport, cfg config.Device, st *stats.Device, options ...Option) (*Worker, error) {
	// resolve the logger and clock the same way as the GSM
	g := &GSM{log: logrus.StandardLogger().WithField("device", cfg.Name), now: time.Now}
	for _, option := range options {
		option(g)
	}
	w := &Worker{
		t:        t,
		cfg:      cfg,
		stats:    st,
		log:      g.log,
		now:      g.now,
		options:  options,
		deferred: make(map[string]int),
	}
	dirs := []struct {
		d    **spool.Dir
		path string
	}{
		{&w.outgoing, cfg.OutgoingDir},
		{&w.incoming, cfg.IncomingDir},
		{&w.failed, cfg.FailedDir},
		{&w.sent, cfg.SentDir},
		{&w.reports, cfg.ReportDir},
	}
	for _, d := range dirs {
		if d.path == "" {
			continue
		}
		dir, err := spool.Open(d.path)
		if err != nil {
			return nil, err
		}
		*d.d = dir
	}
	return w, nil
}

// Run initialises the modem then sends and receives messages until the
// context is done.
//
// Cancelling the context does not interrupt a transaction in progress.
// Run returns nil when the context is done, or the error that prevented
// the modem being initialised.
func (w *Worker) Run(ctx context.Context) error {
	defer w.stats.Status.Store(stats.StatusStopped)
	g, err := New(w.t, w.cfg, w.options...)
	if err != nil {
		return err
	}
	if err := w.init(ctx, g); err != nil {
		return err
	}
	for {
		err := w.cycle(ctx, g)
		w.stats.Timeouts.Store(uint64(g.Timeouts()))
		w.stats.Reopens.Store(uint64(g.Reopens()))
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if rerr := w.recover(ctx, g, err); rerr != nil {
				return rerr
			}
			if at.IsRetryable(err) {
				continue
			}
		}
		w.stats.Status.Store(stats.StatusIdle)
		t := time.NewTimer(w.cfg.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-w.stats.Woken():
			t.Stop()
		case <-t.C:
		}
	}
}

func (w *Worker) init(ctx context.Context, g *GSM) error {
	w.stats.Status.Store(stats.StatusInit)
	if err := g.Init(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		w.stats.Status.Store(stats.StatusBlocked)
		w.log.WithError(err).Error("modem initialisation failed")
		return err
	}
	w.log.Info("modem initialised")
	return nil
}

// cycle sends any queued messages then collects received messages.
func (w *Worker) cycle(ctx context.Context, g *GSM) error {
	if w.cfg.Outgoing && w.outgoing != nil {
		w.stats.Status.Store(stats.StatusSending)
		if err := w.sendAll(ctx, g); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	w.stats.Status.Store(stats.StatusReceiving)
	return w.receive(ctx, g)
}

// recover reopens the transport after a failure, and reinitialises the
// modem.
func (w *Worker) recover(ctx context.Context, g *GSM, err error) error {
	if !at.IsRetryable(err) {
		w.log.WithError(err).Warn("cycle failed")
		return nil
	}
	w.stats.Status.Store(stats.StatusBlocked)
	w.log.WithError(err).Warn("modem not responding, reopening")
	if err := g.Reopen(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	w.stats.Reopens.Store(uint64(g.Reopens()))
	return w.init(ctx, g)
}

// sendAll sends the queued messages, high priority then oldest first, until
// the queue is empty or a message is deferred.
//
// Messages to destinations barred by the blacklist or whitelist are failed
// without being sent.
func (w *Worker) sendAll(ctx context.Context, g *GSM) error {
	for ctx.Err() == nil {
		e, err := w.outgoing.Next()
		if err == spool.ErrEmpty {
			return nil
		}
		if e == nil {
			return err
		}
		log := w.log.WithField("file", e.Name)
		if err != nil {
			log.WithError(err).Error("malformed message")
			w.fail(ctx, e, errors.Cause(err).Error())
			continue
		}
		if to := e.Record.Get("To"); to != "" {
			reason, err := acl.Check(to, w.cfg.Blacklist, w.cfg.Whitelist)
			if err != nil {
				return err
			}
			if reason != "" {
				log.WithField("to", to).Warn(reason)
				w.fail(ctx, e, reason)
				continue
			}
		}
		o := g.Send(ctx, e.Record)
		logOutcome(log, o)
		switch o.Kind {
		case Sent:
			delete(w.deferred, e.Name)
			w.stats.Sent.Inc()
			w.stats.Touch(w.now())
			e.Record.Set("Sent", w.now().Format(timestampFormat))
			e.Record.Set("Message_id", joinIDs(o.MessageIDs))
			path := filepath.Join(w.outgoing.Path(), e.Name)
			if w.sent != nil {
				err = w.outgoing.Move(e, w.sent)
				path = filepath.Join(w.sent.Path(), e.Name)
			} else {
				err = w.outgoing.Done(e.Name)
			}
			if err != nil {
				return err
			}
			w.event(ctx, EventSent, path, idStrings(o.MessageIDs)...)
		case Failed:
			w.fail(ctx, e, o.Reason, idStrings(o.MessageIDs)...)
		case RetryLater:
			w.deferred[e.Name]++
			if w.deferred[e.Name] > w.cfg.SendRetries {
				w.fail(ctx, e, o.Reason)
				continue
			}
			if o.Err == nil {
				o.Err = errors.New(o.Reason)
			}
			return o.Err
		}
	}
	return nil
}

// fail moves the record to the failed spool, with the ids of any parts
// that were sent passed to the event handler.
func (w *Worker) fail(ctx context.Context, e *spool.Entry, reason string, ids ...string) {
	delete(w.deferred, e.Name)
	w.stats.Failed.Inc()
	if e.Record != nil {
		e.Record.Set("Failed", w.now().Format(timestampFormat))
	}
	if err := w.outgoing.Fail(e, reason, w.failed); err != nil {
		w.log.WithError(err).WithField("file", e.Name).Error("failing message")
		return
	}
	path := filepath.Join(w.outgoing.Path(), e.Name)
	if w.failed != nil {
		path = filepath.Join(w.failed.Path(), e.Name)
	}
	w.event(ctx, EventFailed, path, ids...)
}

func idStrings(ids []int) []string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = strconv.Itoa(id)
	}
	return s
}

func joinIDs(ids []int) string {
	return strings.Join(idStrings(ids), " ")
}

// receive collects the received messages and stores them in the incoming
// and report spools.
func (w *Worker) receive(ctx context.Context, g *GSM) error {
	in, err := g.PollReceive(ctx)
	for _, i := range in {
		r := w.record(i)
		dir := w.incoming
		ev := EventReceived
		if i.Message != nil && i.Message.StatusReport != nil {
			w.stats.Reports.Inc()
			dir = w.reports
			ev = EventReport
		} else {
			w.stats.Received.Inc()
		}
		w.stats.Touch(w.now())
		if dir == nil {
			continue
		}
		name, serr := dir.Store(w.cfg.Name, r)
		if serr != nil {
			w.log.WithError(serr).Error("storing received message")
			continue
		}
		w.log.WithFields(logrus.Fields{
			"file": name,
			"from": r.Get("From"),
		}).Info("SMS received")
		w.event(ctx, ev, filepath.Join(dir.Path(), name))
	}
	return err
}

// record converts a received message into a spool record.
func (w *Worker) record(i Incoming) *spool.Record {
	r := spool.NewRecord()
	m := i.Message
	if m == nil {
		r.Set("Modem", w.cfg.Name)
		r.Set("Received", w.now().Format(timestampFormat))
		if i.Err != nil {
			r.Set("Error", oneLine(i.Err.Error()))
		}
		r.Body = []byte(i.PDU)
		return r
	}
	r.Set("From", m.Address.String())
	r.Set("From_TOA", pdu.ExplainTOA(m.Address.TOA))
	if m.SMSC.Number != "" {
		r.Set("From_SMSC", m.SMSC.Number)
	}
	if ts := m.Timestamp(); ts != "" {
		r.Set("Sent", ts)
	}
	r.Set("Received", w.now().Format(timestampFormat))
	r.Set("Subject", w.cfg.Name)
	r.Set("Modem", w.cfg.Name)
	if m.StatusReport == nil {
		r.Set("Report", yesNo(m.ReportRequested))
		r.Set("Alphabet", m.Alphabet.String())
		if m.Flash {
			r.Set("Flash", "yes")
		}
		if m.Replace != 0 {
			r.Set("Replace", strconv.Itoa(m.Replace))
		}
		if len(m.UDH) > 0 {
			r.Set("UDH", fmt.Sprintf("%X", m.UDH))
		}
		if m.Incomplete {
			r.Set("Incomplete", "yes")
		}
	}
	if i.Err != nil {
		r.Set("Error", oneLine(i.Err.Error()))
		r.Set("PDU", i.PDU)
	}
	r.Body = []byte(m.Body())
	r.Set("Length", strconv.Itoa(len([]rune(m.Body()))))
	return r
}

// oneLine joins the lines of a multi-line error so it fits in a header.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
