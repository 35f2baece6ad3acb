// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package gsm

import (
	"context"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Events passed to the configured event handler.
const (
	EventSent     = "SENT"
	EventFailed   = "FAILED"
	EventReceived = "RECEIVED"
	EventReport   = "REPORT"
)

// event runs the event handler, if one is configured, and waits for it to
// complete.
//
// Handler failures are logged and otherwise ignored.
func (w *Worker) event(ctx context.Context, ev, path string, ids ...string) {
	if w.cfg.EventHandler == "" {
		return
	}
	args := append([]string{ev, path}, ids...)
	cmd := exec.CommandContext(ctx, w.cfg.EventHandler, args...)
	out, err := cmd.CombinedOutput()
	log := w.log.WithFields(logrus.Fields{
		"event": ev,
		"file":  path,
	})
	if err != nil {
		log.WithError(err).WithField("output", strings.TrimSpace(string(out))).Warn("event handler failed")
		return
	}
	log.Debug("event handler completed")
}
