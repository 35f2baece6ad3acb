// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package gsm

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/warthog618/smsgw/at"
	"github.com/warthog618/smsgw/info"
	"github.com/warthog618/smsgw/pdu"
	"github.com/warthog618/smsgw/reassembly"
)

// Incoming is a message received by the modem.
type Incoming struct {
	// Message is the decoded message. On a decode failure it holds any
	// partially decoded content, and may be nil.
	Message *pdu.Message
	// Err is the reason the message could not be decoded or merged.
	Err error
	// PDU is the raw PDU, if the message was not merged from parts.
	PDU string
	// Index is the location of the message in the modem memory.
	Index int
}

// Pseudo memory indices for messages that were not read from modem memory.
const (
	// IndexRouted is the index of messages routed directly to the terminal.
	IndexRouted = 0
	// IndexFile is the index of a PDU read from the configured PDU file.
	IndexFile = -1
)

// stored is a PDU held in modem memory.
type stored struct {
	index int
	pdu   string
}

// PollReceive collects the messages received since the previous poll.
//
// This includes routed messages and status reports, messages read from the
// modem memory, which are then deleted from the modem, and the PDU file if
// configured. Parts of concatenated messages are held until the message is
// complete, or purged. The messages returned are complete, or are
// incomplete messages purged with partial delivery enabled, or are
// failures, with Err set.
func (g *GSM) PollReceive(ctx context.Context) ([]Incoming, error) {
	var in []Incoming
	for _, m := range g.store.Recovered() {
		in = append(in, Incoming{Message: m})
	}
	if err := g.Poll(ctx); err != nil {
		return in, err
	}
	in = g.processRouted(in)
	if g.cfg.PDUFile != "" {
		in = g.readPDUFile(in)
	}
	if g.cfg.Incoming {
		msgs, err := g.list(ctx)
		if err != nil {
			return g.processRouted(in), err
		}
		for _, s := range msgs {
			in = g.process(in, s.pdu, s.index)
			if _, err := g.Command(ctx, fmt.Sprintf("+CMGD=%d", s.index)); err != nil {
				g.log.WithError(err).WithField("index", s.index).Warn("deleting message failed")
			}
		}
		in = g.processRouted(in)
	}
	for _, m := range g.store.Purge(g.now().Add(-g.cfg.PurgeAge)) {
		in = append(in, Incoming{Message: m})
	}
	return in, nil
}

func (g *GSM) processRouted(in []Incoming) []Incoming {
	routed := g.routed
	g.routed = nil
	for _, r := range routed {
		in = g.process(in, r.PDU, IndexRouted)
	}
	return in
}

// process decodes a PDU and adds the result, if any, to in.
func (g *GSM) process(in []Incoming, raw string, index int) []Incoming {
	log := g.log.WithField("index", index)
	m, err := pdu.Decode(raw, g.cfg.PDUMode)
	if err != nil {
		log.WithError(err).Error("decoding PDU failed")
		return append(in, Incoming{Message: m, Err: err, PDU: raw, Index: index})
	}
	for _, w := range m.Warnings {
		log.Warn(w)
	}
	for _, d := range m.Diagnostics {
		log.Warn(d.String())
	}
	if m.Type == pdu.TypeDeliver && m.Concat != nil {
		o := g.store.Ingest(m, raw)
		switch o.Kind {
		case reassembly.Pending:
			log.WithFields(logrus.Fields{
				"reference": m.Concat.Reference,
				"part":      fmt.Sprintf("%d/%d", m.Concat.Part, m.Concat.Total),
			}).Debug("stored part")
			return in
		case reassembly.Error:
			log.WithError(o.Err).Error("concatenation failed")
			if o.Message == nil {
				o.Message = m
			}
			return append(in, Incoming{Message: o.Message, Err: o.Err, PDU: raw, Index: index})
		}
		if o.Message != m {
			return append(in, Incoming{Message: o.Message, Index: index})
		}
	}
	return append(in, Incoming{Message: m, PDU: raw, Index: index})
}

// readPDUFile processes the PDU held in the PDU file, then removes the file.
func (g *GSM) readPDUFile(in []Incoming) []Incoming {
	b, err := ioutil.ReadFile(g.cfg.PDUFile)
	if err != nil {
		if !os.IsNotExist(err) {
			g.log.WithError(err).Warn("reading PDU file failed")
		}
		return in
	}
	if err := os.Remove(g.cfg.PDUFile); err != nil {
		g.log.WithError(err).Warn("removing PDU file failed")
	}
	for _, l := range strings.Split(string(b), "\n") {
		l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "PDU:"))
		if l != "" {
			return g.process(in, l, IndexFile)
		}
	}
	return in
}

// list returns the messages held in the modem memory.
//
// Modems that do not support +CMGL are read one index at a time using
// +CMGR.
func (g *GSM) list(ctx context.Context) ([]stored, error) {
	var i []string
	err := g.Retry(ctx, func() error {
		var err error
		i, err = g.Command(ctx, "+CMGL=4")
		return err
	})
	if at.IsDeviceRejected(err) {
		g.log.WithError(err).Info("AT+CMGL not supported, using AT+CMGR")
		return g.read(ctx)
	}
	if err != nil {
		return nil, err
	}
	return parseListing(i, "+CMGL"), nil
}

// parseListing extracts the index and PDU of each message from a +CMGL
// listing.
func parseListing(lines []string, prefix string) []stored {
	var msgs []stored
	for n := 0; n < len(lines); n++ {
		if !info.HasPrefix(lines[n], prefix) {
			continue
		}
		f := info.Fields(lines[n], prefix)
		idx := info.Int(f[0], -1)
		if idx < 0 || n+1 >= len(lines) || info.HasPrefix(lines[n+1], prefix) {
			continue
		}
		n++
		msgs = append(msgs, stored{index: idx, pdu: lines[n]})
	}
	return msgs
}

// read returns the messages held in the modem memory by reading each index
// in turn.
func (g *GSM) read(ctx context.Context) ([]stored, error) {
	used, total, err := g.memory(ctx)
	if err != nil {
		return nil, err
	}
	var msgs []stored
	for idx := 1; idx <= total && len(msgs) < used; idx++ {
		i, err := g.Command(ctx, fmt.Sprintf("+CMGR=%d", idx))
		if err != nil {
			if at.IsRetryable(err) {
				return msgs, err
			}
			// empty or invalid index
			continue
		}
		for n, l := range i {
			if !info.HasPrefix(l, "+CMGR") || n+1 >= len(i) {
				continue
			}
			f := info.Fields(l, "+CMGR")
			if len(f) >= 3 && f[0] == "0" && f[2] == "0" {
				// empty slot, +CMGR: 0,,0
				break
			}
			msgs = append(msgs, stored{index: idx, pdu: i[n+1]})
			break
		}
	}
	return msgs, nil
}

// memory returns the number of used slots and the total number of slots in
// the memory messages are read from.
func (g *GSM) memory(ctx context.Context) (int, int, error) {
	i, err := g.Command(ctx, "+CPMS?")
	if err != nil {
		return 0, 0, err
	}
	for _, l := range i {
		if !info.HasPrefix(l, "+CPMS") {
			continue
		}
		f := info.Fields(l, "+CPMS")
		if len(f) < 3 {
			break
		}
		// +CPMS: "SM",used,total,...
		return info.Int(f[1], 0), info.Int(f[2], 0), nil
	}
	return 0, 0, ErrMalformedResponse
}
