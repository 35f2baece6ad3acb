// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// Package reassembly collects the parts of concatenated messages received
// by a device and merges them once all parts are present.
//
// Parts are persisted to a per-device log so that a restart does not lose
// parts already received.
package reassembly

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/warthog618/smsgw/pdu"
)

// Kind is the result of ingesting a part.
type Kind int

const (
	// Pending indicates the message is still missing parts.
	Pending Kind = iota
	// Complete indicates the message is complete and available in the
	// Outcome.
	Complete
	// Error indicates the part could not be stored, or the message could not
	// be merged.
	Error
)

func (k Kind) String() string {
	switch k {
	case Pending:
		return "pending"
	case Complete:
		return "complete"
	}
	return "error"
}

// Outcome is the result of ingesting a part.
type Outcome struct {
	Kind Kind
	// Message is the merged message if Complete, or the best partial message
	// on Error, if any.
	Message *pdu.Message
	Err     error
}

// key identifies the parts of one concatenated message.
type key struct {
	wide      bool
	alphabet  pdu.Alphabet
	reference int
	total     int
	sender    string
}

type group struct {
	key   key
	first time.Time
	// parts are the raw PDUs indexed by part number.
	parts map[int]string
}

func (g *group) complete() bool {
	for i := 1; i <= g.key.total; i++ {
		if _, ok := g.parts[i]; !ok {
			return false
		}
	}
	return true
}

// Store holds the incomplete messages of one device.
//
// A Store is owned by a single device worker and is not safe for concurrent
// use.
type Store struct {
	path      string
	mode      pdu.Mode
	partial   bool
	now       func() time.Time
	log       logrus.FieldLogger
	groups    map[key]*group
	recovered []*pdu.Message
}

// Option modifies a Store created by Open.
type Option func(*Store)

// WithPartialDelivery controls whether incomplete messages are returned by
// Purge, rather than being discarded.
func WithPartialDelivery(partial bool) Option {
	return func(s *Store) {
		s.partial = partial
	}
}

// WithClock overrides the time source used to stamp parts.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used to report anomalies.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// ErrInvalidPart indicates concatenation information that cannot be valid.
var ErrInvalidPart = errors.New("invalid part")

// Open creates the Store for the device, replaying any parts persisted in
// dir.
//
// If dir is empty the Store is not persisted.
func Open(dir, device string, mode pdu.Mode, options ...Option) (*Store, error) {
	s := &Store{
		mode:   mode,
		now:    time.Now,
		log:    logrus.StandardLogger(),
		groups: make(map[key]*group),
	}
	for _, option := range options {
		option(s)
	}
	if dir == "" {
		return s, nil
	}
	s.path = filepath.Join(dir, device+".concat")
	if err := s.replay(); err != nil {
		return nil, err
	}
	return s, nil
}

// replay loads the persisted parts.
//
// Groups found to be complete are merged and held for Recovered.
func (s *Store) replay() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		secs, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			s.log.WithField("line", lineNo).Warn("skipping malformed concatenation log entry")
			continue
		}
		m, err := pdu.Decode(fields[1], s.mode)
		if err != nil || m.Concat == nil {
			s.log.WithField("line", lineNo).Warn("skipping undecodable concatenation log entry")
			continue
		}
		s.add(m, fields[1], time.Unix(secs, 0))
	}
	if err := scanner.Err(); err != nil {
		return errors.WithStack(err)
	}
	for k, g := range s.groups {
		if !g.complete() {
			continue
		}
		delete(s.groups, k)
		if m, err := s.merge(g); err == nil {
			s.recovered = append(s.recovered, m)
		} else {
			s.log.WithError(err).Error("dropping unmergeable concatenated message")
		}
	}
	if len(s.recovered) > 0 {
		return s.rewrite()
	}
	return nil
}

// Recovered returns the messages completed while replaying the log, and
// clears them from the Store.
func (s *Store) Recovered() []*pdu.Message {
	r := s.recovered
	s.recovered = nil
	return r
}

// Len returns the number of incomplete messages held.
func (s *Store) Len() int {
	return len(s.groups)
}

func keyOf(m *pdu.Message) key {
	return key{
		wide:      m.Concat.Wide,
		alphabet:  m.Alphabet,
		reference: m.Concat.Reference,
		total:     m.Concat.Total,
		sender:    m.Address.Number,
	}
}

// add records the part, returning the group and whether the part was new.
func (s *Store) add(m *pdu.Message, raw string, when time.Time) (*group, bool) {
	k := keyOf(m)
	g, ok := s.groups[k]
	if !ok {
		g = &group{key: k, first: when, parts: make(map[int]string)}
		s.groups[k] = g
	}
	if when.Before(g.first) {
		g.first = when
	}
	if _, ok := g.parts[m.Concat.Part]; ok {
		return g, false
	}
	g.parts[m.Concat.Part] = raw
	return g, true
}

// remove drops a part that could not be persisted, and the group if that
// leaves it empty.
func (s *Store) remove(g *group, part int) {
	delete(g.parts, part)
	if len(g.parts) == 0 {
		delete(s.groups, g.key)
	}
}

// Ingest adds a decoded part to the Store.
//
// Messages that are not concatenated are returned Complete as is. Ingesting
// a part already held has no effect.
func (s *Store) Ingest(m *pdu.Message, raw string) Outcome {
	if m.Concat == nil {
		return Outcome{Kind: Complete, Message: m}
	}
	c := m.Concat
	if c.Total < 1 || c.Part < 1 || c.Part > c.Total {
		return Outcome{
			Kind:    Error,
			Message: m,
			Err:     errors.Wrapf(ErrInvalidPart, "part %d of %d", c.Part, c.Total),
		}
	}
	if c.Total == 1 {
		return Outcome{Kind: Complete, Message: m}
	}
	raw = strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	g, added := s.add(m, raw, s.now())
	if !added {
		s.log.WithFields(logrus.Fields{
			"reference": c.Reference,
			"part":      c.Part,
		}).Debug("ignoring duplicate part")
		return Outcome{Kind: Pending}
	}
	if !g.complete() {
		if err := s.append(g.first, raw); err != nil {
			s.remove(g, c.Part)
			return Outcome{Kind: Error, Message: m, Err: err}
		}
		return Outcome{Kind: Pending}
	}
	delete(s.groups, g.key)
	merged, err := s.merge(g)
	if rerr := s.rewrite(); rerr != nil && err == nil {
		s.log.WithError(rerr).Error("rewriting concatenation log")
	}
	if err != nil {
		return Outcome{Kind: Error, Message: merged, Err: err}
	}
	return Outcome{Kind: Complete, Message: merged}
}

// merge decodes the parts of the group and joins them in part order.
//
// Missing parts are skipped and the result marked Incomplete.
func (s *Store) merge(g *group) (*pdu.Message, error) {
	idx := make([]int, 0, len(g.parts))
	for i := range g.parts {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	var merged *pdu.Message
	var text strings.Builder
	var data []byte
	for _, i := range idx {
		m, err := pdu.Decode(g.parts[i], s.mode)
		if err != nil {
			if merged != nil {
				merged.Text = text.String()
				merged.Data = data
			}
			return merged, errors.Wrapf(err, "part %d", i)
		}
		if merged == nil {
			merged = m
		} else {
			merged.Warnings = append(merged.Warnings, m.Warnings...)
			merged.Diagnostics = append(merged.Diagnostics, m.Diagnostics...)
		}
		text.WriteString(m.Text)
		data = append(data, m.Data...)
	}
	merged.Text = text.String()
	merged.Data = data
	merged.Incomplete = len(idx) < g.key.total
	return merged, nil
}

// Purge removes the incomplete messages whose first part was received
// before the cutoff.
//
// If partial delivery is enabled the available parts of each removed
// message are returned, merged and marked Incomplete.
func (s *Store) Purge(olderThan time.Time) []*pdu.Message {
	var stale []*group
	for _, g := range s.groups {
		if g.first.Before(olderThan) {
			stale = append(stale, g)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].first.Before(stale[j].first) })
	var msgs []*pdu.Message
	for _, g := range stale {
		delete(s.groups, g.key)
		l := s.log.WithFields(logrus.Fields{
			"reference": g.key.reference,
			"parts":     fmt.Sprintf("%d/%d", len(g.parts), g.key.total),
			"sender":    g.key.sender,
		})
		if !s.partial {
			l.Info("discarding incomplete message")
			continue
		}
		m, err := s.merge(g)
		if err != nil {
			l.WithError(err).Warn("merging incomplete message")
		}
		if m != nil {
			m.Incomplete = true
			msgs = append(msgs, m)
		}
	}
	if err := s.rewrite(); err != nil {
		s.log.WithError(err).Error("rewriting concatenation log")
	}
	return msgs
}

// append adds a part to the log.
func (s *Store) append(first time.Time, raw string) error {
	if s.path == "" {
		return nil
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err = fmt.Fprintf(f, "%d %s\n", first.Unix(), raw); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return errors.WithStack(err)
}

// rewrite replaces the log with the parts currently held.
func (s *Store) rewrite() error {
	if s.path == "" {
		return nil
	}
	if len(s.groups) == 0 {
		err := os.Remove(s.path)
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithStack(err)
	}
	groups := make([]*group, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].first.Before(groups[j].first) })
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.WithStack(err)
	}
	w := bufio.NewWriter(f)
	for _, g := range groups {
		idx := make([]int, 0, len(g.parts))
		for i := range g.parts {
			idx = append(idx, i)
		}
		sort.Ints(idx)
		for _, i := range idx {
			fmt.Fprintf(w, "%d %s\n", g.first.Unix(), g.parts[i])
		}
	}
	err = w.Flush()
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmp, s.path))
}
