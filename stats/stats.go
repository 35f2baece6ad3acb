// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// Package stats provides the counters and status shared between the device
// workers and the rest of the gateway.
//
// Slots are written by their worker and may be read at any time from other
// goroutines.
package stats

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"go.uber.org/atomic"
)

// Device is the slot for a single device.
type Device struct {
	Name string

	Sent     *atomic.Uint64
	Failed   *atomic.Uint64
	Received *atomic.Uint64
	Reports  *atomic.Uint64
	Timeouts *atomic.Uint64
	Reopens  *atomic.Uint64

	// Status is a short description of what the worker is doing.
	Status *atomic.String

	// Activity is the time of the last successful transaction.
	Activity *atomic.Time

	wake chan struct{}
}

// Worker status.
const (
	StatusIdle      = "idle"
	StatusInit      = "init"
	StatusSending   = "sending"
	StatusReceiving = "receiving"
	StatusBlocked   = "blocked"
	StatusStopped   = "stopped"
)

func newDevice(name string) *Device {
	return &Device{
		Name:     name,
		Sent:     atomic.NewUint64(0),
		Failed:   atomic.NewUint64(0),
		Received: atomic.NewUint64(0),
		Reports:  atomic.NewUint64(0),
		Timeouts: atomic.NewUint64(0),
		Reopens:  atomic.NewUint64(0),
		Status:   atomic.NewString(StatusIdle),
		Activity: atomic.NewTime(time.Time{}),
		wake:     make(chan struct{}, 1),
	}
}

// Wake requests the worker to check its spool immediately.
//
// Wakes are coalesced, so multiple wakes before the worker responds result
// in a single check.
func (d *Device) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Woken returns the channel that receives a value when the worker is woken.
func (d *Device) Woken() <-chan struct{} {
	return d.wake
}

// Touch records activity at time t.
func (d *Device) Touch(t time.Time) {
	d.Activity.Store(t)
}

// Snapshot is a point in time copy of a Device.
type Snapshot struct {
	Name     string
	Sent     uint64
	Failed   uint64
	Received uint64
	Reports  uint64
	Timeouts uint64
	Reopens  uint64
	Status   string
	Activity time.Time
}

// Snapshot returns a copy of the current values.
func (d *Device) Snapshot() Snapshot {
	return Snapshot{
		Name:     d.Name,
		Sent:     d.Sent.Load(),
		Failed:   d.Failed.Load(),
		Received: d.Received.Load(),
		Reports:  d.Reports.Load(),
		Timeouts: d.Timeouts.Load(),
		Reopens:  d.Reopens.Load(),
		Status:   d.Status.Load(),
		Activity: d.Activity.Load(),
	}
}

// Registry holds the slots for all devices.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]*Device)}
}

// Device returns the slot for the named device, creating it if necessary.
func (r *Registry) Device(name string) *Device {
	r.mu.RLock()
	d, ok := r.devices[name]
	r.mu.RUnlock()
	if ok {
		return d
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok = r.devices[name]; !ok {
		d = newDevice(name)
		r.devices[name] = d
	}
	return d
}

// Lookup returns the slot for the named device, if it exists.
func (r *Registry) Lookup(name string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[name]
	return d, ok
}

// Names returns the names of the registered devices, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.devices))
	for n := range r.devices {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// WakeAll wakes all registered workers.
func (r *Registry) WakeAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.devices {
		d.Wake()
	}
}

// Snapshot returns a snapshot of every device, sorted by name.
func (r *Registry) Snapshot() []Snapshot {
	names := r.Names()
	ss := make([]Snapshot, 0, len(names))
	for _, n := range names {
		if d, ok := r.Lookup(n); ok {
			ss = append(ss, d.Snapshot())
		}
	}
	return ss
}

// WriteTo writes a table of the current values.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	tw := tabwriter.NewWriter(cw, 0, 8, 1, ' ', 0)
	fmt.Fprintln(tw, "device\tstatus\tsent\tfailed\treceived\treports\ttimeouts\treopens\tactivity")
	for _, s := range r.Snapshot() {
		activity := "-"
		if !s.Activity.IsZero() {
			activity = s.Activity.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			s.Name, s.Status, s.Sent, s.Failed, s.Received, s.Reports,
			s.Timeouts, s.Reopens, activity)
	}
	err := tw.Flush()
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}
