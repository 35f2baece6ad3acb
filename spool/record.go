// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// Package spool provides the message records queued in spool directories.
//
// A record is a block of "Key: value" header lines, a blank line, and the
// message body.
package spool

import (
	"bufio"
	"bytes"
	"io"
	"io/ioutil"
	"strings"

	"github.com/pkg/errors"
)

// Record is a queued message.
type Record struct {
	// header fields in the order they were added
	keys   []string
	fields map[string]string
	Body   []byte
}

// ErrMalformed indicates a record header line without a key.
var ErrMalformed = errors.New("malformed record")

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{fields: make(map[string]string)}
}

// Parse reads a record.
//
// Header keys are matched without regard to case. A record without a blank
// line is all header.
func Parse(r io.Reader) (*Record, error) {
	rec := NewRecord()
	br := bufio.NewReader(r)
	line := 0
	for {
		l, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		line++
		h := strings.TrimRight(l, "\r\n")
		if h == "" {
			if err == io.EOF {
				return rec, nil
			}
			break
		}
		idx := strings.Index(h, ":")
		if idx <= 0 {
			return nil, errors.Wrapf(ErrMalformed, "line %d", line)
		}
		rec.Set(strings.TrimSpace(h[:idx]), strings.TrimSpace(h[idx+1:]))
		if err == io.EOF {
			return rec, nil
		}
	}
	body, err := ioutil.ReadAll(br)
	if err != nil {
		return nil, err
	}
	rec.Body = body
	return rec, nil
}

// Get returns the value of the field, or an empty string if the field is
// not present.
func (r *Record) Get(key string) string {
	return r.fields[strings.ToLower(key)]
}

// Has returns true if the field is present.
func (r *Record) Has(key string) bool {
	_, ok := r.fields[strings.ToLower(key)]
	return ok
}

// Bool returns true if the field is set to yes, true, on or 1.
//
// The default is returned if the field is not present.
func (r *Record) Bool(key string, def bool) bool {
	if !r.Has(key) {
		return def
	}
	switch strings.ToLower(r.Get(key)) {
	case "yes", "true", "on", "1":
		return true
	}
	return false
}

// HighPriority returns true if the Priority field is high, or set to yes.
func (r *Record) HighPriority() bool {
	if strings.EqualFold(r.Get("Priority"), "high") {
		return true
	}
	return r.Bool("Priority", false)
}

// Set sets the value of the field.
func (r *Record) Set(key, value string) {
	lk := strings.ToLower(key)
	if _, ok := r.fields[lk]; !ok {
		r.keys = append(r.keys, key)
	}
	r.fields[lk] = value
}

// Keys returns the field keys in the order they were added.
func (r *Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Fields returns a copy of the fields, keyed by lower case key.
func (r *Record) Fields() map[string]string {
	f := make(map[string]string, len(r.fields))
	for k, v := range r.fields {
		f[k] = v
	}
	return f
}

// WriteTo writes the record in the form read by Parse.
func (r *Record) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for _, k := range r.keys {
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(r.fields[strings.ToLower(k)])
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(r.Body)
	return buf.WriteTo(w)
}
