// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package spool

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Dir is a spool directory.
//
// Files beginning with a '.' are in the process of being written and are
// ignored.
type Dir struct {
	path string
}

// Entry is a record read from a Dir.
type Entry struct {
	Name   string
	Record *Record
}

// ErrEmpty indicates the directory holds no records.
var ErrEmpty = errors.New("spool empty")

// Open opens the spool directory, creating it if necessary.
func Open(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, errors.Wrapf(err, "spool %s", path)
	}
	return &Dir{path: path}, nil
}

// Path returns the path of the directory.
func (d *Dir) Path() string {
	return d.path
}

// List returns the names of the records in the directory, oldest first.
func (d *Dir) List() ([]string, error) {
	files, err := ioutil.ReadDir(d.path)
	if err != nil {
		return nil, err
	}
	var ff []os.FileInfo
	for _, f := range files {
		if f.IsDir() || strings.HasPrefix(f.Name(), ".") {
			continue
		}
		ff = append(ff, f)
	}
	sort.SliceStable(ff, func(i, j int) bool {
		if ff[i].ModTime().Equal(ff[j].ModTime()) {
			return ff[i].Name() < ff[j].Name()
		}
		return ff[i].ModTime().Before(ff[j].ModTime())
	})
	names := make([]string, len(ff))
	for i, f := range ff {
		names[i] = f.Name()
	}
	return names, nil
}

// Next returns the oldest high priority record in the directory, or the
// oldest record if none are high priority.
//
// The record remains in the directory until it is passed to Done or Fail.
// Records that cannot be parsed are returned with the parse error.
func (d *Dir) Next() (*Entry, error) {
	names, err := d.List()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrEmpty
	}
	var oldest *Entry
	var oerr error
	for i, name := range names {
		e, err := d.Read(name)
		if i == 0 {
			oldest, oerr = e, err
		}
		if err == nil && e.Record.HighPriority() {
			return e, nil
		}
	}
	return oldest, oerr
}

// Read reads the named record.
func (d *Dir) Read(name string) (*Entry, error) {
	f, err := os.Open(filepath.Join(d.path, name))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	e := &Entry{Name: name}
	e.Record, err = Parse(f)
	if err != nil {
		return e, errors.Wrap(err, name)
	}
	return e, nil
}

// Done removes the named record.
func (d *Dir) Done(name string) error {
	return os.Remove(filepath.Join(d.path, name))
}

// Fail removes the named record after storing it, with the reason added,
// in the failed directory.
//
// A record that could not be parsed is stored as the body of a new record.
// If failed is nil the record is only removed.
func (d *Dir) Fail(e *Entry, reason string, failed *Dir) error {
	if failed == nil {
		return d.Done(e.Name)
	}
	if e.Record == nil {
		b, err := ioutil.ReadFile(filepath.Join(d.path, e.Name))
		if err != nil {
			return err
		}
		e.Record = NewRecord()
		e.Record.Body = b
	}
	e.Record.Set("Fail_reason", reason)
	return d.Move(e, failed)
}

// Move stores the record in the other directory, under the same name, then
// removes it from this one.
func (d *Dir) Move(e *Entry, to *Dir) error {
	if err := to.put(e.Name, e.Record); err != nil {
		return err
	}
	return d.Done(e.Name)
}

// Store writes a new record into the directory.
//
// The name of the record is the prefix followed by a unique suffix.
func (d *Dir) Store(prefix string, r *Record) (string, error) {
	name := prefix + "." + uuid.New().String()
	if err := d.put(name, r); err != nil {
		return "", err
	}
	return name, nil
}

// put writes the record atomically, so readers never see a partial record.
func (d *Dir) put(name string, r *Record) error {
	tmp := filepath.Join(d.path, "."+name)
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err = r.WriteTo(f); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "store %s", name)
	}
	return os.Rename(tmp, filepath.Join(d.path, name))
}
