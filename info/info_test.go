// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package info_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warthog618/smsgw/info"
)

func TestHasPrefix(t *testing.T) {
	l := "cmd: blah"
	assert.True(t, info.HasPrefix(l, "cmd"))
	assert.False(t, info.HasPrefix(l, "cmd:"))
}

func TestTrimPrefix(t *testing.T) {
	patterns := []struct {
		name     string
		line     string
		expected string
	}{
		{"no prefix", "info line", "info line"},
		{"prefix", "cmd:info line", "info line"},
		{"prefix and space", "cmd: info line", "info line"},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			assert.Equal(t, p.expected, info.TrimPrefix(p.line, "cmd"))
		}
		t.Run(p.name, f)
	}
}

func TestFields(t *testing.T) {
	patterns := []struct {
		name     string
		line     string
		cmd      string
		expected []string
	}{
		{"cmgl", "+CMGL: 3,1,,23", "+CMGL", []string{"3", "1", "", "23"}},
		{"creg", "+CREG: 0,5", "+CREG", []string{"0", "5"}},
		{"single", "+CMGS: 42", "+CMGS", []string{"42"}},
		{"quoted", `+CUSD: 0,"Balance: 1,50 EUR",15`, "+CUSD", []string{"0", `"Balance: 1,50 EUR"`, "15"}},
		{"csca", `+CSCA: "+31624000000",145`, "+CSCA", []string{`"+31624000000"`, "145"}},
		{"empty", "+CPIN:", "+CPIN", []string{""}},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			assert.Equal(t, p.expected, info.Fields(p.line, p.cmd))
		}
		t.Run(p.name, f)
	}
}

func TestUnquote(t *testing.T) {
	assert.Equal(t, "SM", info.Unquote(`"SM"`))
	assert.Equal(t, "SM", info.Unquote("SM"))
	assert.Equal(t, `"`, info.Unquote(`"`))
	assert.Equal(t, "", info.Unquote(`""`))
}

func TestInt(t *testing.T) {
	assert.Equal(t, 42, info.Int("42", -1))
	assert.Equal(t, 42, info.Int(" 42 ", -1))
	assert.Equal(t, -1, info.Int("", -1))
	assert.Equal(t, -1, info.Int("x", -1))
}
