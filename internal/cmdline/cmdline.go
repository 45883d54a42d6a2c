// Package cmdline answers key and switch lookups against the kernel
// command line.
package cmdline

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultPath is where the running kernel exposes its command line.
const DefaultPath = "/proc/cmdline"

// Status reports how a key was found on the command line.
type Status int

const (
	// StatusAbsent means the key does not appear at all.
	StatusAbsent Status = iota
	// StatusNoValue means the key appears bare or as "key=".
	StatusNoValue
	// StatusFound means the key appears with a non-empty value.
	StatusFound
)

func (s Status) String() string {
	switch s {
	case StatusAbsent:
		return "absent"
	case StatusNoValue:
		return "no-value"
	case StatusFound:
		return "found"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

var ErrUnreadable = errors.New("kernel command line unreadable")

type param struct {
	key      string
	value    string
	hasValue bool
}

// Cmdline is a lazily loaded view of the kernel command line. The source
// is read on the first query; later queries reuse the parsed result, and
// a failed read is reported again on every query.
type Cmdline struct {
	path    string
	raw     string
	fromRaw bool
	loaded  bool
	params  []param
	loadErr error
}

// New returns a Cmdline backed by the file at path (DefaultPath if empty).
func New(path string) *Cmdline {
	if path == "" {
		path = DefaultPath
	}
	return &Cmdline{path: path}
}

// FromString returns a Cmdline backed by a literal command line, as used
// for $SYSTEMD_PROC_CMDLINE and for the plan subcommand.
func FromString(s string) *Cmdline {
	return &Cmdline{raw: s, fromRaw: true}
}

// Source names where the command line comes from, for logging.
func (c *Cmdline) Source() string {
	if c.fromRaw {
		return "string"
	}
	return c.path
}

func (c *Cmdline) load() error {
	if c.loaded {
		return c.loadErr
	}
	c.loaded = true
	raw := c.raw
	if !c.fromRaw {
		b, err := os.ReadFile(c.path)
		if err != nil {
			c.loadErr = fmt.Errorf("%w: %v", ErrUnreadable, err)
			return c.loadErr
		}
		raw = string(b)
	}
	c.params = parse(raw)
	return nil
}

func parse(raw string) []param {
	words := split(raw)
	out := make([]param, 0, len(words))
	for _, w := range words {
		// split on the first '=' only; values may contain more of them
		if key, value, ok := strings.Cut(w, "="); ok {
			out = append(out, param{key: key, value: value, hasValue: true})
		} else {
			out = append(out, param{key: w})
		}
	}
	return out
}

// split breaks raw into words the way the kernel does. Whitespace
// separates words except between double quotes, and the quotes are
// dropped. Nothing else is special, so # ' and \ are ordinary characters
// and an unterminated quote runs to the end of the line.
func split(raw string) []string {
	var (
		words   []string
		word    strings.Builder
		inWord  bool
		inQuote bool
	)
	for i := 0; i < len(raw); i++ {
		b := raw[i]
		switch {
		case b == '"':
			inQuote = !inQuote
			inWord = true
		case isSpace(b) && !inQuote:
			if inWord {
				words = append(words, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteByte(b)
			inWord = true
		}
	}
	if inWord {
		words = append(words, word.String())
	}
	return words
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// Param looks up key. When the key appears more than once the last
// occurrence wins, matching how the kernel and systemd treat repeats.
func (c *Cmdline) Param(key string) (string, Status, error) {
	if err := c.load(); err != nil {
		return "", StatusAbsent, err
	}
	status := StatusAbsent
	value := ""
	for _, p := range c.params {
		if p.key != key {
			continue
		}
		value = p.value
		if p.hasValue && p.value != "" {
			status = StatusFound
		} else {
			status = StatusNoValue
		}
	}
	return value, status, nil
}

// Switch reports whether name appears on the command line, either bare
// or with a value.
func (c *Cmdline) Switch(name string) (bool, error) {
	if err := c.load(); err != nil {
		return false, err
	}
	for _, p := range c.params {
		if p.key == name {
			return true, nil
		}
	}
	return false, nil
}
