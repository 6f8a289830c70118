// Package message frames Atalla commands: <f0#f1#...#fn#> with field 0 the
// command code.
package message

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andrei-cloud/go_atalla/internal/logging"
)

const (
	frameStart = '<'
	frameEnd   = '>'
	separator  = "#"
)

var (
	ErrEmpty     = errors.New("empty message")
	ErrMalformed = errors.New("message must be enclosed in < and >")
)

// Command is one parsed request line.
type Command struct {
	Code   string
	Fields []string
}

// Parse splits a request line into its command code and fields. Trailing
// whitespace is ignored, and the empty element after the final '#' is dropped.
func Parse(line string) (*Command, error) {
	line = strings.TrimRight(line, "\r\n \t")
	if line == "" {
		return nil, ErrEmpty
	}
	if len(line) < 2 || line[0] != frameStart || line[len(line)-1] != frameEnd {
		return nil, ErrMalformed
	}

	parts := strings.Split(line[1:len(line)-1], separator)
	if n := len(parts); n > 1 && parts[n-1] == "" {
		parts = parts[:n-1]
	}
	if parts[0] == "" {
		return nil, fmt.Errorf("%w: missing command code", ErrMalformed)
	}

	return &Command{Code: parts[0], Fields: parts[1:]}, nil
}

// Format renders response fields as a single frame, always ending in "#>".
func Format(fields ...string) string {
	var b strings.Builder
	b.WriteByte(frameStart)
	for _, f := range fields {
		b.WriteString(f)
		b.WriteString(separator)
	}
	b.WriteByte(frameEnd)

	return b.String()
}

// Get returns the 1-based field n, or "" when the command is shorter.
func (c *Command) Get(n int) string {
	if n < 1 || n > len(c.Fields) {
		return ""
	}

	return c.Fields[n-1]
}

// Len returns the number of fields after the command code.
func (c *Command) Len() int {
	return len(c.Fields)
}

// Trace renders the command for logs. Key blocks keep only their header and
// anything long enough to be a PAN, PIN block or clear key is masked.
func (c *Command) Trace() string {
	var b strings.Builder
	b.WriteString(c.Code)
	for _, f := range c.Fields {
		b.WriteString(separator)
		b.WriteString(redact(f))
	}

	return b.String()
}

func redact(field string) string {
	if header, _, ok := strings.Cut(field, ","); ok {
		return header + ",..."
	}

	return logging.MaskPartial(field, 4, 4, '*')
}
