package console

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/chzyer/readline"
	"github.com/stretchr/testify/assert"
)

type scriptReader struct {
	lines  []string
	errs   []error
	closed bool
}

func (r *scriptReader) Readline() (string, error) {
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return "", err
		}
	}
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func (r *scriptReader) Close() error {
	r.closed = true
	return nil
}

type sink struct {
	lines []string
	full  bool
}

func (s *sink) Submit(line string) bool {
	if s.full {
		return false
	}
	s.lines = append(s.lines, line)
	return true
}

func TestForwardsLinesUntilQuit(t *testing.T) {
	dst := &sink{}
	quits := 0
	r := &scriptReader{lines: []string{"  status ", "", "kick 3", "QUIT", "never"}}
	var out bytes.Buffer
	c := NewWithReader(Config{Sink: dst, OnQuit: func() { quits++ }}, r, &out)

	c.Run(context.Background())

	assert.Equal(t, []string{"status", "kick 3"}, dst.lines)
	assert.Equal(t, 1, quits)
	assert.True(t, r.closed)
	assert.Contains(t, out.String(), "Exiting...")
}

func TestEOFQuits(t *testing.T) {
	quits := 0
	c := NewWithReader(Config{Sink: &sink{}, OnQuit: func() { quits++ }}, &scriptReader{}, nil)
	c.Run(context.Background())
	assert.Equal(t, 1, quits)
}

func TestInterruptIsIgnored(t *testing.T) {
	dst := &sink{}
	r := &scriptReader{
		lines: []string{"after"},
		errs:  []error{readline.ErrInterrupt, nil},
	}
	c := NewWithReader(Config{Sink: dst}, r, nil)
	c.Run(context.Background())
	assert.Equal(t, []string{"after"}, dst.lines)
}

func TestCancelledContextStops(t *testing.T) {
	dst := &sink{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &scriptReader{lines: []string{"x"}}
	NewWithReader(Config{Sink: dst}, r, nil).Run(ctx)
	assert.Empty(t, dst.lines)
	assert.True(t, r.closed)
}

func TestFullSinkDropsLine(t *testing.T) {
	dst := &sink{full: true}
	c := NewWithReader(Config{Sink: dst}, &scriptReader{lines: []string{"x"}}, nil)
	assert.NotPanics(t, func() { c.Run(context.Background()) })
	assert.Empty(t, dst.lines)
}
