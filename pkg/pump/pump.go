// Package pump moves bytes between transport connections and session
// buffers, once per loop iteration.
package pump

import (
	"errors"
	"io"
	"log/slog"

	"github.com/retrotk/rtk-go/pkg/log"
	"github.com/retrotk/rtk-go/pkg/metrics"
	"github.com/retrotk/rtk-go/pkg/session"
	"github.com/retrotk/rtk-go/pkg/tick"
	"github.com/retrotk/rtk-go/pkg/transport"
)

// Defaults.
const (
	DefaultReadChunkSize  = 4096
	DefaultMaxReadPerTick = 64 * 1024
	DefaultAcceptPerTick  = 32
)

// Config configures a Pump.
type Config struct {
	// Registry holds the sessions to pump. Required.
	Registry *session.Registry

	// Listener supplies new connections. Nil disables accepting.
	Listener transport.Listener

	// Seed is the cipher seed for accepted sessions.
	Seed string

	// ReadChunkSize is the size of a single TryRead. Default: 4096.
	ReadChunkSize int

	// MaxReadPerTick bounds the bytes read from one session per pass, so a
	// fast sender cannot starve the others. Default: 64 KiB.
	MaxReadPerTick int

	// AcceptPerTick bounds the connections accepted per pass. Default: 32.
	AcceptPerTick int

	// Capture is attached to accepted sessions. The pump records raw socket
	// bytes in both directions at the transport layer; deciphered frames are
	// recorded by the dispatcher.
	Capture log.Logger

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (c *Config) applyDefaults() {
	if c.ReadChunkSize <= 0 {
		c.ReadChunkSize = DefaultReadChunkSize
	}
	if c.MaxReadPerTick <= 0 {
		c.MaxReadPerTick = DefaultMaxReadPerTick
	}
	if c.AcceptPerTick <= 0 {
		c.AcceptPerTick = DefaultAcceptPerTick
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	c.Capture = log.OrNoop(c.Capture)
}

// Stats summarizes one pass.
type Stats struct {
	Accepted     int
	Rejected     int
	BytesRead    int
	BytesWritten int
	Released     int
}

// Pump runs the I/O phase.
type Pump struct {
	config       Config
	buf          []byte
	listenerDone bool
}

// New creates a Pump.
func New(config Config) *Pump {
	config.applyDefaults()
	return &Pump{
		config: config,
		buf:    make([]byte, config.ReadChunkSize),
	}
}

// Run performs one pass: accept pending connections, then for every
// session read available input (ACTIVE only), flush queued output (ACTIVE
// and CLOSING) and release CLOSING sessions whose output has drained.
// A session whose peer closed is torn down on the pass after EOF, so the
// dispatcher sees the input that arrived before it. Per-session faults tear
// down that session only.
func (p *Pump) Run(now tick.Tick) Stats {
	var st Stats
	p.accept(now, &st)

	reg := p.config.Registry
	reg.Each(func(s *session.Session) {
		if s.Conn() == nil {
			return
		}
		switch {
		case s.State() == session.StateActive && s.PeerClosed():
			// The dispatcher had its pass over the input buffered before EOF.
			p.config.Metrics.Teardown("eof")
			reg.Teardown(s.Slot(), io.EOF)
		case s.State() == session.StateActive:
			p.read(now, s, &st)
		}
		if s.State() == session.StateActive || s.State() == session.StateClosing {
			p.flush(s, &st)
		}
		if s.State() == session.StateClosing && s.PendingOutput() == 0 {
			reg.Finalize(s.Slot())
		}
		if s.State() == session.StateClosed {
			st.Released++
		}
	})

	p.config.Metrics.SetSessions(reg.Len())
	return st
}

func (p *Pump) accept(now tick.Tick, st *Stats) {
	ln := p.config.Listener
	if ln == nil || p.listenerDone {
		return
	}
	reg := p.config.Registry

	for range p.config.AcceptPerTick {
		conn, err := ln.TryAccept()
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				p.listenerDone = true
				p.config.Logger.Info("listener closed, no longer accepting")
				return
			}
			p.config.Logger.Warn("accept failed", "error", err)
			return
		}
		if conn == nil {
			return
		}

		slot, err := reg.FreeSlot()
		if err != nil {
			p.config.Logger.Warn("rejecting connection", "remote", conn.RemoteAddr(), "error", err)
			_ = conn.Close()
			st.Rejected++
			p.config.Metrics.Rejected()
			continue
		}
		if _, err := reg.Create(slot, p.config.Seed,
			session.WithConn(conn),
			session.WithTick(now),
			session.WithCapture(p.config.Capture),
		); err != nil {
			p.config.Logger.Error("create session", "slot", slot, "error", err)
			_ = conn.Close()
			continue
		}
		p.config.Logger.Info("connection accepted", "slot", slot, "remote", conn.RemoteAddr())
		st.Accepted++
		p.config.Metrics.Accepted()
	}
}

func (p *Pump) read(now tick.Tick, s *session.Session, st *Stats) {
	reg := p.config.Registry
	total := 0
	for total < p.config.MaxReadPerTick {
		want := min(len(p.buf), p.config.MaxReadPerTick-total)
		n, err := s.Conn().TryRead(p.buf[:want])
		if n > 0 {
			in := p.buf[:n]
			s.Capture(log.DirectionIn, log.LayerTransport, log.CategoryFrame, func(e *log.Event) {
				e.Frame = log.NewFrameEvent(n, 0, 0, in, true)
			})
			s.AppendInput(in)
			s.Touch(now)
			total += n
		}
		switch {
		case errors.Is(err, io.EOF):
			p.config.Logger.Info("peer closed", "slot", s.Slot())
			s.MarkPeerClosed()
			st.BytesRead += total
			p.config.Metrics.BytesRead(total)
			return
		case err != nil:
			p.config.Logger.Warn("read failed", "slot", s.Slot(), "error", err)
			p.config.Metrics.Teardown("transport")
			reg.TeardownImmediate(s.Slot(), err)
			st.BytesRead += total
			p.config.Metrics.BytesRead(total)
			return
		}
		if n == 0 {
			break
		}
	}
	st.BytesRead += total
	p.config.Metrics.BytesRead(total)
}

func (p *Pump) flush(s *session.Session, st *Stats) {
	for s.PendingOutput() > 0 {
		out := s.Output()
		n, err := s.Conn().TryWrite(out)
		if n > 0 {
			s.Capture(log.DirectionOut, log.LayerTransport, log.CategoryFrame, func(e *log.Event) {
				e.Frame = log.NewFrameEvent(n, 0, 0, out[:n], true)
			})
			s.ConsumeOutput(n)
			st.BytesWritten += n
			p.config.Metrics.BytesWritten(n)
		}
		if err != nil {
			p.config.Logger.Warn("write failed", "slot", s.Slot(), "error", err)
			p.config.Metrics.Teardown("transport")
			p.config.Registry.TeardownImmediate(s.Slot(), err)
			return
		}
		if n < len(out) {
			// Transport is full; the rest goes out next pass.
			return
		}
	}
}
