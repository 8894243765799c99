// Package dispatch frames buffered session input, deciphers each complete
// frame and routes it to the handler registered for its opcode.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/retrotk/rtk-go/pkg/log"
	"github.com/retrotk/rtk-go/pkg/metrics"
	"github.com/retrotk/rtk-go/pkg/session"
	"github.com/retrotk/rtk-go/pkg/tick"
	"github.com/retrotk/rtk-go/pkg/wire"
)

// DefaultMaxFrameLength is the default upper bound for a frame's length
// field.
const DefaultMaxFrameLength = 0x2000

// ErrHandlerPanic marks a session torn down because its handler panicked.
var ErrHandlerPanic = errors.New("handler panic")

// Handler processes one deciphered packet. pkt.Payload aliases the
// session's input buffer and is only valid for the duration of the call.
type Handler interface {
	HandlePacket(now tick.Tick, s *session.Session, pkt wire.Packet)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(now tick.Tick, s *session.Session, pkt wire.Packet)

// HandlePacket calls f.
func (f HandlerFunc) HandlePacket(now tick.Tick, s *session.Session, pkt wire.Packet) {
	f(now, s, pkt)
}

// Config configures a Dispatcher.
type Config struct {
	// Registry holds the sessions to dispatch. Required.
	Registry *session.Registry

	// MaxFrameLength is the largest accepted length field. Frames declaring
	// more tear down their session. Default: DefaultMaxFrameLength.
	MaxFrameLength int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Stats summarizes one pass.
type Stats struct {
	Frames    int
	Malformed int
	Panics    int
}

// Dispatcher runs the dispatch phase.
type Dispatcher struct {
	config   Config
	handlers [256]Handler
	fallback Handler
}

// New creates a Dispatcher whose default handler logs and drops packets.
func New(config Config) *Dispatcher {
	if config.MaxFrameLength <= 0 {
		config.MaxFrameLength = DefaultMaxFrameLength
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	d := &Dispatcher{config: config}
	d.fallback = HandlerFunc(d.unhandled)
	return d
}

// Handle registers h for opcode, replacing any previous handler. A nil h
// removes the registration.
func (d *Dispatcher) Handle(opcode byte, h Handler) {
	d.handlers[opcode] = h
}

// HandleFunc registers fn for opcode.
func (d *Dispatcher) HandleFunc(opcode byte, fn func(now tick.Tick, s *session.Session, pkt wire.Packet)) {
	d.Handle(opcode, HandlerFunc(fn))
}

// SetDefault sets the handler for opcodes without a registration. A nil h
// restores the logging default.
func (d *Dispatcher) SetDefault(h Handler) {
	if h == nil {
		h = HandlerFunc(d.unhandled)
	}
	d.fallback = h
}

// Run dispatches every complete frame buffered on ACTIVE sessions. Partial
// frames stay buffered. Malformed framing tears down the owning session
// and dispatch continues with the next one.
func (d *Dispatcher) Run(now tick.Tick) Stats {
	var st Stats
	d.config.Registry.Each(func(s *session.Session) {
		d.drain(now, s, &st)
	})
	return st
}

func (d *Dispatcher) drain(now tick.Tick, s *session.Session, st *Stats) {
	reg := d.config.Registry
	for s.State() == session.StateActive {
		in := s.Input()
		if len(in) == 0 {
			return
		}
		h, err := wire.PeekHeader(in, d.config.MaxFrameLength)
		if errors.Is(err, wire.ErrIncomplete) {
			return
		}
		if err != nil {
			d.config.Logger.Warn("malformed frame", "slot", s.Slot(), "remote", s.RemoteAddr(), "error", err)
			s.Capture(log.DirectionIn, log.LayerWire, log.CategoryError, func(e *log.Event) {
				e.Error = &log.ErrorEventData{Layer: log.LayerWire, Message: err.Error(), Context: "framing"}
			})
			st.Malformed++
			d.config.Metrics.Teardown("framing")
			reg.Teardown(s.Slot(), err)
			return
		}

		size := h.Size()
		frame := in[:size]
		pkt, err := wire.Open(frame, s.ReadKeys(), s.Seed())
		if err != nil {
			// PeekHeader already accepted this frame.
			reg.Teardown(s.Slot(), err)
			return
		}
		s.Touch(now)
		s.Capture(log.DirectionIn, log.LayerWire, log.CategoryFrame, func(e *log.Event) {
			e.Tick = uint64(now)
			e.Frame = log.NewFrameEvent(size, pkt.Opcode, pkt.Seq, frame, false)
		})

		handler := d.handlers[pkt.Opcode]
		unhandled := handler == nil
		if unhandled {
			handler = d.fallback
		}
		st.Frames++
		d.config.Metrics.FrameDispatched(unhandled)
		if !d.call(handler, now, s, pkt) {
			st.Panics++
			return
		}
		s.ConsumeInput(size)
	}
}

// call runs h, converting a panic into a teardown of the session.
func (d *Dispatcher) call(h Handler, now tick.Tick, s *session.Session, pkt wire.Packet) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: opcode 0x%02X: %v", ErrHandlerPanic, pkt.Opcode, r)
			d.config.Logger.Error("packet handler panicked", "slot", s.Slot(), "error", err)
			d.config.Metrics.Teardown("handler")
			d.config.Registry.TeardownImmediate(s.Slot(), err)
			ok = false
		}
	}()
	h.HandlePacket(now, s, pkt)
	return true
}

func (d *Dispatcher) unhandled(_ tick.Tick, s *session.Session, pkt wire.Packet) {
	d.config.Logger.Debug("unhandled opcode",
		"slot", s.Slot(),
		"opcode", fmt.Sprintf("0x%02X", pkt.Opcode),
		"len", len(pkt.Payload))
}
