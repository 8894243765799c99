package session

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/retrotk/rtk-go/pkg/crypt"
	"github.com/retrotk/rtk-go/pkg/log"
	"github.com/retrotk/rtk-go/pkg/tick"
	"github.com/retrotk/rtk-go/pkg/transport"
	"github.com/retrotk/rtk-go/pkg/wire"
)

// ErrSessionClosed is returned when output is queued on a session that is
// no longer ACTIVE.
var ErrSessionClosed = errors.New("session closed")

// State is the lifecycle state of a Session.
type State uint8

const (
	// StateActive sessions read, dispatch and write.
	StateActive State = iota

	// StateClosing sessions accept no further input and drain output.
	StateClosing

	// StateClosed sessions have been released from the registry.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// ID identifies one session instance. A reused slot gets a new ConnID.
type ID struct {
	Slot   int
	ConnID uuid.UUID
}

// String returns "slot/conn-id".
func (id ID) String() string {
	return fmt.Sprintf("%d/%s", id.Slot, id.ConnID)
}

// Session is the per-connection state held by a Registry slot.
type Session struct {
	id      ID
	seed    string
	conn    transport.Conn
	remote  string
	capture log.Logger

	indexes   crypt.Indexes
	readKeys  *crypt.KeySchedule
	writeKeys *crypt.KeySchedule

	state        State
	created      tick.Tick
	lastActivity tick.Tick
	cause        error

	in         []byte
	out        []byte
	seq        byte
	peerClosed bool
}

// ID returns the session identity.
func (s *Session) ID() ID { return s.id }

// Slot returns the registry slot the session occupies.
func (s *Session) Slot() int { return s.id.Slot }

// Seed returns the cipher seed the session was created with.
func (s *Session) Seed() string { return s.seed }

// Conn returns the transport connection, or nil for detached sessions.
func (s *Session) Conn() transport.Conn { return s.conn }

// RemoteAddr returns the peer address, or "" when unknown.
func (s *Session) RemoteAddr() string { return s.remote }

// Indexes returns the per-connection index bytes the key schedules were
// built from.
func (s *Session) Indexes() crypt.Indexes { return s.indexes }

// ReadKeys returns the schedule for deciphering inbound frames.
func (s *Session) ReadKeys() *crypt.KeySchedule { return s.readKeys }

// WriteKeys returns the schedule for ciphering outbound frames.
func (s *Session) WriteKeys() *crypt.KeySchedule { return s.writeKeys }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Cause returns the error that started teardown, if any.
func (s *Session) Cause() error { return s.cause }

// Created returns the tick the session was created on.
func (s *Session) Created() tick.Tick { return s.created }

// LastActivity returns the tick of the last read or dispatched frame.
func (s *Session) LastActivity() tick.Tick { return s.lastActivity }

// Touch records activity at now.
func (s *Session) Touch(now tick.Tick) {
	if now > s.lastActivity {
		s.lastActivity = now
	}
}

// AppendInput appends bytes read from the connection. Input is dropped
// unless the session is ACTIVE.
func (s *Session) AppendInput(p []byte) {
	if s.state != StateActive {
		return
	}
	s.in = append(s.in, p...)
}

// MarkPeerClosed records that the peer ended its side of the stream.
// Buffered input stays queued so complete frames can still be dispatched.
func (s *Session) MarkPeerClosed() { s.peerClosed = true }

// PeerClosed reports whether MarkPeerClosed was called.
func (s *Session) PeerClosed() bool { return s.peerClosed }

// Input returns the buffered, not yet framed input. The slice is valid until
// the next AppendInput or ConsumeInput.
func (s *Session) Input() []byte { return s.in }

// ConsumeInput discards the first n input bytes.
func (s *Session) ConsumeInput(n int) {
	s.in = consume(s.in, n)
}

// Output returns the queued, not yet written output.
func (s *Session) Output() []byte { return s.out }

// ConsumeOutput discards the first n output bytes after a write.
func (s *Session) ConsumeOutput(n int) {
	s.out = consume(s.out, n)
}

// PendingOutput returns the number of queued output bytes.
func (s *Session) PendingOutput() int { return len(s.out) }

// Send seals payload into a frame with the write key schedule and queues it.
// The frame is written by the pump no earlier than its next pass.
func (s *Session) Send(opcode byte, payload []byte) error {
	if s.state != StateActive {
		return fmt.Errorf("%w: slot %d is %s", ErrSessionClosed, s.id.Slot, s.state)
	}
	frame, err := wire.Seal(opcode, s.seq, payload, s.writeKeys, s.seed)
	if err != nil {
		return err
	}
	s.seq++
	s.out = append(s.out, frame...)

	s.capture.Log(s.event(log.DirectionOut, log.LayerWire, log.CategoryFrame, func(e *log.Event) {
		e.Frame = log.NewFrameEvent(len(frame), opcode, frame[4], payload, false)
	}))
	return nil
}

// Enqueue queues raw, already framed bytes for writing.
func (s *Session) Enqueue(frame []byte) error {
	if s.state != StateActive {
		return fmt.Errorf("%w: slot %d is %s", ErrSessionClosed, s.id.Slot, s.state)
	}
	s.out = append(s.out, frame...)
	return nil
}

// Capture records a capture event stamped with the session identity.
func (s *Session) Capture(dir log.Direction, layer log.Layer, cat log.Category, fill func(*log.Event)) {
	s.capture.Log(s.event(dir, layer, cat, fill))
}

func (s *Session) event(dir log.Direction, layer log.Layer, cat log.Category, fill func(*log.Event)) log.Event {
	e := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.id.ConnID.String(),
		Slot:         s.id.Slot,
		Direction:    dir,
		Layer:        layer,
		Category:     cat,
		RemoteAddr:   s.remote,
		Tick:         uint64(s.lastActivity),
	}
	if fill != nil {
		fill(&e)
	}
	return e
}

func (s *Session) setState(next State, reason string) {
	old := s.state
	s.state = next
	s.capture.Log(s.event(log.DirectionIn, log.LayerSession, log.CategoryState, func(e *log.Event) {
		e.StateChange = &log.StateChangeEvent{
			OldState: old.String(),
			NewState: next.String(),
			Reason:   reason,
		}
	}))
}

// consume drops n leading bytes, reusing the backing array once it empties.
func consume(buf []byte, n int) []byte {
	if n >= len(buf) {
		return buf[:0]
	}
	return buf[n:]
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
