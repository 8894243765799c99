package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/retrotk/rtk-go/pkg/crypt"
	"github.com/retrotk/rtk-go/pkg/log"
	"github.com/retrotk/rtk-go/pkg/tick"
	"github.com/retrotk/rtk-go/pkg/transport"
)

// Registry errors.
var (
	// ErrSlotInUse is returned by Create for an occupied slot.
	ErrSlotInUse = errors.New("slot in use")

	// ErrSlotOutOfRange is returned for a slot outside [0, Capacity).
	ErrSlotOutOfRange = errors.New("slot out of range")

	// ErrRegistryFull is the capacity error returned when no slot is free.
	ErrRegistryFull = errors.New("registry full")

	// ErrIdle is the teardown cause for sessions reaped by ReapIdle.
	ErrIdle = errors.New("session idle")
)

// Option configures a session at creation.
type Option func(*Session)

// WithConn attaches the transport connection. It is closed on release.
func WithConn(conn transport.Conn) Option {
	return func(s *Session) {
		s.conn = conn
		if conn != nil {
			s.remote = addrString(conn.RemoteAddr())
		}
	}
}

// WithIndexes sets the per-connection index bytes instead of drawing them.
func WithIndexes(idx crypt.Indexes) Option {
	return func(s *Session) {
		s.indexes = idx
	}
}

// WithTick sets the creation and initial activity tick.
func WithTick(now tick.Tick) Option {
	return func(s *Session) {
		s.created = now
		s.lastActivity = now
	}
}

// WithCapture routes the session's capture events to l.
func WithCapture(l log.Logger) Option {
	return func(s *Session) {
		s.capture = log.OrNoop(l)
	}
}

// Registry is a fixed-capacity table of sessions indexed by slot.
type Registry struct {
	slots  []*Session
	count  int
	logger *slog.Logger

	// OnRelease, when set, is called after a session leaves the registry.
	OnRelease func(s *Session)
}

// NewRegistry creates a registry with capacity slots. A nil logger discards
// output.
func NewRegistry(capacity int, logger *slog.Logger) *Registry {
	if capacity < 0 {
		capacity = 0
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		slots:  make([]*Session, capacity),
		logger: logger,
	}
}

// Capacity returns the number of slots.
func (r *Registry) Capacity() int { return len(r.slots) }

// Len returns the number of occupied slots.
func (r *Registry) Len() int { return r.count }

// Create builds an ACTIVE session in slot. Read and write key schedules are
// derived from seed and the connection indexes, drawn at random unless
// WithIndexes is given.
func (r *Registry) Create(slot int, seed string, opts ...Option) (ID, error) {
	if slot < 0 || slot >= len(r.slots) {
		return ID{}, fmt.Errorf("%w: %d (capacity %d)", ErrSlotOutOfRange, slot, len(r.slots))
	}
	if r.slots[slot] != nil {
		return ID{}, fmt.Errorf("%w: %d", ErrSlotInUse, slot)
	}

	s := &Session{
		id:      ID{Slot: slot, ConnID: uuid.New()},
		seed:    seed,
		capture: log.NoopLogger{},
		indexes: crypt.RandomIndexes(),
		state:   StateActive,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.readKeys = crypt.NewKeySchedule(seed, s.indexes, crypt.ClientToServer)
	s.writeKeys = crypt.NewKeySchedule(seed, s.indexes, crypt.ServerToClient)

	r.slots[slot] = s
	r.count++

	s.Capture(log.DirectionIn, log.LayerSession, log.CategoryState, func(e *log.Event) {
		e.StateChange = &log.StateChangeEvent{NewState: StateActive.String(), Reason: "created"}
	})
	r.logger.Debug("session created", "slot", slot, "conn_id", s.id.ConnID, "remote", s.remote)
	return s.id, nil
}

// FreeSlot returns the lowest free slot, or ErrRegistryFull.
func (r *Registry) FreeSlot() (int, error) {
	for i, s := range r.slots {
		if s == nil {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %d sessions", ErrRegistryFull, len(r.slots))
}

// Lookup returns the session in slot, if any.
func (r *Registry) Lookup(slot int) (*Session, bool) {
	if slot < 0 || slot >= len(r.slots) {
		return nil, false
	}
	s := r.slots[slot]
	return s, s != nil
}

// Each calls fn for every occupied slot in slot order. fn may tear down the
// session it is given.
func (r *Registry) Each(fn func(s *Session)) {
	for _, s := range r.slots {
		if s != nil {
			fn(s)
		}
	}
}

// Teardown gracefully closes the session in slot. An ACTIVE session with
// queued output moves to CLOSING and is released by Finalize once the output
// has drained; otherwise it is released now. Tearing down a CLOSING, closed
// or empty slot is a no-op. cause may be nil.
func (r *Registry) Teardown(slot int, cause error) {
	s, ok := r.Lookup(slot)
	if !ok || s.state != StateActive {
		return
	}
	s.cause = cause
	if s.conn != nil && len(s.out) > 0 {
		s.in = s.in[:0]
		s.setState(StateClosing, reason(cause))
		r.logger.Debug("session closing", "slot", slot, "pending", len(s.out), "cause", cause)
		return
	}
	r.release(s, cause)
}

// TeardownImmediate releases the session in slot without draining output.
// It is a no-op for an empty slot.
func (r *Registry) TeardownImmediate(slot int, cause error) {
	s, ok := r.Lookup(slot)
	if !ok {
		return
	}
	if s.cause == nil {
		s.cause = cause
	}
	r.release(s, cause)
}

// Finalize releases a CLOSING session. It is a no-op for any other state.
func (r *Registry) Finalize(slot int) {
	s, ok := r.Lookup(slot)
	if !ok || s.state != StateClosing {
		return
	}
	r.release(s, s.cause)
}

// ReapIdle gracefully tears down ACTIVE sessions whose last activity is
// more than timeout before now, returning how many it tore down.
func (r *Registry) ReapIdle(now tick.Tick, timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}
	n := 0
	for i, s := range r.slots {
		if s == nil || s.state != StateActive {
			continue
		}
		if now.Since(s.lastActivity) > timeout {
			r.logger.Info("session idle", "slot", i, "idle", now.Since(s.lastActivity))
			r.Teardown(i, fmt.Errorf("%w: %s", ErrIdle, timeout))
			n++
		}
	}
	return n
}

// Clear releases every occupied slot immediately and returns how many were
// released.
func (r *Registry) Clear(cause error) int {
	n := 0
	for i := range r.slots {
		if r.slots[i] != nil {
			r.TeardownImmediate(i, cause)
			n++
		}
	}
	return n
}

func (r *Registry) release(s *Session, cause error) {
	slot := s.id.Slot
	r.slots[slot] = nil
	r.count--

	s.in = nil
	s.out = nil
	s.setState(StateClosed, reason(cause))

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			r.logger.Debug("session close", "slot", slot, "error", err)
		}
	}
	r.logger.Debug("session released", "slot", slot, "conn_id", s.id.ConnID, "cause", cause)

	if r.OnRelease != nil {
		r.OnRelease(s)
	}
}

func reason(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}
