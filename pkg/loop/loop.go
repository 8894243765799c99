package loop

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/retrotk/rtk-go/pkg/dispatch"
	"github.com/retrotk/rtk-go/pkg/metrics"
	"github.com/retrotk/rtk-go/pkg/pump"
	"github.com/retrotk/rtk-go/pkg/session"
	"github.com/retrotk/rtk-go/pkg/tick"
	"github.com/retrotk/rtk-go/pkg/timer"
)

// DefaultIdleInterval is the sleep between iterations.
const DefaultIdleInterval = 2 * time.Millisecond

// DefaultInputBacklog is the number of console lines that may wait for the
// loop before Submit starts refusing them.
const DefaultInputBacklog = 64

var (
	// ErrShutdown is the teardown cause recorded on sessions released by
	// shutdown.
	ErrShutdown = errors.New("server shutting down")

	// ErrAlreadyRun is returned by a second call to Run.
	ErrAlreadyRun = errors.New("loop already run")

	// ErrNoRegistry is returned by New without a session registry.
	ErrNoRegistry = errors.New("loop requires a session registry")
)

// Hooks are the strategies supplied by the embedding application.
type Hooks struct {
	// OnTerminate runs once, on the loop goroutine, before timers are
	// cleared and sessions released.
	OnTerminate func()

	// ParseInput handles one console line on the loop goroutine. Nil
	// selects DefaultParseInput.
	ParseInput func(line string) int
}

// DefaultParseInput ignores the line and returns 0.
func DefaultParseInput(string) int { return 0 }

// Config configures a Loop.
type Config struct {
	// Registry is the session table. Required.
	Registry *session.Registry

	// Clock defaults to a clock started by New.
	Clock *tick.Clock

	// Timers defaults to an empty queue.
	Timers *timer.Queue

	// Pump and Dispatcher run the I/O and dispatch phases; nil skips the
	// phase.
	Pump       *pump.Pump
	Dispatcher *dispatch.Dispatcher

	Hooks Hooks

	// IdleInterval is the unconditional sleep between iterations. Default:
	// DefaultIdleInterval.
	IdleInterval time.Duration

	// InputBacklog bounds queued console lines. Default:
	// DefaultInputBacklog.
	InputBacklog int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Status is a snapshot of loop state, safe to read from any goroutine.
type Status struct {
	Tick         uint64 `json:"tick"`
	Iterations   uint64 `json:"iterations"`
	Sessions     int    `json:"sessions"`
	Capacity     int    `json:"capacity"`
	Timers       int    `json:"timers"`
	Running      bool   `json:"running"`
	ShuttingDown bool   `json:"shutting_down"`
	Stopped      bool   `json:"stopped"`
}

// Loop owns the registry, clock and timer queue for the life of the
// process and is the only goroutine that touches them.
type Loop struct {
	config Config
	input  chan string

	shutdown atomic.Bool
	started  atomic.Bool
	status   atomic.Pointer[Status]
	done     chan struct{}

	iterations uint64
}

// New validates config and returns a Loop ready to Run.
func New(config Config) (*Loop, error) {
	if config.Registry == nil {
		return nil, ErrNoRegistry
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Clock == nil {
		config.Clock = tick.NewClock()
	}
	if config.Timers == nil {
		config.Timers = timer.NewQueue(config.Logger)
	}
	if config.Hooks.ParseInput == nil {
		config.Hooks.ParseInput = DefaultParseInput
	}
	if config.IdleInterval <= 0 {
		config.IdleInterval = DefaultIdleInterval
	}
	if config.InputBacklog <= 0 {
		config.InputBacklog = DefaultInputBacklog
	}

	l := &Loop{
		config: config,
		input:  make(chan string, config.InputBacklog),
		done:   make(chan struct{}),
	}
	l.publish(false, false)
	return l, nil
}

// Timers returns the loop's timer queue. It must only be used from timer
// callbacks, handlers and hooks, which run on the loop goroutine.
func (l *Loop) Timers() *timer.Queue { return l.config.Timers }

// Clock returns the loop's tick clock.
func (l *Loop) Clock() *tick.Clock { return l.config.Clock }

// RequestShutdown asks the loop to stop at the next iteration boundary. It
// is safe to call from any goroutine, any number of times.
func (l *Loop) RequestShutdown() {
	if l.shutdown.CompareAndSwap(false, true) {
		l.config.Logger.Info("shutdown requested")
	}
}

// Submit queues a console line for the input hook. It is safe for
// concurrent use and reports false when the backlog is full.
func (l *Loop) Submit(line string) bool {
	select {
	case l.input <- line:
		return true
	default:
		return false
	}
}

// Status returns the snapshot published at the end of the last iteration.
func (l *Loop) Status() Status {
	return *l.status.Load()
}

// Done is closed once Run has completed shutdown.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Run iterates until shutdown is requested or ctx is cancelled, then runs
// the shutdown sequence and returns nil. Run may be called once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	l.config.Logger.Info("event loop started",
		"capacity", l.config.Registry.Capacity(),
		"idle", l.config.IdleInterval)

	idle := time.NewTimer(l.config.IdleInterval)
	defer idle.Stop()

	for !l.stopping(ctx) {
		l.iterate()

		idle.Reset(l.config.IdleInterval)
		select {
		case <-idle.C:
		case <-ctx.Done():
		}
	}

	l.shutdownSequence()
	return nil
}

func (l *Loop) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		l.RequestShutdown()
	}
	return l.shutdown.Load()
}

// iterate runs one pass of every phase.
func (l *Loop) iterate() {
	now := l.config.Clock.NowFresh()
	l.drainInput()

	m := l.config.Metrics
	start := time.Now()
	fired := l.config.Timers.RunDue(now)
	m.TimersFired(fired, l.config.Timers.Len())
	m.ObservePhase(metrics.PhaseTimers, time.Since(start))

	if p := l.config.Pump; p != nil {
		start = time.Now()
		p.Run(now)
		m.ObservePhase(metrics.PhasePump, time.Since(start))
	}
	if d := l.config.Dispatcher; d != nil {
		start = time.Now()
		d.Run(now)
		m.ObservePhase(metrics.PhaseDispatch, time.Since(start))
	}

	l.iterations++
	m.Iteration()
	l.publish(true, false)
}

func (l *Loop) drainInput() {
	for {
		select {
		case line := <-l.input:
			if rc := l.config.Hooks.ParseInput(line); rc != 0 {
				l.config.Logger.Debug("console input", "line", line, "result", rc)
			}
		default:
			return
		}
	}
}

// shutdownSequence runs the terminate hook, clears timers and releases
// every session, in that order.
func (l *Loop) shutdownSequence() {
	l.publish(true, true)
	l.config.Logger.Info("shutting down", "sessions", l.config.Registry.Len())

	if hook := l.config.Hooks.OnTerminate; hook != nil {
		hook()
	}
	l.config.Timers.Clear()
	released := l.config.Registry.Clear(ErrShutdown)
	l.config.Metrics.SetSessions(l.config.Registry.Len())

	l.config.Logger.Info("event loop stopped", "released", released, "iterations", l.iterations)
	st := l.snapshot(false, true)
	st.Stopped = true
	l.status.Store(&st)
	close(l.done)
}

func (l *Loop) publish(running, shuttingDown bool) {
	st := l.snapshot(running, shuttingDown)
	l.status.Store(&st)
}

func (l *Loop) snapshot(running, shuttingDown bool) Status {
	return Status{
		Tick:         uint64(l.config.Clock.NowCached()),
		Iterations:   l.iterations,
		Sessions:     l.config.Registry.Len(),
		Capacity:     l.config.Registry.Capacity(),
		Timers:       l.config.Timers.Len(),
		Running:      running,
		ShuttingDown: shuttingDown,
	}
}
