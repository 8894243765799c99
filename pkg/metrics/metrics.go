// Package metrics instruments the event loop with Prometheus collectors and
// serves them, together with a status snapshot, on a small admin router.
//
// A nil *Metrics is valid and records nothing, so components take one
// unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Phase names used as the "phase" label.
const (
	PhaseTimers   = "timers"
	PhasePump     = "pump"
	PhaseDispatch = "dispatch"
)

// Config configures the collectors.
type Config struct {
	// Namespace prefixes every metric name. Default: "rtk".
	Namespace string

	// Registry receives the collectors. Default: a fresh registry, so
	// several instances can coexist in tests.
	Registry *prometheus.Registry

	// Buckets for duration histograms. Default: 100µs to ~400ms.
	Buckets []float64
}

// Metrics holds the collectors.
type Metrics struct {
	registry *prometheus.Registry

	iterations     prometheus.Counter
	phaseDuration  *prometheus.HistogramVec
	sessions       prometheus.Gauge
	accepted       prometheus.Counter
	rejected       prometheus.Counter
	teardowns      *prometheus.CounterVec
	bytesRead      prometheus.Counter
	bytesWritten   prometheus.Counter
	frames         prometheus.Counter
	unknownOpcodes prometheus.Counter
	timersFired    prometheus.Counter
	timersPending  prometheus.Gauge
}

// New registers the collectors and returns them.
func New(config Config) *Metrics {
	if config.Namespace == "" {
		config.Namespace = "rtk"
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if len(config.Buckets) == 0 {
		config.Buckets = prometheus.ExponentialBuckets(0.0001, 2, 13)
	}
	factory := promauto.With(config.Registry)
	ns := config.Namespace

	return &Metrics{
		registry: config.Registry,

		iterations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "loop_iterations_total",
			Help: "Event loop iterations completed",
		}),
		phaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "loop_phase_duration_seconds",
			Help:    "Time spent in each loop phase",
			Buckets: config.Buckets,
		}, []string{"phase"}),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "sessions",
			Help: "Occupied session registry slots",
		}),
		accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "sessions_accepted_total",
			Help: "Connections accepted into a session slot",
		}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "sessions_rejected_total",
			Help: "Connections closed because the registry was full",
		}),
		teardowns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "session_teardowns_total",
			Help: "Session teardowns by cause",
		}, []string{"cause"}),
		bytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "bytes_read_total",
			Help: "Bytes read from peers",
		}),
		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "bytes_written_total",
			Help: "Bytes written to peers",
		}),
		frames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "frames_dispatched_total",
			Help: "Frames deciphered and routed to a handler",
		}),
		unknownOpcodes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "frames_unhandled_total",
			Help: "Frames routed to the default handler",
		}),
		timersFired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "timers_fired_total",
			Help: "Timer callbacks run",
		}),
		timersPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "timers_pending",
			Help: "Timers waiting to fire",
		}),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObservePhase records the duration of one loop phase.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// Iteration counts a completed loop iteration.
func (m *Metrics) Iteration() {
	if m == nil {
		return
	}
	m.iterations.Inc()
}

// SetSessions sets the occupied slot gauge.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

// Accepted counts a connection placed in a slot.
func (m *Metrics) Accepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
}

// Rejected counts a connection refused for capacity.
func (m *Metrics) Rejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

// Teardown counts a session teardown. cause is a short fixed label such as
// "eof", "transport" or "framing".
func (m *Metrics) Teardown(cause string) {
	if m == nil {
		return
	}
	m.teardowns.WithLabelValues(cause).Inc()
}

// BytesRead adds n inbound bytes.
func (m *Metrics) BytesRead(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesRead.Add(float64(n))
}

// BytesWritten adds n outbound bytes.
func (m *Metrics) BytesWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesWritten.Add(float64(n))
}

// FrameDispatched counts a routed frame; unhandled marks default-handler
// routing.
func (m *Metrics) FrameDispatched(unhandled bool) {
	if m == nil {
		return
	}
	m.frames.Inc()
	if unhandled {
		m.unknownOpcodes.Inc()
	}
}

// TimersFired adds n fired timers and sets the pending gauge.
func (m *Metrics) TimersFired(n, pending int) {
	if m == nil {
		return
	}
	m.timersFired.Add(float64(n))
	m.timersPending.Set(float64(pending))
}
