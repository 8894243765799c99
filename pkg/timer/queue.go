package timer

import (
	"container/heap"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eapache/queue"

	"github.com/retrotk/rtk-go/pkg/tick"
)

// Timer errors.
var (
	ErrTimerNotFound = errors.New("timer not found")
	ErrNilCallback   = errors.New("timer callback is nil")
)

// ID identifies a registered timer.
type ID uint64

// Func is a timer callback. It receives the tick of the pass that fired it
// and the event itself, so a callback can read its Owner or cancel itself.
type Func func(now tick.Tick, ev *Event)

// Event is a scheduled timer.
type Event struct {
	// Due is the absolute tick at which the event becomes eligible.
	Due tick.Tick

	// Interval is the repeat interval; zero means one-shot.
	Interval time.Duration

	// Owner is an opaque handle supplied by whoever registered the timer.
	Owner any

	id        ID
	seq       uint64
	fn        Func
	index     int // heap position, -1 when not in the heap
	cancelled bool
}

// ID returns the timer's identifier.
func (e *Event) ID() ID {
	return e.id
}

// Repeating reports whether the event reschedules itself after firing.
func (e *Event) Repeating() bool {
	return e.Interval > 0
}

// Queue holds pending timer events.
type Queue struct {
	pending eventHeap
	staged  *queue.Queue
	byID    map[ID]*Event

	nextID  ID
	nextSeq uint64

	logger *slog.Logger
}

// NewQueue creates an empty timer queue. A nil logger discards output.
func NewQueue(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Queue{
		staged: queue.New(),
		byID:   make(map[ID]*Event),
		logger: logger,
	}
}

// Add registers a timer due at the absolute tick due. A zero interval makes
// it one-shot. The timer is eligible starting with the next RunDue pass.
func (q *Queue) Add(due tick.Tick, interval time.Duration, owner any, fn Func) (ID, error) {
	if fn == nil {
		return 0, ErrNilCallback
	}
	if interval < 0 {
		interval = 0
	}

	q.nextID++
	q.nextSeq++
	ev := &Event{
		Due:      due,
		Interval: interval,
		Owner:    owner,
		id:       q.nextID,
		seq:      q.nextSeq,
		fn:       fn,
		index:    -1,
	}
	q.byID[ev.id] = ev
	q.staged.Add(ev)
	return ev.id, nil
}

// After registers a timer due delay after now.
func (q *Queue) After(now tick.Tick, delay, interval time.Duration, owner any, fn Func) (ID, error) {
	return q.Add(now.Add(delay), interval, owner, fn)
}

// Cancel removes a pending timer. Cancelling a timer from inside its own
// callback stops a repeating timer from being rescheduled.
func (q *Queue) Cancel(id ID) error {
	ev, ok := q.byID[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTimerNotFound, id)
	}
	ev.cancelled = true
	delete(q.byID, id)
	if ev.index >= 0 {
		heap.Remove(&q.pending, ev.index)
	}
	return nil
}

// Clear drops every pending timer without firing it.
func (q *Queue) Clear() {
	for _, ev := range q.byID {
		ev.cancelled = true
	}
	q.pending = nil
	q.staged = queue.New()
	q.byID = make(map[ID]*Event)
}

// Len returns the number of pending timers.
func (q *Queue) Len() int {
	return len(q.byID)
}

// Next returns the earliest due tick among pending timers.
func (q *Queue) Next() (tick.Tick, bool) {
	var (
		best  tick.Tick
		found bool
	)
	if len(q.pending) > 0 {
		best, found = q.pending[0].Due, true
	}
	for i := 0; i < q.staged.Length(); i++ {
		ev := q.staged.Get(i).(*Event)
		if ev.cancelled {
			continue
		}
		if !found || ev.Due < best {
			best, found = ev.Due, true
		}
	}
	return best, found
}

// RunDue fires every timer with Due <= now that was eligible when the pass
// began, in due-tick then registration order. It returns the number of
// callbacks invoked.
func (q *Queue) RunDue(now tick.Tick) int {
	q.promote()

	var due []*Event
	for len(q.pending) > 0 && q.pending[0].Due <= now {
		due = append(due, heap.Pop(&q.pending).(*Event))
	}

	fired := 0
	for _, ev := range due {
		if ev.cancelled {
			continue
		}
		q.fire(now, ev)
		fired++

		if ev.cancelled {
			continue
		}
		if ev.Repeating() {
			next := ev.Due.Add(ev.Interval)
			if next <= ev.Due {
				next = ev.Due + 1
			}
			ev.Due = next
			q.staged.Add(ev)
			continue
		}
		delete(q.byID, ev.id)
	}
	return fired
}

// promote moves staged events into the ordered heap.
func (q *Queue) promote() {
	for q.staged.Length() > 0 {
		ev := q.staged.Remove().(*Event)
		if ev.cancelled {
			continue
		}
		heap.Push(&q.pending, ev)
	}
}

// fire invokes the callback, containing any panic to this one timer.
func (q *Queue) fire(now tick.Tick, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("timer callback panicked",
				slog.Uint64("timer_id", uint64(ev.id)),
				slog.Any("panic", r))
			ev.cancelled = true
			delete(q.byID, ev.id)
		}
	}()
	ev.fn(now, ev)
}

// eventHeap orders events by due tick, then registration sequence.
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Due != h[j].Due {
		return h[i].Due < h[j].Due
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	ev := x.(*Event)
	ev.index = len(*h)
	*h = append(*h, ev)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*h = old[:n-1]
	return ev
}
