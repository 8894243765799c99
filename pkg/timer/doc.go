// Package timer implements the fixed-tick timer queue run by the event loop.
//
// # Ordering
//
// Timers fire in due-tick order. Timers due on the same tick fire in the
// order they were registered; a repeating timer keeps its original
// registration position when it is rescheduled.
//
// # One Pass Per Iteration
//
// RunDue makes exactly one pass. Timers added while a pass is running,
// including timers added by a firing callback, are staged and become
// eligible on the next pass. A repeating timer is rescheduled with
// due += interval and is likewise eligible no earlier than the next pass, so
// an overdue repeating timer fires at most once per loop iteration.
//
// # Concurrency
//
// A Queue is owned by the event loop and is not safe for concurrent use.
package timer
