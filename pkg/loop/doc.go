// Package loop runs the fixed-cadence event loop.
//
// Each iteration runs these phases strictly in sequence on one goroutine:
//
//  1. refresh the tick clock
//  2. hand queued console lines to the input hook
//  3. fire due timers (one pass)
//  4. pump socket I/O
//  5. dispatch complete frames
//  6. sleep the idle interval
//
// RequestShutdown, or cancelling the context passed to Run, is observed at
// the next iteration boundary. The loop then runs the terminate hook, clears
// pending timers, releases every session and returns.
package loop
