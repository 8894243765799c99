// Package transport is the socket boundary of the runtime core.
//
// The event loop never blocks on a socket. Every primitive here is a "try"
// operation that returns immediately:
//
//   - Listener.TryAccept returns (nil, nil) when no connection is waiting.
//   - Conn.TryRead returns (0, nil) when no bytes are waiting and io.EOF once
//     the peer has closed its side and every buffered byte was consumed.
//   - Conn.TryWrite queues what the write backlog has room for and reports
//     the count; a partial write is not an error.
//
// # TCP Adapter
//
// The TCP implementation runs one goroutine per listener and a reader and a
// writer per connection. Those goroutines only move data between the socket
// and buffers owned by the adapter; they never touch session state, so the
// single-threaded phase contract of the loop holds. A peer that stops
// reading fills its backlog and then fails the connection after
// WriteTimeout. Close flushes queued bytes, bounded by CloseTimeout, before
// the socket is closed.
//
// On unix platforms the listener sets SO_REUSEADDR so a restarted server can
// rebind while old connections sit in TIME_WAIT.
package transport
