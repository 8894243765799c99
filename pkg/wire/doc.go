// Package wire implements the legacy frame format.
//
// # Frame Layout
//
//	┌───────┬──────────┬────────┬─────┬─────────┬─────────┬───────────────┐
//	│ 0xAA  │ length L │ opcode │ seq │ idx B^  │ idx A^  │ payload       │
//	│ 1 B   │ 2 B (BE) │ 1 B    │ 1 B │ 1 B     │ 1 B     │ L-4 B         │
//	└───────┴──────────┴────────┴─────┴─────────┴─────────┴───────────────┘
//
// L counts every byte after the length field, so a frame occupies 3+L
// bytes. The two index bytes are the per-packet random indexes, masked as
// described in package crypt. Only the payload is ciphered.
//
// # Partial Frames
//
// PeekHeader never consumes input. It reports ErrIncomplete until the whole
// frame is buffered, which callers treat as "wait for more bytes". Every
// other error means the stream can no longer be framed.
package wire
