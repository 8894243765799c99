// Package log provides packet capture for the runtime core.
//
// This package defines the Logger interface and Event types for capturing
// wire traffic and session state changes. It is separate from operational
// logging (slog): capture produces a complete machine-readable trace of what
// crossed the wire, for debugging legacy clients.
//
// # Basic Usage
//
//	// For development: capture to the console via slog
//	capture := log.NewSlogAdapter(slog.Default())
//
//	// For production: write a binary capture file
//	capture, _ := log.NewFileLogger("/var/log/rtk/packets.rtkcap")
//
//	// Legacy text dump with timestamps in strftime format
//	capture, _ := log.NewHexDumpFile("/var/log/rtk/packets.hex", "%Y-%m-%d %H:%M:%S")
//
//	// Several at once
//	capture := log.NewMultiLogger(a, b)
//
// # Event Types
//
// Events are captured at two layers:
//   - Transport: raw bytes written to a socket (FrameEvent with Raw set)
//   - Wire: deciphered frames with opcode and sequence (FrameEvent)
//
// Session lifecycle transitions and per-session faults have dedicated event
// types.
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events. The rtk-dump tool reads
// them back.
package log
