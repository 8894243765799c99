package transport

import (
	"errors"
	"net"
)

// ErrClosed is returned by operations on a closed connection or listener.
var ErrClosed = errors.New("transport closed")

// Conn is a non-blocking, byte-oriented connection.
// Implemented by TCPConn.
type Conn interface {
	// TryRead copies waiting bytes into p. It returns (0, nil) when nothing
	// is waiting and io.EOF at end of stream.
	TryRead(p []byte) (int, error)

	// TryWrite writes as much of p as the peer accepts right now.
	TryWrite(p []byte) (int, error)

	// RemoteAddr returns the peer address.
	RemoteAddr() net.Addr

	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// Listener hands out accepted connections without blocking.
// Implemented by TCPListener.
type Listener interface {
	// TryAccept returns the next waiting connection, or (nil, nil) if none.
	TryAccept() (Conn, error)

	// Addr returns the listen address.
	Addr() net.Addr

	// Close stops accepting connections.
	Close() error
}

// Compile-time interface satisfaction checks.
var (
	_ Conn     = (*TCPConn)(nil)
	_ Listener = (*TCPListener)(nil)
)
