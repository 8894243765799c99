// Package transporttest provides in-memory transport doubles for tests.
package transporttest

import (
	"bytes"
	"io"
	"net"

	"github.com/retrotk/rtk-go/pkg/transport"
)

// Conn is a scripted transport.Conn. Bytes passed to Feed are returned by
// TryRead in order, one fed chunk per call at most; written bytes collect in
// Written. It is not safe for concurrent use.
type Conn struct {
	// WriteLimit caps the bytes accepted per TryWrite; zero means unlimited.
	WriteLimit int

	// WriteErr, when set, is returned by every TryWrite.
	WriteErr error

	// ReadErr, when set, is returned by TryRead once fed bytes run out.
	ReadErr error

	// Written holds every byte accepted by TryWrite.
	Written bytes.Buffer

	// Addr is returned by RemoteAddr.
	Addr net.Addr

	chunks [][]byte
	eof    bool
	closed bool
	closes int
}

// NewConn returns a connection with a loopback remote address.
func NewConn() *Conn {
	return &Conn{Addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}}
}

// Feed queues b to be returned by a later TryRead.
func (c *Conn) Feed(b []byte) {
	c.chunks = append(c.chunks, bytes.Clone(b))
}

// CloseRemote makes TryRead report io.EOF once fed bytes are consumed.
func (c *Conn) CloseRemote() {
	c.eof = true
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	return c.closed
}

// CloseCount returns how many times Close was called.
func (c *Conn) CloseCount() int {
	return c.closes
}

// TryRead implements transport.Conn.
func (c *Conn) TryRead(p []byte) (int, error) {
	if c.closed {
		return 0, transport.ErrClosed
	}
	if len(c.chunks) == 0 {
		switch {
		case c.ReadErr != nil:
			return 0, c.ReadErr
		case c.eof:
			return 0, io.EOF
		default:
			return 0, nil
		}
	}

	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

// TryWrite implements transport.Conn.
func (c *Conn) TryWrite(p []byte) (int, error) {
	if c.closed {
		return 0, transport.ErrClosed
	}
	if c.WriteErr != nil {
		return 0, c.WriteErr
	}
	n := len(p)
	if c.WriteLimit > 0 && n > c.WriteLimit {
		n = c.WriteLimit
	}
	c.Written.Write(p[:n])
	return n, nil
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() net.Addr {
	return c.Addr
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	c.closes++
	c.closed = true
	return nil
}

// Listener is a scripted transport.Listener.
type Listener struct {
	// AcceptErr, when set, is returned by the next TryAccept and cleared.
	AcceptErr error

	pending []transport.Conn
	closed  bool
}

// NewListener returns an empty listener.
func NewListener() *Listener {
	return &Listener{}
}

// Push queues conn to be returned by a later TryAccept.
func (l *Listener) Push(conn transport.Conn) {
	l.pending = append(l.pending, conn)
}

// TryAccept implements transport.Listener.
func (l *Listener) TryAccept() (transport.Conn, error) {
	if l.closed {
		return nil, transport.ErrClosed
	}
	if err := l.AcceptErr; err != nil {
		l.AcceptErr = nil
		return nil, err
	}
	if len(l.pending) == 0 {
		return nil, nil
	}
	c := l.pending[0]
	l.pending = l.pending[1:]
	return c, nil
}

// Addr implements transport.Listener.
func (l *Listener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 2000}
}

// Close implements transport.Listener.
func (l *Listener) Close() error {
	l.closed = true
	return nil
}

// Compile-time interface satisfaction checks.
var (
	_ transport.Conn     = (*Conn)(nil)
	_ transport.Listener = (*Listener)(nil)
)
