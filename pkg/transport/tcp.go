package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// TCP adapter defaults.
const (
	// DefaultWriteTimeout bounds a socket write in the writer goroutine. A
	// peer that accepts nothing for this long fails the connection.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultWriteBacklog is the number of bytes TryWrite accepts ahead of
	// the socket.
	DefaultWriteBacklog = 64 * 1024

	// DefaultCloseTimeout bounds the final flush after Close.
	DefaultCloseTimeout = time.Second

	// DefaultReadChunkSize is the size of each socket read.
	DefaultReadChunkSize = 4096

	// DefaultReadBacklog is the number of read chunks buffered per connection.
	DefaultReadBacklog = 64

	// DefaultAcceptBacklog is the number of accepted connections buffered.
	DefaultAcceptBacklog = 32

	// acceptRetryDelay throttles the accept goroutine after a failed Accept.
	acceptRetryDelay = 5 * time.Millisecond
)

// TCPConfig configures the TCP adapter.
type TCPConfig struct {
	// Address to listen on (e.g., ":2000" or "127.0.0.1:2000").
	Address string

	// WriteTimeout bounds a single socket write (default: 10s).
	WriteTimeout time.Duration

	// WriteBacklog caps bytes queued by TryWrite and not yet written
	// (default: 64 KiB).
	WriteBacklog int

	// CloseTimeout bounds flushing queued bytes after Close (default: 1s).
	CloseTimeout time.Duration

	// ReadChunkSize is the size of each socket read (default: 4096).
	ReadChunkSize int

	// ReadBacklog is the number of read chunks buffered per connection.
	ReadBacklog int

	// Logger for accept errors (optional).
	Logger *slog.Logger
}

func (c *TCPConfig) applyDefaults() {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.WriteBacklog <= 0 {
		c.WriteBacklog = DefaultWriteBacklog
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	if c.ReadChunkSize <= 0 {
		c.ReadChunkSize = DefaultReadChunkSize
	}
	if c.ReadBacklog <= 0 {
		c.ReadBacklog = DefaultReadBacklog
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// TCPListener accepts TCP connections in the background and hands them out
// through TryAccept.
type TCPListener struct {
	config TCPConfig
	ln     net.Listener
	conns  chan net.Conn
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// Listen binds config.Address and starts accepting connections.
func Listen(ctx context.Context, config TCPConfig) (*TCPListener, error) {
	config.applyDefaults()

	lc := net.ListenConfig{Control: reuseAddrControl}
	ln, err := lc.Listen(ctx, "tcp", config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	l := &TCPListener{
		config: config,
		ln:     ln,
		conns:  make(chan net.Conn, DefaultAcceptBacklog),
		done:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.acceptLoop()
	return l, nil
}

// Addr returns the listen address.
func (l *TCPListener) Addr() net.Addr {
	return l.ln.Addr()
}

// TryAccept returns a waiting connection, or (nil, nil) if none is waiting.
func (l *TCPListener) TryAccept() (Conn, error) {
	select {
	case <-l.done:
		return nil, ErrClosed
	default:
	}

	select {
	case c := <-l.conns:
		return NewTCPConn(c, l.config), nil
	default:
		return nil, nil
	}
}

// Close stops the listener and closes connections not yet handed out. It
// returns once the accept goroutine has exited.
func (l *TCPListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.ln.Close()
		l.wg.Wait()
		for {
			select {
			case c := <-l.conns:
				c.Close()
			default:
				return
			}
		}
	})
	return err
}

// acceptLoop accepts incoming connections.
func (l *TCPListener) acceptLoop() {
	defer l.wg.Done()

	for {
		c, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.config.Logger.Warn("accept failed", slog.Any("error", err))
			select {
			case <-l.done:
				return
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		select {
		case l.conns <- c:
		case <-l.done:
			c.Close()
			return
		}
	}
}

// TCPConn adapts a net.Conn to the non-blocking Conn interface. A reader
// goroutine feeds TryRead and a writer goroutine drains what TryWrite
// queued, so neither call touches the socket.
type TCPConn struct {
	conn   net.Conn
	config TCPConfig

	chunks  chan []byte
	pending []byte

	errMu   sync.Mutex
	readErr error

	writeMu  sync.Mutex
	queue    []byte
	inFlight int
	writeErr error
	wake     chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewTCPConn wraps c and starts its reader and writer goroutines.
func NewTCPConn(c net.Conn, config TCPConfig) *TCPConn {
	config.applyDefaults()

	tc := &TCPConn{
		conn:   c,
		config: config,
		chunks: make(chan []byte, config.ReadBacklog),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go tc.readLoop()
	go tc.writeLoop()
	return tc
}

// RemoteAddr returns the remote address of the peer.
func (c *TCPConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// TryRead copies buffered bytes into p without blocking.
func (c *TCPConn) TryRead(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	if len(c.pending) == 0 {
		select {
		case chunk, ok := <-c.chunks:
			if !ok {
				return 0, c.err()
			}
			c.pending = chunk
		default:
			return 0, nil
		}
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// TryWrite queues as much of p as the write backlog has room for and
// returns that count. A full backlog is a partial write, not an error. A
// failed socket write is reported by every later call.
func (c *TCPConn) TryWrite(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}

	c.writeMu.Lock()
	if c.writeErr != nil {
		err := c.writeErr
		c.writeMu.Unlock()
		return 0, err
	}
	room := c.config.WriteBacklog - len(c.queue) - c.inFlight
	n := min(max(room, 0), len(p))
	c.queue = append(c.queue, p[:n]...)
	c.writeMu.Unlock()

	if n > 0 {
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
	return n, nil
}

// Close stops reading and closes the socket once queued bytes are written
// or CloseTimeout passes.
func (c *TCPConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		// Unblock a write stuck on a stalled peer.
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.CloseTimeout))
		close(c.done)
	})
	return nil
}

// readLoop moves socket reads into the chunk channel.
func (c *TCPConn) readLoop() {
	defer close(c.chunks)

	for {
		buf := make([]byte, c.config.ReadChunkSize)
		n, err := c.conn.Read(buf)
		if n > 0 {
			select {
			case c.chunks <- buf[:n]:
			case <-c.done:
				return
			}
		}
		if err != nil {
			c.errMu.Lock()
			c.readErr = err
			c.errMu.Unlock()
			return
		}
	}
}

// writeLoop writes queued bytes until Close, then flushes what is left and
// closes the socket.
func (c *TCPConn) writeLoop() {
	defer c.conn.Close()

	for {
		select {
		case <-c.wake:
			if !c.flush(c.config.WriteTimeout) {
				return
			}
		case <-c.done:
			c.flush(c.config.CloseTimeout)
			return
		}
	}
}

// flush writes every queued byte, each write bounded by timeout. It
// reports false after a write error.
func (c *TCPConn) flush(timeout time.Duration) bool {
	for {
		c.writeMu.Lock()
		out := c.queue
		c.queue = nil
		c.inFlight = len(out)
		c.writeMu.Unlock()

		if len(out) == 0 {
			return true
		}

		if !c.closed.Load() {
			if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				c.failWrite(err)
				return false
			}
		}
		_, err := c.conn.Write(out)

		c.writeMu.Lock()
		c.inFlight = 0
		c.writeMu.Unlock()

		if err != nil {
			c.failWrite(err)
			return false
		}
	}
}

func (c *TCPConn) failWrite(err error) {
	c.writeMu.Lock()
	if c.writeErr == nil {
		c.writeErr = err
	}
	c.queue = nil
	c.writeMu.Unlock()
}

// err maps the terminal read error.
func (c *TCPConn) err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()

	switch {
	case c.readErr == nil, errors.Is(c.readErr, io.EOF):
		return io.EOF
	case errors.Is(c.readErr, net.ErrClosed):
		return ErrClosed
	default:
		return c.readErr
	}
}
