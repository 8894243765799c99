package log

import (
	"bufio"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ncruces/go-strftime"
)

// DefaultDateFormat is the strftime layout used for dump timestamps.
const DefaultDateFormat = "%Y-%m-%d %H:%M:%S"

// HexDumpLogger writes frame events in the legacy text dump format:
//
//	2024-01-02 15:04:05 IP: 10.0.0.7 len 5
//	[HEX]:[AA][00][02][01][00]
//	[CHR]:[ .][ .][ .][ .][ .]
//
// Only deciphered inbound frames are written unless IncludeOutbound is set.
// Other event categories are ignored. It is safe for concurrent use.
type HexDumpLogger struct {
	// IncludeOutbound also dumps frames sent to peers.
	IncludeOutbound bool

	mu         sync.Mutex
	w          *bufio.Writer
	closer     io.Closer
	dateFormat string
	closed     bool
}

// NewHexDumpLogger writes dumps to w. An empty dateFormat selects
// DefaultDateFormat.
func NewHexDumpLogger(w io.Writer, dateFormat string) *HexDumpLogger {
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}
	l := &HexDumpLogger{
		w:          bufio.NewWriter(w),
		dateFormat: dateFormat,
	}
	if c, ok := w.(io.Closer); ok {
		l.closer = c
	}
	return l
}

// NewHexDumpFile appends dumps to the file at path.
func NewHexDumpFile(path, dateFormat string) (*HexDumpLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return NewHexDumpLogger(f, dateFormat), nil
}

// Log writes one dump block for frame events.
func (l *HexDumpLogger) Log(event Event) {
	if event.Frame == nil {
		return
	}
	if event.Direction == DirectionOut && !l.IncludeOutbound {
		return
	}
	// Inbound frames are dumped once, after deciphering.
	if event.Direction == DirectionIn && event.Frame.Raw {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.writeBlock(event.Timestamp, hostOnly(event.RemoteAddr), event.Frame.Data)
	_ = l.w.Flush()
}

func (l *HexDumpLogger) writeBlock(ts time.Time, ip string, data []byte) {
	w := l.w
	w.WriteString(strftime.Format(l.dateFormat, ts.Local()))
	w.WriteString(" IP: ")
	w.WriteString(ip)
	w.WriteString(" len ")
	w.WriteString(strconv.Itoa(len(data)))
	w.WriteString("\n[HEX]:")

	const hexdigits = "0123456789ABCDEF"
	for _, b := range data {
		w.Write([]byte{'[', hexdigits[b>>4], hexdigits[b&0x0F], ']'})
	}
	w.WriteString("\n[CHR]:")
	for _, b := range data {
		w.Write([]byte{'[', ' ', printable(b), ']'})
	}
	w.WriteByte('\n')
}

// Close flushes pending output and closes the underlying writer if it is a
// Closer. Close is idempotent.
func (l *HexDumpLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	err := l.w.Flush()
	if l.closer != nil {
		if cerr := l.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func printable(b byte) byte {
	if b < 0x20 || b > 0x7E {
		return '.'
	}
	return b
}

// hostOnly strips the port from addr; the dump format carries the IP only.
func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

var _ Logger = (*HexDumpLogger)(nil)
