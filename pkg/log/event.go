package log

import (
	"time"
)

// MaxFrameDataSize is the largest frame data kept in an event. Larger frames
// are truncated so a flood of big packets cannot balloon the capture.
const MaxFrameDataSize = 4096

// Event is a capture event. CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Slot is the session registry slot of the connection.
	Slot int `cbor:"3,keyasint"`

	// Direction indicates data flow.
	Direction Direction `cbor:"4,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"5,keyasint"`

	// Category classifies the event.
	Category Category `cbor:"6,keyasint"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Tick is the loop tick the event was captured on.
	Tick uint64 `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these is set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"`
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionIn indicates bytes received from the peer.
	DirectionIn Direction = 0
	// DirectionOut indicates bytes sent to the peer.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates where the event was captured.
type Layer uint8

const (
	// LayerTransport is the raw socket byte stream.
	LayerTransport Layer = 0
	// LayerWire is the framed, deciphered packet layer.
	LayerWire Layer = 1
	// LayerSession is the session registry.
	LayerSession Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryFrame indicates packet data.
	CategoryFrame Category = 0
	// CategoryState indicates a session state change.
	CategoryState Category = 1
	// CategoryError indicates a session-fatal fault.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFrame:
		return "FRAME"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures packet bytes.
type FrameEvent struct {
	// Size is the frame size in bytes, header included.
	Size int `cbor:"1,keyasint"`

	// Opcode of a deciphered frame.
	Opcode uint8 `cbor:"2,keyasint,omitempty"`

	// Seq is the frame sequence byte.
	Seq uint8 `cbor:"3,keyasint,omitempty"`

	// Data is the captured bytes (may be truncated).
	Data []byte `cbor:"4,keyasint,omitempty"`

	// Truncated indicates Data was cut at MaxFrameDataSize.
	Truncated bool `cbor:"5,keyasint,omitempty"`

	// Raw indicates Data is ciphered socket bytes rather than a payload.
	Raw bool `cbor:"6,keyasint,omitempty"`
}

// NewFrameEvent copies data into a FrameEvent, truncating if needed.
func NewFrameEvent(size int, opcode, seq uint8, data []byte, raw bool) *FrameEvent {
	truncated := false
	if len(data) > MaxFrameDataSize {
		data = data[:MaxFrameDataSize]
		truncated = true
	}
	cp := make([]byte, len(data))
	copy(cp, data)

	return &FrameEvent{
		Size:      size,
		Opcode:    opcode,
		Seq:       seq,
		Data:      cp,
		Truncated: truncated,
		Raw:       raw,
	}
}

// StateChangeEvent captures a session lifecycle transition.
type StateChangeEvent struct {
	// OldState is the previous state name.
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state name.
	NewState string `cbor:"2,keyasint"`

	// Reason describes why the transition happened.
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures a session-fatal fault.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
