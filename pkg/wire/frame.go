package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/retrotk/rtk-go/pkg/crypt"
)

// Framing constants.
const (
	// Magic is the first byte of every frame.
	Magic byte = 0xAA

	// LengthPrefixSize is the size of the magic byte plus the length field.
	LengthPrefixSize = 3

	// HeaderSize is the size of the full frame header.
	HeaderSize = 7

	// MinLength is the smallest valid length field: opcode, sequence and
	// the two index bytes.
	MinLength = HeaderSize - LengthPrefixSize

	// MaxLength is the largest value the 16-bit length field can carry.
	MaxLength = 0xFFFF

	// MaxPayloadSize is the largest payload a frame can carry.
	MaxPayloadSize = MaxLength - MinLength
)

const (
	offsetLength  = 1
	offsetOpcode  = 3
	offsetSeq     = 4
	offsetIndexes = 5
)

// Framing errors.
var (
	// ErrIncomplete indicates more bytes are needed before the frame can be read.
	ErrIncomplete = errors.New("frame incomplete")

	// ErrBadMagic indicates the stream is not positioned at a frame start.
	ErrBadMagic = errors.New("bad frame magic")

	// ErrLengthTooShort indicates a length field below MinLength.
	ErrLengthTooShort = errors.New("frame length too short")

	// ErrFrameTooLarge indicates a length field above the configured maximum.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrPayloadTooLarge indicates a payload that cannot fit in one frame.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Header is the decoded, still ciphered frame header.
type Header struct {
	// Length is the value of the length field.
	Length int

	Opcode  byte
	Seq     byte
	Indexes crypt.Indexes
}

// Size returns the total number of bytes the frame occupies.
func (h Header) Size() int {
	return LengthPrefixSize + h.Length
}

// PayloadLen returns the number of payload bytes.
func (h Header) PayloadLen() int {
	return h.Length - MinLength
}

// PeekLength validates the frame prefix at the start of buf and returns the
// length field. maxLength bounds the length field; zero means MaxLength.
func PeekLength(buf []byte, maxLength int) (int, error) {
	if len(buf) == 0 {
		return 0, ErrIncomplete
	}
	if buf[0] != Magic {
		return 0, fmt.Errorf("%w: 0x%02X", ErrBadMagic, buf[0])
	}
	if len(buf) < LengthPrefixSize {
		return 0, ErrIncomplete
	}

	length := int(binary.BigEndian.Uint16(buf[offsetLength:]))
	if length < MinLength {
		return 0, fmt.Errorf("%w: %d < %d", ErrLengthTooShort, length, MinLength)
	}
	if maxLength <= 0 || maxLength > MaxLength {
		maxLength = MaxLength
	}
	if length > maxLength {
		return 0, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, maxLength)
	}
	return length, nil
}

// PeekHeader decodes the header of the frame at the start of buf. It returns
// ErrIncomplete unless the whole frame, header and payload, is present.
func PeekHeader(buf []byte, maxLength int) (Header, error) {
	length, err := PeekLength(buf, maxLength)
	if err != nil {
		return Header{}, err
	}
	if len(buf) < LengthPrefixSize+length {
		return Header{}, ErrIncomplete
	}
	return Header{
		Length:  length,
		Opcode:  buf[offsetOpcode],
		Seq:     buf[offsetSeq],
		Indexes: crypt.ReadIndexes(buf[offsetIndexes:]),
	}, nil
}

// Packet is a deciphered frame. Payload aliases the frame it was opened from.
type Packet struct {
	Opcode  byte
	Seq     byte
	Indexes crypt.Indexes
	Payload []byte
}

// Seal builds a frame for payload, draws fresh packet indexes into its
// header and ciphers the payload with keys derived from ks and seed.
func Seal(opcode, seq byte, payload []byte, ks *crypt.KeySchedule, seed string) ([]byte, error) {
	frame, err := newFrame(opcode, seq, payload)
	if err != nil {
		return nil, err
	}
	idx := crypt.SelectIndexes(frame[offsetIndexes:HeaderSize])
	seal(frame, idx, ks, seed)
	return frame, nil
}

// SealWithIndexes is Seal with caller-chosen packet indexes.
func SealWithIndexes(opcode, seq byte, payload []byte, ks *crypt.KeySchedule, seed string, idx crypt.Indexes) ([]byte, error) {
	frame, err := newFrame(opcode, seq, payload)
	if err != nil {
		return nil, err
	}
	crypt.WriteIndexes(frame[offsetIndexes:HeaderSize], idx)
	seal(frame, idx, ks, seed)
	return frame, nil
}

// Open deciphers a complete frame in place. The frame must be exactly the
// bytes reported by PeekHeader; the returned Payload aliases it.
func Open(frame []byte, ks *crypt.KeySchedule, seed string) (Packet, error) {
	h, err := PeekHeader(frame, MaxLength)
	if err != nil {
		return Packet{}, err
	}
	payload := frame[HeaderSize:h.Size()]
	primary, secondary := crypt.DeriveKeys(ks, seed, h.Indexes)
	crypt.Decrypt(payload, primary, secondary)

	return Packet{
		Opcode:  h.Opcode,
		Seq:     h.Seq,
		Indexes: h.Indexes,
		Payload: payload,
	}, nil
}

// newFrame lays out the header and copies the plaintext payload.
func newFrame(opcode, seq byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}
	frame := make([]byte, HeaderSize+len(payload))
	frame[0] = Magic
	binary.BigEndian.PutUint16(frame[offsetLength:], uint16(MinLength+len(payload)))
	frame[offsetOpcode] = opcode
	frame[offsetSeq] = seq
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

func seal(frame []byte, idx crypt.Indexes, ks *crypt.KeySchedule, seed string) {
	primary, secondary := crypt.DeriveKeys(ks, seed, idx)
	crypt.Encrypt(frame[HeaderSize:], primary, secondary)
}
