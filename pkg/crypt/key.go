package crypt

import (
	"encoding/binary"
	"math/bits"
)

// KeyLen is the length of a key stream and of a mixing group.
const KeyLen = 9

// keyMode selects which stages a Key applies.
type keyMode uint8

const (
	modeForward keyMode = iota
	modeInverse
	modeMask
)

// Key is a derived per-packet key bound to a KeySchedule.
type Key struct {
	stream [KeyLen]byte
	ks     *KeySchedule
	mode   keyMode
}

// Stream returns a copy of the key stream.
func (k Key) Stream() [KeyLen]byte {
	return k.stream
}

// Inverse returns the key that undoes Transform with k.
// The inverse of a mask key is the key itself.
func (k Key) Inverse() Key {
	switch k.mode {
	case modeForward:
		k.mode = modeInverse
	case modeInverse:
		k.mode = modeForward
	}
	return k
}

// Mask returns a key that applies only the XOR part of the mixing stage.
// Its forward and inverse transforms coincide.
func (k Key) Mask() Key {
	k.mode = modeMask
	return k
}

// DeriveKeys combines the schedule's table with the seed and the packet
// indexes. The primary key stream indexes the table by a linear function of
// the indexes and the seed bytes; the secondary key folds the primary stream
// back through the table.
func DeriveKeys(ks *KeySchedule, seed string, idx Indexes) (Key, Key) {
	primary := Key{ks: ks}
	for i := 0; i < KeyLen; i++ {
		var s int
		if len(seed) > 0 {
			s = int(seed[i%len(seed)])
		}
		pos := int(idx[0])*(i+1) + int(idx[1]) + s + i*i
		primary.stream[i] = ks.table[byte(pos)]
	}

	secondary := Key{ks: ks}
	for i := 0; i < KeyLen; i++ {
		mixed := primary.stream[i] ^ primary.stream[(i+4)%KeyLen] ^ byte(i*0x1F)
		secondary.stream[i] = ks.table[mixed]
	}
	return primary, secondary
}

// Transform applies k to buf in place.
func Transform(buf []byte, k Key) {
	switch k.mode {
	case modeMask:
		maskBytes(buf, &k.stream)
	case modeInverse:
		unmixBytes(buf, &k.stream)
		unsubstituteWords(buf, &k.stream, &k.ks.inverse)
	default:
		substituteWords(buf, &k.stream, &k.ks.table)
		mixBytes(buf, &k.stream)
	}
}

// Encrypt applies the primary then the secondary key.
func Encrypt(buf []byte, primary, secondary Key) {
	Transform(buf, primary)
	Transform(buf, secondary)
}

// Decrypt reverses Encrypt with the same pair of keys.
func Decrypt(buf []byte, primary, secondary Key) {
	Transform(buf, secondary.Inverse())
	Transform(buf, primary.Inverse())
}

// Swap16 reverses the byte order of a 16-bit word.
func Swap16(v uint16) uint16 {
	return bits.ReverseBytes16(v)
}

// Swap32 reverses the byte order of a 32-bit word.
func Swap32(v uint32) uint32 {
	return bits.ReverseBytes32(v)
}

// group returns the mixing group counter for byte position i.
func group(i int) byte {
	return byte(i / KeyLen)
}

func substituteWords(buf []byte, stream *[KeyLen]byte, sub *Table) {
	n := len(buf) &^ 1
	for p := 0; p < n; p += 2 {
		w := Swap16(binary.LittleEndian.Uint16(buf[p:]))
		hi := sub[byte(w>>8)+stream[p%KeyLen]]
		lo := sub[byte(w)^hi]
		binary.LittleEndian.PutUint16(buf[p:], Swap16(uint16(hi)<<8|uint16(lo)))
	}
	if n < len(buf) {
		buf[n] = sub[buf[n]+stream[n%KeyLen]]
	}
}

func unsubstituteWords(buf []byte, stream *[KeyLen]byte, inv *Table) {
	n := len(buf) &^ 1
	for p := 0; p < n; p += 2 {
		w := Swap16(binary.LittleEndian.Uint16(buf[p:]))
		hi := byte(w >> 8)
		lo := inv[byte(w)] ^ hi
		hi = inv[hi] - stream[p%KeyLen]
		binary.LittleEndian.PutUint16(buf[p:], Swap16(uint16(hi)<<8|uint16(lo)))
	}
	if n < len(buf) {
		buf[n] = inv[buf[n]] - stream[n%KeyLen]
	}
}

func mixBytes(buf []byte, stream *[KeyLen]byte) {
	for i := range buf {
		buf[i] = (buf[i] ^ stream[i%KeyLen] ^ group(i)) + stream[(i+4)%KeyLen]
	}
}

func unmixBytes(buf []byte, stream *[KeyLen]byte) {
	for i := range buf {
		buf[i] = (buf[i] - stream[(i+4)%KeyLen]) ^ stream[i%KeyLen] ^ group(i)
	}
}

func maskBytes(buf []byte, stream *[KeyLen]byte) {
	for i := range buf {
		buf[i] ^= stream[i%KeyLen] ^ group(i)
	}
}
