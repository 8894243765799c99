package crypt

import (
	"math/rand/v2"
)

// IndexRegionSize is the number of header bytes that carry packet indexes.
const IndexRegionSize = 2

// Index masks applied on the wire.
const (
	maskA = 0x25
	maskB = 0x61
)

// MaxIndex is the largest index value ever drawn. 0xFF is never produced.
const MaxIndex = 0xFE

// Indexes are the random offset bytes that seed per-connection and
// per-packet key state.
type Indexes [2]byte

// A returns the first index.
func (i Indexes) A() byte { return i[0] }

// B returns the second index.
func (i Indexes) B() byte { return i[1] }

// RandomIndexes draws two indexes in the range 0-254.
func RandomIndexes() Indexes {
	return Indexes{
		byte(rand.IntN(MaxIndex + 1)),
		byte(rand.IntN(MaxIndex + 1)),
	}
}

// SelectIndexes draws fresh indexes and writes them into region, the
// reserved header bytes of an outbound frame.
func SelectIndexes(region []byte) Indexes {
	idx := RandomIndexes()
	WriteIndexes(region, idx)
	return idx
}

// WriteIndexes stores idx into region in wire order: B masked first, then A.
// Region must be at least IndexRegionSize bytes.
func WriteIndexes(region []byte, idx Indexes) {
	_ = region[IndexRegionSize-1]
	region[0] = idx[1] ^ maskB
	region[1] = idx[0] ^ maskA
}

// ReadIndexes recovers the indexes written by WriteIndexes.
func ReadIndexes(region []byte) Indexes {
	_ = region[IndexRegionSize-1]
	return Indexes{region[1] ^ maskA, region[0] ^ maskB}
}
