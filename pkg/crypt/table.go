package crypt

import (
	"golang.org/x/crypto/sha3"
)

// TableMaterialSize is the number of expanded seed bytes used to build a
// substitution table: one 16-bit draw per Fisher-Yates step, rounded up.
const TableMaterialSize = 512

// Direction selects which side of a connection a KeySchedule protects.
type Direction byte

const (
	// ClientToServer keys frames read by the server.
	ClientToServer Direction = 0x01
	// ServerToClient keys frames written by the server.
	ServerToClient Direction = 0x02
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case ClientToServer:
		return "C2S"
	case ServerToClient:
		return "S2C"
	default:
		return "UNKNOWN"
	}
}

// Table is a permutation of the byte values 0-255.
type Table [256]byte

// Inverse returns the table that maps every output of t back to its input.
func (t Table) Inverse() Table {
	var inv Table
	for i, v := range t {
		inv[v] = byte(i)
	}
	return inv
}

// IsPermutation reports whether every byte value appears exactly once.
func (t Table) IsPermutation() bool {
	var seen [256]bool
	for _, v := range t {
		if seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

// ExpandSeed stretches seed into length bytes of key material using the
// SHAKE-256 extendable output function. The same seed always yields the
// same bytes.
func ExpandSeed(seed []byte, length int) []byte {
	if length <= 0 {
		return nil
	}
	out := make([]byte, length)
	sha3.ShakeSum256(out, seed)
	return out
}

// BuildTable shuffles the identity permutation with Fisher-Yates, drawing
// each swap position from consecutive 16-bit big-endian words of material.
// Material shorter than needed is reused cyclically; empty material returns
// the identity.
func BuildTable(material []byte) Table {
	var t Table
	for i := range t {
		t[i] = byte(i)
	}
	if len(material) == 0 {
		return t
	}

	k := 0
	for i := 255; i > 0; i-- {
		r := uint(material[k%len(material)])<<8 | uint(material[(k+1)%len(material)])
		k += 2
		j := r % uint(i+1)
		t[i], t[j] = t[j], t[i]
	}
	return t
}

// KeySchedule holds the substitution table for one direction of a session
// and its inverse. It is immutable once built.
type KeySchedule struct {
	table   Table
	inverse Table
	dir     Direction
}

// NewKeySchedule derives the schedule for seed, the connection's random
// index bytes and a direction.
func NewKeySchedule(seed string, conn Indexes, dir Direction) *KeySchedule {
	input := make([]byte, 0, len(seed)+3)
	input = append(input, seed...)
	input = append(input, conn[0], conn[1], byte(dir))

	table := BuildTable(ExpandSeed(input, TableMaterialSize))
	return &KeySchedule{
		table:   table,
		inverse: table.Inverse(),
		dir:     dir,
	}
}

// Table returns a copy of the substitution table.
func (ks *KeySchedule) Table() Table {
	return ks.table
}

// Direction returns the direction the schedule was built for.
func (ks *KeySchedule) Direction() Direction {
	return ks.dir
}
