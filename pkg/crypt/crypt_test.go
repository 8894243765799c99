package crypt

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandSeedDeterministic(t *testing.T) {
	a := ExpandSeed([]byte("abc"), 64)
	b := ExpandSeed([]byte("abc"), 64)
	c := ExpandSeed([]byte("abd"), 64)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Nil(t, ExpandSeed([]byte("abc"), 0))
}

func TestExpandSeedPrefixStable(t *testing.T) {
	short := ExpandSeed([]byte("seed"), 16)
	long := ExpandSeed([]byte("seed"), 512)
	assert.Equal(t, short, long[:16], "XOF output must extend, not change")
}

func TestBuildTableIsPermutation(t *testing.T) {
	seeds := []string{"", "a", "abc", "NexonInc.", "a much longer seed string with spaces"}
	lengths := []int{0, 1, 2, 7, 64, TableMaterialSize, 4096}

	for _, seed := range seeds {
		for _, n := range lengths {
			t.Run(fmt.Sprintf("%q/%d", seed, n), func(t *testing.T) {
				table := BuildTable(ExpandSeed([]byte(seed), n))
				assert.True(t, table.IsPermutation())
			})
		}
	}
}

func TestBuildTableEmptyMaterialIsIdentity(t *testing.T) {
	table := BuildTable(nil)
	for i, v := range table {
		require.Equal(t, byte(i), v)
	}
}

func TestTableInverse(t *testing.T) {
	table := BuildTable(ExpandSeed([]byte("inverse"), TableMaterialSize))
	inv := table.Inverse()
	for i := 0; i < 256; i++ {
		require.Equal(t, byte(i), inv[table[i]])
		require.Equal(t, byte(i), table[inv[i]])
	}
}

func TestKeyScheduleTableMethodsOnReturnedValue(t *testing.T) {
	ks := NewKeySchedule("abc", Indexes{1, 2}, ServerToClient)
	assert.True(t, ks.Table().IsPermutation())
	assert.Equal(t, ks.Table(), ks.Table().Inverse().Inverse())
}

func TestKeyScheduleDependsOnInputs(t *testing.T) {
	base := NewKeySchedule("abc", Indexes{1, 2}, ClientToServer)

	tests := []struct {
		name string
		ks   *KeySchedule
	}{
		{"seed", NewKeySchedule("abd", Indexes{1, 2}, ClientToServer)},
		{"connection indexes", NewKeySchedule("abc", Indexes{2, 1}, ClientToServer)},
		{"direction", NewKeySchedule("abc", Indexes{1, 2}, ServerToClient)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base.Table(), tt.ks.Table())
		})
	}

	again := NewKeySchedule("abc", Indexes{1, 2}, ClientToServer)
	assert.Equal(t, base.Table(), again.Table())
	assert.Equal(t, ClientToServer, again.Direction())
}

func TestIndexesRoundTrip(t *testing.T) {
	region := make([]byte, IndexRegionSize)
	for a := 0; a <= MaxIndex; a += 17 {
		for b := 0; b <= MaxIndex; b += 13 {
			idx := Indexes{byte(a), byte(b)}
			WriteIndexes(region, idx)
			require.Equal(t, idx, ReadIndexes(region))
		}
	}
}

func TestIndexesWireLayout(t *testing.T) {
	region := make([]byte, IndexRegionSize)
	WriteIndexes(region, Indexes{0x10, 0x20})
	assert.Equal(t, []byte{0x20 ^ 0x61, 0x10 ^ 0x25}, region)
}

func TestSelectIndexesBounded(t *testing.T) {
	region := make([]byte, IndexRegionSize)
	for i := 0; i < 2000; i++ {
		idx := SelectIndexes(region)
		require.LessOrEqual(t, idx.A(), byte(MaxIndex))
		require.LessOrEqual(t, idx.B(), byte(MaxIndex))
		require.Equal(t, idx, ReadIndexes(region))
	}
}

func TestSwapInvolution(t *testing.T) {
	for _, v := range []uint16{0, 1, 0x00FF, 0xFF00, 0x1234, 0xFFFF} {
		assert.Equal(t, v, Swap16(Swap16(v)))
	}
	for _, v := range []uint32{0, 1, 0x12345678, 0xDEADBEEF, 0xFFFFFFFF} {
		assert.Equal(t, v, Swap32(Swap32(v)))
	}
	assert.Equal(t, uint16(0x3412), Swap16(0x1234))
	assert.Equal(t, uint32(0x78563412), Swap32(0x12345678))
}

func TestTransformRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	seeds := []string{"", "x", "abc", "NexonInc."}

	for _, seed := range seeds {
		ks := NewKeySchedule(seed, Indexes{7, 9}, ClientToServer)
		for n := 0; n <= 70; n++ {
			t.Run(fmt.Sprintf("%q/len%d", seed, n), func(t *testing.T) {
				plain := make([]byte, n)
				for i := range plain {
					plain[i] = byte(rng.UintN(256))
				}
				idx := Indexes{byte(rng.UintN(255)), byte(rng.UintN(255))}
				primary, secondary := DeriveKeys(ks, seed, idx)

				for _, k := range []Key{primary, secondary} {
					buf := bytes.Clone(plain)
					Transform(buf, k)
					Transform(buf, k.Inverse())
					require.Equal(t, plain, buf)
				}

				buf := bytes.Clone(plain)
				Encrypt(buf, primary, secondary)
				Decrypt(buf, primary, secondary)
				require.Equal(t, plain, buf)
			})
		}
	}
}

func TestMaskKeyIsSelfInverse(t *testing.T) {
	ks := NewKeySchedule("abc", Indexes{3, 4}, ServerToClient)
	primary, _ := DeriveKeys(ks, "abc", Indexes{5, 6})
	mask := primary.Mask()

	assert.Equal(t, mask, mask.Inverse())

	plain := []byte("the quick brown fox jumps over the lazy dog")
	buf := bytes.Clone(plain)
	Transform(buf, mask)
	assert.NotEqual(t, plain, buf)
	Transform(buf, mask)
	assert.Equal(t, plain, buf)
}

func TestTransformChangesData(t *testing.T) {
	ks := NewKeySchedule("abc", Indexes{1, 1}, ClientToServer)
	primary, secondary := DeriveKeys(ks, "abc", Indexes{2, 2})

	plain := bytes.Repeat([]byte{0x00}, 32)
	buf := bytes.Clone(plain)
	Encrypt(buf, primary, secondary)
	assert.NotEqual(t, plain, buf)
}

func TestDeriveKeysDependsOnPacketIndexes(t *testing.T) {
	ks := NewKeySchedule("abc", Indexes{1, 2}, ClientToServer)

	p1, s1 := DeriveKeys(ks, "abc", Indexes{10, 20})
	p2, s2 := DeriveKeys(ks, "abc", Indexes{11, 20})
	p3, _ := DeriveKeys(ks, "abc", Indexes{10, 20})

	assert.NotEqual(t, p1.Stream(), p2.Stream())
	assert.NotEqual(t, s1.Stream(), s2.Stream())
	assert.NotEqual(t, p1.Stream(), s1.Stream())
	assert.Equal(t, p1.Stream(), p3.Stream())
}

func TestSameSeedDifferentIndexesDiffer(t *testing.T) {
	plain := []byte("identical plaintext payload")

	encrypt := func(conn, pkt Indexes) []byte {
		ks := NewKeySchedule("abc", conn, ServerToClient)
		primary, secondary := DeriveKeys(ks, "abc", pkt)
		buf := bytes.Clone(plain)
		Encrypt(buf, primary, secondary)
		return buf
	}

	first := encrypt(Indexes{1, 2}, Indexes{3, 4})
	second := encrypt(Indexes{1, 2}, Indexes{4, 3})
	third := encrypt(Indexes{9, 8}, Indexes{3, 4})

	assert.NotEqual(t, first, second)
	assert.NotEqual(t, first, third)
}
