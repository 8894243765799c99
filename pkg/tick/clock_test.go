package tick

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeSource returns a settable clock source.
func fakeSource(start time.Time) (func() time.Time, *time.Time) {
	now := start
	return func() time.Time { return now }, &now
}

func TestClockStartsAtZero(t *testing.T) {
	src, _ := fakeSource(time.Unix(1000, 0))
	c := NewClockWithSource(src)

	assert.Equal(t, Tick(0), c.NowCached())
	assert.Equal(t, Tick(0), c.NowFresh())
}

func TestClockFreshUpdatesCache(t *testing.T) {
	src, now := fakeSource(time.Unix(1000, 0))
	c := NewClockWithSource(src)

	*now = now.Add(1500 * time.Millisecond)
	assert.Equal(t, Tick(0), c.NowCached(), "cached read must not consult the source")

	assert.Equal(t, Tick(1500), c.NowFresh())
	assert.Equal(t, Tick(1500), c.NowCached())
}

func TestClockNeverDecreases(t *testing.T) {
	src, now := fakeSource(time.Unix(1000, 0))
	c := NewClockWithSource(src)

	*now = now.Add(5 * time.Second)
	assert.Equal(t, Tick(5000), c.NowFresh())

	// Wall clock stepped backwards.
	*now = now.Add(-3 * time.Second)
	assert.Equal(t, Tick(5000), c.NowFresh())

	*now = now.Add(-10 * time.Second)
	assert.Equal(t, Tick(5000), c.NowFresh())
}

func TestClockRealSourceMonotonic(t *testing.T) {
	c := NewClock()

	prev := c.NowFresh()
	for i := 0; i < 10000; i++ {
		next := c.NowFresh()
		if next < prev {
			t.Fatalf("NowFresh went backwards: %d after %d", next, prev)
		}
		prev = next
	}
}

func TestClockBeyond32Bits(t *testing.T) {
	src, now := fakeSource(time.Unix(0, 0))
	c := NewClockWithSource(src)

	// Roughly 60 days of uptime overflows a 32-bit millisecond counter.
	*now = now.Add(60 * 24 * time.Hour)
	got := c.NowFresh()
	assert.Greater(t, uint64(got), uint64(^uint32(0)))
}

func TestTickArithmetic(t *testing.T) {
	tests := []struct {
		name string
		base Tick
		add  time.Duration
		want Tick
	}{
		{"whole milliseconds", 10, 25 * time.Millisecond, 35},
		{"sub millisecond truncated", 10, 1500 * time.Microsecond, 11},
		{"negative ignored", 10, -time.Second, 10},
		{"zero", 10, 0, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.base.Add(tt.add))
		})
	}

	assert.Equal(t, 40*time.Millisecond, Tick(50).Since(10))
	assert.Equal(t, time.Duration(0), Tick(10).Since(50))
	assert.Equal(t, 2*time.Second, Tick(2000).Duration())
}
