package ticks

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffWrapsSafely(t *testing.T) {
	cases := []struct {
		old, b Tick
	}{
		{0, 1},
		{math.MaxUint32 - 5, 10},
		{math.MaxUint32, 0},
	}
	for _, c := range cases {
		got := Diff(c.old, c.old+c.b)
		assert.Equal(t, c.b, got)
	}
}

func TestDiffMaxDiffSentinel(t *testing.T) {
	// A deadline "far" in the future relative to now classifies as past
	// when the wrapped difference exceeds MaxDiff, per spec semantics.
	now := Tick(100)
	farDeadline := now - 1 // wraps around to a huge unsigned diff
	d := Diff(now, farDeadline)
	assert.Greater(t, d, MaxDiff)
}

func TestSourceNowTicksCountsFromAnchor(t *testing.T) {
	s := NewSource()
	s.Reset(time.Now().Add(-50 * time.Millisecond))
	got := s.NowTicks()
	require.GreaterOrEqual(t, int(got), 4)
}

func TestFTimeRoundTrip(t *testing.T) {
	f := FromTime(12345, 500_000_000)
	sec, nsec := f.ToTime()
	assert.Equal(t, int32(12345), sec)
	assert.InDelta(t, 500_000_000, int(nsec), 2) // fixed-point rounding tolerance
}

func TestFTimeCompare(t *testing.T) {
	a := FromTime(1, 0)
	b := FromTime(2, 0)
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestFTimeAddSub(t *testing.T) {
	a := FromTime(10, 0)
	b := FromTime(5, 0)
	sum := a.Add(b)
	sec, _ := sum.ToTime()
	assert.Equal(t, int32(15), sec)
	diff := a.Sub(b)
	sec, _ = diff.ToTime()
	assert.Equal(t, int32(5), sec)
}
