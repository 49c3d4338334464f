package cdr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type boundedKeyedT struct {
	Name string `cdr:"id=1,key"`
	Tag  int16  `cdr:"id=2"`
}

func boundedKeyedType(bound int) *Type {
	ty := BuildType(boundedKeyedT{})
	ty.Members[0].Bound = bound
	return ty
}

func TestRepadKeyPackedToPaddedMatchesDirectPaddedEncoding(t *testing.T) {
	ty := boundedKeyedType(16)
	v := boundedKeyedT{Name: "alice", Tag: 1}

	packed := KeyFields(v, ty, false, false)
	gotPadded := RepadKey(packed, ty, true, false)
	wantPadded := KeyFields(v, ty, true, false)

	assert.Equal(t, wantPadded, gotPadded)
}

func TestRepadKeyPaddedToPackedMatchesDirectPackedEncoding(t *testing.T) {
	ty := boundedKeyedType(16)
	v := boundedKeyedT{Name: "bob", Tag: 2}

	padded := KeyFields(v, ty, true, false)
	gotPacked := RepadKey(padded, ty, false, false)
	wantPacked := KeyFields(v, ty, false, false)

	assert.Equal(t, wantPacked, gotPacked)
}

func TestRepadKeyRoundTripsThroughBothEncodings(t *testing.T) {
	ty := boundedKeyedType(8)
	v := boundedKeyedT{Name: "short", Tag: 9}

	packed := KeyFields(v, ty, false, false)
	padded := RepadKey(packed, ty, true, false)
	back := RepadKey(padded, ty, false, false)

	assert.Equal(t, packed, back)
}

func TestRepadKeyIgnoresNonKeyMembers(t *testing.T) {
	ty := boundedKeyedType(16)
	a := KeyFields(boundedKeyedT{Name: "same", Tag: 1}, ty, false, false)
	b := KeyFields(boundedKeyedT{Name: "same", Tag: 2}, ty, false, false)

	assert.Equal(t, RepadKey(a, ty, true, false), RepadKey(b, ty, true, false))
}

func TestOffsetCacheMatchesFieldOffsetForAscendingQueries(t *testing.T) {
	ty := nestedType()
	v := nestedT{Key: "hi", Inner: innerT{N: 42}, Arr: [3]int16{1, 2, 3}}
	buf := Marshal(v, ty, false)

	c := NewOffsetCache(buf, 0, ty, false)
	for i := 0; i < len(ty.Members); i++ {
		got, err := c.Offset(i)
		require.NoError(t, err)
		want, err := FieldOffset(buf, 0, i, ty, false)
		require.NoError(t, err)
		assert.Equal(t, want, got, "field %d", i)
	}
}

func TestOffsetCacheAllowsRepeatedAndOutOfOrderQueries(t *testing.T) {
	ty := nestedType()
	v := nestedT{Key: "hi", Inner: innerT{N: 42}, Arr: [3]int16{1, 2, 3}}
	buf := Marshal(v, ty, false)

	c := NewOffsetCache(buf, 0, ty, false)

	last, err := c.Offset(2)
	require.NoError(t, err)
	want, err := FieldOffset(buf, 0, 2, ty, false)
	require.NoError(t, err)
	assert.Equal(t, want, last)

	// A query for an already-passed index falls back to a fresh walk
	// rather than returning a stale or wrong position.
	first, err := c.Offset(0)
	require.NoError(t, err)
	wantFirst, err := FieldOffset(buf, 0, 0, ty, false)
	require.NoError(t, err)
	assert.Equal(t, wantFirst, first)

	// Re-querying the same forward index again still works.
	again, err := c.Offset(2)
	require.NoError(t, err)
	assert.Equal(t, want, again)
}

func TestOffsetCacheRejectsOutOfRangeIndex(t *testing.T) {
	ty := nestedType()
	buf := Marshal(nestedT{Key: "hi"}, ty, false)
	c := NewOffsetCache(buf, 0, ty, false)

	_, err := c.Offset(len(ty.Members))
	assert.ErrorIs(t, err, ErrFieldIndex)
}

func TestOffsetCacheHandlesMutableOutOfDeclarationOrderQueries(t *testing.T) {
	ty := BuildType(mutableT{})
	v := mutableT{Name: "carol", Age: 50}
	buf := Marshal(v, ty, false)

	c := NewOffsetCache(buf, 0, ty, false)
	off1, err := c.Offset(1)
	require.NoError(t, err)
	off0, err := c.Offset(0)
	require.NoError(t, err)

	want1, err := FieldOffset(buf, 0, 1, ty, false)
	require.NoError(t, err)
	want0, err := FieldOffset(buf, 0, 0, ty, false)
	require.NoError(t, err)

	assert.Equal(t, want1, off1)
	assert.Equal(t, want0, off0)
}
