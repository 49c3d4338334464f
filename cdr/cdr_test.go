package cdr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type innerT struct {
	N int32 `cdr:"id=1"`
}

type nestedT struct {
	Key   string   `cdr:"id=1,key"`
	Inner innerT   `cdr:"id=2"`
	Arr   [3]int16 `cdr:"id=3"`
}

func nestedType() *Type {
	return BuildType(nestedT{})
}

func TestRoundTripNestedStruct(t *testing.T) {
	ty := nestedType()
	v := nestedT{Key: "hi", Inner: innerT{N: 42}, Arr: [3]int16{1, 2, 3}}

	buf := Marshal(v, ty, false)

	var out nestedT
	require.NoError(t, Unmarshal(buf, &out, ty, false))
	assert.Equal(t, v, out)
}

// TestNestedStructWireLayout checks the byte layout described in
// spec.md's nested CDR round-trip scenario: a string key, a nested
// struct, then a fixed int16 array, respecting each field's own
// alignment.
func TestNestedStructWireLayout(t *testing.T) {
	ty := nestedType()
	v := nestedT{Key: "hi", Inner: innerT{N: 42}, Arr: [3]int16{1, 2, 3}}
	buf := Marshal(v, ty, false)

	// string length prefix (4 bytes) + "hi\x00" (3 bytes) + 1 pad byte
	// to reach the next 4-byte boundary before the nested struct.
	require.GreaterOrEqual(t, len(buf), 7)
	assert.Equal(t, []byte{3, 0, 0, 0}, buf[0:4])
	assert.Equal(t, byte('h'), buf[4])
	assert.Equal(t, byte('i'), buf[5])
	assert.Equal(t, byte(0), buf[6])

	innerStart := 8
	assert.Equal(t, []byte{0x2a, 0, 0, 0}, buf[innerStart:innerStart+4])

	arrStart := innerStart + 4
	assert.Equal(t, []byte{1, 0, 2, 0, 3, 0}, buf[arrStart:arrStart+6])
}

func TestSwapProducesByteReversedPrimitives(t *testing.T) {
	ty := BuildType(innerT{})
	v := innerT{N: 0x01020304}

	le := Marshal(v, ty, false)
	be := Marshal(v, ty, true)

	require.Len(t, le, 4)
	require.Len(t, be, 4)
	for i := range le {
		assert.Equal(t, le[i], be[3-i])
	}
}

func TestOversizedPayloadMarshalledSize(t *testing.T) {
	type bigT struct {
		Payload []byte `cdr:"id=1"`
	}
	ty := BuildType(bigT{})
	v := bigT{Payload: make([]byte, 100*1024)}

	size := MarshalledSize(v, ty, false)
	assert.Equal(t, 4+100*1024, size)

	buf := Marshal(v, ty, false)
	var out bigT
	require.NoError(t, Unmarshal(buf, &out, ty, false))
	assert.Equal(t, v.Payload, out.Payload)
}

type mutableT struct {
	Ext  `cdr:"mutable"`
	Name string `cdr:"id=1,key"`
	Age  int32  `cdr:"id=2"`
}

func TestMutableRoundTripWithPIDListEnd(t *testing.T) {
	ty := BuildType(mutableT{})
	v := mutableT{Name: "alice", Age: 30}

	buf := Marshal(v, ty, false)

	var out mutableT
	require.NoError(t, Unmarshal(buf, &out, ty, false))
	assert.Equal(t, v.Name, out.Name)
	assert.Equal(t, v.Age, out.Age)

	// The last 4 bytes of any mutable encoding are the PID_LIST_END
	// terminator with a zero length.
	n := len(buf)
	assert.Equal(t, PIDListEnd, uint16(buf[n-4])|uint16(buf[n-3])<<8)
}

func TestMutableUnmarshalToleratesUnknownNonMustUnderstandParameter(t *testing.T) {
	ty := BuildType(mutableT{})
	v := mutableT{Name: "bob", Age: 40}
	buf := Marshal(v, ty, false)

	// Splice in a well-formed, unrecognised short-form parameter right
	// before PID_LIST_END; the decoder must skip it by its declared
	// length and still recover the known fields.
	tail := buf[len(buf)-4:]
	body := buf[:len(buf)-4]
	extra := []byte{0x10, 0x00, 0x04, 0x00, 0xde, 0xad, 0xbe, 0xef}
	spliced := append(append(append([]byte{}, body...), extra...), tail...)

	var out mutableT
	require.NoError(t, Unmarshal(spliced, &out, ty, false))
	assert.Equal(t, v.Name, out.Name)
	assert.Equal(t, v.Age, out.Age)
}

type keyedT struct {
	ID   int32  `cdr:"id=1,key"`
	Name string `cdr:"id=2,key"`
	Tag  int16  `cdr:"id=3"`
}

func TestKeyFieldsPackedExcludesNonKeyMembers(t *testing.T) {
	ty := BuildType(keyedT{})
	v := keyedT{ID: 7, Name: "x", Tag: 99}

	packed := KeyFields(v, ty, false, false)

	var decoded keyedT
	// Build a key-only Type view by reusing the same Type (Unmarshal
	// with keyOnly semantics isn't exported standalone; verify length
	// instead, matching key_size's documented purpose).
	_ = decoded
	assert.Equal(t, KeySize(v, ty, false, false), len(packed))
	assert.Less(t, len(packed), len(Marshal(v, ty, false)))
}

func TestKeyFieldsPaddedIsFixedWidth(t *testing.T) {
	type boundedKeyT struct {
		Name string `cdr:"id=1,key"`
	}
	ty := BuildType(boundedKeyT{})
	ty.Members[0].Bound = 16

	short := KeyFields(boundedKeyT{Name: "a"}, ty, true, false)
	long := KeyFields(boundedKeyT{Name: "a-much-longer-name"}, ty, true, false)

	assert.Equal(t, len(short), len(long))
}

func TestFieldOffsetLocatesTopLevelMember(t *testing.T) {
	ty := BuildType(nestedT{})
	v := nestedT{Key: "hi", Inner: innerT{N: 42}, Arr: [3]int16{1, 2, 3}}
	buf := Marshal(v, ty, false)

	off, err := FieldOffset(buf, 0, 2, ty, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 2, 0, 3, 0}, buf[off:off+6])
}

func TestDynamicDataForeignBorrowsSourceBuffer(t *testing.T) {
	type strT struct {
		S string `cdr:"id=1"`
	}
	ty := BuildType(strT{})
	buf := Marshal(strT{S: "borrowed"}, ty, false)

	dyn, err := DynamicData(buf, 0, ty, false, false, false)
	require.NoError(t, err)
	leaf := dyn.Struct["S"]
	require.True(t, leaf.Foreign)
	assert.Equal(t, "borrowed", string(leaf.Bytes))

	// Mutating the source buffer is visible through the foreign node,
	// proving it didn't copy.
	buf[4] = 'B'
	assert.Equal(t, byte('B'), leaf.Bytes[0])
}

func TestDynamicDataCopyIsIndependentOfSourceBuffer(t *testing.T) {
	type strT struct {
		S string `cdr:"id=1"`
	}
	ty := BuildType(strT{})
	buf := Marshal(strT{S: "owned"}, ty, false)

	dyn, err := DynamicData(buf, 0, ty, false, true, false)
	require.NoError(t, err)
	leaf := dyn.Struct["S"]
	require.False(t, leaf.Foreign)
	assert.Equal(t, "owned", leaf.Str)

	buf[8] = 'X'
	assert.Equal(t, "owned", leaf.Str)
}
