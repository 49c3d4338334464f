package cdr

// OffsetCache memoizes a forward walk of FieldOffset over one buffer,
// grounded on the offset-cache embedded in the original source's
// xtypes/xcdr.c: a content filter typically evaluates several clauses
// against the same sample in ascending field order, and recomputing
// FieldOffset from byte 0 for every clause turns an O(members) filter
// into O(members²) over the buffer. The cache instead remembers how far
// a prior Offset call already walked and resumes from there.
//
// OffsetCache is not safe for concurrent use; a filter evaluation owns
// one per sample.
type OffsetCache struct {
	src   []byte
	hsize int
	t     *Type
	swap  bool

	have bool    // true once at least one field has been resolved
	idx  int     // index of the last field resolved
	r    *reader // positioned at the start of member idx's encoding
}

// NewOffsetCache prepares a cache over src (t-encoded, with hsize bytes
// of caller header already consumed), mirroring FieldOffset's
// parameters.
func NewOffsetCache(src []byte, hsize int, t *Type, swap bool) *OffsetCache {
	return &OffsetCache{src: src, hsize: hsize, t: t, swap: swap}
}

// Offset returns the byte offset of t's fieldIndex-th top-level member,
// identically to FieldOffset(c.src, c.hsize, fieldIndex, c.t, c.swap).
// Calls with strictly increasing fieldIndex reuse the walk already done
// by the previous call instead of rescanning from the start; a call
// with fieldIndex <= the previously resolved index falls back to a
// fresh walk, since the cached reader has already moved past that
// point.
func (c *OffsetCache) Offset(fieldIndex int) (int, error) {
	if fieldIndex < 0 || fieldIndex >= len(c.t.Members) {
		return 0, ErrFieldIndex
	}

	// Mutable's PID lookup isn't declaration-order, so a forward resume
	// can't help an out-of-order query sequence; every call re-walks,
	// same as FieldOffset.
	if c.t.Extensibility == Mutable {
		r := newReader(c.src, c.swap)
		r.pos = c.hsize
		return fieldOffsetMutable(r, c.t, fieldIndex)
	}

	if c.have && fieldIndex <= c.idx {
		return FieldOffset(c.src, c.hsize, fieldIndex, c.t, c.swap)
	}

	r := c.r
	next := 0
	if c.have {
		next = c.idx + 1
		if err := skipMember(r, c.t.Members[c.idx]); err != nil {
			return 0, err
		}
	} else {
		r = newReader(c.src, c.swap)
		r.pos = c.hsize
	}

	for i := next; i <= fieldIndex; i++ {
		m := c.t.Members[i]
		r.align(alignOf(m))
		if i == fieldIndex {
			c.have = true
			c.idx = i
			c.r = r
			return r.pos, nil
		}
		if err := skipMember(r, m); err != nil {
			return 0, err
		}
	}
	return 0, ErrFieldIndex
}
