package cdr

import "errors"

// ErrFieldIndex is returned by FieldOffset when fieldIndex is outside
// t's top-level member range.
var ErrFieldIndex = errors.New("cdr: field index out of range")

// FieldOffset performs a non-copying walk of src (encoded per t, hsize
// bytes of caller header already consumed) and returns the byte offset
// of the fieldIndex-th top-level member, per spec.md §4.F.5. Used by
// range filters and content-based subscription to avoid a full decode.
func FieldOffset(src []byte, hsize int, fieldIndex int, t *Type, swap bool) (int, error) {
	if fieldIndex < 0 || fieldIndex >= len(t.Members) {
		return 0, ErrFieldIndex
	}
	r := newReader(src, swap)
	r.pos = hsize

	if t.Extensibility == Mutable {
		return fieldOffsetMutable(r, t, fieldIndex)
	}
	for i, m := range t.Members {
		r.align(alignOf(m))
		if i == fieldIndex {
			return r.pos, nil
		}
		if err := skipMember(r, m); err != nil {
			return 0, err
		}
	}
	return 0, ErrFieldIndex
}

func fieldOffsetMutable(r *reader, t *Type, fieldIndex int) (int, error) {
	want := t.Members[fieldIndex].ID
	for {
		r.align(4)
		pid := r.readU16()
		if pid == PIDListEnd {
			return 0, ErrFieldIndex
		}
		var id uint32
		var length int
		switch pid {
		case PIDIgnore:
			length = int(r.readU16())
			r.pos += length
			continue
		case PIDExtended:
			r.readU16()
			id = r.readU32()
			length = int(r.readU32())
		default:
			id = uint32(pid &^ mustUnderstandFlag)
			length = int(r.readU16())
		}
		start := r.pos
		if id == want {
			return start, nil
		}
		r.pos = start + length
	}
}

func alignOf(m Member) int {
	if _, a := fixedSize(m.Kind); a > 0 {
		return a
	}
	return 1
}

// skipMember advances r past one member's encoded bytes without
// decoding into a destination value.
func skipMember(r *reader, m Member) error {
	switch m.Kind {
	case KindStruct:
		return skipValue(r, m.Elem)
	case KindArray:
		for i := 0; i < m.ArrayLen; i++ {
			if err := skipElem(r, m.Elem); err != nil {
				return err
			}
		}
		return nil
	case KindSequence:
		n := int(r.readU32())
		for i := 0; i < n; i++ {
			if err := skipElem(r, m.Elem); err != nil {
				return err
			}
		}
		return nil
	case KindString:
		n := int(r.readU32())
		r.pos += n
		return nil
	default:
		skipScalar(r, m.Kind)
		return nil
	}
}

func skipElem(r *reader, t *Type) error {
	if t.Kind == KindStruct {
		return skipValue(r, t)
	}
	if t.Kind == KindString {
		n := int(r.readU32())
		r.pos += n
		return nil
	}
	skipScalar(r, t.Kind)
	return nil
}

func skipScalar(r *reader, k Kind) {
	if size, align := fixedSize(k); size > 0 {
		r.align(align)
		r.pos += size
	}
}
