package cdr

import "math"

// DynData is a dynamically-typed decoded value, produced by
// DynamicData when the receiver doesn't have (or doesn't want to
// commit to) a static Go type for the payload, per spec.md §4.F.6.
//
// Exactly one of Scalar, Str/Bytes, Struct or Seq is populated, selected
// by Type.Kind. A string leaf additionally carries Foreign data when the
// node was parsed with copy=false: Bytes then aliases the source
// buffer passed to DynamicData, and the caller must not mutate or
// release that buffer while any DynData referencing it is in use.
type DynData struct {
	Type    *Type
	Scalar  any // bool/uint8/int16/uint16/int32/uint32/int64/uint64/float32/float64
	Str     string
	Bytes   []byte // set instead of Str for KindString leaves when Foreign
	Foreign bool
	Struct  map[string]*DynData
	Seq     []*DynData
}

// DynamicData parses src (hsize bytes of header already consumed) into
// a dynamic node tree shaped by t. With copy=false, string leaves borrow
// slices of src directly (Foreign=true) instead of allocating; with
// copy=true every leaf is independently owned.
//
// If key is true, only t's key members are parsed for KindStruct types
// (non-key members are skipped via FieldOffset-style seeking, not
// decoded).
func DynamicData(src []byte, hsize int, t *Type, key bool, copy bool, swap bool) (*DynData, error) {
	r := newReader(src, swap)
	r.pos = hsize
	return dynValue(r, t, key, copy)
}

func dynValue(r *reader, t *Type, key bool, cp bool) (*DynData, error) {
	switch t.Kind {
	case KindStruct:
		if t.Extensibility == Mutable {
			return dynMutableStruct(r, t, key, cp)
		}
		return dynFinalStruct(r, t, key, cp)
	case KindArray, KindSequence:
		return dynSequence(r, t, cp)
	case KindString:
		return dynString(r, cp), nil
	default:
		return dynScalar(r, t.Kind), nil
	}
}

func dynFinalStruct(r *reader, t *Type, key bool, cp bool) (*DynData, error) {
	out := &DynData{Type: t, Struct: make(map[string]*DynData, len(t.Members))}
	for _, m := range t.Members {
		if key && !m.Key {
			if err := skipMember(r, m); err != nil {
				return nil, err
			}
			continue
		}
		child, err := dynMember(r, m, cp)
		if err != nil {
			return nil, err
		}
		out.Struct[m.Name] = child
	}
	return out, nil
}

func dynMutableStruct(r *reader, t *Type, key bool, cp bool) (*DynData, error) {
	byID := make(map[uint32]Member, len(t.Members))
	for _, m := range t.Members {
		byID[m.ID] = m
	}
	out := &DynData{Type: t, Struct: make(map[string]*DynData)}
	for {
		r.align(4)
		pid := r.readU16()
		if pid == PIDListEnd {
			return out, nil
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
		m, known := byID[id]
		start := r.pos
		if known && (!key || m.Key) {
			child, err := dynMember(r, m, cp)
			if err != nil {
				return nil, err
			}
			out.Struct[m.Name] = child
		} else if !known && pid&mustUnderstandFlag != 0 {
			return nil, ErrUnknownMustUnderstand
		}
		r.pos = start + length
	}
}

func dynMember(r *reader, m Member, cp bool) (*DynData, error) {
	switch m.Kind {
	case KindStruct:
		return dynValue(r, m.Elem, false, cp)
	case KindArray:
		return dynFixedArray(r, m, cp)
	case KindSequence:
		n := int(r.readU32())
		out := &DynData{Type: &Type{Kind: KindSequence, Elem: m.Elem}}
		for i := 0; i < n; i++ {
			child, err := dynElem(r, m.Elem, cp)
			if err != nil {
				return nil, err
			}
			out.Seq = append(out.Seq, child)
		}
		return out, nil
	case KindString:
		return dynString(r, cp), nil
	default:
		return dynScalar(r, m.Kind), nil
	}
}

func dynFixedArray(r *reader, m Member, cp bool) (*DynData, error) {
	out := &DynData{Type: &Type{Kind: KindArray, Elem: m.Elem, ArrayLen: m.ArrayLen}}
	for i := 0; i < m.ArrayLen; i++ {
		child, err := dynElem(r, m.Elem, cp)
		if err != nil {
			return nil, err
		}
		out.Seq = append(out.Seq, child)
	}
	return out, nil
}

func dynSequence(r *reader, t *Type, cp bool) (*DynData, error) {
	n := t.ArrayLen
	if t.Kind == KindSequence {
		n = int(r.readU32())
	}
	out := &DynData{Type: t}
	for i := 0; i < n; i++ {
		child, err := dynElem(r, t.Elem, cp)
		if err != nil {
			return nil, err
		}
		out.Seq = append(out.Seq, child)
	}
	return out, nil
}

func dynElem(r *reader, t *Type, cp bool) (*DynData, error) {
	if t.Kind == KindStruct {
		return dynValue(r, t, false, cp)
	}
	if t.Kind == KindString {
		return dynString(r, cp), nil
	}
	return dynScalar(r, t.Kind), nil
}

// dynString reads a CDR string leaf. With cp=false the returned node
// borrows into r's backing buffer (Foreign=true) instead of copying.
func dynString(r *reader, cp bool) *DynData {
	n := int(r.readU32())
	b := r.readBytes(n)
	if n > 0 {
		b = b[:n-1]
	}
	t := &Type{Kind: KindString}
	if cp {
		owned := make([]byte, len(b))
		copy(owned, b)
		return &DynData{Type: t, Str: string(owned)}
	}
	return &DynData{Type: t, Bytes: b, Foreign: true}
}

func dynScalar(r *reader, k Kind) *DynData {
	t := &Type{Kind: k}
	switch k {
	case KindBool:
		return &DynData{Type: t, Scalar: r.readU8() != 0}
	case KindOctet, KindChar:
		return &DynData{Type: t, Scalar: r.readU8()}
	case KindShort:
		return &DynData{Type: t, Scalar: int16(r.readU16())}
	case KindUShort:
		return &DynData{Type: t, Scalar: r.readU16()}
	case KindLong, KindEnum:
		return &DynData{Type: t, Scalar: int32(r.readU32())}
	case KindULong:
		return &DynData{Type: t, Scalar: r.readU32()}
	case KindLongLong:
		return &DynData{Type: t, Scalar: int64(r.readU64())}
	case KindULongLong:
		return &DynData{Type: t, Scalar: r.readU64()}
	case KindFloat:
		return &DynData{Type: t, Scalar: math.Float32frombits(r.readU32())}
	case KindDouble:
		return &DynData{Type: t, Scalar: math.Float64frombits(r.readU64())}
	default:
		return &DynData{Type: t}
	}
}
