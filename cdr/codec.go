package cdr

import (
	"errors"
	"fmt"
	"math"
	"reflect"
)

// ErrUnknownMustUnderstand is returned by Unmarshal when a Mutable
// struct carries a parameter id the Type doesn't recognise and that
// parameter's must-understand bit (tracked on the wire's own flag,
// folded into bit 0x4000 of the short-form pid per PL-CDR convention)
// is set, per spec.md §4.F.3.
var ErrUnknownMustUnderstand = errors.New("cdr: unknown must-understand parameter")

// mustUnderstandFlag is PL-CDR's convention of folding "must understand"
// into bit 0x4000 of a short-form pid.
const mustUnderstandFlag = 0x4000

// MarshalledSize returns the number of bytes Marshal(v) would write,
// without writing them — spec.md's required size-only pre-pass.
func MarshalledSize(v any, t *Type, swap bool) int {
	w := newWriter(nil, swap)
	marshalValue(w, reflect.ValueOf(derefValue(v)), t, false)
	return w.pos
}

// Marshal encodes v (a struct, or pointer to one, matching t) into a
// freshly allocated buffer sized by MarshalledSize.
func Marshal(v any, t *Type, swap bool) []byte {
	size := MarshalledSize(v, t, swap)
	buf := make([]byte, size)
	w := newWriter(buf, swap)
	marshalValue(w, reflect.ValueOf(derefValue(v)), t, false)
	return buf
}

// MarshalKey encodes only t's key members, per spec.md §4.F.4's
// "packed" form (no inter-field padding beyond each field's own
// alignment requirement relative to the key buffer's start).
func MarshalKey(v any, t *Type, swap bool) []byte {
	w := newWriter(nil, swap)
	marshalValue(w, reflect.ValueOf(derefValue(v)), t, true)
	buf := make([]byte, w.pos)
	w2 := newWriter(buf, swap)
	marshalValue(w2, reflect.ValueOf(derefValue(v)), t, true)
	return buf
}

func derefValue(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	return rv.Interface()
}

// Unmarshal decodes src into dst (a pointer to a struct matching t).
func Unmarshal(src []byte, dst any, t *Type, swap bool) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Ptr {
		return errors.New("cdr: Unmarshal requires a pointer")
	}
	r := newReader(src, swap)
	return unmarshalValue(r, rv.Elem(), t, false)
}

// UnmarshalledSize reports the number of source bytes Unmarshal would
// consume from src for t, without populating a destination.
func UnmarshalledSize(src []byte, t *Type, swap bool) (int, error) {
	r := newReader(src, swap)
	if err := skipValue(r, t); err != nil {
		return 0, err
	}
	return r.pos, nil
}

func marshalValue(w *writer, rv reflect.Value, t *Type, keyOnly bool) {
	switch t.Kind {
	case KindStruct:
		if t.Extensibility == Mutable {
			marshalMutable(w, rv, t, keyOnly)
		} else {
			marshalFinal(w, rv, t, keyOnly)
		}
	default:
		marshalScalar(w, rv, t.Kind)
	}
}

func marshalFinal(w *writer, rv reflect.Value, t *Type, keyOnly bool) {
	for _, m := range t.Members {
		if keyOnly && !m.Key {
			continue
		}
		marshalMember(w, rv.FieldByName(m.Name), m)
	}
}

func marshalMutable(w *writer, rv reflect.Value, t *Type, keyOnly bool) {
	for _, m := range t.Members {
		if keyOnly && !m.Key {
			continue
		}
		fv := rv.FieldByName(m.Name)

		w.align(4)
		if m.ID < 0x3f00 {
			pid := uint16(m.ID)
			if m.MustUnderstand {
				pid |= mustUnderstandFlag
			}
			w.writeU16(pid)
			lenPos := w.pos
			w.writeU16(0)
			start := w.pos
			marshalMember(w, fv, m)
			w.align(4)
			if w.buf != nil {
				w.order().PutUint16(w.buf[lenPos:], uint16(w.pos-start))
			}
		} else {
			w.writeU16(PIDExtended)
			w.writeU16(8)
			w.writeU32(m.ID)
			lenPos := w.pos
			w.writeU32(0)
			start := w.pos
			marshalMember(w, fv, m)
			w.align(4)
			w.patchU32(lenPos, uint32(w.pos-start))
		}
	}
	w.align(4)
	w.writeU16(PIDListEnd)
	w.writeU16(0)
}

func marshalMember(w *writer, fv reflect.Value, m Member) {
	switch m.Kind {
	case KindStruct:
		marshalValue(w, fv, m.Elem, false)
	case KindArray:
		for i := 0; i < m.ArrayLen; i++ {
			marshalElem(w, fv.Index(i), m.Elem)
		}
	case KindSequence:
		n := fv.Len()
		w.writeU32(uint32(n))
		for i := 0; i < n; i++ {
			marshalElem(w, fv.Index(i), m.Elem)
		}
	default:
		marshalScalar(w, fv, m.Kind)
	}
}

func marshalElem(w *writer, fv reflect.Value, t *Type) {
	if t.Kind == KindStruct {
		marshalValue(w, fv, t, false)
		return
	}
	marshalScalar(w, fv, t.Kind)
}

func marshalScalar(w *writer, fv reflect.Value, k Kind) {
	switch k {
	case KindBool:
		b := uint8(0)
		if fv.Bool() {
			b = 1
		}
		w.writeU8(b)
	case KindOctet, KindChar:
		w.writeU8(uint8(fv.Uint()))
	case KindShort:
		w.writeU16(uint16(fv.Int()))
	case KindUShort:
		w.writeU16(uint16(fv.Uint()))
	case KindLong, KindEnum:
		w.writeU32(uint32(fv.Int()))
	case KindULong:
		w.writeU32(uint32(fv.Uint()))
	case KindLongLong:
		w.writeU64(uint64(fv.Int()))
	case KindULongLong:
		w.writeU64(fv.Uint())
	case KindFloat:
		w.writeU32(math.Float32bits(float32(fv.Float())))
	case KindDouble:
		w.writeU64(math.Float64bits(fv.Float()))
	case KindString:
		s := fv.String()
		b := append([]byte(s), 0)
		w.writeU32(uint32(len(b)))
		w.writeBytes(b)
	default:
		panic(fmt.Sprintf("cdr: unsupported kind %d", k))
	}
}

func unmarshalValue(r *reader, rv reflect.Value, t *Type, keyOnly bool) error {
	switch t.Kind {
	case KindStruct:
		if t.Extensibility == Mutable {
			return unmarshalMutable(r, rv, t, keyOnly)
		}
		return unmarshalFinal(r, rv, t, keyOnly)
	default:
		unmarshalScalar(r, rv, t.Kind)
		return nil
	}
}

func unmarshalFinal(r *reader, rv reflect.Value, t *Type, keyOnly bool) error {
	for _, m := range t.Members {
		if keyOnly && !m.Key {
			continue
		}
		if err := unmarshalMember(r, rv.FieldByName(m.Name), m); err != nil {
			return err
		}
	}
	return nil
}

func unmarshalMutable(r *reader, rv reflect.Value, t *Type, keyOnly bool) error {
	byID := make(map[uint32]Member, len(t.Members))
	for _, m := range t.Members {
		byID[m.ID] = m
	}
	for {
		r.align(4)
		pid := r.readU16()
		if pid == PIDListEnd {
			return nil
		}
		if pid == PIDIgnore {
			length := r.readU16()
			r.pos += int(length)
			continue
		}
		var id uint32
		var length int
		if pid == PIDExtended {
			r.readU16() // length16 == 8, already implied
			id = r.readU32()
			length = int(r.readU32())
		} else {
			id = uint32(pid &^ mustUnderstandFlag)
			length = int(r.readU16())
		}
		m, known := byID[id]
		start := r.pos
		if known && (!keyOnly || m.Key) {
			if err := unmarshalMember(r, rv.FieldByName(m.Name), m); err != nil {
				return err
			}
		} else if !known && pid&mustUnderstandFlag != 0 {
			return ErrUnknownMustUnderstand
		}
		// The decoder never trusts its own consumption: it always seeks
		// by the header's declared length (spec.md §4.F.3).
		r.pos = start + length
	}
}

func unmarshalMember(r *reader, fv reflect.Value, m Member) error {
	switch m.Kind {
	case KindStruct:
		return unmarshalValue(r, fv, m.Elem, false)
	case KindArray:
		for i := 0; i < m.ArrayLen; i++ {
			if err := unmarshalElem(r, fv.Index(i), m.Elem); err != nil {
				return err
			}
		}
		return nil
	case KindSequence:
		n := int(r.readU32())
		fv.Set(reflect.MakeSlice(fv.Type(), n, n))
		for i := 0; i < n; i++ {
			if err := unmarshalElem(r, fv.Index(i), m.Elem); err != nil {
				return err
			}
		}
		return nil
	default:
		unmarshalScalar(r, fv, m.Kind)
		return nil
	}
}

func unmarshalElem(r *reader, fv reflect.Value, t *Type) error {
	if t.Kind == KindStruct {
		return unmarshalValue(r, fv, t, false)
	}
	unmarshalScalar(r, fv, t.Kind)
	return nil
}

func unmarshalScalar(r *reader, fv reflect.Value, k Kind) {
	switch k {
	case KindBool:
		fv.SetBool(r.readU8() != 0)
	case KindOctet, KindChar:
		fv.SetUint(uint64(r.readU8()))
	case KindShort:
		fv.SetInt(int64(int16(r.readU16())))
	case KindUShort:
		fv.SetUint(uint64(r.readU16()))
	case KindLong, KindEnum:
		fv.SetInt(int64(int32(r.readU32())))
	case KindULong:
		fv.SetUint(uint64(r.readU32()))
	case KindLongLong:
		fv.SetInt(int64(r.readU64()))
	case KindULongLong:
		fv.SetUint(r.readU64())
	case KindFloat:
		fv.SetFloat(float64(math.Float32frombits(r.readU32())))
	case KindDouble:
		fv.SetFloat(math.Float64frombits(r.readU64()))
	case KindString:
		n := int(r.readU32())
		b := r.readBytes(n)
		if n > 0 {
			b = b[:n-1] // drop the NUL terminator
		}
		fv.SetString(string(b))
	default:
		panic(fmt.Sprintf("cdr: unsupported kind %d", k))
	}
}

// skipValue advances r past one t-shaped value without a destination,
// used by UnmarshalledSize and FieldOffset. It walks the Type
// descriptor alone, independent of any Go struct, which is why aggregate
// kinds are handled directly here rather than by delegating to
// unmarshalValue (which needs a reflect.Value to write into).
func skipValue(r *reader, t *Type) error {
	if t.Kind == KindString {
		n := int(r.readU32())
		r.pos += n
		return nil
	}
	if t.Kind != KindStruct {
		skipScalar(r, t.Kind)
		return nil
	}
	if t.Extensibility == Mutable {
		for {
			r.align(4)
			pid := r.readU16()
			if pid == PIDListEnd {
				return nil
			}
			var length int
			if pid == PIDExtended {
				r.readU16()
				r.readU32() // member id, unused when skipping
				length = int(r.readU32())
			} else {
				length = int(r.readU16())
			}
			r.pos += length
		}
	}
	for _, m := range t.Members {
		if err := skipMember(r, m); err != nil {
			return err
		}
	}
	return nil
}
