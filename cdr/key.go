package cdr

import (
	"bytes"
	"reflect"
)

// KeySize returns the size, in bytes, of t's concatenated key fields in
// the requested encoding, per spec.md §4.F.4.
func KeySize(v any, t *Type, padded, swap bool) int {
	return len(KeyFields(v, t, padded, swap))
}

// KeyFields emits t's key fields into a new buffer, per spec.md §4.F.4's
// two encodings:
//
//   - packed (padded=false): key fields are marshalled and concatenated
//     tightly, strings unpadded — the compact form used for wire
//     transmission.
//   - padded (padded=true): a bounded string key field is always
//     written at its declared Bound+1 width, zero-padded, so two key
//     buffers of the same Type are always the same length and direct
//     memcmp hashing is safe. Unbounded string keys fall back to the
//     packed form (there is no fixed width to pad to).
//
// Conversion between the two is a single re-marshal pass, since both
// read from the same source value.
func KeyFields(v any, t *Type, padded, swap bool) []byte {
	w := newWriter(nil, swap)
	marshalKeyValue(w, reflect.ValueOf(derefValue(v)), t, padded)
	buf := make([]byte, w.pos)
	w2 := newWriter(buf, swap)
	marshalKeyValue(w2, reflect.ValueOf(derefValue(v)), t, padded)
	return buf
}

func marshalKeyValue(w *writer, rv reflect.Value, t *Type, padded bool) {
	for _, m := range t.Members {
		if !m.Key {
			continue
		}
		fv := rv.FieldByName(m.Name)
		if padded && m.Kind == KindString && m.Bound > 0 {
			s := fv.String()
			if len(s) > m.Bound {
				s = s[:m.Bound]
			}
			writePaddedString(w, []byte(s), m.Bound)
			continue
		}
		marshalMember(w, fv, m)
	}
}

// writePaddedString writes s as a fixed Bound+1-byte field: the string
// bytes, a NUL terminator, and zero padding out to Bound+1 total bytes.
func writePaddedString(w *writer, s []byte, bound int) {
	w.align(4)
	total := bound + 1
	w.writeU32(uint32(total))
	b := make([]byte, total)
	copy(b, s)
	w.writeBytes(b)
}

// RepadKey converts a key buffer already produced in one of KeyFields'
// two encodings into the other, without needing the originating struct
// value — a direct byte-to-byte transcoding pass over t's key members,
// grounded on the original source's cdr_key_* family (cdr.c), which
// exposes both "packed" and "padded" key forms as conversions on the
// wire bytes rather than re-derivations from the native value. Content-
// based subscription and history-cache instance-handle hashing both
// need to convert a key they only have in wire form (e.g. one read back
// out of a cache entry) between the two encodings; re-marshalling from
// the original struct isn't an option once only the bytes remain.
//
// toPadded selects the conversion direction: true converts a packed
// buffer to padded, false converts a padded buffer to packed.
func RepadKey(src []byte, t *Type, toPadded, swap bool) []byte {
	build := func(w *writer) {
		r := newReader(src, swap)
		for _, m := range t.Members {
			if !m.Key {
				continue
			}
			transcodeKeyMember(r, w, m, toPadded)
		}
	}
	w := newWriter(nil, swap)
	build(w)
	buf := make([]byte, w.pos)
	w2 := newWriter(buf, swap)
	build(w2)
	return buf
}

// transcodeKeyMember reads one key member from its source encoding and
// re-emits it in the destination encoding. Only a top-level bounded
// string key field's width actually differs between the two encodings
// (spec.md §4.F.4); every other member kind transcodes byte-for-byte,
// since alignment rules are identical in both forms and KeyFields never
// propagates the padded flag into nested aggregates.
func transcodeKeyMember(r *reader, w *writer, m Member, toPadded bool) {
	if m.Kind == KindString && m.Bound > 0 {
		s := readKeyString(r, !toPadded)
		if toPadded {
			writePaddedString(w, s, m.Bound)
		} else {
			b := append(append([]byte{}, s...), 0)
			w.writeU32(uint32(len(b)))
			w.writeBytes(b)
		}
		return
	}
	transcodeMember(r, w, m)
}

// readKeyString reads a bounded string key field and returns its
// content with the terminator (and, for the padded form, any trailing
// zero padding) stripped. The packed form's declared length is exactly
// strlen+1, so the last byte is always the NUL; the padded form's
// declared length is always Bound+1 regardless of content, so the
// terminator is instead the first zero byte in the block.
func readKeyString(r *reader, fromPadded bool) []byte {
	n := int(r.readU32())
	b := r.readBytes(n)
	if fromPadded {
		if i := bytes.IndexByte(b, 0); i >= 0 {
			return b[:i]
		}
		return b
	}
	if n > 0 {
		b = b[:n-1]
	}
	return b
}

// transcodeMember copies one non-bounded-string key member from r to w
// unchanged, recursing through aggregate kinds the same way
// marshalMember/skipMember do.
func transcodeMember(r *reader, w *writer, m Member) {
	switch m.Kind {
	case KindString:
		n := int(r.readU32())
		b := r.readBytes(n)
		w.writeU32(uint32(n))
		w.writeBytes(b)
	case KindStruct:
		transcodeStruct(r, w, m.Elem)
	case KindArray:
		for i := 0; i < m.ArrayLen; i++ {
			transcodeElem(r, w, m.Elem)
		}
	case KindSequence:
		n := int(r.readU32())
		w.writeU32(uint32(n))
		for i := 0; i < n; i++ {
			transcodeElem(r, w, m.Elem)
		}
	default:
		transcodeScalar(r, w, m.Kind)
	}
}

func transcodeElem(r *reader, w *writer, t *Type) {
	if t.Kind == KindStruct {
		transcodeStruct(r, w, t)
		return
	}
	transcodeScalar(r, w, t.Kind)
}

func transcodeStruct(r *reader, w *writer, t *Type) {
	for _, m := range t.Members {
		transcodeMember(r, w, m)
	}
}

func transcodeScalar(r *reader, w *writer, k Kind) {
	switch k {
	case KindBool, KindOctet, KindChar:
		w.writeU8(r.readU8())
	case KindShort, KindUShort:
		w.writeU16(r.readU16())
	case KindLong, KindULong, KindEnum:
		w.writeU32(r.readU32())
	case KindLongLong, KindULongLong:
		w.writeU64(r.readU64())
	case KindFloat:
		w.writeU32(r.readU32())
	case KindDouble:
		w.writeU64(r.readU64())
	}
}
