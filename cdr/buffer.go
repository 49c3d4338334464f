package cdr

import "encoding/binary"

// writer accumulates marshalled bytes with CDR alignment bookkeeping,
// grounded on cdr.c's ALIGN/CDR_ALIGN macros. A nil buf counts bytes
// without writing, the size-only pass spec.md §4.F.2 requires before
// allocating the real destination.
type writer struct {
	buf  []byte // nil => size-only pass
	pos  int
	swap bool
}

func newWriter(buf []byte, swap bool) *writer {
	return &writer{buf: buf, swap: swap}
}

func (w *writer) order() binary.ByteOrder {
	if w.swap {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// align advances pos to the next multiple of n, writing zero pad bytes
// if buf is non-nil.
func (w *writer) align(n int) {
	for w.pos%n != 0 {
		if w.buf != nil {
			w.buf[w.pos] = 0
		}
		w.pos++
	}
}

func (w *writer) writeBytes(b []byte) {
	if w.buf != nil {
		copy(w.buf[w.pos:], b)
	}
	w.pos += len(b)
}

func (w *writer) writeU8(v uint8) {
	if w.buf != nil {
		w.buf[w.pos] = v
	}
	w.pos++
}

func (w *writer) writeU16(v uint16) {
	w.align(2)
	if w.buf != nil {
		w.order().PutUint16(w.buf[w.pos:], v)
	}
	w.pos += 2
}

func (w *writer) writeU32(v uint32) {
	w.align(4)
	if w.buf != nil {
		w.order().PutUint32(w.buf[w.pos:], v)
	}
	w.pos += 4
}

func (w *writer) writeU64(v uint64) {
	w.align(8)
	if w.buf != nil {
		w.order().PutUint64(w.buf[w.pos:], v)
	}
	w.pos += 8
}

// patchU32 back-patches a previously reserved 4-byte length slot, used
// by mutable encoding's {pid,length} header (spec.md §4.F.2).
func (w *writer) patchU32(at int, v uint32) {
	if w.buf == nil {
		return
	}
	w.order().PutUint32(w.buf[at:], v)
}

// reader walks a CDR buffer, mirroring writer's alignment rules.
type reader struct {
	buf  []byte
	pos  int
	swap bool
}

func newReader(buf []byte, swap bool) *reader {
	return &reader{buf: buf, swap: swap}
}

func (r *reader) order() binary.ByteOrder {
	if r.swap {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (r *reader) align(n int) {
	for r.pos%n != 0 {
		r.pos++
	}
}

func (r *reader) readBytes(n int) []byte {
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) readU8() uint8 {
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *reader) readU16() uint16 {
	r.align(2)
	v := r.order().Uint16(r.buf[r.pos:])
	r.pos += 2
	return v
}

func (r *reader) readU32() uint32 {
	r.align(4)
	v := r.order().Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) readU64() uint64 {
	r.align(8)
	v := r.order().Uint64(r.buf[r.pos:])
	r.pos += 8
	return v
}
