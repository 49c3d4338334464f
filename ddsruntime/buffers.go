package ddsruntime

import (
	"errors"

	"github.com/qeo-io/ddscore/pool"
)

// The data-buffer size classes spec.md §4.I names: powers of two from
// 64 B to 16 KiB inclusive (nine classes, not eight — the spec's count
// and its own size range disagree; the range is authoritative). Each
// class backs a pool.Pool over a fixed-size array type, the same way
// package pool's generic Pool is used everywhere else in this module —
// a buffer "slab" is just a [N]byte, never a bare make([]byte, ...)
// call, so every Buffers allocation is accounted for by its class
// Pool's Stats.
type (
	buf64  [64]byte
	buf128 [128]byte
	buf256 [256]byte
	buf512 [512]byte
	buf1k  [1024]byte
	buf2k  [2048]byte
	buf4k  [4096]byte
	buf8k  [8192]byte
	buf16k [16384]byte
)

// ErrSampleTooLarge is returned when a requested allocation exceeds the
// largest configured buffer class (16 KiB).
var ErrSampleTooLarge = errors.New("ddsruntime: sample exceeds largest buffer class")

// bufferClass is the common, size-erased handle onto one of the nine
// concrete pool.Pool[bufN] instances, letting Buffers.Alloc pick a class
// at runtime by requested size without exposing nine separate types to
// callers.
type bufferClass interface {
	size() int
	alloc() (slab any, data []byte, err error)
	free(slab any)
}

// typedClass wraps one concrete pool.Pool[T] along with a view function
// that slices *T (a fixed-size byte array) into a []byte over the same
// backing storage. Go generics can't parameterise over an array length,
// so view is supplied per instantiation instead of derived via unsafe.
type typedClass[T any] struct {
	p    *pool.Pool[T]
	n    int
	view func(*T) []byte
}

func (c *typedClass[T]) size() int { return c.n }

func (c *typedClass[T]) alloc() (any, []byte, error) {
	v, err := c.p.Alloc()
	if err != nil {
		return nil, nil, err
	}
	return v, c.view(v), nil
}

func (c *typedClass[T]) free(slab any) {
	c.p.Free(slab.(*T))
}

// Buffers is the process-wide set of nine data-buffer pools, created
// during Init (spec.md §4.I's "create data-buffer pools").
type Buffers struct {
	classes [9]bufferClass
}

// Buffer is a pooled allocation handle: Bytes is the usable slice
// (length equal to the requested size, capacity equal to the class
// size), and Release returns the underlying slab to its class pool.
type Buffer struct {
	Bytes   []byte
	release func()
}

// Release returns the buffer to its pool. Calling it more than once, or
// on the zero value, is a caller bug (matches pool.Pool.Free's posture).
func (b *Buffer) Release() {
	if b.release != nil {
		b.release()
		b.release = nil
	}
}

// NewBuffers constructs the nine pools using limits as the per-class
// reservation (the same Limits are used for every class; callers needing
// per-class tuning can construct Buffers fields directly).
func NewBuffers(limits pool.Limits) *Buffers {
	return &Buffers{classes: [9]bufferClass{
		&typedClass[buf64]{p: pool.New[buf64](limits), n: 64, view: func(v *buf64) []byte { return v[:] }},
		&typedClass[buf128]{p: pool.New[buf128](limits), n: 128, view: func(v *buf128) []byte { return v[:] }},
		&typedClass[buf256]{p: pool.New[buf256](limits), n: 256, view: func(v *buf256) []byte { return v[:] }},
		&typedClass[buf512]{p: pool.New[buf512](limits), n: 512, view: func(v *buf512) []byte { return v[:] }},
		&typedClass[buf1k]{p: pool.New[buf1k](limits), n: 1024, view: func(v *buf1k) []byte { return v[:] }},
		&typedClass[buf2k]{p: pool.New[buf2k](limits), n: 2048, view: func(v *buf2k) []byte { return v[:] }},
		&typedClass[buf4k]{p: pool.New[buf4k](limits), n: 4096, view: func(v *buf4k) []byte { return v[:] }},
		&typedClass[buf8k]{p: pool.New[buf8k](limits), n: 8192, view: func(v *buf8k) []byte { return v[:] }},
		&typedClass[buf16k]{p: pool.New[buf16k](limits), n: 16384, view: func(v *buf16k) []byte { return v[:] }},
	}}
}

// Alloc returns a Buffer from the smallest class able to hold size
// bytes. Bytes is truncated to exactly size; the remainder of the
// class's slab is still reserved (not reusable) until Release.
func (b *Buffers) Alloc(size int) (*Buffer, error) {
	for _, c := range b.classes {
		if c == nil || c.size() < size {
			continue
		}
		slab, data, err := c.alloc()
		if err != nil {
			return nil, err
		}
		buf := &Buffer{Bytes: data[:size]}
		buf.release = func() { c.free(slab) }
		return buf, nil
	}
	return nil, ErrSampleTooLarge
}
