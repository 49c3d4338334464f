// Package rtps implements the narrow writer/reader "apply" edges
// spec.md §4.J describes, deliberately thin: history cache, discovery
// and QoS matching are Non-goals (spec.md §1) left to external
// collaborators via the interfaces this package defines. Grounded on
// spec.md §4.J and §6's description of the collaborator surface the
// core exposes and consumes.
package rtps

import (
	"github.com/qeo-io/ddscore/cdr"
	"github.com/qeo-io/ddscore/ddsruntime"
	"github.com/qeo-io/ddscore/dispatch"
)

// CacheChange is the record a Writer attaches to every marshalled
// sample before handing it to RTPS, matching spec.md §4.J's "attach the
// cache-change record". The actual history cache that stores these is
// out of scope (spec.md Non-goals); this struct is the narrow shape
// RTPS and a caller-supplied history cache agree on.
type CacheChange struct {
	WriterGUID ddsruntime.GUIDPrefix
	SequenceNo uint64
	Data       []byte
	Disposed   bool
}

// Receiver is the sink a Writer hands a marshalled CacheChange to — in
// production, a transport's Send fan-out; in tests, anything that
// records what it was given.
type Receiver interface {
	Receive(change CacheChange) error
}

// EndpointLocator resolves which Receivers a Writer should currently
// fan a CacheChange out to — the narrow discovery/matching collaborator
// spec.md §6 describes. Computing that match (SEDP content, QoS
// compatibility) is out of this package's scope; whatever satisfies
// this interface owns that logic and just reports the current answer.
type EndpointLocator interface {
	MatchedReaders() []Receiver
}

// Writer implements spec.md §4.J's writer-side apply edge: given a
// native value and its cdr.Type, compute marshalled_size, allocate from
// the data-buffer pools, marshal, attach a CacheChange, and hand it to
// every currently matched Receiver.
type Writer struct {
	GUID    ddsruntime.GUIDPrefix
	Type    *cdr.Type
	Buffers *ddsruntime.Buffers
	Matched EndpointLocator

	seq uint64
}

// Write marshals v according to w.Type, using a pooled buffer sized by
// cdr.MarshalledSize, and hands the result to every Receiver
// w.Matched.MatchedReaders() currently reports. The returned
// CacheChange's Data aliases the pooled buffer: callers must not retain
// it past the Receiver calls unless they copy it, matching the
// FOREIGN-buffer lifetime discipline package cdr's dynamic data uses.
// A Receiver error does not stop delivery: every Receiver is still
// attempted, and the first error is returned to the caller.
func (w *Writer) Write(v any) (CacheChange, error) {
	size := cdr.MarshalledSize(v, w.Type, false)
	buf, err := w.Buffers.Alloc(size)
	if err != nil {
		return CacheChange{}, err
	}
	marshalled := cdr.Marshal(v, w.Type, false)
	copy(buf.Bytes, marshalled)

	w.seq++
	change := CacheChange{WriterGUID: w.GUID, SequenceNo: w.seq, Data: buf.Bytes}

	var firstErr error
	if w.Matched != nil {
		for _, rx := range w.Matched.MatchedReaders() {
			if err := rx.Receive(change); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return change, firstErr
}

// Sample is what a Reader hands to user code via the notification
// queue: either a FOREIGN reference into the receive buffer (zero-copy,
// valid only until the next receive on the same buffer) or a
// materialised copy, selected by the reader's Lifetime policy.
type Sample struct {
	ReaderGUID ddsruntime.GUIDPrefix
	Dyn        *cdr.DynData
	Native     any
}

// Lifetime selects how Reader.OnReceive presents an incoming sample,
// matching spec.md §4.J's "per the reader's configured lifetime
// policy".
type Lifetime int

const (
	// LifetimeForeign presents a zero-copy reference into the receive
	// buffer; the caller must consume it before the buffer is reused.
	LifetimeForeign Lifetime = iota
	// LifetimeCopy materialises an owned copy, safe to retain.
	LifetimeCopy
)

// Reader implements spec.md §4.J's reader-side apply edge: decode an
// incoming datagram via cdr, and hand the resulting Sample to the
// dispatch notification queue.
type Reader struct {
	GUID     ddsruntime.GUIDPrefix
	Type     *cdr.Type
	Lifetime Lifetime
	Worker   *dispatch.Worker
	Deliver  func(Sample)
}

// OnReceive decodes buf according to r.Type and enqueues the resulting
// Sample onto the worker's notification queue, where Deliver runs on the
// worker goroutine — matching spec.md's "readers present incoming
// samples to user code via the notification queue".
func (r *Reader) OnReceive(buf []byte) error {
	dyn, err := cdr.DynamicData(buf, 0, r.Type, false, r.Lifetime == LifetimeCopy, false)
	if err != nil {
		return err
	}
	sample := Sample{ReaderGUID: r.GUID, Dyn: dyn}

	if r.Worker == nil || r.Deliver == nil {
		return nil
	}
	r.Worker.Enqueue(dispatch.QueueNotification, func() {
		r.Deliver(sample)
	})
	return nil
}
