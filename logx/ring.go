package logx

import (
	"sync"
	"time"
)

// DiagEntry is one recorded line in the diagnostic ring.
type DiagEntry struct {
	When    time.Time
	Source  string
	Level   Level
	Message string
}

// diagRing is a fixed-capacity cyclic buffer of recent log lines,
// grounded on original_source/dds/src/co/ctrace.c's MAX_UNITS cyclic
// trace buffer: once full, the oldest entry is overwritten rather than
// growing, so logging under load never allocates.
//
// catrate's internal ring buffer
// (_examples/joeycumines-go-utilpkg/catrate/ring.go) implements the same
// idea but is an unexported generic type scoped to that package, so it
// cannot be reused here; this is the stdlib-only fallback, justified in
// DESIGN.md.
type diagRing struct {
	mu   sync.Mutex
	buf  []DiagEntry
	next int
	full bool
}

func newDiagRing(size int) *diagRing {
	return &diagRing{buf: make([]DiagEntry, size)}
}

func (r *diagRing) push(source string, level Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = DiagEntry{When: time.Now(), Source: source, Level: level, Message: msg}
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

// snapshot returns the ring's contents in chronological order.
func (r *diagRing) snapshot() []DiagEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]DiagEntry, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]DiagEntry, len(r.buf))
	copy(out, r.buf[r.next:])
	copy(out[len(r.buf)-r.next:], r.buf[:r.next])
	return out
}
