package dispatch

import "sync"

// work is one deferred-work item: a foreign-thread-submitted callback
// plus the user data it closes over, matching spec.md's "per-queue pools
// (pre-allocated pending records)" in spirit (callers build the record
// once and reuse it across submissions if they want to avoid an
// allocation per enqueue).
type work func()

// queue is a FIFO deferred-work queue, one per spec.md §2 priority slot
// (proxy-send, cache-transfer, waitset-check, notification-dispatch,
// config-update). Grounded on the teacher's goja-style auxJobs/
// auxJobsSpare swap buffer
// (_examples/joeycumines-go-utilpkg/eventloop/loop.go's Loop.auxJobs
// field comment): producers append under one lock, the drain swaps the active
// and spare slices under the same lock and then runs the spare buffer
// without holding it, so a queued callback enqueueing more work on the
// same queue doesn't deadlock.
type queue struct {
	name string

	mu    sync.Mutex
	items []work
	spare []work
}

func newQueue(name string) *queue {
	return &queue{name: name}
}

// Push enqueues fn, appending to the active buffer.
func (q *queue) Push(fn work) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()
}

// Len reports the number of items currently queued (for diagnostics and
// tests; racy with respect to a concurrent Push, by design).
func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain swaps out the active buffer and runs everything it held, in
// FIFO order. Items pushed by a drained callback land in the (now
// active) buffer and are picked up on the next Drain call, never the
// current one — this bounds one Drain call to one generation of work,
// matching spec.md's "ordering within each queue is FIFO; across queues
// the worker honours the priority listed" without an unbounded drain
// loop if a callback keeps re-enqueueing itself.
func (q *queue) Drain() {
	q.mu.Lock()
	q.items, q.spare = q.spare[:0], q.items
	batch := q.spare
	q.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
}
