// Package dispatch implements the worker loop described in spec.md §4.H:
// a single goroutine owning one sockset.Set and one timer.Manager,
// draining quit, timers, I/O, and then the named deferred-work queues in
// a fixed priority order, parking in sockset.Set.Poll between wakeups.
//
// Grounded on the teacher's eventloop.Loop for the worker-loop shape
// (_examples/joeycumines-go-utilpkg/eventloop/registry.go,
// wakeup_linux.go, state.go), generalised to spec.md's fixed five-queue
// drain order instead of the teacher's generic Task/microtask/promise
// scheduling — DDS entities are not promises, so that machinery has no
// home here.
package dispatch

import (
	"context"
	"time"

	"github.com/qeo-io/ddscore/sockset"
	"github.com/qeo-io/ddscore/timer"
)

// maxPollMS is spec.md's poll timeout ceiling: even with no timer due,
// the worker re-checks its queues and the quit flag at least this often.
const maxPollMS = 2000

// Queue names the five deferred-work priority slots drained after I/O,
// per spec.md §2's listed order.
type Queue int

const (
	QueueProxySend Queue = iota
	QueueCacheTransfer
	QueueWaitsetCheck
	QueueNotification
	QueueConfigUpdate

	numQueues
)

// Worker is the single-goroutine dispatcher. The zero value is not
// usable; use New.
type Worker struct {
	state *fastState

	sockets *sockset.Set
	timers  *timer.Manager
	wake    *wakePipe

	queues [numQueues]*queue
}

// New creates a Worker around sockets and timers (both caller-owned and
// already constructed — package ddsruntime wires them together). Run
// registers the self-pipe wake descriptor with sockets itself.
func New(sockets *sockset.Set, timers *timer.Manager) (*Worker, error) {
	wake, err := newWakePipe()
	if err != nil {
		return nil, err
	}
	w := &Worker{
		state:   newFastState(),
		sockets: sockets,
		timers:  timers,
		wake:    wake,
	}
	for i := range w.queues {
		w.queues[i] = newQueue(queueName(Queue(i)))
	}
	if err := sockets.Add(wake.readFd(), sockset.EventRead, w.handleWake, nil, "dispatch.wake"); err != nil {
		wake.Close()
		return nil, err
	}
	return w, nil
}

func queueName(q Queue) string {
	switch q {
	case QueueProxySend:
		return "proxy-send"
	case QueueCacheTransfer:
		return "cache-transfer"
	case QueueWaitsetCheck:
		return "waitset-check"
	case QueueNotification:
		return "notification-dispatch"
	case QueueConfigUpdate:
		return "config-update"
	default:
		return "unknown"
	}
}

func (w *Worker) handleWake(fd int, events sockset.Events, user any) {
	w.wake.Drain()
}

// Enqueue submits fn to q, waking the worker if it is parked in Poll.
// Safe to call from any goroutine, matching spec.md's "foreign threads
// enqueue... and signal via wakeup() if the worker is sleeping".
func (w *Worker) Enqueue(q Queue, fn func()) {
	w.queues[q].Push(work(fn))
	if w.state.Load() == StateSleeping {
		w.wake.Signal()
	}
}

// QueueLen reports how many items are currently queued on q (diagnostic
// use; see queue.Len).
func (w *Worker) QueueLen(q Queue) int {
	return w.queues[q].Len()
}

// State reports the worker's current lifecycle state.
func (w *Worker) State() WorkerState {
	return w.state.Load()
}

// Quit requests termination. The running loop observes it at the top of
// its next iteration and returns; pending queue items are dropped,
// matching spec.md's "pending work is dropped" cancellation semantics.
// Safe to call from any goroutine.
func (w *Worker) Quit() {
	for {
		cur := w.state.Load()
		if cur == StateTerminated || cur == StateTerminating {
			return
		}
		if w.state.TryTransition(cur, StateTerminating) {
			w.wake.Signal()
			return
		}
	}
}

// Run drives the worker loop until ctx is cancelled or Quit is called,
// then releases the self-pipe and returns. Run must not be called
// concurrently, and must not be called again after it returns.
func (w *Worker) Run(ctx context.Context) {
	defer w.state.Store(StateTerminated)
	defer func() {
		_ = w.sockets.Remove(w.wake.readFd())
		_ = w.wake.Close()
	}()

	for {
		if ctx.Err() != nil || w.state.Load() == StateTerminating {
			return
		}
		w.state.TryTransition(StateAwake, StateRunning)

		w.timers.Manage()

		timeoutMS := int(w.timers.PendingMS())
		if timeoutMS > maxPollMS {
			timeoutMS = maxPollMS
		}

		if !w.state.TryTransition(StateRunning, StateSleeping) {
			// Quit moved the state to Terminating: the loop top returns.
			continue
		}
		if err := w.sockets.Poll(timeoutMS); err == nil {
			w.state.TryTransition(StateSleeping, StateRunning)
			if w.sockets.IOPending() {
				w.sockets.Dispatch()
			}
		} else {
			w.state.TryTransition(StateSleeping, StateRunning)
		}

		for q := Queue(0); q < numQueues; q++ {
			w.queues[q].Drain()
		}
	}
}

// RunFor is a convenience for tests and short-lived demo processes: it
// runs the worker on the calling goroutine under a context that expires
// after timeout, and returns when Run returns (timeout, cancellation of
// ctx, or Quit).
func RunFor(ctx context.Context, w *Worker, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	w.Run(ctx)
}
