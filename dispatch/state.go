package dispatch

import "sync/atomic"

// WorkerState is the worker's lifecycle state machine, adapted from the
// teacher's eventloop.FastState
// (_examples/joeycumines-go-utilpkg/eventloop/state.go): a lock-free
// atomic CAS state machine instead of spec.md's mutex-guarded quit
// flag, so Quit from a foreign goroutine never contends with the
// worker's own hot loop.
type WorkerState uint32

const (
	// StateAwake is the state before Run is first called.
	StateAwake WorkerState = iota
	// StateRunning is set while draining queues or executing a callback.
	StateRunning
	// StateSleeping is set while parked in sockset.Set.Poll.
	StateSleeping
	// StateTerminating is set once Quit has been requested.
	StateTerminating
	// StateTerminated is the final state once Run has returned.
	StateTerminated
)

func (s WorkerState) String() string {
	switch s {
	case StateAwake:
		return "awake"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// fastState is a small atomic CAS wrapper, mirroring eventloop.FastState
// without the cache-line padding (dispatch has one worker goroutine, not
// the teacher's many-producer hot path, so false-sharing avoidance isn't
// worth the complexity here).
type fastState struct {
	v atomic.Uint32
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint32(StateAwake))
	return s
}

func (s *fastState) Load() WorkerState { return WorkerState(s.v.Load()) }

func (s *fastState) Store(v WorkerState) { s.v.Store(uint32(v)) }

func (s *fastState) TryTransition(from, to WorkerState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
