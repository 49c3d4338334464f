// Package sockset implements the socket registry and poll/wait layer
// spec.md §4.C describes: a dense, grow-on-demand array of descriptors
// serviced by a single platform poll primitive, with a fine-grained
// set_lock for mutations and a poll_lock held for the duration of the
// blocking wait.
//
// The dense-array design is grounded on the
// teacher's eventloop.FastPoller (_examples/joeycumines-go-utilpkg/eventloop/poller_linux.go);
// this package generalises it per spec.md: handles carry name/user/callback,
// poll and dispatch are two separate calls instead of one PollIO, and
// growth is governed by a configured bound/increment instead of a fixed
// array size.
package sockset

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Events is a small bitset of the abstract I/O event kinds this package
// exposes; platform backends translate to/from their native event flags.
type Events uint32

const (
	EventRead Events = 1 << iota
	EventWrite
	EventError
	EventHangup
)

// Callback is invoked by Dispatch for a descriptor with pending events.
type Callback func(fd int, events Events, user any)

// Standard errors.
var (
	ErrClosed           = errors.New("sockset: set is closed")
	ErrAlreadyRegistered = errors.New("sockset: fd already registered")
	ErrNotRegistered    = errors.New("sockset: fd not registered")
	ErrSetFull          = errors.New("sockset: registry is at its configured bound")
)

// handle is one registered descriptor's bookkeeping.
type handle struct {
	fd      int
	events  Events
	revents Events
	cb      Callback
	user    any
	name    string
	active  bool
}

// Set is the registry of file descriptors and callbacks, serviced by a
// single poll/wait primitive. The zero value is not usable; use New.
type Set struct {
	setLock  sync.Mutex // fine-grained: guards handles/index mutation
	pollLock sync.Mutex // held for the duration of the blocking wait

	bound     int // configured maximum size; 0 means unbounded
	increment int // grow-by amount when the dense array is full

	handles []handle
	index   map[int]int // fd -> position in handles

	ioPending atomic.Bool

	backend backend
	closed  atomic.Bool
}

// backend is the platform-specific poll primitive. Implementations live
// in sockset_linux.go / sockset_darwin.go / sockset_windows.go.
type backend interface {
	init() error
	add(fd int, ev Events) error
	modify(fd int, ev Events) error
	remove(fd int) error
	wait(timeoutMs int) ([]waitResult, error)
	close() error
}

type waitResult struct {
	fd     int
	events Events
}

// New creates a Set. bound<=0 means the dense array may grow without an
// explicit ceiling (still subject to increment-sized growth steps);
// increment<=0 defaults to 64.
func New(bound, increment int) (*Set, error) {
	if increment <= 0 {
		increment = 64
	}
	s := &Set{
		bound:     bound,
		increment: increment,
		index:     make(map[int]int),
		backend:   newBackend(),
	}
	if err := s.backend.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// Add registers fd for events, invoking cb(fd,events,user) on readiness.
func (s *Set) Add(fd int, events Events, cb Callback, user any, name string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.setLock.Lock()
	defer s.setLock.Unlock()

	if _, ok := s.index[fd]; ok {
		return ErrAlreadyRegistered
	}
	if s.bound > 0 && len(s.index) >= s.bound {
		return ErrSetFull
	}

	if err := s.backend.add(fd, events); err != nil {
		return err
	}

	if len(s.handles) == cap(s.handles) {
		grown := make([]handle, len(s.handles), len(s.handles)+s.increment)
		copy(grown, s.handles)
		s.handles = grown
	}
	s.handles = append(s.handles, handle{fd: fd, events: events, cb: cb, user: user, name: name, active: true})
	s.index[fd] = len(s.handles) - 1
	return nil
}

// Remove unregisters fd. A callback may call Remove on its own fd from
// within Dispatch safely (see Dispatch's copy-and-clear protocol).
func (s *Set) Remove(fd int) error {
	s.setLock.Lock()
	defer s.setLock.Unlock()
	return s.removeLocked(fd)
}

func (s *Set) removeLocked(fd int) error {
	i, ok := s.index[fd]
	if !ok {
		return ErrNotRegistered
	}
	_ = s.backend.remove(fd)

	last := len(s.handles) - 1
	if i != last {
		s.handles[i] = s.handles[last]
		s.index[s.handles[i].fd] = i
	}
	s.handles = s.handles[:last]
	delete(s.index, fd)
	return nil
}

// SetEvents enables (on=true) or disables (on=false) the given event
// bits for fd's interest mask.
func (s *Set) SetEvents(fd int, mask Events, on bool) error {
	s.setLock.Lock()
	defer s.setLock.Unlock()
	i, ok := s.index[fd]
	if !ok {
		return ErrNotRegistered
	}
	if on {
		s.handles[i].events |= mask
	} else {
		s.handles[i].events &^= mask
	}
	return s.backend.modify(fd, s.handles[i].events)
}

// SetUser replaces the user data associated with fd.
func (s *Set) SetUser(fd int, user any) error {
	s.setLock.Lock()
	defer s.setLock.Unlock()
	i, ok := s.index[fd]
	if !ok {
		return ErrNotRegistered
	}
	s.handles[i].user = user
	return nil
}

// SetCallback replaces the callback associated with fd.
func (s *Set) SetCallback(fd int, cb Callback) error {
	s.setLock.Lock()
	defer s.setLock.Unlock()
	i, ok := s.index[fd]
	if !ok {
		return ErrNotRegistered
	}
	s.handles[i].cb = cb
	return nil
}

// Poll blocks (up to timeoutMs, or indefinitely if negative) in the
// platform wait primitive. It sets the global IO-pending flag when any
// descriptor is ready; Dispatch does the actual callback invocation.
func (s *Set) Poll(timeoutMs int) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.pollLock.Lock()
	defer s.pollLock.Unlock()

	results, err := s.backend.wait(timeoutMs)
	if err != nil {
		return err
	}
	if len(results) > 0 {
		s.setLock.Lock()
		for _, r := range results {
			if i, ok := s.index[r.fd]; ok {
				s.handles[i].revents |= r.events
			}
		}
		s.setLock.Unlock()
		s.ioPending.Store(true)
	}
	return nil
}

// IOPending reports (and clears) whether the last Poll observed any
// ready descriptor.
func (s *Set) IOPending() bool {
	return s.ioPending.Swap(false)
}

// Dispatch scans the array and, for each fd with non-zero revents,
// copies out {cb,fd,events,user}, clears revents, releases set_lock,
// invokes cb, then re-acquires set_lock and rereads the handle count in
// case the callback mutated the set. A callback removing its own fd is
// therefore safe: the copy-and-clear makes the subsequent scan skip it.
func (s *Set) Dispatch() {
	s.setLock.Lock()
	i := 0
	for i < len(s.handles) {
		h := s.handles[i]
		if h.revents == 0 {
			i++
			continue
		}
		ev := h.revents
		s.handles[i].revents = 0
		cb, fd, user := h.cb, h.fd, h.user
		s.setLock.Unlock()

		if cb != nil {
			cb(fd, ev, user)
		}

		s.setLock.Lock()
		// i intentionally not advanced past here without re-checking
		// bounds; the callback may have removed entries.
		if i >= len(s.handles) {
			break
		}
	}
	s.setLock.Unlock()
}

// Close releases the platform backend. Registered descriptors are not
// closed by Set; ownership of the fd itself belongs to the caller.
func (s *Set) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.pollLock.Lock()
	defer s.pollLock.Unlock()
	return s.backend.close()
}

// Len returns the number of registered descriptors.
func (s *Set) Len() int {
	s.setLock.Lock()
	defer s.setLock.Unlock()
	return len(s.handles)
}
