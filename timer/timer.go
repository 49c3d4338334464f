// Package timer implements the single ordered timer list with
// callback-lock handshaking described in spec.md §4.D, grounded on
// original_source/apps/dds/src/co/timer.c for exact re-entry and
// retry-list semantics, expressed idiomatically: entries are
// caller-owned *Entry values (never raw uintptr user data), and the
// re-entry guard uses a goroutine-id comparison the way the teacher's
// eventloop.Loop detects "am I running on the loop goroutine"
// (_examples/joeycumines-go-utilpkg/eventloop/loop.go's
// isLoopThread/getGoroutineID).
package timer

import (
	"sync"

	"github.com/qeo-io/ddscore/ticks"
)

// Callback is invoked by Manage with the user data supplied to Start.
type Callback func(user any)

// state classifies which of the three lists (spec.md's invariant) an
// Entry currently belongs to.
type state int

const (
	stateIdle state = iota
	stateScheduled
	statePendingRetry
)

// Entry is one timer, owned by its caller and linked into the manager's
// internal lists. The zero value must be passed through Init before use.
type Entry struct {
	mgr      *Manager
	name     string
	deadline ticks.Tick
	user     any
	cb       Callback
	lock     sync.Locker
	st       state
	next     *Entry // manager-owned link, valid only while st != stateIdle
}

// Name returns the entry's diagnostic name.
func (e *Entry) Name() string { return e.name }

// Manager owns the ordered timer list, the pending-lock retry list, and
// the re-entry guard described in spec.md §4.D.
type Manager struct {
	mu sync.Mutex // tmr_lock

	source *ticks.Source

	head *Entry // main ordered list (by deadline)
	phead *Entry // retry list head
	ptail *Entry // retry list tail

	activeTimer    *Entry
	managingGID    uint64 // 0 when Manage isn't running on any goroutine
	callbackActive int

	nActive, nTimeouts, nBusy, nStarts, nStops uint
}

// New creates a Manager using src for deadline math. A Manager with a
// nil src uses ticks.NewSource().
func New(src *ticks.Source) *Manager {
	if src == nil {
		src = ticks.NewSource()
	}
	return &Manager{source: src}
}

// Alloc returns a fresh Entry bound to this manager; Init is implied.
func (m *Manager) Alloc() *Entry {
	return &Entry{mgr: m}
}

// Free releases an Entry. The caller must have Stopped it first; Free on
// an active timer stops it implicitly, matching the forgiving style of
// the original tmr_free.
func (m *Manager) Free(e *Entry) {
	m.Stop(e)
}

// Init (re)initialises e for use with this manager, clearing any prior
// schedule.
func (m *Manager) Init(e *Entry, name string) {
	m.Stop(e)
	e.mgr = m
	e.name = name
}

// Start arms e to fire after the given number of ticks from now. If e is
// already scheduled, Start first stops it (spec.md: "start while
// executing implicitly first calls stop").
func (m *Manager) Start(e *Entry, in ticks.Tick, user any, cb Callback) error {
	return m.StartLocked(e, in, user, cb, nil)
}

// StartLocked is Start, additionally recording a caller-supplied lock
// that Manage must hold across the callback invocation.
func (m *Manager) StartLocked(e *Entry, in ticks.Tick, user any, cb Callback, lock sync.Locker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked(e)

	e.user = user
	e.cb = cb
	e.lock = lock
	e.deadline = m.source.NowTicks() + in
	e.st = stateScheduled
	m.nStarts++
	m.nActive++

	m.insertOrderedLocked(e)
	return nil
}

// insertOrderedLocked walks from the head until the predecessor's
// deadline is strictly later than e's, classifying "already past" via
// ticks.Diff first, per spec.md.
func (m *Manager) insertOrderedLocked(e *Entry) {
	now := m.source.NowTicks()
	var prev *Entry
	cur := m.head
	for cur != nil {
		if isPastLocked(now, cur.deadline) || ticks.Diff(now, cur.deadline) <= ticks.Diff(now, e.deadline) {
			prev = cur
			cur = cur.next
			continue
		}
		break
	}
	e.next = cur
	if prev == nil {
		m.head = e
	} else {
		prev.next = e
	}
}

// isPastLocked reports whether deadline has already elapsed relative to
// now, using the same ticks.Diff(now,deadline) > MaxDiff classification
// Manage's loop uses.
func isPastLocked(now, deadline ticks.Tick) bool {
	d := ticks.Diff(now, deadline)
	return d == 0 || d > ticks.MaxDiff
}

// Stop deactivates e. If e is the entry currently executing inside
// Manage (on another goroutine in principle, though this Manager is
// single-worker), Manage observes the cleared callback/active-timer
// pointer and skips re-insertion onto the retry list.
func (m *Manager) Stop(e *Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked(e)
}

func (m *Manager) stopLocked(e *Entry) {
	if e.st == stateIdle {
		return
	}
	if m.activeTimer == e {
		// Executing right now: clear the active pointer and null the
		// callback so Manage's post-callback step skips re-insertion.
		m.activeTimer = nil
		e.cb = nil
	}
	m.unlinkLocked(e)
	e.st = stateIdle
	e.next = nil
	m.nStops++
	if m.nActive > 0 {
		m.nActive--
	}
}

// unlinkLocked removes e from whichever of the two lists currently holds
// it (the caller must already know e.st != stateIdle).
func (m *Manager) unlinkLocked(e *Entry) {
	if removeFrom(&m.head, e) {
		return
	}
	if removeFromPending(&m.phead, &m.ptail, e) {
		return
	}
}

func removeFrom(head **Entry, e *Entry) bool {
	var prev *Entry
	cur := *head
	for cur != nil {
		if cur == e {
			if prev == nil {
				*head = cur.next
			} else {
				prev.next = cur.next
			}
			return true
		}
		prev = cur
		cur = cur.next
	}
	return false
}

func removeFromPending(phead, ptail **Entry, e *Entry) bool {
	var prev *Entry
	cur := *phead
	for cur != nil {
		if cur == e {
			if prev == nil {
				*phead = cur.next
			} else {
				prev.next = cur.next
			}
			if *ptail == e {
				*ptail = prev
			}
			return true
		}
		prev = cur
		cur = cur.next
	}
	return false
}

// SetLock changes the caller-supplied lock associated with e.
func (m *Manager) SetLock(e *Entry, lock sync.Locker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.lock = lock
}

// Remain reports the number of ticks until e fires (0 if already past or
// inactive).
func (m *Manager) Remain(e *Entry) ticks.Tick {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.st == stateIdle {
		return 0
	}
	now := m.source.NowTicks()
	d := ticks.Diff(now, e.deadline)
	if d > ticks.MaxDiff {
		return 0
	}
	return d
}

// PendingMS returns the duration, in milliseconds, until the head
// timer's deadline (clamped to 0 if already past), or ticks.MaxDiff if
// no timers are scheduled. This is the primary value fed to the poll
// timeout in package dispatch.
func (m *Manager) PendingMS() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.head == nil {
		return uint32(ticks.MaxDiff)
	}
	now := m.source.NowTicks()
	d := ticks.Diff(now, m.head.deadline)
	if d > ticks.MaxDiff {
		return 0
	}
	return uint32(d) * 10
}

// Stats reports the manager's lifetime counters, mirroring the original
// source's tmr_nactive/tmr_ntimeouts/tmr_nbusy/tmr_nstarts/tmr_nstops.
type Stats struct {
	Active, Timeouts, Busy, Starts, Stops uint
}

// Dump reports the manager's statistics.
func (m *Manager) Dump() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{m.nActive, m.nTimeouts, m.nBusy, m.nStarts, m.nStops}
}
