package timer

import "runtime"

// goroutineID returns the current goroutine's id, grounded on the
// teacher's getGoroutineID
// (_examples/joeycumines-go-utilpkg/eventloop/loop.go), used here the
// same way the teacher's Loop.isLoopThread is: to detect a timer
// callback that re-enters Manage on the same goroutine it's already
// running on.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// Manage fires every timer whose deadline has elapsed and returns.
// Re-entrant calls from within a callback on the same goroutine return
// immediately (spec.md §4.D re-entry guard), matching
// original_source/apps/dds/src/co/timer.c's active_timer/tmr_manage
// protection against a callback that itself triggers tmr_manage.
//
// A timer whose caller-supplied lock is already held by someone else
// (SetLock's Locker reports busy via a failed TryLock) is moved to the
// retry list and revisited on every subsequent Manage call until its
// lock is free, per spec.md's "lock handshake" requirement. Timers
// without a lock always fire immediately.
func (m *Manager) Manage() {
	gid := goroutineID()

	m.mu.Lock()
	if m.managingGID == gid {
		// Re-entrant call from inside a callback: the outer Manage
		// invocation will pick up anything newly due.
		m.mu.Unlock()
		return
	}
	m.managingGID = gid
	defer func() {
		m.mu.Lock()
		m.managingGID = 0
		m.mu.Unlock()
	}()

	m.retryPendingLocked()

	for {
		now := m.source.NowTicks()
		e := m.head
		if e == nil || !isPastLocked(now, e.deadline) {
			m.mu.Unlock()
			return
		}
		m.head = e.next
		e.next = nil

		locker, ok := e.lock.(interface{ TryLock() bool })
		if e.lock != nil && ok && !locker.TryLock() {
			// Contended: park on the retry list and keep scanning the
			// ordered list for other due timers.
			e.st = statePendingRetry
			m.appendPendingLocked(e)
			m.nBusy++
			continue
		}

		m.fireLocked(e)
	}
}

// fireLocked invokes e's callback with m.mu held across the handshake
// but released across the callback itself, matching spec.md's
// requirement that user callbacks never run with the manager's
// internal lock held (only the caller-supplied lock, if any).
func (m *Manager) fireLocked(e *Entry) {
	m.activeTimer = e
	m.nActive--
	m.nTimeouts++
	cb := e.cb
	user := e.user
	lock := e.lock
	e.st = stateIdle

	m.mu.Unlock()
	if cb != nil {
		cb(user)
	}
	if lock != nil {
		lock.Unlock()
	}
	m.mu.Lock()

	if m.activeTimer == e {
		m.activeTimer = nil
	}
}

// retryPendingLocked attempts every timer on the retry list once per
// Manage call, moving successes to fire and leaving the rest queued for
// the next call.
func (m *Manager) retryPendingLocked() {
	cur := m.phead
	m.phead, m.ptail = nil, nil
	for cur != nil {
		next := cur.next
		cur.next = nil

		locker, ok := cur.lock.(interface{ TryLock() bool })
		if cur.lock != nil && ok && !locker.TryLock() {
			m.appendPendingLocked(cur)
			m.nBusy++
		} else {
			m.fireLocked(cur)
		}
		cur = next
	}
}

func (m *Manager) appendPendingLocked(e *Entry) {
	e.next = nil
	if m.ptail == nil {
		m.phead, m.ptail = e, e
		return
	}
	m.ptail.next = e
	m.ptail = e
}
