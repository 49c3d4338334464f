package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qeo-io/ddscore/ticks"
)

func newFixedSource(t *testing.T) *ticks.Source {
	t.Helper()
	return ticks.NewSource()
}

func TestTimerOrderingFiresByDeadline(t *testing.T) {
	src := newFixedSource(t)
	mgr := New(src)

	var mu sync.Mutex
	var order []string

	a := mgr.Alloc()
	b := mgr.Alloc()
	c := mgr.Alloc()

	require.NoError(t, mgr.Start(a, 30, nil, func(any) {
		mu.Lock()
		order = append(order, "a")
		mu.Unlock()
	}))
	require.NoError(t, mgr.Start(b, 10, nil, func(any) {
		mu.Lock()
		order = append(order, "b")
		mu.Unlock()
	}))
	require.NoError(t, mgr.Start(c, 20, nil, func(any) {
		mu.Lock()
		order = append(order, "c")
		mu.Unlock()
	}))

	// Drive the manager past each deadline, in 10-tick (100ms) steps.
	for i := 0; i < 4; i++ {
		time.Sleep(11 * ticks.Unit)
		mgr.Manage()
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"b", "c", "a"}, order)
}

func TestStopPreventsFiring(t *testing.T) {
	mgr := New(nil)
	e := mgr.Alloc()

	fired := false
	require.NoError(t, mgr.Start(e, 1, nil, func(any) { fired = true }))
	mgr.Stop(e)

	time.Sleep(3 * ticks.Unit)
	mgr.Manage()

	assert.False(t, fired)
	assert.Equal(t, uint(0), mgr.Dump().Active)
}

func TestStartWhileScheduledRestartsTimer(t *testing.T) {
	mgr := New(nil)
	e := mgr.Alloc()

	var fires int
	require.NoError(t, mgr.Start(e, 1, nil, func(any) { fires++ }))
	require.NoError(t, mgr.Start(e, 100, nil, func(any) { fires++ }))

	time.Sleep(3 * ticks.Unit)
	mgr.Manage()

	assert.Equal(t, 0, fires)
}

// contendedLock always fails its first TryLock, simulating another
// goroutine holding the lock, then succeeds, exercising the manager's
// retry-list handshake (spec.md Scenario 2).
type contendedLock struct {
	mu       sync.Mutex
	attempts int
	failFor  int
}

func (c *contendedLock) TryLock() bool {
	c.attempts++
	if c.attempts <= c.failFor {
		return false
	}
	return c.mu.TryLock()
}

func (c *contendedLock) Lock()   { c.mu.Lock() }
func (c *contendedLock) Unlock() { c.mu.Unlock() }

func TestLockCollisionRetriesThenFiresOnce(t *testing.T) {
	mgr := New(nil)
	e := mgr.Alloc()
	lock := &contendedLock{failFor: 2}

	var fires int
	require.NoError(t, mgr.StartLocked(e, 1, nil, func(any) { fires++ }, lock))

	time.Sleep(2 * ticks.Unit)
	mgr.Manage() // deadline elapsed, lock busy -> parked on retry list
	assert.Equal(t, 0, fires)

	mgr.Manage() // retry, still busy
	assert.Equal(t, 0, fires)

	mgr.Manage() // retry, lock free -> fires exactly once
	assert.Equal(t, 1, fires)

	mgr.Manage()
	assert.Equal(t, 1, fires, "timer must not fire twice")
}

func TestReentrantManageReturnsImmediately(t *testing.T) {
	mgr := New(nil)
	e := mgr.Alloc()
	inner := mgr.Alloc()

	var innerFired bool
	require.NoError(t, mgr.Start(inner, 0, nil, func(any) { innerFired = true }))

	require.NoError(t, mgr.Start(e, 0, nil, func(any) {
		// Re-entrant call from inside a callback must return immediately
		// without deadlocking or double-firing.
		mgr.Manage()
	}))

	time.Sleep(2 * ticks.Unit)
	mgr.Manage()

	assert.True(t, innerFired)
}

func TestPendingMSReflectsHeadDeadline(t *testing.T) {
	mgr := New(nil)
	e := mgr.Alloc()

	assert.Equal(t, uint32(ticks.MaxDiff), mgr.PendingMS())

	require.NoError(t, mgr.Start(e, 5, nil, func(any) {}))
	ms := mgr.PendingMS()
	assert.LessOrEqual(t, ms, uint32(50))
}

func TestRemainDecreasesOverTime(t *testing.T) {
	mgr := New(nil)
	e := mgr.Alloc()
	require.NoError(t, mgr.Start(e, 10, nil, func(any) {}))

	r1 := mgr.Remain(e)
	time.Sleep(3 * ticks.Unit)
	r2 := mgr.Remain(e)

	assert.Less(t, r2, r1)
}
