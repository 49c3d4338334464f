package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qeo-io/ddscore/sockset"
	"github.com/qeo-io/ddscore/timer"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	set, err := sockset.New(0, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = set.Close() })

	mgr := timer.New(nil)
	w, err := New(set, mgr)
	require.NoError(t, err)
	return w
}

// TestQueueDrainOrderMatchesPriority confirms the five named queues fire
// in spec.md §2's fixed order within a single loop iteration.
func TestQueueDrainOrderMatchesPriority(t *testing.T) {
	w := newTestWorker(t)

	var mu sync.Mutex
	var order []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	w.Enqueue(QueueConfigUpdate, record("config-update"))
	w.Enqueue(QueueNotification, record("notification-dispatch"))
	w.Enqueue(QueueWaitsetCheck, record("waitset-check"))
	w.Enqueue(QueueCacheTransfer, record("cache-transfer"))
	w.Enqueue(QueueProxySend, record("proxy-send"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
		w.Quit()
	}()
	w.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"proxy-send", "cache-transfer", "waitset-check",
		"notification-dispatch", "config-update",
	}, order)
}

// TestQuitStopsTheLoop confirms Run returns once Quit is called, and
// that the worker ends in StateTerminated.
func TestQuitStopsTheLoop(t *testing.T) {
	w := newTestWorker(t)

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	w.Quit()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Quit")
	}
	assert.Equal(t, StateTerminated, w.State())
}

// TestEnqueueWakesSleepingWorker confirms a queued item runs promptly
// even though no timer or I/O event is pending, proving the self-pipe
// wakeup path works end to end.
func TestEnqueueWakesSleepingWorker(t *testing.T) {
	w := newTestWorker(t)

	fired := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(10 * time.Millisecond) // let it reach Poll
	w.Enqueue(QueueNotification, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("enqueued work never ran")
	}
	w.Quit()
}

// TestPendingTimerBoundsThePollTimeout confirms a scheduled timer fires
// promptly (well under maxPollMS) once Run starts draining.
func TestPendingTimerBoundsThePollTimeout(t *testing.T) {
	set, err := sockset.New(0, 0)
	require.NoError(t, err)
	defer set.Close()
	mgr := timer.New(nil)
	w, err := New(set, mgr)
	require.NoError(t, err)

	fired := make(chan struct{})
	e := mgr.Alloc()
	require.NoError(t, mgr.Start(e, 2, nil, func(any) { close(fired) }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("timer never fired")
	}
	w.Quit()
}
