//go:build linux || darwin

package sockset

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddPollDispatch(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	s, err := New(0, 0)
	require.NoError(t, err)
	defer s.Close()

	var fired int32
	require.NoError(t, s.Add(int(r.Fd()), EventRead, func(fd int, ev Events, user any) {
		atomic.AddInt32(&fired, 1)
		assert.Equal(t, "user-data", user)
		buf := make([]byte, 1)
		_, _ = r.Read(buf)
	}, "user-data", "pipe-read"))

	_, err = w.Write([]byte{1})
	require.NoError(t, err)

	require.NoError(t, s.Poll(1000))
	assert.True(t, s.IOPending())
	s.Dispatch()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestRemoveDuringDispatchIsSafe(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	s, err := New(0, 0)
	require.NoError(t, err)
	defer s.Close()

	fd := int(r.Fd())
	require.NoError(t, s.Add(fd, EventRead, func(fd int, ev Events, user any) {
		// A callback removing its own fd must not corrupt the scan.
		_ = s.Remove(fd)
	}, nil, "self-removing"))

	_, err = w.Write([]byte{1})
	require.NoError(t, err)
	require.NoError(t, s.Poll(1000))
	s.Dispatch()

	assert.Equal(t, 0, s.Len())
}

func TestPollTimeoutNoEvents(t *testing.T) {
	s, err := New(0, 0)
	require.NoError(t, err)
	defer s.Close()

	start := time.Now()
	require.NoError(t, s.Poll(50))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.False(t, s.IOPending())
}

func TestSetFull(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	s, err := New(1, 0)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Add(int(r.Fd()), EventRead, nil, nil, "a"))
	err = s.Add(int(w.Fd()), EventWrite, nil, nil, "b")
	assert.ErrorIs(t, err, ErrSetFull)
}

func TestDoubleAddRejected(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	s, err := New(0, 0)
	require.NoError(t, err)
	defer s.Close()

	fd := int(r.Fd())
	require.NoError(t, s.Add(fd, EventRead, nil, nil, "a"))
	err = s.Add(fd, EventRead, nil, nil, "b")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}
