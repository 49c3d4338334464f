package ddsruntime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qeo-io/ddscore/pool"
)

func TestDefaultConfigMatchesScenario5PortParams(t *testing.T) {
	cfg := DefaultConfig()
	p := cfg.PortParams()
	assert.Equal(t, uint32(7400), p.PortBase)
	assert.Equal(t, uint32(250), p.DomainGain)
	assert.Equal(t, uint32(2), p.ParticipantGain)
}

func TestLoadConfigAppliesEnvOverride(t *testing.T) {
	t.Setenv("UDP_PB", "8000")
	t.Setenv("POOL_GROWTH", "16")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, uint32(8000), cfg.PortBase)
	assert.Equal(t, uint(16), cfg.Growth)
	// Unset variables keep compiled-in defaults.
	assert.Equal(t, uint32(250), cfg.DomainGain)
}

func TestBuffersAllocPicksSmallestFittingClass(t *testing.T) {
	b := NewBuffers(pool.Limits{Reserved: 4, Extra: 12, Grow: 4})
	buf, err := b.Alloc(100)
	require.NoError(t, err)
	assert.Len(t, buf.Bytes, 100)
	assert.LessOrEqual(t, cap(buf.Bytes), 256)
	buf.Release()
}

func TestBuffersAllocRejectsOversized(t *testing.T) {
	b := NewBuffers(pool.Limits{Reserved: 4, Extra: 12, Grow: 4})
	_, err := b.Alloc(32 * 1024)
	assert.ErrorIs(t, err, ErrSampleTooLarge)
}

func TestNewGUIDPrefixIsUniquePerCall(t *testing.T) {
	a := NewGUIDPrefix()
	b := NewGUIDPrefix()
	assert.NotEqual(t, a, b)
}

func TestPreInitTwiceFails(t *testing.T) {
	r := New()
	require.NoError(t, r.PreInit(""))
	assert.ErrorIs(t, r.PreInit(""), ErrAlreadyPreInitialised)
	r.Teardown()
}

func TestInitBeforePreInitFails(t *testing.T) {
	r := New()
	err := r.Init(context.Background(), 0, 0)
	assert.ErrorIs(t, err, ErrNotPreInitialised)
}

func TestFullLifecycleStartsAndTearsDownWorker(t *testing.T) {
	r := New()
	require.NoError(t, r.PreInit(""))
	require.NoError(t, r.Init(context.Background(), 0, 0))

	time.Sleep(10 * time.Millisecond)
	r.Teardown()
}
