package rtps

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qeo-io/ddscore/cdr"
	"github.com/qeo-io/ddscore/ddsruntime"
	"github.com/qeo-io/ddscore/dispatch"
	"github.com/qeo-io/ddscore/pool"
	"github.com/qeo-io/ddscore/sockset"
	"github.com/qeo-io/ddscore/timer"
)

type sampleT struct {
	ID   int32  `cdr:"id=1,key"`
	Name string `cdr:"id=2"`
}

type recordingReceiver struct {
	got []CacheChange
}

func (r *recordingReceiver) Receive(c CacheChange) error {
	r.got = append(r.got, c)
	return nil
}

type staticMatch struct {
	readers []Receiver
}

func (s staticMatch) MatchedReaders() []Receiver { return s.readers }

func TestWriterWriteMarshalsAndFansOutToMatchedReaders(t *testing.T) {
	ty := cdr.BuildType(sampleT{})
	buffers := ddsruntime.NewBuffers(pool.Limits{Reserved: 4, Extra: 16, Grow: 4})

	rx1, rx2 := &recordingReceiver{}, &recordingReceiver{}
	w := &Writer{
		Type:    ty,
		Buffers: buffers,
		Matched: staticMatch{readers: []Receiver{rx1, rx2}},
	}

	change, err := w.Write(sampleT{ID: 1, Name: "topic-a"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), change.SequenceNo)
	require.Len(t, rx1.got, 1)
	require.Len(t, rx2.got, 1)

	var out sampleT
	require.NoError(t, cdr.Unmarshal(rx1.got[0].Data, &out, ty, false))
	assert.Equal(t, sampleT{ID: 1, Name: "topic-a"}, out)
}

func TestWriterWriteIncrementsSequenceNumber(t *testing.T) {
	ty := cdr.BuildType(sampleT{})
	buffers := ddsruntime.NewBuffers(pool.Limits{Reserved: 4, Extra: 16, Grow: 4})
	w := &Writer{Type: ty, Buffers: buffers, Matched: staticMatch{}}

	c1, err := w.Write(sampleT{ID: 1})
	require.NoError(t, err)
	c2, err := w.Write(sampleT{ID: 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c1.SequenceNo)
	assert.Equal(t, uint64(2), c2.SequenceNo)
}

func TestReaderOnReceiveDeliversThroughNotificationQueue(t *testing.T) {
	ty := cdr.BuildType(sampleT{})
	buf := cdr.Marshal(sampleT{ID: 7, Name: "rx"}, ty, false)

	set, err := sockset.New(0, 0)
	require.NoError(t, err)
	defer set.Close()
	mgr := timer.New(nil)
	w, err := dispatch.New(set, mgr)
	require.NoError(t, err)

	delivered := make(chan Sample, 1)
	r := &Reader{
		Type:     ty,
		Lifetime: LifetimeCopy,
		Worker:   w,
		Deliver:  func(s Sample) { delivered <- s },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, r.OnReceive(buf))

	select {
	case s := <-delivered:
		require.NotNil(t, s.Dyn)
		assert.Equal(t, "rx", s.Dyn.Struct["Name"].Str)
	case <-time.After(3 * time.Second):
		t.Fatal("sample never delivered")
	}
	w.Quit()
}

func TestDefaultGUIDPrefixOnWriterIsZeroUntilSet(t *testing.T) {
	var w Writer
	assert.Equal(t, ddsruntime.GUIDPrefix{}, w.GUID)
}
