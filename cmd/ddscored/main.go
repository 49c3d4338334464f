// Command ddscored wires the pieces in this module together into a
// minimal demo domain participant: pre-init/init a ddsruntime.Runtime,
// publish one sample on a writer fanned out to an in-process reader, and
// tear down cleanly on signal or after a short demo window.
//
// Run with: go run ./cmd/ddscored
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qeo-io/ddscore/cdr"
	"github.com/qeo-io/ddscore/ddsruntime"
	"github.com/qeo-io/ddscore/rtps"
)

type demoSample struct {
	ID      int32  `cdr:"id=1,key"`
	Message string `cdr:"id=2"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ddscored:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := ddsruntime.New()
	if err := rt.PreInit(os.Getenv("DDS_CONFIG_FILE")); err != nil {
		return fmt.Errorf("pre-init: %w", err)
	}
	defer rt.Teardown()

	if err := rt.Init(ctx, 0, 0); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	rt.Log.Configure("DDSCORED", 0)
	rt.Log.Log("DDSCORED", "started, guid prefix %x", rt.GUID)

	ty := cdr.BuildType(demoSample{})

	delivered := make(chan rtps.Sample, 1)
	reader := &rtps.Reader{
		Type:     ty,
		Lifetime: rtps.LifetimeCopy,
		Worker:   rt.Worker,
		Deliver:  func(s rtps.Sample) { delivered <- s },
	}

	sink := &inProcessSink{onReceive: reader.OnReceive}
	writer := &rtps.Writer{
		GUID:    rt.GUID,
		Type:    ty,
		Buffers: rt.Buffers,
		Matched: sink,
	}

	if _, err := writer.Write(demoSample{ID: 1, Message: "hello, dds"}); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	select {
	case s := <-delivered:
		rt.Log.Log("DDSCORED", "delivered sample id=%v name=%v",
			s.Dyn.Struct["ID"].Scalar, s.Dyn.Struct["Message"].Str)
	case <-time.After(2 * time.Second):
		rt.Log.Warning("DDSCORED", "demo sample was never delivered")
	case <-ctx.Done():
		return nil
	}

	return nil
}

// inProcessSink adapts an rtps.Reader.OnReceive callback into the single
// matched-reader view rtps.Writer.Write needs, standing in for a real
// UDP fan-out (udptrans.Conn.Send) in this in-process demo.
type inProcessSink struct {
	onReceive func([]byte) error
}

func (s *inProcessSink) MatchedReaders() []rtps.Receiver { return []rtps.Receiver{s} }

func (s *inProcessSink) Receive(change rtps.CacheChange) error {
	return s.onReceive(change.Data)
}
