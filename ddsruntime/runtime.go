// Package ddsruntime implements the two-phase factory initialisation
// spec.md §4.I describes: pre-init (idempotent config/pool-constraint
// load) and init (buffer pools, timer pool, GUID prefix, locator pools,
// transport attach, worker start), with teardown as the exact reverse.
//
// Grounded on original_source/dds/src/dds/dds.c's dds_init sequencing
// and spec.md §9's call to encapsulate the original's process-wide
// globals into one explicit value instead of package-level state: here,
// that value is Runtime.
package ddsruntime

import (
	"context"
	"errors"
	"sync"

	"github.com/qeo-io/ddscore/dispatch"
	"github.com/qeo-io/ddscore/locator"
	"github.com/qeo-io/ddscore/logx"
	"github.com/qeo-io/ddscore/pool"
	"github.com/qeo-io/ddscore/sockset"
	"github.com/qeo-io/ddscore/ticks"
	"github.com/qeo-io/ddscore/timer"
	"github.com/qeo-io/ddscore/udptrans"
)

// Standard errors for the pre-init/init/teardown state machine, matching
// spec.md §7's PreconditionNotMet kind.
var (
	ErrAlreadyPreInitialised = errors.New("ddsruntime: already pre-initialised")
	ErrNotPreInitialised     = errors.New("ddsruntime: init called before pre-init")
	ErrAlreadyInitialised    = errors.New("ddsruntime: already initialised")
	ErrNotInitialised        = errors.New("ddsruntime: not initialised")
)

// Runtime is the single process-wide value that replaces the original
// source's globals (tmr_list, pool handles, log action maps): one
// Runtime is created per process (or per test), and every other
// subsystem's handle hangs off it.
type Runtime struct {
	mu sync.Mutex // core_lock

	preInit bool
	init    bool

	cfg Config

	Log     *logx.Manager
	Ticks   *ticks.Source
	Timers  *timer.Manager
	Buffers *Buffers
	Sockets *sockset.Set
	Worker  *dispatch.Worker

	udpv4 *udptrans.Conn
	udpv6 *udptrans.Conn

	GUID GUIDPrefix

	cancel context.CancelFunc
	runDone chan struct{}
}

// New constructs an un-pre-initialised Runtime. PreInit must be called
// before Init.
func New() *Runtime {
	return &Runtime{}
}

// PreInit loads configuration (configFile may be empty to skip the
// optional TOML layer) and sets up everything spec.md §4.I's pre-init
// phase requires except the worker itself: the log facade, tick source,
// and timer manager. Idempotent — a second call returns
// ErrAlreadyPreInitialised without side effects, matching the original's
// guard against double pre-init.
func (r *Runtime) PreInit(configFile string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.preInit {
		return ErrAlreadyPreInitialised
	}

	cfg, err := LoadConfig(configFile)
	if err != nil {
		return err
	}
	r.cfg = cfg

	r.Log = logx.NewManager()
	r.Ticks = ticks.NewSource()
	r.Timers = timer.New(r.Ticks)

	r.preInit = true
	return nil
}

// Init creates the data-buffer pools, derives the GUID prefix, attaches
// UDPv4 when udpv4Port is non-zero (and UDPv6 when udpv6Port is
// non-zero), and starts the worker
// goroutine. PreInit must already have completed.
func (r *Runtime) Init(ctx context.Context, udpv4Port, udpv6Port uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.preInit {
		return ErrNotPreInitialised
	}
	if r.init {
		return ErrAlreadyInitialised
	}

	r.Buffers = NewBuffers(pool.Limits{Reserved: 16, Extra: 240, Grow: r.cfg.Growth})
	r.GUID = NewGUIDPrefix()

	set, err := sockset.New(int(r.cfg.IPSockets), 0)
	if err != nil {
		return err
	}
	r.Sockets = set

	if udpv4Port != 0 {
		conn, err := udptrans.Listen(locator.KindUDPv4, udpv4Port)
		if err != nil {
			_ = set.Close()
			return err
		}
		r.udpv4 = conn
	}
	if udpv6Port != 0 {
		conn, err := udptrans.Listen(locator.KindUDPv6, udpv6Port)
		if err != nil {
			r.teardownPartial()
			return err
		}
		r.udpv6 = conn
	}

	worker, err := dispatch.New(r.Sockets, r.Timers)
	if err != nil {
		r.teardownPartial()
		return err
	}
	r.Worker = worker

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.runDone = make(chan struct{})
	go func() {
		defer close(r.runDone)
		worker.Run(runCtx)
	}()

	r.init = true
	return nil
}

// Config returns the layered configuration PreInit loaded.
func (r *Runtime) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// PortParams is a convenience accessor over Config().PortParams().
func (r *Runtime) PortParams() locator.PortParams {
	return r.Config().PortParams()
}

// teardownPartial releases whatever Init has constructed so far, used
// when Init fails partway through (the sockets/udp connections it
// already opened must not leak).
func (r *Runtime) teardownPartial() {
	if r.udpv6 != nil {
		_ = r.udpv6.Close()
		r.udpv6 = nil
	}
	if r.udpv4 != nil {
		_ = r.udpv4.Close()
		r.udpv4 = nil
	}
	if r.Sockets != nil {
		_ = r.Sockets.Close()
		r.Sockets = nil
	}
}

// Teardown reverses Init then PreInit, in that order, guarding against a
// double call via the same flags Init/PreInit check. Safe to call on a
// Runtime that only completed PreInit.
func (r *Runtime) Teardown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.init {
		if r.cancel != nil {
			r.cancel()
		}
		if r.Worker != nil {
			r.Worker.Quit()
		}
		if r.runDone != nil {
			<-r.runDone
		}
		r.teardownPartial()
		r.init = false
	}
	r.preInit = false
}
