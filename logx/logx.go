// Package logx implements the five-grade logging taxonomy described in
// spec.md §4.E — log/debug/warning/error/fatal, each source
// independently configurable with an action bitmask — grounded on
// original_source/dds/src/co/error.c's LogAction_t table (per-source id,
// level, action bits) and built on the teacher's structured-logging
// stack: github.com/joeycumines/logiface for the event pipeline,
// github.com/joeycumines/stumpy as the JSON-line backend, and
// github.com/joeycumines/go-catrate's Limiter to throttle a source that
// is logging so fast it would otherwise flood syslog/stdout (the
// original's log_debug_count storm-control equivalent).
package logx

import (
	"fmt"
	"io"
	"log/syslog"
	"os"
	"sync"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Level is one of the five grades error.c dispatches on, ordered from
// least to most severe.
type Level int

const (
	LevelLog Level = iota
	LevelDebug
	LevelWarning
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelLog:
		return "log"
	case LevelDebug:
		return "debug"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// toLogifaceLevel maps the five-grade taxonomy onto logiface's eight
// syslog levels, per SPEC_FULL.md §4.E.
func (l Level) toLogifaceLevel() logiface.Level {
	switch l {
	case LevelLog:
		return logiface.LevelInformational
	case LevelDebug:
		return logiface.LevelDebug
	case LevelWarning:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	case LevelFatal:
		return logiface.LevelAlert
	default:
		return logiface.LevelInformational
	}
}

// Action is a bitmask of where a log line for a given Source/Level goes,
// mirroring error.c's ACT_PRINT_STDIO/ACT_PRINT_ERR/ACT_LOG/ACT_EXIT.
type Action uint

const (
	ActStdout Action = 1 << iota
	ActStderr
	ActSyslog
	ActFile
	ActExit
)

// defaultActions mirrors error.c's cur_actions[] default table.
var defaultActions = [5]Action{
	LevelLog:     ActStdout,
	LevelDebug:   ActStdout,
	LevelWarning: ActStderr,
	LevelError:   ActStderr,
	LevelFatal:   ActStderr | ActExit,
}

// sourceConfig is the configuration of one named logging domain (e.g.
// "TMR", "SOCK", "CDR"), each independently configurable, matching
// error.c's per-id LogAction_t entries.
type sourceConfig struct {
	level   Level
	actions [5]Action
}

// Manager is the process-wide logging facade: source registry, the
// structured logiface pipeline, the diagnostic ring, and the storm
// limiter.
type Manager struct {
	mu      sync.RWMutex
	sources map[string]*sourceConfig

	logger *logiface.Logger[*stumpy.Event]
	sysl   *syslog.Writer // nil if unavailable/unopened

	limiter *catrate.Limiter

	ring *diagRing
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithWriter directs the stumpy JSON-line backend at w instead of
// os.Stderr.
func WithWriter(w io.Writer) Option {
	return func(m *Manager) {
		m.logger = logiface.New[*stumpy.Event](stumpy.WithStumpy(stumpy.WithWriter(w)))
	}
}

// WithSyslog opens a syslog writer for ActSyslog-tagged sources. Errors
// opening syslog are non-fatal: ActSyslog output is then silently
// dropped, matching error.c's best-effort posture toward an
// unreachable log daemon.
func WithSyslog(tag string) Option {
	return func(m *Manager) {
		w, err := syslog.New(syslog.LOG_USER|syslog.LOG_INFO, tag)
		if err == nil {
			m.sysl = w
		}
	}
}

// WithRateLimit throttles repeated identical (source,level,message)
// triples to at most n occurrences per window, using catrate.Limiter,
// protecting against the kind of log storm the original's
// log_debug_count counter was meant to catch.
func WithRateLimit(window time.Duration, n int) Option {
	return func(m *Manager) {
		m.limiter = catrate.NewLimiter(map[time.Duration]int{window: n})
	}
}

// NewManager constructs a Manager with error.c's default action table
// and a 4096-unit diagnostic ring (SPEC_FULL.md §10).
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sources: make(map[string]*sourceConfig),
		logger:  logiface.New[*stumpy.Event](stumpy.WithStumpy(stumpy.WithWriter(os.Stderr))),
		ring:    newDiagRing(4096),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Configure sets the level threshold and per-level action overrides for
// a named source. Unconfigured sources use error.c's default table at
// LevelLog threshold.
func (m *Manager) Configure(source string, level Level, actions ...Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &sourceConfig{level: level, actions: defaultActions}
	for i, a := range actions {
		if i >= len(c.actions) {
			break
		}
		c.actions[i] = a
	}
	m.sources[source] = c
}

func (m *Manager) configFor(source string) *sourceConfig {
	m.mu.RLock()
	c, ok := m.sources[source]
	m.mu.RUnlock()
	if ok {
		return c
	}
	return &sourceConfig{level: LevelLog, actions: defaultActions}
}

// Logf renders format/args and dispatches it through source's configured
// actions at level. A LevelFatal message triggers os.Exit(1) once all
// actions have run, if ActExit is set (the default), the same way
// error.c's FATAL_ACTION does.
func (m *Manager) Logf(source string, level Level, format string, args ...any) {
	cfg := m.configFor(source)
	if level < cfg.level {
		return
	}
	msg := fmt.Sprintf(format, args...)

	if m.limiter != nil {
		if _, ok := m.limiter.Allow(source + "|" + level.String() + "|" + msg); !ok {
			return
		}
	}

	m.ring.push(source, level, msg)

	actions := cfg.actions[level]
	if actions&ActStdout != 0 {
		fmt.Fprintln(os.Stdout, formatLine(source, level, msg))
	}
	if actions&ActStderr != 0 {
		fmt.Fprintln(os.Stderr, formatLine(source, level, msg))
	}
	if actions&ActSyslog != 0 && m.sysl != nil {
		switch level {
		case LevelFatal:
			_ = m.sysl.Crit(msg)
		case LevelError:
			_ = m.sysl.Err(msg)
		case LevelWarning:
			_ = m.sysl.Warning(msg)
		case LevelDebug:
			_ = m.sysl.Debug(msg)
		default:
			_ = m.sysl.Info(msg)
		}
	}
	if actions&ActFile != 0 {
		m.logger.Build(level.toLogifaceLevel()).Str("source", source).Log(msg)
	}

	if level == LevelFatal && actions&ActExit != 0 {
		os.Exit(1)
	}
}

func formatLine(source string, level Level, msg string) string {
	return fmt.Sprintf("%s: %s: %s", source, level, msg)
}

// Log, Debug, Warning, Error and Fatal are convenience wrappers over Logf.
func (m *Manager) Log(source, format string, args ...any)     { m.Logf(source, LevelLog, format, args...) }
func (m *Manager) Debug(source, format string, args ...any)   { m.Logf(source, LevelDebug, format, args...) }
func (m *Manager) Warning(source, format string, args ...any) { m.Logf(source, LevelWarning, format, args...) }
func (m *Manager) Error(source, format string, args ...any)   { m.Logf(source, LevelError, format, args...) }
func (m *Manager) Fatal(source, format string, args ...any)   { m.Logf(source, LevelFatal, format, args...) }

// Dump returns a snapshot of the diagnostic ring's contents, newest
// last, for inclusion in a crash report.
func (m *Manager) Dump() []DiagEntry {
	return m.ring.snapshot()
}
