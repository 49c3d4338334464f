package ddsruntime

import (
	"encoding/binary"
	"os"
	"sync/atomic"
	"time"
)

// GUIDPrefix is the 12-byte process-unique prefix every entity GUID in a
// domain participant shares, per spec.md §4.I "GUID prefix (unique per
// process)". Grounded on original_source/dds/src/dds/dds.c's
// sys_getguid-style derivation: a process-identity value (there, a mix
// of pid and host address) folded with a counter so repeated calls
// within one process never collide.
type GUIDPrefix [12]byte

var guidCounter atomic.Uint32

// NewGUIDPrefix derives a fresh prefix from the process id and a
// monotonic in-process counter. google/renameio's process-identity-safe
// temp-file pattern was considered and rejected for this (see
// DESIGN.md): it solves atomic file renames across processes, which is
// not a problem this derivation has — os.Getpid() plus a counter is
// sufficient uniqueness for one process's lifetime, matching the
// original's scope (a GUID prefix is never compared across a process
// restart without discovery re-establishing liveness anyway).
func NewGUIDPrefix() GUIDPrefix {
	var g GUIDPrefix
	binary.BigEndian.PutUint32(g[0:4], uint32(os.Getpid()))
	binary.BigEndian.PutUint32(g[4:8], guidCounter.Add(1))
	binary.BigEndian.PutUint32(g[8:12], bootNonce)
	return g
}

// bootNonce distinguishes prefixes across process restarts that happen
// to reuse the same pid (common on short-lived containers); it is
// derived once at package init from the time the package was loaded.
var bootNonce = uint32(time.Now().UnixNano())
