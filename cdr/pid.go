package cdr

// Parameter-list PIDs, per spec.md's "External Interfaces" PID table
// and original_source/dds/src/xtypes/xcdr.c's parameter-list encoder.
const (
	PIDExtended uint16 = 0x3f01
	PIDListEnd  uint16 = 0x3f02
	PIDIgnore   uint16 = 0x3f03
)
