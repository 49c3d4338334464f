package ticks

// FTime is the signed 64-bit wire timestamp: high 32 bits are whole
// seconds, low 32 bits are a fraction of a second in units of 1/2^32 s.
type FTime int64

const fracUnit = 1 << 32

// FromTime builds an FTime from a {seconds, nanoseconds} pair.
func FromTime(seconds int32, nanos uint32) FTime {
	frac := (uint64(nanos) << 32) / 1_000_000_000
	return FTime(int64(seconds)<<32 | int64(frac))
}

// ToTime splits an FTime back into {seconds, nanoseconds}.
func (f FTime) ToTime() (seconds int32, nanos uint32) {
	seconds = int32(int64(f) >> 32)
	frac := uint32(int64(f) & 0xffffffff)
	nanos = uint32((uint64(frac) * 1_000_000_000) >> 32)
	return
}

// Add returns f+g, where g is typically produced by FromTime on a
// duration rather than an absolute timestamp.
func (f FTime) Add(g FTime) FTime { return f + g }

// Sub returns f-g.
func (f FTime) Sub(g FTime) FTime { return f - g }

// Compare returns -1, 0 or 1 as f is less than, equal to, or greater than g.
func (f FTime) Compare(g FTime) int {
	switch {
	case f < g:
		return -1
	case f > g:
		return 1
	default:
		return 0
	}
}
