package rtp

// Sequence numbers and timestamps are fixed-width counters that roll over.
// Every comparison in the FEC subsystem goes through these helpers so that
// ordering stays consistent across the 0/max boundary. Values are comparable
// when they lie within half the modulus of each other.

const (
	seqModulus  = 1 << 16
	seqHalf     = 1 << 15
	tsModulus   = 1 << 32
	tsHalf      = 1 << 31
	seqHalfMask = 0x8000
)

// SequenceDelta returns a - b normalized into (-2^15, 2^15].
//
// When a and b are exactly half the modulus apart the sign is decided by the
// raw values: the larger raw value is the newer one. This keeps the
// comparator total.
func SequenceDelta(a, b uint16) int {
	diff := a - b
	if diff == seqHalfMask {
		if a > b {
			return seqHalf
		}
		return -seqHalf
	}
	return int(int16(diff))
}

// IsSequenceNewer reports whether a comes after b.
func IsSequenceNewer(a, b uint16) bool {
	return SequenceDelta(a, b) > 0
}

// IsSequenceOlder reports whether a comes before b.
func IsSequenceOlder(a, b uint16) bool {
	return SequenceDelta(a, b) < 0
}

// CompareSequence orders sequence numbers oldest first. It returns a negative
// number when a is older than b, zero when equal and a positive number otherwise.
func CompareSequence(a, b uint16) int {
	return SequenceDelta(a, b)
}

// ApplySequenceDelta adds delta to base modulo 2^16.
func ApplySequenceDelta(base uint16, delta int) uint16 {
	return uint16(((int(base)+delta)%seqModulus + seqModulus) % seqModulus)
}

// TimestampDelta returns a - b normalized into (-2^31, 2^31], with the same
// half-modulus tie-break as SequenceDelta.
func TimestampDelta(a, b uint32) int64 {
	diff := a - b
	if diff == tsHalf {
		if a > b {
			return tsHalf
		}
		return -tsHalf
	}
	return int64(int32(diff))
}

// IsTimestampNewer reports whether a comes after b.
func IsTimestampNewer(a, b uint32) bool {
	return TimestampDelta(a, b) > 0
}

// IsTimestampOlder reports whether a comes before b.
func IsTimestampOlder(a, b uint32) bool {
	return TimestampDelta(a, b) < 0
}

// ApplyTimestampDelta adds delta to base modulo 2^32.
func ApplyTimestampDelta(base uint32, delta int64) uint32 {
	return uint32(((int64(base)+delta)%tsModulus + tsModulus) % tsModulus)
}
