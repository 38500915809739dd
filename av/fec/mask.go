package fec

import (
	"fmt"

	"github.com/opd-ai/toxfec/av/rtp"
)

// Masks name protected packets by their distance from a base sequence number.
// On the wire the left-most (most significant) bit of the first mask byte is
// delta 0, the next bit delta 1, and so on.

const (
	// ULPFEC masks have a fixed width selected by the L header bit.
	ulpfecShortMaskSize = 2
	ulpfecLongMaskSize  = 6
	ulpfecMaxShortDelta = ulpfecShortMaskSize*8 - 1 // 15
	ulpfecMaxLongDelta  = ulpfecLongMaskSize*8 - 1  // 47

	// FlexFEC-03 masks carry their own width in k-bits.
	flexMaskSmallSize  = 2
	flexMaskMediumSize = 6
	flexMaskLargeSize  = 14
	flexMaxSmallDelta  = 14
	flexMaxMediumDelta = 45
	flexMaxLargeDelta  = 108
)

// flexKBitOffsets are the absolute bit positions of the k-bits. A k-bit of 1
// ends the mask; 0 means the mask continues to the next width.
var flexKBitOffsets = [...]int{0, 16, 48}

// bitArray is a bit string where index 0 is the most significant bit of the
// first byte.
type bitArray []bool

func bitArrayFromBytes(b []byte) bitArray {
	bits := make(bitArray, len(b)*8)
	for i := range bits {
		bits[i] = b[i/8]&(0x80>>(i%8)) != 0
	}
	return bits
}

func (a bitArray) bytes() []byte {
	out := make([]byte, (len(a)+7)/8)
	for i, set := range a {
		if set {
			out[i/8] |= 0x80 >> (i % 8)
		}
	}
	return out
}

// insert places v at pos, shifting every later bit one position right.
func (a bitArray) insert(pos int, v bool) bitArray {
	a = append(a, false)
	copy(a[pos+1:], a[pos:])
	a[pos] = v
	return a
}

// remove deletes the bit at pos, shifting every later bit one position left.
func (a bitArray) remove(pos int) bitArray {
	copy(a[pos:], a[pos+1:])
	return a[:len(a)-1]
}

// sequencesFromBits turns set bits into base+index sequence numbers.
func sequencesFromBits(bits bitArray, base uint16) []uint16 {
	var seqs []uint16
	for delta, set := range bits {
		if set {
			seqs = append(seqs, rtp.ApplySequenceDelta(base, delta))
		}
	}
	return seqs
}

// maxDelta returns the largest distance of seqs from base, or an error if
// any sequence number precedes base or exceeds limit.
func maxDelta(base uint16, seqs []uint16, limit int) (int, error) {
	if len(seqs) == 0 {
		return 0, fmt.Errorf("%w: no protected sequence numbers", ErrMalformedMask)
	}
	highest := 0
	for _, seq := range seqs {
		delta := rtp.SequenceDelta(seq, base)
		if delta < 0 || delta > limit {
			return 0, fmt.Errorf("%w: sequence %d is %d from base %d, limit %d",
				ErrMalformedMask, seq, delta, base, limit)
		}
		highest = max(highest, delta)
	}
	return highest, nil
}

// DecodeULPFECMask returns the sequence numbers named by a ULPFEC mask.
// The mask width (2 or 6 bytes) is chosen by the caller from the L bit.
func DecodeULPFECMask(mask []byte, base uint16) []uint16 {
	return sequencesFromBits(bitArrayFromBytes(mask), base)
}

// EncodeULPFECMask builds the smallest ULPFEC mask covering seqs.
//
// Returns:
//   - []byte: 2-byte short mask or 6-byte long mask
//   - bool: Whether the long mask (L bit) is needed
//   - error: ErrMalformedMask if a delta exceeds 47 or precedes base
func EncodeULPFECMask(base uint16, seqs []uint16) ([]byte, bool, error) {
	highest, err := maxDelta(base, seqs, ulpfecMaxLongDelta)
	if err != nil {
		return nil, false, err
	}

	size := ulpfecShortMaskSize
	long := highest > ulpfecMaxShortDelta
	if long {
		size = ulpfecLongMaskSize
	}

	bits := make(bitArray, size*8)
	for _, seq := range seqs {
		bits[rtp.SequenceDelta(seq, base)] = true
	}
	return bits.bytes(), long, nil
}

// FlexMaskSize returns the width in bytes implied by the k-bits at the start
// of buf, or ErrMalformedMask if buf is shorter than that width.
func FlexMaskSize(buf []byte) (int, error) {
	if len(buf) < flexMaskSmallSize {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrMalformedMask, flexMaskSmallSize, len(buf))
	}
	if buf[0]&0x80 != 0 {
		return flexMaskSmallSize, nil
	}
	if len(buf) < flexMaskMediumSize {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrMalformedMask, flexMaskMediumSize, len(buf))
	}
	if buf[flexKBitOffsets[1]/8]&0x80 != 0 {
		return flexMaskMediumSize, nil
	}
	if len(buf) < flexMaskLargeSize {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrMalformedMask, flexMaskLargeSize, len(buf))
	}
	return flexMaskLargeSize, nil
}

func flexKBitCount(size int) int {
	switch size {
	case flexMaskSmallSize:
		return 1
	case flexMaskMediumSize:
		return 2
	default:
		return 3
	}
}

// DecodeFlexMask reads a FlexFEC-03 flexible mask from the start of buf.
//
// Parameters:
//   - buf: Bytes beginning at the first mask byte; may extend past the mask
//   - base: Base sequence number the mask is relative to
//
// Returns:
//   - []uint16: Protected sequence numbers in ascending delta order
//   - int: Mask width in bytes (2, 6 or 14)
//   - error: ErrMalformedMask if buf is shorter than the k-bits require
func DecodeFlexMask(buf []byte, base uint16) ([]uint16, int, error) {
	size, err := FlexMaskSize(buf)
	if err != nil {
		return nil, 0, err
	}

	bits := bitArrayFromBytes(buf[:size])
	// Remove the largest offset first so earlier removals do not move the
	// k-bits still to be removed.
	for i := flexKBitCount(size) - 1; i >= 0; i-- {
		bits = bits.remove(flexKBitOffsets[i])
	}

	return sequencesFromBits(bits, base), size, nil
}

// EncodeFlexMask builds the smallest FlexFEC-03 mask covering seqs.
//
// The width is 2 bytes for deltas up to 14, 6 bytes up to 45 and 14 bytes
// up to 108. A delta beyond 108, a sequence number before base, or an empty
// set fails with ErrMalformedMask.
func EncodeFlexMask(base uint16, seqs []uint16) ([]byte, error) {
	highest, err := maxDelta(base, seqs, flexMaxLargeDelta)
	if err != nil {
		return nil, err
	}

	size := flexMaskLargeSize
	switch {
	case highest <= flexMaxSmallDelta:
		size = flexMaskSmallSize
	case highest <= flexMaxMediumDelta:
		size = flexMaskMediumSize
	}
	kBits := flexKBitCount(size)

	bits := make(bitArray, size*8-kBits)
	for _, seq := range seqs {
		bits[rtp.SequenceDelta(seq, base)] = true
	}
	// Insert in ascending order: each offset is absolute in the final layout.
	for i := 0; i < kBits; i++ {
		bits = bits.insert(flexKBitOffsets[i], i == kBits-1)
	}

	return bits.bytes(), nil
}
