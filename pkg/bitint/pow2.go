// SPDX-License-Identifier: MIT
/*
Package bitint holds the power-of-two helpers used to size lock-free rings.

A ring whose capacity is a power of two can wrap its indices with a mask
instead of a modulo, which keeps the real-time producer to a handful of
instructions per element.

	size := bitint.NextPowerOfTwo(48000) // 65536
	mask := bitint.Mask(size)            // 65535
	slot := index & mask

NextPowerOfTwo subtracts one before taking the bit length so that an exact
power of two maps to itself: Len(8-1) is 3 and 1<<3 is 8, where Len(8) would
give 16.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Zero and
// negative sizes return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Mask returns the index mask for a ring of capacity n. It panics when n is
// not a power of two, since the mask would silently alias slots.
func Mask(n int) uint64 {
	if !IsPowerOfTwo(n) {
		panic("bitint: capacity is not a power of two")
	}
	return uint64(n - 1)
}
