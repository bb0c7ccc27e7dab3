// SPDX-License-Identifier: MIT
/*
Package ring provides a lock-free single-producer single-consumer ring
buffer for handing data off the real-time thread.

The producer (the process callback) never blocks and never allocates: when
the ring is full the excess is dropped and counted. The consumer drains on
its own goroutine at whatever pace it likes.

Usage:

	r := ring.New[float32](48000)

	// real-time thread
	n := r.Write(samples)

	// consumer goroutine
	n = r.Read(dst)
*/
package ring

import (
	"sync/atomic"

	"rtio/pkg/bitint"
)

// SPSC is a bounded ring for exactly one writer and one reader.
type SPSC[T any] struct {
	buf  []T
	mask uint64

	// head is advanced by the writer, tail by the reader.
	head atomic.Uint64
	tail atomic.Uint64

	dropped atomic.Uint64
}

// New returns a ring holding at least size elements. The capacity is
// rounded up to a power of two.
func New[T any](size int) *SPSC[T] {
	n := bitint.NextPowerOfTwo(size)
	return &SPSC[T]{
		buf:  make([]T, n),
		mask: bitint.Mask(n),
	}
}

// Cap returns the ring capacity.
func (r *SPSC[T]) Cap() int { return len(r.buf) }

// Len returns the number of elements waiting to be read.
func (r *SPSC[T]) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Dropped returns how many elements the write methods have discarded.
func (r *SPSC[T]) Dropped() uint64 { return r.dropped.Load() }

// Write copies as much of src as fits and returns the count written.
func (r *SPSC[T]) Write(src []T) int {
	head := r.head.Load()
	free := uint64(len(r.buf)) - (head - r.tail.Load())
	n := uint64(len(src))
	if n > free {
		r.dropped.Add(n - free)
		n = free
	}
	for i := uint64(0); i < n; i++ {
		r.buf[(head+i)&r.mask] = src[i]
	}
	r.head.Store(head + n)
	return int(n)
}

// WriteAll copies all of src or nothing. It reports whether src was written.
func (r *SPSC[T]) WriteAll(src []T) bool {
	head := r.head.Load()
	if uint64(len(src)) > uint64(len(r.buf))-(head-r.tail.Load()) {
		r.dropped.Add(uint64(len(src)))
		return false
	}
	for i := range src {
		r.buf[(head+uint64(i))&r.mask] = src[i]
	}
	r.head.Store(head + uint64(len(src)))
	return true
}

// Push adds one element. It reports false if the ring was full.
func (r *SPSC[T]) Push(v T) bool {
	head := r.head.Load()
	if head-r.tail.Load() == uint64(len(r.buf)) {
		r.dropped.Add(1)
		return false
	}
	r.buf[head&r.mask] = v
	r.head.Store(head + 1)
	return true
}

// Read moves up to len(dst) elements into dst and returns the count.
func (r *SPSC[T]) Read(dst []T) int {
	tail := r.tail.Load()
	n := min(uint64(len(dst)), r.head.Load()-tail)
	for i := uint64(0); i < n; i++ {
		dst[i] = r.buf[(tail+i)&r.mask]
	}
	r.tail.Store(tail + n)
	return int(n)
}

// Pop removes one element.
func (r *SPSC[T]) Pop() (T, bool) {
	var zero T
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return zero, false
	}
	v := r.buf[tail&r.mask]
	r.buf[tail&r.mask] = zero
	r.tail.Store(tail + 1)
	return v, true
}
