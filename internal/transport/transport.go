// SPDX-License-Identifier: MIT
// Package transport sends level meter snapshots to listeners outside the
// process.
package transport

// Transport defines a generic interface for sending snapshots.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Values is implemented by data that can be flattened into a float32 payload
// for binary transports.
type Values interface {
	AppendValues(dst []float32) []float32
}
