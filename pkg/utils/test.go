// SPDX-License-Identifier: MIT
// Package utils holds signal generators and fakes shared by tests.
package utils

import (
	"math"
	"sync"
)

// Amplitude of generated test signals, leaving headroom below full scale.
const Amplitude = 0.9

// MockTransport implements transport.Transport for testing.
type MockTransport struct {
	mu     sync.Mutex
	last   any
	sends  int
	closed bool
}

// Send records data instead of transmitting it.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	m.last = data
	m.sends++
	m.mu.Unlock()
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Last returns the most recent value and the number of sends so far.
func (m *MockTransport) Last() (any, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.sends
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GenerateComplexWave returns a 440Hz fundamental with two harmonics.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * Amplitude)
	}
	return buffer
}

// GenerateSineWave returns a sine of the given frequency at Amplitude.
func GenerateSineWave(size int, sampleRate, frequency float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * Amplitude)
	}
	return buffer
}

// PeakIndex returns the index of the largest absolute sample within
// [start, end], clamped to the slice.
func PeakIndex(samples []float32, start, end int) int {
	if len(samples) == 0 {
		return 0
	}
	if start < 0 {
		start = 0
	}
	if end >= len(samples) {
		end = len(samples) - 1
	}

	peak := start
	peakValue := math.Abs(float64(samples[start]))
	for i := start + 1; i <= end; i++ {
		if v := math.Abs(float64(samples[i])); v > peakValue {
			peakValue = v
			peak = i
		}
	}
	return peak
}
