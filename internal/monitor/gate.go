// SPDX-License-Identifier: MIT
package monitor

import (
	"math"
	"sync/atomic"

	"rtio/internal/audio"
)

// DefaultGateThreshold is about -60 dBFS.
const DefaultGateThreshold = 0.001

// Gate is a per-period noise gate. A bus passes through only when some
// sample in the period exceeds the threshold. Both settings may change while
// the stream runs.
type Gate struct {
	enabled   atomic.Bool
	threshold atomic.Uint32 // math.Float32bits
}

// NewGate returns an enabled gate.
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	g.Enable()
	return g
}

func (g *Gate) Enable()       { g.enabled.Store(true) }
func (g *Gate) Disable()      { g.enabled.Store(false) }
func (g *Gate) Enabled() bool { return g.enabled.Load() }

// SetThreshold sets the linear amplitude threshold, clamped to 0..1 where
// 0 is always open and 1 is always closed.
func (g *Gate) SetThreshold(threshold float64) {
	threshold = min(max(threshold, 0), 1)
	g.threshold.Store(math.Float32bits(float32(threshold)))
}

// Threshold returns the current threshold.
func (g *Gate) Threshold() float64 {
	return float64(math.Float32frombits(g.threshold.Load()))
}

// Open reports whether bus passes this period. It runs on the real-time
// thread.
func (g *Gate) Open(bus *audio.BusBuffer) bool {
	if !g.enabled.Load() {
		return true
	}
	threshold := math.Float32frombits(g.threshold.Load())
	for _, ch := range bus.Channels {
		for _, s := range ch {
			if s > threshold || -s > threshold {
				return true
			}
		}
	}
	return false
}
