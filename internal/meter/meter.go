// SPDX-License-Identifier: MIT
// Package meter tracks peak and RMS levels per bus channel.
//
// Process runs on the real-time thread and only performs atomic stores into
// per-channel slots. Snapshot runs anywhere else, reads the slots, and
// resets the held peaks.
package meter

import (
	"math"
	"sync/atomic"
	"time"

	"rtio/internal/audio"

	"gonum.org/v1/gonum/floats"
)

// BusLevels holds the levels of one bus, indexed by channel.
type BusLevels struct {
	ID   string    `json:"id"`
	Peak []float64 `json:"peak"`
	RMS  []float64 `json:"rms"`
}

// Snapshot is a point-in-time reading of every metered bus.
type Snapshot struct {
	Time  time.Time   `json:"time"`
	Buses []BusLevels `json:"buses"`
}

// AppendValues appends each bus's peaks followed by its RMS values.
func (s Snapshot) AppendValues(dst []float32) []float32 {
	for _, b := range s.Buses {
		for _, v := range b.Peak {
			dst = append(dst, float32(v))
		}
		for _, v := range b.RMS {
			dst = append(dst, float32(v))
		}
	}
	return dst
}

type level struct {
	peak atomic.Uint64
	rms  atomic.Uint64
}

// Meter measures a fixed set of buses.
type Meter struct {
	ids      []string
	channels [][]level
	scratch  []float64
}

// New allocates slots for buses and scratch space for periods of up to
// maxFrames frames.
func New(buses []audio.Bus, maxFrames int) *Meter {
	m := &Meter{
		ids:      make([]string, len(buses)),
		channels: make([][]level, len(buses)),
		scratch:  make([]float64, maxFrames),
	}
	for i, b := range buses {
		m.ids[i] = b.ID
		m.channels[i] = make([]level, b.Channels)
	}
	return m
}

// Process measures one period. Buses and channels beyond what the meter was
// built for are ignored.
func (m *Meter) Process(buses []audio.BusBuffer) {
	for i := range buses {
		if i == len(m.channels) {
			return
		}
		for ch, samples := range buses[i].Channels {
			if ch == len(m.channels[i]) {
				break
			}
			n := min(len(samples), len(m.scratch))
			if n == 0 {
				continue
			}
			s := m.scratch[:n]
			for j := range s {
				s[j] = float64(samples[j])
			}

			slot := &m.channels[i][ch]
			peak := floats.Norm(s, math.Inf(1))
			for {
				old := slot.peak.Load()
				if peak <= math.Float64frombits(old) || slot.peak.CompareAndSwap(old, math.Float64bits(peak)) {
					break
				}
			}
			slot.rms.Store(math.Float64bits(floats.Norm(s, 2) / math.Sqrt(float64(n))))
		}
	}
}

// Snapshot returns the peaks held since the previous snapshot and the RMS of
// the latest period.
func (m *Meter) Snapshot() Snapshot {
	snap := Snapshot{Time: time.Now(), Buses: make([]BusLevels, len(m.ids))}
	for i, id := range m.ids {
		b := BusLevels{
			ID:   id,
			Peak: make([]float64, len(m.channels[i])),
			RMS:  make([]float64, len(m.channels[i])),
		}
		for ch := range m.channels[i] {
			slot := &m.channels[i][ch]
			b.Peak[ch] = math.Float64frombits(slot.peak.Swap(0))
			b.RMS[ch] = math.Float64frombits(slot.rms.Load())
		}
		snap.Buses[i] = b
	}
	return snap
}

// DBFS converts a linear amplitude to decibels relative to full scale.
func DBFS(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}
