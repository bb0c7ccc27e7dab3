// SPDX-License-Identifier: MIT
package monitor

import (
	"testing"

	"rtio/internal/audio"
	"rtio/internal/server/servertest"

	"github.com/stretchr/testify/assert"
)

func TestGateThresholdBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		want      float64
	}{
		{"Below zero clamps", -0.5, 0},
		{"Zero", 0, 0},
		{"Default", DefaultGateThreshold, DefaultGateThreshold},
		{"Half", 0.5, 0.5},
		{"Above one clamps", 1.5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(tt.threshold)
			assert.InDelta(t, tt.want, g.Threshold(), 1e-7)
		})
	}
}

func TestGateOpen(t *testing.T) {
	bus := audio.NewBusBuffer(2, 8)
	bus.ClearAndResize(4)

	g := NewGate(0.1)
	assert.False(t, g.Open(&bus), "silence opened the gate")

	bus.Channels[1][2] = -0.2
	assert.True(t, g.Open(&bus), "negative peak above threshold kept the gate shut")

	bus.Channels[1][2] = 0.1
	assert.False(t, g.Open(&bus), "sample equal to threshold opened the gate")

	g.Disable()
	assert.False(t, g.Enabled())
	assert.True(t, g.Open(&bus), "disabled gate is always open")

	g.Enable()
	g.SetThreshold(0)
	bus.Channels[0][0] = 1e-6
	assert.True(t, g.Open(&bus))
}

func TestGateOpenDoesNotAllocate(t *testing.T) {
	bus := audio.NewBusBuffer(2, 256)
	bus.ClearAndResize(256)
	g := NewGate(DefaultGateThreshold)
	allocs := testing.AllocsPerRun(100, func() { g.Open(&bus) })
	if allocs > 0 {
		t.Errorf("expected zero allocations, got %.1f", allocs)
	}
}

func TestGateHoldsQuietPeriods(t *testing.T) {
	srv := servertest.NewSystem()
	cfg := audio.Config{
		AudioIn:  []audio.BusConfig{{ID: "in", SystemPorts: []string{"system:capture_1"}}},
		AudioOut: []audio.BusConfig{{ID: "out", SystemPorts: []string{"system:playback_1"}}},
	}
	p := New(Options{Gate: true, GateThreshold: 0.05})
	spawn(t, srv, cfg, p, "gated")

	capture := srv.Port("system:capture_1")
	playback := srv.Port("system:playback_1")

	quiet := []float32{0.01, -0.02, 0.01, 0}
	capture.SetSamples(quiet)
	srv.RunPeriod(4)
	assert.Equal(t, []float32{0, 0, 0, 0}, playback.Samples(4))

	loud := []float32{0.01, -0.5, 0.01, 0}
	capture.SetSamples(loud)
	srv.RunPeriod(4)
	assert.Equal(t, loud, playback.Samples(4))

	p.Gate().Disable()
	capture.SetSamples(quiet)
	srv.RunPeriod(4)
	assert.Equal(t, quiet, playback.Samples(4))
}
