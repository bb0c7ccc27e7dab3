// SPDX-License-Identifier: MIT
/*
Package spectrum measures the energy in a few broad frequency bands of one
input bus.

The real-time thread only mixes the bus to mono and writes it into a lock-free
ring. Update, called from Run on its own goroutine, drains the ring into a
sliding window, applies a Hann window, runs the FFT, and stores the level of
each band for Snapshot.

Band levels are linear and normalized so that a full-scale sine centred on a
bin reads 1.0 in its band.
*/
package spectrum

import (
	"context"
	"fmt"
	"math/cmplx"
	"sync"
	"time"

	"rtio/internal/audio"
	"rtio/pkg/bitint"
	"rtio/pkg/ring"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

// DefaultSize is the FFT length used when none is configured.
const DefaultSize = 2048

// DefaultInterval is how often Run recomputes the spectrum.
const DefaultInterval = 50 * time.Millisecond

// ringPeriods is how many maximum-size periods the ring buffers between
// updates.
const ringPeriods = 16

// Band is a named frequency range, LowHz inclusive and HighHz exclusive.
type Band struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands covers the audible range in six bands.
var DefaultBands = []Band{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000, HighHz: 20000},
}

// BandLevel is the measured level of one band.
type BandLevel struct {
	Name  string  `json:"name"`
	Level float64 `json:"level"`
}

// Snapshot is the most recent spectrum reading.
type Snapshot struct {
	Time  time.Time   `json:"time"`
	Bands []BandLevel `json:"bands"`
}

// AppendValues appends the band levels in band order.
func (s Snapshot) AppendValues(dst []float32) []float32 {
	for _, b := range s.Bands {
		dst = append(dst, float32(b.Level))
	}
	return dst
}

// Analyzer computes band levels for one bus.
type Analyzer struct {
	size       int
	sampleRate float64
	bands      []Band

	ring *ring.SPSC[float32]
	mix  []float32 // real-time scratch

	// Owned by the Update goroutine.
	chunk   []float32
	history []float64
	filled  int
	input   []float64
	coeffs  []complex128
	mags    []float64
	window  []float64
	scale   float64
	fft     *fourier.FFT
	binBand []int

	mu     sync.Mutex
	latest Snapshot
	now    func() time.Time
}

// New returns an analyzer for a stream at sampleRate whose periods are at
// most maxFrames long. size must be a power of two.
func New(sampleRate float64, size, maxFrames int) (*Analyzer, error) {
	if !bitint.IsPowerOfTwo(size) || size < 16 {
		return nil, fmt.Errorf("fft size must be a power of two of at least 16, got %d", size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}

	w := make([]float64, size)
	for i := range w {
		w[i] = 1
	}
	window.Hann(w)

	bins := size/2 + 1
	a := &Analyzer{
		size:       size,
		sampleRate: sampleRate,
		bands:      DefaultBands,
		ring:       ring.New[float32](max(size, maxFrames*ringPeriods)),
		mix:        make([]float32, maxFrames),
		chunk:      make([]float32, size),
		history:    make([]float64, size),
		input:      make([]float64, size),
		coeffs:     make([]complex128, bins),
		mags:       make([]float64, bins),
		window:     w,
		scale:      2 / floats.Sum(w),
		fft:        fourier.NewFFT(size),
		binBand:    make([]int, bins),
		now:        time.Now,
	}

	for i := range a.binBand {
		a.binBand[i] = -1
		freq := a.Freq(i)
		for b, band := range a.bands {
			if freq >= band.LowHz && freq < band.HighHz {
				a.binBand[i] = b
				break
			}
		}
	}

	a.latest = Snapshot{Bands: make([]BandLevel, len(a.bands))}
	for i, band := range a.bands {
		a.latest.Bands[i].Name = band.Name
	}
	return a, nil
}

// Size returns the FFT length.
func (a *Analyzer) Size() int { return a.size }

// Freq returns the centre frequency in Hz of FFT bin i.
func (a *Analyzer) Freq(i int) float64 {
	if i < 0 || i >= len(a.coeffs) {
		return 0
	}
	return a.fft.Freq(i) * a.sampleRate
}

// Dropped returns how many samples Capture could not queue.
func (a *Analyzer) Dropped() uint64 { return a.ring.Dropped() }

// Capture mixes bus down to mono and queues it. It runs on the real-time
// thread and does not allocate.
func (a *Analyzer) Capture(bus *audio.BusBuffer) {
	if len(bus.Channels) == 0 {
		return
	}
	frames := min(len(bus.Channels[0]), len(a.mix))
	mix := a.mix[:frames]
	copy(mix, bus.Channels[0][:frames])
	for _, ch := range bus.Channels[1:] {
		for i := range mix {
			mix[i] += ch[i]
		}
	}
	if n := len(bus.Channels); n > 1 {
		g := 1 / float32(n)
		for i := range mix {
			mix[i] *= g
		}
	}
	a.ring.Write(mix)
}

// Update drains queued samples and, once a full window has been seen,
// recomputes the band levels. It reports whether a new snapshot was stored.
func (a *Analyzer) Update() bool {
	fresh := 0
	for {
		n := a.ring.Read(a.chunk)
		if n == 0 {
			break
		}
		a.slide(a.chunk[:n])
		fresh += n
	}
	if fresh == 0 || a.filled < a.size {
		return false
	}

	for i, s := range a.history {
		a.input[i] = s * a.window[i]
	}
	a.fft.Coefficients(a.coeffs, a.input)
	for i, c := range a.coeffs {
		a.mags[i] = cmplx.Abs(c) * a.scale
	}

	snap := Snapshot{Time: a.now(), Bands: make([]BandLevel, len(a.bands))}
	for i, band := range a.bands {
		snap.Bands[i].Name = band.Name
	}
	for i, b := range a.binBand {
		if b >= 0 && a.mags[i] > snap.Bands[b].Level {
			snap.Bands[b].Level = a.mags[i]
		}
	}

	a.mu.Lock()
	a.latest = snap
	a.mu.Unlock()
	return true
}

// slide appends samples to the analysis window, discarding the oldest.
func (a *Analyzer) slide(samples []float32) {
	if len(samples) >= a.size {
		samples = samples[len(samples)-a.size:]
	}
	n := len(samples)
	copy(a.history, a.history[n:])
	tail := a.history[a.size-n:]
	for i, s := range samples {
		tail[i] = float64(s)
	}
	a.filled = min(a.filled+n, a.size)
}

// Snapshot returns the most recent band levels.
func (a *Analyzer) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.latest
	s.Bands = append([]BandLevel(nil), a.latest.Bands...)
	return s
}

// Run calls Update every interval until ctx is done.
func (a *Analyzer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.Update()
		case <-ctx.Done():
			return nil
		}
	}
}
