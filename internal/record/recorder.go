// SPDX-License-Identifier: MIT
// Package record writes one input bus to a WAV file.
//
// Capture runs on the real-time thread: it interleaves the bus into a
// pre-allocated scratch buffer and pushes it into a lock-free ring. Run
// drains the ring on its own goroutine and does all file I/O.
package record

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"rtio/internal/audio"
	applog "rtio/internal/log"
	"rtio/pkg/ring"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var recLog = applog.Named("record")

// Seconds of audio the ring can hold before Capture starts dropping.
const ringSeconds = 2

// DefaultDrainInterval is how often Run empties the ring.
const DefaultDrainInterval = 20 * time.Millisecond

// ErrBitDepth is returned by New for a bit depth other than 16, 24 or 32.
var ErrBitDepth = errors.New("unsupported bit depth")

// Options describe the file being written.
type Options struct {
	Path       string
	SampleRate int
	Channels   int
	BitDepth   int
	MaxFrames  int
}

// Recorder owns the output file and the hand-off ring.
type Recorder struct {
	opts Options

	file    *os.File
	encoder *wav.Encoder

	ring       *ring.SPSC[float32]
	interleave []float32
	drain      []float32
	intBuf     *goaudio.IntBuffer

	closeOnce sync.Once
	closeErr  error
}

// New creates the output file, including missing parent directories.
func New(opts Options) (*Recorder, error) {
	switch opts.BitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d", ErrBitDepth, opts.BitDepth)
	}
	if opts.Channels <= 0 || opts.SampleRate <= 0 || opts.MaxFrames <= 0 {
		return nil, fmt.Errorf("invalid recording format: %d channels, %d Hz, %d frames",
			opts.Channels, opts.SampleRate, opts.MaxFrames)
	}

	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create recording directory: %w", err)
		}
	}
	file, err := os.Create(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}

	drain := make([]float32, opts.MaxFrames*opts.Channels)
	r := &Recorder{
		opts:       opts,
		file:       file,
		encoder:    wav.NewEncoder(file, opts.SampleRate, opts.BitDepth, opts.Channels, 1),
		ring:       ring.New[float32](opts.SampleRate * opts.Channels * ringSeconds),
		interleave: make([]float32, opts.MaxFrames*opts.Channels),
		drain:      drain,
		intBuf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: opts.Channels,
				SampleRate:  opts.SampleRate,
			},
			SourceBitDepth: opts.BitDepth,
			Data:           make([]int, len(drain)),
		},
	}
	recLog.Infof("Recording %d channels at %d Hz to %s", opts.Channels, opts.SampleRate, opts.Path)
	return r, nil
}

// Path returns the output file path.
func (r *Recorder) Path() string { return r.opts.Path }

// Dropped returns how many samples were lost because the ring was full.
func (r *Recorder) Dropped() uint64 { return r.ring.Dropped() }

// Capture interleaves one period of bus into the ring. Missing channels are
// written as silence.
func (r *Recorder) Capture(bus *audio.BusBuffer) {
	channels := r.opts.Channels
	frames := min(bus.Frames, r.opts.MaxFrames)
	out := r.interleave[:frames*channels]
	for ch := 0; ch < channels; ch++ {
		var src []float32
		if ch < len(bus.Channels) {
			src = bus.Channels[ch]
		}
		for f := 0; f < frames; f++ {
			var s float32
			if f < len(src) {
				s = src[f]
			}
			out[f*channels+ch] = s
		}
	}
	// Whole periods only, so the file never loses frame alignment.
	r.ring.WriteAll(out)
}

// Run drains the ring into the file until ctx is done, then flushes what is
// left and closes the file.
func (r *Recorder) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultDrainInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.flush(); err != nil {
				return errors.Join(err, r.Close())
			}
		case <-ctx.Done():
			if err := r.flush(); err != nil {
				return errors.Join(err, r.Close())
			}
			return r.Close()
		}
	}
}

// flush writes everything currently in the ring.
func (r *Recorder) flush() error {
	for {
		n := r.ring.Read(r.drain)
		if n == 0 {
			return nil
		}
		r.intBuf.Data = r.intBuf.Data[:n]
		scale := float64(int64(1)<<(r.opts.BitDepth-1) - 1)
		for i, s := range r.drain[:n] {
			r.intBuf.Data[i] = toInt(s, scale)
		}
		if err := r.encoder.Write(r.intBuf); err != nil {
			return fmt.Errorf("write recording: %w", err)
		}
	}
}

func toInt(s float32, scale float64) int {
	v := float64(s)
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int(math.Round(v * scale))
}

// Close finalizes the WAV header and closes the file. It is safe to call
// more than once.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		var errs []error
		if err := r.encoder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("finalize recording: %w", err))
		}
		if err := r.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close recording: %w", err))
		}
		r.closeErr = errors.Join(errs...)
		if dropped := r.Dropped(); dropped > 0 {
			recLog.Warnf("%d samples were dropped while recording %s", dropped, r.opts.Path)
		}
		recLog.Infof("Recording saved to %s", r.opts.Path)
	})
	return r.closeErr
}

// DefaultFileName returns a timestamped file name inside dir.
func DefaultFileName(dir string, now time.Time) string {
	return filepath.Join(dir, "recording-"+now.UTC().Format("02-01-2006-150405")+".wav")
}
