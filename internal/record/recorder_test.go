// SPDX-License-Identifier: MIT
package record

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rtio/internal/audio"

	"github.com/go-audio/wav"
)

func newTestRecorder(t *testing.T, bitDepth int) *Recorder {
	t.Helper()
	path := filepath.Join(t.TempDir(), "takes", "test.wav")
	r, err := New(Options{Path: path, SampleRate: 48000, Channels: 2, BitDepth: bitDepth, MaxFrames: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRecorderWritesInterleavedWav(t *testing.T) {
	r := newTestRecorder(t, 16)

	bus := audio.NewBusBuffer(2, 64)
	for period := 0; period < 3; period++ {
		bus.ClearAndResize(4)
		for f := 0; f < 4; f++ {
			bus.Channels[0][f] = 0.5
			bus.Channels[1][f] = -0.5
		}
		r.Capture(&bus)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx, time.Hour); err != nil {
		t.Fatalf("Run: %v", err)
	}

	f, err := os.Open(r.Path())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		t.Fatal("recording is not a valid WAV file")
	}
	if d.SampleRate != 48000 || d.NumChans != 2 || d.BitDepth != 16 {
		t.Errorf("format = %d Hz %d ch %d bit", d.SampleRate, d.NumChans, d.BitDepth)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}
	if len(buf.Data) != 3*4*2 {
		t.Fatalf("got %d samples, want %d", len(buf.Data), 3*4*2)
	}
	for i, s := range buf.Data {
		want := 16384
		if i%2 == 1 {
			want = -16384
		}
		if s != want {
			t.Errorf("sample %d = %d, want %d", i, s, want)
		}
	}
	if r.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0", r.Dropped())
	}
}

func TestRecorderPadsMissingChannels(t *testing.T) {
	r := newTestRecorder(t, 16)
	mono := audio.NewBusBuffer(1, 64)
	mono.ClearAndResize(2)
	mono.Channels[0][0] = 1

	r.Capture(&mono)
	got := make([]float32, 8)
	n := r.ring.Read(got)
	if n != 4 {
		t.Fatalf("read %d samples, want 4", n)
	}
	want := []float32{1, 0, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRecorderCaptureDoesNotAllocate(t *testing.T) {
	r := newTestRecorder(t, 24)
	defer r.Close()
	bus := audio.NewBusBuffer(2, 64)
	bus.ClearAndResize(64)
	allocs := testing.AllocsPerRun(100, func() {
		r.Capture(&bus)
		r.ring.Read(r.drain)
	})
	if allocs > 0 {
		t.Errorf("expected zero allocations, got %.1f", allocs)
	}
}

func TestNewRejectsBadFormat(t *testing.T) {
	dir := t.TempDir()
	_, err := New(Options{Path: filepath.Join(dir, "a.wav"), SampleRate: 48000, Channels: 2, BitDepth: 12, MaxFrames: 64})
	if !errors.Is(err, ErrBitDepth) {
		t.Errorf("error = %v, want %v", err, ErrBitDepth)
	}
	_, err = New(Options{Path: filepath.Join(dir, "b.wav"), SampleRate: 48000, Channels: 0, BitDepth: 16, MaxFrames: 64})
	if err == nil {
		t.Error("expected an error for zero channels")
	}
}

func TestToIntClamps(t *testing.T) {
	tests := []struct {
		in   float32
		want int
	}{
		{0, 0},
		{1, 32767},
		{2, 32767},
		{-1, -32767},
		{-3, -32767},
	}
	for _, tt := range tests {
		if got := toInt(tt.in, 32767); got != tt.want {
			t.Errorf("toInt(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDefaultFileName(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	got := DefaultFileName("takes", now)
	if got != filepath.Join("takes", "recording-09-03-2024-140507.wav") {
		t.Errorf("DefaultFileName = %q", got)
	}
	if !strings.HasSuffix(got, ".wav") {
		t.Error("missing .wav extension")
	}
}
