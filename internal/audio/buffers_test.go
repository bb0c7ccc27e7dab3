// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"testing"
)

func TestNewBusBuffer(t *testing.T) {
	b := NewBusBuffer(2, 128)
	if b.NumChannels() != 2 {
		t.Fatalf("NumChannels = %d, want 2", b.NumChannels())
	}
	for i, ch := range b.Channels {
		if len(ch) != 0 || cap(ch) != 128 {
			t.Errorf("channel %d: len %d cap %d, want 0/128", i, len(ch), cap(ch))
		}
	}
}

func TestBusBufferClearAndResize(t *testing.T) {
	tests := []struct {
		name   string
		frames int
		want   int
	}{
		{"Within capacity", 64, 64},
		{"Exact capacity", 128, 128},
		{"Past capacity clamps", 4096, 128},
		{"Negative clamps to zero", -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBusBuffer(2, 128)
			b.Channels[0] = b.Channels[0][:10]
			b.Channels[0][3] = 0.75

			got := b.ClearAndResize(tt.frames)
			if got != tt.want || b.Frames != tt.want {
				t.Fatalf("ClearAndResize(%d) = %d (Frames %d), want %d", tt.frames, got, b.Frames, tt.want)
			}
			for i, ch := range b.Channels {
				if len(ch) != tt.want {
					t.Errorf("channel %d len = %d, want %d", i, len(ch), tt.want)
				}
				for j, s := range ch {
					if s != 0 {
						t.Errorf("channel %d sample %d = %v, want 0", i, j, s)
					}
				}
			}
		})
	}
}

func TestBusBufferChannelsDoNotOverlap(t *testing.T) {
	b := NewBusBuffer(2, 4)
	b.ClearAndResize(4)
	b.Channels[1][0] = 9

	// Appending past capacity must reallocate rather than write into channel 1.
	grown := append(b.Channels[0], 1)
	grown[0] = 5
	if b.Channels[1][0] != 9 {
		t.Errorf("append on channel 0 overwrote channel 1: %v", b.Channels[1][0])
	}
}

func TestBusBufferFillClampsToCapacity(t *testing.T) {
	b := NewBusBuffer(1, 4)
	src := []float32{1, 2, 3, 4, 5, 6}
	if n := b.fill(0, src); n != 4 {
		t.Fatalf("fill = %d, want 4", n)
	}
	want := []float32{1, 2, 3, 4}
	for i, s := range b.Channels[0] {
		if s != want[i] {
			t.Errorf("sample %d = %v, want %v", i, s, want[i])
		}
	}
}

func TestControllerBufferPushRaw(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"Note on", []byte{0x90, 60, 100}, nil},
		{"Program change", []byte{0xC0, 5}, nil},
		{"Timing clock", []byte{0xF8}, nil},
		{"Sysex", []byte{0xF0, 0x7E, 0x01, 0xF7}, nil},
		{"Empty", nil, ErrMalformedMidi},
		{"Running status", []byte{60, 100}, ErrMalformedMidi},
		{"Truncated note on", []byte{0x90, 60}, ErrMalformedMidi},
		{"Data byte out of range", []byte{0x90, 0x80, 100}, ErrMalformedMidi},
		{"Unterminated sysex", []byte{0xF0, 0x01, 0x02}, ErrMalformedMidi},
		{"Undefined status", []byte{0xF4}, ErrMalformedMidi},
		{"Too large", append(append([]byte{0xF0}, make([]byte, MaxMidiEventSize)...), 0xF7), ErrMidiEventTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewControllerBuffer()
			err := b.PushRaw(3, tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("PushRaw error = %v, want %v", err, tt.wantErr)
			}
			wantLen := 1
			if tt.wantErr != nil {
				wantLen = 0
			}
			if b.Len() != wantLen {
				t.Errorf("Len = %d, want %d", b.Len(), wantLen)
			}
		})
	}
}

func TestControllerBufferOrderingAndCapacity(t *testing.T) {
	b := NewControllerBuffer()
	if err := b.PushRaw(10, []byte{0x90, 60, 100}); err != nil {
		t.Fatal(err)
	}
	if err := b.PushRaw(5, []byte{0x80, 60, 0}); !errors.Is(err, ErrMidiOutOfOrder) {
		t.Errorf("out of order push error = %v, want %v", err, ErrMidiOutOfOrder)
	}

	b.Clear()
	for i := 0; i < b.Cap(); i++ {
		if err := b.PushRaw(uint32(i), []byte{0x90, byte(i % 128), 1}); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if err := b.PushRaw(uint32(b.Cap()), []byte{0x90, 1, 1}); !errors.Is(err, ErrMidiBufferFull) {
		t.Errorf("push past capacity error = %v, want %v", err, ErrMidiBufferFull)
	}
	if b.Len() != MidiBufferCapacity {
		t.Errorf("Len = %d, want %d", b.Len(), MidiBufferCapacity)
	}
	ev := &b.Events()[7]
	if ev.DeltaFrames != 7 || ev.Data()[1] != 7 {
		t.Errorf("event 7 = %d %v", ev.DeltaFrames, ev.Data())
	}
}

func TestControllerBufferPushRawDoesNotAllocate(t *testing.T) {
	b := NewControllerBuffer()
	msg := []byte{0x90, 60, 100}
	allocs := testing.AllocsPerRun(100, func() {
		b.Clear()
		for i := 0; i < 16; i++ {
			_ = b.PushRaw(uint32(i), msg)
		}
	})
	if allocs > 0 {
		t.Errorf("expected zero allocations pushing midi events, got %.1f", allocs)
	}
}

func TestNewMidiEvent(t *testing.T) {
	ev, err := NewMidiEvent(12, []byte{0xB0, 7, 127})
	if err != nil {
		t.Fatal(err)
	}
	if ev.DeltaFrames != 12 || len(ev.Data()) != 3 {
		t.Errorf("unexpected event %d %v", ev.DeltaFrames, ev.Data())
	}
	if _, err := NewMidiEvent(0, []byte{0x12}); !errors.Is(err, ErrMalformedMidi) {
		t.Errorf("error = %v, want %v", err, ErrMalformedMidi)
	}
}
