// SPDX-License-Identifier: MIT
package audio

import (
	"errors"

	"gitlab.com/gomidi/midi/v2"
)

const (
	// MidiBufferCapacity is the number of events a controller buffer holds
	// per period.
	MidiBufferCapacity = 256
	// MaxMidiEventSize bounds the payload stored inline in a MidiEvent.
	MaxMidiEventSize = 64
)

// Push errors. They are package values so the real-time path can return
// them without allocating.
var (
	ErrMidiBufferFull    = errors.New("midi buffer full")
	ErrMalformedMidi     = errors.New("malformed midi message")
	ErrMidiEventTooLarge = errors.New("midi event too large")
	ErrMidiOutOfOrder    = errors.New("midi event out of order")
)

// MidiEvent is a raw MIDI message stamped with its offset in frames from
// the start of the period.
type MidiEvent struct {
	DeltaFrames uint32

	size uint8
	data [MaxMidiEventSize]byte
}

// NewMidiEvent validates data and copies it into an event.
func NewMidiEvent(deltaFrames uint32, data []byte) (MidiEvent, error) {
	var ev MidiEvent
	if err := ev.set(deltaFrames, data); err != nil {
		return MidiEvent{}, err
	}
	return ev, nil
}

// Data returns the message bytes. The slice aliases the event.
func (e *MidiEvent) Data() []byte { return e.data[:e.size] }

// Message returns the payload as a gomidi message for inspection.
func (e *MidiEvent) Message() midi.Message { return midi.Message(e.Data()) }

func (e *MidiEvent) set(deltaFrames uint32, data []byte) error {
	if len(data) > MaxMidiEventSize {
		return ErrMidiEventTooLarge
	}
	if !validMidi(data) {
		return ErrMalformedMidi
	}
	e.DeltaFrames = deltaFrames
	e.size = uint8(copy(e.data[:], data))
	return nil
}

// ControllerBuffer is a fixed-capacity, time-ordered list of MIDI events for
// one controller. It is cleared and refilled every period.
type ControllerBuffer struct {
	events []MidiEvent
}

// NewControllerBuffer allocates a buffer of MidiBufferCapacity events.
func NewControllerBuffer() ControllerBuffer {
	return ControllerBuffer{events: make([]MidiEvent, 0, MidiBufferCapacity)}
}

// Clear removes every event.
func (b *ControllerBuffer) Clear() { b.events = b.events[:0] }

// Len returns the number of buffered events.
func (b *ControllerBuffer) Len() int { return len(b.events) }

// Cap returns the maximum number of events.
func (b *ControllerBuffer) Cap() int { return cap(b.events) }

// Events returns the buffered events in time order. The slice aliases the
// buffer.
func (b *ControllerBuffer) Events() []MidiEvent { return b.events }

// PushRaw appends an event. On error the buffer is unchanged and the event is
// dropped.
func (b *ControllerBuffer) PushRaw(deltaFrames uint32, data []byte) error {
	n := len(b.events)
	if n == cap(b.events) {
		return ErrMidiBufferFull
	}
	if n > 0 && deltaFrames < b.events[n-1].DeltaFrames {
		return ErrMidiOutOfOrder
	}
	b.events = b.events[:n+1]
	if err := b.events[n].set(deltaFrames, data); err != nil {
		b.events = b.events[:n]
		return err
	}
	return nil
}

// Push appends a copy of ev.
func (b *ControllerBuffer) Push(ev *MidiEvent) error {
	return b.PushRaw(ev.DeltaFrames, ev.Data())
}

// validMidi checks framing: a status byte, the number of data bytes the
// status implies, and data bytes below 0x80. System exclusive messages must
// be terminated by 0xF7.
func validMidi(data []byte) bool {
	if len(data) == 0 || data[0] < 0x80 {
		return false
	}
	status := data[0]
	if status == 0xF0 {
		if len(data) < 2 || data[len(data)-1] != 0xF7 {
			return false
		}
		return dataBytes(data[1 : len(data)-1])
	}
	want := messageLen(status)
	if want == 0 || len(data) != want || !dataBytes(data[1:]) {
		return false
	}
	return midi.Message(data).Type() != midi.UnknownMsg
}

func messageLen(status byte) int {
	switch status & 0xF0 {
	case 0x80, 0x90, 0xA0, 0xB0, 0xE0:
		return 3
	case 0xC0, 0xD0:
		return 2
	}
	switch status {
	case 0xF1, 0xF3:
		return 2
	case 0xF2:
		return 3
	case 0xF6, 0xF8, 0xFA, 0xFB, 0xFC, 0xFE, 0xFF:
		return 1
	}
	return 0
}

func dataBytes(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}
