// SPDX-License-Identifier: MIT
package jack

/*
#cgo linux LDFLAGS: -ljack
#cgo darwin LDFLAGS: -ljack
#include <jack/midiport.h>
*/
import "C"

import "unsafe"

// midiReader reads a MIDI input port buffer in place. Event data aliases
// the JACK buffer and is only valid until the process callback returns.
type midiReader struct {
	buf unsafe.Pointer
	ev  C.jack_midi_event_t
}

// reset points the reader at this period's port buffer and returns the
// number of events in it.
func (r *midiReader) reset(buf unsafe.Pointer) int {
	r.buf = buf
	if buf == nil {
		return 0
	}
	return int(C.jack_midi_get_event_count(buf))
}

func (r *midiReader) at(i int) (uint32, []byte, bool) {
	if r.buf == nil || i < 0 {
		return 0, nil, false
	}
	if C.jack_midi_event_get(&r.ev, r.buf, C.uint32_t(i)) != 0 {
		return 0, nil, false
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(r.ev.buffer)), int(r.ev.size))
	return uint32(r.ev.time), data, true
}
