// SPDX-License-Identifier: MIT
package audio

import (
	"rtio/internal/metrics"
	"rtio/internal/server"
)

// bridge is the per-period callback. Ports are stored flat in bus order so
// the channel at position k of the flattened input buses always maps to
// audioIn[k]; no name lookups happen once the stream is running.
//
// The bridge owns every buffer it hands out. ctx is rebuilt from those at
// the start of each period, so whatever the handler does to the context is
// gone by the next callback.
//
// Performance Critical:
//   - No allocations, locks, or logging in process
//   - Diagnostics are counter increments only
type bridge struct {
	handler Processor

	audioIn  []server.Port
	audioOut []server.Port
	midiIn   []server.Port
	midiOut  []server.Port

	// inBufs and outBufs are what ctx points at. inChans and outChans are
	// per-bus working channel headers restored from the spawn-time copies
	// in inBase and outBase.
	inBufs, outBufs   []BusBuffer
	inChans, outChans [][][]float32
	inBase, outBase   [][][]float32

	midiInBufs, midiOutBufs []ControllerBuffer
	midiInBase, midiOutBase []ControllerBuffer

	ctx        ProcessContext
	sampleRate uint32
	maxFrames  int

	stats *metrics.Bridge
}

func newBridge(handler Processor, info StreamInfo, ports streamPorts, stats *metrics.Bridge) *bridge {
	maxFrames := int(info.MaxBufferSize)
	b := &bridge{
		handler:    handler,
		audioIn:    ports.audioIn,
		audioOut:   ports.audioOut,
		midiIn:     ports.midiIn,
		midiOut:    ports.midiOut,
		sampleRate: info.SampleRate,
		maxFrames:  maxFrames,
		stats:      stats,
	}
	b.inBufs, b.inChans, b.inBase = newBuses(info.AudioIn, maxFrames)
	b.outBufs, b.outChans, b.outBase = newBuses(info.AudioOut, maxFrames)
	b.midiInBufs, b.midiInBase = newControllers(len(info.MidiIn))
	b.midiOutBufs, b.midiOutBase = newControllers(len(info.MidiOut))
	b.reset()
	return b
}

func newBuses(buses []Bus, maxFrames int) ([]BusBuffer, [][][]float32, [][][]float32) {
	bufs := make([]BusBuffer, len(buses))
	chans := make([][][]float32, len(buses))
	base := make([][][]float32, len(buses))
	for i, bus := range buses {
		buf := NewBusBuffer(bus.Channels, maxFrames)
		base[i] = buf.Channels
		chans[i] = make([][]float32, bus.Channels)
		bufs[i] = buf
	}
	return bufs, chans, base
}

func newControllers(n int) ([]ControllerBuffer, []ControllerBuffer) {
	bufs := make([]ControllerBuffer, n)
	base := make([]ControllerBuffer, n)
	for i := range base {
		base[i] = NewControllerBuffer()
	}
	return bufs, base
}

// reset points ctx back at the bridge's buffers with empty channels and
// event lists.
func (b *bridge) reset() {
	restoreBuses(b.inBufs, b.inChans, b.inBase, b.maxFrames)
	restoreBuses(b.outBufs, b.outChans, b.outBase, b.maxFrames)
	copy(b.midiInBufs, b.midiInBase)
	copy(b.midiOutBufs, b.midiOutBase)
	b.ctx = ProcessContext{
		AudioIn:    b.inBufs,
		AudioOut:   b.outBufs,
		MidiIn:     b.midiInBufs,
		MidiOut:    b.midiOutBufs,
		SampleRate: b.sampleRate,
	}
}

func restoreBuses(bufs []BusBuffer, chans, base [][][]float32, maxFrames int) {
	for i := range bufs {
		copy(chans[i], base[i])
		bufs[i] = BusBuffer{Channels: chans[i], maxFrames: maxFrames}
	}
}

// process runs one period. It always lets the server continue.
func (b *bridge) process(nframes uint32) {
	b.stats.Periods.Inc()
	b.reset()

	frames := b.collectAudioInputs(nframes)

	if len(b.inBufs) == 0 {
		switch {
		case len(b.audioOut) > 0:
			frames = len(b.audioOut[0].AudioBuffer(nframes))
		default:
			frames = int(nframes)
		}
		if frames > b.maxFrames {
			b.stats.OversizedPeriods.Inc()
			frames = b.maxFrames
		}
	}

	for i := range b.outBufs {
		b.outBufs[i].ClearAndResize(frames)
	}

	b.collectMidiInputs(nframes)

	b.ctx.Frames = frames
	b.runHandler()

	b.writeAudioOutputs(nframes, frames)
	b.writeMidiOutputs(nframes)
}

func (b *bridge) collectAudioInputs(nframes uint32) int {
	frames := 0
	port := 0
	for i := range b.inBufs {
		bus := &b.inBufs[i]
		for ch := range bus.Channels {
			src := b.audioIn[port].AudioBuffer(nframes)
			if len(src) > b.maxFrames {
				b.stats.OversizedPeriods.Inc()
			}
			// fill never copies past the capacity reserved at spawn.
			frames = bus.fill(ch, src)
			port++
		}
		bus.Frames = frames
	}
	return frames
}

func (b *bridge) collectMidiInputs(nframes uint32) {
	for i := range b.midiInBufs {
		buf := &b.midiInBufs[i]
		port := b.midiIn[i]
		n := port.MidiEventCount(nframes)
		for e := 0; e < n; e++ {
			t, data, ok := port.MidiEventAt(nframes, e)
			if !ok {
				b.stats.MidiInDropped.Inc()
				continue
			}
			if err := buf.PushRaw(t, data); err != nil {
				b.stats.MidiInDropped.Inc()
			}
		}
	}
}

// runHandler calls the application. A panic is contained to the period:
// outputs are silenced and the server keeps running the stream.
func (b *bridge) runHandler() {
	defer func() {
		if r := recover(); r != nil {
			b.stats.ProcessPanics.Inc()
			frames := b.ctx.Frames
			b.reset()
			b.ctx.Frames = frames
			for i := range b.outBufs {
				b.outBufs[i].ClearAndResize(frames)
			}
		}
	}()
	b.handler.Process(&b.ctx)
}

// writeAudioOutputs copies the output buses to their ports. The port layout
// comes from the negotiated channel counts, not from what the handler left
// in the buffers; a missing or short channel counts as a short write.
func (b *bridge) writeAudioOutputs(nframes uint32, frames int) {
	port := 0
	for i := range b.outBufs {
		chans := b.outBufs[i].Channels
		for ch := range b.outChans[i] {
			dst := b.audioOut[port].AudioBuffer(nframes)
			port++
			if ch >= len(chans) {
				b.stats.ShortWrites.Inc()
				continue
			}
			src := chans[ch]
			n := min(len(src), len(dst))
			if n != frames {
				b.stats.ShortWrites.Inc()
			}
			copy(dst[:n], src[:n])
		}
	}
}

func (b *bridge) writeMidiOutputs(nframes uint32) {
	for i := range b.midiOutBufs {
		port := b.midiOut[i]
		port.ClearMidi(nframes)
		events := b.midiOutBufs[i].Events()
		for e := range events {
			ev := &events[e]
			if err := port.WriteMidi(nframes, ev.DeltaFrames, ev.Data()); err != nil {
				b.stats.MidiOutErrors.Inc()
			}
		}
	}
}
