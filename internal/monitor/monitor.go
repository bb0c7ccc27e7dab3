// SPDX-License-Identifier: MIT
/*
Package monitor is the processor behind the run command.

Per period it:
  - copies each input bus to the output bus with the same index, wrapping
    channels when the output bus is wider, unless the noise gate holds it
  - feeds the input buses to an optional level meter and the first input
    bus to an optional spectrum analyzer
  - hands one input bus to an optional WAV recorder
  - forwards MIDI input controller i to MIDI output controller i when thru
    is enabled, and queues every incoming MIDI event for logging

Everything that touches the file system, the network, or the logger runs on
other goroutines that drain what Process left behind.
*/
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rtio/internal/audio"
	applog "rtio/internal/log"
	"rtio/internal/meter"
	"rtio/internal/record"
	"rtio/internal/spectrum"
	"rtio/pkg/ring"
)

var monLog = applog.Named("monitor")

// midiLogCapacity is the number of MIDI events that can wait for the logger.
const midiLogCapacity = 1024

// Options select the optional stages.
type Options struct {
	// The gate is off unless Gate is set.
	Gate          bool
	GateThreshold float64

	Meter    bool
	MidiThru bool
	MidiLog  bool

	// Spectrum analyzes the first input bus with an FFT of SpectrumSize
	// points, spectrum.DefaultSize when zero.
	Spectrum     bool
	SpectrumSize int

	// Recording is enabled when RecordPath is set.
	RecordPath     string
	RecordBus      string
	RecordBitDepth int
}

// MidiLogEntry is one incoming MIDI event tagged with its controller.
type MidiLogEntry struct {
	Controller int
	Event      audio.MidiEvent
}

// Processor implements audio.Processor.
type Processor struct {
	opts Options
	info audio.StreamInfo

	gate      *Gate
	meter     *meter.Meter
	spectrum  *spectrum.Analyzer
	recorder  *record.Recorder
	recordBus int

	midiLog *ring.SPSC[MidiLogEntry]

	initErr error
}

// New returns a processor. The meter and recorder are built in Init, once
// the stream layout is known.
func New(opts Options) *Processor {
	p := &Processor{opts: opts, recordBus: -1}
	if opts.Gate {
		p.gate = NewGate(opts.GateThreshold)
	}
	if opts.MidiLog {
		p.midiLog = ring.New[MidiLogEntry](midiLogCapacity)
	}
	return p
}

// Init sizes the optional stages for the negotiated stream.
func (p *Processor) Init(info audio.StreamInfo) {
	p.info = info
	monLog.Infof("%s", info)

	if p.opts.Meter {
		p.meter = meter.New(info.AudioIn, int(info.MaxBufferSize))
	}

	if p.opts.Spectrum && len(info.AudioIn) > 0 {
		size := p.opts.SpectrumSize
		if size == 0 {
			size = spectrum.DefaultSize
		}
		a, err := spectrum.New(float64(info.SampleRate), size, int(info.MaxBufferSize))
		if err != nil {
			monLog.Errorf("spectrum disabled: %v", err)
			p.initErr = err
		} else {
			p.spectrum = a
		}
	}

	if p.opts.RecordPath != "" {
		if err := p.initRecorder(info); err != nil {
			monLog.Errorf("recording disabled: %v", err)
			p.initErr = errors.Join(p.initErr, err)
		}
	}
}

func (p *Processor) initRecorder(info audio.StreamInfo) error {
	idx := -1
	for i, b := range info.AudioIn {
		if b.ID == p.opts.RecordBus || (p.opts.RecordBus == "" && i == 0) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("no input bus %q to record", p.opts.RecordBus)
	}
	bitDepth := p.opts.RecordBitDepth
	if bitDepth == 0 {
		bitDepth = 24
	}
	rec, err := record.New(record.Options{
		Path:       p.opts.RecordPath,
		SampleRate: int(info.SampleRate),
		Channels:   info.AudioIn[idx].Channels,
		BitDepth:   bitDepth,
		MaxFrames:  int(info.MaxBufferSize),
	})
	if err != nil {
		return err
	}
	p.recorder = rec
	p.recordBus = idx
	return nil
}

// InitErr returns the error that disabled a stage during Init, if any.
func (p *Processor) InitErr() error { return p.initErr }

// Gate returns the noise gate, or nil when it is off.
func (p *Processor) Gate() *Gate { return p.gate }

// Meter returns the level meter, or nil when metering is off.
func (p *Processor) Meter() *meter.Meter { return p.meter }

// Spectrum returns the spectrum analyzer, or nil when it is off.
func (p *Processor) Spectrum() *spectrum.Analyzer { return p.spectrum }

// Recorder returns the recorder, or nil when recording is off.
func (p *Processor) Recorder() *record.Recorder { return p.recorder }

// Process runs on the real-time thread.
func (p *Processor) Process(ctx *audio.ProcessContext) {
	for i := range ctx.AudioOut {
		if i == len(ctx.AudioIn) {
			break
		}
		in, out := &ctx.AudioIn[i], &ctx.AudioOut[i]
		if len(in.Channels) == 0 || (p.gate != nil && !p.gate.Open(in)) {
			continue
		}
		for ch := range out.Channels {
			copy(out.Channels[ch], in.Channels[ch%len(in.Channels)])
		}
	}

	if p.meter != nil {
		p.meter.Process(ctx.AudioIn)
	}
	if p.spectrum != nil && len(ctx.AudioIn) > 0 {
		p.spectrum.Capture(&ctx.AudioIn[0])
	}
	if p.recorder != nil && p.recordBus < len(ctx.AudioIn) {
		p.recorder.Capture(&ctx.AudioIn[p.recordBus])
	}

	for i := range ctx.MidiIn {
		events := ctx.MidiIn[i].Events()
		for e := range events {
			ev := &events[e]
			if p.midiLog != nil {
				p.midiLog.Push(MidiLogEntry{Controller: i, Event: *ev})
			}
			if p.opts.MidiThru && i < len(ctx.MidiOut) {
				// A full output buffer drops the event.
				_ = ctx.MidiOut[i].Push(ev)
			}
		}
	}
}

// DrainMidi passes queued MIDI events to fn and returns how many there were.
func (p *Processor) DrainMidi(fn func(MidiLogEntry)) int {
	if p.midiLog == nil {
		return 0
	}
	n := 0
	for {
		e, ok := p.midiLog.Pop()
		if !ok {
			return n
		}
		fn(e)
		n++
	}
}

// MidiDropped returns how many events were lost because the log queue was full.
func (p *Processor) MidiDropped() uint64 {
	if p.midiLog == nil {
		return 0
	}
	return p.midiLog.Dropped()
}

// LogMidi prints queued MIDI events every interval until ctx is done.
func (p *Processor) LogMidi(ctx context.Context, interval time.Duration) error {
	if p.midiLog == nil {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logEntry := func(e MidiLogEntry) {
		name := fmt.Sprint(e.Controller)
		if e.Controller < len(p.info.MidiIn) {
			name = p.info.MidiIn[e.Controller].ID
		}
		monLog.Infof("%s @%d: %s", name, e.Event.DeltaFrames, e.Event.Message())
	}
	for {
		select {
		case <-ticker.C:
			p.DrainMidi(logEntry)
		case <-ctx.Done():
			p.DrainMidi(logEntry)
			return nil
		}
	}
}

var _ audio.Processor = (*Processor)(nil)
