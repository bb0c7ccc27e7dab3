// SPDX-License-Identifier: MIT
/*
Package audio bridges an application's processing callback to a port-graph
audio server.

Flow:
  - DiscoverAudio / DiscoverMidi probe the server with a throwaway client.
  - Spawn validates a Config, registers client ports, activates the real-time
    bridge together with the lifecycle notifier, and auto-connects ports.
  - The bridge copies port buffers into pre-allocated bus and controller
    buffers, calls Processor.Process, and copies the outputs back.
  - Stream.Close deactivates the callback and unregisters every client port.

Thread Safety:
  - Process runs on the server's real-time thread and must not allocate,
    block, or log.
  - FatalErrorHandler runs on the server's notification thread.
  - Discovery, Spawn and Close run on the caller's goroutine.
*/
package audio

import "fmt"

// Names the bridge reports for the JACK backend.
const (
	ServerName        = "Jack"
	DeviceName        = "Jack Device"
	DefaultClientName = "rtio"
)

// BufferSizeRange is the inclusive range of period sizes a device supports.
type BufferSizeRange struct {
	Min uint32
	Max uint32
}

// DeviceInfo describes one audio device. Port lists are in server order.
type DeviceInfo struct {
	Name     string
	InPorts  []string
	OutPorts []string

	SampleRates     []uint32
	BufferSizeRange BufferSizeRange

	DefaultInPort          int
	DefaultOutPortLeft     int
	DefaultOutPortRight    int
	DefaultSampleRateIndex int
	DefaultBufferSize      uint32
}

// ServerInfo is the result of audio discovery.
type ServerInfo struct {
	Name      string
	Available bool
	Devices   []DeviceInfo
}

// MidiDeviceInfo names one MIDI port.
type MidiDeviceInfo struct {
	Name string
}

// MidiServerInfo is the result of MIDI discovery.
type MidiServerInfo struct {
	Name          string
	Available     bool
	InDevices     []MidiDeviceInfo
	OutDevices    []MidiDeviceInfo
	DefaultInPort int
}

// BusConfig requests one bus bound to an ordered list of system ports.
type BusConfig struct {
	ID          string
	SystemPorts []string
}

// ControllerConfig requests one MIDI controller bound to a system port.
type ControllerConfig struct {
	ID         string
	SystemPort string
}

// Config is the stream configuration consumed by Spawn.
type Config struct {
	AudioIn  []BusConfig
	AudioOut []BusConfig
	MidiIn   []ControllerConfig
	MidiOut  []ControllerConfig

	// MidiServer gates MIDI registration: controllers are only registered
	// when it names this backend (ServerName).
	MidiServer string
}

// Bus is a negotiated group of ports treated as one multi-channel unit.
type Bus struct {
	ID    string
	Index int

	SystemDevice           string
	SystemHalfDuplexDevice string
	SystemPorts            []string

	Channels int
}

// Controller is a negotiated MIDI port binding.
type Controller struct {
	ID         string
	Index      int
	SystemPort string
}

// StreamInfo describes an active stream. It does not change while the
// stream lives.
type StreamInfo struct {
	ServerName    string
	AudioIn       []Bus
	AudioOut      []Bus
	MidiIn        []Controller
	MidiOut       []Controller
	SampleRate    uint32
	MaxBufferSize uint32
}

func (s StreamInfo) String() string {
	return fmt.Sprintf("%s stream: %d Hz, max %d frames, audio %d in / %d out, midi %d in / %d out",
		s.ServerName, s.SampleRate, s.MaxBufferSize,
		len(s.AudioIn), len(s.AudioOut), len(s.MidiIn), len(s.MidiOut))
}

// ProcessContext is the per-period view handed to Processor.Process. It is
// owned by the bridge and reused every period; do not retain it or any slice
// reached through it after Process returns.
type ProcessContext struct {
	// AudioIn and MidiIn are read-only.
	AudioIn  []BusBuffer
	AudioOut []BusBuffer
	MidiIn   []ControllerBuffer
	MidiOut  []ControllerBuffer

	Frames     int
	SampleRate uint32
}

// Processor is implemented by the application.
type Processor interface {
	// Init is called once on the caller's goroutine before the stream
	// becomes active. It may allocate.
	Init(info StreamInfo)
	// Process is called once per period on the real-time thread.
	Process(ctx *ProcessContext)
}

// FatalReason is the coarse classification of a fatal stream error.
type FatalReason int

const (
	ReasonServerDisconnected FatalReason = iota
	ReasonOther
)

func (r FatalReason) String() string {
	if r == ReasonServerDisconnected {
		return "audio server disconnected"
	}
	return "fatal stream error"
}

// FatalStreamError is delivered at most once per stream.
type FatalStreamError struct {
	Reason      FatalReason
	Description string
}

func (e FatalStreamError) Error() string {
	return e.Reason.String() + ": " + e.Description
}

// FatalErrorHandler is called from the server's notification thread. It
// must not block.
type FatalErrorHandler interface {
	FatalStreamError(err FatalStreamError)
}

// FatalErrorFunc adapts a function to FatalErrorHandler.
type FatalErrorFunc func(err FatalStreamError)

func (f FatalErrorFunc) FatalStreamError(err FatalStreamError) { f(err) }
