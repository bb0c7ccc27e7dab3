// SPDX-License-Identifier: MIT
/*
Package server describes the port-graph audio server the bridge talks to.

The interfaces mirror the subset of the JACK client protocol the bridge needs:
client registration, port registration and listing, named connections, a single
activation call that installs the real-time process callback together with the
notification handler, and per-period access to port buffers.

Port methods are called from the server's real-time thread. Implementations
must not allocate or block in them.
*/
package server

import "errors"

// Port type strings used by JACK.
const (
	AudioType = "32 bit float mono audio"
	MidiType  = "8 bit raw midi"
)

// Conventional names of the server's system ports.
const (
	SystemCapture1     = "system:capture_1"
	SystemPlayback1    = "system:playback_1"
	SystemPlayback2    = "system:playback_2"
	SystemMidiCapture2 = "system:midi_capture_2"
)

// Kind selects audio or MIDI ports.
type Kind int

const (
	Audio Kind = iota
	Midi
)

// String returns the server-side port type string for the kind.
func (k Kind) String() string {
	if k == Midi {
		return MidiType
	}
	return AudioType
}

// Direction follows the server's convention: an Input port receives data,
// an Output port produces it. System capture ports are therefore Outputs.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// LatencyMode tells which latency direction changed.
type LatencyMode int

const (
	CaptureLatency LatencyMode = iota
	PlaybackLatency
)

func (m LatencyMode) String() string {
	if m == PlaybackLatency {
		return "playback"
	}
	return "capture"
}

var (
	// ErrUnavailable is returned by a Dialer when the server cannot be reached.
	ErrUnavailable = errors.New("server unavailable")
	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("client closed")
)

// Port is a registered client port.
type Port interface {
	// Name returns the full "client:port" name.
	Name() string

	// AudioBuffer returns the port's sample buffer for the current period.
	AudioBuffer(frames uint32) []float32

	// MidiEventCount returns the number of events delivered to a MIDI input
	// port this period.
	MidiEventCount(frames uint32) int
	// MidiEventAt returns the i-th event of the current period. The returned
	// slice is only valid until the callback returns.
	MidiEventAt(frames uint32, i int) (time uint32, data []byte, ok bool)

	// ClearMidi empties a MIDI output port for the current period.
	ClearMidi(frames uint32)
	// WriteMidi appends an event to a MIDI output port for the current period.
	WriteMidi(frames uint32, time uint32, data []byte) error
}

// ProcessFunc is called once per period on the real-time thread.
type ProcessFunc func(frames uint32)

// NotificationHandler receives asynchronous server events. It is invoked on
// the server's notification thread, never the real-time thread.
type NotificationHandler interface {
	ThreadInit()
	Shutdown(status, reason string)
	Freewheel(enabled bool)
	SampleRate(rate uint32)
	ClientRegistration(name string, registered bool)
	PortRegistration(id uint32, registered bool)
	PortRename(id uint32, oldName, newName string)
	PortsConnected(a, b uint32, connected bool)
	GraphReorder()
	XRun()
	Latency(mode LatencyMode)
}

// Client is one registration with the server.
type Client interface {
	Name() string
	SampleRate() uint32
	BufferSize() uint32

	// Ports lists port names of the given kind and direction across all
	// clients in graph order.
	Ports(kind Kind, dir Direction) []string

	RegisterPort(shortName string, kind Kind, dir Direction) (Port, error)
	UnregisterPort(p Port) error

	// Activate installs the process callback and the notification handler
	// together and starts processing.
	Activate(process ProcessFunc, notify NotificationHandler) error
	// Deactivate stops processing and returns once the server confirms that
	// no further process callbacks will run.
	Deactivate() error

	// Connect connects a source (output) port to a destination (input) port.
	Connect(src, dst string) error

	Close() error
}

// Dialer opens a client with the given name.
type Dialer func(clientName string) (Client, error)
