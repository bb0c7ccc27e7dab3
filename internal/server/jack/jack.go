// SPDX-License-Identifier: MIT
// Package jack implements server.Client on top of libjack.
package jack

import (
	"errors"
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"rtio/internal/server"

	"github.com/xthexder/go-jack"
)

// ErrMidiWrite is returned when libjack rejects a MIDI event. It is a
// package-level value so the real-time path never allocates an error.
var ErrMidiWrite = errors.New("jack: midi event write failed")

// Dial opens a JACK client. It never starts a server.
func Dial(clientName string) (server.Client, error) {
	c, status := jack.ClientOpen(clientName, jack.NoStartServer)
	if c == nil {
		return nil, fmt.Errorf("%w: %v", server.ErrUnavailable, jack.StrError(status))
	}
	return &client{c: c}, nil
}

var _ server.Dialer = Dial

type client struct {
	c *jack.Client

	mu     sync.Mutex
	active bool
	closed bool
}

func (c *client) Name() string       { return c.c.GetName() }
func (c *client) SampleRate() uint32 { return c.c.GetSampleRate() }
func (c *client) BufferSize() uint32 { return c.c.GetBufferSize() }

func (c *client) Ports(kind server.Kind, dir server.Direction) []string {
	return c.c.GetPorts("", kind.String(), flags(dir))
}

func (c *client) RegisterPort(shortName string, kind server.Kind, dir server.Direction) (server.Port, error) {
	p := c.c.PortRegister(shortName, kind.String(), flags(dir), 0)
	if p == nil {
		return nil, fmt.Errorf("jack: failed to register port %q", shortName)
	}
	return &port{p: p, name: p.GetName()}, nil
}

func (c *client) UnregisterPort(p server.Port) error {
	jp, ok := p.(*port)
	if !ok {
		return fmt.Errorf("jack: foreign port %q", p.Name())
	}
	if code := c.c.PortUnregister(jp.p); code != 0 {
		return fmt.Errorf("jack: unregister %q: %v", jp.name, jack.StrError(code))
	}
	return nil
}

func (c *client) Activate(process server.ProcessFunc, notify server.NotificationHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return server.ErrClosed
	}

	if code := c.c.SetProcessCallback(func(nframes uint32) int {
		process(nframes)
		return 0
	}); code != 0 {
		return fmt.Errorf("jack: set process callback: %v", jack.StrError(code))
	}

	// libjack's info-shutdown status and reason are not exposed by the binding.
	c.c.OnShutdown(func() {
		notify.Shutdown("unknown", "server shut down the client")
	})
	c.c.SetSampleRateCallback(func(rate uint32) int {
		notify.SampleRate(rate)
		return 0
	})
	c.c.SetPortRegistrationCallback(func(id jack.PortId, registered bool) {
		notify.PortRegistration(uint32(id), registered)
	})
	c.c.SetPortRenameCallback(func(id jack.PortId, oldName, newName string) {
		notify.PortRename(uint32(id), oldName, newName)
	})
	c.c.SetPortConnectCallback(func(a, b jack.PortId, connected bool) {
		notify.PortsConnected(uint32(a), uint32(b), connected)
	})
	c.c.SetXRunCallback(xrunCallback(notify))

	if code := c.c.Activate(); code != 0 {
		return fmt.Errorf("jack: activate: %v", jack.StrError(code))
	}
	c.active = true
	notify.ThreadInit()
	return nil
}

func (c *client) Deactivate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return nil
	}
	c.active = false
	if code := c.c.Deactivate(); code != 0 {
		return fmt.Errorf("jack: deactivate: %v", jack.StrError(code))
	}
	return nil
}

func (c *client) Connect(src, dst string) error {
	code := c.c.Connect(src, dst)
	if code == 0 || code == int(syscall.EEXIST) {
		return nil
	}
	return fmt.Errorf("jack: connect %s -> %s: %v", src, dst, jack.StrError(code))
}

func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.active = false
	if code := c.c.Close(); code != 0 {
		return fmt.Errorf("jack: close: %v", jack.StrError(code))
	}
	return nil
}

type port struct {
	p    *jack.Port
	name string

	in     midiReader
	out    jack.MidiData
	outBuf jack.MidiBuffer
}

func (p *port) Name() string { return p.name }

func (p *port) AudioBuffer(frames uint32) []float32 {
	buf := p.p.GetBuffer(frames)
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&buf[0])), len(buf))
}

// MidiEventCount reads the event count straight from the port buffer;
// go-jack's GetMidiEvents copies every event onto the heap.
func (p *port) MidiEventCount(frames uint32) int {
	if frames == 0 {
		return p.in.reset(nil)
	}
	buf := p.p.GetBuffer(frames)
	return p.in.reset(unsafe.Pointer(unsafe.SliceData(buf)))
}

func (p *port) MidiEventAt(frames uint32, i int) (uint32, []byte, bool) {
	return p.in.at(i)
}

func (p *port) ClearMidi(frames uint32) {
	p.outBuf = p.p.MidiClearBuffer(frames)
}

func (p *port) WriteMidi(frames uint32, time uint32, data []byte) error {
	if p.outBuf == nil || len(data) == 0 {
		return ErrMidiWrite
	}
	p.out.Time = time
	p.out.Buffer = data
	code := p.p.MidiEventWrite(&p.out, p.outBuf)
	p.out.Buffer = nil
	if code != 0 {
		return ErrMidiWrite
	}
	return nil
}

func xrunCallback(notify server.NotificationHandler) jack.XRunCallback {
	return func() int {
		notify.XRun()
		return 0
	}
}

func flags(dir server.Direction) uint64 {
	if dir == server.Output {
		return uint64(jack.PortIsOutput)
	}
	return uint64(jack.PortIsInput)
}
