// SPDX-License-Identifier: MIT
/*
Package servertest provides an in-memory port-graph server for tests.

The graph follows JACK's buffer model: an input port connected to exactly one
source reads the source's buffer, an unconnected input port reads silence.
Periods are driven explicitly with RunPeriod, which runs every active client's
process callback while holding the server lock, so Deactivate blocks until the
running period has finished.
*/
package servertest

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"rtio/internal/server"
)

// MaxFrames is the capacity of every port buffer. It is larger than any
// advertised buffer size so tests can drive oversized periods.
const MaxFrames = 8192

const (
	maxMidiEvents   = 1024
	midiPoolBytes   = 1 << 16
	systemClientTag = "system"
)

var (
	errMidiTime = errors.New("servertest: midi event time out of order or out of range")
	errMidiFull = errors.New("servertest: midi port buffer full")
)

// Server is an in-memory audio server.
type Server struct {
	mu          sync.Mutex
	reachable   bool
	sampleRate  uint32
	bufferSize  uint32
	ports       []*Port
	clients     []*Client
	failConnect map[string]error
	failActive  error
}

// New returns a reachable server with no ports.
func New(sampleRate, bufferSize uint32) *Server {
	return &Server{
		reachable:   true,
		sampleRate:  sampleRate,
		bufferSize:  bufferSize,
		failConnect: make(map[string]error),
	}
}

// NewSystem returns a 48kHz/256 server with the usual stereo system ports,
// a MIDI through port and one hardware MIDI port.
func NewSystem() *Server {
	s := New(48000, 256)
	s.AddSystemPort("capture_1", server.Audio, server.Output)
	s.AddSystemPort("capture_2", server.Audio, server.Output)
	s.AddSystemPort("playback_1", server.Audio, server.Input)
	s.AddSystemPort("playback_2", server.Audio, server.Input)
	s.AddSystemPort("midi_capture_1", server.Midi, server.Output)
	s.AddSystemPort("midi_capture_2", server.Midi, server.Output)
	s.AddSystemPort("midi_playback_1", server.Midi, server.Input)
	return s
}

// SetReachable controls whether Dial succeeds.
func (s *Server) SetReachable(ok bool) {
	s.mu.Lock()
	s.reachable = ok
	s.mu.Unlock()
}

// AddSystemPort adds a port owned by the "system" pseudo client.
func (s *Server) AddSystemPort(shortName string, kind server.Kind, dir server.Direction) *Port {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := newPort(systemClientTag+":"+shortName, kind, dir)
	s.ports = append(s.ports, p)
	return p
}

// FailConnect makes the next connections from src to dst fail with err.
func (s *Server) FailConnect(src, dst string, err error) {
	s.mu.Lock()
	s.failConnect[src+"->"+dst] = err
	s.mu.Unlock()
}

// FailActivate makes every later Activate call fail with err.
func (s *Server) FailActivate(err error) {
	s.mu.Lock()
	s.failActive = err
	s.mu.Unlock()
}

// Dial implements server.Dialer.
func (s *Server) Dial(clientName string) (server.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.reachable {
		return nil, fmt.Errorf("%w: no server running", server.ErrUnavailable)
	}
	for _, c := range s.clients {
		if c.name == clientName {
			return nil, fmt.Errorf("servertest: client name %q not unique", clientName)
		}
	}
	c := &Client{srv: s, name: clientName}
	s.clients = append(s.clients, c)
	return c, nil
}

// Port returns the port with the given full name, or nil.
func (s *Server) Port(name string) *Port {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(name)
}

// PortNames lists every port in graph order.
func (s *Server) PortNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.ports))
	for i, p := range s.ports {
		names[i] = p.name
	}
	return names
}

// ClientPorts lists the ports owned by the named client.
func (s *Server) ClientPorts(clientName string) []string {
	var names []string
	for _, n := range s.PortNames() {
		if strings.HasPrefix(n, clientName+":") {
			names = append(names, n)
		}
	}
	return names
}

// Clients lists the names of open clients.
func (s *Server) Clients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.clients))
	for i, c := range s.clients {
		names[i] = c.name
	}
	return names
}

// Connected reports whether src feeds dst.
func (s *Server) Connected(src, dst string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findLocked(dst)
	if d == nil {
		return false
	}
	for _, p := range d.srcs {
		if p.name == src {
			return true
		}
	}
	return false
}

// RunPeriod runs one period of the given length on every active client and
// then drops the MIDI events queued on system ports.
func (s *Server) RunPeriod(frames uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.active && c.process != nil {
			c.process(frames)
		}
	}
	for _, p := range s.ports {
		if strings.HasPrefix(p.name, systemClientTag+":") {
			p.resetMidi()
		}
	}
}

// Shutdown reports a server shutdown to every active client. Clients are
// left registered but stop processing, as with a real server going away.
func (s *Server) Shutdown(status, reason string) {
	s.Notify(func(h server.NotificationHandler) { h.Shutdown(status, reason) })
	s.mu.Lock()
	for _, c := range s.clients {
		c.active = false
	}
	s.mu.Unlock()
}

// Notify delivers a notification to every client that has a handler. The
// handlers run without the server lock held.
func (s *Server) Notify(fn func(server.NotificationHandler)) {
	s.mu.Lock()
	var handlers []server.NotificationHandler
	for _, c := range s.clients {
		if c.notify != nil {
			handlers = append(handlers, c.notify)
		}
	}
	s.mu.Unlock()
	for _, h := range handlers {
		fn(h)
	}
}

func (s *Server) findLocked(name string) *Port {
	for _, p := range s.ports {
		if p.name == name {
			return p
		}
	}
	return nil
}

func (s *Server) removePortLocked(p *Port) {
	for i, q := range s.ports {
		if q == p {
			s.ports = append(s.ports[:i], s.ports[i+1:]...)
			break
		}
	}
	for _, q := range s.ports {
		for i, src := range q.srcs {
			if src == p {
				q.srcs = append(q.srcs[:i], q.srcs[i+1:]...)
				break
			}
		}
	}
}

// Client is a registration with Server.
type Client struct {
	srv     *Server
	name    string
	ports   []*Port
	process server.ProcessFunc
	notify  server.NotificationHandler
	active  bool
	closed  bool
}

func (c *Client) Name() string       { return c.name }
func (c *Client) SampleRate() uint32 { return c.srv.sampleRate }
func (c *Client) BufferSize() uint32 { return c.srv.bufferSize }

func (c *Client) Ports(kind server.Kind, dir server.Direction) []string {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	var names []string
	for _, p := range c.srv.ports {
		if p.kind == kind && p.dir == dir {
			names = append(names, p.name)
		}
	}
	return names
}

func (c *Client) RegisterPort(shortName string, kind server.Kind, dir server.Direction) (server.Port, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if c.closed {
		return nil, server.ErrClosed
	}
	full := c.name + ":" + shortName
	if c.srv.findLocked(full) != nil {
		return nil, fmt.Errorf("servertest: port %q already exists", full)
	}
	p := newPort(full, kind, dir)
	c.srv.ports = append(c.srv.ports, p)
	c.ports = append(c.ports, p)
	return p, nil
}

func (c *Client) UnregisterPort(sp server.Port) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	p, ok := sp.(*Port)
	if !ok {
		return fmt.Errorf("servertest: foreign port %q", sp.Name())
	}
	for i, q := range c.ports {
		if q == p {
			c.ports = append(c.ports[:i], c.ports[i+1:]...)
			c.srv.removePortLocked(p)
			return nil
		}
	}
	return fmt.Errorf("servertest: port %q not owned by %q", p.name, c.name)
}

func (c *Client) Activate(process server.ProcessFunc, notify server.NotificationHandler) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if c.closed {
		return server.ErrClosed
	}
	if c.srv.failActive != nil {
		return c.srv.failActive
	}
	c.process = process
	c.notify = notify
	c.active = true
	return nil
}

// Active reports whether the client's process callback is installed and running.
func (c *Client) Active() bool {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.active
}

func (c *Client) Deactivate() error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	c.active = false
	return nil
}

func (c *Client) Connect(src, dst string) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if err, ok := c.srv.failConnect[src+"->"+dst]; ok {
		return err
	}
	s, d := c.srv.findLocked(src), c.srv.findLocked(dst)
	switch {
	case s == nil:
		return fmt.Errorf("servertest: unknown port %q", src)
	case d == nil:
		return fmt.Errorf("servertest: unknown port %q", dst)
	case s.dir != server.Output || d.dir != server.Input:
		return fmt.Errorf("servertest: cannot connect %q to %q", src, dst)
	case s.kind != d.kind:
		return fmt.Errorf("servertest: port types differ for %q and %q", src, dst)
	}
	for _, p := range d.srcs {
		if p == s {
			return nil
		}
	}
	d.srcs = append(d.srcs, s)
	return nil
}

func (c *Client) Close() error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.active = false
	for _, p := range c.ports {
		c.srv.removePortLocked(p)
	}
	c.ports = nil
	for i, q := range c.srv.clients {
		if q == c {
			c.srv.clients = append(c.srv.clients[:i], c.srv.clients[i+1:]...)
			break
		}
	}
	return nil
}

type midiEvent struct {
	time uint32
	data []byte
}

// Port is a port in the in-memory graph.
type Port struct {
	name string
	kind server.Kind
	dir  server.Direction
	buf  []float32
	srcs []*Port

	events []midiEvent
	pool   []byte
}

func newPort(name string, kind server.Kind, dir server.Direction) *Port {
	p := &Port{name: name, kind: kind, dir: dir}
	if kind == server.Audio {
		p.buf = make([]float32, MaxFrames)
	} else {
		p.events = make([]midiEvent, 0, maxMidiEvents)
		p.pool = make([]byte, 0, midiPoolBytes)
	}
	return p
}

func (p *Port) Name() string { return p.name }

// source returns the port whose buffer an input port reads this period.
func (p *Port) source() *Port {
	if p.dir == server.Input && len(p.srcs) > 0 {
		return p.srcs[0]
	}
	return p
}

func (p *Port) AudioBuffer(frames uint32) []float32 {
	if frames > MaxFrames {
		frames = MaxFrames
	}
	src := p.source()
	if src == p && p.dir == server.Input {
		clear(p.buf[:frames])
	}
	return src.buf[:frames]
}

func (p *Port) MidiEventCount(frames uint32) int {
	return len(p.source().events)
}

func (p *Port) MidiEventAt(frames uint32, i int) (uint32, []byte, bool) {
	evs := p.source().events
	if i < 0 || i >= len(evs) {
		return 0, nil, false
	}
	return evs[i].time, evs[i].data, true
}

func (p *Port) ClearMidi(frames uint32) {
	p.resetMidi()
}

func (p *Port) WriteMidi(frames uint32, time uint32, data []byte) error {
	if time >= frames {
		return errMidiTime
	}
	if n := len(p.events); n > 0 && time < p.events[n-1].time {
		return errMidiTime
	}
	if len(p.events) == cap(p.events) || len(p.pool)+len(data) > cap(p.pool) {
		return errMidiFull
	}
	start := len(p.pool)
	p.pool = append(p.pool, data...)
	p.events = append(p.events, midiEvent{time: time, data: p.pool[start:len(p.pool):len(p.pool)]})
	return nil
}

func (p *Port) resetMidi() {
	p.events = p.events[:0]
	p.pool = p.pool[:0]
}

// SetSamples fills the port's own buffer, as a capture device would.
func (p *Port) SetSamples(samples []float32) {
	copy(p.buf, samples)
}

// Samples returns a copy of what the port holds for a period of the given
// length. For a connected input port that is its source's buffer.
func (p *Port) Samples(frames int) []float32 {
	src := p.source()
	out := make([]float32, frames)
	copy(out, src.buf[:frames])
	return out
}

// QueueMidi adds an event that the port delivers during the next period.
func (p *Port) QueueMidi(time uint32, data ...byte) {
	p.events = append(p.events, midiEvent{time: time, data: append([]byte(nil), data...)})
}

// MidiEvents returns copies of the events the port (or its source) holds.
func (p *Port) MidiEvents() [][]byte {
	var out [][]byte
	for _, ev := range p.source().events {
		out = append(out, append([]byte(nil), ev.data...))
	}
	return out
}

// MidiTimes returns the timestamps matching MidiEvents.
func (p *Port) MidiTimes() []uint32 {
	var out []uint32
	for _, ev := range p.source().events {
		out = append(out, ev.time)
	}
	return out
}

var (
	_ server.Client = (*Client)(nil)
	_ server.Port   = (*Port)(nil)
)
