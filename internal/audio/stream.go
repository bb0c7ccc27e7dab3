// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"rtio/internal/events"
	applog "rtio/internal/log"
	"rtio/internal/metrics"
	"rtio/internal/server"
)

var streamLog = applog.Named("stream")

// DefaultReportInterval is how often a stream logs the diagnostics its
// real-time callback counted.
const DefaultReportInterval = time.Second

// Option customizes Spawn.
type Option func(*spawnOptions)

type spawnOptions struct {
	bus            *events.Bus
	reportInterval time.Duration
}

// WithEventBus publishes lifecycle and diagnostic events on bus.
func WithEventBus(bus *events.Bus) Option {
	return func(o *spawnOptions) { o.bus = bus }
}

// WithReportInterval sets the diagnostics reporting interval. Zero or a
// negative value disables the reporter.
func WithReportInterval(d time.Duration) Option {
	return func(o *spawnOptions) { o.reportInterval = d }
}

// streamPorts holds the registered client ports in declaration order,
// flattened across buses.
type streamPorts struct {
	audioIn  []server.Port
	audioOut []server.Port
	midiIn   []server.Port
	midiOut  []server.Port
}

func (p streamPorts) all() []server.Port {
	return slices.Concat(p.audioIn, p.audioOut, p.midiIn, p.midiOut)
}

// connection is one auto-connect request, source to destination.
type connection struct {
	src, dst string
}

// Stream owns a client registration with an active bridge. Close releases it.
type Stream struct {
	client server.Client
	ports  streamPorts
	info   StreamInfo

	notifier *notifier
	stats    *metrics.Bridge
	bus      *events.Bus

	connectErrs []error

	stopReport chan struct{}
	reportDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Spawn negotiates a stream with the server and starts the real-time bridge.
//
// All buses are validated against the server's current audio ports before
// any client port is registered, so a configuration error leaves nothing
// behind. Auto-connect failures do not fail the spawn; they are logged and
// available from Stream.ConnectErrors.
func Spawn(dial server.Dialer, cfg Config, handler Processor, fatal FatalErrorHandler, clientName string, opts ...Option) (StreamInfo, *Stream, error) {
	o := spawnOptions{reportInterval: DefaultReportInterval}
	for _, opt := range opts {
		opt(&o)
	}
	if clientName == "" {
		clientName = DefaultClientName
	}

	streamLog.Infof("Spawning Jack thread...")
	streamLog.Infof("Registering Jack client with name %s", clientName)

	client, err := dial(clientName)
	if err != nil {
		return StreamInfo{}, nil, &SpawnError{Kind: KindServerUnavailable, Err: err}
	}

	info, ports, conns, err := negotiate(client, cfg)
	if err != nil {
		closeClient(client)
		return StreamInfo{}, nil, err
	}

	stats := metrics.ForClient(client.Name())
	b := newBridge(handler, info, ports, stats)

	handler.Init(info)

	n := newNotifier(client.Name(), fatal, o.bus)

	streamLog.Infof("Activating Jack client...")
	if err := client.Activate(b.process, n); err != nil {
		closeClient(client)
		stats.Delete()
		return StreamInfo{}, nil, platformError("activate client %q", err, client.Name())
	}

	s := &Stream{
		client:   client,
		ports:    ports,
		info:     info,
		notifier: n,
		stats:    stats,
		bus:      o.bus,
	}

	for _, c := range conns {
		if err := client.Connect(c.src, c.dst); err != nil {
			streamLog.Warnf("could not connect %s to %s: %v", c.src, c.dst, err)
			s.connectErrs = append(s.connectErrs, err)
		}
	}

	if o.reportInterval > 0 {
		s.startReporter(o.reportInterval)
	}

	streamLog.Infof("Successfully spawned Jack thread. Sample rate: %d, Max audio buffer size: %d",
		info.SampleRate, info.MaxBufferSize)
	o.bus.Publish(events.StreamStarted{Client: client.Name(), SampleRate: info.SampleRate, BufferSize: info.MaxBufferSize})

	return info, s, nil
}

// negotiate validates cfg, registers the client ports, and returns the
// stream description plus the auto-connect plan in connection order.
func negotiate(client server.Client, cfg Config) (StreamInfo, streamPorts, []connection, error) {
	systemIn := client.Ports(server.Audio, server.Output)
	systemOut := client.Ports(server.Audio, server.Input)

	if err := validateBuses(cfg.AudioIn, systemIn); err != nil {
		return StreamInfo{}, streamPorts{}, nil, err
	}
	if err := validateBuses(cfg.AudioOut, systemOut); err != nil {
		return StreamInfo{}, streamPorts{}, nil, err
	}

	info := StreamInfo{
		ServerName:    ServerName,
		SampleRate:    client.SampleRate(),
		MaxBufferSize: client.BufferSize(),
	}
	var ports streamPorts
	var conns []connection

	var err error
	info.AudioIn, ports.audioIn, err = registerBuses(client, cfg.AudioIn, server.Input)
	if err != nil {
		return StreamInfo{}, streamPorts{}, nil, err
	}
	for i, p := range ports.audioIn {
		conns = append(conns, connection{src: systemPortAt(info.AudioIn, i), dst: p.Name()})
	}

	info.AudioOut, ports.audioOut, err = registerBuses(client, cfg.AudioOut, server.Output)
	if err != nil {
		return StreamInfo{}, streamPorts{}, nil, err
	}
	for i, p := range ports.audioOut {
		conns = append(conns, connection{src: p.Name(), dst: systemPortAt(info.AudioOut, i)})
	}

	if cfg.MidiServer == ServerName {
		info.MidiIn, ports.midiIn, err = registerControllers(client, cfg.MidiIn, server.Input)
		if err != nil {
			return StreamInfo{}, streamPorts{}, nil, err
		}
		for i, p := range ports.midiIn {
			conns = append(conns, connection{src: info.MidiIn[i].SystemPort, dst: p.Name()})
		}

		info.MidiOut, ports.midiOut, err = registerControllers(client, cfg.MidiOut, server.Output)
		if err != nil {
			return StreamInfo{}, streamPorts{}, nil, err
		}
		for i, p := range ports.midiOut {
			conns = append(conns, connection{src: p.Name(), dst: info.MidiOut[i].SystemPort})
		}
	} else if len(cfg.MidiIn)+len(cfg.MidiOut) > 0 {
		streamLog.Infof("MIDI server %q is not %s, skipping %d MIDI controllers",
			cfg.MidiServer, ServerName, len(cfg.MidiIn)+len(cfg.MidiOut))
	}

	return info, ports, conns, nil
}

func validateBuses(buses []BusConfig, available []string) error {
	for _, bus := range buses {
		if len(bus.SystemPorts) == 0 {
			return &SpawnError{Kind: KindEmptyBus, Bus: bus.ID, Err: ErrEmptyBus}
		}
		for _, p := range bus.SystemPorts {
			if !slices.Contains(available, p) {
				return &SpawnError{Kind: KindUnknownPort, Bus: bus.ID, Port: p, Err: ErrUnknownPort}
			}
		}
	}
	return nil
}

func registerBuses(client server.Client, buses []BusConfig, dir server.Direction) ([]Bus, []server.Port, error) {
	var out []Bus
	var ports []server.Port
	for i, cfg := range buses {
		out = append(out, Bus{
			ID:           cfg.ID,
			Index:        i,
			SystemDevice: ServerName,
			SystemPorts:  slices.Clone(cfg.SystemPorts),
			Channels:     len(cfg.SystemPorts),
		})
		for ch := range cfg.SystemPorts {
			name := cfg.ID + "_" + strconv.Itoa(ch+1)
			p, err := client.RegisterPort(name, server.Audio, dir)
			if err != nil {
				return nil, nil, platformError("register port %q", err, name)
			}
			ports = append(ports, p)
		}
	}
	return out, ports, nil
}

func registerControllers(client server.Client, controllers []ControllerConfig, dir server.Direction) ([]Controller, []server.Port, error) {
	var out []Controller
	var ports []server.Port
	for i, cfg := range controllers {
		out = append(out, Controller{ID: cfg.ID, Index: i, SystemPort: cfg.SystemPort})
		p, err := client.RegisterPort(cfg.ID, server.Midi, dir)
		if err != nil {
			return nil, nil, platformError("register port %q", err, cfg.ID)
		}
		ports = append(ports, p)
	}
	return out, ports, nil
}

// systemPortAt returns the system port bound to the k-th channel across buses.
func systemPortAt(buses []Bus, k int) string {
	for _, bus := range buses {
		if k < len(bus.SystemPorts) {
			return bus.SystemPorts[k]
		}
		k -= len(bus.SystemPorts)
	}
	return ""
}

func closeClient(c server.Client) {
	if err := c.Close(); err != nil {
		streamLog.Warnf("closing client %s: %v", c.Name(), err)
	}
}

// Info returns the negotiated stream description.
func (s *Stream) Info() StreamInfo { return s.info }

// ClientName returns the name the server assigned to the client.
func (s *Stream) ClientName() string { return s.client.Name() }

// ConnectErrors returns the auto-connect failures from Spawn.
func (s *Stream) ConnectErrors() []error { return s.connectErrs }

// Diagnostics returns the counters recorded by the real-time bridge.
func (s *Stream) Diagnostics() metrics.Snapshot { return s.stats.Snapshot() }

// FatalFired reports whether the fatal error handler has been called.
func (s *Stream) FatalFired() bool { return s.notifier.fired() }

// Close deactivates the bridge, blocking until the server stops calling it,
// then unregisters every client port and closes the client. It is safe to
// call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.stopReporter()

		var errs []error
		if err := s.client.Deactivate(); err != nil {
			errs = append(errs, fmt.Errorf("deactivate: %w", err))
		}
		for _, p := range s.ports.all() {
			if err := s.client.UnregisterPort(p); err != nil {
				errs = append(errs, fmt.Errorf("unregister %s: %w", p.Name(), err))
			}
		}
		if err := s.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
		s.stats.Delete()
		s.bus.Publish(events.StreamStopped{Client: s.client.Name()})
		s.closeErr = errors.Join(errs...)
		streamLog.Infof("Closed Jack client %s", s.client.Name())
	})
	return s.closeErr
}

// startReporter logs what the real-time callback counted since the last
// tick. It runs off the real-time thread.
func (s *Stream) startReporter(interval time.Duration) {
	s.stopReport = make(chan struct{})
	s.reportDone = make(chan struct{})

	go func() {
		defer close(s.reportDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := s.stats.Snapshot()
		for {
			select {
			case <-ticker.C:
				now := s.stats.Snapshot()
				reportDiagnostics(now.Sub(last), s.info.MaxBufferSize)
				last = now
			case <-s.stopReport:
				return
			}
		}
	}()
}

func (s *Stream) stopReporter() {
	if s.stopReport == nil {
		return
	}
	close(s.stopReport)
	<-s.reportDone
}

func reportDiagnostics(d metrics.Snapshot, maxFrames uint32) {
	if d.OversizedPeriods > 0 {
		streamLog.Warnf("Jack sent %d periods larger than the max buffer size of %d; extra frames were dropped",
			d.OversizedPeriods, maxFrames)
	}
	if d.ShortWrites > 0 {
		streamLog.Warnf("%d audio output buffers were resized by the application", d.ShortWrites)
	}
	if d.MidiInDropped > 0 {
		streamLog.Warnf("dropped %d incoming midi events", d.MidiInDropped)
	}
	if d.MidiOutErrors > 0 {
		streamLog.Warnf("could not copy %d midi events to Jack outputs", d.MidiOutErrors)
	}
	if d.ProcessPanics > 0 {
		streamLog.Errorf("process function panicked in %d periods; outputs were silenced", d.ProcessPanics)
	}
}
