// SPDX-License-Identifier: MIT
package audio

import (
	applog "rtio/internal/log"
	"rtio/internal/server"

	"github.com/google/uuid"
)

var discoveryLog = applog.Named("discovery")

// probeClientName returns a fresh throwaway client identity so concurrent
// probes never collide with each other or with a running stream.
func probeClientName() string {
	return "rtio_probe_" + uuid.NewString()[:8]
}

// probe opens a transient client, runs fn, and closes the client again.
// It reports false if the server could not be reached.
func probe(dial server.Dialer, fn func(c server.Client)) bool {
	c, err := dial(probeClientName())
	if err != nil {
		discoveryLog.Infof("Jack server is unavailable: %v", err)
		return false
	}
	defer func() {
		if err := c.Close(); err != nil {
			discoveryLog.Warnf("closing probe client: %v", err)
		}
	}()
	fn(c)
	return true
}

// DiscoverAudio lists the server's audio ports. An unreachable server, or
// one without playback ports, is reported as unavailable, never as an error.
func DiscoverAudio(dial server.Dialer) ServerInfo {
	discoveryLog.Infof("Refreshing list of available Jack audio devices...")

	info := ServerInfo{Name: ServerName}
	probe(dial, func(c server.Client) {
		// System capture ports produce data, so they are server outputs.
		inPorts := c.Ports(server.Audio, server.Output)
		outPorts := c.Ports(server.Audio, server.Input)

		if len(outPorts) == 0 {
			discoveryLog.Warnf("Jack server is unavailable: Jack system device has no available audio outputs.")
			return
		}

		bufferSize := c.BufferSize()
		info.Devices = []DeviceInfo{{
			Name:                   DeviceName,
			InPorts:                inPorts,
			OutPorts:               outPorts,
			SampleRates:            []uint32{c.SampleRate()},
			BufferSizeRange:        BufferSizeRange{Min: bufferSize, Max: bufferSize},
			DefaultInPort:          indexOf(inPorts, server.SystemCapture1, 0),
			DefaultOutPortLeft:     indexOf(outPorts, server.SystemPlayback1, 0),
			DefaultOutPortRight:    indexOf(outPorts, server.SystemPlayback2, min(1, len(outPorts)-1)),
			DefaultSampleRateIndex: 0,
			DefaultBufferSize:      bufferSize,
		}}
		info.Available = true
	})
	return info
}

// DiscoverMidi lists the server's MIDI ports.
func DiscoverMidi(dial server.Dialer) MidiServerInfo {
	discoveryLog.Infof("Refreshing list of available Jack MIDI devices...")

	info := MidiServerInfo{Name: ServerName}
	info.Available = probe(dial, func(c server.Client) {
		inPorts := c.Ports(server.Midi, server.Output)
		outPorts := c.Ports(server.Midi, server.Input)

		for _, name := range inPorts {
			info.InDevices = append(info.InDevices, MidiDeviceInfo{Name: name})
		}
		for _, name := range outPorts {
			info.OutDevices = append(info.OutDevices, MidiDeviceInfo{Name: name})
		}

		// midi_capture_1 is normally the server's MIDI-through port; the first
		// hardware controller usually shows up as midi_capture_2.
		info.DefaultInPort = indexOf(inPorts, server.SystemMidiCapture2, 0)
	})
	return info
}

func indexOf(names []string, want string, fallback int) int {
	for i, n := range names {
		if n == want {
			return i
		}
	}
	return fallback
}
