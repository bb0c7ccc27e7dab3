// SPDX-License-Identifier: MIT

//go:build jack

package jack

import (
	"sync/atomic"
	"testing"
	"time"

	"rtio/internal/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ server.Client = (*client)(nil)
	_ server.Port   = (*port)(nil)
)

type nopNotify struct{ xruns atomic.Int32 }

func (*nopNotify) ThreadInit() {}
func (*nopNotify) Shutdown(status, reason string) {}
func (*nopNotify) Freewheel(enabled bool) {}
func (*nopNotify) SampleRate(rate uint32) {}
func (*nopNotify) ClientRegistration(string, bool) {}
func (*nopNotify) PortRegistration(uint32, bool) {}
func (*nopNotify) PortRename(uint32, string, string) {}
func (*nopNotify) PortsConnected(a, b uint32, ok bool) {}
func (*nopNotify) GraphReorder() {}
func (n *nopNotify) XRun() { n.xruns.Add(1) }
func (*nopNotify) Latency(mode server.LatencyMode) {}

func dial(t *testing.T) server.Client {
	t.Helper()
	c, err := Dial("rtio_jack_test")
	if err != nil {
		t.Skipf("no jack server: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMidiLoopback(t *testing.T) {
	c := dial(t)

	out, err := c.RegisterPort("midi_out", server.Midi, server.Output)
	require.NoError(t, err)
	in, err := c.RegisterPort("midi_in", server.Midi, server.Input)
	require.NoError(t, err)

	msg := []byte{0x90, 60, 100}
	var got atomic.Uint32
	var writeErrs atomic.Int32
	process := func(frames uint32) {
		out.ClearMidi(frames)
		if err := out.WriteMidi(frames, 0, msg); err != nil {
			writeErrs.Add(1)
		}
		for i := range in.MidiEventCount(frames) {
			if _, data, ok := in.MidiEventAt(frames, i); ok && len(data) == 3 {
				got.Store(uint32(data[1]))
			}
		}
	}
	require.NoError(t, c.Activate(process, &nopNotify{}))
	t.Cleanup(func() { _ = c.Deactivate() })
	require.NoError(t, c.Connect(out.Name(), in.Name()))

	assert.Eventually(t, func() bool { return got.Load() == 60 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, writeErrs.Load())
}

func TestXRunCallbackNotifies(t *testing.T) {
	n := &nopNotify{}
	cb := xrunCallback(n)
	assert.Zero(t, cb())
	assert.Zero(t, cb())
	assert.Equal(t, int32(2), n.xruns.Load())
}

func TestWriteMidiBeforeClearFails(t *testing.T) {
	c := dial(t)

	out, err := c.RegisterPort("midi_out", server.Midi, server.Output)
	require.NoError(t, err)
	assert.ErrorIs(t, out.WriteMidi(256, 0, []byte{0xF8}), ErrMidiWrite)
}

func TestConnectTwiceIsNotAnError(t *testing.T) {
	c := dial(t)

	out, err := c.RegisterPort("audio_out", server.Audio, server.Output)
	require.NoError(t, err)
	in, err := c.RegisterPort("audio_in", server.Audio, server.Input)
	require.NoError(t, err)
	require.NoError(t, c.Activate(func(uint32) {}, &nopNotify{}))
	t.Cleanup(func() { _ = c.Deactivate() })

	require.NoError(t, c.Connect(out.Name(), in.Name()))
	assert.NoError(t, c.Connect(out.Name(), in.Name()))
}
