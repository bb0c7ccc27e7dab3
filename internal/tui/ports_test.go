// SPDX-License-Identifier: MIT
package tui

import (
	"strings"
	"testing"

	"rtio/internal/audio"
	"rtio/internal/server/servertest"

	tea "github.com/charmbracelet/bubbletea"
)

func systemDiscoverer() Discoverer {
	srv := servertest.NewSystem()
	return func() (audio.ServerInfo, audio.MidiServerInfo) {
		return audio.DiscoverAudio(srv.Dial), audio.DiscoverMidi(srv.Dial)
	}
}

func TestEntries(t *testing.T) {
	a, md := systemDiscoverer()()
	entries := Entries(a, md)

	want := []Entry{
		{Section: AudioCapture, Name: "system:capture_1", Default: "default input"},
		{Section: AudioCapture, Name: "system:capture_2"},
		{Section: AudioPlayback, Name: "system:playback_1", Default: "default left"},
		{Section: AudioPlayback, Name: "system:playback_2", Default: "default right"},
		{Section: MidiCapture, Name: "system:midi_capture_1"},
		{Section: MidiCapture, Name: "system:midi_capture_2", Default: "default input"},
		{Section: MidiPlayback, Name: "system:midi_playback_1"},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(entries), len(want), entries)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestEntriesMonoOutput(t *testing.T) {
	a := audio.ServerInfo{Available: true, Devices: []audio.DeviceInfo{{OutPorts: []string{"out"}}}}
	entries := Entries(a, audio.MidiServerInfo{})
	if len(entries) != 1 || entries[0].Default != "default output" {
		t.Errorf("unexpected entries %+v", entries)
	}
}

func update(t *testing.T, m tea.Model, msg tea.Msg) tea.Model {
	t.Helper()
	m, _ = m.Update(msg)
	return m
}

func TestPortListNavigation(t *testing.T) {
	model := NewPortListModel(systemDiscoverer())
	if got := model.View(); got != "Initializing..." {
		t.Fatalf("View before size = %q", got)
	}

	var m tea.Model = model
	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 40})
	m = update(t, m, model.Init()())

	view := m.View()
	for _, want := range []string{"Audio capture", "system:capture_1", "MIDI playback", "48000 Hz"} {
		if !strings.Contains(view, want) {
			t.Errorf("list view missing %q", want)
		}
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if got := m.(PortListModel).selectedIndex; got != 2 {
		t.Fatalf("selectedIndex = %d, want 2", got)
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.(PortListModel).activeScreen != DetailScreen {
		t.Fatal("enter did not open the detail screen")
	}
	if view := m.View(); !strings.Contains(view, "system:playback_1") || !strings.Contains(view, "audio_out:") {
		t.Errorf("detail view missing port or snippet:\n%s", view)
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.(PortListModel).activeScreen != ListScreen {
		t.Error("esc did not return to the list")
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	if got := m.(PortListModel).selectedIndex; got != 0 {
		t.Errorf("selectedIndex = %d, want 0", got)
	}
}

func TestPortListUnavailable(t *testing.T) {
	srv := servertest.NewSystem()
	srv.SetReachable(false)
	model := NewPortListModel(func() (audio.ServerInfo, audio.MidiServerInfo) {
		return audio.DiscoverAudio(srv.Dial), audio.DiscoverMidi(srv.Dial)
	})

	var m tea.Model = model
	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 20})
	m = update(t, m, model.Init()())

	view := m.View()
	if !strings.Contains(view, "Audio server unavailable") || !strings.Contains(view, "No ports found") {
		t.Errorf("unexpected view:\n%s", view)
	}

	// Enter with nothing selected stays on the list.
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.(PortListModel).activeScreen != ListScreen {
		t.Error("enter opened a detail screen without entries")
	}
}

func TestQuit(t *testing.T) {
	m := NewPortListModel(systemDiscoverer())
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}
