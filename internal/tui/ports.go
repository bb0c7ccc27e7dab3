// SPDX-License-Identifier: MIT
// Package tui is a terminal browser for the ports the audio server exposes.
package tui

import (
	"fmt"
	"strings"

	"rtio/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	sectionStyle = lipgloss.NewStyle().
			Underline(true)

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)
)

var (
	keyQuit    = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	keyUp      = key.NewBinding(key.WithKeys("up", "k"))
	keyDown    = key.NewBinding(key.WithKeys("down", "j"))
	keyEnter   = key.NewBinding(key.WithKeys("enter"))
	keyBack    = key.NewBinding(key.WithKeys("esc"))
	keyRefresh = key.NewBinding(key.WithKeys("r"))
)

// ScreenType defines which screen is currently active.
type ScreenType int

const (
	ListScreen ScreenType = iota
	DetailScreen
)

// Section groups ports by kind and direction.
type Section int

const (
	AudioCapture Section = iota
	AudioPlayback
	MidiCapture
	MidiPlayback
)

func (s Section) String() string {
	switch s {
	case AudioCapture:
		return "Audio capture"
	case AudioPlayback:
		return "Audio playback"
	case MidiCapture:
		return "MIDI capture"
	default:
		return "MIDI playback"
	}
}

// Entry is one selectable port.
type Entry struct {
	Section Section
	Name    string
	Default string
}

// Discoverer returns the current audio and MIDI port catalogs.
type Discoverer func() (audio.ServerInfo, audio.MidiServerInfo)

type portsMsg struct {
	audio audio.ServerInfo
	midi  audio.MidiServerInfo
}

// PortListModel is the Bubble Tea model for browsing ports.
type PortListModel struct {
	discover Discoverer

	audio   audio.ServerInfo
	midi    audio.MidiServerInfo
	entries []Entry
	loaded  bool

	selectedIndex int
	viewport      viewport.Model
	ready         bool
	activeScreen  ScreenType
}

// NewPortListModel creates a model that loads its catalog with discover.
func NewPortListModel(discover Discoverer) PortListModel {
	return PortListModel{discover: discover, activeScreen: ListScreen}
}

// Init fetches the catalog.
func (m PortListModel) Init() tea.Cmd {
	return m.fetch
}

func (m PortListModel) fetch() tea.Msg {
	a, md := m.discover()
	return portsMsg{audio: a, midi: md}
}

// Entries flattens the catalogs in display order.
func Entries(a audio.ServerInfo, md audio.MidiServerInfo) []Entry {
	var out []Entry
	for _, dev := range a.Devices {
		for i, name := range dev.InPorts {
			e := Entry{Section: AudioCapture, Name: name}
			if i == dev.DefaultInPort {
				e.Default = "default input"
			}
			out = append(out, e)
		}
		for i, name := range dev.OutPorts {
			e := Entry{Section: AudioPlayback, Name: name}
			switch {
			case i == dev.DefaultOutPortLeft && i == dev.DefaultOutPortRight:
				e.Default = "default output"
			case i == dev.DefaultOutPortLeft:
				e.Default = "default left"
			case i == dev.DefaultOutPortRight:
				e.Default = "default right"
			}
			out = append(out, e)
		}
	}
	for i, dev := range md.InDevices {
		e := Entry{Section: MidiCapture, Name: dev.Name}
		if i == md.DefaultInPort {
			e.Default = "default input"
		}
		out = append(out, e)
	}
	for _, dev := range md.OutDevices {
		out = append(out, Entry{Section: MidiPlayback, Name: dev.Name})
	}
	return out
}

// Update handles input and updates the model.
func (m PortListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refreshContent()

	case portsMsg:
		m.audio, m.midi = msg.audio, msg.midi
		m.entries = Entries(msg.audio, msg.midi)
		m.loaded = true
		if m.selectedIndex >= len(m.entries) {
			m.selectedIndex = max(0, len(m.entries)-1)
		}
		m.refreshContent()

	case tea.KeyMsg:
		if key.Matches(msg, keyQuit) {
			return m, tea.Quit
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, keyUp):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, keyDown):
				if m.selectedIndex < len(m.entries)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, keyEnter):
				if len(m.entries) > 0 {
					m.activeScreen = DetailScreen
				}
			case key.Matches(msg, keyRefresh):
				cmds = append(cmds, m.fetch)
			}
		case DetailScreen:
			if key.Matches(msg, keyBack) {
				m.activeScreen = ListScreen
			}
		}
		m.refreshContent()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *PortListModel) refreshContent() {
	if !m.ready {
		return
	}
	if m.activeScreen == DetailScreen {
		m.viewport.SetContent(m.renderDetail())
		return
	}
	m.viewport.SetContent(m.renderList())
}

// View renders the UI.
func (m PortListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render(audio.ServerName + " Ports")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Details • r: Refresh • q: Quit")
	} else {
		title = titleStyle.Render("Port Details")
		help = infoStyle.Render("Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m PortListModel) renderList() string {
	if !m.loaded {
		return "Querying server..."
	}

	var sb strings.Builder
	if !m.audio.Available {
		sb.WriteString("Audio server unavailable.\n\n")
	} else {
		dev := m.audio.Devices[0]
		sb.WriteString(fmt.Sprintf("%s: %d Hz, %d frames\n\n",
			dev.Name, dev.SampleRates[dev.DefaultSampleRateIndex], dev.DefaultBufferSize))
	}
	if len(m.entries) == 0 {
		sb.WriteString("No ports found.")
		return sb.String()
	}

	section := Section(-1)
	for i, e := range m.entries {
		if e.Section != section {
			if section != -1 {
				sb.WriteString("\n")
			}
			section = e.Section
			sb.WriteString(sectionStyle.Render(section.String()))
			sb.WriteString("\n")
		}

		line := "  " + e.Name
		if e.Default != "" {
			line += " (" + e.Default + ")"
		}
		if i == m.selectedIndex {
			line = highlightStyle.Render("▶ " + line[2:])
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m PortListModel) renderDetail() string {
	e := m.entries[m.selectedIndex]
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Port:    %s\n", e.Name))
	sb.WriteString(fmt.Sprintf("Section: %s\n", e.Section))
	if e.Default != "" {
		sb.WriteString(fmt.Sprintf("Role:    %s\n", e.Default))
	}

	sb.WriteString("\nConfiguration snippet:\n\n")
	switch e.Section {
	case AudioCapture:
		sb.WriteString(fmt.Sprintf("audio_in:\n  - id: in\n    system_ports: [%s]\n", e.Name))
	case AudioPlayback:
		sb.WriteString(fmt.Sprintf("audio_out:\n  - id: out\n    system_ports: [%s]\n", e.Name))
	case MidiCapture:
		sb.WriteString(fmt.Sprintf("midi_in:\n  - id: keys\n    system_port: %s\n", e.Name))
	case MidiPlayback:
		sb.WriteString(fmt.Sprintf("midi_out:\n  - id: synth\n    system_port: %s\n", e.Name))
	}
	return sb.String()
}

// Run launches the port browser.
func Run(discover Discoverer) error {
	p := tea.NewProgram(NewPortListModel(discover), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
