// SPDX-License-Identifier: MIT
// Package config loads the rtio configuration from a YAML or TOML file,
// applies environment overrides, and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"rtio/internal/audio"
	applog "rtio/internal/log"
	"rtio/pkg/bitint"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvLogLevel    = "RTIO_LOG_LEVEL"
	EnvClientName  = "RTIO_CLIENT_NAME"
	EnvMetricsAddr = "RTIO_METRICS_ADDR"
	EnvMidiServer  = "RTIO_MIDI_SERVER"
	EnvMeter       = "RTIO_METER"
)

var ErrUnsupportedFormat = errors.New("unsupported config file format")

// DefaultPaths are searched, in order, when no path is given.
var DefaultPaths = []string{"rtio.yaml", "rtio.yml", "rtio.toml"}

// Duration is a time.Duration written as a string such as "33ms".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the application configuration.
type Config struct {
	LogLevel    string `yaml:"log_level" toml:"log_level"`
	ClientName  string `yaml:"client_name" toml:"client_name"`
	MidiServer  string `yaml:"midi_server" toml:"midi_server"`
	MetricsAddr string `yaml:"metrics_addr" toml:"metrics_addr"`

	AudioIn  []Bus        `yaml:"audio_in" toml:"audio_in"`
	AudioOut []Bus        `yaml:"audio_out" toml:"audio_out"`
	MidiIn   []Controller `yaml:"midi_in" toml:"midi_in"`
	MidiOut  []Controller `yaml:"midi_out" toml:"midi_out"`

	Gate      GateConfig      `yaml:"gate" toml:"gate"`
	Meter     MeterConfig     `yaml:"meter" toml:"meter"`
	Spectrum  SpectrumConfig  `yaml:"spectrum" toml:"spectrum"`
	Recording RecordingConfig `yaml:"recording" toml:"recording"`
	Midi      MidiConfig      `yaml:"midi" toml:"midi"`
}

// Bus binds a bus id to system ports, one channel per port.
type Bus struct {
	ID          string   `yaml:"id" toml:"id"`
	SystemPorts []string `yaml:"system_ports" toml:"system_ports"`
}

// Controller binds a MIDI controller id to one system port.
type Controller struct {
	ID         string `yaml:"id" toml:"id"`
	SystemPort string `yaml:"system_port" toml:"system_port"`
}

// GateConfig controls the passthrough noise gate. Threshold is a linear
// amplitude between 0 and 1.
type GateConfig struct {
	Enabled   bool    `yaml:"enabled" toml:"enabled"`
	Threshold float64 `yaml:"threshold" toml:"threshold"`
}

// MeterConfig controls level metering and where snapshots are sent.
type MeterConfig struct {
	Enabled       bool     `yaml:"enabled" toml:"enabled"`
	Interval      Duration `yaml:"interval" toml:"interval"`
	WebSocketAddr string   `yaml:"websocket_addr" toml:"websocket_addr"`
	UDPTarget     string   `yaml:"udp_target" toml:"udp_target"`
	Log           bool     `yaml:"log" toml:"log"`
}

// SpectrumConfig controls band analysis of the first input bus. Readings
// are sent with the meter snapshots.
type SpectrumConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	FFTSize int  `yaml:"fft_size" toml:"fft_size"`
}

// RecordingConfig controls WAV recording of one input bus.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	OutputDir string `yaml:"output_dir" toml:"output_dir"`
	Bus       string `yaml:"bus" toml:"bus"`
	BitDepth  int    `yaml:"bit_depth" toml:"bit_depth"`
}

// MidiConfig controls MIDI handling in the run command.
type MidiConfig struct {
	Thru bool `yaml:"thru" toml:"thru"`
	Log  bool `yaml:"log" toml:"log"`
}

// Default returns the built-in configuration: a stereo pair in and out on
// the first two system ports.
func Default() *Config {
	return &Config{
		LogLevel:   "info",
		ClientName: audio.DefaultClientName,
		MidiServer: audio.ServerName,
		AudioIn: []Bus{
			{ID: "in", SystemPorts: []string{"system:capture_1", "system:capture_2"}},
		},
		AudioOut: []Bus{
			{ID: "out", SystemPorts: []string{"system:playback_1", "system:playback_2"}},
		},
		Gate: GateConfig{
			Threshold: 0.001,
		},
		Meter: MeterConfig{
			Interval: Duration(33 * time.Millisecond),
		},
		Spectrum: SpectrumConfig{
			FFTSize: 2048,
		},
		Recording: RecordingConfig{
			OutputDir: "./recordings",
			BitDepth:  24,
		},
	}
}

// Load reads the configuration at path. With an empty path DefaultPaths are
// searched, falling back to Default when none exists. Environment overrides
// are applied after the file, then the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range DefaultPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv(EnvLogLevel); ok {
		c.LogLevel = val
		applog.Debugf("configuration: overriding log_level from env: %s", val)
	}
	if val, ok := os.LookupEnv(EnvClientName); ok {
		c.ClientName = val
		applog.Debugf("configuration: overriding client_name from env: %s", val)
	}
	if val, ok := os.LookupEnv(EnvMetricsAddr); ok {
		c.MetricsAddr = val
		applog.Debugf("configuration: overriding metrics_addr from env: %s", val)
	}
	if val, ok := os.LookupEnv(EnvMidiServer); ok {
		c.MidiServer = val
		applog.Debugf("configuration: overriding midi_server from env: %s", val)
	}
	if val, ok := os.LookupEnv(EnvMeter); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Meter.Enabled = b
			applog.Debugf("configuration: overriding meter.enabled from env: %v", b)
		}
	}
}

// Validate checks what can be checked without a server. Port existence is
// checked when the stream is spawned.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}

	// Every id becomes part of a client port name, so ids must be unique
	// across directions and kinds.
	seen := make(map[string]string)
	claim := func(name, what string) error {
		if name == "" {
			return fmt.Errorf("%s has an empty id", what)
		}
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("port name %q of %s clashes with %s", name, what, prev)
		}
		seen[name] = what
		return nil
	}
	for _, group := range []struct {
		kind  string
		buses []Bus
	}{{"audio_in", c.AudioIn}, {"audio_out", c.AudioOut}} {
		for _, b := range group.buses {
			what := fmt.Sprintf("%s bus %q", group.kind, b.ID)
			if b.ID == "" {
				return fmt.Errorf("%s bus has an empty id", group.kind)
			}
			for ch := range b.SystemPorts {
				if err := claim(b.ID+"_"+strconv.Itoa(ch+1), what); err != nil {
					return err
				}
			}
		}
	}
	for _, group := range []struct {
		kind        string
		controllers []Controller
	}{{"midi_in", c.MidiIn}, {"midi_out", c.MidiOut}} {
		for _, ctl := range group.controllers {
			if err := claim(ctl.ID, fmt.Sprintf("%s controller %q", group.kind, ctl.ID)); err != nil {
				return err
			}
			if ctl.SystemPort == "" {
				return fmt.Errorf("%s controller %q has no system port", group.kind, ctl.ID)
			}
		}
	}

	if c.Recording.Enabled {
		switch c.Recording.BitDepth {
		case 16, 24, 32:
		default:
			return fmt.Errorf("recording.bit_depth must be 16, 24 or 32, got %d", c.Recording.BitDepth)
		}
		if c.Recording.Bus != "" && !c.hasInputBus(c.Recording.Bus) {
			return fmt.Errorf("recording.bus %q is not an audio_in bus", c.Recording.Bus)
		}
	}

	if c.Gate.Threshold < 0 || c.Gate.Threshold > 1 {
		return fmt.Errorf("gate.threshold must be between 0 and 1, got %g", c.Gate.Threshold)
	}

	if (c.Meter.Enabled || c.Spectrum.Enabled) && c.Meter.Interval <= 0 {
		return fmt.Errorf("meter.interval must be positive")
	}
	if c.Spectrum.Enabled && (!bitint.IsPowerOfTwo(c.Spectrum.FFTSize) || c.Spectrum.FFTSize < 16) {
		return fmt.Errorf("spectrum.fft_size must be a power of two of at least 16, got %d", c.Spectrum.FFTSize)
	}
	return nil
}

func (c *Config) hasInputBus(id string) bool {
	for _, b := range c.AudioIn {
		if b.ID == id {
			return true
		}
	}
	return false
}

// StreamConfig converts the bus and controller layout for audio.Spawn.
func (c *Config) StreamConfig() audio.Config {
	out := audio.Config{MidiServer: c.MidiServer}
	for _, b := range c.AudioIn {
		out.AudioIn = append(out.AudioIn, audio.BusConfig{ID: b.ID, SystemPorts: b.SystemPorts})
	}
	for _, b := range c.AudioOut {
		out.AudioOut = append(out.AudioOut, audio.BusConfig{ID: b.ID, SystemPorts: b.SystemPorts})
	}
	for _, ctl := range c.MidiIn {
		out.MidiIn = append(out.MidiIn, audio.ControllerConfig{ID: ctl.ID, SystemPort: ctl.SystemPort})
	}
	for _, ctl := range c.MidiOut {
		out.MidiOut = append(out.MidiOut, audio.ControllerConfig{ID: ctl.ID, SystemPort: ctl.SystemPort})
	}
	return out
}
