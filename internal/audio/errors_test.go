// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"testing"
)

func TestSpawnErrorIs(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		target  error
		want    bool
		config  bool
		message string
	}{
		{
			name:    "Empty bus",
			err:     &SpawnError{Kind: KindEmptyBus, Bus: "main", Err: ErrEmptyBus},
			target:  ErrEmptyBus,
			want:    true,
			config:  true,
			message: `no system ports given for bus "main"`,
		},
		{
			name:    "Unknown port",
			err:     &SpawnError{Kind: KindUnknownPort, Bus: "main", Port: "system:x", Err: ErrUnknownPort},
			target:  ErrUnknownPort,
			want:    true,
			config:  true,
			message: `system port "system:x" given for bus "main" was not found`,
		},
		{
			name:    "Unavailable is not a config error",
			err:     &SpawnError{Kind: KindServerUnavailable, Err: errors.New("no server")},
			target:  ErrServerUnavailable,
			want:    true,
			message: "audio server unavailable: no server",
		},
		{
			name:    "Kind mismatch",
			err:     platformError("register port %q", errors.New("busy"), "out_1"),
			target:  ErrEmptyBus,
			want:    false,
			message: `audio server error: register port "out_1": busy`,
		},
		{
			name:    "Wrapped",
			err:     fmt.Errorf("starting: %w", &SpawnError{Kind: KindEmptyBus, Bus: "b", Err: ErrEmptyBus}),
			target:  ErrEmptyBus,
			want:    true,
			config:  true,
			message: `starting: no system ports given for bus "b"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is = %v, want %v", got, tt.want)
			}
			if got := IsConfigError(tt.err); got != tt.config {
				t.Errorf("IsConfigError = %v, want %v", got, tt.config)
			}
			if tt.err.Error() != tt.message {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.message)
			}
		})
	}
}

func TestPlatformErrorUnwraps(t *testing.T) {
	cause := errors.New("port limit")
	err := platformError("register port %q", cause, "in_1")
	if !errors.Is(err, cause) {
		t.Error("platform error does not unwrap to its cause")
	}
	if !errors.Is(err, ErrPlatform) {
		t.Error("platform error does not match ErrPlatform")
	}
}
