// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks against a *SpawnError.
var (
	ErrServerUnavailable = errors.New("audio server unavailable")
	ErrEmptyBus          = errors.New("bus has no system ports")
	ErrUnknownPort       = errors.New("system port not found")
	ErrPlatform          = errors.New("audio server error")
)

// SpawnErrorKind classifies why Spawn failed.
type SpawnErrorKind int

const (
	// KindServerUnavailable: the server could not be reached.
	KindServerUnavailable SpawnErrorKind = iota
	// KindEmptyBus: a bus lists no system ports.
	KindEmptyBus
	// KindUnknownPort: a bus references a port the server does not have.
	KindUnknownPort
	// KindPlatform: the server rejected a registration or activation.
	KindPlatform
)

func (k SpawnErrorKind) String() string {
	switch k {
	case KindServerUnavailable:
		return "server unavailable"
	case KindEmptyBus:
		return "empty bus"
	case KindUnknownPort:
		return "unknown port"
	case KindPlatform:
		return "platform"
	default:
		return "unknown"
	}
}

// SpawnError is returned by Spawn. Configuration errors carry the offending
// bus and port.
type SpawnError struct {
	Kind SpawnErrorKind
	Bus  string
	Port string
	Err  error
}

func (e *SpawnError) Error() string {
	switch e.Kind {
	case KindEmptyBus:
		return fmt.Sprintf("no system ports given for bus %q", e.Bus)
	case KindUnknownPort:
		return fmt.Sprintf("system port %q given for bus %q was not found", e.Port, e.Bus)
	case KindServerUnavailable:
		return fmt.Sprintf("audio server unavailable: %v", e.Err)
	default:
		return fmt.Sprintf("audio server error: %v", e.Err)
	}
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *SpawnError) Is(target error) bool {
	switch target {
	case ErrServerUnavailable:
		return e.Kind == KindServerUnavailable
	case ErrEmptyBus:
		return e.Kind == KindEmptyBus
	case ErrUnknownPort:
		return e.Kind == KindUnknownPort
	case ErrPlatform:
		return e.Kind == KindPlatform
	}
	return false
}

// IsConfigError reports whether err was caused by the stream configuration
// rather than the server.
func IsConfigError(err error) bool {
	var se *SpawnError
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == KindEmptyBus || se.Kind == KindUnknownPort
}

func platformError(format string, err error, args ...any) *SpawnError {
	return &SpawnError{Kind: KindPlatform, Err: fmt.Errorf(format+": %w", append(args, err)...)}
}
