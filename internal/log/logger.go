// SPDX-License-Identifier: MIT
/*
Package log is the process-wide leveled logger.

The level is global and atomic so it can be changed from configuration at any
time. Named returns a Logger that prefixes every line with a component tag.

None of these functions may be called from the real-time process callback:
they format strings and write to an io.Writer.
*/
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

var currentLevel atomic.Uint32

var logger atomic.Pointer[stdlog.Logger]

func init() {
	SetOutput(os.Stderr)
	SetLevel(LevelInfo)
}

// SetOutput redirects all log output. Tests use it to capture lines.
func SetOutput(w io.Writer) {
	logger.Store(stdlog.New(w, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds))
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

func output(level LogLevel, component, msg string) {
	if component != "" {
		msg = component + ": " + msg
	}
	if level == LevelFatal {
		logger.Load().Fatalf("[%s] %s", level, msg)
		return
	}
	logger.Load().Printf("[%-5s] %s", level, msg)
}

// Logger tags lines with a component name.
type Logger struct {
	component string
}

// Named returns a Logger for the given component.
func Named(component string) Logger {
	return Logger{component: component}
}

func (l Logger) Debugf(format string, v ...any) {
	if shouldLog(LevelDebug) {
		output(LevelDebug, l.component, fmt.Sprintf(format, v...))
	}
}

func (l Logger) Infof(format string, v ...any) {
	if shouldLog(LevelInfo) {
		output(LevelInfo, l.component, fmt.Sprintf(format, v...))
	}
}

func (l Logger) Warnf(format string, v ...any) {
	if shouldLog(LevelWarn) {
		output(LevelWarn, l.component, fmt.Sprintf(format, v...))
	}
}

func (l Logger) Errorf(format string, v ...any) {
	if shouldLog(LevelError) {
		output(LevelError, l.component, fmt.Sprintf(format, v...))
	}
}

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...any) { Logger{}.Debugf(format, v...) }

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...any) { Logger{}.Infof(format, v...) }

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...any) { Logger{}.Warnf(format, v...) }

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...any) { Logger{}.Errorf(format, v...) }

// Fatalf logs a formatted fatal message and exits the application.
// Fatal messages are always logged regardless of the current level.
func Fatalf(format string, v ...any) {
	output(LevelFatal, "", fmt.Sprintf(format, v...))
}
