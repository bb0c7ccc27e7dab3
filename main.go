// SPDX-License-Identifier: MIT
package main

import (
	"os"

	"rtio/cmd"
	applog "rtio/internal/log"
	"rtio/internal/server/jack"
	"rtio/pkg/build"
)

// main wires the command line to the Jack server.
//
// The process has two kinds of threads once a stream runs:
//
//   - The server's real-time thread calls the bridge once per period. It never
//     allocates, locks, or logs.
//   - Go routines drain what the bridge leaves behind: the recorder, the meter
//     publisher, the MIDI logger, the diagnostics reporter, and the metrics
//     endpoint.
func main() {
	if err := build.Initialize(); err != nil {
		applog.Debugf("development build: %v", err)
	}

	if err := cmd.Execute(jack.Dial, os.Args[1:], os.Stdout); err != nil {
		applog.Fatalf("%v", err)
	}
}
