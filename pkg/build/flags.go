// SPDX-License-Identifier: MIT
//
// Package build holds the metadata embedded into the binary at link time:
// the application name, build timestamp, Git commit hash, and semantic
// version. Set them with linker flags, for example:
//
//	go build -ldflags "-X rtio/pkg/build.buildVersion=0.1.0 -X rtio/pkg/build.buildCommit=$(git rev-parse HEAD)"
//
// Development builds carry none of these and fall back to defaults.
package build

import (
	"errors"
	"fmt"
)

// DefaultName is used when no name was linked in.
const DefaultName = "rtio"

const unknown = "unknown"

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String renders the flags the way the version command prints them.
func (f ldFlags) String() string {
	commit := f.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, commit, f.Time)
}

// Package-level variables for build information, populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = defaults()
)

func defaults() *ldFlags {
	return &ldFlags{
		Name:        DefaultName,
		Description: "Real-time audio and MIDI bridge for the Jack audio server",
		Time:        unknown,
		Commit:      unknown,
		Version:     "dev",
	}
}

// Initialize copies the linked build information into the build flags.
// Every missing flag is reported; the defaults stay in place for those,
// so a development build can log the error and carry on.
func Initialize() error {
	var errs []error
	set := func(dst *string, v, flag string) {
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", flag))
			return
		}
		*dst = v
	}
	set(&buildFlags.Name, buildName, "BuildName")
	set(&buildFlags.Time, buildTime, "BuildTime")
	set(&buildFlags.Commit, buildCommit, "BuildCommit")
	set(&buildFlags.Version, buildVersion, "BuildVersion")
	return errors.Join(errs...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
