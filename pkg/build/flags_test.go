// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"strings"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origFlags   ldFlags
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origFlags = *buildFlags

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	*buildFlags = origFlags

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrs    []string
		wantName    string
		wantVersion string
	}{
		{
			"Missing BuildName",
			"",
			"2025-04-13",
			"abcdef123",
			"v1.0.0",
			[]string{"BuildName is required"},
			DefaultName,
			"v1.0.0",
		},
		{
			"Missing BuildVersion",
			"testapp",
			"2025-04-13",
			"abcdef123",
			"",
			[]string{"BuildVersion is required"},
			"testapp",
			"dev",
		},
		{
			"Development build",
			"",
			"",
			"",
			"",
			[]string{"BuildName", "BuildTime", "BuildCommit", "BuildVersion"},
			DefaultName,
			"dev",
		},
		{
			"Success Case",
			"testapp",
			"2025-04-13",
			"abcdef123",
			"v1.0.0",
			nil,
			"testapp",
			"v1.0.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildFlags = defaults()

			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if len(tt.wantErrs) == 0 && err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}
			if len(tt.wantErrs) > 0 && err == nil {
				t.Fatal("Initialize() expected error, got nil")
			}
			for _, want := range tt.wantErrs {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Initialize() error %q does not mention %q", err, want)
				}
			}

			if buildFlags.Name != tt.wantName {
				t.Errorf("buildFlags.Name = %v, want %v", buildFlags.Name, tt.wantName)
			}
			if buildFlags.Version != tt.wantVersion {
				t.Errorf("buildFlags.Version = %v, want %v", buildFlags.Version, tt.wantVersion)
			}
		})
	}
}

func TestGetBuildFlags(t *testing.T) {
	expected := ldFlags{
		Name:    "testapp",
		Time:    "2025-04-13",
		Commit:  "abcdef123",
		Version: "v1.0.0",
	}
	buildFlags = &expected

	flags := GetBuildFlags()
	if *flags != expected {
		t.Errorf("GetBuildFlags() = %+v, want %+v", flags, expected)
	}

	want := "testapp v1.0.0 (commit abcdef1, built 2025-04-13)"
	if got := flags.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
