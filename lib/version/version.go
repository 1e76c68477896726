// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
)

// Link-time metadata. Release builds set these with -ldflags -X, for
// example:
//
//	go build -ldflags "-X github.com/keystone-hs/keystone/lib/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// shortCommitLength matches git's default abbreviation.
const shortCommitLength = 7

var readBuildInfo = debug.ReadBuildInfo

// Build describes the running binary.
type Build struct {
	Version   string
	Commit    string
	Dirty     bool
	Time      string
	GoVersion string
	Platform  string
}

// Current resolves the running binary's build. Values set at link time
// take precedence; otherwise the VCS stamps recorded by the go command
// are used.
func Current() Build {
	build := Build{
		Version:   Version,
		Commit:    GitCommit,
		Dirty:     GitDirty == "true",
		Time:      BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if GitCommit != "unknown" {
		return build
	}
	info, ok := readBuildInfo()
	if !ok {
		return build
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			build.Commit = setting.Value
			if len(build.Commit) > shortCommitLength {
				build.Commit = build.Commit[:shortCommitLength]
			}
		case "vcs.modified":
			build.Dirty = setting.Value == "true"
		case "vcs.time":
			if BuildTime == "unknown" {
				build.Time = setting.Value
			}
		}
	}
	return build
}

// String formats the build as "<version> (<commit>[-dirty], <time>)".
func (b Build) String() string {
	commit := b.Commit
	if b.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", b.Version, commit, b.Time)
}

// Info returns the current build as a one-line string.
func Info() string { return Current().String() }

// Full returns Info followed by the Go version and platform.
func Full() string {
	build := Current()
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s", build, build.GoVersion, build.Platform)
}

// Short returns the version number alone.
func Short() string { return Version }

// UserAgent is sent on every outbound federation request.
func UserAgent() string {
	build := Current()
	return fmt.Sprintf("keystone/%s (%s; %s)", build.Version, build.GoVersion, build.Platform)
}

// Print writes "<binary> <Info>" to w.
func Print(w io.Writer, binary string) error {
	_, err := fmt.Fprintf(w, "%s %s\n", binary, Info())
	return err
}
