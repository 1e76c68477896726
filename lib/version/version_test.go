// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

// stubBuild replaces the link-time variables and the embedded build
// info for one test.
func stubBuild(t *testing.T, commit, dirty, buildTime string, settings ...debug.BuildSetting) {
	t.Helper()
	saved := []string{GitCommit, GitDirty, BuildTime}
	savedRead := readBuildInfo
	t.Cleanup(func() {
		GitCommit, GitDirty, BuildTime = saved[0], saved[1], saved[2]
		readBuildInfo = savedRead
	})
	GitCommit, GitDirty, BuildTime = commit, dirty, buildTime
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		if settings == nil {
			return nil, false
		}
		return &debug.BuildInfo{Settings: settings}, true
	}
}

func TestCurrent(t *testing.T) {
	vcs := []debug.BuildSetting{
		{Key: "vcs", Value: "git"},
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "vcs.time", Value: "2026-03-01T12:00:00Z"},
	}
	tests := []struct {
		name      string
		commit    string
		dirty     string
		buildTime string
		settings  []debug.BuildSetting
		want      string
	}{
		{"link-time values win", "abc1234", "false", "2026-04-01", vcs, "(abc1234, 2026-04-01)"},
		{"link-time dirty", "abc1234", "true", "2026-04-01", nil, "(abc1234-dirty, 2026-04-01)"},
		{"falls back to vcs stamps", "unknown", "false", "unknown", vcs, "(0123456-dirty, 2026-03-01T12:00:00Z)"},
		{"no build info", "unknown", "false", "unknown", nil, "(unknown, unknown)"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			stubBuild(t, test.commit, test.dirty, test.buildTime, test.settings...)
			if got := Info(); got != Version+" "+test.want {
				t.Errorf("Info() = %q, want %q", got, Version+" "+test.want)
			}
		})
	}
}

func TestFullIncludesPlatform(t *testing.T) {
	got := Full()
	if !strings.Contains(got, "Go: "+runtime.Version()) || !strings.Contains(got, "Platform: ") {
		t.Errorf("Full() = %q", got)
	}
}

func TestUserAgent(t *testing.T) {
	got := UserAgent()
	if !strings.HasPrefix(got, "keystone/"+Short()+" ("+runtime.Version()+"; ") {
		t.Errorf("UserAgent() = %q", got)
	}
	if build := Current(); !strings.HasSuffix(got, "; "+build.Platform+")") {
		t.Errorf("UserAgent() = %q, want platform %s", got, build.Platform)
	}
}

func TestPrint(t *testing.T) {
	stubBuild(t, "abc1234", "false", "2026-04-01")
	var output bytes.Buffer
	if err := Print(&output, "keystoned"); err != nil {
		t.Fatalf("Print: %v", err)
	}
	if want := "keystoned " + Version + " (abc1234, 2026-04-01)\n"; output.String() != want {
		t.Errorf("Print wrote %q, want %q", output.String(), want)
	}
}
