// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports which keystone build is running.
//
// [Current] combines the link-time variables ([GitCommit], [GitDirty],
// [BuildTime], [Version]) with the VCS stamps the go command embeds,
// so a plain `go build` from a checkout still reports its commit. The
// result feeds the --version flag, the keystone_build_info metric and
// the User-Agent sent to other homeservers ([UserAgent]).
package version
