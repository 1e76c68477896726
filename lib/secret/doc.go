// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds key material in memory the Go runtime never
// manages: an anonymous mmap region, locked against swap and excluded
// from core dumps. The server's ed25519 signing seed lives in a
// [Buffer] for the life of the process and is wiped on Close.
//
// Linux only (golang.org/x/sys/unix).
package secret
