// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for keystoned.
//
// Configuration is loaded from a single file specified by either the
// KEYSTONE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no search path and no fallback file.
//
// The file may carry environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production is validated more strictly:
// the in-memory room store is rejected there.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${KEYSTONE_ROOT}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
//
// This package depends on no other keystone packages.
package config
