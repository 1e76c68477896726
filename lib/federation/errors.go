// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import (
	"errors"
	"fmt"
)

// Error is a non-2xx response from a remote server. Code and Message
// come from the standard {"errcode", "error"} body when the remote sent
// one; Body always holds the raw response.
type Error struct {
	Method     string `json:"-"`
	URI        string `json:"-"`
	StatusCode int    `json:"-"`
	Code       string `json:"errcode"`
	Message    string `json:"error"`
	Body       []byte `json:"-"`
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("federation: %s %s: HTTP %d: %s", e.Method, e.URI, e.StatusCode, truncate(e.Body, 256))
	}
	return fmt.Sprintf("federation: %s %s: %s (%d): %s", e.Method, e.URI, e.Code, e.StatusCode, e.Message)
}

// Standard error codes seen in federation responses.
const (
	ErrCodeForbidden    = "M_FORBIDDEN"
	ErrCodeNotFound     = "M_NOT_FOUND"
	ErrCodeUnauthorized = "M_UNAUTHORIZED"
	ErrCodeUnrecognized = "M_UNRECOGNIZED"
	ErrCodeLimited      = "M_LIMIT_EXCEEDED"
	ErrCodeIncompatible = "M_INCOMPATIBLE_ROOM_VERSION"
)

// IsFederationError reports whether err is an *Error with the given
// errcode.
func IsFederationError(err error, code string) bool {
	var remote *Error
	if errors.As(err, &remote) {
		return remote.Code == code
	}
	return false
}

// TransportError is a failure to get any response: resolution, dial,
// TLS, timeout, or a body that could not be read.
type TransportError struct {
	Method string
	URI    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("federation: %s %s: %v", e.Method, e.URI, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func truncate(data []byte, limit int) string {
	if len(data) <= limit {
		return string(data)
	}
	return string(data[:limit]) + "..."
}
