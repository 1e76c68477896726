// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds reads of HTTP response bodies. Federation
// peers are untrusted: a response larger than MaxResponseSize is an
// error, not a truncated document.
package netutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxResponseSize bounds a single federation response. send_join
// responses carry a room's full state and auth chain, so the bound is
// generous.
const MaxResponseSize int64 = 64 << 20

// ErrResponseTooLarge reports a body over MaxResponseSize.
var ErrResponseTooLarge = errors.New("response body exceeds size limit")

// ReadResponse reads body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, ErrResponseTooLarge
	}
	return data, nil
}

// DecodeResponse reads body and decodes it as JSON into v. Numbers
// decoded into interface values stay json.Number.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}
