// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the binary encoding for durable records. It uses
// CBOR with Core Deterministic Encoding (RFC 8949 §4.2), so a record
// always encodes to the same bytes and stored rows can be compared
// byte-for-byte.
//
// Identifier types from lib/ref encode as CBOR text strings through
// their TextMarshaler implementations.
package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	options := cbor.CoreDetEncOptions()
	options.TextMarshaler = cbor.TextMarshalerTextString
	var err error
	if encMode, err = options.EncMode(); err != nil {
		panic("codec: building CBOR encoder: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("codec: building CBOR decoder: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encoding %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal decodes data into v. Unknown struct fields are ignored;
// duplicate map keys are rejected.
func Unmarshal(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("codec: decoding %T: %w", v, err)
	}
	return nil
}

// Diagnose renders data in CBOR diagnostic notation, for logs and test
// failure messages.
func Diagnose(data []byte) string {
	notation, err := cbor.Diagnose(data)
	if err != nil {
		return fmt.Sprintf("<invalid CBOR: %v>", err)
	}
	return notation
}
