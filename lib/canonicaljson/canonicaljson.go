// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package canonicaljson implements the Matrix canonical JSON encoding
// used as the input to every content hash and signature: object keys
// sorted by code point, no insignificant whitespace, no HTML escaping,
// raw UTF-8 for every non-control character, and integer-only numbers.
//
// Values are decoded with json.Number so integers larger than 2^53
// survive a decode/encode cycle byte-for-byte. encoding/json sorts map
// keys on output, which gives the required ordering once every object
// is a map[string]any.
package canonicaljson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Marshal encodes v as canonical JSON. Structs, maps, and previously
// decoded values are all accepted; structs are first encoded with their
// json tags and then re-canonicalized.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: encoding: %w", err)
	}
	return Canonicalize(raw)
}

// Canonicalize re-encodes a JSON document in canonical form. Fractional
// and exponent numbers are rejected.
func Canonicalize(data []byte) ([]byte, error) {
	value, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := checkNumbers(value); err != nil {
		return nil, err
	}

	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return nil, fmt.Errorf("canonicaljson: encoding: %w", err)
	}
	return unescapeLineSeparators(bytes.TrimSuffix(buffer.Bytes(), []byte("\n"))), nil
}

// unescapeLineSeparators rewrites the \u2028 and \u2029 escapes that
// encoding/json always emits back into raw UTF-8. An escape only counts
// when it is preceded by an even run of backslashes.
func unescapeLineSeparators(encoded []byte) []byte {
	if !bytes.Contains(encoded, []byte(`\u202`)) {
		return encoded
	}
	output := make([]byte, 0, len(encoded))
	for i := 0; i < len(encoded); i++ {
		if encoded[i] != '\\' {
			output = append(output, encoded[i])
			continue
		}
		if i+5 < len(encoded) && string(encoded[i+1:i+5]) == "u202" {
			switch encoded[i+5] {
			case '8':
				output = append(output, "\u2028"...)
				i += 5
				continue
			case '9':
				output = append(output, "\u2029"...)
				i += 5
				continue
			}
		}
		// Copy any other escape whole so its second byte is never
		// mistaken for the start of a new one.
		output = append(output, encoded[i])
		if i+1 < len(encoded) {
			i++
			output = append(output, encoded[i])
		}
	}
	return output
}

// DecodeObject decodes a JSON object into a map, keeping numbers as
// json.Number.
func DecodeObject(data []byte) (map[string]any, error) {
	value, err := decode(data)
	if err != nil {
		return nil, err
	}
	object, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("canonicaljson: expected a JSON object, got %T", value)
	}
	return object, nil
}

// ToObject converts any JSON-encodable value into its generic object
// form.
func ToObject(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: encoding: %w", err)
	}
	return DecodeObject(raw)
}

// ToValue converts any JSON-encodable value into its generic form:
// map[string]any, []any, string, json.Number, bool, or nil.
func ToValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: encoding: %w", err)
	}
	return decode(raw)
}

func decode(data []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("canonicaljson: decoding: %w", err)
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, fmt.Errorf("canonicaljson: trailing data after JSON value")
	}
	return value, nil
}

func checkNumbers(value any) error {
	switch typed := value.(type) {
	case json.Number:
		if _, err := strconv.ParseInt(string(typed), 10, 64); err != nil {
			return fmt.Errorf("canonicaljson: number %s is not a 64-bit integer", typed)
		}
	case map[string]any:
		for _, nested := range typed {
			if err := checkNumbers(nested); err != nil {
				return err
			}
		}
	case []any:
		for _, nested := range typed {
			if err := checkNumbers(nested); err != nil {
				return err
			}
		}
	}
	return nil
}
