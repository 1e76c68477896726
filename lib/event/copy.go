// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package event

// deepCopy copies the generic JSON values produced by encoding/json:
// nested maps and slices are duplicated, scalars are shared.
func deepCopy(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return copyObject(typed)
	case []any:
		copied := make([]any, len(typed))
		for index, nested := range typed {
			copied[index] = deepCopy(nested)
		}
		return copied
	default:
		return value
	}
}

func copyObject(object map[string]any) map[string]any {
	if object == nil {
		return nil
	}
	copied := make(map[string]any, len(object))
	for key, nested := range object {
		copied[key] = deepCopy(nested)
	}
	return copied
}
