package feature

import (
	"fmt"
)

// Flatten converts raw input into a batch of flat records. Nested maps
// become dot-joined keys, so a receiver address country code ends up
// under "receiver.address.countryCode". A single mapping is treated as
// a batch of one.
func Flatten(input any) ([]map[string]any, error) {
	switch v := input.(type) {
	case map[string]any:
		return []map[string]any{flattenRecord(v)}, nil

	case []map[string]any:
		out := make([]map[string]any, 0, len(v))
		for _, rec := range v {
			out = append(out, flattenRecord(rec))
		}
		return out, nil

	case []any:
		out := make([]map[string]any, 0, len(v))
		for i, item := range v {
			rec, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: element %d is %T", ErrInputFormat, i, item)
			}
			out = append(out, flattenRecord(rec))
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: got %T", ErrInputFormat, input)
	}
}

// flattenRecord walks nested maps depth-first, joining path segments
// with dots. Non-map leaves are copied as-is; all other columns in the
// input survive flattening and are dropped later by the schema select.
func flattenRecord(rec map[string]any) map[string]any {
	flat := make(map[string]any, len(rec))
	flattenInto(flat, "", rec)
	return flat
}

func flattenInto(flat map[string]any, prefix string, rec map[string]any) {
	for key, val := range rec {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		if nested, ok := val.(map[string]any); ok {
			flattenInto(flat, path, nested)
			continue
		}
		flat[path] = val
	}
}
