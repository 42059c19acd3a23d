// Package cachestore is the single place serialization and schema
// versioning live for every persisted cache. Entry types implement
// Cacheable; Store handles the {version, items} envelope, atomic writes,
// advisory locking, and tolerant loading.
package cachestore

import (
	"fmt"
	"time"
)

// Cacheable is implemented by every persisted cache entry type. The
// returned primitives may contain only strings, numbers, booleans,
// ordered sequences, and string-keyed mappings — no opaque types and no
// cycles. Anything set-valued must be serialized as a sorted sequence so
// output never depends on iteration order.
type Cacheable interface {
	ToPrimitives() map[string]any
}

// DecodeFunc reconstructs an entry from its primitive form. It must be a
// pure inverse of ToPrimitives: decode(x.ToPrimitives()) == x for every
// valid x.
type DecodeFunc[T Cacheable] func(map[string]any) (T, error)

// Primitive accessors. JSON unmarshaling produces map[string]any with
// float64 numbers and []any sequences; decoders use these helpers rather
// than repeating type switches.

// String returns the string at key, or an error if absent or mistyped.
func String(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, want string", key, v)
	}
	return s, nil
}

// OptionalString returns the string at key or "" when absent.
func OptionalString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// Bool returns the bool at key, defaulting to false when absent.
func Bool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

// Int returns the integer at key. JSON numbers arrive as float64.
func Int(m map[string]any, key string) (int, error) {
	v, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("field %q is %T, want number", key, v)
	}
}

// StringSlice returns the sequence of strings at key. An absent key is an
// empty slice; a present non-sequence or mixed-type sequence is an error.
func StringSlice(m map[string]any, key string) ([]string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch seq := v.(type) {
	case []string:
		return seq, nil
	case []any:
		out := make([]string, 0, len(seq))
		for i, item := range seq {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("field %q[%d] is %T, want string", key, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("field %q is %T, want sequence", key, v)
	}
}

// StringMap returns the string-keyed string mapping at key. Absent keys
// yield an empty map.
func StringMap(m map[string]any, key string) (map[string]string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return map[string]string{}, nil
	}
	switch mm := v.(type) {
	case map[string]string:
		return mm, nil
	case map[string]any:
		out := make(map[string]string, len(mm))
		for k, item := range mm {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("field %q[%q] is %T, want string", key, k, item)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("field %q is %T, want mapping", key, v)
	}
}

// StringsMap returns the string-keyed string-sequence mapping at key.
func StringsMap(m map[string]any, key string) (map[string][]string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return map[string][]string{}, nil
	}
	switch mm := v.(type) {
	case map[string][]string:
		return mm, nil
	case map[string]any:
		out := make(map[string][]string, len(mm))
		for k := range mm {
			vals, err := StringSlice(mm, k)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			out[k] = vals
		}
		return out, nil
	default:
		return nil, fmt.Errorf("field %q is %T, want mapping", key, v)
	}
}

// MapSlice returns the sequence of mappings at key.
func MapSlice(m map[string]any, key string) ([]map[string]any, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch seq := v.(type) {
	case []map[string]any:
		return seq, nil
	case []any:
		out := make([]map[string]any, 0, len(seq))
		for i, item := range seq {
			mm, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("field %q[%d] is %T, want mapping", key, i, item)
			}
			out = append(out, mm)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("field %q is %T, want sequence", key, v)
	}
}

// Time returns the RFC 3339 timestamp at key, or the zero time when absent.
func Time(m map[string]any, key string) (time.Time, error) {
	s := OptionalString(m, key)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %q: %w", key, err)
	}
	return t, nil
}

// FormatTime renders t the way Time parses it. Zero times serialize as "".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}
