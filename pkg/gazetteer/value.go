package gazetteer

import (
	"reflect"
	"sort"
)

// Value is the opaque structured payload of one attribute fact. Payloads are
// JSON-like mappings keyed by field name; per-type field expectations are
// enforced by the confidence scorer's completeness check, not by the store,
// so new attribute types need no store migration.
type Value map[string]any

// Equal reports structural equality between two payloads. Numeric fields
// are compared after normalization so a payload decoded from YAML (int)
// matches one decoded from JSON (float64).
func (v Value) Equal(other Value) bool {
	if len(v) != len(other) {
		return false
	}
	for key, a := range v {
		b, ok := other[key]
		if !ok {
			return false
		}
		if !fieldEqual(a, b) {
			return false
		}
	}
	return true
}

// fieldEqual compares two payload fields with numeric normalization.
func fieldEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// toFloat normalizes the numeric types produced by the JSON and YAML decoders.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Clone returns a shallow copy of the payload. Nested values are shared;
// committed versions are never mutated in place, so sharing is safe.
func (v Value) Clone() Value {
	if v == nil {
		return nil
	}
	out := make(Value, len(v))
	for key, val := range v {
		out[key] = val
	}
	return out
}

// Fields returns the payload's field names in sorted order.
func (v Value) Fields() []string {
	fields := make([]string, 0, len(v))
	for key := range v {
		fields = append(fields, key)
	}
	sort.Strings(fields)
	return fields
}

// String returns the payload field as a string, if present and a string.
func (v Value) String(field string) (string, bool) {
	s, ok := v[field].(string)
	return s, ok
}

// Float returns the payload field as a float64, normalizing integer types.
func (v Value) Float(field string) (float64, bool) {
	raw, ok := v[field]
	if !ok {
		return 0, false
	}
	return toFloat(raw)
}
