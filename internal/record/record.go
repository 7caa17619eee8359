// Package record defines the JSON-like value model shared by the pipeline
// primitives and the variable resolver. A value is whatever encoding/json
// produces: nil, bool, float64, string, List or Map.
package record

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// Value is any JSON-decoded value.
type Value = any

// Map is a key-ordered object. Go maps are unordered in memory; canonical
// serialization sorts keys, which is what ordering means here.
type Map = map[string]any

// List is an ordered sequence.
type List = []any

// Canonical returns the canonical text form of a value: strings as-is,
// numbers without trailing zeros, maps and lists as compact JSON with
// sorted keys.
func Canonical(v Value) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		// Maps and lists. encoding/json sorts map keys.
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// AsNumber coerces numeric representations to float64.
func AsNumber(v Value) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Compare orders two scalar values. Numbers compare numerically, strings
// lexically. Mixed or non-orderable types are an error, not a silent skip.
func Compare(a, b Value) (int, error) {
	na, aNum := AsNumber(a)
	nb, bNum := AsNumber(b)
	if aNum && bNum {
		switch {
		case na < nb:
			return -1, nil
		case na > nb:
			return 1, nil
		default:
			return 0, nil
		}
	}

	sa, aStr := a.(string)
	sb, bStr := b.(string)
	if aStr && bStr {
		switch {
		case sa < sb:
			return -1, nil
		case sa > sb:
			return 1, nil
		default:
			return 0, nil
		}
	}

	return 0, errors.Errorf("cannot compare %T with %T", a, b)
}

// Equal reports deep equality with numeric coercion at the top level, so
// that 2 == 2.0 regardless of how the value was decoded.
func Equal(a, b Value) bool {
	if na, ok := AsNumber(a); ok {
		if nb, ok := AsNumber(b); ok {
			return na == nb
		}
		return false
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ja) == string(jb)
}

// Field looks up a key on a map value.
func Field(v Value, name string) (Value, bool) {
	m, ok := v.(Map)
	if !ok {
		return nil, false
	}
	val, ok := m[name]
	return val, ok
}

// Decode parses JSON bytes into a Value.
func Decode(data []byte) (Value, error) {
	var v Value
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrap(err, "invalid JSON value")
	}
	return v, nil
}

// Clone deep-copies a value by round-tripping through JSON.
func Clone(v Value) Value {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	out, err := Decode(b)
	if err != nil {
		return v
	}
	return out
}
