// Package riverdb defines the JSON value model shared by the query-language
// core: documents are plain decoded JSON (nil, bool, float64, string, []any,
// map[string]any) and this package supplies the deep-copy, ordering, and
// canonical-encoding operations the checker, evaluator, and stream operators
// build on.
package riverdb

import (
	"fmt"
	"math"
	"strconv"
)

// Value is a decoded JSON document or fragment.  Numbers are always float64,
// arrays are []any, and objects are map[string]any, i.e., exactly what
// encoding/json produces with default settings.
type Value = any

// Kind ranks the JSON kinds for cross-kind ordering.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return fmt.Sprintf("kind-%d", int(k))
}

// KindOf maps a value onto its JSON kind.  Values outside the JSON model
// panic since they can only arise from a bug in the caller.
func KindOf(v Value) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case float64:
		return KindNumber
	case string:
		return KindString
	case []any:
		return KindArray
	case map[string]any:
		return KindObject
	}
	panic(fmt.Sprintf("not a JSON value: %T", v))
}

// Copy returns a deep copy of v.  Streams and operators hand out shared
// documents, so anything that mutates must copy first.
func Copy(v Value) Value {
	switch v := v.(type) {
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = Copy(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, elem := range v {
			out[key] = Copy(elem)
		}
		return out
	default:
		return v
	}
}

// Ptr boxes a value so stream producers can hand out the nil-means-exhausted
// convention without conflating JSON null with end of stream.
func Ptr(v Value) *Value {
	return &v
}

// Number returns the numeric payload of v or an error naming the actual kind.
func Number(v Value) (float64, error) {
	if f, ok := v.(float64); ok {
		return f, nil
	}
	return 0, fmt.Errorf("expected number but found %s", KindOf(v))
}

// Int returns v as an integer, rejecting non-numbers and non-integral values.
func Int(v Value) (int, error) {
	f, err := Number(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("number %v is not an integer", f)
	}
	return int(f), nil
}

// String returns the string payload of v or an error naming the actual kind.
func String(v Value) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("expected string but found %s", KindOf(v))
}

// Bool returns the boolean payload of v or an error naming the actual kind.
func Bool(v Value) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("expected bool but found %s", KindOf(v))
}

// Array returns the array payload of v or an error naming the actual kind.
func Array(v Value) ([]any, error) {
	if a, ok := v.([]any); ok {
		return a, nil
	}
	return nil, fmt.Errorf("expected array but found %s", KindOf(v))
}

// Object returns the object payload of v or an error naming the actual kind.
func Object(v Value) (map[string]any, error) {
	if o, ok := v.(map[string]any); ok {
		return o, nil
	}
	return nil, fmt.Errorf("expected object but found %s", KindOf(v))
}

// FormatNumber renders a float64 the way JSON does, with integral values
// printed without a fractional part.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
