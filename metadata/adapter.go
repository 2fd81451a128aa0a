package metadata

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// FromAny converts a Go value into a typed Value. Integers of every width
// become Int, floats become Float, and nested maps become Object.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case float32, float64:
		return Float(reflect.ValueOf(x).Float()), nil
	case int, int8, int16, int32, int64:
		return Int(reflect.ValueOf(x).Int()), nil
	case uint, uint8, uint16, uint32, uint64:
		u := reflect.ValueOf(x).Uint()
		if u > math.MaxInt64 {
			return Value{}, fmt.Errorf("metadata uint64 out of range: %d", u)
		}
		return Int(int64(u)), nil
	case json.Number:
		// JSON decoded with UseNumber keeps integers exact.
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("metadata number %q: %w", x, err)
		}
		return Float(f), nil
	case []Value:
		return Array(x), nil
	case []any:
		return arrayOf(x, FromAny)
	case []string:
		return arrayOf(x, func(s string) (Value, error) { return String(s), nil })
	case []int:
		return arrayOf(x, func(i int) (Value, error) { return Int(int64(i)), nil })
	case []float64:
		return arrayOf(x, func(f float64) (Value, error) { return Float(f), nil })
	case map[string]any:
		d, err := DocumentFromAny(x)
		if err != nil {
			return Value{}, err
		}
		return Object(d), nil
	case map[string]string:
		d := make(map[string]Value, len(x))
		for k, s := range x {
			d[k] = String(s)
		}
		return Object(d), nil
	default:
		return Value{}, fmt.Errorf("unsupported metadata value type %T", v)
	}
}

func arrayOf[T any](xs []T, conv func(T) (Value, error)) (Value, error) {
	arr := make([]Value, len(xs))
	for i, x := range xs {
		v, err := conv(x)
		if err != nil {
			return Value{}, err
		}
		arr[i] = v
	}
	return Array(arr), nil
}

// DocumentFromAny converts a map[string]any document to a typed Document.
func DocumentFromAny(m map[string]any) (Document, error) {
	d := make(Document, len(m))
	for k, v := range m {
		vv, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("metadata field %q: %w", k, err)
		}
		d[k] = vv
	}
	return d, nil
}
