package tool

import (
	"encoding/json"
	"fmt"
	"math"
)

// MissingParameterError reports a required parameter that was not supplied.
type MissingParameterError struct {
	Key string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing required parameter %q", e.Key)
}

// TypeMismatchError reports a parameter that could not be coerced to the
// requested type.
type TypeMismatchError struct {
	Key      string
	Expected string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("parameter %q is not a valid %s", e.Key, e.Expected)
}

// Primitive is the set of types a parameter can be coerced to.
type Primitive interface {
	~string | ~int | ~bool | ~float64
}

// ParameterBag holds decoded tool-call arguments keyed by name. Values may
// be already-typed Go values or raw JSON deferred until a typed accessor
// asks for them.
type ParameterBag struct {
	values map[string]any
}

func NewParameterBag() *ParameterBag {
	return &ParameterBag{values: make(map[string]any)}
}

func (b *ParameterBag) Add(key string, value any) {
	b.values[key] = value
}

func (b *ParameterBag) Len() int {
	return len(b.values)
}

// Get returns the parameter coerced to T, or def when the key is absent.
// A present value that cannot be coerced is a TypeMismatchError, not a
// silent default.
func Get[T Primitive](b *ParameterBag, key string, def T) (T, error) {
	raw, ok := b.values[key]
	if !ok {
		return def, nil
	}
	v, ok := coerce[T](raw)
	if !ok {
		return def, &TypeMismatchError{Key: key, Expected: typeName[T]()}
	}
	return v, nil
}

// GetRequired returns the parameter coerced to T and fails with
// MissingParameterError when the key is absent.
func GetRequired[T Primitive](b *ParameterBag, key string) (T, error) {
	var zero T
	raw, ok := b.values[key]
	if !ok {
		return zero, &MissingParameterError{Key: key}
	}
	v, ok := coerce[T](raw)
	if !ok {
		return zero, &TypeMismatchError{Key: key, Expected: typeName[T]()}
	}
	return v, nil
}

// TryGet is Get without the failure path: the flag is false when the key
// is absent or the value cannot be coerced.
func TryGet[T Primitive](b *ParameterBag, key string) (T, bool) {
	var zero T
	raw, ok := b.values[key]
	if !ok {
		return zero, false
	}
	return coerce[T](raw)
}

func coerce[T Primitive](raw any) (T, bool) {
	var out T
	if direct, ok := raw.(T); ok {
		return direct, true
	}
	switch v := raw.(type) {
	case json.RawMessage:
		if err := json.Unmarshal(v, &out); err != nil {
			return out, false
		}
		return out, true
	case []byte:
		if err := json.Unmarshal(v, &out); err != nil {
			return out, false
		}
		return out, true
	case float64:
		// JSON numbers decoded through any arrive as float64.
		if p, ok := any(&out).(*int); ok && v == math.Trunc(v) {
			*p = int(v)
			return out, true
		}
	case int:
		if p, ok := any(&out).(*float64); ok {
			*p = float64(v)
			return out, true
		}
	}
	return out, false
}

func typeName[T Primitive]() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}
