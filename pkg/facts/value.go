package facts

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ValueKind identifies which variant a Value holds.
type ValueKind string

const (
	ValueBool   ValueKind = "bool"
	ValueNumber ValueKind = "number"
	ValueLabel  ValueKind = "label"
)

// Value is a signal value: a boolean, a finite number, or a label string.
// Values are comparable with ==.
type Value struct {
	kind ValueKind
	b    bool
	n    float64
	s    string
}

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: ValueBool, b: b} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: ValueNumber, n: n} }

// Label returns a label value.
func Label(s string) Value { return Value{kind: ValueLabel, s: s} }

// FromInterface converts a literal decoded from a stage file.
func FromInterface(v interface{}) (Value, error) {
	switch x := v.(type) {
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case string:
		return Label(x), nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported value type %T", ErrInvalidValue, v)
	}
}

// Kind returns the variant held by v. The zero Value has an empty kind.
func (v Value) Kind() ValueKind { return v.kind }

// IsZero reports whether v holds no variant.
func (v Value) IsZero() bool { return v.kind == "" }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == ValueBool }

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == ValueNumber }

// AsLabel returns the label held by v.
func (v Value) AsLabel() (string, bool) { return v.s, v.kind == ValueLabel }

// Valid reports whether v holds a variant and, for numbers, a finite one.
func (v Value) Valid() bool {
	switch v.kind {
	case ValueBool, ValueLabel:
		return true
	case ValueNumber:
		return !math.IsNaN(v.n) && !math.IsInf(v.n, 0)
	default:
		return false
	}
}

// Interface returns the value as bool, float64 or string.
func (v Value) Interface() interface{} {
	switch v.kind {
	case ValueBool:
		return v.b
	case ValueNumber:
		return v.n
	case ValueLabel:
		return v.s
	default:
		return nil
	}
}

// String returns a stable textual form used for logs and digests.
func (v Value) String() string {
	switch v.kind {
	case ValueBool:
		return strconv.FormatBool(v.b)
	case ValueNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case ValueLabel:
		return strconv.Quote(v.s)
	default:
		return "<none>"
	}
}

// MarshalJSON encodes the value as its plain JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes a plain JSON scalar.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*v = Value{}
		return nil
	}
	parsed, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
