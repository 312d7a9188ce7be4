package state

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Value is a sealed interface over the closed set of state value types.
// Only Null, String, Int, Float, Bool, List, and Record implement it.
// Template placeholders and generative writes are converted into this
// closed set before they enter the mutation stream; an untyped "any"
// never crosses a package boundary.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents an explicit JSON null.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string value.
type String string

func (String) value() {}

// Int represents an integer value. Always int64 - integral JSON numbers
// decode to Int so round-trips never lose precision. Mechanical fields
// (counters, scores, transfer amounts) must be Int.
type Int int64

func (Int) value() {}

// Float represents a non-integral numeric value. Mechanical ops accept
// Float operands but any Float involvement promotes the result; artifact
// validation flags Floats on fields the schema declares integral.
type Float float64

func (Float) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// List represents an ordered list of values.
type List []Value

func (List) value() {}

// Record represents a map of string keys to values.
// Use SortedKeys for deterministic iteration.
type Record map[string]Value

func (Record) value() {}

// SortedKeys returns the record's keys in ascending byte order.
func (r Record) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CloneValue returns a deep copy of v. Scalars are returned as-is;
// lists and records are copied element by element.
func CloneValue(v Value) Value {
	switch val := v.(type) {
	case List:
		out := make(List, len(val))
		for i, elem := range val {
			out[i] = CloneValue(elem)
		}
		return out
	case Record:
		out := make(Record, len(val))
		for k, elem := range val {
			out[k] = CloneValue(elem)
		}
		return out
	default:
		return v
	}
}

// Equal reports structural equality between two values.
// Int and Float compare numerically, so Int(2) equals Float(2.0);
// everything else requires matching types. A nil value (absent) is
// equal only to another nil.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if an, aok := numeric(a); aok {
		bn, bok := numeric(b)
		return bok && an == bn
	}

	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Record:
		bv, ok := b.(Record)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, elem := range av {
			other, present := bv[k]
			if !present || !Equal(elem, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare orders two numeric values. Returns the usual -1/0/1 and ok=false
// when either side is not numeric (including absent values, which therefore
// compare falsy rather than erroring).
func Compare(a, b Value) (int, bool) {
	an, aok := numeric(a)
	bn, bok := numeric(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case an < bn:
		return -1, true
	case an > bn:
		return 1, true
	default:
		return 0, true
	}
}

// numeric converts Int or Float to float64 for comparison.
// int64 values above 2^53 lose precision here, which is acceptable for
// ordering comparisons; equality of two Ints short-circuits before this.
func numeric(v Value) (float64, bool) {
	switch n := v.(type) {
	case Int:
		return float64(n), true
	case Float:
		return float64(n), true
	default:
		return 0, false
	}
}

// Truthy reports the boolean interpretation of a value.
// Absent (nil) and Null are false; Bool is itself; numbers are true when
// non-zero; strings, lists, and records are true when non-empty.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case nil:
		return false
	case Null:
		return false
	case Bool:
		return bool(val)
	case Int:
		return val != 0
	case Float:
		return val != 0
	case String:
		return val != ""
	case List:
		return len(val) > 0
	case Record:
		return len(val) > 0
	default:
		return false
	}
}

// UnmarshalJSON implements json.Unmarshaler for Record.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = make(Record, len(raw))
	for k, v := range raw {
		val, err := UnmarshalValue(v)
		if err != nil {
			return fmt.Errorf("record key %q: %w", k, err)
		}
		(*r)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for List.
func (l *List) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*l = make(List, len(raw))
	for i, v := range raw {
		val, err := UnmarshalValue(v)
		if err != nil {
			return fmt.Errorf("list index %d: %w", i, err)
		}
		(*l)[i] = val
	}
	return nil
}

// UnmarshalValue decodes a JSON value into the closed Value set.
// Integral numbers become Int (no float64 round-trip), everything else
// with a fraction or exponent becomes Float.
func UnmarshalValue(data []byte) (Value, error) {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil

	case 'n':
		return Null{}, nil

	case '[':
		var l List
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, err
		}
		return l, nil

	case '{':
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return r, nil

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		if i, err := n.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("number out of range: %s", n)
		}
		return Float(f), nil
	}
}

// FromGo converts a decoded Go value (as produced by encoding/json or
// yaml.v3) into the closed Value set. Integral float64s become Int.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number out of range: %s", val)
		}
		return Float(f), nil
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return Int(int64(val)), nil
		}
		return Float(val), nil
	case []any:
		l := make(List, len(val))
		for i, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			l[i] = conv
		}
		return l, nil
	case map[string]any:
		r := make(Record, len(val))
		for k, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			r[k] = conv
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

// MarshalValue marshals a value to JSON bytes via type-switch dispatch.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Float:
		return json.Marshal(float64(val))
	case Bool:
		return json.Marshal(bool(val))
	case List:
		return marshalList(val)
	case Record:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

// MarshalJSON implements json.Marshaler for Record with sorted keys.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf strings.Builder
	buf.WriteByte('{')

	for i, k := range r.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalValue(r[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return []byte(buf.String()), nil
}

func marshalList(l List) ([]byte, error) {
	var buf strings.Builder
	buf.WriteByte('[')

	for i, elem := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := MarshalValue(elem)
		if err != nil {
			return nil, fmt.Errorf("list[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}

	buf.WriteByte(']')
	return []byte(buf.String()), nil
}
