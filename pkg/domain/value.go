// Package domain holds the entity shapes and the dynamic-value type shared
// by the template renderer, the dependency resolver, and the scene engine.
package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSeq
	KindMap
)

// Value is the tagged union used everywhere a ported "any" JSON value used
// to flow through the original service: condition operands, template
// variables, call-log input_variables. Exactly one of the typed fields is
// meaningful, selected by Kind.
type Value struct {
	Kind Kind
	Bool bool
	Num  float64
	Str  string
	Seq  []Value
	Map  map[string]Value
}

// Null is the absent/nil value.
var Null = Value{Kind: KindNull}

func BoolValue(b bool) Value   { return Value{Kind: KindBool, Bool: b} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func SeqValue(items ...Value) Value {
	return Value{Kind: KindSeq, Seq: items}
}
func MapValue(m map[string]Value) Value {
	return Value{Kind: KindMap, Map: m}
}

// IsNull reports whether v is the null/absent value.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Equal implements the equality used by the eq/neq condition operators and
// by "in"/"not_in" sequence membership. Numbers compare by value, not by
// representation; everything else compares structurally.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		// Allow null vs. missing comparisons across kinds only when both are null.
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == other.Bool
	case KindNumber:
		return v.Num == other.Num
	case KindString:
		return v.Str == other.Str
	case KindSeq:
		if len(v.Seq) != len(other.Seq) {
			return false
		}
		for i := range v.Seq {
			if !v.Seq[i].Equal(other.Seq[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.Map) != len(other.Map) {
			return false
		}
		for k, mv := range v.Map {
			ov, ok := other.Map[k]
			if !ok || !mv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// CanonicalString renders v the way the enum check coerces values before
// comparing against VariableDef.EnumValues: booleans as lowercase
// "true"/"false", everything else via its textual representation.
func (v Value) CanonicalString() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindString:
		return v.Str
	case KindSeq:
		parts := make([]string, len(v.Seq))
		for i, e := range v.Seq {
			parts[i] = e.CanonicalString()
		}
		b, _ := json.Marshal(parts)
		return string(b)
	case KindMap:
		return fmt.Sprintf("%v", v.Interface())
	}
	return ""
}

// Interface converts a Value back into a plain Go value (string, float64,
// bool, nil, []any, map[string]any) for consumption by the template
// expansion layer, which only ever sees primitives — never a Go struct or
// method, which is what keeps the sandbox closed.
func (v Value) Interface() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num
	case KindString:
		return v.Str
	case KindSeq:
		out := make([]any, len(v.Seq))
		for i, e := range v.Seq {
			out[i] = e.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.Map))
		for k, e := range v.Map {
			out[k] = e.Interface()
		}
		return out
	}
	return nil
}

// FromInterface lifts a decoded JSON value (as produced by encoding/json
// into an `any`) into a Value.
func FromInterface(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null
	case bool:
		return BoolValue(x)
	case float64:
		return NumberValue(x)
	case int:
		return NumberValue(float64(x))
	case string:
		return StringValue(x)
	case []any:
		seq := make([]Value, len(x))
		for i, e := range x {
			seq[i] = FromInterface(e)
		}
		return Value{Kind: KindSeq, Seq: seq}
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			m[k] = FromInterface(e)
		}
		return Value{Kind: KindMap, Map: m}
	default:
		return StringValue(fmt.Sprintf("%v", x))
	}
}

// MarshalJSON implements json.Marshaler by round-tripping through Interface.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON implements json.Unmarshaler by decoding into `any` and
// lifting the result with FromInterface.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromInterface(raw)
	return nil
}

// ValueMap is a convenience alias for the string-keyed variable bags that
// flow through rendering and condition evaluation.
type ValueMap map[string]Value

// Merge returns a new ValueMap with `overrides` applied on top of m; m is
// not mutated. Keys in overrides win.
func (m ValueMap) Merge(overrides ValueMap) ValueMap {
	out := make(ValueMap, len(m)+len(overrides))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// SortedKeys returns m's keys sorted ascending, used when error messages
// must list names deterministically (e.g. VARIABLES_MISSING).
func (m ValueMap) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToInterfaceMap converts m into a plain map[string]any for handing to the
// template expansion engine.
func (m ValueMap) ToInterfaceMap() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}
