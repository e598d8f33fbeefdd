// Tagged scalar union used for data cells and the total order over it.

package dataset

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the scalar type stored in a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindTime
)

// String returns the classification label used in schema summaries.
func (k Kind) String() string {
	switch k {
	case KindInt, KindFloat:
		return "number"
	case KindBool:
		return "boolean"
	case KindString:
		return "string"
	case KindTime:
		return "datetime"
	default:
		return "null"
	}
}

// Value is an immutable tagged scalar: null, integer, float, boolean,
// string, or timestamp. The zero Value is null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	t    time.Time
}

// NullValue returns the null Value.
func NullValue() Value { return Value{} }

// IntValue returns an integer Value.
func IntValue(v int64) Value { return Value{kind: KindInt, i: v} }

// FloatValue returns a float Value.
func FloatValue(v float64) Value { return Value{kind: KindFloat, f: v} }

// BoolValue returns a boolean Value.
func BoolValue(v bool) Value {
	var i int64
	if v {
		i = 1
	}
	return Value{kind: KindBool, i: i}
}

// StringValue returns a string Value.
func StringValue(v string) Value { return Value{kind: KindString, s: v} }

// TimeValue returns a timestamp Value.
func TimeValue(v time.Time) Value { return Value{kind: KindTime, t: v} }

// Kind returns the scalar kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int returns the integer payload. Only meaningful for KindInt.
func (v Value) Int() int64 { return v.i }

// Bool returns the boolean payload. Only meaningful for KindBool.
func (v Value) Bool() bool { return v.i != 0 }

// Time returns the timestamp payload. Only meaningful for KindTime.
func (v Value) Time() time.Time { return v.t }

// Float returns the value as a float64 when it is numeric (int or float).
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// String renders the value for display and "contains" matching.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.i != 0)
	case KindString:
		return v.s
	case KindTime:
		return v.t.Format(time.RFC3339)
	default:
		return ""
	}
}

// Any returns the value as a plain Go scalar suitable for serialization:
// nil, int64, float64, bool, string, or an RFC 3339 timestamp string.
func (v Value) Any() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.i != 0
	case KindString:
		return v.s
	case KindTime:
		return v.t.Format(time.RFC3339)
	default:
		return nil
	}
}

// MarshalJSON encodes the value as a plain JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// kindRank orders values of incomparable kinds deterministically:
// null < numbers < bool < string < time.
func (v Value) kindRank() int {
	switch v.kind {
	case KindNull:
		return 0
	case KindInt, KindFloat:
		return 1
	case KindBool:
		return 2
	case KindString:
		return 3
	case KindTime:
		return 4
	default:
		return 5
	}
}

// Compare defines the total order over values. Nulls sort first. Integers
// and floats compare numerically across kinds. Values of different,
// non-numeric kinds order by kind rank.
func Compare(a, b Value) int {
	ra, rb := a.kindRank(), b.kindRank()
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch {
	case ra == 0:
		return 0
	case ra == 1:
		if a.kind == KindInt && b.kind == KindInt {
			return cmpInt64(a.i, b.i)
		}
		fa, _ := a.Float()
		fb, _ := b.Float()
		return cmpFloat(fa, fb)
	case a.kind == KindBool:
		return cmpInt64(a.i, b.i)
	case a.kind == KindString:
		return strings.Compare(a.s, b.s)
	default:
		return a.t.Compare(b.t)
	}
}

// Equal reports whether two values are equal under Compare.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// timeLayouts are accepted when classifying textual cells as timestamps.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// ParseValue classifies a textual cell into the narrowest scalar kind.
// Empty cells are null. Used by the CSV and XLSX decoders, which only see
// strings on the wire.
func ParseValue(s string) Value {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return NullValue()
	}
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return IntValue(i)
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return FloatValue(f)
	}
	switch trimmed {
	case "true", "True", "TRUE":
		return BoolValue(true)
	case "false", "False", "FALSE":
		return BoolValue(false)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return TimeValue(t)
		}
	}
	return StringValue(s)
}
