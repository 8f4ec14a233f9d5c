package mdb

import (
	"encoding/hex"
	"strconv"
)

// ValueKind identifies the literal variant held by a Value.
type ValueKind int

const (
	InvalidValue ValueKind = iota
	IntValue
	FloatValue
	StringValue
	BoolValue
	BytesValue
)

func (k ValueKind) String() string {
	switch k {
	case IntValue:
		return "int"
	case FloatValue:
		return "float"
	case StringValue:
		return "string"
	case BoolValue:
		return "bool"
	case BytesValue:
		return "bytes"
	default:
		return "invalid"
	}
}

// Value is a literal used for defaults, initial values and argument
// assignments. The zero Value is invalid and means "unset".
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	s    string
	b    bool
	raw  []byte
}

// Int returns an integer literal. Enumerated types accept it as the raw
// enumeration value.
func Int(v int64) Value { return Value{kind: IntValue, i: v} }

// Float returns a floating point literal.
func Float(v float64) Value { return Value{kind: FloatValue, f: v} }

// String returns a string literal. Enumerated and boolean types accept it
// as a label.
func String(v string) Value { return Value{kind: StringValue, s: v} }

// Bool returns a boolean literal.
func Bool(v bool) Value { return Value{kind: BoolValue, b: v} }

// Bytes returns a binary literal. The slice is copied.
func Bytes(v []byte) Value {
	return Value{kind: BytesValue, raw: append([]byte(nil), v...)}
}

func (v Value) Kind() ValueKind { return v.kind }

// IsSet reports whether v holds a literal.
func (v Value) IsSet() bool { return v.kind != InvalidValue }

func (v Value) AsInt() (int64, bool)     { return v.i, v.kind == IntValue }
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == FloatValue }
func (v Value) AsString() (string, bool) { return v.s, v.kind == StringValue }
func (v Value) AsBool() (bool, bool)     { return v.b, v.kind == BoolValue }

func (v Value) AsBytes() ([]byte, bool) {
	return append([]byte(nil), v.raw...), v.kind == BytesValue
}

// String renders the literal without type context: decimal integers,
// shortest round-trip floats, lowercase hex for bytes.
func (v Value) String() string {
	switch v.kind {
	case IntValue:
		return strconv.FormatInt(v.i, 10)
	case FloatValue:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case StringValue:
		return v.s
	case BoolValue:
		return strconv.FormatBool(v.b)
	case BytesValue:
		return hex.EncodeToString(v.raw)
	default:
		return ""
	}
}
