package mdb

import (
	"fmt"
	"math"
	"slices"
	"time"
	"unicode/utf8"
)

// TypeKind identifies the DataType variant.
type TypeKind int

const (
	IntegerKind TypeKind = iota + 1
	FloatKind
	BooleanKind
	EnumeratedKind
	StringKind
	BinaryKind
	AbsoluteTimeKind
	AggregateKind
	ArrayKind
)

var typeKindNames = map[TypeKind]string{
	IntegerKind:      "integer",
	FloatKind:        "float",
	BooleanKind:      "boolean",
	EnumeratedKind:   "enumerated",
	StringKind:       "string",
	BinaryKind:       "binary",
	AbsoluteTimeKind: "absolute_time",
	AggregateKind:    "aggregate",
	ArrayKind:        "array",
}

func (k TypeKind) String() string {
	if s, ok := typeKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("TypeKind(%d)", int(k))
}

// TypeDef is the variant payload of a DataType.
type TypeDef interface {
	TypeKind() TypeKind
}

// IntRange is an inclusive integer range.
type IntRange struct {
	Min int64
	Max int64
}

// FloatBound is one side of a float range.
type FloatBound struct {
	Value     float64
	Exclusive bool
}

// FloatRange bounds a float value. Either side may be open (nil).
type FloatRange struct {
	Min *FloatBound
	Max *FloatBound
}

type IntegerType struct {
	Signed   bool
	Encoding Encoding
	Range    *IntRange
	Units    string
}

type FloatType struct {
	Bits     uint32 // engineering size hint: 0, 32 or 64
	Encoding Encoding
	Range    *FloatRange
	Units    string
}

type BooleanType struct {
	Encoding  Encoding
	ZeroLabel string // defaults to "False"
	OneLabel  string // defaults to "True"
}

// Choice is one enumeration state.
type Choice struct {
	Value       int64
	Label       string
	Description string
}

type EnumeratedType struct {
	Encoding Encoding
	Choices  []Choice
	// Range optionally narrows the valid states. Both bounds must be
	// declared values.
	Range *IntRange
}

type StringType struct {
	Encoding  Encoding
	MinLength int // characters, 0 for none
	MaxLength int
}

type BinaryType struct {
	Encoding  Encoding
	MinLength int // bytes, 0 for none
	MaxLength int
}

// Epoch is a well-known time reference.
type Epoch string

const (
	EpochTAI   Epoch = "TAI"
	EpochJ2000 Epoch = "J2000"
	EpochUNIX  Epoch = "UNIX"
	EpochGPS   Epoch = "GPS"
)

type AbsoluteTimeType struct {
	Encoding Encoding
	// Epoch or Reference (a parameter reference) anchors the value.
	Epoch     Epoch
	Reference string
	Offset    float64
	Scale     float64 // 0 means 1
}

// Member is one named field of an aggregate.
type Member struct {
	Name             string
	Type             TypeID
	ShortDescription string
}

type AggregateType struct {
	Members []Member
}

// ArrayType repeats Element either Length times or as many times as the
// integer entry named LengthEntry says.
type ArrayType struct {
	Element     TypeID
	Length      int64
	LengthEntry string
}

func (IntegerType) TypeKind() TypeKind      { return IntegerKind }
func (FloatType) TypeKind() TypeKind        { return FloatKind }
func (BooleanType) TypeKind() TypeKind      { return BooleanKind }
func (EnumeratedType) TypeKind() TypeKind   { return EnumeratedKind }
func (StringType) TypeKind() TypeKind       { return StringKind }
func (BinaryType) TypeKind() TypeKind       { return BinaryKind }
func (AbsoluteTimeType) TypeKind() TypeKind { return AbsoluteTimeKind }
func (AggregateType) TypeKind() TypeKind    { return AggregateKind }
func (ArrayType) TypeKind() TypeKind        { return ArrayKind }

// DataType is a named, shareable type registered at a system.
type DataType struct {
	ID               TypeID
	System           SystemID
	Name             string
	QualifiedName    string
	ShortDescription string
	LongDescription  string
	Def              TypeDef

	// SizeBits is fixed at construction. Dynamic types report 0 and
	// Dynamic=true.
	SizeBits int64
	Dynamic  bool
}

func (d *DataType) Kind() TypeKind { return d.Def.TypeKind() }

// Encoding returns the encoding of scalar kinds.
func (d *DataType) Encoding() (Encoding, bool) {
	switch def := d.Def.(type) {
	case IntegerType:
		return def.Encoding, true
	case FloatType:
		return def.Encoding, true
	case BooleanType:
		return def.Encoding, true
	case EnumeratedType:
		return def.Encoding, true
	case StringType:
		return def.Encoding, true
	case BinaryType:
		return def.Encoding, true
	case AbsoluteTimeType:
		return def.Encoding, true
	}
	return Encoding{}, false
}

// TypeSpec is the input to Tree.AddType.
type TypeSpec struct {
	Name             string
	ShortDescription string
	LongDescription  string
	Def              TypeDef
}

// checkType validates def and computes its size. Slices in def are
// cloned so later edits by the caller do not reach the tree.
func (t *Tree) checkType(qname string, def TypeDef) (TypeDef, int64, bool, []Warning, error) {
	fail := func(field, format string, args ...any) error {
		return &TypeError{QualifiedName: qname, Field: field, Message: fmt.Sprintf(format, args...)}
	}
	scalar := func(enc Encoding, accept func(EncodingKind) bool, what string) (int64, bool, error) {
		if err := enc.validate(qname); err != nil {
			return 0, false, err
		}
		if !accept(enc.Kind) {
			return 0, false, fail("encoding.kind", "%s types cannot use %s encoding", what, enc.Kind)
		}
		bits, dyn := enc.SizeBits()
		return bits, dyn, nil
	}

	switch def := def.(type) {
	case nil:
		return nil, 0, false, nil, fail("", "type definition is required")

	case IntegerType:
		bits, dyn, err := scalar(def.Encoding, EncodingKind.IsNumeric, "integer")
		if err != nil {
			return nil, 0, false, nil, err
		}
		if r := def.Range; r != nil {
			if r.Min > r.Max {
				return nil, 0, false, nil, fail("range", "min %d is greater than max %d", r.Min, r.Max)
			}
			if def.Encoding.Calibrator == nil {
				if lo, hi, ok := def.Encoding.rawRange(); ok && (r.Min < lo || r.Max > hi) {
					return nil, 0, false, nil, fail("range", "[%d, %d] does not fit a %d-bit %s encoding [%d, %d]",
						r.Min, r.Max, def.Encoding.Bits, def.Encoding.Kind, lo, hi)
				}
			}
			if !def.Signed && r.Min < 0 {
				return nil, 0, false, nil, fail("range.min", "unsigned type cannot have negative minimum %d", r.Min)
			}
		}
		return def, bits, dyn, nil, nil

	case FloatType:
		bits, dyn, err := scalar(def.Encoding, EncodingKind.IsNumeric, "float")
		if err != nil {
			return nil, 0, false, nil, err
		}
		if def.Bits != 0 && def.Bits != 32 && def.Bits != 64 {
			return nil, 0, false, nil, fail("bits", "float size must be 32 or 64, got %d", def.Bits)
		}
		if r := def.Range; r != nil && r.Min != nil && r.Max != nil {
			if r.Min.Value > r.Max.Value || math.IsNaN(r.Min.Value) || math.IsNaN(r.Max.Value) {
				return nil, 0, false, nil, fail("range", "min %g is greater than max %g", r.Min.Value, r.Max.Value)
			}
		}
		return def, bits, dyn, nil, nil

	case BooleanType:
		bits, dyn, err := scalar(def.Encoding, EncodingKind.IsInteger, "boolean")
		if err != nil {
			return nil, 0, false, nil, err
		}
		if def.ZeroLabel == "" {
			def.ZeroLabel = "False"
		}
		if def.OneLabel == "" {
			def.OneLabel = "True"
		}
		if def.ZeroLabel == def.OneLabel {
			return nil, 0, false, nil, fail("labels", "zero and one labels are both %q", def.ZeroLabel)
		}
		return def, bits, dyn, nil, nil

	case EnumeratedType:
		bits, dyn, err := scalar(def.Encoding, EncodingKind.IsInteger, "enumerated")
		if err != nil {
			return nil, 0, false, nil, err
		}
		if len(def.Choices) == 0 {
			return nil, 0, false, nil, fail("choices", "enumeration has no values")
		}
		def.Choices = slices.Clone(def.Choices)
		lo, hi, bounded := def.Encoding.rawRange()
		bounded = bounded && def.Encoding.Calibrator == nil
		var warnings []Warning
		values := make(map[int64]bool, len(def.Choices))
		labels := make(map[string]bool, len(def.Choices))
		for i, c := range def.Choices {
			if values[c.Value] {
				return nil, 0, false, nil, fail(fmt.Sprintf("choices[%d]", i), "duplicate value %d", c.Value)
			}
			values[c.Value] = true
			if bounded && (c.Value < lo || c.Value > hi) {
				return nil, 0, false, nil, fail(fmt.Sprintf("choices[%d]", i),
					"value %d does not fit a %d-bit %s encoding", c.Value, def.Encoding.Bits, def.Encoding.Kind)
			}
			if c.Label == "" {
				return nil, 0, false, nil, fail(fmt.Sprintf("choices[%d]", i), "label is required")
			}
			if labels[c.Label] {
				warnings = append(warnings, Warning{QualifiedName: qname, Message: fmt.Sprintf("duplicate enumeration label %q", c.Label)})
			}
			labels[c.Label] = true
		}
		if r := def.Range; r != nil {
			if r.Min > r.Max {
				return nil, 0, false, nil, fail("range", "min %d is greater than max %d", r.Min, r.Max)
			}
			if !values[r.Min] {
				return nil, 0, false, nil, fail("range.min", "%d is not an enumeration value", r.Min)
			}
			if !values[r.Max] {
				return nil, 0, false, nil, fail("range.max", "%d is not an enumeration value", r.Max)
			}
		}
		return def, bits, dyn, warnings, nil

	case StringType:
		bits, dyn, err := scalar(def.Encoding, func(k EncodingKind) bool { return k == CharacterString }, "string")
		if err != nil {
			return nil, 0, false, nil, err
		}
		if def.MinLength < 0 || def.MaxLength < 0 || (def.MaxLength > 0 && def.MinLength > def.MaxLength) {
			return nil, 0, false, nil, fail("length", "invalid length bounds [%d, %d]", def.MinLength, def.MaxLength)
		}
		return def, bits, dyn, nil, nil

	case BinaryType:
		bits, dyn, err := scalar(def.Encoding, func(k EncodingKind) bool { return k == Raw }, "binary")
		if err != nil {
			return nil, 0, false, nil, err
		}
		if def.MinLength < 0 || def.MaxLength < 0 || (def.MaxLength > 0 && def.MinLength > def.MaxLength) {
			return nil, 0, false, nil, fail("length", "invalid length bounds [%d, %d]", def.MinLength, def.MaxLength)
		}
		return def, bits, dyn, nil, nil

	case AbsoluteTimeType:
		bits, dyn, err := scalar(def.Encoding, EncodingKind.IsNumeric, "absolute time")
		if err != nil {
			return nil, 0, false, nil, err
		}
		if (def.Epoch == "") == (def.Reference == "") {
			return nil, 0, false, nil, fail("epoch", "exactly one of epoch or reference is required")
		}
		switch def.Epoch {
		case "", EpochTAI, EpochJ2000, EpochUNIX, EpochGPS:
		default:
			return nil, 0, false, nil, fail("epoch", "unknown epoch %q", def.Epoch)
		}
		if def.Scale == 0 {
			def.Scale = 1
		}
		return def, bits, dyn, nil, nil

	case AggregateType:
		if len(def.Members) == 0 {
			return nil, 0, false, nil, fail("members", "aggregate has no members")
		}
		def.Members = slices.Clone(def.Members)
		var size int64
		dynamic := false
		names := make(map[string]bool, len(def.Members))
		for i, m := range def.Members {
			field := fmt.Sprintf("members[%d]", i)
			if err := checkName(m.Name); err != "" {
				return nil, 0, false, nil, fail(field, "member name %q: %s", m.Name, err)
			}
			if names[m.Name] {
				return nil, 0, false, nil, fail(field, "duplicate member name %q", m.Name)
			}
			names[m.Name] = true
			mt := t.Type(m.Type)
			if mt == nil {
				return nil, 0, false, nil, fail(field, "member %q has no valid type", m.Name)
			}
			if mt.Dynamic {
				dynamic = true
			}
			size += mt.SizeBits
		}
		if dynamic {
			size = 0
		}
		return def, size, dynamic, nil, nil

	case ArrayType:
		et := t.Type(def.Element)
		if et == nil {
			return nil, 0, false, nil, fail("element", "element type is required")
		}
		if (def.Length > 0) == (def.LengthEntry != "") {
			return nil, 0, false, nil, fail("length", "exactly one of a fixed length or a length entry is required")
		}
		if def.Length < 0 {
			return nil, 0, false, nil, fail("length", "negative length %d", def.Length)
		}
		if def.LengthEntry != "" || et.Dynamic {
			return def, 0, true, nil, nil
		}
		return def, def.Length * et.SizeBits, false, nil, nil
	}
	return nil, 0, false, nil, fail("", "unsupported type definition %T", def)
}

// CheckValue validates a literal against a data type. It fails with a
// TypeError naming the type when the literal is of the wrong kind or
// outside the type's valid values.
func (t *Tree) CheckValue(id TypeID, v Value) error {
	dt := t.Type(id)
	if dt == nil {
		return &TypeError{QualifiedName: fmt.Sprintf("type#%d", id), Message: "unknown data type"}
	}
	fail := func(format string, args ...any) error {
		return &TypeError{QualifiedName: dt.QualifiedName, Field: "value", Message: fmt.Sprintf(format, args...)}
	}
	if !v.IsSet() {
		return fail("literal is not set")
	}

	switch def := dt.Def.(type) {
	case IntegerType:
		n, ok := v.AsInt()
		if !ok {
			return fail("%s literal %q is not an integer", v.Kind(), v)
		}
		if r := def.Range; r != nil {
			if n < r.Min || n > r.Max {
				return fail("%d is outside the valid range [%d, %d]", n, r.Min, r.Max)
			}
		} else if def.Encoding.Calibrator == nil {
			if lo, hi, ok := def.Encoding.rawRange(); ok && (n < lo || n > hi) {
				return fail("%d does not fit a %d-bit %s encoding", n, def.Encoding.Bits, def.Encoding.Kind)
			}
		}
		if !def.Signed && n < 0 {
			return fail("%d is negative for an unsigned type", n)
		}

	case FloatType:
		var f float64
		switch v.Kind() {
		case FloatValue:
			f, _ = v.AsFloat()
		case IntValue:
			n, _ := v.AsInt()
			f = float64(n)
		default:
			return fail("%s literal %q is not a number", v.Kind(), v)
		}
		if r := def.Range; r != nil {
			if b := r.Min; b != nil && (f < b.Value || (b.Exclusive && f == b.Value)) {
				return fail("%g is below the valid minimum %g", f, b.Value)
			}
			if b := r.Max; b != nil && (f > b.Value || (b.Exclusive && f == b.Value)) {
				return fail("%g is above the valid maximum %g", f, b.Value)
			}
		}

	case BooleanType:
		if _, ok := v.AsBool(); ok {
			return nil
		}
		if s, ok := v.AsString(); ok && (s == def.ZeroLabel || s == def.OneLabel) {
			return nil
		}
		return fail("%q is neither a boolean nor one of %q, %q", v, def.ZeroLabel, def.OneLabel)

	case EnumeratedType:
		c, ok := lookupChoice(def, v)
		if !ok {
			return fail("%q is not a value of the enumeration", v)
		}
		if r := def.Range; r != nil && (c.Value < r.Min || c.Value > r.Max) {
			return fail("%d (%s) is outside the valid range [%d, %d]", c.Value, c.Label, r.Min, r.Max)
		}

	case StringType:
		s, ok := v.AsString()
		if !ok {
			return fail("%s literal is not a string", v.Kind())
		}
		n := utf8.RuneCountInString(s)
		if n < def.MinLength || (def.MaxLength > 0 && n > def.MaxLength) {
			return fail("length %d is outside [%d, %d]", n, def.MinLength, def.MaxLength)
		}
		if bits, dyn := def.Encoding.SizeBits(); !dyn && int64(len(s))*8 > bits {
			return fail("%d bytes do not fit %d bits", len(s), bits)
		}

	case BinaryType:
		b, ok := v.AsBytes()
		if !ok {
			return fail("%s literal is not binary", v.Kind())
		}
		if len(b) < def.MinLength || (def.MaxLength > 0 && len(b) > def.MaxLength) {
			return fail("length %d is outside [%d, %d]", len(b), def.MinLength, def.MaxLength)
		}
		if bits, dyn := def.Encoding.SizeBits(); !dyn && int64(len(b))*8 > (bits+7)/8*8 {
			return fail("%d bytes do not fit %d bits", len(b), bits)
		}

	case AbsoluteTimeType:
		s, ok := v.AsString()
		if !ok {
			return fail("%s literal is not a timestamp", v.Kind())
		}
		if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
			return fail("%q is not an RFC 3339 timestamp", s)
		}

	default:
		return fail("%s types cannot hold a literal", dt.Kind())
	}
	return nil
}

// FormatValue renders a literal the way it appears in an output document:
// enumeration and boolean values by label, everything else by
// Value.String. The literal must already pass CheckValue.
func (t *Tree) FormatValue(id TypeID, v Value) string {
	dt := t.Type(id)
	if dt == nil {
		return v.String()
	}
	switch def := dt.Def.(type) {
	case EnumeratedType:
		if c, ok := lookupChoice(def, v); ok {
			return c.Label
		}
	case BooleanType:
		if b, ok := v.AsBool(); ok {
			if b {
				return def.OneLabel
			}
			return def.ZeroLabel
		}
	}
	return v.String()
}

func lookupChoice(def EnumeratedType, v Value) (Choice, bool) {
	if n, ok := v.AsInt(); ok {
		for _, c := range def.Choices {
			if c.Value == n {
				return c, true
			}
		}
	}
	if s, ok := v.AsString(); ok {
		for _, c := range def.Choices {
			if c.Label == s {
				return c, true
			}
		}
	}
	return Choice{}, false
}
