package mdb

import "fmt"

// EncodingKind classifies how raw bits are interpreted.
type EncodingKind int

const (
	Unsigned EncodingKind = iota + 1
	Signed
	IEEE754
	MILSTD1750A
	CharacterString
	Raw
)

var encodingKindNames = map[EncodingKind]string{
	Unsigned:        "unsigned",
	Signed:          "signed",
	IEEE754:         "ieee754",
	MILSTD1750A:     "milstd1750a",
	CharacterString: "string",
	Raw:             "binary",
}

func (k EncodingKind) String() string {
	if s, ok := encodingKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("EncodingKind(%d)", int(k))
}

// IsInteger reports whether the kind is an integer encoding.
func (k EncodingKind) IsInteger() bool { return k == Unsigned || k == Signed }

// IsNumeric reports whether raw values of this kind are numbers.
func (k EncodingKind) IsNumeric() bool {
	return k.IsInteger() || k == IEEE754 || k == MILSTD1750A
}

// ByteOrder of multi-byte encodings. The zero value is big endian.
type ByteOrder int

const (
	BigEndian ByteOrder = iota
	LittleEndian
)

func (b ByteOrder) String() string {
	if b == LittleEndian {
		return "little_endian"
	}
	return "big_endian"
}

// SignScheme selects the negative number representation of Signed
// encodings. The zero value is two's complement.
type SignScheme int

const (
	TwosComplement SignScheme = iota
	SignMagnitude
	OnesComplement
)

func (s SignScheme) String() string {
	switch s {
	case SignMagnitude:
		return "sign_magnitude"
	case OnesComplement:
		return "ones_complement"
	default:
		return "twos_complement"
	}
}

// Charset of CharacterString encodings. The zero value is US-ASCII.
type Charset string

const (
	USASCII     Charset = "US-ASCII"
	ISO88591    Charset = "ISO-8859-1"
	Windows1252 Charset = "Windows-1252"
	UTF8        Charset = "UTF-8"
	UTF16       Charset = "UTF-16"
	UTF16LE     Charset = "UTF-16LE"
	UTF16BE     Charset = "UTF-16BE"
	UTF32       Charset = "UTF-32"
	UTF32LE     Charset = "UTF-32LE"
	UTF32BE     Charset = "UTF-32BE"
)

var knownCharsets = map[Charset]bool{
	USASCII: true, ISO88591: true, Windows1252: true, UTF8: true,
	UTF16: true, UTF16LE: true, UTF16BE: true,
	UTF32: true, UTF32LE: true, UTF32BE: true,
}

// DynamicSize describes a string or binary field whose length is only
// known in the packet: either a leading length tag or a terminator byte.
type DynamicSize struct {
	// LengthBits is the width of the leading size tag.
	LengthBits uint32

	// Terminated marks a terminator-delimited string.
	Terminated bool
	Terminator byte

	// MaxBits is an optional upper bound, 0 for none.
	MaxBits uint32
}

// Encoding describes how a scalar bit string maps to a raw value.
type Encoding struct {
	Kind       EncodingKind
	Bits       uint32
	ByteOrder  ByteOrder
	Scheme     SignScheme
	Charset    Charset
	Dynamic    *DynamicSize
	Calibrator Calibrator
}

// UnsignedEncoding returns a big endian unsigned integer encoding.
func UnsignedEncoding(bits uint32) Encoding {
	return Encoding{Kind: Unsigned, Bits: bits}
}

// SignedEncoding returns a big endian two's complement encoding.
func SignedEncoding(bits uint32) Encoding {
	return Encoding{Kind: Signed, Bits: bits}
}

// FloatEncoding returns a big endian IEEE 754 encoding.
func FloatEncoding(bits uint32) Encoding {
	return Encoding{Kind: IEEE754, Bits: bits}
}

// StringEncoding returns a fixed-size US-ASCII encoding.
func StringEncoding(bits uint32) Encoding {
	return Encoding{Kind: CharacterString, Bits: bits}
}

// BinaryEncoding returns a fixed-size raw encoding.
func BinaryEncoding(bits uint32) Encoding {
	return Encoding{Kind: Raw, Bits: bits}
}

// LengthPrefixed returns a copy of e sized by a leading tag of tagBits.
func (e Encoding) LengthPrefixed(tagBits uint32) Encoding {
	e.Bits = 0
	e.Dynamic = &DynamicSize{LengthBits: tagBits}
	return e
}

// Terminated returns a copy of e delimited by terminator.
func (e Encoding) Terminated(terminator byte) Encoding {
	e.Bits = 0
	e.Dynamic = &DynamicSize{Terminated: true, Terminator: terminator}
	return e
}

// WithByteOrder returns a copy of e using order.
func (e Encoding) WithByteOrder(order ByteOrder) Encoding {
	e.ByteOrder = order
	return e
}

// WithCalibrator returns a copy of e with c attached.
func (e Encoding) WithCalibrator(c Calibrator) Encoding {
	e.Calibrator = c
	return e
}

// SizeBits returns the fixed width of the encoding, or dynamic=true when
// the width is only known from the packet.
func (e Encoding) SizeBits() (bits int64, dynamic bool) {
	if e.Dynamic != nil {
		return 0, true
	}
	return int64(e.Bits), false
}

// validate checks width and calibrator compatibility. owner is the
// qualified name reported in errors.
func (e Encoding) validate(owner string) error {
	fail := func(field, format string, args ...any) error {
		return &TypeError{QualifiedName: owner, Field: "encoding." + field, Message: fmt.Sprintf(format, args...)}
	}

	if _, ok := encodingKindNames[e.Kind]; !ok {
		return fail("kind", "encoding kind is required")
	}

	if e.Dynamic != nil {
		if e.Kind != CharacterString && e.Kind != Raw {
			return fail("bits", "%s encodings cannot have a dynamic size", e.Kind)
		}
		if e.Bits != 0 {
			return fail("bits", "dynamic encodings cannot also declare a fixed size")
		}
		d := e.Dynamic
		if d.Terminated && e.Kind == Raw {
			return fail("termination", "binary encodings cannot be terminated")
		}
		if d.Terminated == (d.LengthBits > 0) {
			return fail("bits", "dynamic size needs exactly one of a length tag or a terminator")
		}
		if d.LengthBits > 32 {
			return fail("length_bits", "length tag of %d bits exceeds 32", d.LengthBits)
		}
	} else if e.Bits == 0 {
		return fail("bits", "bit width must be greater than zero")
	}

	switch e.Kind {
	case Unsigned, Signed:
		if e.Bits > 64 {
			return fail("bits", "integer width %d exceeds 64", e.Bits)
		}
	case IEEE754:
		if e.Bits != 32 && e.Bits != 64 {
			return fail("bits", "IEEE 754 width must be 32 or 64, got %d", e.Bits)
		}
	case MILSTD1750A:
		if e.Bits != 32 && e.Bits != 48 {
			return fail("bits", "MIL-STD-1750A width must be 32 or 48, got %d", e.Bits)
		}
	case CharacterString:
		if e.Charset != "" && !knownCharsets[e.Charset] {
			return fail("charset", "unknown charset %q", e.Charset)
		}
	}
	if e.Kind != Signed && e.Scheme != TwosComplement {
		return fail("scheme", "sign scheme only applies to signed encodings")
	}

	if e.Calibrator != nil {
		if err := validateCalibrator(e.Kind, e.Calibrator); err != nil {
			return fail("calibrator", "%v", err)
		}
	}
	return nil
}

// rawRange returns the inclusive raw integer bounds of an integer
// encoding.
func (e Encoding) rawRange() (lo, hi int64, ok bool) {
	if !e.Kind.IsInteger() || e.Bits == 0 || e.Bits > 64 {
		return 0, 0, false
	}
	if e.Kind == Unsigned {
		if e.Bits >= 63 {
			return 0, 1<<63 - 1, true
		}
		return 0, int64(1)<<e.Bits - 1, true
	}
	if e.Bits == 64 {
		lo, hi = -1<<63, 1<<63-1
	} else {
		hi = int64(1)<<(e.Bits-1) - 1
		lo = -hi - 1
	}
	if e.Scheme != TwosComplement {
		lo = -hi
	}
	return lo, hi, true
}
