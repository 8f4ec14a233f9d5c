package loader

import (
	"github.com/roach88/mdbgen/internal/mdb"
)

var encodingKinds = map[string]mdb.EncodingKind{
	"unsigned":    mdb.Unsigned,
	"signed":      mdb.Signed,
	"float":       mdb.IEEE754,
	"milstd1750a": mdb.MILSTD1750A,
	"string":      mdb.CharacterString,
	"binary":      mdb.Raw,
}

var signSchemes = map[string]mdb.SignScheme{
	"twos_complement": mdb.TwosComplement,
	"sign_magnitude":  mdb.SignMagnitude,
	"ones_complement": mdb.OnesComplement,
}

// encoding reads the encoding of the type at f: either the name of a
// predefined encoding such as "uint16_t" or an explicit struct.
func encoding(f field) (mdb.Encoding, error) {
	c, ok := f.lookup("encoding")
	if !ok {
		return mdb.Encoding{}, nil
	}
	if name, err := c.v.String(); err == nil {
		enc, ok := mdb.PredefinedEncoding(name)
		if !ok {
			return mdb.Encoding{}, c.errorf(ErrCodeUnresolved, "unknown predefined encoding %q", name)
		}
		return enc, nil
	}

	kind, err := c.str("kind")
	if err != nil {
		return mdb.Encoding{}, err
	}
	k, ok := encodingKinds[kind]
	if !ok {
		return mdb.Encoding{}, c.errorf(ErrCodeDefinition, "unknown encoding kind %q", kind)
	}
	bits, _, err := c.integer("bits")
	if err != nil {
		return mdb.Encoding{}, err
	}
	enc := mdb.Encoding{Kind: k, Bits: uint32(bits)}

	order, err := c.str("byte_order")
	if err != nil {
		return mdb.Encoding{}, err
	}
	if order == "little" {
		enc = enc.WithByteOrder(mdb.LittleEndian)
	}
	scheme, err := c.str("scheme")
	if err != nil {
		return mdb.Encoding{}, err
	}
	if scheme != "" {
		enc.Scheme = signSchemes[scheme]
	}
	charset, err := c.str("charset")
	if err != nil {
		return mdb.Encoding{}, err
	}
	enc.Charset = mdb.Charset(charset)

	if n, ok, err := c.integer("length_bits"); err != nil {
		return mdb.Encoding{}, err
	} else if ok {
		enc = enc.LengthPrefixed(uint32(n))
		if bits != 0 {
			return mdb.Encoding{}, c.errorf(ErrCodeDefinition, "bits and length_bits are exclusive")
		}
	}
	if n, ok, err := c.integer("terminator"); err != nil {
		return mdb.Encoding{}, err
	} else if ok {
		if enc.Dynamic != nil || bits != 0 {
			return mdb.Encoding{}, c.errorf(ErrCodeDefinition, "terminator excludes bits and length_bits")
		}
		enc = enc.Terminated(byte(n))
	}
	if n, ok, err := c.integer("max_bits"); err != nil {
		return mdb.Encoding{}, err
	} else if ok {
		if enc.Dynamic == nil {
			return mdb.Encoding{}, c.errorf(ErrCodeDefinition, "max_bits only applies to dynamic sizes")
		}
		enc.Dynamic.MaxBits = uint32(n)
	}
	return enc, nil
}

// calibrator reads the optional calibrator of the type at f. Exactly one
// form may be given.
func calibrator(f field) (mdb.Calibrator, error) {
	c, ok := f.lookup("calibrator")
	if !ok {
		return nil, nil
	}
	var forms []string
	for _, name := range []string{"polynomial", "spline", "lookup", "custom"} {
		if c.has(name) {
			forms = append(forms, name)
		}
	}
	if len(forms) != 1 {
		return nil, c.errorf(ErrCodeDefinition, "exactly one of polynomial, spline, lookup or custom is required")
	}

	switch forms[0] {
	case "polynomial":
		var p mdb.Polynomial
		err := c.items("polynomial", func(_ int, term field) error {
			x, err := term.v.Float64()
			if err != nil {
				return term.errorf(ErrCodeDefinition, "expected a number")
			}
			p.Coefficients = append(p.Coefficients, x)
			return nil
		})
		return p, err

	case "spline":
		s, _ := c.lookup("spline")
		order, _, err := s.integer("order")
		if err != nil {
			return nil, err
		}
		spline := mdb.Spline{Order: int(order)}
		err = s.items("points", func(_ int, pt field) error {
			raw, _, err := pt.number("raw")
			if err != nil {
				return err
			}
			cal, _, err := pt.number("calibrated")
			if err != nil {
				return err
			}
			spline.Points = append(spline.Points, mdb.SplinePoint{Raw: raw, Calibrated: cal})
			return nil
		})
		return spline, err

	case "lookup":
		var l mdb.Lookup
		err := c.items("lookup", func(_ int, e field) error {
			raw, _, err := e.integer("raw")
			if err != nil {
				return err
			}
			value, _, err := e.number("value")
			if err != nil {
				return err
			}
			l.Entries = append(l.Entries, mdb.LookupEntry{Raw: raw, Value: value})
			return nil
		})
		return l, err

	default:
		cu, _ := c.lookup("custom")
		language, err := cu.str("language")
		if err != nil {
			return nil, err
		}
		text, err := cu.str("text")
		if err != nil {
			return nil, err
		}
		return mdb.Custom{Language: language, Text: text}, nil
	}
}

// typeDeps returns the first type reference of the definition at f that
// sys cannot resolve yet.
func (b *builder) typeDeps(sys mdb.SystemID, f field) (string, error) {
	var refs []string
	element, err := f.str("element")
	if err != nil {
		return "", err
	}
	if element != "" {
		refs = append(refs, element)
	}
	err = f.items("members", func(_ int, m field) error {
		ref, err := m.str("type")
		refs = append(refs, ref)
		return err
	})
	if err != nil {
		return "", err
	}
	for _, ref := range refs {
		if _, ok := b.tree.LookupType(sys, ref); !ok {
			return ref, nil
		}
	}
	return "", nil
}

// typeDef builds the definition of the type at f. Referenced types must
// already exist.
func (b *builder) typeDef(sys mdb.SystemID, f field) (mdb.TypeDef, error) {
	kind, err := f.str("kind")
	if err != nil {
		return nil, err
	}
	enc, err := encoding(f)
	if err != nil {
		return nil, err
	}
	cal, err := calibrator(f)
	if err != nil {
		return nil, err
	}
	if cal != nil {
		enc = enc.WithCalibrator(cal)
	}
	units, err := f.str("units")
	if err != nil {
		return nil, err
	}

	switch kind {
	case "integer":
		signed, err := f.flag("signed")
		if err != nil {
			return nil, err
		}
		def := mdb.IntegerType{Signed: signed, Encoding: enc, Units: units}
		if r, ok := f.lookup("range"); ok {
			lo, hasMin, err := r.integer("min")
			if err != nil {
				return nil, err
			}
			hi, hasMax, err := r.integer("max")
			if err != nil {
				return nil, err
			}
			if !hasMin || !hasMax {
				return nil, r.errorf(ErrCodeDefinition, "integer ranges need both min and max")
			}
			def.Range = &mdb.IntRange{Min: lo, Max: hi}
		}
		return def, nil

	case "float":
		hint, _, err := f.integer("size_hint")
		if err != nil {
			return nil, err
		}
		def := mdb.FloatType{Bits: uint32(hint), Encoding: enc, Units: units}
		if r, ok := f.lookup("range"); ok {
			def.Range = &mdb.FloatRange{}
			if def.Range.Min, err = floatBound(r, "min"); err != nil {
				return nil, err
			}
			if def.Range.Max, err = floatBound(r, "max"); err != nil {
				return nil, err
			}
		}
		return def, nil

	case "boolean":
		zero, err := f.str("zero_label")
		if err != nil {
			return nil, err
		}
		one, err := f.str("one_label")
		if err != nil {
			return nil, err
		}
		return mdb.BooleanType{Encoding: enc, ZeroLabel: zero, OneLabel: one}, nil

	case "enumerated":
		def := mdb.EnumeratedType{Encoding: enc}
		err := f.items("choices", func(_ int, c field) error {
			value, _, err := c.integer("value")
			if err != nil {
				return err
			}
			label, err := c.str("label")
			if err != nil {
				return err
			}
			desc, err := c.str("description")
			if err != nil {
				return err
			}
			def.Choices = append(def.Choices, mdb.Choice{Value: value, Label: label, Description: desc})
			return nil
		})
		return def, err

	case "string", "binary":
		lo, _, err := f.integer("min_length")
		if err != nil {
			return nil, err
		}
		hi, _, err := f.integer("max_length")
		if err != nil {
			return nil, err
		}
		if kind == "string" {
			return mdb.StringType{Encoding: enc, MinLength: int(lo), MaxLength: int(hi)}, nil
		}
		return mdb.BinaryType{Encoding: enc, MinLength: int(lo), MaxLength: int(hi)}, nil

	case "absolute_time":
		epoch, err := f.str("epoch")
		if err != nil {
			return nil, err
		}
		ref, err := f.str("reference")
		if err != nil {
			return nil, err
		}
		offset, _, err := f.number("offset")
		if err != nil {
			return nil, err
		}
		scale, _, err := f.number("scale")
		if err != nil {
			return nil, err
		}
		return mdb.AbsoluteTimeType{Encoding: enc, Epoch: mdb.Epoch(epoch), Reference: ref, Offset: offset, Scale: scale}, nil

	case "aggregate":
		var def mdb.AggregateType
		err := f.items("members", func(_ int, m field) error {
			name, err := m.str("name")
			if err != nil {
				return err
			}
			ref, err := m.str("type")
			if err != nil {
				return err
			}
			desc, err := m.str("short_description")
			if err != nil {
				return err
			}
			id, _ := b.tree.LookupType(sys, ref)
			def.Members = append(def.Members, mdb.Member{Name: name, Type: id, ShortDescription: desc})
			return nil
		})
		return def, err

	case "array":
		ref, err := f.str("element")
		if err != nil {
			return nil, err
		}
		element, ok := b.tree.LookupType(sys, ref)
		if !ok {
			return nil, f.errorf(ErrCodeUnresolved, "unknown data type %q", ref)
		}
		length, _, err := f.integer("length")
		if err != nil {
			return nil, err
		}
		entry, err := f.str("length_entry")
		if err != nil {
			return nil, err
		}
		return mdb.ArrayType{Element: element, Length: length, LengthEntry: entry}, nil
	}
	return nil, f.errorf(ErrCodeDefinition, "unknown type kind %q", kind)
}

func floatBound(r field, side string) (*mdb.FloatBound, error) {
	x, ok, err := r.number(side)
	if err != nil || !ok {
		return nil, err
	}
	exclusive, err := r.flag(side + "_exclusive")
	if err != nil {
		return nil, err
	}
	return &mdb.FloatBound{Value: x, Exclusive: exclusive}, nil
}
