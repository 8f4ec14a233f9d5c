package loader

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"

	"github.com/roach88/mdbgen/internal/mdb"
)

// field is a CUE value together with the dotted path used in messages.
type field struct {
	v    cue.Value
	path string
}

func (f field) errorf(code, format string, args ...any) *LoadError {
	return &LoadError{Code: code, Message: f.path + ": " + fmt.Sprintf(format, args...), Pos: f.v.Pos()}
}

// wrap reports an error returned by the tree while adding the node at f.
func (f field) wrap(err error) *LoadError {
	return &LoadError{Code: ErrCodeConstruction, Message: err.Error(), Pos: f.v.Pos(), Err: err}
}

func (f field) lookup(name string) (field, bool) {
	v := f.v.LookupPath(cue.MakePath(cue.Str(name)))
	if !v.Exists() {
		return field{}, false
	}
	return field{v: v, path: f.join(name)}, true
}

func (f field) join(name string) string {
	if f.path == "" {
		return name
	}
	return f.path + "." + name
}

func (f field) has(name string) bool {
	_, ok := f.lookup(name)
	return ok
}

func (f field) str(name string) (string, error) {
	c, ok := f.lookup(name)
	if !ok {
		return "", nil
	}
	s, err := c.v.String()
	if err != nil {
		return "", c.errorf(ErrCodeDefinition, "expected a string")
	}
	return s, nil
}

func (f field) integer(name string) (int64, bool, error) {
	c, ok := f.lookup(name)
	if !ok {
		return 0, false, nil
	}
	n, err := c.v.Int64()
	if err != nil {
		return 0, false, c.errorf(ErrCodeDefinition, "expected an integer")
	}
	return n, true, nil
}

func (f field) number(name string) (float64, bool, error) {
	c, ok := f.lookup(name)
	if !ok {
		return 0, false, nil
	}
	x, err := c.v.Float64()
	if err != nil {
		return 0, false, c.errorf(ErrCodeDefinition, "expected a number")
	}
	return x, true, nil
}

func (f field) flag(name string) (bool, error) {
	c, ok := f.lookup(name)
	if !ok {
		return false, nil
	}
	b, err := c.v.Bool()
	if err != nil {
		return false, c.errorf(ErrCodeDefinition, "expected a boolean")
	}
	return b, nil
}

// duration reads a Go duration string such as "500ms" or "1m30s".
func (f field) duration(name string) (time.Duration, error) {
	s, err := f.str(name)
	if err != nil || s == "" {
		return 0, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		c, _ := f.lookup(name)
		return 0, c.errorf(ErrCodeDefinition, "invalid duration %q", s)
	}
	return d, nil
}

// each calls fn for every regular field of the struct at name, in
// declaration order.
func (f field) each(name string, fn func(label string, c field) error) error {
	c, ok := f.lookup(name)
	if !ok {
		return nil
	}
	iter, err := c.v.Fields()
	if err != nil {
		return c.errorf(ErrCodeDefinition, "expected a struct")
	}
	for iter.Next() {
		label := iter.Label()
		if err := fn(label, field{v: iter.Value(), path: c.join(label)}); err != nil {
			return err
		}
	}
	return nil
}

// items calls fn for every element of the list at name.
func (f field) items(name string, fn func(i int, c field) error) error {
	c, ok := f.lookup(name)
	if !ok {
		return nil
	}
	iter, err := c.v.List()
	if err != nil {
		return c.errorf(ErrCodeDefinition, "expected a list")
	}
	for i := 0; iter.Next(); i++ {
		if err := fn(i, field{v: iter.Value(), path: fmt.Sprintf("%s[%d]", c.path, i)}); err != nil {
			return err
		}
	}
	return nil
}

// literal converts a scalar CUE value to an mdb literal.
func (f field) literal() (mdb.Value, error) {
	switch f.v.Kind() {
	case cue.IntKind:
		n, err := f.v.Int64()
		if err != nil {
			return mdb.Value{}, f.errorf(ErrCodeDefinition, "integer literal: %v", err)
		}
		return mdb.Int(n), nil
	case cue.FloatKind:
		x, err := f.v.Float64()
		if err != nil {
			return mdb.Value{}, f.errorf(ErrCodeDefinition, "float literal: %v", err)
		}
		return mdb.Float(x), nil
	case cue.StringKind:
		s, _ := f.v.String()
		return mdb.String(s), nil
	case cue.BoolKind:
		b, _ := f.v.Bool()
		return mdb.Bool(b), nil
	case cue.BytesKind:
		b, _ := f.v.Bytes()
		return mdb.Bytes(b), nil
	}
	return mdb.Value{}, f.errorf(ErrCodeDefinition, "expected a scalar literal, got %s", f.v.Kind())
}

// comparand renders a comparison value the way restriction criteria
// store it.
func (f field) comparand() (string, error) {
	switch f.v.Kind() {
	case cue.StringKind:
		s, _ := f.v.String()
		return s, nil
	case cue.BoolKind:
		b, _ := f.v.Bool()
		return strconv.FormatBool(b), nil
	case cue.IntKind:
		n, err := f.v.Int64()
		if err != nil {
			return "", f.errorf(ErrCodeDefinition, "integer: %v", err)
		}
		return strconv.FormatInt(n, 10), nil
	case cue.FloatKind:
		x, err := f.v.Float64()
		if err != nil {
			return "", f.errorf(ErrCodeDefinition, "number: %v", err)
		}
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	}
	return "", f.errorf(ErrCodeDefinition, "expected a string, number or boolean")
}

// payload reads a fixed value as CUE bytes or a hex string with an
// optional 0x prefix.
func (f field) payload() ([]byte, error) {
	if f.v.Kind() == cue.BytesKind {
		b, _ := f.v.Bytes()
		return b, nil
	}
	s, err := f.v.String()
	if err != nil {
		return nil, f.errorf(ErrCodeDefinition, "expected bytes or a hex string")
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, f.errorf(ErrCodeDefinition, "invalid hex value %q", s)
	}
	return b, nil
}
