package mdb

import (
	"fmt"
	"slices"
)

var predefined = func() map[string]Encoding {
	m := make(map[string]Encoding)
	for bits := uint32(1); bits <= 64; bits++ {
		m[fmt.Sprintf("uint%d_t", bits)] = UnsignedEncoding(bits)
		if bits > 1 {
			m[fmt.Sprintf("int%d_t", bits)] = SignedEncoding(bits)
		}
	}
	for _, bits := range []uint32{16, 24, 32, 48, 64} {
		m[fmt.Sprintf("uint%dle_t", bits)] = UnsignedEncoding(bits).WithByteOrder(LittleEndian)
		m[fmt.Sprintf("int%dle_t", bits)] = SignedEncoding(bits).WithByteOrder(LittleEndian)
	}
	for _, bits := range []uint32{32, 64} {
		m[fmt.Sprintf("float%d_t", bits)] = FloatEncoding(bits)
		m[fmt.Sprintf("float%dle_t", bits)] = FloatEncoding(bits).WithByteOrder(LittleEndian)
	}
	return m
}()

// PredefinedEncoding returns the encoding registered under a short name
// such as "uint11_t", "int16le_t" or "float32_t".
func PredefinedEncoding(name string) (Encoding, bool) {
	e, ok := predefined[name]
	return e, ok
}

// PredefinedEncodings lists the registered short names in sorted order.
func PredefinedEncodings() []string {
	names := make([]string, 0, len(predefined))
	for name := range predefined {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
