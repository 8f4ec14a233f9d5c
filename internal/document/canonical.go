package document

import (
	"bytes"
	"encoding/json"
	"slices"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical renders n as RFC 8785 canonical JSON: object keys in
// UTF-16 code unit order, no insignificant whitespace, no HTML escaping
// and NFC-normalised strings. Empty attributes, children and text are
// omitted.
func MarshalCanonical(n *Node) []byte {
	var buf bytes.Buffer
	writeNode(&buf, n)
	return buf.Bytes()
}

// writeNode emits the keys of a node object. "attrs" < "children" <
// "kind" < "text" in UTF-16 order.
func writeNode(buf *bytes.Buffer, n *Node) {
	buf.WriteByte('{')
	first := true
	key := func(k string) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		writeString(buf, k)
		buf.WriteByte(':')
	}

	if len(n.Attrs) > 0 {
		key("attrs")
		writeAttrs(buf, n.Attrs)
	}
	if len(n.Children) > 0 {
		key("children")
		buf.WriteByte('[')
		for i, c := range n.Children {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeNode(buf, c)
		}
		buf.WriteByte(']')
	}
	key("kind")
	writeString(buf, n.Kind)
	if n.Text != "" {
		key("text")
		writeString(buf, n.Text)
	}
	buf.WriteByte('}')
}

func writeAttrs(buf *bytes.Buffer, attrs []Attr) {
	sorted := slices.Clone(attrs)
	slices.SortStableFunc(sorted, func(a, b Attr) int { return compareUTF16(a.Key, b.Key) })
	buf.WriteByte('{')
	for i, a := range sorted {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, a.Key)
		buf.WriteByte(':')
		writeString(buf, a.Value)
	}
	buf.WriteByte('}')
}

// writeEnvelope renders a flat object of string members followed by the
// node under rootKey, all keys in canonical order.
func writeEnvelope(buf *bytes.Buffer, members []Attr, rootKey string, root *Node) {
	keys := make([]string, 0, len(members)+1)
	values := make(map[string]string, len(members))
	for _, m := range members {
		keys = append(keys, m.Key)
		values[m.Key] = m.Value
	}
	keys = append(keys, rootKey)
	slices.SortFunc(keys, compareUTF16)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, k)
		buf.WriteByte(':')
		if k == rootKey {
			writeNode(buf, root)
		} else {
			writeString(buf, values[k])
		}
	}
	buf.WriteByte('}')
}

// writeString emits a canonical JSON string. Only control characters,
// backslash and quote are escaped; U+2028 and U+2029 stay literal.
func writeString(buf *bytes.Buffer, s string) {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	_ = enc.Encode(norm.NFC.String(s))

	out := bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'})
	buf.Write(unescapeLineSeparators(out))
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes produced by
// encoding/json back into literal characters. An escape preceded by an
// odd number of backslashes is literal text and is left alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if i+6 <= len(data) && bytes.HasPrefix(data[i:], []byte(`\u202`)) && (data[i+5] == '8' || data[i+5] == '9') {
			backslashes := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				backslashes++
			}
			if backslashes%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

// compareUTF16 orders strings by UTF-16 code units as RFC 8785 requires.
// Byte order differs for characters above U+FFFF.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}
