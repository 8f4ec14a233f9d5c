package document

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/mdbgen/internal/layout"
)

// Schema identifies the structure of serialized documents.
const Schema = "mdbgen/document/v1"

// Format selects a serialized rendering.
type Format string

const (
	JSON Format = "json"
	CBOR Format = "cbor"
)

// namespace scopes document identifiers.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/roach88/mdbgen/"+Schema))

// ID returns the content-derived identifier of a structural tree: a
// name-based (SHA-1) UUID of its canonical JSON. Equal trees always get
// equal IDs.
func ID(root *Node) uuid.UUID {
	return uuid.NewSHA1(namespace, MarshalCanonical(root))
}

// Options tunes rendering.
type Options struct {
	// Indent pretty-prints JSON output with the given indent. Empty
	// keeps the canonical single-line form. CBOR ignores it.
	Indent string
}

// Serialize builds the structural tree of m and renders it inside an
// envelope carrying the schema and the document ID.
func Serialize(m *layout.Model, format Format, opts Options) ([]byte, error) {
	return Render(Build(m), format, opts)
}

// Render is Serialize for an already built tree.
func Render(root *Node, format Format, opts Options) ([]byte, error) {
	id := ID(root).String()
	switch format {
	case JSON:
		var buf bytes.Buffer
		writeEnvelope(&buf, []Attr{{Key: "document_id", Value: id}, {Key: "schema", Value: Schema}}, "space_system", root)
		if opts.Indent == "" {
			return buf.Bytes(), nil
		}
		var out bytes.Buffer
		if err := json.Indent(&out, buf.Bytes(), "", opts.Indent); err != nil {
			return nil, fmt.Errorf("document: indent: %w", err)
		}
		return out.Bytes(), nil
	case CBOR:
		return cborMode.Marshal(map[string]any{
			"document_id":  id,
			"schema":       Schema,
			"space_system": nodeMap(root),
		})
	default:
		return nil, fmt.Errorf("document: unsupported format %q", format)
	}
}
