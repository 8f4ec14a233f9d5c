package document

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborMode uses the RFC 8949 core deterministic encoding: shortest
// integer forms, definite lengths and bytewise-sorted map keys.
var cborMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("document: cbor encoding mode: %v", err))
	}
	return em
}()

// MarshalCBOR renders n as deterministic CBOR. Each node is a map with
// the same keys as the canonical JSON form.
func MarshalCBOR(n *Node) ([]byte, error) {
	return cborMode.Marshal(nodeMap(n))
}

func nodeMap(n *Node) map[string]any {
	m := map[string]any{"kind": n.Kind}
	if len(n.Attrs) > 0 {
		attrs := make(map[string]string, len(n.Attrs))
		for _, a := range n.Attrs {
			attrs[a.Key] = a.Value
		}
		m["attrs"] = attrs
	}
	if len(n.Children) > 0 {
		children := make([]any, len(n.Children))
		for i, c := range n.Children {
			children[i] = nodeMap(c)
		}
		m["children"] = children
	}
	if n.Text != "" {
		m["text"] = n.Text
	}
	return m
}
