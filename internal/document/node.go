package document

import "golang.org/x/text/unicode/norm"

// Node kinds emitted by Build.
const (
	KindSpaceSystem     = "space_system"
	KindLongDescription = "long_description"
	KindAlias           = "alias"
	KindAncillary       = "ancillary"

	KindTypes       = "types"
	KindType        = "type"
	KindEncoding    = "encoding"
	KindCalibrator  = "calibrator"
	KindTerm        = "term"
	KindPoint       = "point"
	KindPair        = "pair"
	KindRange       = "range"
	KindChoice      = "choice"
	KindMember      = "member"
	KindParameters  = "parameters"
	KindParameter   = "parameter"
	KindContainers  = "containers"
	KindContainer   = "container"
	KindRestriction = "restriction"
	KindComparison  = "comparison"
	KindEntry       = "entry"
	KindCommands    = "commands"
	KindCommand     = "command"
	KindArgument    = "argument"
	KindAssignment  = "assignment"
	KindVerifier    = "verifier"
	KindConstraint  = "constraint"
	KindAlgorithms  = "algorithms"
	KindAlgorithm   = "algorithm"
	KindText        = "text"
	KindInput       = "input"
	KindOutput      = "output"
	KindTrigger     = "trigger"
)

// Attr is one key/value attribute of a Node. Values are rendered
// strings; numbers use their decimal form.
type Attr struct {
	Key   string
	Value string
}

// Node is an element of the structural tree. Attributes and children
// keep insertion order.
type Node struct {
	Kind     string
	Attrs    []Attr
	Text     string
	Children []*Node
}

// Attr returns the value of the attribute named key.
func (n *Node) Attr(key string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Child returns the first child of the given kind, or nil.
func (n *Node) Child(kind string) *Node {
	for _, c := range n.Children {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}

// ChildrenOf returns the children of the given kind in order.
func (n *Node) ChildrenOf(kind string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Find returns the child of the given kind whose name attribute is name.
func (n *Node) Find(kind, name string) *Node {
	for _, c := range n.Children {
		if v, _ := c.Attr("name"); c.Kind == kind && v == name {
			return c
		}
	}
	return nil
}

// set stores an NFC-normalised attribute, replacing an existing key.
func (n *Node) set(key, value string) {
	value = norm.NFC.String(value)
	for i := range n.Attrs {
		if n.Attrs[i].Key == key {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Key: key, Value: value})
}

// setIf stores value unless it is empty.
func (n *Node) setIf(key, value string) {
	if value != "" {
		n.set(key, value)
	}
}

// flag stores "true" when b is set and nothing otherwise.
func (n *Node) flag(key string, b bool) {
	if b {
		n.set(key, "true")
	}
}

func (n *Node) add(kind string) *Node {
	c := &Node{Kind: kind}
	n.Children = append(n.Children, c)
	return c
}

// addSection appends c if it has children.
func (n *Node) addSection(c *Node) {
	if len(c.Children) > 0 {
		n.Children = append(n.Children, c)
	}
}
