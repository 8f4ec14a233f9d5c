package layout

import (
	"math"

	"github.com/roach88/mdbgen/internal/mdb"
)

// Placement is one entry of an effective entry list with its resolved
// position.
type Placement struct {
	Name  string
	Kind  mdb.EntryKind
	Owner string // qualified name of the level declaring the entry
	Level int    // position of Owner in the chain, 0 is the root
	Index int    // position of the entry within Owner's entries

	Location mdb.Location
	StartBit int64
	SizeBits int64 // 0 for dynamic entries
	Dynamic  bool

	Parameter mdb.ParameterID
	Container mdb.ContainerID
	Argument  string
	Type      mdb.TypeID // parameter or argument type
	Value     []byte     // fixed value payload

	// Assigned is set when an assignment turned an argument slot into a
	// constant for this chain.
	Assigned   mdb.Value
	AssignedBy string
}

// EndBit is the first bit after the entry. Dynamic entries report the
// largest possible bit.
func (p Placement) EndBit() int64 {
	if p.Dynamic {
		return math.MaxInt64
	}
	return p.StartBit + p.SizeBits
}

// Constant reports whether the slot carries a value known before the
// packet is built.
func (p Placement) Constant() bool {
	return p.Kind == mdb.FixedValueEntryKind || p.Assigned.IsSet()
}

func (p Placement) bitRange() Range {
	return Range{Entry: p.Name, Start: p.StartBit, End: p.StartBit + p.SizeBits, Open: p.Dynamic}
}

// Layout is the flattened, resolved structure shared by containers and
// commands.
type Layout struct {
	QualifiedName string
	Abstract      bool
	Chain         []string // qualified names, root first
	Placements    []Placement
	SizeBits      int64
	Dynamic       bool
}

// Lookup returns the last placement named name.
func (l *Layout) Lookup(name string) (Placement, bool) {
	for i := len(l.Placements) - 1; i >= 0; i-- {
		if l.Placements[i].Name == name {
			return l.Placements[i], true
		}
	}
	return Placement{}, false
}

// Own returns the placements declared by the leaf itself, in
// declaration order.
func (l *Layout) Own() []Placement {
	leaf := len(l.Chain) - 1
	var own []Placement
	for _, p := range l.Placements {
		if p.Level == leaf {
			own = append(own, p)
		}
	}
	return own
}

// ContainerLayout is the resolved form of a container.
type ContainerLayout struct {
	ID mdb.ContainerID
	Layout
}

// Binding is the effective state of one argument in a command chain.
type Binding struct {
	Argument   string
	DeclaredBy string
	Level      int
	Type       mdb.TypeID
	Default    mdb.Value
	Assigned   mdb.Value
	AssignedBy string
}

// Free reports whether the issuer may still choose the value.
func (b Binding) Free() bool { return !b.Assigned.IsSet() }

// CommandLayout is the resolved form of a command.
type CommandLayout struct {
	ID mdb.CommandID
	Layout
	Bindings []Binding // root first, declaration order within a level
}

// Binding returns the most derived binding named name.
func (c *CommandLayout) Binding(name string) (Binding, bool) {
	for i := len(c.Bindings) - 1; i >= 0; i-- {
		if c.Bindings[i].Argument == name {
			return c.Bindings[i], true
		}
	}
	return Binding{}, false
}

// RequiredArguments lists the arguments an issuer must supply: free and
// without a default.
func (c *CommandLayout) RequiredArguments() []string {
	var names []string
	for _, b := range c.Bindings {
		if b.Free() && !b.Default.IsSet() {
			names = append(names, b.Argument)
		}
	}
	return names
}

// Model is the read-only result of Resolve.
type Model struct {
	tree       *mdb.Tree
	containers []*ContainerLayout
	commands   []*CommandLayout
	levels     [][]string
}

// Tree returns the resolved tree.
func (m *Model) Tree() *mdb.Tree { return m.tree }

func (m *Model) Container(id mdb.ContainerID) *ContainerLayout {
	if id <= 0 || int(id) > len(m.containers) {
		return nil
	}
	return m.containers[id-1]
}

func (m *Model) Command(id mdb.CommandID) *CommandLayout {
	if id <= 0 || int(id) > len(m.commands) {
		return nil
	}
	return m.commands[id-1]
}

// Levels returns the resolution schedule: each inner slice lists the
// top-level systems resolved together, identified by qualified name.
// Systems joined by "+" form one unit.
func (m *Model) Levels() [][]string {
	out := make([][]string, len(m.levels))
	for i, l := range m.levels {
		out[i] = append([]string(nil), l...)
	}
	return out
}
