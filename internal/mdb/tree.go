package mdb

import (
	"fmt"
	"path"
	"slices"
	"strings"
)

// Handles into the tree arena. The zero handle means none.
type (
	SystemID    int
	TypeID      int
	ParameterID int
	ContainerID int
	CommandID   int
	AlgorithmID int
)

func (id SystemID) Valid() bool    { return id > 0 }
func (id TypeID) Valid() bool      { return id > 0 }
func (id ParameterID) Valid() bool { return id > 0 }
func (id ContainerID) Valid() bool { return id > 0 }
func (id CommandID) Valid() bool   { return id > 0 }
func (id AlgorithmID) Valid() bool { return id > 0 }

// Kind identifies a node kind. Each kind has its own name space, so a
// container and a command may share a qualified name.
type Kind int

const (
	SystemNode Kind = iota + 1
	TypeNode
	ParameterNode
	ContainerNode
	CommandNode
	AlgorithmNode
)

func (k Kind) String() string {
	switch k {
	case SystemNode:
		return "system"
	case TypeNode:
		return "type"
	case ParameterNode:
		return "parameter"
	case ContainerNode:
		return "container"
	case CommandNode:
		return "command"
	case AlgorithmNode:
		return "algorithm"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Separator joins the segments of a qualified name.
const Separator = "/"

// System is a namespace node. It lists the nodes declared at its level
// in declaration order.
type System struct {
	ID               SystemID
	Parent           SystemID
	Name             string
	QualifiedName    string
	ShortDescription string
	LongDescription  string
	Aliases          []Alias

	Children   []SystemID
	Types      []TypeID
	Parameters []ParameterID
	Containers []ContainerID
	Commands   []CommandID
	Algorithms []AlgorithmID
}

// SystemSpec is the input to New and Tree.AddSystem.
type SystemSpec struct {
	Name             string
	ShortDescription string
	LongDescription  string
	Aliases          []Alias
}

// registry maps qualified names to handles, one map per kind. It is owned
// by the tree and consulted on every insert.
type registry map[Kind]map[string]int

func (r registry) lookup(kind Kind, qname string) (int, bool) {
	h, ok := r[kind][qname]
	return h, ok
}

func (r registry) claim(kind Kind, qname string, handle int) {
	m := r[kind]
	if m == nil {
		m = make(map[string]int)
		r[kind] = m
	}
	m[qname] = handle
}

// Tree owns every node of a mission database. It is not safe for
// concurrent mutation; once built it may be read concurrently.
type Tree struct {
	systems    []*System
	types      []*DataType
	parameters []*Parameter
	containers []*Container
	commands   []*Command
	algorithms []*Algorithm

	names    registry
	warnings []Warning
}

// New creates a tree whose root system is described by root.
func New(root SystemSpec) (*Tree, error) {
	if reason := checkName(root.Name); reason != "" {
		return nil, &InvalidNameError{Kind: SystemNode, Parent: Separator, Name: root.Name, Reason: reason}
	}
	t := &Tree{names: make(registry)}
	sys := &System{
		ID:               1,
		Name:             root.Name,
		QualifiedName:    Separator + root.Name,
		ShortDescription: root.ShortDescription,
		LongDescription:  root.LongDescription,
		Aliases:          slices.Clone(root.Aliases),
	}
	t.systems = append(t.systems, sys)
	t.names.claim(SystemNode, sys.QualifiedName, int(sys.ID))
	return t, nil
}

// Root returns the root system handle.
func (t *Tree) Root() SystemID { return 1 }

func (t *Tree) System(id SystemID) *System {
	if id <= 0 || int(id) > len(t.systems) {
		return nil
	}
	return t.systems[id-1]
}

func (t *Tree) Type(id TypeID) *DataType {
	if id <= 0 || int(id) > len(t.types) {
		return nil
	}
	return t.types[id-1]
}

func (t *Tree) Parameter(id ParameterID) *Parameter {
	if id <= 0 || int(id) > len(t.parameters) {
		return nil
	}
	return t.parameters[id-1]
}

func (t *Tree) Container(id ContainerID) *Container {
	if id <= 0 || int(id) > len(t.containers) {
		return nil
	}
	return t.containers[id-1]
}

func (t *Tree) Command(id CommandID) *Command {
	if id <= 0 || int(id) > len(t.commands) {
		return nil
	}
	return t.commands[id-1]
}

func (t *Tree) Algorithm(id AlgorithmID) *Algorithm {
	if id <= 0 || int(id) > len(t.algorithms) {
		return nil
	}
	return t.algorithms[id-1]
}

// Counts of each arena. Handles run from 1 to the count.
func (t *Tree) NumSystems() int    { return len(t.systems) }
func (t *Tree) NumTypes() int      { return len(t.types) }
func (t *Tree) NumParameters() int { return len(t.parameters) }
func (t *Tree) NumContainers() int { return len(t.containers) }
func (t *Tree) NumCommands() int   { return len(t.commands) }
func (t *Tree) NumAlgorithms() int { return len(t.algorithms) }

// Warnings returns non-fatal findings recorded during construction.
func (t *Tree) Warnings() []Warning { return slices.Clone(t.warnings) }

// AddSystem creates a child system under parent.
func (t *Tree) AddSystem(parent SystemID, spec SystemSpec) (SystemID, error) {
	p, qname, err := t.prepare(SystemNode, parent, spec.Name)
	if err != nil {
		return 0, err
	}
	sys := &System{
		ID:               SystemID(len(t.systems) + 1),
		Parent:           parent,
		Name:             spec.Name,
		QualifiedName:    qname,
		ShortDescription: spec.ShortDescription,
		LongDescription:  spec.LongDescription,
		Aliases:          slices.Clone(spec.Aliases),
	}
	t.systems = append(t.systems, sys)
	t.names.claim(SystemNode, qname, int(sys.ID))
	p.Children = append(p.Children, sys.ID)
	return sys.ID, nil
}

// AddType validates and registers a data type at sys.
func (t *Tree) AddType(sys SystemID, spec TypeSpec) (TypeID, error) {
	s, qname, err := t.prepare(TypeNode, sys, spec.Name)
	if err != nil {
		return 0, err
	}
	def, size, dynamic, warnings, err := t.checkType(qname, spec.Def)
	if err != nil {
		return 0, err
	}
	dt := &DataType{
		ID:               TypeID(len(t.types) + 1),
		System:           sys,
		Name:             spec.Name,
		QualifiedName:    qname,
		ShortDescription: spec.ShortDescription,
		LongDescription:  spec.LongDescription,
		Def:              def,
		SizeBits:         size,
		Dynamic:          dynamic,
	}
	t.types = append(t.types, dt)
	t.names.claim(TypeNode, qname, int(dt.ID))
	s.Types = append(s.Types, dt.ID)
	t.warnings = append(t.warnings, warnings...)
	return dt.ID, nil
}

// AddParameter validates and registers a parameter at sys.
func (t *Tree) AddParameter(sys SystemID, spec ParameterSpec) (ParameterID, error) {
	s, qname, err := t.prepare(ParameterNode, sys, spec.Name)
	if err != nil {
		return 0, err
	}
	if t.Type(spec.Type) == nil {
		return 0, &TypeError{QualifiedName: qname, Field: "type", Message: "data type is required"}
	}
	source := spec.DataSource
	if source == "" {
		source = Telemetered
	}
	if !source.valid() {
		return 0, &TypeError{QualifiedName: qname, Field: "data_source", Message: fmt.Sprintf("unknown data source %q", source)}
	}
	if spec.Initial.IsSet() {
		if err := t.CheckValue(spec.Type, spec.Initial); err != nil {
			return 0, retarget(err, qname, "initial_value")
		}
	}
	p := &Parameter{
		ID:               ParameterID(len(t.parameters) + 1),
		System:           sys,
		Name:             spec.Name,
		QualifiedName:    qname,
		Type:             spec.Type,
		DataSource:       source,
		Persistent:       !spec.Volatile,
		Initial:          spec.Initial,
		ShortDescription: spec.ShortDescription,
		LongDescription:  spec.LongDescription,
		Aliases:          slices.Clone(spec.Aliases),
		Ancillary:        slices.Clone(spec.Ancillary),
	}
	t.parameters = append(t.parameters, p)
	t.names.claim(ParameterNode, qname, int(p.ID))
	s.Parameters = append(s.Parameters, p.ID)
	return p.ID, nil
}

// AddContainer validates and registers a container at sys.
func (t *Tree) AddContainer(sys SystemID, spec ContainerSpec) (ContainerID, error) {
	s, qname, err := t.prepare(ContainerNode, sys, spec.Name)
	if err != nil {
		return 0, err
	}
	if spec.Base != 0 && t.Container(spec.Base) == nil {
		return 0, &UnknownHandleError{Kind: ContainerNode, Handle: int(spec.Base), Field: qname + ".base"}
	}
	for i, e := range spec.Entries {
		if err := t.checkEntry(qname, i, e, false); err != nil {
			return 0, err
		}
	}
	for i, c := range spec.Restriction {
		if err := c.validate(qname, fmt.Sprintf("restriction[%d]", i)); err != nil {
			return 0, err
		}
	}
	if spec.Bits < 0 {
		return 0, &TypeError{QualifiedName: qname, Field: "bits", Message: fmt.Sprintf("negative size %d", spec.Bits)}
	}
	if spec.Rate < 0 {
		return 0, &TypeError{QualifiedName: qname, Field: "rate", Message: "negative rate"}
	}
	c := &Container{
		ID:               ContainerID(len(t.containers) + 1),
		System:           sys,
		Name:             spec.Name,
		QualifiedName:    qname,
		Base:             spec.Base,
		Abstract:         spec.Abstract,
		Entries:          slices.Clone(spec.Entries),
		Restriction:      slices.Clone(spec.Restriction),
		Bits:             spec.Bits,
		Rate:             spec.Rate,
		ArchivePartition: spec.ArchivePartition,
		ShortDescription: spec.ShortDescription,
		LongDescription:  spec.LongDescription,
		Aliases:          slices.Clone(spec.Aliases),
	}
	t.containers = append(t.containers, c)
	t.names.claim(ContainerNode, qname, int(c.ID))
	s.Containers = append(s.Containers, c.ID)
	return c.ID, nil
}

// SetContainerBase links id to base. A link that would make id its own
// ancestor is refused with an InheritanceCycleError.
func (t *Tree) SetContainerBase(id, base ContainerID) error {
	c := t.Container(id)
	if c == nil {
		return &UnknownHandleError{Kind: ContainerNode, Handle: int(id), Field: "container"}
	}
	if t.Container(base) == nil {
		return &UnknownHandleError{Kind: ContainerNode, Handle: int(base), Field: c.QualifiedName + ".base"}
	}
	chain := []string{c.QualifiedName}
	for cur := base; cur != 0; cur = t.Container(cur).Base {
		chain = append(chain, t.Container(cur).QualifiedName)
		if cur == id {
			return &InheritanceCycleError{Kind: ContainerNode, Chain: chain}
		}
	}
	c.Base = base
	return nil
}

// ContainerChain returns id followed by its ancestors, leaf first.
func (t *Tree) ContainerChain(id ContainerID) []ContainerID {
	var chain []ContainerID
	for cur := id; cur != 0 && t.Container(cur) != nil; cur = t.Container(cur).Base {
		chain = append(chain, cur)
	}
	return chain
}

// AddCommand validates and registers a command at sys. Assignments are
// checked against the ancestors known at this point; the layout pass
// checks them again against the complete chain.
func (t *Tree) AddCommand(sys SystemID, spec CommandSpec) (CommandID, error) {
	s, qname, err := t.prepare(CommandNode, sys, spec.Name)
	if err != nil {
		return 0, err
	}
	if spec.Base != 0 && t.Command(spec.Base) == nil {
		return 0, &UnknownHandleError{Kind: CommandNode, Handle: int(spec.Base), Field: qname + ".base"}
	}

	seen := make(map[string]bool, len(spec.Arguments))
	for i, a := range spec.Arguments {
		if reason := checkName(a.Name); reason != "" {
			return 0, &InvalidNameError{Kind: CommandNode, Parent: qname, Name: a.Name, Reason: reason}
		}
		if seen[a.Name] {
			return 0, &TypeError{QualifiedName: qname, Field: fmt.Sprintf("arguments[%d]", i), Message: fmt.Sprintf("duplicate argument %q", a.Name)}
		}
		seen[a.Name] = true
		if t.Type(a.Type) == nil {
			return 0, &TypeError{QualifiedName: qname + Separator + a.Name, Field: "type", Message: "data type is required"}
		}
		if a.Default.IsSet() {
			if err := t.CheckValue(a.Type, a.Default); err != nil {
				return 0, retarget(err, qname+Separator+a.Name, "default")
			}
		}
	}

	entries := spec.Entries
	if entries == nil {
		for _, a := range spec.Arguments {
			entries = append(entries, ArgumentEntry(a.Name))
		}
	}
	for i, e := range entries {
		if err := t.checkEntry(qname, i, e, true); err != nil {
			return 0, err
		}
	}

	assigned := make(map[string]bool, len(spec.Assignments))
	for _, as := range spec.Assignments {
		if assigned[as.Argument] {
			return 0, &AssignmentError{Command: qname, Argument: as.Argument, Message: "assigned twice"}
		}
		assigned[as.Argument] = true
		if !as.Value.IsSet() {
			return 0, &AssignmentError{Command: qname, Argument: as.Argument, Message: "value is not set"}
		}
	}
	if err := t.checkAssignments(qname, spec.Base, spec.Assignments); err != nil {
		return 0, err
	}

	switch spec.Significance {
	case SignificanceNone, Normal, Vital, Critical, Forbidden:
	default:
		return 0, &TypeError{QualifiedName: qname, Field: "significance", Message: fmt.Sprintf("unknown level %q", spec.Significance)}
	}
	for i, v := range spec.Verifiers {
		if err := validateVerifier(qname, i, v); err != nil {
			return 0, err
		}
	}
	for i, tc := range spec.Constraints {
		if len(tc.Expression) == 0 {
			return 0, &TypeError{QualifiedName: qname, Field: fmt.Sprintf("constraints[%d]", i), Message: "constraint has no comparisons"}
		}
		for j, c := range tc.Expression {
			if err := c.validate(qname, fmt.Sprintf("constraints[%d].expression[%d]", i, j)); err != nil {
				return 0, err
			}
		}
	}

	c := &Command{
		ID:               CommandID(len(t.commands) + 1),
		System:           sys,
		Name:             spec.Name,
		QualifiedName:    qname,
		Base:             spec.Base,
		Abstract:         spec.Abstract,
		Arguments:        slices.Clone(spec.Arguments),
		Assignments:      slices.Clone(spec.Assignments),
		Entries:          slices.Clone(entries),
		Significance:     spec.Significance,
		WarningMessage:   spec.WarningMessage,
		Verifiers:        slices.Clone(spec.Verifiers),
		Constraints:      slices.Clone(spec.Constraints),
		ShortDescription: spec.ShortDescription,
		LongDescription:  spec.LongDescription,
		Aliases:          slices.Clone(spec.Aliases),
	}
	t.commands = append(t.commands, c)
	t.names.claim(CommandNode, qname, int(c.ID))
	s.Commands = append(s.Commands, c.ID)
	return c.ID, nil
}

// SetCommandBase links id to base, refusing cycles and assignments whose
// literal does not fit an argument of the new ancestors.
func (t *Tree) SetCommandBase(id, base CommandID) error {
	c := t.Command(id)
	if c == nil {
		return &UnknownHandleError{Kind: CommandNode, Handle: int(id), Field: "command"}
	}
	if t.Command(base) == nil {
		return &UnknownHandleError{Kind: CommandNode, Handle: int(base), Field: c.QualifiedName + ".base"}
	}
	chain := []string{c.QualifiedName}
	for cur := base; cur != 0; cur = t.Command(cur).Base {
		chain = append(chain, t.Command(cur).QualifiedName)
		if cur == id {
			return &InheritanceCycleError{Kind: CommandNode, Chain: chain}
		}
	}
	if err := t.checkAssignments(c.QualifiedName, base, c.Assignments); err != nil {
		return err
	}
	c.Base = base
	return nil
}

// CommandChain returns id followed by its ancestors, leaf first.
func (t *Tree) CommandChain(id CommandID) []CommandID {
	var chain []CommandID
	for cur := id; cur != 0 && t.Command(cur) != nil; cur = t.Command(cur).Base {
		chain = append(chain, cur)
	}
	return chain
}

// FindArgument searches from for an argument named name, then its
// ancestors. It returns the argument and the command declaring it.
func (t *Tree) FindArgument(from CommandID, name string) (Argument, CommandID, bool) {
	for _, id := range t.CommandChain(from) {
		if a, ok := t.Command(id).Argument(name); ok {
			return a, id, true
		}
	}
	return Argument{}, 0, false
}

// checkAssignments type-checks every assignment whose argument is
// declared by base or its ancestors. Unknown arguments are left for the
// layout pass, since the chain may still be incomplete.
func (t *Tree) checkAssignments(qname string, base CommandID, assignments []Assignment) error {
	if base == 0 {
		return nil
	}
	for _, as := range assignments {
		arg, _, ok := t.FindArgument(base, as.Argument)
		if !ok {
			continue
		}
		if err := t.CheckValue(arg.Type, as.Value); err != nil {
			return &AssignmentError{Command: qname, Argument: as.Argument, Message: "literal does not fit the argument type", Err: err}
		}
	}
	return nil
}

// AddAlgorithm validates and registers an algorithm at sys. Its
// references are resolved by the layout pass.
func (t *Tree) AddAlgorithm(sys SystemID, spec AlgorithmSpec) (AlgorithmID, error) {
	s, qname, err := t.prepare(AlgorithmNode, sys, spec.Name)
	if err != nil {
		return 0, err
	}
	if err := spec.validate(qname); err != nil {
		return 0, err
	}
	a := &Algorithm{
		ID:               AlgorithmID(len(t.algorithms) + 1),
		System:           sys,
		Name:             spec.Name,
		QualifiedName:    qname,
		Language:         spec.Language,
		Text:             spec.Text,
		Inputs:           slices.Clone(spec.Inputs),
		Outputs:          slices.Clone(spec.Outputs),
		Triggers:         slices.Clone(spec.Triggers),
		ShortDescription: spec.ShortDescription,
		LongDescription:  spec.LongDescription,
	}
	t.algorithms = append(t.algorithms, a)
	t.names.claim(AlgorithmNode, qname, int(a.ID))
	s.Algorithms = append(s.Algorithms, a.ID)
	return a.ID, nil
}

// prepare checks the owning system, the name and the registry before any
// node is created.
func (t *Tree) prepare(kind Kind, sys SystemID, name string) (*System, string, error) {
	s := t.System(sys)
	if s == nil {
		return nil, "", &UnknownHandleError{Kind: SystemNode, Handle: int(sys), Field: kind.String() + " " + name}
	}
	if reason := checkName(name); reason != "" {
		return nil, "", &InvalidNameError{Kind: kind, Parent: s.QualifiedName, Name: name, Reason: reason}
	}
	qname := s.QualifiedName + Separator + name
	if _, taken := t.names.lookup(kind, qname); taken {
		return nil, "", &NameConflictError{Kind: kind, QualifiedName: qname}
	}
	// Systems are path segments of every other name, so a system shares
	// its qualified name with nothing. The other kinds keep separate
	// spaces: a container and a command may carry the same name.
	if other, taken := t.shadowed(kind, qname); taken {
		return nil, "", &NameConflictError{Kind: kind, QualifiedName: qname, Existing: other}
	}
	return s, qname, nil
}

func (t *Tree) shadowed(kind Kind, qname string) (Kind, bool) {
	if kind != SystemNode {
		_, taken := t.names.lookup(SystemNode, qname)
		return SystemNode, taken
	}
	for _, other := range []Kind{TypeNode, ParameterNode, ContainerNode, CommandNode, AlgorithmNode} {
		if _, taken := t.names.lookup(other, qname); taken {
			return other, true
		}
	}
	return 0, false
}

// Qualify turns a reference written inside system from into an absolute
// qualified name. Absolute references start with the separator; relative
// ones are joined to the system's name and may use "..".
func (t *Tree) Qualify(from SystemID, ref string) string {
	if strings.HasPrefix(ref, Separator) {
		return path.Clean(ref)
	}
	base := Separator
	if s := t.System(from); s != nil {
		base = s.QualifiedName
	}
	return path.Clean(base + Separator + ref)
}

func (t *Tree) lookup(kind Kind, from SystemID, ref string) (int, bool) {
	if ref == "" {
		return 0, false
	}
	return t.names.lookup(kind, t.Qualify(from, ref))
}

func (t *Tree) LookupSystem(qname string) (SystemID, bool) {
	h, ok := t.names.lookup(SystemNode, path.Clean(qname))
	return SystemID(h), ok
}

func (t *Tree) LookupType(from SystemID, ref string) (TypeID, bool) {
	h, ok := t.lookup(TypeNode, from, ref)
	return TypeID(h), ok
}

func (t *Tree) LookupParameter(from SystemID, ref string) (ParameterID, bool) {
	h, ok := t.lookup(ParameterNode, from, ref)
	return ParameterID(h), ok
}

func (t *Tree) LookupContainer(from SystemID, ref string) (ContainerID, bool) {
	h, ok := t.lookup(ContainerNode, from, ref)
	return ContainerID(h), ok
}

func (t *Tree) LookupCommand(from SystemID, ref string) (CommandID, bool) {
	h, ok := t.lookup(CommandNode, from, ref)
	return CommandID(h), ok
}

func (t *Tree) LookupAlgorithm(from SystemID, ref string) (AlgorithmID, bool) {
	h, ok := t.lookup(AlgorithmNode, from, ref)
	return AlgorithmID(h), ok
}

// TopLevel returns the child of the root that contains sys, or the root
// itself for nodes declared at the root.
func (t *Tree) TopLevel(sys SystemID) SystemID {
	for s := t.System(sys); s != nil; s = t.System(s.Parent) {
		if s.Parent == t.Root() || s.Parent == 0 {
			return s.ID
		}
	}
	return 0
}

// checkName returns why name cannot be a path segment, or "".
func checkName(name string) string {
	switch {
	case name == "":
		return "name is required"
	case name == "." || name == "..":
		return "name is reserved"
	case strings.Contains(name, Separator):
		return "name must not contain " + Separator
	case strings.TrimSpace(name) != name:
		return "name must not start or end with whitespace"
	}
	return ""
}

// retarget rewrites a literal TypeError so it names the slot holding the
// literal rather than the data type.
func retarget(err error, qname, field string) error {
	te, ok := err.(*TypeError)
	if !ok {
		return err
	}
	return &TypeError{QualifiedName: qname, Field: field, Message: te.Message + " (type " + te.QualifiedName + ")"}
}
