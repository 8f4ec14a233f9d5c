package layout

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/mdbgen/internal/mdb"
)

// Option configures Resolve.
type Option func(*resolver)

// WithLogger sets the logger for debug output. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(r *resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// WithParallelism sets how many independent top-level systems may be
// resolved at once. Values below 1 mean 1.
func WithParallelism(n int) Option {
	return func(r *resolver) {
		r.parallelism = max(n, 1)
	}
}

type resolver struct {
	tree        *mdb.Tree
	log         *slog.Logger
	parallelism int

	containers []*ContainerLayout
	commands   []*CommandLayout
}

// Resolve computes the layout of every container and command in tree.
// It either resolves the whole tree or returns the first error; there is
// no partial result.
//
// Top-level systems that do not depend on each other are resolved
// concurrently when WithParallelism allows it. A system whose containers
// or commands inherit from (or nest) another system's is scheduled after
// it; systems that depend on each other are resolved as one unit.
func Resolve(tree *mdb.Tree, opts ...Option) (*Model, error) {
	if tree == nil {
		return nil, fmt.Errorf("%w: nil tree", ErrResolution)
	}
	r := &resolver{
		tree:        tree,
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		parallelism: 1,
		containers:  make([]*ContainerLayout, tree.NumContainers()),
		commands:    make([]*CommandLayout, tree.NumCommands()),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := checkReferences(tree); err != nil {
		return nil, err
	}

	graph, keys := buildDependencyGraph(tree)
	levels := schedule(graph)

	var names [][]string
	for li, level := range levels {
		errs := make([]error, len(level))
		var g errgroup.Group
		g.SetLimit(r.parallelism)
		for i, members := range level {
			i := i
			systems := make(map[mdb.SystemID]bool, len(members))
			for _, m := range members {
				systems[keys[m]] = true
			}
			g.Go(func() error {
				errs[i] = r.resolveUnit(systems)
				return errs[i]
			})
		}
		_ = g.Wait()
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}

		units := make([]string, len(level))
		for i, members := range level {
			units[i] = strings.Join(members, "+")
		}
		names = append(names, units)
		r.log.Debug("resolved level", "level", li, "units", units)
	}

	return &Model{tree: tree, containers: r.containers, commands: r.commands, levels: names}, nil
}

// worker resolves the containers and commands of one unit. Nodes of other
// units are read only after their level has completed.
type worker struct {
	*resolver
	systems  map[mdb.SystemID]bool
	visiting map[mdb.ContainerID]bool
	stack    []string
}

func (r *resolver) resolveUnit(systems map[mdb.SystemID]bool) error {
	w := &worker{resolver: r, systems: systems, visiting: make(map[mdb.ContainerID]bool)}
	for i := 1; i <= r.tree.NumContainers(); i++ {
		id := mdb.ContainerID(i)
		if w.owns(r.tree.Container(id).System) {
			if _, err := w.container(id); err != nil {
				return err
			}
		}
	}
	for i := 1; i <= r.tree.NumCommands(); i++ {
		id := mdb.CommandID(i)
		if w.owns(r.tree.Command(id).System) {
			if _, err := w.command(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *worker) owns(sys mdb.SystemID) bool {
	return w.systems[w.tree.TopLevel(sys)]
}

func (w *worker) container(id mdb.ContainerID) (*ContainerLayout, error) {
	if l := w.containers[id-1]; l != nil {
		return l, nil
	}
	tree := w.tree
	leaf := tree.Container(id)
	if !w.owns(leaf.System) {
		return nil, fmt.Errorf("%w: %s resolved out of order", ErrResolution, leaf.QualifiedName)
	}
	if w.visiting[id] {
		chain := append(slices.Clone(w.stack), leaf.QualifiedName)
		for i, name := range chain {
			if name == leaf.QualifiedName {
				chain = chain[i:]
				break
			}
		}
		return nil, &ReferenceCycleError{Chain: chain}
	}
	w.visiting[id] = true
	w.stack = append(w.stack, leaf.QualifiedName)
	defer func() {
		delete(w.visiting, id)
		w.stack = w.stack[:len(w.stack)-1]
	}()

	ids := tree.ContainerChain(id)
	slices.Reverse(ids)

	l := &ContainerLayout{ID: id, Layout: Layout{QualifiedName: leaf.QualifiedName, Abstract: leaf.Abstract}}
	p := newPlacer(leaf.QualifiedName)
	for level, cid := range ids {
		c := tree.Container(cid)
		l.Chain = append(l.Chain, c.QualifiedName)
		for i, e := range c.Entries {
			pl := Placement{
				Name:      tree.EntryName(e, level, i),
				Kind:      e.Kind,
				Owner:     c.QualifiedName,
				Level:     level,
				Index:     i,
				Location:  e.Location,
				Parameter: e.Parameter,
				Container: e.Container,
			}
			switch e.Kind {
			case mdb.ParameterEntryKind:
				if err := w.sizeFromType(&pl, p, tree.Parameter(e.Parameter).Type); err != nil {
					return nil, err
				}
			case mdb.ContainerEntryKind:
				nested, err := w.container(e.Container)
				if err != nil {
					return nil, err
				}
				pl.SizeBits, pl.Dynamic = nested.SizeBits, nested.Dynamic
			case mdb.FixedValueEntryKind:
				pl.SizeBits = e.Bits
				pl.Value = e.Value
			default:
				return nil, fmt.Errorf("%w: %s: entry %s of kind %s cannot appear in a container", ErrResolution, c.QualifiedName, pl.Name, e.Kind)
			}
			if err := w.place(p, pl); err != nil {
				return nil, err
			}
		}
	}

	size, dynamic, err := p.finish(leaf.Bits)
	if err != nil {
		return nil, err
	}
	l.Placements, l.SizeBits, l.Dynamic = p.placements, size, dynamic
	w.containers[id-1] = l
	w.log.Debug("resolved container", "container", l.QualifiedName, "size_bits", size, "dynamic", dynamic, "entries", len(l.Placements))
	return l, nil
}

func (w *worker) command(id mdb.CommandID) (*CommandLayout, error) {
	if l := w.commands[id-1]; l != nil {
		return l, nil
	}
	tree := w.tree
	leaf := tree.Command(id)

	ids := tree.CommandChain(id)
	slices.Reverse(ids)

	l := &CommandLayout{ID: id, Layout: Layout{QualifiedName: leaf.QualifiedName, Abstract: leaf.Abstract}}
	for level, cid := range ids {
		c := tree.Command(cid)
		l.Chain = append(l.Chain, c.QualifiedName)

		// Assignments only reach arguments of strict ancestors, so they
		// are applied before this level's own arguments join the list.
		for _, as := range c.Assignments {
			bi := findBinding(l.Bindings, as.Argument, level-1)
			if bi < 0 {
				return nil, &mdb.AssignmentError{Command: c.QualifiedName, Argument: as.Argument, Message: "no ancestor declares this argument"}
			}
			if err := tree.CheckValue(l.Bindings[bi].Type, as.Value); err != nil {
				return nil, &mdb.AssignmentError{Command: c.QualifiedName, Argument: as.Argument, Message: "literal does not fit the argument type", Err: err}
			}
			l.Bindings[bi].Assigned = as.Value
			l.Bindings[bi].AssignedBy = c.QualifiedName
		}
		for _, a := range c.Arguments {
			l.Bindings = append(l.Bindings, Binding{
				Argument:   a.Name,
				DeclaredBy: c.QualifiedName,
				Level:      level,
				Type:       a.Type,
				Default:    a.Default,
			})
		}
	}

	if !leaf.Abstract {
		for _, b := range l.Bindings {
			owner := tree.Command(ids[b.Level])
			if b.Level < len(ids)-1 && owner.Abstract && b.Free() && !b.Default.IsSet() {
				return nil, &UnassignedArgumentError{Command: leaf.QualifiedName, Argument: b.Argument, DeclaredBy: b.DeclaredBy}
			}
		}
	}

	p := newPlacer(leaf.QualifiedName)
	for level, cid := range ids {
		c := tree.Command(cid)
		for i, e := range c.Entries {
			pl := Placement{
				Name:     tree.EntryName(e, level, i),
				Kind:     e.Kind,
				Owner:    c.QualifiedName,
				Level:    level,
				Index:    i,
				Location: e.Location,
				Argument: e.Argument,
			}
			switch e.Kind {
			case mdb.ArgumentEntryKind:
				bi := findBinding(l.Bindings, e.Argument, level)
				if bi < 0 {
					return nil, &UnresolvedReferenceError{From: c.QualifiedName, Field: fmt.Sprintf("entries[%d]", i), Kind: "argument", Reference: e.Argument}
				}
				b := l.Bindings[bi]
				if err := w.sizeFromType(&pl, p, b.Type); err != nil {
					return nil, err
				}
				pl.Assigned, pl.AssignedBy = b.Assigned, b.AssignedBy
			case mdb.FixedValueEntryKind:
				pl.SizeBits = e.Bits
				pl.Value = e.Value
			default:
				return nil, fmt.Errorf("%w: %s: entry %s of kind %s cannot appear in a command", ErrResolution, c.QualifiedName, pl.Name, e.Kind)
			}
			if err := w.place(p, pl); err != nil {
				return nil, err
			}
		}
	}

	size, dynamic, err := p.finish(0)
	if err != nil {
		return nil, err
	}
	l.Placements, l.SizeBits, l.Dynamic = p.placements, size, dynamic
	w.commands[id-1] = l
	w.log.Debug("resolved command", "command", l.QualifiedName, "size_bits", size, "dynamic", dynamic,
		"required", l.RequiredArguments())
	return l, nil
}

func (w *worker) place(p *placer, pl Placement) error {
	if err := p.place(pl); err != nil {
		return err
	}
	last := p.placements[len(p.placements)-1]
	w.log.Debug("placed entry", "layout", p.owner, "entry", last.Name, "owner", last.Owner,
		"start_bit", last.StartBit, "size_bits", last.SizeBits, "dynamic", last.Dynamic)
	return nil
}

// sizeFromType sizes pl from its data type. A dynamic array must name an
// integer parameter or argument placed earlier.
func (w *worker) sizeFromType(pl *Placement, p *placer, typ mdb.TypeID) error {
	dt := w.tree.Type(typ)
	pl.Type = typ
	pl.SizeBits, pl.Dynamic = dt.SizeBits, dt.Dynamic
	if arr, ok := dt.Def.(mdb.ArrayType); ok && arr.LengthEntry != "" {
		length, ok := p.placed(arr.LengthEntry)
		if !ok {
			return &DanglingReferenceError{Container: p.owner, Entry: pl.Name, Reference: arr.LengthEntry}
		}
		if found := w.lengthKind(length); found != "" {
			return &LengthEntryError{Container: p.owner, Entry: pl.Name, Length: arr.LengthEntry, Found: found}
		}
	}
	return nil
}

// lengthKind returns "" when pl can carry an array length, otherwise
// what it is instead.
func (w *worker) lengthKind(pl Placement) string {
	switch pl.Kind {
	case mdb.ParameterEntryKind, mdb.ArgumentEntryKind:
	default:
		return pl.Kind.String() + " entry"
	}
	dt := w.tree.Type(pl.Type)
	if dt == nil {
		return "untyped entry"
	}
	if dt.Kind() != mdb.IntegerKind {
		return dt.Kind().String()
	}
	return ""
}

// findBinding returns the index of the most derived binding named name
// declared at or above maxLevel, or -1.
func findBinding(bindings []Binding, name string, maxLevel int) int {
	for i := len(bindings) - 1; i >= 0; i-- {
		if bindings[i].Level <= maxLevel && bindings[i].Argument == name {
			return i
		}
	}
	return -1
}
