package loader

import (
	"log/slog"

	"github.com/roach88/mdbgen/internal/headers"
	"github.com/roach88/mdbgen/internal/mdb"
)

type builder struct {
	tree    *mdb.Tree
	log     *slog.Logger
	systems []system
}

// system is a created system and its definition.
type system struct {
	id  mdb.SystemID
	def field
}

// pending is a node waiting for the nodes it references.
type pending struct {
	sys  mdb.SystemID
	name string
	def  field
}

func (b *builder) collect(section string) ([]pending, error) {
	var out []pending
	for _, s := range b.systems {
		err := s.def.each(section, func(name string, c field) error {
			out = append(out, pending{sys: s.id, name: name, def: c})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func describe(f field) (short, long string, err error) {
	if short, err = f.str("short_description"); err != nil {
		return "", "", err
	}
	long, err = f.str("long_description")
	return short, long, err
}

func aliases(f field) ([]mdb.Alias, error) {
	var out []mdb.Alias
	err := f.items("aliases", func(_ int, a field) error {
		ns, err := a.str("namespace")
		if err != nil {
			return err
		}
		name, err := a.str("name")
		if err != nil {
			return err
		}
		out = append(out, mdb.Alias{Namespace: ns, Name: name})
		return nil
	})
	return out, err
}

func systemSpec(name string, f field) (mdb.SystemSpec, error) {
	short, long, err := describe(f)
	if err != nil {
		return mdb.SystemSpec{}, err
	}
	al, err := aliases(f)
	if err != nil {
		return mdb.SystemSpec{}, err
	}
	return mdb.SystemSpec{Name: name, ShortDescription: short, LongDescription: long, Aliases: al}, nil
}

// addSystems creates the children of parent recursively, recording
// every system in pre-order.
func (b *builder) addSystems(parent mdb.SystemID, f field) error {
	b.systems = append(b.systems, system{id: parent, def: f})
	return f.each("systems", func(name string, c field) error {
		spec, err := systemSpec(name, c)
		if err != nil {
			return err
		}
		id, err := b.tree.AddSystem(parent, spec)
		if err != nil {
			return c.wrap(err)
		}
		return b.addSystems(id, c)
	})
}

func (b *builder) addHeaders() error {
	for _, s := range b.systems {
		h, ok := s.def.lookup("headers")
		if !ok {
			continue
		}
		ccsds, err := h.flag("ccsds")
		if err != nil {
			return err
		}
		if ccsds {
			if _, err := headers.AddCCSDS(b.tree, s.id); err != nil {
				return h.wrap(err)
			}
		}
		csp, ok := h.lookup("csp")
		if !ok {
			continue
		}
		var ids []mdb.Choice
		err = csp.each("ids", func(label string, c field) error {
			n, err := c.v.Int64()
			if err != nil {
				return c.errorf(ErrCodeDefinition, "expected an integer")
			}
			ids = append(ids, mdb.Choice{Value: n, Label: label})
			return nil
		})
		if err != nil {
			return err
		}
		var opts []headers.CSPOption
		if csp.has("prefix") {
			prefix, err := csp.str("prefix")
			if err != nil {
				return err
			}
			opts = append(opts, headers.WithPrefix(prefix))
		}
		if _, err := headers.AddCSP(b.tree, s.id, ids, opts...); err != nil {
			return csp.wrap(err)
		}
	}
	return nil
}

// addTypes adds types in dependency order. Aggregates and arrays wait
// for their member and element types, which may live in any system.
func (b *builder) addTypes() error {
	queue, err := b.collect("types")
	if err != nil {
		return err
	}
	for len(queue) > 0 {
		var next []pending
		for _, p := range queue {
			missing, err := b.typeDeps(p.sys, p.def)
			if err != nil {
				return err
			}
			if missing != "" {
				next = append(next, p)
				continue
			}
			if err := b.addType(p); err != nil {
				return err
			}
		}
		if len(next) == len(queue) {
			p := next[0]
			missing, _ := b.typeDeps(p.sys, p.def)
			return p.def.errorf(ErrCodeUnresolved, "unknown data type %q", missing)
		}
		queue = next
	}
	return nil
}

func (b *builder) addType(p pending) error {
	def, err := b.typeDef(p.sys, p.def)
	if err != nil {
		return err
	}
	short, long, err := describe(p.def)
	if err != nil {
		return err
	}
	id, err := b.tree.AddType(p.sys, mdb.TypeSpec{Name: p.name, ShortDescription: short, LongDescription: long, Def: def})
	if err != nil {
		return p.def.wrap(err)
	}
	b.log.Debug("added type", "type", b.tree.Type(id).QualifiedName, "kind", def.TypeKind())
	return nil
}

func (b *builder) addParameters() error {
	params, err := b.collect("parameters")
	if err != nil {
		return err
	}
	for _, p := range params {
		ref, err := p.def.str("type")
		if err != nil {
			return err
		}
		typ, ok := b.tree.LookupType(p.sys, ref)
		if !ok {
			return p.def.errorf(ErrCodeUnresolved, "unknown data type %q", ref)
		}
		spec := mdb.ParameterSpec{Name: p.name, Type: typ}
		if spec.ShortDescription, spec.LongDescription, err = describe(p.def); err != nil {
			return err
		}
		source, err := p.def.str("data_source")
		if err != nil {
			return err
		}
		spec.DataSource = mdb.DataSource(source)
		if spec.Volatile, err = p.def.flag("volatile"); err != nil {
			return err
		}
		if c, ok := p.def.lookup("initial"); ok {
			if spec.Initial, err = c.literal(); err != nil {
				return err
			}
		}
		if spec.Aliases, err = aliases(p.def); err != nil {
			return err
		}
		err = p.def.each("ancillary", func(name string, c field) error {
			value, err := c.v.String()
			if err != nil {
				return c.errorf(ErrCodeDefinition, "expected a string")
			}
			spec.Ancillary = append(spec.Ancillary, mdb.AncillaryDatum{Name: name, Value: value})
			return nil
		})
		if err != nil {
			return err
		}
		if _, err := b.tree.AddParameter(p.sys, spec); err != nil {
			return p.def.wrap(err)
		}
	}
	return nil
}

// addContainers adds containers once the containers they nest exist,
// then links every base.
func (b *builder) addContainers() error {
	queue, err := b.collect("containers")
	if err != nil {
		return err
	}
	created := make([]pending, 0, len(queue))
	ids := make([]mdb.ContainerID, 0, len(queue))
	for len(queue) > 0 {
		var next []pending
		for _, p := range queue {
			missing, err := b.nestedDeps(p)
			if err != nil {
				return err
			}
			if missing != "" {
				next = append(next, p)
				continue
			}
			id, err := b.addContainer(p)
			if err != nil {
				return err
			}
			created = append(created, p)
			ids = append(ids, id)
		}
		if len(next) == len(queue) {
			p := next[0]
			missing, _ := b.nestedDeps(p)
			return p.def.errorf(ErrCodeUnresolved, "unknown or cyclic container %q", missing)
		}
		queue = next
	}

	for i, p := range created {
		ref, err := p.def.str("base")
		if err != nil {
			return err
		}
		if ref == "" {
			continue
		}
		base, ok := b.tree.LookupContainer(p.sys, ref)
		if !ok {
			c, _ := p.def.lookup("base")
			return c.errorf(ErrCodeUnresolved, "unknown container %q", ref)
		}
		if err := b.tree.SetContainerBase(ids[i], base); err != nil {
			return p.def.wrap(err)
		}
	}
	return nil
}

func (b *builder) nestedDeps(p pending) (string, error) {
	var missing string
	err := p.def.items("entries", func(_ int, e field) error {
		ref, err := e.str("container")
		if err != nil || ref == "" || missing != "" {
			return err
		}
		if _, ok := b.tree.LookupContainer(p.sys, ref); !ok {
			missing = ref
		}
		return nil
	})
	return missing, err
}

func (b *builder) addContainer(p pending) (mdb.ContainerID, error) {
	spec := mdb.ContainerSpec{Name: p.name}
	var err error
	if spec.ShortDescription, spec.LongDescription, err = describe(p.def); err != nil {
		return 0, err
	}
	if spec.Abstract, err = p.def.flag("abstract"); err != nil {
		return 0, err
	}
	if spec.Bits, _, err = p.def.integer("bits"); err != nil {
		return 0, err
	}
	if spec.Rate, err = p.def.duration("rate"); err != nil {
		return 0, err
	}
	if spec.ArchivePartition, err = p.def.flag("archive_partition"); err != nil {
		return 0, err
	}
	if spec.Restriction, err = comparisons(p.def, "restriction"); err != nil {
		return 0, err
	}
	if spec.Entries, err = b.entries(p.sys, p.def); err != nil {
		return 0, err
	}
	if spec.Aliases, err = aliases(p.def); err != nil {
		return 0, err
	}
	id, err := b.tree.AddContainer(p.sys, spec)
	if err != nil {
		return 0, p.def.wrap(err)
	}
	b.log.Debug("added container", "container", b.tree.Container(id).QualifiedName, "entries", len(spec.Entries))
	return id, nil
}

// addCommands adds every command without a base, then links each base
// after the base's own ancestors so that assignments are checked against
// the complete chain.
func (b *builder) addCommands() error {
	cmds, err := b.collect("commands")
	if err != nil {
		return err
	}
	ids := make([]mdb.CommandID, len(cmds))
	index := make(map[mdb.CommandID]int, len(cmds))
	for i, p := range cmds {
		if ids[i], err = b.addCommand(p); err != nil {
			return err
		}
		index[ids[i]] = i
	}

	const (
		unlinked = iota
		linking
		linked
	)
	state := make([]int, len(cmds))
	var link func(i int) error
	link = func(i int) error {
		if state[i] != unlinked {
			return nil
		}
		state[i] = linking
		p := cmds[i]
		ref, err := p.def.str("base")
		if err != nil || ref == "" {
			state[i] = linked
			return err
		}
		base, ok := b.tree.LookupCommand(p.sys, ref)
		if !ok {
			c, _ := p.def.lookup("base")
			return c.errorf(ErrCodeUnresolved, "unknown command %q", ref)
		}
		if j, ok := index[base]; ok {
			if err := link(j); err != nil {
				return err
			}
		}
		if err := b.tree.SetCommandBase(ids[i], base); err != nil {
			return p.def.wrap(err)
		}
		state[i] = linked
		return nil
	}
	for i := range cmds {
		if err := link(i); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) addCommand(p pending) (mdb.CommandID, error) {
	spec := mdb.CommandSpec{Name: p.name}
	var err error
	if spec.ShortDescription, spec.LongDescription, err = describe(p.def); err != nil {
		return 0, err
	}
	if spec.Abstract, err = p.def.flag("abstract"); err != nil {
		return 0, err
	}
	err = p.def.each("arguments", func(name string, a field) error {
		ref, err := a.str("type")
		if err != nil {
			return err
		}
		typ, ok := b.tree.LookupType(p.sys, ref)
		if !ok {
			return a.errorf(ErrCodeUnresolved, "unknown data type %q", ref)
		}
		arg := mdb.Argument{Name: name, Type: typ}
		if arg.ShortDescription, arg.LongDescription, err = describe(a); err != nil {
			return err
		}
		if c, ok := a.lookup("default"); ok {
			if arg.Default, err = c.literal(); err != nil {
				return err
			}
		}
		spec.Arguments = append(spec.Arguments, arg)
		return nil
	})
	if err != nil {
		return 0, err
	}
	err = p.def.each("assignments", func(name string, c field) error {
		value, err := c.literal()
		if err != nil {
			return err
		}
		spec.Assignments = append(spec.Assignments, mdb.Assignment{Argument: name, Value: value})
		return nil
	})
	if err != nil {
		return 0, err
	}
	if spec.Entries, err = b.entries(p.sys, p.def); err != nil {
		return 0, err
	}
	significance, err := p.def.str("significance")
	if err != nil {
		return 0, err
	}
	spec.Significance = mdb.Significance(significance)
	if spec.WarningMessage, err = p.def.str("warning_message"); err != nil {
		return 0, err
	}
	err = p.def.items("verifiers", func(_ int, v field) error {
		verifier, err := verifierSpec(v)
		spec.Verifiers = append(spec.Verifiers, verifier)
		return err
	})
	if err != nil {
		return 0, err
	}
	err = p.def.items("constraints", func(_ int, c field) error {
		var tc mdb.TransmissionConstraint
		var err error
		if tc.Expression, err = comparisons(c, "expression"); err != nil {
			return err
		}
		if tc.Timeout, err = c.duration("timeout"); err != nil {
			return err
		}
		if tc.Suspendable, err = c.flag("suspendable"); err != nil {
			return err
		}
		spec.Constraints = append(spec.Constraints, tc)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if spec.Aliases, err = aliases(p.def); err != nil {
		return 0, err
	}
	id, err := b.tree.AddCommand(p.sys, spec)
	if err != nil {
		return 0, p.def.wrap(err)
	}
	b.log.Debug("added command", "command", b.tree.Command(id).QualifiedName, "arguments", len(spec.Arguments))
	return id, nil
}

func verifierSpec(v field) (mdb.Verifier, error) {
	var out mdb.Verifier
	stage, err := v.str("stage")
	if err != nil {
		return out, err
	}
	out.Stage = mdb.VerifierStage(stage)
	if out.Container, err = v.str("container"); err != nil {
		return out, err
	}
	if out.Algorithm, err = v.str("algorithm"); err != nil {
		return out, err
	}
	if out.Expression, err = comparisons(v, "expression"); err != nil {
		return out, err
	}
	if out.Delay, err = v.duration("delay"); err != nil {
		return out, err
	}
	if out.Timeout, err = v.duration("timeout"); err != nil {
		return out, err
	}
	for name, dst := range map[string]*mdb.Termination{
		"on_success": &out.OnSuccess,
		"on_fail":    &out.OnFail,
		"on_timeout": &out.OnTimeout,
	} {
		s, err := v.str(name)
		if err != nil {
			return out, err
		}
		*dst = mdb.Termination(s)
	}
	return out, nil
}

func comparisons(f field, name string) ([]mdb.Comparison, error) {
	var out []mdb.Comparison
	err := f.items(name, func(_ int, c field) error {
		param, err := c.str("parameter")
		if err != nil {
			return err
		}
		op, err := c.str("op")
		if err != nil {
			return err
		}
		if op == "" {
			op = string(mdb.Equal)
		}
		v, _ := c.lookup("value")
		value, err := v.comparand()
		if err != nil {
			return err
		}
		calibrated, err := c.flag("calibrated")
		if err != nil {
			return err
		}
		out = append(out, mdb.Comparison{Parameter: param, Operator: mdb.Operator(op), Value: value, Calibrated: calibrated})
		return nil
	})
	return out, err
}

// entries reads the entry list at f. A missing list yields nil so that
// commands fall back to placing their own arguments.
func (b *builder) entries(sys mdb.SystemID, f field) ([]mdb.Entry, error) {
	if !f.has("entries") {
		return nil, nil
	}
	out := []mdb.Entry{}
	err := f.items("entries", func(_ int, e field) error {
		entry, err := b.entry(sys, e)
		out = append(out, entry)
		return err
	})
	return out, err
}

func (b *builder) entry(sys mdb.SystemID, e field) (mdb.Entry, error) {
	var kinds []string
	for _, k := range []string{"parameter", "argument", "container", "fixed"} {
		if e.has(k) {
			kinds = append(kinds, k)
		}
	}
	if len(kinds) != 1 {
		return mdb.Entry{}, e.errorf(ErrCodeDefinition, "exactly one of parameter, argument, container or fixed is required")
	}

	var entry mdb.Entry
	switch kinds[0] {
	case "parameter":
		ref, err := e.str("parameter")
		if err != nil {
			return entry, err
		}
		id, ok := b.tree.LookupParameter(sys, ref)
		if !ok {
			return entry, e.errorf(ErrCodeUnresolved, "unknown parameter %q", ref)
		}
		entry = mdb.ParameterEntry(id)
	case "argument":
		name, err := e.str("argument")
		if err != nil {
			return entry, err
		}
		entry = mdb.ArgumentEntry(name)
	case "container":
		ref, err := e.str("container")
		if err != nil {
			return entry, err
		}
		id, ok := b.tree.LookupContainer(sys, ref)
		if !ok {
			return entry, e.errorf(ErrCodeUnresolved, "unknown container %q", ref)
		}
		entry = mdb.ContainerEntry(id)
	case "fixed":
		fx, _ := e.lookup("fixed")
		name, err := fx.str("name")
		if err != nil {
			return entry, err
		}
		v, _ := fx.lookup("value")
		value, err := v.payload()
		if err != nil {
			return entry, err
		}
		bits, _, err := fx.integer("bits")
		if err != nil {
			return entry, err
		}
		entry = mdb.FixedValueEntry(name, value, bits)
	}

	if loc, ok := e.lookup("location"); ok {
		l, err := location(loc)
		if err != nil {
			return entry, err
		}
		entry = entry.At(l)
	}
	desc, err := e.str("short_description")
	entry.ShortDescription = desc
	return entry, err
}

func location(f field) (mdb.Location, error) {
	previous, hasPrevious, err := f.integer("previous")
	if err != nil {
		return mdb.Location{}, err
	}
	start, hasStart, err := f.integer("start")
	if err != nil {
		return mdb.Location{}, err
	}
	after, err := f.str("after")
	if err != nil {
		return mdb.Location{}, err
	}
	offset, hasOffset, err := f.integer("offset")
	if err != nil {
		return mdb.Location{}, err
	}

	set := 0
	for _, ok := range []bool{hasPrevious, hasStart, after != ""} {
		if ok {
			set++
		}
	}
	switch {
	case set > 1:
		return mdb.Location{}, f.errorf(ErrCodeDefinition, "previous, start and after are exclusive")
	case hasOffset && after == "":
		return mdb.Location{}, f.errorf(ErrCodeDefinition, "offset only applies to after")
	case hasStart:
		return mdb.FromStart(start), nil
	case after != "":
		return mdb.After(after, offset), nil
	default:
		return mdb.AfterPrevious(previous), nil
	}
}

func (b *builder) addAlgorithms() error {
	algos, err := b.collect("algorithms")
	if err != nil {
		return err
	}
	for _, p := range algos {
		spec := mdb.AlgorithmSpec{Name: p.name}
		if spec.ShortDescription, spec.LongDescription, err = describe(p.def); err != nil {
			return err
		}
		if spec.Language, err = p.def.str("language"); err != nil {
			return err
		}
		if spec.Text, err = p.def.str("text"); err != nil {
			return err
		}
		err = p.def.items("inputs", func(_ int, c field) error {
			var in mdb.AlgorithmInput
			var err error
			if in.Parameter, err = c.str("parameter"); err != nil {
				return err
			}
			if in.Name, err = c.str("name"); err != nil {
				return err
			}
			if in.Mandatory, err = c.flag("mandatory"); err != nil {
				return err
			}
			spec.Inputs = append(spec.Inputs, in)
			return nil
		})
		if err != nil {
			return err
		}
		err = p.def.items("outputs", func(_ int, c field) error {
			var out mdb.AlgorithmOutput
			var err error
			if out.Parameter, err = c.str("parameter"); err != nil {
				return err
			}
			if out.Name, err = c.str("name"); err != nil {
				return err
			}
			spec.Outputs = append(spec.Outputs, out)
			return nil
		})
		if err != nil {
			return err
		}
		err = p.def.items("triggers", func(_ int, c field) error {
			var tr mdb.Trigger
			var err error
			if tr.Parameter, err = c.str("parameter"); err != nil {
				return err
			}
			if tr.Container, err = c.str("container"); err != nil {
				return err
			}
			if tr.Period, err = c.duration("period"); err != nil {
				return err
			}
			spec.Triggers = append(spec.Triggers, tr)
			return nil
		})
		if err != nil {
			return err
		}
		if _, err := b.tree.AddAlgorithm(p.sys, spec); err != nil {
			return p.def.wrap(err)
		}
	}
	return nil
}
