package document

import (
	"encoding/hex"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/mdbgen/internal/layout"
	"github.com/roach88/mdbgen/internal/mdb"
)

type builder struct {
	model *layout.Model
	tree  *mdb.Tree
}

// Build returns the structural tree of a resolved model, rooted at the
// tree's root system.
func Build(m *layout.Model) *Node {
	b := &builder{model: m, tree: m.Tree()}
	return b.system(b.tree.Root())
}

func (b *builder) system(id mdb.SystemID) *Node {
	s := b.tree.System(id)
	n := &Node{Kind: KindSpaceSystem}
	n.set("name", s.Name)
	n.setIf("short_description", s.ShortDescription)
	describe(n, s.LongDescription, s.Aliases)

	types := &Node{Kind: KindTypes}
	for _, tid := range s.Types {
		types.Children = append(types.Children, b.dataType(tid))
	}
	n.addSection(types)

	params := &Node{Kind: KindParameters}
	for _, pid := range s.Parameters {
		params.Children = append(params.Children, b.parameter(pid))
	}
	n.addSection(params)

	containers := &Node{Kind: KindContainers}
	for _, cid := range s.Containers {
		containers.Children = append(containers.Children, b.container(cid))
	}
	n.addSection(containers)

	commands := &Node{Kind: KindCommands}
	for _, cid := range s.Commands {
		commands.Children = append(commands.Children, b.command(cid))
	}
	n.addSection(commands)

	algorithms := &Node{Kind: KindAlgorithms}
	for _, aid := range s.Algorithms {
		algorithms.Children = append(algorithms.Children, b.algorithm(aid))
	}
	n.addSection(algorithms)

	for _, child := range s.Children {
		n.Children = append(n.Children, b.system(child))
	}
	return n
}

// describe adds the long description and aliases shared by every named
// node.
func describe(n *Node, long string, aliases []mdb.Alias) {
	if long != "" {
		n.add(KindLongDescription).Text = norm.NFC.String(long)
	}
	for _, a := range aliases {
		an := n.add(KindAlias)
		an.set("namespace", a.Namespace)
		an.set("alias", a.Name)
	}
}

// ============================================================
// References
// ============================================================

// ref renders target as seen from system sys: a bare name when both live
// in the same system, the absolute qualified name otherwise.
func (b *builder) ref(sys mdb.SystemID, target string) string {
	if path.Dir(target) == b.tree.System(sys).QualifiedName {
		return path.Base(target)
	}
	return target
}

func (b *builder) typeRef(sys mdb.SystemID, id mdb.TypeID) string {
	return b.ref(sys, b.tree.Type(id).QualifiedName)
}

// parameterRef normalises a parameter reference string. A trailing
// ".member" path into an aggregate is kept as written.
func (b *builder) parameterRef(sys mdb.SystemID, ref string) string {
	if id, ok := b.tree.LookupParameter(sys, ref); ok {
		return b.ref(sys, b.tree.Parameter(id).QualifiedName)
	}
	slash := strings.LastIndex(ref, mdb.Separator)
	if dot := strings.Index(ref[slash+1:], "."); dot >= 0 {
		dot += slash + 1
		if id, ok := b.tree.LookupParameter(sys, ref[:dot]); ok {
			return b.ref(sys, b.tree.Parameter(id).QualifiedName) + ref[dot:]
		}
	}
	return ref
}

func (b *builder) containerRef(sys mdb.SystemID, ref string) string {
	if id, ok := b.tree.LookupContainer(sys, ref); ok {
		return b.ref(sys, b.tree.Container(id).QualifiedName)
	}
	return ref
}

func (b *builder) algorithmRef(sys mdb.SystemID, ref string) string {
	if id, ok := b.tree.LookupAlgorithm(sys, ref); ok {
		return b.ref(sys, b.tree.Algorithm(id).QualifiedName)
	}
	return ref
}

// ============================================================
// Types
// ============================================================

func (b *builder) dataType(id mdb.TypeID) *Node {
	dt := b.tree.Type(id)
	n := &Node{Kind: KindType}
	n.set("name", dt.Name)
	n.set("kind", dt.Kind().String())
	if dt.Dynamic {
		n.set("dynamic", "true")
	} else {
		n.set("size_bits", itoa(dt.SizeBits))
	}
	n.setIf("short_description", dt.ShortDescription)

	switch def := dt.Def.(type) {
	case mdb.IntegerType:
		n.flag("signed", def.Signed)
		n.setIf("units", def.Units)
		encoding(n, def.Encoding)
		if r := def.Range; r != nil {
			rn := n.add(KindRange)
			rn.set("min", itoa(r.Min))
			rn.set("max", itoa(r.Max))
		}
	case mdb.FloatType:
		if def.Bits != 0 {
			n.set("bits", utoa(def.Bits))
		}
		n.setIf("units", def.Units)
		encoding(n, def.Encoding)
		if r := def.Range; r != nil {
			rn := n.add(KindRange)
			if r.Min != nil {
				rn.set("min", ftoa(r.Min.Value))
				rn.flag("min_exclusive", r.Min.Exclusive)
			}
			if r.Max != nil {
				rn.set("max", ftoa(r.Max.Value))
				rn.flag("max_exclusive", r.Max.Exclusive)
			}
		}
	case mdb.BooleanType:
		n.set("zero_label", def.ZeroLabel)
		n.set("one_label", def.OneLabel)
		encoding(n, def.Encoding)
	case mdb.EnumeratedType:
		encoding(n, def.Encoding)
		for _, c := range def.Choices {
			cn := n.add(KindChoice)
			cn.set("value", itoa(c.Value))
			cn.set("label", c.Label)
			cn.setIf("description", c.Description)
		}
		if r := def.Range; r != nil {
			rn := n.add(KindRange)
			rn.set("min", itoa(r.Min))
			rn.set("max", itoa(r.Max))
		}
	case mdb.StringType:
		lengths(n, def.MinLength, def.MaxLength)
		encoding(n, def.Encoding)
	case mdb.BinaryType:
		lengths(n, def.MinLength, def.MaxLength)
		encoding(n, def.Encoding)
	case mdb.AbsoluteTimeType:
		n.setIf("epoch", string(def.Epoch))
		if def.Reference != "" {
			n.set("reference", b.parameterRef(dt.System, def.Reference))
		}
		if def.Offset != 0 {
			n.set("offset", ftoa(def.Offset))
		}
		if def.Scale != 0 {
			n.set("scale", ftoa(def.Scale))
		}
		encoding(n, def.Encoding)
	case mdb.AggregateType:
		for _, m := range def.Members {
			mn := n.add(KindMember)
			mn.set("name", m.Name)
			mn.set("type", b.typeRef(dt.System, m.Type))
			mn.setIf("short_description", m.ShortDescription)
		}
	case mdb.ArrayType:
		n.set("element", b.typeRef(dt.System, def.Element))
		if def.LengthEntry != "" {
			n.set("length_entry", def.LengthEntry)
		} else {
			n.set("length", itoa(def.Length))
		}
	}
	describe(n, dt.LongDescription, nil)
	return n
}

func lengths(n *Node, lo, hi int) {
	if lo > 0 {
		n.set("min_length", strconv.Itoa(lo))
	}
	if hi > 0 {
		n.set("max_length", strconv.Itoa(hi))
	}
}

func encoding(parent *Node, e mdb.Encoding) {
	n := parent.add(KindEncoding)
	n.set("kind", e.Kind.String())
	if e.Bits > 0 {
		n.set("bits", utoa(e.Bits))
	}
	n.set("byte_order", e.ByteOrder.String())
	if e.Kind == mdb.Signed {
		n.set("scheme", e.Scheme.String())
	}
	if e.Kind == mdb.CharacterString {
		charset := e.Charset
		if charset == "" {
			charset = mdb.USASCII
		}
		n.set("charset", string(charset))
	}
	if d := e.Dynamic; d != nil {
		if d.Terminated {
			n.set("terminator", fmt.Sprintf("0x%02x", d.Terminator))
		} else {
			n.set("length_bits", utoa(d.LengthBits))
		}
		if d.MaxBits > 0 {
			n.set("max_bits", utoa(d.MaxBits))
		}
	}
	if e.Calibrator != nil {
		calibrator(n, e.Calibrator)
	}
}

func calibrator(parent *Node, c mdb.Calibrator) {
	n := parent.add(KindCalibrator)
	n.set("kind", c.CalibratorKind().String())
	switch c := c.(type) {
	case mdb.Polynomial:
		for exp, coef := range c.Coefficients {
			t := n.add(KindTerm)
			t.set("exponent", strconv.Itoa(exp))
			t.set("coefficient", ftoa(coef))
		}
	case mdb.Spline:
		n.set("order", strconv.Itoa(c.Order))
		for _, p := range c.Points {
			pn := n.add(KindPoint)
			pn.set("raw", ftoa(p.Raw))
			pn.set("calibrated", ftoa(p.Calibrated))
		}
	case mdb.Lookup:
		for _, e := range c.Entries {
			pn := n.add(KindPair)
			pn.set("raw", itoa(e.Raw))
			pn.set("value", ftoa(e.Value))
		}
	case mdb.Custom:
		n.set("language", c.Language)
		n.Text = c.Text
	}
}

// ============================================================
// Entities
// ============================================================

func (b *builder) parameter(id mdb.ParameterID) *Node {
	p := b.tree.Parameter(id)
	n := &Node{Kind: KindParameter}
	n.set("name", p.Name)
	n.set("type", b.typeRef(p.System, p.Type))
	n.set("data_source", string(p.DataSource))
	n.set("persistent", strconv.FormatBool(p.Persistent))
	if p.Initial.IsSet() {
		n.set("initial", b.tree.FormatValue(p.Type, p.Initial))
	}
	n.setIf("short_description", p.ShortDescription)
	describe(n, p.LongDescription, p.Aliases)
	for _, a := range p.Ancillary {
		an := n.add(KindAncillary)
		an.set("name", a.Name)
		an.set("value", a.Value)
	}
	return n
}

func (b *builder) container(id mdb.ContainerID) *Node {
	c := b.tree.Container(id)
	l := b.model.Container(id)
	n := &Node{Kind: KindContainer}
	n.set("name", c.Name)
	if base := b.tree.Container(c.Base); base != nil {
		n.set("base", b.ref(c.System, base.QualifiedName))
	}
	n.flag("abstract", c.Abstract)
	size(n, &l.Layout)
	if c.Rate > 0 {
		n.set("rate", seconds(c.Rate))
	}
	n.flag("archive_partition", c.ArchivePartition)
	n.setIf("short_description", c.ShortDescription)
	describe(n, c.LongDescription, c.Aliases)

	if len(c.Restriction) > 0 {
		b.comparisons(n.add(KindRestriction), c.System, c.Restriction)
	}
	for _, pl := range l.Own() {
		b.entry(n, c.System, pl)
	}
	return n
}

func (b *builder) command(id mdb.CommandID) *Node {
	c := b.tree.Command(id)
	l := b.model.Command(id)
	n := &Node{Kind: KindCommand}
	n.set("name", c.Name)
	if base := b.tree.Command(c.Base); base != nil {
		n.set("base", b.ref(c.System, base.QualifiedName))
	}
	n.flag("abstract", c.Abstract)
	size(n, &l.Layout)
	n.setIf("significance", string(c.Significance))
	n.setIf("warning_message", c.WarningMessage)
	n.setIf("short_description", c.ShortDescription)
	describe(n, c.LongDescription, c.Aliases)

	for _, a := range c.Arguments {
		an := n.add(KindArgument)
		an.set("name", a.Name)
		an.set("type", b.typeRef(c.System, a.Type))
		if a.Default.IsSet() {
			an.set("default", b.tree.FormatValue(a.Type, a.Default))
		}
		an.setIf("short_description", a.ShortDescription)
		describe(an, a.LongDescription, nil)
	}
	for _, as := range c.Assignments {
		an := n.add(KindAssignment)
		an.set("argument", as.Argument)
		value := as.Value.String()
		if arg, _, ok := b.tree.FindArgument(c.Base, as.Argument); ok {
			value = b.tree.FormatValue(arg.Type, as.Value)
		}
		an.set("value", value)
	}
	for _, pl := range l.Own() {
		b.entry(n, c.System, pl)
	}
	for _, v := range c.Verifiers {
		vn := n.add(KindVerifier)
		vn.set("stage", string(v.Stage))
		if v.Container != "" {
			vn.set("container", b.containerRef(c.System, v.Container))
		}
		if v.Algorithm != "" {
			vn.set("algorithm", b.algorithmRef(c.System, v.Algorithm))
		}
		if v.Delay > 0 {
			vn.set("delay", seconds(v.Delay))
		}
		if v.Timeout > 0 {
			vn.set("timeout", seconds(v.Timeout))
		}
		vn.setIf("on_success", string(v.OnSuccess))
		vn.setIf("on_fail", string(v.OnFail))
		vn.setIf("on_timeout", string(v.OnTimeout))
		b.comparisons(vn, c.System, v.Expression)
	}
	for _, tc := range c.Constraints {
		cn := n.add(KindConstraint)
		if tc.Timeout > 0 {
			cn.set("timeout", seconds(tc.Timeout))
		}
		cn.flag("suspendable", tc.Suspendable)
		b.comparisons(cn, c.System, tc.Expression)
	}
	return n
}

func size(n *Node, l *layout.Layout) {
	n.set("size_bits", itoa(l.SizeBits))
	n.flag("dynamic", l.Dynamic)
}

// entry renders one own-level placement. The location is kept as
// declared; start_bit and size_bits are the resolved values.
func (b *builder) entry(parent *Node, sys mdb.SystemID, pl layout.Placement) {
	n := parent.add(KindEntry)
	n.set("kind", pl.Kind.String())
	switch pl.Kind {
	case mdb.ParameterEntryKind:
		n.set("parameter", b.ref(sys, b.tree.Parameter(pl.Parameter).QualifiedName))
	case mdb.ContainerEntryKind:
		n.set("container", b.ref(sys, b.tree.Container(pl.Container).QualifiedName))
	case mdb.ArgumentEntryKind:
		n.set("argument", pl.Argument)
	case mdb.FixedValueEntryKind:
		if !strings.HasPrefix(pl.Name, "#") {
			n.set("name", pl.Name)
		}
		n.set("value", hex.EncodeToString(pl.Value))
	}
	n.set("reference", pl.Location.Reference.String())
	if pl.Location.Reference == mdb.NamedEntry {
		n.set("anchor", pl.Location.Entry)
	}
	if pl.Location.OffsetBits != 0 {
		n.set("offset_bits", itoa(pl.Location.OffsetBits))
	}
	n.set("start_bit", itoa(pl.StartBit))
	if pl.Dynamic {
		n.set("dynamic", "true")
	} else {
		n.set("size_bits", itoa(pl.SizeBits))
	}
}

func (b *builder) comparisons(parent *Node, sys mdb.SystemID, cs []mdb.Comparison) {
	for _, c := range cs {
		n := parent.add(KindComparison)
		n.set("parameter", b.parameterRef(sys, c.Parameter))
		n.set("operator", string(c.Operator))
		n.set("value", c.Value)
		n.flag("calibrated", c.Calibrated)
	}
}

func (b *builder) algorithm(id mdb.AlgorithmID) *Node {
	a := b.tree.Algorithm(id)
	n := &Node{Kind: KindAlgorithm}
	n.set("name", a.Name)
	n.set("language", a.Language)
	n.setIf("short_description", a.ShortDescription)
	describe(n, a.LongDescription, nil)
	n.add(KindText).Text = a.Text
	for _, in := range a.Inputs {
		input := n.add(KindInput)
		input.set("parameter", b.parameterRef(a.System, in.Parameter))
		input.setIf("name", in.Name)
		input.flag("mandatory", in.Mandatory)
	}
	for _, out := range a.Outputs {
		on := n.add(KindOutput)
		on.set("parameter", b.parameterRef(a.System, out.Parameter))
		on.setIf("name", out.Name)
	}
	for _, tr := range a.Triggers {
		tn := n.add(KindTrigger)
		switch {
		case tr.Parameter != "":
			tn.set("parameter", b.parameterRef(a.System, tr.Parameter))
		case tr.Container != "":
			tn.set("container", b.containerRef(a.System, tr.Container))
		default:
			tn.set("period", seconds(tr.Period))
		}
	}
	return n
}

func itoa(n int64) string  { return strconv.FormatInt(n, 10) }
func utoa(n uint32) string { return strconv.FormatUint(uint64(n), 10) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func seconds(d time.Duration) string { return ftoa(d.Seconds()) }
