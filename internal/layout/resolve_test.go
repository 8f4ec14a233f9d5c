package layout

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mdbgen/internal/mdb"
)

// builder wraps a tree with helpers that fail the test on construction
// errors.
type builder struct {
	t    *testing.T
	tree *mdb.Tree
}

func newBuilder(t *testing.T) *builder {
	t.Helper()
	tree, err := mdb.New(mdb.SystemSpec{Name: "SC"})
	require.NoError(t, err)
	return &builder{t: t, tree: tree}
}

func (b *builder) system(parent mdb.SystemID, name string) mdb.SystemID {
	b.t.Helper()
	id, err := b.tree.AddSystem(parent, mdb.SystemSpec{Name: name})
	require.NoError(b.t, err)
	return id
}

func (b *builder) uint(sys mdb.SystemID, name string, bits uint32) mdb.TypeID {
	b.t.Helper()
	id, err := b.tree.AddType(sys, mdb.TypeSpec{Name: name, Def: mdb.IntegerType{Encoding: mdb.UnsignedEncoding(bits)}})
	require.NoError(b.t, err)
	return id
}

func (b *builder) typ(sys mdb.SystemID, name string, def mdb.TypeDef) mdb.TypeID {
	b.t.Helper()
	id, err := b.tree.AddType(sys, mdb.TypeSpec{Name: name, Def: def})
	require.NoError(b.t, err)
	return id
}

func (b *builder) param(sys mdb.SystemID, name string, typ mdb.TypeID) mdb.ParameterID {
	b.t.Helper()
	id, err := b.tree.AddParameter(sys, mdb.ParameterSpec{Name: name, Type: typ})
	require.NoError(b.t, err)
	return id
}

func (b *builder) container(sys mdb.SystemID, spec mdb.ContainerSpec) mdb.ContainerID {
	b.t.Helper()
	id, err := b.tree.AddContainer(sys, spec)
	require.NoError(b.t, err)
	return id
}

func (b *builder) command(sys mdb.SystemID, spec mdb.CommandSpec) mdb.CommandID {
	b.t.Helper()
	id, err := b.tree.AddCommand(sys, spec)
	require.NoError(b.t, err)
	return id
}

func starts(l *Layout) []int64 {
	var out []int64
	for _, p := range l.Placements {
		out = append(out, p.StartBit)
	}
	return out
}

// ============================================================
// Placement rules
// ============================================================

func TestResolve_FirstEntryOffset(t *testing.T) {
	tests := []struct {
		name string
		loc  mdb.Location
		want int64
	}{
		{"previous entry zero", mdb.AfterPrevious(0), 0},
		{"previous entry padded", mdb.AfterPrevious(3), 3},
		{"container start zero", mdb.FromStart(0), 0},
		{"container start offset", mdb.FromStart(16), 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuilder(t)
			root := b.tree.Root()
			p := b.param(root, "p", b.uint(root, "u8", 8))
			c := b.container(root, mdb.ContainerSpec{Name: "C", Entries: []mdb.Entry{mdb.ParameterEntry(p).At(tt.loc)}})

			m, err := Resolve(b.tree)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Container(c).Placements[0].StartBit)
		})
	}
}

func TestResolve_PreviousEntryIsContiguous(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	var entries []mdb.Entry
	for i, bits := range []uint32{3, 13, 1, 8, 32, 7} {
		typ := b.uint(root, "t"+string(rune('a'+i)), bits)
		entries = append(entries, mdb.ParameterEntry(b.param(root, "p"+string(rune('a'+i)), typ)))
	}
	c := b.container(root, mdb.ContainerSpec{Name: "C", Entries: entries})

	m, err := Resolve(b.tree)
	require.NoError(t, err)

	l := m.Container(c)
	for n := 1; n < len(l.Placements); n++ {
		prev, cur := l.Placements[n-1], l.Placements[n]
		assert.Equal(t, prev.StartBit+prev.SizeBits, cur.StartBit, "entry %s", cur.Name)
	}
	assert.Equal(t, int64(64), l.SizeBits)
}

func TestResolve_NamedEntryAnchor(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	u8 := b.uint(root, "u8", 8)
	a, x, y := b.param(root, "a", u8), b.param(root, "x", u8), b.param(root, "y", u8)
	c := b.container(root, mdb.ContainerSpec{Name: "C", Entries: []mdb.Entry{
		mdb.ParameterEntry(a),
		mdb.ParameterEntry(x).At(mdb.FromStart(24)),
		mdb.ParameterEntry(y).At(mdb.After("a", 0)),
	}})

	m, err := Resolve(b.tree)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 24, 8}, starts(&m.Container(c).Layout))
	assert.Equal(t, int64(32), m.Container(c).SizeBits, "size is the furthest end, not the final cursor")
}

func TestResolve_DanglingNamedEntry(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	u8 := b.uint(root, "u8", 8)
	a, z := b.param(root, "a", u8), b.param(root, "z", u8)
	b.container(root, mdb.ContainerSpec{Name: "C", Entries: []mdb.Entry{
		mdb.ParameterEntry(a).At(mdb.After("z", 0)),
		mdb.ParameterEntry(z),
	}})

	_, err := Resolve(b.tree)
	var dangling *DanglingReferenceError
	require.ErrorAs(t, err, &dangling)
	assert.Equal(t, "/SC/C", dangling.Container)
	assert.Equal(t, "a", dangling.Entry)
	assert.Equal(t, "z", dangling.Reference)
	assert.ErrorIs(t, err, ErrResolution)
}

func TestResolve_OverlapNamesBothEntries(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	u16 := b.uint(root, "u16", 16)
	first, second := b.param(root, "first", u16), b.param(root, "second", u16)
	b.container(root, mdb.ContainerSpec{Name: "C", Entries: []mdb.Entry{
		mdb.ParameterEntry(first),
		mdb.ParameterEntry(second).At(mdb.FromStart(8)),
	}})

	_, err := Resolve(b.tree)
	require.Error(t, err)
	assert.True(t, IsOverlap(err))

	var overlap *OverlapError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, Range{Entry: "first", Start: 0, End: 16}, overlap.First)
	assert.Equal(t, Range{Entry: "second", Start: 8, End: 24}, overlap.Second)
	assert.Contains(t, err.Error(), "first [0, 16)")
	assert.Contains(t, err.Error(), "second [8, 24)")
}

func TestResolve_OverlapAcrossNonAdjacentEntries(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	wide := b.param(root, "wide", b.uint(root, "u32", 32))
	u4 := b.uint(root, "u4", 4)
	small1, small2 := b.param(root, "s1", u4), b.param(root, "s2", u4)
	b.container(root, mdb.ContainerSpec{Name: "C", Entries: []mdb.Entry{
		mdb.ParameterEntry(wide),
		mdb.ParameterEntry(small1).At(mdb.FromStart(40)),
		mdb.ParameterEntry(small2).At(mdb.FromStart(20)),
	}})

	_, err := Resolve(b.tree)
	var overlap *OverlapError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, "wide", overlap.First.Entry)
	assert.Equal(t, "s2", overlap.Second.Entry)
}

func TestResolve_NegativeOffset(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	p := b.param(root, "p", b.uint(root, "u8", 8))
	b.container(root, mdb.ContainerSpec{Name: "C", Entries: []mdb.Entry{mdb.ParameterEntry(p).At(mdb.AfterPrevious(-4))}})

	_, err := Resolve(b.tree)
	var offset *OffsetError
	require.ErrorAs(t, err, &offset)
	assert.Equal(t, int64(-4), offset.StartBit)
}

func TestResolve_DeclaredSize(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	p := b.param(root, "p", b.uint(root, "u8", 8))
	padded := b.container(root, mdb.ContainerSpec{Name: "Padded", Bits: 32, Entries: []mdb.Entry{mdb.ParameterEntry(p)}})

	m, err := Resolve(b.tree)
	require.NoError(t, err)
	assert.Equal(t, int64(32), m.Container(padded).SizeBits)

	b.container(root, mdb.ContainerSpec{Name: "Short", Bits: 4, Entries: []mdb.Entry{mdb.ParameterEntry(p)}})
	_, err = Resolve(b.tree)
	var mismatch *SizeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "/SC/Short", mismatch.Container)
	assert.Equal(t, int64(4), mismatch.Declared)
	assert.Equal(t, int64(8), mismatch.Computed)
}

// ============================================================
// Dynamic entries
// ============================================================

func dynamicString(b *builder) mdb.ParameterID {
	root := b.tree.Root()
	s := b.typ(root, "text_t", mdb.StringType{Encoding: mdb.StringEncoding(0).LengthPrefixed(8)})
	return b.param(root, "text", s)
}

func TestResolve_DynamicLastEntry(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	id := b.param(root, "id", b.uint(root, "u8", 8))
	text := dynamicString(b)
	c := b.container(root, mdb.ContainerSpec{Name: "C", Entries: []mdb.Entry{mdb.ParameterEntry(id), mdb.ParameterEntry(text)}})

	m, err := Resolve(b.tree)
	require.NoError(t, err)
	l := m.Container(c)
	assert.True(t, l.Dynamic)
	assert.Equal(t, int64(8), l.SizeBits, "size covers the fixed part")
	assert.True(t, l.Placements[1].Dynamic)
}

func TestResolve_PreviousEntryAfterDynamic(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	text := dynamicString(b)
	crc := b.param(root, "crc", b.uint(root, "u16", 16))
	b.container(root, mdb.ContainerSpec{Name: "C", Entries: []mdb.Entry{mdb.ParameterEntry(text), mdb.ParameterEntry(crc)}})

	_, err := Resolve(b.tree)
	var dyn *DynamicPlacementError
	require.ErrorAs(t, err, &dyn)
	assert.Equal(t, "crc", dyn.Entry)
	assert.Equal(t, "text", dyn.Dynamic)
}

func TestResolve_AbsoluteEntryBeforeDynamicStart(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	u8 := b.uint(root, "u8", 8)
	id, flags := b.param(root, "id", u8), b.param(root, "flags", u8)
	text := dynamicString(b)
	c := b.container(root, mdb.ContainerSpec{Name: "C", Entries: []mdb.Entry{
		mdb.ParameterEntry(id),
		mdb.ParameterEntry(text).At(mdb.FromStart(16)),
		mdb.ParameterEntry(flags).At(mdb.After("id", 0)),
	}})

	m, err := Resolve(b.tree)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 16, 8}, starts(&m.Container(c).Layout))
}

func TestResolve_AbsoluteEntryInsideDynamicRegion(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	flags := b.param(root, "flags", b.uint(root, "u8", 8))
	text := dynamicString(b)
	b.container(root, mdb.ContainerSpec{Name: "C", Entries: []mdb.Entry{
		mdb.ParameterEntry(text),
		mdb.ParameterEntry(flags).At(mdb.FromStart(64)),
	}})

	_, err := Resolve(b.tree)
	assert.True(t, IsDynamicPlacement(err))
}

func TestResolve_AnchorToDynamicEntry(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	flags := b.param(root, "flags", b.uint(root, "u8", 8))
	text := dynamicString(b)
	b.container(root, mdb.ContainerSpec{Name: "C", Entries: []mdb.Entry{
		mdb.ParameterEntry(text).At(mdb.FromStart(8)),
		mdb.ParameterEntry(flags).At(mdb.After("text", 0)),
	}})

	_, err := Resolve(b.tree)
	assert.True(t, IsDynamicPlacement(err))
}

func TestResolve_DynamicArrayLength(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	u8 := b.uint(root, "u8", 8)
	samples := b.typ(root, "samples_t", mdb.ArrayType{Element: u8, LengthEntry: "count"})
	count, data := b.param(root, "count", u8), b.param(root, "samples", samples)

	ok := b.container(root, mdb.ContainerSpec{Name: "Ok", Entries: []mdb.Entry{mdb.ParameterEntry(count), mdb.ParameterEntry(data)}})
	m, err := Resolve(b.tree)
	require.NoError(t, err)
	assert.True(t, m.Container(ok).Dynamic)

	b.container(root, mdb.ContainerSpec{Name: "Bad", Entries: []mdb.Entry{
		mdb.ParameterEntry(data),
		mdb.ParameterEntry(count).At(mdb.FromStart(0)),
	}})
	_, err = Resolve(b.tree)
	var dangling *DanglingReferenceError
	require.ErrorAs(t, err, &dangling)
	assert.Equal(t, "/SC/Bad", dangling.Container)
	assert.Equal(t, "count", dangling.Reference)
}

func TestResolve_DynamicArrayLengthMustBeInteger(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	u8 := b.uint(root, "u8", 8)
	f32 := b.typ(root, "f32", mdb.FloatType{Bits: 32, Encoding: mdb.FloatEncoding(32)})
	samples := b.typ(root, "samples_t", mdb.ArrayType{Element: u8, LengthEntry: "gain"})
	gain, data := b.param(root, "gain", f32), b.param(root, "samples", samples)

	b.container(root, mdb.ContainerSpec{Name: "Pkt", Entries: []mdb.Entry{
		mdb.ParameterEntry(gain),
		mdb.ParameterEntry(data),
	}})
	_, err := Resolve(b.tree)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResolution)
	assert.True(t, IsLengthEntry(err))

	var lengthErr *LengthEntryError
	require.ErrorAs(t, err, &lengthErr)
	assert.Equal(t, "/SC/Pkt", lengthErr.Container)
	assert.Equal(t, "samples", lengthErr.Entry)
	assert.Equal(t, "gain", lengthErr.Length)
	assert.Equal(t, "float", lengthErr.Found)
}

func TestResolve_DynamicArrayLengthFromFixedValue(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	u8 := b.uint(root, "u8", 8)
	samples := b.typ(root, "samples_t", mdb.ArrayType{Element: u8, LengthEntry: "count"})
	data := b.param(root, "samples", samples)

	b.container(root, mdb.ContainerSpec{Name: "Pkt", Entries: []mdb.Entry{
		mdb.FixedValueEntry("count", []byte{0x04}, 8),
		mdb.ParameterEntry(data),
	}})
	_, err := Resolve(b.tree)
	var lengthErr *LengthEntryError
	require.ErrorAs(t, err, &lengthErr)
	assert.Equal(t, "fixed entry", lengthErr.Found)
}

// ============================================================
// Scenarios
// ============================================================

func TestResolve_CSPHeader32Bits(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	fields := []struct {
		name string
		bits uint32
		loc  mdb.Location
	}{
		{"pri", 2, mdb.AfterPrevious(0)},
		{"src", 5, mdb.AfterPrevious(0)},
		{"dst", 5, mdb.AfterPrevious(0)},
		{"dport", 6, mdb.AfterPrevious(0)},
		{"sport", 6, mdb.AfterPrevious(0)},
		{"hmac", 1, mdb.AfterPrevious(4)},
		{"xtea", 1, mdb.AfterPrevious(0)},
		{"rdp", 1, mdb.AfterPrevious(0)},
		{"crc", 1, mdb.AfterPrevious(0)},
	}
	var entries []mdb.Entry
	for _, f := range fields {
		typ := b.uint(root, f.name+"_t", f.bits)
		entries = append(entries, mdb.ParameterEntry(b.param(root, f.name, typ)).At(f.loc))
	}
	header := b.container(root, mdb.ContainerSpec{Name: "csp_message", Abstract: true, Bits: 32, Entries: entries})

	m, err := Resolve(b.tree)
	require.NoError(t, err)

	l := m.Container(header)
	assert.Equal(t, int64(32), l.SizeBits)
	assert.False(t, l.Dynamic)
	assert.Equal(t, []int64{0, 2, 7, 12, 18, 28, 29, 30, 31}, starts(&l.Layout))
	last := l.Placements[len(l.Placements)-1]
	assert.Equal(t, int64(32), last.EndBit())
}

func TestResolve_BatteryAssignment(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	cmdID := b.typ(root, "command_id_t", mdb.IntegerType{Encoding: mdb.UnsignedEncoding(16)})
	battery := b.typ(root, "battery_t", mdb.IntegerType{Encoding: mdb.UnsignedEncoding(16), Range: &mdb.IntRange{Min: 1, Max: 3}})

	base := b.command(root, mdb.CommandSpec{
		Name:      "SwitchVoltage",
		Abstract:  true,
		Arguments: []mdb.Argument{{Name: "command_id", Type: cmdID}, {Name: "battery", Type: battery}},
	})
	on := b.command(root, mdb.CommandSpec{
		Name:        "SwitchBattery2On",
		Base:        base,
		Assignments: []mdb.Assignment{{Argument: "command_id", Value: mdb.Int(2)}, {Argument: "battery", Value: mdb.Int(2)}},
	})

	m, err := Resolve(b.tree)
	require.NoError(t, err)

	l := m.Command(on)
	assert.Equal(t, []string{"/SC/SwitchVoltage", "/SC/SwitchBattery2On"}, l.Chain)
	slot, ok := l.Lookup("battery")
	require.True(t, ok)
	assert.True(t, slot.Constant())
	assert.Equal(t, mdb.Int(2), slot.Assigned)
	assert.Equal(t, "/SC/SwitchBattery2On", slot.AssignedBy)
	assert.Equal(t, "/SC/SwitchVoltage", slot.Owner, "the entry still belongs to the ancestor")
	assert.Empty(t, l.RequiredArguments())

	// The ancestor stays generic.
	generic := m.Command(base)
	assert.Equal(t, []string{"command_id", "battery"}, generic.RequiredArguments())
	slot, _ = generic.Lookup("battery")
	assert.False(t, slot.Constant())
	assert.Empty(t, b.tree.Command(base).Assignments)
}

func TestResolve_MostDerivedAssignmentWins(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	u8 := b.uint(root, "u8", 8)
	top := b.command(root, mdb.CommandSpec{Name: "Top", Abstract: true, Arguments: []mdb.Argument{{Name: "apid", Type: u8}}})
	mid := b.command(root, mdb.CommandSpec{Name: "Mid", Abstract: true, Base: top,
		Assignments: []mdb.Assignment{{Argument: "apid", Value: mdb.Int(100)}}})
	leaf := b.command(root, mdb.CommandSpec{Name: "Leaf", Base: mid,
		Assignments: []mdb.Assignment{{Argument: "apid", Value: mdb.Int(101)}}})

	m, err := Resolve(b.tree)
	require.NoError(t, err)

	bind, ok := m.Command(leaf).Binding("apid")
	require.True(t, ok)
	assert.Equal(t, mdb.Int(101), bind.Assigned)
	assert.Equal(t, "/SC/Leaf", bind.AssignedBy)

	bind, _ = m.Command(mid).Binding("apid")
	assert.Equal(t, mdb.Int(100), bind.Assigned)
}

func TestResolve_UnassignedAbstractArgument(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	u8 := b.uint(root, "u8", 8)
	base := b.command(root, mdb.CommandSpec{Name: "Packet", Abstract: true, Arguments: []mdb.Argument{
		{Name: "apid", Type: u8},
		{Name: "flags", Type: u8, Default: mdb.Int(0)},
	}})
	b.command(root, mdb.CommandSpec{Name: "Ping", Base: base})

	_, err := Resolve(b.tree)
	var unassigned *UnassignedArgumentError
	require.ErrorAs(t, err, &unassigned)
	assert.Equal(t, "/SC/Ping", unassigned.Command)
	assert.Equal(t, "apid", unassigned.Argument)
	assert.Equal(t, "/SC/Packet", unassigned.DeclaredBy)
}

func TestResolve_ConcreteLeafArgumentsStayFree(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	u8 := b.uint(root, "u8", 8)
	base := b.command(root, mdb.CommandSpec{Name: "Packet", Abstract: true, Arguments: []mdb.Argument{{Name: "apid", Type: u8}}})
	leaf := b.command(root, mdb.CommandSpec{
		Name:        "SetMode",
		Base:        base,
		Assignments: []mdb.Assignment{{Argument: "apid", Value: mdb.Int(5)}},
		Arguments:   []mdb.Argument{{Name: "mode", Type: u8}, {Name: "delay", Type: u8, Default: mdb.Int(0)}},
	})

	m, err := Resolve(b.tree)
	require.NoError(t, err)
	l := m.Command(leaf)
	assert.Equal(t, []string{"mode"}, l.RequiredArguments())
	assert.Equal(t, []int64{0, 8, 16}, starts(&l.Layout))
	assert.Equal(t, int64(24), l.SizeBits)
}

func TestResolve_AssignmentToUnknownArgument(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	base := b.command(root, mdb.CommandSpec{Name: "Packet", Abstract: true})
	b.command(root, mdb.CommandSpec{Name: "Ping", Base: base,
		Assignments: []mdb.Assignment{{Argument: "apid", Value: mdb.Int(1)}}})

	_, err := Resolve(b.tree)
	var ae *mdb.AssignmentError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "/SC/Ping", ae.Command)
	assert.Equal(t, "apid", ae.Argument)
}

func TestResolve_AssignmentToOwnArgumentRejected(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	u8 := b.uint(root, "u8", 8)
	b.command(root, mdb.CommandSpec{
		Name:        "Ping",
		Arguments:   []mdb.Argument{{Name: "apid", Type: u8}},
		Assignments: []mdb.Assignment{{Argument: "apid", Value: mdb.Int(1)}},
	})

	_, err := Resolve(b.tree)
	assert.True(t, mdb.IsAssignmentError(err))
}

func TestResolve_UnknownArgumentEntry(t *testing.T) {
	b := newBuilder(t)
	b.command(b.tree.Root(), mdb.CommandSpec{Name: "Ping", Entries: []mdb.Entry{mdb.ArgumentEntry("ghost")}})

	_, err := Resolve(b.tree)
	var unresolved *UnresolvedReferenceError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "ghost", unresolved.Reference)
}

func TestResolve_CommandFixedValues(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	apid := b.uint(root, "apid_t", 11)
	flag := b.uint(root, "flag_t", 1)
	cmd := b.command(root, mdb.CommandSpec{
		Name:      "ccsds_space_packet",
		Abstract:  true,
		Arguments: []mdb.Argument{{Name: "secondary_header", Type: flag}, {Name: "apid", Type: apid}},
		Entries: []mdb.Entry{
			mdb.FixedValueEntry("version", []byte{0}, 3),
			mdb.FixedValueEntry("type", []byte{1}, 1),
			mdb.ArgumentEntry("secondary_header"),
			mdb.ArgumentEntry("apid"),
			mdb.FixedValueEntry("group_flags", []byte{3}, 2),
			mdb.FixedValueEntry("sequence_count", []byte{0, 0}, 14),
			mdb.FixedValueEntry("packet_length", []byte{0, 0}, 16),
		},
	})

	m, err := Resolve(b.tree)
	require.NoError(t, err)
	l := m.Command(cmd)
	assert.Equal(t, int64(48), l.SizeBits)
	assert.Equal(t, []int64{0, 3, 4, 5, 16, 18, 32}, starts(&l.Layout))
}

// ============================================================
// Inheritance
// ============================================================

func TestResolve_InheritedEntriesComeFirst(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	u16 := b.uint(root, "u16", 16)
	apid, vbat := b.param(root, "apid", u16), b.param(root, "vbat", u16)
	header := b.container(root, mdb.ContainerSpec{Name: "Header", Abstract: true, Entries: []mdb.Entry{mdb.ParameterEntry(apid)}})
	hk := b.container(root, mdb.ContainerSpec{
		Name:        "HK",
		Base:        header,
		Restriction: []mdb.Comparison{{Parameter: "apid", Operator: mdb.Equal, Value: "101"}},
		Entries:     []mdb.Entry{mdb.ParameterEntry(vbat)},
	})

	m, err := Resolve(b.tree)
	require.NoError(t, err)

	l := m.Container(hk)
	assert.Equal(t, []string{"/SC/Header", "/SC/HK"}, l.Chain)
	assert.Equal(t, []int64{0, 16}, starts(&l.Layout))
	assert.Equal(t, "/SC/Header", l.Placements[0].Owner)

	own := l.Own()
	require.Len(t, own, 1)
	assert.Equal(t, "vbat", own[0].Name)
	assert.Equal(t, int64(16), own[0].StartBit)
}

func TestResolve_UnnamedFixedValuesPerLevel(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	u8 := b.uint(root, "u8", 8)
	x := b.param(root, "x", u8)
	header := b.container(root, mdb.ContainerSpec{
		Name:     "Header",
		Abstract: true,
		Entries:  []mdb.Entry{mdb.FixedValueEntry("", []byte{0x01}, 8)},
	})
	pkt := b.container(root, mdb.ContainerSpec{
		Name: "Pkt",
		Base: header,
		Entries: []mdb.Entry{
			mdb.FixedValueEntry("", []byte{0x02}, 8),
			mdb.ParameterEntry(x).At(mdb.After("#0.0", 16)),
		},
	})

	m, err := Resolve(b.tree)
	require.NoError(t, err)

	l := m.Container(pkt)
	require.Len(t, l.Placements, 3)
	assert.Equal(t, "#0.0", l.Placements[0].Name)
	assert.Equal(t, "#1.0", l.Placements[1].Name)
	assert.Equal(t, []int64{0, 8, 24}, starts(&l.Layout))
}

func TestResolve_BaseLinkedAfterCreation(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	u8 := b.uint(root, "u8", 8)
	x := b.param(root, "x", u8)
	child := b.container(root, mdb.ContainerSpec{Name: "Child", Entries: []mdb.Entry{mdb.ParameterEntry(x)}})
	y := b.param(root, "y", u8)
	parent := b.container(root, mdb.ContainerSpec{Name: "Parent", Abstract: true, Entries: []mdb.Entry{mdb.ParameterEntry(y)}})
	require.NoError(t, b.tree.SetContainerBase(child, parent))

	m, err := Resolve(b.tree)
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x"}, []string{m.Container(child).Placements[0].Name, m.Container(child).Placements[1].Name})
}

func TestResolve_NestedContainer(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	u16 := b.uint(root, "u16", 16)
	a, c := b.param(root, "a", u16), b.param(root, "c", u16)
	inner := b.container(root, mdb.ContainerSpec{Name: "Inner", Entries: []mdb.Entry{mdb.ParameterEntry(a)}, Bits: 24})
	outer := b.container(root, mdb.ContainerSpec{Name: "Outer", Entries: []mdb.Entry{mdb.ContainerEntry(inner), mdb.ParameterEntry(c)}})

	m, err := Resolve(b.tree)
	require.NoError(t, err)
	l := m.Container(outer)
	assert.Equal(t, []int64{0, 24}, starts(&l.Layout))
	assert.Equal(t, "Inner", l.Placements[0].Name)
	assert.Equal(t, int64(40), l.SizeBits)
}

func TestResolve_ContainerReferenceCycle(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	x := b.container(root, mdb.ContainerSpec{Name: "X"})
	a := b.container(root, mdb.ContainerSpec{Name: "A", Entries: []mdb.Entry{mdb.ContainerEntry(x)}})
	require.NoError(t, b.tree.SetContainerBase(x, a))

	_, err := Resolve(b.tree)
	var cycle *ReferenceCycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"/SC/X", "/SC/X"}, cycle.Chain)
}

// ============================================================
// Satellite references
// ============================================================

func TestResolve_UnresolvedRestriction(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	base := b.container(root, mdb.ContainerSpec{Name: "Base", Abstract: true})
	b.container(root, mdb.ContainerSpec{Name: "HK", Base: base,
		Restriction: []mdb.Comparison{{Parameter: "missing", Operator: mdb.Equal, Value: "1"}}})

	_, err := Resolve(b.tree)
	var unresolved *UnresolvedReferenceError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "/SC/HK", unresolved.From)
	assert.Equal(t, "restriction[0]", unresolved.Field)
}

func TestResolve_AggregateMemberReference(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	eps := b.system(root, "EPS")
	u11 := b.uint(root, "u11", 11)
	pid := b.typ(root, "packet_id_t", mdb.AggregateType{Members: []mdb.Member{{Name: "apid", Type: u11}}})
	b.param(root, "packet_id", pid)
	base := b.container(root, mdb.ContainerSpec{Name: "Base", Abstract: true})
	b.container(eps, mdb.ContainerSpec{Name: "HK", Base: base,
		Restriction: []mdb.Comparison{{Parameter: "/SC/packet_id.apid", Operator: mdb.Equal, Value: "101"}}})

	_, err := Resolve(b.tree)
	require.NoError(t, err)

	b.container(eps, mdb.ContainerSpec{Name: "Bad", Base: base,
		Restriction: []mdb.Comparison{{Parameter: "../packet_id.nope", Operator: mdb.Equal, Value: "1"}}})
	_, err = Resolve(b.tree)
	assert.ErrorIs(t, err, ErrResolution)
}

func TestResolve_AlgorithmAndVerifierReferences(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	b.param(root, "vbat", b.uint(root, "u8", 8))
	_, err := b.tree.AddAlgorithm(root, mdb.AlgorithmSpec{
		Name: "check", Language: "java-expression", Text: "true",
		Inputs:   []mdb.AlgorithmInput{{Parameter: "vbat", Name: "in"}},
		Triggers: []mdb.Trigger{{Parameter: "vbat"}},
	})
	require.NoError(t, err)
	b.command(root, mdb.CommandSpec{Name: "Ping", Verifiers: []mdb.Verifier{
		{Stage: mdb.Complete, Algorithm: "check"},
		{Stage: mdb.Accepted, Container: "ack"},
	}})

	_, err = Resolve(b.tree)
	var unresolved *UnresolvedReferenceError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "verifiers[1].container", unresolved.Field)
	assert.Equal(t, "ack", unresolved.Reference)
}

// ============================================================
// Scheduling, determinism and logging
// ============================================================

func crossSystemTree(t *testing.T) (*builder, mdb.ContainerID) {
	b := newBuilder(t)
	root := b.tree.Root()
	common, eps, com := b.system(root, "COMMON"), b.system(root, "EPS"), b.system(root, "COM")
	u8 := b.uint(common, "u8", 8)
	header := b.container(common, mdb.ContainerSpec{Name: "Header", Abstract: true,
		Entries: []mdb.Entry{mdb.ParameterEntry(b.param(common, "apid", u8))}})
	hk := b.container(eps, mdb.ContainerSpec{Name: "HK", Base: header,
		Entries: []mdb.Entry{mdb.ParameterEntry(b.param(eps, "vbat", u8))}})
	b.container(com, mdb.ContainerSpec{Name: "Beacon", Base: header,
		Entries: []mdb.Entry{mdb.ParameterEntry(b.param(com, "rssi", u8))}})
	return b, hk
}

func TestResolve_SchedulesDependenciesFirst(t *testing.T) {
	b, hk := crossSystemTree(t)
	m, err := Resolve(b.tree, WithParallelism(4))
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"/SC", "/SC/COMMON"},
		{"/SC/COM", "/SC/EPS"},
	}, m.Levels())
	assert.Equal(t, []int64{0, 8}, starts(&m.Container(hk).Layout))
}

func TestResolve_MutuallyDependentSystemsFormOneUnit(t *testing.T) {
	b := newBuilder(t)
	root := b.tree.Root()
	a, z := b.system(root, "A"), b.system(root, "Z")
	u8 := b.uint(root, "u8", 8)
	ta := b.container(a, mdb.ContainerSpec{Name: "Base", Abstract: true, Entries: []mdb.Entry{mdb.ParameterEntry(b.param(a, "x", u8))}})
	tz := b.container(z, mdb.ContainerSpec{Name: "Base", Abstract: true, Entries: []mdb.Entry{mdb.ParameterEntry(b.param(z, "y", u8))}})
	b.container(a, mdb.ContainerSpec{Name: "Leaf", Base: tz})
	b.container(z, mdb.ContainerSpec{Name: "Leaf", Base: ta})

	m, err := Resolve(b.tree, WithParallelism(2))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"/SC", "/SC/A+/SC/Z"}}, m.Levels())
}

func TestResolve_ParallelMatchesSequential(t *testing.T) {
	b, _ := crossSystemTree(t)
	seq, err := Resolve(b.tree)
	require.NoError(t, err)
	par, err := Resolve(b.tree, WithParallelism(8))
	require.NoError(t, err)

	for i := 1; i <= b.tree.NumContainers(); i++ {
		id := mdb.ContainerID(i)
		assert.Equal(t, seq.Container(id), par.Container(id))
	}
}

func TestResolve_SameErrorRegardlessOfParallelism(t *testing.T) {
	b, _ := crossSystemTree(t)
	root := b.tree.Root()
	for _, name := range []string{"P1", "P2", "P3"} {
		sys := b.system(root, name)
		u8 := b.uint(sys, "u8", 8)
		p := b.param(sys, "p", u8)
		b.container(sys, mdb.ContainerSpec{Name: "Broken", Entries: []mdb.Entry{
			mdb.ParameterEntry(p),
			mdb.ParameterEntry(p).At(mdb.FromStart(0)),
		}})
	}

	_, seqErr := Resolve(b.tree)
	require.Error(t, seqErr)
	for i := 0; i < 5; i++ {
		_, parErr := Resolve(b.tree, WithParallelism(3))
		require.Error(t, parErr)
		assert.Equal(t, seqErr.Error(), parErr.Error())
	}
	assert.Contains(t, seqErr.Error(), "/SC/P1/Broken")
}

func TestResolve_DoesNotMutateTree(t *testing.T) {
	b, hk := crossSystemTree(t)
	before := *b.tree.Container(hk)

	first, err := Resolve(b.tree)
	require.NoError(t, err)
	second, err := Resolve(b.tree)
	require.NoError(t, err)

	assert.Equal(t, before, *b.tree.Container(hk))
	assert.Equal(t, first.Container(hk), second.Container(hk))
}

func TestResolve_DebugLogging(t *testing.T) {
	b, _ := crossSystemTree(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := Resolve(b.tree, WithLogger(logger))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "placed entry")
	assert.Contains(t, buf.String(), "container=/SC/EPS/HK")
}

func TestResolve_NilTree(t *testing.T) {
	_, err := Resolve(nil)
	assert.True(t, errors.Is(err, ErrResolution))
}
