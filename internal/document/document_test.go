package document

import (
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mdbgen/internal/layout"
	"github.com/roach88/mdbgen/internal/mdb"
)

// housekeeping builds a root system with an abstract header and one
// concrete packet restricted on the header's apid.
func housekeeping(t *testing.T) *mdb.Tree {
	t.Helper()
	tree, err := mdb.New(mdb.SystemSpec{Name: "SC"})
	require.NoError(t, err)
	root := tree.Root()

	u8, err := tree.AddType(root, mdb.TypeSpec{Name: "u8", Def: mdb.IntegerType{Encoding: mdb.UnsignedEncoding(8)}})
	require.NoError(t, err)
	apid, err := tree.AddParameter(root, mdb.ParameterSpec{Name: "apid", Type: u8})
	require.NoError(t, err)
	vbat, err := tree.AddParameter(root, mdb.ParameterSpec{Name: "vbat", Type: u8})
	require.NoError(t, err)

	header, err := tree.AddContainer(root, mdb.ContainerSpec{
		Name: "Header", Abstract: true,
		Entries: []mdb.Entry{mdb.ParameterEntry(apid)},
	})
	require.NoError(t, err)
	_, err = tree.AddContainer(root, mdb.ContainerSpec{
		Name:        "HK",
		Base:        header,
		Restriction: []mdb.Comparison{{Parameter: "apid", Operator: mdb.Equal, Value: "1"}},
		Entries:     []mdb.Entry{mdb.ParameterEntry(vbat)},
	})
	require.NoError(t, err)
	return tree
}

func resolve(t *testing.T, tree *mdb.Tree) *layout.Model {
	t.Helper()
	m, err := layout.Resolve(tree)
	require.NoError(t, err)
	return m
}

// ============================================================
// Build
// ============================================================

func TestBuild_Golden(t *testing.T) {
	root := Build(resolve(t, housekeeping(t)))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "housekeeping", MarshalCanonical(root))
}

func TestBuild_OwnEntriesOnly(t *testing.T) {
	root := Build(resolve(t, housekeeping(t)))

	hk := root.Child(KindContainers).Find(KindContainer, "HK")
	require.NotNil(t, hk)
	base, _ := hk.Attr("base")
	assert.Equal(t, "Header", base)

	entries := hk.ChildrenOf(KindEntry)
	require.Len(t, entries, 1, "inherited entries are not repeated")
	param, _ := entries[0].Attr("parameter")
	start, _ := entries[0].Attr("start_bit")
	assert.Equal(t, "vbat", param)
	assert.Equal(t, "8", start, "start bit is absolute within the packet")
}

func TestBuild_CrossSystemReferencesAreAbsolute(t *testing.T) {
	tree, err := mdb.New(mdb.SystemSpec{Name: "SC"})
	require.NoError(t, err)
	root := tree.Root()
	eps, err := tree.AddSystem(root, mdb.SystemSpec{Name: "EPS", ShortDescription: "Power"})
	require.NoError(t, err)

	u16, err := tree.AddType(root, mdb.TypeSpec{Name: "u16", Def: mdb.IntegerType{Encoding: mdb.UnsignedEncoding(16)}})
	require.NoError(t, err)
	local, err := tree.AddType(eps, mdb.TypeSpec{Name: "mv", Def: mdb.IntegerType{Encoding: mdb.UnsignedEncoding(16), Units: "mV"}})
	require.NoError(t, err)
	_, err = tree.AddParameter(eps, mdb.ParameterSpec{Name: "counter", Type: u16})
	require.NoError(t, err)
	_, err = tree.AddParameter(eps, mdb.ParameterSpec{Name: "vbat", Type: local})
	require.NoError(t, err)

	doc := Build(resolve(t, tree))
	require.Len(t, doc.ChildrenOf(KindSpaceSystem), 1)
	epsNode := doc.ChildrenOf(KindSpaceSystem)[0]
	desc, _ := epsNode.Attr("short_description")
	assert.Equal(t, "Power", desc)

	params := epsNode.Child(KindParameters)
	counter, _ := params.Find(KindParameter, "counter").Attr("type")
	vbat, _ := params.Find(KindParameter, "vbat").Attr("type")
	assert.Equal(t, "/SC/u16", counter)
	assert.Equal(t, "mv", vbat)
}

func TestBuild_CommandAssignmentsAndFixedValues(t *testing.T) {
	tree, err := mdb.New(mdb.SystemSpec{Name: "SC"})
	require.NoError(t, err)
	root := tree.Root()
	mode, err := tree.AddType(root, mdb.TypeSpec{Name: "mode_t", Def: mdb.EnumeratedType{
		Encoding: mdb.UnsignedEncoding(8),
		Choices:  []mdb.Choice{{Value: 0, Label: "SAFE"}, {Value: 1, Label: "NOMINAL"}},
	}})
	require.NoError(t, err)
	base, err := tree.AddCommand(root, mdb.CommandSpec{
		Name: "Base", Abstract: true,
		Arguments: []mdb.Argument{{Name: "mode", Type: mode}},
		Entries: []mdb.Entry{
			mdb.FixedValueEntry("sync", []byte{0x1a, 0xcf}, 16),
			mdb.ArgumentEntry("mode"),
		},
	})
	require.NoError(t, err)
	_, err = tree.AddCommand(root, mdb.CommandSpec{
		Name: "GoNominal", Base: base, Significance: mdb.Critical,
		Assignments: []mdb.Assignment{{Argument: "mode", Value: mdb.Int(1)}},
	})
	require.NoError(t, err)

	cmds := Build(resolve(t, tree)).Child(KindCommands)
	baseNode := cmds.Find(KindCommand, "Base")
	sync := baseNode.ChildrenOf(KindEntry)[0]
	value, _ := sync.Attr("value")
	name, _ := sync.Attr("name")
	assert.Equal(t, "1acf", value)
	assert.Equal(t, "sync", name)

	leaf := cmds.Find(KindCommand, "GoNominal")
	assert.Empty(t, leaf.ChildrenOf(KindEntry))
	significance, _ := leaf.Attr("significance")
	assert.Equal(t, "critical", significance)
	assignment := leaf.Child(KindAssignment)
	require.NotNil(t, assignment)
	v, _ := assignment.Attr("value")
	assert.Equal(t, "NOMINAL", v, "enumeration literals render by label")
	size, _ := leaf.Attr("size_bits")
	assert.Equal(t, "24", size)
}

func TestBuild_NormalisesToNFC(t *testing.T) {
	tree, err := mdb.New(mdb.SystemSpec{Name: "SC", ShortDescription: "cafe\u0301"})
	require.NoError(t, err)

	doc := Build(resolve(t, tree))
	desc, _ := doc.Attr("short_description")
	assert.Equal(t, "caf\u00e9", desc)
}

// ============================================================
// Canonical JSON
// ============================================================

func TestMarshalCanonical_SortsAttributeKeys(t *testing.T) {
	// U+10000 sorts before U+E000 in UTF-16 but after it in UTF-8.
	n := &Node{Kind: "x", Attrs: []Attr{{"zebra", "1"}, {"alpha", "2"}, {"\uE000", "3"}, {"\U00010000", "4"}}}
	want := `{"attrs":{"alpha":"2","zebra":"1","` + "\U00010000" + `":"4","` + "\uE000" + `":"3"},"kind":"x"}`
	assert.Equal(t, want, string(MarshalCanonical(n)))
}

func TestMarshalCanonical_Strings(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"html not escaped", "<a & b>", `"<a & b>"`},
		{"quote and backslash", `say "hi" \ bye`, `"say \"hi\" \\ bye"`},
		{"control character", "a\nb", `"a\nb"`},
		{"line separator literal", "a\u2028b\u2029c", "\"a\u2028b\u2029c\""},
		{"escaped text kept", `a\u2028b`, `"a\\u2028b"`},
		{"nfc", "e\u0301", "\"\u00e9\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &Node{Kind: "k", Text: tt.in}
			assert.Equal(t, `{"kind":"k","text":`+tt.want+`}`, string(MarshalCanonical(n)))
		})
	}
}

func TestMarshalCanonical_IsValidJSON(t *testing.T) {
	out := MarshalCanonical(Build(resolve(t, housekeeping(t))))
	assert.True(t, json.Valid(out))
}

// ============================================================
// Serialize
// ============================================================

func TestSerialize_Deterministic(t *testing.T) {
	for _, format := range []Format{JSON, CBOR} {
		t.Run(string(format), func(t *testing.T) {
			first, err := Serialize(resolve(t, housekeeping(t)), format, Options{})
			require.NoError(t, err)
			second, err := Serialize(resolve(t, housekeeping(t)), format, Options{})
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestSerialize_JSONEnvelope(t *testing.T) {
	m := resolve(t, housekeeping(t))
	out, err := Serialize(m, JSON, Options{Indent: "  "})
	require.NoError(t, err)

	var env struct {
		DocumentID  string          `json:"document_id"`
		Schema      string          `json:"schema"`
		SpaceSystem json.RawMessage `json:"space_system"`
	}
	require.NoError(t, json.Unmarshal(out, &env))
	assert.Equal(t, Schema, env.Schema)
	assert.Equal(t, ID(Build(m)).String(), env.DocumentID)

	id, err := uuid.Parse(env.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), id.Version())
	assert.Contains(t, string(out), "\n  \"schema\"")
}

func TestSerialize_CBORDecodes(t *testing.T) {
	m := resolve(t, housekeeping(t))
	out, err := Serialize(m, CBOR, Options{})
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, cbor.Unmarshal(out, &env))
	assert.Equal(t, Schema, env["schema"])
	assert.Equal(t, ID(Build(m)).String(), env["document_id"])

	root, ok := env["space_system"].(map[any]any)
	require.True(t, ok)
	assert.Equal(t, "space_system", root["kind"])
}

func TestSerialize_UnknownFormat(t *testing.T) {
	_, err := Serialize(resolve(t, housekeeping(t)), Format("yaml"), Options{})
	assert.Error(t, err)
}

func TestID_ChangesWithContent(t *testing.T) {
	a := Build(resolve(t, housekeeping(t)))
	b := Build(resolve(t, housekeeping(t)))
	assert.Equal(t, ID(a), ID(b))

	b.set("short_description", "changed")
	assert.NotEqual(t, ID(a), ID(b))
}
