package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mdbgen/internal/headers"
	"github.com/roach88/mdbgen/internal/layout"
	"github.com/roach88/mdbgen/internal/mdb"
)

// createTestCatalog opens a catalog in a temporary directory.
func createTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// missionModel resolves a CCSDS mission with one packet and one command.
func missionModel(t *testing.T, apid int64) *layout.Model {
	t.Helper()
	tree, err := mdb.New(mdb.SystemSpec{Name: "SC"})
	require.NoError(t, err)
	root := tree.Root()
	h, err := headers.AddCCSDS(tree, root)
	require.NoError(t, err)

	u16, err := tree.AddType(root, mdb.TypeSpec{Name: "u16", Def: mdb.IntegerType{Encoding: mdb.UnsignedEncoding(16)}})
	require.NoError(t, err)
	vbat, err := tree.AddParameter(root, mdb.ParameterSpec{Name: "vbat", Type: u16})
	require.NoError(t, err)
	_, err = tree.AddContainer(root, mdb.ContainerSpec{
		Name:    "HK",
		Base:    h.Container,
		Entries: []mdb.Entry{mdb.ParameterEntry(vbat)},
	})
	require.NoError(t, err)
	_, err = tree.AddCommand(root, mdb.CommandSpec{
		Name: "Reboot",
		Base: h.Command,
		Assignments: []mdb.Assignment{
			{Argument: "ccsds_secondary_header", Value: mdb.String("Not Present")},
			{Argument: "ccsds_apid", Value: mdb.Int(apid)},
		},
		Entries: []mdb.Entry{mdb.FixedValueEntry("opcode", []byte{0x01}, 8)},
	})
	require.NoError(t, err)

	m, err := layout.Resolve(tree)
	require.NoError(t, err)
	return m
}

func TestOpen_CreatesDatabase(t *testing.T) {
	c := createTestCatalog(t)

	tables := []string{"exports", "systems", "data_types", "parameters", "layouts", "placements"}
	for _, table := range tables {
		var name string
		err := c.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	c := createTestCatalog(t)

	want := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
		"user_version": "1",
	}
	for name, value := range want {
		got, err := c.pragma(name)
		require.NoError(t, err)
		assert.Equal(t, value, got, name)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	c1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c1.Close())

	c2, err := Open(path)
	require.NoError(t, err)
	defer c2.Close()

	var index string
	err = c2.DB().QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_placements_name'",
	).Scan(&index)
	assert.NoError(t, err)

	version, err := c2.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", version)
}

func TestOpen_FreshFileHasNameIndex(t *testing.T) {
	c := createTestCatalog(t)

	var stmt string
	require.NoError(t, c.DB().QueryRow(
		"SELECT sql FROM sqlite_master WHERE type='index' AND name='idx_placements_name'",
	).Scan(&stmt))
	assert.Contains(t, stmt, "placements(document_id, name)")
}

func TestOpen_RejectsOtherSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	c, err := Open(path)
	require.NoError(t, err)
	_, err = c.DB().Exec("PRAGMA user_version = 7")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaVersion)
	assert.Contains(t, err.Error(), "file has 7, expected 1")
}

func TestClose_Nil(t *testing.T) {
	var c Catalog
	assert.NoError(t, c.Close())
}

func TestWriteModel_Layouts(t *testing.T) {
	c := createTestCatalog(t)
	ctx := context.Background()

	id, inserted, err := c.WriteModel(ctx, missionModel(t, 100))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, id)

	exports, err := c.Exports(ctx)
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, id, exports[0].DocumentID)
	assert.Equal(t, "/SC", exports[0].Root)

	hk, found, err := c.Layout(ctx, id, ContainerLayout, "/SC/HK")
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, hk.Abstract)
	assert.Equal(t, int64(64), hk.SizeBits)
	assert.Equal(t, []string{"/SC/ccsds_space_packet", "/SC/HK"}, hk.Chain)

	placements, err := c.Placements(ctx, id, ContainerLayout, "/SC/HK")
	require.NoError(t, err)
	require.Len(t, placements, 4)
	for i, p := range placements {
		assert.Equal(t, i, p.Ordinal)
	}
	last := placements[3]
	assert.Equal(t, "vbat", last.Name)
	assert.Equal(t, "parameter", last.Kind)
	assert.Equal(t, "/SC/HK", last.Origin)
	assert.Equal(t, int64(48), last.StartBit)
	assert.Equal(t, int64(16), last.SizeBits)
	assert.Nil(t, last.Assigned)
}

func TestWriteModel_CommandConstants(t *testing.T) {
	c := createTestCatalog(t)
	ctx := context.Background()

	id, _, err := c.WriteModel(ctx, missionModel(t, 100))
	require.NoError(t, err)

	placements, err := c.Placements(ctx, id, CommandLayout, "/SC/Reboot")
	require.NoError(t, err)
	byName := map[string]PlacementRecord{}
	for _, p := range placements {
		byName[p.Name] = p
	}

	apid := byName["ccsds_apid"]
	require.NotNil(t, apid.Assigned)
	assert.Equal(t, "100", *apid.Assigned)
	assert.Equal(t, "/SC/ccsds_space_packet", apid.Origin)

	opcode := byName["opcode"]
	require.NotNil(t, opcode.Assigned)
	assert.Equal(t, "01", *opcode.Assigned)
	assert.Equal(t, int64(48), opcode.StartBit)

	// Unassigned header fields stay NULL.
	assert.Nil(t, byName["ccsds_group_flags"].Assigned)
}

func TestWriteModel_Idempotent(t *testing.T) {
	c := createTestCatalog(t)
	ctx := context.Background()

	first, inserted, err := c.WriteModel(ctx, missionModel(t, 100))
	require.NoError(t, err)
	require.True(t, inserted)

	second, inserted, err := c.WriteModel(ctx, missionModel(t, 100))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first, second)

	var count int
	require.NoError(t, c.DB().QueryRow("SELECT COUNT(*) FROM layouts").Scan(&count))
	assert.Equal(t, 4, count) // two containers, two commands
}

func TestWriteModel_DistinctDocuments(t *testing.T) {
	c := createTestCatalog(t)
	ctx := context.Background()

	a, _, err := c.WriteModel(ctx, missionModel(t, 100))
	require.NoError(t, err)
	b, _, err := c.WriteModel(ctx, missionModel(t, 101))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	exports, err := c.Exports(ctx)
	require.NoError(t, err)
	assert.Len(t, exports, 2)

	found, err := c.FindPlacements(ctx, b, "ccsds_apid")
	require.NoError(t, err)
	assert.Len(t, found, 2)
	require.Len(t, found["command /SC/Reboot"], 1)
	assert.Equal(t, "101", *found["command /SC/Reboot"][0].Assigned)
}

func TestReads_Unknown(t *testing.T) {
	c := createTestCatalog(t)
	ctx := context.Background()

	exports, err := c.Exports(ctx)
	require.NoError(t, err)
	assert.NotNil(t, exports)
	assert.Empty(t, exports)

	placements, err := c.Placements(ctx, "missing", ContainerLayout, "/SC/HK")
	require.NoError(t, err)
	assert.NotNil(t, placements)
	assert.Empty(t, placements)

	_, found, err := c.Layout(ctx, "missing", CommandLayout, "/SC/Reboot")
	require.NoError(t, err)
	assert.False(t, found)
}
