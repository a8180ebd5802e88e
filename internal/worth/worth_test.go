package worth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestTable_SumIgnoresUnknownAndNonPositive(t *testing.T) {
	tbl := NewTable("blocks", map[string]float64{"diamond_block": 100, "GOLD_BLOCK": 2.5})
	got := tbl.Sum(map[string]int{"DIAMOND_BLOCK": 2, "GOLD_BLOCK": 3, "DIRT": 50, "": 4, "STONE": -1})
	require.InDelta(t, 207.5, got, 1e-9)
	require.Equal(t, 0.0, tbl.Value("DIRT"))
	require.True(t, tbl.Has("DIAMOND_BLOCK"))
	require.Equal(t, []string{"DIAMOND_BLOCK", "GOLD_BLOCK"}, tbl.Keys())
}

func TestLoad_SkipsUnknownKeysAndRecordsFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, BlocksFile, "diamond_block: 100\nemerald_block: 80\nnot_a_block: 3\n")
	writeFile(t, dir, SpawnersFile, "zombie: 10\n")
	writeFile(t, dir, ContainersFile, "diamond: 5\n")
	writeFile(t, dir, InventoryFile, "diamond: -5\n") // negative worth is rejected by the schema
	writeFile(t, dir, ExternalFile, "- category: kills\n  sources:\n    - \"PLAYER;0.5;stat:kills\"\n")

	known := func(k string) bool { return k != "NOT_A_BLOCK" }
	tables, err := Load(LoadOptions{Dir: dir, KnownBlock: known}, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrConfigurationMismatch))

	require.Equal(t, 2, tables.Blocks.Len())
	require.False(t, tables.Blocks.Has("NOT_A_BLOCK"))
	require.Equal(t, 10.0, tables.Spawners.Value("ZOMBIE"))
	require.Contains(t, tables.Failed, InventoryFile)
	require.NotContains(t, tables.Failed, BlocksFile)
	require.Equal(t, 0, tables.Inventory.Len())

	require.Len(t, tables.External, 1)
	require.Equal(t, "kills", tables.External[0].Name)
	require.Equal(t, []string{"PLAYER;0.5;stat:kills"}, tables.External[0].Sources)
}

func TestLoad_MissingTableIsMismatch(t *testing.T) {
	_, err := LoadTable(filepath.Join(t.TempDir(), "nope.yaml"), "nope.yaml", nil, nil)
	require.ErrorIs(t, err, ErrConfigurationMismatch)
}

func TestLoadExternal_MissingFileIsEmpty(t *testing.T) {
	cats, err := LoadExternal(filepath.Join(t.TempDir(), ExternalFile))
	require.NoError(t, err)
	require.Empty(t, cats)
}

func TestParseSpec(t *testing.T) {
	s, err := ParseSpec("group;2.5;bank:{name}")
	require.NoError(t, err)
	require.Equal(t, TargetGroup, s.Target)
	require.Equal(t, 2.5, s.Multiplier)
	require.Equal(t, "bank:Alpha", s.Expand("Alpha"))

	for _, bad := range []string{"PLAYER;1", "NOBODY;1;x", "PLAYER;abc;x", "PLAYER;1; "} {
		_, err := ParseSpec(bad)
		require.ErrorIs(t, err, ErrMalformedSpec, bad)
	}
}

func TestLoadExternal_RejectsBuiltinCategoryName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ExternalFile, "- category: land\n  sources:\n    - \"PLAYER;1;stat:kills\"\n")
	_, err := LoadExternal(filepath.Join(dir, ExternalFile))
	require.ErrorIs(t, err, ErrConfigurationMismatch)
	require.Contains(t, err.Error(), `"land"`)
}
