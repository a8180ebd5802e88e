package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wealthtop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := load("", map[string]string{})
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
	require.Equal(t, -1, cfg.Leaderboard.TotalPositions)
	require.Equal(t, StorageNone, cfg.Storage)
}

func TestLoad_FileAndNormalize(t *testing.T) {
	path := write(t, `
calculation_mode: 1
cache_duration: 5m
group_mode: true
include:
  balance: true
  land: false
land:
  floor: -64
  ceiling: 320
  tile_size: 0
container_types: [" chest ", barrel]
leaderboard:
  interval: 10m
  total_positions: -7
  positions_per_page: 0
  commands_on_end: ["give %player-1% diamond"]
storage: " SQLite "
`)
	cfg, err := load(path, map[string]string{})
	require.NoError(t, err)
	require.Equal(t, 1, cfg.CalculationMode)
	require.Equal(t, 5*time.Minute, cfg.CacheDuration)
	require.True(t, cfg.GroupMode)
	require.False(t, cfg.Include.Land)
	require.True(t, cfg.Include.Inventory)
	require.Equal(t, Land{Floor: -64, Ceiling: 320, TileSize: 16}, cfg.Land)
	require.Equal(t, []string{"CHEST", "BARREL"}, cfg.ContainerTypes)
	require.Equal(t, 10*time.Minute, cfg.Leaderboard.Interval)
	require.Equal(t, -1, cfg.Leaderboard.TotalPositions)
	require.Equal(t, 10, cfg.Leaderboard.PositionsPerPage)
	require.Equal(t, StorageSQLite, cfg.Storage)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := write(t, "storage: yaml\ndata_dir: from-file\n")
	cfg, err := load(path, map[string]string{
		"WEALTHTOP_DATA_DIR": "/var/lib/wealthtop",
		"WEALTHTOP_STORAGE":  "sqlite",
		"WEALTHTOP_LISTEN":   ":9090",
	})
	require.NoError(t, err)
	require.Equal(t, "/var/lib/wealthtop", cfg.DataDir)
	require.Equal(t, StorageSQLite, cfg.Storage)
	require.Equal(t, ":9090", cfg.Listen)
	require.Equal(t, filepath.Join("/var/lib/wealthtop", "signs.yaml"), cfg.Path("signs.yaml"))
}

func TestLoad_Validation(t *testing.T) {
	path := write(t, `
calculation_mode: 3
land: {floor: 10, ceiling: 10}
storage: mongo
`)
	_, err := load(path, map[string]string{})
	require.Error(t, err)
	require.ErrorContains(t, err, "calculation_mode")
	require.ErrorContains(t, err, "land.ceiling")
	require.ErrorContains(t, err, "storage")
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := load(write(t, "calculation_mode: [\n"), map[string]string{})
	require.ErrorContains(t, err, "wealthtop.yaml")
}

func TestLoad_MirrorNeedsCredentials(t *testing.T) {
	path := write(t, "mirror: {enabled: true, endpoint: r2.example.com, bucket: boards}\n")
	_, err := load(path, map[string]string{})
	require.ErrorContains(t, err, "WEALTHTOP_MIRROR_ACCESS_KEY_ID")

	cfg, err := load(path, map[string]string{
		"WEALTHTOP_MIRROR_ACCESS_KEY_ID":     "ak",
		"WEALTHTOP_MIRROR_SECRET_ACCESS_KEY": "sk",
	})
	require.NoError(t, err)
	require.Equal(t, "ak", cfg.Mirror.AccessKeyID)
	require.Equal(t, "boards", cfg.Mirror.Bucket)
}
