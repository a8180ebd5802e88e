// Package config loads wealthtop.yaml with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorageNone   = "none"
	StorageSQLite = "sqlite"
	StorageYAML   = "yaml"
)

type Config struct {
	// CalculationMode: 0 real time, 1 cached with real time fallback,
	// 2 cache only.
	CalculationMode int           `yaml:"calculation_mode"`
	CacheDuration   time.Duration `yaml:"cache_duration"`
	GroupMode       bool          `yaml:"group_mode"`
	Workers         int           `yaml:"workers"`
	StatsCapacity   int           `yaml:"stats_cache_capacity"`

	Include        Include  `yaml:"include"`
	Land           Land     `yaml:"land"`
	ContainerTypes []string `yaml:"container_types"`

	Leaderboard Leaderboard `yaml:"leaderboard"`

	Storage  string `yaml:"storage"`
	DataDir  string `yaml:"data_dir"`
	WorthDir string `yaml:"worth_dir"`
	Listen   string `yaml:"listen"`
	History  bool   `yaml:"history"`
	Mirror   Mirror `yaml:"mirror"`
	Board    Board  `yaml:"board"`
}

// Include toggles wealth categories.
type Include struct {
	Balance    bool `yaml:"balance"`
	Land       bool `yaml:"land"`
	Spawners   bool `yaml:"spawners"`
	Containers bool `yaml:"containers"`
	Inventory  bool `yaml:"inventory"`
	External   bool `yaml:"external"`
}

type Land struct {
	Floor    int `yaml:"floor"`
	Ceiling  int `yaml:"ceiling"`
	TileSize int `yaml:"tile_size"`
}

type Leaderboard struct {
	Interval         time.Duration `yaml:"interval"`
	InitialDelay     time.Duration `yaml:"initial_delay"`
	UpdateOnStart    bool          `yaml:"update_on_start"`
	FilterLastActive bool          `yaml:"filter_last_active"`
	ActiveWindow     time.Duration `yaml:"active_window"`
	MinimumWealth    float64       `yaml:"minimum_wealth"`

	// TotalPositions caps the ranking; -1 keeps every entity.
	TotalPositions   int      `yaml:"total_positions"`
	PositionsPerPage int      `yaml:"positions_per_page"`
	CommandsOnStart  []string `yaml:"commands_on_start"`
	CommandsOnEnd    []string `yaml:"commands_on_end"`
}

// Mirror uploads finished history files to an S3 compatible bucket.
// Credentials only come from the environment.
type Mirror struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	Workers         int    `yaml:"workers"`
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
}

type Board struct {
	Enabled      bool `yaml:"enabled"`
	LoopbackOnly bool `yaml:"loopback_only"`
}

type envOverrides struct {
	DataDir  string `env:"WEALTHTOP_DATA_DIR"`
	WorthDir string `env:"WEALTHTOP_WORTH_DIR"`
	Listen   string `env:"WEALTHTOP_LISTEN"`
	Storage  string `env:"WEALTHTOP_STORAGE"`

	MirrorAccessKeyID     string `env:"WEALTHTOP_MIRROR_ACCESS_KEY_ID"`
	MirrorSecretAccessKey string `env:"WEALTHTOP_MIRROR_SECRET_ACCESS_KEY"`
}

// Load reads path (defaults only when empty), applies environment overrides,
// normalizes and validates. A .env file in the working directory is loaded
// first when present.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf(".env: %w", err)
	}
	return load(path, nil)
}

func load(path string, environ map[string]string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	if err := applyEnv(&cfg, environ); err != nil {
		return cfg, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config, environ map[string]string) error {
	var o envOverrides
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	if o.WorthDir != "" {
		cfg.WorthDir = o.WorthDir
	}
	if o.Listen != "" {
		cfg.Listen = o.Listen
	}
	if o.Storage != "" {
		cfg.Storage = o.Storage
	}
	cfg.Mirror.AccessKeyID = o.MirrorAccessKeyID
	cfg.Mirror.SecretAccessKey = o.MirrorSecretAccessKey
	return nil
}

func Defaults() Config {
	return Config{
		CalculationMode: 0,
		CacheDuration:   30 * time.Minute,
		StatsCapacity:   4096,
		Include: Include{
			Balance:    true,
			Land:       true,
			Spawners:   true,
			Containers: true,
			Inventory:  true,
			External:   true,
		},
		Land:           Land{Floor: 0, Ceiling: 256, TileSize: 16},
		ContainerTypes: []string{"CHEST", "TRAPPED_CHEST", "BARREL", "SHULKER_BOX"},
		Leaderboard: Leaderboard{
			Interval:         time.Hour,
			InitialDelay:     time.Minute,
			ActiveWindow:     30 * 24 * time.Hour,
			MinimumWealth:    1,
			TotalPositions:   -1,
			PositionsPerPage: 10,
		},
		Storage:  StorageNone,
		DataDir:  "data",
		WorthDir: "worth",
		Listen:   "127.0.0.1:8080",
		History:  true,
		Board:    Board{Enabled: true, LoopbackOnly: true},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	if c.Storage == "" {
		c.Storage = StorageNone
	}
	if c.Land.TileSize <= 0 {
		c.Land.TileSize = 16
	}
	if c.StatsCapacity <= 0 {
		c.StatsCapacity = 4096
	}
	if c.Leaderboard.PositionsPerPage <= 0 {
		c.Leaderboard.PositionsPerPage = 10
	}
	if c.Leaderboard.TotalPositions < -1 {
		c.Leaderboard.TotalPositions = -1
	}
	for i, t := range c.ContainerTypes {
		c.ContainerTypes[i] = strings.ToUpper(strings.TrimSpace(t))
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.CalculationMode < 0 || c.CalculationMode > 2 {
		errs = append(errs, fmt.Errorf("calculation_mode must be 0, 1 or 2, got %d", c.CalculationMode))
	}
	if c.CacheDuration < 0 {
		errs = append(errs, fmt.Errorf("cache_duration must not be negative"))
	}
	if c.Land.Ceiling <= c.Land.Floor {
		errs = append(errs, fmt.Errorf("land.ceiling (%d) must be above land.floor (%d)", c.Land.Ceiling, c.Land.Floor))
	}
	if c.Leaderboard.MinimumWealth < 0 {
		errs = append(errs, fmt.Errorf("leaderboard.minimum_wealth must not be negative"))
	}
	switch c.Storage {
	case StorageNone, StorageSQLite, StorageYAML:
	default:
		errs = append(errs, fmt.Errorf("storage must be none, sqlite or yaml, got %q", c.Storage))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative"))
	}
	if c.Mirror.Enabled {
		if !c.History {
			errs = append(errs, fmt.Errorf("mirror requires history"))
		}
		if strings.TrimSpace(c.Mirror.Endpoint) == "" || strings.TrimSpace(c.Mirror.Bucket) == "" {
			errs = append(errs, fmt.Errorf("mirror.endpoint and mirror.bucket are required"))
		}
		if c.Mirror.AccessKeyID == "" || c.Mirror.SecretAccessKey == "" {
			errs = append(errs, fmt.Errorf("mirror credentials missing: set WEALTHTOP_MIRROR_ACCESS_KEY_ID and WEALTHTOP_MIRROR_SECRET_ACCESS_KEY"))
		}
	}
	return errors.Join(errs...)
}

// Path resolves a file under DataDir.
func (c Config) Path(name string) string { return filepath.Join(c.DataDir, name) }
