package world

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"wealthtop/internal/scan"
)

// Fixture describes a world to host: its dimensions and the state placed in
// them.
type Fixture struct {
	Dimensions []Dimension        `yaml:"dimensions"`
	TickRateHz int                `yaml:"tick_rate_hz"`
	Players    []FixturePlayer    `yaml:"players"`
	Groups     []FixtureGroup     `yaml:"groups"`
	Blocks     []FixtureBlock     `yaml:"blocks"`
	Spawners   []FixtureSpawner   `yaml:"spawners"`
	Containers []FixtureContainer `yaml:"containers"`
}

type FixturePlayer struct {
	Name       string             `yaml:"name"`
	Online     bool               `yaml:"online"`
	LastActive time.Time          `yaml:"last_active"`
	Balance    float64            `yaml:"balance"`
	Items      map[string]int     `yaml:"items"`
	Stats      map[string]float64 `yaml:"stats"`
	Claims     []scan.Volume      `yaml:"claims"`
}

type FixtureGroup struct {
	Name    string             `yaml:"name"`
	Members []string           `yaml:"members"`
	Tiles   []scan.Tile        `yaml:"tiles"`
	Stats   map[string]float64 `yaml:"stats"`
}

type FixtureBlock struct {
	World string     `yaml:"world"`
	Pos   scan.Vec3i `yaml:"pos"`
	Block string     `yaml:"block"`
}

type FixtureSpawner struct {
	World string     `yaml:"world"`
	Pos   scan.Vec3i `yaml:"pos"`
	Mob   string     `yaml:"mob"`
	Stack int        `yaml:"stack"`
}

type FixtureContainer struct {
	World string         `yaml:"world"`
	Pos   scan.Vec3i     `yaml:"pos"`
	Block string         `yaml:"block"`
	Items map[string]int `yaml:"items"`
}

func LoadFixture(path string) (*Fixture, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f Fixture
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if len(f.Dimensions) == 0 {
		return nil, fmt.Errorf("%s: no dimensions", filepath.Base(path))
	}
	return &f, nil
}

// Config returns a world config hosting the fixture's dimensions.
func (f *Fixture) Config() Config {
	return Config{Dimensions: f.Dimensions, TickRateHz: f.TickRateHz}
}

// Apply places the fixture state through the loop.
func (w *World) Apply(ctx context.Context, f *Fixture) error {
	var err error
	if cerr := w.Call(ctx, func() { err = w.apply(f) }); cerr != nil {
		return cerr
	}
	return err
}

func (w *World) apply(f *Fixture) error {
	var errs []error
	for _, p := range f.Players {
		if err := w.UpsertPlayer(Player{
			Name:       p.Name,
			LastActive: p.LastActive,
			Online:     p.Online,
			Balance:    p.Balance,
			Items:      p.Items,
			Stats:      p.Stats,
		}); err != nil {
			errs = append(errs, err)
			continue
		}
		for _, c := range p.Claims {
			if err := w.AddClaim(p.Name, c); err != nil {
				errs = append(errs, fmt.Errorf("claim of %s: %w", p.Name, err))
			}
		}
	}
	for _, g := range f.Groups {
		errs = append(errs, w.SetGroup(Group{Name: g.Name, Members: g.Members, Tiles: g.Tiles, Stats: g.Stats}))
	}
	for _, b := range f.Blocks {
		errs = append(errs, w.SetBlock(b.World, b.Pos, b.Block))
	}
	for _, s := range f.Spawners {
		errs = append(errs, w.PlaceSpawner(s.World, s.Pos, s.Mob, s.Stack))
	}
	for _, c := range f.Containers {
		errs = append(errs, w.PlaceContainer(c.World, c.Pos, c.Block, c.Items))
	}
	return errors.Join(errs...)
}
