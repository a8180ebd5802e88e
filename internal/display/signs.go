// Package display keeps rank signs in the world in step with the leaderboard.
package display

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"wealthtop/internal/cache"
	"wealthtop/internal/persistence/yamlstore"
	"wealthtop/internal/render"
	"wealthtop/internal/scan"
)

var ErrBadPosition = errors.New("display: sign position must be at least 1")

// SignWriter sets the text of a sign block in the world.
type SignWriter interface {
	WriteSign(ctx context.Context, world string, pos scan.Vec3i, lines [4]string) error
}

// Sign shows the entity at a 1-based leaderboard position. Lines holds the
// last text written and is shown again when the position is empty.
type Sign struct {
	World    string    `yaml:"world"`
	X        int       `yaml:"x"`
	Y        int       `yaml:"y"`
	Z        int       `yaml:"z"`
	Position int       `yaml:"position"`
	Lines    [4]string `yaml:"lines"`
}

func (s Sign) Pos() scan.Vec3i { return scan.Vec3i{X: s.X, Y: s.Y, Z: s.Z} }

type signKey struct {
	world   string
	x, y, z int
}

func (s Sign) key() signKey { return signKey{s.World, s.X, s.Y, s.Z} }

type signFile struct {
	Signs []Sign `yaml:"signs"`
}

// Registry is the set of rank signs, persisted to a YAML file.
type Registry struct {
	path   string
	writer SignWriter
	log    *zap.Logger

	mu    sync.Mutex
	signs map[signKey]Sign
}

// NewRegistry loads path if it exists. An empty path keeps signs in memory
// only.
func NewRegistry(path string, writer SignWriter, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{path: path, writer: writer, log: log, signs: map[signKey]Sign{}}
	if path == "" {
		return r, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, err
	}
	var f signFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("display: parse %s: %w", path, err)
	}
	for _, s := range f.Signs {
		if s.Position < 1 {
			log.Warn("sign with invalid position skipped", zap.String("world", s.World), zap.Int("position", s.Position))
			continue
		}
		r.signs[s.key()] = s
	}
	return r, nil
}

// Add registers or replaces the sign at s's location and renders it from
// snap right away.
func (r *Registry) Add(ctx context.Context, s Sign, snap *cache.Snapshot) error {
	if s.Position < 1 {
		return ErrBadPosition
	}
	rec, _ := snap.At(s.Position - 1)
	s.Lines = render.SignLines(s.Position, rec)
	r.mu.Lock()
	r.signs[s.key()] = s
	err := r.saveLocked()
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.write(ctx, s)
}

// Remove forgets the sign at pos. It reports whether one was registered.
func (r *Registry) Remove(world string, pos scan.Vec3i) (bool, error) {
	k := signKey{world, pos.X, pos.Y, pos.Z}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.signs[k]; !ok {
		return false, nil
	}
	delete(r.signs, k)
	return true, r.saveLocked()
}

// Signs lists registered signs ordered by position, then location.
func (r *Registry) Signs() []Sign {
	r.mu.Lock()
	out := make([]Sign, 0, len(r.signs))
	for _, s := range r.signs {
		out = append(out, s)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if a.World != b.World {
			return a.World < b.World
		}
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return out
}

// Publish refreshes every sign from snap. A sign whose position is beyond
// the snapshot keeps its saved text.
func (r *Registry) Publish(ctx context.Context, snap *cache.Snapshot) error {
	r.mu.Lock()
	updated := make([]Sign, 0, len(r.signs))
	for k, s := range r.signs {
		if rec, ok := snap.At(s.Position - 1); ok {
			s.Lines = render.SignLines(s.Position, rec)
			r.signs[k] = s
		}
		updated = append(updated, s)
	}
	saveErr := r.saveLocked()
	r.mu.Unlock()

	errs := []error{saveErr}
	for _, s := range updated {
		if err := r.write(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) write(ctx context.Context, s Sign) error {
	if r.writer == nil {
		return nil
	}
	if err := r.writer.WriteSign(ctx, s.World, s.Pos(), s.Lines); err != nil {
		r.log.Debug("sign update failed", zap.String("world", s.World), zap.Int("position", s.Position), zap.Error(err))
		return fmt.Errorf("display: sign %s %d,%d,%d: %w", s.World, s.X, s.Y, s.Z, err)
	}
	return nil
}

func (r *Registry) saveLocked() error {
	if r.path == "" {
		return nil
	}
	f := signFile{Signs: make([]Sign, 0, len(r.signs))}
	for _, s := range r.signs {
		f.Signs = append(f.Signs, s)
	}
	sort.Slice(f.Signs, func(i, j int) bool {
		a, b := f.Signs[i].key(), f.Signs[j].key()
		if a.world != b.world {
			return a.world < b.world
		}
		if a.x != b.x {
			return a.x < b.x
		}
		if a.y != b.y {
			return a.y < b.y
		}
		return a.z < b.z
	})
	return yamlstore.WriteFile(r.path, f)
}
