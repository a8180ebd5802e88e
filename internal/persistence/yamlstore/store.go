// Package yamlstore writes each ranked entity of a leaderboard snapshot to its
// own YAML file.
package yamlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"wealthtop/internal/cache"
)

// Entry is the on-disk form of one ranked record.
type Entry struct {
	Name       string             `yaml:"name"`
	Position   int                `yaml:"position"`
	RunID      string             `yaml:"run_id"`
	ComputedAt time.Time          `yaml:"computed_at"`
	Categories map[string]float64 `yaml:"categories"`
}

type Store struct {
	dir string
	log *zap.Logger
}

func New(dir string, log *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("yamlstore: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("yamlstore: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, log: log}, nil
}

func (s *Store) Dir() string { return s.dir }

// Publish writes one file per ranked entity. Files of entities that left the
// ranking are kept.
func (s *Store) Publish(ctx context.Context, snap *cache.Snapshot) error {
	var errs []error
	for i, r := range snap.Entries() {
		if err := ctx.Err(); err != nil {
			return err
		}
		e := Entry{
			Name:       r.Name,
			Position:   i + 1,
			RunID:      snap.RunID,
			ComputedAt: r.CreatedAt.UTC(),
			Categories: map[string]float64{},
		}
		for _, c := range r.Categories() {
			e.Categories[c.Name] = c.Value
		}
		if err := WriteFile(s.path(r.Name), e); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.log.Debug("yaml snapshot written", zap.String("run", snap.RunID), zap.Int("entries", snap.Len()))
	return nil
}

// Load reads the stored entry of name.
func (s *Store) Load(name string) (Entry, error) {
	var e Entry
	b, err := os.ReadFile(s.path(name))
	if err != nil {
		return e, err
	}
	if err := yaml.Unmarshal(b, &e); err != nil {
		return e, fmt.Errorf("yamlstore: parse %s: %w", name, err)
	}
	return e, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, FileName(name))
}

// FileName maps an entity name to a safe file name.
func FileName(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, strings.ToLower(name))
	if clean == "" || clean == "." || clean == ".." {
		clean = "_"
	}
	return clean + ".yml"
}

// WriteFile marshals v as YAML and replaces path atomically.
func WriteFile(path string, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
