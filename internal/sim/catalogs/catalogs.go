// Package catalogs holds the block, item and mob palettes of the world.
package catalogs

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed defaults/*.json
var defaults embed.FS

type Catalogs struct {
	Blocks Palette
	Items  Palette
	Mobs   Palette
}

// Palette is a sorted list of ids with a reverse index. For blocks AIR is
// always id 0.
type Palette struct {
	Names  []string
	Index  map[string]uint16
	Defs   map[string]Def
	Digest string
}

type Def struct {
	ID        string `json:"id"`
	Container bool   `json:"container,omitempty"`
}

func (p Palette) Has(name string) bool {
	_, ok := p.Index[strings.ToUpper(name)]
	return ok
}

// ID returns the palette id of name.
func (p Palette) ID(name string) (uint16, bool) {
	id, ok := p.Index[strings.ToUpper(name)]
	return id, ok
}

// Containers lists block ids flagged as containers.
func (p Palette) Containers() []string {
	var out []string
	for _, n := range p.Names {
		if p.Defs[n].Container {
			out = append(out, n)
		}
	}
	return out
}

// Default returns the built-in catalogs.
func Default() *Catalogs {
	c, err := LoadFS(defaults, "defaults")
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads blocks.json, items.json and mobs.json from dir. Files missing
// from dir fall back to the built-in ones.
func Load(dir string) (*Catalogs, error) {
	if dir == "" {
		return Default(), nil
	}
	return load(func(name string) ([]byte, error) {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			return fs.ReadFile(defaults, "defaults/"+name)
		}
		return b, err
	})
}

// LoadFS reads the catalogs from dir inside fsys.
func LoadFS(fsys fs.FS, dir string) (*Catalogs, error) {
	return load(func(name string) ([]byte, error) { return fs.ReadFile(fsys, dir+"/"+name) })
}

func load(read func(name string) ([]byte, error)) (*Catalogs, error) {
	var c Catalogs
	for _, f := range []struct {
		name string
		out  *Palette
		air  bool
	}{
		{"blocks.json", &c.Blocks, true},
		{"items.json", &c.Items, false},
		{"mobs.json", &c.Mobs, false},
	} {
		raw, err := read(f.name)
		if err != nil {
			return nil, err
		}
		p, err := parsePalette(f.name, raw, f.air)
		if err != nil {
			return nil, err
		}
		*f.out = p
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func parsePalette(name string, raw []byte, air bool) (Palette, error) {
	var defs []Def
	if err := json.Unmarshal(raw, &defs); err != nil {
		return Palette{}, fmt.Errorf("%s: %w", name, err)
	}
	p := Palette{Defs: map[string]Def{}}
	for _, d := range defs {
		d.ID = strings.ToUpper(strings.TrimSpace(d.ID))
		if d.ID == "" {
			return Palette{}, fmt.Errorf("%s: empty id", name)
		}
		p.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(p.Defs))
	for id := range p.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if air {
		// Ensure AIR exists and is palette id 0.
		if _, ok := p.Defs["AIR"]; !ok {
			return Palette{}, fmt.Errorf("%s: missing AIR", name)
		}
		ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)
	}
	if len(ids) > 1<<16 {
		return Palette{}, fmt.Errorf("%s: %d ids exceed the palette size", name, len(ids))
	}

	p.Names = ids
	p.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		p.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	p.Digest = sha256Hex(palJSON)
	return p, nil
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}
