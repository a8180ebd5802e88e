package providertest

import (
	"context"
	"fmt"
	"sync"

	"wealthtop/internal/scan"
)

type spawner struct {
	mob   string
	stack int
}

// Terrain is a flat in-memory world: every cell below Ground is Fill, every
// cell above is air, and single cells can be overridden. It implements
// scan.ChunkReader and scan.Inspector.
type Terrain struct {
	World  string
	Floor  int
	Height int
	Ground int
	Fill   string

	mu         sync.Mutex
	blocks     map[scan.Vec3i]string
	spawners   map[scan.Vec3i]spawner
	containers map[scan.Vec3i]map[string]int
	columns    int
	// BeforeColumn runs on every column request, before the copy is made.
	BeforeColumn func()
}

func NewTerrain(world string, floor, height, ground int, fill string) *Terrain {
	return &Terrain{
		World:      world,
		Floor:      floor,
		Height:     height,
		Ground:     ground,
		Fill:       fill,
		blocks:     map[scan.Vec3i]string{},
		spawners:   map[scan.Vec3i]spawner{},
		containers: map[scan.Vec3i]map[string]int{},
	}
}

func (t *Terrain) SetBlock(pos scan.Vec3i, block string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.blocks[pos] = block
}

func (t *Terrain) SetSpawner(pos scan.Vec3i, mob string, stack int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.blocks[pos] = scan.SpawnerBlock
	t.spawners[pos] = spawner{mob: mob, stack: stack}
}

func (t *Terrain) SetContainer(pos scan.Vec3i, block string, items map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.blocks[pos] = block
	t.containers[pos] = items
}

// ColumnRequests counts Column calls.
func (t *Terrain) ColumnRequests() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.columns
}

func (t *Terrain) Column(ctx context.Context, world string, cx, cz int) (*scan.Column, error) {
	if world != t.World {
		return nil, fmt.Errorf("%q: %w", world, scan.ErrUnknownWorld)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.BeforeColumn != nil {
		t.BeforeColumn()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.columns++

	ids := map[string]uint16{scan.Air: 0}
	col := &scan.Column{
		World: world, CX: cx, CZ: cz, Floor: t.Floor, Height: t.Height,
		Palette: []string{scan.Air},
		Blocks:  make([]uint16, 256*t.Height),
	}
	for y := 0; y < t.Height; y++ {
		for lz := 0; lz < 16; lz++ {
			for lx := 0; lx < 16; lx++ {
				pos := scan.Vec3i{X: cx*16 + lx, Y: t.Floor + y, Z: cz*16 + lz}
				name, ok := t.blocks[pos]
				if !ok {
					name = scan.Air
					if pos.Y < t.Ground {
						name = t.Fill
					}
				}
				id, ok := ids[name]
				if !ok {
					id = uint16(len(col.Palette))
					col.Palette = append(col.Palette, name)
					ids[name] = id
				}
				col.Blocks[lx+lz*16+y*256] = id
			}
		}
	}
	return col, nil
}

func (t *Terrain) SpawnerAt(world string, pos scan.Vec3i) (string, int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.spawners[pos]
	if !ok || world != t.World {
		return "", 0, false
	}
	return s.mob, s.stack, true
}

func (t *Terrain) ContainerAt(world string, pos scan.Vec3i) (map[string]int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	items, ok := t.containers[pos]
	if !ok || world != t.World {
		return nil, false
	}
	out := make(map[string]int, len(items))
	for k, v := range items {
		out[k] = v
	}
	return out, true
}
