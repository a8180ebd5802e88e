package scan

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"wealthtop/internal/worth"
)

// fakeWorld is a sparse block map; everything unset is STONE below y=2 and air
// above.
type fakeWorld struct {
	name    string
	blocks  map[Vec3i]string
	calls   int
	onCall  func()
	floor   int
	height  int
	spawner map[Vec3i]struct {
		mob   string
		stack int
	}
	chests map[Vec3i]map[string]int
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		name:   "overworld",
		blocks: map[Vec3i]string{},
		floor:  0,
		height: 4,
		spawner: map[Vec3i]struct {
			mob   string
			stack int
		}{},
		chests: map[Vec3i]map[string]int{},
	}
}

func (w *fakeWorld) Column(_ context.Context, world string, cx, cz int) (*Column, error) {
	if world != w.name {
		return nil, fmt.Errorf("world %q: %w", world, ErrUnknownWorld)
	}
	w.calls++
	if w.onCall != nil {
		w.onCall()
	}
	palette := []string{Air, "STONE"}
	ids := map[string]uint16{Air: 0, "STONE": 1}
	col := &Column{World: world, CX: cx, CZ: cz, Floor: w.floor, Height: w.height, Palette: palette, Blocks: make([]uint16, 256*w.height)}
	for y := 0; y < w.height; y++ {
		for lz := 0; lz < 16; lz++ {
			for lx := 0; lx < 16; lx++ {
				pos := Vec3i{X: cx*16 + lx, Y: w.floor + y, Z: cz*16 + lz}
				name, ok := w.blocks[pos]
				if !ok {
					if y < 2 {
						name = "STONE"
					} else {
						name = Air
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

func (w *fakeWorld) SpawnerAt(_ string, pos Vec3i) (string, int, bool) {
	s, ok := w.spawner[pos]
	return s.mob, s.stack, ok
}

func (w *fakeWorld) ContainerAt(_ string, pos Vec3i) (map[string]int, bool) {
	items, ok := w.chests[pos]
	return items, ok
}

func newTestEngine(w *fakeWorld) (*Engine, *BlockConsumer, *SpawnerConsumer, *ContainerConsumer) {
	blocks := NewBlockConsumer(worth.NewTable("blocks", map[string]float64{"STONE": 1, "DIAMOND_BLOCK": 100}))
	spawners := NewSpawnerConsumer(worth.NewTable("spawners", map[string]float64{"ZOMBIE": 50}))
	containers := NewContainerConsumer(worth.NewTable("containers", map[string]float64{"DIAMOND": 8}), []string{"chest"})
	e := NewEngine(EngineConfig{Floor: 0, Ceiling: 4}, w, nil, blocks, spawners, containers)
	return e, blocks, spawners, containers
}

func TestVolumeBounds_CornersInAnyOrder(t *testing.T) {
	v := Volume{A: Vec3i{X: 5, Z: -3}, B: Vec3i{X: -2, Z: 4}}
	b := v.Bounds(-64, 320)
	require.Equal(t, Bounds{MinX: -2, MaxX: 6, MinY: -64, MaxY: 320, MinZ: -3, MaxZ: 5}, b)
	require.Equal(t, int64(8*384*8), b.Cells())
}

func TestMeasure(t *testing.T) {
	info := Measure([]Volume{
		{A: Vec3i{X: 0, Z: 0}, B: Vec3i{X: 1, Z: 1}},
		Tile{X: 1, Z: 0}.Volume(16),
	}, 0, 10)
	require.Equal(t, 2, info.Claims)
	require.Equal(t, int64(4*10+256*10), info.Cells)
}

func TestScanVolumes_PartitionInvariant(t *testing.T) {
	w := newFakeWorld()
	w.blocks[Vec3i{X: 1, Y: 2, Z: 1}] = "DIAMOND_BLOCK"
	w.blocks[Vec3i{X: 2, Y: 2, Z: 2}] = SpawnerBlock
	w.blocks[Vec3i{X: 3, Y: 2, Z: 3}] = "CHEST"
	w.blocks[Vec3i{X: 3, Y: 3, Z: 3}] = "BARREL" // not a configured container type

	e, blocks, spawners, containers := newTestEngine(w)
	e.CreateHolders(1)
	defer e.CleanUp(1)

	vols := []Volume{{World: "overworld", A: Vec3i{X: 0, Z: 0}, B: Vec3i{X: 4, Z: 4}}}
	st, err := e.ScanVolumes(context.Background(), e.Token(), 1, vols)
	require.NoError(t, err)
	require.Equal(t, int64(5*5*4), st.Cells)

	// Each cell is claimed by at most one consumer.
	var claimed int64
	for _, n := range st.Claimed {
		claimed += n
	}
	require.Equal(t, int64(5*5*2+3), claimed)
	require.Equal(t, map[string]int{"STONE": 50, "DIAMOND_BLOCK": 1}, blocks.Counts(1))
	require.Equal(t, 1, spawners.Staged(1))
	require.Equal(t, 1, containers.Staged(1))
}

func TestScanVolumes_Idempotent(t *testing.T) {
	w := newFakeWorld()
	w.blocks[Vec3i{X: -17, Y: 3, Z: 30}] = "DIAMOND_BLOCK"
	e, blocks, _, _ := newTestEngine(w)
	vols := []Volume{{World: "overworld", A: Vec3i{X: -20, Z: 14}, B: Vec3i{X: 3, Z: 33}}}

	var results []float64
	for id := uint64(1); id <= 2; id++ {
		e.CreateHolders(id)
		_, err := e.ScanVolumes(context.Background(), e.Token(), id, vols)
		require.NoError(t, err)
		results = append(results, blocks.Worth(id))
		e.CleanUp(id)
	}
	require.Equal(t, results[0], results[1])
	require.Equal(t, float64(24*20*2+100), results[0])
}

func TestScanVolumes_ResolveStagedCells(t *testing.T) {
	w := newFakeWorld()
	w.blocks[Vec3i{X: 0, Y: 2, Z: 0}] = SpawnerBlock
	w.blocks[Vec3i{X: 1, Y: 2, Z: 0}] = SpawnerBlock
	w.blocks[Vec3i{X: 2, Y: 2, Z: 0}] = "CHEST"
	w.spawner[Vec3i{X: 0, Y: 2, Z: 0}] = struct {
		mob   string
		stack int
	}{"zombie", 3}
	w.spawner[Vec3i{X: 1, Y: 2, Z: 0}] = struct {
		mob   string
		stack int
	}{"pig", 1} // no worth entry
	w.chests[Vec3i{X: 2, Y: 2, Z: 0}] = map[string]int{"diamond": 4, "dirt": 64}

	e, _, spawners, containers := newTestEngine(w)
	e.CreateHolders(7)
	defer e.CleanUp(7)
	_, err := e.ScanVolumes(context.Background(), e.Token(), 7, []Volume{{World: "overworld", A: Vec3i{}, B: Vec3i{X: 2}}})
	require.NoError(t, err)

	for _, s := range e.Stagers() {
		s.Resolve(7, w, nil)
	}
	require.Equal(t, map[string]int{"ZOMBIE": 3}, spawners.Counts(7))
	require.Equal(t, 150.0, spawners.Worth(7))
	require.Equal(t, map[string]int{"DIAMOND": 4}, containers.Counts(7))
	require.Equal(t, 32.0, containers.Worth(7))
	require.Equal(t, 0, spawners.Staged(7))
}

func TestScanVolumes_CancelStopsEarly(t *testing.T) {
	w := newFakeWorld()
	e, _, _, _ := newTestEngine(w)
	tok := e.Token()
	w.onCall = e.Cancel

	e.CreateHolders(1)
	defer e.CleanUp(1)
	st, err := e.ScanVolumes(context.Background(), tok, 1, []Volume{{World: "overworld", A: Vec3i{}, B: Vec3i{X: 63, Z: 63}}})
	require.ErrorIs(t, err, ErrCancelled)
	require.Less(t, st.Cells, int64(64*64*4))

	// A token taken after the cancel scans normally.
	w.onCall = nil
	_, err = e.ScanVolumes(context.Background(), e.Token(), 1, []Volume{{World: "overworld", B: Vec3i{X: 1, Z: 1}}})
	require.NoError(t, err)
}

func TestScanVolumes_UnknownWorldSkipped(t *testing.T) {
	w := newFakeWorld()
	e, _, _, _ := newTestEngine(w)
	e.CreateHolders(1)
	defer e.CleanUp(1)
	st, err := e.ScanVolumes(context.Background(), e.Token(), 1, []Volume{
		{World: "nether", B: Vec3i{X: 3, Z: 3}},
		{World: "overworld", B: Vec3i{X: 0, Z: 0}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, st.Skipped)
	require.Equal(t, 1, st.Volumes)
	require.Equal(t, int64(4), st.Cells)
}

func TestScanTiles_ColumnFetchedOncePerChunk(t *testing.T) {
	w := newFakeWorld()
	e, blocks, _, _ := newTestEngine(w)
	e.CreateHolders(3)
	defer e.CleanUp(3)
	_, err := e.ScanTiles(context.Background(), e.Token(), 3, []Tile{{World: "overworld", X: 0, Z: 0}, {World: "overworld", X: -1, Z: 2}})
	require.NoError(t, err)
	require.Equal(t, 2, w.calls)
	require.Equal(t, map[string]int{"STONE": 2 * 256 * 2}, blocks.Counts(3))
}
