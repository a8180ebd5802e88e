package scan

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"wealthtop/internal/wealth"
	"wealthtop/internal/worth"
)

// SpawnerBlock is the block type the spawner consumer stages.
const SpawnerBlock = "SPAWNER"

// Cell is one visited block.
type Cell struct {
	World string
	Pos   Vec3i
	Block string
}

// Consumer claims cells for one category. Claim runs on scan workers; it must
// only touch the holder of the given task.
type Consumer interface {
	Category() string
	CreateHolder(id uint64)
	Claim(id uint64, c Cell) bool
	CleanUp(id uint64)
	Counts(id uint64) map[string]int
	Worth(id uint64) float64
}

// Stager is a Consumer whose claimed cells need live world state. Resolve is
// called on the world loop after the scan finished.
type Stager interface {
	Consumer
	Resolve(id uint64, in Inspector, cancelled func() bool)
}

// BlockConsumer counts every block that has a worth entry.
type BlockConsumer struct {
	table   worth.Table
	holders *Holders
}

func NewBlockConsumer(table worth.Table) *BlockConsumer {
	return &BlockConsumer{table: table, holders: NewHolders()}
}

func (b *BlockConsumer) Category() string { return wealth.Blocks }

func (b *BlockConsumer) CreateHolder(id uint64) { b.holders.Create(id) }

func (b *BlockConsumer) CleanUp(id uint64) { b.holders.Delete(id) }

func (b *BlockConsumer) Claim(id uint64, c Cell) bool {
	if !b.table.Has(c.Block) {
		return false
	}
	if h, ok := b.holders.Get(id); ok {
		h.Add(c.Block, 1)
	}
	return true
}

func (b *BlockConsumer) Counts(id uint64) map[string]int {
	h, _ := b.holders.Get(id)
	return h.Counts()
}

func (b *BlockConsumer) Worth(id uint64) float64 {
	return b.table.Sum(b.Counts(id))
}

// staging keeps claimed positions per task until the world loop resolves them.
type staging struct {
	holders *Holders
	pending *xsync.Map[uint64, *pendingCells]
}

type pendingCells struct {
	mu    sync.Mutex
	cells []Cell
}

func newStaging() staging {
	return staging{holders: NewHolders(), pending: xsync.NewMap[uint64, *pendingCells]()}
}

func (s staging) create(id uint64) {
	s.holders.Create(id)
	s.pending.LoadOrStore(id, &pendingCells{})
}

func (s staging) stage(id uint64, c Cell) {
	p, ok := s.pending.Load(id)
	if !ok {
		return
	}
	p.mu.Lock()
	p.cells = append(p.cells, c)
	p.mu.Unlock()
}

// take removes and returns the staged cells of a task.
func (s staging) take(id uint64) []Cell {
	p, ok := s.pending.LoadAndDelete(id)
	if !ok {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cells
}

func (s staging) cleanUp(id uint64) {
	s.holders.Delete(id)
	s.pending.Delete(id)
}

func (s staging) staged(id uint64) int {
	p, ok := s.pending.Load(id)
	if !ok {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cells)
}

// SpawnerConsumer stages spawner blocks and counts their mob types on the
// world loop. A stacked spawner counts once per stacked unit.
type SpawnerConsumer struct {
	table worth.Table
	staging
}

func NewSpawnerConsumer(table worth.Table) *SpawnerConsumer {
	return &SpawnerConsumer{table: table, staging: newStaging()}
}

func (s *SpawnerConsumer) Category() string { return wealth.Spawners }

func (s *SpawnerConsumer) CreateHolder(id uint64) { s.create(id) }

func (s *SpawnerConsumer) CleanUp(id uint64) { s.cleanUp(id) }

func (s *SpawnerConsumer) Claim(id uint64, c Cell) bool {
	if c.Block != SpawnerBlock {
		return false
	}
	s.stage(id, c)
	return true
}

// Staged reports how many cells wait for resolution.
func (s *SpawnerConsumer) Staged(id uint64) int { return s.staged(id) }

func (s *SpawnerConsumer) Resolve(id uint64, in Inspector, cancelled func() bool) {
	cells := s.take(id)
	h, ok := s.holders.Get(id)
	if !ok {
		return
	}
	for _, c := range cells {
		if cancelled != nil && cancelled() {
			return
		}
		mob, stack, ok := in.SpawnerAt(c.World, c.Pos)
		if !ok {
			continue
		}
		mob = worth.NormalizeKey(mob)
		if !s.table.Has(mob) {
			continue
		}
		h.Add(mob, max(stack, 1))
	}
}

func (s *SpawnerConsumer) Counts(id uint64) map[string]int {
	h, _ := s.holders.Get(id)
	return h.Counts()
}

func (s *SpawnerConsumer) Worth(id uint64) float64 {
	return s.table.Sum(s.Counts(id))
}

// ContainerConsumer stages blocks of the configured container types and
// counts their items on the world loop.
type ContainerConsumer struct {
	table worth.Table
	types map[string]struct{}
	staging
}

func NewContainerConsumer(table worth.Table, types []string) *ContainerConsumer {
	c := &ContainerConsumer{table: table, types: map[string]struct{}{}, staging: newStaging()}
	for _, t := range types {
		if k := worth.NormalizeKey(t); k != "" {
			c.types[k] = struct{}{}
		}
	}
	return c
}

func (c *ContainerConsumer) Category() string { return wealth.Containers }

func (c *ContainerConsumer) CreateHolder(id uint64) { c.create(id) }

func (c *ContainerConsumer) CleanUp(id uint64) { c.cleanUp(id) }

func (c *ContainerConsumer) Claim(id uint64, cell Cell) bool {
	if _, ok := c.types[cell.Block]; !ok {
		return false
	}
	c.stage(id, cell)
	return true
}

func (c *ContainerConsumer) Staged(id uint64) int { return c.staged(id) }

func (c *ContainerConsumer) Resolve(id uint64, in Inspector, cancelled func() bool) {
	cells := c.take(id)
	h, ok := c.holders.Get(id)
	if !ok {
		return
	}
	for _, cell := range cells {
		if cancelled != nil && cancelled() {
			return
		}
		items, ok := in.ContainerAt(cell.World, cell.Pos)
		if !ok {
			continue
		}
		for item, n := range items {
			item = worth.NormalizeKey(item)
			if c.table.Has(item) {
				h.Add(item, n)
			}
		}
	}
}

func (c *ContainerConsumer) Counts(id uint64) map[string]int {
	h, _ := c.holders.Get(id)
	return h.Counts()
}

func (c *ContainerConsumer) Worth(id uint64) float64 {
	return c.table.Sum(c.Counts(id))
}
