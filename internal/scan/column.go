package scan

import "context"

// Air is returned for every cell outside a column's stored height.
const Air = "AIR"

// Column is a read-only copy of one 16x16 chunk column. Blocks are palette
// indices laid out x fastest, then z, then y (from Floor).
type Column struct {
	World   string
	CX, CZ  int
	Floor   int
	Height  int
	Palette []string
	Blocks  []uint16
}

// Block returns the block name at a world position inside this column.
func (c *Column) Block(x, y, z int) string {
	if c == nil || y < c.Floor || y >= c.Floor+c.Height {
		return Air
	}
	lx := x - c.CX*16
	lz := z - c.CZ*16
	if lx < 0 || lx >= 16 || lz < 0 || lz >= 16 {
		return Air
	}
	i := lx + lz*16 + (y-c.Floor)*256
	if i >= len(c.Blocks) {
		return Air
	}
	id := c.Blocks[i]
	if int(id) >= len(c.Palette) {
		return Air
	}
	return c.Palette[id]
}

// ChunkReader hands out column copies that may be read off the world loop.
// It returns ErrUnknownWorld for worlds it does not host.
type ChunkReader interface {
	Column(ctx context.Context, world string, cx, cz int) (*Column, error)
}

// Inspector reads live spawner and container state. It must only be used from
// the world loop.
type Inspector interface {
	SpawnerAt(world string, pos Vec3i) (mob string, stack int, ok bool)
	ContainerAt(world string, pos Vec3i) (items map[string]int, ok bool)
}

func floorDiv(a, b int) int {
	q := a / b
	if r := a % b; r < 0 {
		q--
	}
	return q
}
