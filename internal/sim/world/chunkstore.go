package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"wealthtop/internal/scan"
	"wealthtop/internal/sim/catalogs"
)

type ChunkKey struct {
	CX int
	CZ int
}

// Chunk is one 16x16 column of Height blocks, x fastest, then z, then y.
type Chunk struct {
	CX, CZ int
	Blocks []uint16

	dirty bool
	hash  [32]byte
}

func (c *Chunk) index(x, y, z int) int {
	return x + z*16 + y*256
}

func (c *Chunk) Get(x, y, z int) uint16 {
	return c.Blocks[c.index(x, y, z)]
}

func (c *Chunk) Set(x, y, z int, b uint16) {
	i := c.index(x, y, z)
	if c.Blocks[i] == b {
		return
	}
	c.Blocks[i] = b
	c.dirty = true
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [2]byte
		for _, v := range c.Blocks {
			binary.LittleEndian.PutUint16(tmp[:], v)
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

// Gen holds the terrain parameters of one dimension.
type Gen struct {
	Seed   int64
	Floor  int
	Height int
	// BoundaryR limits the world to |x|, |z| <= BoundaryR; zero is unbounded.
	BoundaryR       int
	BiomeRegionSize int
	// OreScalePermille scales every ore probability; 1000 keeps the defaults.
	OreScalePermille int
}

type genIDs struct {
	air, bedrock, stone, dirt, grass, sand, gravel, log uint16
	coal, copper, iron, gold, diamond                   uint16
}

func resolveIDs(p catalogs.Palette) genIDs {
	id := func(name string) uint16 {
		v, _ := p.ID(name)
		return v
	}
	return genIDs{
		air:     0,
		bedrock: id("BEDROCK"),
		stone:   id("STONE"),
		dirt:    id("DIRT"),
		grass:   id("GRASS"),
		sand:    id("SAND"),
		gravel:  id("GRAVEL"),
		log:     id("LOG"),
		coal:    id("COAL_ORE"),
		copper:  id("COPPER_ORE"),
		iron:    id("IRON_ORE"),
		gold:    id("GOLD_ORE"),
		diamond: id("DIAMOND_ORE"),
	}
}

// ChunkStore generates chunks lazily and keeps every touched chunk. It is
// accessed only from the world loop.
type ChunkStore struct {
	gen     Gen
	palette catalogs.Palette
	ids     genIDs
	chunks  map[ChunkKey]*Chunk
}

func NewChunkStore(gen Gen, palette catalogs.Palette) *ChunkStore {
	if gen.Height <= 0 {
		gen.Height = 64
	}
	if gen.BiomeRegionSize <= 0 {
		gen.BiomeRegionSize = 64
	}
	return &ChunkStore{
		gen:     gen,
		palette: palette,
		ids:     resolveIDs(palette),
		chunks:  map[ChunkKey]*Chunk{},
	}
}

func (s *ChunkStore) Gen() Gen { return s.gen }

func (s *ChunkStore) inBounds(pos scan.Vec3i) bool {
	if pos.Y < s.gen.Floor || pos.Y >= s.gen.Floor+s.gen.Height {
		return false
	}
	return s.inBoundsXZ(pos.X, pos.Z)
}

func (s *ChunkStore) inBoundsXZ(x, z int) bool {
	r := s.gen.BoundaryR
	return r <= 0 || (x >= -r && x <= r && z >= -r && z <= r)
}

func (s *ChunkStore) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

// GetBlock returns the palette id at pos; AIR outside the world.
func (s *ChunkStore) GetBlock(pos scan.Vec3i) uint16 {
	if !s.inBounds(pos) {
		return s.ids.air
	}
	ch := s.getOrGenChunk(floorDiv(pos.X, 16), floorDiv(pos.Z, 16))
	return ch.Get(mod(pos.X, 16), pos.Y-s.gen.Floor, mod(pos.Z, 16))
}

// SetBlock writes a palette id; positions outside the world are ignored and
// reported as false.
func (s *ChunkStore) SetBlock(pos scan.Vec3i, b uint16) bool {
	if !s.inBounds(pos) {
		return false
	}
	ch := s.getOrGenChunk(floorDiv(pos.X, 16), floorDiv(pos.Z, 16))
	ch.Set(mod(pos.X, 16), pos.Y-s.gen.Floor, mod(pos.Z, 16), b)
	return true
}

// Column copies one chunk column for readers outside the loop.
func (s *ChunkStore) Column(world string, cx, cz int) *scan.Column {
	ch := s.getOrGenChunk(cx, cz)
	blocks := make([]uint16, len(ch.Blocks))
	copy(blocks, ch.Blocks)
	return &scan.Column{
		World:   world,
		CX:      cx,
		CZ:      cz,
		Floor:   s.gen.Floor,
		Height:  s.gen.Height,
		Palette: s.palette.Names,
		Blocks:  blocks,
	}
}

// Digest hashes every loaded chunk in key order.
func (s *ChunkStore) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	for _, k := range s.LoadedChunkKeys() {
		binary.LittleEndian.PutUint32(tmp[:4], uint32(int32(k.CX)))
		binary.LittleEndian.PutUint32(tmp[4:], uint32(int32(k.CZ)))
		h.Write(tmp[:])
		d := s.chunks[k].Digest()
		h.Write(d[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *ChunkStore) getOrGenChunk(cx, cz int) *Chunk {
	k := ChunkKey{CX: cx, CZ: cz}
	if ch, ok := s.chunks[k]; ok {
		return ch
	}
	ch := &Chunk{CX: cx, CZ: cz, Blocks: make([]uint16, 256*s.gen.Height)}
	s.generateChunk(ch)
	ch.dirty = true
	_ = ch.Digest()
	s.chunks[k] = ch
	return ch
}

const (
	treeSalt   = 0x7ee5
	gravelSalt = 0x6a7e
)

func (s *ChunkStore) generateChunk(ch *Chunk) {
	g := s.gen
	for z := 0; z < 16; z++ {
		for x := 0; x < 16; x++ {
			wx := ch.CX*16 + x
			wz := ch.CZ*16 + z
			if !s.inBoundsXZ(wx, wz) {
				continue
			}
			surface := min(g.Height/4+int(hash2(g.Seed, wx, wz)%3), g.Height-1)
			biome := biomeAt(g.Seed, wx, wz, g.BiomeRegionSize)
			top, sub := s.ids.grass, s.ids.dirt
			if biome == biomeDesert {
				top, sub = s.ids.sand, s.ids.sand
			}
			for y := 0; y <= surface; y++ {
				var b uint16
				switch {
				case y == 0:
					b = s.ids.bedrock
				case y == surface:
					b = top
				case y >= surface-2:
					b = sub
				default:
					b = s.rock(wx, g.Floor+y, wz)
				}
				ch.Blocks[ch.index(x, y, z)] = b
			}
			if biome == biomeForest && surface+1 < g.Height && hash2(g.Seed^treeSalt, wx, wz)%1000 < 20 {
				ch.Blocks[ch.index(x, surface+1, z)] = s.ids.log
			}
		}
	}
}

// rock picks an underground block: ores by scaled permille rolls, gravel in
// clusters, stone otherwise.
func (s *ChunkStore) rock(x, y, z int) uint16 {
	roll := hash3(s.gen.Seed, x, y, z) % 1000
	var acc uint64
	for _, ore := range []struct {
		id   uint16
		base uint64
	}{
		{s.ids.diamond, 2},
		{s.ids.gold, 6},
		{s.ids.iron, 20},
		{s.ids.copper, 15},
		{s.ids.coal, 30},
	} {
		acc += scalePermille(ore.base, s.gen.OreScalePermille)
		if roll < acc {
			return ore.id
		}
	}
	if inCluster(s.gen.Seed^gravelSalt, x, z, 48, 3, 150) && mod(y, 4) == 0 {
		return s.ids.gravel
	}
	return s.ids.stone
}
