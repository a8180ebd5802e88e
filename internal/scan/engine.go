package scan

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// Token ties a scan to the engine generation it started in. Cancel on the
// engine invalidates every token handed out before it. The zero Token is
// never cancelled.
type Token struct {
	gen uint64
	e   *Engine
}

func (t Token) Cancelled() bool {
	return t.e != nil && t.e.gen.Load() != t.gen
}

// Stats reports what a scan visited.
type Stats struct {
	Volumes int
	Skipped int
	Cells   int64
	Claimed map[string]int64
}

type EngineConfig struct {
	Floor   int
	Ceiling int
	// TileSize is the edge length of a tile claim, 16 when unset.
	TileSize int
}

// Engine walks claimed volumes and offers every cell to its consumers in
// order until one claims it. Scans run on worker goroutines against column
// copies from the ChunkReader.
type Engine struct {
	cfg       EngineConfig
	reader    ChunkReader
	consumers []Consumer
	log       *zap.Logger

	gen atomic.Uint64
}

func NewEngine(cfg EngineConfig, reader ChunkReader, log *zap.Logger, consumers ...Consumer) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TileSize <= 0 {
		cfg.TileSize = 16
	}
	return &Engine{cfg: cfg, reader: reader, consumers: consumers, log: log}
}

func (e *Engine) Config() EngineConfig { return e.cfg }

func (e *Engine) Consumers() []Consumer { return e.consumers }

// Stagers returns the consumers that need a resolution pass on the world loop.
func (e *Engine) Stagers() []Stager {
	var out []Stager
	for _, c := range e.consumers {
		if s, ok := c.(Stager); ok {
			out = append(out, s)
		}
	}
	return out
}

// Token captures the current generation.
func (e *Engine) Token() Token {
	return Token{gen: e.gen.Load(), e: e}
}

// Cancel stops every scan started before the call. Scans started afterwards
// are unaffected.
func (e *Engine) Cancel() {
	e.gen.Add(1)
}

func (e *Engine) CreateHolders(id uint64) {
	for _, c := range e.consumers {
		c.CreateHolder(id)
	}
}

func (e *Engine) CleanUp(id uint64) {
	for _, c := range e.consumers {
		c.CleanUp(id)
	}
}

// ScanVolumes visits every cell of every volume exactly once, x outermost,
// then z, then y. Volumes in worlds the reader does not host are skipped.
// The scan stops with ErrCancelled when tok is cancelled or ctx is done; the
// check runs before every (x, z) row.
func (e *Engine) ScanVolumes(ctx context.Context, tok Token, id uint64, volumes []Volume) (Stats, error) {
	st := Stats{Claimed: map[string]int64{}}
	for _, v := range volumes {
		err := e.scanVolume(ctx, tok, id, v, &st)
		switch {
		case err == nil:
			st.Volumes++
		case errors.Is(err, ErrUnknownWorld):
			st.Skipped++
			e.log.Debug("skipping volume in unknown world", zap.String("world", v.World), zap.Uint64("task", id))
		default:
			return st, err
		}
	}
	return st, nil
}

// ScanTiles scans tile claims as volumes of the configured tile size.
func (e *Engine) ScanTiles(ctx context.Context, tok Token, id uint64, tiles []Tile) (Stats, error) {
	return e.ScanVolumes(ctx, tok, id, TileVolumes(tiles, e.cfg.TileSize))
}

func TileVolumes(tiles []Tile, size int) []Volume {
	vols := make([]Volume, 0, len(tiles))
	for _, t := range tiles {
		vols = append(vols, t.Volume(size))
	}
	return vols
}

func (e *Engine) scanVolume(ctx context.Context, tok Token, id uint64, v Volume, st *Stats) error {
	b := v.Bounds(e.cfg.Floor, e.cfg.Ceiling)
	if b.Empty() {
		return nil
	}
	// Columns of the current chunk-x strip; dropped when x leaves the strip.
	strip := map[int]*Column{}
	stripCX := floorDiv(b.MinX, 16)
	for x := b.MinX; x < b.MaxX; x++ {
		if cx := floorDiv(x, 16); cx != stripCX {
			clear(strip)
			stripCX = cx
		}
		for z := b.MinZ; z < b.MaxZ; z++ {
			if tok.Cancelled() {
				return ErrCancelled
			}
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %w", ErrCancelled, err)
			}
			cz := floorDiv(z, 16)
			col, ok := strip[cz]
			if !ok {
				c, err := e.reader.Column(ctx, v.World, stripCX, cz)
				if err != nil {
					return err
				}
				strip[cz] = c
				col = c
			}
			for y := b.MinY; y < b.MaxY; y++ {
				cell := Cell{World: v.World, Pos: Vec3i{X: x, Y: y, Z: z}, Block: col.Block(x, y, z)}
				st.Cells++
				for _, c := range e.consumers {
					if c.Claim(id, cell) {
						st.Claimed[c.Category()]++
						break
					}
				}
			}
		}
	}
	return nil
}
