// Package world is the host voxel world: chunk columns, spawners,
// containers, players, groups and claims, all owned by one loop goroutine.
// Other goroutines reach the state through Post and Call.
package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"wealthtop/internal/scan"
	"wealthtop/internal/sim/catalogs"
)

var (
	ErrStopped      = errors.New("world: stopped")
	ErrUnknownBlock = errors.New("world: unknown block")
	ErrOutOfBounds  = errors.New("world: position out of bounds")
)

// Dimension configures one hosted world.
type Dimension struct {
	ID               string `yaml:"id"`
	Seed             int64  `yaml:"seed"`
	Floor            int    `yaml:"floor"`
	Height           int    `yaml:"height"`
	BoundaryR        int    `yaml:"boundary_r"`
	BiomeRegionSize  int    `yaml:"biome_region_size"`
	OreScalePermille int    `yaml:"ore_scale_permille"`
}

type Config struct {
	Dimensions []Dimension
	// TickRateHz drives activity refresh of online players; zero disables
	// the ticker.
	TickRateHz int
	QueueSize  int
	TileSize   int
	Clock      func() time.Time
}

// Loc addresses one block in one dimension.
type Loc struct {
	World string
	Pos   scan.Vec3i
}

type Spawner struct {
	Mob   string
	Stack int
}

type Container struct {
	Block string
	Items map[string]int
}

type Player struct {
	Name       string
	LastActive time.Time
	Online     bool
	Balance    float64
	Items      map[string]int
	Stats      map[string]float64
}

type Group struct {
	Name    string
	Members []string
	Tiles   []scan.Tile
	Stats   map[string]float64
}

type World struct {
	cfg  Config
	cats *catalogs.Catalogs
	log  *zap.Logger

	calls    chan func()
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	tick     atomic.Uint64

	// Loop-owned state.
	dims       map[string]*ChunkStore
	spawners   map[Loc]Spawner
	containers map[Loc]Container
	players    map[string]*Player
	groups     map[string]*Group
	memberOf   map[string]string
	claims     map[string][]scan.Volume
	signs      map[Loc][4]string
	commands   []string
}

func New(cfg Config, cats *catalogs.Catalogs, log *zap.Logger) (*World, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cats == nil {
		cats = catalogs.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.TileSize <= 0 {
		cfg.TileSize = 16
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	w := &World{
		cfg:        cfg,
		cats:       cats,
		log:        log,
		calls:      make(chan func(), cfg.QueueSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		dims:       map[string]*ChunkStore{},
		spawners:   map[Loc]Spawner{},
		containers: map[Loc]Container{},
		players:    map[string]*Player{},
		groups:     map[string]*Group{},
		memberOf:   map[string]string{},
		claims:     map[string][]scan.Volume{},
		signs:      map[Loc][4]string{},
	}
	for _, d := range cfg.Dimensions {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			return nil, fmt.Errorf("world: dimension without id")
		}
		if _, dup := w.dims[id]; dup {
			return nil, fmt.Errorf("world: duplicate dimension %q", id)
		}
		w.dims[id] = NewChunkStore(Gen{
			Seed:             d.Seed,
			Floor:            d.Floor,
			Height:           d.Height,
			BoundaryR:        d.BoundaryR,
			BiomeRegionSize:  d.BiomeRegionSize,
			OreScalePermille: d.OreScalePermille,
		}, cats.Blocks)
	}
	return w, nil
}

func (w *World) Catalogs() *catalogs.Catalogs { return w.cats }

// Tick is the number of ticks the loop has run.
func (w *World) Tick() uint64 { return w.tick.Load() }

// Run is the only goroutine that touches world state. It returns when ctx is
// done or Stop is called; calls still queued are dropped.
func (w *World) Run(ctx context.Context) error {
	defer close(w.done)
	var tickC <-chan time.Time
	if w.cfg.TickRateHz > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(w.cfg.TickRateHz))
		defer ticker.Stop()
		tickC = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case fn := <-w.calls:
			w.invoke(fn)
		case <-tickC:
			w.step()
		}
	}
}

func (w *World) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("world call panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

func (w *World) step() {
	w.tick.Add(1)
	now := w.cfg.Clock()
	for _, p := range w.players {
		if p.Online {
			p.LastActive = now
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// Post queues fn for the loop. Functions posted before Run starts run once it
// does; once Run has returned, Post fails with ErrStopped.
func (w *World) Post(fn func()) error {
	select {
	case <-w.stop:
		return ErrStopped
	case <-w.done:
		return ErrStopped
	default:
	}
	select {
	case w.calls <- fn:
		return nil
	case <-w.stop:
		return ErrStopped
	case <-w.done:
		return ErrStopped
	}
}

// Call runs fn on the loop and waits for it to finish.
func (w *World) Call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if err := w.Post(func() {
		defer close(ran)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrStopped
	}
}

// The methods below must run on the loop (or before Run starts).

func (w *World) dim(id string) (*ChunkStore, error) {
	d, ok := w.dims[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, scan.ErrUnknownWorld)
	}
	return d, nil
}

// Dimensions lists the hosted world ids.
func (w *World) Dimensions() []string {
	out := make([]string, 0, len(w.dims))
	for id := range w.dims {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (w *World) Block(world string, pos scan.Vec3i) (string, error) {
	d, err := w.dim(world)
	if err != nil {
		return "", err
	}
	return w.cats.Blocks.Names[d.GetBlock(pos)], nil
}

// SetBlock replaces a block. Spawner and container state at pos is dropped.
func (w *World) SetBlock(world string, pos scan.Vec3i, block string) error {
	d, err := w.dim(world)
	if err != nil {
		return err
	}
	id, ok := w.cats.Blocks.ID(block)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBlock, block)
	}
	if !d.SetBlock(pos, id) {
		return fmt.Errorf("%w: %s %v", ErrOutOfBounds, world, pos)
	}
	loc := Loc{World: world, Pos: pos}
	delete(w.spawners, loc)
	delete(w.containers, loc)
	return nil
}

func (w *World) PlaceSpawner(world string, pos scan.Vec3i, mob string, stack int) error {
	mob = strings.ToUpper(strings.TrimSpace(mob))
	if !w.cats.Mobs.Has(mob) {
		return fmt.Errorf("world: unknown mob %q", mob)
	}
	if err := w.SetBlock(world, pos, scan.SpawnerBlock); err != nil {
		return err
	}
	w.spawners[Loc{World: world, Pos: pos}] = Spawner{Mob: mob, Stack: max(stack, 1)}
	return nil
}

func (w *World) PlaceContainer(world string, pos scan.Vec3i, block string, items map[string]int) error {
	block = strings.ToUpper(strings.TrimSpace(block))
	if !w.cats.Blocks.Defs[block].Container {
		return fmt.Errorf("world: %q is not a container block", block)
	}
	if err := w.SetBlock(world, pos, block); err != nil {
		return err
	}
	w.containers[Loc{World: world, Pos: pos}] = Container{Block: block, Items: copyCounts(items)}
	return nil
}

// SpawnerAt implements scan.Inspector.
func (w *World) SpawnerAt(world string, pos scan.Vec3i) (string, int, bool) {
	s, ok := w.spawners[Loc{World: world, Pos: pos}]
	if !ok {
		return "", 0, false
	}
	return s.Mob, s.Stack, true
}

// ContainerAt implements scan.Inspector.
func (w *World) ContainerAt(world string, pos scan.Vec3i) (map[string]int, bool) {
	c, ok := w.containers[Loc{World: world, Pos: pos}]
	if !ok {
		return nil, false
	}
	return copyCounts(c.Items), true
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// UpsertPlayer stores a copy of p. A zero LastActive means now.
func (w *World) UpsertPlayer(p Player) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("world: player without name")
	}
	if p.LastActive.IsZero() {
		p.LastActive = w.cfg.Clock()
	}
	p.Items = copyCounts(p.Items)
	p.Stats = copyStats(p.Stats)
	w.players[key(p.Name)] = &p
	return nil
}

func (w *World) player(name string) (*Player, bool) {
	p, ok := w.players[key(name)]
	return p, ok
}

// SetOnline flips a player's online flag; going offline records the time.
func (w *World) SetOnline(name string, online bool) bool {
	p, ok := w.player(name)
	if !ok {
		return false
	}
	p.Online = online
	p.LastActive = w.cfg.Clock()
	return true
}

// SetGroup replaces a group. A player belongs to at most one group; joining
// another removes them from the previous one.
func (w *World) SetGroup(g Group) error {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return fmt.Errorf("world: group without name")
	}
	if old, ok := w.groups[key(g.Name)]; ok {
		for _, m := range old.Members {
			delete(w.memberOf, key(m))
		}
	}
	members := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		if prev, ok := w.memberOf[key(m)]; ok && prev != key(g.Name) {
			w.dropMember(prev, m)
		}
		w.memberOf[key(m)] = key(g.Name)
		members = append(members, m)
	}
	g.Members = members
	g.Tiles = append([]scan.Tile(nil), g.Tiles...)
	g.Stats = copyStats(g.Stats)
	w.groups[key(g.Name)] = &g
	return nil
}

func (w *World) dropMember(group, member string) {
	g, ok := w.groups[group]
	if !ok {
		return
	}
	kept := g.Members[:0]
	for _, m := range g.Members {
		if key(m) != key(member) {
			kept = append(kept, m)
		}
	}
	g.Members = kept
}

func (w *World) AddClaim(owner string, v scan.Volume) error {
	if _, err := w.dim(v.World); err != nil {
		return err
	}
	w.claims[key(owner)] = append(w.claims[key(owner)], v)
	return nil
}

// WriteSignLines stores the text of the sign at pos.
func (w *World) WriteSignLines(world string, pos scan.Vec3i, lines [4]string) error {
	if _, err := w.dim(world); err != nil {
		return err
	}
	w.signs[Loc{World: world, Pos: pos}] = lines
	return nil
}

func (w *World) SignLines(world string, pos scan.Vec3i) ([4]string, bool) {
	l, ok := w.signs[Loc{World: world, Pos: pos}]
	return l, ok
}

// Snapshot copies a chunk column; it may be called from any goroutine.
func (w *World) Snapshot(ctx context.Context, world string, cx, cz int) (*scan.Column, error) {
	var (
		col *scan.Column
		err error
	)
	if cerr := w.Call(ctx, func() {
		var d *ChunkStore
		if d, err = w.dim(world); err == nil {
			col = d.Column(world, cx, cz)
		}
	}); cerr != nil {
		return nil, cerr
	}
	return col, err
}

// Column implements scan.ChunkReader.
func (w *World) Column(ctx context.Context, world string, cx, cz int) (*scan.Column, error) {
	return w.Snapshot(ctx, world, cx, cz)
}

// Digest hashes the loaded terrain of one dimension. Loop only.
func (w *World) Digest(world string) (string, error) {
	d, err := w.dim(world)
	if err != nil {
		return "", err
	}
	return d.Digest(), nil
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[strings.ToUpper(strings.TrimSpace(k))] += v
	}
	return out
}

func copyStats(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}
