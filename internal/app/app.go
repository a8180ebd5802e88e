// Package app wires the world, the wealth pipeline, the leaderboard and its
// sinks into one runnable unit.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"wealthtop/internal/cache"
	"wealthtop/internal/config"
	"wealthtop/internal/display"
	"wealthtop/internal/leaderboard"
	"wealthtop/internal/metrics"
	"wealthtop/internal/persistence/history"
	"wealthtop/internal/persistence/indexdb"
	"wealthtop/internal/persistence/r2s3"
	"wealthtop/internal/persistence/yamlstore"
	"wealthtop/internal/provider"
	"wealthtop/internal/scan"
	"wealthtop/internal/sim/world"
	"wealthtop/internal/sources"
	"wealthtop/internal/stats"
	"wealthtop/internal/task"
	"wealthtop/internal/transport/board"
	"wealthtop/internal/worth"
)

var ErrPassAborted = errors.New("app: leaderboard pass aborted")

type Options struct {
	Config config.Config
	World  *world.World
	// Registerer receives the prometheus collectors; nil disables metrics.
	Registerer prometheus.Registerer
	// Gatherer backs /metrics; nil leaves the route out.
	Gatherer prometheus.Gatherer
	Log        *zap.Logger
}

// generation is everything rebuilt on Reload.
type generation struct {
	cfg    config.Config
	tables *worth.Tables
	engine *scan.Engine
	orch   *task.Orchestrator
	cache  *cache.Cache
	stats  *stats.Service
	sched  *leaderboard.Scheduler
}

// App owns one world's wealth pipeline. Storage, history and the board are
// built once; tables, tasks, caches and the scheduler are replaced on
// Reload.
type App struct {
	world *world.World
	log   *zap.Logger
	met   metrics.Collector
	gath  prometheus.Gatherer

	sinks   []leaderboard.Sink
	closers []func() error
	signs   *display.Registry
	board   *board.Server
	index   *indexdb.SQLiteIndex
	mirror  *r2s3.Mirror

	mu       sync.Mutex
	cur      *generation
	reloaded chan struct{}

	pubMu   sync.Mutex
	lastPub *cache.Snapshot
	waiters map[string]chan *cache.Snapshot
}

func New(opts Options) (*App, error) {
	if opts.World == nil {
		return nil, fmt.Errorf("app: world is required")
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	var met metrics.Collector = metrics.NewNop()
	if opts.Registerer != nil {
		met = metrics.NewPrometheus(opts.Registerer, "wealthtop")
	}
	a := &App{
		world:    opts.World,
		log:      log,
		met:      met,
		gath:     opts.Gatherer,
		reloaded: make(chan struct{}, 1),
		waiters:  map[string]chan *cache.Snapshot{},
	}
	if err := a.openSinks(opts.Config); err != nil {
		_ = a.Close()
		return nil, err
	}
	g, err := a.build(opts.Config)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.cur = g
	return a, nil
}

func (a *App) openSinks(cfg config.Config) error {
	switch cfg.Storage {
	case config.StorageSQLite:
		idx, err := indexdb.OpenSQLite(cfg.Path("wealthtop.sqlite"), a.log.Named("indexdb"))
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		a.index = idx
		a.sinks = append(a.sinks, idx)
		a.closers = append(a.closers, idx.Close)
	case config.StorageYAML:
		store, err := yamlstore.New(cfg.Path("wealth"), a.log.Named("yamlstore"))
		if err != nil {
			return fmt.Errorf("open yaml store: %w", err)
		}
		a.sinks = append(a.sinks, store)
	}

	if cfg.History {
		h := history.NewLog(cfg.Path("history"), nil)
		if cfg.Mirror.Enabled {
			client, err := r2s3.New(r2s3.ClientConfig{
				Endpoint:        cfg.Mirror.Endpoint,
				Bucket:          cfg.Mirror.Bucket,
				Region:          cfg.Mirror.Region,
				AccessKeyID:     cfg.Mirror.AccessKeyID,
				SecretAccessKey: cfg.Mirror.SecretAccessKey,
			})
			if err != nil {
				return fmt.Errorf("history mirror: %w", err)
			}
			a.mirror = r2s3.NewMirror(client, r2s3.MirrorConfig{
				DataDir: cfg.DataDir,
				Prefix:  cfg.Mirror.Prefix,
				Workers: cfg.Mirror.Workers,
			}, a.log.Named("mirror"))
			h.OnClose(a.mirror.Enqueue)
		}
		a.sinks = append(a.sinks, h)
		// History closes before the mirror so the last file is uploaded.
		a.closers = append(a.closers, h.Close)
		if a.mirror != nil {
			a.closers = append(a.closers, a.mirror.Close)
		}
	}

	signs, err := display.NewRegistry(cfg.Path("signs.yaml"), world.Signs{W: a.world}, a.log.Named("signs"))
	if err != nil {
		return fmt.Errorf("sign registry: %w", err)
	}
	a.signs = signs
	a.sinks = append(a.sinks, signs)

	if cfg.Board.Enabled {
		a.board = board.NewServer(board.Config{LoopbackOnly: cfg.Board.LoopbackOnly}, a.log.Named("board"))
		a.sinks = append(a.sinks, a.board)
	}
	a.sinks = append(a.sinks, leaderboard.SinkFunc(a.published))
	return nil
}

// build loads the worth tables and assembles a fresh pipeline. Tables that
// fail to load disable their category.
func (a *App) build(cfg config.Config) (*generation, error) {
	cats := a.world.Catalogs()
	tables, err := worth.Load(worth.LoadOptions{
		Dir:        cfg.WorthDir,
		KnownBlock: cats.Blocks.Has,
		KnownMob:   cats.Mobs.Has,
		KnownItem:  cats.Items.Has,
	}, a.log.Named("worth"))
	if err != nil {
		a.log.Warn("worth tables incomplete, affected categories disabled", zap.Error(err))
	}
	ok := func(file string) bool { return tables.Failed[file] == nil }

	var consumers []scan.Consumer
	if cfg.Include.Containers && ok(worth.ContainersFile) {
		consumers = append(consumers, scan.NewContainerConsumer(tables.Containers, cfg.ContainerTypes))
	}
	if cfg.Include.Spawners && ok(worth.SpawnersFile) {
		consumers = append(consumers, scan.NewSpawnerConsumer(tables.Spawners))
	}
	if ok(worth.BlocksFile) {
		consumers = append(consumers, scan.NewBlockConsumer(tables.Blocks))
	}
	engine := scan.NewEngine(scan.EngineConfig{
		Floor:    cfg.Land.Floor,
		Ceiling:  cfg.Land.Ceiling,
		TileSize: cfg.Land.TileSize,
	}, a.world, a.log.Named("scan"), consumers...)

	groups := world.Groups{W: a.world}
	members := sources.Members{GroupMode: cfg.GroupMode, Groups: groups, Log: a.log.Named("sources")}
	var claims provider.ClaimRegionProvider = world.ClaimProvider{W: a.world}
	if cfg.GroupMode {
		claims = world.TileClaimProvider{ClaimProvider: world.ClaimProvider{W: a.world}}
	}
	deps := task.Deps{
		Main:      a.world,
		Inspector: a.world,
		Engine:    engine,
		Claims:    sources.NewClaims(claims, members),
		Balance:   sources.NewBalance(world.Economy{W: a.world}, members),
		Metrics:   a.met,
		Log:       a.log.Named("task"),
	}
	if ok(worth.InventoryFile) {
		deps.Inventory = sources.NewInventory(world.Inventories{W: a.world}, tables.Inventory, members)
	}
	if ok(worth.ExternalFile) {
		deps.External = sources.NewExternal(world.StatSource{W: a.world}, tables.External, members)
	}
	orch := task.New(task.Config{
		Workers: cfg.Workers,
		Categories: task.Categories{
			Land:      cfg.Include.Land,
			Balance:   cfg.Include.Balance,
			Inventory: cfg.Include.Inventory && deps.Inventory != nil,
			External:  cfg.Include.External && deps.External != nil,
		},
	}, deps)

	c, err := cache.New(cache.Config{
		TTL:           cfg.CacheDuration,
		MaxPositions:  cfg.Leaderboard.TotalPositions,
		MinWealth:     cfg.Leaderboard.MinimumWealth,
		StatsCapacity: cfg.StatsCapacity,
	})
	if err != nil {
		return nil, err
	}

	sched := leaderboard.New(leaderboard.Config{
		GroupMode:        cfg.GroupMode,
		FilterLastActive: cfg.Leaderboard.FilterLastActive,
		ActiveWindow:     cfg.Leaderboard.ActiveWindow,
		Interval:         cfg.Leaderboard.Interval,
		InitialDelay:     cfg.Leaderboard.InitialDelay,
		UpdateOnStart:    cfg.Leaderboard.UpdateOnStart,
		CommandsOnStart:  cfg.Leaderboard.CommandsOnStart,
		CommandsOnEnd:    cfg.Leaderboard.CommandsOnEnd,
	}, leaderboard.Deps{
		Tasks:    orch,
		Cache:    c,
		Players:  world.Directory{W: a.world},
		Groups:   groups,
		Commands: world.Console{W: a.world},
		Sinks:    a.sinks,
		Metrics:  a.met,
		Log:      a.log.Named("leaderboard"),
	})

	return &generation{
		cfg:    cfg,
		tables: tables,
		engine: engine,
		orch:   orch,
		cache:  c,
		stats:  stats.New(stats.Mode(cfg.CalculationMode), orch, c, a.log.Named("stats")),
		sched:  sched,
	}, nil
}

func (a *App) current() *generation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cur
}

func (a *App) Config() config.Config { return a.current().cfg }

func (a *App) Cache() *cache.Cache { return a.current().cache }

func (a *App) Scheduler() *leaderboard.Scheduler { return a.current().sched }

func (a *App) Tables() *worth.Tables { return a.current().tables }

func (a *App) Signs() *display.Registry { return a.signs }

// Board is nil when the board is disabled.
func (a *App) Board() *board.Server { return a.board }

// Index is nil unless storage is sqlite.
func (a *App) Index() *indexdb.SQLiteIndex { return a.index }

func (a *App) World() *world.World { return a.world }

// Run drives scheduled passes until ctx is done, restarting the schedule
// after every Reload.
func (a *App) Run(ctx context.Context) error {
	for {
		sched := a.Scheduler()
		sctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = sched.Start(sctx)
		}()
		for restart := false; !restart; {
			select {
			case <-ctx.Done():
				cancel()
				<-done
				return ctx.Err()
			case <-a.reloaded:
				restart = a.Scheduler() != sched
			}
		}
		cancel()
		<-done
	}
}

// Lookup answers one entity's wealth through the configured calculation
// mode.
func (a *App) Lookup(ctx context.Context, caller, name string, done func(stats.Reply, error)) error {
	return a.current().stats.Lookup(ctx, caller, name, done)
}

// Measure reports the claim count and cell count of an entity.
func (a *App) Measure(ctx context.Context, name string) scan.ClaimInfo {
	return a.current().orch.Measure(ctx, name)
}

// Rank triggers a manual pass and waits for its snapshot.
func (a *App) Rank(ctx context.Context) (*cache.Snapshot, error) {
	sched := a.Scheduler()
	if err := sched.Trigger(ctx, leaderboard.TriggerManual); err != nil {
		return nil, err
	}
	runID := sched.Status().RunID

	a.pubMu.Lock()
	if a.lastPub != nil && a.lastPub.RunID == runID {
		snap := a.lastPub
		a.pubMu.Unlock()
		return snap, nil
	}
	ch := make(chan *cache.Snapshot, 1)
	a.waiters[runID] = ch
	a.pubMu.Unlock()
	defer func() {
		a.pubMu.Lock()
		delete(a.waiters, runID)
		a.pubMu.Unlock()
	}()

	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case snap := <-ch:
			return snap, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-poll.C:
			if st := sched.Status(); !st.Updating || st.RunID != runID {
				select {
				case snap := <-ch:
					return snap, nil
				default:
					return nil, ErrPassAborted
				}
			}
		}
	}
}

func (a *App) published(_ context.Context, snap *cache.Snapshot) error {
	a.pubMu.Lock()
	defer a.pubMu.Unlock()
	a.lastPub = snap
	if ch, ok := a.waiters[snap.RunID]; ok {
		ch <- snap
		delete(a.waiters, snap.RunID)
	}
	return nil
}

// Reload swaps in a pipeline built from cfg. In-flight tasks are
// interrupted, scans cancelled, caches emptied and the schedule restarted.
// Storage, history and board settings keep their startup values.
func (a *App) Reload(cfg config.Config) error {
	next, err := a.build(cfg)
	if err != nil {
		return err
	}
	a.mu.Lock()
	old := a.cur
	a.cur = next
	a.mu.Unlock()

	old.sched.Reset()
	old.orch.Clear()
	old.cache.Reset()
	old.orch.Wait()
	old.sched.Wait()
	select {
	case a.reloaded <- struct{}{}:
	default:
	}
	a.log.Info("configuration reloaded",
		zap.Int("calculation_mode", cfg.CalculationMode), zap.Bool("group_mode", cfg.GroupMode))
	return nil
}

// Close stops the pipeline and flushes every sink. The world is left
// running.
func (a *App) Close() error {
	if g := a.current(); g != nil {
		g.sched.Reset()
		g.orch.Clear()
		g.orch.Wait()
		g.sched.Wait()
	}
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}
