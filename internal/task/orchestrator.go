package task

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"wealthtop/internal/metrics"
	"wealthtop/internal/provider"
	"wealthtop/internal/scan"
	"wealthtop/internal/sources"
	"wealthtop/internal/wealth"
)

// Categories selects which wealth sources contribute to a record.
type Categories struct {
	Land      bool
	Balance   bool
	Inventory bool
	External  bool
}

type Config struct {
	// Workers bounds concurrent scan phases. Defaults to GOMAXPROCS.
	Workers    int
	Categories Categories
	Clock      func() time.Time
}

// Deps are the collaborators of an Orchestrator. Nil sources disable their
// category.
type Deps struct {
	Main      provider.MainThread
	Inspector scan.Inspector
	Engine    *scan.Engine
	Claims    *sources.Claims
	Balance   *sources.Balance
	Inventory *sources.Inventory
	External  *sources.External
	Metrics   metrics.Collector
	Log       *zap.Logger
}

// Orchestrator runs wealth tasks: the scan phase on a bounded worker pool,
// then resolution and assembly on the world loop.
type Orchestrator struct {
	cfg   Config
	deps  Deps
	queue *Queue
	sem   *semaphore.Weighted
	log   *zap.Logger
	met   metrics.Collector
	wg    sync.WaitGroup
}

func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	met := deps.Metrics
	if met == nil {
		met = metrics.NewNop()
	}
	return &Orchestrator{
		cfg:   cfg,
		deps:  deps,
		queue: NewQueue(),
		sem:   semaphore.NewWeighted(int64(cfg.Workers)),
		log:   log,
		met:   met,
	}
}

// Request starts computing entity's wealth and returns the task id. done is
// called exactly once. An ad-hoc request is refused with ErrDuplicateRequest
// while the same caller has one in flight.
func (o *Orchestrator) Request(ctx context.Context, caller, entity string, kind Kind, done Callback) (uint64, error) {
	if entity == "" {
		return 0, ErrEmptyEntity
	}
	id := o.queue.NextID()
	if kind == KindAdHoc && caller != "" && !o.queue.ClaimCaller(caller, id) {
		o.met.TaskRejected(kind.String())
		return 0, ErrDuplicateRequest
	}
	t := &Task{
		ID:        id,
		Entity:    entity,
		Caller:    caller,
		Kind:      kind,
		StartedAt: o.cfg.Clock(),
		done:      done,
	}
	if o.deps.Engine != nil {
		t.token = o.deps.Engine.Token()
		o.deps.Engine.CreateHolders(id)
	}
	if o.deps.Inventory != nil {
		o.deps.Inventory.CreateHolder(id)
	}
	o.queue.Add(t)
	o.met.TaskStarted(kind.String())
	o.log.Debug("task created", zap.Uint64("task", id), zap.String("entity", entity), zap.Stringer("kind", kind))

	o.wg.Add(1)
	go o.run(ctx, t)
	return id, nil
}

// Clear drops every in-flight task and cancels running scans. Each dropped
// task still reports ErrInterrupted to its callback.
func (o *Orchestrator) Clear() {
	dropped := o.queue.Clear()
	if o.deps.Engine != nil {
		o.deps.Engine.Cancel()
	}
	if len(dropped) > 0 {
		o.log.Info("cleared in-flight tasks", zap.Int("tasks", len(dropped)))
	}
}

// Wait blocks until no scan phase is running. Callbacks may still be queued
// on the world loop.
func (o *Orchestrator) Wait() { o.wg.Wait() }

func (o *Orchestrator) InFlight() int { return o.queue.Len() }

func (o *Orchestrator) HasCaller(caller string) bool { return o.queue.HasCaller(caller) }

// Measure reports the claims of entity without scanning them.
func (o *Orchestrator) Measure(ctx context.Context, entity string) scan.ClaimInfo {
	if o.deps.Claims == nil || o.deps.Engine == nil {
		return scan.ClaimInfo{}
	}
	cfg := o.deps.Engine.Config()
	return scan.Measure(o.deps.Claims.Regions(ctx, entity), cfg.Floor, cfg.Ceiling)
}

func (o *Orchestrator) run(ctx context.Context, t *Task) {
	defer o.wg.Done()

	var g gathered
	if err := o.scanPhase(ctx, t, &g); err != nil {
		o.deliver(t, nil, err)
		return
	}
	if !o.queue.Has(t.ID) {
		o.deliver(t, nil, nil)
		return
	}
	t.setState(StateResolving)
	if err := o.deps.Main.Post(func() { o.resolve(t, &g) }); err != nil {
		o.finish(t, nil, err)
	}
}

func (o *Orchestrator) scanPhase(ctx context.Context, t *Task, out *gathered) error {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer o.sem.Release(1)
	t.setState(StateScanning)

	cats := o.cfg.Categories
	g, gctx := errgroup.WithContext(ctx)
	if cats.Land && o.deps.Engine != nil && o.deps.Claims != nil {
		g.Go(guard(func() error {
			vols := o.deps.Claims.Regions(gctx, t.Entity)
			start := time.Now()
			st, err := o.deps.Engine.ScanVolumes(gctx, t.token, t.ID, vols)
			o.met.ScanCompleted(st.Cells, time.Since(start))
			return err
		}))
	}
	if cats.Balance && o.deps.Balance != nil {
		g.Go(guard(func() error {
			out.balance = o.deps.Balance.Value(gctx, t.Entity)
			return nil
		}))
	}
	if cats.Inventory && o.deps.Inventory != nil {
		g.Go(guard(func() error {
			o.deps.Inventory.Collect(gctx, t.ID, t.Entity)
			return nil
		}))
	}
	if cats.External && o.deps.External != nil {
		g.Go(guard(func() error {
			out.external = o.deps.External.Values(gctx, t.Entity)
			return nil
		}))
	}
	return g.Wait()
}

// resolve runs on the world loop.
func (o *Orchestrator) resolve(t *Task, g *gathered) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("task resolution panicked", zap.Uint64("task", t.ID), zap.Any("panic", r))
			o.finish(t, nil, fmt.Errorf("resolve panic: %v", r))
		}
	}()
	cancelled := func() bool { return !o.queue.Has(t.ID) || t.token.Cancelled() }
	if cancelled() {
		o.finish(t, nil, nil)
		return
	}
	if o.cfg.Categories.Land && o.deps.Engine != nil && o.deps.Inspector != nil {
		for _, s := range o.deps.Engine.Stagers() {
			s.Resolve(t.ID, o.deps.Inspector, cancelled)
		}
	}
	if cancelled() {
		o.finish(t, nil, nil)
		return
	}
	t.setState(StateAssembling)
	o.finish(t, wealth.NewRecord(t.Entity, o.inputs(t, g), o.cfg.Clock()), nil)
}

func (o *Orchestrator) inputs(t *Task, g *gathered) wealth.Inputs {
	in := wealth.Inputs{Balance: g.balance, External: g.external}
	if o.cfg.Categories.Land && o.deps.Engine != nil {
		for _, c := range o.deps.Engine.Consumers() {
			switch c.Category() {
			case wealth.Blocks:
				in.Blocks, in.Counters.Blocks = c.Worth(t.ID), c.Counts(t.ID)
			case wealth.Spawners:
				in.Spawners, in.Counters.Spawners = c.Worth(t.ID), c.Counts(t.ID)
			case wealth.Containers:
				in.Containers, in.Counters.Containers = c.Worth(t.ID), c.Counts(t.ID)
			}
		}
	}
	if o.cfg.Categories.Inventory && o.deps.Inventory != nil {
		in.Inventory, in.Counters.Inventory = o.deps.Inventory.Worth(t.ID), o.deps.Inventory.Counts(t.ID)
	}
	return in
}

// deliver finishes a task from a worker goroutine, moving the callback onto
// the world loop when possible.
func (o *Orchestrator) deliver(t *Task, rec *wealth.Record, err error) {
	if perr := o.deps.Main.Post(func() { o.finish(t, rec, err) }); perr != nil {
		o.finish(t, rec, err)
	}
}

// finish cleans up the task and invokes its callback once. A nil record with
// a nil error means the task was dropped.
func (o *Orchestrator) finish(t *Task, rec *wealth.Record, cause error) {
	if !t.finished.CompareAndSwap(false, true) {
		return
	}
	if o.deps.Engine != nil {
		o.deps.Engine.CleanUp(t.ID)
	}
	if o.deps.Inventory != nil {
		o.deps.Inventory.CleanUp(t.ID)
	}
	o.queue.Remove(t.ID)
	if t.Kind == KindAdHoc && t.Caller != "" {
		o.queue.ReleaseCaller(t.Caller, t.ID)
	}

	res := Result{
		TaskID:  t.ID,
		Kind:    t.Kind,
		Caller:  t.Caller,
		Entity:  t.Entity,
		Record:  rec,
		Elapsed: o.cfg.Clock().Sub(t.StartedAt),
	}
	outcome := metrics.OutcomeDone
	if rec == nil {
		res.Err = ErrInterrupted
		if cause != nil && !errors.Is(cause, ErrInterrupted) {
			res.Err = fmt.Errorf("%w: %w", ErrInterrupted, cause)
		}
		outcome = metrics.OutcomeInterrupted
		t.setState(StateCancelled)
		o.log.Info("calculation interrupted", zap.Uint64("task", t.ID), zap.String("entity", t.Entity), zap.Error(cause))
	} else {
		t.setState(StateDone)
	}
	o.met.TaskFinished(t.Kind.String(), outcome, res.Elapsed)
	if t.done != nil {
		t.done(res)
	}
}

// guard turns a panic in a scan phase goroutine into an error.
func guard(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("scan phase panic: %v", r)
			}
		}()
		return fn()
	}
}
