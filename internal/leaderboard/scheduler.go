// Package leaderboard runs full leaderboard passes: one wealth task per entity,
// strictly one at a time, followed by a rebuild of the ranked view.
package leaderboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wealthtop/internal/cache"
	"wealthtop/internal/metrics"
	"wealthtop/internal/provider"
	"wealthtop/internal/task"
)

// Caller is the caller id leaderboard tasks are requested under.
const Caller = "leaderboard"

type Trigger uint8

const (
	TriggerManual Trigger = iota + 1
	TriggerScheduled
)

func (t Trigger) String() string {
	switch t {
	case TriggerManual:
		return "manual"
	case TriggerScheduled:
		return "scheduled"
	default:
		return "unknown"
	}
}

// Sink receives every finished snapshot. Publish is called off the world loop.
type Sink interface {
	Publish(ctx context.Context, snap *cache.Snapshot) error
}

type SinkFunc func(ctx context.Context, snap *cache.Snapshot) error

func (f SinkFunc) Publish(ctx context.Context, snap *cache.Snapshot) error { return f(ctx, snap) }

// Requester is the part of task.Orchestrator the scheduler uses.
type Requester interface {
	Request(ctx context.Context, caller, entity string, kind task.Kind, done task.Callback) (uint64, error)
}

type Config struct {
	GroupMode bool
	// FilterLastActive drops players inactive for longer than ActiveWindow.
	// It has no effect unless ActiveWindow is positive.
	FilterLastActive bool
	ActiveWindow     time.Duration

	// Interval between scheduled passes; zero or negative disables them.
	Interval     time.Duration
	InitialDelay time.Duration
	// UpdateOnStart runs one scheduled pass after InitialDelay even when
	// Interval is disabled.
	UpdateOnStart bool

	CommandsOnStart []string
	CommandsOnEnd   []string

	Clock func() time.Time
}

type Deps struct {
	Tasks    Requester
	Cache    *cache.Cache
	Players  provider.PlayerDirectory
	Groups   provider.GroupProvider
	Commands provider.CommandRunner
	Sinks    []Sink
	Metrics  metrics.Collector
	Log      *zap.Logger
}

// Status describes the scheduler at one instant.
type Status struct {
	Updating     bool
	RunID        string
	Done         int
	Total        int
	LastDuration time.Duration
	LastRunID    string
}

type Scheduler struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
	met  metrics.Collector

	mu         sync.Mutex
	running    bool
	gen        uint64
	runID      string
	started    time.Time
	ctx        context.Context
	population []string
	pos        int
	recorded   int
	lastDur    time.Duration
	lastRunID  string

	wg sync.WaitGroup
}

func New(cfg Config, deps Deps) *Scheduler {
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
	return &Scheduler{cfg: cfg, deps: deps, log: log, met: met}
}

// IsUpdating reports whether a pass is in progress.
func (s *Scheduler) IsUpdating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Updating:     s.running,
		RunID:        s.runID,
		Done:         s.pos,
		Total:        len(s.population),
		LastDuration: s.lastDur,
		LastRunID:    s.lastRunID,
	}
}

// Trigger starts a pass and returns once it is set up to run in the
// background. ctx bounds the whole pass. A trigger while a pass is running is
// refused with ErrAlreadyRunning.
func (s *Scheduler) Trigger(ctx context.Context, trigger Trigger) error {
	s.mu.Lock()
	if s.running {
		runID := s.runID
		s.mu.Unlock()
		s.met.LeaderboardSkipped(trigger.String())
		s.log.Info("leaderboard update skipped, previous pass still running",
			zap.Stringer("trigger", trigger), zap.String("run", runID))
		return ErrAlreadyRunning
	}
	s.running = true
	s.gen++
	gen := s.gen
	s.runID = uuid.NewString()
	s.started = s.cfg.Clock()
	s.ctx = ctx
	s.population, s.pos, s.recorded = nil, 0, 0
	runID := s.runID
	s.mu.Unlock()

	s.log.Info("leaderboard update started", zap.String("run", runID), zap.Stringer("trigger", trigger))
	s.wg.Add(1)
	go s.setup(ctx, gen)
	return nil
}

// Reset abandons the current pass, if any, and returns to idle. Callbacks of
// tasks from the abandoned pass are ignored.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.running = false
	s.population, s.pos = nil, 0
}

// Wait blocks until background setup and publication goroutines have
// returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

// Start runs scheduled triggers until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	periodic := s.cfg.Interval > 0
	if !periodic && !s.cfg.UpdateOnStart {
		<-ctx.Done()
		return ctx.Err()
	}
	timer := time.NewTimer(max(s.cfg.InitialDelay, 0))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			_ = s.Trigger(ctx, TriggerScheduled)
			if !periodic {
				<-ctx.Done()
				return ctx.Err()
			}
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Scheduler) setup(ctx context.Context, gen uint64) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.abort(gen, fmt.Errorf("setup panic: %v", r))
		}
	}()

	names, err := s.buildPopulation(ctx)
	if err != nil {
		s.abort(gen, err)
		return
	}
	s.dispatch(ctx, s.cfg.CommandsOnStart, nil)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.population = names
	s.mu.Unlock()
	s.log.Debug("leaderboard population built", zap.Int("entities", len(names)))
	s.advance(gen)
}

func (s *Scheduler) buildPopulation(ctx context.Context) ([]string, error) {
	if s.cfg.GroupMode {
		if s.deps.Groups == nil {
			return nil, ErrNoPopulation
		}
		return s.deps.Groups.AllGroups(ctx)
	}
	if s.deps.Players == nil {
		return nil, ErrNoPopulation
	}
	players, err := s.deps.Players.Players(ctx)
	if err != nil {
		return nil, err
	}
	now := s.cfg.Clock()
	filter := s.cfg.FilterLastActive && s.cfg.ActiveWindow > 0
	if s.cfg.FilterLastActive && !filter {
		s.log.Warn("last-active filter ignored, active window is not positive",
			zap.Duration("window", s.cfg.ActiveWindow))
	}
	names := make([]string, 0, len(players))
	for _, p := range players {
		if filter && now.Sub(p.LastActive) > s.cfg.ActiveWindow {
			continue
		}
		names = append(names, p.Name)
	}
	return names, nil
}

func (s *Scheduler) abort(gen uint64, err error) {
	s.mu.Lock()
	if s.gen == gen {
		s.running = false
		s.population, s.pos = nil, 0
	}
	s.mu.Unlock()
	s.log.Error("leaderboard update aborted", zap.Error(err))
}

// advance submits the next entity. Only one leaderboard task is in flight at
// a time: the next one is submitted from the previous one's callback.
func (s *Scheduler) advance(gen uint64) {
	for {
		s.mu.Lock()
		if s.gen != gen || !s.running {
			s.mu.Unlock()
			return
		}
		if s.pos >= len(s.population) {
			s.mu.Unlock()
			s.wg.Add(1)
			go s.complete(gen)
			return
		}
		name := s.population[s.pos]
		s.pos++
		ctx := s.ctx
		s.mu.Unlock()

		_, err := s.deps.Tasks.Request(ctx, Caller, name, task.KindLeaderboard, s.onResult(gen))
		if err == nil {
			return
		}
		s.log.Warn("leaderboard entity skipped", zap.String("entity", name), zap.Error(err))
	}
}

func (s *Scheduler) onResult(gen uint64) task.Callback {
	return func(res task.Result) {
		defer func() {
			if r := recover(); r != nil {
				s.abort(gen, fmt.Errorf("result panic: %v", r))
			}
		}()
		s.mu.Lock()
		stale := s.gen != gen || !s.running
		s.mu.Unlock()
		if stale {
			return
		}
		if res.Err != nil {
			s.log.Warn("leaderboard entity failed", zap.String("entity", res.Entity), zap.Error(res.Err))
		} else {
			s.deps.Cache.Put(res.Entity, res.Record, cache.ViewLeaderboard)
			s.mu.Lock()
			s.recorded++
			s.mu.Unlock()
		}
		s.advance(gen)
	}
}

func (s *Scheduler) complete(gen uint64) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.abort(gen, fmt.Errorf("publish panic: %v", r))
		}
	}()

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	runID, ctx, started := s.runID, s.ctx, s.started
	s.mu.Unlock()

	snap := s.deps.Cache.Rebuild(runID)
	s.dispatch(ctx, s.cfg.CommandsOnEnd, snap)
	for _, sink := range s.deps.Sinks {
		if err := guard(func() error { return sink.Publish(ctx, snap) }); err != nil {
			s.log.Warn("leaderboard sink failed", zap.String("run", runID), zap.Error(err))
		}
	}

	elapsed := s.cfg.Clock().Sub(started)
	s.mu.Lock()
	if s.gen == gen {
		s.running = false
		s.lastDur = elapsed
		s.lastRunID = runID
	}
	s.mu.Unlock()
	s.met.LeaderboardCompleted(snap.Len(), elapsed)
	s.log.Info("leaderboard update finished",
		zap.String("run", runID), zap.Int("entries", snap.Len()), zap.Duration("elapsed", elapsed))
}

func (s *Scheduler) dispatch(ctx context.Context, commands []string, snap *cache.Snapshot) {
	if s.deps.Commands == nil {
		return
	}
	for _, c := range commands {
		expanded := []string{c}
		if snap != nil {
			if err := guard(func() error {
				expanded = ExpandCommand(ctx, c, snap, s.cfg.GroupMode, s.members)
				return nil
			}); err != nil {
				s.log.Warn("leaderboard command not expanded", zap.String("command", c), zap.Error(err))
				continue
			}
		}
		for _, cmd := range expanded {
			if err := guard(func() error { return s.deps.Commands.Run(ctx, cmd) }); err != nil {
				s.log.Warn("leaderboard command failed", zap.String("command", cmd), zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) members(ctx context.Context, group string) []string {
	if s.deps.Groups == nil {
		return nil
	}
	m, err := s.deps.Groups.Members(ctx, group)
	if err != nil {
		return nil
	}
	return m
}

// guard runs fn and turns a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
