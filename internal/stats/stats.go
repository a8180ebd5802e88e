// Package stats answers one-shot wealth lookups according to the configured
// calculation mode.
package stats

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"wealthtop/internal/cache"
	"wealthtop/internal/task"
	"wealthtop/internal/wealth"
)

// ErrNoLeaderboard is reported in cache-only mode when no fresh record exists.
var ErrNoLeaderboard = errors.New("stats: no cached wealth for entity")

// Mode selects where lookups are answered from.
type Mode int

const (
	// ModeRealTime always computes.
	ModeRealTime Mode = iota
	// ModeCached serves the freshest cached record and computes on a miss.
	ModeCached
	// ModeCacheOnly never computes.
	ModeCacheOnly
)

func (m Mode) String() string {
	switch m {
	case ModeRealTime:
		return "realtime"
	case ModeCached:
		return "cached"
	case ModeCacheOnly:
		return "cache-only"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func (m Mode) Valid() bool { return m >= ModeRealTime && m <= ModeCacheOnly }

// Reply is one lookup outcome. Cached is true when Record came from the
// cache rather than a fresh computation.
type Reply struct {
	Entity string
	Record *wealth.Record
	Cached bool
}

// Requester is the part of task.Orchestrator the service uses.
type Requester interface {
	Request(ctx context.Context, caller, entity string, kind task.Kind, done task.Callback) (uint64, error)
}

type Service struct {
	mode  Mode
	tasks Requester
	cache *cache.Cache
	log   *zap.Logger
}

func New(mode Mode, tasks Requester, c *cache.Cache, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{mode: mode, tasks: tasks, cache: c, log: log}
}

func (s *Service) Mode() Mode { return s.mode }

// Lookup answers the wealth of name for caller. done is called exactly once:
// synchronously for cache answers and refusals, from the task callback
// otherwise. The returned error is the same one done receives when the
// lookup could not start.
func (s *Service) Lookup(ctx context.Context, caller, name string, done func(Reply, error)) error {
	if s.mode != ModeRealTime {
		if rec, ok := s.cache.Freshest(name); ok {
			s.cache.Put(name, rec, cache.ViewStats)
			done(Reply{Entity: name, Record: rec, Cached: true}, nil)
			return nil
		}
		if s.mode == ModeCacheOnly {
			done(Reply{Entity: name}, ErrNoLeaderboard)
			return ErrNoLeaderboard
		}
	}

	_, err := s.tasks.Request(ctx, caller, name, task.KindAdHoc, func(res task.Result) {
		if res.Err != nil {
			s.log.Debug("wealth lookup failed", zap.String("entity", name), zap.Error(res.Err))
			done(Reply{Entity: name}, res.Err)
			return
		}
		s.cache.Put(name, res.Record, cache.ViewStats)
		done(Reply{Entity: name, Record: res.Record}, nil)
	})
	if err != nil {
		done(Reply{Entity: name}, err)
		return err
	}
	return nil
}
