// Package cache keeps computed wealth records and the ranked leaderboard view.
package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v4"

	"wealthtop/internal/wealth"
)

// View names the logical cache a record is stored under.
type View uint8

const (
	// ViewStats holds records produced by ad-hoc lookups.
	ViewStats View = iota + 1
	// ViewLeaderboard holds records produced by leaderboard passes.
	ViewLeaderboard
)

type Config struct {
	// TTL is how long a record stays fresh. Zero disables freshness: every
	// record is expired.
	TTL time.Duration
	// MaxPositions caps the ranked view; negative means unlimited.
	MaxPositions int
	// MinWealth excludes records with a lower total from the ranked view.
	MinWealth float64
	// StatsCapacity bounds the ad-hoc view. Defaults to 4096.
	StatsCapacity int
	Clock         func() time.Time
}

// Cache holds the stats and leaderboard views and the current ranked
// snapshot. Writes happen on the world loop after assembly; reads may come
// from any goroutine.
type Cache struct {
	cfg   Config
	stats *lru.Cache[string, *wealth.Record]
	board *xsync.Map[string, *wealth.Record]
	snap  atomic.Pointer[Snapshot]
}

func New(cfg Config) (*Cache, error) {
	if cfg.StatsCapacity <= 0 {
		cfg.StatsCapacity = 4096
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	stats, err := lru.New[string, *wealth.Record](cfg.StatsCapacity)
	if err != nil {
		return nil, fmt.Errorf("stats cache: %w", err)
	}
	c := &Cache{cfg: cfg, stats: stats, board: xsync.NewMap[string, *wealth.Record]()}
	c.snap.Store(&Snapshot{rank: map[string]int{}})
	return c, nil
}

func (c *Cache) Config() Config { return c.cfg }

// Put stores rec for name under view, replacing any older record.
func (c *Cache) Put(name string, rec *wealth.Record, view View) {
	if rec == nil {
		return
	}
	switch view {
	case ViewStats:
		c.stats.Add(key(name), rec)
	case ViewLeaderboard:
		c.board.Store(key(name), rec)
	}
}

// Get returns the record stored under view without a freshness check.
func (c *Cache) Get(name string, view View) (*wealth.Record, bool) {
	switch view {
	case ViewStats:
		return c.stats.Get(key(name))
	case ViewLeaderboard:
		return c.board.Load(key(name))
	}
	return nil, false
}

// Freshest returns the newest non-expired record for name across both views.
func (c *Cache) Freshest(name string) (*wealth.Record, bool) {
	now := c.cfg.Clock()
	var best *wealth.Record
	for _, v := range []View{ViewStats, ViewLeaderboard} {
		r, ok := c.Get(name, v)
		if !ok || r.Expired(now, c.cfg.TTL) {
			continue
		}
		// The leaderboard view is checked last and wins ties.
		if best == nil || !r.CreatedAt.Before(best.CreatedAt) {
			best = r
		}
	}
	return best, best != nil
}

// Rebuild ranks every leaderboard record and publishes the result as the
// current snapshot.
func (c *Cache) Rebuild(runID string) *Snapshot {
	records := make([]*wealth.Record, 0, c.board.Size())
	c.board.Range(func(_ string, r *wealth.Record) bool {
		records = append(records, r)
		return true
	})
	s := Rank(records, c.cfg.MaxPositions, c.cfg.MinWealth)
	s.RunID = runID
	s.BuiltAt = c.cfg.Clock()
	c.snap.Store(s)
	return s
}

// Snapshot returns the current ranked view. It is never nil.
func (c *Cache) Snapshot() *Snapshot {
	return c.snap.Load()
}

// Reset empties both views and the ranked view.
func (c *Cache) Reset() {
	c.stats.Purge()
	c.board.Clear()
	c.snap.Store(&Snapshot{rank: map[string]int{}})
}
