// Package providertest holds in-memory providers for tests.
package providertest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"wealthtop/internal/provider"
	"wealthtop/internal/scan"
)

// Loop is a MainThread backed by one goroutine that runs posted functions in
// order.
type Loop struct {
	ch   chan func()
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

var ErrLoopStopped = errors.New("providertest: loop stopped")

func NewLoop() *Loop {
	l := &Loop{ch: make(chan func(), 1024), stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(l.done)
		for {
			select {
			case <-l.stop:
				return
			case fn := <-l.ch:
				fn()
			}
		}
	}()
	return l
}

func (l *Loop) Post(fn func()) error {
	select {
	case <-l.stop:
		return ErrLoopStopped
	default:
	}
	select {
	case l.ch <- fn:
		return nil
	case <-l.stop:
		return ErrLoopStopped
	}
}

// Sync waits until every function posted before it has run, or the loop
// stops.
func (l *Loop) Sync() {
	ran := make(chan struct{})
	if err := l.Post(func() { close(ran) }); err != nil {
		return
	}
	select {
	case <-ran:
	case <-l.done:
	}
}

// Stop ends the loop; functions still queued are dropped.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.stop) })
	<-l.done
}

// Claims maps entity names to volumes.
type Claims struct {
	mu      sync.Mutex
	regions map[string][]scan.Volume
	groups  map[string][]scan.Volume
	Err     error
}

func NewClaims() *Claims {
	return &Claims{regions: map[string][]scan.Volume{}, groups: map[string][]scan.Volume{}}
}

func (c *Claims) Set(name string, vols ...scan.Volume) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regions[name] = vols
}

func (c *Claims) SetGroup(group string, vols ...scan.Volume) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[group] = vols
}

func (c *Claims) Regions(_ context.Context, name string) ([]scan.Volume, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	return c.regions[name], nil
}

func (c *Claims) GroupRegions(_ context.Context, group string) ([]scan.Volume, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	return c.groups[group], nil
}

// Groups is a static group -> members table.
type Groups struct {
	mu      sync.Mutex
	members map[string][]string
}

func NewGroups() *Groups { return &Groups{members: map[string][]string{}} }

func (g *Groups) Set(group string, members ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[group] = members
}

func (g *Groups) Members(_ context.Context, group string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[group]
	if !ok {
		return nil, provider.ErrProviderUnavailable
	}
	return append([]string(nil), m...), nil
}

func (g *Groups) AllGroups(context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.members))
	for k := range g.members {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (g *Groups) GroupOf(_ context.Context, member string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for group, ms := range g.members {
		for _, m := range ms {
			if m == member {
				return group, true
			}
		}
	}
	return "", false
}

// Balances is a static balance table. Names listed in Fail return
// ErrProviderUnavailable.
type Balances struct {
	mu   sync.Mutex
	m    map[string]float64
	Fail map[string]bool
}

func NewBalances() *Balances { return &Balances{m: map[string]float64{}, Fail: map[string]bool{}} }

func (b *Balances) Set(name string, v float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[name] = v
}

func (b *Balances) Balance(_ context.Context, name string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail[name] {
		return 0, provider.ErrProviderUnavailable
	}
	return b.m[name], nil
}

// Expressions answers external expressions from a fixed table.
type Expressions struct {
	mu sync.Mutex
	m  map[string]float64
}

func NewExpressions() *Expressions { return &Expressions{m: map[string]float64{}} }

func (e *Expressions) Set(expr string, v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.m[expr] = v
}

func (e *Expressions) Resolve(_ context.Context, _ string, expr string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.m[expr]
	if !ok {
		return 0, provider.ErrProviderUnavailable
	}
	return v, nil
}

// Items is a static carried item table.
type Items struct {
	mu sync.Mutex
	m  map[string]map[string]int
}

func NewItems() *Items { return &Items{m: map[string]map[string]int{}} }

func (i *Items) Set(name string, items map[string]int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.m[name] = items
}

func (i *Items) Snapshot(_ context.Context, name string) (map[string]int, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	items, ok := i.m[name]
	if !ok {
		return nil, false
	}
	out := make(map[string]int, len(items))
	for k, v := range items {
		out[k] = v
	}
	return out, true
}

// Directory is a static player list.
type Directory struct {
	mu      sync.Mutex
	players []provider.PlayerInfo
}

func (d *Directory) Set(players ...provider.PlayerInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.players = players
}

func (d *Directory) Players(context.Context) ([]provider.PlayerInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]provider.PlayerInfo(nil), d.players...), nil
}

// Commands records dispatched commands.
type Commands struct {
	mu  sync.Mutex
	ran []string
}

func (c *Commands) Run(_ context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ran = append(c.ran, cmd)
	return nil
}

func (c *Commands) Ran() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ran...)
}
