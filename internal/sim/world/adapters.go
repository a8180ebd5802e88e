package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"wealthtop/internal/provider"
	"wealthtop/internal/scan"
)

// query runs fn on the loop. A stopped world answers as an unavailable
// provider.
func (w *World) query(ctx context.Context, fn func()) error {
	err := w.Call(ctx, fn)
	if errors.Is(err, ErrStopped) {
		return fmt.Errorf("%w: %w", provider.ErrProviderUnavailable, err)
	}
	return err
}

// ClaimProvider answers player claims.
type ClaimProvider struct{ W *World }

func (c ClaimProvider) Regions(ctx context.Context, name string) ([]scan.Volume, error) {
	var out []scan.Volume
	err := c.W.query(ctx, func() {
		out = append(out, c.W.claims[key(name)]...)
	})
	return out, err
}

// TileClaimProvider also answers group regions from the group's tiles. In
// group mode those regions replace the member claims.
type TileClaimProvider struct{ ClaimProvider }

func (c TileClaimProvider) GroupRegions(ctx context.Context, group string) ([]scan.Volume, error) {
	var out []scan.Volume
	err := c.W.query(ctx, func() {
		if g, ok := c.W.groups[key(group)]; ok {
			out = scan.TileVolumes(g.Tiles, c.W.cfg.TileSize)
		}
	})
	return out, err
}

type Groups struct{ W *World }

func (g Groups) Members(ctx context.Context, group string) ([]string, error) {
	var out []string
	err := g.W.query(ctx, func() {
		if gr, ok := g.W.groups[key(group)]; ok {
			out = append(out, gr.Members...)
		}
	})
	return out, err
}

func (g Groups) AllGroups(ctx context.Context) ([]string, error) {
	var out []string
	err := g.W.query(ctx, func() {
		for _, gr := range g.W.groups {
			out = append(out, gr.Name)
		}
	})
	sort.Strings(out)
	return out, err
}

func (g Groups) GroupOf(ctx context.Context, member string) (string, bool) {
	var (
		name string
		ok   bool
	)
	if err := g.W.query(ctx, func() {
		var k string
		if k, ok = g.W.memberOf[key(member)]; ok {
			name = g.W.groups[k].Name
		}
	}); err != nil {
		return "", false
	}
	return name, ok
}

// Economy reads bank balances. Unknown players hold nothing.
type Economy struct{ W *World }

func (e Economy) Balance(ctx context.Context, name string) (float64, error) {
	var v float64
	err := e.W.query(ctx, func() {
		if p, ok := e.W.player(name); ok {
			v = p.Balance
		}
	})
	return v, err
}

// Inventories reads what online players carry.
type Inventories struct{ W *World }

func (i Inventories) Snapshot(ctx context.Context, name string) (map[string]int, bool) {
	var (
		items map[string]int
		ok    bool
	)
	if err := i.W.query(ctx, func() {
		p, found := i.W.player(name)
		if found && p.Online {
			items, ok = copyCounts(p.Items), true
		}
	}); err != nil {
		return nil, false
	}
	return items, ok
}

var ErrBadExpression = errors.New("world: bad expression")

// StatSource evaluates external wealth expressions: "stat:<key>" reads a
// numeric stat of the named player or group, anything else must be a number.
type StatSource struct{ W *World }

func (s StatSource) Resolve(ctx context.Context, name, expression string) (float64, error) {
	expression = strings.TrimSpace(expression)
	stat, ok := strings.CutPrefix(expression, "stat:")
	if !ok {
		v, err := strconv.ParseFloat(expression, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadExpression, expression)
		}
		return v, nil
	}
	stat = strings.ToLower(strings.TrimSpace(stat))
	var v float64
	err := s.W.query(ctx, func() {
		if p, ok := s.W.player(name); ok {
			v = p.Stats[stat]
			return
		}
		if g, ok := s.W.groups[key(name)]; ok {
			v = g.Stats[stat]
		}
	})
	return v, err
}

type Directory struct{ W *World }

func (d Directory) Players(ctx context.Context) ([]provider.PlayerInfo, error) {
	var out []provider.PlayerInfo
	err := d.W.query(ctx, func() {
		for _, p := range d.W.players {
			out = append(out, provider.PlayerInfo{Name: p.Name, LastActive: p.LastActive})
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// Signs writes rank sign text into the world.
type Signs struct{ W *World }

func (s Signs) WriteSign(ctx context.Context, world string, pos scan.Vec3i, lines [4]string) error {
	var err error
	if cerr := s.W.Call(ctx, func() { err = s.W.WriteSignLines(world, pos, lines) }); cerr != nil {
		return cerr
	}
	return err
}
