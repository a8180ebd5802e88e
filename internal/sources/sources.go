// Package sources turns provider answers into per-entity wealth values. Every
// provider failure is converted to a zero contribution here.
package sources

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"wealthtop/internal/provider"
	"wealthtop/internal/scan"
)

// Members expands an entity into the players it stands for. In player mode an
// entity is itself; in group mode it is the group's member list.
type Members struct {
	GroupMode bool
	Groups    provider.GroupProvider
	Log       *zap.Logger
}

func (m Members) log() *zap.Logger {
	if m.Log == nil {
		return zap.NewNop()
	}
	return m.Log
}

func (m Members) Of(ctx context.Context, name string) []string {
	if !m.GroupMode {
		return []string{name}
	}
	if m.Groups == nil {
		return nil
	}
	members, err := m.Groups.Members(ctx, name)
	if err != nil {
		logProviderErr(m.log(), "groups", name, err)
		return nil
	}
	return members
}

func logProviderErr(log *zap.Logger, source, name string, err error) {
	if errors.Is(err, provider.ErrProviderUnavailable) || errors.Is(err, context.Canceled) {
		log.Debug("provider unavailable", zap.String("source", source), zap.String("entity", name), zap.Error(err))
		return
	}
	log.Warn("provider failed", zap.String("source", source), zap.String("entity", name), zap.Error(err))
}

// Balance sums bank balances over an entity's members.
type Balance struct {
	members  Members
	provider provider.BalanceProvider
}

func NewBalance(p provider.BalanceProvider, members Members) *Balance {
	return &Balance{members: members, provider: p}
}

func (b *Balance) Value(ctx context.Context, name string) float64 {
	if b == nil || b.provider == nil {
		return 0
	}
	var sum float64
	for _, m := range b.members.Of(ctx, name) {
		v, err := b.provider.Balance(ctx, m)
		if err != nil {
			logProviderErr(b.members.log(), "balance", m, err)
			continue
		}
		sum += v
	}
	return sum
}

// Claims resolves the land volumes of an entity. Group land comes from the
// provider directly when it supports groups, otherwise from the members.
type Claims struct {
	members  Members
	provider provider.ClaimRegionProvider
}

func NewClaims(p provider.ClaimRegionProvider, members Members) *Claims {
	return &Claims{members: members, provider: p}
}

func (c *Claims) Regions(ctx context.Context, name string) []scan.Volume {
	if c == nil || c.provider == nil {
		return nil
	}
	if c.members.GroupMode {
		if gp, ok := c.provider.(provider.GroupRegionProvider); ok {
			vols, err := gp.GroupRegions(ctx, name)
			if err != nil {
				logProviderErr(c.members.log(), "claims", name, err)
				return nil
			}
			return vols
		}
	}
	var out []scan.Volume
	for _, m := range c.members.Of(ctx, name) {
		vols, err := c.provider.Regions(ctx, m)
		if err != nil {
			logProviderErr(c.members.log(), "claims", m, err)
			continue
		}
		out = append(out, vols...)
	}
	return out
}
