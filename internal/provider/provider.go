// Package provider declares the host capabilities wealth computation depends
// on. Every provider may be absent; callers treat a nil provider as "no
// contribution".
package provider

import (
	"context"
	"time"

	"wealthtop/internal/scan"
)

// ClaimRegionProvider lists the land volumes an entity holds.
type ClaimRegionProvider interface {
	Regions(ctx context.Context, name string) ([]scan.Volume, error)
}

// GroupRegionProvider is implemented by claim providers that know group land
// directly (tile based claims) instead of through members.
type GroupRegionProvider interface {
	GroupRegions(ctx context.Context, group string) ([]scan.Volume, error)
}

type GroupProvider interface {
	Members(ctx context.Context, group string) ([]string, error)
	AllGroups(ctx context.Context) ([]string, error)
	GroupOf(ctx context.Context, member string) (string, bool)
}

type BalanceProvider interface {
	Balance(ctx context.Context, name string) (float64, error)
}

// ExternalWealthSource evaluates an already substituted expression.
type ExternalWealthSource interface {
	Resolve(ctx context.Context, name, expression string) (float64, error)
}

// CarriedItemSource returns the item counts an entity carries; ok is false
// when the entity is unknown or offline.
type CarriedItemSource interface {
	Snapshot(ctx context.Context, name string) (map[string]int, bool)
}

type PlayerInfo struct {
	Name       string
	LastActive time.Time
}

type PlayerDirectory interface {
	Players(ctx context.Context) ([]PlayerInfo, error)
}

// MainThread schedules fn on the single-threaded world context.
type MainThread interface {
	Post(fn func()) error
}

// CommandRunner dispatches a console command on the host.
type CommandRunner interface {
	Run(ctx context.Context, command string) error
}
