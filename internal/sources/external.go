package sources

import (
	"context"

	"go.uber.org/zap"

	"wealthtop/internal/provider"
	"wealthtop/internal/wealth"
	"wealthtop/internal/worth"
)

type category struct {
	name  string
	specs []worth.Spec
}

// External evaluates the configured external categories.
type External struct {
	members  Members
	provider provider.ExternalWealthSource
	cats     []category
}

// NewExternal parses every source spec up front. Malformed specs are logged
// and contribute nothing.
func NewExternal(p provider.ExternalWealthSource, cats []worth.ExternalCategory, members Members) *External {
	e := &External{members: members, provider: p}
	for _, c := range cats {
		cat := category{name: c.Name}
		for _, raw := range c.Sources {
			spec, err := worth.ParseSpec(raw)
			if err != nil {
				members.log().Warn("ignoring external source", zap.String("category", c.Name), zap.Error(err))
				continue
			}
			cat.specs = append(cat.specs, spec)
		}
		e.cats = append(e.cats, cat)
	}
	return e
}

// Names lists the configured categories in order.
func (e *External) Names() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.cats))
	for i, c := range e.cats {
		out[i] = c.name
	}
	return out
}

// Values returns one value per configured category. Without a provider every
// category is present and zero.
func (e *External) Values(ctx context.Context, name string) []wealth.Category {
	if e == nil {
		return nil
	}
	out := make([]wealth.Category, 0, len(e.cats))
	var members []string
	if e.members.GroupMode && e.provider != nil {
		members = e.members.Of(ctx, name)
	}
	for _, c := range e.cats {
		var v float64
		if e.provider != nil {
			for _, s := range c.specs {
				v += e.evaluate(ctx, name, members, s)
			}
		}
		out = append(out, wealth.Category{Name: c.name, Kind: wealth.KindExternal, Value: v})
	}
	return out
}

func (e *External) evaluate(ctx context.Context, name string, members []string, s worth.Spec) float64 {
	if !e.members.GroupMode || s.Target == worth.TargetGroup {
		return e.resolve(ctx, name, s)
	}
	var sum float64
	for _, m := range members {
		sum += e.resolve(ctx, m, s)
	}
	return sum
}

func (e *External) resolve(ctx context.Context, name string, s worth.Spec) float64 {
	v, err := e.provider.Resolve(ctx, name, s.Expand(name))
	if err != nil {
		logProviderErr(e.members.log(), "external", name, err)
		return 0
	}
	return v * s.Multiplier
}
