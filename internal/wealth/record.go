package wealth

import (
	"math"
	"strings"
	"sync"
	"time"
)

// Category names used in a record breakdown. External categories use the
// name configured for them.
const (
	Balance    = "balance"
	Blocks     = "blocks"
	Spawners   = "spawners"
	Containers = "containers"
	Inventory  = "inventory"
	Land       = "land"
	Total      = "total"
)

// Reserved reports whether name is one of the built-in category names an
// external category may not reuse.
func Reserved(name string) bool {
	switch strings.ToLower(name) {
	case Balance, Blocks, Spawners, Containers, Inventory, Land, Total:
		return true
	}
	return false
}

// Kind tells where a category value came from.
type Kind uint8

const (
	KindBalance Kind = iota + 1
	KindScan
	KindCarried
	KindExternal
	KindDerived
)

func (k Kind) String() string {
	switch k {
	case KindBalance:
		return "balance"
	case KindScan:
		return "scan"
	case KindCarried:
		return "carried"
	case KindExternal:
		return "external"
	case KindDerived:
		return "derived"
	default:
		return "unknown"
	}
}

type Category struct {
	Name  string  `json:"name"`
	Kind  Kind    `json:"kind"`
	Value float64 `json:"value"`
}

// Counters are the per-type counts behind the scan and carried categories.
type Counters struct {
	Blocks     map[string]int `json:"blocks,omitempty"`
	Spawners   map[string]int `json:"spawners,omitempty"`
	Containers map[string]int `json:"containers,omitempty"`
	Inventory  map[string]int `json:"inventory,omitempty"`
}

// Inputs are the raw, unrounded category values gathered by one task.
type Inputs struct {
	Balance    float64
	Blocks     float64
	Spawners   float64
	Containers float64
	Inventory  float64
	External   []Category
	Counters   Counters
}

// Record is the immutable wealth breakdown of one entity at CreatedAt.
type Record struct {
	Name      string
	CreatedAt time.Time
	Counters  Counters

	cats  []Category
	index map[string]int

	chatOnce sync.Once
	chat     []Placeholder
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// NewRecord rounds every category independently and derives land and total
// from the rounded parts, so the stored total always equals the sum of the
// stored categories.
func NewRecord(name string, in Inputs, createdAt time.Time) *Record {
	r := &Record{
		Name:      name,
		CreatedAt: createdAt,
		Counters:  in.Counters,
		index:     map[string]int{},
	}
	add := func(name string, kind Kind, v float64) float64 {
		v = Round2(v)
		r.index[name] = len(r.cats)
		r.cats = append(r.cats, Category{Name: name, Kind: kind, Value: v})
		return v
	}

	total := add(Balance, KindBalance, in.Balance)
	for _, c := range in.External {
		if _, dup := r.index[c.Name]; dup || c.Name == "" || Reserved(c.Name) {
			continue
		}
		total += add(c.Name, KindExternal, c.Value)
	}
	land := add(Blocks, KindScan, in.Blocks)
	land += add(Spawners, KindScan, in.Spawners)
	land += add(Containers, KindScan, in.Containers)
	total += add(Land, KindDerived, land)
	total += add(Inventory, KindCarried, in.Inventory)
	add(Total, KindDerived, total)
	return r
}

// Value returns a category value, 0 for unknown categories.
func (r *Record) Value(category string) float64 {
	if r == nil {
		return 0
	}
	i, ok := r.index[strings.ToLower(category)]
	if !ok {
		i, ok = r.index[category]
	}
	if !ok {
		return 0
	}
	return r.cats[i].Value
}

func (r *Record) Has(category string) bool {
	if r == nil {
		return false
	}
	_, ok := r.index[category]
	return ok
}

func (r *Record) Total() float64 { return r.Value(Total) }
func (r *Record) Land() float64  { return r.Value(Land) }

// Categories returns the breakdown in display order.
func (r *Record) Categories() []Category {
	if r == nil {
		return nil
	}
	out := make([]Category, len(r.cats))
	copy(out, r.cats)
	return out
}

// External returns only the external categories, in configured order.
func (r *Record) External() []Category {
	var out []Category
	for _, c := range r.cats {
		if c.Kind == KindExternal {
			out = append(out, c)
		}
	}
	return out
}

// Expired reports whether the record is at least ttl old at now.
func (r *Record) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.CreatedAt) >= ttl
}
