package sources

import (
	"context"

	"wealthtop/internal/provider"
	"wealthtop/internal/scan"
	"wealthtop/internal/worth"
)

// Inventory counts valued carried items per task. Offline entities carry
// nothing.
type Inventory struct {
	members  Members
	provider provider.CarriedItemSource
	table    worth.Table
	holders  *scan.Holders
}

func NewInventory(p provider.CarriedItemSource, table worth.Table, members Members) *Inventory {
	return &Inventory{members: members, provider: p, table: table, holders: scan.NewHolders()}
}

func (i *Inventory) CreateHolder(id uint64) { i.holders.Create(id) }

func (i *Inventory) CleanUp(id uint64) { i.holders.Delete(id) }

func (i *Inventory) Collect(ctx context.Context, id uint64, name string) {
	if i.provider == nil {
		return
	}
	h, ok := i.holders.Get(id)
	if !ok {
		return
	}
	for _, m := range i.members.Of(ctx, name) {
		items, ok := i.provider.Snapshot(ctx, m)
		if !ok {
			continue
		}
		for item, n := range items {
			item = worth.NormalizeKey(item)
			if i.table.Has(item) {
				h.Add(item, n)
			}
		}
	}
}

func (i *Inventory) Counts(id uint64) map[string]int {
	h, _ := i.holders.Get(id)
	return h.Counts()
}

func (i *Inventory) Worth(id uint64) float64 {
	return i.table.Sum(i.Counts(id))
}
