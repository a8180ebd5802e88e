package scan

import (
	"maps"

	"github.com/puzpuzpuz/xsync/v4"
)

// Holder accumulates key -> count for one task and one category. A holder is
// only touched by one phase of its task at a time, so it carries no lock.
type Holder struct {
	counts map[string]int
}

func NewHolder() *Holder {
	return &Holder{counts: map[string]int{}}
}

func (h *Holder) Add(key string, n int) {
	if n <= 0 || key == "" {
		return
	}
	h.counts[key] += n
}

// Counts returns a copy of the accumulated counts.
func (h *Holder) Counts() map[string]int {
	if h == nil {
		return map[string]int{}
	}
	return maps.Clone(h.counts)
}

func (h *Holder) Len() int {
	if h == nil {
		return 0
	}
	return len(h.counts)
}

// Holders is the task id -> holder table shared by a consumer's phases.
type Holders struct {
	m *xsync.Map[uint64, *Holder]
}

func NewHolders() *Holders {
	return &Holders{m: xsync.NewMap[uint64, *Holder]()}
}

// Create registers an empty holder for id, keeping an existing one.
func (h *Holders) Create(id uint64) *Holder {
	hd, _ := h.m.LoadOrStore(id, NewHolder())
	return hd
}

func (h *Holders) Get(id uint64) (*Holder, bool) {
	return h.m.Load(id)
}

func (h *Holders) Delete(id uint64) {
	h.m.Delete(id)
}

func (h *Holders) Len() int {
	return h.m.Size()
}

func (h *Holders) Clear() {
	h.m.Clear()
}
