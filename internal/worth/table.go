package worth

import (
	"sort"
	"strings"
)

// Table maps an upper-cased key (block, mob or item type) to its unit worth.
// A zero Table is valid and values everything at 0.
type Table struct {
	name   string
	values map[string]float64
}

func NewTable(name string, values map[string]float64) Table {
	t := Table{name: name, values: make(map[string]float64, len(values))}
	for k, v := range values {
		k = NormalizeKey(k)
		if k == "" {
			continue
		}
		t.values[k] = v
	}
	return t
}

func NormalizeKey(k string) string {
	return strings.ToUpper(strings.TrimSpace(k))
}

func (t Table) Name() string { return t.name }

func (t Table) Len() int { return len(t.values) }

// Value returns the worth of key, 0 when the key is not listed.
func (t Table) Value(key string) float64 {
	return t.values[key]
}

func (t Table) Has(key string) bool {
	_, ok := t.values[key]
	return ok
}

func (t Table) Keys() []string {
	keys := make([]string, 0, len(t.values))
	for k := range t.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sum values a key -> count map. Keys are visited in sorted order so the
// floating point result does not depend on map iteration.
func (t Table) Sum(counts map[string]int) float64 {
	if len(counts) == 0 || len(t.values) == 0 {
		return 0
	}
	keys := make([]string, 0, len(counts))
	for k, n := range counts {
		if k != "" && n > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var sum float64
	for _, k := range keys {
		sum += t.values[k] * float64(counts[k])
	}
	return sum
}
