package cache

import (
	"strconv"
	"strings"

	"wealthtop/internal/wealth"
)

const none = "None"

var placeholderCategories = map[string]string{
	"bal":       wealth.Balance,
	"inv":       wealth.Inventory,
	"land":      wealth.Land,
	"block":     wealth.Blocks,
	"spawner":   wealth.Spawners,
	"container": wealth.Containers,
	"total":     wealth.Total,
}

// Placeholder answers a display placeholder query from the last leaderboard
// data. self is the entity asking, used when the query names no entity.
// ok is false for unknown queries.
//
//	top_name_<N>                   name at 1-based position N
//	top_wealth_<N>                 total at position N
//	entity_position[_<name>]       1-based position
//	entity_<category>_wealth[_<name>]
func (c *Cache) Placeholder(params, self string) (string, bool) {
	snap := c.Snapshot()
	switch {
	case strings.HasPrefix(params, "top_name_"):
		r, ok := snap.At(position(strings.TrimPrefix(params, "top_name_")))
		if !ok {
			return none, true
		}
		return r.Name, true

	case strings.HasPrefix(params, "top_wealth_"):
		r, ok := snap.At(position(strings.TrimPrefix(params, "top_wealth_")))
		if !ok {
			return none, true
		}
		return wealth.FormatValue(r.Total()), true

	case params == "entity_position" || strings.HasPrefix(params, "entity_position_"):
		name := entityArg(strings.TrimPrefix(params, "entity_position"), self)
		i, ok := snap.RankOf(name)
		if name == "" || !ok {
			return none, true
		}
		return strconv.Itoa(i + 1), true

	case strings.HasPrefix(params, "entity_"):
		rest := strings.TrimPrefix(params, "entity_")
		cat, arg, found := strings.Cut(rest, "_wealth")
		if !found || cat == "" {
			return "", false
		}
		if mapped, ok := placeholderCategories[cat]; ok {
			cat = mapped
		}
		name := entityArg(arg, self)
		r, ok := c.board.Load(key(name))
		if name == "" || !ok || !r.Has(cat) {
			return "0", true
		}
		return wealth.FormatValue(r.Value(cat)), true
	}
	return "", false
}

func position(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n - 1
}

// entityArg extracts the "_<name>" suffix of a query, falling back to self.
func entityArg(suffix, self string) string {
	if name, ok := strings.CutPrefix(suffix, "_"); ok && name != "" {
		return name
	}
	return self
}
