package cache

import (
	"sort"
	"strings"
	"time"

	"wealthtop/internal/wealth"
)

// Snapshot is an immutable ranked view: records by descending total with a
// name -> 0-based rank index.
type Snapshot struct {
	RunID   string
	BuiltAt time.Time

	entries []*wealth.Record
	rank    map[string]int
}

// Rank sorts records by descending total, ties by name, drops records below
// minWealth and keeps at most maxPositions entries (negative keeps all).
func Rank(records []*wealth.Record, maxPositions int, minWealth float64) *Snapshot {
	entries := make([]*wealth.Record, 0, len(records))
	for _, r := range records {
		if r == nil || r.Total() < minWealth {
			continue
		}
		entries = append(entries, r)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if a, b := entries[i].Total(), entries[j].Total(); a != b {
			return a > b
		}
		return entries[i].Name < entries[j].Name
	})
	if maxPositions >= 0 && len(entries) > maxPositions {
		entries = entries[:maxPositions]
	}
	s := &Snapshot{entries: entries, rank: make(map[string]int, len(entries))}
	for i, r := range entries {
		s.rank[key(r.Name)] = i
	}
	return s
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// At returns the record at 0-based rank i.
func (s *Snapshot) At(i int) (*wealth.Record, bool) {
	if s == nil || i < 0 || i >= len(s.entries) {
		return nil, false
	}
	return s.entries[i], true
}

// RankOf returns the 0-based rank of name.
func (s *Snapshot) RankOf(name string) (int, bool) {
	if s == nil {
		return 0, false
	}
	i, ok := s.rank[key(name)]
	return i, ok
}

// Entries returns the ranked records.
func (s *Snapshot) Entries() []*wealth.Record {
	if s == nil {
		return nil
	}
	return append([]*wealth.Record(nil), s.entries...)
}

// Names lists entity names in rank order.
func (s *Snapshot) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.entries))
	for i, r := range s.entries {
		out[i] = r.Name
	}
	return out
}

func key(name string) string { return strings.ToUpper(name) }
