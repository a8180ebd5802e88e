package board

import (
	"time"

	"wealthtop/internal/cache"
)

// Version is the board protocol version.
const Version = "1"

const (
	TypeSubscribe   = "SUBSCRIBE"
	TypeLeaderboard = "LEADERBOARD"
)

// SubscribeMsg is the first client message and may be re-sent to change the
// number of rows pushed.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Limit           int    `json:"limit"`
}

// BoardMsg is pushed after every leaderboard pass and once on subscribe.
type BoardMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	RunID           string     `json:"run_id"`
	BuiltAt         time.Time  `json:"built_at"`
	Size            int        `json:"size"`
	Entries         []EntryMsg `json:"entries"`
}

type EntryMsg struct {
	Position   int                `json:"position"`
	Name       string             `json:"name"`
	Total      float64            `json:"total"`
	Categories map[string]float64 `json:"categories,omitempty"`
}

// NewBoardMsg renders the first limit rows of snap.
func NewBoardMsg(snap *cache.Snapshot, limit int) BoardMsg {
	m := BoardMsg{Type: TypeLeaderboard, ProtocolVersion: Version, Size: snap.Len(), Entries: []EntryMsg{}}
	if snap == nil {
		return m
	}
	m.RunID, m.BuiltAt = snap.RunID, snap.BuiltAt
	n := min(limit, snap.Len())
	for i := 0; i < n; i++ {
		r, _ := snap.At(i)
		e := EntryMsg{Position: i + 1, Name: r.Name, Total: r.Total(), Categories: map[string]float64{}}
		for _, c := range r.Categories() {
			e.Categories[c.Name] = c.Value
		}
		m.Entries = append(m.Entries, e)
	}
	return m
}

func normalizeSubscribe(sub *SubscribeMsg) {
	if sub.Limit <= 0 {
		sub.Limit = 10
	}
	if sub.Limit > 1000 {
		sub.Limit = 1000
	}
}
