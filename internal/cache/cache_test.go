package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wealthtop/internal/wealth"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func rec(name string, balance float64, at time.Time) *wealth.Record {
	return wealth.NewRecord(name, wealth.Inputs{Balance: balance}, at)
}

func newCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestFreshest_ExpiresAtTTL(t *testing.T) {
	clk := &clock{now: time.Unix(1_000, 0)}
	c := newCache(t, Config{TTL: time.Minute, Clock: clk.Now})
	c.Put("alice", rec("alice", 1, clk.now), ViewStats)

	clk.now = clk.now.Add(time.Minute - time.Second)
	got, ok := c.Freshest("ALICE")
	require.True(t, ok)
	require.Equal(t, "alice", got.Name)

	clk.now = clk.now.Add(time.Second)
	_, ok = c.Freshest("alice")
	require.False(t, ok)
}

func TestFreshest_PrefersNewestAcrossViews(t *testing.T) {
	clk := &clock{now: time.Unix(1_000, 0)}
	c := newCache(t, Config{TTL: time.Hour, Clock: clk.Now})
	c.Put("bob", rec("bob", 1, clk.now.Add(-10*time.Minute)), ViewStats)
	c.Put("bob", rec("bob", 2, clk.now.Add(-time.Minute)), ViewLeaderboard)

	got, ok := c.Freshest("bob")
	require.True(t, ok)
	require.Equal(t, 2.0, got.Total())
}

func TestFreshest_LeaderboardWinsTie(t *testing.T) {
	clk := &clock{now: time.Unix(1_000, 0)}
	c := newCache(t, Config{TTL: time.Hour, Clock: clk.Now})
	c.Put("bob", rec("bob", 1, clk.now), ViewStats)
	c.Put("bob", rec("bob", 2, clk.now), ViewLeaderboard)

	got, ok := c.Freshest("bob")
	require.True(t, ok)
	require.Equal(t, 2.0, got.Total())
}

func TestFreshest_ZeroTTLNeverFresh(t *testing.T) {
	c := newCache(t, Config{})
	c.Put("bob", rec("bob", 1, time.Now()), ViewStats)
	_, ok := c.Freshest("bob")
	require.False(t, ok)
}

func TestRebuild_MinimumWealthAndRanking(t *testing.T) {
	now := time.Unix(5, 0)
	c := newCache(t, Config{TTL: time.Hour, MaxPositions: -1, MinWealth: 1.0, Clock: func() time.Time { return now }})
	c.Put("A", rec("A", 100, now), ViewLeaderboard)
	c.Put("B", rec("B", 250.5, now), ViewLeaderboard)
	c.Put("C", rec("C", 0, now), ViewLeaderboard)

	s := c.Rebuild("run-1")
	require.Same(t, s, c.Snapshot())
	require.Equal(t, []string{"B", "A"}, s.Names())
	i, ok := s.RankOf("B")
	require.True(t, ok)
	require.Equal(t, 0, i)
	i, ok = s.RankOf("a")
	require.True(t, ok)
	require.Equal(t, 1, i)
	_, ok = s.RankOf("C")
	require.False(t, ok)
	require.Equal(t, "run-1", s.RunID)
}

func TestRank_TruncatesAndBreaksTiesByName(t *testing.T) {
	now := time.Unix(0, 0)
	recs := []*wealth.Record{rec("zed", 5, now), rec("amy", 5, now), rec("max", 9, now), rec("low", 1, now)}
	s := Rank(recs, 3, 0)
	require.Equal(t, []string{"max", "amy", "zed"}, s.Names())
	_, ok := s.At(3)
	require.False(t, ok)
	require.Equal(t, 0, Rank(recs, 0, 0).Len())
}

func TestSnapshot_EmptyBeforeFirstRebuild(t *testing.T) {
	c := newCache(t, Config{})
	require.NotNil(t, c.Snapshot())
	require.Zero(t, c.Snapshot().Len())
	_, ok := c.Snapshot().At(0)
	require.False(t, ok)
}

func TestReset(t *testing.T) {
	c := newCache(t, Config{TTL: time.Hour, MaxPositions: -1})
	c.Put("A", rec("A", 1, time.Now()), ViewLeaderboard)
	c.Put("A", rec("A", 1, time.Now()), ViewStats)
	c.Rebuild("r")
	c.Reset()
	_, ok := c.Freshest("A")
	require.False(t, ok)
	require.Zero(t, c.Snapshot().Len())
}

func TestPlaceholder(t *testing.T) {
	now := time.Unix(0, 0)
	c := newCache(t, Config{TTL: time.Hour, MaxPositions: -1})
	c.Put("alice", wealth.NewRecord("alice", wealth.Inputs{Balance: 10, Blocks: 2.5, External: []wealth.Category{{Name: "kills", Value: 3}}}, now), ViewLeaderboard)
	c.Put("bob", rec("bob", 50, now), ViewLeaderboard)
	c.Rebuild("r")

	cases := map[string]string{
		"top_name_1":                 "bob",
		"top_name_2":                 "alice",
		"top_name_3":                 "None",
		"top_name_x":                 "None",
		"top_wealth_2":               "15.50",
		"entity_position":            "2",
		"entity_position_bob":        "1",
		"entity_position_carol":      "None",
		"entity_bal_wealth":          "10.00",
		"entity_land_wealth_alice":   "2.50",
		"entity_kills_wealth":        "3.00",
		"entity_total_wealth_bob":    "50.00",
		"entity_spawner_wealth_nope": "0",
	}
	for q, want := range cases {
		got, ok := c.Placeholder(q, "alice")
		require.True(t, ok, q)
		require.Equal(t, want, got, q)
	}
	_, ok := c.Placeholder("unknown_query", "alice")
	require.False(t, ok)
}
