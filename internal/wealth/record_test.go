package wealth

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRound2_HalfAwayFromZero(t *testing.T) {
	require.Equal(t, 1.01, Round2(1.005000001))
	require.Equal(t, 2.5, Round2(2.499999))
	require.Equal(t, 0.0, Round2(0.004))
	require.Equal(t, 100.0, Round2(99.995000001))
}

func TestNewRecord_TotalIsSumOfRoundedParts(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		in := Inputs{
			Balance:    rng.Float64() * 1000,
			Blocks:     rng.Float64() * 1000,
			Spawners:   rng.Float64() * 100,
			Containers: rng.Float64() * 100,
			Inventory:  rng.Float64() * 50,
			External: []Category{
				{Name: "kills", Value: rng.Float64() * 10},
				{Name: "quests", Value: rng.Float64() * 10},
			},
		}
		r := NewRecord("P", in, time.Unix(0, 0))

		land := Round2(in.Blocks) + Round2(in.Spawners) + Round2(in.Containers)
		want := Round2(in.Balance) + Round2(land) + Round2(in.Inventory) + Round2(in.External[0].Value) + Round2(in.External[1].Value)
		require.InDelta(t, Round2(want), r.Total(), 1e-9)
		require.InDelta(t, Round2(land), r.Land(), 1e-9)
	}
}

func TestRecord_BreakdownOrderAndLookup(t *testing.T) {
	r := NewRecord("Alice", Inputs{
		Balance:  10.126,
		Blocks:   5,
		External: []Category{{Name: "kills", Value: 1.5}, {Name: "kills", Value: 99}},
	}, time.Unix(100, 0))

	var names []string
	for _, c := range r.Categories() {
		names = append(names, c.Name)
	}
	require.Equal(t, []string{Balance, "kills", Blocks, Spawners, Containers, Land, Inventory, Total}, names)
	require.Equal(t, 10.13, r.Value("BALANCE"))
	require.Equal(t, 1.5, r.Value("kills"))
	require.Equal(t, 0.0, r.Value("missing"))
	require.Equal(t, 16.63, r.Total())
	require.Len(t, r.External(), 1)
}

func TestRecord_Expired(t *testing.T) {
	t0 := time.Unix(1000, 0)
	r := NewRecord("A", Inputs{}, t0)
	ttl := 30 * time.Second
	require.False(t, r.Expired(t0.Add(ttl-time.Nanosecond), ttl))
	require.True(t, r.Expired(t0.Add(ttl), ttl))
}

func TestRecord_ChatIsStable(t *testing.T) {
	r := NewRecord("Bob", Inputs{Balance: 3}, time.Unix(0, 0))
	first := r.Chat()
	require.Equal(t, Placeholder{Token: "{name}", Value: "Bob"}, first[0])
	require.Contains(t, first, Placeholder{Token: "{total_wealth}", Value: "3.00"})
	require.Equal(t, first, r.Chat())
}

func TestNewRecord_SkipsExternalWithBuiltinName(t *testing.T) {
	r := NewRecord("P", Inputs{
		Balance:  1,
		Blocks:   2,
		External: []Category{{Name: Land, Value: 5}, {Name: "TOTAL", Value: 7}, {Name: "kills", Value: 1}},
	}, time.Unix(0, 0))

	require.Equal(t, 4.0, r.Total())
	require.Equal(t, 2.0, r.Land())
	require.InDelta(t, r.Total(), r.Value(Balance)+r.Value(Land)+r.Value(Inventory)+r.Value("kills"), 1e-9)
	require.Len(t, r.External(), 1)
	lands := 0
	for _, c := range r.Categories() {
		if c.Name == Land {
			lands++
		}
	}
	require.Equal(t, 1, lands)
}
