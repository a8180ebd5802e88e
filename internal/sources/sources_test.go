package sources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"wealthtop/internal/provider/providertest"
	"wealthtop/internal/scan"
	"wealthtop/internal/worth"
)

func TestBalance_PlayerAndGroupMode(t *testing.T) {
	ctx := context.Background()
	bal := providertest.NewBalances()
	bal.Set("alice", 10)
	bal.Set("bob", 2.5)
	bal.Fail["carol"] = true
	groups := providertest.NewGroups()
	groups.Set("red", "alice", "bob", "carol")

	require.Equal(t, 10.0, NewBalance(bal, Members{}).Value(ctx, "alice"))
	require.Equal(t, 0.0, NewBalance(bal, Members{}).Value(ctx, "carol"))
	require.Equal(t, 12.5, NewBalance(bal, Members{GroupMode: true, Groups: groups}).Value(ctx, "red"))
	require.Equal(t, 0.0, NewBalance(bal, Members{GroupMode: true, Groups: groups}).Value(ctx, "blue"))
	require.Equal(t, 0.0, NewBalance(nil, Members{}).Value(ctx, "alice"))
}

func TestClaims_GroupRegionsPreferred(t *testing.T) {
	ctx := context.Background()
	claims := providertest.NewClaims()
	claims.Set("alice", scan.Volume{World: "w", B: scan.Vec3i{X: 1}})
	claims.SetGroup("red", scan.Volume{World: "w", B: scan.Vec3i{X: 9}})
	groups := providertest.NewGroups()
	groups.Set("red", "alice")

	require.Len(t, NewClaims(claims, Members{}).Regions(ctx, "alice"), 1)
	vols := NewClaims(claims, Members{GroupMode: true, Groups: groups}).Regions(ctx, "red")
	require.Equal(t, 9, vols[0].B.X)
	require.Nil(t, NewClaims(nil, Members{}).Regions(ctx, "alice"))
}

func TestInventory_CountsOnlyValuedItems(t *testing.T) {
	ctx := context.Background()
	items := providertest.NewItems()
	items.Set("alice", map[string]int{"diamond": 3, "dirt": 64})
	inv := NewInventory(items, worth.NewTable("inventory", map[string]float64{"DIAMOND": 10}), Members{})

	inv.CreateHolder(1)
	inv.Collect(ctx, 1, "alice")
	inv.Collect(ctx, 2, "alice") // no holder, ignored
	require.Equal(t, map[string]int{"DIAMOND": 3}, inv.Counts(1))
	require.Equal(t, 30.0, inv.Worth(1))
	inv.CleanUp(1)
	require.Empty(t, inv.Counts(1))

	inv.CreateHolder(3)
	inv.Collect(ctx, 3, "offline")
	require.Equal(t, 0.0, inv.Worth(3))
}

func TestExternal_SpecsAndGroupExpansion(t *testing.T) {
	ctx := context.Background()
	exprs := providertest.NewExpressions()
	exprs.Set("kills:alice", 4)
	exprs.Set("kills:bob", 6)
	exprs.Set("bank:red", 100)
	groups := providertest.NewGroups()
	groups.Set("red", "alice", "bob")

	cats := []worth.ExternalCategory{
		{Name: "combat", Sources: []string{"PLAYER;0.5;kills:{name}", "broken"}},
		{Name: "bank", Sources: []string{"GROUP;1;bank:{name}"}},
	}

	player := NewExternal(exprs, cats, Members{})
	require.Equal(t, []string{"combat", "bank"}, player.Names())
	vals := player.Values(ctx, "alice")
	require.Equal(t, 2.0, vals[0].Value)
	require.Equal(t, 0.0, vals[1].Value) // bank:alice is unknown

	group := NewExternal(exprs, cats, Members{GroupMode: true, Groups: groups})
	vals = group.Values(ctx, "red")
	require.Equal(t, 5.0, vals[0].Value)
	require.Equal(t, 100.0, vals[1].Value)

	none := NewExternal(nil, cats, Members{})
	vals = none.Values(ctx, "alice")
	require.Len(t, vals, 2)
	require.Equal(t, 0.0, vals[0].Value)
}
