package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"wealthtop/internal/provider/providertest"
	"wealthtop/internal/scan"
	"wealthtop/internal/sources"
	"wealthtop/internal/wealth"
	"wealthtop/internal/worth"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	loop      *providertest.Loop
	terrain   *providertest.Terrain
	claims    *providertest.Claims
	balances  *providertest.Balances
	items     *providertest.Items
	exprs     *providertest.Expressions
	engine    *scan.Engine
	inventory *sources.Inventory
	orch      *Orchestrator
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{
		loop:     providertest.NewLoop(),
		terrain:  providertest.NewTerrain("overworld", 0, 4, 1, "GOLD_BLOCK"),
		claims:   providertest.NewClaims(),
		balances: providertest.NewBalances(),
		items:    providertest.NewItems(),
		exprs:    providertest.NewExpressions(),
	}
	f.engine = scan.NewEngine(scan.EngineConfig{Floor: 0, Ceiling: 4}, f.terrain, nil,
		scan.NewBlockConsumer(worth.NewTable("blocks", map[string]float64{"GOLD_BLOCK": 0.5})),
		scan.NewSpawnerConsumer(worth.NewTable("spawners", map[string]float64{"ZOMBIE": 10})),
		scan.NewContainerConsumer(worth.NewTable("containers", map[string]float64{"DIAMOND": 2}), []string{"CHEST"}),
	)
	members := sources.Members{}
	f.inventory = sources.NewInventory(f.items, worth.NewTable("inventory", map[string]float64{"EMERALD": 1.25}), members)
	deps := Deps{
		Main:      f.loop,
		Inspector: f.terrain,
		Engine:    f.engine,
		Claims:    sources.NewClaims(f.claims, members),
		Balance:   sources.NewBalance(f.balances, members),
		Inventory: f.inventory,
		External: sources.NewExternal(f.exprs, []worth.ExternalCategory{
			{Name: "kills", Sources: []string{"PLAYER;0.1;kills:{name}"}},
		}, members),
	}
	if mutate != nil {
		mutate(&deps)
	}
	f.orch = New(Config{
		Workers:    2,
		Categories: Categories{Land: true, Balance: true, Inventory: true, External: true},
	}, deps)
	t.Cleanup(func() {
		f.orch.Clear()
		f.orch.Wait()
		f.loop.Stop()
	})
	return f
}

func collect() (Callback, <-chan Result) {
	ch := make(chan Result, 8)
	return func(r Result) { ch <- r }, ch
}

func await(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for task result")
		return Result{}
	}
}

func TestRequest_AssemblesAllCategories(t *testing.T) {
	f := newFixture(t, nil)
	f.claims.Set("alice", scan.Volume{World: "overworld", A: scan.Vec3i{X: 0, Z: 0}, B: scan.Vec3i{X: 3, Z: 3}})
	f.terrain.SetSpawner(scan.Vec3i{X: 1, Y: 2, Z: 1}, "zombie", 2)
	f.terrain.SetContainer(scan.Vec3i{X: 2, Y: 2, Z: 2}, "CHEST", map[string]int{"DIAMOND": 5})
	f.balances.Set("alice", 100.006)
	f.items.Set("alice", map[string]int{"EMERALD": 3, "DIRT": 10})
	f.exprs.Set("kills:alice", 42)

	done, ch := collect()
	id, err := f.orch.Request(context.Background(), "console", "alice", KindAdHoc, done)
	require.NoError(t, err)
	require.NotZero(t, id)

	res := await(t, ch)
	require.NoError(t, res.Err)
	require.Equal(t, id, res.TaskID)
	rec := res.Record
	require.Equal(t, "alice", rec.Name)
	require.Equal(t, 100.01, rec.Value(wealth.Balance))
	require.Equal(t, 8.0, rec.Value(wealth.Blocks)) // 16 gold blocks at y=0
	require.Equal(t, 20.0, rec.Value(wealth.Spawners))
	require.Equal(t, 10.0, rec.Value(wealth.Containers))
	require.Equal(t, 38.0, rec.Land())
	require.Equal(t, 3.75, rec.Value(wealth.Inventory))
	require.Equal(t, 4.2, rec.Value("kills"))
	require.Equal(t, 145.96, rec.Total())
	require.Equal(t, map[string]int{"ZOMBIE": 2}, rec.Counters.Spawners)

	f.orch.Wait()
	f.loop.Sync()
	require.Zero(t, f.orch.InFlight())
	require.False(t, f.orch.HasCaller("console"))
}

func TestRequest_DuplicateCallerRejectedUntilDone(t *testing.T) {
	f := newFixture(t, nil)
	f.claims.Set("alice", scan.Volume{World: "overworld", B: scan.Vec3i{X: 1, Z: 1}})

	release := make(chan struct{})
	var once sync.Once
	f.terrain.BeforeColumn = func() { once.Do(func() { <-release }) }

	done, ch := collect()
	_, err := f.orch.Request(context.Background(), "bob", "alice", KindAdHoc, done)
	require.NoError(t, err)

	_, err = f.orch.Request(context.Background(), "bob", "alice", KindAdHoc, done)
	require.ErrorIs(t, err, ErrDuplicateRequest)

	// Other callers and leaderboard tasks are not affected.
	done2, ch2 := collect()
	_, err = f.orch.Request(context.Background(), "carol", "alice", KindAdHoc, done2)
	require.NoError(t, err)

	close(release)
	require.NoError(t, await(t, ch).Err)
	require.NoError(t, await(t, ch2).Err)

	_, err = f.orch.Request(context.Background(), "bob", "alice", KindAdHoc, done)
	require.NoError(t, err)
	require.NoError(t, await(t, ch).Err)
}

func TestClear_InterruptsInFlightTasks(t *testing.T) {
	f := newFixture(t, nil)
	f.claims.Set("alice", scan.Volume{World: "overworld", B: scan.Vec3i{X: 40, Z: 40}})

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.terrain.BeforeColumn = func() {
		once.Do(func() {
			close(started)
			<-release
		})
	}

	done, ch := collect()
	_, err := f.orch.Request(context.Background(), "bob", "alice", KindLeaderboard, done)
	require.NoError(t, err)
	<-started

	f.orch.Clear()
	require.Zero(t, f.orch.InFlight())
	close(release)

	res := await(t, ch)
	require.ErrorIs(t, res.Err, ErrInterrupted)
	require.Nil(t, res.Record)

	// A task requested after the clear runs normally.
	f.terrain.BeforeColumn = nil
	_, err = f.orch.Request(context.Background(), "bob", "alice", KindAdHoc, done)
	require.NoError(t, err)
	require.NoError(t, await(t, ch).Err)
}

type panicBalance struct{}

func (panicBalance) Balance(context.Context, string) (float64, error) { panic("boom") }

func TestRequest_PanicBecomesInterrupted(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Balance = sources.NewBalance(panicBalance{}, sources.Members{})
	})
	done, ch := collect()
	_, err := f.orch.Request(context.Background(), "bob", "alice", KindAdHoc, done)
	require.NoError(t, err)

	res := await(t, ch)
	require.ErrorIs(t, res.Err, ErrInterrupted)
	f.orch.Wait()
	f.loop.Sync()
	require.False(t, f.orch.HasCaller("bob"))
}

func TestRequest_EmptyEntity(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.orch.Request(context.Background(), "bob", "", KindAdHoc, nil)
	require.ErrorIs(t, err, ErrEmptyEntity)
}

func TestQueue_ReleaseCallerKeepsNewerClaim(t *testing.T) {
	q := NewQueue()
	require.True(t, q.ClaimCaller("bob", 1))
	q.Clear()
	require.True(t, q.ClaimCaller("bob", 2))
	q.ReleaseCaller("bob", 1)
	require.True(t, q.HasCaller("bob"))
	q.ReleaseCaller("bob", 2)
	require.False(t, q.HasCaller("bob"))
	require.Less(t, q.NextID(), q.NextID())
}
