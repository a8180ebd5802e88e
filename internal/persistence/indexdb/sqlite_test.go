package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"wealthtop/internal/cache"
	"wealthtop/internal/wealth"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func ranked(runID string, recs ...*wealth.Record) *cache.Snapshot {
	s := cache.Rank(recs, -1, 0)
	s.RunID = runID
	s.BuiltAt = time.Unix(1_700_000_000, 0)
	return s
}

func TestSQLiteIndex_PublishWritesStandings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wealth.db")

	idx, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	at := time.Unix(1_700_000_000, 0)
	alice := wealth.NewRecord("alice", wealth.Inputs{
		Balance:  10,
		Blocks:   2.5,
		External: []wealth.Category{{Name: "kills", Value: 4}},
	}, at)
	bob := wealth.NewRecord("bob", wealth.Inputs{Balance: 99}, at)
	ctx := context.Background()
	if err := idx.Publish(ctx, ranked("run-1", alice, bob)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := idx.Publish(ctx, ranked("run-2", alice)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if st := idx.Stats(); st.WrittenTotal != 2 || st.DropTotal != 0 {
		t.Fatalf("stats mismatch: %+v", st)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		name     string
		position int
		total    float64
	)
	row := db.QueryRow(`SELECT name,position,total FROM standings WHERE run_id='run-1' AND position=1`)
	if err := row.Scan(&name, &position, &total); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if name != "bob" || position != 1 || total != 99 {
		t.Fatalf("row mismatch: name=%q position=%d total=%v", name, position, total)
	}

	var passes int
	if err := db.QueryRow(`SELECT COUNT(*) FROM passes`).Scan(&passes); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if passes != 2 {
		t.Fatalf("passes=%d want=2", passes)
	}
}

func TestSQLiteIndex_Latest(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "wealth.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()

	at := time.Unix(1_700_000_000, 0).UTC()
	rec := wealth.NewRecord("carol", wealth.Inputs{
		Balance:    1,
		Spawners:   2,
		Containers: 3,
		Inventory:  4,
		External:   []wealth.Category{{Name: "quests", Value: 5}},
	}, at)
	if err := idx.Publish(context.Background(), ranked("r", rec)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	var st Standing
	deadline := time.Now().Add(5 * time.Second)
	for {
		st, err = idx.Latest(context.Background(), "carol")
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if st.Land != 5 || st.Total != 15 || st.Position != 1 || st.RunID != "r" {
		t.Fatalf("standing mismatch: %+v", st)
	}
	if st.External["quests"] != 5 {
		t.Fatalf("external mismatch: %v", st.External)
	}
	if !st.ComputedAt.Equal(at) {
		t.Fatalf("computed_at=%v want=%v", st.ComputedAt, at)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1), log: zap.NewNop()}
	s.ch <- req{}
	_ = s.Publish(context.Background(), ranked("dropped"))

	st := s.Stats()
	if st.DropTotal != 1 {
		t.Fatalf("DropTotal=%d want=1", st.DropTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
