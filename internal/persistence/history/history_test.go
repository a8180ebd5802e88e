package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wealthtop/internal/cache"
	"wealthtop/internal/wealth"
)

func pass(runID string, totals ...float64) *cache.Snapshot {
	recs := make([]*wealth.Record, len(totals))
	for i, v := range totals {
		recs[i] = wealth.NewRecord(string(rune('a'+i)), wealth.Inputs{Balance: v}, time.Unix(0, 0))
	}
	s := cache.Rank(recs, -1, 0)
	s.RunID = runID
	return s
}

func TestLog_RotatesHourlyAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l := NewLog(dir, func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, l.Publish(ctx, pass("r1", 5, 9)))
	now = now.Add(2 * time.Minute)
	require.NoError(t, l.Publish(ctx, pass("r2", 1)))
	require.NoError(t, l.Close())

	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl.zst"))
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "leaderboard-2026-03-01-10.jsonl.zst", filepath.Base(files[0]))

	passes, err := ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, passes, 2)
	require.Equal(t, "r1", passes[0].RunID)
	require.Equal(t, "b", passes[0].Entries[0].Name)
	require.Equal(t, 9.0, passes[0].Entries[0].Total)
	require.Equal(t, 9.0, passes[0].Entries[0].Categories[wealth.Balance])
	require.Equal(t, "r2", passes[1].RunID)
}

func TestLog_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ctx := context.Background()

	l := NewLog(dir, clock)
	require.NoError(t, l.Publish(ctx, pass("first", 1)))
	require.NoError(t, l.Close())

	l = NewLog(dir, clock)
	require.NoError(t, l.Publish(ctx, pass("second")))
	require.NoError(t, l.Close())

	passes, err := ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, passes, 2)
	require.Equal(t, "second", passes[1].RunID)
	require.Empty(t, passes[1].Entries)
}

func TestLog_OnCloseReportsFinishedFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	l := NewLog(dir, func() time.Time { return now })
	var closed []string
	l.OnClose(func(path string) { closed = append(closed, filepath.Base(path)) })
	ctx := context.Background()

	require.NoError(t, l.Publish(ctx, pass("r1", 1)))
	require.Empty(t, closed)
	now = now.Add(time.Hour)
	require.NoError(t, l.Publish(ctx, pass("r2", 1)))
	require.Equal(t, []string{"leaderboard-2026-03-01-10.jsonl.zst"}, closed)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	require.Equal(t, []string{"leaderboard-2026-03-01-10.jsonl.zst", "leaderboard-2026-03-01-11.jsonl.zst"}, closed)
}
