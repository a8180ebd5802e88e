package yamlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wealthtop/internal/cache"
	"wealthtop/internal/wealth"
)

func TestPublishWritesOneFilePerEntity(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	require.NoError(t, err)

	at := time.Unix(1_700_000_000, 0).UTC()
	snap := cache.Rank([]*wealth.Record{
		wealth.NewRecord("Alice", wealth.Inputs{Balance: 3, Blocks: 1.5}, at),
		wealth.NewRecord("bob/evil", wealth.Inputs{Balance: 9}, at),
	}, -1, 0)
	snap.RunID = "run-1"
	require.NoError(t, s.Publish(context.Background(), snap))

	e, err := s.Load("alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", e.Name)
	require.Equal(t, 2, e.Position)
	require.Equal(t, "run-1", e.RunID)
	require.True(t, at.Equal(e.ComputedAt))
	require.Equal(t, 4.5, e.Categories[wealth.Total])
	require.Equal(t, 1.5, e.Categories[wealth.Land])

	_, err = os.Stat(filepath.Join(dir, "bob_evil.yml"))
	require.NoError(t, err)
}

func TestFileName(t *testing.T) {
	require.Equal(t, "_.yml", FileName(".."))
	require.Equal(t, "a_b.yml", FileName("A:B"))
}

func TestPublishHonoursContext(t *testing.T) {
	s, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap := cache.Rank([]*wealth.Record{wealth.NewRecord("a", wealth.Inputs{Balance: 1}, time.Now())}, -1, 0)
	require.ErrorIs(t, s.Publish(ctx, snap), context.Canceled)
}
