package r2s3

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type put struct {
	path, auth, sha, body string
}

func bucketServer(t *testing.T, status int) (*httptest.Server, func() []put) {
	t.Helper()
	var (
		mu   sync.Mutex
		puts []put
	)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts = append(puts, put{
			path: r.URL.Path,
			auth: r.Header.Get("Authorization"),
			sha:  r.Header.Get("x-amz-content-sha256"),
			body: string(b),
		})
		mu.Unlock()
		rw.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []put {
		mu.Lock()
		defer mu.Unlock()
		return append([]put(nil), puts...)
	}
}

func TestNew_RequiresEverything(t *testing.T) {
	_, err := New(ClientConfig{Endpoint: "r2.example.com", Bucket: "b"})
	require.ErrorIs(t, err, ErrIncompleteConfig)

	c, err := New(ClientConfig{Endpoint: "r2.example.com/", Bucket: "b", AccessKeyID: "ak", SecretAccessKey: "sk"})
	require.NoError(t, err)
	require.Equal(t, "https://r2.example.com", c.endpoint)
	require.Equal(t, "auto", c.region)
}

func TestMirror_UploadsUnderPrefix(t *testing.T) {
	srv, puts := bucketServer(t, http.StatusOK)
	c, err := New(ClientConfig{Endpoint: srv.URL, Bucket: "boards", AccessKeyID: "ak", SecretAccessKey: "sk"})
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	t.Cleanup(c.httpClient.CloseIdleConnections)

	data := t.TempDir()
	file := filepath.Join(data, "history", "leaderboard-2026-03-04-05.jsonl.zst")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte("payload"), 0o644))

	m := NewMirror(c, MirrorConfig{DataDir: data, Prefix: "/srv1/"}, nil)
	m.Enqueue(file)
	m.Enqueue(filepath.Join(t.TempDir(), "elsewhere"))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	got := puts()
	require.Len(t, got, 1)
	require.Equal(t, "/boards/srv1/history/leaderboard-2026-03-04-05.jsonl.zst", got[0].path)
	require.Equal(t, "payload", got[0].body)
	require.Equal(t, sha256Hex([]byte("payload")), got[0].sha)
	require.True(t, strings.HasPrefix(got[0].auth, "AWS4-HMAC-SHA256 Credential=ak/20260304/auto/s3/aws4_request, "), got[0].auth)

	st := m.Stats()
	require.Equal(t, uint64(2), st.EnqueuedTotal)
	require.Equal(t, uint64(1), st.UploadSuccessTotal)
}

func TestMirror_RetriesThenCountsFailure(t *testing.T) {
	srv, puts := bucketServer(t, http.StatusForbidden)
	c, err := New(ClientConfig{Endpoint: srv.URL, Bucket: "b", AccessKeyID: "ak", SecretAccessKey: "sk"})
	require.NoError(t, err)
	t.Cleanup(c.httpClient.CloseIdleConnections)

	data := t.TempDir()
	file := filepath.Join(data, "a.zst")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	m := NewMirror(c, MirrorConfig{DataDir: data, Attempts: 3, Backoff: time.Millisecond}, nil)
	m.Enqueue(file)
	require.NoError(t, m.Close())
	require.Len(t, puts(), 3)
	require.Equal(t, uint64(1), m.Stats().UploadFailTotal)
}

func TestNormalizeObjectKey(t *testing.T) {
	require.Equal(t, "a/b.zst", normalizeObjectKey(`\a\\b.zst`))
	require.Equal(t, "etc", normalizeObjectKey("../../etc"))
	require.Equal(t, "", normalizeObjectKey(" / "))
}
