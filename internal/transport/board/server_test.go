package board

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"wealthtop/internal/cache"
	"wealthtop/internal/wealth"
)

func ranked(runID string, totals ...float64) *cache.Snapshot {
	recs := make([]*wealth.Record, len(totals))
	for i, v := range totals {
		recs[i] = wealth.NewRecord(string(rune('a'+i)), wealth.Inputs{Balance: v}, time.Unix(0, 0))
	}
	s := cache.Rank(recs, -1, 0)
	s.RunID = runID
	return s
}

func dial(t *testing.T, srv *httptest.Server, limit int) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.WriteJSON(SubscribeMsg{Type: TypeSubscribe, ProtocolVersion: Version, Limit: limit}))
	return conn
}

func read(t *testing.T, conn *websocket.Conn) BoardMsg {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m BoardMsg
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestWS_PushesLatestThenUpdates(t *testing.T) {
	s := NewServer(Config{LoopbackOnly: true}, nil)
	require.NoError(t, s.Publish(context.Background(), ranked("r1", 3, 7, 5)))

	mux := http.NewServeMux()
	mux.Handle("/ws", s.WSHandler())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv, 2)
	m := read(t, conn)
	require.Equal(t, TypeLeaderboard, m.Type)
	require.Equal(t, "r1", m.RunID)
	require.Equal(t, 3, m.Size)
	require.Len(t, m.Entries, 2)
	require.Equal(t, "b", m.Entries[0].Name)
	require.Equal(t, 7.0, m.Entries[0].Categories[wealth.Total])

	require.Eventually(t, func() bool { return s.Sessions() == 1 }, 5*time.Second, time.Millisecond)
	require.NoError(t, s.Publish(context.Background(), ranked("r2", 1)))
	m = read(t, conn)
	require.Equal(t, "r2", m.RunID)
	require.Len(t, m.Entries, 1)

	require.NoError(t, conn.WriteJSON(SubscribeMsg{Type: TypeSubscribe, ProtocolVersion: Version, Limit: 5}))
	m = read(t, conn)
	require.Equal(t, "r2", m.RunID)

	_ = conn.Close()
	require.Eventually(t, func() bool { return s.Sessions() == 0 }, 5*time.Second, time.Millisecond)
}

func TestWS_RejectsBadHandshake(t *testing.T) {
	s := NewServer(Config{}, nil)
	srv := httptest.NewServer(s.WSHandler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(SubscribeMsg{Type: "HELLO", ProtocolVersion: Version}))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestBoardHandler(t *testing.T) {
	s := NewServer(Config{LoopbackOnly: true}, nil)
	require.NoError(t, s.Publish(context.Background(), ranked("r", 1, 2, 3)))

	req := httptest.NewRequest(http.MethodGet, "/board?limit=1", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rw := httptest.NewRecorder()
	s.BoardHandler()(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)
	var m BoardMsg
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &m))
	require.Len(t, m.Entries, 1)
	require.Equal(t, "c", m.Entries[0].Name)

	req = httptest.NewRequest(http.MethodGet, "/board", nil)
	rw = httptest.NewRecorder()
	s.BoardHandler()(rw, req)
	require.Equal(t, http.StatusForbidden, rw.Code)
}

func TestBoardHandler_EmptyBeforeFirstPass(t *testing.T) {
	s := NewServer(Config{}, nil)
	rw := httptest.NewRecorder()
	s.BoardHandler()(rw, httptest.NewRequest(http.MethodGet, "/board", nil))
	var m BoardMsg
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &m))
	require.Zero(t, m.Size)
	require.Empty(t, m.Entries)
}
