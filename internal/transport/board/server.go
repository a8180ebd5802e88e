// Package board pushes leaderboard snapshots to display clients over
// websockets.
package board

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"wealthtop/internal/cache"
)

type Config struct {
	// LoopbackOnly refuses clients that do not connect from a loopback
	// address.
	LoopbackOnly bool
}

type Server struct {
	cfg Config
	log *zap.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	sessions *xsync.Map[string, chan *cache.Snapshot]
	latest   atomic.Pointer[cache.Snapshot]
}

func NewServer(cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg: cfg,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions: xsync.NewMap[string, chan *cache.Snapshot](),
	}
}

// Sessions is the number of connected clients.
func (s *Server) Sessions() int { return s.sessions.Size() }

// Publish records snap as the latest board and pushes it to every session.
// A slow session only ever holds the newest snapshot.
func (s *Server) Publish(_ context.Context, snap *cache.Snapshot) error {
	s.latest.Store(snap)
	s.sessions.Range(func(_ string, ch chan *cache.Snapshot) bool {
		sendLatest(ch, snap)
		return true
	})
	return nil
}

// BoardHandler serves the latest board as JSON. ?limit=N bounds the rows.
func (s *Server) BoardHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if s.cfg.LoopbackOnly && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		sub := SubscribeMsg{}
		if v := r.URL.Query().Get("limit"); v != "" {
			sub.Limit, _ = strconv.Atoi(v)
		}
		normalizeSubscribe(&sub)

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(NewBoardMsg(s.latest.Load(), sub.Limit))
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if s.cfg.LoopbackOnly && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != TypeSubscribe || sub.ProtocolVersion != Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}
		normalizeSubscribe(&sub)

		var limit atomic.Int64
		limit.Store(int64(sub.Limit))

		sid := fmt.Sprintf("B%d", s.nextID.Add(1))
		out := make(chan *cache.Snapshot, 1)
		s.sessions.Store(sid, out)
		defer s.sessions.Delete(sid)
		if snap := s.latest.Load(); snap != nil {
			sendLatest(out, snap)
		}
		s.log.Debug("board session opened", zap.String("session", sid), zap.Int("limit", sub.Limit))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case snap := <-out:
					b, err := json.Marshal(NewBoardMsg(snap, int(limit.Load())))
					if err != nil {
						writeErr <- err
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var sub SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil {
				continue
			}
			if sub.Type != TypeSubscribe || sub.ProtocolVersion != Version {
				continue
			}
			normalizeSubscribe(&sub)
			limit.Store(int64(sub.Limit))
			if snap := s.latest.Load(); snap != nil {
				sendLatest(out, snap)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		s.log.Debug("board session closed", zap.String("session", sid))
	}
}

func sendLatest(ch chan *cache.Snapshot, snap *cache.Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
