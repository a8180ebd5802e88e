package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wealthtop/internal/display"
	"wealthtop/internal/leaderboard"
	"wealthtop/internal/persistence/r2s3"
	"wealthtop/internal/render"
	"wealthtop/internal/scan"
	"wealthtop/internal/stats"
	"wealthtop/internal/wealth"
)

type recordJSON struct {
	Name       string            `json:"name"`
	CreatedAt  time.Time         `json:"created_at"`
	Total      float64           `json:"total"`
	Categories []wealth.Category `json:"categories"`
	Counters   wealth.Counters   `json:"counters"`
	Cached     bool              `json:"cached"`
}

type statusJSON struct {
	Updating       bool          `json:"updating"`
	RunID          string        `json:"run_id,omitempty"`
	Done           int           `json:"done"`
	Total          int           `json:"total"`
	LastRunID      string        `json:"last_run_id,omitempty"`
	LastDurationMS int64         `json:"last_duration_ms"`
	Entries        int           `json:"entries"`
	WorldTick      uint64        `json:"world_tick"`
	BoardSessions  int           `json:"board_sessions"`
	Mirror         *r2s3.Stats   `json:"mirror,omitempty"`
	Page           []render.Line `json:"page"`
}

// Handler serves health, metrics, lookups, the board and loopback-only admin
// routes.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	if a.gath != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(a.gath, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/v1/wealth", a.handleWealth)
	if a.board != nil {
		mux.HandleFunc("/v1/board", a.board.BoardHandler())
		mux.HandleFunc("/v1/board/ws", a.board.WSHandler())
	}
	mux.HandleFunc("/admin/v1/status", loopbackOnly(a.handleStatus))
	mux.HandleFunc("/admin/v1/rank", loopbackOnly(a.handleRank))
	mux.HandleFunc("/admin/v1/signs", loopbackOnly(a.handleSigns))
	return mux
}

func (a *App) handleWealth(rw http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		http.Error(rw, "name is required", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	type outcome struct {
		reply stats.Reply
		err   error
	}
	ch := make(chan outcome, 1)
	caller := callerID(r)
	_ = a.Lookup(ctx, caller, name, func(rep stats.Reply, err error) {
		ch <- outcome{rep, err}
	})
	var out outcome
	select {
	case out = <-ch:
	case <-ctx.Done():
		http.Error(rw, "lookup timed out", http.StatusGatewayTimeout)
		return
	}
	if out.err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(out.err, stats.ErrNoLeaderboard) {
			status = http.StatusNotFound
		}
		http.Error(rw, out.err.Error(), status)
		return
	}
	rec := out.reply.Record
	writeJSON(rw, http.StatusOK, recordJSON{
		Name:       rec.Name,
		CreatedAt:  rec.CreatedAt,
		Total:      rec.Total(),
		Categories: rec.Categories(),
		Counters:   rec.Counters,
		Cached:     out.reply.Cached,
	})
}

func (a *App) handleStatus(rw http.ResponseWriter, r *http.Request) {
	st := a.Scheduler().Status()
	snap := a.Cache().Snapshot()
	resp := statusJSON{
		Updating:       st.Updating,
		Done:           st.Done,
		Total:          st.Total,
		LastRunID:      st.LastRunID,
		LastDurationMS: st.LastDuration.Milliseconds(),
		Entries:        snap.Len(),
		WorldTick:      a.world.Tick(),
		Page:           render.Paginate(snap, 1, a.Config().Leaderboard.PositionsPerPage).Lines,
	}
	if st.Updating {
		resp.RunID = st.RunID
	}
	if a.board != nil {
		resp.BoardSessions = a.board.Sessions()
	}
	if a.mirror != nil {
		ms := a.mirror.Stats()
		resp.Mirror = &ms
	}
	writeJSON(rw, http.StatusOK, resp)
}

// handleRank triggers a manual pass and returns once it is running.
func (a *App) handleRank(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sched := a.Scheduler()
	if err := sched.Trigger(context.WithoutCancel(r.Context()), leaderboard.TriggerManual); err != nil {
		writeJSON(rw, http.StatusConflict, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusAccepted, map[string]any{"ok": true, "run_id": sched.Status().RunID})
}

// handleSigns lists rank signs (GET), places one (POST, JSON body) or removes
// the sign at ?world=&x=&y=&z= (DELETE).
func (a *App) handleSigns(rw http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(rw, http.StatusOK, a.signs.Signs())
	case http.MethodPost:
		var s display.Sign
		if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&s); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		if err := a.signs.Add(r.Context(), s, a.Cache().Snapshot()); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, display.ErrBadPosition) {
				status = http.StatusBadRequest
			}
			http.Error(rw, err.Error(), status)
			return
		}
		writeJSON(rw, http.StatusCreated, s)
	case http.MethodDelete:
		q := r.URL.Query()
		var pos scan.Vec3i
		var err error
		for _, f := range []struct {
			key string
			dst *int
		}{{"x", &pos.X}, {"y", &pos.Y}, {"z", &pos.Z}} {
			if *f.dst, err = strconv.Atoi(q.Get(f.key)); err != nil {
				http.Error(rw, "bad "+f.key, http.StatusBadRequest)
				return
			}
		}
		ok, err := a.signs.Remove(q.Get("world"), pos)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			http.NotFound(rw, r)
			return
		}
		rw.WriteHeader(http.StatusNoContent)
	default:
		rw.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// callerID keys ad-hoc lookups on the client host so duplicate rejection spans
// connections.
func callerID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "http:" + host
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		host := strings.TrimPrefix(callerID(r), "http:")
		if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}
