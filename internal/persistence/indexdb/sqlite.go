// Package indexdb stores finished leaderboard passes in SQLite.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"wealthtop/internal/cache"
	"wealthtop/internal/wealth"
)

// SQLiteIndex writes passes from a single writer goroutine. Publish never
// blocks: when the writer falls behind, passes are dropped and counted.
type SQLiteIndex struct {
	db  *sql.DB
	log *zap.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropped atomic.Uint64
	written atomic.Uint64
}

type req struct {
	pass passRow
	rows []standingRow
}

type passRow struct {
	RunID   string
	BuiltAt string
	Entries int
}

type standingRow struct {
	Position   int
	Name       string
	Balance    float64
	Blocks     float64
	Spawners   float64
	Containers float64
	Land       float64
	Inventory  float64
	Total      float64
	External   string
	ComputedAt string
}

// Standing is the latest stored row of one entity.
type Standing struct {
	Name       string
	RunID      string
	Position   int
	Balance    float64
	Blocks     float64
	Spawners   float64
	Containers float64
	Land       float64
	Inventory  float64
	Total      float64
	External   map[string]float64
	ComputedAt time.Time
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	DropTotal     uint64
	WrittenTotal  uint64
}

func OpenSQLite(path string, log *zap.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		log: log,
		ch:  make(chan req, 64),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS passes (
			run_id TEXT PRIMARY KEY,
			built_at TEXT NOT NULL,
			entries INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS standings (
			run_id TEXT NOT NULL REFERENCES passes(run_id),
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			total REAL NOT NULL,
			PRIMARY KEY (run_id, position)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_standings_name ON standings(name, run_id);`,
		`CREATE TABLE IF NOT EXISTS wealth (
			name TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			balance REAL NOT NULL,
			blocks REAL NOT NULL,
			spawners REAL NOT NULL,
			containers REAL NOT NULL,
			land REAL NOT NULL,
			inventory REAL NOT NULL,
			total REAL NOT NULL,
			external_json TEXT NOT NULL,
			computed_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued passes and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTotal:     s.dropped.Load(),
		WrittenTotal:  s.written.Load(),
	}
}

// Publish queues snap for writing.
func (s *SQLiteIndex) Publish(_ context.Context, snap *cache.Snapshot) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	r := req{pass: passRow{
		RunID:   snap.RunID,
		BuiltAt: snap.BuiltAt.UTC().Format(time.RFC3339Nano),
		Entries: snap.Len(),
	}}
	for i, rec := range snap.Entries() {
		r.rows = append(r.rows, toRow(i+1, rec))
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
		s.log.Warn("sqlite index behind, pass dropped", zap.String("run", snap.RunID))
	}
	return nil
}

func toRow(position int, rec *wealth.Record) standingRow {
	ext := map[string]float64{}
	for _, c := range rec.External() {
		ext[c.Name] = c.Value
	}
	b, _ := json.Marshal(ext)
	return standingRow{
		Position:   position,
		Name:       rec.Name,
		Balance:    rec.Value(wealth.Balance),
		Blocks:     rec.Value(wealth.Blocks),
		Spawners:   rec.Value(wealth.Spawners),
		Containers: rec.Value(wealth.Containers),
		Land:       rec.Land(),
		Inventory:  rec.Value(wealth.Inventory),
		Total:      rec.Total(),
		External:   string(b),
		ComputedAt: rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Latest reads the most recently stored row of name.
func (s *SQLiteIndex) Latest(ctx context.Context, name string) (Standing, error) {
	var (
		st       Standing
		ext      string
		computed string
	)
	row := s.db.QueryRowContext(ctx, `SELECT name,run_id,position,balance,blocks,spawners,containers,land,inventory,total,external_json,computed_at FROM wealth WHERE name=?`, name)
	if err := row.Scan(&st.Name, &st.RunID, &st.Position, &st.Balance, &st.Blocks, &st.Spawners, &st.Containers, &st.Land, &st.Inventory, &st.Total, &ext, &computed); err != nil {
		return st, err
	}
	if err := json.Unmarshal([]byte(ext), &st.External); err != nil {
		return st, fmt.Errorf("external_json: %w", err)
	}
	st.ComputedAt, _ = time.Parse(time.RFC3339Nano, computed)
	return st, nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertPass, _ := s.db.Prepare(`INSERT OR REPLACE INTO passes(run_id,built_at,entries) VALUES(?,?,?)`)
	insertStanding, _ := s.db.Prepare(`INSERT OR REPLACE INTO standings(run_id,position,name,total) VALUES(?,?,?,?)`)
	upsertWealth, _ := s.db.Prepare(`INSERT OR REPLACE INTO wealth(name,run_id,position,balance,blocks,spawners,containers,land,inventory,total,external_json,computed_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertPass, insertStanding, upsertWealth} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()
	if insertPass == nil || insertStanding == nil || upsertWealth == nil {
		s.log.Error("sqlite index statements unavailable, passes will be discarded")
		for range s.ch {
			s.dropped.Add(1)
		}
		return
	}

	for r := range s.ch {
		if err := s.write(ctx, r, insertPass, insertStanding, upsertWealth); err != nil {
			s.dropped.Add(1)
			s.log.Warn("sqlite pass write failed", zap.String("run", r.pass.RunID), zap.Error(err))
			continue
		}
		s.written.Add(1)
	}
}

func (s *SQLiteIndex) write(ctx context.Context, r req, insertPass, insertStanding, upsertWealth *sql.Stmt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Stmt(insertPass).Exec(r.pass.RunID, r.pass.BuiltAt, r.pass.Entries); err != nil {
		return err
	}
	for _, row := range r.rows {
		if _, err := tx.Stmt(insertStanding).Exec(r.pass.RunID, row.Position, row.Name, row.Total); err != nil {
			return err
		}
		if _, err := tx.Stmt(upsertWealth).Exec(
			row.Name,
			r.pass.RunID,
			row.Position,
			row.Balance,
			row.Blocks,
			row.Spawners,
			row.Containers,
			row.Land,
			row.Inventory,
			row.Total,
			row.External,
			row.ComputedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}
