// Package history appends every finished leaderboard pass to an hourly
// rotated, zstd compressed JSONL log.
package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"wealthtop/internal/cache"
)

// JSONLZstdWriter writes one JSON value per line into
// <dir>/<prefix>-<YYYY-MM-DD-HH>.jsonl.zst, switching files on the hour.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	clock   func() time.Time

	// onClose receives the path of every file the writer finishes.
	onClose func(path string)

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string, clock func() time.Time) *JSONLZstdWriter {
	if clock == nil {
		clock = time.Now
	}
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		clock:   clock,
	}
}

// OnClose registers fn to run after a file is closed by rotation or Close.
// It must be set before the first Write.
func (w *JSONLZstdWriter) OnClose(fn func(path string)) { w.onClose = fn }

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.clock().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	closed := ""
	if w.f != nil {
		closed = w.pathForHour(w.curHour)
	}
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	if closed != "" && w.onClose != nil {
		w.onClose(closed)
	}
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Pass is one history line.
type Pass struct {
	RunID   string    `json:"run_id"`
	BuiltAt time.Time `json:"built_at"`
	Entries []Entry   `json:"entries"`
}

type Entry struct {
	Position   int                `json:"position"`
	Name       string             `json:"name"`
	Total      float64            `json:"total"`
	Categories map[string]float64 `json:"categories"`
}

// Log is a leaderboard sink writing passes under dir.
type Log struct{ w *JSONLZstdWriter }

func NewLog(dir string, clock func() time.Time) *Log {
	return &Log{w: NewJSONLZstdWriter(dir, "leaderboard", clock)}
}

func (l *Log) Publish(_ context.Context, snap *cache.Snapshot) error {
	p := Pass{RunID: snap.RunID, BuiltAt: snap.BuiltAt.UTC(), Entries: []Entry{}}
	for i, r := range snap.Entries() {
		e := Entry{Position: i + 1, Name: r.Name, Total: r.Total(), Categories: map[string]float64{}}
		for _, c := range r.Categories() {
			e.Categories[c.Name] = c.Value
		}
		p.Entries = append(p.Entries, e)
	}
	return l.w.Write(p)
}

func (l *Log) Close() error { return l.w.Close() }

// OnClose forwards finished log files to fn, e.g. a bucket mirror.
func (l *Log) OnClose(fn func(path string)) { l.w.OnClose(fn) }

// ReadDir decodes every pass logged under dir, oldest file first.
func ReadDir(dir string) ([]Pass, error) {
	files, err := filepath.Glob(filepath.Join(dir, "leaderboard-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	var out []Pass
	for _, path := range files {
		passes, err := readFile(path)
		if err != nil {
			return out, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		out = append(out, passes...)
	}
	return out, nil
}

func readFile(path string) ([]Pass, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Pass
	jd := json.NewDecoder(dec)
	for {
		var p Pass
		if err := jd.Decode(&p); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, p)
	}
}
