// Package battlelog persists the engine's event stream as zstd-compressed
// JSONL, one file per battle. The log is an append-only record for replay
// and postmortems; nothing in the battle reads it back.
package battlelog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/ecafe8/battle-city/internal/game"
)

// Writer appends JSON records to battle-<id>.jsonl.zst. Safe for concurrent
// use; every Append is flushed so a crash loses at most the record in the
// zstd window.
type Writer struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewWriter(dir, battleID string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("battle-%s.jsonl.zst", battleID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{
		path: path,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

func (w *Writer) Path() string { return w.path }

func (w *Writer) Append(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return fmt.Errorf("battlelog: writer closed")
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var err error
	if w.w != nil {
		_ = w.w.Flush()
		w.w = nil
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	return err
}

// Record is one logged line: the event kind, a wall-clock stamp, and the
// event itself (which carries its own tick).
type Record struct {
	Kind  string     `json:"kind"`
	At    string     `json:"at"`
	Event game.Event `json:"event"`
}

// Recorder drains an engine bus subscription into a Writer. It subscribes at
// construction, so build it before Engine.Run starts and the STAGE_LOADED
// event makes it into the log.
type Recorder struct {
	w      *Writer
	sub    *game.Subscription
	logger *log.Logger
}

func NewRecorder(w *Writer, bus *game.Bus, logger *log.Logger) *Recorder {
	return &Recorder{w: w, sub: bus.Subscribe(256), logger: logger}
}

// Run appends events until the context ends, then drains what is already
// buffered so a battle's final GAME_OVER is not lost to shutdown ordering.
func (r *Recorder) Run(ctx context.Context) error {
	defer r.sub.Close()
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return ctx.Err()
		case ev := <-r.sub.C:
			r.append(ev)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case ev := <-r.sub.C:
			r.append(ev)
		default:
			return
		}
	}
}

func (r *Recorder) append(ev game.Event) {
	rec := Record{
		Kind:  ev.Kind(),
		At:    time.Now().UTC().Format(time.RFC3339Nano),
		Event: ev,
	}
	if err := r.w.Append(rec); err != nil && r.logger != nil {
		r.logger.Printf("append %s: %v", rec.Kind, err)
	}
}

// RawRecord is one line read back from a log file, the event left as raw
// JSON for the caller to interpret by kind.
type RawRecord struct {
	Kind  string          `json:"kind"`
	At    string          `json:"at"`
	Event json.RawMessage `json:"event"`
}

// ReadAll decodes a log written by Writer, for offline tools like replay.
func ReadAll(path string) ([]RawRecord, error) {
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

	var out []RawRecord
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var rec RawRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return out, fmt.Errorf("battlelog: bad line: %w", err)
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}

// Prune deletes the oldest logs in dir beyond keep. Zero or negative keep
// disables pruning.
func Prune(dir string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	type entry struct {
		name string
		mod  time.Time
	}
	var logs []entry
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl.zst") {
			continue
		}
		info, ierr := e.Info()
		if ierr != nil {
			continue
		}
		logs = append(logs, entry{e.Name(), info.ModTime()})
	}
	if len(logs) <= keep {
		return 0, nil
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].mod.Before(logs[j].mod) })

	removed := 0
	var firstErr error
	for _, l := range logs[:len(logs)-keep] {
		if rmErr := os.Remove(filepath.Join(dir, l.name)); rmErr != nil {
			if firstErr == nil {
				firstErr = rmErr
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}
