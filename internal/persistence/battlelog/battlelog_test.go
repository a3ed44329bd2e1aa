package battlelog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ecafe8/battle-city/internal/game"
)

func TestWriter_AppendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "b1")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	events := []game.Event{
		game.StageLoaded{Stage: "classic", Enemies: []string{"LIGHT"}, Tick: 0},
		game.TankKilled{TankID: "T1", PlayerID: "enemy-1", Side: "ENEMY", Class: "LIGHT", Cause: "bullet", Tick: 42},
		game.GameOver{Winner: game.WinnerPlayer, Tick: 99},
	}
	for _, ev := range events {
		rec := Record{Kind: ev.Kind(), At: time.Now().UTC().Format(time.RFC3339Nano), Event: ev}
		if err := w.Append(rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Append(Record{}); err == nil {
		t.Fatalf("append after close must fail")
	}

	recs, err := ReadAll(w.Path())
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(recs) != len(events) {
		t.Fatalf("read %d records, want %d", len(recs), len(events))
	}
	for i, ev := range events {
		if recs[i].Kind != ev.Kind() {
			t.Fatalf("record %d kind %s, want %s", i, recs[i].Kind, ev.Kind())
		}
		if recs[i].At == "" {
			t.Fatalf("record %d missing timestamp", i)
		}
	}

	var killed game.TankKilled
	if err := json.Unmarshal(recs[1].Event, &killed); err != nil {
		t.Fatalf("decode kill event: %v", err)
	}
	if killed.TankID != "T1" || killed.Tick != 42 {
		t.Fatalf("kill event round trip got %+v", killed)
	}
}

func TestRecorder_CapturesbusEvents(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "b2")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	bus := game.NewBus(nil)
	rec := NewRecorder(w, bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rec.Run(ctx)
	}()

	bus.Publish(game.StageLoaded{Stage: "classic", Tick: 0})
	bus.Publish(game.BulletsDestroyed{Bullets: []game.BulletHit{{BulletID: "B1", TankID: "T1"}}, Tick: 7})
	bus.Publish(game.GameOver{Winner: game.WinnerEnemy, Tick: 8})

	cancel()
	<-done
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	recs, err := ReadAll(w.Path())
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	want := []string{game.EvStageLoaded, game.EvBulletsDestroyed, game.EvGameOver}
	if len(recs) != len(want) {
		t.Fatalf("read %d records, want %d", len(recs), len(want))
	}
	for i, kind := range want {
		if recs[i].Kind != kind {
			t.Fatalf("record %d kind %s, want %s", i, recs[i].Kind, kind)
		}
	}
}

func TestPrune_RemovesOldestBeyondKeep(t *testing.T) {
	dir := t.TempDir()

	names := []string{"battle-a.jsonl.zst", "battle-b.jsonl.zst", "battle-c.jsonl.zst"}
	base := time.Now().Add(-time.Hour)
	for i, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		mod := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatalf("chtimes %s: %v", name, err)
		}
	}
	// Non-log files are never touched.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644); err != nil {
		t.Fatalf("write notes: %v", err)
	}

	removed, err := Prune(dir, 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d, want 1", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "battle-a.jsonl.zst")); !os.IsNotExist(err) {
		t.Fatalf("oldest log should be gone, stat err %v", err)
	}
	for _, name := range []string{"battle-b.jsonl.zst", "battle-c.jsonl.zst", "notes.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s should survive: %v", name, err)
		}
	}
}

func TestPrune_NoOpCases(t *testing.T) {
	if n, err := Prune(filepath.Join(t.TempDir(), "missing"), 5); n != 0 || err != nil {
		t.Fatalf("missing dir: got %d, %v", n, err)
	}
	if n, err := Prune(t.TempDir(), 0); n != 0 || err != nil {
		t.Fatalf("keep 0: got %d, %v", n, err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "battle-x.jsonl.zst"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if n, err := Prune(dir, 3); n != 0 || err != nil {
		t.Fatalf("under limit: got %d, %v", n, err)
	}
}
