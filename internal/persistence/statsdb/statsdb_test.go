package statsdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ecafe8/battle-city/internal/game"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "stats.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDB_BattleLifecycle(t *testing.T) {
	d := openTestDB(t)

	d.BeginBattle("b1", "classic")
	d.RecordKill("b1", 10, "LIGHT", "ENEMY", "player-1")
	d.RecordKill("b1", 15, "LIGHT", "ENEMY", "player-1")
	d.RecordKill("b1", 20, "ARMOR", "ENEMY", "player-2")
	d.RecordKill("b1", 25, "LIGHT", "PLAYER", "enemy-3")
	d.FinishBattle("b1", game.WinnerPlayer, 30)

	battles, err := d.RecentBattles(5)
	if err != nil {
		t.Fatalf("recent battles: %v", err)
	}
	if len(battles) != 1 {
		t.Fatalf("got %d battles, want 1", len(battles))
	}
	b := battles[0]
	if b.ID != "b1" || b.Stage != "classic" {
		t.Fatalf("battle row %+v", b)
	}
	if b.Winner != game.WinnerPlayer || b.Ticks != 30 {
		t.Fatalf("battle not finished: %+v", b)
	}
	if b.StartedAt == "" || b.EndedAt == "" {
		t.Fatalf("timestamps missing: %+v", b)
	}

	kills, err := d.KillsByClass("b1")
	if err != nil {
		t.Fatalf("kills by class: %v", err)
	}
	if kills["LIGHT"] != 3 || kills["ARMOR"] != 1 {
		t.Fatalf("kill counts %v", kills)
	}
}

func TestDB_UnfinishedBattleHasNoWinner(t *testing.T) {
	d := openTestDB(t)

	d.BeginBattle("b1", "classic")

	battles, err := d.RecentBattles(5)
	if err != nil {
		t.Fatalf("recent battles: %v", err)
	}
	if len(battles) != 1 {
		t.Fatalf("got %d battles, want 1", len(battles))
	}
	if battles[0].Winner != "" || battles[0].EndedAt != "" || battles[0].Ticks != 0 {
		t.Fatalf("unfinished battle carries results: %+v", battles[0])
	}
}

func TestDB_RecentBattlesOrderAndLimit(t *testing.T) {
	d := openTestDB(t)

	d.BeginBattle("old", "classic")
	time.Sleep(2 * time.Millisecond)
	d.BeginBattle("new", "fortress")

	battles, err := d.RecentBattles(10)
	if err != nil {
		t.Fatalf("recent battles: %v", err)
	}
	if len(battles) != 2 {
		t.Fatalf("got %d battles, want 2", len(battles))
	}
	if battles[0].ID != "new" || battles[1].ID != "old" {
		t.Fatalf("order %s,%s; want new,old", battles[0].ID, battles[1].ID)
	}

	battles, err = d.RecentBattles(1)
	if err != nil {
		t.Fatalf("recent battles limit: %v", err)
	}
	if len(battles) != 1 || battles[0].ID != "new" {
		t.Fatalf("limit 1 returned %+v", battles)
	}
}

func TestDB_KillsByClassScopedToBattle(t *testing.T) {
	d := openTestDB(t)

	d.BeginBattle("b1", "classic")
	d.BeginBattle("b2", "classic")
	d.RecordKill("b1", 5, "FAST", "ENEMY", "player-1")
	d.RecordKill("b2", 5, "FAST", "ENEMY", "player-1")
	d.RecordKill("b2", 6, "FAST", "ENEMY", "player-1")

	kills, err := d.KillsByClass("b2")
	if err != nil {
		t.Fatalf("kills by class: %v", err)
	}
	if kills["FAST"] != 2 {
		t.Fatalf("b2 FAST kills = %d, want 2", kills["FAST"])
	}
}

func TestDB_CloseIsIdempotentAndStopsWrites(t *testing.T) {
	d, err := Open(filepath.Join(t.TempDir(), "stats.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	d.BeginBattle("b1", "classic")
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	// After close the enqueue path is a no-op, not a panic.
	d.RecordKill("b1", 1, "LIGHT", "ENEMY", "player-1")
	var nilDB *DB
	nilDB.BeginBattle("x", "y")
}

func TestRecorder_IndexesBusEvents(t *testing.T) {
	d := openTestDB(t)

	bus := game.NewBus(nil)
	rec := NewRecorder(d, "b9", bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rec.Run(ctx)
	}()

	bus.Publish(game.StageLoaded{Stage: "classic", Enemies: []string{"LIGHT", "FAST"}, Tick: 0})
	bus.Publish(game.TankKilled{TankID: "T3", PlayerID: "enemy-1", Side: "ENEMY", Class: "FAST", Cause: game.CauseBullet, Killer: "player-1", Tick: 12})
	bus.Publish(game.GameOver{Winner: game.WinnerEnemy, Tick: 40})

	cancel()
	<-done

	battles, err := d.RecentBattles(5)
	if err != nil {
		t.Fatalf("recent battles: %v", err)
	}
	if len(battles) != 1 || battles[0].ID != "b9" || battles[0].Stage != "classic" {
		t.Fatalf("battle rows %+v", battles)
	}
	if battles[0].Winner != game.WinnerEnemy || battles[0].Ticks != 40 {
		t.Fatalf("result not indexed: %+v", battles[0])
	}

	kills, err := d.KillsByClass("b9")
	if err != nil {
		t.Fatalf("kills by class: %v", err)
	}
	if kills["FAST"] != 1 {
		t.Fatalf("kill counts %v", kills)
	}
}
