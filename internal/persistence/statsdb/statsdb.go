// Package statsdb indexes battle results and kills into SQLite for the admin
// surface. Writes go through a background goroutine so the battle never waits
// on the database; the battlelog remains the source of truth.
package statsdb

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ecafe8/battle-city/internal/game"
)

// DB is the results index. Write methods enqueue and return immediately; a
// full queue drops the write and counts it. Stop all producers before Close.
type DB struct {
	db     *sql.DB
	logger *log.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqBegin reqKind = iota + 1
	reqKill
	reqFinish
	reqSync
)

type req struct {
	kind reqKind

	battle battleRow
	kill   killRow
	finish finishRow
	done   chan struct{}
}

type battleRow struct {
	ID        string
	Stage     string
	StartedAt string
}

type killRow struct {
	BattleID    string
	Tick        uint64
	VictimClass string
	VictimSide  string
	Killer      string
}

type finishRow struct {
	BattleID string
	Winner   string
	Ticks    uint64
}

// Battle is one row of the battles table as served to the admin surface.
type Battle struct {
	ID        string `json:"id"`
	Stage     string `json:"stage"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
	Winner    string `json:"winner,omitempty"`
	Ticks     uint64 `json:"ticks"`
}

func Open(path string, logger *log.Logger) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
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

	d := &DB{
		db:     db,
		logger: logger,
		// Kills arrive at most a handful per tick; the buffer rides out a
		// slow disk without stalling anything.
		ch: make(chan req, 4096),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-style workload; NORMAL is enough durability for a
	// secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
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
		`CREATE TABLE IF NOT EXISTS battles (
			id TEXT PRIMARY KEY,
			stage TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			winner TEXT,
			ticks INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS kills (
			battle_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			victim_class TEXT NOT NULL,
			victim_side TEXT NOT NULL,
			killer_player TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_kills_battle_tick ON kills(battle_id, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes the queue and closes the database. Call it only after every
// producer has stopped.
func (d *DB) Close() error {
	var err error
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
		err = d.db.Close()
	})
	return err
}

// Dropped reports writes lost to a full queue.
func (d *DB) Dropped() uint64 { return d.dropped.Load() }

func (d *DB) BeginBattle(battleID, stage string) {
	d.enqueue(req{kind: reqBegin, battle: battleRow{
		ID:        battleID,
		Stage:     stage,
		StartedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

func (d *DB) RecordKill(battleID string, tick uint64, victimClass, victimSide, killer string) {
	d.enqueue(req{kind: reqKill, kill: killRow{
		BattleID:    battleID,
		Tick:        tick,
		VictimClass: victimClass,
		VictimSide:  victimSide,
		Killer:      killer,
	}})
}

func (d *DB) FinishBattle(battleID, winner string, ticks uint64) {
	d.enqueue(req{kind: reqFinish, finish: finishRow{
		BattleID: battleID,
		Winner:   winner,
		Ticks:    ticks,
	}})
}

func (d *DB) enqueue(r req) {
	if d == nil || d.closed.Load() {
		return
	}
	select {
	case d.ch <- r:
	default:
		d.dropped.Add(1)
	}
}

// sync waits for everything enqueued before it to be committed, so the read
// queries below see their own battle's writes.
func (d *DB) sync() {
	if d == nil || d.closed.Load() {
		return
	}
	r := req{kind: reqSync, done: make(chan struct{})}
	select {
	case d.ch <- r:
		<-r.done
	default:
		// Full queue: the pending writes will land eventually; read what is
		// committed now rather than block the admin surface.
	}
}

// RecentBattles lists battles newest first.
func (d *DB) RecentBattles(n int) ([]Battle, error) {
	if n <= 0 {
		n = 20
	}
	d.sync()
	rows, err := d.db.Query(
		`SELECT id, stage, started_at, COALESCE(ended_at,''), COALESCE(winner,''), ticks
		 FROM battles ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Battle
	for rows.Next() {
		var b Battle
		if err := rows.Scan(&b.ID, &b.Stage, &b.StartedAt, &b.EndedAt, &b.Winner, &b.Ticks); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// KillsByClass counts a battle's kills per victim class.
func (d *DB) KillsByClass(battleID string) (map[string]int, error) {
	d.sync()
	rows, err := d.db.Query(
		`SELECT victim_class, COUNT(*) FROM kills WHERE battle_id = ? GROUP BY victim_class`, battleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var class string
		var n int
		if err := rows.Scan(&class, &n); err != nil {
			return nil, err
		}
		out[class] = n
	}
	return out, rows.Err()
}

func (d *DB) loop() {
	var tx *sql.Tx
	ops := 0
	const commitEvery = 256

	begin := func() bool {
		if tx != nil {
			return true
		}
		txx, err := d.db.BeginTx(context.Background(), nil)
		if err != nil {
			if d.logger != nil {
				d.logger.Printf("begin tx: %v", err)
			}
			return false
		}
		tx = txx
		ops = 0
		return true
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil && d.logger != nil {
			d.logger.Printf("commit: %v", err)
		}
		tx = nil
		ops = 0
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		ops = 0
	}

	for r := range d.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		if !begin() {
			d.dropped.Add(1)
			continue
		}

		var err error
		switch r.kind {
		case reqBegin:
			_, err = tx.Exec(`INSERT OR REPLACE INTO battles(id,stage,started_at) VALUES(?,?,?)`,
				r.battle.ID, r.battle.Stage, r.battle.StartedAt)
		case reqKill:
			_, err = tx.Exec(`INSERT INTO kills(battle_id,tick,victim_class,victim_side,killer_player) VALUES(?,?,?,?,?)`,
				r.kill.BattleID, int64(r.kill.Tick), r.kill.VictimClass, r.kill.VictimSide, r.kill.Killer)
		case reqFinish:
			_, err = tx.Exec(`UPDATE battles SET ended_at=?, winner=?, ticks=? WHERE id=?`,
				time.Now().UTC().Format(time.RFC3339Nano), r.finish.Winner, int64(r.finish.Ticks), r.finish.BattleID)
		}
		if err != nil {
			if d.logger != nil {
				d.logger.Printf("write: %v", err)
			}
			rollback()
			continue
		}
		ops++
		// Commit when the queue goes idle so readers lag by at most a burst.
		if ops >= commitEvery || len(d.ch) == 0 {
			commit()
		}
	}
	commit()
}

// Recorder bridges the engine bus to the index: stage load begins the battle
// row, every tank death becomes a kill row, game over finalizes the result.
type Recorder struct {
	db       *DB
	battleID string
	sub      *game.Subscription
	logger   *log.Logger
}

// NewRecorder subscribes immediately; construct it before Engine.Run starts
// so the STAGE_LOADED event is seen and the battle row is written.
func NewRecorder(db *DB, battleID string, bus *game.Bus, logger *log.Logger) *Recorder {
	return &Recorder{db: db, battleID: battleID, sub: bus.Subscribe(256), logger: logger}
}

// Run indexes events until the context ends, then drains what is already
// buffered so the final GAME_OVER lands in the battles table.
func (r *Recorder) Run(ctx context.Context) error {
	defer r.sub.Close()
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return ctx.Err()
		case ev := <-r.sub.C:
			r.record(ev)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case ev := <-r.sub.C:
			r.record(ev)
		default:
			return
		}
	}
}

func (r *Recorder) record(ev game.Event) {
	switch e := ev.(type) {
	case game.StageLoaded:
		r.db.BeginBattle(r.battleID, e.Stage)
	case game.TankKilled:
		r.db.RecordKill(r.battleID, e.Tick, e.Class, e.Side, e.Killer)
	case game.GameOver:
		r.db.FinishBattle(r.battleID, e.Winner, e.Tick)
	}
}
