// Prints a recorded battle log as a human-readable timeline with a result
// summary. Point it at a log file directly, or at the log directory plus a
// battle id.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ecafe8/battle-city/internal/game"
	"github.com/ecafe8/battle-city/internal/persistence/battlelog"
	"github.com/ecafe8/battle-city/internal/protocol"
)

func main() {
	var (
		logPath  = flag.String("log", "", "battle log path (.jsonl.zst)")
		dir      = flag.String("dir", "./data/battlelogs", "battle log directory")
		battle   = flag.String("battle", "", "battle id to resolve inside -dir")
		fromTick = flag.Uint64("from_tick", 0, "print events at or after this tick")
		toTick   = flag.Uint64("to_tick", 0, "stop after this tick (0 = end)")
	)
	flag.Parse()

	path := *logPath
	if path == "" && *battle != "" {
		path = filepath.Join(*dir, fmt.Sprintf("battle-%s.jsonl.zst", *battle))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "missing -log or -battle")
		os.Exit(2)
	}

	recs, err := battlelog.ReadAll(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read log:", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Fprintln(os.Stderr, "empty log:", path)
		os.Exit(1)
	}

	var sum tally
	for _, rec := range recs {
		tick, line, err := describe(rec, &sum)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad %s record: %v\n", rec.Kind, err)
			os.Exit(1)
		}
		if tick < *fromTick {
			continue
		}
		if *toTick != 0 && tick > *toTick {
			break
		}
		fmt.Printf("%6d  %-18s %s\n", tick, rec.Kind, line)
	}

	fmt.Printf("summary: events=%d shots=%d kills_player=%d kills_enemy=%d winner=%s ticks=%d\n",
		len(recs), sum.shots, sum.killsBySide[protocol.SidePlayer], sum.killsBySide[protocol.SideEnemy],
		orDash(sum.winner), sum.lastTick)
	if len(sum.killsByClass) > 0 {
		parts := make([]string, 0, len(sum.killsByClass))
		for _, class := range protocol.TankClasses {
			if n := sum.killsByClass[class]; n > 0 {
				parts = append(parts, fmt.Sprintf("%s=%d", class, n))
			}
		}
		fmt.Printf("kills by class: %s\n", strings.Join(parts, " "))
	}
}

type tally struct {
	shots        int
	killsBySide  map[string]int
	killsByClass map[string]int
	winner       string
	lastTick     uint64
}

// describe decodes one record into a timeline line and folds it into the
// running tally. Unknown kinds pass through as raw JSON.
func describe(rec battlelog.RawRecord, sum *tally) (uint64, string, error) {
	if sum.killsBySide == nil {
		sum.killsBySide = map[string]int{}
		sum.killsByClass = map[string]int{}
	}
	bump := func(tick uint64) {
		if tick > sum.lastTick {
			sum.lastTick = tick
		}
	}
	switch rec.Kind {
	case game.EvStageLoaded:
		var ev game.StageLoaded
		if err := json.Unmarshal(rec.Event, &ev); err != nil {
			return 0, "", err
		}
		bump(ev.Tick)
		return ev.Tick, fmt.Sprintf("stage %q, %d enemies queued", ev.Stage, len(ev.Enemies)), nil
	case game.EvTankSpawned:
		var ev game.TankSpawned
		if err := json.Unmarshal(rec.Event, &ev); err != nil {
			return 0, "", err
		}
		bump(ev.Tick)
		return ev.Tick, fmt.Sprintf("%s %s %s for %s at (%d,%d)", ev.Side, ev.Class, ev.TankID, orDash(ev.PlayerID), ev.X, ev.Y), nil
	case game.EvTankKilled:
		var ev game.TankKilled
		if err := json.Unmarshal(rec.Event, &ev); err != nil {
			return 0, "", err
		}
		bump(ev.Tick)
		sum.killsBySide[ev.Side]++
		sum.killsByClass[ev.Class]++
		line := fmt.Sprintf("%s %s %s (%s), cause %s", ev.Side, ev.Class, ev.TankID, ev.PlayerID, ev.Cause)
		if ev.Killer != "" {
			line += " by " + ev.Killer
		}
		return ev.Tick, line, nil
	case game.EvBulletFired:
		var ev game.BulletFired
		if err := json.Unmarshal(rec.Event, &ev); err != nil {
			return 0, "", err
		}
		bump(ev.Tick)
		sum.shots++
		return ev.Tick, fmt.Sprintf("%s from %s at (%d,%d)", ev.BulletID, ev.TankID, ev.X, ev.Y), nil
	case game.EvBulletsDestroyed:
		var ev game.BulletsDestroyed
		if err := json.Unmarshal(rec.Event, &ev); err != nil {
			return 0, "", err
		}
		bump(ev.Tick)
		targets := make([]string, 0, len(ev.Bullets))
		for _, b := range ev.Bullets {
			targets = append(targets, fmt.Sprintf("%s>%s", b.BulletID, orDash(b.Target)))
		}
		return ev.Tick, strings.Join(targets, " "), nil
	case game.EvBaseDestroyed:
		var ev game.BaseDestroyed
		if err := json.Unmarshal(rec.Event, &ev); err != nil {
			return 0, "", err
		}
		bump(ev.Tick)
		return ev.Tick, fmt.Sprintf("base at (%d,%d)", ev.X, ev.Y), nil
	case game.EvGameOver:
		var ev game.GameOver
		if err := json.Unmarshal(rec.Event, &ev); err != nil {
			return 0, "", err
		}
		bump(ev.Tick)
		sum.winner = ev.Winner
		return ev.Tick, fmt.Sprintf("winner %s", ev.Winner), nil
	default:
		return sum.lastTick, string(rec.Event), nil
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
