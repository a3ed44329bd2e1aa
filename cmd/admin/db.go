package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

// dbCmd reads the results index directly, for postmortems without a running
// server. The write path keeps the file in WAL mode, so reading alongside a
// live server is safe.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dbPath := fs.String("db", "./data/stats.db", "results index path")
	limit := fs.Int("limit", 20, "result limit")
	battle := fs.String("battle", "", "battle id filter (kills)")
	_ = fs.Parse(args)

	q := "battles"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "battles":
		rows, err := db.Query(
			`SELECT id, stage, started_at, COALESCE(ended_at,''), COALESCE(winner,''), ticks
			 FROM battles ORDER BY started_at DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ID        string `json:"id"`
				Stage     string `json:"stage"`
				StartedAt string `json:"started_at"`
				EndedAt   string `json:"ended_at,omitempty"`
				Winner    string `json:"winner,omitempty"`
				Ticks     uint64 `json:"ticks"`
			}
			if err := rows.Scan(&r.ID, &r.Stage, &r.StartedAt, &r.EndedAt, &r.Winner, &r.Ticks); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "kills":
		query := `SELECT battle_id, tick, victim_class, victim_side, COALESCE(killer_player,'')
			 FROM kills ORDER BY tick LIMIT ?`
		qargs := []any{*limit}
		if strings.TrimSpace(*battle) != "" {
			query = `SELECT battle_id, tick, victim_class, victim_side, COALESCE(killer_player,'')
				 FROM kills WHERE battle_id = ? ORDER BY tick LIMIT ?`
			qargs = []any{strings.TrimSpace(*battle), *limit}
		}
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				BattleID    string `json:"battle_id"`
				Tick        uint64 `json:"tick"`
				VictimClass string `json:"victim_class"`
				VictimSide  string `json:"victim_side"`
				Killer      string `json:"killer,omitempty"`
			}
			if err := rows.Scan(&r.BattleID, &r.Tick, &r.VictimClass, &r.VictimSide, &r.Killer); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-db ./data/stats.db] [-limit N] [-battle ID] battles|kills")
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
