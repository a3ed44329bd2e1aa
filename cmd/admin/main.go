// Operator CLI for a battle server and its on-disk results. The HTTP
// subcommands hit the loopback admin endpoints of a running server; db reads
// the results index directly; the bare command lists recorded battle logs.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "state":
			stateCmd(os.Args[2:])
			return
		case "battles":
			battlesCmd(os.Args[2:])
			return
		case "kills":
			killsCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "logs":
			logsCmd(os.Args[2:])
			return
		}
	}
	logsCmd(os.Args[1:])
}

func logsCmd(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	dir := fs.String("dir", "./data/battlelogs", "battle log directory")
	_ = fs.Parse(args)

	ents, err := os.ReadDir(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	type row struct {
		name string
		size int64
		mod  time.Time
	}
	var rows []row
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl.zst") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		rows = append(rows, row{e.Name(), info.Size(), info.ModTime()})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].mod.After(rows[j].mod) })
	for _, r := range rows {
		fmt.Printf("%s\t%d\t%s\n", r.name, r.size, r.mod.Format(time.RFC3339))
	}
}
