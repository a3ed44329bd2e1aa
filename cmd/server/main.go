// The battle server: one engine, an agent supervisor manning the enemy
// roster, a websocket door for player-side agents, and loopback admin
// endpoints over the results index.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ecafe8/battle-city/internal/agent"
	"github.com/ecafe8/battle-city/internal/control"
	"github.com/ecafe8/battle-city/internal/game"
	"github.com/ecafe8/battle-city/internal/persistence/battlelog"
	"github.com/ecafe8/battle-city/internal/persistence/statsdb"
	"github.com/ecafe8/battle-city/internal/transport/observer"
	"github.com/ecafe8/battle-city/internal/transport/ws"
	"github.com/ecafe8/battle-city/internal/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configPath = flag.String("config", "./configs/game.yaml", "tuning config path")
		stagePath  = flag.String("stage", "./configs/stages/classic.yaml", "stage layout path")
		agentCmd   = flag.String("agent-cmd", "", "enemy agent command line, e.g. './bin/agent -think-ms 50' (overrides agent_cmd in config)")
		population = flag.Int("population", 0, "AI sessions to keep on the field (0 = tuning value)")
		logDir     = flag.String("battlelog-dir", "./data/battlelogs", "battle log directory")
		logKeep    = flag.Int("battlelog-keep", 20, "battle logs to retain on disk (0 = keep all)")
		statsPath  = flag.String("stats-db", "./data/stats.db", "results index path (empty to disable)")
		seed       = flag.Int64("seed", 0, "seed forwarded to agent processes (0 = unseeded)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", *configPath)
			tune = tuning.Default()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	stage, err := game.LoadStage(*stagePath)
	if err != nil {
		logger.Fatalf("load stage: %v", err)
	}

	battleID := "b-" + uuid.NewString()[:8]
	metrics := &control.Metrics{}
	eng := game.NewEngine(stage, tune, log.New(os.Stdout, "[game] ", log.LstdFlags|log.Lmicroseconds))

	if n, err := battlelog.Prune(*logDir, *logKeep); err != nil {
		logger.Printf("prune battle logs: %v", err)
	} else if n > 0 {
		logger.Printf("pruned %d old battle logs", n)
	}

	// Everything that must see STAGE_LOADED subscribes before Engine.Run.
	blw, err := battlelog.NewWriter(*logDir, battleID)
	if err != nil {
		logger.Fatalf("battle log: %v", err)
	}
	defer blw.Close()
	blRec := battlelog.NewRecorder(blw, eng.Bus(), log.New(os.Stdout, "[battlelog] ", log.LstdFlags|log.Lmicroseconds))

	var sdb *statsdb.DB
	var statsRec *statsdb.Recorder
	if *statsPath != "" {
		sdb, err = statsdb.Open(*statsPath, log.New(os.Stdout, "[statsdb] ", log.LstdFlags|log.Lmicroseconds))
		if err != nil {
			logger.Fatalf("stats db: %v", err)
		}
		defer sdb.Close()
		statsRec = statsdb.NewRecorder(sdb, battleID, eng.Bus(), logger)
	}

	cmdline := *agentCmd
	if cmdline == "" {
		cmdline = tune.AgentCmd
	}
	var sup *agent.Supervisor
	if cmdline != "" {
		pop := *population
		if pop <= 0 {
			pop = tune.Population
		}
		sup = agent.NewSupervisor(eng, agent.SupervisorConfig{
			Population:  pop,
			Factory:     enemyFactory(cmdline, *seed, tune.Session.CommandBuffer, logger),
			Logger:      log.New(os.Stdout, "[supervisor] ", log.LstdFlags|log.Lmicroseconds),
			Metrics:     metrics,
			NoteBuffer:  tune.Session.NoteBuffer,
			EventBuffer: tune.Session.EventBuffer,
		})
	} else {
		logger.Printf("no agent command line; enemy supervisor disabled, pool stays idle")
	}

	wsSrv := ws.NewServer(eng, ws.Config{
		PlayerLives:   stage.PlayerLives,
		Logger:        log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds),
		Metrics:       metrics,
		CommandBuffer: tune.Session.CommandBuffer,
		NoteBuffer:    tune.Session.NoteBuffer,
		EventBuffer:   tune.Session.EventBuffer,
	})

	ctx, cancel := signalContext()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return blRec.Run(gctx) })
	if statsRec != nil {
		g.Go(func() error { return statsRec.Run(gctx) })
	}
	if sup != nil {
		g.Go(func() error { return sup.Run(gctx) })
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", control.HealthzHandler(eng.Tick))
	mux.HandleFunc("/metrics", control.MetricsHandler(metrics, func() control.BattleGauges {
		st := eng.AdminState()
		return control.BattleGauges{
			Tick:               st.Tick,
			TanksAlive:         len(st.Tanks),
			BulletsInFlight:    len(st.Bullets),
			EnemyPoolRemaining: len(st.PoolRemaining),
			BusDropped:         st.BusDropped,
			GameOver:           st.Over,
		}
	}))

	// Local-only admin endpoints.
	mux.HandleFunc("/admin/v1/state", control.AdminJSONHandler(func() any {
		resp := struct {
			BattleID   string                 `json:"battle_id"`
			Game       game.AdminState        `json:"game"`
			Supervisor *agent.SupervisorState `json:"supervisor,omitempty"`
		}{BattleID: battleID, Game: eng.AdminState()}
		if sup != nil {
			st := sup.State()
			resp.Supervisor = &st
		}
		return resp
	}))
	mux.HandleFunc("/admin/v1/battles", func(rw http.ResponseWriter, r *http.Request) {
		if !control.IsLoopback(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if sdb == nil {
			http.Error(rw, "stats db disabled", http.StatusNotFound)
			return
		}
		n := 20
		if s := r.URL.Query().Get("n"); s != "" {
			fmt.Sscanf(s, "%d", &n)
		}
		battles, err := sdb.RecentBattles(n)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"battles": battles})
	})
	mux.HandleFunc("/admin/v1/kills", func(rw http.ResponseWriter, r *http.Request) {
		if !control.IsLoopback(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if sdb == nil {
			http.Error(rw, "stats db disabled", http.StatusNotFound)
			return
		}
		id := r.URL.Query().Get("battle")
		if id == "" {
			id = battleID
		}
		kills, err := sdb.KillsByClass(id)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"battle": id, "kills_by_class": kills})
	})

	obs := observer.NewServer(eng, battleID, log.New(os.Stdout, "[observer] ", log.LstdFlags|log.Lmicroseconds))
	mux.HandleFunc("/admin/v1/observer/bootstrap", obs.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", obs.WSHandler(ctx))

	mux.HandleFunc("/v1/agents/connect", wsSrv.Handler(ctx))

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("battle %s on stage %q, listening on %s", battleID, stage.Name, *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("shutdown: %v", err)
	}
	logger.Printf("battle %s down after %d ticks", battleID, eng.Tick())
}

// enemyFactory launches argv for each enemy session with the identity and an
// identity-derived seed appended, so every process knows who it is and two
// enemies never share a random stream.
func enemyFactory(cmdline string, seed int64, cmdBuf int, logger *log.Logger) agent.ProcessFactory {
	argv := strings.Fields(cmdline)
	next := int64(0)
	return func(ctx context.Context, playerID string) (agent.Endpoint, error) {
		args := append([]string{}, argv...)
		args = append(args, "-name", playerID)
		if seed != 0 {
			next++
			args = append(args, "-seed", fmt.Sprintf("%d", seed+next))
		}
		return agent.StartProcess(args, cmdBuf, logger)(ctx, playerID)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
