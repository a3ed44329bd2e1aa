// Package control is the ops surface: the shared metrics counters and the
// plain-text /metrics, /healthz and /admin handlers served by cmd/server.
package control

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
)

// Metrics holds the counters the agent sessions bump as traffic flows. All
// methods tolerate a nil receiver, so callers built without an ops surface
// skip the bookkeeping instead of checking.
type Metrics struct {
	commandsTotal       atomic.Uint64
	notesTotal          atomic.Uint64
	protocolErrorsTotal atomic.Uint64
	sessionsActive      atomic.Int64
	sessionsTotal       atomic.Uint64
}

func (m *Metrics) IncCommands() {
	if m != nil {
		m.commandsTotal.Add(1)
	}
}

func (m *Metrics) IncNotes() {
	if m != nil {
		m.notesTotal.Add(1)
	}
}

func (m *Metrics) IncProtocolErrors() {
	if m != nil {
		m.protocolErrorsTotal.Add(1)
	}
}

func (m *Metrics) SessionStarted() {
	if m != nil {
		m.sessionsActive.Add(1)
		m.sessionsTotal.Add(1)
	}
}

func (m *Metrics) SessionEnded() {
	if m != nil {
		m.sessionsActive.Add(-1)
	}
}

func (m *Metrics) CommandsTotal() uint64       { return m.commandsTotal.Load() }
func (m *Metrics) NotesTotal() uint64          { return m.notesTotal.Load() }
func (m *Metrics) ProtocolErrorsTotal() uint64 { return m.protocolErrorsTotal.Load() }
func (m *Metrics) SessionsActive() int64       { return m.sessionsActive.Load() }
func (m *Metrics) SessionsTotal() uint64       { return m.sessionsTotal.Load() }

// BattleGauges is the per-scrape battle snapshot the caller derives from the
// engine; the handler never talks to the engine itself.
type BattleGauges struct {
	Tick               uint64
	TanksAlive         int
	BulletsInFlight    int
	EnemyPoolRemaining int
	BusDropped         uint64
	GameOver           bool
}

// MetricsHandler renders the minimal Prometheus exposition format.
func MetricsHandler(m *Metrics, gauges func() BattleGauges) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		g := gauges()

		fmt.Fprintf(rw, "# HELP battle_ticks_total Ticks the battle has run.\n")
		fmt.Fprintf(rw, "# TYPE battle_ticks_total counter\n")
		fmt.Fprintf(rw, "battle_ticks_total %d\n", g.Tick)

		fmt.Fprintf(rw, "# HELP battle_tanks_alive Tanks currently on the field.\n")
		fmt.Fprintf(rw, "# TYPE battle_tanks_alive gauge\n")
		fmt.Fprintf(rw, "battle_tanks_alive %d\n", g.TanksAlive)

		fmt.Fprintf(rw, "# HELP battle_bullets_inflight Bullets currently in flight.\n")
		fmt.Fprintf(rw, "# TYPE battle_bullets_inflight gauge\n")
		fmt.Fprintf(rw, "battle_bullets_inflight %d\n", g.BulletsInFlight)

		fmt.Fprintf(rw, "# HELP enemy_pool_remaining Enemies left in the stage roster.\n")
		fmt.Fprintf(rw, "# TYPE enemy_pool_remaining gauge\n")
		fmt.Fprintf(rw, "enemy_pool_remaining %d\n", g.EnemyPoolRemaining)

		fmt.Fprintf(rw, "# HELP battle_over Whether the battle has ended (0/1).\n")
		fmt.Fprintf(rw, "# TYPE battle_over gauge\n")
		fmt.Fprintf(rw, "battle_over %d\n", boolTo01(g.GameOver))

		fmt.Fprintf(rw, "# HELP battle_bus_dropped_total Events dropped on slow bus subscribers.\n")
		fmt.Fprintf(rw, "# TYPE battle_bus_dropped_total counter\n")
		fmt.Fprintf(rw, "battle_bus_dropped_total %d\n", g.BusDropped)

		fmt.Fprintf(rw, "# HELP agent_sessions_active Agent sessions currently running.\n")
		fmt.Fprintf(rw, "# TYPE agent_sessions_active gauge\n")
		fmt.Fprintf(rw, "agent_sessions_active %d\n", m.SessionsActive())

		fmt.Fprintf(rw, "# HELP agent_sessions_total Agent sessions started since boot.\n")
		fmt.Fprintf(rw, "# TYPE agent_sessions_total counter\n")
		fmt.Fprintf(rw, "agent_sessions_total %d\n", m.SessionsTotal())

		fmt.Fprintf(rw, "# HELP agent_commands_total Commands received from agents.\n")
		fmt.Fprintf(rw, "# TYPE agent_commands_total counter\n")
		fmt.Fprintf(rw, "agent_commands_total %d\n", m.CommandsTotal())

		fmt.Fprintf(rw, "# HELP agent_notes_total Notes forwarded to agents.\n")
		fmt.Fprintf(rw, "# TYPE agent_notes_total counter\n")
		fmt.Fprintf(rw, "agent_notes_total %d\n", m.NotesTotal())

		fmt.Fprintf(rw, "# HELP agent_protocol_errors_total Sessions ended by a protocol violation.\n")
		fmt.Fprintf(rw, "# TYPE agent_protocol_errors_total counter\n")
		fmt.Fprintf(rw, "agent_protocol_errors_total %d\n", m.ProtocolErrorsTotal())
	}
}

func boolTo01(b bool) int {
	if b {
		return 1
	}
	return 0
}

// HealthzHandler reports liveness plus the current tick.
func HealthzHandler(tick func() uint64) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick()})
	}
}

// AdminJSONHandler serves a loopback-only JSON debug endpoint. The state
// closure runs per request; keep it cheap.
func AdminJSONHandler(state func() any) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !IsLoopback(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(state())
	}
}

func IsLoopback(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
