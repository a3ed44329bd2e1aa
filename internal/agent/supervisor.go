package agent

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/ecafe8/battle-city/internal/control"
	"github.com/ecafe8/battle-city/internal/game"
)

// SupervisorConfig sets the population policy and how agents are launched.
type SupervisorConfig struct {
	// Population is how many agent tanks to keep on the field while the
	// enemy pool lasts. Zero means one.
	Population int
	Factory    ProcessFactory
	Logger     *log.Logger
	Metrics    *control.Metrics

	// NoteBuffer and EventBuffer are handed to each session. Zero means the
	// session defaults.
	NoteBuffer  int
	EventBuffer int
}

// SupervisorState is the snapshot served at /admin/state.
type SupervisorState struct {
	Running    bool     `json:"running"`
	Population int      `json:"population"`
	Sessions   []string `json:"sessions"`
	Spawned    int      `json:"spawned_total"`
}

type handle struct {
	sess   *Session
	tankID string
}

// Supervisor keeps the enemy roster manned by agents. On STAGE_LOADED it
// fills the population from the enemy pool; every agent death is answered
// with one replacement attempt while the pool lasts; GAME_OVER tears every
// session down. All bookkeeping lives on the Run goroutine.
//
// Identities are minted once and never reused, so a late exit report from a
// replaced session can always be told apart from the live one.
type Supervisor struct {
	eng    *game.Engine
	cfg    SupervisorConfig
	logger *log.Logger
	sub    *game.Subscription
	exits  chan SessionExit

	running bool
	handles map[string]*handle
	// expected marks identities whose TANK_KILLED is supervisor-made (a
	// spawn rollback) and must not trip the unknown-identity check.
	expected map[string]bool
	nextID   int

	stateReq chan chan SupervisorState
	stopped  chan struct{}
}

// NewSupervisor subscribes to the engine bus immediately, so construct it
// before Engine.Run starts and STAGE_LOADED cannot be missed.
func NewSupervisor(eng *game.Engine, cfg SupervisorConfig) *Supervisor {
	if cfg.Population <= 0 {
		cfg.Population = 1
	}
	eb := cfg.EventBuffer
	if eb <= 0 {
		eb = defaultEventBuffer
	}
	return &Supervisor{
		eng:      eng,
		cfg:      cfg,
		logger:   cfg.Logger,
		sub:      eng.Bus().Subscribe(eb),
		exits:    make(chan SessionExit, 16),
		handles:  map[string]*handle{},
		expected: map[string]bool{},
		stateReq: make(chan chan SupervisorState),
		stopped:  make(chan struct{}),
	}
}

// Run reacts to lifecycle events until the context ends. Sessions started
// here inherit ctx, so stopping the supervisor stops every agent process.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.stopped)
	defer s.sub.Close()
	defer s.cancelAll()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.sub.C:
			s.onEvent(ctx, ev)
		case rep := <-s.exits:
			s.onExit(rep)
		case req := <-s.stateReq:
			req <- s.snapshot()
		}
	}
}

// State is safe from any goroutine; after Run returns it reports zero.
func (s *Supervisor) State() SupervisorState {
	req := make(chan SupervisorState, 1)
	select {
	case s.stateReq <- req:
		return <-req
	case <-s.stopped:
		return SupervisorState{}
	}
}

func (s *Supervisor) onEvent(ctx context.Context, ev game.Event) {
	switch e := ev.(type) {
	case game.StageLoaded:
		s.running = true
		if s.logger != nil {
			s.logger.Printf("stage %q loaded, pool %v, filling population %d", e.Stage, e.Enemies, s.cfg.Population)
		}
		s.fill(ctx)
	case game.TankKilled:
		if !s.running || e.Side != game.SideEnemy.String() {
			return
		}
		if s.expected[e.PlayerID] {
			delete(s.expected, e.PlayerID)
			return
		}
		h, ok := s.handles[e.PlayerID]
		if !ok {
			// The registry is the sole record of live agents. An enemy
			// death it cannot account for means the bookkeeping is wrong,
			// and that must surface, not be shrugged off.
			panic(fmt.Sprintf("supervisor: enemy %s killed but not registered", e.PlayerID))
		}
		h.sess.Cancel()
		delete(s.handles, e.PlayerID)
		s.eng.RemovePlayer(e.PlayerID)
		s.spawnOne(ctx)
	case game.GameOver:
		if s.logger != nil {
			s.logger.Printf("game over, winner %s, cancelling %d sessions", e.Winner, len(s.handles))
		}
		s.cancelAll()
	}
}

// onExit handles a session that died on its own, process crash or protocol
// error. Killing the tank routes the cleanup through the same TANK_KILLED
// path a bullet would take, replacement included.
func (s *Supervisor) onExit(rep SessionExit) {
	if !s.running {
		return
	}
	h, ok := s.handles[rep.PlayerID]
	if !ok || h.sess != rep.Sess {
		return
	}
	if s.logger != nil {
		s.logger.Printf("session %s exited: %v", rep.PlayerID, rep.Err)
	}
	s.eng.KillTank(h.tankID, game.CauseSession)
}

func (s *Supervisor) fill(ctx context.Context) {
	for len(s.handles) < s.cfg.Population {
		if !s.spawnOne(ctx) {
			return
		}
	}
}

// spawnOne stands up one agent tank: fresh identity, player entry, spawn
// cell, pool pop, tank, session, activation. The session starts before
// activation, so commands arriving early see a tank that exists but is not
// yet controlled. Any later step failing rolls the earlier ones back.
func (s *Supervisor) spawnOne(ctx context.Context) bool {
	if len(s.eng.EnemiesRemaining()) == 0 {
		return false
	}

	s.nextID++
	pid := fmt.Sprintf("enemy-%d", s.nextID)
	if err := s.eng.RegisterPlayer(pid, 1, game.SideEnemy); err != nil {
		if s.logger != nil {
			s.logger.Printf("spawn %s: register: %v", pid, err)
		}
		return false
	}
	pos, ok := s.eng.SpawnPosition(game.SideEnemy)
	if !ok {
		if s.logger != nil {
			s.logger.Printf("spawn %s: no free spawn cell", pid)
		}
		s.eng.RemovePlayer(pid)
		return false
	}
	class, ok := s.eng.PopEnemy()
	if !ok {
		s.eng.RemovePlayer(pid)
		return false
	}
	tun := s.eng.Tuning()
	tankID, err := s.eng.CreateTank(pos, game.SideEnemy, class, tun.HPFor(class))
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("spawn %s: create tank: %v", pid, err)
		}
		s.eng.RemovePlayer(pid)
		return false
	}

	sess, err := StartSession(ctx, pid, tankID, SessionConfig{
		Factory:     s.cfg.Factory,
		State:       s.eng,
		Bus:         s.eng.Bus(),
		Logger:      s.logger,
		Metrics:     s.cfg.Metrics,
		NoteBuffer:  s.cfg.NoteBuffer,
		EventBuffer: s.cfg.EventBuffer,
		Exits:       s.exits,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("spawn %s: session: %v", pid, err)
		}
		s.rollbackTank(pid)
		return false
	}
	if err := s.eng.ActivateTank(pid, tankID, sess.Controller()); err != nil {
		if s.logger != nil {
			s.logger.Printf("spawn %s: activate: %v", pid, err)
		}
		sess.Cancel()
		s.rollbackTank(pid)
		return false
	}

	s.handles[pid] = &handle{sess: sess, tankID: tankID}
	if s.logger != nil {
		s.logger.Printf("spawned %s as %s tank %s at %d,%d", pid, class, tankID, pos.X, pos.Y)
	}
	return true
}

// rollbackTank removes a half-spawned identity whose tank already exists.
// The removal publishes a TANK_KILLED this supervisor caused itself, so the
// identity goes on the expected list first.
func (s *Supervisor) rollbackTank(pid string) {
	s.expected[pid] = true
	s.eng.RemovePlayer(pid)
}

func (s *Supervisor) cancelAll() {
	for pid, h := range s.handles {
		h.sess.Cancel()
		delete(s.handles, pid)
	}
	clear(s.expected)
	s.running = false
}

func (s *Supervisor) snapshot() SupervisorState {
	ids := make([]string, 0, len(s.handles))
	for pid := range s.handles {
		ids = append(ids, pid)
	}
	sort.Strings(ids)
	return SupervisorState{
		Running:    s.running,
		Population: s.cfg.Population,
		Sessions:   ids,
		Spawned:    s.nextID,
	}
}
