// Package gametest drives an engine through its exported API so battle
// behavior can be tested black-box, tick by tick, from outside the game
// package.
package gametest

import (
	"context"
	"sync"
	"testing"

	"github.com/ecafe8/battle-city/internal/game"
	"github.com/ecafe8/battle-city/internal/protocol"
	"github.com/ecafe8/battle-city/internal/tuning"
)

// DefaultStage is a small open arena: two enemy spawn cells on the top row,
// two player spawn cells on the bottom row, no base.
const DefaultStage = `
name: test-arena
rows:
  - "E...E"
  - "....."
  - "....."
  - "P...P"
enemies: [LIGHT, FAST]
`

// Harness runs an engine with no ticker; Step is the only tick source, so
// every test observes exactly the ticks it asked for.
type Harness struct {
	T   *testing.T
	Eng *game.Engine
	Tun tuning.Tuning

	// Loaded is the STAGE_LOADED event captured when the engine came up.
	Loaded game.StageLoaded

	sub *game.Subscription
}

func NewHarness(t *testing.T, stageYAML string) *Harness {
	return NewHarnessTuned(t, stageYAML, nil)
}

// NewHarnessTuned parses a stage document, applies mod to the default
// tuning and starts the engine. The harness subscribes to the bus before
// Run so no event is missed.
func NewHarnessTuned(t *testing.T, stageYAML string, mod func(*tuning.Tuning)) *Harness {
	t.Helper()

	stage, err := game.ParseStage([]byte(stageYAML))
	if err != nil {
		t.Fatalf("parse stage: %v", err)
	}
	tun := tuning.Default()
	tun.TickMs = 0
	if mod != nil {
		mod(&tun)
	}

	eng := game.NewEngine(stage, tun, nil)
	sub := eng.Bus().Subscribe(256)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		sub.Close()
	})

	h := &Harness{T: t, Eng: eng, Tun: tun, sub: sub}

	ev := <-sub.C
	loaded, ok := ev.(game.StageLoaded)
	if !ok {
		t.Fatalf("first event is %s, want %s", ev.Kind(), game.EvStageLoaded)
	}
	h.Loaded = loaded
	return h
}

// Step advances one tick and returns everything it published, in order.
func (h *Harness) Step() []game.Event {
	h.T.Helper()
	h.Eng.StepOnce()
	return h.Drain()
}

// StepN runs n ticks and returns the concatenated events.
func (h *Harness) StepN(n int) []game.Event {
	h.T.Helper()
	var evs []game.Event
	for i := 0; i < n; i++ {
		evs = append(evs, h.Step()...)
	}
	return evs
}

// Drain empties the event buffer without ticking. StepOnce returns only
// after the tick finished publishing, so a drain right after Step sees the
// whole tick.
func (h *Harness) Drain() []game.Event {
	var out []game.Event
	for {
		select {
		case ev := <-h.sub.C:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// Actor is one scripted identity: registered, spawned and activated.
type Actor struct {
	PlayerID string
	TankID   string
	Script   *Script
}

// SpawnPlayer registers a player-side identity, places its tank on the
// first free player spawn cell and attaches a fresh script.
func (h *Harness) SpawnPlayer(playerID, class string, lives int) *Actor {
	h.T.Helper()
	return h.spawn(playerID, class, lives, game.SidePlayer)
}

func (h *Harness) SpawnEnemy(playerID, class string) *Actor {
	h.T.Helper()
	return h.spawn(playerID, class, 1, game.SideEnemy)
}

func (h *Harness) spawn(playerID, class string, lives int, side game.Side) *Actor {
	h.T.Helper()
	if err := h.Eng.RegisterPlayer(playerID, lives, side); err != nil {
		h.T.Fatalf("register %s: %v", playerID, err)
	}
	pos, ok := h.Eng.SpawnPosition(side)
	if !ok {
		h.T.Fatalf("no free spawn cell for %s", playerID)
	}
	tankID, err := h.Eng.CreateTank(pos, side, class, h.Tun.HPFor(class))
	if err != nil {
		h.T.Fatalf("create tank for %s: %v", playerID, err)
	}
	sc := &Script{}
	if err := h.Eng.ActivateTank(playerID, tankID, sc); err != nil {
		h.T.Fatalf("activate %s: %v", playerID, err)
	}
	return &Actor{PlayerID: playerID, TankID: tankID, Script: sc}
}

// Tank returns the current snapshot for an identity's tank.
func (h *Harness) Tank(playerID string) protocol.TankInfo {
	h.T.Helper()
	ti, ok := h.Eng.TankByPlayer(playerID)
	if !ok {
		h.T.Fatalf("no tank bound to %s", playerID)
	}
	return ti
}

// Script is a Controller fed by the test. Each queued intent is consumed by
// one poll; an empty queue yields no movement and no fire.
type Script struct {
	mu    sync.Mutex
	steps []game.StepIntent
	fires int
}

func (s *Script) QueueTurn(d game.Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, game.StepIntent{Kind: game.IntentTurn, Dir: d})
}

func (s *Script) QueueForward(maxDistance int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, game.StepIntent{Kind: game.IntentForward, MaxDistance: maxDistance})
}

func (s *Script) QueueFire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fires++
}

func (s *Script) PollStep(game.TankView) game.StepIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		return game.StepIntent{}
	}
	in := s.steps[0]
	s.steps = s.steps[1:]
	return in
}

func (s *Script) PollFire(game.TankView) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fires == 0 {
		return false
	}
	s.fires--
	return true
}
