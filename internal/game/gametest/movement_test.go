package gametest

import (
	"testing"

	"github.com/ecafe8/battle-city/internal/game"
	"github.com/ecafe8/battle-city/internal/protocol"
)

func TestForward_LightMovesOneCellPerTick(t *testing.T) {
	h := NewHarness(t, DefaultStage)
	p := h.SpawnPlayer("p1", protocol.ClassLight, 3)

	start := h.Tank("p1")
	if start.X != 0 || start.Y != 3 || start.Direction != protocol.DirUp {
		t.Fatalf("spawn state = %+v", start)
	}

	p.Script.QueueForward(5)
	h.Step()
	if ti := h.Tank("p1"); ti.Y != 2 {
		t.Fatalf("after one tick Y = %d, want 2", ti.Y)
	}

	// Nothing queued: the tank holds position.
	h.Step()
	if ti := h.Tank("p1"); ti.Y != 2 {
		t.Fatalf("idle tick moved the tank to Y=%d", ti.Y)
	}
}

func TestForward_FastMovesTwoCellsPerTick(t *testing.T) {
	h := NewHarness(t, DefaultStage)
	e := h.SpawnEnemy("e1", protocol.ClassFast)

	if ti := h.Tank("e1"); ti.Direction != protocol.DirDown {
		t.Fatalf("enemy spawn faces %s, want %s", ti.Direction, protocol.DirDown)
	}

	e.Script.QueueForward(5)
	h.Step()
	if ti := h.Tank("e1"); ti.Y != 2 {
		t.Fatalf("fast tank Y = %d after one tick, want 2", ti.Y)
	}
}

func TestForward_RemainingDistanceCapsSpeed(t *testing.T) {
	h := NewHarness(t, DefaultStage)
	e := h.SpawnEnemy("e1", protocol.ClassFast)

	e.Script.QueueForward(1)
	h.Step()
	if ti := h.Tank("e1"); ti.Y != 1 {
		t.Fatalf("fast tank Y = %d with 1 cell requested, want 1", ti.Y)
	}
}

func TestForward_BlockedByTerrain(t *testing.T) {
	h := NewHarness(t, `
name: blocked
rows:
  - "E.."
  - "#X."
  - "P.."
`)
	p := h.SpawnPlayer("p1", protocol.ClassLight, 3)

	p.Script.QueueForward(5)
	h.Step()
	if ti := h.Tank("p1"); ti.X != 0 || ti.Y != 2 {
		t.Fatalf("tank moved into brick: %d,%d", ti.X, ti.Y)
	}

	p.Script.QueueTurn(game.DirRight)
	h.Step()
	p.Script.QueueForward(5)
	h.Step()
	p.Script.QueueTurn(game.DirUp)
	h.Step()
	p.Script.QueueForward(5)
	h.Step()
	if ti := h.Tank("p1"); ti.X != 1 || ti.Y != 2 {
		t.Fatalf("tank moved into steel: %d,%d", ti.X, ti.Y)
	}
}

func TestForward_BlockedByMapEdge(t *testing.T) {
	h := NewHarness(t, DefaultStage)
	p := h.SpawnPlayer("p1", protocol.ClassLight, 3)

	p.Script.QueueTurn(game.DirLeft)
	h.Step()
	p.Script.QueueForward(3)
	h.Step()
	if ti := h.Tank("p1"); ti.X != 0 {
		t.Fatalf("tank left the map: X=%d", ti.X)
	}
}

func TestForward_BlockedByTank_ActivationOrderWins(t *testing.T) {
	h := NewHarness(t, `
name: corridor
rows:
  - "E"
  - "."
  - "P"
`)
	e := h.SpawnEnemy("e1", protocol.ClassLight)
	p := h.SpawnPlayer("p1", protocol.ClassLight, 3)

	// Both want the middle cell; the first-activated controller moves first
	// and the second finds it taken.
	e.Script.QueueForward(1)
	p.Script.QueueForward(1)
	h.Step()
	if ti := h.Tank("e1"); ti.Y != 1 {
		t.Fatalf("first-activated tank at Y=%d, want 1", ti.Y)
	}
	if ti := h.Tank("p1"); ti.Y != 2 {
		t.Fatalf("second tank at Y=%d, want 2", ti.Y)
	}

	e.Script.QueueForward(1)
	h.Step()
	if ti := h.Tank("e1"); ti.Y != 1 {
		t.Fatalf("tank drove into an occupied cell: Y=%d", ti.Y)
	}
}

func TestTurn_ChangesFacingWithoutMoving(t *testing.T) {
	h := NewHarness(t, DefaultStage)
	p := h.SpawnPlayer("p1", protocol.ClassLight, 3)

	p.Script.QueueTurn(game.DirRight)
	h.Step()
	ti := h.Tank("p1")
	if ti.Direction != protocol.DirRight {
		t.Fatalf("direction = %s, want %s", ti.Direction, protocol.DirRight)
	}
	if ti.X != 0 || ti.Y != 3 {
		t.Fatalf("turn moved the tank to %d,%d", ti.X, ti.Y)
	}

	p.Script.QueueForward(1)
	h.Step()
	if ti := h.Tank("p1"); ti.X != 1 || ti.Y != 3 {
		t.Fatalf("forward after turn went to %d,%d, want 1,3", ti.X, ti.Y)
	}
}
