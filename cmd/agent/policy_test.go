package main

import (
	"math/rand"
	"testing"

	"github.com/ecafe8/battle-city/internal/protocol"
)

func tank(id, side string, x, y int) protocol.TankInfo {
	return protocol.TankInfo{ID: id, Side: side, X: x, Y: y, Direction: protocol.DirUp}
}

func TestFacingTo(t *testing.T) {
	me := tank("T1", protocol.SidePlayer, 5, 5)
	cases := []struct {
		name  string
		other protocol.TankInfo
		dir   string
		ok    bool
	}{
		{"left", tank("T2", protocol.SideEnemy, 1, 5), protocol.DirLeft, true},
		{"right", tank("T2", protocol.SideEnemy, 9, 5), protocol.DirRight, true},
		{"up", tank("T2", protocol.SideEnemy, 5, 0), protocol.DirUp, true},
		{"down", tank("T2", protocol.SideEnemy, 5, 8), protocol.DirDown, true},
		{"diagonal", tank("T2", protocol.SideEnemy, 2, 2), "", false},
		{"same cell", tank("T2", protocol.SideEnemy, 5, 5), "", false},
	}
	for _, tc := range cases {
		dir, ok := facingTo(me, tc.other)
		if dir != tc.dir || ok != tc.ok {
			t.Errorf("%s: got %q,%v want %q,%v", tc.name, dir, ok, tc.dir, tc.ok)
		}
	}
}

func TestPickTarget(t *testing.T) {
	me := tank("T1", protocol.SidePlayer, 5, 5)
	tanks := []protocol.TankInfo{
		me,
		tank("friend", protocol.SidePlayer, 5, 1),
		tank("far", protocol.SideEnemy, 5, 0),
		tank("near", protocol.SideEnemy, 7, 5),
		tank("offline", protocol.SideEnemy, 1, 2),
	}
	got, dir, ok := pickTarget(me, tanks)
	if !ok {
		t.Fatalf("no target picked")
	}
	if got.ID != "near" || dir != protocol.DirRight {
		t.Fatalf("picked %s dir %s, want near dir RIGHT", got.ID, dir)
	}

	_, _, ok = pickTarget(me, []protocol.TankInfo{me, tank("rogue", protocol.SideEnemy, 2, 3)})
	if ok {
		t.Fatalf("picked a target with nothing aligned")
	}
}

func TestOpenAhead(t *testing.T) {
	w := world{grid: protocol.MapInfo{
		Width:  3,
		Height: 3,
		Rows:   []string{"###", "#..", "#.#"},
	}}
	me := tank("T1", protocol.SidePlayer, 1, 1)

	if w.openAhead(me, protocol.DirUp) {
		t.Fatalf("brick above counted open")
	}
	if !w.openAhead(me, protocol.DirRight) {
		t.Fatalf("empty cell right counted blocked")
	}
	if !w.openAhead(me, protocol.DirDown) {
		t.Fatalf("empty cell below counted blocked")
	}

	edge := tank("T1", protocol.SidePlayer, 2, 1)
	if w.openAhead(edge, protocol.DirRight) {
		t.Fatalf("map edge counted open")
	}

	unknown := world{}
	if !unknown.openAhead(me, protocol.DirUp) {
		t.Fatalf("unknown map should count as open")
	}
}

func TestWander(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	// Only down is open.
	me := tank("T1", protocol.SidePlayer, 1, 1)
	w := world{
		me: &me,
		grid: protocol.MapInfo{
			Width:  3,
			Height: 3,
			Rows:   []string{"###", "#.#", "#.#"},
		},
	}
	for i := 0; i < 20; i++ {
		dir, steps, ok := w.wander(rng)
		if !ok {
			t.Fatalf("wander found no direction with one open")
		}
		if dir != protocol.DirDown {
			t.Fatalf("wander picked %s through a wall", dir)
		}
		if steps < 1 || steps > 3 {
			t.Fatalf("wander steps %d out of range", steps)
		}
	}

	// Fully boxed in.
	boxed := world{
		me: &me,
		grid: protocol.MapInfo{
			Width:  3,
			Height: 3,
			Rows:   []string{"###", "#.#", "###"},
		},
	}
	if _, _, ok := boxed.wander(rng); ok {
		t.Fatalf("wander escaped a sealed box")
	}

	// No tank yet.
	if _, _, ok := (&world{}).wander(rng); ok {
		t.Fatalf("wander moved without a tank")
	}
}
