package game

import (
	"strings"
	"testing"
)

func TestParseStage(t *testing.T) {
	raw := `
name: corridor
rows:
  - "E.#.P"
  - "X.B.."
enemies: [light, ARMOR]
player_lives: 2
`
	s, err := ParseStage([]byte(raw))
	if err != nil {
		t.Fatalf("ParseStage: %v", err)
	}
	g := s.Grid()
	if g.W != 5 || g.H != 2 {
		t.Fatalf("grid %dx%d, want 5x2", g.W, g.H)
	}
	if got := g.At(Vec2{2, 0}); got != CellBrick {
		t.Fatalf("cell 2,0 = %v, want brick", got)
	}
	if got := g.At(Vec2{0, 1}); got != CellSteel {
		t.Fatalf("cell 0,1 = %v, want steel", got)
	}
	if got := g.At(Vec2{2, 1}); got != CellBase {
		t.Fatalf("cell 2,1 = %v, want base", got)
	}
	// Spawn markers leave empty terrain behind.
	if got := g.At(Vec2{0, 0}); got != CellEmpty {
		t.Fatalf("enemy spawn cell = %v, want empty", got)
	}
	if got := s.EnemySpawns(); len(got) != 1 || got[0] != (Vec2{0, 0}) {
		t.Fatalf("enemy spawns = %v", got)
	}
	if got := s.PlayerSpawns(); len(got) != 1 || got[0] != (Vec2{4, 0}) {
		t.Fatalf("player spawns = %v", got)
	}
	if !s.HasBase() {
		t.Fatalf("expected HasBase")
	}
	if s.Enemies[0] != "LIGHT" || s.Enemies[1] != "ARMOR" {
		t.Fatalf("enemy classes not normalized: %v", s.Enemies)
	}
	if s.PlayerLives != 2 {
		t.Fatalf("player lives = %d, want 2", s.PlayerLives)
	}
}

func TestParseStage_DefaultLives(t *testing.T) {
	s, err := ParseStage([]byte("name: bare\nrows: [\"E\"]\nenemies: []\n"))
	if err != nil {
		t.Fatalf("ParseStage: %v", err)
	}
	if s.PlayerLives != 3 {
		t.Fatalf("player lives = %d, want default 3", s.PlayerLives)
	}
}

func TestParseStage_Rejects(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantSub string
	}{
		{"missing name", "rows: [\"E\"]\n", "missing name"},
		{"no rows", "name: x\n", "no rows"},
		{"ragged rows", "name: x\nrows: [\"E..\", \"..\"]\n", "width"},
		{"unknown cell", "name: x\nrows: [\"E?\"]\n", "unknown cell"},
		{"no enemy spawn", "name: x\nrows: [\"P.\"]\n", "no enemy spawns"},
		{"unknown enemy class", "name: x\nrows: [\"E\"]\nenemies: [TURBO]\n", "unknown enemy class"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseStage([]byte(tc.raw))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestGridRowsRoundTrip(t *testing.T) {
	s, err := ParseStage([]byte("name: x\nrows: [\"#X.B\", \"....\"]\nenemies: []\n"))
	if err == nil {
		t.Fatalf("expected rejection: no enemy spawn")
	}
	s, err = ParseStage([]byte("name: x\nrows: [\"#XEB\", \"....\"]\n"))
	if err != nil {
		t.Fatalf("ParseStage: %v", err)
	}
	g := s.Grid()
	rows := g.Rows()
	// The spawn marker renders as empty terrain.
	if rows[0] != "#X.B" || rows[1] != "...." {
		t.Fatalf("rows = %v", rows)
	}
}
