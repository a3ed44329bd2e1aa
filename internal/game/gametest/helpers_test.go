package gametest

import (
	"testing"

	"github.com/ecafe8/battle-city/internal/game"
)

func firedOf(evs []game.Event) []game.BulletFired {
	var out []game.BulletFired
	for _, ev := range evs {
		if e, ok := ev.(game.BulletFired); ok {
			out = append(out, e)
		}
	}
	return out
}

func killedOf(evs []game.Event) []game.TankKilled {
	var out []game.TankKilled
	for _, ev := range evs {
		if e, ok := ev.(game.TankKilled); ok {
			out = append(out, e)
		}
	}
	return out
}

func spawnedOf(evs []game.Event) []game.TankSpawned {
	var out []game.TankSpawned
	for _, ev := range evs {
		if e, ok := ev.(game.TankSpawned); ok {
			out = append(out, e)
		}
	}
	return out
}

// hitsOf flattens the per-tick destruction batches into single hits.
func hitsOf(evs []game.Event) []game.BulletHit {
	var out []game.BulletHit
	for _, ev := range evs {
		if e, ok := ev.(game.BulletsDestroyed); ok {
			out = append(out, e.Bullets...)
		}
	}
	return out
}

func gameOverOf(evs []game.Event) (game.GameOver, bool) {
	for _, ev := range evs {
		if e, ok := ev.(game.GameOver); ok {
			return e, true
		}
	}
	return game.GameOver{}, false
}

func wantNoGameOver(t *testing.T, evs []game.Event) {
	t.Helper()
	if over, ok := gameOverOf(evs); ok {
		t.Fatalf("unexpected game over: winner=%s tick=%d", over.Winner, over.Tick)
	}
}
