package gametest

import (
	"testing"

	"github.com/ecafe8/battle-city/internal/protocol"
	"github.com/ecafe8/battle-city/internal/tuning"
)

func TestFire_SpawnsBulletAndStartsCooldown(t *testing.T) {
	h := NewHarness(t, DefaultStage)
	p := h.SpawnPlayer("p1", protocol.ClassLight, 3)

	p.Script.QueueFire()
	evs := h.Step()
	fired := firedOf(evs)
	if len(fired) != 1 {
		t.Fatalf("fired %d bullets, want 1", len(fired))
	}
	if fired[0].PlayerID != "p1" {
		t.Fatalf("bullet owner = %q", fired[0].PlayerID)
	}

	fi, ok := h.Eng.FireInfo("p1")
	if !ok {
		t.Fatalf("no fire info for p1")
	}
	if fi.BulletCount != 1 {
		t.Fatalf("bullet count = %d, want 1", fi.BulletCount)
	}
	if fi.CanFire {
		t.Fatalf("can_fire true right after firing")
	}
	if fi.Cooldown != h.Tun.FireCooldownTicks {
		t.Fatalf("cooldown = %d, want %d", fi.Cooldown, h.Tun.FireCooldownTicks)
	}
	if fi.BulletLimit != h.Tun.BulletLimit {
		t.Fatalf("bullet limit = %d, want %d", fi.BulletLimit, h.Tun.BulletLimit)
	}
}

func TestFire_AttemptDuringCooldownIsSpent(t *testing.T) {
	h := NewHarness(t, DefaultStage)
	p := h.SpawnPlayer("p1", protocol.ClassLight, 3)

	p.Script.QueueFire()
	if got := firedOf(h.Step()); len(got) != 1 {
		t.Fatalf("first fire: %d bullets", len(got))
	}

	// This attempt lands while the barrel is cooling; it is consumed and
	// never fires late.
	p.Script.QueueFire()
	var later []int
	for i := 0; i < h.Tun.FireCooldownTicks+2; i++ {
		if got := firedOf(h.Step()); len(got) != 0 {
			later = append(later, i)
		}
	}
	if len(later) != 0 {
		t.Fatalf("spent attempt fired on later ticks %v", later)
	}

	// A fresh attempt after the cooldown fires normally.
	p.Script.QueueFire()
	if got := firedOf(h.Step()); len(got) != 1 {
		t.Fatalf("post-cooldown fire: %d bullets", len(got))
	}
}

func TestFire_BulletLimitBlocksThirdShot(t *testing.T) {
	stage := `
name: tall
rows:
  - "E"
  - "."
  - "."
  - "."
  - "."
  - "."
  - "."
  - "."
  - "."
  - "."
  - "."
  - "P"
`
	h := NewHarnessTuned(t, stage, func(tn *tuning.Tuning) {
		tn.FireCooldownTicks = 0
	})
	p := h.SpawnPlayer("p1", protocol.ClassLight, 3)

	p.Script.QueueFire()
	if got := firedOf(h.Step()); len(got) != 1 {
		t.Fatalf("shot 1: %d bullets", len(got))
	}
	p.Script.QueueFire()
	if got := firedOf(h.Step()); len(got) != 1 {
		t.Fatalf("shot 2: %d bullets", len(got))
	}

	fi, _ := h.Eng.FireInfo("p1")
	if fi.BulletCount != 2 || fi.CanFire {
		t.Fatalf("fire info with 2 in flight = %+v", fi)
	}

	p.Script.QueueFire()
	if got := firedOf(h.Step()); len(got) != 0 {
		t.Fatalf("third shot fired with %d bullets already in flight", fi.BulletCount)
	}

	// Let the first bullet leave the map, then firing works again.
	for i := 0; i < 4; i++ {
		h.Step()
	}
	fi, _ = h.Eng.FireInfo("p1")
	if fi.BulletCount >= h.Tun.BulletLimit {
		t.Fatalf("bullet count = %d, want below limit", fi.BulletCount)
	}
	p.Script.QueueFire()
	if got := firedOf(h.Step()); len(got) != 1 {
		t.Fatalf("fire after a bullet expired: %d bullets", len(got))
	}
}

func TestFireInfo_UnknownPlayer(t *testing.T) {
	h := NewHarness(t, DefaultStage)
	if _, ok := h.Eng.FireInfo("ghost"); ok {
		t.Fatalf("fire info reported for an unknown identity")
	}
}
