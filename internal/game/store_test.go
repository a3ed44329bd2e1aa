package game

import (
	"testing"

	"github.com/ecafe8/battle-city/internal/protocol"
)

func testStage(t *testing.T) *Stage {
	t.Helper()
	s, err := ParseStage([]byte(`
name: store-test
rows:
  - "EE"
  - ".."
  - "PP"
enemies: [LIGHT, FAST, ARMOR]
`))
	if err != nil {
		t.Fatalf("ParseStage: %v", err)
	}
	return s
}

func TestStore_RegisterRejectsDuplicates(t *testing.T) {
	st := NewStore(testStage(t))
	if err := st.RegisterPlayer("p1", 3, SidePlayer); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := st.RegisterPlayer("p1", 3, SidePlayer); err == nil {
		t.Fatalf("duplicate register accepted")
	}
	if err := st.RegisterPlayer("", 3, SidePlayer); err == nil {
		t.Fatalf("empty id accepted")
	}
}

func TestStore_BindRules(t *testing.T) {
	st := NewStore(testStage(t))
	if err := st.RegisterPlayer("p1", 3, SidePlayer); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := st.RegisterPlayer("p2", 3, SidePlayer); err != nil {
		t.Fatalf("register: %v", err)
	}
	id, err := st.CreateTank(Vec2{0, 2}, SidePlayer, protocol.ClassFast, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := st.Bind("ghost", id); err == nil {
		t.Fatalf("bind to unknown player accepted")
	}
	if err := st.Bind("p1", "T99"); err == nil {
		t.Fatalf("bind to unknown tank accepted")
	}
	if err := st.Bind("p1", id); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := st.Bind("p2", id); err == nil {
		t.Fatalf("tank re-owned by a second player")
	}

	// The first bind records the class for later respawns.
	p, _ := st.Player("p1")
	if p.Class != protocol.ClassFast {
		t.Fatalf("recorded class = %q", p.Class)
	}
}

func TestStore_CreateTankRejectsOccupiedCell(t *testing.T) {
	st := NewStore(testStage(t))
	if _, err := st.CreateTank(Vec2{0, 0}, SideEnemy, protocol.ClassLight, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.CreateTank(Vec2{0, 0}, SideEnemy, protocol.ClassLight, 1); err == nil {
		t.Fatalf("two tanks on one cell")
	}
	if _, err := st.CreateTank(Vec2{5, 5}, SideEnemy, protocol.ClassLight, 1); err == nil {
		t.Fatalf("tank outside the map")
	}
	if _, err := st.CreateTank(Vec2{1, 0}, SideEnemy, protocol.ClassLight, 0); err == nil {
		t.Fatalf("zero-hp tank accepted")
	}
}

func TestStore_SpawnPositionSkipsOccupied(t *testing.T) {
	st := NewStore(testStage(t))
	pos, ok := st.SpawnPosition(SideEnemy)
	if !ok || pos != (Vec2{0, 0}) {
		t.Fatalf("first enemy spawn = %v ok=%v", pos, ok)
	}
	if _, err := st.CreateTank(pos, SideEnemy, protocol.ClassLight, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	pos, ok = st.SpawnPosition(SideEnemy)
	if !ok || pos != (Vec2{1, 0}) {
		t.Fatalf("second enemy spawn = %v ok=%v", pos, ok)
	}
	if _, err := st.CreateTank(pos, SideEnemy, protocol.ClassLight, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := st.SpawnPosition(SideEnemy); ok {
		t.Fatalf("spawn reported with every cell taken")
	}
}

func TestStore_PoolIsFIFO(t *testing.T) {
	st := NewStore(testStage(t))
	want := []string{"LIGHT", "FAST", "ARMOR"}
	for _, w := range want {
		class, ok := st.PopEnemy()
		if !ok || class != w {
			t.Fatalf("pop = %q ok=%v, want %q", class, ok, w)
		}
	}
	if _, ok := st.PopEnemy(); ok {
		t.Fatalf("pop from empty pool succeeded")
	}
	if got := st.PeekEnemies(); len(got) != 0 {
		t.Fatalf("peek after drain = %v", got)
	}
}
