package game

import (
	"fmt"

	"github.com/ecafe8/battle-city/internal/protocol"
)

// Store holds all mutable battle state. It is owned by the engine goroutine
// and has no locking; nothing outside the engine touches it directly.
type Store struct {
	grid Grid

	playerSpawns []Vec2
	enemySpawns  []Vec2

	tanks     map[string]*Tank
	tankOrder []string
	byPlayer  map[string]string // playerID -> tankID

	players     map[string]*Player
	playerOrder []string

	bullets     map[string]*Bullet
	bulletOrder []string

	pool []string // remaining enemy classes, front is next

	nextTankNum   int
	nextBulletNum int
}

func NewStore(stage *Stage) *Store {
	return &Store{
		grid:         stage.Grid().Clone(),
		playerSpawns: append([]Vec2(nil), stage.PlayerSpawns()...),
		enemySpawns:  append([]Vec2(nil), stage.EnemySpawns()...),
		tanks:        map[string]*Tank{},
		byPlayer:     map[string]string{},
		players:      map[string]*Player{},
		bullets:      map[string]*Bullet{},
		pool:         append([]string(nil), stage.Enemies...),
	}
}

func (st *Store) RegisterPlayer(playerID string, lives int, side Side) error {
	if playerID == "" {
		return fmt.Errorf("register: empty player id")
	}
	if _, ok := st.players[playerID]; ok {
		return fmt.Errorf("register: player %s already exists", playerID)
	}
	st.players[playerID] = &Player{ID: playerID, Side: side, Lives: lives}
	st.playerOrder = append(st.playerOrder, playerID)
	return nil
}

func (st *Store) RemovePlayer(playerID string) {
	delete(st.players, playerID)
	delete(st.byPlayer, playerID)
	for i, id := range st.playerOrder {
		if id == playerID {
			st.playerOrder = append(st.playerOrder[:i], st.playerOrder[i+1:]...)
			break
		}
	}
}

func (st *Store) Player(playerID string) (*Player, bool) {
	p, ok := st.players[playerID]
	return p, ok
}

// CreateTank places a new tank. The cell must be free.
func (st *Store) CreateTank(pos Vec2, side Side, class string, hp int) (string, error) {
	if !st.Walkable(pos) {
		return "", fmt.Errorf("create tank: cell %d,%d not free", pos.X, pos.Y)
	}
	if hp <= 0 {
		return "", fmt.Errorf("create tank: hp must be positive, got %d", hp)
	}
	st.nextTankNum++
	id := fmt.Sprintf("T%d", st.nextTankNum)
	dir := DirDown
	if side == SidePlayer {
		dir = DirUp
	}
	st.tanks[id] = &Tank{ID: id, Side: side, Class: class, Pos: pos, Dir: dir, HP: hp}
	st.tankOrder = append(st.tankOrder, id)
	return id, nil
}

// Bind points a player identity at a tank and stamps the tank with its
// owner. A player re-binds on respawn; a tank is bound at most once.
func (st *Store) Bind(playerID, tankID string) error {
	t, ok := st.tanks[tankID]
	if !ok {
		return fmt.Errorf("bind: no tank %s", tankID)
	}
	if _, ok := st.players[playerID]; !ok {
		return fmt.Errorf("bind: no player %s", playerID)
	}
	if t.PlayerID != "" && t.PlayerID != playerID {
		return fmt.Errorf("bind: tank %s already owned by %s", tankID, t.PlayerID)
	}
	t.PlayerID = playerID
	st.byPlayer[playerID] = tankID
	if p := st.players[playerID]; p.Class == "" {
		p.Class = t.Class
	}
	return nil
}

func (st *Store) RemoveTank(tankID string) {
	t, ok := st.tanks[tankID]
	if !ok {
		return
	}
	if t.PlayerID != "" && st.byPlayer[t.PlayerID] == tankID {
		delete(st.byPlayer, t.PlayerID)
	}
	delete(st.tanks, tankID)
	for i, id := range st.tankOrder {
		if id == tankID {
			st.tankOrder = append(st.tankOrder[:i], st.tankOrder[i+1:]...)
			break
		}
	}
}

func (st *Store) Tank(tankID string) (*Tank, bool) {
	t, ok := st.tanks[tankID]
	return t, ok
}

func (st *Store) TankByPlayer(playerID string) (*Tank, bool) {
	id, ok := st.byPlayer[playerID]
	if !ok {
		return nil, false
	}
	return st.tanks[id], st.tanks[id] != nil
}

// Tanks returns snapshots in spawn order.
func (st *Store) Tanks() []protocol.TankInfo {
	out := make([]protocol.TankInfo, 0, len(st.tankOrder))
	for _, id := range st.tankOrder {
		if t, ok := st.tanks[id]; ok {
			out = append(out, t.Info())
		}
	}
	return out
}

func (st *Store) TanksAlive(side Side) int {
	n := 0
	for _, t := range st.tanks {
		if t.Side == side {
			n++
		}
	}
	return n
}

func (st *Store) SpawnBullet(t *Tank) *Bullet {
	st.nextBulletNum++
	b := &Bullet{
		ID:       fmt.Sprintf("B%d", st.nextBulletNum),
		TankID:   t.ID,
		PlayerID: t.PlayerID,
		Side:     t.Side,
		Pos:      t.Pos,
		Dir:      t.Dir,
	}
	st.bullets[b.ID] = b
	st.bulletOrder = append(st.bulletOrder, b.ID)
	return b
}

func (st *Store) RemoveBullet(bulletID string) {
	delete(st.bullets, bulletID)
	for i, id := range st.bulletOrder {
		if id == bulletID {
			st.bulletOrder = append(st.bulletOrder[:i], st.bulletOrder[i+1:]...)
			break
		}
	}
}

// BulletsInFlight counts live bullets; used by metrics.
func (st *Store) BulletsInFlight() int { return len(st.bullets) }

func (st *Store) PeekEnemies() []string {
	return append([]string(nil), st.pool...)
}

func (st *Store) PopEnemy() (string, bool) {
	if len(st.pool) == 0 {
		return "", false
	}
	class := st.pool[0]
	st.pool = st.pool[1:]
	return class, true
}

// SpawnPosition returns the first free spawn cell for a side, in stage
// order.
func (st *Store) SpawnPosition(side Side) (Vec2, bool) {
	spawns := st.enemySpawns
	if side == SidePlayer {
		spawns = st.playerSpawns
	}
	for _, p := range spawns {
		if st.Walkable(p) {
			return p, true
		}
	}
	return Vec2{}, false
}

// Walkable reports whether a tank can occupy the cell.
func (st *Store) Walkable(p Vec2) bool {
	if !st.grid.InBounds(p) {
		return false
	}
	if st.grid.At(p) != CellEmpty {
		return false
	}
	return st.TankAt(p) == nil
}

func (st *Store) TankAt(p Vec2) *Tank {
	for _, id := range st.tankOrder {
		if t := st.tanks[id]; t != nil && t.Pos == p {
			return t
		}
	}
	return nil
}

func (st *Store) MapInfo() protocol.MapInfo {
	return protocol.MapInfo{Width: st.grid.W, Height: st.grid.H, Rows: st.grid.Rows()}
}
