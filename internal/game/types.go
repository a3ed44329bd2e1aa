package game

import "github.com/ecafe8/battle-city/internal/protocol"

// Vec2 is a cell coordinate. X grows rightward, Y grows downward; row 0 is
// the top of the map.
type Vec2 struct {
	X int
	Y int
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

type Direction int

const (
	DirUp Direction = iota
	DirDown
	DirLeft
	DirRight
)

func (d Direction) Delta() Vec2 {
	switch d {
	case DirUp:
		return Vec2{0, -1}
	case DirDown:
		return Vec2{0, 1}
	case DirLeft:
		return Vec2{-1, 0}
	default:
		return Vec2{1, 0}
	}
}

func (d Direction) String() string {
	switch d {
	case DirUp:
		return protocol.DirUp
	case DirDown:
		return protocol.DirDown
	case DirLeft:
		return protocol.DirLeft
	default:
		return protocol.DirRight
	}
}

func DirectionFromWire(s string) (Direction, bool) {
	switch s {
	case protocol.DirUp:
		return DirUp, true
	case protocol.DirDown:
		return DirDown, true
	case protocol.DirLeft:
		return DirLeft, true
	case protocol.DirRight:
		return DirRight, true
	}
	return DirUp, false
}

// Axis distance between two positions along a facing axis. Forward progress
// is measured on the axis only, so strafing (impossible anyway) or pushback
// never counts toward a forward request.
func AxisDistance(d Direction, from, to Vec2) int {
	var n int
	switch d {
	case DirUp, DirDown:
		n = to.Y - from.Y
	default:
		n = to.X - from.X
	}
	if n < 0 {
		return -n
	}
	return n
}

type Side int

const (
	SidePlayer Side = iota
	SideEnemy
)

func (s Side) String() string {
	if s == SidePlayer {
		return protocol.SidePlayer
	}
	return protocol.SideEnemy
}

// Cell terrain. Spawn markers from the stage file are recorded separately
// and leave an empty cell behind.
type Cell uint8

const (
	CellEmpty Cell = iota
	CellBrick
	CellSteel
	CellBase
)

func (c Cell) Rune() rune {
	switch c {
	case CellBrick:
		return '#'
	case CellSteel:
		return 'X'
	case CellBase:
		return 'B'
	default:
		return '.'
	}
}

type Grid struct {
	W     int
	H     int
	cells []Cell
}

func NewGrid(w, h int) Grid {
	return Grid{W: w, H: h, cells: make([]Cell, w*h)}
}

func (g *Grid) InBounds(p Vec2) bool {
	return p.X >= 0 && p.X < g.W && p.Y >= 0 && p.Y < g.H
}

func (g *Grid) At(p Vec2) Cell {
	return g.cells[p.Y*g.W+p.X]
}

func (g *Grid) Set(p Vec2, c Cell) {
	g.cells[p.Y*g.W+p.X] = c
}

func (g Grid) Clone() Grid {
	c := g
	c.cells = append([]Cell(nil), g.cells...)
	return c
}

// Rows renders the terrain with the stage legend, one string per row.
func (g *Grid) Rows() []string {
	rows := make([]string, g.H)
	buf := make([]rune, g.W)
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			buf[x] = g.At(Vec2{x, y}).Rune()
		}
		rows[y] = string(buf)
	}
	return rows
}

// Tank is one actor. BulletsLive and Cooldown are the firing bookkeeping the
// MY_FIRE_INFO query reports.
type Tank struct {
	ID       string
	PlayerID string
	Side     Side
	Class    string
	Pos      Vec2
	Dir      Direction
	HP       int

	BulletsLive int
	Cooldown    int
}

func (t *Tank) Info() protocol.TankInfo {
	return protocol.TankInfo{
		ID:        t.ID,
		PlayerID:  t.PlayerID,
		Side:      t.Side.String(),
		Class:     t.Class,
		X:         t.Pos.X,
		Y:         t.Pos.Y,
		Direction: t.Dir.String(),
		HP:        t.HP,
	}
}

type Bullet struct {
	ID       string
	TankID   string
	PlayerID string
	Side     Side
	Pos      Vec2
	Dir      Direction
}

// Player is one registered identity. Enemy players have one life; player-side
// entries respawn while lives remain. Class is recorded on first bind so a
// respawn brings back the same kind of tank.
type Player struct {
	ID    string
	Side  Side
	Lives int
	Class string
}

const defaultPlayerClass = protocol.ClassLight

// TankView is the read-only slice of tank state handed to controller polls.
type TankView struct {
	ID  string
	Pos Vec2
	Dir Direction
}

type StepIntentKind int

const (
	IntentNone StepIntentKind = iota
	IntentTurn
	IntentForward
)

// StepIntent is a direction-control decision for one tick. IntentTurn changes
// facing only; IntentForward asks for up to MaxDistance cells along the
// current facing.
type StepIntent struct {
	Kind        StepIntentKind
	Dir         Direction
	MaxDistance int
}

// Controller supplies movement and fire intents for one controlled tank. The
// engine polls it from inside its tick loop, so implementations must return
// without blocking.
type Controller interface {
	PollStep(tv TankView) StepIntent
	PollFire(tv TankView) bool
}
