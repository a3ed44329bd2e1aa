package main

import (
	"math/rand"

	"github.com/ecafe8/battle-city/internal/protocol"
)

// world is everything the agent has learned from its queries so far.
type world struct {
	me    *protocol.TankInfo
	tanks []protocol.TankInfo
	grid  protocol.MapInfo
}

// facingTo reports the direction from me toward other when the two share a
// row or column, the only geometry a bullet can travel.
func facingTo(me, other protocol.TankInfo) (string, bool) {
	switch {
	case me.Y == other.Y && other.X < me.X:
		return protocol.DirLeft, true
	case me.Y == other.Y && other.X > me.X:
		return protocol.DirRight, true
	case me.X == other.X && other.Y < me.Y:
		return protocol.DirUp, true
	case me.X == other.X && other.Y > me.Y:
		return protocol.DirDown, true
	}
	return "", false
}

// pickTarget returns the nearest hostile reachable by a straight shot.
func pickTarget(me protocol.TankInfo, tanks []protocol.TankInfo) (protocol.TankInfo, string, bool) {
	var best protocol.TankInfo
	bestDir := ""
	bestDist := -1
	for _, t := range tanks {
		if t.ID == me.ID || t.Side == me.Side {
			continue
		}
		dir, ok := facingTo(me, t)
		if !ok {
			continue
		}
		d := abs(t.X-me.X) + abs(t.Y-me.Y)
		if bestDist < 0 || d < bestDist {
			best, bestDir, bestDist = t, dir, d
		}
	}
	return best, bestDir, bestDist >= 0
}

// openAhead reports whether the next cell in dir is inside the map and
// empty terrain. Before a map arrives everything counts as open.
func (w *world) openAhead(from protocol.TankInfo, dir string) bool {
	if w.grid.Width == 0 {
		return true
	}
	x, y := from.X, from.Y
	switch dir {
	case protocol.DirUp:
		y--
	case protocol.DirDown:
		y++
	case protocol.DirLeft:
		x--
	case protocol.DirRight:
		x++
	}
	if x < 0 || y < 0 || x >= w.grid.Width || y >= w.grid.Height {
		return false
	}
	return w.grid.Rows[y][x] == '.'
}

// wander picks a walkable direction and run length, preferring the current
// facing so runs look like patrols instead of jitter. ok is false when the
// tank is boxed in.
func (w *world) wander(rng *rand.Rand) (dir string, steps int, ok bool) {
	if w.me == nil {
		return "", 0, false
	}
	me := *w.me
	if w.openAhead(me, me.Direction) && rng.Intn(3) > 0 {
		return me.Direction, 1 + rng.Intn(3), true
	}
	dirs := []string{protocol.DirUp, protocol.DirDown, protocol.DirLeft, protocol.DirRight}
	rng.Shuffle(len(dirs), func(i, j int) { dirs[i], dirs[j] = dirs[j], dirs[i] })
	for _, d := range dirs {
		if w.openAhead(me, d) {
			return d, 1 + rng.Intn(3), true
		}
	}
	return "", 0, false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
