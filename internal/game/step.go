package game

// Tick resolution order: cooldowns, fire polls, bullet flight, movement
// polls, deaths, events, respawns, game-over check. Controlled tanks are
// visited in activation order and bullets in fire order, so a given input
// sequence always produces the same battle.

func viewOf(t *Tank) TankView {
	return TankView{ID: t.ID, Pos: t.Pos, Dir: t.Dir}
}

func (e *Engine) stepTick() {
	if e.over.Load() {
		return
	}
	tick := e.tick.Add(1)
	st := e.st

	for _, id := range st.tankOrder {
		if t := st.tanks[id]; t.Cooldown > 0 {
			t.Cooldown--
		}
	}

	e.pollFires(tick)
	hits, baseHit, basePos := e.flyBullets()
	e.pollSteps()

	for _, id := range append([]string(nil), st.tankOrder...) {
		t, ok := st.tanks[id]
		if !ok || t.HP > 0 {
			continue
		}
		e.killTankNow(t, CauseBullet, e.killers[t.ID])
	}
	clear(e.killers)

	if len(hits) > 0 {
		e.bus.Publish(BulletsDestroyed{Bullets: hits, Tick: tick})
	}
	if baseHit {
		e.bus.Publish(BaseDestroyed{X: basePos.X, Y: basePos.Y, Tick: tick})
		e.endGame(WinnerEnemy, tick)
		return
	}

	e.respawnPlayers(tick)
	e.checkGameOver()
}

// pollFires consumes each controller's fire request. A request made while
// the tank cannot fire (bullet limit reached or cooling down) is spent with
// no bullet; that is the contract, one FIRE command buys one attempt.
func (e *Engine) pollFires(tick uint64) {
	st := e.st
	for _, pid := range append([]string(nil), e.ctrlOrder...) {
		ctrl := e.controllers[pid]
		t, ok := st.TankByPlayer(pid)
		if !ok || t.HP <= 0 {
			continue
		}
		if !ctrl.PollFire(viewOf(t)) {
			continue
		}
		if t.BulletsLive >= e.tun.BulletLimit || t.Cooldown > 0 {
			continue
		}
		b := st.SpawnBullet(t)
		t.BulletsLive++
		t.Cooldown = e.tun.FireCooldownTicks
		e.bus.Publish(BulletFired{
			BulletID: b.ID, TankID: t.ID, PlayerID: t.PlayerID,
			X: b.Pos.X, Y: b.Pos.Y, Tick: tick,
		})
	}
}

// flyBullets advances every bullet one cell per substep so a fast bullet
// cannot jump a wall. Bullets ignore tanks on their own side.
func (e *Engine) flyBullets() (hits []BulletHit, baseHit bool, basePos Vec2) {
	st := e.st
	for sub := 0; sub < e.tun.BulletSpeed; sub++ {
		for _, bid := range append([]string(nil), st.bulletOrder...) {
			b, ok := st.bullets[bid]
			if !ok {
				continue
			}
			next := b.Pos.Add(b.Dir.Delta())
			hit := func(target string) {
				hits = append(hits, BulletHit{
					BulletID: b.ID, TankID: b.TankID, PlayerID: b.PlayerID,
					Target: target, X: next.X, Y: next.Y,
				})
				e.removeBulletCounted(b)
			}
			if !st.grid.InBounds(next) {
				hit("edge")
				continue
			}
			switch st.grid.At(next) {
			case CellBrick:
				st.grid.Set(next, CellEmpty)
				hit("brick")
			case CellSteel:
				hit("steel")
			case CellBase:
				st.grid.Set(next, CellEmpty)
				baseHit = true
				basePos = next
				hit("base")
			default:
				if t := st.TankAt(next); t != nil && t.Side != b.Side && t.HP > 0 {
					t.HP--
					if t.HP <= 0 {
						e.killers[t.ID] = b.PlayerID
					}
					hit("tank")
				} else {
					b.Pos = next
				}
			}
		}
	}
	return hits, baseHit, basePos
}

func (e *Engine) pollSteps() {
	st := e.st
	for _, pid := range append([]string(nil), e.ctrlOrder...) {
		ctrl := e.controllers[pid]
		t, ok := st.TankByPlayer(pid)
		if !ok || t.HP <= 0 {
			continue
		}
		intent := ctrl.PollStep(viewOf(t))
		switch intent.Kind {
		case IntentTurn:
			t.Dir = intent.Dir
		case IntentForward:
			steps := min(e.tun.SpeedFor(t.Class), intent.MaxDistance)
			for i := 0; i < steps; i++ {
				next := t.Pos.Add(t.Dir.Delta())
				if !st.Walkable(next) {
					break
				}
				t.Pos = next
			}
		}
	}
}

func (e *Engine) removeBulletCounted(b *Bullet) {
	e.st.RemoveBullet(b.ID)
	if owner, ok := e.st.Tank(b.TankID); ok && owner.BulletsLive > 0 {
		owner.BulletsLive--
	}
}

// killTankNow finalizes one death: event out, tank gone, and for player-side
// identities the lives bookkeeping. Enemy identities are never respawned
// here; their replacement is supervision policy, not engine policy.
func (e *Engine) killTankNow(t *Tank, cause, killer string) {
	tick := e.tick.Load()
	e.bus.Publish(TankKilled{
		TankID: t.ID, PlayerID: t.PlayerID, Side: t.Side.String(),
		Class: t.Class, Cause: cause, Killer: killer, Tick: tick,
	})
	pid := t.PlayerID
	e.st.RemoveTank(t.ID)
	if pid == "" {
		return
	}
	if p, ok := e.st.Player(pid); ok {
		if p.Lives > 0 {
			p.Lives--
		}
		if t.Side == SideEnemy || p.Lives <= 0 {
			e.detachController(pid)
		}
	}
	if e.logger != nil {
		e.logger.Printf("tank %s (%s, %s) destroyed cause=%s killer=%s tick=%d", t.ID, pid, t.Class, cause, killer, tick)
	}
}

// respawnPlayers brings back player-side identities that still have lives
// and no tank, as soon as a spawn cell frees up.
func (e *Engine) respawnPlayers(tick uint64) {
	st := e.st
	for _, pid := range append([]string(nil), st.playerOrder...) {
		p, ok := st.players[pid]
		if !ok || p.Side != SidePlayer || p.Lives <= 0 {
			continue
		}
		if _, bound := st.TankByPlayer(pid); bound {
			continue
		}
		pos, ok := st.SpawnPosition(SidePlayer)
		if !ok {
			continue
		}
		class := p.Class
		if class == "" {
			class = defaultPlayerClass
		}
		id, err := st.CreateTank(pos, SidePlayer, class, e.tun.HPFor(class))
		if err != nil {
			continue
		}
		if err := st.Bind(pid, id); err != nil {
			st.RemoveTank(id)
			continue
		}
		e.bus.Publish(TankSpawned{
			TankID: id, PlayerID: pid, Side: SidePlayer.String(),
			Class: class, X: pos.X, Y: pos.Y, Tick: tick,
		})
	}
}

func (e *Engine) checkGameOver() {
	if e.over.Load() {
		return
	}
	tick := e.tick.Load()

	// A stage without player slots is an enemies-only arena: the battle
	// ends when the roster is dry and at most one tank is left standing.
	if len(e.st.playerSpawns) == 0 {
		if e.enemySeen && len(e.st.pool) == 0 && e.st.TanksAlive(SideEnemy) <= 1 {
			e.endGame(WinnerEnemy, tick)
		}
		return
	}

	// Roster exhausted and the field clear of enemies: the defenders won.
	// Requires that at least one enemy ever spawned, so a freshly started
	// battle is not declared over before the first spawn lands.
	if e.enemySeen && len(e.st.pool) == 0 && e.st.TanksAlive(SideEnemy) == 0 {
		e.endGame(WinnerPlayer, tick)
		return
	}

	// Every player-side identity out of lives: the attackers won.
	hasPlayers := false
	alive := false
	for _, pid := range e.st.playerOrder {
		p := e.st.players[pid]
		if p == nil || p.Side != SidePlayer {
			continue
		}
		hasPlayers = true
		if p.Lives > 0 {
			alive = true
		}
	}
	if hasPlayers && !alive {
		e.endGame(WinnerEnemy, tick)
	}
}

func (e *Engine) endGame(winner string, tick uint64) {
	if !e.over.CompareAndSwap(false, true) {
		return
	}
	e.winner = winner
	if e.logger != nil {
		e.logger.Printf("game over winner=%s tick=%d", winner, tick)
	}
	e.bus.Publish(GameOver{Winner: winner, Tick: tick})
}
