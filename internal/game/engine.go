package game

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/ecafe8/battle-city/internal/protocol"
	"github.com/ecafe8/battle-city/internal/tuning"
)

// Engine owns all battle state in one goroutine. Everything outside talks to
// it through the request channels served by Run; the accessor and mutator
// methods below wrap those channels. Controllers are the exception: the
// engine calls them, from inside the tick, and they must not call back in.
type Engine struct {
	tun    tuning.Tuning
	stage  *Stage
	st     *Store
	bus    *Bus
	logger *log.Logger

	tick atomic.Uint64
	over atomic.Bool

	winner    string
	enemySeen bool

	controllers map[string]Controller // by playerID
	ctrlOrder   []string
	killers     map[string]string // tankID -> killer playerID, cleared each tick

	registerPlayer chan registerPlayerReq
	removePlayer   chan removePlayerReq
	createTank     chan createTankReq
	activate       chan activateReq
	detach         chan detachReq
	killTank       chan killTankReq
	popEnemy       chan popEnemyReq
	peekEnemies    chan peekEnemiesReq
	spawnPos       chan spawnPosReq
	tankByPlayer   chan tankByPlayerReq
	tanksReq       chan tanksReq
	mapReq         chan mapReq
	fireInfo       chan fireInfoReq
	adminState     chan adminStateReq
	stepReq        chan stepReq

	stop    chan struct{}
	stopped chan struct{}
}

type registerPlayerReq struct {
	PlayerID string
	Lives    int
	Side     Side
	Reply    chan error
}

type removePlayerReq struct {
	PlayerID string
	Reply    chan struct{}
}

type createTankReq struct {
	Pos   Vec2
	Side  Side
	Class string
	HP    int
	Reply chan createTankReply
}

type createTankReply struct {
	TankID string
	Err    error
}

type activateReq struct {
	PlayerID string
	TankID   string
	Ctrl     Controller
	Reply    chan error
}

type detachReq struct {
	PlayerID string
	Reply    chan struct{}
}

type killTankReq struct {
	TankID string
	Cause  string
	Reply  chan struct{}
}

type popEnemyReq struct {
	Reply chan popEnemyReply
}

type popEnemyReply struct {
	Class string
	OK    bool
}

type peekEnemiesReq struct {
	Reply chan []string
}

type spawnPosReq struct {
	Side  Side
	Reply chan spawnPosReply
}

type spawnPosReply struct {
	Pos Vec2
	OK  bool
}

type tankByPlayerReq struct {
	PlayerID string
	Reply    chan tankByPlayerReply
}

type tankByPlayerReply struct {
	Tank protocol.TankInfo
	OK   bool
}

type tanksReq struct {
	Reply chan []protocol.TankInfo
}

type mapReq struct {
	Reply chan protocol.MapInfo
}

type fireInfoReq struct {
	PlayerID string
	Reply    chan fireInfoReply
}

type fireInfoReply struct {
	Info protocol.FireInfo
	OK   bool
}

type adminStateReq struct {
	Reply chan AdminState
}

type stepReq struct {
	Done chan struct{}
}

// AdminState is the read-only debug snapshot served at /admin/state.
type AdminState struct {
	Stage         string              `json:"stage"`
	Tick          uint64              `json:"tick"`
	Over          bool                `json:"over"`
	Winner        string              `json:"winner,omitempty"`
	Tanks         []protocol.TankInfo `json:"tanks"`
	Bullets       []BulletState       `json:"bullets"`
	PoolRemaining []string            `json:"pool_remaining"`
	BusDropped    uint64              `json:"bus_dropped"`
}

type BulletState struct {
	ID        string `json:"id"`
	TankID    string `json:"tank_id"`
	PlayerID  string `json:"player_id"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Direction string `json:"direction"`
}

func NewEngine(stage *Stage, tun tuning.Tuning, logger *log.Logger) *Engine {
	return &Engine{
		tun:            tun,
		stage:          stage,
		st:             NewStore(stage),
		bus:            NewBus(logger),
		logger:         logger,
		controllers:    map[string]Controller{},
		killers:        map[string]string{},
		registerPlayer: make(chan registerPlayerReq),
		removePlayer:   make(chan removePlayerReq),
		createTank:     make(chan createTankReq),
		activate:       make(chan activateReq),
		detach:         make(chan detachReq),
		killTank:       make(chan killTankReq),
		popEnemy:       make(chan popEnemyReq),
		peekEnemies:    make(chan peekEnemiesReq),
		spawnPos:       make(chan spawnPosReq),
		tankByPlayer:   make(chan tankByPlayerReq),
		tanksReq:       make(chan tanksReq),
		mapReq:         make(chan mapReq),
		fireInfo:       make(chan fireInfoReq),
		adminState:     make(chan adminStateReq),
		stepReq:        make(chan stepReq),
		stop:           make(chan struct{}),
		stopped:        make(chan struct{}),
	}
}

// Bus exposes the event stream. Subscribe before calling Run to see
// STAGE_LOADED.
func (e *Engine) Bus() *Bus { return e.bus }

// Tuning returns the battle constants the engine was built with.
func (e *Engine) Tuning() tuning.Tuning { return e.tun }

func (e *Engine) Tick() uint64 { return e.tick.Load() }

func (e *Engine) GameOver() bool { return e.over.Load() }

// Run serves requests and ticks the battle. With TickMs <= 0 the engine
// never ticks on its own; tests drive it through StepOnce. Call Run exactly
// once.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.stopped)

	var tickC <-chan time.Time
	if e.tun.TickMs > 0 {
		ticker := time.NewTicker(time.Duration(e.tun.TickMs) * time.Millisecond)
		defer ticker.Stop()
		tickC = ticker.C
	}

	e.bus.Publish(StageLoaded{Stage: e.stage.Name, Enemies: e.st.PeekEnemies(), Tick: e.tick.Load()})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stop:
			return nil
		case req := <-e.registerPlayer:
			req.Reply <- e.st.RegisterPlayer(req.PlayerID, req.Lives, req.Side)
		case req := <-e.removePlayer:
			e.handleRemovePlayer(req.PlayerID)
			req.Reply <- struct{}{}
		case req := <-e.createTank:
			req.Reply <- e.handleCreateTank(req)
		case req := <-e.activate:
			req.Reply <- e.handleActivate(req)
		case req := <-e.detach:
			e.detachController(req.PlayerID)
			req.Reply <- struct{}{}
		case req := <-e.killTank:
			e.handleKillTank(req.TankID, req.Cause)
			req.Reply <- struct{}{}
		case req := <-e.popEnemy:
			class, ok := e.st.PopEnemy()
			req.Reply <- popEnemyReply{Class: class, OK: ok}
		case req := <-e.peekEnemies:
			req.Reply <- e.st.PeekEnemies()
		case req := <-e.spawnPos:
			pos, ok := e.st.SpawnPosition(req.Side)
			req.Reply <- spawnPosReply{Pos: pos, OK: ok}
		case req := <-e.tankByPlayer:
			var r tankByPlayerReply
			if t, ok := e.st.TankByPlayer(req.PlayerID); ok {
				r = tankByPlayerReply{Tank: t.Info(), OK: true}
			}
			req.Reply <- r
		case req := <-e.tanksReq:
			req.Reply <- e.st.Tanks()
		case req := <-e.mapReq:
			req.Reply <- e.st.MapInfo()
		case req := <-e.fireInfo:
			req.Reply <- e.handleFireInfo(req.PlayerID)
		case req := <-e.adminState:
			req.Reply <- e.buildAdminState()
		case req := <-e.stepReq:
			e.stepTick()
			close(req.Done)
		case <-tickC:
			e.stepTick()
		}
	}
}

func (e *Engine) Stop() { close(e.stop) }

// StepOnce advances exactly one tick and returns after it completed. Run
// must be live, typically with TickMs <= 0 so this is the only tick source.
func (e *Engine) StepOnce() uint64 {
	req := stepReq{Done: make(chan struct{})}
	select {
	case e.stepReq <- req:
		<-req.Done
	case <-e.stopped:
	}
	return e.tick.Load()
}

var errEngineStopped = fmt.Errorf("engine stopped")

func (e *Engine) RegisterPlayer(playerID string, lives int, side Side) error {
	req := registerPlayerReq{PlayerID: playerID, Lives: lives, Side: side, Reply: make(chan error, 1)}
	select {
	case e.registerPlayer <- req:
		return <-req.Reply
	case <-e.stopped:
		return errEngineStopped
	}
}

// RemovePlayer tears down an identity: controller detached, tank removed (a
// TANK_KILLED with cause "disconnect" is published if one existed), player
// entry dropped. No respawn follows.
func (e *Engine) RemovePlayer(playerID string) {
	req := removePlayerReq{PlayerID: playerID, Reply: make(chan struct{}, 1)}
	select {
	case e.removePlayer <- req:
		<-req.Reply
	case <-e.stopped:
	}
}

func (e *Engine) CreateTank(pos Vec2, side Side, class string, hp int) (string, error) {
	req := createTankReq{Pos: pos, Side: side, Class: class, HP: hp, Reply: make(chan createTankReply, 1)}
	select {
	case e.createTank <- req:
		r := <-req.Reply
		return r.TankID, r.Err
	case <-e.stopped:
		return "", errEngineStopped
	}
}

// ActivateTank binds an identity to a tank and attaches its controller; the
// engine polls it from the next tick on.
func (e *Engine) ActivateTank(playerID, tankID string, ctrl Controller) error {
	req := activateReq{PlayerID: playerID, TankID: tankID, Ctrl: ctrl, Reply: make(chan error, 1)}
	select {
	case e.activate <- req:
		return <-req.Reply
	case <-e.stopped:
		return errEngineStopped
	}
}

func (e *Engine) DetachController(playerID string) {
	req := detachReq{PlayerID: playerID, Reply: make(chan struct{}, 1)}
	select {
	case e.detach <- req:
		<-req.Reply
	case <-e.stopped:
	}
}

// KillTank destroys a tank outside bullet resolution (supervisor teardown of
// an orphaned actor, admin action). The TANK_KILLED event follows the usual
// path.
func (e *Engine) KillTank(tankID, cause string) {
	req := killTankReq{TankID: tankID, Cause: cause, Reply: make(chan struct{}, 1)}
	select {
	case e.killTank <- req:
		<-req.Reply
	case <-e.stopped:
	}
}

func (e *Engine) PopEnemy() (string, bool) {
	req := popEnemyReq{Reply: make(chan popEnemyReply, 1)}
	select {
	case e.popEnemy <- req:
		r := <-req.Reply
		return r.Class, r.OK
	case <-e.stopped:
		return "", false
	}
}

func (e *Engine) EnemiesRemaining() []string {
	req := peekEnemiesReq{Reply: make(chan []string, 1)}
	select {
	case e.peekEnemies <- req:
		return <-req.Reply
	case <-e.stopped:
		return nil
	}
}

func (e *Engine) SpawnPosition(side Side) (Vec2, bool) {
	req := spawnPosReq{Side: side, Reply: make(chan spawnPosReply, 1)}
	select {
	case e.spawnPos <- req:
		r := <-req.Reply
		return r.Pos, r.OK
	case <-e.stopped:
		return Vec2{}, false
	}
}

func (e *Engine) TankByPlayer(playerID string) (protocol.TankInfo, bool) {
	req := tankByPlayerReq{PlayerID: playerID, Reply: make(chan tankByPlayerReply, 1)}
	select {
	case e.tankByPlayer <- req:
		r := <-req.Reply
		return r.Tank, r.OK
	case <-e.stopped:
		return protocol.TankInfo{}, false
	}
}

func (e *Engine) Tanks() []protocol.TankInfo {
	req := tanksReq{Reply: make(chan []protocol.TankInfo, 1)}
	select {
	case e.tanksReq <- req:
		return <-req.Reply
	case <-e.stopped:
		return nil
	}
}

func (e *Engine) MapSnapshot() protocol.MapInfo {
	req := mapReq{Reply: make(chan protocol.MapInfo, 1)}
	select {
	case e.mapReq <- req:
		return <-req.Reply
	case <-e.stopped:
		return protocol.MapInfo{}
	}
}

func (e *Engine) FireInfo(playerID string) (protocol.FireInfo, bool) {
	req := fireInfoReq{PlayerID: playerID, Reply: make(chan fireInfoReply, 1)}
	select {
	case e.fireInfo <- req:
		r := <-req.Reply
		return r.Info, r.OK
	case <-e.stopped:
		return protocol.FireInfo{}, false
	}
}

func (e *Engine) AdminState() AdminState {
	req := adminStateReq{Reply: make(chan AdminState, 1)}
	select {
	case e.adminState <- req:
		return <-req.Reply
	case <-e.stopped:
		return AdminState{}
	}
}

func (e *Engine) handleCreateTank(req createTankReq) createTankReply {
	id, err := e.st.CreateTank(req.Pos, req.Side, req.Class, req.HP)
	if err != nil {
		return createTankReply{Err: err}
	}
	if req.Side == SideEnemy {
		e.enemySeen = true
	}
	e.bus.Publish(TankSpawned{
		TankID: id, Side: req.Side.String(), Class: req.Class,
		X: req.Pos.X, Y: req.Pos.Y, Tick: e.tick.Load(),
	})
	return createTankReply{TankID: id}
}

func (e *Engine) handleActivate(req activateReq) error {
	if req.Ctrl == nil {
		return fmt.Errorf("activate: nil controller for %s", req.PlayerID)
	}
	if err := e.st.Bind(req.PlayerID, req.TankID); err != nil {
		return err
	}
	if _, ok := e.controllers[req.PlayerID]; !ok {
		e.ctrlOrder = append(e.ctrlOrder, req.PlayerID)
	}
	e.controllers[req.PlayerID] = req.Ctrl
	return nil
}

func (e *Engine) detachController(playerID string) {
	if _, ok := e.controllers[playerID]; !ok {
		return
	}
	delete(e.controllers, playerID)
	for i, id := range e.ctrlOrder {
		if id == playerID {
			e.ctrlOrder = append(e.ctrlOrder[:i], e.ctrlOrder[i+1:]...)
			break
		}
	}
}

func (e *Engine) handleRemovePlayer(playerID string) {
	e.detachController(playerID)
	if t, ok := e.st.TankByPlayer(playerID); ok {
		e.st.RemoveTank(t.ID)
		e.bus.Publish(TankKilled{
			TankID: t.ID, PlayerID: playerID, Side: t.Side.String(),
			Class: t.Class, Cause: CauseDisconnect, Tick: e.tick.Load(),
		})
	}
	e.st.RemovePlayer(playerID)
	e.checkGameOver()
}

func (e *Engine) handleKillTank(tankID, cause string) {
	t, ok := e.st.Tank(tankID)
	if !ok {
		return
	}
	t.HP = 0
	e.killTankNow(t, cause, "")
	e.checkGameOver()
}

func (e *Engine) handleFireInfo(playerID string) fireInfoReply {
	t, ok := e.st.TankByPlayer(playerID)
	if !ok {
		return fireInfoReply{}
	}
	cooldown := t.Cooldown
	if cooldown < 0 {
		cooldown = 0
	}
	return fireInfoReply{
		Info: protocol.FireInfo{
			BulletCount: t.BulletsLive,
			CanFire:     t.BulletsLive < e.tun.BulletLimit && cooldown <= 0,
			Cooldown:    cooldown,
			BulletLimit: e.tun.BulletLimit,
		},
		OK: true,
	}
}

func (e *Engine) buildAdminState() AdminState {
	bullets := make([]BulletState, 0, len(e.st.bulletOrder))
	for _, id := range e.st.bulletOrder {
		if b, ok := e.st.bullets[id]; ok {
			bullets = append(bullets, BulletState{
				ID: b.ID, TankID: b.TankID, PlayerID: b.PlayerID,
				X: b.Pos.X, Y: b.Pos.Y, Direction: b.Dir.String(),
			})
		}
	}
	return AdminState{
		Stage:         e.stage.Name,
		Tick:          e.tick.Load(),
		Over:          e.over.Load(),
		Winner:        e.winner,
		Tanks:         e.st.Tanks(),
		Bullets:       bullets,
		PoolRemaining: e.st.PeekEnemies(),
		BusDropped:    e.bus.Dropped(),
	}
}
