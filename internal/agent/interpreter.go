package agent

import (
	"context"
	"sync"

	"github.com/ecafe8/battle-city/internal/control"
	"github.com/ecafe8/battle-city/internal/game"
	"github.com/ecafe8/battle-city/internal/protocol"
)

// GameState is the read-only slice of the engine the interpreter answers
// queries from. *game.Engine satisfies it.
type GameState interface {
	TankByPlayer(playerID string) (protocol.TankInfo, bool)
	MapSnapshot() protocol.MapInfo
	Tanks() []protocol.TankInfo
	FireInfo(playerID string) (protocol.FireInfo, bool)
}

// Interpreter holds one agent's pending intents and turns them into tank
// control. It is the game.Controller for the agent's tank: the engine polls
// PollStep and PollFire from inside its tick, so both return without
// blocking or calling back into the engine. Everything else runs on the
// session's goroutines.
//
// Known protocol limitation: a TURN drops any in-flight FORWARD progress, so
// "turn and keep going" cannot be expressed in one exchange. Agents must
// reissue FORWARD after a TURN.
type Interpreter struct {
	playerID string
	gs       GameState
	notes    chan<- protocol.Note
	metrics  *control.Metrics

	mu       sync.Mutex
	tankID   string // last tank a poll saw; a new one voids forward progress
	turn     game.Direction
	hasTurn  bool
	forward  int // requested cells, 0 when no forward is in flight
	startPos game.Vec2
	fire     bool
	pending  []protocol.Note // notes queued from poll context
	wake     chan struct{}
}

func NewInterpreter(playerID string, gs GameState, notes chan<- protocol.Note) *Interpreter {
	return &Interpreter{
		playerID: playerID,
		gs:       gs,
		notes:    notes,
		wake:     make(chan struct{}, 1),
	}
}

// Run consumes commands in arrival order until the context is cancelled, the
// stream ends (ErrAgentClosed), or a command is rejected. A rejected command
// is fatal for the whole session, never skipped.
func (it *Interpreter) Run(ctx context.Context, cmds <-chan CommandOrErr) error {
	for {
		it.flush(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-it.wake:
		case in, ok := <-cmds:
			if !ok {
				return ErrAgentClosed
			}
			if in.Err != nil {
				return in.Err
			}
			it.metrics.IncCommands()
			if err := it.handle(ctx, in.Cmd); err != nil {
				return err
			}
		}
	}
}

// handle applies one command. Callers outside Run (the tests) must not race
// it with another handle call; poll calls from the engine are fine.
func (it *Interpreter) handle(ctx context.Context, cmd protocol.Command) error {
	switch cmd.Type {
	case protocol.TypeForward:
		it.setForward(cmd.ForwardLength)
	case protocol.TypeFire:
		it.mu.Lock()
		it.fire = true
		it.mu.Unlock()
	case protocol.TypeTurn:
		dir, ok := game.DirectionFromWire(cmd.Direction)
		if !ok {
			return protocol.Errorf(protocol.ErrBadDirection, "unknown direction %q", cmd.Direction)
		}
		it.mu.Lock()
		it.turn = dir
		it.hasTurn = true
		it.mu.Unlock()
	case protocol.TypeQuery:
		n, err := it.answer(cmd.Query)
		if err != nil {
			return err
		}
		it.emit(ctx, n)
	default:
		return protocol.Errorf(protocol.ErrUnknownType, "unknown command type %q", cmd.Type)
	}
	return nil
}

// setForward records where the run starts. Without a live tank the command
// is a no-op; the agent finds out through its own queries.
func (it *Interpreter) setForward(length int) {
	tv, ok := it.gs.TankByPlayer(it.playerID)
	if !ok {
		return
	}
	it.mu.Lock()
	it.forward = length
	it.startPos = game.Vec2{X: tv.X, Y: tv.Y}
	it.mu.Unlock()
}

func (it *Interpreter) answer(query string) (protocol.Note, error) {
	switch query {
	case protocol.QueryMyTank:
		var tank *protocol.TankInfo
		if tv, ok := it.gs.TankByPlayer(it.playerID); ok {
			tank = &tv
		}
		return protocol.QueryResultMsg{
			Type:   protocol.TypeQueryResult,
			Result: protocol.MyTankInfoResult{Type: protocol.TypeMyTankInfo, Tank: tank},
		}, nil
	case protocol.QueryMap:
		return protocol.QueryResultMsg{
			Type:   protocol.TypeQueryResult,
			Result: protocol.MapInfoResult{Type: protocol.TypeMapInfo, Map: it.gs.MapSnapshot()},
		}, nil
	case protocol.QueryTanks:
		return protocol.QueryResultMsg{
			Type:   protocol.TypeQueryResult,
			Result: protocol.TanksInfoResult{Type: protocol.TypeTanksInfo, Tanks: it.gs.Tanks()},
		}, nil
	case protocol.QueryMyFireInfo:
		fi, ok := it.gs.FireInfo(it.playerID)
		if !ok {
			// Contract: MY_FIRE_INFO requires a live tank. An agent that
			// asks without one has broken the protocol invariant, and this
			// build surfaces that instead of guessing an answer.
			panic("agent: MY_FIRE_INFO for " + it.playerID + " with no live tank")
		}
		return protocol.QueryResultMsg{
			Type:   protocol.TypeQueryResult,
			Result: protocol.MyFireInfoResult{Type: protocol.TypeMyFireInfo, FireInfo: fi},
		}, nil
	default:
		return nil, protocol.Errorf(protocol.ErrBadQuery, "unknown query %q", query)
	}
}

// PollStep hands the engine this tick's movement intent. A pending turn wins
// over a forward run and also clears it, even when the run would have
// completed this poll.
func (it *Interpreter) PollStep(tv game.TankView) game.StepIntent {
	it.mu.Lock()
	defer it.mu.Unlock()
	if tv.ID != it.tankID {
		it.tankID = tv.ID
		it.forward = 0
	}
	if it.hasTurn {
		it.hasTurn = false
		it.forward = 0
		return game.StepIntent{Kind: game.IntentTurn, Dir: it.turn}
	}
	if it.forward > 0 {
		moved := game.AxisDistance(tv.Dir, it.startPos, tv.Pos)
		if moved >= it.forward {
			it.forward = 0
			it.queueNote(protocol.ReachMsg{Type: protocol.TypeReach})
			return game.StepIntent{}
		}
		return game.StepIntent{Kind: game.IntentForward, MaxDistance: it.forward - moved}
	}
	return game.StepIntent{}
}

// PollFire consumes the fire request: one FIRE command, one attempt.
func (it *Interpreter) PollFire(game.TankView) bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	f := it.fire
	it.fire = false
	return f
}

// queueNote stashes a note from poll context; Run flushes it. Callers hold
// mu.
func (it *Interpreter) queueNote(n protocol.Note) {
	it.pending = append(it.pending, n)
	select {
	case it.wake <- struct{}{}:
	default:
	}
}

func (it *Interpreter) flush(ctx context.Context) {
	it.mu.Lock()
	pend := it.pending
	it.pending = nil
	it.mu.Unlock()
	for _, n := range pend {
		it.emit(ctx, n)
	}
}

func (it *Interpreter) emit(ctx context.Context, n protocol.Note) {
	select {
	case it.notes <- n:
	case <-ctx.Done():
	}
}
