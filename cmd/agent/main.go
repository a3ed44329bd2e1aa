// A reference battle agent speaking the command protocol over stdio: notes
// arrive as JSON lines on stdin, commands leave on stdout, diagnostics go to
// stderr. The policy hunts whatever lines up with the barrel and wanders
// otherwise.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/ecafe8/battle-city/internal/protocol"
)

func main() {
	var (
		thinkMs = flag.Int("think-ms", 50, "pause before each decision")
		seed    = flag.Int64("seed", 0, "random seed (0 = time-based)")
		name    = flag.String("name", "agent", "identity tag for log lines")
	)
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.TimeOnly,
	})).With("agent", *name)

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}

	a := &agent{
		out:    bufio.NewWriter(os.Stdout),
		logger: logger,
		rng:    rand.New(rand.NewSource(s)),
		think:  time.Duration(*thinkMs) * time.Millisecond,
	}
	if err := a.run(os.Stdin); err != nil {
		logger.Error("stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("note stream closed, exiting")
}

type agent struct {
	out    *bufio.Writer
	logger *slog.Logger
	rng    *rand.Rand
	think  time.Duration

	w world

	// moving is set while a FORWARD is outstanding; REACH clears it.
	// wantDir is a turn in progress: reissued until a query shows the new
	// facing, because a pending turn voids any forward run.
	moving  bool
	wantDir string
	steps   int
}

func (a *agent) run(in io.Reader) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := a.handle(line); err != nil {
			return err
		}
	}
	return sc.Err()
}

func (a *agent) handle(line []byte) error {
	base, err := protocol.DecodeBase(line)
	if err != nil {
		return fmt.Errorf("bad note: %w", err)
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(line, &w); err != nil {
			return err
		}
		a.logger.Info("welcome", "player", w.PlayerID, "tank", w.TankID, "protocol", w.ProtocolVersion)
		return a.send(
			protocol.Command{Type: protocol.TypeQuery, Query: protocol.QueryMap},
			protocol.Command{Type: protocol.TypeQuery, Query: protocol.QueryMyTank},
		)
	case protocol.TypeReach:
		a.moving = false
		return a.send(protocol.Command{Type: protocol.TypeQuery, Query: protocol.QueryMyTank})
	case protocol.TypeBulletComplete:
		return a.send(protocol.Command{Type: protocol.TypeQuery, Query: protocol.QueryMyFireInfo})
	case protocol.TypeQueryResult:
		var qr struct {
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(line, &qr); err != nil {
			return err
		}
		return a.onResult(qr.Result)
	default:
		a.logger.Warn("unknown note", "type", base.Type)
		return nil
	}
}

func (a *agent) onResult(raw json.RawMessage) error {
	typ, err := protocol.DecodeResultBase(raw)
	if err != nil {
		return err
	}
	switch typ {
	case protocol.TypeMapInfo:
		var r protocol.MapInfoResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		a.w.grid = r.Map
		return nil
	case protocol.TypeMyTankInfo:
		var r protocol.MyTankInfoResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		a.w.me = r.Tank
		if r.Tank == nil {
			// Tank gone; a respawn shows up in a later query, teardown
			// shows up as stdin closing. Hold still either way.
			a.moving = false
			return nil
		}
		return a.send(protocol.Command{Type: protocol.TypeQuery, Query: protocol.QueryTanks})
	case protocol.TypeTanksInfo:
		var r protocol.TanksInfoResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		a.w.tanks = r.Tanks
		return a.decide()
	case protocol.TypeMyFireInfo:
		var r protocol.MyFireInfoResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		a.logger.Info("fire info", "bullets", r.BulletCount, "can_fire", r.CanFire, "cooldown", r.Cooldown)
		return nil
	default:
		a.logger.Warn("unknown result", "type", typ)
		return nil
	}
}

// decide is the whole brain: shoot whatever lines up, otherwise wander. One
// command burst per decision, paced by the think delay.
func (a *agent) decide() error {
	me := a.w.me
	if me == nil {
		return nil
	}
	time.Sleep(a.think)

	if target, dir, ok := pickTarget(*me, a.w.tanks); ok {
		if me.Direction != dir {
			a.wantDir, a.moving = dir, false
			return a.turnAndLook(dir)
		}
		a.wantDir = ""
		a.logger.Info("firing", "at", target.ID, "dir", dir)
		return a.send(
			protocol.Command{Type: protocol.TypeFire},
			protocol.Command{Type: protocol.TypeQuery, Query: protocol.QueryMyTank},
		)
	}

	if a.moving {
		return nil
	}
	if a.wantDir == "" {
		dir, steps, ok := a.w.wander(a.rng)
		if !ok {
			// Boxed in. Keep looking, something may move out of the way.
			return a.send(protocol.Command{Type: protocol.TypeQuery, Query: protocol.QueryMyTank})
		}
		a.wantDir, a.steps = dir, steps
	}
	if me.Direction != a.wantDir {
		return a.turnAndLook(a.wantDir)
	}
	steps := a.steps
	a.wantDir = ""
	a.moving = true
	return a.send(protocol.Command{Type: protocol.TypeForward, ForwardLength: steps})
}

// turnAndLook issues a turn and re-queries. The turn lands on the next tick,
// so the facing check reruns until the query reflects it; forward is only
// sent once the two agree.
func (a *agent) turnAndLook(dir string) error {
	return a.send(
		protocol.Command{Type: protocol.TypeTurn, Direction: dir},
		protocol.Command{Type: protocol.TypeQuery, Query: protocol.QueryMyTank},
	)
}

func (a *agent) send(cmds ...protocol.Command) error {
	for _, c := range cmds {
		b, err := json.Marshal(c)
		if err != nil {
			return err
		}
		b = append(b, '\n')
		if _, err := a.out.Write(b); err != nil {
			return err
		}
	}
	return a.out.Flush()
}
