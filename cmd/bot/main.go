// A disposable battle client: joins over websocket like any player agent
// and wanders the arena on a coin-flip policy. Handy for smoke-testing a
// server and for giving the enemy pool something to shoot at.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ecafe8/battle-city/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/agents/connect", "ws url")
		pulse = flag.Duration("pulse", 500*time.Millisecond, "decision interval")
		seed  = flag.Int64("seed", 0, "rng seed (0 = time)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	b := &bot{conn: conn, logger: logger, rng: rand.New(rand.NewSource(s))}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	// Notes only arrive in response to commands, so a silent bot would hear
	// nothing forever; the pulse keeps the conversation going.
	tick := time.NewTicker(*pulse)
	defer tick.Stop()
	go func() {
		for {
			select {
			case <-stop:
				_ = conn.Close()
				return
			case <-tick.C:
				b.send(protocol.Command{Type: protocol.TypeQuery, Query: protocol.QueryMyTank})
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("connection closed: %v", err)
			return
		}
		b.handle(msg)
	}
}

type bot struct {
	conn   *websocket.Conn
	logger *log.Logger
	rng    *rand.Rand

	mu sync.Mutex
}

// send serializes writes; the pulse goroutine and the read loop both emit.
func (b *bot) send(cmd protocol.Command) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.conn.WriteJSON(cmd)
}

func (b *bot) handle(msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return
		}
		b.logger.Printf("WELCOME player=%s tank=%s protocol=%s", w.PlayerID, w.TankID, w.ProtocolVersion)

	case protocol.TypeReach:
		b.logger.Printf("REACH")

	case protocol.TypeBulletComplete:
		b.logger.Printf("BULLET_COMPLETE")

	case protocol.TypeQueryResult:
		var qr struct {
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(msg, &qr); err != nil {
			return
		}
		typ, err := protocol.DecodeResultBase(qr.Result)
		if err != nil || typ != protocol.TypeMyTankInfo {
			return
		}
		var res protocol.MyTankInfoResult
		if err := json.Unmarshal(qr.Result, &res); err != nil {
			return
		}
		b.decide(res.Tank)
	}
}

// decide rolls one action per pulse. A dead tank stays quiet; the server
// respawns it or tears the session down on its own schedule.
func (b *bot) decide(tank *protocol.TankInfo) {
	if tank == nil {
		return
	}
	switch b.rng.Intn(4) {
	case 0:
		b.send(protocol.Command{Type: protocol.TypeFire})
	case 1:
		dirs := []string{protocol.DirUp, protocol.DirDown, protocol.DirLeft, protocol.DirRight}
		b.send(protocol.Command{Type: protocol.TypeTurn, Direction: dirs[b.rng.Intn(len(dirs))]})
	default:
		b.send(protocol.Command{Type: protocol.TypeForward, ForwardLength: 1 + b.rng.Intn(3)})
	}
}
