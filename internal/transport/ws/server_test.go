package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ecafe8/battle-city/internal/game/gametest"
	"github.com/ecafe8/battle-city/internal/protocol"
)

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialBattle(t *testing.T) (*gametest.Harness, *testClient) {
	t.Helper()
	h := gametest.NewHarness(t, gametest.DefaultStage)

	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer(h.Eng, Config{PlayerLives: 2})
	srv := httptest.NewServer(s.Handler(ctx))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return h, &testClient{t: t, conn: conn}
}

func (c *testClient) send(raw string) {
	c.t.Helper()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

// read returns the next frame decoded into a generic map.
func (c *testClient) read() map[string]json.RawMessage {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		c.t.Fatalf("bad frame %q: %v", msg, err)
	}
	return m
}

func (c *testClient) readType() (string, map[string]json.RawMessage) {
	c.t.Helper()
	m := c.read()
	var typ string
	if err := json.Unmarshal(m["type"], &typ); err != nil {
		c.t.Fatalf("frame without type: %v", err)
	}
	return typ, m
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestServer_JoinWelcomeAndQuery(t *testing.T) {
	h, c := dialBattle(t)

	typ, m := c.readType()
	if typ != protocol.TypeWelcome {
		t.Fatalf("first note %s, want %s", typ, protocol.TypeWelcome)
	}
	var welcome struct {
		ProtocolVersion string `json:"protocol_version"`
		PlayerID        string `json:"player_id"`
		TankID          string `json:"tank_id"`
	}
	raw, _ := json.Marshal(m)
	if err := json.Unmarshal(raw, &welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if welcome.ProtocolVersion != protocol.Version {
		t.Fatalf("protocol_version %q", welcome.ProtocolVersion)
	}
	if !strings.HasPrefix(welcome.PlayerID, "player-") || welcome.TankID == "" {
		t.Fatalf("welcome ids %+v", welcome)
	}

	// The tank exists and is queryable before any tick ran.
	c.send(`{"type":"QUERY","query":"MY_TANK"}`)
	typ, m = c.readType()
	if typ != protocol.TypeQueryResult {
		t.Fatalf("note %s, want %s", typ, protocol.TypeQueryResult)
	}
	var result struct {
		Type string `json:"type"`
		Tank *struct {
			ID   string `json:"id"`
			Side string `json:"side"`
		} `json:"tank"`
	}
	if err := json.Unmarshal(m["result"], &result); err != nil {
		t.Fatalf("result: %v", err)
	}
	if result.Type != protocol.TypeMyTankInfo {
		t.Fatalf("result type %s", result.Type)
	}
	if result.Tank == nil || result.Tank.ID != welcome.TankID || result.Tank.Side != protocol.SidePlayer {
		t.Fatalf("tank %+v, want id %s side PLAYER", result.Tank, welcome.TankID)
	}

	if _, ok := h.Eng.TankByPlayer(welcome.PlayerID); !ok {
		t.Fatalf("engine has no tank for %s", welcome.PlayerID)
	}
}

func TestServer_BadCommandTearsSessionDown(t *testing.T) {
	h, c := dialBattle(t)

	typ, m := c.readType()
	if typ != protocol.TypeWelcome {
		t.Fatalf("first note %s, want %s", typ, protocol.TypeWelcome)
	}
	var pid string
	_ = json.Unmarshal(m["player_id"], &pid)

	c.send(`{"type":"SELF_DESTRUCT"}`)

	// The session is fatal on the first rejected command: the tank goes
	// away and the connection is closed from the server side.
	waitFor(t, func() bool {
		_, ok := h.Eng.TankByPlayer(pid)
		return !ok
	})
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestServer_DisconnectRemovesPlayer(t *testing.T) {
	h, c := dialBattle(t)

	typ, m := c.readType()
	if typ != protocol.TypeWelcome {
		t.Fatalf("first note %s, want %s", typ, protocol.TypeWelcome)
	}
	var pid string
	_ = json.Unmarshal(m["player_id"], &pid)
	if _, ok := h.Eng.TankByPlayer(pid); !ok {
		t.Fatalf("engine has no tank for %s", pid)
	}

	_ = c.conn.Close()

	waitFor(t, func() bool {
		_, ok := h.Eng.TankByPlayer(pid)
		return !ok
	})
}

func TestServer_ForwardAndReach(t *testing.T) {
	h, c := dialBattle(t)

	typ, _ := c.readType()
	if typ != protocol.TypeWelcome {
		t.Fatalf("first note %s, want %s", typ, protocol.TypeWelcome)
	}

	// Spawned facing UP with open cells ahead, so one cell is reachable.
	c.send(`{"type":"FORWARD","forward_length":1}`)

	// The command lands asynchronously; tick until the REACH arrives.
	got := make(chan string, 1)
	go func() {
		for {
			_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, msg, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err == nil && base.Type == protocol.TypeReach {
				got <- base.Type
				return
			}
		}
	}()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-got:
			return
		case <-deadline:
			t.Fatalf("no REACH after stepping")
		default:
			h.Eng.StepOnce()
			time.Sleep(2 * time.Millisecond)
		}
	}
}
