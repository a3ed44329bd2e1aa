// Package ws serves the agent protocol over websocket. Each connection joins
// the battle as one player-side tank and runs the same session machinery the
// supervisor uses for process-backed enemies: the connection is just another
// endpoint.
package ws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ecafe8/battle-city/internal/agent"
	"github.com/ecafe8/battle-city/internal/control"
	"github.com/ecafe8/battle-city/internal/game"
	"github.com/ecafe8/battle-city/internal/protocol"
)

const (
	writeWait = 5 * time.Second
	pongWait  = 60 * time.Second
	// Pings must outpace the read deadline or idle thinkers get cut off.
	pingPeriod     = 50 * time.Second
	maxMessageSize = 1024 * 1024
)

// Config sets how websocket players join.
type Config struct {
	// PlayerLives is the lives budget per connection, normally the stage's
	// player_lives. Zero means 3.
	PlayerLives int
	Logger      *log.Logger
	Metrics     *control.Metrics

	// Buffer sizes from the session tuning block. Zero means the defaults.
	CommandBuffer int
	NoteBuffer    int
	EventBuffer   int
}

type Server struct {
	eng    *game.Engine
	cfg    Config
	logger *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(eng *game.Engine, cfg Config) *Server {
	return &Server{
		eng:    eng,
		cfg:    cfg,
		logger: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Handler serves one battle join per connection. ctx bounds every session
// started here; shutting the server down tears the connections with it.
func (s *Server) Handler(ctx context.Context) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		pid := "player-" + uuid.NewString()[:8]
		ep := newEndpoint(conn, s.cfg.CommandBuffer, s.logger)
		defer ep.Close()

		sess, err := s.attach(ctx, pid, ep)
		if err != nil {
			if s.logger != nil {
				s.logger.Printf("%s join failed: %v", pid, err)
			}
			return
		}

		// Hold the handler open for the session's lifetime. Game over does
		// not stop the engine, so the session is retired here.
		over := time.NewTicker(250 * time.Millisecond)
		defer over.Stop()
		for {
			select {
			case <-sess.Done():
				s.eng.RemovePlayer(pid)
				if s.logger != nil {
					s.logger.Printf("%s session ended: %v", pid, sess.Err())
				}
				return
			case <-over.C:
				if s.eng.GameOver() {
					sess.Cancel()
				}
			}
		}
	}
}

// attach stands the player's tank up and binds the session to it, the same
// sequence the supervisor runs for an enemy: register, spawn cell, tank,
// session, activation, with each failure rolling the earlier steps back.
func (s *Server) attach(ctx context.Context, pid string, ep agent.Endpoint) (*agent.Session, error) {
	lives := s.cfg.PlayerLives
	if lives <= 0 {
		lives = 3
	}
	if err := s.eng.RegisterPlayer(pid, lives, game.SidePlayer); err != nil {
		return nil, err
	}
	pos, ok := s.eng.SpawnPosition(game.SidePlayer)
	if !ok {
		s.eng.RemovePlayer(pid)
		return nil, errors.New("no free spawn cell")
	}
	class := protocol.ClassLight
	tun := s.eng.Tuning()
	tankID, err := s.eng.CreateTank(pos, game.SidePlayer, class, tun.HPFor(class))
	if err != nil {
		s.eng.RemovePlayer(pid)
		return nil, err
	}

	sess, err := agent.StartSession(ctx, pid, tankID, agent.SessionConfig{
		Factory:     func(context.Context, string) (agent.Endpoint, error) { return ep, nil },
		State:       s.eng,
		Bus:         s.eng.Bus(),
		Logger:      s.logger,
		Metrics:     s.cfg.Metrics,
		NoteBuffer:  s.cfg.NoteBuffer,
		EventBuffer: s.cfg.EventBuffer,
	})
	if err != nil {
		s.eng.RemovePlayer(pid)
		return nil, err
	}
	if err := s.eng.ActivateTank(pid, tankID, sess.Controller()); err != nil {
		sess.Cancel()
		s.eng.RemovePlayer(pid)
		return nil, err
	}
	if s.logger != nil {
		s.logger.Printf("%s joined, tank %s at %d,%d", pid, tankID, pos.X, pos.Y)
	}
	return sess, nil
}

// wsEndpoint adapts one websocket connection to the endpoint contract the
// session machinery consumes: text frames in are commands, notes out are
// text frames.
type wsEndpoint struct {
	conn   *websocket.Conn
	cmds   chan agent.CommandOrErr
	done   chan struct{}
	once   sync.Once
	logger *log.Logger
}

func newEndpoint(conn *websocket.Conn, cmdBuf int, logger *log.Logger) *wsEndpoint {
	if cmdBuf <= 0 {
		cmdBuf = 16
	}
	ep := &wsEndpoint{
		conn:   conn,
		cmds:   make(chan agent.CommandOrErr, cmdBuf),
		done:   make(chan struct{}),
		logger: logger,
	}
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go ep.readLoop()
	go ep.pingLoop()
	return ep
}

func (ep *wsEndpoint) Commands() <-chan agent.CommandOrErr { return ep.cmds }

// Send runs on the session's forward goroutine, so data frames have a single
// writer; pings go through WriteControl, which gorilla allows concurrently.
func (ep *wsEndpoint) Send(n protocol.Note) error {
	b, err := protocol.EncodeNote(n)
	if err != nil {
		return err
	}
	_ = ep.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ep.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("ws: write note: %w", err)
	}
	return nil
}

// Close says goodbye and drops the connection. Safe to call more than once.
func (ep *wsEndpoint) Close() error {
	var err error
	ep.once.Do(func() {
		close(ep.done)
		_ = ep.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = ep.conn.Close()
	})
	return err
}

// readLoop decodes inbound frames until the peer goes away or a frame is
// rejected. The first bad frame ends the stream; the session tears the
// whole agent down on it, same policy as the stdio endpoint.
func (ep *wsEndpoint) readLoop() {
	defer close(ep.cmds)
	for {
		_, msg, err := ep.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-ep.done:
				default:
					if ep.logger != nil {
						ep.logger.Printf("ws: read: %v", err)
					}
				}
			}
			return
		}
		if len(bytes.TrimSpace(msg)) == 0 {
			continue
		}
		cmd, derr := protocol.DecodeCommand(msg)
		if derr != nil {
			ep.deliver(agent.CommandOrErr{Err: derr})
			return
		}
		if !ep.deliver(agent.CommandOrErr{Cmd: cmd}) {
			return
		}
	}
}

func (ep *wsEndpoint) deliver(item agent.CommandOrErr) bool {
	select {
	case ep.cmds <- item:
		return true
	case <-ep.done:
		return false
	}
}

func (ep *wsEndpoint) pingLoop() {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ep.done:
			return
		case <-t.C:
			if err := ep.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
