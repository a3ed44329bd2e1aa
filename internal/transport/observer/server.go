// Package observer serves read-only spectator access to a running battle:
// a bootstrap snapshot over plain HTTP plus a websocket feed of engine
// events. Feed frames use the battle log record shape, so a captured
// stream is also a valid (uncompressed) log body. Both endpoints are
// loopback-only, like the rest of the admin surface.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ecafe8/battle-city/internal/control"
	"github.com/ecafe8/battle-city/internal/game"
	"github.com/ecafe8/battle-city/internal/persistence/battlelog"
	"github.com/ecafe8/battle-city/internal/protocol"
)

// Bootstrap is the snapshot a spectator fetches before opening the feed.
type Bootstrap struct {
	ProtocolVersion string              `json:"protocol_version"`
	BattleID        string              `json:"battle_id"`
	Tick            uint64              `json:"tick"`
	Over            bool                `json:"over"`
	Map             protocol.MapInfo    `json:"map"`
	Tanks           []protocol.TankInfo `json:"tanks"`
}

type Server struct {
	eng      *game.Engine
	battleID string
	logger   *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(eng *game.Engine, battleID string, logger *log.Logger) *Server {
	return &Server{
		eng:      eng,
		battleID: battleID,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !control.IsLoopback(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := Bootstrap{
			ProtocolVersion: protocol.Version,
			BattleID:        s.battleID,
			Tick:            s.eng.Tick(),
			Over:            s.eng.GameOver(),
			Map:             s.eng.MapSnapshot(),
			Tanks:           s.eng.Tanks(),
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

// WSHandler upgrades the connection and streams every bus event until the
// client disconnects or ctx ends. A slow spectator loses frames rather than
// slowing the battle; the bus counts the drops.
func (s *Server) WSHandler(ctx context.Context) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !control.IsLoopback(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		sub := s.eng.Bus().Subscribe(1024)
		defer sub.Close()
		if s.logger != nil {
			s.logger.Printf("spectator %s joined from %s", sid, r.RemoteAddr)
		}

		// Spectators send nothing; the read loop exists to notice the close.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"),
					time.Now().Add(time.Second))
				return
			case <-gone:
				if s.logger != nil {
					s.logger.Printf("spectator %s left", sid)
				}
				return
			case ev := <-sub.C:
				frame := battlelog.Record{
					Kind:  ev.Kind(),
					At:    time.Now().UTC().Format(time.RFC3339Nano),
					Event: ev,
				}
				b, err := json.Marshal(frame)
				if err != nil {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					if s.logger != nil {
						s.logger.Printf("spectator %s write: %v", sid, err)
					}
					return
				}
			}
		}
	}
}
