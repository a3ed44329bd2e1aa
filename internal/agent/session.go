package agent

import (
	"context"
	"errors"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/ecafe8/battle-city/internal/control"
	"github.com/ecafe8/battle-city/internal/game"
	"github.com/ecafe8/battle-city/internal/protocol"
)

// SessionExit is the report a finished session offers on SessionConfig.Exits.
// Sess identifies which incarnation exited; a supervisor that already
// replaced the identity drops the report as stale.
type SessionExit struct {
	PlayerID string
	Sess     *Session
	Err      error
}

// SessionConfig carries everything StartSession needs beyond the identity.
type SessionConfig struct {
	Factory ProcessFactory
	State   GameState
	Bus     *game.Bus
	Logger  *log.Logger
	Metrics *control.Metrics

	// NoteBuffer and EventBuffer size the outbound note queue and the bus
	// subscription. Zero means the defaults.
	NoteBuffer  int
	EventBuffer int

	// Exits, when set, receives a non-blocking exit report after teardown.
	Exits chan<- SessionExit
}

const (
	defaultCommandBuffer = 16
	defaultNoteBuffer    = 32
	defaultEventBuffer   = 64
)

// Session owns one agent: its endpoint, its interpreter, and the forwarding
// loop that ships notes out in emission order. The endpoint is closed
// exactly once before Done closes, no matter what ended the session.
type Session struct {
	playerID string
	interp   *Interpreter
	ep       Endpoint
	gs       GameState
	logger   *log.Logger
	metrics  *control.Metrics
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

// StartSession launches the external process for playerID and runs the
// interpreter and note-forwarder until cancellation or failure. The WELCOME
// note is queued before anything else so the agent always hears it first. On
// a factory error nothing is left running.
func StartSession(ctx context.Context, playerID, tankID string, cfg SessionConfig) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	ep, err := cfg.Factory(ctx, playerID)
	if err != nil {
		cancel()
		return nil, err
	}

	nb := cfg.NoteBuffer
	if nb <= 0 {
		nb = defaultNoteBuffer
	}
	eb := cfg.EventBuffer
	if eb <= 0 {
		eb = defaultEventBuffer
	}

	notes := make(chan protocol.Note, nb)
	notes <- protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		PlayerID:        playerID,
		TankID:          tankID,
	}

	s := &Session{
		playerID: playerID,
		ep:       ep,
		gs:       cfg.State,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.interp = NewInterpreter(playerID, cfg.State, notes)
	s.interp.metrics = cfg.Metrics
	sub := cfg.Bus.Subscribe(eb)
	s.metrics.SessionStarted()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.interp.Run(gctx, ep.Commands()) })
	g.Go(func() error { return s.forward(gctx, notes, sub) })

	go func() {
		err := g.Wait()
		if cerr := ep.Close(); cerr != nil && s.logger != nil {
			s.logger.Printf("%s endpoint close: %v", playerID, cerr)
		}
		sub.Close()
		cancel()
		var perr *protocol.Error
		if errors.As(err, &perr) {
			s.metrics.IncProtocolErrors()
		}
		s.metrics.SessionEnded()
		s.err = err
		close(s.done)
		if cfg.Exits != nil {
			select {
			case cfg.Exits <- SessionExit{PlayerID: playerID, Sess: s, Err: err}:
			default:
				if s.logger != nil {
					s.logger.Printf("%s exit report dropped", playerID)
				}
			}
		}
	}()
	return s, nil
}

func (s *Session) PlayerID() string { return s.playerID }

// Controller exposes the interpreter for ActivateTank.
func (s *Session) Controller() game.Controller { return s.interp }

// Cancel asks the session to tear down. It returns immediately; Done closes
// once the endpoint is gone.
func (s *Session) Cancel() { s.cancel() }

func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session ended. Valid once Done is closed.
func (s *Session) Err() error { return s.err }

// forward is the single consumer of outbound notes, so the process sees them
// in emission order. It doubles as the bullet watcher: destroyed bullets
// belonging to the current tank become BULLET_COMPLETE notes.
func (s *Session) forward(ctx context.Context, notes <-chan protocol.Note, sub *game.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-notes:
			if err := s.ep.Send(n); err != nil {
				return err
			}
			s.metrics.IncNotes()
		case ev := <-sub.C:
			if err := s.bulletsDone(ev); err != nil {
				return err
			}
		}
	}
}

// bulletsDone reports destroyed bullets fired by the tank this identity
// currently holds. With no live tank, or one acquired after the shot, the
// batch is not ours to report.
func (s *Session) bulletsDone(ev game.Event) error {
	bd, ok := ev.(game.BulletsDestroyed)
	if !ok {
		return nil
	}
	cur, ok := s.gs.TankByPlayer(s.playerID)
	if !ok {
		return nil
	}
	for _, hit := range bd.Bullets {
		if hit.TankID != cur.ID {
			continue
		}
		if err := s.ep.Send(protocol.BulletCompleteMsg{Type: protocol.TypeBulletComplete}); err != nil {
			return err
		}
		s.metrics.IncNotes()
	}
	return nil
}
