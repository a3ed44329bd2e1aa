// Package agent connects external decision processes to battle tanks. A
// Session owns one agent: the endpoint carrying its two message streams, the
// Interpreter that turns its commands into movement and fire intents, and the
// forwarding loop that ships notes back out. The Supervisor above it keeps
// the enemy roster populated with agent-driven tanks.
package agent

import (
	"context"
	"errors"

	"github.com/ecafe8/battle-city/internal/protocol"
)

// ErrAgentClosed reports that the external side closed its command stream.
// Sessions treat it as a normal exit; the supervisor still replaces the tank.
var ErrAgentClosed = errors.New("agent closed command stream")

// CommandOrErr is one item off an endpoint's inbound stream: a decoded
// command, or the error that ended the stream. After an Err item the stream
// is closed.
type CommandOrErr struct {
	Cmd protocol.Command
	Err error
}

// Endpoint is the boundary to one external agent: commands in, notes out.
// ProcEndpoint speaks to a child process over stdio; transport/ws wraps a
// websocket client the same way.
type Endpoint interface {
	// Commands returns the inbound stream. The channel closes when the
	// external side goes away or after a decode error is delivered.
	Commands() <-chan CommandOrErr
	// Send forwards one note. Called from a single goroutine.
	Send(n protocol.Note) error
	// Close tears the external side down. Safe to call more than once; must
	// not block waiting for the agent to acknowledge.
	Close() error
}

// ProcessFactory builds the endpoint for one session. On error nothing may
// be left running.
type ProcessFactory func(ctx context.Context, playerID string) (Endpoint, error)
