package agent

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"

	"github.com/ecafe8/battle-city/internal/protocol"
)

// ProcEndpoint runs one agent as a child process speaking line-delimited
// JSON: commands on stdout, notes on stdin. stderr lines go to the logger so
// agent-side diagnostics land in the server log.
type ProcEndpoint struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	cmds   chan CommandOrErr
	done   chan struct{}
	once   sync.Once
	logger *log.Logger
}

// StartProcess returns a ProcessFactory launching argv for each session. The
// session context is wired into the command, so a process that survives
// Close is reaped when the session is cancelled. cmdBuf sizes the inbound
// command queue; zero takes the default.
func StartProcess(argv []string, cmdBuf int, logger *log.Logger) ProcessFactory {
	if cmdBuf <= 0 {
		cmdBuf = defaultCommandBuffer
	}
	return func(ctx context.Context, playerID string) (Endpoint, error) {
		if len(argv) == 0 {
			return nil, errors.New("agent: empty process command")
		}
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("agent: stdin pipe: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("agent: stdout pipe: %w", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("agent: stderr pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("agent: start %s: %w", argv[0], err)
		}

		ep := &ProcEndpoint{
			cmd:    cmd,
			stdin:  stdin,
			cmds:   make(chan CommandOrErr, cmdBuf),
			done:   make(chan struct{}),
			logger: logger,
		}
		go ep.readCommands(stdout)
		go ep.drainStderr(playerID, stderr)
		return ep, nil
	}
}

func (ep *ProcEndpoint) Commands() <-chan CommandOrErr { return ep.cmds }

func (ep *ProcEndpoint) Send(n protocol.Note) error {
	b, err := protocol.EncodeNote(n)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := ep.stdin.Write(b); err != nil {
		return fmt.Errorf("agent: write note: %w", err)
	}
	return nil
}

// Close stops the readers and kills the process. A nonzero exit from a
// killed agent is not an error.
func (ep *ProcEndpoint) Close() error {
	var err error
	ep.once.Do(func() {
		close(ep.done)
		ep.stdin.Close()
		if ep.cmd.Process != nil {
			ep.cmd.Process.Kill()
		}
		werr := ep.cmd.Wait()
		var exitErr *exec.ExitError
		if werr != nil && !errors.As(werr, &exitErr) {
			err = werr
		}
	})
	return err
}

// readCommands decodes stdout lines until the stream ends or a line is
// rejected. The first bad line ends the stream; the session tears the whole
// agent down on it.
func (ep *ProcEndpoint) readCommands(stdout io.Reader) {
	defer close(ep.cmds)
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		cmd, err := protocol.DecodeCommand(line)
		if err != nil {
			ep.deliver(CommandOrErr{Err: err})
			return
		}
		if !ep.deliver(CommandOrErr{Cmd: cmd}) {
			return
		}
	}
	if err := sc.Err(); err != nil {
		ep.deliver(CommandOrErr{Err: fmt.Errorf("agent: read commands: %w", err)})
	}
}

func (ep *ProcEndpoint) deliver(item CommandOrErr) bool {
	select {
	case ep.cmds <- item:
		return true
	case <-ep.done:
		return false
	}
}

func (ep *ProcEndpoint) drainStderr(playerID string, stderr io.Reader) {
	sc := bufio.NewScanner(stderr)
	for sc.Scan() {
		if ep.logger != nil {
			ep.logger.Printf("%s stderr: %s", playerID, sc.Text())
		}
	}
}
