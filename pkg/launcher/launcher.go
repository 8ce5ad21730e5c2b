// Package launcher starts the core process when the bridge finds nothing
// listening at the core address. Launching is fire-and-forget: the bridge
// learns whether it worked from its next reconnect attempt.
package launcher

import (
	"io"
	"log/slog"
	osexec "os/exec"
	"sync"
)

// DefaultCommand is the program that boots the core on a standard install.
const DefaultCommand = "mycroft-gui-core-loader"

// Launcher starts the core.
type Launcher interface {
	Launch()
}

// Func adapts a function to the Launcher interface.
type Func func()

// Launch calls f.
func (f Func) Launch() { f() }

// Exec launches the core as a detached child process.
type Exec struct {
	Command string
	Args    []string
	// Stdout and Stderr receive the child's output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewExec creates an Exec for command. An empty command uses DefaultCommand.
func NewExec(command string, args []string, logger *slog.Logger) *Exec {
	if command == "" {
		command = DefaultCommand
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Exec{Command: command, Args: args, Logger: logger}
}

// Launch starts the command unless a previously launched child is still
// running. Start failures are logged, never returned.
func (e *Exec) Launch() {
	e.mu.Lock()
	defer e.mu.Unlock()

	log := e.logger()

	if e.running {
		log.Debug("core loader already running", "command", e.Command)
		return
	}

	cmd := osexec.Command(e.Command, e.Args...) //nolint:gosec // command comes from the operator's config
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr

	if err := cmd.Start(); err != nil {
		log.Warn("cannot start core loader", "command", e.Command, "error", err)
		return
	}

	log.Info("core loader started", "command", e.Command, "pid", cmd.Process.Pid)

	e.running = true
	e.done = make(chan struct{})

	go e.wait(cmd, e.done)
}

// Done returns a channel closed when the last launched child exits, or nil if
// nothing was launched.
func (e *Exec) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

func (e *Exec) wait(cmd *osexec.Cmd, done chan struct{}) {
	err := cmd.Wait()

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	if err != nil {
		e.logger().Warn("core loader exited", "command", e.Command, "error", err)
	} else {
		e.logger().Debug("core loader exited", "command", e.Command)
	}

	close(done)
}

func (e *Exec) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Logger
}
