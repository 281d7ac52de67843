// SPDX-License-Identifier: MPL-2.0

// Package launch starts a built environment: one foreground process,
// running as the configured identity with the frozen runtime bindings in
// its environment. There is no restart policy and no supervision; when the
// process exits, the environment is finished.
package launch

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"strata/internal/engine"
)

// State is the lifecycle position of a launched environment. Transitions
// only ever move forward: NotStarted -> Running -> Exited or Crashed.
type State int

const (
	// StateNotStarted means Run has not been called.
	StateNotStarted State = iota
	// StateRunning means the foreground process is executing.
	StateRunning
	// StateExited means the process terminated on its own; the exit code
	// is available.
	StateExited
	// StateCrashed means the process died from a signal or the engine
	// failed while running it.
	StateCrashed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateCrashed:
		return "crashed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type (
	// Spec describes the single foreground process of one launch.
	Spec struct {
		// Image is the finished environment image.
		Image string
		// Command overrides the image's baked-in entrypoint when non-empty.
		Command []string
		// User overrides the baked-in identity when non-empty.
		User string
		// WorkDir overrides the baked-in working directory when non-empty.
		WorkDir string
		// Env is layered over the image's frozen runtime bindings.
		Env map[string]string
		// Volumes are bind mounts in "host:container" format.
		Volumes []string
		// Privileged starts the container with extended privileges, for
		// entrypoints that run a nested daemon.
		Privileged bool
		// Interactive keeps stdin open.
		Interactive bool
		// TTY allocates a pseudo-TTY.
		TTY bool
		// Stdin, Stdout, Stderr wire the process streams.
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	// Result is the terminal outcome of a launch.
	Result struct {
		// State is StateExited or StateCrashed.
		State State
		// ExitCode is the process exit status.
		ExitCode engine.ExitCode
		// Signal is the terminating signal when the process died from one.
		Signal int
		// Err is the engine-level failure, when the launch never got a
		// process exit.
		Err error
	}

	// Launcher runs environments through a container engine. A Launcher
	// handles one launch at a time; State reports the most recent one.
	Launcher struct {
		eng    engine.Engine
		logger *log.Logger
		state  State
	}
)

// Option configures a Launcher.
type Option func(*Launcher)

// WithLogger sets the launch logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Launcher) { l.logger = logger }
}

// New creates a Launcher over the given engine.
func New(eng engine.Engine, opts ...Option) *Launcher {
	l := &Launcher{eng: eng, logger: log.Default(), state: StateNotStarted}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns the lifecycle position of the most recent launch.
func (l *Launcher) State() State { return l.state }

// Run starts the foreground process and blocks until it terminates. The
// container is removed on exit; nothing restarts it. The returned Result
// is also delivered when the process exits non-zero, so callers can pass
// the exit code through; the error is reserved for engine-level failures.
func (l *Launcher) Run(ctx context.Context, spec Spec) (*Result, error) {
	name := "strata-run-" + uuid.NewString()[:8]
	l.logger.Info("starting environment", "image", spec.Image, "container", name)
	l.state = StateRunning

	res, err := l.eng.Run(ctx, engine.RunOptions{
		Image:       spec.Image,
		Command:     spec.Command,
		User:        spec.User,
		WorkDir:     spec.WorkDir,
		Env:         spec.Env,
		Volumes:     spec.Volumes,
		Privileged:  spec.Privileged,
		Name:        name,
		Remove:      true,
		Interactive: spec.Interactive,
		TTY:         spec.TTY,
		Stdin:       spec.Stdin,
		Stdout:      spec.Stdout,
		Stderr:      spec.Stderr,
	})
	if err != nil {
		l.state = StateCrashed
		l.logger.Error("environment failed to run", "error", err)
		return &Result{State: StateCrashed, Err: err}, err
	}

	if sig := res.ExitCode.Signal(); sig != 0 {
		l.state = StateCrashed
		l.logger.Warn("environment crashed", "signal", sig)
		return &Result{State: StateCrashed, ExitCode: res.ExitCode, Signal: sig}, nil
	}

	l.state = StateExited
	l.logger.Info("environment exited", "code", res.ExitCode)
	return &Result{State: StateExited, ExitCode: res.ExitCode}, nil
}
