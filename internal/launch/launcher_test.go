// SPDX-License-Identifier: MPL-2.0

package launch

import (
	"context"
	"errors"
	"testing"

	"strata/internal/engine"
)

// runFunc is a stub engine that only implements Run; everything else is
// unreachable from the launcher.
type runFunc func(ctx context.Context, opts engine.RunOptions) (*engine.RunResult, error)

func (f runFunc) Name() string    { return "stub" }
func (f runFunc) Available() bool { return true }
func (f runFunc) Version(context.Context) (string, error) {
	return "stub", nil
}
func (f runFunc) Pull(context.Context, string) error { return nil }
func (f runFunc) ImageDigest(context.Context, string) (string, error) {
	return "", nil
}
func (f runFunc) ImageExists(context.Context, string) (bool, error) {
	return true, nil
}
func (f runFunc) ListImages(context.Context, string) ([]string, error) {
	return nil, nil
}
func (f runFunc) RemoveImage(context.Context, string, bool) error { return nil }
func (f runFunc) Run(ctx context.Context, opts engine.RunOptions) (*engine.RunResult, error) {
	return f(ctx, opts)
}
func (f runFunc) Commit(context.Context, engine.CommitOptions) error { return nil }
func (f runFunc) Remove(context.Context, string, bool) error         { return nil }

func TestLauncherExited(t *testing.T) {
	var captured engine.RunOptions
	eng := runFunc(func(_ context.Context, opts engine.RunOptions) (*engine.RunResult, error) {
		captured = opts
		return &engine.RunResult{ExitCode: 0}, nil
	})

	l := New(eng)
	if l.State() != StateNotStarted {
		t.Errorf("initial state = %v, want not started", l.State())
	}

	res, err := l.Run(context.Background(), Spec{
		Image: "strata/moseq-lab:latest",
		User:  "svc",
		Env:   map[string]string{"HOST": "db.local"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.State != StateExited || l.State() != StateExited {
		t.Errorf("state = %v/%v, want exited", res.State, l.State())
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}

	// The container is one-shot: removed after exit, never restarted.
	if !captured.Remove {
		t.Error("launch container not marked for removal")
	}
	if captured.User != "svc" {
		t.Errorf("user = %q, want svc", captured.User)
	}
	if captured.Env["HOST"] != "db.local" {
		t.Errorf("env = %v, missing runtime binding", captured.Env)
	}
}

func TestLauncherPrivileged(t *testing.T) {
	var captured engine.RunOptions
	eng := runFunc(func(_ context.Context, opts engine.RunOptions) (*engine.RunResult, error) {
		captured = opts
		return &engine.RunResult{ExitCode: 0}, nil
	})

	// A nested daemon entrypoint needs the flag to reach the engine.
	if _, err := New(eng).Run(context.Background(), Spec{Image: "img", Privileged: true}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !captured.Privileged {
		t.Error("privileged launch not passed to the engine")
	}

	if _, err := New(eng).Run(context.Background(), Spec{Image: "img"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if captured.Privileged {
		t.Error("unprivileged launch ran privileged")
	}
}

func TestLauncherNonZeroExit(t *testing.T) {
	eng := runFunc(func(context.Context, engine.RunOptions) (*engine.RunResult, error) {
		return &engine.RunResult{ExitCode: 4}, nil
	})

	res, err := New(eng).Run(context.Background(), Spec{Image: "img"})
	if err != nil {
		t.Fatalf("Run() error = %v, non-zero exit is not an engine error", err)
	}
	if res.State != StateExited {
		t.Errorf("state = %v, want exited", res.State)
	}
	if res.ExitCode != 4 {
		t.Errorf("exit code = %d, want 4", res.ExitCode)
	}
}

func TestLauncherCrashedOnSignal(t *testing.T) {
	eng := runFunc(func(context.Context, engine.RunOptions) (*engine.RunResult, error) {
		// 137 = 128 + SIGKILL
		return &engine.RunResult{ExitCode: 137}, nil
	})

	l := New(eng)
	res, err := l.Run(context.Background(), Spec{Image: "img"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.State != StateCrashed || l.State() != StateCrashed {
		t.Errorf("state = %v/%v, want crashed", res.State, l.State())
	}
	if res.Signal != 9 {
		t.Errorf("signal = %d, want 9", res.Signal)
	}
}

func TestLauncherCrashedOnEngineError(t *testing.T) {
	boom := errors.New("daemon unreachable")
	eng := runFunc(func(context.Context, engine.RunOptions) (*engine.RunResult, error) {
		return nil, boom
	})

	l := New(eng)
	res, err := l.Run(context.Background(), Spec{Image: "img"})
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want engine error", err)
	}
	if res.State != StateCrashed || l.State() != StateCrashed {
		t.Errorf("state = %v/%v, want crashed", res.State, l.State())
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateNotStarted: "not started",
		StateRunning:    "running",
		StateExited:     "exited",
		StateCrashed:    "crashed",
	} {
		if state.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", state, state.String(), want)
		}
	}
}
