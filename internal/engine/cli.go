// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"
)

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine provides the common implementation for CLI-based
	// container engines. Docker and Podman engines embed this struct;
	// methods identical across engines (Pull, Run, Commit, Remove, image
	// queries and arg building) live here, engine-specific methods
	// (Available, Version) remain on the concrete types.
	BaseCLIEngine struct {
		name        string // engine name for error messages
		binaryPath  string // resolved at construction via exec.LookPath
		execCommand ExecCommandFunc
	}
)

// WithExecCommand injects a command constructor (used by tests to observe
// the exact CLI invocations without a real engine binary).
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) { e.execCommand = fn }
}

// NewBaseCLIEngine creates a BaseCLIEngine for the given binary.
func NewBaseCLIEngine(name, binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		name:        name,
		binaryPath:  binaryPath,
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BinaryPath returns the resolved engine binary path ("" when not found).
func (e *BaseCLIEngine) BinaryPath() string { return e.binaryPath }

// CreateCommand builds an exec.Cmd for the engine binary.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	return e.execCommand(ctx, e.binaryPath, args...)
}

// RunCommandWithOutput runs an engine command and returns its stdout.
// Stderr is folded into the error for diagnostics.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := e.CreateCommand(ctx, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s %s: %s: %w", e.name, args[0], msg, err)
		}
		return "", fmt.Errorf("%s %s: %w", e.name, args[0], err)
	}
	return stdout.String(), nil
}

// Pull fetches an image reference. Registry fetches are the one operation
// here that fails transiently, so they get a few retries with backoff.
func (e *BaseCLIEngine) Pull(ctx context.Context, ref string) error {
	return RetryWithBackoff(ctx, 3, 500*time.Millisecond, func(int) (bool, error) {
		if _, err := e.RunCommandWithOutput(ctx, "pull", ref); err != nil {
			return true, fmt.Errorf("failed to pull %s: %w", ref, err)
		}
		return false, nil
	})
}

// ImageDigest returns the content digest of a local image. The engine
// reports repo digests as "repo@sha256:..."; only the digest part is
// returned.
func (e *BaseCLIEngine) ImageDigest(ctx context.Context, ref string) (string, error) {
	out, err := e.RunCommandWithOutput(ctx, "image", "inspect", "--format", "{{index .RepoDigests 0}}", ref)
	if err != nil {
		return "", fmt.Errorf("failed to inspect %s: %w", ref, err)
	}

	repoDigest := strings.TrimSpace(out)
	_, dgst, found := strings.Cut(repoDigest, "@")
	if !found {
		return "", fmt.Errorf("image %s has no repo digest (never pushed or pulled?)", ref)
	}
	return dgst, nil
}

// ImageExists checks whether an image is present locally.
func (e *BaseCLIEngine) ImageExists(ctx context.Context, ref string) (bool, error) {
	cmd := e.CreateCommand(ctx, "image", "inspect", ref)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil // inspect exits non-zero for unknown images
		}
		return false, err
	}
	return true, nil
}

// ListImages returns local image references matching a repository prefix.
func (e *BaseCLIEngine) ListImages(ctx context.Context, prefix string) ([]string, error) {
	out, err := e.RunCommandWithOutput(ctx, "images", "--format", "{{.Repository}}:{{.Tag}}", prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	var refs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && line != "<none>:<none>" {
			refs = append(refs, line)
		}
	}
	return refs, nil
}

// RemoveImage removes an image.
func (e *BaseCLIEngine) RemoveImage(ctx context.Context, ref string, force bool) error {
	args := []string{"rmi"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, ref)

	if _, err := e.RunCommandWithOutput(ctx, args...); err != nil {
		return fmt.Errorf("failed to remove image %s: %w", ref, err)
	}
	return nil
}

// Run runs a command in a container and waits for it.
func (e *BaseCLIEngine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	cmd := e.CreateCommand(ctx, e.RunArgs(opts)...)
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	err := cmd.Run()

	result := &RunResult{}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = ExitCode(exitErr.ExitCode())
		} else {
			result.ExitCode = 1
			result.Error = err
		}
	}
	return result, nil
}

// Commit snapshots a stopped container into an image.
func (e *BaseCLIEngine) Commit(ctx context.Context, opts CommitOptions) error {
	if _, err := e.RunCommandWithOutput(ctx, e.CommitArgs(opts)...); err != nil {
		return fmt.Errorf("failed to commit %s: %w", opts.Container, err)
	}
	return nil
}

// Remove removes a container.
func (e *BaseCLIEngine) Remove(ctx context.Context, container string, force bool) error {
	args := []string{"rm"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, container)

	if _, err := e.RunCommandWithOutput(ctx, args...); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", container, err)
	}
	return nil
}

// RunArgs builds the `run` argument list for RunOptions. Env vars are
// emitted in sorted key order so invocations are reproducible.
func (e *BaseCLIEngine) RunArgs(opts RunOptions) []string {
	args := []string{"run"}

	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	if opts.Remove {
		args = append(args, "--rm")
	}
	if opts.Privileged {
		args = append(args, "--privileged")
	}
	if opts.Interactive {
		args = append(args, "--interactive")
	}
	if opts.TTY {
		args = append(args, "--tty")
	}
	if opts.User != "" {
		args = append(args, "--user", opts.User)
	}
	if opts.WorkDir != "" {
		args = append(args, "--workdir", opts.WorkDir)
	}
	if len(opts.Entrypoint) > 0 {
		args = append(args, "--entrypoint", opts.Entrypoint[0])
	}

	keys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--env", fmt.Sprintf("%s=%s", k, opts.Env[k]))
	}

	for _, v := range opts.Volumes {
		args = append(args, "--volume", v)
	}

	args = append(args, opts.Image)
	if len(opts.Entrypoint) > 1 {
		args = append(args, opts.Entrypoint[1:]...)
	}
	args = append(args, opts.Command...)
	return args
}

// CommitArgs builds the `commit` argument list for CommitOptions.
func (e *BaseCLIEngine) CommitArgs(opts CommitOptions) []string {
	args := []string{"commit"}
	for _, change := range opts.Changes {
		args = append(args, "--change", change)
	}
	args = append(args, opts.Container, opts.Tag)
	return args
}
