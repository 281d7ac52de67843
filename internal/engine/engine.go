// SPDX-License-Identifier: MPL-2.0

// Package engine provides an abstraction layer for container runtimes
// (Docker/Podman). The build layer drives it to pin base images, execute
// provisioning steps in throwaway containers and commit the results as
// layer images; the launcher drives it to run the entrypoint foreground
// process.
package engine

import (
	"context"
	"fmt"
	"io"
)

// Engine defines the interface for container operations.
type Engine interface {
	// Name returns the engine name (docker or podman).
	Name() string
	// Available checks if the engine is usable on this system.
	Available() bool
	// Version returns the engine version.
	Version(ctx context.Context) (string, error)

	// Pull fetches an image reference.
	Pull(ctx context.Context, ref string) error
	// ImageDigest returns the content digest ("sha256:...") of a local image.
	ImageDigest(ctx context.Context, ref string) (string, error)
	// ImageExists checks if an image is present locally.
	ImageExists(ctx context.Context, ref string) (bool, error)
	// ListImages returns local image references matching a repository prefix.
	ListImages(ctx context.Context, prefix string) ([]string, error)
	// RemoveImage removes an image.
	RemoveImage(ctx context.Context, ref string, force bool) error

	// Run runs a command in a container and waits for it to exit.
	Run(ctx context.Context, opts RunOptions) (*RunResult, error)
	// Commit snapshots a stopped container into an image.
	Commit(ctx context.Context, opts CommitOptions) error
	// Remove removes a container.
	Remove(ctx context.Context, container string, force bool) error
}

// RunOptions contains options for running a container.
type RunOptions struct {
	// Image is the image to run.
	Image string
	// Command is the argv executed in the container. Empty means the
	// image's configured entrypoint.
	Command []string
	// Entrypoint overrides the image entrypoint when non-empty.
	Entrypoint []string
	// WorkDir is the working directory inside the container.
	WorkDir string
	// User is the identity the process runs as (container-side account).
	User string
	// Env contains environment variables.
	Env map[string]string
	// Volumes are bind mounts in "host:container" format.
	Volumes []string
	// Name is the container name; required when the caller commits the
	// container afterwards.
	Name string
	// Remove automatically removes the container after exit.
	Remove bool
	// Privileged grants extended privileges (needed for nested daemons).
	Privileged bool
	// Interactive keeps stdin open.
	Interactive bool
	// TTY allocates a pseudo-TTY.
	TTY bool
	// Stdin, Stdout, Stderr wire the process streams. Nil means discarded.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// CommitOptions contains options for committing a container to an image.
type CommitOptions struct {
	// Container is the container name or ID to snapshot.
	Container string
	// Tag is the resulting image tag.
	Tag string
	// Changes are image-config mutations applied during commit
	// (e.g. `ENV K=V`, `USER svc`, `ENTRYPOINT ["dockerd"]`).
	Changes []string
}

// RunResult contains the result of running a container.
type RunResult struct {
	// ExitCode is the process exit code.
	ExitCode ExitCode
	// Error contains any engine-level error (not a non-zero exit).
	Error error
}

// EngineType identifies the container engine type.
type EngineType string

const (
	EngineTypeDocker EngineType = "docker"
	EngineTypePodman EngineType = "podman"
)

// ErrEngineNotAvailable is returned when no usable container engine exists.
type ErrEngineNotAvailable struct {
	Engine string
	Reason string
}

func (e *ErrEngineNotAvailable) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// NewEngine creates a container engine, preferring the requested type and
// falling back to the other one when the preference is not usable.
func NewEngine(preferred EngineType) (Engine, error) {
	switch preferred {
	case EngineTypeDocker:
		if e := NewDockerEngine(); e.Available() {
			return e, nil
		}
		if e := NewPodmanEngine(); e.Available() {
			return e, nil
		}
		return nil, &ErrEngineNotAvailable{
			Engine: "docker",
			Reason: "docker is not installed or not accessible, and podman fallback is also not available",
		}

	case EngineTypePodman:
		if e := NewPodmanEngine(); e.Available() {
			return e, nil
		}
		if e := NewDockerEngine(); e.Available() {
			return e, nil
		}
		return nil, &ErrEngineNotAvailable{
			Engine: "podman",
			Reason: "podman is not installed or not accessible, and docker fallback is also not available",
		}

	default:
		return nil, fmt.Errorf("unknown container engine type: %s", preferred)
	}
}

// AutoDetectEngine tries to find any available container engine, docker
// first (the common case for docker-outside-of-docker setups).
func AutoDetectEngine() (Engine, error) {
	if e := NewDockerEngine(); e.Available() {
		return e, nil
	}
	if e := NewPodmanEngine(); e.Available() {
		return e, nil
	}
	return nil, &ErrEngineNotAvailable{
		Engine: "any",
		Reason: "no container engine (docker or podman) is available on this system",
	}
}
