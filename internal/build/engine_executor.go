// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"strata/internal/engine"
	"strata/internal/resolver"
	"strata/pkg/recipe"
)

// DefaultLayerRepository is the image repository layer artifacts are tagged
// under. Prune lists this repository, so user images must never share it.
const DefaultLayerRepository = "strata-layer"

// EngineExecutor materializes layers as container images: each step runs in
// a throwaway container on top of the parent layer's image and the result
// is committed under a content-addressed tag.
type EngineExecutor struct {
	eng        engine.Engine
	base       resolver.BaseImage
	repository string
	contextDir string
	stdout     io.Writer
	stderr     io.Writer
}

// EngineExecutorOption configures an EngineExecutor.
type EngineExecutorOption func(*EngineExecutor)

// WithRepository overrides the layer image repository.
func WithRepository(repo string) EngineExecutorOption {
	return func(e *EngineExecutor) { e.repository = repo }
}

// WithContextDir sets the directory relative copy sources resolve against
// (normally the recipe file's directory).
func WithContextDir(dir string) EngineExecutorOption {
	return func(e *EngineExecutor) { e.contextDir = dir }
}

// WithOutput wires step output streams. Nil writers discard.
func WithOutput(stdout, stderr io.Writer) EngineExecutorOption {
	return func(e *EngineExecutor) {
		e.stdout = stdout
		e.stderr = stderr
	}
}

// NewEngineExecutor creates an executor that stores layers in the given
// engine's image store, rooted at the resolved base image.
func NewEngineExecutor(eng engine.Engine, base resolver.BaseImage, opts ...EngineExecutorOption) *EngineExecutor {
	e := &EngineExecutor{
		eng:        eng,
		base:       base,
		repository: DefaultLayerRepository,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements Executor.
func (e *EngineExecutor) Name() string { return "engine" }

// Ref implements Executor. The base layer is the pinned base image itself;
// every other layer lives under the layer repository keyed by short ID.
func (e *EngineExecutor) Ref(layer Layer) string {
	if layer.IsBase() {
		return e.base.Reference
	}
	return fmt.Sprintf("%s:%s", e.repository, layer.ShortID())
}

// Materialize implements Executor. The resolver normally pulls the base
// image already; this re-checks so the executor is usable on its own.
func (e *EngineExecutor) Materialize(ctx context.Context, base Layer) error {
	exists, err := e.eng.ImageExists(ctx, e.base.Reference)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return e.eng.Pull(ctx, e.base.Reference)
}

// Has implements Executor.
func (e *EngineExecutor) Has(ctx context.Context, layer Layer) (bool, error) {
	return e.eng.ImageExists(ctx, e.Ref(layer))
}

// Apply implements Executor. The step's command group runs in a container
// created from the parent layer image; on success the stopped container is
// committed under the child layer's tag. A failed step commits nothing.
func (e *EngineExecutor) Apply(ctx context.Context, parent, layer Layer, step recipe.Step, env map[string]string) error {
	name := "strata-build-" + uuid.NewString()[:8]

	opts := engine.RunOptions{
		Image:      e.Ref(parent),
		Entrypoint: []string{"/bin/sh", "-c"},
		Command:    []string{stepScript(step)},
		WorkDir:    step.WorkDir,
		User:       step.User,
		Env:        env,
		Name:       name,
		Stdout:     e.stdout,
		Stderr:     e.stderr,
	}
	if c := step.Copy; c != nil {
		src := c.Source
		if !filepath.IsAbs(src) {
			src = filepath.Join(e.contextDir, src)
		}
		opts.Volumes = []string{fmt.Sprintf("%s:%s:ro", src, ContextMount)}
	}

	defer func() { _ = e.eng.Remove(context.WithoutCancel(ctx), name, true) }()

	res, err := e.eng.Run(ctx, opts)
	if err != nil {
		return &ProvisioningError{StepIndex: -1, StepName: step.Name, ExitCode: 1, Cause: err}
	}
	if res.ExitCode != 0 {
		return &ProvisioningError{StepIndex: -1, StepName: step.Name, ExitCode: res.ExitCode, Cause: res.Error}
	}

	return e.eng.Commit(ctx, engine.CommitOptions{Container: name, Tag: e.Ref(layer)})
}

// Finalize implements Executor. Runtime configuration is baked in through
// commit changes on a no-op container, so the finished image carries the
// frozen bindings, identity and entrypoint without another step running.
func (e *EngineExecutor) Finalize(ctx context.Context, top Layer, spec FinalizeSpec) (string, error) {
	name := "strata-finalize-" + uuid.NewString()[:8]

	defer func() { _ = e.eng.Remove(context.WithoutCancel(ctx), name, true) }()

	res, err := e.eng.Run(ctx, engine.RunOptions{
		Image:      e.Ref(top),
		Entrypoint: []string{"/bin/sh", "-c"},
		Command:    []string{"true"},
		Name:       name,
	})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("finalize container exited with code %d", res.ExitCode)
	}

	if err := e.eng.Commit(ctx, engine.CommitOptions{
		Container: name,
		Tag:       spec.Tag,
		Changes:   commitChanges(spec),
	}); err != nil {
		return "", err
	}
	return spec.Tag, nil
}

// List implements Executor.
func (e *EngineExecutor) List(ctx context.Context) ([]string, error) {
	return e.eng.ListImages(ctx, e.repository)
}

// Remove implements Executor.
func (e *EngineExecutor) Remove(ctx context.Context, ref string) error {
	return e.eng.RemoveImage(ctx, ref, true)
}

// commitChanges renders a FinalizeSpec as image-config mutations. Env keys
// are sorted so the same spec always produces the same change list.
func commitChanges(spec FinalizeSpec) []string {
	var changes []string

	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		changes = append(changes, fmt.Sprintf("ENV %s=%s", k, spec.Env[k]))
	}

	if spec.User != "" {
		changes = append(changes, "USER "+spec.User)
	}
	if spec.WorkDir != "" {
		changes = append(changes, "WORKDIR "+spec.WorkDir)
	}
	if len(spec.Entrypoint) > 0 {
		argv, _ := json.Marshal(spec.Entrypoint)
		changes = append(changes, "ENTRYPOINT "+string(argv))
	}

	return changes
}
