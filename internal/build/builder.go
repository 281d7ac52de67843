// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"strata/internal/bindings"
	"strata/internal/resolver"
	"strata/pkg/recipe"
)

type (
	// Builder drives one build: it sequences the recipe into a plan, walks
	// the plan single-threaded in ordinal order through the layer cache,
	// fails fast on the first step error, and finalizes the runtime
	// configuration onto the top layer.
	Builder struct {
		exec    Executor
		logger  *log.Logger
		force   bool
		strict  bool
		context string
	}

	// BuilderOption configures a Builder.
	BuilderOption func(*Builder)

	// BuildResult is everything a successful build produced.
	BuildResult struct {
		// Base is the pinned base image the chain descends from.
		Base resolver.BaseImage
		// Plan is the sequenced build plan that was executed.
		Plan *Plan
		// Layers is the chain in execution order, base first.
		Layers []Layer
		// Stats counts cache hits and misses.
		Stats CacheStats
		// ImageRef references the finished artifact.
		ImageRef string
		// RuntimeEnv is the frozen runtime snapshot of the binding table.
		RuntimeEnv map[string]string
		// Lock is the manifest describing the build, ready to be written.
		Lock *LockFile
	}
)

// WithForceRebuild makes every step re-apply regardless of cached layers.
func WithForceRebuild() BuilderOption {
	return func(b *Builder) { b.force = true }
}

// WithStrictBindings makes a binding overwrite a build error instead of
// last-write-wins.
func WithStrictBindings() BuilderOption {
	return func(b *Builder) { b.strict = true }
}

// WithBuildContextDir sets the directory relative copy sources resolve
// against; defaults to the recipe file's directory.
func WithBuildContextDir(dir string) BuilderOption {
	return func(b *Builder) { b.context = dir }
}

// WithLogger sets the build logger.
func WithLogger(logger *log.Logger) BuilderOption {
	return func(b *Builder) { b.logger = logger }
}

// NewBuilder creates a Builder over the given executor.
func NewBuilder(exec Executor, opts ...BuilderOption) *Builder {
	b := &Builder{exec: exec, logger: log.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build executes the recipe on top of the resolved base image. The walk is
// strictly ordered: step i+1 never starts before step i's layer exists, and
// the first failure aborts the build with a ProvisioningError carrying the
// failed step's index and exit code.
func (b *Builder) Build(ctx context.Context, rec *recipe.Recipe, base resolver.BaseImage) (*BuildResult, error) {
	plan, err := NewPlan(rec)
	if err != nil {
		return nil, err
	}

	contextDir := b.context
	if contextDir == "" {
		contextDir = filepath.Dir(rec.FilePath)
	}

	var tableOpts []bindings.Option
	if b.strict {
		tableOpts = append(tableOpts, bindings.WithStrictOverwrites())
	}
	table := bindings.NewTable(tableOpts...)
	for _, path := range rec.EnvFiles {
		if err := bindings.LoadEnvFile(table, path, contextDir, recipe.ScopeBoth); err != nil {
			return nil, err
		}
	}
	// Inline declarations come after env files so they win for shared keys.
	for _, d := range rec.Env {
		if err := table.Declare(d); err != nil {
			return nil, err
		}
	}

	baseLayer := NewBaseLayer(base.Digest.String())
	if err := b.exec.Materialize(ctx, baseLayer); err != nil {
		return nil, fmt.Errorf("failed to materialize base layer: %w", err)
	}
	b.logger.Info("base pinned", "reference", base.Reference, "layer", baseLayer.ShortID())

	cache := NewCache(b.exec, b.logger)
	layers := []Layer{baseLayer}
	lockLayers := make([]LockLayer, 0, len(plan.Steps))
	current := baseLayer

	for i, st := range plan.Steps {
		// Bindings a step declares are visible to the step itself and to
		// every later one.
		for _, d := range st.Env {
			if err := table.Declare(d); err != nil {
				return nil, err
			}
		}

		hash, err := StepHash(st.Step, contextDir)
		if err != nil {
			return nil, fmt.Errorf("failed to hash step %q: %w", st.Name, err)
		}

		layer, hit, err := cache.LookupOrApply(ctx, current, st, hash, table.SnapshotForStep(), b.force)
		if err != nil {
			var pe *ProvisioningError
			if errors.As(err, &pe) {
				pe.StepIndex = i
			}
			return nil, err
		}

		b.logger.Info("layer ready",
			"step", st.Name, "ordinal", i, "layer", layer.ShortID(), "cached", hit)

		layers = append(layers, layer)
		lockLayers = append(lockLayers, LockLayer{
			Name:        st.Name,
			ID:          layer.ID,
			StepHash:    hash,
			Synthesized: st.Synthesized,
			CacheHit:    hit,
		})
		current = layer
	}

	table.Freeze()
	runtimeEnv := table.SnapshotForRuntime()

	spec := FinalizeSpec{
		Tag:  fmt.Sprintf("strata/%s:latest", rec.Name),
		Env:  runtimeEnv,
		User: plan.EntrypointUser,
	}
	if ep := rec.Entrypoint; ep != nil {
		spec.WorkDir = ep.WorkDir
		spec.Entrypoint = ep.Command
	}

	imageRef, err := b.exec.Finalize(ctx, current, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize image: %w", err)
	}

	stats := cache.Stats()
	b.logger.Info("build complete",
		"image", imageRef, "layers", len(layers), "hits", stats.Hits, "misses", stats.Misses)

	return &BuildResult{
		Base:       base,
		Plan:       plan,
		Layers:     layers,
		Stats:      stats,
		ImageRef:   imageRef,
		RuntimeEnv: runtimeEnv,
		Lock: &LockFile{
			GeneratedAt: time.Now().UTC(),
			Recipe:      rec.Name,
			Base:        LockBase{Reference: base.Reference, Digest: base.Digest.String()},
			Layers:      lockLayers,
			Image:       imageRef,
		},
	}, nil
}

// StepHash extends the step's content hash with the content of its copy
// source, so a changed build-context snapshot invalidates the layer even
// though the recipe text is unchanged.
func StepHash(step recipe.Step, contextDir string) (string, error) {
	hash := step.ContentHash()
	if step.Copy == nil {
		return hash, nil
	}

	src := step.Copy.Source
	if !filepath.IsAbs(src) {
		src = filepath.Join(contextDir, src)
	}
	dirHash, err := HashDir(src)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n", hash, dirHash)
	return hex.EncodeToString(h.Sum(nil)), nil
}
