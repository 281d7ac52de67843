// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"strata/internal/build"
	"strata/internal/config"
	"strata/internal/engine"
	"strata/internal/issue"
	"strata/internal/resolver"
	"strata/pkg/recipe"

	"github.com/opencontainers/go-digest"
)

// DefaultRecipeFile is the recipe filename looked up when none is given.
const DefaultRecipeFile = "recipe.cue"

// resolveRecipePath turns an optional CLI argument into a recipe file path.
// A directory argument means "the recipe.cue inside it"; no argument means
// the recipe.cue of the current directory.
func resolveRecipePath(args []string) string {
	path := DefaultRecipeFile
	if len(args) > 0 {
		path = args[0]
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultRecipeFile)
	}
	return path
}

// loadRecipe reads, parses and validates the recipe at path.
func loadRecipe(path string) (*recipe.Recipe, error) {
	if _, err := os.Stat(path); err != nil {
		renderIssue(issue.RecipeNotFoundId, "")
		return nil, issue.NewErrorContext().
			WithOperation("load recipe").
			WithResource(path).
			WithSuggestion("Run 'strata init' to create a starter recipe").
			WithSuggestion("Pass the recipe path explicitly, e.g. 'strata build ./env/recipe.cue'").
			Wrap(err).
			BuildError()
	}

	rec, err := recipe.Parse(path)
	if err != nil {
		renderIssue(issue.RecipeParseErrorId, "")
		return nil, issue.NewErrorContext().
			WithOperation("parse recipe").
			WithResource(path).
			WithSuggestion("Run 'strata validate' for the full list of problems").
			Wrap(err).
			BuildError()
	}
	return rec, nil
}

// lockPathFor returns the lock file path beside the recipe.
func lockPathFor(rec *recipe.Recipe) string {
	return filepath.Join(filepath.Dir(rec.FilePath), build.LockFileName)
}

// engineTypeFor maps the configured engine name to a concrete engine type.
func engineTypeFor(cfg *config.Config) engine.EngineType {
	if cfg.ContainerEngine == config.ContainerEnginePodman {
		return engine.EngineTypePodman
	}
	return engine.EngineTypeDocker
}

// newEngineForConfig creates the configured container engine, falling back
// to whichever one is installed.
func newEngineForConfig(cfg *config.Config) (engine.Engine, error) {
	eng, err := engine.NewEngine(engineTypeFor(cfg))
	if err != nil {
		renderIssue(issue.EngineNotFoundId, string(cfg.UI.ColorScheme))
		return nil, err
	}
	logger.Debug("selected container engine", "engine", eng.Name())
	return eng, nil
}

// layerStoreDir returns the virtual executor's layer store root.
func layerStoreDir(cfg *config.Config) (string, error) {
	if cfg.Build.CacheDir != "" {
		return filepath.Join(string(cfg.Build.CacheDir), "layers"), nil
	}
	dir, err := config.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "layers"), nil
}

// resolveBase pins the recipe's base spec to an immutable digest. A pinned
// spec in virtual mode is trusted as-is so virtual builds never need a
// container engine; everything else resolves through the engine.
func resolveBase(ctx context.Context, cfg *config.Config, rec *recipe.Recipe) (*resolver.BaseImage, error) {
	if cfg.Executor == config.ExecutorVirtual && rec.Base.Pinned() {
		if err := resolver.ValidateSpec(rec.Base); err != nil {
			renderIssue(issue.BaseResolutionFailedId, string(cfg.UI.ColorScheme))
			return nil, err
		}
		base := baseFromSpec(rec.Base)
		return &base, nil
	}

	eng, err := newEngineForConfig(cfg)
	if err != nil {
		return nil, err
	}
	base, err := resolver.NewResolver(eng).Resolve(ctx, rec.Base)
	if err != nil {
		renderIssue(issue.BaseResolutionFailedId, string(cfg.UI.ColorScheme))
		return nil, err
	}
	logger.Debug("base image pinned", "ref", base.Reference)
	return base, nil
}

// baseFromSpec builds the base image a pinned spec describes without
// touching an engine. Only meaningful when the spec carries a digest.
func baseFromSpec(spec recipe.BaseSpec) resolver.BaseImage {
	return resolver.BaseImage{
		Reference: spec.Reference(),
		Runtime:   spec.Runtime,
		Version:   spec.Version,
		Digest:    digest.Digest(spec.Digest),
	}
}

// baseFromLock reconstructs the pinned base image a lock file records.
func baseFromLock(lock *build.LockFile) resolver.BaseImage {
	return resolver.BaseImage{
		Reference: lock.Base.Reference,
		Digest:    digest.Digest(lock.Base.Digest),
	}
}

// newExecutorForConfig builds the layer executor named by the configuration.
// contextDir is the build-context root copy steps resolve sources against.
func newExecutorForConfig(cfg *config.Config, base resolver.BaseImage, contextDir string) (build.Executor, error) {
	switch cfg.Executor {
	case config.ExecutorVirtual:
		root, err := layerStoreDir(cfg)
		if err != nil {
			return nil, err
		}
		return build.NewVirtualExecutor(root, build.WithVirtualContextDir(contextDir))

	default:
		eng, err := newEngineForConfig(cfg)
		if err != nil {
			return nil, err
		}
		return build.NewEngineExecutor(eng, base,
			build.WithRepository(cfg.Build.LayerRepository),
			build.WithContextDir(contextDir),
		), nil
	}
}

// probeExecutor is newExecutorForConfig minus the issue rendering, for
// callers that read the layer store opportunistically and degrade when no
// store is reachable.
func probeExecutor(cfg *config.Config, base resolver.BaseImage, contextDir string) (build.Executor, error) {
	if cfg.Executor == config.ExecutorVirtual {
		root, err := layerStoreDir(cfg)
		if err != nil {
			return nil, err
		}
		ve, err := build.NewVirtualExecutor(root, build.WithVirtualContextDir(contextDir))
		if err != nil {
			return nil, err
		}
		return ve, nil
	}
	eng, err := engine.NewEngine(engineTypeFor(cfg))
	if err != nil {
		return nil, err
	}
	return build.NewEngineExecutor(eng, base,
		build.WithRepository(cfg.Build.LayerRepository),
		build.WithContextDir(contextDir),
	), nil
}

// builderFor assembles a Builder from configuration plus per-command flags.
// Flags only tighten behavior; they never un-set what the config enables.
func builderFor(cfg *config.Config, exec build.Executor, contextDir string, force bool) *build.Builder {
	opts := []build.BuilderOption{
		build.WithBuildContextDir(contextDir),
		build.WithLogger(logger.With("component", "build")),
	}
	if force || cfg.Build.ForceRebuild {
		opts = append(opts, build.WithForceRebuild())
	}
	if cfg.Build.StrictBindings {
		opts = append(opts, build.WithStrictBindings())
	}
	return build.NewBuilder(exec, opts...)
}

// runBuild is the shared build path behind `strata build` and `strata up`:
// load, resolve, provision, finalize, write the lock file.
func runBuild(ctx context.Context, cfg *config.Config, recipePath string, force bool) (*build.BuildResult, *recipe.Recipe, error) {
	rec, err := loadRecipe(recipePath)
	if err != nil {
		return nil, nil, err
	}

	base, err := resolveBase(ctx, cfg, rec)
	if err != nil {
		return nil, rec, err
	}

	contextDir := filepath.Dir(rec.FilePath)
	exec, err := newExecutorForConfig(cfg, *base, contextDir)
	if err != nil {
		return nil, rec, err
	}

	builder := builderFor(cfg, exec, contextDir, force)
	result, err := builder.Build(ctx, rec, *base)
	if err != nil {
		return nil, rec, err
	}

	lockPath := lockPathFor(rec)
	if err := build.WriteLockFile(lockPath, result.Lock); err != nil {
		return result, rec, fmt.Errorf("build succeeded but writing %s failed: %w", lockPath, err)
	}
	logger.Debug("lock file written", "path", lockPath)

	return result, rec, nil
}
