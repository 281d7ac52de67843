// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"strata/internal/engine"
	"strata/pkg/recipe"
)

// layerDirPattern matches the directory names the virtual store uses for
// layer snapshots (full content-addressed IDs).
var layerDirPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// VirtualExecutor materializes layers as host directory snapshots and runs
// step command groups with the built-in shell interpreter. No container
// engine is involved, which makes it suitable for tests and for exercising
// build semantics on machines without an engine. Identity declarations are
// recorded but not enforced; useradd and friends are not emulated.
type VirtualExecutor struct {
	root       string
	contextDir string
	stdout     io.Writer
	stderr     io.Writer
}

// VirtualExecutorOption configures a VirtualExecutor.
type VirtualExecutorOption func(*VirtualExecutor)

// WithVirtualContextDir sets the directory relative copy sources resolve
// against.
func WithVirtualContextDir(dir string) VirtualExecutorOption {
	return func(e *VirtualExecutor) { e.contextDir = dir }
}

// WithVirtualOutput wires step output streams. Nil writers discard.
func WithVirtualOutput(stdout, stderr io.Writer) VirtualExecutorOption {
	return func(e *VirtualExecutor) {
		e.stdout = stdout
		e.stderr = stderr
	}
}

// NewVirtualExecutor creates an executor storing layer snapshots under
// root.
func NewVirtualExecutor(root string, opts ...VirtualExecutorOption) (*VirtualExecutor, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create layer store: %w", err)
	}
	e := &VirtualExecutor{root: root}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Name implements Executor.
func (e *VirtualExecutor) Name() string { return "virtual" }

// Ref implements Executor.
func (e *VirtualExecutor) Ref(layer Layer) string {
	return filepath.Join(e.root, layer.ID)
}

// Materialize implements Executor. The base snapshot is an empty root
// marked with the pinned digest; steps populate everything else.
func (e *VirtualExecutor) Materialize(ctx context.Context, base Layer) error {
	dir := e.Ref(base)
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ".strata-base"), []byte(base.StepHash+"\n"), 0o644)
}

// Has implements Executor.
func (e *VirtualExecutor) Has(ctx context.Context, layer Layer) (bool, error) {
	_, err := os.Stat(e.Ref(layer))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Apply implements Executor. The parent snapshot is copied to a staging
// directory, the step runs against it, and only a fully successful step is
// renamed into place. A failed step leaves no snapshot behind.
func (e *VirtualExecutor) Apply(ctx context.Context, parent, layer Layer, step recipe.Step, env map[string]string) error {
	staging := e.Ref(layer) + ".tmp"
	if err := os.RemoveAll(staging); err != nil {
		return err
	}
	if err := CopyDir(e.Ref(parent), staging); err != nil {
		return fmt.Errorf("failed to stage parent snapshot: %w", err)
	}

	fail := func(err error) error {
		_ = os.RemoveAll(staging)
		return err
	}

	if c := step.Copy; c != nil {
		src := c.Source
		if !filepath.IsAbs(src) {
			src = filepath.Join(e.contextDir, src)
		}
		if err := CopyDir(src, e.insidePath(staging, c.Target)); err != nil {
			return fail(fmt.Errorf("failed to stage build context: %w", err))
		}
	}

	if err := e.runScript(ctx, staging, step, env); err != nil {
		return fail(err)
	}

	if c := step.Copy; c != nil && c.Discard {
		if err := os.RemoveAll(e.insidePath(staging, c.Target)); err != nil {
			return fail(err)
		}
	}

	return os.Rename(staging, e.Ref(layer))
}

// Finalize implements Executor. The runtime configuration is written as a
// manifest beside the layer snapshots; the returned reference is its path.
func (e *VirtualExecutor) Finalize(ctx context.Context, top Layer, spec FinalizeSpec) (string, error) {
	manifest := struct {
		Layer      string            `toml:"layer"`
		Env        map[string]string `toml:"env,omitempty"`
		User       string            `toml:"user,omitempty"`
		WorkDir    string            `toml:"workdir,omitempty"`
		Entrypoint []string          `toml:"entrypoint,omitempty"`
	}{
		Layer:      top.ID,
		Env:        spec.Env,
		User:       spec.User,
		WorkDir:    spec.WorkDir,
		Entrypoint: spec.Entrypoint,
	}

	data, err := toml.Marshal(manifest)
	if err != nil {
		return "", err
	}

	path := filepath.Join(e.root, sanitizeTag(spec.Tag)+".toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// List implements Executor. Only layer snapshots are listed; finalize
// manifests are not prune targets.
func (e *VirtualExecutor) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		return nil, err
	}

	var refs []string
	for _, entry := range entries {
		if entry.IsDir() && layerDirPattern.MatchString(entry.Name()) {
			refs = append(refs, filepath.Join(e.root, entry.Name()))
		}
	}
	return refs, nil
}

// Remove implements Executor. Refuses paths outside the layer store.
func (e *VirtualExecutor) Remove(ctx context.Context, ref string) error {
	rel, err := filepath.Rel(e.root, ref)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("ref %q is outside the layer store", ref)
	}
	return os.RemoveAll(ref)
}

// runScript executes the step's command group inside the staging snapshot.
// The snapshot root stands in for the filesystem root: absolute path words
// and redirect targets in the command group are rewritten under it before
// execution. Paths that only surface through variable expansion, or that
// are embedded inside flag words like --prefix=/usr, are not intercepted;
// commands themselves resolve through the host PATH.
func (e *VirtualExecutor) runScript(ctx context.Context, staging string, step recipe.Step, env map[string]string) error {
	prog, err := syntax.NewParser().Parse(strings.NewReader(step.Script()), step.Name)
	if err != nil {
		return &ProvisioningError{StepIndex: -1, StepName: step.Name, ExitCode: 1,
			Cause: fmt.Errorf("script syntax error: %w", err)}
	}

	root, err := filepath.Abs(staging)
	if err != nil {
		return err
	}
	remapAbsolutePaths(prog, root)

	workDir := e.insidePath(staging, step.WorkDir)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return err
	}

	runner, err := interp.New(
		interp.Dir(workDir),
		interp.Env(expand.ListEnviron(mergedEnviron(env)...)),
		interp.StdIO(nil, e.stdout, e.stderr),
	)
	if err != nil {
		return fmt.Errorf("failed to create interpreter: %w", err)
	}

	if err := runner.Run(ctx, prog); err != nil {
		var status interp.ExitStatus
		if errors.As(err, &status) {
			return &ProvisioningError{StepIndex: -1, StepName: step.Name, ExitCode: engine.ExitCode(status)}
		}
		return &ProvisioningError{StepIndex: -1, StepName: step.Name, ExitCode: 1, Cause: err}
	}
	return nil
}

// remapAbsolutePaths rewrites every absolute path literal in a parsed
// command group so it lands under root. This is what keeps a step like
// "rm -rf /var/lib/apt/lists/*" inside the snapshot instead of touching
// the host: the interpreter resolves relative paths against its Dir but
// opens absolute ones as-is. Glob suffixes survive the rewrite because
// they are part of the same literal.
func remapAbsolutePaths(prog *syntax.File, root string) {
	syntax.Walk(prog, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.Lit:
			if strings.HasPrefix(n.Value, "/") {
				n.Value = root + n.Value
			}
		case *syntax.SglQuoted:
			if strings.HasPrefix(n.Value, "/") {
				n.Value = root + n.Value
			}
		}
		return true
	})
}

// insidePath remaps an absolute in-layer path under the snapshot root.
func (e *VirtualExecutor) insidePath(snapshot, path string) string {
	if path == "" {
		return snapshot
	}
	return filepath.Join(snapshot, strings.TrimPrefix(path, "/"))
}

// mergedEnviron overlays the step bindings on the host environment so
// interpreter lookups (PATH in particular) keep working.
func mergedEnviron(env map[string]string) []string {
	merged := os.Environ()

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged = append(merged, k+"="+env[k])
	}
	return merged
}

func sanitizeTag(tag string) string {
	r := strings.NewReplacer("/", "-", ":", "-")
	return r.Replace(tag)
}
