// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	digest "github.com/opencontainers/go-digest"

	"strata/internal/engine"
	"strata/internal/resolver"
	"strata/pkg/recipe"
)

type appliedStep struct {
	Name string
	Env  map[string]string
}

// fakeExecutor is an in-memory layer store recording every Apply.
type fakeExecutor struct {
	store     map[string]bool
	applied   []appliedStep
	finalized []FinalizeSpec
	failOn    string
	failCode  engine.ExitCode
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{store: make(map[string]bool)}
}

func (f *fakeExecutor) Name() string           { return "fake" }
func (f *fakeExecutor) Ref(layer Layer) string { return "fake/" + layer.ID }

func (f *fakeExecutor) Materialize(_ context.Context, base Layer) error {
	f.store[f.Ref(base)] = true
	return nil
}

func (f *fakeExecutor) Has(_ context.Context, layer Layer) (bool, error) {
	return f.store[f.Ref(layer)], nil
}

func (f *fakeExecutor) Apply(_ context.Context, _, layer Layer, step recipe.Step, env map[string]string) error {
	if step.Name == f.failOn {
		return &ProvisioningError{StepIndex: -1, StepName: step.Name, ExitCode: f.failCode}
	}
	copied := make(map[string]string, len(env))
	for k, v := range env {
		copied[k] = v
	}
	f.applied = append(f.applied, appliedStep{Name: step.Name, Env: copied})
	f.store[f.Ref(layer)] = true
	return nil
}

func (f *fakeExecutor) Finalize(_ context.Context, _ Layer, spec FinalizeSpec) (string, error) {
	f.finalized = append(f.finalized, spec)
	return spec.Tag, nil
}

func (f *fakeExecutor) List(_ context.Context) ([]string, error) {
	var refs []string
	for ref := range f.store {
		refs = append(refs, ref)
	}
	return refs, nil
}

func (f *fakeExecutor) Remove(_ context.Context, ref string) error {
	delete(f.store, ref)
	return nil
}

func testBase(t *testing.T) resolver.BaseImage {
	t.Helper()
	d := digest.FromString("python:3.9-slim")
	return resolver.BaseImage{
		Reference: "docker.io/library/python:3.9-slim@" + d.String(),
		Runtime:   "python",
		Version:   "3.9-slim",
		Digest:    d,
	}
}

func threeStepRecipe() *recipe.Recipe {
	return &recipe.Recipe{
		Name: "moseq-lab",
		Env: []recipe.EnvDecl{
			{Key: "DEBIAN_FRONTEND", Value: "noninteractive", Scope: recipe.ScopeBuild},
			{Key: "HOST", Value: "db.local", Scope: recipe.ScopeRun},
			{Key: "LAB_ROOT", Value: "/srv/lab", Scope: recipe.ScopeBoth},
		},
		Accounts: []recipe.Account{{Name: "svc", Shell: "/bin/bash"}},
		Steps: []recipe.Step{
			{Name: "system-packages", Commands: []string{"apt-get update", "apt-get install -y curl"}},
			{Name: "python-deps", Commands: []string{"pip install numpy"}},
			{Name: "workspace", Commands: []string{"mkdir -p /srv/lab/inbox /srv/lab/outbox"}},
		},
		Entrypoint: &recipe.Entrypoint{Command: []string{"sleep", "infinity"}, User: "svc"},
	}
}

func TestBuilderDeterministicLayerIDs(t *testing.T) {
	rec := threeStepRecipe()
	base := testBase(t)

	first, err := NewBuilder(newFakeExecutor()).Build(context.Background(), rec, base)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	second, err := NewBuilder(newFakeExecutor()).Build(context.Background(), rec, base)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if len(first.Layers) != len(second.Layers) {
		t.Fatalf("layer counts differ: %d vs %d", len(first.Layers), len(second.Layers))
	}
	for i := range first.Layers {
		if first.Layers[i].ID != second.Layers[i].ID {
			t.Errorf("Layers[%d] ID differs: %s vs %s", i, first.Layers[i].ID, second.Layers[i].ID)
		}
	}
}

func TestBuilderFullCacheHitOnRebuild(t *testing.T) {
	rec := threeStepRecipe()
	base := testBase(t)
	exec := newFakeExecutor()

	if _, err := NewBuilder(exec).Build(context.Background(), rec, base); err != nil {
		t.Fatalf("first Build() error = %v", err)
	}
	appliedOnce := len(exec.applied)

	res, err := NewBuilder(exec).Build(context.Background(), rec, base)
	if err != nil {
		t.Fatalf("second Build() error = %v", err)
	}

	if res.Stats.Misses != 0 {
		t.Errorf("rebuild misses = %d, want 0", res.Stats.Misses)
	}
	if res.Stats.Hits != len(res.Plan.Steps) {
		t.Errorf("rebuild hits = %d, want %d", res.Stats.Hits, len(res.Plan.Steps))
	}
	if len(exec.applied) != appliedOnce {
		t.Errorf("rebuild re-applied steps: %d applies, want %d", len(exec.applied), appliedOnce)
	}
}

func TestBuilderChangedStepInvalidatesSuffixOnly(t *testing.T) {
	rec := threeStepRecipe()
	base := testBase(t)
	exec := newFakeExecutor()

	if _, err := NewBuilder(exec).Build(context.Background(), rec, base); err != nil {
		t.Fatalf("first Build() error = %v", err)
	}

	changed := threeStepRecipe()
	changed.Steps[1].Commands = []string{"pip install numpy scipy"}

	res, err := NewBuilder(exec).Build(context.Background(), changed, base)
	if err != nil {
		t.Fatalf("second Build() error = %v", err)
	}

	// account-svc and system-packages precede the change, python-deps and
	// workspace follow it.
	if res.Stats.Hits != 2 {
		t.Errorf("hits = %d, want 2", res.Stats.Hits)
	}
	if res.Stats.Misses != 2 {
		t.Errorf("misses = %d, want 2", res.Stats.Misses)
	}

	var reapplied []string
	for _, a := range exec.applied[4:] {
		reapplied = append(reapplied, a.Name)
	}
	want := []string{"python-deps", "workspace"}
	if len(reapplied) != len(want) {
		t.Fatalf("reapplied = %v, want %v", reapplied, want)
	}
	for i := range want {
		if reapplied[i] != want[i] {
			t.Errorf("reapplied[%d] = %q, want %q", i, reapplied[i], want[i])
		}
	}
}

func TestBuilderFailFast(t *testing.T) {
	rec := threeStepRecipe()
	base := testBase(t)
	exec := newFakeExecutor()
	exec.failOn = "python-deps"
	exec.failCode = 3

	_, err := NewBuilder(exec).Build(context.Background(), rec, base)
	if err == nil {
		t.Fatal("Build() expected error")
	}
	if !errors.Is(err, ErrProvisioning) {
		t.Fatalf("error = %v, want ErrProvisioning", err)
	}

	var pe *ProvisioningError
	if !errors.As(err, &pe) {
		t.Fatalf("error %v is not a ProvisioningError", err)
	}
	// python-deps is plan step 2 (after account-svc and system-packages).
	if pe.StepIndex != 2 {
		t.Errorf("StepIndex = %d, want 2", pe.StepIndex)
	}
	if pe.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", pe.ExitCode)
	}

	for _, a := range exec.applied {
		if a.Name == "workspace" {
			t.Error("step after the failure was applied")
		}
	}
	if len(exec.finalized) != 0 {
		t.Error("failed build was finalized")
	}
}

func TestBuilderForceRebuild(t *testing.T) {
	rec := threeStepRecipe()
	base := testBase(t)
	exec := newFakeExecutor()

	if _, err := NewBuilder(exec).Build(context.Background(), rec, base); err != nil {
		t.Fatalf("first Build() error = %v", err)
	}

	res, err := NewBuilder(exec, WithForceRebuild()).Build(context.Background(), rec, base)
	if err != nil {
		t.Fatalf("forced Build() error = %v", err)
	}
	if res.Stats.Hits != 0 {
		t.Errorf("forced rebuild hits = %d, want 0", res.Stats.Hits)
	}
	if res.Stats.Misses != len(res.Plan.Steps) {
		t.Errorf("forced rebuild misses = %d, want %d", res.Stats.Misses, len(res.Plan.Steps))
	}
}

func TestBuilderEnvScopes(t *testing.T) {
	rec := threeStepRecipe()
	base := testBase(t)
	exec := newFakeExecutor()

	res, err := NewBuilder(exec).Build(context.Background(), rec, base)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if len(exec.applied) == 0 {
		t.Fatal("no steps applied")
	}
	stepEnv := exec.applied[len(exec.applied)-1].Env
	if stepEnv["DEBIAN_FRONTEND"] != "noninteractive" {
		t.Errorf("build-scope binding missing from step env: %v", stepEnv)
	}
	if stepEnv["LAB_ROOT"] != "/srv/lab" {
		t.Errorf("both-scope binding missing from step env: %v", stepEnv)
	}
	if _, ok := stepEnv["HOST"]; ok {
		t.Error("run-scope binding leaked into step env")
	}

	if res.RuntimeEnv["HOST"] != "db.local" {
		t.Errorf("run-scope binding missing from runtime env: %v", res.RuntimeEnv)
	}
	if res.RuntimeEnv["LAB_ROOT"] != "/srv/lab" {
		t.Errorf("both-scope binding missing from runtime env: %v", res.RuntimeEnv)
	}
	if _, ok := res.RuntimeEnv["DEBIAN_FRONTEND"]; ok {
		t.Error("build-scope binding leaked into runtime env")
	}
}

func TestBuilderEnvFilesLoadedBeforeInlineDecls(t *testing.T) {
	dir := t.TempDir()
	content := "DJ_HOST=db.internal\nLAB_ROOT=/from/file\n"
	if err := os.WriteFile(filepath.Join(dir, "lab.env"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	rec := threeStepRecipe()
	rec.EnvFiles = []string{"lab.env", "missing.env?"}

	res, err := NewBuilder(newFakeExecutor(), WithBuildContextDir(dir)).
		Build(context.Background(), rec, testBase(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if res.RuntimeEnv["DJ_HOST"] != "db.internal" {
		t.Errorf("env-file binding missing from runtime env: %v", res.RuntimeEnv)
	}
	if res.RuntimeEnv["LAB_ROOT"] != "/srv/lab" {
		t.Errorf("inline declaration should override env file, got %q", res.RuntimeEnv["LAB_ROOT"])
	}

	rec2 := threeStepRecipe()
	rec2.EnvFiles = []string{"missing.env"}
	if _, err := NewBuilder(newFakeExecutor(), WithBuildContextDir(dir)).
		Build(context.Background(), rec2, testBase(t)); err == nil {
		t.Error("expected error for missing non-optional env file")
	}
}

func TestBuilderStepDeclaredBindingsVisibleDownstream(t *testing.T) {
	rec := &recipe.Recipe{
		Name: "step-env",
		Steps: []recipe.Step{
			{
				Name:     "toolchain",
				Commands: []string{"install-cuda.sh"},
				Env:      []recipe.EnvDecl{{Key: "LD_LIBRARY_PATH", Value: "/usr/local/cuda/lib64", Scope: recipe.ScopeBoth}},
			},
			{Name: "verify", Commands: []string{"ldconfig -p"}},
		},
	}
	exec := newFakeExecutor()

	res, err := NewBuilder(exec).Build(context.Background(), rec, testBase(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// Visible to the declaring step itself.
	if exec.applied[0].Env["LD_LIBRARY_PATH"] == "" {
		t.Error("declared binding not visible to the declaring step")
	}
	// And to the later one.
	if exec.applied[1].Env["LD_LIBRARY_PATH"] == "" {
		t.Error("declared binding not visible to a later step")
	}
	// And frozen into the runtime snapshot.
	if res.RuntimeEnv["LD_LIBRARY_PATH"] != "/usr/local/cuda/lib64" {
		t.Errorf("runtime env = %v, missing declared binding", res.RuntimeEnv)
	}
}

func TestBuilderFinalizeAndLock(t *testing.T) {
	rec := threeStepRecipe()
	base := testBase(t)
	exec := newFakeExecutor()

	res, err := NewBuilder(exec).Build(context.Background(), rec, base)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if res.ImageRef != "strata/moseq-lab:latest" {
		t.Errorf("ImageRef = %q, want strata/moseq-lab:latest", res.ImageRef)
	}
	if len(exec.finalized) != 1 {
		t.Fatalf("finalized %d times, want 1", len(exec.finalized))
	}
	spec := exec.finalized[0]
	if spec.User != "svc" {
		t.Errorf("finalize user = %q, want svc", spec.User)
	}
	if len(spec.Entrypoint) != 2 || spec.Entrypoint[0] != "sleep" {
		t.Errorf("finalize entrypoint = %v, want [sleep infinity]", spec.Entrypoint)
	}

	lock := res.Lock
	if lock.Recipe != "moseq-lab" {
		t.Errorf("lock recipe = %q, want moseq-lab", lock.Recipe)
	}
	if lock.Base.Digest != base.Digest.String() {
		t.Errorf("lock base digest = %q, want %q", lock.Base.Digest, base.Digest)
	}
	if len(lock.Layers) != len(res.Plan.Steps) {
		t.Errorf("lock layers = %d, want %d", len(lock.Layers), len(res.Plan.Steps))
	}
	if lock.Layers[0].Name != "account-svc" || !lock.Layers[0].Synthesized {
		t.Errorf("lock.Layers[0] = %+v, want synthesized account-svc", lock.Layers[0])
	}
	if len(res.Layers) != len(lock.Layers)+1 {
		t.Errorf("result layers = %d, want lock layers + base", len(res.Layers))
	}
}
