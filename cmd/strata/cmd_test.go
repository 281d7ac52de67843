// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"strata/internal/build"
	"strata/internal/engine"
	"strata/internal/launch"
	"strata/pkg/recipe"

	"github.com/spf13/cobra"
)

func TestGenerateRecipeTemplatesParse(t *testing.T) {
	for _, template := range []string{"default", "minimal", "full"} {
		t.Run(template, func(t *testing.T) {
			content := generateRecipe(template)
			rec, err := recipe.ParseBytes([]byte(content), "recipe.cue")
			if err != nil {
				t.Fatalf("template %q does not parse: %v", template, err)
			}
			if _, err := build.NewPlan(rec); err != nil {
				t.Errorf("template %q does not plan: %v", template, err)
			}
		})
	}
}

func TestParseEnvVars(t *testing.T) {
	env, err := parseEnvVars([]string{"HOST=db.local", "EMPTY=", "PAIR=a=b"})
	if err != nil {
		t.Fatalf("parseEnvVars() error = %v", err)
	}
	if env["HOST"] != "db.local" {
		t.Errorf("HOST = %q, want db.local", env["HOST"])
	}
	if env["EMPTY"] != "" {
		t.Errorf("EMPTY = %q, want empty", env["EMPTY"])
	}
	if env["PAIR"] != "a=b" {
		t.Errorf("PAIR = %q, want a=b", env["PAIR"])
	}

	if _, err := parseEnvVars([]string{"NOVALUE"}); err == nil {
		t.Error("expected error for pair without =")
	}
	if _, err := parseEnvVars([]string{"=value"}); err == nil {
		t.Error("expected error for empty key")
	}
	if env, err := parseEnvVars(nil); err != nil || env != nil {
		t.Errorf("parseEnvVars(nil) = (%v, %v), want (nil, nil)", env, err)
	}
}

func TestResolveRecipePath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultRecipeFile), []byte("name: \"x\""), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := resolveRecipePath(nil); got != DefaultRecipeFile {
		t.Errorf("resolveRecipePath(nil) = %q, want %q", got, DefaultRecipeFile)
	}
	if got := resolveRecipePath([]string{dir}); got != filepath.Join(dir, DefaultRecipeFile) {
		t.Errorf("resolveRecipePath(dir) = %q, want the recipe inside it", got)
	}
	explicit := filepath.Join(dir, "other.cue")
	if got := resolveRecipePath([]string{explicit}); got != explicit {
		t.Errorf("resolveRecipePath(file) = %q, want %q", got, explicit)
	}
}

func TestLaunchPrivileged(t *testing.T) {
	defer func(prev bool) { upPrivileged = prev }(upPrivileged)

	upPrivileged = false
	plain := &recipe.Recipe{Name: "x"}
	if launchPrivileged(plain) {
		t.Error("recipe without entrypoint should launch unprivileged")
	}

	daemon := &recipe.Recipe{Name: "x", Entrypoint: &recipe.Entrypoint{
		Command:    []string{"dockerd"},
		Privileged: true,
	}}
	if !launchPrivileged(daemon) {
		t.Error("privileged entrypoint declaration not honored")
	}

	upPrivileged = true
	if !launchPrivileged(plain) {
		t.Error("--privileged flag not honored")
	}
}

func TestExitFromResult(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetErr(&strings.Builder{})

	if err := exitFromResult(cmd, &launch.Result{State: launch.StateExited, ExitCode: 0}); err != nil {
		t.Errorf("clean exit should return nil, got %v", err)
	}

	err := exitFromResult(cmd, &launch.Result{State: launch.StateExited, ExitCode: 4})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 4 {
		t.Errorf("exit 4 should map to ExitError{4}, got %v", err)
	}

	err = exitFromResult(cmd, &launch.Result{State: launch.StateCrashed, Signal: 9, ExitCode: engine.ExitCode(137)})
	if !errors.As(err, &exitErr) || exitErr.Code != 137 {
		t.Errorf("SIGKILL crash should map to ExitError{137}, got %v", err)
	}

	engineErr := errors.New("engine gone")
	err = exitFromResult(cmd, &launch.Result{State: launch.StateCrashed, Err: engineErr})
	if !errors.Is(err, engineErr) {
		t.Errorf("engine failure should pass through, got %v", err)
	}
}

func TestLockMarkdown(t *testing.T) {
	lock := &build.LockFile{
		Version:     1,
		GeneratedAt: time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC),
		Recipe:      "moseq-lab",
		Base:        build.LockBase{Reference: "python:3.9-slim@sha256:abc", Digest: "sha256:abc"},
		Layers: []build.LockLayer{
			{Name: "account-svc", ID: strings.Repeat("a", 64), Synthesized: true, CacheHit: true},
			{Name: "python-deps", ID: strings.Repeat("b", 64)},
		},
		Image: "strata/moseq-lab:latest",
	}

	md := lockMarkdown(lock)
	for _, want := range []string{
		"# Build of moseq-lab",
		"python:3.9-slim@sha256:abc",
		"strata/moseq-lab:latest",
		"account-svc",
		"synthesized",
		"| hit |",
		"aaaaaaaaaaaa",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("lock markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, strings.Repeat("a", 64)) {
		t.Error("layer IDs should be shortened in the rendered table")
	}
}

func TestRecipeMarkdown(t *testing.T) {
	rec := &recipe.Recipe{
		Name:        "moseq-lab",
		Description: "Motion sequencing pipeline environment.",
		Base:        recipe.BaseSpec{Runtime: "python", Version: "3.9-slim"},
		EnvFiles:    []string{"secrets.env?"},
		Env:         []recipe.EnvDecl{{Key: "ROOT_DATA_DIR", Value: "/data", Scope: recipe.ScopeBoth}},
		Accounts:    []recipe.Account{{Name: "moseq", Groups: []string{"docker"}}},
		Escalations: []recipe.EscalationRule{{Account: "moseq"}},
		Steps: []recipe.Step{
			{Name: "system-packages", Commands: []string{"apt-get update"}},
			{
				Name:     "pipeline",
				Commands: []string{"pip install -r requirements.txt"},
				Copy:     &recipe.CopySpec{Source: "context", Target: "/tmp/ctx", Discard: true},
			},
		},
		Entrypoint: &recipe.Entrypoint{Command: []string{"/bin/sh", "-c", "dockerd"}, User: "moseq"},
	}

	md := recipeMarkdown(rec)
	for _, want := range []string{
		"# moseq-lab",
		"python:3.9-slim",
		"not digest-pinned",
		"secrets.env?",
		"`ROOT_DATA_DIR` (both scope)",
		"account `moseq`, groups docker",
		"escalation for `moseq`",
		"**system-packages**",
		"(discarded after)",
		"as `moseq`",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("recipe markdown missing %q:\n%s", want, md)
		}
	}
}

func TestSplitCommandArgs(t *testing.T) {
	cmd := &cobra.Command{Use: "up", RunE: func(*cobra.Command, []string) error { return nil }}
	cmd.SetArgs([]string{"env/recipe.cue", "--", "/bin/bash", "-l"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	recipeArgs, command := splitCommandArgs(cmd, cmd.Flags().Args())
	if len(recipeArgs) != 1 || recipeArgs[0] != "env/recipe.cue" {
		t.Errorf("recipeArgs = %v, want [env/recipe.cue]", recipeArgs)
	}
	if len(command) != 2 || command[0] != "/bin/bash" {
		t.Errorf("command = %v, want [/bin/bash -l]", command)
	}
}
