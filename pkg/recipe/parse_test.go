// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"strings"
	"testing"
)

const validRecipe = `
name: "moseq-lab"
description: "scientific pipeline devcontainer"
base: {
	runtime: "python"
	version: "3.9-slim"
	digest:  "sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
}
env: [
	{key: "DJ_HOST", value: "db.local"},
	{key: "PIP_NO_CACHE_DIR", value: "1", scope: "build"},
]
accounts: [
	{name: "svc", shell: "/bin/bash", groups: ["docker"]},
]
escalations: [
	{account: "svc"},
]
steps: [
	{name: "os-packages", commands: ["apt-get update", "apt-get install -y curl"]},
	{name: "docker-engine", commands: ["install-docker.sh"], provides_groups: ["docker"]},
	{
		name: "pipeline"
		commands: ["pip install ."]
		workdir: "/tmp/src"
		user:    "svc"
		copy: {source: ".", target: "/tmp/src", discard: true}
	},
]
entrypoint: {
	command: ["dockerd"]
	user: "root"
}
`

func TestParseBytesValidRecipe(t *testing.T) {
	r, err := ParseBytes([]byte(validRecipe), "recipe.cue")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Name != "moseq-lab" {
		t.Errorf("Name = %q, want moseq-lab", r.Name)
	}
	if !r.Base.Pinned() {
		t.Error("expected base to be digest-pinned")
	}
	if len(r.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(r.Steps))
	}
	for i, s := range r.Steps {
		if s.Ordinal != i {
			t.Errorf("steps[%d].Ordinal = %d, want %d", i, s.Ordinal, i)
		}
	}
	if r.Steps[2].Copy == nil || !r.Steps[2].Copy.Discard {
		t.Error("expected pipeline step to carry a discarding copy")
	}
	if r.FilePath != "recipe.cue" {
		t.Errorf("FilePath = %q, want recipe.cue", r.FilePath)
	}
}

func TestParseBytesSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			"missing base",
			`name: "x", steps: [{name: "a", commands: ["true"]}]`,
		},
		{
			"bad digest format",
			`name: "x", base: {runtime: "debian", version: "12", digest: "not-a-digest"}`,
		},
		{
			"uppercase recipe name",
			`name: "X", base: {runtime: "debian", version: "12"}`,
		},
		{
			"empty command group",
			`name: "x", base: {runtime: "debian", version: "12"}, steps: [{name: "a", commands: []}]`,
		},
		{
			"invalid env scope",
			`name: "x", base: {runtime: "debian", version: "12"}, env: [{key: "A", value: "1", scope: "never"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseBytes([]byte(tt.src), "recipe.cue"); err == nil {
				t.Error("expected schema validation error, got nil")
			}
		})
	}
}

func TestParseBytesReportsFilename(t *testing.T) {
	_, err := ParseBytes([]byte(`name: 42`), "broken.cue")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "broken.cue") {
		t.Errorf("error should name the file: %v", err)
	}
}

func TestBaseSpecReference(t *testing.T) {
	tests := []struct {
		name string
		spec BaseSpec
		want string
	}{
		{
			"runtime and version",
			BaseSpec{Runtime: "python", Version: "3.9-slim"},
			"python:3.9-slim",
		},
		{
			"digest pinned",
			BaseSpec{Runtime: "python", Version: "3.9-slim", Digest: "sha256:abc"},
			"python:3.9-slim@sha256:abc",
		},
		{
			"runtime only",
			BaseSpec{Runtime: "debian"},
			"debian",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.spec.Reference(); got != tt.want {
				t.Errorf("Reference() = %q, want %q", got, tt.want)
			}
		})
	}
}
