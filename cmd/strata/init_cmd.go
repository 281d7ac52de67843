// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	initForce    bool
	initTemplate string

	// initCmd creates a new recipe file
	initCmd = &cobra.Command{
		Use:   "init [filename]",
		Short: "Create a new recipe.cue in the current directory",
		Long: `Create a new recipe.cue in the current directory with example steps.

This command generates a starter recipe with a pinned-base placeholder
and sample steps to help you get started quickly.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runInit,
	}
)

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite existing recipe")
	initCmd.Flags().StringVarP(&initTemplate, "template", "t", "default", "template to use (default, minimal, full)")
}

func runInit(cmd *cobra.Command, args []string) error {
	filename := DefaultRecipeFile
	if len(args) > 0 {
		filename = args[0]
	}

	// Check if file exists
	if _, err := os.Stat(filename); err == nil && !initForce {
		return fmt.Errorf("file '%s' already exists. Use --force to overwrite", filename)
	}

	content := generateRecipe(initTemplate)

	if err := os.WriteFile(filename, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	absPath, _ := filepath.Abs(filename)
	fmt.Printf("%s Created %s\n", SuccessStyle.Render("✓"), absPath)
	fmt.Println()
	fmt.Println(SubtitleStyle.Render("Next steps:"))
	fmt.Println("  1. Edit the recipe to match your environment")
	fmt.Println("  2. Run 'strata validate' to check it")
	fmt.Println("  3. Run 'strata up' to build and start it")

	return nil
}

func generateRecipe(template string) string {
	switch template {
	case "minimal":
		return `name: "sandbox"

base: {
	runtime: "alpine"
	version: "3.20"
}

steps: [{
	name: "hello"
	commands: ["echo 'hello from strata' > /hello.txt"]
}]

entrypoint: {
	command: ["cat", "/hello.txt"]
}
`

	case "full":
		return `name: "workbench"
description: "Development environment with a service account and layered tooling"

base: {
	runtime: "debian"
	version: "bookworm-slim"
	// Pin the digest for fully reproducible builds:
	// digest: "sha256:..."
}

env: [
	{key: "DEBIAN_FRONTEND", value: "noninteractive", scope: "build"},
	{key: "WORKBENCH_HOME", value: "/workspace", scope: "both"},
]

accounts: [{
	name:  "dev"
	shell: "/bin/bash"
}]

escalations: [{
	account: "dev"
}]

steps: [{
	name: "system-packages"
	commands: [
		"apt-get update",
		"apt-get install -y --no-install-recommends ca-certificates curl git sudo",
		"rm -rf /var/lib/apt/lists/*",
	]
}, {
	name: "workspace"
	commands: [
		"mkdir -p /workspace",
		"chown dev:dev /workspace",
	]
}, {
	name: "tooling"
	user: "dev"
	workdir: "/workspace"
	commands: ["git config --global init.defaultBranch main"]
	env: [{key: "GIT_CONFIG_COUNT", value: "0", scope: "build"}]
}]

entrypoint: {
	command: ["sleep", "infinity"]
	user:    "dev"
	workdir: "/workspace"
}
`

	default:
		return `name: "sandbox"
description: "Starter environment"

base: {
	runtime: "alpine"
	version: "3.20"
	// Pin the digest for fully reproducible builds:
	// digest: "sha256:..."
}

env: [
	{key: "GREETING", value: "hello from strata", scope: "both"},
]

steps: [{
	name: "provision"
	commands: [
		"mkdir -p /srv/app",
		"printf '%s\\n' \"$GREETING\" > /srv/app/greeting.txt",
	]
}]

entrypoint: {
	command: ["cat", "/srv/app/greeting.txt"]
	workdir: "/srv/app"
}
`
	}
}
