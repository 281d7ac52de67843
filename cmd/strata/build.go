// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"strata/internal/build"
	"strata/internal/issue"

	"github.com/spf13/cobra"
)

var (
	buildForce bool

	// buildCmd provisions every layer and finalizes the environment image.
	buildCmd = &cobra.Command{
		Use:   "build [recipe]",
		Short: "Provision all layers and finalize the environment image",
		Long: `Build the environment described by a recipe.

Steps are applied in declaration order, each one producing a
content-addressed layer on top of the previous one. Layers whose
identity is unchanged since the last build are reused instead of
re-run; the first failing command aborts the build and commits
nothing for the failing step.

A successful build writes ` + build.LockFileName + ` next to the recipe,
recording the pinned base, the full layer chain and the finished
image reference.

Examples:
  strata build                      Build ./recipe.cue
  strata build ./env/recipe.cue     Build a specific recipe
  strata build --force              Re-apply every step, ignoring cached layers`,
		Args: cobra.MaximumNArgs(1),
		RunE: runBuildCmd,
	}
)

func init() {
	buildCmd.Flags().BoolVarP(&buildForce, "force", "f", false, "re-apply every step, ignoring cached layers")
}

func runBuildCmd(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	result, _, err := runBuild(cmd.Context(), cfg, resolveRecipePath(args), buildForce)
	if err != nil {
		return buildFailure(cmd, string(cfg.UI.ColorScheme), err)
	}

	printBuildSummary(cmd, result)
	return nil
}

// buildFailure maps build errors onto knowledge-base issues and, for step
// failures, forwards the step's exit code as the CLI exit code.
func buildFailure(cmd *cobra.Command, scheme string, err error) error {
	var pe *build.ProvisioningError
	if errors.As(err, &pe) {
		renderIssue(issue.ProvisioningFailedId, scheme)
		fmt.Fprintf(cmd.ErrOrStderr(), "%s step %s (#%d) failed with exit code %s\n",
			ErrorStyle.Render("✗"), RefStyle.Render(pe.StepName), pe.StepIndex, pe.ExitCode)
		cmd.SilenceErrors = true
		return &ExitError{Code: pe.ExitCode, Err: err}
	}
	return err
}

func printBuildSummary(cmd *cobra.Command, result *build.BuildResult) {
	stdout := cmd.OutOrStdout()

	fmt.Fprintln(stdout, TitleStyle.Render("Build complete"))
	fmt.Fprintf(stdout, "%s base %s\n", SubtitleStyle.Render("•"), RefStyle.Render(result.Base.Reference))
	for i, layer := range result.Layers[1:] {
		step := result.Plan.Steps[i]
		marker := SuccessStyle.Render("✓")
		note := "built"
		if result.Lock.Layers[i].CacheHit {
			marker = SubtitleStyle.Render("=")
			note = "cached"
		}
		fmt.Fprintf(stdout, "%s %s %s %s\n", marker, layer.ShortID(), RefStyle.Render(step.Name), SubtitleStyle.Render(note))
	}
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "%s %s (%d cached, %d built)\n",
		SuccessStyle.Render("Image:"), result.ImageRef, result.Stats.Hits, result.Stats.Misses)
}
