// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"strata/internal/build"
	"strata/pkg/recipe"

	"github.com/spf13/cobra"
)

// planCmd sequences the build plan and prints it without executing anything.
var planCmd = &cobra.Command{
	Use:   "plan [recipe]",
	Short: "Show the sequenced layer plan without building",
	Long: `Sequence the build plan for a recipe and print it.

The plan shows every step a build would run in order, including the
steps synthesized from account and escalation declarations. When the
base image is digest-pinned the projected layer identity of every
step is shown, and the layer store is probed so each step carries its
cache disposition: which layers a build would reuse and which it
would run.

Nothing is pulled, built or written.

Examples:
  strata plan                       Plan ./recipe.cue
  strata plan ./env/recipe.cue      Plan a specific recipe`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	stdout := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	rec, err := loadRecipe(resolveRecipePath(args))
	if err != nil {
		return err
	}

	plan, err := build.NewPlan(rec)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, TitleStyle.Render("Build Plan"))
	fmt.Fprintf(stdout, "%s %s\n", SubtitleStyle.Render("Recipe:"), RefStyle.Render(rec.Name))
	fmt.Fprintf(stdout, "%s %s\n\n", SubtitleStyle.Render("Base:"), RefStyle.Render(rec.Base.Reference()))

	// Layer identities can only be projected from a pinned digest; an
	// unpinned base gets whatever digest the first build resolves.
	if !rec.Base.Pinned() {
		for i, st := range plan.Steps {
			fmt.Fprintf(stdout, "  %2d %s%s\n", i, RefStyle.Render(st.Name), synthesizedLabel(st))
		}
		fmt.Fprintln(stdout)
		fmt.Fprintf(stdout, "%s base image is not digest-pinned; pin it to project layer identities\n",
			WarningStyle.Render("!"))
		printPlanEntrypoint(cmd, rec, plan)
		return nil
	}

	contextDir := filepath.Dir(rec.FilePath)
	base := build.NewBaseLayer(rec.Base.Digest)
	fmt.Fprintf(stdout, "  %s %s %s\n", SubtitleStyle.Render("base"), base.ShortID(), SubtitleStyle.Render("(pinned)"))

	// Cache disposition needs a layer store. When the configured executor
	// cannot be constructed (no engine installed, say), the plan is still
	// printed, just without hit/build markers.
	exec, execErr := probeExecutor(cfg, baseFromSpec(rec.Base), contextDir)
	if execErr != nil {
		logger.Debug("layer store unavailable, skipping cache probe", "err", execErr)
	}

	hits, runs := 0, 0
	missed := false
	parent := base
	for i, st := range plan.Steps {
		hash, err := build.StepHash(st.Step, contextDir)
		if err != nil {
			return fmt.Errorf("failed to hash step %q: %w", st.Name, err)
		}
		parent = build.ChildLayer(parent, st.Name, hash)

		disposition := ""
		if exec != nil {
			// Everything after the first miss rebuilds regardless of
			// what the store holds: its parent identity has changed.
			cached := false
			if !missed {
				cached, _ = exec.Has(cmd.Context(), parent)
			}
			if cached {
				disposition = " " + SubtitleStyle.Render("hit")
				hits++
			} else {
				disposition = " " + SuccessStyle.Render("build")
				missed = true
				runs++
			}
		}
		fmt.Fprintf(stdout, "  %2d %s %s%s%s\n", i, parent.ShortID(), RefStyle.Render(st.Name), synthesizedLabel(st), disposition)
	}

	fmt.Fprintln(stdout)
	if exec != nil {
		fmt.Fprintf(stdout, "%s %d step(s) cached, %d would run\n", SubtitleStyle.Render("Cache:"), hits, runs)
	}
	printPlanEntrypoint(cmd, rec, plan)
	return nil
}

func synthesizedLabel(st build.PlannedStep) string {
	if st.Synthesized {
		return SubtitleStyle.Render(" (synthesized)")
	}
	return ""
}

func printPlanEntrypoint(cmd *cobra.Command, rec *recipe.Recipe, plan *build.Plan) {
	stdout := cmd.OutOrStdout()
	if ep := rec.Entrypoint; ep != nil {
		fmt.Fprintf(stdout, "%s %v as %s\n",
			SubtitleStyle.Render("Entrypoint:"), ep.Command, RefStyle.Render(plan.EntrypointUser))
	} else {
		fmt.Fprintf(stdout, "%s %s\n", SubtitleStyle.Render("Entrypoint:"), SubtitleStyle.Render("(none)"))
	}
}
