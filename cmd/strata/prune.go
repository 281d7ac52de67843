// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"strata/internal/build"

	"github.com/spf13/cobra"
)

var (
	pruneDryRun bool

	// pruneCmd removes cached layers the last build no longer references.
	// Nothing in the build path ever evicts; this is the only way layers
	// are reclaimed.
	pruneCmd = &cobra.Command{
		Use:   "prune [recipe]",
		Short: "Remove cached layers the last build no longer references",
		Long: `Remove cached layers that are not part of the last build.

The layer chain recorded in ` + build.LockFileName + ` is the keep set;
every other layer in the store is removed. Builds never evict on
their own, so reclaiming space is always an explicit decision.

Examples:
  strata prune                      Prune against ./recipe.cue's lock file
  strata prune --dry-run            Show what would be removed`,
		Args: cobra.MaximumNArgs(1),
		RunE: runPrune,
	}
)

func init() {
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "show what would be removed without removing it")
}

func runPrune(cmd *cobra.Command, args []string) error {
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

	lock, err := readLock(lockPathFor(rec), string(cfg.UI.ColorScheme))
	if err != nil {
		return err
	}
	keep := lock.KeepLayers()

	exec, err := newExecutorForConfig(cfg, baseFromLock(lock), ".")
	if err != nil {
		return err
	}

	if pruneDryRun {
		return printPruneCandidates(cmd, exec, keep)
	}

	removed, err := build.NewCache(exec, logger.With("component", "build")).Prune(cmd.Context(), keep)
	if err != nil {
		return err
	}

	if len(removed) == 0 {
		fmt.Fprintf(stdout, "%s nothing to prune, %d layer(s) kept\n",
			SuccessStyle.Render("✓"), len(keep))
		return nil
	}
	for _, ref := range removed {
		fmt.Fprintf(stdout, "%s removed %s\n", SuccessStyle.Render("✓"), RefStyle.Render(ref))
	}
	fmt.Fprintf(stdout, "\n%d layer(s) removed, %d kept\n", len(removed), len(keep))
	return nil
}

// printPruneCandidates lists the refs Prune would remove.
func printPruneCandidates(cmd *cobra.Command, exec build.Executor, keep []build.Layer) error {
	refs, err := exec.List(cmd.Context())
	if err != nil {
		return err
	}

	keepSet := make(map[string]struct{}, len(keep))
	for _, layer := range keep {
		keepSet[exec.Ref(layer)] = struct{}{}
	}

	stdout := cmd.OutOrStdout()
	candidates := 0
	for _, ref := range refs {
		if _, ok := keepSet[ref]; ok {
			continue
		}
		fmt.Fprintf(stdout, "%s would remove %s\n", WarningStyle.Render("-"), RefStyle.Render(ref))
		candidates++
	}
	if candidates == 0 {
		fmt.Fprintf(stdout, "%s nothing to prune\n", SuccessStyle.Render("✓"))
	}
	return nil
}
