// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"strata/internal/build"
	"strata/pkg/recipe"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

// explainCmd renders a human-readable description of a recipe and, when a
// lock file exists beside it, of its last build.
var explainCmd = &cobra.Command{
	Use:   "explain [recipe]",
	Short: "Describe a recipe and its last build",
	Long: `Describe a recipe in human-readable form.

The description covers the base image, environment bindings, accounts,
escalation rules, provisioning steps and the entrypoint. When a
` + build.LockFileName + ` exists beside the recipe, the last build is
described too: the pinned base digest, every layer in chain order with
its identity and cache outcome, and the finished image reference.

Examples:
  strata explain                    Describe ./recipe.cue
  strata explain ./env/recipe.cue   Describe another recipe`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExplain,
}

func runExplain(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	rec, err := loadRecipe(resolveRecipePath(args))
	if err != nil {
		return err
	}

	md := recipeMarkdown(rec)

	lock, err := build.ReadLockFile(lockPathFor(rec))
	switch {
	case err == nil:
		md += "\n" + lockMarkdown(lock)
	case errors.Is(err, os.ErrNotExist):
		md += "\n_Not built yet. Run `strata build` to produce a lock file._\n"
	default:
		md += fmt.Sprintf("\n_The lock file beside this recipe could not be read (%v)._\n", err)
	}

	rendered, err := glamour.Render(md, string(cfg.UI.ColorScheme))
	if err != nil {
		// Fall back to the raw markdown rather than failing the command
		// over a styling problem.
		rendered = md
	}
	fmt.Fprint(cmd.OutOrStdout(), rendered)
	return nil
}

// recipeMarkdown renders a recipe as a markdown document.
func recipeMarkdown(rec *recipe.Recipe) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", rec.Name)
	if rec.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", rec.Description)
	}

	fmt.Fprintf(&sb, "**Base:** `%s`", rec.Base.Reference())
	if !rec.Base.Pinned() {
		sb.WriteString(" (not digest-pinned; the first build resolves and records one)")
	}
	sb.WriteString("\n\n")

	if len(rec.EnvFiles) > 0 || len(rec.Env) > 0 {
		sb.WriteString("## Environment\n\n")
		for _, f := range rec.EnvFiles {
			fmt.Fprintf(&sb, "- env file `%s`\n", f)
		}
		for _, e := range rec.Env {
			fmt.Fprintf(&sb, "- `%s` (%s scope)\n", e.Key, e.Scope.OrDefault())
		}
		sb.WriteString("\n")
	}

	if len(rec.Accounts) > 0 || len(rec.Escalations) > 0 {
		sb.WriteString("## Identities\n\n")
		for _, a := range rec.Accounts {
			fmt.Fprintf(&sb, "- account `%s`", a.Name)
			if len(a.Groups) > 0 {
				fmt.Fprintf(&sb, ", groups %s", strings.Join(a.Groups, ", "))
			}
			sb.WriteString("\n")
		}
		for _, esc := range rec.Escalations {
			fmt.Fprintf(&sb, "- escalation for `%s`: `%s`\n", esc.Account, esc.RuleOrDefault())
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Steps\n\n")
	for i, st := range rec.Steps {
		fmt.Fprintf(&sb, "%d. **%s**: %d command(s)", i+1, st.Name, len(st.Commands))
		if st.User != "" {
			fmt.Fprintf(&sb, ", as `%s`", st.User)
		}
		if st.Copy != nil {
			fmt.Fprintf(&sb, ", copies `%s` to `%s`", st.Copy.Source, st.Copy.Target)
			if st.Copy.Discard {
				sb.WriteString(" (discarded after)")
			}
		}
		if len(st.ProvidesGroups) > 0 {
			fmt.Fprintf(&sb, ", provides group(s) %s", strings.Join(st.ProvidesGroups, ", "))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	if ep := rec.Entrypoint; ep != nil {
		fmt.Fprintf(&sb, "**Entrypoint:** `%s`", strings.Join(ep.Command, " "))
		if ep.User != "" {
			fmt.Fprintf(&sb, " as `%s`", ep.User)
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("**Entrypoint:** none\n")
	}
	return sb.String()
}

// lockMarkdown renders a lock file as a markdown document.
func lockMarkdown(lock *build.LockFile) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Build of %s\n\n", lock.Recipe)
	fmt.Fprintf(&sb, "Generated %s\n\n", lock.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "**Base:** `%s`\n\n", lock.Base.Reference)
	fmt.Fprintf(&sb, "**Image:** `%s`\n\n", lock.Image)

	sb.WriteString("## Layers\n\n")
	sb.WriteString("| # | Step | Layer | Origin | Cache |\n")
	sb.WriteString("|---|------|-------|--------|-------|\n")
	for i, layer := range lock.Layers {
		origin := "recipe"
		if layer.Synthesized {
			origin = "synthesized"
		}
		outcome := "built"
		if layer.CacheHit {
			outcome = "hit"
		}
		id := layer.ID
		if len(id) > 12 {
			id = id[:12]
		}
		fmt.Fprintf(&sb, "| %d | %s | `%s` | %s | %s |\n", i, layer.Name, id, origin, outcome)
	}

	sb.WriteString("\nEach layer's identity is derived from its parent's identity and the\n")
	sb.WriteString("step's content hash, so a changed step invalidates exactly its own\n")
	sb.WriteString("layer and everything after it.\n")
	return sb.String()
}
