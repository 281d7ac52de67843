// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"

	"strata/internal/build"
	"strata/internal/issue"
	"strata/internal/resolver"
	"strata/pkg/recipe"

	"github.com/spf13/cobra"
)

// validateCmd checks a recipe without touching any engine or layer store.
var validateCmd = &cobra.Command{
	Use:   "validate [recipe]",
	Short: "Validate a recipe without building",
	Long: `Validate a recipe without building anything.

Validation covers the schema, structural rules (unique step names,
shell syntax, copy lifetimes), the identity declarations (accounts,
group provenance, escalation targets) and the base image spec. The
full build plan is sequenced so every problem a build would hit
before running a single command is reported here.

Examples:
  strata validate                   Validate ./recipe.cue
  strata validate ./env/recipe.cue  Validate a specific recipe`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()
	path := resolveRecipePath(args)

	rec, err := recipe.Parse(path)
	if err != nil {
		fmt.Fprintln(stdout, TitleStyle.Render("Recipe Validation"))
		fmt.Fprintf(stdout, "%s %s\n\n", SubtitleStyle.Render("Path:"), path)
		printValidationErrors(stderr, err)
		cmd.SilenceErrors = true
		return &ExitError{Code: 1}
	}

	fmt.Fprintln(stdout, TitleStyle.Render("Recipe Validation"))
	fmt.Fprintf(stdout, "%s %s\n\n", SubtitleStyle.Render("Path:"), path)

	var problems []error
	if err := resolver.ValidateSpec(rec.Base); err != nil {
		problems = append(problems, err)
	}
	plan, err := build.NewPlan(rec)
	if err != nil {
		problems = append(problems, err)
	}

	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(stderr, "%s %s\n", ErrorStyle.Render("✗"), p)
		}
		cmd.SilenceErrors = true
		return &ExitError{Code: 1}
	}

	fmt.Fprintf(stdout, "%s recipe %s is valid\n", SuccessStyle.Render("✓"), RefStyle.Render(rec.Name))
	fmt.Fprintf(stdout, "  base %s\n", RefStyle.Render(rec.Base.Reference()))
	fmt.Fprintf(stdout, "  %d step(s), %d synthesized\n", len(plan.Steps), countSynthesized(plan))
	if !rec.Base.Pinned() {
		fmt.Fprintf(stdout, "%s base image is not digest-pinned; the first build will pin it\n",
			WarningStyle.Render("!"))
	}
	return nil
}

// printValidationErrors expands ValidationErrors into one line per problem
// so users see every issue at once instead of fixing and re-running.
func printValidationErrors(stderr io.Writer, err error) {
	var verrs recipe.ValidationErrors
	if errors.As(err, &verrs) {
		for _, ve := range verrs {
			fmt.Fprintf(stderr, "%s %s\n", ErrorStyle.Render("✗"), ve)
		}
		return
	}
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		fmt.Fprintln(stderr, ae.Format(verbose))
		return
	}
	fmt.Fprintf(stderr, "%s %s\n", ErrorStyle.Render("✗"), err)
}

func countSynthesized(plan *build.Plan) int {
	n := 0
	for _, st := range plan.Steps {
		if st.Synthesized {
			n++
		}
	}
	return n
}
