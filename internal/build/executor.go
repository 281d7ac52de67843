// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"fmt"

	"strata/pkg/recipe"
)

// ContextMount is where a step's build-context snapshot appears while its
// command group runs. The snapshot is staged read-only and copied to the
// step's declared target before the first command executes.
const ContextMount = "/.strata-context"

type (
	// Executor materializes layers. Implementations are content-addressed
	// stores keyed by Layer.ID: Apply must be observationally idempotent,
	// and Has answering true means the artifact can serve as a parent
	// without re-running anything.
	Executor interface {
		// Name identifies the executor in logs ("engine" or "virtual").
		Name() string

		// Materialize ensures the base layer's artifact exists.
		Materialize(ctx context.Context, base Layer) error

		// Has reports whether the layer's artifact already exists.
		Has(ctx context.Context, layer Layer) (bool, error)

		// Apply runs one step on top of parent and stores the result as
		// layer. A failed step stores nothing.
		Apply(ctx context.Context, parent, layer Layer, step recipe.Step, env map[string]string) error

		// Finalize stamps the runtime configuration onto the top layer and
		// returns a reference to the finished artifact.
		Finalize(ctx context.Context, top Layer, spec FinalizeSpec) (string, error)

		// Ref returns the artifact reference a layer is stored under.
		Ref(layer Layer) string

		// List returns the references of every stored layer artifact.
		List(ctx context.Context) ([]string, error)

		// Remove deletes one stored artifact. Reclamation is explicit:
		// nothing in the build path ever calls this.
		Remove(ctx context.Context, ref string) error
	}

	// FinalizeSpec is the runtime configuration baked into the finished
	// artifact: the frozen runtime bindings, the identity and working
	// directory of the foreground process, and its argv.
	FinalizeSpec struct {
		// Tag names the finished artifact.
		Tag string
		// Env is the frozen runtime snapshot of the binding table.
		Env map[string]string
		// User is the identity the entrypoint runs as.
		User string
		// WorkDir is the entrypoint's working directory.
		WorkDir string
		// Entrypoint is the argv of the foreground process.
		Entrypoint []string
	}
)

// stepScript assembles the full shell script for one step: context staging
// first, then the command group, then discard cleanup. Everything is joined
// with short-circuit conjunction so a failed stage aborts the rest.
func stepScript(step recipe.Step) string {
	var parts []string
	if c := step.Copy; c != nil {
		parts = append(parts,
			fmt.Sprintf("mkdir -p %s", c.Target),
			fmt.Sprintf("cp -a %s/. %s", ContextMount, c.Target),
		)
	}
	parts = append(parts, step.Commands...)
	if c := step.Copy; c != nil && c.Discard {
		parts = append(parts, fmt.Sprintf("rm -rf %s", c.Target))
	}

	s := recipe.Step{Commands: parts}
	return s.Script()
}
