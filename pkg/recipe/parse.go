// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	_ "embed"
	"fmt"
	"os"

	"strata/pkg/cueutil"
)

//go:embed recipe_schema.cue
var recipeSchema string

// Parse reads and parses a recipe from the given path.
func Parse(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe at %s: %w", path, err)
	}

	return ParseBytes(data, path)
}

// ParseBytes parses recipe content from bytes. Uses the 3-step CUE flow
// (compile schema, compile user data, unify and decode), assigns step
// ordinals from declaration order, then runs structural validation.
func ParseBytes(data []byte, path string) (*Recipe, error) {
	result, err := cueutil.ParseAndDecodeString[Recipe](
		recipeSchema,
		data,
		"#Recipe",
		cueutil.WithFilename(path),
	)
	if err != nil {
		return nil, err
	}

	r := result.Value
	r.FilePath = path

	// Ordinals follow declaration order; the step list is never reordered.
	for i := range r.Steps {
		r.Steps[i].Ordinal = i
	}

	if errs := r.Validate(); len(errs) > 0 {
		return nil, errs
	}

	return r, nil
}
