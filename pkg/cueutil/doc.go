// SPDX-License-Identifier: MPL-2.0

// Package cueutil provides shared CUE parsing utilities.
//
// Recipe files and tool configuration both follow the same 3-step CUE
// parsing pattern:
//
//  1. Compile the embedded schema
//  2. Compile user data and unify with schema
//  3. Validate and decode to Go struct
//
// # Usage
//
//	//go:embed recipe_schema.cue
//	var schemaBytes []byte
//
//	result, err := cueutil.ParseAndDecode[Recipe](
//	    schemaBytes,
//	    userFileBytes,
//	    "#Recipe",
//	    cueutil.WithFilename("recipe.cue"),
//	)
//	if err != nil {
//	    return nil, err  // Error includes the CUE path to the invalid value
//	}
//	return result.Value, nil
package cueutil
