// SPDX-License-Identifier: MPL-2.0

// Command strata builds and runs layered, reproducible environments
// from declarative CUE recipes.
package main

import cmd "strata/cmd/strata"

func main() {
	cmd.Execute()
}
