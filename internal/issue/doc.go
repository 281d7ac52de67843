// SPDX-License-Identifier: MPL-2.0

// Package issue contains the catalog of user-facing failure explanations
// and the ActionableError type the CLI renders them with. Issues are
// rendered as markdown so terminal output stays readable for multi-step
// fix instructions.
package issue
