// SPDX-License-Identifier: MPL-2.0

// Package recipe defines the declarative build recipe format.
//
// A recipe pins an immutable base image, lists ordered provisioning steps
// (command groups with all-or-nothing semantics), declares service accounts
// and privilege-escalation rules, populates the environment binding table,
// and names the single entrypoint command executed when the environment
// starts. Declaration order is significant: it defines both execution order
// and layer-cache lineage.
//
// Recipes are written in CUE and validated against the embedded schema
// before any structural (Go-level) validation runs.
package recipe
