// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

type (
	// Step is one ordered unit of provisioning work. A step's command group
	// executes with succeed-all semantics: every sub-command must exit zero
	// or the whole step fails and the build aborts.
	Step struct {
		// Name identifies the step in logs, errors and the build manifest.
		Name string `json:"name"`

		// Commands is the command group, evaluated in order with
		// short-circuit failure propagation.
		Commands []string `json:"commands"`

		// WorkDir is the working directory the command group runs in.
		WorkDir string `json:"workdir,omitempty"`

		// User selects the identity the step executes as. Empty means the
		// currently active identity.
		User string `json:"user,omitempty"`

		// Env contains binding-table entries registered as part of this
		// step's declared effect, visible to this and every later step.
		Env []EnvDecl `json:"env,omitempty"`

		// Copy stages a build-context snapshot into the layer before the
		// command group runs.
		Copy *CopySpec `json:"copy,omitempty"`

		// ProvidesGroups names OS groups this step creates (e.g. the
		// container runtime's access group installed by a package). Accounts
		// may only join groups a prior declaration provides.
		ProvidesGroups []string `json:"provides_groups,omitempty"`

		// Ordinal is the zero-based position in the recipe's step list,
		// assigned at parse time (not serialized).
		Ordinal int `json:"-"`
	}

	// CopySpec stages a host directory into the layer filesystem. Discard
	// makes the snapshot's lifetime explicit: a discarding step removes the
	// target after its command group succeeds, and no later step may depend
	// on the target's continued existence.
	CopySpec struct {
		// Source is the host path, resolved relative to the recipe file.
		Source string `json:"source"`

		// Target is the absolute path inside the layer.
		Target string `json:"target"`

		// Discard removes Target after this step's commands succeed.
		Discard bool `json:"discard,omitempty"`
	}
)

// ContentHash returns the canonical content hash of the step. Layer identity
// is a pure function of (parent identity, step content), so every field that
// changes the step's effect participates in the hash.
func (s Step) ContentHash() string {
	h := sha256.New()

	fmt.Fprintf(h, "name:%s\n", s.Name)
	fmt.Fprintf(h, "workdir:%s\n", s.WorkDir)
	fmt.Fprintf(h, "user:%s\n", s.User)
	for _, c := range s.Commands {
		fmt.Fprintf(h, "cmd:%s\n", c)
	}
	for _, e := range s.Env {
		fmt.Fprintf(h, "env:%s=%s;%s\n", e.Key, e.Value, e.Scope)
	}
	if s.Copy != nil {
		fmt.Fprintf(h, "copy:%s>%s;discard=%t\n", s.Copy.Source, s.Copy.Target, s.Copy.Discard)
	}
	for _, g := range s.ProvidesGroups {
		fmt.Fprintf(h, "group:%s\n", g)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Script renders the command group as a single shell script with
// short-circuit failure semantics. Each sub-command runs only if every
// preceding one succeeded.
func (s Step) Script() string {
	return strings.Join(s.Commands, " && ")
}
