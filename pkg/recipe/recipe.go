// SPDX-License-Identifier: MPL-2.0

package recipe

import "strings"

type (
	// Recipe is the root document of a build description. Field order mirrors
	// evaluation order: base resolution, recipe-level bindings, identity
	// declarations, provisioning steps, entrypoint.
	Recipe struct {
		// Name identifies the environment (also used for the final image tag).
		Name string `json:"name"`

		// Description is optional free-form documentation.
		Description string `json:"description,omitempty"`

		// Base pins the immutable root image all layers descend from.
		Base BaseSpec `json:"base"`

		// EnvFiles are dotenv files loaded into the binding table ahead of
		// the inline declarations, relative paths resolved against the
		// recipe directory. A path suffixed with '?' is optional.
		EnvFiles []string `json:"env_files,omitempty"`

		// Env contains binding-table entries declared ahead of all steps.
		// Inline declarations override env-file values for the same keys.
		Env []EnvDecl `json:"env,omitempty"`

		// Accounts are service accounts created before the first step runs.
		Accounts []Account `json:"accounts,omitempty"`

		// Escalations are privilege-escalation rules appended to the policy.
		Escalations []EscalationRule `json:"escalations,omitempty"`

		// Steps are the ordered provisioning steps.
		Steps []Step `json:"steps,omitempty"`

		// Entrypoint is the single foreground command executed at start.
		Entrypoint *Entrypoint `json:"entrypoint,omitempty"`

		// FilePath records where the recipe was loaded from (not serialized).
		FilePath string `json:"-"`
	}

	// BaseSpec is the (runtime, version, digest) triple identifying the base
	// image. Runtime is the image repository (e.g. "python"), Version its tag.
	// Digest, when set, pins the image by content hash; builds without a
	// digest are resolved to one before the first step executes.
	BaseSpec struct {
		Runtime string `json:"runtime"`
		Version string `json:"version"`
		Digest  string `json:"digest,omitempty"`
	}

	// Entrypoint declares the foreground command executed when the built
	// environment starts. There is no restart policy: when the command
	// exits, the environment is terminated.
	Entrypoint struct {
		// Command is the argv of the foreground process.
		Command []string `json:"command"`

		// User is the identity the command runs as. Empty means the identity
		// active after the last step.
		User string `json:"user,omitempty"`

		// WorkDir is the working directory of the foreground process.
		WorkDir string `json:"workdir,omitempty"`

		// Privileged starts the environment with extended privileges.
		// Required when the entrypoint runs a nested container daemon.
		Privileged bool `json:"privileged,omitempty"`
	}
)

// Reference renders the image reference for the base spec, including the
// digest pin when present (e.g. "python:3.9-slim@sha256:...").
func (b BaseSpec) Reference() string {
	var sb strings.Builder
	sb.WriteString(b.Runtime)
	if b.Version != "" {
		sb.WriteString(":")
		sb.WriteString(b.Version)
	}
	if b.Digest != "" {
		sb.WriteString("@")
		sb.WriteString(b.Digest)
	}
	return sb.String()
}

// Pinned reports whether the base spec carries a content digest.
func (b BaseSpec) Pinned() bool { return b.Digest != "" }
