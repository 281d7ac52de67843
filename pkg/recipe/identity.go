// SPDX-License-Identifier: MPL-2.0

package recipe

type (
	// Account declares an unprivileged service account created inside the
	// environment before the first step runs.
	Account struct {
		// Name is the account name (POSIX login name).
		Name string `json:"name"`

		// Shell is the account's login shell.
		Shell string `json:"shell,omitempty"`

		// Groups are supplementary groups the account joins. Each group must
		// be provided by an earlier declaration (another account's primary
		// group or a step's provides_groups).
		Groups []string `json:"groups,omitempty"`
	}

	// EscalationRule permits an account to run commands as a higher-privileged
	// identity. Rules are append-only: within a build a rule is never revoked.
	// The rule text follows sudoers spec syntax; policy decisions are made by
	// the external privilege-escalation mechanism at run time, not here.
	EscalationRule struct {
		// Account names the account the rule applies to.
		Account string `json:"account"`

		// Rule is the sudoers specification (defaults to unrestricted
		// passwordless escalation in the schema).
		Rule string `json:"rule,omitempty"`
	}
)

// DefaultEscalationRule is the schema default: unrestricted passwordless
// escalation for the named account.
const DefaultEscalationRule = "ALL=(ALL) NOPASSWD:ALL"

// RuleOrDefault resolves an empty rule to DefaultEscalationRule.
func (r EscalationRule) RuleOrDefault() string {
	if r.Rule == "" {
		return DefaultEscalationRule
	}
	return r.Rule
}
