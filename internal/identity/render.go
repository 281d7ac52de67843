// SPDX-License-Identifier: MPL-2.0

package identity

import "fmt"

// Shell quoting is deliberately absent here: account and group names are
// schema-constrained to POSIX login names and rules are validated against
// the sudoers character set, neither of which can carry shell
// metacharacters.

// AccountCommands renders the shell commands that realize an account
// declaration inside a layer. The account's primary group is created
// implicitly by useradd.
func AccountCommands(a Account) []string {
	shell := a.Shell
	if shell == "" {
		shell = "/bin/bash"
	}

	cmds := []string{
		fmt.Sprintf("useradd -m -s %s %s", shell, a.Name),
	}
	for _, g := range a.Groups {
		cmds = append(cmds, fmt.Sprintf("usermod -aG %s %s", g, a.Name))
	}
	return cmds
}

// EscalationCommands renders the sudoers drop-in for one escalation rule.
// Rules are appended to per-account files under /etc/sudoers.d, matching the
// append-only policy model: a later rule never rewrites an earlier file,
// it adds a line.
func EscalationCommands(r EscalationRule) []string {
	dropIn := fmt.Sprintf("/etc/sudoers.d/%s", r.Account)
	return []string{
		// Escalations run ahead of every recipe step, so on a slim base
		// /etc/sudoers.d does not exist until sudo is installed. sudo reads
		// the includedir whenever that happens.
		"install -d -m 0755 /etc/sudoers.d",
		fmt.Sprintf("echo '%s %s' >> %s", r.Account, r.Rule, dropIn),
		fmt.Sprintf("chmod 0440 %s", dropIn),
	}
}
