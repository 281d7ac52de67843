// SPDX-License-Identifier: MPL-2.0

// Package identity records the accounts, group memberships and
// privilege-escalation rules declared by a build, and tracks which identity
// subsequent provisioning steps and the entrypoint execute as. The package
// only records declarations; policy decisions are made at run time by the
// external privilege-escalation mechanism.
package identity

import (
	"errors"
	"fmt"
)

// RootAccount always exists in the base image and never needs declaring.
const RootAccount = "root"

var (
	// ErrAccountExists is the sentinel error wrapped by Error for duplicate
	// account declarations.
	ErrAccountExists = errors.New("account already exists")

	// ErrUnknownAccount is the sentinel error for references to an account
	// that was never declared.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrUnknownGroup is the sentinel error for joining a group no earlier
	// declaration provides.
	ErrUnknownGroup = errors.New("unknown group")
)

type (
	// Account is a recorded service account.
	Account struct {
		Name   string
		Shell  string
		Groups []string
	}

	// EscalationRule is one append-only policy entry. Rules are never
	// revoked within a build.
	EscalationRule struct {
		Account string
		Rule    string
	}

	// Error is the identity declaration conflict error.
	Error struct {
		Op   string // "create account", "add to group", ...
		Name string // account or group name involved
		Err  error  // sentinel: ErrAccountExists, ErrUnknownAccount, ErrUnknownGroup
	}

	// Manager owns the identity declarations of one build. The zero value is
	// not usable; use NewManager, which seeds root as an existing account
	// and the active identity.
	Manager struct {
		accounts map[string]*Account
		groups   map[string]bool
		policy   []EscalationRule
		active   string
	}
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Name, e.Err)
}

// Unwrap returns the sentinel error so callers can use errors.Is.
func (e *Error) Unwrap() error { return e.Err }

// NewManager creates a Manager with root present and active.
func NewManager() *Manager {
	return &Manager{
		accounts: map[string]*Account{
			RootAccount: {Name: RootAccount, Shell: "/bin/sh"},
		},
		groups: map[string]bool{RootAccount: true},
		active: RootAccount,
	}
}

// CreateAccount records a new account. The account's primary group (same
// name) becomes available for later memberships. Fails when the name is
// already taken; the existing account is unaffected.
func (m *Manager) CreateAccount(name, shell string, groups []string) error {
	if _, exists := m.accounts[name]; exists {
		return &Error{Op: "create account", Name: name, Err: ErrAccountExists}
	}
	for _, g := range groups {
		if !m.groups[g] {
			return &Error{Op: "create account", Name: g, Err: ErrUnknownGroup}
		}
	}

	m.accounts[name] = &Account{Name: name, Shell: shell, Groups: append([]string(nil), groups...)}
	m.groups[name] = true
	return nil
}

// RegisterGroup makes a group available for later memberships. Steps call
// this for groups their packages create (e.g. the container runtime's access
// group). Registering an existing group is a no-op.
func (m *Manager) RegisterGroup(name string) {
	m.groups[name] = true
}

// AddToGroup appends a supplementary group to an existing account. Fails
// when either side is unknown: group provenance is part of the declared
// build order, not something discovered at run time.
func (m *Manager) AddToGroup(account, group string) error {
	acct, ok := m.accounts[account]
	if !ok {
		return &Error{Op: "add to group", Name: account, Err: ErrUnknownAccount}
	}
	if !m.groups[group] {
		return &Error{Op: "add to group", Name: group, Err: ErrUnknownGroup}
	}

	for _, g := range acct.Groups {
		if g == group {
			return nil // already a member
		}
	}
	acct.Groups = append(acct.Groups, group)
	return nil
}

// GrantEscalation appends a scoped privilege-escalation rule for an account.
// Additive only: nothing in a build revokes a previously granted rule.
func (m *Manager) GrantEscalation(account, rule string) error {
	if _, ok := m.accounts[account]; !ok {
		return &Error{Op: "grant escalation", Name: account, Err: ErrUnknownAccount}
	}
	m.policy = append(m.policy, EscalationRule{Account: account, Rule: rule})
	return nil
}

// SetActive selects the identity subsequent operations execute as.
func (m *Manager) SetActive(account string) error {
	if _, ok := m.accounts[account]; !ok {
		return &Error{Op: "set active identity", Name: account, Err: ErrUnknownAccount}
	}
	m.active = account
	return nil
}

// Active returns the currently active identity.
func (m *Manager) Active() string { return m.active }

// Lookup returns the recorded account, or false when it was never declared.
func (m *Manager) Lookup(name string) (Account, bool) {
	acct, ok := m.accounts[name]
	if !ok {
		return Account{}, false
	}
	return *acct, true
}

// HasGroup reports whether a group has been provided by any declaration.
func (m *Manager) HasGroup(name string) bool { return m.groups[name] }

// Policy returns a copy of the append-only escalation rule list in grant
// order. Callers query the policy; they never mutate it.
func (m *Manager) Policy() []EscalationRule {
	return append([]EscalationRule(nil), m.policy...)
}
