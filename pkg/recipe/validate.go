// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"fmt"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// sudoersRulePattern admits the characters sudoers rule specifications are
// built from. Quotes, backslashes and shell metacharacters are absent, so a
// valid rule stays a single shell word when rendered into the drop-in
// append command.
var sudoersRulePattern = regexp.MustCompile(`^[-A-Za-z0-9_.,:()=!*/@%+ ]+$`)

// ValidationErrors aggregates every structural problem found in a recipe so
// users can fix them in one pass instead of one error per run.
type ValidationErrors []error

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	if len(v) == 1 {
		return v[0].Error()
	}
	msgs := make([]string, len(v))
	for i, err := range v {
		msgs[i] = "  - " + err.Error()
	}
	return fmt.Sprintf("%d validation errors:\n%s", len(v), strings.Join(msgs, "\n"))
}

// Validate runs the structural checks the CUE schema cannot express:
// cross-references between declarations, uniqueness, group provenance,
// build-context lifetimes, and shell syntax of every command group.
func (r *Recipe) Validate() ValidationErrors {
	var errs ValidationErrors

	errs = append(errs, r.validateIdentities()...)
	errs = append(errs, r.validateEnv(r.Env, "env")...)
	errs = append(errs, r.validateSteps()...)
	errs = append(errs, r.validateEntrypoint()...)

	return errs
}

func (r *Recipe) validateIdentities() []error {
	var errs []error

	accounts := make(map[string]bool, len(r.Accounts))
	for _, a := range r.Accounts {
		if accounts[a.Name] {
			errs = append(errs, fmt.Errorf("accounts: duplicate account %q", a.Name))
		}
		accounts[a.Name] = true
	}

	for i, esc := range r.Escalations {
		if !accounts[esc.Account] {
			errs = append(errs, fmt.Errorf("escalations[%d]: unknown account %q", i, esc.Account))
		}
		if esc.Rule != "" && !sudoersRulePattern.MatchString(esc.Rule) {
			errs = append(errs, fmt.Errorf("escalations[%d]: rule %q contains characters outside the sudoers grammar", i, esc.Rule))
		}
	}

	// Supplementary groups must be provided somewhere in the recipe: by an
	// account's primary group or a step's provides_groups. Ordering relative
	// to steps is checked at build time by the identity manager.
	provided := make(map[string]bool, len(r.Accounts))
	for _, a := range r.Accounts {
		provided[a.Name] = true // primary group mirrors the account name
	}
	for _, s := range r.Steps {
		for _, g := range s.ProvidesGroups {
			provided[g] = true
		}
	}
	for _, a := range r.Accounts {
		for _, g := range a.Groups {
			if !provided[g] {
				errs = append(errs, fmt.Errorf("accounts: account %q joins group %q which no declaration provides", a.Name, g))
			}
		}
	}

	return errs
}

func (r *Recipe) validateEnv(decls []EnvDecl, where string) []error {
	var errs []error
	for i, e := range decls {
		if ok, scopeErrs := e.Scope.IsValid(); !ok {
			for _, err := range scopeErrs {
				errs = append(errs, fmt.Errorf("%s[%d] (%s): %w", where, i, e.Key, err))
			}
		}
	}
	return errs
}

func (r *Recipe) validateSteps() []error {
	var errs []error

	parser := syntax.NewParser()
	names := make(map[string]bool, len(r.Steps))
	accounts := make(map[string]bool, len(r.Accounts))
	for _, a := range r.Accounts {
		accounts[a.Name] = true
	}
	discarded := make(map[string]int) // copy target -> ordinal of discarding step

	for _, s := range r.Steps {
		where := fmt.Sprintf("steps[%d] (%s)", s.Ordinal, s.Name)

		if names[s.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate step name", where))
		}
		names[s.Name] = true

		if s.User != "" && s.User != "root" && !accounts[s.User] {
			errs = append(errs, fmt.Errorf("%s: user %q is not a declared account", where, s.User))
		}

		for j, cmd := range s.Commands {
			if strings.TrimSpace(cmd) == "" {
				errs = append(errs, fmt.Errorf("%s: commands[%d] is empty", where, j))
				continue
			}
			if _, err := parser.Parse(strings.NewReader(cmd), s.Name); err != nil {
				errs = append(errs, fmt.Errorf("%s: commands[%d]: shell syntax error: %w", where, j, err))
			}
		}

		errs = append(errs, r.validateEnv(s.Env, where+".env")...)

		// Build-context lifetime is explicit: once a target is discarded,
		// later steps may not work under it or re-discard it; re-copying to
		// the same target re-introduces the resource.
		for target, at := range discarded {
			if s.WorkDir == target || strings.HasPrefix(s.WorkDir, target+"/") {
				errs = append(errs, fmt.Errorf("%s: workdir %s was discarded by steps[%d]", where, s.WorkDir, at))
			}
		}
		if s.Copy != nil {
			delete(discarded, s.Copy.Target)
			if s.Copy.Discard {
				discarded[s.Copy.Target] = s.Ordinal
			}
		}
	}

	return errs
}

func (r *Recipe) validateEntrypoint() []error {
	if r.Entrypoint == nil {
		return nil
	}

	var errs []error
	if r.Entrypoint.User != "" && r.Entrypoint.User != "root" {
		found := false
		for _, a := range r.Accounts {
			if a.Name == r.Entrypoint.User {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Errorf("entrypoint: user %q is not a declared account", r.Entrypoint.User))
		}
	}
	return errs
}
