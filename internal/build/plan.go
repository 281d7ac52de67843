// SPDX-License-Identifier: MPL-2.0

package build

import (
	"fmt"

	"strata/internal/identity"
	"strata/pkg/recipe"
)

type (
	// PlannedStep is one executable unit of the build plan: either a recipe
	// step or a step the planner synthesized from an identity declaration.
	PlannedStep struct {
		recipe.Step

		// Synthesized marks steps derived from accounts, escalations and
		// deferred group memberships rather than written in the recipe.
		Synthesized bool
	}

	// Plan is the fully sequenced build: identity declarations realized as
	// ordinary steps, recipe steps in declaration order, and group
	// memberships joined as soon as their providing step has run.
	Plan struct {
		// Steps is the ordered list of executable steps.
		Steps []PlannedStep

		// Identities records the accounts, groups and escalation policy the
		// plan declares.
		Identities *identity.Manager

		// EntrypointUser is the identity the entrypoint runs as, resolved
		// against the declarations (empty when the recipe has no
		// entrypoint).
		EntrypointUser string
	}
)

// NewPlan sequences a validated recipe into executable steps. Accounts are
// created ahead of the first recipe step; a membership in a group that only
// exists after some step has run (a step with provides_groups) is deferred
// to a synthesized join step placed right after the provider.
func NewPlan(rec *recipe.Recipe) (*Plan, error) {
	idm := identity.NewManager()

	// group name -> accounts whose membership waits for a providing step
	deferred := make(map[string][]string)
	providers := make(map[string]bool)
	for _, s := range rec.Steps {
		for _, g := range s.ProvidesGroups {
			providers[g] = true
		}
	}

	var steps []PlannedStep

	for _, a := range rec.Accounts {
		var now, later []string
		for _, g := range a.Groups {
			switch {
			case idm.HasGroup(g):
				now = append(now, g)
			case providers[g]:
				later = append(later, g)
			default:
				return nil, &PlanError{
					Subject: fmt.Sprintf("account %q", a.Name),
					Err:     &identity.Error{Op: "join group", Name: g, Err: identity.ErrUnknownGroup},
				}
			}
		}

		if err := idm.CreateAccount(a.Name, a.Shell, now); err != nil {
			return nil, &PlanError{Subject: fmt.Sprintf("account %q", a.Name), Err: err}
		}
		for _, g := range later {
			deferred[g] = append(deferred[g], a.Name)
		}

		steps = append(steps, PlannedStep{
			Step: recipe.Step{
				Name:     "account-" + a.Name,
				Commands: identity.AccountCommands(identity.Account{Name: a.Name, Shell: a.Shell, Groups: now}),
			},
			Synthesized: true,
		})
	}

	for _, e := range rec.Escalations {
		rule := e.RuleOrDefault()
		if err := idm.GrantEscalation(e.Account, rule); err != nil {
			return nil, &PlanError{Subject: fmt.Sprintf("escalation for %q", e.Account), Err: err}
		}
		steps = append(steps, PlannedStep{
			Step: recipe.Step{
				Name:     "escalate-" + e.Account,
				Commands: identity.EscalationCommands(identity.EscalationRule{Account: e.Account, Rule: rule}),
			},
			Synthesized: true,
		})
	}

	for _, s := range rec.Steps {
		// The manager tracks the active identity across steps so the
		// entrypoint can default to whatever the last step ran as.
		if s.User != "" {
			if err := idm.SetActive(s.User); err != nil {
				return nil, &PlanError{
					Subject: fmt.Sprintf("step %q", s.Name),
					Err:     fmt.Errorf("%w: %q", ErrUnknownIdentity, s.User),
				}
			}
		}
		steps = append(steps, PlannedStep{Step: s})

		for _, g := range s.ProvidesGroups {
			idm.RegisterGroup(g)
			for _, account := range deferred[g] {
				if err := idm.AddToGroup(account, g); err != nil {
					return nil, &PlanError{Subject: fmt.Sprintf("step %q", s.Name), Err: err}
				}
				steps = append(steps, PlannedStep{
					Step: recipe.Step{
						Name:     fmt.Sprintf("join-%s-%s", account, g),
						Commands: []string{fmt.Sprintf("usermod -aG %s %s", g, account)},
					},
					Synthesized: true,
				})
			}
			delete(deferred, g)
		}
	}

	var entrypointUser string
	if ep := rec.Entrypoint; ep != nil {
		entrypointUser = ep.User
		if entrypointUser == "" {
			entrypointUser = idm.Active()
		}
		if _, ok := idm.Lookup(entrypointUser); !ok {
			return nil, &PlanError{
				Subject: "entrypoint",
				Err:     fmt.Errorf("%w: %q", ErrUnknownIdentity, entrypointUser),
			}
		}
	}

	return &Plan{Steps: steps, Identities: idm, EntrypointUser: entrypointUser}, nil
}
