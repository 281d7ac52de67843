// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"errors"
	"fmt"
)

const (
	// ScopeBuild entries are visible to subsequent provisioning steps only.
	ScopeBuild EnvScope = "build"
	// ScopeRun entries are visible to the running process only.
	ScopeRun EnvScope = "run"
	// ScopeBoth entries are visible to both. It is the default scope.
	ScopeBoth EnvScope = "both"
)

// ErrInvalidEnvScope is the sentinel error wrapped by InvalidEnvScopeError.
var ErrInvalidEnvScope = errors.New("invalid env scope")

type (
	// EnvScope controls where a binding-table entry is visible.
	// The zero value ("") is treated as ScopeBoth.
	EnvScope string

	// InvalidEnvScopeError is returned when an EnvScope is not recognized.
	InvalidEnvScopeError struct {
		Value EnvScope
	}

	// EnvDecl declares one environment binding. Later declarations of the
	// same key overwrite earlier ones (last-write-wins).
	EnvDecl struct {
		Key   string   `json:"key"`
		Value string   `json:"value"`
		Scope EnvScope `json:"scope,omitempty"`
	}
)

// Error implements the error interface.
func (e *InvalidEnvScopeError) Error() string {
	return fmt.Sprintf("invalid env scope %q (must be one of: build, run, both)", e.Value)
}

// Unwrap returns ErrInvalidEnvScope so callers can use errors.Is.
func (e *InvalidEnvScopeError) Unwrap() error { return ErrInvalidEnvScope }

// IsValid returns whether the scope is recognized, and a list of validation
// errors if it is not.
func (s EnvScope) IsValid() (bool, []error) {
	switch s {
	case ScopeBuild, ScopeRun, ScopeBoth, "":
		return true, nil
	default:
		return false, []error{&InvalidEnvScopeError{Value: s}}
	}
}

// OrDefault resolves the zero value to ScopeBoth.
func (s EnvScope) OrDefault() EnvScope {
	if s == "" {
		return ScopeBoth
	}
	return s
}

// VisibleToSteps reports whether entries with this scope appear in the
// per-step environment during the build.
func (s EnvScope) VisibleToSteps() bool {
	sc := s.OrDefault()
	return sc == ScopeBuild || sc == ScopeBoth
}

// VisibleAtRuntime reports whether entries with this scope appear in the
// frozen runtime snapshot handed to the entrypoint.
func (s EnvScope) VisibleAtRuntime() bool {
	sc := s.OrDefault()
	return sc == ScopeRun || sc == ScopeBoth
}
