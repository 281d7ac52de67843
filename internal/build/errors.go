// SPDX-License-Identifier: MPL-2.0

package build

import (
	"errors"
	"fmt"

	"strata/internal/engine"
)

var (
	// ErrProvisioning is the sentinel error wrapped by ProvisioningError.
	ErrProvisioning = errors.New("provisioning step failed")

	// ErrUnknownIdentity is the sentinel error for steps or entrypoints
	// that reference an account no declaration creates.
	ErrUnknownIdentity = errors.New("unknown execution identity")
)

type (
	// ProvisioningError reports a failed step. The build aborts on the
	// first failure: no later step executes and no layer is recorded for
	// the failed step.
	ProvisioningError struct {
		// StepIndex is the position of the failed step in the build plan.
		StepIndex int
		// StepName names the failed step.
		StepName string
		// ExitCode is the exit status of the first failing sub-command.
		ExitCode engine.ExitCode
		// Cause is the underlying execution error, when one exists beyond
		// the non-zero exit itself.
		Cause error
	}

	// PlanError reports a recipe that cannot be sequenced into an
	// executable plan.
	PlanError struct {
		Subject string // step or entrypoint the problem was found on
		Err     error
	}
)

// Error implements the error interface.
func (e *ProvisioningError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("step %d (%s) failed with exit code %d: %v", e.StepIndex, e.StepName, e.ExitCode, e.Cause)
	}
	return fmt.Sprintf("step %d (%s) failed with exit code %d", e.StepIndex, e.StepName, e.ExitCode)
}

// Unwrap returns ErrProvisioning so callers can use errors.Is; the
// execution cause stays reachable through the chain.
func (e *ProvisioningError) Unwrap() error { return ErrProvisioning }

// Error implements the error interface.
func (e *PlanError) Error() string {
	return fmt.Sprintf("cannot plan %s: %v", e.Subject, e.Err)
}

// Unwrap returns the underlying error.
func (e *PlanError) Unwrap() error { return e.Err }
