// SPDX-License-Identifier: MPL-2.0

// Package bindings implements the environment binding table: the build-time-
// populated, run-time-frozen key/value environment exposed to provisioning
// steps and to the final running process. The table is an explicit value
// threaded through the builder and handed, frozen, to the launcher — never
// ambient state.
package bindings

import (
	"errors"
	"fmt"

	"golang.org/x/exp/maps"

	"strata/pkg/recipe"
)

var (
	// ErrNotFound is the sentinel error wrapped by NotFoundError.
	ErrNotFound = errors.New("binding not found")

	// ErrFrozen is returned by Set after the table has been frozen for the
	// lifetime of the running process.
	ErrFrozen = errors.New("binding table is frozen")

	// ErrBindingConflict is the sentinel error wrapped by ConflictError.
	ErrBindingConflict = errors.New("binding conflict")
)

type (
	// Entry is one binding-table row.
	Entry struct {
		Key   string
		Value string
		Scope recipe.EnvScope
	}

	// NotFoundError is returned by Resolve for unknown keys.
	NotFoundError struct {
		Key string
	}

	// ConflictError is returned by a strict table when a key is declared
	// twice. The default policy is last-write-wins; strict mode exists for
	// recipes that want silent overwrites forbidden.
	ConflictError struct {
		Key      string
		Existing string
		Proposed string
	}

	// Table is the binding table. Build-time writers use Set; once Freeze is
	// called the table is read-only. The build is single-threaded, so no
	// locking discipline is needed beyond last-write-wins ordering.
	Table struct {
		entries map[string]Entry
		strict  bool
		frozen  bool
	}

	// Option configures a Table.
	Option func(*Table)
)

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("binding %q not found", e.Key)
}

// Unwrap returns ErrNotFound so callers can use errors.Is.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("binding %q already declared as %q (proposed %q)", e.Key, e.Existing, e.Proposed)
}

// Unwrap returns ErrBindingConflict so callers can use errors.Is.
func (e *ConflictError) Unwrap() error { return ErrBindingConflict }

// WithStrictOverwrites makes duplicate declarations of a key an error
// instead of applying last-write-wins.
func WithStrictOverwrites() Option {
	return func(t *Table) { t.strict = true }
}

// NewTable creates an empty, unfrozen binding table.
func NewTable(opts ...Option) *Table {
	t := &Table{entries: make(map[string]Entry)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Set declares a binding. Later declarations of the same key overwrite
// earlier ones unless the table is strict. Returns ErrFrozen after Freeze.
func (t *Table) Set(key, value string, scope recipe.EnvScope) error {
	if t.frozen {
		return fmt.Errorf("cannot set %q: %w", key, ErrFrozen)
	}
	if ok, errs := scope.IsValid(); !ok {
		return errs[0]
	}
	if existing, found := t.entries[key]; found && t.strict {
		return &ConflictError{Key: key, Existing: existing.Value, Proposed: value}
	}

	t.entries[key] = Entry{Key: key, Value: value, Scope: scope.OrDefault()}
	return nil
}

// Declare applies a recipe env declaration to the table.
func (t *Table) Declare(d recipe.EnvDecl) error {
	return t.Set(d.Key, d.Value, d.Scope)
}

// Resolve returns the value bound to key.
func (t *Table) Resolve(key string) (string, error) {
	entry, found := t.entries[key]
	if !found {
		return "", &NotFoundError{Key: key}
	}
	return entry.Value, nil
}

// SnapshotForStep returns all build-or-both scoped entries, i.e. the
// environment visible to a provisioning step executing now.
func (t *Table) SnapshotForStep() map[string]string {
	return t.snapshot(func(e Entry) bool { return e.Scope.VisibleToSteps() })
}

// SnapshotForRuntime returns all run-or-both scoped entries: the environment
// expanded into the entrypoint's process at container start.
func (t *Table) SnapshotForRuntime() map[string]string {
	return t.snapshot(func(e Entry) bool { return e.Scope.VisibleAtRuntime() })
}

func (t *Table) snapshot(include func(Entry) bool) map[string]string {
	out := make(map[string]string, len(t.entries))
	for _, e := range t.entries {
		if include(e) {
			out[e.Key] = e.Value
		}
	}
	return out
}

// Freeze makes the table read-only for the lifetime of the running process.
// Freezing twice is a no-op.
func (t *Table) Freeze() { t.frozen = true }

// Frozen reports whether the table has been frozen.
func (t *Table) Frozen() bool { return t.frozen }

// Len returns the number of distinct keys in the table.
func (t *Table) Len() int { return len(t.entries) }

// Keys returns the declared keys in unspecified order.
func (t *Table) Keys() []string { return maps.Keys(t.entries) }
