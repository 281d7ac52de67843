// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ContainerEnginePodman uses Podman as the container runtime.
	ContainerEnginePodman ContainerEngine = "podman"
	// ContainerEngineDocker uses Docker as the container runtime.
	ContainerEngineDocker ContainerEngine = "docker"

	// ExecutorEngine builds layers as committed container images.
	ExecutorEngine ExecutorMode = "engine"
	// ExecutorVirtual builds layers as host directory snapshots using the
	// embedded mvdan/sh interpreter. No container engine required.
	ExecutorVirtual ExecutorMode = "virtual"

	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"
)

var (
	// ErrInvalidContainerEngine is returned when a ContainerEngine value is not recognized.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrInvalidExecutorMode is returned when an ExecutorMode value is not recognized.
	ErrInvalidExecutorMode = errors.New("invalid executor mode")
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidCacheDirPath is returned when a CacheDirPath value is whitespace-only.
	ErrInvalidCacheDirPath = errors.New("invalid cache dir path")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ContainerEngine specifies which container runtime to use.
	ContainerEngine string

	// InvalidContainerEngineError is returned when a ContainerEngine value is not recognized.
	// It wraps ErrInvalidContainerEngine for errors.Is() compatibility.
	InvalidContainerEngineError struct {
		Value ContainerEngine
	}

	// ExecutorMode specifies how layers are materialized.
	ExecutorMode string

	// InvalidExecutorModeError is returned when an ExecutorMode value is not recognized.
	// It wraps ErrInvalidExecutorMode for errors.Is() compatibility.
	InvalidExecutorModeError struct {
		Value ExecutorMode
	}

	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	// It wraps ErrInvalidColorScheme for errors.Is() compatibility.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// CacheDirPath represents a filesystem path to the virtual executor's
	// layer store. The zero value ("") is valid and means "use the default
	// cache directory". Non-zero values must not be whitespace-only.
	CacheDirPath string

	// InvalidCacheDirPathError is returned when a CacheDirPath value is
	// non-empty but whitespace-only.
	InvalidCacheDirPathError struct {
		Value CacheDirPath
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// ContainerEngine specifies whether to use "podman" or "docker"
		ContainerEngine ContainerEngine `json:"container_engine" mapstructure:"container_engine"`
		// Executor selects how layers are materialized ("engine" or "virtual")
		Executor ExecutorMode `json:"executor" mapstructure:"executor"`
		// Build configures build behavior
		Build BuildConfig `json:"build" mapstructure:"build"`
		// UI configures the user interface
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// BuildConfig configures build behavior.
	BuildConfig struct {
		// ForceRebuild re-applies every step regardless of cached layers
		ForceRebuild bool `json:"force_rebuild" mapstructure:"force_rebuild"`
		// StrictBindings makes a binding overwrite a build error instead of
		// last-write-wins
		StrictBindings bool `json:"strict_bindings" mapstructure:"strict_bindings"`
		// LayerRepository is the image repository layer artifacts are tagged under
		LayerRepository string `json:"layer_repository" mapstructure:"layer_repository"`
		// CacheDir stores the virtual executor's layer snapshots
		CacheDir CacheDirPath `json:"cache_dir" mapstructure:"cache_dir"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// ColorScheme sets the color scheme
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		// Verbose enables verbose output
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}
)

// Error implements the error interface.
func (e *InvalidContainerEngineError) Error() string {
	return fmt.Sprintf("invalid container engine %q (must be %q or %q)",
		e.Value, ContainerEngineDocker, ContainerEnginePodman)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidContainerEngineError) Unwrap() error { return ErrInvalidContainerEngine }

// Error implements the error interface.
func (e *InvalidExecutorModeError) Error() string {
	return fmt.Sprintf("invalid executor mode %q (must be %q or %q)",
		e.Value, ExecutorEngine, ExecutorVirtual)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidExecutorModeError) Unwrap() error { return ErrInvalidExecutorMode }

// Error implements the error interface.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (must be %q, %q or %q)",
		e.Value, ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error { return ErrInvalidColorScheme }

// Error implements the error interface.
func (e *InvalidCacheDirPathError) Error() string {
	return fmt.Sprintf("invalid cache dir path %q (must not be whitespace-only)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidCacheDirPathError) Unwrap() error { return ErrInvalidCacheDirPath }

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// IsValid reports whether the value is recognized, collecting errors.
func (e ContainerEngine) IsValid() (bool, []error) {
	switch e {
	case ContainerEngineDocker, ContainerEnginePodman:
		return true, nil
	}
	return false, []error{&InvalidContainerEngineError{Value: e}}
}

// IsValid reports whether the value is recognized, collecting errors.
func (m ExecutorMode) IsValid() (bool, []error) {
	switch m {
	case ExecutorEngine, ExecutorVirtual:
		return true, nil
	}
	return false, []error{&InvalidExecutorModeError{Value: m}}
}

// IsValid reports whether the value is recognized, collecting errors.
func (s ColorScheme) IsValid() (bool, []error) {
	switch s {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	}
	return false, []error{&InvalidColorSchemeError{Value: s}}
}

// IsValid reports whether the path is usable. Empty means default.
func (p CacheDirPath) IsValid() (bool, []error) {
	if p != "" && strings.TrimSpace(string(p)) == "" {
		return false, []error{&InvalidCacheDirPathError{Value: p}}
	}
	return true, nil
}

// IsValid reports whether the whole configuration is usable, collecting
// every field error instead of stopping at the first.
func (c *Config) IsValid() (bool, []error) {
	var fieldErrors []error

	if ok, errs := c.ContainerEngine.IsValid(); !ok {
		fieldErrors = append(fieldErrors, errs...)
	}
	if ok, errs := c.Executor.IsValid(); !ok {
		fieldErrors = append(fieldErrors, errs...)
	}
	if ok, errs := c.UI.ColorScheme.IsValid(); !ok {
		fieldErrors = append(fieldErrors, errs...)
	}
	if ok, errs := c.Build.CacheDir.IsValid(); !ok {
		fieldErrors = append(fieldErrors, errs...)
	}

	if len(fieldErrors) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: fieldErrors}}
	}
	return true, nil
}

// DefaultConfig returns the built-in defaults used when no config file
// exists.
func DefaultConfig() *Config {
	return &Config{
		ContainerEngine: ContainerEngineDocker,
		Executor:        ExecutorEngine,
		Build: BuildConfig{
			LayerRepository: "strata-layer",
		},
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
		},
	}
}
