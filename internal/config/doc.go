// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as
// the file format.
//
// Configuration is loaded from ~/.config/strata/config.cue (or XDG
// equivalent on Linux, ~/Library/Application Support/strata/config.cue on
// macOS, %APPDATA%\strata\config.cue on Windows), with STRATA_* environment
// variables layered on top. The package provides type-safe configuration
// access for container engine selection, executor choice, layer repository
// naming, cache locations and UI settings.
//
// Configuration validation is performed against a CUE schema
// (config_schema.cue) to ensure type safety and provide clear error
// messages for invalid configurations.
package config
