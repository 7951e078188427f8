// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/dnaforge/config.cue (or XDG equivalent on Linux,
// ~/Library/Application Support/dnaforge/config.cue on macOS, %APPDATA%\dnaforge\config.cue
// on Windows). The package provides type-safe configuration access and covers module
// include sources, resolution policies, composition thresholds, lifecycle state paths,
// and hot-reload watcher settings.
//
// Configuration validation is performed against a CUE schema (config_schema.cue) to ensure
// type safety and provide clear error messages for invalid configurations.
package config
