// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"dnaforge/internal/issue"
	"dnaforge/pkg/cueutil"
	"dnaforge/pkg/platform"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "dnaforge"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the dnaforge configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	// Allow tests to override the config directory
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case platform.Windows:
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case platform.Darwin:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = sandboxConfigBase(platform.DetectSandbox(), os.Getenv)
		if configDir == "" {
			configDir = os.Getenv("XDG_CONFIG_HOME")
		}
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// ModulesDir returns the directory for user-installed dnamod directories.
// The path is ~/.dnaforge/modules on all platforms.
func ModulesDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, "."+AppName, "modules"), nil
}

// StateDir returns the directory for lifecycle state (backups, journal).
// The path is ~/.dnaforge/state on all platforms.
func StateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, "."+AppName, "state"), nil
}

// loadWithOptions performs option-driven config loading without mutating
// package-level cache state. Callers that want caching can wrap this function.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()

	// Set defaults
	defaults := DefaultConfig()
	v.SetDefault("includes", defaults.Includes)
	v.SetDefault("resolution.strategy", defaults.Resolution.Strategy)
	v.SetDefault("resolution.allow_experimental", defaults.Resolution.AllowExperimental)
	v.SetDefault("resolution.allow_deprecated", defaults.Resolution.AllowDeprecated)
	v.SetDefault("resolution.allow_conflicts", defaults.Resolution.AllowConflicts)
	v.SetDefault("thresholds.max_modules", defaults.Thresholds.MaxModules)
	v.SetDefault("thresholds.max_complexity", defaults.Thresholds.MaxComplexity)
	v.SetDefault("thresholds.max_depth", defaults.Thresholds.MaxDepth)
	v.SetDefault("thresholds.module_weight", defaults.Thresholds.ModuleWeight)
	v.SetDefault("thresholds.dependency_weight", defaults.Thresholds.DependencyWeight)
	v.SetDefault("thresholds.conflict_weight", defaults.Thresholds.ConflictWeight)
	v.SetDefault("lifecycle.install_root", defaults.Lifecycle.InstallRoot)
	v.SetDefault("lifecycle.backup_root", defaults.Lifecycle.BackupRoot)
	v.SetDefault("lifecycle.journal_path", defaults.Lifecycle.JournalPath)
	v.SetDefault("watch.reload_strategy", defaults.Watch.ReloadStrategy)
	v.SetDefault("watch.debounce_ms", defaults.Watch.DebounceMs)
	v.SetDefault("watch.ignore_patterns", defaults.Watch.IgnorePatterns)
	v.SetDefault("ui.color_scheme", defaults.UI.ColorScheme)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)

	resolvedPath := ""

	// If a custom config file path is set via --config flag, use it exclusively.
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Check that the file exists and is readable").
				WithSuggestion("Use 'dnaforge config show' to see default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		if err := loadCUEIntoViper(v, opts.ConfigFilePath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("See 'dnaforge config --help' for configuration options").
				Wrap(err).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		// Get config directory
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}

		// Try to load CUE config file
		cuePath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
		if fileExists(cuePath) {
			if err := loadCUEIntoViper(v, cuePath); err != nil {
				return nil, "", issue.NewErrorContext().
					WithOperation("load configuration").
					WithResource(cuePath).
					WithSuggestion("Check that the file contains valid CUE syntax").
					WithSuggestion("Verify the configuration values match the expected schema").
					WithSuggestion("See 'dnaforge config --help' for configuration options").
					Wrap(err).
					BuildError()
			}
			resolvedPath = cuePath
		} else {
			// Also check current directory
			localCuePath := ConfigFileName + "." + ConfigFileExt
			if fileExists(localCuePath) {
				if err := loadCUEIntoViper(v, localCuePath); err != nil {
					return nil, "", issue.NewErrorContext().
						WithOperation("load configuration").
						WithResource(localCuePath).
						WithSuggestion("Check that the file contains valid CUE syntax").
						WithSuggestion("Verify the configuration values match the expected schema").
						WithSuggestion("See 'dnaforge config --help' for configuration options").
						Wrap(err).
						BuildError()
				}
				resolvedPath = localCuePath
			}
			// If no config file found, use defaults (no error)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate includes constraints that CUE cannot express:
	// path uniqueness, alias uniqueness, and short-name collision disambiguation.
	if err := validateIncludes("includes", cfg.Includes); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithSuggestion("Ensure each alias is unique across all includes entries").
			WithSuggestion("When two modules share the same short name, all must have unique aliases").
			Wrap(err).
			BuildError()
	}

	if valid, errs := cfg.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithSuggestion("Check strategy and color scheme values against the documented options").
			WithSuggestion("Thresholds and debounce windows must be non-negative").
			Wrap(errs[0]).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

// sandboxConfigBase returns the sandbox-imposed base directory for
// configuration, or "" when platform defaults apply. Snap confines writes to
// its own directories, so config lives under SNAP_USER_COMMON there; Flatpak
// rewrites XDG_CONFIG_HOME inside the sandbox, which the default path already
// honors.
func sandboxConfigBase(st platform.SandboxType, getenv func(string) string) string {
	if st == platform.SandboxSnap {
		return getenv("SNAP_USER_COMMON")
	}
	return ""
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper.
//
// Note: This uses manual CUE parsing instead of cueutil.ParseAndDecode because:
// 1. Config decodes to map[string]any (not a struct) for Viper integration
// 2. Uses Concrete(false) because config fields are optional
// 3. Needs to merge into Viper's config map, not return a struct
func loadCUEIntoViper(v *viper.Viper, path string) error {
	// Read CUE file
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Check file size using cueutil
	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return err
	}

	// Parse with CUE
	ctx := cuecontext.New()

	// Compile the schema
	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	// Compile the user's config file
	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return cueutil.FormatError(userValue.Err(), path)
	}

	// Unify with schema to validate against #Config definition
	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return cueutil.FormatError(err, path)
	}

	// Decode to Go map
	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}

	// Merge into Viper (preserves defaults, allows env overrides)
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// validateIncludes checks include entries for constraints that CUE cannot express:
//   - all paths must be unique (normalized via filepath.Clean)
//   - all non-empty aliases must be globally unique across entries
//   - when two or more entries share the same filesystem short name (e.g., "auth.dnamod"),
//     ALL entries with that short name must have a non-empty alias for disambiguation
//
// The fieldName parameter is used in error messages to identify which includes
// section failed validation.
func validateIncludes(fieldName string, includes []IncludeEntry) error {
	seenAliases := make(map[ModuleAlias]ModuleIncludePath) // alias -> path of first occurrence
	seenPaths := make(map[string]int)                      // cleaned path -> index of first occurrence
	shortNames := make(map[string][]int)                   // short name -> indices of entries with that name

	for i, entry := range includes {
		// Check path uniqueness (normalized to handle trailing slashes and redundant separators)
		cleanPath := filepath.Clean(string(entry.Path))
		if firstIdx, exists := seenPaths[cleanPath]; exists {
			return fmt.Errorf("%s[%d]: duplicate path %q (same as %s[%d])", fieldName, i, entry.Path, fieldName, firstIdx)
		}
		seenPaths[cleanPath] = i

		// Track short name for collision detection
		shortName := strings.TrimSuffix(filepath.Base(string(entry.Path)), moduleSuffix)
		shortNames[shortName] = append(shortNames[shortName], i)

		// Check alias uniqueness
		if entry.Alias != "" {
			if existingPath, exists := seenAliases[entry.Alias]; exists {
				return fmt.Errorf("%s: duplicate alias %q used by both %q and %q", fieldName, entry.Alias, existingPath, entry.Path)
			}
			seenAliases[entry.Alias] = entry.Path
		}
	}

	// Enforce short-name collision rule: if 2+ entries share the same short name,
	// ALL of those entries must have non-empty aliases for disambiguation.
	for shortName, indices := range shortNames {
		if len(indices) < 2 {
			continue
		}
		for _, idx := range indices {
			if includes[idx].Alias == "" {
				return fmt.Errorf(
					"%s[%d]: module %q shares short name %q with %d other entry(ies); all entries with this short name must have unique aliases",
					fieldName, idx, includes[idx].Path, shortName, len(indices)-1,
				)
			}
		}
	}

	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(cfgDir, 0o755)
}

// EnsureModulesDir creates the modules directory if it doesn't exist
func EnsureModulesDir() error {
	modsDir, err := ModulesDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(modsDir, 0o755)
}

// CreateDefaultConfig creates a default config file if it doesn't exist
func CreateDefaultConfig() error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		return nil // File exists
	}

	defaults := DefaultConfig()
	cueContent := GenerateCUE(defaults)

	if err := os.WriteFile(cfgPath, []byte(cueContent), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Save writes the current configuration to file
func Save(cfg *Config) error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)

	cueContent := GenerateCUE(cfg)

	if err := os.WriteFile(cfgPath, []byte(cueContent), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// dnaforge Configuration File\n\n")

	// Includes
	if len(cfg.Includes) > 0 {
		sb.WriteString("includes: [\n")
		for _, entry := range cfg.Includes {
			if entry.Alias != "" {
				sb.WriteString(fmt.Sprintf("\t{path: %q, alias: %q},\n", entry.Path, entry.Alias))
			} else {
				sb.WriteString(fmt.Sprintf("\t{path: %q},\n", entry.Path))
			}
		}
		sb.WriteString("]\n\n")
	}

	// Resolution config
	sb.WriteString("resolution: {\n")
	sb.WriteString(fmt.Sprintf("\tstrategy: %q\n", cfg.Resolution.Strategy))
	sb.WriteString(fmt.Sprintf("\tallow_experimental: %v\n", cfg.Resolution.AllowExperimental))
	sb.WriteString(fmt.Sprintf("\tallow_deprecated: %v\n", cfg.Resolution.AllowDeprecated))
	sb.WriteString(fmt.Sprintf("\tallow_conflicts: %v\n", cfg.Resolution.AllowConflicts))
	sb.WriteString("}\n")

	// Thresholds
	sb.WriteString("\nthresholds: {\n")
	sb.WriteString(fmt.Sprintf("\tmax_modules: %d\n", cfg.Thresholds.MaxModules))
	sb.WriteString(fmt.Sprintf("\tmax_complexity: %d\n", cfg.Thresholds.MaxComplexity))
	sb.WriteString(fmt.Sprintf("\tmax_depth: %d\n", cfg.Thresholds.MaxDepth))
	sb.WriteString(fmt.Sprintf("\tmodule_weight: %d\n", cfg.Thresholds.ModuleWeight))
	sb.WriteString(fmt.Sprintf("\tdependency_weight: %d\n", cfg.Thresholds.DependencyWeight))
	sb.WriteString(fmt.Sprintf("\tconflict_weight: %d\n", cfg.Thresholds.ConflictWeight))
	sb.WriteString("}\n")

	// Lifecycle paths
	sb.WriteString("\nlifecycle: {\n")
	if cfg.Lifecycle.InstallRoot != "" {
		sb.WriteString(fmt.Sprintf("\tinstall_root: %q\n", cfg.Lifecycle.InstallRoot))
	}
	if cfg.Lifecycle.BackupRoot != "" {
		sb.WriteString(fmt.Sprintf("\tbackup_root: %q\n", cfg.Lifecycle.BackupRoot))
	}
	if cfg.Lifecycle.JournalPath != "" {
		sb.WriteString(fmt.Sprintf("\tjournal_path: %q\n", cfg.Lifecycle.JournalPath))
	}
	sb.WriteString("}\n")

	// Watch config
	sb.WriteString("\nwatch: {\n")
	sb.WriteString(fmt.Sprintf("\treload_strategy: %q\n", cfg.Watch.ReloadStrategy))
	if len(cfg.Watch.IgnorePatterns) > 0 {
		sb.WriteString("\tignore_patterns: [\n")
		for _, pattern := range cfg.Watch.IgnorePatterns {
			sb.WriteString(fmt.Sprintf("\t\t%q,\n", pattern))
		}
		sb.WriteString("\t]\n")
	}
	sb.WriteString("}\n")

	// UI config
	sb.WriteString("\nui: {\n")
	sb.WriteString(fmt.Sprintf("\tcolor_scheme: %q\n", cfg.UI.ColorScheme))
	sb.WriteString(fmt.Sprintf("\tverbose: %v\n", cfg.UI.Verbose))
	sb.WriteString("}\n")

	return sb.String()
}
