// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// StrategyLatest selects the newest version of every module.
	StrategyLatest Strategy = "latest"
	// StrategyStable selects the newest non-prerelease version.
	StrategyStable Strategy = "stable"
	// StrategyMinimal selects the oldest version satisfying all constraints.
	StrategyMinimal Strategy = "minimal"
	// StrategyCompatible selects the highest-scoring version by compatibility.
	StrategyCompatible Strategy = "compatible"
	// StrategyPerformance is an alias for stable selection.
	StrategyPerformance Strategy = "performance"

	// ReloadSimple re-resolves only the changed module.
	ReloadSimple ReloadStrategy = "simple"
	// ReloadCascade re-resolves the changed module and its dependents.
	ReloadCascade ReloadStrategy = "cascade"
	// ReloadSmart diffs the changed manifest and picks the cheapest reload.
	ReloadSmart ReloadStrategy = "smart"

	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"

	// moduleSuffix is the filesystem suffix for dnamod directories.
	// Defined locally to avoid coupling config to pkg/dnamod.
	moduleSuffix = ".dnamod"
)

var (
	// ErrInvalidStrategy is returned when a Strategy value is not recognized.
	ErrInvalidStrategy = errors.New("invalid resolution strategy")
	// ErrInvalidReloadStrategy is returned when a ReloadStrategy value is not recognized.
	ErrInvalidReloadStrategy = errors.New("invalid reload strategy")
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidModuleIncludePath is the sentinel error wrapped by InvalidModuleIncludePathError.
	ErrInvalidModuleIncludePath = errors.New("invalid module include path")
	// ErrInvalidModuleAlias is returned when a ModuleAlias value is whitespace-only.
	ErrInvalidModuleAlias = errors.New("invalid module alias")
	// ErrInvalidIncludeEntry is the sentinel error wrapped by InvalidIncludeEntryError.
	ErrInvalidIncludeEntry = errors.New("invalid include entry")
	// ErrInvalidThresholds is the sentinel error wrapped by InvalidThresholdsError.
	ErrInvalidThresholds = errors.New("invalid thresholds")
	// ErrInvalidWatchConfig is the sentinel error wrapped by InvalidWatchConfigError.
	ErrInvalidWatchConfig = errors.New("invalid watch config")
	// ErrInvalidUIConfig is the sentinel error wrapped by InvalidUIConfigError.
	ErrInvalidUIConfig = errors.New("invalid UI config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// Strategy selects how the resolver picks module versions.
	Strategy string

	// InvalidStrategyError is returned when a Strategy value is not recognized.
	// It wraps ErrInvalidStrategy for errors.Is() compatibility.
	InvalidStrategyError struct {
		Value Strategy
	}

	// ReloadStrategy selects how the watcher reacts to module changes.
	ReloadStrategy string

	// InvalidReloadStrategyError is returned when a ReloadStrategy value is not
	// recognized. It wraps ErrInvalidReloadStrategy for errors.Is() compatibility.
	InvalidReloadStrategyError struct {
		Value ReloadStrategy
	}

	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	// It wraps ErrInvalidColorScheme for errors.Is() compatibility.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// ModuleIncludePath represents a filesystem path to a *.dnamod directory
	// or to a directory containing them. A valid path must be non-empty and
	// not whitespace-only.
	ModuleIncludePath string

	// InvalidModuleIncludePathError is returned when a ModuleIncludePath value is
	// empty or whitespace-only. It wraps ErrInvalidModuleIncludePath for errors.Is().
	InvalidModuleIncludePathError struct {
		Value ModuleIncludePath
	}

	// ModuleAlias optionally overrides a module identifier for collision
	// disambiguation. The zero value ("") is valid and means "no alias".
	ModuleAlias string

	// InvalidModuleAliasError is returned when a ModuleAlias value is
	// non-empty but whitespace-only.
	InvalidModuleAliasError struct {
		Value ModuleAlias
	}

	// InvalidIncludeEntryError is returned when an IncludeEntry has invalid fields.
	// It wraps ErrInvalidIncludeEntry for errors.Is() compatibility and collects
	// field-level validation errors from Path and Alias.
	InvalidIncludeEntryError struct {
		FieldErrors []error
	}

	// InvalidThresholdsError is returned when a ThresholdsConfig has invalid fields.
	// It wraps ErrInvalidThresholds for errors.Is() compatibility.
	InvalidThresholdsError struct {
		FieldErrors []error
	}

	// InvalidWatchConfigError is returned when a WatchConfig has invalid fields.
	// It wraps ErrInvalidWatchConfig for errors.Is() compatibility.
	InvalidWatchConfigError struct {
		FieldErrors []error
	}

	// InvalidUIConfigError is returned when a UIConfig has invalid fields.
	// It wraps ErrInvalidUIConfig for errors.Is() compatibility.
	InvalidUIConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// IncludeEntry specifies a module source to include in discovery.
	IncludeEntry struct {
		// Path is the filesystem path to a *.dnamod directory or a
		// directory that contains them.
		Path ModuleIncludePath `json:"path" mapstructure:"path"`
		// Alias optionally overrides the module identifier for collision disambiguation.
		Alias ModuleAlias `json:"alias,omitempty" mapstructure:"alias"`
	}

	// ResolutionConfig configures dependency resolution defaults.
	ResolutionConfig struct {
		// Strategy is the default version-selection strategy.
		Strategy Strategy `json:"strategy" mapstructure:"strategy"`
		// AllowExperimental permits experimental modules as candidates.
		AllowExperimental bool `json:"allow_experimental" mapstructure:"allow_experimental"`
		// AllowDeprecated permits deprecated modules as candidates.
		AllowDeprecated bool `json:"allow_deprecated" mapstructure:"allow_deprecated"`
		// AllowConflicts downgrades warning-severity declared conflicts
		// from errors to warnings.
		AllowConflicts bool `json:"allow_conflicts" mapstructure:"allow_conflicts"`
	}

	// ThresholdsConfig bounds composition cost. Zero values fall back to
	// built-in defaults. Defined with plain ints to avoid coupling config
	// to pkg/composer; the CLI converts at the boundary.
	ThresholdsConfig struct {
		// MaxModules caps modules per composition.
		MaxModules int `json:"max_modules" mapstructure:"max_modules"`
		// MaxComplexity caps the weighted composition complexity score.
		MaxComplexity int `json:"max_complexity" mapstructure:"max_complexity"`
		// MaxDepth caps dependency graph depth.
		MaxDepth int `json:"max_depth" mapstructure:"max_depth"`
		// ModuleWeight, DependencyWeight, and ConflictWeight tune the
		// complexity formula.
		ModuleWeight     int `json:"module_weight" mapstructure:"module_weight"`
		DependencyWeight int `json:"dependency_weight" mapstructure:"dependency_weight"`
		ConflictWeight   int `json:"conflict_weight" mapstructure:"conflict_weight"`
	}

	// LifecycleConfig locates lifecycle state on disk. Empty paths fall
	// back to directories under the user config dir.
	LifecycleConfig struct {
		// InstallRoot is where module trees are materialized.
		InstallRoot string `json:"install_root" mapstructure:"install_root"`
		// BackupRoot is where rollback-point backups are kept.
		BackupRoot string `json:"backup_root" mapstructure:"backup_root"`
		// JournalPath is the operation journal file.
		JournalPath string `json:"journal_path" mapstructure:"journal_path"`
	}

	// WatchConfig configures the hot-reload watcher.
	WatchConfig struct {
		// ReloadStrategy selects how changes propagate.
		ReloadStrategy ReloadStrategy `json:"reload_strategy" mapstructure:"reload_strategy"`
		// DebounceMs maps a change category (module, config, dependency,
		// template) to its debounce window in milliseconds. Missing
		// categories use built-in defaults.
		DebounceMs map[string]int `json:"debounce_ms" mapstructure:"debounce_ms"`
		// IgnorePatterns are doublestar globs excluded from watching.
		IgnorePatterns []string `json:"ignore_patterns" mapstructure:"ignore_patterns"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// ColorScheme sets the color scheme
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		// Verbose enables verbose output
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}

	// Config holds the application configuration.
	Config struct {
		// Includes specifies module sources to include in discovery.
		Includes []IncludeEntry `json:"includes" mapstructure:"includes"`
		// Resolution configures dependency resolution defaults.
		Resolution ResolutionConfig `json:"resolution" mapstructure:"resolution"`
		// Thresholds bounds composition cost.
		Thresholds ThresholdsConfig `json:"thresholds" mapstructure:"thresholds"`
		// Lifecycle locates lifecycle state on disk.
		Lifecycle LifecycleConfig `json:"lifecycle" mapstructure:"lifecycle"`
		// Watch configures the hot-reload watcher.
		Watch WatchConfig `json:"watch" mapstructure:"watch"`
		// UI configures the user interface.
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}
)

// IsModule reports whether this entry points directly to a module directory (.dnamod).
func (e IncludeEntry) IsModule() bool {
	return strings.HasSuffix(string(e.Path), moduleSuffix)
}

// IsValid returns whether the IncludeEntry has valid fields.
// It delegates to Path.IsValid() unconditionally and to Alias.IsValid()
// only when non-empty (the zero-value alias is always valid).
func (e IncludeEntry) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := e.Path.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if e.Alias != "" {
		if valid, fieldErrs := e.Alias.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	if len(errs) > 0 {
		return false, []error{&InvalidIncludeEntryError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidIncludeEntryError.
func (e *InvalidIncludeEntryError) Error() string {
	return fmt.Sprintf("invalid include entry: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidIncludeEntry for errors.Is() compatibility.
func (e *InvalidIncludeEntryError) Unwrap() error { return ErrInvalidIncludeEntry }

// IsValid returns whether the ResolutionConfig has valid fields.
func (c ResolutionConfig) IsValid() (bool, []error) {
	return c.Strategy.IsValid()
}

// IsValid returns whether the ThresholdsConfig has valid fields.
// Every bound must be non-negative; zero means "use the built-in default".
func (c ThresholdsConfig) IsValid() (bool, []error) {
	var errs []error
	for _, f := range []struct {
		name  string
		value int
	}{
		{"max_modules", c.MaxModules},
		{"max_complexity", c.MaxComplexity},
		{"max_depth", c.MaxDepth},
		{"module_weight", c.ModuleWeight},
		{"dependency_weight", c.DependencyWeight},
		{"conflict_weight", c.ConflictWeight},
	} {
		if f.value < 0 {
			errs = append(errs, fmt.Errorf("thresholds.%s: must be non-negative, got %d", f.name, f.value))
		}
	}
	if len(errs) > 0 {
		return false, []error{&InvalidThresholdsError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidThresholdsError.
func (e *InvalidThresholdsError) Error() string {
	return fmt.Sprintf("invalid thresholds: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidThresholds for errors.Is() compatibility.
func (e *InvalidThresholdsError) Unwrap() error { return ErrInvalidThresholds }

// IsValid returns whether the WatchConfig has valid fields.
// Debounce windows must be non-negative; the reload strategy must be known.
func (c WatchConfig) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.ReloadStrategy.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	for category, ms := range c.DebounceMs {
		if ms < 0 {
			errs = append(errs, fmt.Errorf("watch.debounce_ms[%s]: must be non-negative, got %d", category, ms))
		}
	}
	if len(errs) > 0 {
		return false, []error{&InvalidWatchConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidWatchConfigError.
func (e *InvalidWatchConfigError) Error() string {
	return fmt.Sprintf("invalid watch config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidWatchConfig for errors.Is() compatibility.
func (e *InvalidWatchConfigError) Unwrap() error { return ErrInvalidWatchConfig }

// IsValid returns whether the UIConfig has valid fields.
// It delegates to ColorScheme.IsValid(); bool fields need no validation.
func (c UIConfig) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.ColorScheme.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidUIConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidUIConfigError.
func (e *InvalidUIConfigError) Error() string {
	return fmt.Sprintf("invalid UI config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidUIConfig for errors.Is() compatibility.
func (e *InvalidUIConfigError) Unwrap() error { return ErrInvalidUIConfig }

// IsValid returns whether the Config has valid fields.
// It delegates to each Includes entry's IsValid() and to the IsValid()
// of every sub-component. Lifecycle has only free-form paths and needs
// no validation here.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	for _, entry := range c.Includes {
		if valid, fieldErrs := entry.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	if valid, fieldErrs := c.Resolution.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Thresholds.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Watch.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.UI.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// String returns the string representation of the ModuleIncludePath.
func (p ModuleIncludePath) String() string { return string(p) }

// IsValid returns whether the ModuleIncludePath is valid.
// A valid path must be non-empty and not whitespace-only.
func (p ModuleIncludePath) IsValid() (bool, []error) {
	if strings.TrimSpace(string(p)) == "" {
		return false, []error{&InvalidModuleIncludePathError{Value: p}}
	}
	return true, nil
}

// Error implements the error interface for InvalidModuleIncludePathError.
func (e *InvalidModuleIncludePathError) Error() string {
	return fmt.Sprintf("invalid module include path %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidModuleIncludePath for errors.Is() compatibility.
func (e *InvalidModuleIncludePathError) Unwrap() error { return ErrInvalidModuleIncludePath }

// String returns the string representation of the ModuleAlias.
func (a ModuleAlias) String() string { return string(a) }

// IsValid returns whether the ModuleAlias is valid.
// The zero value ("") is valid (means "no alias"). Non-zero values must
// not be whitespace-only.
func (a ModuleAlias) IsValid() (bool, []error) {
	if a == "" {
		return true, nil
	}
	if strings.TrimSpace(string(a)) == "" {
		return false, []error{&InvalidModuleAliasError{Value: a}}
	}
	return true, nil
}

// Error implements the error interface for InvalidModuleAliasError.
func (e *InvalidModuleAliasError) Error() string {
	return fmt.Sprintf("invalid module alias %q: non-empty value must not be whitespace-only", e.Value)
}

// Unwrap returns ErrInvalidModuleAlias for errors.Is() compatibility.
func (e *InvalidModuleAliasError) Unwrap() error { return ErrInvalidModuleAlias }

// Error implements the error interface for InvalidStrategyError.
func (e *InvalidStrategyError) Error() string {
	return fmt.Sprintf("invalid resolution strategy %q (valid: latest, stable, minimal, compatible, performance)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidStrategyError) Unwrap() error {
	return ErrInvalidStrategy
}

// String returns the string representation of the Strategy.
func (s Strategy) String() string { return string(s) }

// IsValid returns whether the Strategy is one of the defined strategies,
// and a list of validation errors if it is not.
func (s Strategy) IsValid() (bool, []error) {
	switch s {
	case StrategyLatest, StrategyStable, StrategyMinimal, StrategyCompatible, StrategyPerformance:
		return true, nil
	default:
		return false, []error{&InvalidStrategyError{Value: s}}
	}
}

// Error implements the error interface for InvalidReloadStrategyError.
func (e *InvalidReloadStrategyError) Error() string {
	return fmt.Sprintf("invalid reload strategy %q (valid: simple, cascade, smart)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidReloadStrategyError) Unwrap() error {
	return ErrInvalidReloadStrategy
}

// String returns the string representation of the ReloadStrategy.
func (s ReloadStrategy) String() string { return string(s) }

// IsValid returns whether the ReloadStrategy is one of the defined
// strategies, and a list of validation errors if it is not.
func (s ReloadStrategy) IsValid() (bool, []error) {
	switch s {
	case ReloadSimple, ReloadCascade, ReloadSmart:
		return true, nil
	default:
		return false, []error{&InvalidReloadStrategyError{Value: s}}
	}
}

// Error implements the error interface for InvalidColorSchemeError.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error {
	return ErrInvalidColorScheme
}

// String returns the string representation of the ColorScheme.
func (cs ColorScheme) String() string { return string(cs) }

// IsValid returns whether the ColorScheme is one of the defined color schemes,
// and a list of validation errors if it is not.
func (cs ColorScheme) IsValid() (bool, []error) {
	switch cs {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidColorSchemeError{Value: cs}}
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Includes: []IncludeEntry{},
		Resolution: ResolutionConfig{
			Strategy:          StrategyStable,
			AllowExperimental: false,
			AllowDeprecated:   false,
			AllowConflicts:    false,
		},
		Thresholds: ThresholdsConfig{
			MaxModules:       25,
			MaxComplexity:    500,
			MaxDepth:         10,
			ModuleWeight:     10,
			DependencyWeight: 5,
			ConflictWeight:   3,
		},
		Lifecycle: LifecycleConfig{
			// Empty paths resolve under the user config dir at load time.
			InstallRoot: "",
			BackupRoot:  "",
			JournalPath: "",
		},
		Watch: WatchConfig{
			ReloadStrategy: ReloadCascade,
			DebounceMs:     map[string]int{},
			IgnorePatterns: []string{"**/.git/**", "**/node_modules/**", "**/*.tmp"},
		},
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
			Verbose:     false,
		},
	}
}
