// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"dnaforge/internal/issue"
	"dnaforge/internal/testutil"
	"dnaforge/pkg/platform"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Resolution.Strategy != StrategyStable {
		t.Errorf("default strategy = %s, want stable", cfg.Resolution.Strategy)
	}
	if cfg.Resolution.AllowExperimental || cfg.Resolution.AllowDeprecated || cfg.Resolution.AllowConflicts {
		t.Error("resolution policy flags should default to false")
	}
	if len(cfg.Includes) != 0 {
		t.Errorf("default includes = %v, want empty", cfg.Includes)
	}
	if cfg.Thresholds.MaxModules != 25 || cfg.Thresholds.MaxComplexity != 500 {
		t.Errorf("default thresholds = %+v", cfg.Thresholds)
	}
	if cfg.Thresholds.ModuleWeight != 10 || cfg.Thresholds.DependencyWeight != 5 || cfg.Thresholds.ConflictWeight != 3 {
		t.Errorf("default complexity weights = %+v", cfg.Thresholds)
	}
	if cfg.Watch.ReloadStrategy != ReloadCascade {
		t.Errorf("default reload strategy = %s, want cascade", cfg.Watch.ReloadStrategy)
	}
	if len(cfg.Watch.IgnorePatterns) == 0 {
		t.Error("default ignore patterns should not be empty")
	}
	if cfg.UI.ColorScheme != ColorSchemeAuto {
		t.Errorf("default color scheme = %s, want auto", cfg.UI.ColorScheme)
	}

	if valid, errs := cfg.IsValid(); !valid {
		t.Errorf("DefaultConfig() is invalid: %v", errs)
	}
}

func TestConfigDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG semantics are linux-only")
	}

	restoreXDG := testutil.MustSetenv(t, "XDG_CONFIG_HOME", "/tmp/test-xdg-config")
	defer restoreXDG()

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() returned error: %v", err)
	}
	expected := filepath.Join("/tmp/test-xdg-config", AppName)
	if dir != expected {
		t.Errorf("ConfigDir() = %s, want %s", dir, expected)
	}

	restoreXDG()
	testutil.MustUnsetenv(t, "XDG_CONFIG_HOME")
	dir, err = ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() returned error: %v", err)
	}
	home, _ := os.UserHomeDir()
	expected = filepath.Join(home, ".config", AppName)
	if dir != expected {
		t.Errorf("ConfigDir() = %s, want %s", dir, expected)
	}
}

func TestConfigDirOverride(t *testing.T) {
	t.Cleanup(Reset)

	SetConfigDirOverride("/custom/config/dir")
	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() returned error: %v", err)
	}
	if dir != "/custom/config/dir" {
		t.Errorf("ConfigDir() = %s, want override", dir)
	}
}

func TestSandboxConfigBase(t *testing.T) {
	getenv := func(key string) string {
		if key == "SNAP_USER_COMMON" {
			return "/snap/dnaforge/common"
		}
		return ""
	}

	tests := []struct {
		name     string
		sandbox  platform.SandboxType
		getenv   func(string) string
		expected string
	}{
		{name: "no sandbox", sandbox: platform.SandboxNone, getenv: getenv, expected: ""},
		// Flatpak rewrites XDG_CONFIG_HOME itself, so no explicit base.
		{name: "flatpak", sandbox: platform.SandboxFlatpak, getenv: getenv, expected: ""},
		{name: "snap", sandbox: platform.SandboxSnap, getenv: getenv, expected: "/snap/dnaforge/common"},
		{
			name:     "snap without env",
			sandbox:  platform.SandboxSnap,
			getenv:   func(string) string { return "" },
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := sandboxConfigBase(tt.sandbox, tt.getenv)
			if base != tt.expected {
				t.Errorf("sandboxConfigBase = %q, want %q", base, tt.expected)
			}
		})
	}
}

func TestModulesDir(t *testing.T) {
	home := t.TempDir()
	restore := testutil.SetHomeDir(t, home)
	defer restore()

	dir, err := ModulesDir()
	if err != nil {
		t.Fatalf("ModulesDir() returned error: %v", err)
	}
	expected := filepath.Join(home, ".dnaforge", "modules")
	if dir != expected {
		t.Errorf("ModulesDir() = %s, want %s", dir, expected)
	}
}

func TestStateDir(t *testing.T) {
	home := t.TempDir()
	restore := testutil.SetHomeDir(t, home)
	defer restore()

	dir, err := StateDir()
	if err != nil {
		t.Fatalf("StateDir() returned error: %v", err)
	}
	expected := filepath.Join(home, ".dnaforge", "state")
	if dir != expected {
		t.Errorf("StateDir() = %s, want %s", dir, expected)
	}
}

// writeConfig writes content as config.cue into a fresh temp config dir
// and returns that dir.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	cfg, resolved, err := loadWithOptions(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("loadWithOptions() error = %v", err)
	}
	if resolved != "" {
		t.Errorf("resolved path = %q, want empty for defaults", resolved)
	}
	if cfg.Resolution.Strategy != StrategyStable {
		t.Errorf("strategy = %s, want default stable", cfg.Resolution.Strategy)
	}
}

func TestLoadFromCUEFile(t *testing.T) {
	dir := writeConfig(t, `
resolution: {
	strategy: "compatible"
	allow_experimental: true
}
thresholds: {
	max_modules: 10
}
watch: {
	reload_strategy: "smart"
}
includes: [
	{path: "/modules/auth.dnamod"},
]
`)

	cfg, resolved, err := loadWithOptions(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("loadWithOptions() error = %v", err)
	}
	if resolved == "" {
		t.Error("resolved path empty, want config.cue path")
	}
	if cfg.Resolution.Strategy != StrategyCompatible {
		t.Errorf("strategy = %s, want compatible", cfg.Resolution.Strategy)
	}
	if !cfg.Resolution.AllowExperimental {
		t.Error("allow_experimental not applied")
	}
	if cfg.Thresholds.MaxModules != 10 {
		t.Errorf("max_modules = %d, want 10", cfg.Thresholds.MaxModules)
	}
	// Unset fields keep defaults.
	if cfg.Thresholds.MaxComplexity != 500 {
		t.Errorf("max_complexity = %d, want default 500", cfg.Thresholds.MaxComplexity)
	}
	if cfg.Watch.ReloadStrategy != ReloadSmart {
		t.Errorf("reload_strategy = %s, want smart", cfg.Watch.ReloadStrategy)
	}
	if len(cfg.Includes) != 1 || cfg.Includes[0].Path != "/modules/auth.dnamod" {
		t.Errorf("includes = %v", cfg.Includes)
	}
}

func TestLoadRejectsSchemaViolation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown strategy", `resolution: {strategy: "fastest"}`},
		{"negative threshold", `thresholds: {max_modules: -1}`},
		{"bad reload strategy", `watch: {reload_strategy: "eager"}`},
		{"empty include path", `includes: [{path: ""}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfig(t, tt.content)
			_, _, err := loadWithOptions(context.Background(), LoadOptions{ConfigDirPath: dir})
			if err == nil {
				t.Fatal("loadWithOptions() succeeded, want schema error")
			}
		})
	}
}

func TestLoadRejectsDuplicateIncludes(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			"duplicate path",
			`includes: [{path: "/m/auth.dnamod"}, {path: "/m/auth.dnamod", alias: "a2"}]`,
			"duplicate path",
		},
		{
			"duplicate alias",
			`includes: [{path: "/a/auth.dnamod", alias: "x"}, {path: "/b/db.dnamod", alias: "x"}]`,
			"duplicate alias",
		},
		{
			"short name collision without aliases",
			`includes: [{path: "/a/auth.dnamod"}, {path: "/b/auth.dnamod"}]`,
			"short name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfig(t, tt.content)
			_, _, err := loadWithOptions(context.Background(), LoadOptions{ConfigDirPath: dir})
			if err == nil {
				t.Fatal("loadWithOptions() succeeded, want includes error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoadShortNameCollisionWithAliases(t *testing.T) {
	dir := writeConfig(t, `includes: [{path: "/a/auth.dnamod", alias: "a1"}, {path: "/b/auth.dnamod", alias: "a2"}]`)

	cfg, _, err := loadWithOptions(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("loadWithOptions() error = %v", err)
	}
	if len(cfg.Includes) != 2 {
		t.Errorf("includes = %d entries, want 2", len(cfg.Includes))
	}
}

func TestLoadExplicitFileMissing(t *testing.T) {
	_, _, err := loadWithOptions(context.Background(), LoadOptions{
		ConfigFilePath: filepath.Join(t.TempDir(), "nope.cue"),
	})
	if err == nil {
		t.Fatal("loadWithOptions() succeeded for a missing explicit file")
	}
	var actionable *issue.ActionableError
	if !errors.As(err, &actionable) {
		t.Errorf("error type = %T, want *issue.ActionableError", err)
	}
}

func TestLoadCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := loadWithOptions(ctx, LoadOptions{ConfigDirPath: t.TempDir()})
	if err == nil {
		t.Fatal("loadWithOptions() succeeded with canceled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestGenerateCUERoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolution.Strategy = StrategyMinimal
	cfg.Thresholds.MaxModules = 7
	cfg.Includes = []IncludeEntry{{Path: "/m/auth.dnamod", Alias: "auth"}}
	cfg.Lifecycle.JournalPath = "/state/journal.toml"

	dir := writeConfig(t, GenerateCUE(cfg))

	loaded, _, err := loadWithOptions(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("reload of generated config failed: %v", err)
	}
	if loaded.Resolution.Strategy != StrategyMinimal {
		t.Errorf("strategy = %s, want minimal", loaded.Resolution.Strategy)
	}
	if loaded.Thresholds.MaxModules != 7 {
		t.Errorf("max_modules = %d, want 7", loaded.Thresholds.MaxModules)
	}
	if len(loaded.Includes) != 1 || loaded.Includes[0].Alias != "auth" {
		t.Errorf("includes = %v", loaded.Includes)
	}
	if loaded.Lifecycle.JournalPath != "/state/journal.toml" {
		t.Errorf("journal_path = %q", loaded.Lifecycle.JournalPath)
	}
}
