// SPDX-License-Identifier: MPL-2.0

package dnamod

import (
	"testing"

	"dnaforge/pkg/semver"
)

func sampleModule() *Module {
	return &Module{
		ID:       "auth",
		Version:  "1.2.0",
		Category: "auth",
		Dependencies: []Dependency{
			{ModuleID: "base", Range: "^1.0.0"},
			{ModuleID: "telemetry", Range: "^2.0.0", Optional: true},
		},
		Conflicts: []Conflict{
			{ModuleID: "legacy-auth", Reason: "duplicate session handling", Severity: SeverityError},
		},
		Frameworks: []FrameworkSupport{
			{Framework: "flutter", Supported: true, Level: CompatFull},
			{Framework: "nextjs", Supported: true, Level: CompatPartial, Limitations: []string{"no SSR session refresh"}},
			{Framework: "tauri", Supported: false, Level: CompatNone},
		},
	}
}

func TestModuleKey(t *testing.T) {
	m := sampleModule()
	if got := m.Key(); got != "auth@1.2.0" {
		t.Errorf("Key() = %q, want auth@1.2.0", got)
	}

	id, version := ParseKey("auth@1.2.0")
	if id != "auth" || version != "1.2.0" {
		t.Errorf("ParseKey = %q, %q", id, version)
	}
	id, version = ParseKey("base")
	if id != "base" || version != "" {
		t.Errorf("ParseKey(base) = %q, %q", id, version)
	}
}

func TestFrameworkSupport(t *testing.T) {
	m := sampleModule()

	tests := []struct {
		framework string
		supported bool
		level     CompatLevel
	}{
		{framework: "flutter", supported: true, level: CompatFull},
		{framework: "nextjs", supported: true, level: CompatPartial},
		{framework: "tauri", supported: false, level: CompatNone},
		{framework: "unknown", supported: false, level: CompatNone},
	}

	for _, tt := range tests {
		t.Run(tt.framework, func(t *testing.T) {
			if got := m.SupportsFramework(tt.framework); got != tt.supported {
				t.Errorf("SupportsFramework(%s) = %v, want %v", tt.framework, got, tt.supported)
			}
			if got := m.CompatWith(tt.framework); got != tt.level {
				t.Errorf("CompatWith(%s) = %s, want %s", tt.framework, got, tt.level)
			}
		})
	}
}

func TestConflictAndDependencyLookup(t *testing.T) {
	m := sampleModule()

	if c := m.ConflictWith("legacy-auth"); c == nil || c.Severity != SeverityError {
		t.Errorf("ConflictWith(legacy-auth) = %+v", c)
	}
	if c := m.ConflictWith("base"); c != nil {
		t.Errorf("ConflictWith(base) = %+v, want nil", c)
	}
	if !m.DependsOn("base") || !m.DependsOn("telemetry") {
		t.Error("DependsOn missed declared dependencies")
	}
	if m.DependsOn("nope") {
		t.Error("DependsOn(nope) = true")
	}
}

func TestMigrationPath(t *testing.T) {
	m := &Module{
		ID:      "storage",
		Version: "3.0.0",
		Migrations: []MigrationStep{
			{From: "^1.0.0", To: "2.0.0", Breaking: true, Description: "schema rewrite"},
			{From: "^2.0.0", To: "3.0.0", Description: "index rebuild"},
		},
	}

	steps, breaking := m.MigrationPath("1.2.0", "3.0.0")
	if len(steps) != 2 {
		t.Fatalf("MigrationPath(1.2.0 -> 3.0.0) returned %d steps, want 2", len(steps))
	}
	if !breaking {
		t.Error("breaking = false, want true (first step is breaking)")
	}
	if steps[0].To != "2.0.0" || steps[1].To != "3.0.0" {
		t.Errorf("step order = %v", steps)
	}

	steps, breaking = m.MigrationPath("2.1.0", "3.0.0")
	if len(steps) != 1 || breaking {
		t.Errorf("MigrationPath(2.1.0 -> 3.0.0) = %v steps, breaking=%v", len(steps), breaking)
	}

	steps, _ = m.MigrationPath("3.0.0", "3.0.0")
	if len(steps) != 0 {
		t.Errorf("no-op migration returned %d steps", len(steps))
	}
}

func TestConfigContractCheck(t *testing.T) {
	contract := ConfigContract{
		Schema:   map[string]string{"provider": "string", "timeout": "int", "mfa": "bool"},
		Defaults: map[string]any{"provider": "oauth", "timeout": 30},
		Required: []string{"provider"},
		Validate: func(config map[string]any) []string {
			if config["provider"] == "legacy" {
				return []string{"provider \"legacy\" is no longer supported"}
			}
			return nil
		},
	}

	tests := []struct {
		name     string
		config   map[string]any
		problems int
	}{
		{name: "valid", config: map[string]any{"provider": "oauth", "timeout": 10}, problems: 0},
		{name: "missing required", config: map[string]any{"timeout": 10}, problems: 1},
		{name: "wrong type", config: map[string]any{"provider": "oauth", "timeout": "soon"}, problems: 1},
		{name: "custom validator", config: map[string]any{"provider": "legacy"}, problems: 1},
		{name: "undeclared fields pass through", config: map[string]any{"provider": "oauth", "extra": 1}, problems: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := contract.CheckConfig(tt.config)
			if len(problems) != tt.problems {
				t.Errorf("CheckConfig = %v, want %d problems", problems, tt.problems)
			}
		})
	}
}

func TestMergedConfigPrecedence(t *testing.T) {
	contract := ConfigContract{
		Defaults: map[string]any{"provider": "oauth", "timeout": 30, "mfa": false},
	}

	merged := contract.MergedConfig(
		map[string]any{"timeout": 60},            // global
		map[string]any{"timeout": 90, "mfa": true}, // per-module override
	)

	if merged["provider"] != "oauth" {
		t.Errorf("provider = %v, want default", merged["provider"])
	}
	if merged["timeout"] != 90 {
		t.Errorf("timeout = %v, want override 90", merged["timeout"])
	}
	if merged["mfa"] != true {
		t.Errorf("mfa = %v, want true", merged["mfa"])
	}
}

func TestLint(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *Module)
		issues int
	}{
		{name: "clean module", mutate: func(*Module) {}, issues: 0},
		{
			name:   "self dependency",
			mutate: func(m *Module) { m.Dependencies[0].ModuleID = m.ID },
			issues: 1,
		},
		{
			name:   "bad range",
			mutate: func(m *Module) { m.Dependencies[0].Range = "@@" },
			issues: 1,
		},
		{
			name:   "bad version",
			mutate: func(m *Module) { m.Version = "not-semver" },
			issues: 1,
		},
		{
			name: "duplicate dependency",
			mutate: func(m *Module) {
				m.Dependencies = append(m.Dependencies, Dependency{ModuleID: "base", Range: "^1.0.0"})
			},
			issues: 1,
		},
		{
			name: "conflicting dependency",
			mutate: func(m *Module) {
				m.Conflicts = append(m.Conflicts, Conflict{ModuleID: "base", Reason: "x", Severity: SeverityError})
			},
			issues: 1,
		},
		{
			name:   "reserved module id",
			mutate: func(m *Module) { m.ID = "con" },
			issues: 1,
		},
		{
			name: "default for undeclared config field",
			mutate: func(m *Module) {
				m.Config = ConfigContract{
					Schema:   map[string]string{"provider": "string"},
					Defaults: map[string]any{"ghost": 1},
				}
			},
			issues: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleModule()
			tt.mutate(m)
			issues := Lint(m)
			if len(issues) != tt.issues {
				t.Errorf("Lint = %v, want %d issues", issues, tt.issues)
			}
		})
	}
}

func TestVersionTypeRoundTrip(t *testing.T) {
	v := semver.SemVer("1.2.0")
	if ok, _ := v.IsValid(); !ok {
		t.Error("valid semver rejected")
	}
}
