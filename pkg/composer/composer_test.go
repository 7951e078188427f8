// SPDX-License-Identifier: MPL-2.0

package composer

import (
	"strings"
	"testing"

	"dnaforge/pkg/dnamod"
	"dnaforge/pkg/registry"
	"dnaforge/pkg/resolver"
	"dnaforge/pkg/semver"
)

func mod(id string, version semver.SemVer, opts ...func(*dnamod.Module)) *dnamod.Module {
	m := &dnamod.Module{
		ID:       id,
		Version:  version,
		Name:     id,
		Category: "misc",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func withDep(dep string, rng semver.Range) func(*dnamod.Module) {
	return func(m *dnamod.Module) {
		m.Dependencies = append(m.Dependencies, dnamod.Dependency{ModuleID: dep, Range: rng})
	}
}

func withConflict(other string, severity dnamod.Severity) func(*dnamod.Module) {
	return func(m *dnamod.Module) {
		m.Conflicts = append(m.Conflicts, dnamod.Conflict{ModuleID: other, Reason: "declared", Severity: severity})
	}
}

func withSupport(framework string, level dnamod.CompatLevel) func(*dnamod.Module) {
	return func(m *dnamod.Module) {
		m.Frameworks = append(m.Frameworks, dnamod.FrameworkSupport{
			Framework: framework,
			Supported: true,
			Level:     level,
		})
	}
}

func newEngine(t *testing.T, opts Options, mods ...*dnamod.Module) *Engine {
	t.Helper()
	reg := registry.New(nil)
	for _, m := range mods {
		if err := reg.Register(m); err != nil {
			t.Fatalf("Register(%s) error = %v", m.ID, err)
		}
	}
	return New(reg, resolver.New(reg, nil), nil, opts)
}

func TestComposeEmpty(t *testing.T) {
	e := newEngine(t, DefaultOptions())

	res := e.Compose(Composition{Name: "empty"})
	if !res.Valid {
		t.Fatalf("Valid = false, errors = %v", res.Errors)
	}
	if len(res.Modules) != 0 {
		t.Errorf("Modules = %v, want empty", res.Modules)
	}
}

func TestComposeModuleNotFound(t *testing.T) {
	e := newEngine(t, DefaultOptions(), mod("auth", "1.0.0"))

	res := e.Compose(Composition{Modules: []string{"auth", "ghost"}})
	if res.Valid {
		t.Fatal("Valid = true, want false for unregistered module")
	}
	if !res.HasError(CodeModuleNotFound) {
		t.Errorf("Errors = %v, want MODULE_NOT_FOUND", res.Errors)
	}
}

func TestComposeResolvesDependencies(t *testing.T) {
	e := newEngine(t, DefaultOptions(),
		mod("base", "1.0.0"),
		mod("auth", "1.0.0", withDep("base", "^1.0.0")),
	)

	res := e.Compose(Composition{Modules: []string{"auth"}})
	if !res.Valid {
		t.Fatalf("Valid = false, errors = %v", res.Errors)
	}
	if len(res.InstallOrder) != 2 || res.InstallOrder[0] != "base" || res.InstallOrder[1] != "auth" {
		t.Errorf("InstallOrder = %v, want [base auth]", res.InstallOrder)
	}
	if len(res.Modules) != 2 || res.Modules[0].ID != "base" {
		t.Errorf("Modules out of install order: %v", res.Modules)
	}
}

func TestComposeDeclaredConflict(t *testing.T) {
	e := newEngine(t, DefaultOptions(),
		mod("a", "1.0.0", withConflict("b", dnamod.SeverityError)),
		mod("b", "1.0.0"),
	)

	res := e.Compose(Composition{Modules: []string{"a", "b"}})
	if res.Valid {
		t.Fatal("Valid = true, want false for conflicting modules")
	}
	var found bool
	for _, err := range res.Errors {
		if strings.Contains(string(err.Code), "CONFLICT") {
			found = true
		}
	}
	if !found {
		t.Errorf("Errors = %v, want a CONFLICT code", res.Errors)
	}
}

func TestComposeWarningConflictReportedOnce(t *testing.T) {
	e := newEngine(t, DefaultOptions(),
		mod("metrics", "1.0.0", withConflict("tracing", dnamod.SeverityWarning)),
		mod("tracing", "1.0.0"),
	)

	res := e.Compose(Composition{Modules: []string{"metrics", "tracing"}})

	mentions := 0
	for _, err := range res.Errors {
		if strings.Contains(err.Message, "metrics") && strings.Contains(err.Message, "tracing") {
			mentions++
		}
	}
	for _, w := range res.Warnings {
		if strings.Contains(w.Message, "metrics") && strings.Contains(w.Message, "tracing") {
			mentions++
		}
	}
	if mentions != 1 {
		t.Errorf("conflict surfaced %d times, want once (errors=%v warnings=%v)",
			mentions, res.Errors, res.Warnings)
	}
}

func TestComposeFrameworkIncompatible(t *testing.T) {
	e := newEngine(t, DefaultOptions(),
		mod("vue-ui", "1.0.0", withSupport("vue", dnamod.CompatFull)),
	)

	res := e.Compose(Composition{Framework: "react", Modules: []string{"vue-ui"}})
	if res.Valid {
		t.Fatal("Valid = true, want false for unsupported framework")
	}
	if !res.HasError(CodeFrameworkIncompatible) && !res.HasError(CodeModuleConflict) {
		t.Errorf("Errors = %v, want framework incompatibility", res.Errors)
	}
}

func TestConfigMergePrecedence(t *testing.T) {
	auth := mod("auth", "1.0.0")
	auth.Config = dnamod.ConfigContract{
		Defaults: map[string]any{"timeout": 30, "provider": "oauth"},
	}
	e := newEngine(t, DefaultOptions(), auth)

	res := e.Compose(Composition{
		Modules:      []string{"auth"},
		GlobalConfig: map[string]any{"timeout": 60},
		ModuleConfig: map[string]map[string]any{
			"auth": {"provider": "saml"},
		},
	})
	if !res.Valid {
		t.Fatalf("Valid = false, errors = %v", res.Errors)
	}

	cfg := res.MergedConfig["auth"]
	if cfg["timeout"] != 60 {
		t.Errorf("timeout = %v, want global override 60", cfg["timeout"])
	}
	if cfg["provider"] != "saml" {
		t.Errorf("provider = %v, want module override saml", cfg["provider"])
	}
}

func TestConfigValidation(t *testing.T) {
	auth := mod("auth", "1.0.0")
	auth.Config = dnamod.ConfigContract{
		Required: []string{"apiKey"},
		Validate: func(cfg map[string]any) []string {
			if cfg["apiKey"] == "forbidden" {
				return []string{"apiKey value is not allowed"}
			}
			return nil
		},
	}
	e := newEngine(t, DefaultOptions(), auth)

	res := e.Compose(Composition{Modules: []string{"auth"}})
	if res.Valid {
		t.Fatal("Valid = true, want false for missing required field")
	}
	if !res.HasError(CodeConfigInvalid) {
		t.Errorf("Errors = %v, want CONFIG_INVALID", res.Errors)
	}

	res = e.Compose(Composition{
		Modules:      []string{"auth"},
		GlobalConfig: map[string]any{"apiKey": "forbidden"},
	})
	if res.Valid {
		t.Fatal("Valid = true, want false for validator rejection")
	}
	var verbatim bool
	for _, err := range res.Errors {
		if err.Code == CodeConfigInvalid && err.Message == "apiKey value is not allowed" {
			verbatim = true
		}
	}
	if !verbatim {
		t.Errorf("Errors = %v, want the validator message verbatim", res.Errors)
	}
}

func TestComplexityAndCountBudgets(t *testing.T) {
	opts := DefaultOptions()
	opts.Thresholds.MaxModules = 1
	opts.Thresholds.MaxComplexity = 15

	e := newEngine(t, opts,
		mod("base", "1.0.0"),
		mod("auth", "1.0.0", withDep("base", "^1.0.0")),
	)

	res := e.Compose(Composition{Modules: []string{"auth"}})
	if res.Valid {
		t.Fatal("Valid = true, want budget failures")
	}
	// Two modules and one dependency edge: 10*2 + 5*1 = 25.
	if res.Metrics.Complexity != 25 {
		t.Errorf("Complexity = %d, want 25", res.Metrics.Complexity)
	}
	if !res.HasError(CodeComplexityExceeded) {
		t.Errorf("Errors = %v, want COMPLEXITY_EXCEEDED", res.Errors)
	}
	if !res.HasError(CodeModuleCountExceeded) {
		t.Errorf("Errors = %v, want MODULE_COUNT_EXCEEDED", res.Errors)
	}
}

type fakeGenerator struct {
	files     []dnamod.GeneratedFile
	gotConfig map[string]any
}

func (g *fakeGenerator) Initialize(dnamod.GenerateContext) error { return nil }
func (g *fakeGenerator) Configure(cfg map[string]any) error {
	g.gotConfig = cfg
	return nil
}
func (g *fakeGenerator) Validate() error                         { return nil }
func (g *fakeGenerator) Generate() ([]dnamod.GeneratedFile, error) { return g.files, nil }

func TestGenerateFiles(t *testing.T) {
	baseGen := &fakeGenerator{files: []dnamod.GeneratedFile{
		{Path: "main.txt", Content: "base", Policy: dnamod.PolicyMerge},
		{Path: "base.txt", Content: "only base"},
	}}
	authGen := &fakeGenerator{files: []dnamod.GeneratedFile{
		{Path: "main.txt", Content: "auth", Policy: dnamod.PolicyMerge},
		{Path: "config.txt", Content: "first", Policy: dnamod.PolicyReplace},
	}}
	uiGen := &fakeGenerator{files: []dnamod.GeneratedFile{
		{Path: "config.txt", Content: "second", Policy: dnamod.PolicyReplace},
	}}

	base := mod("base", "1.0.0")
	base.Generator = baseGen
	auth := mod("auth", "1.0.0", withDep("base", "^1.0.0"))
	auth.Generator = authGen
	auth.Config = dnamod.ConfigContract{Defaults: map[string]any{"provider": "oauth"}}
	ui := mod("ui", "1.0.0", withDep("auth", "^1.0.0"))
	ui.Generator = uiGen

	e := newEngine(t, DefaultOptions(), base, auth, ui)
	res := e.Compose(Composition{Modules: []string{"ui"}})
	if !res.Valid {
		t.Fatalf("Valid = false, errors = %v", res.Errors)
	}

	files, err := e.GenerateFiles(res, dnamod.GenerateContext{Framework: "react"})
	if err != nil {
		t.Fatalf("GenerateFiles() error = %v", err)
	}

	byPath := make(map[string]string, len(files))
	for _, f := range files {
		byPath[f.Path] = f.Content
	}
	if got := byPath["main.txt"]; got != "base\nauth" {
		t.Errorf("merged main.txt = %q, want concatenation in arrival order", got)
	}
	if got := byPath["config.txt"]; got != "second" {
		t.Errorf("config.txt = %q, want last writer", got)
	}
	if got := byPath["base.txt"]; got != "only base" {
		t.Errorf("base.txt = %q, want pass-through", got)
	}
	if authGen.gotConfig["provider"] != "oauth" {
		t.Errorf("generator config = %v, want merged defaults", authGen.gotConfig)
	}
}

func TestGenerateFilesRejectsInvalidResult(t *testing.T) {
	e := newEngine(t, DefaultOptions(), mod("auth", "1.0.0"))

	invalid := e.Compose(Composition{Modules: []string{"ghost"}})
	if _, err := e.GenerateFiles(invalid, dnamod.GenerateContext{}); err == nil {
		t.Error("GenerateFiles() on invalid composition expected error")
	}
}

func TestOptimizeRemovesConflicting(t *testing.T) {
	e := newEngine(t, DefaultOptions(),
		mod("a", "1.0.0", withConflict("b", dnamod.SeverityError)),
		mod("b", "1.0.0"),
		mod("c", "1.0.0"),
	)

	opt := e.Optimize(Composition{Modules: []string{"a", "b", "c"}})
	if len(opt.Suggestions) == 0 {
		t.Fatal("Suggestions empty, want conflict removal")
	}
	if len(opt.Optimized.Modules) >= 3 {
		t.Errorf("Optimized.Modules = %v, want at least one removal", opt.Optimized.Modules)
	}
	if opt.OptimizedComplexity > opt.OriginalComplexity {
		t.Errorf("optimized complexity %d > original %d", opt.OptimizedComplexity, opt.OriginalComplexity)
	}
}

func TestOptimizeFlagsRedundantCategory(t *testing.T) {
	a := mod("pg", "1.0.0")
	a.Category = "storage"
	b := mod("mysql", "1.0.0")
	b.Category = "storage"
	exempt1 := mod("buttons", "1.0.0")
	exempt1.Category = "ui"
	exempt2 := mod("forms", "1.0.0")
	exempt2.Category = "ui"

	e := newEngine(t, DefaultOptions(), a, b, exempt1, exempt2)

	opt := e.Optimize(Composition{Modules: []string{"pg", "mysql", "buttons", "forms"}})

	var redundant []string
	for _, s := range opt.Suggestions {
		if s.Kind == "redundancy" {
			redundant = append(redundant, s.ModuleID)
		}
	}
	if len(redundant) != 1 || redundant[0] != "mysql" {
		t.Errorf("redundancy suggestions = %v, want [mysql]", redundant)
	}
	for _, id := range opt.Optimized.Modules {
		if id == "mysql" {
			t.Error("redundant module survived in optimized composition")
		}
	}
}
