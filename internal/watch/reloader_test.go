// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dnaforge/pkg/composer"
	"dnaforge/pkg/registry"
	"dnaforge/pkg/resolver"
	"dnaforge/pkg/source"
)

type reloadFixture struct {
	root     string
	session  *Session
	registry *registry.Registry
	resolver *resolver.Resolver
	engine   *composer.Engine
	reloader *Reloader
}

func newReloadFixture(t *testing.T, strategies Strategies) *reloadFixture {
	t.Helper()
	root := t.TempDir()
	reg := registry.New(nil)
	res := resolver.New(reg, nil)
	engine := composer.New(reg, res, nil, composer.DefaultOptions())
	session := NewSession([]string{root})
	f := &reloadFixture{
		root:     root,
		session:  session,
		registry: reg,
		resolver: res,
		engine:   engine,
	}
	f.reloader = NewReloader(session, reg, res, engine, source.NewLoader(nil), []string{root}, strategies, true, nil)
	return f
}

func (f *reloadFixture) writeManifest(t *testing.T, shortName, manifest string) {
	t.Helper()
	dir := filepath.Join(f.root, shortName+source.ModuleSuffix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, source.ManifestName), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (f *reloadFixture) registerFromDisk(t *testing.T, shortName string) {
	t.Helper()
	dir := filepath.Join(f.root, shortName+source.ModuleSuffix)
	result := source.NewLoader(nil).Load(source.Descriptor{Kind: source.KindPackage, Location: dir})
	if len(result.Modules) != 1 {
		t.Fatalf("load %s: %v", shortName, result.Diagnostics)
	}
	if err := f.registry.Register(result.Modules[0]); err != nil {
		t.Fatal(err)
	}
}

func simpleManifest(id, version, category string) string {
	return `
module:   "` + id + `"
version:  "` + version + `"
category: "` + category + `"
frameworks: [
	{framework: "react", supported: true, level: "FULL"},
]
`
}

func manifestEvent(shortName string) ChangeEvent {
	return ChangeEvent{
		Path:     filepath.Join(shortName+source.ModuleSuffix, source.ManifestName),
		Category: CategoryModule,
		Type:     ChangeModify,
		Time:     time.Now(),
	}
}

func TestReloadModuleRegistersNewVersion(t *testing.T) {
	f := newReloadFixture(t, Strategies{})
	f.writeManifest(t, "auth", simpleManifest("auth", "1.0.0", "security"))
	f.registerFromDisk(t, "auth")

	f.session.SetModuleState("auth", map[string]any{"sessions": float64(4)})

	// Bump the version on disk, then deliver the change.
	f.writeManifest(t, "auth", simpleManifest("auth", "1.1.0", "security"))
	batch := Batch{Category: CategoryModule, Events: []ChangeEvent{manifestEvent("auth")}}
	if err := f.reloader.HandleBatch(context.Background(), batch); err != nil {
		t.Fatalf("HandleBatch() error = %v", err)
	}

	current, err := f.registry.Current("auth")
	if err != nil {
		t.Fatal(err)
	}
	if current.Version != "1.1.0" {
		t.Errorf("current version = %s, want 1.1.0", current.Version)
	}

	// Preserved state survives the reload.
	state, ok := f.session.ModuleState("auth")
	if !ok || state.(map[string]any)["sessions"] != float64(4) {
		t.Errorf("preserved state = %v", state)
	}

	history := f.session.ReloadHistory()
	if len(history) != 1 || history[0].Category != CategoryModule {
		t.Errorf("history = %+v", history)
	}
}

func TestReloadSmartSkipsNonManifestChanges(t *testing.T) {
	f := newReloadFixture(t, Strategies{Module: ModuleReloadSmart})
	f.writeManifest(t, "auth", simpleManifest("auth", "1.0.0", "security"))
	f.registerFromDisk(t, "auth")

	// A source file inside the module changed, not the manifest.
	batch := Batch{Category: CategoryModule, Events: []ChangeEvent{{
		Path:     filepath.Join("auth"+source.ModuleSuffix, "handlers", "login.ts"),
		Category: CategoryModule,
		Type:     ChangeModify,
	}}}
	if err := f.reloader.HandleBatch(context.Background(), batch); err != nil {
		t.Fatal(err)
	}

	current, _ := f.registry.Current("auth")
	if current.Version != "1.0.0" {
		t.Errorf("version = %s, want unchanged 1.0.0", current.Version)
	}
	if len(f.session.ReloadHistory()) != 1 {
		t.Error("reload not recorded")
	}
}

func TestReloadCascadesToDependents(t *testing.T) {
	f := newReloadFixture(t, Strategies{Dependency: DependencyReloadCascade})
	f.writeManifest(t, "base", simpleManifest("base", "1.0.0", "core"))
	f.writeManifest(t, "auth", `
module:   "auth"
version:  "1.0.0"
category: "security"
dependencies: [
	{module: "base", version: "^1.0.0"},
]
`)
	f.registerFromDisk(t, "base")
	f.registerFromDisk(t, "auth")

	f.session.SetModuleState("auth", map[string]any{"warm": true})

	f.writeManifest(t, "base", simpleManifest("base", "1.0.1", "core"))
	batch := Batch{Category: CategoryModule, Events: []ChangeEvent{manifestEvent("base")}}
	if err := f.reloader.HandleBatch(context.Background(), batch); err != nil {
		t.Fatal(err)
	}

	// The dependent's state was cycled through a snapshot.
	if _, ok := f.session.RestoreLatest("auth"); !ok {
		t.Error("dependent auth has no snapshot after cascade reload")
	}
}

func TestReloadConfigRecomputesCompositions(t *testing.T) {
	f := newReloadFixture(t, Strategies{Config: ConfigReloadAll})
	f.writeManifest(t, "auth", simpleManifest("auth", "1.0.0", "security"))
	f.registerFromDisk(t, "auth")

	spec := composer.Composition{Name: "web-app", Framework: "react", Modules: []string{"auth"}}
	f.session.SetComposition(spec, nil)

	batch := Batch{Category: CategoryConfig, Events: []ChangeEvent{{Path: "config.cue", Category: CategoryConfig, Type: ChangeModify}}}
	if err := f.reloader.HandleBatch(context.Background(), batch); err != nil {
		t.Fatal(err)
	}

	active, ok := f.session.Composition("web-app")
	if !ok || active.Result == nil {
		t.Fatal("composition not recomputed")
	}
	if !active.Result.Valid {
		t.Errorf("recomputed composition invalid: %+v", active.Result.Errors)
	}
}

func TestReloadDependencySelective(t *testing.T) {
	f := newReloadFixture(t, Strategies{Dependency: DependencyReloadSelective})
	f.writeManifest(t, "auth", simpleManifest("auth", "1.0.0", "security"))
	f.writeManifest(t, "billing", simpleManifest("billing", "1.0.0", "payments"))
	f.registerFromDisk(t, "auth")
	f.registerFromDisk(t, "billing")

	f.session.SetComposition(composer.Composition{Name: "with-auth", Framework: "react", Modules: []string{"auth"}}, nil)
	f.session.SetComposition(composer.Composition{Name: "with-billing", Framework: "react", Modules: []string{"billing"}}, nil)

	batch := Batch{Category: CategoryDependency, Events: []ChangeEvent{{
		Path:     filepath.Join("auth"+source.ModuleSuffix, "dependencies.lock"),
		Category: CategoryDependency,
		Type:     ChangeModify,
	}}}
	if err := f.reloader.HandleBatch(context.Background(), batch); err != nil {
		t.Fatal(err)
	}

	withAuth, _ := f.session.Composition("with-auth")
	withBilling, _ := f.session.Composition("with-billing")
	if withAuth.Result == nil {
		t.Error("composition referencing changed module not recomputed")
	}
	if withBilling.Result != nil {
		t.Error("unrelated composition recomputed under selective strategy")
	}
}

func TestReloadErrorRecordedNotReturned(t *testing.T) {
	f := newReloadFixture(t, Strategies{Module: ModuleReloadFull})
	f.writeManifest(t, "auth", simpleManifest("auth", "1.0.0", "security"))
	f.registerFromDisk(t, "auth")

	// Corrupt the manifest, then reload it.
	f.writeManifest(t, "auth", "module: \"auth\"\n")
	batch := Batch{Category: CategoryModule, Events: []ChangeEvent{manifestEvent("auth")}}
	if err := f.reloader.HandleBatch(context.Background(), batch); err != nil {
		t.Fatalf("HandleBatch() error = %v, want nil (errors are recorded)", err)
	}

	if len(f.session.Errors()) == 0 {
		t.Error("reload failure not recorded in error history")
	}
	history := f.session.ReloadHistory()
	if len(history) != 1 || history[0].Error == "" {
		t.Errorf("history = %+v, want record with error", history)
	}
}

func TestDropBatchCountsDrops(t *testing.T) {
	f := newReloadFixture(t, Strategies{})
	f.reloader.DropBatch(Batch{Category: CategoryModule})
	f.reloader.DropBatch(Batch{Category: CategoryConfig})

	if got := f.session.Stats().DroppedBatches; got != 2 {
		t.Errorf("DroppedBatches = %d, want 2", got)
	}
}
