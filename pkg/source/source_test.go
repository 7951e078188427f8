// SPDX-License-Identifier: MPL-2.0

package source

import (
	"os"
	"path/filepath"
	"testing"
)

func writeModule(t *testing.T, root, shortName, manifest string) string {
	t.Helper()
	dir := filepath.Join(root, shortName+ModuleSuffix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestName), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

const authManifest = `
module:   "auth"
version:  "1.2.0"
category: "security"
`

const dbManifest = `
module:   "database"
version:  "2.0.0"
category: "storage"
dependencies: [
	{module: "auth", version: "^1.0.0"},
]
`

func TestLoadLocalDirectory(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "auth", authManifest)
	writeModule(t, root, "database", dbManifest)
	// Non-module noise is skipped silently.
	if err := os.MkdirAll(filepath.Join(root, "notes"), 0o755); err != nil {
		t.Fatal(err)
	}

	result := NewLoader(nil).Load(Descriptor{Kind: KindLocal, Location: root})
	if len(result.Diagnostics) != 0 {
		t.Errorf("diagnostics = %v, want none", result.Diagnostics)
	}
	if len(result.Modules) != 2 {
		t.Fatalf("modules = %d, want 2", len(result.Modules))
	}

	ids := map[string]bool{}
	for _, m := range result.Modules {
		ids[m.ID] = true
	}
	if !ids["auth"] || !ids["database"] {
		t.Errorf("loaded ids = %v", ids)
	}
}

func TestLoadPackageDirectory(t *testing.T) {
	dir := writeModule(t, t.TempDir(), "auth", authManifest)

	result := NewLoader(nil).Load(Descriptor{Kind: KindPackage, Location: dir})
	if len(result.Modules) != 1 {
		t.Fatalf("modules = %d, want 1 (diags: %v)", len(result.Modules), result.Diagnostics)
	}
	if result.Modules[0].ID != "auth" {
		t.Errorf("id = %s, want auth", result.Modules[0].ID)
	}
	if result.Modules[0].Path != dir {
		t.Errorf("path = %s, want %s", result.Modules[0].Path, dir)
	}
}

func TestLoadPackageAlias(t *testing.T) {
	dir := writeModule(t, t.TempDir(), "auth", authManifest)

	result := NewLoader(nil).Load(Descriptor{Kind: KindPackage, Location: dir, Alias: "legacy-auth"})
	if len(result.Modules) != 1 {
		t.Fatalf("modules = %d, want 1", len(result.Modules))
	}
	if result.Modules[0].ID != "legacy-auth" {
		t.Errorf("id = %s, want alias applied", result.Modules[0].ID)
	}
}

func TestLoadIsolatesBrokenModules(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "auth", authManifest)
	writeModule(t, root, "broken", `module: "broken"`) // missing version/category

	result := NewLoader(nil).Load(Descriptor{Kind: KindLocal, Location: root})
	if len(result.Modules) != 1 || result.Modules[0].ID != "auth" {
		t.Errorf("modules = %v, want just auth", result.Modules)
	}
	if len(result.Diagnostics) != 1 {
		t.Errorf("diagnostics = %v, want one for the broken module", result.Diagnostics)
	}
}

func TestLoadMissingDirectoryIsQuiet(t *testing.T) {
	result := NewLoader(nil).Load(Descriptor{Kind: KindLocal, Location: filepath.Join(t.TempDir(), "absent")})
	if len(result.Modules) != 0 || len(result.Diagnostics) != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
}

func TestLoadRegistryUnsupported(t *testing.T) {
	result := NewLoader(nil).Load(Descriptor{Kind: KindRegistry, Location: "https://registry.example.com"})
	if len(result.Diagnostics) != 1 {
		t.Fatalf("diagnostics = %v, want unsupported-source entry", result.Diagnostics)
	}
}

func TestLoadMultipleSources(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeModule(t, rootA, "auth", authManifest)
	writeModule(t, rootB, "database", dbManifest)

	result := NewLoader(nil).Load(
		Descriptor{Kind: KindLocal, Location: rootA},
		Descriptor{Kind: KindLocal, Location: rootB},
		Descriptor{Kind: "mystery", Location: "/nowhere"},
	)
	if len(result.Modules) != 2 {
		t.Errorf("modules = %d, want 2", len(result.Modules))
	}
	if len(result.Diagnostics) != 1 {
		t.Errorf("diagnostics = %v, want one unknown-kind entry", result.Diagnostics)
	}
}

func TestIsModule(t *testing.T) {
	dir := writeModule(t, t.TempDir(), "auth", authManifest)
	if !IsModule(dir) {
		t.Error("IsModule() = false for a valid module dir")
	}
	if IsModule(filepath.Dir(dir)) {
		t.Error("IsModule() = true for the parent dir")
	}
	if ShortName(dir) != "auth" {
		t.Errorf("ShortName() = %s", ShortName(dir))
	}
}
