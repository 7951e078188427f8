// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"testing"

	"dnaforge/pkg/dnamod"
	"dnaforge/pkg/registry"
	"dnaforge/pkg/semver"
)

func catalogFixture(t *testing.T) *Services {
	t.Helper()
	reg := registry.New(nil)
	for _, version := range []string{"1.0.0", "1.2.0", "2.0.0"} {
		m := &dnamod.Module{ID: "auth", Version: semver.SemVer(version), Category: "security"}
		if err := reg.Register(m); err != nil {
			t.Fatal(err)
		}
	}
	return &Services{Registry: reg}
}

func TestCatalogModuleCurrent(t *testing.T) {
	svc := catalogFixture(t)
	m, err := catalogModule(svc, "auth")
	if err != nil {
		t.Fatal(err)
	}
	if m.Version != "2.0.0" {
		t.Errorf("Version = %s, want current 2.0.0", m.Version)
	}
}

func TestCatalogModulePinned(t *testing.T) {
	svc := catalogFixture(t)
	m, err := catalogModule(svc, "auth@1.2.0")
	if err != nil {
		t.Fatal(err)
	}
	if m.Version != "1.2.0" {
		t.Errorf("Version = %s, want 1.2.0", m.Version)
	}
}

func TestCatalogModuleUnknown(t *testing.T) {
	svc := catalogFixture(t)
	if _, err := catalogModule(svc, "nope"); err == nil {
		t.Error("unknown module accepted")
	}
	if _, err := catalogModule(svc, "auth@9.9.9"); err == nil {
		t.Error("unknown version accepted")
	}
}
