// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"testing"

	"dnaforge/pkg/composer"
)

func TestApplyConfigOverrides(t *testing.T) {
	comp := &composer.Composition{}
	err := applyConfigOverrides(comp, []string{
		"timeout=30",
		"auth.provider=oauth",
		"auth.region=eu",
	})
	if err != nil {
		t.Fatal(err)
	}
	if comp.GlobalConfig["timeout"] != "30" {
		t.Errorf("GlobalConfig = %v", comp.GlobalConfig)
	}
	if comp.ModuleConfig["auth"]["provider"] != "oauth" || comp.ModuleConfig["auth"]["region"] != "eu" {
		t.Errorf("ModuleConfig = %v", comp.ModuleConfig)
	}
}

func TestApplyConfigOverridesRejectsMalformed(t *testing.T) {
	for _, entry := range []string{"novalue", "=orphan", ""} {
		comp := &composer.Composition{}
		if err := applyConfigOverrides(comp, []string{entry}); err == nil {
			t.Errorf("applyConfigOverrides(%q) accepted", entry)
		}
	}
}
