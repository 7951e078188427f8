// SPDX-License-Identifier: MPL-2.0

// Package dnamod defines the DNA module model: a versioned, declaratively
// described feature unit with dependencies, conflicts, per-framework support,
// a configuration contract, and a file-generation contract. Modules are
// described by a dnamod.cue manifest validated against the embedded schema.
package dnamod

import (
	"fmt"
	"strings"

	"dnaforge/pkg/semver"
)

const (
	// ManifestName is the module manifest file name inside a module directory.
	ManifestName = "dnamod.cue"

	// ModuleSuffix is the standard suffix for DNA module directories.
	ModuleSuffix = ".dnamod"
)

// CompatLevel classifies how well two modules, or a module and a framework,
// interoperate.
type CompatLevel string

const (
	CompatNone    CompatLevel = "NONE"
	CompatPartial CompatLevel = "PARTIAL"
	CompatFull    CompatLevel = "FULL"
)

// Severity grades a declared conflict.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// MergePolicy decides how generated files colliding on the same path are
// combined. PolicyMerge concatenates content in arrival order; any other
// policy keeps the last writer.
type MergePolicy string

const (
	PolicyMerge   MergePolicy = "merge"
	PolicyReplace MergePolicy = "replace"
)

type (
	// Dependency declares a requirement on another module.
	Dependency struct {
		// ModuleID is the id of the required module.
		ModuleID string `json:"module"`
		// Range is the semver constraint for version selection (e.g., "^1.2.0").
		Range semver.Range `json:"version"`
		// Optional dependencies do not constrain install order and are
		// resolved on a best-effort basis.
		Optional bool `json:"optional,omitempty"`
	}

	// Conflict declares incompatibility with another module.
	Conflict struct {
		// ModuleID is the id of the conflicting module.
		ModuleID string `json:"module"`
		// Reason explains why the two modules cannot coexist.
		Reason string `json:"reason"`
		// Severity is "error" (blocks composition) or "warning" (surfaced only).
		Severity Severity `json:"severity"`
		// Resolution optionally suggests how to resolve the conflict.
		Resolution string `json:"resolution,omitempty"`
	}

	// FrameworkSupport records how a module behaves on one target framework.
	FrameworkSupport struct {
		// Framework is the target framework id (e.g., "flutter", "nextjs").
		Framework string `json:"framework"`
		// Supported indicates whether the module can be used at all.
		Supported bool `json:"supported"`
		// Level is the compatibility classification when supported.
		Level CompatLevel `json:"level"`
		// Limitations lists known gaps on this framework.
		Limitations []string `json:"limitations,omitempty"`
	}

	// ConfigContract is the module's configuration schema: declared field
	// types, defaults, required fields, and an optional custom validator
	// supplied at registration time.
	ConfigContract struct {
		// Schema maps field names to declared types ("string", "int", "bool", "list", "map").
		Schema map[string]string `json:"schema,omitempty"`
		// Defaults are applied before composition-level overrides.
		Defaults map[string]any `json:"defaults,omitempty"`
		// Required lists fields that must be present after merging.
		Required []string `json:"required,omitempty"`
		// Validate runs after the merge; returned messages are surfaced
		// verbatim as configuration errors. Set programmatically, not from CUE.
		Validate func(config map[string]any) []string `json:"-"`
	}

	// MigrationStep describes one step of a version migration path.
	MigrationStep struct {
		// From is the range of source versions this step applies to.
		From semver.Range `json:"from"`
		// To is the version the step migrates to.
		To semver.SemVer `json:"to"`
		// Breaking marks steps that change behavior or require manual action.
		Breaking bool `json:"breaking,omitempty"`
		// Description summarizes the step for operator review.
		Description string `json:"description,omitempty"`
		// Commands are shell commands executed by the lifecycle manager when
		// the step runs.
		Commands []string `json:"commands,omitempty"`
	}

	// Hooks lists commands run around lifecycle operations. A non-zero exit
	// from any pre-hook aborts the operation.
	Hooks struct {
		PreInstall  []string `json:"pre_install,omitempty"`
		PostInstall []string `json:"post_install,omitempty"`
		PreUpdate   []string `json:"pre_update,omitempty"`
		PostUpdate  []string `json:"post_update,omitempty"`
		PreRemove   []string `json:"pre_remove,omitempty"`
		PostRemove  []string `json:"post_remove,omitempty"`
	}

	// Module is a fully described DNA module at one concrete version.
	Module struct {
		// ID is the module identifier; (ID, Version) is unique registry-wide.
		ID string `json:"module"`
		// Version is the concrete semantic version of this module.
		Version semver.SemVer `json:"version"`
		// Name is the human-readable display name.
		Name string `json:"name,omitempty"`
		// Description summarizes the module's purpose.
		Description string `json:"description,omitempty"`
		// Category groups related modules (e.g., "auth", "storage", "realtime").
		Category string `json:"category"`
		// Deprecated modules resolve only when the context allows them.
		Deprecated bool `json:"deprecated,omitempty"`
		// Experimental modules resolve only when the context allows them.
		Experimental bool `json:"experimental,omitempty"`
		// Dependencies are the module's declared requirements.
		Dependencies []Dependency `json:"dependencies,omitempty"`
		// Conflicts are the module's declared incompatibilities.
		Conflicts []Conflict `json:"conflicts,omitempty"`
		// Frameworks records per-framework support.
		Frameworks []FrameworkSupport `json:"frameworks,omitempty"`
		// Config is the module's configuration contract.
		Config ConfigContract `json:"config,omitempty"`
		// Migrations is the ordered migration path between versions.
		Migrations []MigrationStep `json:"migrations,omitempty"`
		// Hooks are lifecycle hook commands.
		Hooks Hooks `json:"hooks,omitempty"`

		// Generator produces this module's files during composition. Set at
		// registration time; nil modules are skipped by file generation.
		Generator Generator `json:"-"`
		// Path is the filesystem location the module was loaded from (not in CUE).
		Path string `json:"-"`
	}

	// GeneratedFile is one file produced by a module's generator.
	GeneratedFile struct {
		// Path is the output path relative to the project root.
		Path string
		// Content is the file body.
		Content string
		// Policy decides collision handling when two modules emit the same path.
		Policy MergePolicy
	}

	// GenerateContext carries per-composition inputs into a Generator.
	GenerateContext struct {
		// Framework is the composition's target framework id.
		Framework string
		// TemplateType is the composition's template flavor.
		TemplateType string
		// Config is the merged, validator-approved configuration for the module.
		Config map[string]any
		// OutputRoot is the project root files are generated under.
		OutputRoot string
	}

	// Generator is the file-generation contract a module implements. The
	// composition engine drives the methods in sequence for each module in
	// dependency order: Initialize, Configure, Validate, Generate.
	Generator interface {
		Initialize(ctx GenerateContext) error
		Configure(config map[string]any) error
		Validate() error
		Generate() ([]GeneratedFile, error)
	}
)

// Key returns the unique (id, version) key for this module.
func (m *Module) Key() string {
	return fmt.Sprintf("%s@%s", m.ID, m.Version)
}

// String returns a human-readable representation of the module.
func (m *Module) String() string {
	s := m.Key()
	if m.Category != "" {
		s += " (" + m.Category + ")"
	}
	return s
}

// Support returns the framework support record for the given framework id,
// or nil when the module declares nothing about it.
func (m *Module) Support(framework string) *FrameworkSupport {
	for i := range m.Frameworks {
		if m.Frameworks[i].Framework == framework {
			return &m.Frameworks[i]
		}
	}
	return nil
}

// SupportsFramework reports whether the module declares working support for
// the framework.
func (m *Module) SupportsFramework(framework string) bool {
	fs := m.Support(framework)
	return fs != nil && fs.Supported
}

// CompatWith returns the declared compatibility level for the framework;
// undeclared frameworks report CompatNone.
func (m *Module) CompatWith(framework string) CompatLevel {
	fs := m.Support(framework)
	if fs == nil || !fs.Supported {
		return CompatNone
	}
	return fs.Level
}

// ConflictWith returns the declared conflict against the given module id,
// or nil when none is declared.
func (m *Module) ConflictWith(moduleID string) *Conflict {
	for i := range m.Conflicts {
		if m.Conflicts[i].ModuleID == moduleID {
			return &m.Conflicts[i]
		}
	}
	return nil
}

// DependsOn reports whether the module declares a (possibly optional)
// dependency on the given module id.
func (m *Module) DependsOn(moduleID string) bool {
	for _, dep := range m.Dependencies {
		if dep.ModuleID == moduleID {
			return true
		}
	}
	return false
}

// MigrationPath returns the ordered migration steps applying between the
// current and target versions, and whether any step is breaking. Steps whose
// From range matches the current version and whose To version is at or below
// the target are selected in declaration order.
func (m *Module) MigrationPath(current, target semver.SemVer) (steps []MigrationStep, breaking bool) {
	cur, err := semver.Parse(current.String())
	if err != nil {
		return nil, false
	}
	tgt, err := semver.Parse(target.String())
	if err != nil {
		return nil, false
	}

	for _, step := range m.Migrations {
		to, err := semver.Parse(step.To.String())
		if err != nil {
			continue
		}
		if to.Compare(tgt) > 0 {
			continue
		}
		if to.Compare(cur) <= 0 {
			continue
		}
		if !semver.Satisfies(current.String(), step.From.String()) {
			// The step chain advances: later steps apply from the version a
			// previous step migrated to.
			if len(steps) == 0 || !semver.Satisfies(steps[len(steps)-1].To.String(), step.From.String()) {
				continue
			}
		}
		steps = append(steps, step)
		if step.Breaking {
			breaking = true
		}
	}
	return steps, breaking
}

// ParseKey splits a "id@version" key into its parts. Keys without a version
// return an empty version.
func ParseKey(key string) (id string, version semver.SemVer) {
	parts := strings.SplitN(key, "@", 2)
	if len(parts) == 2 {
		return parts[0], semver.SemVer(parts[1])
	}
	return key, ""
}
