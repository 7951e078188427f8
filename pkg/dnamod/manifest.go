// SPDX-License-Identifier: MPL-2.0

package dnamod

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dnaforge/pkg/cueutil"
	"dnaforge/pkg/platform"
)

//go:embed dnamod_schema.cue
var manifestSchema string

// ErrManifestNotFound is returned when dnamod.cue is not found in a module
// directory. Callers can check for it with errors.Is.
var ErrManifestNotFound = errors.New("dnamod.cue not found")

type (
	// ValidationIssueType categorizes module validation issues.
	ValidationIssueType string

	// ValidationIssue represents a single domain-level validation problem in
	// a module manifest. Issues are collected and reported as a batch via
	// ValidationResult; error returns are reserved for I/O failures that
	// prevent validation from continuing.
	ValidationIssue struct {
		// Type categorizes the issue.
		Type ValidationIssueType
		// Message describes the specific problem.
		Message string
		// Path is the manifest field or file path where the issue was found (optional).
		Path string
	}

	// ValidationResult contains the result of module manifest validation.
	ValidationResult struct {
		// Valid is true if the module passed all validation checks.
		Valid bool
		// ModuleID is the id taken from the manifest.
		ModuleID string
		// ManifestPath is the path to the validated dnamod.cue.
		ManifestPath string
		// Issues contains all validation problems found.
		Issues []ValidationIssue
	}
)

const (
	// IssueTypeManifest categorizes dnamod.cue parsing or content issues.
	IssueTypeManifest ValidationIssueType = "manifest"
	// IssueTypeDependency categorizes dependency declaration issues.
	IssueTypeDependency ValidationIssueType = "dependency"
	// IssueTypeConflict categorizes conflict declaration issues.
	IssueTypeConflict ValidationIssueType = "conflict"
	// IssueTypeConfig categorizes configuration contract issues.
	IssueTypeConfig ValidationIssueType = "config"
)

// Error implements the error interface for ValidationIssue.
func (v ValidationIssue) Error() string {
	if v.Path != "" {
		return fmt.Sprintf("[%s] %s: %s", v.Type, v.Path, v.Message)
	}
	return fmt.Sprintf("[%s] %s", v.Type, v.Message)
}

// AddIssue adds a validation issue to the result.
func (r *ValidationResult) AddIssue(issueType ValidationIssueType, message, path string) {
	r.Issues = append(r.Issues, ValidationIssue{
		Type:    issueType,
		Message: message,
		Path:    path,
	})
	r.Valid = false
}

// ParseManifest reads and parses a module manifest from the given path.
func ParseManifest(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("failed to read manifest at %s: %w", path, err)
	}
	return ParseManifestBytes(data, path)
}

// ParseManifestBytes parses manifest content. Uses the 3-step CUE flow:
// compile schema, compile user data, validate and decode.
func ParseManifestBytes(data []byte, path string) (*Module, error) {
	result, err := cueutil.ParseAndDecodeString[Module](
		manifestSchema,
		data,
		"#Module",
		cueutil.WithFilename(path),
	)
	if err != nil {
		return nil, err
	}

	mod := result.Value
	mod.Path = filepath.Dir(path)

	if issues := Lint(mod); len(issues) > 0 {
		return nil, fmt.Errorf("%s: %s", path, issues[0].Error())
	}

	return mod, nil
}

// Lint checks constraints the CUE schema cannot express: semver validity of
// the version and every dependency range, self-references, and configuration
// contract consistency. It returns all problems found.
func Lint(m *Module) []ValidationIssue {
	var issues []ValidationIssue
	add := func(t ValidationIssueType, msg, path string) {
		issues = append(issues, ValidationIssue{Type: t, Message: msg, Path: path})
	}

	if ok, _ := m.Version.IsValid(); !ok {
		add(IssueTypeManifest, fmt.Sprintf("invalid version %q", m.Version), "version")
	}

	// The module id becomes the install directory name, so it must be a
	// valid filename on every platform.
	if platform.IsWindowsReservedName(m.ID) {
		add(IssueTypeManifest, fmt.Sprintf("module id %q is a reserved filename on Windows", m.ID), "module")
	}

	seenDeps := make(map[string]bool)
	for i, dep := range m.Dependencies {
		field := fmt.Sprintf("dependencies[%d]", i)
		if dep.ModuleID == m.ID {
			add(IssueTypeDependency, "module cannot depend on itself", field)
		}
		if ok, _ := dep.Range.IsValid(); !ok {
			add(IssueTypeDependency, fmt.Sprintf("invalid version range %q", dep.Range), field)
		}
		if seenDeps[dep.ModuleID] {
			add(IssueTypeDependency, fmt.Sprintf("duplicate dependency on %q", dep.ModuleID), field)
		}
		seenDeps[dep.ModuleID] = true
	}

	for i, conf := range m.Conflicts {
		field := fmt.Sprintf("conflicts[%d]", i)
		if conf.ModuleID == m.ID {
			add(IssueTypeConflict, "module cannot conflict with itself", field)
		}
		if seenDeps[conf.ModuleID] {
			add(IssueTypeConflict, fmt.Sprintf("module both depends on and conflicts with %q", conf.ModuleID), field)
		}
	}

	for _, req := range m.Config.Required {
		if _, ok := m.Config.Schema[req]; len(m.Config.Schema) > 0 && !ok {
			add(IssueTypeConfig, fmt.Sprintf("required field %q not declared in schema", req), "config.required")
		}
	}
	for field, value := range m.Config.Defaults {
		declared, ok := m.Config.Schema[field]
		if len(m.Config.Schema) > 0 && !ok {
			add(IssueTypeConfig, fmt.Sprintf("default for undeclared field %q", field), "config.defaults")
			continue
		}
		if ok && !typeMatches(declared, value) {
			add(IssueTypeConfig, fmt.Sprintf("default for %q does not match declared type %s", field, declared), "config.defaults")
		}
	}

	return issues
}

// Validate runs Lint over a module directory's manifest and returns a batch
// result instead of failing on the first issue.
func Validate(moduleDir string) (*ValidationResult, error) {
	manifestPath := filepath.Join(moduleDir, ManifestName)
	result := &ValidationResult{Valid: true, ManifestPath: manifestPath}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			result.AddIssue(IssueTypeManifest, "manifest file missing", manifestPath)
			return result, nil
		}
		return nil, fmt.Errorf("failed to read manifest at %s: %w", manifestPath, err)
	}

	parsed, err := cueutil.ParseAndDecodeString[Module](manifestSchema, data, "#Module", cueutil.WithFilename(manifestPath))
	if err != nil {
		result.AddIssue(IssueTypeManifest, err.Error(), manifestPath)
		return result, nil
	}

	mod := parsed.Value
	result.ModuleID = mod.ID

	// The directory name prefix must match the declared module id.
	dirName := strings.TrimSuffix(filepath.Base(moduleDir), ModuleSuffix)
	if dirName != mod.ID {
		result.AddIssue(IssueTypeManifest,
			fmt.Sprintf("directory name %q does not match module id %q", dirName, mod.ID), moduleDir)
	}

	for _, iss := range Lint(mod) {
		result.AddIssue(iss.Type, iss.Message, iss.Path)
	}

	return result, nil
}

// typeMatches reports whether a config value matches a declared schema type.
func typeMatches(declared string, value any) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "int":
		switch value.(type) {
		case int, int32, int64, float64:
			return true
		}
		return false
	case "bool":
		_, ok := value.(bool)
		return ok
	case "list":
		_, ok := value.([]any)
		return ok
	case "map":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

// CheckConfig validates a merged configuration against the contract. It
// checks required fields and declared types, then runs the custom validator.
// Returned messages are surfaced verbatim as configuration errors.
func (c *ConfigContract) CheckConfig(config map[string]any) []string {
	var problems []string

	for _, field := range c.Required {
		if _, ok := config[field]; !ok {
			problems = append(problems, fmt.Sprintf("required field %q is missing", field))
		}
	}

	for field, value := range config {
		declared, ok := c.Schema[field]
		if !ok {
			continue
		}
		if !typeMatches(declared, value) {
			problems = append(problems, fmt.Sprintf("field %q must be of type %s", field, declared))
		}
	}

	if c.Validate != nil {
		problems = append(problems, c.Validate(config)...)
	}

	return problems
}

// MergedConfig builds the effective configuration for the module: declared
// defaults, overlaid with global config, overlaid with per-module overrides.
func (c *ConfigContract) MergedConfig(global, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(c.Defaults)+len(global)+len(overrides))
	for k, v := range c.Defaults {
		merged[k] = v
	}
	for k, v := range global {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
