// SPDX-License-Identifier: MPL-2.0

// Package source discovers and loads DNA modules from configured locations.
//
// A Descriptor names one location; the Loader scans it and returns every
// parseable module. Loading is permissive: a broken module is skipped with a
// diagnostic instead of failing the whole scan, so one bad manifest never
// hides the rest of a module directory.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dnaforge/pkg/dnamod"

	"github.com/charmbracelet/log"
)

const (
	// KindLocal scans a directory for *.dnamod subdirectories.
	KindLocal Kind = "local"
	// KindPackage points directly at a single *.dnamod directory.
	KindPackage Kind = "package"
	// KindRegistry names a remote registry. Remote fetching is not
	// implemented; the descriptor is accepted so configs stay portable,
	// but loading reports an unsupported-source diagnostic.
	KindRegistry Kind = "registry"

	// ModuleSuffix is the filesystem suffix marking a module directory.
	ModuleSuffix = ".dnamod"
	// ManifestName is the manifest filename inside a module directory.
	ManifestName = "dnamod.cue"
)

type (
	// Kind identifies how a Descriptor's location is interpreted.
	Kind string

	// Descriptor names one module source.
	Descriptor struct {
		Kind Kind `json:"kind"`
		// Location is a filesystem path for local/package kinds, or a
		// registry URL for the registry kind.
		Location string `json:"location"`
		// Alias optionally overrides the id of the loaded module
		// (package kind only) for collision disambiguation.
		Alias string `json:"alias,omitempty"`
	}

	// Diagnostic is a non-fatal problem encountered while scanning a source.
	Diagnostic struct {
		Source  Descriptor
		Path    string
		Message string
	}

	// Result is the outcome of loading one or more sources.
	Result struct {
		Modules     []*dnamod.Module
		Diagnostics []Diagnostic
	}

	// Loader loads modules from descriptors.
	Loader struct {
		logger *log.Logger
	}
)

// NewLoader creates a Loader. A nil logger falls back to the default logger.
func NewLoader(logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{logger: logger.With("component", "source")}
}

// IsModule reports whether path is a module directory: suffixed .dnamod and
// containing a manifest file.
func IsModule(path string) bool {
	if !strings.HasSuffix(path, ModuleSuffix) {
		return false
	}
	info, err := os.Stat(filepath.Join(path, ManifestName))
	return err == nil && !info.IsDir()
}

// ManifestPath returns the manifest location inside a module directory.
func ManifestPath(moduleDir string) string {
	return filepath.Join(moduleDir, ManifestName)
}

// Load scans every descriptor in order and accumulates their modules.
// Failures are isolated per source: a descriptor that cannot be read
// contributes diagnostics but never aborts the remaining descriptors.
func (l *Loader) Load(descriptors ...Descriptor) *Result {
	result := &Result{}
	for _, desc := range descriptors {
		l.loadOne(desc, result)
	}
	return result
}

func (l *Loader) loadOne(desc Descriptor, result *Result) {
	switch desc.Kind {
	case KindLocal:
		l.scanDir(desc, result)
	case KindPackage:
		l.loadModuleDir(desc, desc.Location, result)
	case KindRegistry:
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Source:  desc,
			Path:    desc.Location,
			Message: "remote registry sources are not supported",
		})
	default:
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Source:  desc,
			Path:    desc.Location,
			Message: fmt.Sprintf("unknown source kind %q", desc.Kind),
		})
	}
}

// scanDir finds every *.dnamod directory directly under the location.
// The scan is flat: nested module directories inside a module are owned by
// that module and are not loaded independently.
func (l *Loader) scanDir(desc Descriptor, result *Result) {
	absDir, err := filepath.Abs(desc.Location)
	if err != nil {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Source:  desc,
			Path:    desc.Location,
			Message: fmt.Sprintf("failed to resolve scan path: %v", err),
		})
		return
	}

	if _, statErr := os.Stat(absDir); os.IsNotExist(statErr) {
		// Missing source directories are common (fresh setups) and not a warning.
		return
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Source:  desc,
			Path:    absDir,
			Message: fmt.Sprintf("failed to list directory: %v", err),
		})
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		entryPath := filepath.Join(absDir, entry.Name())
		if !IsModule(entryPath) {
			continue
		}
		l.loadModuleDir(desc, entryPath, result)
	}
}

// loadModuleDir parses a single module directory's manifest.
func (l *Loader) loadModuleDir(desc Descriptor, dir string, result *Result) {
	if !IsModule(dir) {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Source:  desc,
			Path:    dir,
			Message: "not a module directory (missing .dnamod suffix or manifest)",
		})
		return
	}

	m, err := dnamod.ParseManifest(ManifestPath(dir))
	if err != nil {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Source:  desc,
			Path:    dir,
			Message: fmt.Sprintf("skipping invalid module: %v", err),
		})
		l.logger.Warn("skipping invalid module", "path", dir, "error", err)
		return
	}

	if desc.Kind == KindPackage && desc.Alias != "" {
		m.ID = desc.Alias
	}

	result.Modules = append(result.Modules, m)
}

// ShortName extracts the short name from a module directory path,
// e.g. "/path/to/auth.dnamod" -> "auth".
func ShortName(modulePath string) string {
	return strings.TrimSuffix(filepath.Base(modulePath), ModuleSuffix)
}
